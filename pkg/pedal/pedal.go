// Package pedal runs the firmware's main poll loop.
//
// One iteration: drain at most one host command, pump the serial config
// channel, sample both switches, consume the force flag, and send a report
// if it is dirty or forced. A sent report is followed by a fixed guard delay.
package pedal

import (
	"errors"
	"fmt"

	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/command"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/config"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/input"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/logging"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/report"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/ticker"
)

// ReportGuardMs is the minimum pause after every transmitted report.
const ReportGuardMs = 5

// ErrHostRead wraps a failed command read. It is not recoverable.
var ErrHostRead = errors.New("host read failed")

// Transport is the host interface bus.
type Transport interface {
	// Poll services the bus and reports whether there may be data pending.
	Poll() bool
	// ReadRaw returns one command packet. n == 0 means nothing was pending.
	ReadRaw() (buf [command.PacketSize]byte, n int, err error)
	report.Transport
}

// LEDSource is implemented by transports that receive the host's keyboard
// LED state. The state is echoed in reports without making them dirty.
type LEDSource interface {
	LEDs() uint8
}

// Delayer blocks for a number of milliseconds.
type Delayer interface {
	DelayMs(ms uint32)
}

// Pump is polled once per iteration for side channels such as the serial
// config protocol. A returned error is fatal.
type Pump interface {
	Pump() error
}

// Observer is told about accepted commands, transmitted reports and the
// fault that halts the loop.
type Observer interface {
	CommandApplied(cmd command.Command, cfg config.Configuration)
	ReportSent(r report.Report, forced bool)
	Fault(err error)
}

// Pedal owns every core component.
type Pedal struct {
	transport Transport
	delay     Delayer
	flag      *ticker.ForceFlag

	cfg       *config.Configuration
	left      *input.Channel
	right     *input.Channel
	processor *command.Processor
	assembler *report.Assembler

	pumps    []Pump
	observer Observer
	halted   error
}

// Options are the capabilities a board provides.
type Options struct {
	Left      input.Switch
	Right     input.Switch
	Transport Transport
	Store     config.ReadWriter
	Delay     Delayer
	Flag      *ticker.ForceFlag
}

// New loads the configuration from the store (falling back to defaults)
// and builds the channels, processor and assembler around it.
func New(opts Options) *Pedal {
	cfg := config.Load(opts.Store)
	logging.Info(logging.ComponentPedal, "configuration loaded",
		"left", cfg.LeftCode, "right", cfg.RightCode, "combine", cfg.CombineForModifier)

	p := &Pedal{
		transport: opts.Transport,
		delay:     opts.Delay,
		flag:      opts.Flag,
		cfg:       &cfg,
		left:      input.New(opts.Left, cfg.LeftCode),
		right:     input.New(opts.Right, cfg.RightCode),
		assembler: report.NewAssembler(opts.Transport),
	}
	if p.flag == nil {
		p.flag = &ticker.ForceFlag{}
	}
	p.processor = command.New(p.cfg, p.left, p.right, opts.Store)
	return p
}

// AddPump registers a side channel polled once per iteration.
func (p *Pedal) AddPump(pump Pump) {
	p.pumps = append(p.pumps, pump)
}

// SetObserver registers an observer. Pass nil to remove it.
func (p *Pedal) SetObserver(o Observer) {
	p.observer = o
}

// Step runs one loop iteration. Any returned error is fatal.
func (p *Pedal) Step() error {
	if p.halted != nil {
		return p.halted
	}
	if err := p.step(); err != nil {
		p.halted = err
		return err
	}
	return nil
}

func (p *Pedal) step() error {
	if p.transport.Poll() {
		buf, n, err := p.transport.ReadRaw()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHostRead, err)
		}
		if err := p.handlePacket(buf[:], n); err != nil {
			return err
		}
		if leds, ok := p.transport.(LEDSource); ok {
			p.assembler.SetLEDs(leds.LEDs())
		}
	}

	for _, pump := range p.pumps {
		if err := pump.Pump(); err != nil {
			return err
		}
	}

	if err := p.left.Update(); err != nil {
		return err
	}
	if err := p.right.Update(); err != nil {
		return err
	}

	force := p.flag.TakeAndClear()
	sent, err := p.assembler.ComposeAndMaybeSend(p.left.Output(), p.right.Output(), p.cfg.CombineForModifier, force)
	if err != nil {
		return err
	}
	if sent {
		if p.observer != nil {
			p.observer.ReportSent(p.assembler.Last(), force)
		}
		p.delay.DelayMs(ReportGuardMs)
	}
	return nil
}

func (p *Pedal) handlePacket(buf []byte, n int) error {
	cmd, ok := command.Decode(buf, n)
	if !ok {
		return nil
	}
	accepted, err := p.processor.Apply(cmd)
	if err != nil {
		return err
	}
	if accepted {
		p.assembler.SetEcho(cmd.Opcode, cmd.Payload)
		if p.observer != nil {
			p.observer.CommandApplied(cmd, *p.cfg)
		}
	}
	return nil
}

// Run loops until a fatal fault, then logs it once and halts. It never
// returns; the device stays silent until power-cycled.
func (p *Pedal) Run() {
	for {
		if err := p.Step(); err != nil {
			logging.Error(logging.ComponentPedal, "halted", "err", err)
			if p.observer != nil {
				p.observer.Fault(err)
			}
			halt()
		}
	}
}

// halt parks the main loop. Interrupts keep running but nothing consumes them.
var halt = func() {
	select {}
}

// Processor returns the command processor so side channels can apply
// commands through the same path.
func (p *Pedal) Processor() *command.Processor {
	return p.processor
}

// Assembler returns the report assembler.
func (p *Pedal) Assembler() *report.Assembler {
	return p.assembler
}

// Config returns a copy of the live configuration.
func (p *Pedal) Config() config.Configuration {
	return *p.cfg
}

// Channels returns the left and right input channels.
func (p *Pedal) Channels() (left, right *input.Channel) {
	return p.left, p.right
}

// Flag returns the force flag shared with the ticker.
func (p *Pedal) Flag() *ticker.ForceFlag {
	return p.flag
}

// Halted returns the fatal fault that stopped the loop, if any.
func (p *Pedal) Halted() error {
	return p.halted
}
