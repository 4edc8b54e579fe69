// Package command decodes host command packets and applies them to the live
// configuration.
//
// Packet format: [opcode][payload], read from a fixed 64 byte buffer. Bytes
// after the first two are ignored.
package command

import (
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/config"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/logging"
)

// PacketSize is the size of the raw command buffer.
const PacketSize = 64

// Opcodes (host → device)
const (
	OpRebindLeft   uint8 = 0x19
	OpRebindRight  uint8 = 0x1A
	OpSetCombine   uint8 = 0x1B
	OpFactoryReset uint8 = 0x1C
)

// Command is one decoded host command.
type Command struct {
	Opcode  uint8
	Payload uint8
}

// Rebinder is a channel whose output code can be replaced.
type Rebinder interface {
	SetCode(code uint8)
}

// Decode extracts a command from the first n bytes of buf. Packets shorter
// than two bytes carry no command.
func Decode(buf []byte, n int) (Command, bool) {
	if n > len(buf) {
		n = len(buf)
	}
	if n < 2 {
		return Command{}, false
	}
	return Command{Opcode: buf[0], Payload: buf[1]}, true
}

// Known reports whether op is a recognised opcode.
func Known(op uint8) bool {
	switch op {
	case OpRebindLeft, OpRebindRight, OpSetCombine, OpFactoryReset:
		return true
	}
	return false
}

// Processor applies commands to the configuration, the input channels and
// the persistent store. It holds no state of its own.
type Processor struct {
	cfg   *config.Configuration
	left  Rebinder
	right Rebinder
	store config.Writer
}

// New creates a processor over the single live configuration.
func New(cfg *config.Configuration, left, right Rebinder, store config.Writer) *Processor {
	return &Processor{
		cfg:   cfg,
		left:  left,
		right: right,
		store: store,
	}
}

// Handle decodes and applies one raw packet. It returns true when a command
// was accepted. Empty, short and unknown packets are dropped without error.
// The only error is a failed persist, which is fatal.
func (p *Processor) Handle(buf []byte, n int) (bool, error) {
	cmd, ok := Decode(buf, n)
	if !ok {
		return false, nil
	}
	return p.Apply(cmd)
}

// Apply mutates the configuration for cmd, rebinds the affected channel and
// writes the whole configuration through to the store.
func (p *Processor) Apply(cmd Command) (bool, error) {
	if !Known(cmd.Opcode) {
		logging.Debug(logging.ComponentCommand, "ignored opcode", "op", cmd.Opcode)
		return false, nil
	}

	switch cmd.Opcode {
	case OpRebindLeft:
		p.cfg.SetCode(config.SlotLeft, cmd.Payload)
	case OpRebindRight:
		p.cfg.SetCode(config.SlotRight, cmd.Payload)
	case OpSetCombine:
		p.cfg.CombineForModifier = cmd.Payload != 0
	case OpFactoryReset:
		p.cfg.Reset()
	}
	p.rebind()

	logging.Info(logging.ComponentCommand, "applied",
		"op", cmd.Opcode, "payload", cmd.Payload,
		"left", p.cfg.LeftCode, "right", p.cfg.RightCode, "combine", p.cfg.CombineForModifier)

	if err := config.Save(p.store, p.cfg); err != nil {
		return true, err
	}
	return true, nil
}

// Reload replaces the live configuration with what r holds (defaults for
// absent tags) and rebinds both channels. Nothing is written.
func (p *Processor) Reload(r config.Reader) {
	*p.cfg = config.Load(r)
	p.rebind()
}

// rebind pushes the configured codes into the channels.
func (p *Processor) rebind() {
	for _, b := range p.cfg.Bindings() {
		switch b.Slot {
		case config.SlotLeft:
			p.left.SetCode(b.Code)
		case config.SlotRight:
			p.right.SetCode(b.Code)
		}
	}
}

// Config returns the live configuration.
func (p *Processor) Config() *config.Configuration {
	return p.cfg
}
