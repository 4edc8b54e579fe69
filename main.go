//go:build tinygo

package main

import (
	"machine"

	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/board"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/display"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/keyboard"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/logging"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/pedal"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/protocol"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/storage"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/ticker"
	"github.com/tuffrabit/tinygo-pedal-rp2040/serial"
)

// MAIN THREAD DUTIES
//
// Everything runs on the main goroutine: HID commands, the serial config
// channel, switch sampling and report sends. The timer interrupt only raises
// the force flag.

func main() {
	serialer := machine.Serial // USB CDC Serial
	logging.SetOutput(serialer)

	store, err := storage.New(machine.Flash, true)
	if err != nil {
		logging.Error(logging.ComponentStorage, "flash unavailable, settings will not persist", "err", err)
		store = storage.NewVolatile()
	}

	left, right := board.Switches()
	flag := &ticker.ForceFlag{}

	p := pedal.New(pedal.Options{
		Left:      left,
		Right:     right,
		Transport: keyboard.Port(),
		Store:     store,
		Delay:     board.Delay{},
		Flag:      flag,
	})

	handler := protocol.NewHandler(p.Processor(), p.Assembler(), store)
	mainSerial := serial.NewSerial(serialer, handler)
	p.AddPump(mainSerial)

	if disp := display.NewManager(p.Config()); disp != nil {
		p.SetObserver(disp)
		handler.SetObserver(disp)
		mainSerial.SetMonitor(disp)
	}

	board.StartTicker(flag)

	p.Run()
}
