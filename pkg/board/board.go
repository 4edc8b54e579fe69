//go:build rp2040

// Package board binds the pedal to RP2040 hardware: two pulled-up switch
// pins, a TIMER alarm interrupt for the periodic refresh, and a sleep-based
// delay.
package board

import (
	"device/rp"
	"machine"
	"runtime/interrupt"
	"time"

	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/input"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/logging"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/ticker"
)

const (
	LeftPin  = machine.GP2
	RightPin = machine.GP3

	// TickHz is the forced report refresh rate.
	TickHz = 5

	tickPeriodUs = 1000000 / TickHz
)

// Switches configures both pins as pulled-up inputs and returns them as
// active-low switches.
func Switches() (left, right input.Switch) {
	LeftPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	RightPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return input.ActiveLow(LeftPin), input.ActiveLow(RightPin)
}

// Delay blocks using the runtime timer.
type Delay struct{}

func (Delay) DelayMs(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

var tick *ticker.Ticker

// StartTicker arms TIMER alarm 1 to raise flag every 1/TickHz seconds.
// Alarm 0 is left to the runtime's sleep.
func StartTicker(flag *ticker.ForceFlag) {
	tick = ticker.New(flag, ackAlarm)

	rp.TIMER.INTR.Set(rp.TIMER_INTR_ALARM_1)
	rp.TIMER.INTE.SetBits(rp.TIMER_INTE_ALARM_1)
	intr := interrupt.New(rp.IRQ_TIMER_IRQ_1, func(interrupt.Interrupt) {
		tick.Fire()
	})
	intr.Enable()
	armAlarm()

	logging.Info(logging.ComponentBoard, "ticker started", "hz", TickHz)
}

// ackAlarm clears the pending alarm and schedules the next one.
func ackAlarm() {
	rp.TIMER.INTR.Set(rp.TIMER_INTR_ALARM_1)
	armAlarm()
}

func armAlarm() {
	// writing ALARM1 arms it; the compare is on the low 32 bits
	rp.TIMER.ALARM1.Set(rp.TIMER.TIMERAWL.Get() + tickPeriodUs)
}
