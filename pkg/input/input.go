// Package input turns a raw momentary switch into a pressed/released signal
// and the key code currently bound to it.
//
// Debounce is single-sample: every Update adopts the latest reading. Callers
// read the level through Output on every poll and diff it themselves.
package input

import (
	"errors"
	"fmt"
)

// ErrSwitchRead is returned when the underlying switch cannot be read.
// It is not recoverable.
var ErrSwitchRead = errors.New("switch read failed")

// Switch is a physical switch that reports whether it is currently active.
type Switch interface {
	Active() (bool, error)
}

// LevelReader is a raw digital input, such as a GPIO pin.
type LevelReader interface {
	Get() bool
}

// activeLow adapts a pulled-up input where a closed switch reads low.
type activeLow struct {
	pin LevelReader
}

// ActiveLow wraps a pulled-up pin so that a low level reads as active.
func ActiveLow(pin LevelReader) Switch {
	return activeLow{pin: pin}
}

func (a activeLow) Active() (bool, error) {
	return !a.pin.Get(), nil
}

// Channel owns one switch and the code it emits.
type Channel struct {
	sw      Switch
	code    uint8
	pressed bool
}

// New creates a released channel bound to code.
func New(sw Switch, code uint8) *Channel {
	return &Channel{
		sw:   sw,
		code: code,
	}
}

// Update reads the switch and stores the reading as the current state.
func (c *Channel) Update() error {
	active, err := c.sw.Active()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSwitchRead, err)
	}
	c.pressed = active
	return nil
}

// Output returns the bound code while pressed and 0 while released.
func (c *Channel) Output() uint8 {
	if c.pressed {
		return c.code
	}
	return 0
}

// Pressed reports the last observed state.
func (c *Channel) Pressed() bool {
	return c.pressed
}

// Code returns the bound code.
func (c *Channel) Code() uint8 {
	return c.code
}

// SetCode rebinds the channel. The new code shows up in Output immediately
// if the switch is held.
func (c *Channel) SetCode(code uint8) {
	c.code = code
}
