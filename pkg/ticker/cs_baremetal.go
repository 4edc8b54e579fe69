//go:build tinygo && baremetal

package ticker

import "runtime/interrupt"

// criticalSection masks interrupts for its duration.
type criticalSection struct{}

func (criticalSection) enter() interrupt.State { return interrupt.Disable() }

func (criticalSection) exit(st interrupt.State) { interrupt.Restore(st) }
