// Package ticker provides the periodic forced-refresh signal.
//
// The interrupt handler may only Set the flag; the main loop may only
// TakeAndClear it. Both run inside a critical section.
package ticker

// ForceFlag is the single datum shared between interrupt and main context.
type ForceFlag struct {
	cs  criticalSection
	set bool
}

// Set raises the flag. Safe to call from interrupt context.
func (f *ForceFlag) Set() {
	st := f.cs.enter()
	f.set = true
	f.cs.exit(st)
}

// TakeAndClear returns the flag and lowers it in one step, so a Set that
// lands between the read and the clear cannot be lost.
func (f *ForceFlag) TakeAndClear() bool {
	st := f.cs.enter()
	v := f.set
	f.set = false
	f.cs.exit(st)
	return v
}

// Ticker is the timer interrupt body. It does exactly two things: raise the
// force flag and acknowledge the timer's pending interrupt.
type Ticker struct {
	flag *ForceFlag
	ack  func()
}

// New creates a ticker that raises flag. ack clears the hardware's pending
// interrupt condition and may be nil.
func New(flag *ForceFlag, ack func()) *Ticker {
	return &Ticker{flag: flag, ack: ack}
}

// Fire is called from the timer interrupt.
func (t *Ticker) Fire() {
	t.flag.Set()
	if t.ack != nil {
		t.ack()
	}
}
