// Package report builds the keyboard input report and decides when it must
// be sent to the host.
package report

import (
	"errors"
	"fmt"

	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/logging"
)

// KeySlots is the number of key code slots in a report.
const KeySlots = 6

// HID modifier bits.
const (
	ModLeftCtrl   uint8 = 1 << 0
	ModLeftShift  uint8 = 1 << 1
	ModLeftAlt    uint8 = 1 << 2
	ModLeftGUI    uint8 = 1 << 3
	ModRightCtrl  uint8 = 1 << 4
	ModRightShift uint8 = 1 << 5
	ModRightAlt   uint8 = 1 << 6
	ModRightGUI   uint8 = 1 << 7
)

// Layout selects which optional fields go on the wire. It must match the
// report descriptor advertised to the host.
type Layout uint8

const (
	// LayoutBasic: [modifier][reserved][keycodes:6] (8 bytes)
	LayoutBasic Layout = iota
	// LayoutLEDs: [modifier][reserved][leds][keycodes:6] (9 bytes)
	LayoutLEDs
	// LayoutFull: [modifier][reserved][leds][keycodes:6][command][data] (11 bytes)
	LayoutFull
)

// Size returns the encoded report length for the layout.
func (l Layout) Size() int {
	switch l {
	case LayoutLEDs:
		return 9
	case LayoutFull:
		return 11
	default:
		return 8
	}
}

// ErrTransport wraps a failed report transmission. It is not recoverable.
var ErrTransport = errors.New("report transmit failed")

// Report is the outbound keyboard report.
// Only Keycodes[0] and Keycodes[1] are ever driven; the rest stay zero.
type Report struct {
	Modifier uint8
	Reserved uint8
	LEDs     uint8
	Keycodes [KeySlots]uint8
	Command  uint8
	Data     uint8
}

// AppendTo appends the wire form of r for layout l to dst.
func (r *Report) AppendTo(dst []byte, l Layout) []byte {
	dst = append(dst, r.Modifier, r.Reserved)
	if l == LayoutLEDs || l == LayoutFull {
		dst = append(dst, r.LEDs)
	}
	dst = append(dst, r.Keycodes[:]...)
	if l == LayoutFull {
		dst = append(dst, r.Command, r.Data)
	}
	return dst
}

// MarshalBinary encodes r in the full layout.
func (r *Report) MarshalBinary() ([]byte, error) {
	return r.AppendTo(make([]byte, 0, LayoutFull.Size()), LayoutFull), nil
}

// UnmarshalBinary decodes a full layout report.
func (r *Report) UnmarshalBinary(data []byte) error {
	if len(data) < LayoutFull.Size() {
		return fmt.Errorf("report: need %d bytes, got %d", LayoutFull.Size(), len(data))
	}
	r.Modifier = data[0]
	r.Reserved = data[1]
	r.LEDs = data[2]
	copy(r.Keycodes[:], data[3:9])
	r.Command = data[9]
	r.Data = data[10]
	return nil
}

// Transport delivers a report to the host.
type Transport interface {
	WriteReport(r *Report) error
}

// Assembler holds the last transmitted report and sends a new one only when
// it is dirty or a refresh is forced.
type Assembler struct {
	transport Transport
	last      Report
	sent      uint32
}

// NewAssembler creates an assembler whose last report is all zeros.
func NewAssembler(t Transport) *Assembler {
	return &Assembler{transport: t}
}

// Compose builds the candidate modifier and slot 0/1 codes.
//
// With combine set and both switches held, the pair is sent as left shift
// plus the left code instead of two plain codes.
func Compose(left, right uint8, combine bool) (modifier, slot0, slot1 uint8) {
	if combine && left != 0 && right != 0 {
		return ModLeftShift, left, 0
	}
	return 0, left, right
}

// ComposeAndMaybeSend sends a report if force is set or the candidate
// differs from the last transmitted report. It reports whether a report was
// sent. The stored report is only updated by a successful send.
func (a *Assembler) ComposeAndMaybeSend(left, right uint8, combine, force bool) (bool, error) {
	mod, k0, k1 := Compose(left, right, combine)

	if !force && mod == a.last.Modifier && k0 == a.last.Keycodes[0] && k1 == a.last.Keycodes[1] {
		return false, nil
	}

	next := a.last
	next.Modifier = mod
	next.Keycodes[0] = k0
	next.Keycodes[1] = k1

	if err := a.transport.WriteReport(&next); err != nil {
		return false, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	a.last = next
	a.sent++

	logging.Debug(logging.ComponentReport, "report sent",
		"mod", mod, "k0", k0, "k1", k1, "forced", force)
	return true, nil
}

// Last returns a copy of the last transmitted report.
func (a *Assembler) Last() Report {
	return a.last
}

// Sent returns the number of reports transmitted so far.
func (a *Assembler) Sent() uint32 {
	return a.sent
}

// SetLEDs records the host's LED output state so it is echoed in the next
// report. It does not mark the report dirty.
func (a *Assembler) SetLEDs(leds uint8) {
	a.last.LEDs = leds
}

// SetEcho records the last accepted command so it is echoed in the next
// report. It does not mark the report dirty.
func (a *Assembler) SetEcho(command, data uint8) {
	a.last.Command = command
	a.last.Data = data
}
