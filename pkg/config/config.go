// Package config defines the pedal configuration and its packed persistent form.
// Every persisted value is a single uint16 addressed by a small integer tag.
package config

import (
	"encoding/binary"
	"errors"
)

// LayoutVersion identifies the tag layout below.
// Tags are never renumbered; new values get new tags.
const LayoutVersion uint16 = 1

// Tag identifies one persisted uint16 value slot.
type Tag uint8

const (
	// TagBindings holds the packed (left, right) key code pair.
	TagBindings Tag = 0x01
	// TagSettings holds the packed boolean settings word.
	TagSettings Tag = 0x02
)

// Factory defaults.
const (
	DefaultLeftCode           uint8 = 0x14 // HID 'q'
	DefaultRightCode          uint8 = 0x08 // HID 'e'
	DefaultCombineForModifier       = true
)

// Slot names one physical switch position.
type Slot uint8

const (
	SlotLeft Slot = iota
	SlotRight
)

// String returns the slot name.
func (s Slot) String() string {
	switch s {
	case SlotLeft:
		return "left"
	case SlotRight:
		return "right"
	default:
		return "unknown"
	}
}

// Binding maps a slot to the output code it emits. Code 0 means no code.
type Binding struct {
	Slot Slot
	Code uint8
}

// Configuration is the live device configuration.
// Exactly one instance exists per running system.
type Configuration struct {
	LeftCode           uint8
	RightCode          uint8
	CombineForModifier bool
}

// Errors
var (
	ErrInvalidSize = errors.New("invalid config size")
	ErrUnknownSlot = errors.New("unknown slot")
)

// Default returns the factory configuration.
func Default() Configuration {
	return Configuration{
		LeftCode:           DefaultLeftCode,
		RightCode:          DefaultRightCode,
		CombineForModifier: DefaultCombineForModifier,
	}
}

// Reset restores the factory configuration in place.
func (c *Configuration) Reset() {
	*c = Default()
}

// Code returns the code bound to the given slot.
func (c *Configuration) Code(slot Slot) (uint8, error) {
	switch slot {
	case SlotLeft:
		return c.LeftCode, nil
	case SlotRight:
		return c.RightCode, nil
	default:
		return 0, ErrUnknownSlot
	}
}

// SetCode binds code to the given slot.
func (c *Configuration) SetCode(slot Slot, code uint8) error {
	switch slot {
	case SlotLeft:
		c.LeftCode = code
	case SlotRight:
		c.RightCode = code
	default:
		return ErrUnknownSlot
	}
	return nil
}

// Bindings returns the configuration as a pair of bindings.
func (c *Configuration) Bindings() [2]Binding {
	return [2]Binding{
		{Slot: SlotLeft, Code: c.LeftCode},
		{Slot: SlotRight, Code: c.RightCode},
	}
}

// PackBindings packs a key code pair into one word: left in the high byte,
// right in the low byte.
func PackBindings(left, right uint8) uint16 {
	return uint16(left)<<8 | uint16(right)
}

// UnpackBindings is the inverse of PackBindings.
func UnpackBindings(v uint16) (left, right uint8) {
	return uint8(v >> 8), uint8(v)
}

// PackSettings stores the combine flag in the high byte of the settings word.
func PackSettings(combine bool) uint16 {
	if combine {
		return 1 << 8
	}
	return 0
}

// UnpackSettings reads the combine flag from the settings word.
// Any non-zero high byte counts as set.
func UnpackSettings(v uint16) bool {
	return v>>8 != 0
}

// Reader reads a persisted word, falling back to def.
type Reader interface {
	ReadU16(tag Tag, def uint16) uint16
}

// Writer persists a word.
type Writer interface {
	WriteU16(tag Tag, v uint16) error
}

// ReadWriter is the full persistent store capability.
type ReadWriter interface {
	Reader
	Writer
}

// Load builds a Configuration from r. Tags that were never written yield the
// factory defaults.
func Load(r Reader) Configuration {
	def := Default()
	left, right := UnpackBindings(r.ReadU16(TagBindings, PackBindings(def.LeftCode, def.RightCode)))
	combine := UnpackSettings(r.ReadU16(TagSettings, PackSettings(def.CombineForModifier)))
	return Configuration{
		LeftCode:           left,
		RightCode:          right,
		CombineForModifier: combine,
	}
}

// Save writes every persisted value of c to w. The first failing write is
// returned; nothing is retried.
func Save(w Writer, c *Configuration) error {
	if err := w.WriteU16(TagBindings, PackBindings(c.LeftCode, c.RightCode)); err != nil {
		return err
	}
	return w.WriteU16(TagSettings, PackSettings(c.CombineForModifier))
}

// MarshalBinary encodes c as [left][right][combine].
func (c *Configuration) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 3)
	buf[0] = c.LeftCode
	buf[1] = c.RightCode
	if c.CombineForModifier {
		buf[2] = 1
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Configuration.
func (c *Configuration) UnmarshalBinary(data []byte) error {
	if len(data) < 3 {
		return ErrInvalidSize
	}
	c.LeftCode = data[0]
	c.RightCode = data[1]
	c.CombineForModifier = data[2] != 0
	return nil
}

// EncodeWord writes a persisted word in its on-flash byte order (big-endian,
// so the high byte is stored first).
func EncodeWord(v uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return buf
}

// DecodeWord reads a word written by EncodeWord.
func DecodeWord(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, ErrInvalidSize
	}
	return binary.BigEndian.Uint16(data), nil
}
