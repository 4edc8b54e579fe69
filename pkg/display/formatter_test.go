package display

import (
	"errors"
	"testing"

	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/command"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/config"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/protocol"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/report"
)

func TestFormatIncoming(t *testing.T) {
	f := NewFormatter()

	bytesStr, parsed := f.FormatIncoming(&protocol.Frame{Cmd: protocol.CmdSetBinding, Payload: []byte{0x01, 0x2C}})
	if bytesStr != "AA 02 0200 012C .." {
		t.Errorf("bytes: expected %q, got %q", "AA 02 0200 012C ..", bytesStr)
	}
	if parsed != "SetBind[2]" {
		t.Errorf("parsed: expected %q, got %q", "SetBind[2]", parsed)
	}

	bytesStr, _ = f.FormatIncoming(&protocol.Frame{Cmd: protocol.CmdPing, Payload: []byte{1, 2, 3, 4, 5}})
	if bytesStr != "AA 08 0500 01020304...." {
		t.Errorf("long payload: got %q", bytesStr)
	}
}

func TestFormatOutgoing(t *testing.T) {
	f := NewFormatter()

	_, parsed := f.FormatOutgoing(&protocol.Response{Status: protocol.StatusCRCError})
	if parsed != "CRC[0]" {
		t.Errorf("expected %q, got %q", "CRC[0]", parsed)
	}
	_, parsed = f.FormatOutgoing(&protocol.Response{Status: 0x42})
	if parsed != "Sts42[0]" {
		t.Errorf("expected %q, got %q", "Sts42[0]", parsed)
	}
}

func TestFormatBindings(t *testing.T) {
	f := NewFormatter()

	if got := f.FormatBindings(config.Default()); got != "L14 R08 C+" {
		t.Errorf("expected %q, got %q", "L14 R08 C+", got)
	}
	cfg := config.Configuration{LeftCode: 0x2C, RightCode: 0x05}
	if got := f.FormatBindings(cfg); got != "L2C R05 C-" {
		t.Errorf("expected %q, got %q", "L2C R05 C-", got)
	}
}

func TestFormatCommandAndReport(t *testing.T) {
	f := NewFormatter()

	if got := f.FormatCommand(command.Command{Opcode: command.OpRebindLeft, Payload: 0x05}); got != "RbL 05" {
		t.Errorf("expected %q, got %q", "RbL 05", got)
	}

	r := report.Report{Modifier: report.ModLeftShift, Keycodes: [report.KeySlots]uint8{0x14}}
	if got := f.FormatReport(r, true); got != "*M02 K14 00" {
		t.Errorf("expected %q, got %q", "*M02 K14 00", got)
	}
}

func TestFormatErrorAndTruncate(t *testing.T) {
	f := NewFormatter()

	if got := f.FormatError(errors.New("host read failed")); got != "host read fa" {
		t.Errorf("expected 12 chars, got %q", got)
	}
	if got := truncate("0123456789abcdefgh", 15); got != "0123456789abc.." {
		t.Errorf("truncate: got %q", got)
	}
	if got := truncate("short", 15); got != "short" {
		t.Errorf("truncate: got %q", got)
	}
}
