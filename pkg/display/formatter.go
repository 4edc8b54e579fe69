package display

import (
	"fmt"
	"strings"

	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/command"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/config"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/protocol"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/report"
)

// maxPayloadBytes is how much payload fits on one row after the header.
const maxPayloadBytes = 4

// Formatter turns frames, commands and reports into short strings for
// 16-character display rows.
type Formatter struct{}

// NewFormatter creates a new formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatIncoming formats a request frame as a hex row and a parsed row.
func (f *Formatter) FormatIncoming(frame *protocol.Frame) (bytesStr, parsedStr string) {
	bytesStr = f.formatBytes(frame.Cmd, frame.Payload)
	parsedStr = fmt.Sprintf("%s[%d]", f.commandName(frame.Cmd), len(frame.Payload))
	return bytesStr, parsedStr
}

// FormatOutgoing formats a response frame as a hex row and a parsed row.
func (f *Formatter) FormatOutgoing(resp *protocol.Response) (bytesStr, parsedStr string) {
	bytesStr = f.formatBytes(resp.Status, resp.Payload)
	parsedStr = fmt.Sprintf("%s[%d]", f.statusName(resp.Status), len(resp.Payload))
	return bytesStr, parsedStr
}

// FormatBindings shows both key codes and the combine flag, e.g. "L14 R08 C+".
func (f *Formatter) FormatBindings(cfg config.Configuration) string {
	combine := '-'
	if cfg.CombineForModifier {
		combine = '+'
	}
	return fmt.Sprintf("L%02X R%02X C%c", cfg.LeftCode, cfg.RightCode, combine)
}

// FormatCommand shows an applied HID command, e.g. "RbL 05".
func (f *Formatter) FormatCommand(cmd command.Command) string {
	return fmt.Sprintf("%s %02X", f.opcodeName(cmd.Opcode), cmd.Payload)
}

// FormatReport shows the modifier and the first two key slots, with a
// marker for forced sends.
func (f *Formatter) FormatReport(r report.Report, forced bool) string {
	mark := ' '
	if forced {
		mark = '*'
	}
	return fmt.Sprintf("%cM%02X K%02X %02X", mark, r.Modifier, r.Keycodes[0], r.Keycodes[1])
}

// FormatError truncates an error message to fit one row.
func (f *Formatter) FormatError(err error) string {
	msg := err.Error()
	if len(msg) > 12 {
		msg = msg[:12]
	}
	return msg
}

// formatBytes renders AA CODE LEN [PAYLOAD..] with the CRC elided.
func (f *Formatter) formatBytes(code uint8, payload []byte) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%02X %02X %02X%02X ", protocol.SyncByte, code, uint8(len(payload)), uint8(len(payload)>>8))

	for i := 0; i < len(payload) && i < maxPayloadBytes; i++ {
		fmt.Fprintf(&b, "%02X", payload[i])
	}
	if len(payload) > maxPayloadBytes {
		b.WriteString("..")
	} else if len(payload) > 0 {
		b.WriteString(" ")
	}

	b.WriteString("..")
	return b.String()
}

func (f *Formatter) commandName(cmd uint8) string {
	switch cmd {
	case protocol.CmdGetConfig:
		return "GetCfg"
	case protocol.CmdSetBinding:
		return "SetBind"
	case protocol.CmdSetCombine:
		return "SetComb"
	case protocol.CmdFactoryReset:
		return "FctRst"
	case protocol.CmdGetReport:
		return "GetRpt"
	case protocol.CmdGetStorageStats:
		return "GetStor"
	case protocol.CmdWipeStorage:
		return "Wipe"
	case protocol.CmdPing:
		return "Ping"
	case protocol.CmdGetBinding:
		return "GetBind"
	case protocol.CmdGetVersion:
		return "GetVer"
	case protocol.CmdDiscover:
		return "Discvr"
	default:
		return fmt.Sprintf("Cmd%02X", cmd)
	}
}

func (f *Formatter) statusName(status uint8) string {
	switch status {
	case protocol.StatusOK:
		return "OK"
	case protocol.StatusError:
		return "Err"
	case protocol.StatusInvalidCmd:
		return "InvCmd"
	case protocol.StatusInvalidData:
		return "InvData"
	case protocol.StatusCRCError:
		return "CRC"
	default:
		return fmt.Sprintf("Sts%02X", status)
	}
}

func (f *Formatter) opcodeName(op uint8) string {
	switch op {
	case command.OpRebindLeft:
		return "RbL"
	case command.OpRebindRight:
		return "RbR"
	case command.OpSetCombine:
		return "Comb"
	case command.OpFactoryReset:
		return "Rst"
	default:
		return fmt.Sprintf("Op%02X", op)
	}
}

// truncate limits a string to maxLen characters, adding ".." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 2 {
		return s[:maxLen]
	}
	return s[:maxLen-2] + ".."
}
