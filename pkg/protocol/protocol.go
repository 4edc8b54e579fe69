// Package protocol implements the binary serial protocol used by the desktop
// configuration tool over USB CDC. It reads and changes the same live
// configuration as the HID command channel.
//
// Frame format:
//
//	[SYNC:1][CMD:1][LEN:2][PAYLOAD:LEN][CRC:2]
//	- SYNC: 0xAA (frame start marker)
//	- CMD: Command byte
//	- LEN: Payload length (uint16, little-endian)
//	- PAYLOAD: Variable length data
//	- CRC: CRC16-CCITT of [CMD][LEN][PAYLOAD]
//
// Response format is identical, with a status byte in place of CMD.
package protocol

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/command"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/config"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/logging"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/report"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/storage"
)

const (
	SyncByte = 0xAA

	// MaxPayload bounds LEN; nothing in this protocol needs more.
	MaxPayload = 64

	// Command codes (PC → Device)
	CmdGetConfig       = 0x01
	CmdSetBinding      = 0x02
	CmdSetCombine      = 0x03
	CmdFactoryReset    = 0x04
	CmdGetReport       = 0x05
	CmdGetStorageStats = 0x06
	CmdWipeStorage     = 0x07
	CmdPing            = 0x08
	CmdGetBinding      = 0x09
	CmdGetVersion      = 0x10
	CmdDiscover        = 0x11

	// Response status codes (Device → PC)
	StatusOK          = 0x00
	StatusError       = 0x01
	StatusInvalidCmd  = 0x02
	StatusInvalidData = 0x03
	StatusCRCError    = 0x07
)

// Firmware version reported by CmdGetVersion.
const (
	FirmwareMajor = 0
	FirmwareMinor = 2
)

// DiscoverReply identifies the device to the desktop tool.
const DiscoverReply = "pedal"

var (
	ErrInvalidFrame = errors.New("invalid frame")
	ErrCRCMismatch  = errors.New("CRC mismatch")
)

// Applier applies configuration commands. *command.Processor implements it.
type Applier interface {
	Apply(cmd command.Command) (bool, error)
	Reload(r config.Reader)
	Config() *config.Configuration
}

// ReportSource exposes the last transmitted report.
type ReportSource interface {
	Last() report.Report
}

// Store is the persistent tag store. *storage.Manager implements it.
type Store interface {
	config.Reader
	GetStats() (*storage.Stats, error)
	ForceWipe() error
}

// ConfigObserver is told whenever the live configuration changes.
type ConfigObserver interface {
	ConfigChanged(cfg config.Configuration)
}

// Handler processes protocol commands.
type Handler struct {
	applier  Applier
	reports  ReportSource
	store    Store
	observer ConfigObserver
}

// NewHandler creates a new protocol handler. reports and store may be nil.
func NewHandler(a Applier, reports ReportSource, store Store) *Handler {
	return &Handler{
		applier: a,
		reports: reports,
		store:   store,
	}
}

// SetObserver registers a configuration observer. Pass nil to remove it.
func (h *Handler) SetObserver(o ConfigObserver) {
	h.observer = o
}

// Frame represents a protocol frame.
type Frame struct {
	Cmd     uint8
	Payload []byte
}

// Response represents a protocol response.
type Response struct {
	Status  uint8
	Payload []byte
}

// ReadFrame reads and validates a frame from the reader.
func ReadFrame(r io.Reader) (*Frame, error) {
	sync := make([]byte, 1)
	if _, err := io.ReadFull(r, sync); err != nil {
		return nil, err
	}
	if sync[0] != SyncByte {
		return nil, ErrInvalidFrame
	}

	// cmd + len
	header := make([]byte, 3)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	cmd := header[0]
	length := binary.LittleEndian.Uint16(header[1:])
	if length > MaxPayload {
		return nil, ErrInvalidFrame
	}

	var payload []byte
	if length > 0 {
		payload = make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	crcBytes := make([]byte, 2)
	if _, err := io.ReadFull(r, crcBytes); err != nil {
		return nil, err
	}
	receivedCRC := binary.LittleEndian.Uint16(crcBytes)

	calculatedCRC := calcCRC(append(header, payload...))
	if receivedCRC != calculatedCRC {
		return nil, ErrCRCMismatch
	}

	return &Frame{
		Cmd:     cmd,
		Payload: payload,
	}, nil
}

// FrameLen returns the full length of the frame starting at buf[0] once the
// header is available, or 0 if more bytes are needed to tell.
func FrameLen(buf []byte) int {
	if len(buf) < 4 {
		return 0
	}
	return 1 + 1 + 2 + int(binary.LittleEndian.Uint16(buf[2:4])) + 2
}

func encode(code uint8, payload []byte) []byte {
	payloadLen := uint16(len(payload))
	buf := make([]byte, 0, 1+1+2+int(payloadLen)+2)

	buf = append(buf, SyncByte, code)
	buf = binary.LittleEndian.AppendUint16(buf, payloadLen)
	buf = append(buf, payload...)

	// CRC skips the sync byte
	crc := calcCRC(buf[1:])
	return binary.LittleEndian.AppendUint16(buf, crc)
}

// WriteResponse writes a response frame to the writer.
func WriteResponse(w io.Writer, resp *Response) error {
	_, err := w.Write(encode(resp.Status, resp.Payload))
	return err
}

// WriteFrame writes a request frame (for testing/PC side).
func WriteFrame(w io.Writer, frame *Frame) error {
	_, err := w.Write(encode(frame.Cmd, frame.Payload))
	return err
}

// Handle processes a command frame and returns a response. A non-nil error
// means the configuration could not be persisted; it is fatal to the device
// and the response already carries StatusError.
func (h *Handler) Handle(frame *Frame) (*Response, error) {
	switch frame.Cmd {
	case CmdPing:
		return h.handlePing(frame.Payload), nil
	case CmdGetConfig:
		return h.handleGetConfig(), nil
	case CmdSetBinding:
		return h.handleSetBinding(frame.Payload)
	case CmdSetCombine:
		return h.handleSetCombine(frame.Payload)
	case CmdFactoryReset:
		return h.apply(command.Command{Opcode: command.OpFactoryReset})
	case CmdGetReport:
		return h.handleGetReport(), nil
	case CmdGetStorageStats:
		return h.handleGetStorageStats(), nil
	case CmdWipeStorage:
		return h.handleWipeStorage(), nil
	case CmdGetBinding:
		return h.handleGetBinding(frame.Payload), nil
	case CmdGetVersion:
		return h.handleGetVersion(), nil
	case CmdDiscover:
		return &Response{Status: StatusOK, Payload: []byte(DiscoverReply)}, nil
	default:
		return &Response{Status: StatusInvalidCmd}, nil
	}
}

// handlePing responds with the same payload (echo).
func (h *Handler) handlePing(payload []byte) *Response {
	return &Response{
		Status:  StatusOK,
		Payload: payload,
	}
}

// handleGetConfig returns [left][right][combine].
func (h *Handler) handleGetConfig() *Response {
	data, err := h.applier.Config().MarshalBinary()
	if err != nil {
		return &Response{Status: StatusError}
	}
	return &Response{Status: StatusOK, Payload: data}
}

// handleSetBinding rebinds one slot.
// Payload: [Slot:1][Code:1]
func (h *Handler) handleSetBinding(payload []byte) (*Response, error) {
	if len(payload) != 2 {
		return &Response{Status: StatusInvalidData}, nil
	}

	var op uint8
	switch config.Slot(payload[0]) {
	case config.SlotLeft:
		op = command.OpRebindLeft
	case config.SlotRight:
		op = command.OpRebindRight
	default:
		return &Response{Status: StatusInvalidData}, nil
	}
	return h.apply(command.Command{Opcode: op, Payload: payload[1]})
}

// handleSetCombine sets the modifier combination flag.
// Payload: [Flag:1]
func (h *Handler) handleSetCombine(payload []byte) (*Response, error) {
	if len(payload) != 1 {
		return &Response{Status: StatusInvalidData}, nil
	}
	return h.apply(command.Command{Opcode: command.OpSetCombine, Payload: payload[0]})
}

func (h *Handler) apply(cmd command.Command) (*Response, error) {
	if _, err := h.applier.Apply(cmd); err != nil {
		logging.Error(logging.ComponentProtocol, "persist failed", "op", cmd.Opcode, "err", err)
		return &Response{Status: StatusError}, err
	}
	h.notify()
	return &Response{Status: StatusOK}, nil
}

func (h *Handler) notify() {
	if h.observer != nil {
		h.observer.ConfigChanged(*h.applier.Config())
	}
}

// handleGetBinding returns the code bound to one slot.
// Payload: [Slot:1], Response: [Code:1]
func (h *Handler) handleGetBinding(payload []byte) *Response {
	if len(payload) != 1 {
		return &Response{Status: StatusInvalidData}
	}
	code, err := h.applier.Config().Code(config.Slot(payload[0]))
	if err != nil {
		return &Response{Status: StatusInvalidData}
	}
	return &Response{Status: StatusOK, Payload: []byte{code}}
}

// handleWipeStorage removes every stored tag and reloads the live
// configuration, which falls back to the factory defaults.
func (h *Handler) handleWipeStorage() *Response {
	if h.store == nil {
		return &Response{Status: StatusError}
	}
	if err := h.store.ForceWipe(); err != nil {
		logging.Warn(logging.ComponentProtocol, "wipe failed", "err", err)
		return &Response{Status: StatusError}
	}
	h.applier.Reload(h.store)
	h.notify()
	return &Response{Status: StatusOK}
}

// handleGetReport returns the last transmitted report in the full layout.
func (h *Handler) handleGetReport() *Response {
	if h.reports == nil {
		return &Response{Status: StatusError}
	}
	last := h.reports.Last()
	data, err := last.MarshalBinary()
	if err != nil {
		return &Response{Status: StatusError}
	}
	return &Response{Status: StatusOK, Payload: data}
}

// handleGetStorageStats returns storage statistics.
// Response: [Total:4][Used:4][Free:4][TagCount:1]
func (h *Handler) handleGetStorageStats() *Response {
	if h.store == nil {
		return &Response{Status: StatusError}
	}
	stats, err := h.store.GetStats()
	if err != nil {
		return &Response{Status: StatusError}
	}

	payload := make([]byte, 13)
	binary.LittleEndian.PutUint32(payload[0:], uint32(stats.TotalSpace))
	binary.LittleEndian.PutUint32(payload[4:], uint32(stats.UsedSpace))
	binary.LittleEndian.PutUint32(payload[8:], uint32(stats.FreeSpace))
	payload[12] = uint8(stats.TagCount)

	return &Response{
		Status:  StatusOK,
		Payload: payload,
	}
}

// handleGetVersion returns firmware and tag layout version info.
// Response: [FirmwareVersionMajor:1][FirmwareVersionMinor:1][LayoutVersion:2]
func (h *Handler) handleGetVersion() *Response {
	payload := make([]byte, 4)
	payload[0] = FirmwareMajor
	payload[1] = FirmwareMinor
	binary.LittleEndian.PutUint16(payload[2:], config.LayoutVersion)

	return &Response{
		Status:  StatusOK,
		Payload: payload,
	}
}

// calcCRC calculates CRC16-CCITT.
// Polynomial: 0x1021, Initial: 0xFFFF
func calcCRC(data []byte) uint16 {
	var crc uint16 = 0xFFFF

	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}

	return crc
}
