// Package serial runs the config protocol over the USB CDC port. It never
// blocks: each Pump call drains what is buffered and answers complete frames.
package serial

import (
	"bytes"
	"errors"

	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/logging"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/protocol"
)

// Port is the subset of machine.Serialer the pump uses.
type Port interface {
	ReadByte() (byte, error)
	Buffered() int
	Write(p []byte) (int, error)
}

// Handler answers decoded frames. *protocol.Handler implements it.
type Handler interface {
	Handle(frame *protocol.Frame) (*protocol.Response, error)
}

// Monitor sees every decoded frame and every response, e.g. a debug display.
type Monitor interface {
	FrameIn(frame *protocol.Frame)
	FrameOut(resp *protocol.Response)
}

const bufSize = 4 + protocol.MaxPayload + 2

type Serial struct {
	port     Port
	handler  Handler
	monitor  Monitor
	inIndex  int
	inBuffer [bufSize]byte
}

func NewSerial(port Port, handler Handler) *Serial {
	return &Serial{
		port:    port,
		handler: handler,
	}
}

// SetMonitor registers a frame monitor. Pass nil to remove it.
func (s *Serial) SetMonitor(m Monitor) {
	s.monitor = m
}

// Pump reads every buffered byte and handles any complete frame. The only
// error returned is a fatal one from the handler.
func (s *Serial) Pump() error {
	for s.port.Buffered() > 0 {
		b, err := s.port.ReadByte()
		if err != nil {
			return nil
		}
		if err := s.push(b); err != nil {
			return err
		}
	}
	return nil
}

func (s *Serial) push(b byte) error {
	if s.inIndex == 0 && b != protocol.SyncByte {
		return nil
	}
	s.inBuffer[s.inIndex] = b
	s.inIndex++

	frameLen := protocol.FrameLen(s.inBuffer[:s.inIndex])
	if frameLen == 0 {
		return nil
	}
	if frameLen > bufSize {
		logging.Warn(logging.ComponentProtocol, "oversized frame dropped", "len", frameLen)
		s.resync(1)
		return nil
	}
	if s.inIndex < frameLen {
		return nil
	}

	frame, err := protocol.ReadFrame(bytes.NewReader(s.inBuffer[:frameLen]))
	s.inIndex = 0
	switch {
	case errors.Is(err, protocol.ErrCRCMismatch):
		s.write(&protocol.Response{Status: protocol.StatusCRCError})
		return nil
	case err != nil:
		return nil
	}

	if s.monitor != nil {
		s.monitor.FrameIn(frame)
	}
	resp, err := s.handler.Handle(frame)
	s.write(resp)
	return err
}

// resync drops the first skip bytes and restarts at the next sync byte.
func (s *Serial) resync(skip int) {
	rest := s.inBuffer[skip:s.inIndex]
	i := bytes.IndexByte(rest, protocol.SyncByte)
	if i < 0 {
		s.inIndex = 0
		return
	}
	s.inIndex = copy(s.inBuffer[:], rest[i:])
}

func (s *Serial) write(resp *protocol.Response) {
	if resp == nil {
		return
	}
	if s.monitor != nil {
		s.monitor.FrameOut(resp)
	}
	if err := protocol.WriteResponse(s.port, resp); err != nil {
		logging.Warn(logging.ComponentProtocol, "response write failed", "err", err)
	}
}
