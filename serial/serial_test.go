package serial

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/protocol"
)

type fakePort struct {
	in  bytes.Buffer
	out bytes.Buffer
}

func (p *fakePort) ReadByte() (byte, error)     { return p.in.ReadByte() }
func (p *fakePort) Buffered() int               { return p.in.Len() }
func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }

type echoHandler struct {
	frames []*protocol.Frame
	err    error
}

func (h *echoHandler) Handle(f *protocol.Frame) (*protocol.Response, error) {
	h.frames = append(h.frames, f)
	return &protocol.Response{Status: protocol.StatusOK, Payload: f.Payload}, h.err
}

func frameBytes(t *testing.T, cmd uint8, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := protocol.WriteFrame(&buf, &protocol.Frame{Cmd: cmd, Payload: payload}); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	return buf.Bytes()
}

func readResponses(t *testing.T, out *bytes.Buffer) []*protocol.Frame {
	t.Helper()
	var resps []*protocol.Frame
	for out.Len() > 0 {
		f, err := protocol.ReadFrame(out)
		if err != nil {
			t.Fatalf("bad response: %v", err)
		}
		resps = append(resps, f)
	}
	return resps
}

func TestPumpHandlesFrame(t *testing.T) {
	port := &fakePort{}
	h := &echoHandler{}
	s := NewSerial(port, h)

	port.in.Write(frameBytes(t, protocol.CmdPing, []byte{1, 2, 3}))
	if err := s.Pump(); err != nil {
		t.Fatalf("Pump failed: %v", err)
	}

	if len(h.frames) != 1 || h.frames[0].Cmd != protocol.CmdPing {
		t.Fatalf("expected one ping frame, got %+v", h.frames)
	}
	resps := readResponses(t, &port.out)
	if len(resps) != 1 || !bytes.Equal(resps[0].Payload, []byte{1, 2, 3}) {
		t.Errorf("unexpected responses %+v", resps)
	}
}

func TestPumpSplitFrame(t *testing.T) {
	port := &fakePort{}
	h := &echoHandler{}
	s := NewSerial(port, h)

	raw := frameBytes(t, protocol.CmdGetConfig, nil)
	port.in.Write(raw[:3])
	s.Pump()
	if len(h.frames) != 0 {
		t.Fatal("partial frame should not be handled")
	}

	port.in.Write(raw[3:])
	s.Pump()
	if len(h.frames) != 1 {
		t.Errorf("expected 1 frame after completion, got %d", len(h.frames))
	}
}

func TestPumpSkipsNoise(t *testing.T) {
	port := &fakePort{}
	h := &echoHandler{}
	s := NewSerial(port, h)

	port.in.Write([]byte("hello\n"))
	port.in.Write(frameBytes(t, protocol.CmdPing, nil))
	port.in.Write(frameBytes(t, protocol.CmdDiscover, nil))
	s.Pump()

	if len(h.frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(h.frames))
	}
	if h.frames[1].Cmd != protocol.CmdDiscover {
		t.Errorf("expected discover second, got 0x%x", h.frames[1].Cmd)
	}
}

func TestPumpCRCError(t *testing.T) {
	port := &fakePort{}
	h := &echoHandler{}
	s := NewSerial(port, h)

	raw := frameBytes(t, protocol.CmdPing, []byte{9})
	raw[len(raw)-1] ^= 0xFF
	port.in.Write(raw)
	s.Pump()

	if len(h.frames) != 0 {
		t.Error("corrupt frame should not reach the handler")
	}
	resps := readResponses(t, &port.out)
	if len(resps) != 1 || resps[0].Cmd != protocol.StatusCRCError {
		t.Errorf("expected a CRC error response, got %+v", resps)
	}
}

func TestPumpOversizedFrame(t *testing.T) {
	port := &fakePort{}
	h := &echoHandler{}
	s := NewSerial(port, h)

	port.in.Write([]byte{protocol.SyncByte, protocol.CmdPing, 0xFF, 0x00})
	port.in.Write(frameBytes(t, protocol.CmdPing, nil))
	s.Pump()

	if len(h.frames) != 1 {
		t.Errorf("expected the valid frame after the oversized header, got %d", len(h.frames))
	}
}

func TestPumpReturnsFatalError(t *testing.T) {
	port := &fakePort{}
	fault := errors.New("flash write fault")
	h := &echoHandler{err: fault}
	s := NewSerial(port, h)

	port.in.Write(frameBytes(t, protocol.CmdSetCombine, []byte{0}))
	if err := s.Pump(); err != fault {
		t.Errorf("Expected write fault, got %v", err)
	}
	if port.out.Len() == 0 {
		t.Error("the error response should still be written")
	}
}

type recordingMonitor struct {
	in  []uint8
	out []uint8
}

func (m *recordingMonitor) FrameIn(f *protocol.Frame)      { m.in = append(m.in, f.Cmd) }
func (m *recordingMonitor) FrameOut(r *protocol.Response) { m.out = append(m.out, r.Status) }

func TestMonitorSeesTraffic(t *testing.T) {
	port := &fakePort{}
	s := NewSerial(port, &echoHandler{})
	mon := &recordingMonitor{}
	s.SetMonitor(mon)

	bad := frameBytes(t, protocol.CmdPing, nil)
	bad[len(bad)-1] ^= 0xFF
	port.in.Write(frameBytes(t, protocol.CmdGetConfig, nil))
	port.in.Write(bad)
	s.Pump()

	if len(mon.in) != 1 || mon.in[0] != protocol.CmdGetConfig {
		t.Errorf("expected one decoded frame, got %v", mon.in)
	}
	if len(mon.out) != 2 || mon.out[1] != protocol.StatusCRCError {
		t.Errorf("expected OK then CRC responses, got %v", mon.out)
	}
}
