package pedal

import (
	"errors"
	"testing"

	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/command"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/config"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/input"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/report"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/storage"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/ticker"

	"tinygo.org/x/tinyfs"
)

type fakeSwitch struct {
	active bool
	err    error
}

func (s *fakeSwitch) Active() (bool, error) { return s.active, s.err }

type fakeTransport struct {
	pending  [][]byte
	readErr  error
	writeErr error
	reports  []report.Report
}

func (f *fakeTransport) Poll() bool { return len(f.pending) > 0 || f.readErr != nil }

func (f *fakeTransport) ReadRaw() ([command.PacketSize]byte, int, error) {
	var buf [command.PacketSize]byte
	if f.readErr != nil {
		return buf, 0, f.readErr
	}
	if len(f.pending) == 0 {
		return buf, 0, nil
	}
	p := f.pending[0]
	f.pending = f.pending[1:]
	n := copy(buf[:], p)
	return buf, n, nil
}

func (f *fakeTransport) WriteReport(r *report.Report) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.reports = append(f.reports, *r)
	return nil
}

type fakeDelay struct{ calls []uint32 }

func (d *fakeDelay) DelayMs(ms uint32) { d.calls = append(d.calls, ms) }

type fakePump struct {
	calls int
	err   error
}

func (p *fakePump) Pump() error {
	p.calls++
	return p.err
}

type recorder struct {
	commands []command.Command
	forced   []bool
	faults   []error
}

func (r *recorder) Fault(err error) { r.faults = append(r.faults, err) }

func (r *recorder) CommandApplied(cmd command.Command, _ config.Configuration) {
	r.commands = append(r.commands, cmd)
}

func (r *recorder) ReportSent(_ report.Report, forced bool) {
	r.forced = append(r.forced, forced)
}

type rig struct {
	p           *Pedal
	left, right *fakeSwitch
	tr          *fakeTransport
	delay       *fakeDelay
	flag        *ticker.ForceFlag
	store       *storage.Manager
}

func newRig(t *testing.T) *rig {
	mgr, err := storage.New(tinyfs.NewMemoryDevice(256, 4096, 64), true)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	r := &rig{
		left:  &fakeSwitch{},
		right: &fakeSwitch{},
		tr:    &fakeTransport{},
		delay: &fakeDelay{},
		flag:  &ticker.ForceFlag{},
		store: mgr,
	}
	r.p = New(Options{
		Left:      r.left,
		Right:     r.right,
		Transport: r.tr,
		Store:     mgr,
		Delay:     r.delay,
		Flag:      r.flag,
	})
	return r
}

func (r *rig) step(t *testing.T) {
	t.Helper()
	if err := r.p.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
}

func TestBootWithEmptyStoreUsesDefaults(t *testing.T) {
	r := newRig(t)
	defer r.store.Close()

	if r.p.Config() != config.Default() {
		t.Errorf("expected defaults, got %+v", r.p.Config())
	}
	left, right := r.p.Channels()
	if left.Code() != 0x14 || right.Code() != 0x08 {
		t.Errorf("channels: expected 0x14/0x08, got 0x%x/0x%x", left.Code(), right.Code())
	}
}

func TestBootLoadsPersistedConfig(t *testing.T) {
	mgr, _ := storage.New(tinyfs.NewMemoryDevice(256, 4096, 64), true)
	defer mgr.Close()
	saved := config.Configuration{LeftCode: 0x2C, RightCode: 0x28, CombineForModifier: false}
	config.Save(mgr, &saved)

	p := New(Options{Left: &fakeSwitch{}, Right: &fakeSwitch{}, Transport: &fakeTransport{}, Store: mgr, Delay: &fakeDelay{}})
	if p.Config() != saved {
		t.Errorf("expected %+v, got %+v", saved, p.Config())
	}
}

func TestPressReleaseIdleTick(t *testing.T) {
	r := newRig(t)
	defer r.store.Close()

	// Idle at boot: the zero report is already the host's view.
	r.step(t)
	if len(r.tr.reports) != 0 {
		t.Fatalf("idle boot should not send, got %d reports", len(r.tr.reports))
	}

	r.left.active = true
	r.step(t)
	r.step(t)
	if len(r.tr.reports) != 1 {
		t.Fatalf("press: expected 1 report, got %d", len(r.tr.reports))
	}
	if r.tr.reports[0].Keycodes != [report.KeySlots]uint8{0x14} {
		t.Errorf("press: unexpected keycodes %v", r.tr.reports[0].Keycodes)
	}

	r.left.active = false
	r.step(t)
	if len(r.tr.reports) != 2 {
		t.Fatalf("release: expected 2 reports, got %d", len(r.tr.reports))
	}
	if r.tr.reports[1].Keycodes != [report.KeySlots]uint8{} {
		t.Errorf("release: unexpected keycodes %v", r.tr.reports[1].Keycodes)
	}

	for i := 0; i < 100; i++ {
		r.step(t)
	}
	if len(r.tr.reports) != 2 {
		t.Fatalf("idle: expected no further reports, got %d", len(r.tr.reports))
	}

	ticker.New(r.flag, nil).Fire()
	r.step(t)
	r.step(t)
	if len(r.tr.reports) != 3 {
		t.Fatalf("tick: expected exactly one forced report, got %d total", len(r.tr.reports))
	}
	if r.tr.reports[2] != r.tr.reports[1] {
		t.Errorf("forced report should repeat the current report, got %+v", r.tr.reports[2])
	}

	// Every send is followed by the guard delay, and nothing else delays.
	if len(r.delay.calls) != 3 {
		t.Errorf("Expected 3 guard delays, got %d", len(r.delay.calls))
	}
	for _, ms := range r.delay.calls {
		if ms != ReportGuardMs {
			t.Errorf("Expected %d ms guard, got %d", ReportGuardMs, ms)
		}
	}
}

func TestRebindThenPress(t *testing.T) {
	r := newRig(t)
	defer r.store.Close()

	r.tr.pending = append(r.tr.pending, []byte{command.OpRebindLeft, 0x05})
	r.left.active = true
	r.step(t)

	if len(r.tr.reports) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(r.tr.reports))
	}
	got := r.tr.reports[0]
	if got.Keycodes[0] != 0x05 {
		t.Errorf("Keycodes[0]: expected 0x05, got 0x%x", got.Keycodes[0])
	}
	if got.Command != command.OpRebindLeft || got.Data != 0x05 {
		t.Errorf("command echo: expected 0x19/0x05, got 0x%x/0x%x", got.Command, got.Data)
	}

	if config.Load(r.store).LeftCode != 0x05 {
		t.Error("rebind should be persisted before the report cycle")
	}
}

func TestCombinedPress(t *testing.T) {
	r := newRig(t)
	defer r.store.Close()

	r.left.active = true
	r.right.active = true
	r.step(t)

	got := r.tr.reports[0]
	if got.Modifier != report.ModLeftShift {
		t.Errorf("Modifier: expected shift, got 0x%x", got.Modifier)
	}
	if got.Keycodes[0] != 0x14 || got.Keycodes[1] != 0 {
		t.Errorf("unexpected keycodes %v", got.Keycodes)
	}
}

func TestEmptyReadIsNotAnError(t *testing.T) {
	r := newRig(t)
	defer r.store.Close()

	r.tr.pending = append(r.tr.pending, []byte{})
	r.step(t)

	if r.p.Halted() != nil {
		t.Errorf("empty read should not halt, got %v", r.p.Halted())
	}
}

func TestObserver(t *testing.T) {
	r := newRig(t)
	defer r.store.Close()

	rec := &recorder{}
	r.p.SetObserver(rec)

	r.tr.pending = append(r.tr.pending, []byte{command.OpSetCombine, 0}, []byte{0x42, 0x00})
	r.left.active = true
	r.step(t)
	r.step(t)

	if len(rec.commands) != 1 || rec.commands[0].Opcode != command.OpSetCombine {
		t.Errorf("expected one applied command, got %+v", rec.commands)
	}
	if len(rec.forced) != 1 || rec.forced[0] {
		t.Errorf("expected one unforced report, got %v", rec.forced)
	}
}

func TestPumpsRunEveryStep(t *testing.T) {
	r := newRig(t)
	defer r.store.Close()

	pump := &fakePump{}
	r.p.AddPump(pump)
	r.step(t)
	r.step(t)

	if pump.calls != 2 {
		t.Errorf("Expected 2 pump calls, got %d", pump.calls)
	}
}

func TestFatalFaultsHalt(t *testing.T) {
	tests := []struct {
		name   string
		break_ func(r *rig)
		is     error
	}{
		{"switch read", func(r *rig) { r.left.err = errors.New("pin") }, input.ErrSwitchRead},
		{"host read", func(r *rig) { r.tr.readErr = errors.New("usb") }, ErrHostRead},
		{"report write", func(r *rig) { r.left.active = true; r.tr.writeErr = errors.New("usb") }, report.ErrTransport},
	}

	for _, tt := range tests {
		r := newRig(t)
		tt.break_(r)

		err := r.p.Step()
		if !errors.Is(err, tt.is) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.is, err)
		}

		// Halted for good: no further reports even after recovery.
		r.left.err, r.tr.readErr, r.tr.writeErr = nil, nil, nil
		r.left.active = true
		if err2 := r.p.Step(); err2 != err {
			t.Errorf("%s: expected sticky halt, got %v", tt.name, err2)
		}
		if len(r.tr.reports) != 0 {
			t.Errorf("%s: halted device sent %d reports", tt.name, len(r.tr.reports))
		}
		r.store.Close()
	}
}

type failingStore struct{ err error }

func (failingStore) ReadU16(_ config.Tag, def uint16) uint16 { return def }

func (f failingStore) WriteU16(config.Tag, uint16) error { return f.err }

func TestStoreWriteFaultHalts(t *testing.T) {
	fault := errors.New("flash write fault")
	tr := &fakeTransport{pending: [][]byte{{command.OpRebindLeft, 0x05}}}
	p := New(Options{
		Left:      &fakeSwitch{active: true},
		Right:     &fakeSwitch{},
		Transport: tr,
		Store:     failingStore{err: fault},
		Delay:     &fakeDelay{},
	})

	if err := p.Step(); err != fault {
		t.Errorf("Expected write fault, got %v", err)
	}
	if len(tr.reports) != 0 {
		t.Errorf("no report may follow a failed persist, got %d", len(tr.reports))
	}
}

func TestPumpErrorHalts(t *testing.T) {
	r := newRig(t)
	defer r.store.Close()

	fault := errors.New("serial persist failed")
	r.p.AddPump(&fakePump{err: fault})

	if err := r.p.Step(); err != fault {
		t.Errorf("Expected pump error, got %v", err)
	}
}

type haltSignal struct{}

func TestRunHaltsOnFault(t *testing.T) {
	r := newRig(t)
	defer r.store.Close()
	r.left.err = errors.New("pin")
	rec := &recorder{}
	r.p.SetObserver(rec)

	prev := halt
	halt = func() { panic(haltSignal{}) }
	defer func() { halt = prev }()

	defer func() {
		if v := recover(); v == nil {
			t.Error("Run should have halted")
		} else if _, ok := v.(haltSignal); !ok {
			panic(v)
		}
		if len(rec.faults) != 1 || !errors.Is(rec.faults[0], input.ErrSwitchRead) {
			t.Errorf("observer should see the halting fault, got %v", rec.faults)
		}
	}()
	r.p.Run()
}

type ledTransport struct {
	fakeTransport
	leds uint8
}

func (l *ledTransport) LEDs() uint8 { return l.leds }

func TestLEDStateIsEchoed(t *testing.T) {
	mgr, _ := storage.New(tinyfs.NewMemoryDevice(256, 4096, 64), true)
	defer mgr.Close()

	tr := &ledTransport{leds: 0x02}
	tr.pending = [][]byte{{0x00, 0x00}}
	left := &fakeSwitch{}
	p := New(Options{Left: left, Right: &fakeSwitch{}, Transport: tr, Store: mgr, Delay: &fakeDelay{}})

	if err := p.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if len(tr.reports) != 0 {
		t.Fatal("LED change alone should not send a report")
	}

	left.active = true
	p.Step()
	if len(tr.reports) != 1 || tr.reports[0].LEDs != 0x02 {
		t.Errorf("expected LEDs 0x02 in the next report, got %+v", tr.reports)
	}
}
