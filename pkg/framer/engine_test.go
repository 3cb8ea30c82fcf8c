package framer

import (
	"bytes"
	"errors"
	"testing"
)

type fakeLines struct {
	syncEnabled bool
	clockOn     bool
	arms        int
}

func (l *fakeLines) EnableSyncDetect()  { l.syncEnabled = true; l.arms++ }
func (l *fakeLines) DisableSyncDetect() { l.syncEnabled = false }
func (l *fakeLines) StartByteClock()    { l.clockOn = true }
func (l *fakeLines) StopByteClock()     { l.clockOn = false }

type fakeTelemetry struct {
	rssi int
	afc  int
}

func (f *fakeTelemetry) ReadRSSI() (int, error)      { return f.rssi, nil }
func (f *fakeTelemetry) ReadAFCOffset() (int, error) { return f.afc, nil }

func uncodedConfig() Config {
	cfg := DefaultConfig()
	cfg.Coding = Coding{}
	cfg.TrainingBytes = 4
	return cfg
}

func newTestEngine() (*Engine, *fakeLines) {
	lines := &fakeLines{}
	e := NewEngine(lines, &fakeTelemetry{rssi: -95, afc: 1200}, uncodedConfig())
	e.Arm()
	return e, lines
}

// receive runs one sync edge and clocks in prefix, marker and body
func receive(e *Engine, prefix string, marker byte, body []byte) {
	e.OnSyncDetect()
	for _, b := range []byte(prefix) {
		e.Clock(b)
	}
	e.Clock(marker)
	for _, b := range body {
		e.Clock(b)
	}
}

func body(n int, fill byte) []byte {
	return bytes.Repeat([]byte{fill}, n)
}

func TestReceiveShortFrame(t *testing.T) {
	e, lines := newTestEngine()

	e.OnSyncDetect()
	if e.RxState() != RxArmed {
		t.Fatalf("state after sync = %s, want ARMED", e.RxState())
	}
	if lines.syncEnabled || !lines.clockOn {
		t.Fatalf("sync=%v clock=%v after sync detect", lines.syncEnabled, lines.clockOn)
	}

	for _, b := range []byte("ALL") {
		e.Clock(b)
	}
	if e.RxState() != RxPreamble {
		t.Fatalf("state after prefix = %s, want PREAMBLE", e.RxState())
	}
	e.Clock(MarkerShort)
	if e.RxState() != RxBody {
		t.Fatalf("state after marker = %s, want BODY", e.RxState())
	}
	for _, b := range body(66, 0x42) {
		e.Clock(b)
	}
	if e.RxState() != RxComplete {
		t.Fatalf("state after body = %s, want COMPLETE", e.RxState())
	}
	if !lines.syncEnabled || lines.clockOn {
		t.Errorf("sync=%v clock=%v after completion", lines.syncEnabled, lines.clockOn)
	}

	var got FrameBuffer
	ok, err := e.Drain(func(f *FrameBuffer) error {
		got = *f
		return nil
	})
	if err != nil || !ok {
		t.Fatalf("Drain() = %v, %v", ok, err)
	}
	if got.Size != 66 || !bytes.Equal(got.Data(), body(66, 0x42)) {
		t.Errorf("frame size %d data % x", got.Size, got.Data()[:4])
	}
	if got.RSSI != -95 || got.Freq != 1200 || !got.Ready() {
		t.Errorf("frame rssi=%d freq=%d flags=%d", got.RSSI, got.Freq, got.Flags)
	}
	if ok, _ := e.Drain(func(*FrameBuffer) error { return nil }); ok {
		t.Error("second Drain() delivered a frame")
	}
	if e.Stats().Received != 1 {
		t.Errorf("Received = %d", e.Stats().Received)
	}
}

func TestReceiveLongFrameOnTie(t *testing.T) {
	e, _ := newTestEngine()
	receive(e, "ALL", 0x00, body(218, 0x01))

	var size uint16
	if ok, _ := e.Drain(func(f *FrameBuffer) error { size = f.Size; return nil }); !ok {
		t.Fatal("no frame drained")
	}
	if size != 218 {
		t.Errorf("size = %d, want 218 (LONG)", size)
	}
}

func TestPrefixTolerance(t *testing.T) {
	tests := []struct {
		name      string
		tolerance uint8
		prefix    []byte
		want      RxState
	}{
		{"exact", 0, []byte("ALL"), RxBody},
		{"two bit errors, tolerance 1", 1, []byte{'A' ^ 0x01, 'L' ^ 0x10, 'L'}, RxBody},
		{"three bit errors, tolerance 1", 1, []byte{'A' ^ 0x03, 'L' ^ 0x10, 'L'}, RxRejected},
		{"six bit errors, tolerance 3", 3, []byte{'A' ^ 0x07, 'L' ^ 0x07, 'L'}, RxBody},
		{"garbage", 3, []byte{0x00, 0x00, 0x00}, RxRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, lines := newTestEngine()
			cfg := e.Config()
			cfg.SyncTolerance = tt.tolerance
			e.SetConfig(cfg)

			e.OnSyncDetect()
			for _, b := range tt.prefix {
				e.Clock(b)
			}
			e.Clock(MarkerShort)
			if e.RxState() != tt.want {
				t.Errorf("state = %s, want %s", e.RxState(), tt.want)
			}
			if tt.want == RxRejected {
				if !lines.syncEnabled || lines.clockOn || !e.Idle() {
					t.Errorf("not re-armed after reject")
				}
				if e.Stats().Rejected != 1 {
					t.Errorf("Rejected = %d", e.Stats().Rejected)
				}
			}
		})
	}
}

func TestDoubleBuffering(t *testing.T) {
	e, _ := newTestEngine()

	receive(e, "ALL", MarkerShort, body(66, 0x11))
	receive(e, "ALL", MarkerShort, body(66, 0x22))

	// both buffers full: the next sync edge must not touch either
	e.OnSyncDetect()
	if e.RxState() != RxComplete || !e.Idle() {
		t.Fatalf("engine accepted a frame with no free buffer")
	}
	if e.Stats().Overruns != 1 {
		t.Errorf("Overruns = %d, want 1", e.Stats().Overruns)
	}

	var order []byte
	for i := 0; i < 2; i++ {
		ok, err := e.Drain(func(f *FrameBuffer) error {
			order = append(order, f.Payload[0])
			return nil
		})
		if !ok || err != nil {
			t.Fatalf("Drain() = %v, %v", ok, err)
		}
	}
	if !bytes.Equal(order, []byte{0x11, 0x22}) {
		t.Errorf("drain order = % x, want 11 22", order)
	}

	// buffers are free again
	receive(e, "ALL", MarkerShort, body(66, 0x33))
	if e.Stats().Received != 3 {
		t.Errorf("Received = %d, want 3", e.Stats().Received)
	}
}

func TestReadyBufferIsNotMutated(t *testing.T) {
	e, _ := newTestEngine()
	receive(e, "ALL", MarkerShort, body(66, 0x11))

	// second frame is in flight in the other buffer
	e.OnSyncDetect()
	for _, b := range []byte("ALL") {
		e.Clock(b)
	}
	e.Clock(MarkerShort)
	for _, b := range body(30, 0x99) {
		e.Clock(b)
	}

	var first []byte
	ok, err := e.Drain(func(f *FrameBuffer) error {
		first = append([]byte(nil), f.Data()...)
		return nil
	})
	if !ok || err != nil {
		t.Fatalf("Drain() = %v, %v", ok, err)
	}
	if !bytes.Equal(first, body(66, 0x11)) {
		t.Error("completed frame was modified by the assembly path")
	}
}

func TestDrainRetriesOnPushFailure(t *testing.T) {
	e, _ := newTestEngine()
	receive(e, "ALL", MarkerShort, body(66, 0x11))

	boom := errors.New("host gone")
	if ok, err := e.Drain(func(*FrameBuffer) error { return boom }); ok || !errors.Is(err, boom) {
		t.Fatalf("Drain() = %v, %v", ok, err)
	}
	if ok, err := e.Drain(func(*FrameBuffer) error { return nil }); !ok || err != nil {
		t.Fatalf("retry Drain() = %v, %v", ok, err)
	}
}

func TestTransmit(t *testing.T) {
	e, lines := newTestEngine()

	var f FrameBuffer
	if err := f.SetData([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := e.StartTransmit(&f); err != nil {
		t.Fatalf("StartTransmit() error = %v", err)
	}
	if lines.syncEnabled || !lines.clockOn {
		t.Fatalf("sync=%v clock=%v after StartTransmit", lines.syncEnabled, lines.clockOn)
	}
	if e.TxState() != TxTraining {
		t.Fatalf("state = %s, want TRAINING", e.TxState())
	}

	var out []byte
	for i := 0; i < 200 && !e.TxDone(); i++ {
		out = append(out, e.Clock(0))
	}
	if !e.TxDone() || e.TxState() != TxComplete {
		t.Fatalf("transmit did not complete, state %s", e.TxState())
	}

	want := append(body(4, TrainingSymbol), []byte("NOCALL")...)
	want = append(want, MarkerShort, 1, 2, 3)
	want = append(want, make([]byte, 66-3)...)
	if !bytes.Equal(out, want) {
		t.Errorf("sent % x\nwant % x", out, want)
	}
	if lines.clockOn {
		t.Error("byte clock still running")
	}

	if !e.FinishTransmit() {
		t.Fatal("FinishTransmit() = false")
	}
	if e.TxState() != TxIdle || !e.Idle() || !lines.syncEnabled {
		t.Errorf("not back to receive after FinishTransmit")
	}
	if e.FinishTransmit() {
		t.Error("FinishTransmit() twice = true")
	}
	if e.Stats().Transmitted != 1 {
		t.Errorf("Transmitted = %d", e.Stats().Transmitted)
	}
}

func TestTransmitWithoutTraining(t *testing.T) {
	e, _ := newTestEngine()
	cfg := e.Config()
	cfg.TrainingBytes = 0
	e.SetConfig(cfg)

	var f FrameBuffer
	_ = f.SetData([]byte{0xAB})
	if err := e.StartTransmit(&f); err != nil {
		t.Fatal(err)
	}
	if b := e.Clock(0); b != 'N' {
		t.Errorf("first byte = %02x, want callsign", b)
	}
}

func TestTransmitBusy(t *testing.T) {
	e, _ := newTestEngine()
	var f FrameBuffer
	_ = f.SetData([]byte{1})

	// mid-receive
	e.OnSyncDetect()
	if err := e.StartTransmit(&f); !errors.Is(err, ErrBusy) {
		t.Errorf("StartTransmit() during RX error = %v, want ErrBusy", err)
	}

	// a sync edge during transmit is ignored
	e2, _ := newTestEngine()
	if err := e2.StartTransmit(&f); err != nil {
		t.Fatal(err)
	}
	e2.OnSyncDetect()
	if e2.RxState() != RxIdle {
		t.Errorf("RX state during TX = %s", e2.RxState())
	}
	if err := e2.StartTransmit(&f); !errors.Is(err, ErrBusy) {
		t.Errorf("second StartTransmit() error = %v, want ErrBusy", err)
	}
}

func TestTransmitTooLong(t *testing.T) {
	e, _ := newTestEngine()
	f := FrameBuffer{Size: 219}
	if err := e.StartTransmit(&f); !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("StartTransmit() error = %v, want ErrFrameTooLong", err)
	}
	if !e.Idle() {
		t.Error("engine left busy after rejected frame")
	}
}

func TestCallsignPadding(t *testing.T) {
	cfg := Config{Callsign: "OZ7"}
	cs := cfg.callsign()
	if string(cs[:]) != "OZ7   " {
		t.Errorf("callsign = %q", cs)
	}
	cfg.Callsign = "TOOLONGCALL"
	cs = cfg.callsign()
	if string(cs[:]) != "TOOLON" {
		t.Errorf("callsign = %q", cs)
	}
}

func TestReset(t *testing.T) {
	e, lines := newTestEngine()
	receive(e, "ALL", MarkerShort, body(66, 0x11))
	e.OnSyncDetect()

	e.Reset()
	if e.Idle() || e.RxState() != RxIdle {
		t.Errorf("idle=%v rx=%s after Reset, want held IDLE", e.Idle(), e.RxState())
	}
	if ok, _ := e.Drain(func(*FrameBuffer) error { return nil }); ok {
		t.Error("frame survived Reset")
	}

	e.OnSyncDetect()
	if e.RxState() != RxIdle {
		t.Error("sync detect accepted while held after Reset")
	}
	e.Release()
	if !e.Idle() || !lines.syncEnabled {
		t.Error("Release after Reset did not re-arm")
	}
}

func TestHoldRelease(t *testing.T) {
	e, lines := newTestEngine()

	if !e.Hold() {
		t.Fatal("Hold() on idle engine = false")
	}
	if lines.syncEnabled || e.Idle() {
		t.Fatalf("sync=%v idle=%v while held", lines.syncEnabled, e.Idle())
	}
	if e.Hold() {
		t.Error("second Hold() = true")
	}
	e.OnSyncDetect()
	if e.RxState() != RxIdle || lines.clockOn {
		t.Errorf("sync detect accepted while held: rx=%s clock=%v", e.RxState(), lines.clockOn)
	}

	e.Release()
	if !e.Idle() || !lines.syncEnabled {
		t.Fatalf("idle=%v sync=%v after Release", e.Idle(), lines.syncEnabled)
	}
	arms := lines.arms
	e.Release()
	if lines.arms != arms {
		t.Error("Release on idle engine re-armed")
	}

	e.OnSyncDetect()
	if e.Hold() {
		t.Error("Hold() during receive = true")
	}
	if e.RxState() != RxArmed {
		t.Errorf("receive disturbed by failed Hold: rx=%s", e.RxState())
	}
}

func TestTransmitFromHeld(t *testing.T) {
	e, lines := newTestEngine()
	if !e.Hold() {
		t.Fatal("Hold() = false")
	}
	f := FrameBuffer{Size: 10}
	if err := e.StartTransmit(&f); err != nil {
		t.Fatalf("StartTransmit() from held error = %v", err)
	}
	if e.TxState() != TxTraining || !lines.clockOn {
		t.Fatalf("tx=%s clock=%v after StartTransmit", e.TxState(), lines.clockOn)
	}
	e.Release()
	if e.TxState() != TxTraining || e.Idle() {
		t.Error("Release interfered with a running transmit")
	}
}

func TestHoldBlockedByUndrainedFrame(t *testing.T) {
	e, _ := newTestEngine()
	receive(e, "ALL", MarkerShort, body(66, 0x11))
	receive(e, "ALL", MarkerShort, body(66, 0x22))
	if !e.Hold() {
		t.Fatal("Hold() = false")
	}
	f := FrameBuffer{Size: 10}
	if err := e.StartTransmit(&f); !errors.Is(err, ErrBusy) {
		t.Fatalf("StartTransmit() error = %v, want ErrBusy", err)
	}
	if e.Hold() || e.Idle() {
		t.Error("engine not left held after refused transmit")
	}
	e.Release()
	if !e.Idle() {
		t.Error("not idle after Release")
	}
}

func TestAbandon(t *testing.T) {
	e, lines := newTestEngine()
	e.OnSyncDetect()
	e.Clock('A')
	e.Abandon()
	if e.RxState() != RxRejected || !e.Idle() || !lines.syncEnabled || lines.clockOn {
		t.Errorf("rx=%s idle=%v sync=%v clock=%v after Abandon", e.RxState(), e.Idle(), lines.syncEnabled, lines.clockOn)
	}
	if got := e.Stats().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}

	f := FrameBuffer{Size: 10}
	if err := e.StartTransmit(&f); err != nil {
		t.Fatal(err)
	}
	e.Clock(0)
	e.Abandon()
	if !e.TxDone() || lines.clockOn {
		t.Fatalf("done=%v clock=%v after abandoned transmit", e.TxDone(), lines.clockOn)
	}
	if !e.FinishTransmit() || !e.Idle() {
		t.Error("abandoned transmit did not finish")
	}
}
