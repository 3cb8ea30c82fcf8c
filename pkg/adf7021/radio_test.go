package adf7021

import (
	"errors"
	"testing"
	"time"

	"github.com/herlein/bluebox/pkg/registers"
)

// event is one thing the radio did to the hardware
type event struct {
	write registers.Value
	read  registers.ReadbackSelector
	ptt   *bool
	ce    *bool
}

type recorder struct {
	events   []event
	readback map[registers.ReadbackSelector]registers.Value
	failOn   registers.Register
}

func (r *recorder) Write(v registers.Value) error {
	if r.failOn != 0 && v.Address() == r.failOn {
		return errors.New("bus fault")
	}
	r.events = append(r.events, event{write: v})
	return nil
}

func (r *recorder) Read(sel registers.ReadbackSelector) (registers.Value, error) {
	r.events = append(r.events, event{read: sel})
	return r.readback[sel], nil
}

func (r *recorder) SetChipEnable(on bool) error {
	r.events = append(r.events, event{ce: &on})
	return nil
}

func (r *recorder) SetTransmit(on bool) error {
	r.events = append(r.events, event{ptt: &on})
	return nil
}

func (r *recorder) reset() {
	r.events = nil
}

// writes returns the register addresses written, with "P+"/"P-" marking PTT
func (r *recorder) trace() []string {
	var out []string
	for _, e := range r.events {
		switch {
		case e.ptt != nil && *e.ptt:
			out = append(out, "P+")
		case e.ptt != nil:
			out = append(out, "P-")
		case e.ce != nil && *e.ce:
			out = append(out, "CE+")
		case e.ce != nil:
			out = append(out, "CE-")
		case e.read != 0:
			out = append(out, "RB")
		default:
			out = append(out, e.write.Address().String())
		}
	}
	return out
}

func equalTrace(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newTestRadio(t *testing.T) (*Radio, *recorder) {
	t.Helper()
	rec := &recorder{readback: map[registers.ReadbackSelector]registers.Value{}}
	r := NewRadio(rec, rec, DefaultConfig(), WithSleep(func(time.Duration) {}))
	return r, rec
}

func TestPowerOnSequence(t *testing.T) {
	r, rec := newTestRadio(t)
	if r.Mode() != ModeOff {
		t.Fatalf("initial mode = %s, want OFF", r.Mode())
	}
	if err := r.PowerOn(16000000); err != nil {
		t.Fatalf("PowerOn() error = %v", err)
	}

	want := []string{"CE+", "VCO_OSC", "TEST_MODE", "TEST_DAC"}
	if got := rec.trace(); !equalTrace(got, want) {
		t.Errorf("trace = %v, want %v", got, want)
	}
	if r.Mode() != ModeIdle {
		t.Errorf("mode = %s, want IDLE", r.Mode())
	}
	if got := registers.UnpackTestMode(rec.events[2].write).ClkMux; got != 7 {
		t.Errorf("CLK_MUX = %d, want 7", got)
	}
}

func TestConfigureRequiresPower(t *testing.T) {
	r, _ := newTestRadio(t)
	if err := r.ConfigureRX(2400, 8, 437450000, 2); !errors.Is(err, ErrPoweredOff) {
		t.Errorf("ConfigureRX() error = %v, want ErrPoweredOff", err)
	}
	if err := r.SetRXMode(); !errors.Is(err, ErrPoweredOff) {
		t.Errorf("SetRXMode() error = %v, want ErrPoweredOff", err)
	}
}

func TestModeBeforeConfigure(t *testing.T) {
	r, _ := newTestRadio(t)
	if err := r.PowerOn(16000000); err != nil {
		t.Fatal(err)
	}
	if err := r.SetTXMode(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("SetTXMode() error = %v, want ErrNotConfigured", err)
	}
}

func TestConfigureStagesWithoutWriting(t *testing.T) {
	r, rec := newTestRadio(t)
	if err := r.PowerOn(16000000); err != nil {
		t.Fatal(err)
	}
	rec.reset()

	if err := r.ConfigureRX(2400, 8, 437450000, 2); err != nil {
		t.Fatalf("ConfigureRX() error = %v", err)
	}
	if err := r.ConfigureTX(2400, 8, 437450000); err != nil {
		t.Fatalf("ConfigureTX() error = %v", err)
	}
	if len(rec.events) != 0 {
		t.Errorf("configure wrote %v", rec.trace())
	}

	rx := r.RXPlan()
	if rx.R0.IntN != 54 || rx.R0.FracN != 21914 || !rx.R0.RxOn {
		t.Errorf("RX R0 = %+v", rx.R0)
	}
	if rx.R3.SeqClkDivide != 160 || rx.R3.AGCClkDivide != 10 || rx.R3.BBOSClkDivide != 2 {
		t.Errorf("RX R3 = %+v", rx.R3)
	}
	if rx.R5.IFFilterDivider != 320 || !rx.R5.IFCalCoarse {
		t.Errorf("RX R5 = %+v", rx.R5)
	}
	if rx.R4.IFBandwidth != 2 || rx.R4.DiscBW != 200 {
		t.Errorf("RX R4 = %+v", rx.R4)
	}

	tx := r.TXPlan()
	if tx.R0.IntN != 54 || tx.R0.FracN != 22323 || tx.R0.RxOn {
		t.Errorf("TX R0 = %+v", tx.R0)
	}
	if tx.R2.PowerAmplifier != 8 || tx.R2.PABias != 3 || tx.R2.PARamp != 7 || !tx.R2.PAEnable {
		t.Errorf("TX R2 = %+v", tx.R2)
	}
	if tx.R2.ModulationScheme != registers.ModGFSK || tx.R2.FreqDeviation != 79 {
		t.Errorf("TX R2 = %+v", tx.R2)
	}
}

func TestConfigureKeepsPlanOnFailure(t *testing.T) {
	r, _ := newTestRadio(t)
	if err := r.PowerOn(16000000); err != nil {
		t.Fatal(err)
	}
	if err := r.ConfigureRX(2400, 8, 437450000, 2); err != nil {
		t.Fatal(err)
	}
	before := r.RXPlan()

	if err := r.ConfigureRX(10, 8, 437450000, 2); !errors.Is(err, ErrNoClockSolution) {
		t.Fatalf("ConfigureRX() error = %v, want ErrNoClockSolution", err)
	}
	if after := r.RXPlan(); after != before {
		t.Errorf("plan changed after failed configure")
	}
}

func TestModeSwitching(t *testing.T) {
	r, rec := newTestRadio(t)
	if err := r.PowerOn(16000000); err != nil {
		t.Fatal(err)
	}
	if err := r.ConfigureRX(2400, 8, 437450000, 2); err != nil {
		t.Fatal(err)
	}
	if err := r.ConfigureTX(2400, 8, 437450000); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		name string
		do   func() error
		want []string
		mode Mode
	}{
		{"idle to RX", r.SetRXMode, []string{"TXRX_CLK", "IF_FILTER", "N", "DEMOD", "P-"}, ModeReceiving},
		// identical R3 in both directions is skipped
		{"RX to TX", r.SetTXMode, []string{"TX_MOD", "P+", "N"}, ModeTransmitting},
		{"TX to RX", r.SetRXMode, []string{"N", "P-"}, ModeReceiving},
		// PA is already warm
		{"RX to TX again", r.SetTXMode, []string{"P+", "N"}, ModeTransmitting},
	}

	for _, s := range steps {
		rec.reset()
		if err := s.do(); err != nil {
			t.Fatalf("%s: error = %v", s.name, err)
		}
		if got := rec.trace(); !equalTrace(got, s.want) {
			t.Errorf("%s: trace = %v, want %v", s.name, got, s.want)
		}
		if r.Mode() != s.mode {
			t.Errorf("%s: mode = %s, want %s", s.name, r.Mode(), s.mode)
		}
	}
}

func TestModeSwitchingDifferentClocks(t *testing.T) {
	r, rec := newTestRadio(t)
	if err := r.PowerOn(16000000); err != nil {
		t.Fatal(err)
	}
	if err := r.ConfigureRX(1200, 8, 437450000, 2); err != nil {
		t.Fatal(err)
	}
	if err := r.ConfigureTX(2400, 8, 437450000); err != nil {
		t.Fatal(err)
	}
	if err := r.SetRXMode(); err != nil {
		t.Fatal(err)
	}

	rec.reset()
	if err := r.SetTXMode(); err != nil {
		t.Fatal(err)
	}
	want := []string{"TX_MOD", "P+", "TXRX_CLK", "N"}
	if got := rec.trace(); !equalTrace(got, want) {
		t.Errorf("trace = %v, want %v", got, want)
	}

	rec.reset()
	if err := r.SetRXMode(); err != nil {
		t.Fatal(err)
	}
	want = []string{"TXRX_CLK", "N", "P-"}
	if got := rec.trace(); !equalTrace(got, want) {
		t.Errorf("trace = %v, want %v", got, want)
	}
}

func TestConfigureTXRewarmsPA(t *testing.T) {
	r, rec := newTestRadio(t)
	if err := r.PowerOn(16000000); err != nil {
		t.Fatal(err)
	}
	if err := r.Reconfigure(); err != nil {
		t.Fatal(err)
	}
	if err := r.SetTXMode(); err != nil {
		t.Fatal(err)
	}
	if err := r.ConfigureTX(2400, 8, 437500000); err != nil {
		t.Fatal(err)
	}
	if err := r.SetRXMode(); err != nil {
		t.Fatal(err)
	}

	rec.reset()
	if err := r.SetTXMode(); err != nil {
		t.Fatal(err)
	}
	if got := rec.trace(); got[0] != "TX_MOD" {
		t.Errorf("first write after ConfigureTX = %s, want TX_MOD", got[0])
	}
}

func TestReconfigureOrder(t *testing.T) {
	r, rec := newTestRadio(t)
	if err := r.PowerOn(16000000); err != nil {
		t.Fatal(err)
	}
	rec.reset()

	if err := r.Reconfigure(); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	want := []string{"SWD", "SWD_THRESHOLD", "AFC", "TXRX_CLK", "IF_FILTER", "N", "DEMOD", "P-"}
	if got := rec.trace(); !equalTrace(got, want) {
		t.Errorf("trace = %v, want %v", got, want)
	}
	if r.Mode() != ModeReceiving {
		t.Errorf("mode = %s, want RX", r.Mode())
	}

	sys := r.System()
	if !sys.R10.Enable || sys.R10.ScalingFactor != 524 || sys.R10.Range != 10 || sys.R10.KI != 11 || sys.R10.KP != 4 {
		t.Errorf("R10 = %+v", sys.R10)
	}
	if sys.R11.Word != 0x4E4F43 || sys.R11.Length != 3 || sys.R11.ErrorTolerance != 3 {
		t.Errorf("R11 = %+v", sys.R11)
	}
	if sys.R12.PacketLength != 255 || sys.R12.SWDMode != 1 || sys.R12.LockThresMode != 1 {
		t.Errorf("R12 = %+v", sys.R12)
	}
}

func TestReconfigureAFCDisabled(t *testing.T) {
	r, _ := newTestRadio(t)
	cfg := DefaultConfig()
	cfg.AFCEnable = false
	r.SetConfig(cfg)
	if err := r.PowerOn(cfg.XtalHz); err != nil {
		t.Fatal(err)
	}
	if err := r.Reconfigure(); err != nil {
		t.Fatal(err)
	}
	if r.System().R10.Enable {
		t.Error("AFC enabled after reconfigure with AFCEnable=false")
	}
}

func TestReset(t *testing.T) {
	var slept []time.Duration
	rec := &recorder{}
	r := NewRadio(rec, rec, DefaultConfig(), WithSleep(func(d time.Duration) {
		slept = append(slept, d)
	}))
	if err := r.PowerOn(16000000); err != nil {
		t.Fatal(err)
	}
	rec.reset()

	if err := r.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	got := rec.trace()
	want := []string{"TEST_MODE", "CE-", "CE+", "VCO_OSC", "TEST_MODE", "TEST_DAC"}
	if !equalTrace(got[:len(want)], want) {
		t.Errorf("trace = %v, want prefix %v", got, want)
	}
	if slept[0] != 100*time.Millisecond {
		t.Errorf("reset delay = %v, want 100ms", slept[0])
	}
	if r.Mode() != ModeReceiving {
		t.Errorf("mode = %s, want RX", r.Mode())
	}
}

func TestPowerOff(t *testing.T) {
	r, _ := newTestRadio(t)
	if err := r.PowerOn(16000000); err != nil {
		t.Fatal(err)
	}
	if err := r.Reconfigure(); err != nil {
		t.Fatal(err)
	}
	if err := r.PowerOff(); err != nil {
		t.Fatal(err)
	}
	if r.Mode() != ModeOff {
		t.Errorf("mode = %s, want OFF", r.Mode())
	}
	if _, err := r.ReadRSSI(); !errors.Is(err, ErrPoweredOff) {
		t.Errorf("ReadRSSI() error = %v, want ErrPoweredOff", err)
	}
}

func TestReadbacks(t *testing.T) {
	r, rec := newTestRadio(t)
	if err := r.PowerOn(16000000); err != nil {
		t.Fatal(err)
	}
	// raw 40, gain code 4 (+58): (98 * 0.5) - 130 = -81
	rec.readback[registers.ReadbackRSSI] = registers.Value(40 | 4<<7)
	rec.readback[registers.ReadbackVersion] = registers.Value(0x2104)
	rec.readback[registers.ReadbackVoltage] = registers.Value(70)

	rec.reset()
	rssi, err := r.ReadRSSI()
	if err != nil {
		t.Fatal(err)
	}
	if rssi != -81 {
		t.Errorf("ReadRSSI() = %d, want -81", rssi)
	}

	ver, err := r.ReadVersion()
	if err != nil {
		t.Fatal(err)
	}
	if ver != 0x2104 {
		t.Errorf("ReadVersion() = 0x%04x, want 0x2104", ver)
	}

	rec.reset()
	v, err := r.ReadSupplyVoltage()
	if err != nil {
		t.Fatal(err)
	}
	if v < 3.3 || v > 3.32 {
		t.Errorf("ReadSupplyVoltage() = %f, want ~3.32", v)
	}
	// the ADC is enabled first
	want := []string{"POWER_DOWN", "RB"}
	if got := rec.trace(); !equalTrace(got, want) {
		t.Errorf("trace = %v, want %v", got, want)
	}
	if rec.events[0].write != registers.Value(8|1<<8) {
		t.Errorf("R8 = 0x%x, want 0x108", uint32(rec.events[0].write))
	}
}

func TestSetTXPower(t *testing.T) {
	r, rec := newTestRadio(t)
	if err := r.PowerOn(16000000); err != nil {
		t.Fatal(err)
	}
	if err := r.Reconfigure(); err != nil {
		t.Fatal(err)
	}
	rec.reset()

	if err := r.SetTXPower(63); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 1 || rec.events[0].write.Address() != registers.RegTxMod {
		t.Fatalf("trace = %v, want [TX_MOD]", rec.trace())
	}
	if got := registers.UnpackTxMod(rec.events[0].write).PowerAmplifier; got != 63 {
		t.Errorf("PA = %d, want 63", got)
	}
	if r.Config().PASetting != 63 {
		t.Errorf("config PA = %d, want 63", r.Config().PASetting)
	}
}

func TestTestModeKeepsClkMux(t *testing.T) {
	r, rec := newTestRadio(t)
	if err := r.PowerOn(16000000); err != nil {
		t.Fatal(err)
	}
	rec.reset()

	if err := r.TestMode(registers.TestModePatternPN9); err != nil {
		t.Fatal(err)
	}
	tm := registers.UnpackTestMode(rec.events[0].write)
	if tm.TxTestMode != registers.TestModePatternPN9 || tm.ClkMux != 7 {
		t.Errorf("R15 = %+v", tm)
	}
	if err := r.TestOff(); err != nil {
		t.Fatal(err)
	}
	if got := registers.UnpackTestMode(rec.events[1].write).TxTestMode; got != 0 {
		t.Errorf("TxTestMode after TestOff = %d", got)
	}
}

func TestBusErrorPropagates(t *testing.T) {
	r, rec := newTestRadio(t)
	if err := r.PowerOn(16000000); err != nil {
		t.Fatal(err)
	}
	rec.failOn = registers.RegSyncWord
	if err := r.Reconfigure(); err == nil {
		t.Fatal("Reconfigure() succeeded with a failing bus")
	}
}
