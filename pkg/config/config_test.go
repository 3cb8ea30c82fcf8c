package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/herlein/bluebox/pkg/protocol"
	"github.com/herlein/bluebox/pkg/registers"
)

// fakeDevice stores every setting in memory
type fakeDevice struct {
	freq     [3]uint32
	bitrate  uint16
	index    uint8
	power    uint8
	csma     int16
	afc      protocol.AFC
	ifbw     uint8
	training uint8
	sync     protocol.SyncWord
	serial   uint32
	failOn   string
	written  []registers.Value
}

func (f *fakeDevice) fail(name string) error {
	if f.failOn == name {
		return errors.New("usb stall")
	}
	return nil
}

func (f *fakeDevice) ReadRegister(sel registers.ReadbackSelector) (registers.Value, error) {
	return 0, nil
}
func (f *fakeDevice) WriteRegister(v registers.Value) error {
	f.written = append(f.written, v)
	return nil
}
func (f *fakeDevice) GetFrequency(which uint16) (uint32, error) { return f.freq[which], nil }
func (f *fakeDevice) SetFrequency(which uint16, hz uint32) error {
	f.freq[which] = hz
	return f.fail("freq")
}
func (f *fakeDevice) GetBitrate() (uint16, error) { return f.bitrate, nil }
func (f *fakeDevice) SetBitrate(bps uint16) error {
	f.bitrate = bps
	return f.fail("bitrate")
}
func (f *fakeDevice) GetModIndex() (uint8, error) { return f.index, nil }
func (f *fakeDevice) SetModIndex(index uint8) error { f.index = index; return nil }
func (f *fakeDevice) GetPower() (uint8, error) { return f.power, nil }
func (f *fakeDevice) SetPower(pa uint8) error { f.power = pa; return nil }
func (f *fakeDevice) GetCSMA() (int16, error) { return f.csma, f.fail("csma") }
func (f *fakeDevice) SetCSMA(dbm int16) error { f.csma = dbm; return nil }
func (f *fakeDevice) GetAFC() (protocol.AFC, error) { return f.afc, nil }
func (f *fakeDevice) SetAFC(afc protocol.AFC) error { f.afc = afc; return nil }
func (f *fakeDevice) GetIFBW() (uint8, error) { return f.ifbw, nil }
func (f *fakeDevice) SetIFBW(class uint8) error { f.ifbw = class; return nil }
func (f *fakeDevice) GetTraining() (uint8, error) { return f.training, nil }
func (f *fakeDevice) SetTraining(n uint8) error { f.training = n; return nil }
func (f *fakeDevice) GetSyncWord() (protocol.SyncWord, error) { return f.sync, nil }
func (f *fakeDevice) SetSyncWord(sw protocol.SyncWord) error { f.sync = sw; return nil }
func (f *fakeDevice) GetSerial() (uint32, error) { return f.serial, nil }
func (f *fakeDevice) GetFWRevision() (string, error) { return "v1.2", nil }

func TestDefaultValidates(t *testing.T) {
	s := Default()
	if err := s.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if s.CSMAQuarantine != 60 || s.TxWaitTimeout != 120 {
		t.Errorf("unexpected defaults: %+v", s)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
	}{
		{"zero bitrate", func(s *Settings) { s.Bitrate = 0 }},
		{"zero index", func(s *Settings) { s.ModIndex = 0 }},
		{"pa", func(s *Settings) { s.PASetting = 64 }},
		{"ifbw", func(s *Settings) { s.IFBandwidth = 3 }},
		{"sync length", func(s *Settings) { s.SyncWordLength = 4 }},
		{"sync tolerance", func(s *Settings) { s.SyncWordTolerance = 4 }},
		{"wide sync", func(s *Settings) { s.SyncWord = 0x1000000 }},
		{"no clocks", func(s *Settings) { s.Bitrate = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.modify(&s)
			if err := s.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	s := Default()
	s.Callsign = "DL1ABC"
	s.PTTDelayHighMs = 5

	rc := s.RadioConfig()
	if rc.DataRate != 2400 || rc.ModIndex != 8 || rc.RxFreq != 437450000 {
		t.Errorf("RadioConfig() = %+v", rc)
	}
	if rc.PTTDelayHigh != 5*time.Millisecond {
		t.Errorf("PTTDelayHigh = %v, want 5ms", rc.PTTDelayHigh)
	}

	fc := s.FramerConfig()
	if fc.Callsign != "DL1ABC" || fc.TrainingBytes != 30 || !fc.Coding.ReedSolomon {
		t.Errorf("FramerConfig() = %+v", fc)
	}
	if s.CSMADelay() != 10*time.Millisecond {
		t.Errorf("CSMADelay() = %v", s.CSMADelay())
	}
}

func TestApplyAndDump(t *testing.T) {
	dev := &fakeDevice{serial: 0xdeadbeef}
	s := Default()
	s.RxFreq = 435000000
	s.TxFreq = 145900000
	s.Bitrate = 9600
	s.ModIndex = 2
	s.CSMARSSI = -90

	if err := ApplyToDevice(dev, &DeviceConfig{Settings: s}); err != nil {
		t.Fatalf("ApplyToDevice() = %v", err)
	}

	got, err := DumpFromDevice(dev)
	if err != nil {
		t.Fatalf("DumpFromDevice() = %v", err)
	}
	if got.Serial != "deadbeef" {
		t.Errorf("Serial = %q, want deadbeef", got.Serial)
	}
	if got.FWRevision != "v1.2" {
		t.Errorf("FWRevision = %q", got.FWRevision)
	}
	want := s
	if got.Settings != want {
		t.Errorf("Settings = %+v\nwant %+v", got.Settings, want)
	}
	if got.Telemetry == nil {
		t.Error("Telemetry = nil")
	}
}

func TestApplyToDeviceErrors(t *testing.T) {
	dev := &fakeDevice{failOn: "freq"}
	cfg := &DeviceConfig{Settings: Default()}
	if err := ApplyToDevice(dev, cfg); err == nil {
		t.Error("ApplyToDevice() = nil, want error")
	}

	cfg.Settings.Bitrate = 0
	if err := ApplyToDevice(&fakeDevice{}, cfg); err == nil {
		t.Error("ApplyToDevice() with invalid settings = nil, want error")
	}
}

func TestDumpFromDeviceError(t *testing.T) {
	dev := &fakeDevice{failOn: "csma"}
	if _, err := DumpFromDevice(dev); err == nil {
		t.Error("DumpFromDevice() = nil, want error")
	}
}

func TestParseSerial(t *testing.T) {
	v, err := ParseSerial("0000002a")
	if err != nil || v != 42 {
		t.Errorf("ParseSerial() = %d, %v", v, err)
	}
	if _, err := ParseSerial("xyz"); err == nil {
		t.Error("ParseSerial(xyz) = nil error")
	}
}

func TestHelpers(t *testing.T) {
	c := &DeviceConfig{Settings: Default()}
	if got := c.GetFrequencyMHz(); got != 437.45 {
		t.Errorf("GetFrequencyMHz() = %v", got)
	}
	if got := c.GetSyncWordBits(); got != 24 {
		t.Errorf("GetSyncWordBits() = %d", got)
	}
	if got := c.GetIFBandwidthString(); got != "25 kHz" {
		t.Errorf("GetIFBandwidthString() = %q", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cfg.json")
	cfg := &DeviceConfig{
		Serial:    "0000002a",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Settings:  Default(),
	}
	if err := SaveToFile(cfg, path); err != nil {
		t.Fatalf("SaveToFile() = %v", err)
	}
	got, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() = %v", err)
	}
	if got.Serial != cfg.Serial || got.Settings != cfg.Settings || !got.Timestamp.Equal(cfg.Timestamp) {
		t.Errorf("LoadFromFile() = %+v", got)
	}
}

func TestLoadSettingsPartialJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json5")
	data := `{
  // only the link parameters change
  bitrate: 9600,
  mod_index: 2,
  callsign: "DL1ABC",
}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings() = %v", err)
	}
	if s.Bitrate != 9600 || s.ModIndex != 2 || s.Callsign != "DL1ABC" {
		t.Errorf("LoadSettings() = %+v", s)
	}
	if s.RxFreq != 437450000 {
		t.Errorf("RxFreq = %d, want default", s.RxFreq)
	}
}

func TestLoadSettingsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"pa_setting": 99}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(path); err == nil {
		t.Error("LoadSettings() = nil, want error")
	}
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadSettings(missing) = nil, want error")
	}
}

func TestGetConfigPath(t *testing.T) {
	if got := GetConfigPath("0000002a"); got != filepath.Join("etc", "blueboxes", "0000002a.json") {
		t.Errorf("GetConfigPath() = %q", got)
	}
}
