package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/herlein/bluebox/pkg/bluebox"
	"github.com/herlein/bluebox/pkg/protocol"
	"github.com/herlein/bluebox/pkg/registers"
)

// DeviceConfig holds the configuration read from a bluebox
type DeviceConfig struct {
	Serial       string               `json:"serial"`
	Manufacturer string               `json:"manufacturer"`
	Product      string               `json:"product"`
	FWRevision   string               `json:"fw_revision,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
	Settings     Settings             `json:"settings"`
	Telemetry    *registers.Telemetry `json:"telemetry,omitempty"`
}

// Device is the part of bluebox.Device that DumpFromDevice and
// ApplyToDevice use
type Device interface {
	registers.Accessor
	GetFrequency(which uint16) (uint32, error)
	SetFrequency(which uint16, hz uint32) error
	GetBitrate() (uint16, error)
	SetBitrate(bps uint16) error
	GetModIndex() (uint8, error)
	SetModIndex(index uint8) error
	GetPower() (uint8, error)
	SetPower(pa uint8) error
	GetCSMA() (int16, error)
	SetCSMA(dbm int16) error
	GetAFC() (protocol.AFC, error)
	SetAFC(afc protocol.AFC) error
	GetIFBW() (uint8, error)
	SetIFBW(class uint8) error
	GetTraining() (uint8, error)
	SetTraining(n uint8) error
	GetSyncWord() (protocol.SyncWord, error)
	SetSyncWord(sw protocol.SyncWord) error
	GetSerial() (uint32, error)
	GetFWRevision() (string, error)
}

var _ Device = (*bluebox.Device)(nil)

// DumpFromDevice reads all configuration from a device. Fields that have
// no control request keep their defaults.
func DumpFromDevice(device Device) (*DeviceConfig, error) {
	s := Default()
	var err error

	if s.RxFreq, err = device.GetFrequency(protocol.FrequencyRX); err != nil {
		return nil, fmt.Errorf("failed to get RX frequency: %w", err)
	}
	if s.TxFreq, err = device.GetFrequency(protocol.FrequencyTX); err != nil {
		return nil, fmt.Errorf("failed to get TX frequency: %w", err)
	}
	if s.Bitrate, err = device.GetBitrate(); err != nil {
		return nil, fmt.Errorf("failed to get bitrate: %w", err)
	}
	if s.ModIndex, err = device.GetModIndex(); err != nil {
		return nil, fmt.Errorf("failed to get mod index: %w", err)
	}
	if s.PASetting, err = device.GetPower(); err != nil {
		return nil, fmt.Errorf("failed to get power: %w", err)
	}
	if s.CSMARSSI, err = device.GetCSMA(); err != nil {
		return nil, fmt.Errorf("failed to get CSMA threshold: %w", err)
	}
	afc, err := device.GetAFC()
	if err != nil {
		return nil, fmt.Errorf("failed to get AFC: %w", err)
	}
	s.AFCEnable, s.AFCRange, s.AFCKI, s.AFCKP = afc.Enable, afc.Range, afc.KI, afc.KP
	if s.IFBandwidth, err = device.GetIFBW(); err != nil {
		return nil, fmt.Errorf("failed to get IF bandwidth: %w", err)
	}
	if s.TrainingBytes, err = device.GetTraining(); err != nil {
		return nil, fmt.Errorf("failed to get training: %w", err)
	}
	sw, err := device.GetSyncWord()
	if err != nil {
		return nil, fmt.Errorf("failed to get sync word: %w", err)
	}
	s.SyncWord, s.SyncWordLength, s.SyncWordTolerance = sw.Word, sw.Length, sw.Tolerance

	serial, err := device.GetSerial()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial: %w", err)
	}
	revision, _ := device.GetFWRevision()
	telemetry, _ := registers.ReadTelemetry(device, s.XtalHz)

	cfg := &DeviceConfig{
		Serial:     fmt.Sprintf("%08x", serial),
		FWRevision: revision,
		Timestamp:  time.Now(),
		Settings:   s,
		Telemetry:  telemetry,
	}
	if d, ok := device.(*bluebox.Device); ok {
		cfg.Manufacturer = d.Manufacturer
		cfg.Product = d.Product
	}
	return cfg, nil
}

// ApplyToDevice writes configuration to a device. The bitrate goes
// first so the device plans clocks for the new rate.
func ApplyToDevice(device Device, configuration *DeviceConfig) error {
	s := &configuration.Settings
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"bitrate", func() error { return device.SetBitrate(s.Bitrate) }},
		{"mod index", func() error { return device.SetModIndex(s.ModIndex) }},
		{"RX frequency", func() error { return device.SetFrequency(protocol.FrequencyRX, s.RxFreq) }},
		{"TX frequency", func() error { return device.SetFrequency(protocol.FrequencyTX, s.TxFreq) }},
		{"IF bandwidth", func() error { return device.SetIFBW(s.IFBandwidth) }},
		{"power", func() error { return device.SetPower(s.PASetting) }},
		{"CSMA threshold", func() error { return device.SetCSMA(s.CSMARSSI) }},
		{"AFC", func() error {
			return device.SetAFC(protocol.AFC{Enable: s.AFCEnable, Range: s.AFCRange, KI: s.AFCKI, KP: s.AFCKP})
		}},
		{"training", func() error { return device.SetTraining(s.TrainingBytes) }},
		{"sync word", func() error {
			return device.SetSyncWord(protocol.SyncWord{Word: s.SyncWord, Length: s.SyncWordLength, Tolerance: s.SyncWordTolerance})
		}},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to set %s: %w", step.name, err)
		}
	}
	return nil
}

// ParseSerial converts the hex serial string back to its numeric form
func ParseSerial(serial string) (uint32, error) {
	v, err := strconv.ParseUint(serial, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid serial %q: %w", serial, err)
	}
	return uint32(v), nil
}

// GetFrequencyMHz returns the RX frequency in MHz
func (c *DeviceConfig) GetFrequencyMHz() float64 {
	return float64(c.Settings.RxFreq) / 1e6
}

// GetSyncWordBits returns the sync word detector length in bits
func (c *DeviceConfig) GetSyncWordBits() int {
	return registers.SyncWordBits(c.Settings.SyncWordLength)
}

// GetIFBandwidthString returns a human-readable IF filter bandwidth
func (c *DeviceConfig) GetIFBandwidthString() string {
	switch c.Settings.IFBandwidth {
	case 0:
		return "12.5 kHz"
	case 1:
		return "18.75 kHz"
	case 2:
		return "25 kHz"
	default:
		return fmt.Sprintf("Unknown (%d)", c.Settings.IFBandwidth)
	}
}
