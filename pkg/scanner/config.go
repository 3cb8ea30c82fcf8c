package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/flynn/json5"
)

// ScanConfig defines runtime scanning parameters
type ScanConfig struct {
	Frequencies []uint32

	RSSIThreshold int           // dBm
	FineScanRange uint32        // Hz either side of the coarse hit, 0 skips the fine pass
	FineScanStep  uint32        // Hz
	DwellTime     time.Duration // AGC settle time before each RSSI read
	ScanInterval  time.Duration

	HoldMax             int
	LostThreshold       int
	FrequencyResolution uint32 // Hz

	SmoothingEnabled bool
	SmoothThreshold  float64
	SmoothKFast      float64
	SmoothKSlow      float64

	OnSignalDetected func(SignalInfo) `json:"-"`
	OnSignalLost     func(SignalInfo) `json:"-"`
}

// DefaultConfig returns a ScanConfig with default values
func DefaultConfig() *ScanConfig {
	return &ScanConfig{
		Frequencies:         DefaultFrequencies,
		RSSIThreshold:       DefaultRSSIThreshold,
		FineScanRange:       DefaultFineScanRange,
		FineScanStep:        DefaultFineScanStep,
		DwellTime:           DefaultDwellTime,
		ScanInterval:        DefaultScanInterval,
		HoldMax:             DefaultHoldMax,
		LostThreshold:       DefaultLostThreshold,
		FrequencyResolution: DefaultFrequencyResolution,
		SmoothingEnabled:    true,
		SmoothThreshold:     DefaultSmoothThreshold,
		SmoothKFast:         DefaultKFast,
		SmoothKSlow:         DefaultKSlow,
	}
}

// Validate checks the configuration for errors
func (c *ScanConfig) Validate() error {
	if len(c.Frequencies) == 0 {
		return ErrNoFrequencies
	}
	for _, freq := range c.Frequencies {
		if !IsValidFrequency(freq) {
			return fmt.Errorf("%w: %d Hz", ErrFrequencyOutOfRange, freq)
		}
	}
	if c.RSSIThreshold >= 0 {
		return ErrInvalidThreshold
	}
	if c.DwellTime < time.Millisecond || c.DwellTime > 100*time.Millisecond {
		return ErrInvalidDwellTime
	}
	if c.FineScanRange > 0 && c.FineScanStep == 0 {
		return fmt.Errorf("fine scan step must be non-zero")
	}
	return nil
}

// ConfigFile is the on-disk scanner configuration
type ConfigFile struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
	Created     time.Time `json:"created"`

	Frequencies    FrequencyConfigJSON `json:"frequencies"`
	ScanParameters ScanParametersJSON  `json:"scan_parameters"`
	SignalTracking SignalTrackingJSON  `json:"signal_tracking"`
	Smoothing      SmoothingJSON       `json:"smoothing"`
}

// FrequencyConfigJSON lists channels directly or as bands
type FrequencyConfigJSON struct {
	Channels []uint32         `json:"channels,omitempty"`
	Bands    []BandConfigJSON `json:"bands,omitempty"`
}

// BandConfigJSON is a range of channels
type BandConfigJSON struct {
	Name    string `json:"name"`
	StartHz uint32 `json:"start_hz"`
	EndHz   uint32 `json:"end_hz"`
	StepHz  uint32 `json:"step_hz"`
	Enabled bool   `json:"enabled"`
}

// ScanParametersJSON holds scan timing and threshold settings
type ScanParametersJSON struct {
	RSSIThresholdDBm int    `json:"rssi_threshold_dbm"`
	FineScanRangeHz  uint32 `json:"fine_scan_range_hz"`
	FineScanStepHz   uint32 `json:"fine_scan_step_hz"`
	DwellTimeMs      uint32 `json:"dwell_time_ms"`
	ScanIntervalMs   uint32 `json:"scan_interval_ms"`
}

// SignalTrackingJSON holds signal detection hysteresis settings
type SignalTrackingJSON struct {
	HoldMax               int    `json:"hold_max"`
	LostThreshold         int    `json:"lost_threshold"`
	FrequencyResolutionHz uint32 `json:"frequency_resolution_hz"`
}

// SmoothingJSON holds frequency smoothing settings
type SmoothingJSON struct {
	Enabled     bool    `json:"enabled"`
	ThresholdHz float64 `json:"threshold_hz"`
	KFast       float64 `json:"k_fast"`
	KSlow       float64 `json:"k_slow"`
}

// LoadConfigFile loads scanner configuration from a JSON or JSON5 file
func LoadConfigFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ConfigFile
	if err := json5.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.Version != "1.0" {
		return nil, fmt.Errorf("%w: %s", ErrConfigVersion, config.Version)
	}
	if err := config.ToScanConfig().Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// SaveConfigFile saves scanner configuration to a JSON file
func SaveConfigFile(config *ConfigFile, path string) error {
	config.Created = time.Now()

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ToScanConfig converts the file form to a runtime ScanConfig. Zero
// values fall back to the defaults.
func (c *ConfigFile) ToScanConfig() *ScanConfig {
	cfg := DefaultConfig()

	cfg.Frequencies = c.Frequencies.Channels
	if len(cfg.Frequencies) == 0 {
		cfg.Frequencies = c.expandBands()
	}

	p := c.ScanParameters
	if p.RSSIThresholdDBm != 0 {
		cfg.RSSIThreshold = p.RSSIThresholdDBm
	}
	if p.FineScanRangeHz != 0 {
		cfg.FineScanRange = p.FineScanRangeHz
	}
	if p.FineScanStepHz != 0 {
		cfg.FineScanStep = p.FineScanStepHz
	}
	if p.DwellTimeMs != 0 {
		cfg.DwellTime = time.Duration(p.DwellTimeMs) * time.Millisecond
	}
	if p.ScanIntervalMs != 0 {
		cfg.ScanInterval = time.Duration(p.ScanIntervalMs) * time.Millisecond
	}

	st := c.SignalTracking
	if st.HoldMax != 0 {
		cfg.HoldMax = st.HoldMax
	}
	if st.LostThreshold != 0 {
		cfg.LostThreshold = st.LostThreshold
	}
	if st.FrequencyResolutionHz != 0 {
		cfg.FrequencyResolution = st.FrequencyResolutionHz
	}

	cfg.SmoothingEnabled = c.Smoothing.Enabled
	if c.Smoothing.ThresholdHz != 0 {
		cfg.SmoothThreshold = c.Smoothing.ThresholdHz
	}
	if c.Smoothing.KFast != 0 {
		cfg.SmoothKFast = c.Smoothing.KFast
	}
	if c.Smoothing.KSlow != 0 {
		cfg.SmoothKSlow = c.Smoothing.KSlow
	}
	return cfg
}

func (c *ConfigFile) expandBands() []uint32 {
	var freqs []uint32
	for _, band := range c.Frequencies.Bands {
		if !band.Enabled || band.StepHz == 0 {
			continue
		}
		for freq := band.StartHz; freq <= band.EndHz; freq += band.StepHz {
			if IsValidFrequency(freq) {
				freqs = append(freqs, freq)
			}
		}
	}
	return freqs
}
