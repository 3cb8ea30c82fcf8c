package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/herlein/bluebox/pkg/protocol"
)

// Radio is the part of a bluebox the scanner drives. *bluebox.Device
// satisfies it.
type Radio interface {
	GetFrequency(which uint16) (uint32, error)
	SetFrequency(which uint16, hz uint32) error
	GetIFBW() (uint8, error)
	SetIFBW(class uint8) error
	RSSI() (int, error)
}

// Sample is one RSSI reading
type Sample struct {
	Frequency uint32
	RSSI      int
}

// Scanner sweeps a channel list for activity. The radio's RX frequency
// and IF bandwidth are restored after every pass.
type Scanner struct {
	radio Radio
	log   logrus.FieldLogger

	// Sleep waits out the dwell time; tests replace it
	Sleep func(time.Duration)

	mu       sync.Mutex
	config   *ScanConfig
	running  bool
	tracker  *SignalTracker
	smoother *FrequencySmoother
}

// New creates a Scanner. A nil config uses DefaultConfig.
func New(radio Radio, config *ScanConfig, log logrus.FieldLogger) (*Scanner, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Scanner{radio: radio, log: log, Sleep: time.Sleep}
	if err := s.SetConfig(config); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromConfigFile creates a Scanner from a JSON5 configuration file
func NewFromConfigFile(radio Radio, path string, log logrus.FieldLogger) (*Scanner, error) {
	file, err := LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return New(radio, file.ToScanConfig(), log)
}

// SetConfig validates and installs a configuration. Tracked signals and
// the smoothed estimate are reset.
func (s *Scanner) SetConfig(config *ScanConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
	s.tracker = NewSignalTracker(config.HoldMax, config.LostThreshold, config.FrequencyResolution)
	s.tracker.SetCallbacks(config.OnSignalDetected, config.OnSignalLost)
	s.smoother = nil
	if config.SmoothingEnabled {
		s.smoother = NewFrequencySmoother(config.SmoothThreshold, config.SmoothKFast, config.SmoothKSlow)
	}
	return nil
}

// Config returns the current configuration
func (s *Scanner) Config() *ScanConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// IsRunning reports whether ScanContinuous is active
func (s *Scanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ActiveSignals returns every tracked signal
func (s *Scanner) ActiveSignals() []SignalInfo {
	s.mu.Lock()
	tracker := s.tracker
	s.mu.Unlock()
	return tracker.Signals()
}

// ClearSignalHistory forgets tracked signals and the smoothed estimate
func (s *Scanner) ClearSignalHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.Clear()
	if s.smoother != nil {
		s.smoother.Reset()
	}
}

// ScanOnce performs one cycle: a coarse pass over the channel list and,
// when the strongest channel clears the threshold, a fine pass around it.
func (s *Scanner) ScanOnce() (*ScanResult, error) {
	s.mu.Lock()
	config, tracker, smoother := s.config, s.tracker, s.smoother
	s.mu.Unlock()

	result, err := s.scan(config)
	if err != nil {
		return nil, err
	}

	if result.SignalDetected && smoother != nil {
		raw := result.FineFrequency
		smoother.Update(float64(raw))
		result.FineFrequency = smoother.ValueHz()
		s.log.WithFields(logrus.Fields{
			"raw":      raw,
			"smoothed": result.FineFrequency,
		}).Debug("Smoothed peak")
	}

	tracker.Update(result)
	return result, nil
}

func (s *Scanner) scan(config *ScanConfig) (result *ScanResult, err error) {
	restore, err := s.save()
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := restore(); rerr != nil && err == nil {
			result, err = nil, rerr
		}
	}()

	if err := s.radio.SetIFBW(CoarseIFBandwidth); err != nil {
		return nil, fmt.Errorf("coarse scan failed: %w", err)
	}
	best, err := s.peak(config.Frequencies, config.DwellTime)
	if err != nil {
		return nil, fmt.Errorf("coarse scan failed: %w", err)
	}

	result = &ScanResult{
		CoarseFrequency: best.Frequency,
		CoarseRSSI:      best.RSSI,
		Timestamp:       time.Now(),
		SignalDetected:  best.RSSI >= config.RSSIThreshold,
	}
	if !result.SignalDetected {
		return result, nil
	}

	s.log.WithFields(logrus.Fields{
		"frequency": best.Frequency,
		"rssi":      best.RSSI,
	}).Debug("Coarse hit")

	result.FineFrequency, result.FineRSSI = best.Frequency, best.RSSI
	if config.FineScanRange == 0 {
		return result, nil
	}

	if err := s.radio.SetIFBW(FineIFBandwidth); err != nil {
		return nil, fmt.Errorf("fine scan failed: %w", err)
	}
	fine, err := s.peak(fineChannels(best.Frequency, config.FineScanRange, config.FineScanStep), config.DwellTime)
	if err != nil {
		return nil, fmt.Errorf("fine scan failed: %w", err)
	}
	if fine.RSSI >= best.RSSI {
		result.FineFrequency, result.FineRSSI = fine.Frequency, fine.RSSI
	}
	return result, nil
}

// Sweep reads RSSI at every step from start to stop inclusive using the
// coarse IF filter
func (s *Scanner) Sweep(start, stop, step uint32) (samples []Sample, err error) {
	if step == 0 || stop < start {
		return nil, fmt.Errorf("invalid sweep %d..%d step %d", start, stop, step)
	}
	if !IsValidFrequency(start) || !IsValidFrequency(stop) {
		return nil, fmt.Errorf("%w: %d..%d Hz", ErrFrequencyOutOfRange, start, stop)
	}

	s.mu.Lock()
	dwell := s.config.DwellTime
	s.mu.Unlock()

	restore, err := s.save()
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := restore(); rerr != nil && err == nil {
			samples, err = nil, rerr
		}
	}()

	if err := s.radio.SetIFBW(CoarseIFBandwidth); err != nil {
		return nil, err
	}
	for freq := start; freq <= stop; freq += step {
		sample, err := s.read(freq, dwell)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
		if freq > stop-step {
			break
		}
	}
	return samples, nil
}

// ScanContinuous runs ScanOnce every ScanInterval until ctx is done.
// results is closed on return and a full channel drops the result.
func (s *Scanner) ScanContinuous(ctx context.Context, results chan<- *ScanResult) error {
	defer close(results)

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrScannerRunning
	}
	s.running = true
	interval := s.config.ScanInterval
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		result, err := s.ScanOnce()
		if err != nil {
			s.log.WithError(err).Warn("Scan cycle failed")
			continue
		}
		select {
		case results <- result:
		default:
		}
	}
}

// save records the RX frequency and IF bandwidth and returns a func
// that puts them back
func (s *Scanner) save() (func() error, error) {
	freq, err := s.radio.GetFrequency(protocol.FrequencyRX)
	if err != nil {
		return nil, fmt.Errorf("failed to read RX frequency: %w", err)
	}
	ifbw, err := s.radio.GetIFBW()
	if err != nil {
		return nil, fmt.Errorf("failed to read IF bandwidth: %w", err)
	}
	return func() error {
		if err := s.radio.SetFrequency(protocol.FrequencyRX, freq); err != nil {
			return fmt.Errorf("failed to restore RX frequency: %w", err)
		}
		if err := s.radio.SetIFBW(ifbw); err != nil {
			return fmt.Errorf("failed to restore IF bandwidth: %w", err)
		}
		return nil
	}, nil
}

func (s *Scanner) peak(freqs []uint32, dwell time.Duration) (Sample, error) {
	best := Sample{RSSI: -1 << 31}
	for _, freq := range freqs {
		sample, err := s.read(freq, dwell)
		if err != nil {
			return Sample{}, err
		}
		if sample.RSSI > best.RSSI {
			best = sample
		}
	}
	return best, nil
}

func (s *Scanner) read(freq uint32, dwell time.Duration) (Sample, error) {
	if err := s.radio.SetFrequency(protocol.FrequencyRX, freq); err != nil {
		return Sample{}, fmt.Errorf("tune %d Hz: %w", freq, err)
	}
	s.Sleep(dwell)
	rssi, err := s.radio.RSSI()
	if err != nil {
		return Sample{}, fmt.Errorf("rssi at %d Hz: %w", freq, err)
	}
	return Sample{Frequency: freq, RSSI: rssi}, nil
}

// fineChannels lists centre-span..centre+span in step increments,
// skipping anything the synthesizer cannot tune
func fineChannels(centre, span, step uint32) []uint32 {
	var out []uint32
	lo := centre - span
	if span > centre {
		lo = 0
	}
	for freq := lo; freq <= centre+span; freq += step {
		if IsValidFrequency(freq) {
			out = append(out, freq)
		}
	}
	return out
}
