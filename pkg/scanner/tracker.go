package scanner

import (
	"sync"
	"time"
)

// SignalTracker groups detections by channel and applies hysteresis so
// a signal that drops out for a cycle or two is not reported as lost.
type SignalTracker struct {
	mu          sync.RWMutex
	signals     map[uint32]*SignalInfo // keyed by frequency rounded to resolution
	holdCounter int
	holdMax     int
	lostAt      int
	resolution  uint32

	active    *SignalInfo
	activeKey uint32

	onDetected func(SignalInfo)
	onLost     func(SignalInfo)
}

// NewSignalTracker creates a tracker. holdMax cycles without a hit clear
// the active signal; onLost fires when the counter reaches lostAt.
func NewSignalTracker(holdMax, lostAt int, resolution uint32) *SignalTracker {
	return &SignalTracker{
		signals:    make(map[uint32]*SignalInfo),
		holdMax:    holdMax,
		lostAt:     lostAt,
		resolution: resolution,
	}
}

// SetCallbacks sets the detection callbacks. They run on the scanning
// goroutine and must not call back into the tracker.
func (t *SignalTracker) SetCallbacks(onDetected, onLost func(SignalInfo)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDetected = onDetected
	t.onLost = onLost
}

// Update folds one scan result into the tracked signals
func (t *SignalTracker) Update(result *ScanResult) {
	t.mu.Lock()
	var fire func(SignalInfo)
	var snapshot SignalInfo
	if result.SignalDetected {
		fire, snapshot = t.hit(result)
	} else {
		fire, snapshot = t.miss()
	}
	t.mu.Unlock()

	if fire != nil {
		fire(snapshot)
	}
}

func (t *SignalTracker) hit(result *ScanResult) (func(SignalInfo), SignalInfo) {
	t.holdCounter = t.holdMax
	key := t.round(result.FineFrequency)

	info, ok := t.signals[key]
	if ok {
		info.RawFrequency = result.FineFrequency
		info.RSSI = result.FineRSSI
		info.LastSeen = result.Timestamp
		info.DetectionCount++
		if result.FineRSSI > info.MaxRSSI {
			info.MaxRSSI = result.FineRSSI
		}
	} else {
		info = &SignalInfo{
			Frequency:      result.FineFrequency,
			RawFrequency:   result.FineFrequency,
			RSSI:           result.FineRSSI,
			MaxRSSI:        result.FineRSSI,
			FirstSeen:      result.Timestamp,
			LastSeen:       result.Timestamp,
			DetectionCount: 1,
		}
		t.signals[key] = info
	}

	changed := t.active == nil || key != t.activeKey
	t.active, t.activeKey = info, key
	if changed && t.onDetected != nil {
		return t.onDetected, *info
	}
	return nil, SignalInfo{}
}

func (t *SignalTracker) miss() (func(SignalInfo), SignalInfo) {
	if t.holdCounter == 0 {
		return nil, SignalInfo{}
	}
	t.holdCounter--

	var fire func(SignalInfo)
	var snapshot SignalInfo
	if t.holdCounter == t.lostAt && t.active != nil && t.onLost != nil {
		fire, snapshot = t.onLost, *t.active
	}
	if t.holdCounter == 0 {
		t.active, t.activeKey = nil, 0
	}
	return fire, snapshot
}

func (t *SignalTracker) round(freq uint32) uint32 {
	if t.resolution == 0 {
		return freq
	}
	return (freq + t.resolution/2) / t.resolution * t.resolution
}

// Active returns a copy of the active signal, or nil
func (t *SignalTracker) Active() *SignalInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.active == nil {
		return nil
	}
	info := *t.active
	return &info
}

// Signals returns copies of every tracked signal
func (t *SignalTracker) Signals() []SignalInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SignalInfo, 0, len(t.signals))
	for _, info := range t.signals {
		out = append(out, *info)
	}
	return out
}

// Clear forgets every tracked signal
func (t *SignalTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signals = make(map[uint32]*SignalInfo)
	t.active, t.activeKey = nil, 0
	t.holdCounter = 0
}

// PruneOld removes signals not seen since the given time
func (t *SignalTracker) PruneOld(since time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for key, info := range t.signals {
		if info.LastSeen.Before(since) {
			delete(t.signals, key)
			n++
		}
	}
	return n
}

// HoldCounter returns the current hold counter value
func (t *SignalTracker) HoldCounter() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.holdCounter
}
