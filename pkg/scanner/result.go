package scanner

import "time"

// ScanResult holds the result of a single scan cycle
type ScanResult struct {
	// strongest channel in the coarse pass
	CoarseFrequency uint32
	CoarseRSSI      int

	// refined peak, only set when a signal was detected
	FineFrequency uint32
	FineRSSI      int

	Timestamp      time.Time
	SignalDetected bool
}

// SignalInfo is a detected signal with history
type SignalInfo struct {
	Frequency      uint32 // smoothed
	RawFrequency   uint32 // last measured
	RSSI           int
	MaxRSSI        int
	FirstSeen      time.Time
	LastSeen       time.Time
	DetectionCount uint32
}

// IsValidFrequency reports whether the ADF7021 can tune freq
func IsValidFrequency(freq uint32) bool {
	return (freq >= LowBandMinHz && freq <= LowBandMaxHz) ||
		(freq >= HighBandMinHz && freq <= HighBandMaxHz)
}

// FrequencyBand returns the amateur or ISM band name for freq
func FrequencyBand(freq uint32) string {
	switch {
	case freq >= 144000000 && freq <= 148000000:
		return "2m"
	case freq >= 420000000 && freq <= 450000000:
		return "70cm"
	case freq >= 863000000 && freq <= 870000000:
		return "SRD860"
	case freq >= 902000000 && freq <= 928000000:
		return "ISM900"
	case IsValidFrequency(freq):
		return "other"
	}
	return "unknown"
}
