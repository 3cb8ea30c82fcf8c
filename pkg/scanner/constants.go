// Package scanner sweeps a bluebox across a list of channels and reports
// where it hears energy.
package scanner

import "time"

// ADF7021 tuning ranges with the internal VCO
const (
	LowBandMinHz  uint32 = 80000000
	LowBandMaxHz  uint32 = 650000000
	HighBandMinHz uint32 = 862000000
	HighBandMaxHz uint32 = 940000000
)

// IF filter classes used for the two scan passes
const (
	CoarseIFBandwidth uint8 = 2 // 25 kHz
	FineIFBandwidth   uint8 = 0 // 12.5 kHz
)

// Default scanning parameters
const (
	// DefaultRSSIThreshold is the minimum RSSI for signal detection (dBm)
	DefaultRSSIThreshold = -100

	// DefaultFineScanRange is the range searched either side of a hit (Hz)
	DefaultFineScanRange uint32 = 25000

	// DefaultFineScanStep is the step size for fine scan (Hz)
	DefaultFineScanStep uint32 = 6250

	// DefaultDwellTime is how long the AGC gets before RSSI is read
	DefaultDwellTime = 5 * time.Millisecond

	// DefaultScanInterval is the delay between scan cycles
	DefaultScanInterval = 50 * time.Millisecond
)

// Signal tracking defaults
const (
	DefaultHoldMax                    = 20
	DefaultLostThreshold              = 15
	DefaultFrequencyResolution uint32 = 12500
)

// Frequency smoothing defaults
const (
	DefaultSmoothThreshold float64 = 50000
	DefaultKFast           float64 = 0.9
	DefaultKSlow           float64 = 0.05
)

// DefaultFrequencies covers the 70 cm satellite and packet channels and
// the common ISM centres
var DefaultFrequencies = []uint32{
	144390000, // APRS (NA)
	144800000, // APRS (EU)
	145825000, // ISS packet
	433920000, // LPD433 centre
	435000000,
	436500000,
	437450000, // bluebox default
	437500000,
	438000000,
	868300000, // EU SRD
	915000000, // US ISM
}

// HopperFrequencies is a minimal set for rapid scanning
var HopperFrequencies = []uint32{
	144390000,
	433920000,
	437450000,
	868300000,
	915000000,
}
