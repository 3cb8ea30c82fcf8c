package scanner

import "errors"

// Scanner errors
var (
	// ErrScannerRunning indicates the scanner is already running
	ErrScannerRunning = errors.New("scanner is already running")

	// ErrFrequencyOutOfRange indicates a frequency the ADF7021 cannot tune
	ErrFrequencyOutOfRange = errors.New("frequency out of tuning range")

	// ErrNoFrequencies indicates no frequencies were specified for scanning
	ErrNoFrequencies = errors.New("no frequencies specified for scanning")

	// ErrInvalidThreshold indicates an invalid RSSI threshold
	ErrInvalidThreshold = errors.New("RSSI threshold must be negative (dBm)")

	// ErrInvalidDwellTime indicates an invalid dwell time
	ErrInvalidDwellTime = errors.New("dwell time must be between 1-100 ms")

	// ErrConfigVersion indicates unsupported config file version
	ErrConfigVersion = errors.New("unsupported configuration version")
)
