package adf7021

import "errors"

var (
	// ErrNoClockSolution is returned when no demodulator clock divider
	// meets the discriminator bandwidth and CDR limits
	ErrNoClockSolution = errors.New("no clock divider satisfies constraints")
	// ErrPoweredOff is returned for operations that need the chip powered
	ErrPoweredOff = errors.New("radio is powered off")
	// ErrNotConfigured is returned when a mode switch happens before the
	// matching direction has been configured
	ErrNotConfigured = errors.New("radio direction not configured")
)
