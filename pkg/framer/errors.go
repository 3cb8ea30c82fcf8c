package framer

import "errors"

var (
	// ErrBusy is returned when a transmit is requested while the engine
	// is assembling, transmitting, or still holding an undrained frame
	ErrBusy = errors.New("frame engine busy")
	// ErrFrameTooLong is returned when a frame does not fit any frame type
	ErrFrameTooLong = errors.New("frame too long")
	// ErrShortBuffer is returned when decoding fewer than WireSize bytes
	ErrShortBuffer = errors.New("buffer shorter than frame wire size")
)
