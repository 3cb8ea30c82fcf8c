package link

import "errors"

var (
	// ErrBadChecksum is returned for a packet whose CRC does not match
	ErrBadChecksum = errors.New("link: bad checksum")
	// ErrFrameTooLong is returned when a packet runs past MaxPacket
	ErrFrameTooLong = errors.New("link: packet too long")
	// ErrShortPacket is returned for a packet too short to decode
	ErrShortPacket = errors.New("link: packet too short")
	// ErrClosed is returned after the port has failed or been closed
	ErrClosed = errors.New("link: closed")
	// ErrStall is returned by the client when the device rejects a request
	ErrStall = errors.New("link: request stalled")
)
