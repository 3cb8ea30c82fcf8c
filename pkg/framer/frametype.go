package framer

import (
	"fmt"
	"math/bits"
)

// FrameType is one of the two frame length classes
type FrameType uint8

const (
	FrameShort FrameType = iota
	FrameLong
)

// Marker bytes sent after the callsign. They are bitwise complements.
const (
	MarkerShort byte = 0xA6
	MarkerLong  byte = 0x59
)

// Frame sizing constants
const (
	HeaderSize        = 2
	ShortPayloadLimit = 64
	LongPayloadLimit  = 216
	RSParityBytes     = 32
	ConvTailBytes     = 1
	ConvRate          = 2
)

// String returns a human-readable name for the frame type
func (t FrameType) String() string {
	switch t {
	case FrameShort:
		return "SHORT"
	case FrameLong:
		return "LONG"
	}
	return "UNKNOWN"
}

// Marker returns the on-air marker byte for t
func (t FrameType) Marker() byte {
	if t == FrameShort {
		return MarkerShort
	}
	return MarkerLong
}

// PayloadLimit returns the uncoded payload limit for t
func (t FrameType) PayloadLimit() int {
	if t == FrameShort {
		return ShortPayloadLimit
	}
	return LongPayloadLimit
}

// Coding says which external codecs the frame was sized for
type Coding struct {
	ReedSolomon   bool
	Convolutional bool
}

// FrameLength is the on-air body size for a frame type after coding
func FrameLength(t FrameType, c Coding) int {
	n := HeaderSize + t.PayloadLimit()
	if c.ReedSolomon {
		n += RSParityBytes
	}
	if c.Convolutional {
		n = (n + ConvTailBytes) * ConvRate
	}
	return n
}

// FrameTypeFor picks the smallest frame type whose body holds size bytes
func FrameTypeFor(size int, c Coding) (FrameType, error) {
	for _, t := range []FrameType{FrameShort, FrameLong} {
		if size <= FrameLength(t, c) {
			return t, nil
		}
	}
	return FrameLong, fmt.Errorf("%w: %d bytes, longest frame %d", ErrFrameTooLong, size, FrameLength(FrameLong, c))
}

// InferFrameType classifies a received marker by Hamming distance.
// Ties go to FrameLong.
func InferFrameType(marker byte) FrameType {
	short := bits.OnesCount8(marker ^ MarkerShort)
	long := bits.OnesCount8(marker ^ MarkerLong)
	if short < long {
		return FrameShort
	}
	return FrameLong
}

// HammingDistance counts differing bits over the shorter of a and b
func HammingDistance(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	d := 0
	for i := 0; i < n; i++ {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	return d
}
