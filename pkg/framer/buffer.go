package framer

import (
	"encoding/binary"
	"fmt"
)

const (
	// PayloadCapacity is the largest body a FrameBuffer can hold
	PayloadCapacity = 502
	// WireSize is the encoded size of a FrameBuffer on the host link
	WireSize = 512

	headerLen = WireSize - PayloadCapacity
)

// Frame flags
const (
	FlagReady uint8 = 1 << 0 // frame complete, waiting for the host
)

// FrameBuffer is one frame in flight. Size is the number of body bytes
// expected, Progress how many have been moved so far.
type FrameBuffer struct {
	Size     uint16
	Progress uint16
	RSSI     int16 // dBm at sync detect
	Freq     int16 // AFC offset in Hz at sync detect
	Flags    uint8
	Training uint8 // training bytes still to send
	Payload  [PayloadCapacity]byte
}

// Data returns the valid part of the payload
func (f *FrameBuffer) Data() []byte {
	n := int(f.Size)
	if n > PayloadCapacity {
		n = PayloadCapacity
	}
	return f.Payload[:n]
}

// SetData copies data into the payload and sets Size
func (f *FrameBuffer) SetData(data []byte) error {
	if len(data) > PayloadCapacity {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrFrameTooLong, len(data), PayloadCapacity)
	}
	f.Payload = [PayloadCapacity]byte{}
	copy(f.Payload[:], data)
	f.Size = uint16(len(data))
	f.Progress = 0
	return nil
}

// Ready reports whether the frame is complete
func (f *FrameBuffer) Ready() bool {
	return f.Flags&FlagReady != 0
}

// MarshalBinary encodes the frame as the 512-byte little-endian record
// exchanged with the host
func (f *FrameBuffer) MarshalBinary() ([]byte, error) {
	b := make([]byte, WireSize)
	binary.LittleEndian.PutUint16(b[0:], f.Size)
	binary.LittleEndian.PutUint16(b[2:], f.Progress)
	binary.LittleEndian.PutUint16(b[4:], uint16(f.RSSI))
	binary.LittleEndian.PutUint16(b[6:], uint16(f.Freq))
	b[8] = f.Flags
	b[9] = f.Training
	copy(b[headerLen:], f.Payload[:])
	return b, nil
}

// UnmarshalBinary decodes a 512-byte record
func (f *FrameBuffer) UnmarshalBinary(b []byte) error {
	if len(b) < WireSize {
		return fmt.Errorf("%w: got %d bytes", ErrShortBuffer, len(b))
	}
	f.Size = binary.LittleEndian.Uint16(b[0:])
	f.Progress = binary.LittleEndian.Uint16(b[2:])
	f.RSSI = int16(binary.LittleEndian.Uint16(b[4:]))
	f.Freq = int16(binary.LittleEndian.Uint16(b[6:]))
	f.Flags = b[8]
	f.Training = b[9]
	copy(f.Payload[:], b[headerLen:WireSize])
	if f.Size > PayloadCapacity {
		return fmt.Errorf("%w: size field %d", ErrFrameTooLong, f.Size)
	}
	return nil
}
