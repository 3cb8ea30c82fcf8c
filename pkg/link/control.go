package link

import (
	"encoding/binary"
	"fmt"

	"github.com/herlein/bluebox/pkg/protocol"
)

const controlHeaderLen = 8

// Reply status codes
const (
	StatusOK    byte = 0x00
	StatusStall byte = 0x01
)


// EncodeControl packs a control request as
// bmRequestType bRequest wValue wIndex wLength data, little-endian
func EncodeControl(req *protocol.ControlRequest) []byte {
	b := make([]byte, controlHeaderLen, controlHeaderLen+len(req.Data))
	b[0] = req.RequestType
	b[1] = byte(req.Request)
	binary.LittleEndian.PutUint16(b[2:], req.Value)
	binary.LittleEndian.PutUint16(b[4:], req.Index)
	binary.LittleEndian.PutUint16(b[6:], uint16(len(req.Data)))
	if !req.In() {
		b = append(b, req.Data...)
	}
	return b
}

// DecodeControl unpacks a control request. IN requests get a zeroed
// buffer of wLength bytes.
func DecodeControl(b []byte) (*protocol.ControlRequest, error) {
	if len(b) < controlHeaderLen {
		return nil, ErrShortPacket
	}
	req := &protocol.ControlRequest{
		RequestType: b[0],
		Request:     protocol.Request(b[1]),
		Value:       binary.LittleEndian.Uint16(b[2:]),
		Index:       binary.LittleEndian.Uint16(b[4:]),
	}
	length := int(binary.LittleEndian.Uint16(b[6:]))
	if req.In() {
		req.Data = make([]byte, length)
		return req, nil
	}
	data := b[controlHeaderLen:]
	if len(data) != length {
		return nil, fmt.Errorf("%w: wLength %d, got %d bytes", ErrShortPacket, length, len(data))
	}
	req.Data = data
	return req, nil
}

// EncodeReply packs a control reply: status byte, then IN data or the
// stall reason
func EncodeReply(data []byte, err error) []byte {
	if err != nil {
		return append([]byte{StatusStall}, err.Error()...)
	}
	return append([]byte{StatusOK}, data...)
}

// DecodeReply unpacks a control reply
func DecodeReply(b []byte) ([]byte, error) {
	if len(b) < 1 {
		return nil, ErrShortPacket
	}
	if b[0] != StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrStall, b[1:])
	}
	return b[1:], nil
}
