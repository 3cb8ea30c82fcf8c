// Package protocol defines the control requests exchanged between a host
// and a bluebox, and the byte layout of their payloads.
//
// Requests are USB class requests addressed to interface 0. The same
// request numbers and payloads are carried over the UART link.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// USB identity
const (
	VendorID  = 0x1d50
	ProductID = 0x6054

	// DFU bootloader identity after REQUEST_DFU
	BootloaderVendorID  = 0x03eb
	BootloaderProductID = 0x2ff4
)

// Bulk endpoints
const (
	EndpointDataIn  = 1 // 0x81
	EndpointDataOut = 2 // 0x02
)

// bmRequestType for class requests to an interface
const (
	RequestTypeOut uint8 = 0x21
	RequestTypeIn  uint8 = 0xA1
	directionIn    uint8 = 0x80
)

// Request is a control request number
type Request uint8

const (
	RequestRegister   Request = 0x01
	RequestFrequency  Request = 0x02
	RequestModIndex   Request = 0x03
	RequestCSMARSSI   Request = 0x04
	RequestPower      Request = 0x05
	RequestAFC        Request = 0x06
	RequestIFBW       Request = 0x07
	RequestTraining   Request = 0x08
	RequestSyncWord   Request = 0x09
	RequestRxTxMode   Request = 0x0A
	RequestBitrate    Request = 0x0B
	RequestTxBuffer   Request = 0x0C
	RequestRxBuffer   Request = 0x0D
	RequestSerial     Request = 0x0E
	RequestFWRevision Request = 0x0F
	RequestReset      Request = 0xFE
	RequestDFU        Request = 0xFF
)

// String returns a human-readable name for the request
func (r Request) String() string {
	names := map[Request]string{
		RequestRegister:   "REGISTER",
		RequestFrequency:  "FREQUENCY",
		RequestModIndex:   "MODINDEX",
		RequestCSMARSSI:   "CSMA_RSSI",
		RequestPower:      "POWER",
		RequestAFC:        "AFC",
		RequestIFBW:       "IFBW",
		RequestTraining:   "TRAINING",
		RequestSyncWord:   "SYNCWORD",
		RequestRxTxMode:   "RXTX_MODE",
		RequestBitrate:    "BITRATE",
		RequestTxBuffer:   "TX_BUFFER",
		RequestRxBuffer:   "RX_BUFFER",
		RequestSerial:     "SERIAL",
		RequestFWRevision: "FW_REVISION",
		RequestReset:      "RESET",
		RequestDFU:        "DFU",
	}
	if name, ok := names[r]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(r))
}

// wIndex selectors for RequestFrequency
const (
	FrequencyBoth uint16 = 0
	FrequencyRX   uint16 = 1
	FrequencyTX   uint16 = 2
)

// wValue for RequestRxTxMode
const (
	ModeRX uint16 = 0
	ModeTX uint16 = 1
)

// ErrShortPayload is returned when a payload is smaller than its layout
var ErrShortPayload = errors.New("payload too short")

// ControlRequest is one decoded control transfer
type ControlRequest struct {
	RequestType uint8
	Request     Request
	Value       uint16
	Index       uint16
	Data        []byte // OUT payload, or IN buffer sized to wLength
}

// In reports whether data flows device to host
func (c ControlRequest) In() bool {
	return c.RequestType&directionIn != 0
}

// String returns a short description for logs
func (c ControlRequest) String() string {
	dir := "OUT"
	if c.In() {
		dir = "IN"
	}
	return fmt.Sprintf("%s %s wValue=0x%04x wIndex=%d len=%d", dir, c.Request, c.Value, c.Index, len(c.Data))
}

// AFC is the RequestAFC payload: enable, range, ki, kp
type AFC struct {
	Enable bool
	Range  uint8
	KI     uint8
	KP     uint8
}

// MarshalBinary encodes the 4-byte layout
func (a AFC) MarshalBinary() ([]byte, error) {
	en := uint8(0)
	if a.Enable {
		en = 1
	}
	return []byte{en, a.Range, a.KI, a.KP}, nil
}

// UnmarshalBinary decodes the 4-byte layout
func (a *AFC) UnmarshalBinary(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("%w: AFC needs 4 bytes, got %d", ErrShortPayload, len(b))
	}
	a.Enable = b[0] != 0
	a.Range = b[1]
	a.KI = b[2]
	a.KP = b[3]
	return nil
}

// SyncWord is the RequestSyncWord payload: u32 word, length class, tolerance
type SyncWord struct {
	Word      uint32
	Length    uint8
	Tolerance uint8
}

// MarshalBinary encodes the 6-byte layout
func (s SyncWord) MarshalBinary() ([]byte, error) {
	b := make([]byte, 6)
	binary.LittleEndian.PutUint32(b, s.Word)
	b[4] = s.Length
	b[5] = s.Tolerance
	return b, nil
}

// UnmarshalBinary decodes the 6-byte layout
func (s *SyncWord) UnmarshalBinary(b []byte) error {
	if len(b) < 6 {
		return fmt.Errorf("%w: sync word needs 6 bytes, got %d", ErrShortPayload, len(b))
	}
	s.Word = binary.LittleEndian.Uint32(b)
	s.Length = b[4]
	s.Tolerance = b[5]
	return nil
}

// PutU8 encodes a one-byte payload
func PutU8(v uint8) []byte {
	return []byte{v}
}

// PutU16 encodes a little-endian two-byte payload
func PutU16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// PutI16 encodes a signed two-byte payload
func PutI16(v int16) []byte {
	return PutU16(uint16(v))
}

// PutU32 encodes a little-endian four-byte payload
func PutU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// U8 decodes a one-byte payload
func U8(b []byte) (uint8, error) {
	if len(b) < 1 {
		return 0, fmt.Errorf("%w: need 1 byte", ErrShortPayload)
	}
	return b[0], nil
}

// U16 decodes a two-byte payload
func U16(b []byte) (uint16, error) {
	if len(b) < 2 {
		return 0, fmt.Errorf("%w: need 2 bytes, got %d", ErrShortPayload, len(b))
	}
	return binary.LittleEndian.Uint16(b), nil
}

// I16 decodes a signed two-byte payload
func I16(b []byte) (int16, error) {
	v, err := U16(b)
	return int16(v), err
}

// U32 decodes a four-byte payload
func U32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("%w: need 4 bytes, got %d", ErrShortPayload, len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}
