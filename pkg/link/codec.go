// Package link carries bluebox frames and control requests over a UART.
//
// Packets are byte stuffed between 0x7E flags and end in a big-endian
// CRC-16/CCITT-FALSE over the kind byte and payload:
//
//	7E kind payload... crcHi crcLo 7E
package link

import (
	"bufio"
	"errors"
	"io"

	"github.com/sigurn/crc16"
)

const (
	flagSym   byte = 0x7e
	escapeSym byte = 0x7d
	escapeXOR byte = 0x20
)

// MaxPacket bounds the unstuffed size of one packet
const MaxPacket = 1024

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Kind identifies the packet payload
type Kind uint8

// Packet kinds
const (
	KindFrame   Kind = 0x01 // 512-byte frame record, either direction
	KindControl Kind = 0x02 // control request, host to device
	KindReply   Kind = 0x03 // control reply, device to host
)

var kindNames = map[Kind]string{
	KindFrame:   "FRAME",
	KindControl: "CONTROL",
	KindReply:   "REPLY",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// Packet is one decoded link packet
type Packet struct {
	Kind    Kind
	Payload []byte
}

// Encode returns the stuffed wire form of a packet
func Encode(kind Kind, payload []byte) []byte {
	raw := make([]byte, 0, len(payload)+3)
	raw = append(raw, byte(kind))
	raw = append(raw, payload...)
	crc := crc16.Checksum(raw, crcTable)
	raw = append(raw, byte(crc>>8), byte(crc))

	out := make([]byte, 0, len(raw)+len(raw)/8+2)
	out = append(out, flagSym)
	for _, b := range raw {
		if b == flagSym || b == escapeSym {
			out = append(out, escapeSym, b^escapeXOR)
			continue
		}
		out = append(out, b)
	}
	return append(out, flagSym)
}

// Decoder reads packets from a byte stream
type Decoder struct {
	r      *bufio.Reader
	synced bool // a flag has been seen
}

// NewDecoder returns a decoder reading from r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode returns the next packet. ErrBadChecksum, ErrFrameTooLong and
// ErrShortPacket are recoverable: the decoder resynchronizes on the
// next flag.
func (d *Decoder) Decode() (Packet, error) {
	buf := make([]byte, 0, 64)
	escaped := false
	overflow := false
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return Packet{}, err
		}
		if !d.synced {
			d.synced = b == flagSym
			continue
		}
		switch {
		case b == flagSym:
			if overflow {
				return Packet{}, ErrFrameTooLong
			}
			if len(buf) == 0 {
				escaped = false
				continue
			}
			return unpack(buf)
		case overflow:
		case b == escapeSym:
			escaped = true
		default:
			if escaped {
				b ^= escapeXOR
				escaped = false
			}
			if len(buf) == MaxPacket {
				overflow = true
				continue
			}
			buf = append(buf, b)
		}
	}
}

func unpack(raw []byte) (Packet, error) {
	if len(raw) < 3 {
		return Packet{}, ErrShortPacket
	}
	body := raw[:len(raw)-2]
	want := uint16(raw[len(raw)-2])<<8 | uint16(raw[len(raw)-1])
	if crc16.Checksum(body, crcTable) != want {
		return Packet{}, ErrBadChecksum
	}
	return Packet{Kind: Kind(body[0]), Payload: append([]byte(nil), body[1:]...)}, nil
}

// recoverable reports whether Decode can continue after err
func recoverable(err error) bool {
	return errors.Is(err, ErrBadChecksum) || errors.Is(err, ErrFrameTooLong) || errors.Is(err, ErrShortPacket)
}
