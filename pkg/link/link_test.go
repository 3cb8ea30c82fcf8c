package link

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/herlein/bluebox/pkg/framer"
	"github.com/herlein/bluebox/pkg/protocol"
)

func TestEncodeStuffsFlags(t *testing.T) {
	wire := Encode(KindFrame, []byte{0x7e, 0x01, 0x7d})
	if wire[0] != flagSym || wire[len(wire)-1] != flagSym {
		t.Fatalf("missing flags: % x", wire)
	}
	inner := wire[1 : len(wire)-1]
	if bytes.IndexByte(inner, flagSym) >= 0 {
		t.Errorf("unescaped flag inside packet: % x", wire)
	}
	if !bytes.Contains(inner, []byte{0x7d, 0x5e}) || !bytes.Contains(inner, []byte{0x7d, 0x5d}) {
		t.Errorf("missing escapes: % x", wire)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x7e, 0x7d, 0x7e},
		bytes.Repeat([]byte{0xaa}, 512),
	}
	var stream bytes.Buffer
	for _, p := range payloads {
		stream.Write(Encode(KindControl, p))
	}

	dec := NewDecoder(&stream)
	for i, want := range payloads {
		p, err := dec.Decode()
		if err != nil {
			t.Fatalf("packet %d: Decode() = %v", i, err)
		}
		if p.Kind != KindControl || !bytes.Equal(p.Payload, want) {
			t.Errorf("packet %d = %v % x", i, p.Kind, p.Payload)
		}
	}
	if _, err := dec.Decode(); !errors.Is(err, io.EOF) {
		t.Errorf("Decode() at end = %v, want EOF", err)
	}
}

func TestDecodeBadChecksumResyncs(t *testing.T) {
	bad := Encode(KindFrame, []byte{1, 2, 3})
	bad[2] ^= 0xff
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x11}) // line noise before the first flag
	stream.Write(bad)
	stream.Write(Encode(KindFrame, []byte{4, 5}))

	dec := NewDecoder(&stream)
	if _, err := dec.Decode(); !errors.Is(err, ErrBadChecksum) {
		t.Fatalf("Decode() = %v, want ErrBadChecksum", err)
	}
	p, err := dec.Decode()
	if err != nil || !bytes.Equal(p.Payload, []byte{4, 5}) {
		t.Errorf("Decode() after resync = % x, %v", p.Payload, err)
	}
}

func TestDecodeTooLong(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(Encode(KindFrame, bytes.Repeat([]byte{1}, MaxPacket+10)))
	stream.Write(Encode(KindReply, []byte{9}))

	dec := NewDecoder(&stream)
	if _, err := dec.Decode(); !errors.Is(err, ErrFrameTooLong) {
		t.Fatalf("Decode() = %v, want ErrFrameTooLong", err)
	}
	p, err := dec.Decode()
	if err != nil || p.Kind != KindReply {
		t.Errorf("Decode() after overflow = %v, %v", p, err)
	}
}

func TestDecodeShort(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte{flagSym, 0x01, 0x02, flagSym}))
	if _, err := dec.Decode(); !errors.Is(err, ErrShortPacket) {
		t.Errorf("Decode() = %v, want ErrShortPacket", err)
	}
}

func TestControlCodec(t *testing.T) {
	out := &protocol.ControlRequest{
		RequestType: protocol.RequestTypeOut,
		Request:     protocol.RequestFrequency,
		Value:       protocol.FrequencyTX,
		Data:        protocol.PutU32(437450000),
	}
	got, err := DecodeControl(EncodeControl(out))
	if err != nil {
		t.Fatalf("DecodeControl() = %v", err)
	}
	if got.Request != out.Request || got.Value != out.Value || !bytes.Equal(got.Data, out.Data) {
		t.Errorf("DecodeControl() = %+v", got)
	}

	in := &protocol.ControlRequest{
		RequestType: protocol.RequestTypeIn,
		Request:     protocol.RequestSerial,
		Data:        make([]byte, 4),
	}
	encoded := EncodeControl(in)
	if len(encoded) != controlHeaderLen {
		t.Errorf("IN request carries %d bytes, want header only", len(encoded))
	}
	got, err = DecodeControl(encoded)
	if err != nil || !got.In() || len(got.Data) != 4 {
		t.Errorf("DecodeControl(IN) = %+v, %v", got, err)
	}

	if _, err := DecodeControl(encoded[:3]); err == nil {
		t.Error("DecodeControl(short) = nil error")
	}
	truncated := EncodeControl(out)
	if _, err := DecodeControl(truncated[:len(truncated)-1]); err == nil {
		t.Error("DecodeControl(truncated data) = nil error")
	}
}

func TestReplyCodec(t *testing.T) {
	b, err := DecodeReply(EncodeReply([]byte{1, 2}, nil))
	if err != nil || !bytes.Equal(b, []byte{1, 2}) {
		t.Errorf("DecodeReply(ok) = % x, %v", b, err)
	}
	if _, err := DecodeReply(EncodeReply(nil, errors.New("nope"))); !errors.Is(err, ErrStall) {
		t.Errorf("DecodeReply(stall) = %v, want ErrStall", err)
	}
	if _, err := DecodeReply(nil); err == nil {
		t.Error("DecodeReply(empty) = nil error")
	}
}

func TestKindString(t *testing.T) {
	if KindFrame.String() != "FRAME" || Kind(0x99).String() != "UNKNOWN" {
		t.Errorf("unexpected kind names")
	}
}

// pair connects a client and server over an in-memory pipe
func pair(t *testing.T, h Handler) (*Client, *Server, context.CancelFunc) {
	t.Helper()
	hostEnd, deviceEnd := net.Pipe()
	srv := NewServer(deviceEnd, h, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	c := NewClient(hostEnd, nil)
	t.Cleanup(func() {
		cancel()
		deviceEnd.Close()
		c.Close()
	})
	return c, srv, cancel
}

func TestClientServerControl(t *testing.T) {
	var gotValue uint16
	h := HandlerFunc(func(req *protocol.ControlRequest) ([]byte, error) {
		switch req.Request {
		case protocol.RequestSerial:
			return protocol.PutU32(0xdeadbeef), nil
		case protocol.RequestFrequency:
			gotValue = req.Value
			return nil, nil
		}
		return nil, errors.New("unsupported")
	})
	c, _, _ := pair(t, h)

	buf := make([]byte, 4)
	n, err := c.Control(protocol.RequestTypeIn, uint8(protocol.RequestSerial), 0, 0, buf)
	if err != nil || n != 4 {
		t.Fatalf("Control(IN) = %d, %v", n, err)
	}
	if v, _ := protocol.U32(buf); v != 0xdeadbeef {
		t.Errorf("serial = %#x", v)
	}

	if _, err := c.Control(protocol.RequestTypeOut, uint8(protocol.RequestFrequency), protocol.FrequencyRX, 0, protocol.PutU32(1)); err != nil {
		t.Fatalf("Control(OUT) = %v", err)
	}
	if gotValue != protocol.FrequencyRX {
		t.Errorf("handler saw wValue %d", gotValue)
	}

	if _, err := c.Control(protocol.RequestTypeIn, 0x77, 0, 0, buf); !errors.Is(err, ErrStall) {
		t.Errorf("Control(unknown) = %v, want ErrStall", err)
	}
}

func TestClientServerFrames(t *testing.T) {
	c, srv, _ := pair(t, nil)

	var tx framer.FrameBuffer
	if err := tx.SetData([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	wire, _ := tx.MarshalBinary()
	if _, err := c.WriteContext(context.Background(), wire); err != nil {
		t.Fatalf("WriteContext() = %v", err)
	}

	var pulled *framer.FrameBuffer
	deadline := time.Now().Add(time.Second)
	for pulled == nil && time.Now().Before(deadline) {
		if f, ok := srv.PullTxFrame(); ok {
			pulled = f
		}
		time.Sleep(time.Millisecond)
	}
	if pulled == nil || string(pulled.Data()) != "hello" {
		t.Fatalf("PullTxFrame() = %v", pulled)
	}
	if _, ok := srv.PullTxFrame(); ok {
		t.Error("PullTxFrame() on empty queue = true")
	}

	var rx framer.FrameBuffer
	rx.SetData([]byte("world"))
	rx.RSSI = -80
	errc := make(chan error, 1)
	go func() { errc <- srv.PushRxFrame(&rx) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	buf := make([]byte, framer.WireSize)
	n, err := c.ReadContext(ctx, buf)
	if err != nil {
		t.Fatalf("ReadContext() = %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("PushRxFrame() = %v", err)
	}
	var got framer.FrameBuffer
	if err := got.UnmarshalBinary(buf[:n]); err != nil {
		t.Fatal(err)
	}
	if string(got.Data()) != "world" || got.RSSI != -80 {
		t.Errorf("received %+v", got)
	}
}

func TestClientTimeout(t *testing.T) {
	hostEnd, deviceEnd := net.Pipe()
	defer deviceEnd.Close()
	go io.Copy(io.Discard, deviceEnd) // device never answers

	c := NewClient(hostEnd, nil)
	defer c.Close()
	c.Timeout = 20 * time.Millisecond

	if _, err := c.Control(protocol.RequestTypeIn, uint8(protocol.RequestSerial), 0, 0, make([]byte, 4)); err == nil {
		t.Error("Control() = nil error, want timeout")
	}
}

func TestClientClosed(t *testing.T) {
	hostEnd, deviceEnd := net.Pipe()
	c := NewClient(hostEnd, nil)
	deviceEnd.Close()
	c.Close()

	if _, err := c.ReadContext(context.Background(), make([]byte, 8)); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadContext() after close = %v, want ErrClosed", err)
	}
}
