package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/herlein/bluebox/pkg/protocol"
)


// Client is the host end of the link. Its methods match the control and
// bulk transfer shapes of a USB device handle.
type Client struct {
	port    io.ReadWriteCloser
	log     logrus.FieldLogger
	Timeout time.Duration

	requestMu sync.Mutex // one control request in flight
	writeMu   sync.Mutex
	replies   chan []byte
	frames    chan []byte
	done      chan struct{}
	err       error
}

// NewClient starts reading from port
func NewClient(port io.ReadWriteCloser, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Client{
		port:    port,
		log:     log,
		Timeout: time.Second,
		replies: make(chan []byte, 1),
		frames:  make(chan []byte, DefaultQueueDepth),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.done)
	dec := NewDecoder(c.port)
	for {
		p, err := dec.Decode()
		if recoverable(err) {
			c.log.WithError(err).Warn("dropping corrupt packet")
			continue
		}
		if err != nil {
			c.err = err
			return
		}
		switch p.Kind {
		case KindReply:
			select {
			case c.replies <- p.Payload:
			default:
				c.log.Warn("dropping unsolicited reply")
			}
		case KindFrame:
			select {
			case c.frames <- p.Payload:
			default:
				c.log.Warn("receive queue full, dropping frame")
			}
		default:
			c.log.WithField("kind", p.Kind).Warn("unexpected packet")
		}
	}
}

func (c *Client) write(kind Kind, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.port.Write(Encode(kind, payload))
	return err
}

// Control performs one control request. For IN requests the reply is
// copied into data.
func (c *Client) Control(requestType uint8, request uint8, value uint16, index uint16, data []byte) (int, error) {
	c.requestMu.Lock()
	defer c.requestMu.Unlock()

	req := &protocol.ControlRequest{
		RequestType: requestType,
		Request:     protocol.Request(request),
		Value:       value,
		Index:       index,
		Data:        data,
	}
	select {
	case <-c.replies:
		c.log.Debug("discarding stale reply")
	default:
	}
	if err := c.write(KindControl, EncodeControl(req)); err != nil {
		return 0, fmt.Errorf("failed to send %s: %w", req.Request, err)
	}

	timer := time.NewTimer(c.Timeout)
	defer timer.Stop()
	select {
	case reply := <-c.replies:
		b, err := DecodeReply(reply)
		if err != nil {
			return 0, err
		}
		if req.In() {
			return copy(data, b), nil
		}
		return len(data), nil
	case <-timer.C:
		return 0, fmt.Errorf("%s: no reply after %v", req.Request, c.Timeout)
	case <-c.done:
		return 0, c.closed()
	}
}

// ReadContext waits for a received frame record
func (c *Client) ReadContext(ctx context.Context, buf []byte) (int, error) {
	select {
	case b := <-c.frames:
		return copy(buf, b), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.done:
		return 0, c.closed()
	}
}

// WriteContext sends a frame record for transmission
func (c *Client) WriteContext(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := c.write(KindFrame, buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

// closed must only be called once done is closed
func (c *Client) closed() error {
	if c.err != nil && !errors.Is(c.err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrClosed, c.err)
	}
	return ErrClosed
}

// Close closes the port and waits for the reader to stop
func (c *Client) Close() error {
	err := c.port.Close()
	<-c.done
	return err
}
