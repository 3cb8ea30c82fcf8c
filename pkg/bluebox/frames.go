package bluebox

import (
	"context"
	"fmt"
	"time"

	"github.com/herlein/bluebox/pkg/framer"
	"github.com/herlein/bluebox/pkg/protocol"
)

// Transmit queues data for transmission
func (d *Device) Transmit(data []byte) error {
	var f framer.FrameBuffer
	if err := f.SetData(data); err != nil {
		return err
	}
	return d.TransmitFrame(&f)
}

// TransmitFrame writes a full frame record to the data OUT endpoint
func (d *Device) TransmitFrame(f *framer.FrameBuffer) error {
	packet, err := f.MarshalBinary()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()
	n, err := d.bulkOut(ctx, packet)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("write timeout: %w", err)
		}
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if n != len(packet) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(packet))
	}
	return nil
}

// Receive waits up to timeout for a frame from the data IN endpoint
func (d *Device) Receive(timeout time.Duration) (*framer.FrameBuffer, error) {
	if timeout == 0 {
		timeout = d.timeout()
	}
	buf := make([]byte, framer.WireSize)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := d.bulkIn(ctx, buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("timeout waiting for frame: %w", err)
		}
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}

	var f framer.FrameBuffer
	if err := f.UnmarshalBinary(buf[:n]); err != nil {
		return nil, err
	}
	return &f, nil
}

// ReceiveLoop sends received frames to frames until stop is closed
func (d *Device) ReceiveLoop(timeout time.Duration, frames chan<- *framer.FrameBuffer, stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		f, err := d.Receive(timeout)
		if err != nil {
			continue
		}

		select {
		case frames <- f:
		case <-stop:
			return nil
		}
	}
}

func (d *Device) timeout() time.Duration {
	if d.Timeout == 0 {
		return DefaultTimeout
	}
	return d.Timeout
}

// ReadRXBuffer fetches the next received frame through EP0 instead of
// the bulk endpoint. An empty frame means nothing was pending.
func (d *Device) ReadRXBuffer() (*framer.FrameBuffer, error) {
	b, err := d.controlIn(protocol.RequestRxBuffer, 0, 0, framer.WireSize)
	if err != nil {
		return nil, err
	}
	var f framer.FrameBuffer
	if err := f.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return &f, nil
}

// WriteTXBuffer queues a frame through EP0
func (d *Device) WriteTXBuffer(f *framer.FrameBuffer) error {
	b, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	return d.controlOut(protocol.RequestTxBuffer, 0, 0, b)
}
