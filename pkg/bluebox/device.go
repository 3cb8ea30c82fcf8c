package bluebox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/gousb"

	"github.com/herlein/bluebox/pkg/framer"
	"github.com/herlein/bluebox/pkg/protocol"
)

// DefaultTimeout bounds control and bulk transfers
const DefaultTimeout = 1 * time.Second

type controlFunc func(requestType uint8, request uint8, value uint16, index uint16, data []byte) (int, error)
type bulkFunc func(ctx context.Context, buf []byte) (int, error)

// Device is a bluebox reached over USB or a UART link. Both carry the
// same class requests and 512-byte frame transfers.
type Device struct {
	closer  io.Closer
	control controlFunc
	bulkIn  bulkFunc
	bulkOut bulkFunc

	Serial       string
	Manufacturer string
	Product      string
	Bus          int
	Address      int
	Timeout      time.Duration
}

// usbHandle releases a claimed interface in reverse order of acquisition
type usbHandle struct {
	dev   *gousb.Device
	cfg   *gousb.Config
	iface *gousb.Interface
}

func (h *usbHandle) Close() error {
	if h.iface != nil {
		h.iface.Close()
	}
	if h.cfg != nil {
		h.cfg.Close()
	}
	return h.dev.Close()
}

func isBluebox(desc *gousb.DeviceDesc) bool {
	return desc.Vendor == gousb.ID(protocol.VendorID) && desc.Product == gousb.ID(protocol.ProductID)
}

// FindAllDevices opens every attached bluebox. Devices that cannot be
// claimed are skipped.
func FindAllDevices(context *gousb.Context) ([]*Device, error) {
	found, err := context.OpenDevices(isBluebox)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	var devices []*Device
	for _, dev := range found {
		if d, err := claim(dev); err == nil {
			devices = append(devices, d)
		}
	}
	return devices, nil
}

// OpenDevice opens the first bluebox. A non-empty serial must match.
func OpenDevice(context *gousb.Context, serial string) (*Device, error) {
	dev, err := context.OpenDeviceWithVIDPID(gousb.ID(protocol.VendorID), gousb.ID(protocol.ProductID))
	switch {
	case err != nil:
		return nil, fmt.Errorf("failed to open device: %w", err)
	case dev == nil:
		return nil, fmt.Errorf("no bluebox attached")
	}

	d, err := claim(dev)
	if err != nil {
		return nil, err
	}
	if serial != "" && d.Serial != serial {
		d.Close()
		return nil, fmt.Errorf("device serial mismatch: wanted %s, got %s", serial, d.Serial)
	}
	return d, nil
}

// claim takes interface 0 and the two data endpoints. dev is closed on
// failure.
func claim(dev *gousb.Device) (*Device, error) {
	h := &usbHandle{dev: dev}
	fail := func(what string, err error) (*Device, error) {
		h.Close()
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}

	dev.SetAutoDetach(true)
	var err error
	if h.cfg, err = dev.Config(1); err != nil {
		return fail("select configuration", err)
	}
	if h.iface, err = h.cfg.Interface(0, 0); err != nil {
		return fail("claim interface", err)
	}
	in, err := h.iface.InEndpoint(protocol.EndpointDataIn)
	if err != nil {
		return fail("open RX frame endpoint", err)
	}
	out, err := h.iface.OutEndpoint(protocol.EndpointDataOut)
	if err != nil {
		return fail("open TX frame endpoint", err)
	}

	d := &Device{
		closer:  h,
		control: dev.Control,
		bulkIn:  in.ReadContext,
		bulkOut: out.WriteContext,
		Bus:     dev.Desc.Bus,
		Address: dev.Desc.Address,
		Timeout: DefaultTimeout,
	}
	d.Manufacturer, _ = dev.Manufacturer()
	d.Product, _ = dev.Product()
	d.Serial, _ = dev.SerialNumber()

	d.flushStale()
	return d, nil
}

// Close releases the device
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// flushStale discards frames queued before this session opened
func (d *Device) flushStale() {
	buf := make([]byte, framer.WireSize)
	for range 5 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		n, err := d.bulkIn(ctx, buf)
		cancel()
		if err != nil || n == 0 {
			return
		}
	}
}

// String describes the device for CLI output
func (d *Device) String() string {
	return fmt.Sprintf("%s %s (Serial: %s)", d.Manufacturer, d.Product, d.Serial)
}

// Control performs a raw control transfer on EP0
func (d *Device) Control(requestType uint8, request uint8, value uint16, index uint16, data []byte) (int, error) {
	return d.control(requestType, request, value, index, data)
}

// controlOut sends a class request with an OUT payload
func (d *Device) controlOut(req protocol.Request, value, index uint16, data []byte) error {
	n, err := d.control(protocol.RequestTypeOut, uint8(req), value, index, data)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", req, err)
	}
	if n != len(data) {
		return fmt.Errorf("short write on %s: wrote %d of %d bytes", req, n, len(data))
	}
	return nil
}

// controlIn reads length bytes from a class request
func (d *Device) controlIn(req protocol.Request, value, index uint16, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := d.control(protocol.RequestTypeIn, uint8(req), value, index, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", req, err)
	}
	if n < length {
		return nil, fmt.Errorf("short read on %s: got %d of %d bytes", req, n, length)
	}
	return buf, nil
}
