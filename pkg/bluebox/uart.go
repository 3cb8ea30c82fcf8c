package bluebox

import (
	"fmt"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"

	"github.com/herlein/bluebox/pkg/link"
)

// OpenSerialDevice opens a bluebox attached over a UART link. The same
// request set is available as over USB.
func OpenSerialDevice(port string, baud int, log logrus.FieldLogger) (*Device, error) {
	p, err := link.OpenPort(port, baud)
	if err != nil {
		return nil, err
	}
	client := link.NewClient(p, log)

	device := &Device{
		closer:       client,
		control:      client.Control,
		bulkIn:       client.ReadContext,
		bulkOut:      client.WriteContext,
		Manufacturer: "bluebox",
		Product:      "UART " + port,
		Timeout:      DefaultTimeout,
	}

	serial, err := device.GetSerial()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("no bluebox on %s: %w", port, err)
	}
	device.Serial = fmt.Sprintf("%08x", serial)
	device.flushStale()

	return device, nil
}

// Connect opens the bluebox on port when one is given, otherwise the
// USB device matching selector
func Connect(context *gousb.Context, selector DeviceSelector, port string, baud int) (*Device, error) {
	if port != "" {
		if baud == 0 {
			baud = link.DefaultBaudRate
		}
		return OpenSerialDevice(port, baud, logrus.StandardLogger())
	}
	return SelectDevice(context, selector)
}
