package link

import (
	"fmt"

	"go.bug.st/serial"
)

// DefaultBaudRate is the UART speed of the bluebox host link
const DefaultBaudRate = 115200

// OpenPort opens a UART in 8N1 mode
func OpenPort(name string, baud int) (serial.Port, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return port, nil
}

// ListPorts returns the names of the serial ports on this host
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
