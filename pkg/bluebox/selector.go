package bluebox

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/gousb"
)

// DeviceSelector specifies how to identify a bluebox
// Supported formats:
//   - ""           : Use first available device
//   - "serial"     : Match by serial number (e.g., "11223344")
//   - "bus:addr"   : Match by USB bus and address (e.g., "1:10")
//   - "#N"         : Use Nth device, 0-indexed (e.g., "#0", "#1")
type DeviceSelector string

// selection is a parsed DeviceSelector
type selection struct {
	index  int // -1 when unused
	bus    int
	addr   int
	serial string
}

func (s selection) byLocation() bool {
	return s.bus > 0
}

// parse validates the selector without touching USB
func (s DeviceSelector) parse() (selection, error) {
	sel := string(s)
	out := selection{index: -1}

	switch {
	case sel == "":
		out.index = 0

	case strings.HasPrefix(sel, "#"):
		index, err := strconv.Atoi(sel[1:])
		if err != nil || index < 0 {
			return out, fmt.Errorf("invalid device index: %s", sel)
		}
		out.index = index

	case strings.Contains(sel, ":"):
		parts := strings.SplitN(sel, ":", 2)
		bus, err := strconv.Atoi(parts[0])
		if err != nil || bus <= 0 {
			return out, fmt.Errorf("invalid bus number: %s", parts[0])
		}
		addr, err := strconv.Atoi(parts[1])
		if err != nil {
			return out, fmt.Errorf("invalid address number: %s", parts[1])
		}
		out.bus, out.addr = bus, addr

	default:
		out.serial = sel
	}
	return out, nil
}

// SelectDevice opens the bluebox matching the selector. Every other
// device opened during the search is closed again.
func SelectDevice(context *gousb.Context, selector DeviceSelector) (*Device, error) {
	sel, err := selector.parse()
	if err != nil {
		return nil, err
	}

	devices, err := FindAllDevices(context)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no bluebox devices found")
	}

	keep, err := sel.pick(devices)
	for i, d := range devices {
		if err != nil || i != keep {
			d.Close()
		}
	}
	if err != nil {
		return nil, err
	}
	return devices[keep], nil
}

// Pick returns the device in devices matching the selector. Nothing is
// opened or closed.
func (s DeviceSelector) Pick(devices []*Device) (*Device, error) {
	sel, err := s.parse()
	if err != nil {
		return nil, err
	}
	i, err := sel.pick(devices)
	if err != nil {
		return nil, err
	}
	return devices[i], nil
}

// pick returns the index of the matching device
func (s selection) pick(devices []*Device) (int, error) {
	if s.index >= 0 {
		if s.index >= len(devices) {
			return -1, fmt.Errorf("device index %d out of range (found %d devices)", s.index, len(devices))
		}
		return s.index, nil
	}

	match := -1
	for i, d := range devices {
		var hit bool
		if s.byLocation() {
			hit = d.Bus == s.bus && d.Address == s.addr
		} else {
			hit = d.Serial == s.serial
		}
		if !hit {
			continue
		}
		if match >= 0 {
			return -1, fmt.Errorf("multiple devices found with serial %s; use bus:addr format (e.g., 1:10) or index format (e.g., #0)", s.serial)
		}
		match = i
	}

	if match < 0 {
		if s.byLocation() {
			return -1, fmt.Errorf("no bluebox found at bus %d address %d", s.bus, s.addr)
		}
		return -1, fmt.Errorf("no bluebox found with serial %s", s.serial)
	}
	return match, nil
}

// DeviceFlagUsage returns the usage string for the -d flag
func DeviceFlagUsage() string {
	return `Device selector. Formats:
    ""        - Use first available device
    "serial"  - Match by serial number (e.g., "11223344")
    "bus:addr"- Match by USB location (e.g., "1:10")
    "#N"      - Use Nth device, 0-indexed (e.g., "#0", "#1")`
}
