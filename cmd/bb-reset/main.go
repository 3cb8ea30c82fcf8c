// bb-reset resets bluebox devices to recover from USB errors. With -radio
// the radio is soft-reset through the control interface instead.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/gousb"

	"github.com/herlein/bluebox/pkg/bluebox"
	"github.com/herlein/bluebox/pkg/protocol"
)

func main() {
	radio := flag.Bool("radio", false, "Soft-reset the radio instead of the USB device")
	deviceSel := flag.String("d", "", bluebox.DeviceFlagUsage())
	port := flag.String("port", "", "Serial port of a UART-attached device (used with -radio)")
	flag.Parse()

	ctx := gousb.NewContext()
	defer ctx.Close()

	if *radio {
		resetRadio(ctx, *deviceSel, *port)
		return
	}

	for attempt := 0; attempt < 3; attempt++ {
		devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
			return desc.Vendor == gousb.ID(protocol.VendorID) && desc.Product == gousb.ID(protocol.ProductID)
		})

		if err != nil {
			fmt.Printf("Attempt %d: Error finding devices: %v\n", attempt+1, err)
			time.Sleep(time.Second)
			continue
		}

		if len(devs) == 0 {
			fmt.Printf("Attempt %d: No devices found\n", attempt+1)
			time.Sleep(time.Second)
			continue
		}

		fmt.Printf("Found %d device(s)\n", len(devs))
		for i, dev := range devs {
			serial, _ := dev.SerialNumber()
			fmt.Printf("  Device %d: %s\n", i, serial)

			if err := dev.Reset(); err != nil {
				fmt.Printf("    Reset failed: %v\n", err)
			} else {
				fmt.Printf("    Reset OK\n")
			}
			dev.Close()
		}
		os.Exit(0)
	}

	fmt.Println("Failed to find/reset devices after 3 attempts")
	os.Exit(1)
}

func resetRadio(ctx *gousb.Context, selector, port string) {
	device, err := bluebox.Connect(ctx, bluebox.DeviceSelector(selector), port, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer device.Close()

	device.Reset()
	// power cycle plus reconfigure takes a little over 100 ms
	time.Sleep(200 * time.Millisecond)

	version, err := device.Version()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Radio did not come back: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s: radio reset OK (ADF7021 rev 0x%04X)\n", device.Serial, version)
}
