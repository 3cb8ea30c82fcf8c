// lsbb: List all connected bluebox devices
//
// This tool enumerates all bluebox devices on USB, and optionally the
// serial ports a UART-attached bluebox could be on.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/gousb"

	"github.com/herlein/bluebox/pkg/bluebox"
	"github.com/herlein/bluebox/pkg/link"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output (show additional device details)")
	ports := flag.Bool("ports", false, "Also list serial ports for UART-attached devices")
	flag.Parse()

	context := gousb.NewContext()
	defer context.Close()

	devices, err := bluebox.FindAllDevices(context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to enumerate devices: %v\n", err)
		os.Exit(1)
	}

	if *ports {
		listPorts()
	}

	if len(devices) == 0 {
		fmt.Println("No bluebox devices found")
		os.Exit(0)
	}

	fmt.Printf("Found %d bluebox device(s):\n", len(devices))
	fmt.Println()

	for i, device := range devices {
		defer device.Close()

		if !*verbose {
			fmt.Printf("  #%d  %s  %d:%d\n", i, device.Serial, device.Bus, device.Address)
			continue
		}

		fmt.Printf("Device #%d:\n", i)
		fmt.Printf("  Serial:       %s\n", device.Serial)
		fmt.Printf("  Bus:Address:  %d:%d\n", device.Bus, device.Address)
		fmt.Printf("  Manufacturer: %s\n", device.Manufacturer)
		fmt.Printf("  Product:      %s\n", device.Product)

		if rev, err := device.GetFWRevision(); err == nil {
			fmt.Printf("  Firmware:     %s\n", rev)
		} else {
			fmt.Printf("  Firmware:     (error: %v)\n", err)
		}

		if version, err := device.Version(); err == nil {
			fmt.Printf("  Chip:         ADF7021 (rev 0x%04X)\n", version)
		} else {
			fmt.Printf("  Chip:         (error: %v)\n", err)
		}

		if rssi, err := device.RSSI(); err == nil {
			fmt.Printf("  RSSI:         %d dBm\n", rssi)
		}
		fmt.Println()
	}

	if !*verbose {
		fmt.Println()
		fmt.Println("Use -d flag with other tools to select device:")
		fmt.Println("  -d \"#0\"        Select by index")
		fmt.Println("  -d \"1:10\"      Select by bus:address")
		fmt.Println("  -d \"11223344\"  Select by serial (if unique)")
		fmt.Println("Use -port for a UART-attached device.")
	}
}

func listPorts() {
	names, err := link.ListPorts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to list serial ports: %v\n", err)
		return
	}
	if len(names) == 0 {
		fmt.Println("No serial ports found")
		fmt.Println()
		return
	}
	fmt.Println("Serial ports:")
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
	fmt.Println()
}
