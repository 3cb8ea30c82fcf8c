// bb-dump-config: Dump bluebox configuration to JSON file
//
// This tool connects to a bluebox, reads its current radio settings and
// telemetry, and saves them to a JSON file. The configuration can later
// be loaded using bb-load-config.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/gousb"

	"github.com/herlein/bluebox/pkg/bluebox"
	"github.com/herlein/bluebox/pkg/config"
)

func main() {
	outputFile := flag.String("o", "", "Output file path (default: etc/blueboxes/<serial>.json)")
	deviceSel := flag.String("d", "", bluebox.DeviceFlagUsage())
	port := flag.String("port", "", "Serial port of a UART-attached device")
	verbose := flag.Bool("v", false, "Verbose output")
	listOnly := flag.Bool("l", false, "List devices only, don't dump config")
	jsonOutput := flag.Bool("json", false, "Output config to stdout as JSON instead of file")
	flag.Parse()

	context := gousb.NewContext()
	defer context.Close()

	if *listOnly {
		listDevices(context)
		return
	}

	device, err := bluebox.Connect(context, bluebox.DeviceSelector(*deviceSel), *port, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer device.Close()

	if *verbose {
		fmt.Printf("Connected to: %s\n", device)
		fmt.Println("Reading device configuration...")
	}

	configuration, err := config.DumpFromDevice(device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to dump configuration: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		data, err := json.MarshalIndent(configuration, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to marshal configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	path := *outputFile
	if path == "" {
		path = config.GetConfigPath(configuration.Serial)
	}

	if err := config.SaveToFile(configuration, path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to save configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration saved to: %s\n", path)

	if *verbose {
		printConfigSummary(configuration)
	}
}

func listDevices(context *gousb.Context) {
	devices, err := bluebox.FindAllDevices(context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to enumerate devices: %v\n", err)
		os.Exit(1)
	}

	if len(devices) == 0 {
		fmt.Println("No bluebox devices found")
		return
	}

	fmt.Printf("Found %d bluebox device(s):\n\n", len(devices))

	for i, device := range devices {
		defer device.Close()

		fmt.Printf("Device %d:\n", i+1)
		fmt.Printf("  Manufacturer: %s\n", device.Manufacturer)
		fmt.Printf("  Product:      %s\n", device.Product)
		fmt.Printf("  Serial:       %s\n", device.Serial)
		if rev, err := device.GetFWRevision(); err == nil {
			fmt.Printf("  Firmware:     %s\n", rev)
		}
		fmt.Println()
	}
}

func printConfigSummary(cfg *config.DeviceConfig) {
	s := &cfg.Settings
	fmt.Println("\nConfiguration Summary:")
	fmt.Printf("  Firmware:     %s\n", cfg.FWRevision)
	fmt.Printf("  Frequency:    %.6f MHz (TX %.6f MHz)\n", cfg.GetFrequencyMHz(), float64(s.TxFreq)/1e6)
	fmt.Printf("  Bitrate:      %d bps, h=%d\n", s.Bitrate, s.ModIndex)
	fmt.Printf("  IF Bandwidth: %s\n", cfg.GetIFBandwidthString())
	fmt.Printf("  Sync Word:    0x%06X (%d bits, tolerance %d)\n", s.SyncWord, cfg.GetSyncWordBits(), s.SyncWordTolerance)
	fmt.Printf("  PA Setting:   %d\n", s.PASetting)
	fmt.Printf("  CSMA:         %d dBm\n", s.CSMARSSI)
	fmt.Printf("  Training:     %d bytes\n", s.TrainingBytes)
	if t := cfg.Telemetry; t != nil {
		fmt.Printf("  Chip:         rev 0x%04X, %d C, %.2f V, RSSI %d dBm\n", t.Version, t.Temperature, t.Voltage, t.RSSI)
	}
}
