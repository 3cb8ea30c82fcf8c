// bb-load-config: Load configuration to a bluebox from JSON file
//
// This tool reads a previously saved configuration file, or a plain
// settings file such as a generated profile, and applies it to a bluebox.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/gousb"

	"github.com/herlein/bluebox/pkg/bluebox"
	"github.com/herlein/bluebox/pkg/config"
	"github.com/herlein/bluebox/pkg/profiles"
)

func main() {
	deviceSel := flag.String("d", "", bluebox.DeviceFlagUsage())
	port := flag.String("port", "", "Serial port of a UART-attached device")
	profile := flag.Bool("profile", false, "Config file is a profile written by bb-profiles")
	verbose := flag.Bool("v", false, "Verbose output")
	verify := flag.Bool("verify", false, "Verify configuration after writing")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <config-file>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s etc/blueboxes/0000002a.json\n", os.Args[0])
		os.Exit(1)
	}

	configPath := args[0]

	if *verbose {
		fmt.Printf("Loading configuration from: %s\n", configPath)
	}

	configuration, err := load(configPath, *profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Configuration loaded:\n")
		if configuration.Serial != "" {
			fmt.Printf("  Original Serial:    %s\n", configuration.Serial)
			fmt.Printf("  Original Timestamp: %s\n", configuration.Timestamp.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("  Frequency:          %.6f MHz\n", configuration.GetFrequencyMHz())
		fmt.Printf("  Bitrate:            %d bps, h=%d\n", configuration.Settings.Bitrate, configuration.Settings.ModIndex)
		fmt.Printf("  IF Bandwidth:       %s\n", configuration.GetIFBandwidthString())
	}

	context := gousb.NewContext()
	defer context.Close()

	device, err := bluebox.Connect(context, bluebox.DeviceSelector(*deviceSel), *port, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer device.Close()

	if *verbose {
		fmt.Printf("\nConnected to: %s\n", device)
		fmt.Println("Applying configuration...")
	}

	if err := config.ApplyToDevice(device, configuration); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to apply configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration applied successfully")

	if !*verify {
		return
	}
	if *verbose {
		fmt.Println("\nVerifying configuration...")
	}

	readBack, err := config.DumpFromDevice(device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to read back configuration for verification: %v\n", err)
		return
	}
	errors := verifyConfig(&configuration.Settings, &readBack.Settings)
	if len(errors) > 0 {
		fmt.Fprintf(os.Stderr, "Verification failed with %d error(s):\n", len(errors))
		for _, e := range errors {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
		os.Exit(1)
	}
	fmt.Println("Verification: OK")
}

func load(path string, profile bool) (*config.DeviceConfig, error) {
	if !profile {
		return config.LoadFromFile(path)
	}
	pc, err := profiles.LoadProfileFromFile(path)
	if err != nil {
		return nil, err
	}
	return &config.DeviceConfig{Settings: pc.Profile.Settings}, nil
}

// verifyConfig compares the settings the device reports back. Callsign,
// FEC sizing and PTT delays live host side only and are skipped.
func verifyConfig(e, a *config.Settings) []string {
	var errors []string

	if e.RxFreq != a.RxFreq || e.TxFreq != a.TxFreq {
		errors = append(errors, fmt.Sprintf("frequency mismatch: expected RX %d TX %d, got RX %d TX %d",
			e.RxFreq, e.TxFreq, a.RxFreq, a.TxFreq))
	}

	if e.Bitrate != a.Bitrate || e.ModIndex != a.ModIndex {
		errors = append(errors, fmt.Sprintf("modulation mismatch: expected %d bps h=%d, got %d bps h=%d",
			e.Bitrate, e.ModIndex, a.Bitrate, a.ModIndex))
	}

	if e.IFBandwidth != a.IFBandwidth {
		errors = append(errors, fmt.Sprintf("IF bandwidth mismatch: expected %d, got %d", e.IFBandwidth, a.IFBandwidth))
	}

	if e.PASetting != a.PASetting {
		errors = append(errors, fmt.Sprintf("PA mismatch: expected %d, got %d", e.PASetting, a.PASetting))
	}

	if e.CSMARSSI != a.CSMARSSI {
		errors = append(errors, fmt.Sprintf("CSMA mismatch: expected %d dBm, got %d dBm", e.CSMARSSI, a.CSMARSSI))
	}

	if e.SyncWord != a.SyncWord || e.SyncWordLength != a.SyncWordLength || e.SyncWordTolerance != a.SyncWordTolerance {
		errors = append(errors, fmt.Sprintf("sync word mismatch: expected 0x%06X/%d/%d, got 0x%06X/%d/%d",
			e.SyncWord, e.SyncWordLength, e.SyncWordTolerance, a.SyncWord, a.SyncWordLength, a.SyncWordTolerance))
	}

	if e.TrainingBytes != a.TrainingBytes {
		errors = append(errors, fmt.Sprintf("training mismatch: expected %d, got %d", e.TrainingBytes, a.TrainingBytes))
	}

	return errors
}
