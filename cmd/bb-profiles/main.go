// bb-profiles generates and tests radio configuration profiles. A test
// transmits from one bluebox and receives on another to verify that the
// profile works end to end.
package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/gousb"

	"github.com/herlein/bluebox/pkg/bluebox"
	"github.com/herlein/bluebox/pkg/config"
	"github.com/herlein/bluebox/pkg/profiles"
)

var (
	profileName = flag.String("profile", "", "Profile name to test (e.g., 70cm-2.4k-h8)")
	generateAll = flag.Bool("generate", false, "Generate all profile configs into -config-dir")
	listAll     = flag.Bool("list", false, "List built-in profiles")
	txDevice    = flag.String("tx", "#0", "TX device selector (index, bus:addr, or serial)")
	rxDevice    = flag.String("rx", "#1", "RX device selector (index, bus:addr, or serial)")
	configDir   = flag.String("config-dir", "etc/profiles", "Directory for profile files")
	verbose     = flag.Bool("v", false, "Verbose output")
	timeout     = flag.Duration("timeout", 5*time.Second, "Receive timeout")
	repeat      = flag.Int("repeat", 3, "Number of times to repeat each test")
)

func main() {
	flag.Parse()

	var err error
	switch {
	case *listAll:
		doList()
		return
	case *generateAll:
		err = doGenerate()
	case *profileName != "":
		err = doProfileTest()
	default:
		fmt.Fprintln(os.Stderr, "Usage: bb-profiles -profile <name> [-tx <device>] [-rx <device>]")
		fmt.Fprintln(os.Stderr, "       bb-profiles -generate  (write all profiles to -config-dir)")
		fmt.Fprintln(os.Stderr, "       bb-profiles -list      (list built-in profiles)")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func doList() {
	for _, p := range profiles.All() {
		plan, err := p.Plan()
		if err != nil {
			fmt.Printf("  %-24s %s (no clock plan: %v)\n", p.Name, p.Description, err)
			continue
		}
		fmt.Printf("  %-24s %-40s real %.1f bps, h=%.2f\n", p.Name, p.Description, plan.DataRate, plan.ModIndex)
	}
}

func doGenerate() error {
	absPath, err := filepath.Abs(*configDir)
	if err != nil {
		return fmt.Errorf("invalid config directory: %w", err)
	}
	fmt.Printf("Generating profiles to %s\n", absPath)
	if err := profiles.Generate(absPath, profiles.All()); err != nil {
		return err
	}

	files, err := filepath.Glob(filepath.Join(absPath, "*.json"))
	if err != nil {
		return err
	}
	fmt.Printf("Generated %d profile configs:\n", len(files))
	for _, f := range files {
		fmt.Printf("  %s\n", filepath.Base(f))
	}
	return nil
}

// loadProfile prefers a generated file so hand edits are honoured
func loadProfile(name string) (*profiles.Profile, error) {
	path := filepath.Join(*configDir, name+".json")
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Loading profile: %s\n", path)
		cfg, err := profiles.LoadProfileFromFile(path)
		if err != nil {
			return nil, err
		}
		return &cfg.Profile, nil
	}
	return profiles.ByName(name)
}

func doProfileTest() error {
	profile, err := loadProfile(*profileName)
	if err != nil {
		return err
	}
	s := profile.Settings

	if *verbose {
		fmt.Printf("Profile: %s\n", profile.Name)
		fmt.Printf("  Frequency: %.3f MHz\n", float64(s.RxFreq)/1e6)
		fmt.Printf("  Bitrate:   %d bps, h=%d\n", s.Bitrate, s.ModIndex)
		fmt.Printf("  Training:  %d bytes\n", s.TrainingBytes)
	}

	ctx := gousb.NewContext()
	defer ctx.Close()

	devices, err := bluebox.FindAllDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to find devices: %w", err)
	}
	for _, d := range devices {
		defer d.Close()
	}
	if len(devices) < 2 {
		return fmt.Errorf("need at least 2 bluebox devices, found %d", len(devices))
	}

	txDev, err := bluebox.DeviceSelector(*txDevice).Pick(devices)
	if err != nil {
		return fmt.Errorf("TX device: %w", err)
	}
	rxDev, err := bluebox.DeviceSelector(*rxDevice).Pick(devices)
	if err != nil {
		return fmt.Errorf("RX device: %w", err)
	}
	if txDev == rxDev {
		return fmt.Errorf("TX and RX selectors picked the same device %s", txDev.Serial)
	}

	fmt.Printf("TX Device: %s (%d:%d)\n", txDev.Serial, txDev.Bus, txDev.Address)
	fmt.Printf("RX Device: %s (%d:%d)\n", rxDev.Serial, rxDev.Bus, rxDev.Address)

	devCfg := &config.DeviceConfig{Timestamp: time.Now(), Settings: s}
	for _, d := range []*bluebox.Device{txDev, rxDev} {
		if err := config.ApplyToDevice(d, devCfg); err != nil {
			return fmt.Errorf("failed to configure %s: %w", d.Serial, err)
		}
	}
	if err := rxDev.SetRXMode(); err != nil {
		return fmt.Errorf("failed to enter RX mode: %w", err)
	}

	passed := 0
	for i := 0; i < *repeat; i++ {
		payload := []byte(fmt.Sprintf("%s #%d", profile.Name, i))
		if err := txDev.Transmit(payload); err != nil {
			return fmt.Errorf("transmit %d: %w", i, err)
		}

		f, err := rxDev.Receive(*timeout)
		if err != nil {
			fmt.Printf("  [%d] FAIL: %v\n", i, err)
			continue
		}
		got := f.Data()
		if len(got) < len(payload) || !bytes.Equal(got[:len(payload)], payload) {
			fmt.Printf("  [%d] FAIL: payload mismatch\n", i)
			if *verbose {
				fmt.Printf("       sent %s\n", hex.EncodeToString(payload))
				fmt.Printf("       got  %s\n", hex.EncodeToString(got))
			}
			continue
		}
		passed++
		fmt.Printf("  [%d] OK  RSSI=%d dBm AFC=%d Hz\n", i, f.RSSI, f.Freq)
	}

	fmt.Printf("\n%s: %d/%d frames received\n", profile.Name, passed, *repeat)
	if passed != *repeat {
		return fmt.Errorf("profile test failed")
	}
	return nil
}
