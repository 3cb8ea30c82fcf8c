// bb-scan looks for activity on a channel list or sweeps a span of
// spectrum with a bluebox, reading RSSI from the ADF7021 at each step
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"

	"github.com/herlein/bluebox/pkg/bluebox"
	"github.com/herlein/bluebox/pkg/scanner"
)

var (
	configPath = flag.String("c", "", "Scanner configuration file (JSON5)")
	sweep      = flag.Bool("sweep", false, "Sweep -center/-bw instead of scanning a channel list")
	centerFreq = flag.Float64("center", 433.92, "Sweep center frequency in MHz")
	bandwidth  = flag.Float64("bw", 0.2, "Sweep span in MHz")
	stepKHz    = flag.Float64("step", 12.5, "Sweep step in kHz")
	threshold  = flag.Int("threshold", scanner.DefaultRSSIThreshold, "RSSI threshold in dBm")
	duration   = flag.Duration("duration", 0, "Scan duration (0 = indefinite)")
	deviceSel  = flag.String("d", "", bluebox.DeviceFlagUsage())
	port       = flag.String("port", "", "Serial port of a UART-attached device")
	verbose    = flag.Bool("v", false, "Verbose output - show every cycle")
	csvOut     = flag.String("csv", "", "Output CSV file for sweep data")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "RSSI scanner for the bluebox\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                   # Scan the default channel list\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c etc/scanner.json -threshold -90 # Scan channels from a file\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -sweep -center 144.8 -bw 0.5       # Sweep 144.55-145.05 MHz\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -sweep -csv spectrum.csv -duration 10s\n", os.Args[0])
	}
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	usb := gousb.NewContext()
	defer usb.Close()

	device, err := bluebox.Connect(usb, bluebox.DeviceSelector(*deviceSel), *port, 0)
	if err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	defer device.Close()
	fmt.Printf("Connected to: %s\n", device)

	log := logrus.New()
	log.Formatter = new(logrus.TextFormatter)
	log.Out = os.Stderr
	log.Level = logrus.InfoLevel
	if *verbose {
		log.Level = logrus.DebugLevel
	}

	config, err := loadConfig()
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "threshold" {
			config.RSSIThreshold = *threshold
		}
	})
	config.OnSignalDetected = func(s scanner.SignalInfo) {
		fmt.Printf("%s  DETECTED %11.6f MHz %4d dBm (%s)\n",
			s.LastSeen.Format("15:04:05.000"), mhz(s.Frequency), s.RSSI, scanner.FrequencyBand(s.Frequency))
	}
	config.OnSignalLost = func(s scanner.SignalInfo) {
		fmt.Printf("%s  LOST     %11.6f MHz peak %4d dBm, %d hits\n",
			time.Now().Format("15:04:05.000"), mhz(s.Frequency), s.MaxRSSI, s.DetectionCount)
	}

	sc, err := scanner.New(device, config, log)
	if err != nil {
		return fmt.Errorf("invalid scanner config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
		fmt.Printf("Scanning for %v...\n", *duration)
	} else {
		fmt.Println("Scanning... (Press Ctrl+C to stop)")
	}

	if *sweep {
		return runSweep(ctx, sc)
	}
	return runScan(ctx, sc)
}

func loadConfig() (*scanner.ScanConfig, error) {
	if *configPath == "" {
		return scanner.DefaultConfig(), nil
	}
	file, err := scanner.LoadConfigFile(*configPath)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Loaded scanner config %q (%s)\n", file.Name, file.Description)
	return file.ToScanConfig(), nil
}

func runScan(ctx context.Context, sc *scanner.Scanner) error {
	config := sc.Config()
	fmt.Printf("\n%d channels, threshold %d dBm, dwell %v\n\n",
		len(config.Frequencies), config.RSSIThreshold, config.DwellTime)

	results := make(chan *scanner.ScanResult, 16)
	done := make(chan error, 1)
	go func() { done <- sc.ScanContinuous(ctx, results) }()

	cycles := 0
	for result := range results {
		cycles++
		if *verbose {
			fmt.Printf("%5d  strongest %11.6f MHz %4d dBm\n",
				cycles, mhz(result.CoarseFrequency), result.CoarseRSSI)
		}
	}
	err := <-done

	fmt.Printf("\n%d cycles\n", cycles)
	for _, s := range sc.ActiveSignals() {
		fmt.Printf("  %11.6f MHz  max %4d dBm  %d hits  last %s\n",
			mhz(s.Frequency), s.MaxRSSI, s.DetectionCount, s.LastSeen.Format("15:04:05"))
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func runSweep(ctx context.Context, sc *scanner.Scanner) error {
	start := uint32((*centerFreq - *bandwidth/2) * 1e6)
	stop := uint32((*centerFreq + *bandwidth/2) * 1e6)
	step := uint32(*stepKHz * 1e3)

	fmt.Printf("\nSweep %.3f - %.3f MHz, %.1f kHz steps\n\n", mhz(start), mhz(stop), *stepKHz)

	var csv *bufio.Writer
	if *csvOut != "" {
		f, err := os.Create(*csvOut)
		if err != nil {
			return fmt.Errorf("failed to create CSV file: %w", err)
		}
		defer f.Close()
		csv = bufio.NewWriter(f)
		defer csv.Flush()
	}

	began := time.Now()
	for frame := 0; ctx.Err() == nil; frame++ {
		samples, err := sc.Sweep(start, stop, step)
		if err != nil {
			return err
		}

		if csv != nil {
			if frame == 0 {
				freqs := make([]string, len(samples))
				for i, s := range samples {
					freqs[i] = fmt.Sprintf("%.6f", mhz(s.Frequency))
				}
				fmt.Fprintf(csv, "timestamp_ms,%s\n", strings.Join(freqs, ","))
			}
			levels := make([]string, len(samples))
			for i, s := range samples {
				levels[i] = fmt.Sprint(s.RSSI)
			}
			fmt.Fprintf(csv, "%d,%s\n", time.Since(began).Milliseconds(), strings.Join(levels, ","))
		}

		best := samples[0]
		var peaks []string
		for _, s := range samples {
			if s.RSSI > best.RSSI {
				best = s
			}
			if s.RSSI >= sc.Config().RSSIThreshold {
				peaks = append(peaks, fmt.Sprintf("%.4f", mhz(s.Frequency)))
			}
		}
		if *verbose || len(peaks) > 0 {
			fmt.Printf("%5d  max %11.6f MHz %4d dBm  peaks: %s\n",
				frame, mhz(best.Frequency), best.RSSI, strings.Join(peaks, " "))
		}
	}
	return nil
}

func mhz(hz uint32) float64 {
	return float64(hz) / 1e6
}
