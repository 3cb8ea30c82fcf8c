// bb-send-recv: Example program for sending and receiving frames with a bluebox
//
// This tool configures a bluebox from a settings file and then either
// transmits one frame or listens for frames.
//
// Examples:
//
//	# Receive mode - listen for frames and display them
//	./bb-send-recv -m recv -c etc/defaults.json
//
//	# Send mode - transmit data from command line
//	./bb-send-recv -m send -c etc/defaults.json -data "Hello World"
//
//	# Send mode - transmit hex data, whitened
//	./bb-send-recv -m send -c etc/defaults.json -hex "DEADBEEF" -whiten
//
//	# Send mode - repeat transmission 10 times, 500 ms apart
//	./bb-send-recv -m send -c etc/defaults.json -data "test" -repeat 10 -gap 500ms
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/gousb"

	"github.com/herlein/bluebox/pkg/bluebox"
	"github.com/herlein/bluebox/pkg/config"
	"github.com/herlein/bluebox/pkg/framer"
	"github.com/herlein/bluebox/pkg/scrambler"
)

func main() {
	mode := flag.String("m", "", "Mode: 'send' or 'recv' (required)")
	configPath := flag.String("c", "", "Configuration file path (optional, device settings are kept if omitted)")
	deviceSel := flag.String("d", "", bluebox.DeviceFlagUsage())
	port := flag.String("port", "", "Serial port of a UART-attached device")
	verbose := flag.Bool("v", false, "Verbose output")
	whiten := flag.Bool("whiten", false, "Apply the CCSDS whitening sequence to payloads")
	trainingMs := flag.Int("training-ms", 0, "Training length in milliseconds (0 = keep)")

	// Send mode options
	dataStr := flag.String("data", "", "Data to send (ASCII string)")
	hexStr := flag.String("hex", "", "Data to send (hex encoded)")
	repeat := flag.Uint("repeat", 0, "Number of times to repeat transmission (0 = once)")
	gap := flag.Duration("gap", 250*time.Millisecond, "Pause between repeated transmissions")

	// Receive mode options
	timeout := flag.Duration("timeout", 1*time.Second, "Receive timeout per frame")
	count := flag.Int("count", 0, "Number of frames to receive (0 = infinite)")
	rawOutput := flag.Bool("raw", false, "Output raw hex only (for piping)")

	flag.Parse()

	if *mode == "" {
		fmt.Fprintln(os.Stderr, "Error: Mode (-m) is required. Use 'send' or 'recv'")
		flag.PrintDefaults()
		os.Exit(1)
	}

	*mode = strings.ToLower(*mode)
	if *mode != "send" && *mode != "recv" {
		fmt.Fprintf(os.Stderr, "Error: Invalid mode '%s'. Use 'send' or 'recv'\n", *mode)
		os.Exit(1)
	}

	var configuration *config.DeviceConfig
	if *configPath != "" {
		if *verbose {
			fmt.Printf("Loading configuration from: %s\n", *configPath)
		}
		var err error
		configuration, err = config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			s := &configuration.Settings
			fmt.Printf("Configuration loaded:\n")
			fmt.Printf("  Frequency:    %.6f MHz\n", configuration.GetFrequencyMHz())
			fmt.Printf("  Bitrate:      %d bps, h=%d\n", s.Bitrate, s.ModIndex)
			fmt.Printf("  Sync Word:    0x%06X (%d bits)\n", s.SyncWord, configuration.GetSyncWordBits())
		}
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
		fmt.Printf("Connected to: %s\n", device)
	}

	if configuration != nil {
		if *verbose {
			fmt.Println("Applying radio configuration...")
		}
		if err := config.ApplyToDevice(device, configuration); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to apply configuration: %v\n", err)
			os.Exit(1)
		}
	}

	if *trainingMs > 0 {
		if err := device.SetTrainingMs(*trainingMs); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to set training length: %v\n", err)
		}
	}

	if *verbose {
		if ms, err := device.TrainingMs(); err == nil {
			fmt.Printf("Training: %d ms\n", ms)
		}
		if rssi, err := device.RSSI(); err == nil {
			fmt.Printf("Channel RSSI: %d dBm\n", rssi)
		}
	}

	switch *mode {
	case "send":
		runSendMode(device, *dataStr, *hexStr, *repeat, *gap, *whiten, *verbose)
	case "recv":
		runRecvMode(device, *timeout, *count, *whiten, *verbose, *rawOutput)
	}
}

func runSendMode(device *bluebox.Device, dataStr, hexStr string, repeat uint, gap time.Duration, whiten, verbose bool) {
	var data []byte

	if hexStr != "" {
		var err error
		data, err = hex.DecodeString(hexStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Invalid hex string: %v\n", err)
			os.Exit(1)
		}
	} else if dataStr != "" {
		data = []byte(dataStr)
	} else {
		fmt.Fprintln(os.Stderr, "Error: Must specify -data or -hex for send mode")
		os.Exit(1)
	}

	if len(data) == 0 {
		fmt.Fprintln(os.Stderr, "Error: No data to send")
		os.Exit(1)
	}

	if verbose {
		fmt.Printf("Transmitting %d bytes", len(data))
		if repeat > 0 {
			fmt.Printf(" (repeat %d times)", repeat)
		}
		fmt.Println()
		fmt.Printf("Data (hex): %s\n", hex.EncodeToString(data))
	}

	if whiten {
		data = scrambler.Whiten(data)
	}

	for i := uint(0); i <= repeat; i++ {
		if i > 0 {
			time.Sleep(gap)
		}
		if err := device.Transmit(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Transmit failed: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("Transmission complete")
}

func runRecvMode(device *bluebox.Device, timeout time.Duration, count int, whiten, verbose, rawOutput bool) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := device.SetRXMode(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to enter RX mode: %v\n", err)
		os.Exit(1)
	}

	if !rawOutput {
		fmt.Println("Listening for frames (Ctrl+C to stop)...")
		fmt.Println()
	}

	frames := make(chan *framer.FrameBuffer)
	stop := make(chan struct{})
	defer close(stop)

	// shorter internal timeout keeps Ctrl+C responsive
	recvTimeout := 200 * time.Millisecond
	if timeout < recvTimeout {
		recvTimeout = timeout
	}
	go device.ReceiveLoop(recvTimeout, frames, stop)

	received := 0
	startTime := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			if !rawOutput {
				fmt.Printf("\n\nReceived %d frames in %v\n", received, time.Since(startTime).Round(time.Second))
			}
			return

		case <-ticker.C:
			if verbose && !rawOutput {
				if rssi, err := device.RSSI(); err == nil {
					fmt.Printf("  [waiting] frames=%d RSSI=%d dBm\n", received, rssi)
				}
			}

		case f := <-frames:
			received++
			data := f.Data()
			if whiten {
				data = scrambler.Whiten(data)
			}

			if rawOutput {
				fmt.Println(hex.EncodeToString(data))
			} else {
				fmt.Printf("[%s] Frame #%d (%d bytes):\n", time.Now().Format("15:04:05.000"), received, len(data))
				fmt.Printf("  RSSI: %d dBm, AFC offset: %d Hz\n", f.RSSI, f.Freq)
				fmt.Printf("  Hex: %s\n", hex.EncodeToString(data))
				if len(data) <= 64 {
					fmt.Printf("  ASCII: %s\n", makePrintable(data))
				} else {
					fmt.Printf("  ASCII: %s... (truncated)\n", makePrintable(data[:64]))
				}
				fmt.Println()
			}

			if count > 0 && received >= count {
				if !rawOutput {
					fmt.Printf("Received requested %d frames\n", count)
				}
				return
			}
		}
	}
}

// makePrintable converts bytes to a printable string, replacing non-printable characters
func makePrintable(data []byte) string {
	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b < 127 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}
