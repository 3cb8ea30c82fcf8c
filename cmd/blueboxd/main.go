// blueboxd runs the bluebox link layer on a Linux board with an ADF7021
// wired to its GPIO header. Frames and control requests from the host
// arrive over a UART link.
//
// Example:
//
//	./blueboxd -port /dev/ttyS0 -c etc/bluebox.json -db /var/lib/bluebox/nv.db
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/herlein/bluebox/pkg/config"
	"github.com/herlein/bluebox/pkg/device"
	"github.com/herlein/bluebox/pkg/hw"
	"github.com/herlein/bluebox/pkg/link"
	"github.com/herlein/bluebox/pkg/store"
)

// Revision is reported to the host through the firmware revision request
var Revision = "blueboxd-dev"

// pinFlags names the header pins for each ADF7021 line
type pinFlags struct {
	sclk, sdata, sle, sread *string
	ce, tx, rx              *string
	extLNA, paBias, extPTT  *string
	swd, clk, data          *string
}

func main() {
	configPath := flag.String("c", "", "Settings file (JSON5, defaults if omitted)")
	port := flag.String("port", "/dev/ttyS0", "UART to the host")
	baud := flag.Int("baud", link.DefaultBaudRate, "UART baud rate")
	dbPath := flag.String("db", "bluebox.db", "Non-volatile store path")
	level := flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	pins := pinFlags{
		sclk:   flag.String("pin-sclk", "GPIO11", "SCLK pin"),
		sdata:  flag.String("pin-sdata", "GPIO10", "SDATA pin"),
		sle:    flag.String("pin-sle", "GPIO8", "SLE pin"),
		sread:  flag.String("pin-sread", "GPIO9", "SREAD pin"),
		ce:     flag.String("pin-ce", "GPIO25", "CE pin"),
		tx:     flag.String("pin-tx", "GPIO23", "TX switch pin"),
		rx:     flag.String("pin-rx", "GPIO24", "RX switch pin"),
		extLNA: flag.String("pin-ext-lna", "", "External LNA enable pin (standard board only)"),
		paBias: flag.String("pin-pa-bias", "", "External PA bias pin (standard board only)"),
		extPTT: flag.String("pin-ext-ptt", "", "External PTT pin (standard board only)"),
		swd:    flag.String("pin-swd", "GPIO17", "Sync word detect pin"),
		clk:    flag.String("pin-clk", "GPIO27", "TxRxCLK pin"),
		data:   flag.String("pin-data", "GPIO22", "TxRxDATA pin"),
	}
	flag.Parse()

	log := logrus.New()
	log.Formatter = new(logrus.TextFormatter)
	log.Out = os.Stdout
	if lvl, err := logrus.ParseLevel(*level); err == nil {
		log.Level = lvl
	} else {
		log.WithError(err).Warn("bad log level, using info")
	}

	if err := run(log, *configPath, *port, *baud, *dbPath, pins); err != nil {
		log.WithError(err).Error("blueboxd stopped")
		os.Exit(1)
	}
}

func run(log *logrus.Logger, configPath, portName string, baud int, dbPath string, pins pinFlags) error {
	settings := config.Default()
	if configPath != "" {
		s, err := config.LoadSettings(configPath)
		if err != nil {
			return err
		}
		settings = *s
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host.Init: %w", err)
	}

	var r pinResolver
	bus := hw.NewSerialBus(r.out(*pins.sclk), r.out(*pins.sdata), r.out(*pins.sle), r.in(*pins.sread))
	frontend := &hw.Frontend{
		CE:     r.out(*pins.ce),
		TX:     r.out(*pins.tx),
		RX:     r.out(*pins.rx),
		ExtLNA: r.optional(*pins.extLNA),
		PABias: r.optional(*pins.paBias),
		ExtPTT: r.optional(*pins.extPTT),
	}
	lines := hw.NewController(r.pin(*pins.swd), r.pin(*pins.clk), r.pin(*pins.data), log)
	if r.err != nil {
		return r.err
	}

	nv, err := store.Open(store.Config{Path: dbPath}, log)
	if err != nil {
		return err
	}
	defer nv.Close()

	uart, err := link.OpenPort(portName, baud)
	if err != nil {
		return err
	}
	defer uart.Close()
	server := link.NewServer(uart, nil, log)

	dev, err := device.New(device.Options{
		Settings:  settings,
		Bus:       bus,
		Frontend:  frontend,
		Lines:     lines,
		Transport: server,
		Store:     nv,
		Log:       log,
		Revision:  Revision,
	})
	if err != nil {
		return err
	}
	server.SetHandler(dev)
	lines.Attach(dev.Engine())

	if serial, err := nv.Serial(); err == nil {
		log.WithField("serial", fmt.Sprintf("%08x", serial)).Info("starting")
	}
	if err := dev.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the UART read blocks, so closing the port is what unblocks Serve
	go func() {
		<-ctx.Done()
		uart.Close()
	}()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for name, fn := range map[string]func(context.Context) error{
		"lines":  lines.Run,
		"link":   server.Serve,
		"device": dev.Run,
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				errs <- fmt.Errorf("%s: %w", name, err)
			}
			stop()
		}()
	}
	wg.Wait()

	// leave the transmitter keyed off
	if err := dev.Radio().PowerOff(); err != nil {
		log.WithError(err).Warn("power off")
	}
	log.WithFields(logrus.Fields{
		"received":    dev.Engine().Stats().Received,
		"transmitted": dev.Engine().Stats().Transmitted,
	}).Info("stopped")

	close(errs)
	return <-errs
}

// pinResolver looks pins up in the periph registry and keeps the first
// missing one as its error
type pinResolver struct {
	err error
}

func (r *pinResolver) pin(name string) gpio.PinIO {
	p := gpioreg.ByName(name)
	if p == nil && r.err == nil {
		r.err = fmt.Errorf("pin %q not found", name)
	}
	return p
}

func (r *pinResolver) out(name string) hw.OutputPin {
	if p := r.pin(name); p != nil {
		return p
	}
	return nil
}

func (r *pinResolver) in(name string) hw.InputPin {
	if p := r.pin(name); p != nil {
		return p
	}
	return nil
}

// optional resolves a pin that may be left unwired
func (r *pinResolver) optional(name string) hw.OutputPin {
	if name == "" {
		return nil
	}
	return r.out(name)
}
