// Package device is the bluebox firmware main loop: it owns the radio,
// the frame engine and carrier sense, moves frames between the engine
// and the host, and answers the host's control requests.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/herlein/bluebox/pkg/adf7021"
	"github.com/herlein/bluebox/pkg/config"
	"github.com/herlein/bluebox/pkg/framer"
	"github.com/herlein/bluebox/pkg/protocol"
)

const (
	// DefaultPollInterval is the pause between idle main-loop passes
	DefaultPollInterval = time.Millisecond
	// DefaultHoldTimeout bounds how long a control request waits for the
	// frame in flight. The longest coded frame at 300 bps fits.
	DefaultHoldTimeout = 30 * time.Second
)

// HostTransport moves frames between the device and the host
type HostTransport interface {
	// PullTxFrame returns the next frame the host queued, if any
	PullTxFrame() (*framer.FrameBuffer, bool)
	// PushRxFrame delivers a received frame to the host
	PushRxFrame(f *framer.FrameBuffer) error
}

// SerialStore persists the serial number
type SerialStore interface {
	Serial() (uint32, error)
	SetSerial(serial uint32) error
}

// Options configures New
type Options struct {
	Settings  config.Settings
	Bus       adf7021.Bus
	Frontend  adf7021.Frontend
	Lines     framer.Lines
	Transport HostTransport
	Store     SerialStore
	Log       logrus.FieldLogger

	// Revision is reported through the firmware revision request
	Revision string
	// Bootloader is called for a DFU request
	Bootloader func() error
	// Sleep replaces time.Sleep for radio delays
	Sleep        func(time.Duration)
	PollInterval time.Duration
	HoldTimeout  time.Duration
}

// Device is one bluebox
type Device struct {
	radio     *adf7021.Radio
	engine    *framer.Engine
	csma      *framer.CarrierSense
	transport HostTransport
	store     SerialStore
	log       logrus.FieldLogger

	revision    string
	bootloader  func() error
	interval    time.Duration
	holdTimeout time.Duration

	// loop serializes main-loop passes with control requests
	loop sync.Mutex
	// waiting counts control requests queued for the radio; while
	// non-zero no new transmit is admitted
	waiting atomic.Int32

	mu       sync.Mutex
	settings config.Settings
	pending  *framer.FrameBuffer
	handlers map[protocol.Request]handler
}

// New builds a device. Nothing touches the hardware until Start.
func New(opts Options) (*Device, error) {
	if opts.Bus == nil || opts.Frontend == nil || opts.Lines == nil {
		return nil, fmt.Errorf("device: bus, frontend and lines are required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("device: transport is required")
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.HoldTimeout == 0 {
		opts.HoldTimeout = DefaultHoldTimeout
	}

	s := opts.Settings
	var radioOpts []adf7021.Option
	if opts.Sleep != nil {
		radioOpts = append(radioOpts, adf7021.WithSleep(opts.Sleep))
	}
	radio := adf7021.NewRadio(opts.Bus, opts.Frontend, s.RadioConfig(), radioOpts...)

	d := &Device{
		radio:       radio,
		engine:      framer.NewEngine(opts.Lines, radio, s.FramerConfig()),
		csma:        framer.NewCarrierSense(radio, int(s.CSMARSSI), int(s.CSMAQuarantine), s.CSMADelay()),
		transport:   opts.Transport,
		store:       opts.Store,
		log:         opts.Log,
		revision:    opts.Revision,
		bootloader:  opts.Bootloader,
		interval:    opts.PollInterval,
		holdTimeout: opts.HoldTimeout,
		settings:    s,
	}
	d.handlers = d.requestTable()
	return d, nil
}

// Radio returns the radio controller
func (d *Device) Radio() *adf7021.Radio {
	return d.radio
}

// Engine returns the frame engine, for wiring to the interrupt lines
func (d *Device) Engine() *framer.Engine {
	return d.engine
}

// Settings returns a copy of the live settings
func (d *Device) Settings() config.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

// Start powers the radio up, programs it and arms sync detection
func (d *Device) Start() error {
	s := d.Settings()
	if err := d.radio.PowerOn(s.XtalHz); err != nil {
		return fmt.Errorf("power on: %w", err)
	}
	if err := d.radio.Reconfigure(); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	d.engine.Arm()

	fields := logrus.Fields{
		"rx_hz":   s.RxFreq,
		"tx_hz":   s.TxFreq,
		"bitrate": s.Bitrate,
		"index":   s.ModIndex,
	}
	if plan := d.radio.RXPlan(); plan.Valid() {
		fields["real_bitrate"] = fmt.Sprintf("%.1f", plan.Real.DataRate)
	}
	d.log.WithFields(fields).Info("radio up")
	return nil
}

// Poll runs one pass of the main loop. It reports whether any work was
// done so Run can back off when idle. Passes never overlap a control
// request.
func (d *Device) Poll() (bool, error) {
	d.loop.Lock()
	defer d.loop.Unlock()

	busy, err := d.engine.Drain(d.transport.PushRxFrame)
	if err != nil {
		return false, err
	}

	if d.engine.TxDone() {
		if err := d.radio.SetRXMode(); err != nil {
			return busy, fmt.Errorf("return to RX: %w", err)
		}
		d.engine.FinishTransmit()
		d.log.Debug("transmit complete")
		busy = true
	}

	if !d.engine.Idle() || d.waiting.Load() > 0 {
		return busy, nil
	}

	f := d.nextFrame()
	if f == nil {
		return busy, nil
	}
	ok, err := d.csma.TransmitAllowed()
	if err != nil {
		return busy, err
	}
	if !ok {
		d.log.WithField("quarantine", d.csma.Quarantine()).Debug("channel busy")
		return busy, nil
	}
	return true, d.transmit(f)
}

// nextFrame returns the held-over frame or pulls a new one
func (d *Device) nextFrame() *framer.FrameBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		if f, ok := d.transport.PullTxFrame(); ok {
			d.pending = f
		}
	}
	return d.pending
}

// transmit reserves the engine before switching the radio to TX, so a
// sync detect landing in between leaves the radio in RX and the frame
// pending.
func (d *Device) transmit(f *framer.FrameBuffer) error {
	if !d.engine.Hold() {
		return nil
	}
	defer d.engine.Release()

	if err := d.radio.SetTXMode(); err != nil {
		return fmt.Errorf("enter TX: %w", err)
	}
	err := d.engine.StartTransmit(f)
	switch {
	case err == nil:
		d.mu.Lock()
		d.pending = nil
		d.mu.Unlock()
		d.log.WithField("size", f.Size).Debug("transmit started")
		return nil
	case errors.Is(err, framer.ErrBusy):
		// an undrained frame holds the buffer; retry on a later pass
	default:
		d.mu.Lock()
		d.pending = nil
		d.mu.Unlock()
		d.log.WithError(err).WithField("size", f.Size).Warn("dropping frame")
	}
	if rxErr := d.radio.SetRXMode(); rxErr != nil {
		return fmt.Errorf("return to RX: %w", rxErr)
	}
	if errors.Is(err, framer.ErrBusy) {
		return nil
	}
	return err
}

// Run polls until ctx is done. Poll errors are logged and the loop
// carries on.
func (d *Device) Run(ctx context.Context) error {
	for {
		busy, err := d.Poll()
		if err != nil {
			d.log.WithError(err).Warn("main loop")
		}
		if busy {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.interval):
		}
	}
}
