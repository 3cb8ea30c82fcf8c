package hw

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"

	"github.com/herlein/bluebox/pkg/framer"
)

// ErrClockStalled is returned when TxRxCLK stops mid-frame
var ErrClockStalled = errors.New("hw: byte clock stalled")

var errStopped = errors.New("hw: byte clock stopped")

// Defaults for Controller timing
const (
	DefaultPoll  = 10 * time.Millisecond
	DefaultStall = time.Second
)

// Engine is the interrupt-path half of framer.Engine
type Engine interface {
	OnSyncDetect()
	Clock(in byte) byte
	Abandon()
	TxState() framer.TxState
}

// Controller stands in for the MCU interrupt handlers. One goroutine
// waits on the sync detect line or on TxRxCLK and calls the engine, so
// OnSyncDetect and Clock never run concurrently.
type Controller struct {
	sync EdgePin
	clk  EdgePin
	data DataPin
	log  logrus.FieldLogger

	engine Engine

	syncOn  atomic.Bool
	clockOn atomic.Bool
	wake    chan struct{}

	Poll  time.Duration
	Stall time.Duration
}

var _ framer.Lines = (*Controller)(nil)

// NewController returns a controller on the SWD, TxRxCLK and TxRxDATA
// lines. Attach an engine before calling Run.
func NewController(swd, clk EdgePin, data DataPin, log logrus.FieldLogger) *Controller {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Controller{
		sync:  swd,
		clk:   clk,
		data:  data,
		log:   log,
		wake:  make(chan struct{}, 1),
		Poll:  DefaultPoll,
		Stall: DefaultStall,
	}
}

// Attach sets the engine the controller drives
func (c *Controller) Attach(e Engine) {
	c.engine = e
}

func (c *Controller) kick() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// EnableSyncDetect arms the sync detect line
func (c *Controller) EnableSyncDetect() {
	c.syncOn.Store(true)
	c.kick()
}

// DisableSyncDetect ignores the sync detect line
func (c *Controller) DisableSyncDetect() {
	c.syncOn.Store(false)
}

// StartByteClock starts shifting bytes on TxRxCLK
func (c *Controller) StartByteClock() {
	c.clockOn.Store(true)
	c.kick()
}

// StopByteClock stops after the byte in progress
func (c *Controller) StopByteClock() {
	c.clockOn.Store(false)
}

// Run services the lines until ctx is done
func (c *Controller) Run(ctx context.Context) error {
	if c.engine == nil {
		return fmt.Errorf("hw: no engine attached")
	}
	if err := c.sync.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return fmt.Errorf("failed to configure sync detect: %w", err)
	}
	if err := c.clk.In(gpio.PullNoChange, gpio.RisingEdge); err != nil {
		return fmt.Errorf("failed to configure byte clock: %w", err)
	}

	for ctx.Err() == nil {
		switch {
		case c.clockOn.Load():
			err := c.session(ctx)
			switch {
			case errors.Is(err, ErrClockStalled):
				c.log.Warn("byte clock stalled, abandoning frame")
				c.engine.Abandon()
				c.clockOn.Store(false)
			case err != nil && ctx.Err() == nil:
				return err
			}
		case c.syncOn.Load():
			if c.sync.WaitForEdge(c.Poll) && c.syncOn.Load() {
				c.engine.OnSyncDetect()
			}
		default:
			select {
			case <-c.wake:
			case <-ctx.Done():
			case <-time.After(c.Poll):
			}
		}
	}
	return ctx.Err()
}

func (c *Controller) session(ctx context.Context) error {
	if c.engine.TxState() != framer.TxIdle {
		return c.shiftOut(ctx)
	}
	return c.shiftIn(ctx)
}

// shiftIn samples TxRxDATA on each rising TxRxCLK edge
func (c *Controller) shiftIn(ctx context.Context) error {
	if err := c.data.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return err
	}
	var in byte
	n := 0
	for {
		err := c.waitEdge(ctx, true)
		if errors.Is(err, errStopped) {
			return nil
		}
		if err != nil {
			return err
		}
		in <<= 1
		if c.data.Read() == gpio.High {
			in |= 1
		}
		n++
		if n == 8 {
			c.engine.Clock(in)
			in, n = 0, 0
		}
	}
}

// shiftOut presents each bit before the rising edge the chip samples
// on. The last byte is shifted out in full after the engine stops the
// clock.
func (c *Controller) shiftOut(ctx context.Context) error {
	for c.clockOn.Load() {
		b := c.engine.Clock(0)
		for i := 7; i >= 0; i-- {
			if err := c.data.Out(gpio.Level(b>>uint(i)&1 == 1)); err != nil {
				return err
			}
			if err := c.waitEdge(ctx, false); err != nil {
				return err
			}
		}
	}
	return c.data.Out(gpio.Low)
}

func (c *Controller) waitEdge(ctx context.Context, stopOnIdle bool) error {
	deadline := time.Now().Add(c.Stall)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if stopOnIdle && !c.clockOn.Load() {
			return errStopped
		}
		if c.clk.WaitForEdge(c.Poll) {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrClockStalled
		}
	}
}
