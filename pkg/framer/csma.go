package framer

import (
	"fmt"
	"sync/atomic"
	"time"
)

// RSSIReader samples channel energy in dBm
type RSSIReader interface {
	ReadRSSI() (int, error)
}

// CarrierSense gates transmissions on channel energy. A reading above the
// threshold quarantines the channel for a fixed number of polling passes.
// TransmitAllowed is meant to be called from a single polling loop.
type CarrierSense struct {
	reader    RSSIReader
	threshold atomic.Int32
	max       atomic.Int32
	delay     atomic.Int64
	sleep     func(time.Duration)

	quarantine int32
}

// NewCarrierSense creates a carrier sense gate. quarantine is the number of
// passes to hold off after a busy reading, delay the pause taken per pass.
func NewCarrierSense(reader RSSIReader, thresholdDBm int, quarantine int, delay time.Duration) *CarrierSense {
	c := &CarrierSense{
		reader: reader,
		sleep:  time.Sleep,
	}
	c.threshold.Store(int32(thresholdDBm))
	c.max.Store(int32(quarantine))
	c.delay.Store(int64(delay))
	return c
}

// SetThreshold changes the busy threshold in dBm
func (c *CarrierSense) SetThreshold(dbm int) {
	c.threshold.Store(int32(dbm))
}

// Threshold returns the busy threshold in dBm
func (c *CarrierSense) Threshold() int {
	return int(c.threshold.Load())
}

// SetQuarantine changes the hold-off length and per-pass delay
func (c *CarrierSense) SetQuarantine(passes int, delay time.Duration) {
	c.max.Store(int32(passes))
	c.delay.Store(int64(delay))
}

// Quarantine returns the remaining hold-off passes
func (c *CarrierSense) Quarantine() int {
	return int(c.quarantine)
}

// TransmitAllowed samples RSSI and reports whether the channel is clear.
// A failed RSSI read denies the transmit without touching the counter.
func (c *CarrierSense) TransmitAllowed() (bool, error) {
	rssi, err := c.reader.ReadRSSI()
	if err != nil {
		return false, fmt.Errorf("failed to sample channel: %w", err)
	}
	if rssi > c.Threshold() {
		c.quarantine = c.max.Load()
		return false, nil
	}
	if c.quarantine > 0 {
		c.quarantine--
		c.sleep(time.Duration(c.delay.Load()))
		return false, nil
	}
	return true, nil
}
