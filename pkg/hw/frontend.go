package hw

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Frontend drives the chip enable and the RF switch around the radio.
// The external LNA and PA lines exist only on the standard board and
// may be left nil.
type Frontend struct {
	CE OutputPin
	TX OutputPin
	RX OutputPin

	ExtLNA OutputPin
	PABias OutputPin
	ExtPTT OutputPin

	sleep func(time.Duration)
}

// External amplifier switching times
const (
	lnaOffDelay = 50 * time.Millisecond
	paBiasDelay = 5 * time.Millisecond
)

func (f *Frontend) wait(d time.Duration) {
	if f.sleep != nil {
		f.sleep(d)
		return
	}
	time.Sleep(d)
}

// SetChipEnable drives CE
func (f *Frontend) SetChipEnable(on bool) error {
	var s pinSeq
	s.set(f.CE, gpio.Level(on))
	return s.err
}

// SetTransmit switches the RF path. Turning on powers the external LNA
// down before the switch flips and brings the PA up after it; turning
// off reverses the order.
func (f *Frontend) SetTransmit(on bool) error {
	var s pinSeq
	if on {
		if f.ExtLNA != nil {
			s.set(f.ExtLNA, gpio.Low)
			f.wait(lnaOffDelay)
		}
		s.set(f.RX, gpio.Low)
		s.set(f.TX, gpio.High)
		if f.PABias != nil {
			s.set(f.PABias, gpio.High)
			f.wait(paBiasDelay)
		}
		s.set(f.ExtPTT, gpio.High)
		return s.err
	}

	s.set(f.ExtPTT, gpio.Low)
	s.set(f.PABias, gpio.Low)
	s.set(f.TX, gpio.Low)
	s.set(f.RX, gpio.High)
	s.set(f.ExtLNA, gpio.High)
	return s.err
}
