package hw

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/herlein/bluebox/pkg/registers"
)

// SerialBus bit-bangs the ADF7021 3-wire register interface. Words are
// clocked MSB first on SCLK rising edges and latched by a pulse on SLE.
type SerialBus struct {
	sclk  OutputPin
	sdata OutputPin
	sle   OutputPin
	sread InputPin

	// HalfPeriod is held after each SCLK transition. Zero runs as fast
	// as the GPIO driver allows.
	HalfPeriod time.Duration
}

// NewSerialBus returns a bus on the given lines
func NewSerialBus(sclk, sdata, sle OutputPin, sread InputPin) *SerialBus {
	return &SerialBus{sclk: sclk, sdata: sdata, sle: sle, sread: sread}
}

func (b *SerialBus) clock(s *pinSeq, l gpio.Level) {
	s.set(b.sclk, l)
	if b.HalfPeriod > 0 {
		time.Sleep(b.HalfPeriod)
	}
}

// Write clocks one register word into the chip
func (b *SerialBus) Write(v registers.Value) error {
	var s pinSeq
	s.set(b.sle, gpio.Low)
	b.clock(&s, gpio.Low)

	for i := 31; i >= 0; i-- {
		b.clock(&s, gpio.Low)
		s.set(b.sdata, gpio.Level(uint32(v)>>uint(i)&1 == 1))
		b.clock(&s, gpio.High)
	}
	b.clock(&s, gpio.Low)

	s.set(b.sle, gpio.High)
	s.set(b.sdata, gpio.Low)
	s.set(b.sle, gpio.Low)
	if s.err != nil {
		return fmt.Errorf("register write 0x%08x: %w", uint32(v), s.err)
	}
	return nil
}

// Read selects sel through R7 and clocks out the 16-bit result. The
// first clock after SLE rises carries an unused bit and is discarded.
func (b *SerialBus) Read(sel registers.ReadbackSelector) (registers.Value, error) {
	if err := b.Write(registers.Readback{Selector: sel.Masked()}.Pack()); err != nil {
		return 0, err
	}

	var s pinSeq
	s.set(b.sdata, gpio.Low)
	b.clock(&s, gpio.Low)
	s.set(b.sle, gpio.High)

	b.clock(&s, gpio.High)
	b.clock(&s, gpio.Low)

	var word uint16
	for i := 0; i < 16; i++ {
		b.clock(&s, gpio.High)
		word <<= 1
		if b.sread.Read() == gpio.High {
			word |= 1
		}
		b.clock(&s, gpio.Low)
	}

	b.clock(&s, gpio.High)
	s.set(b.sle, gpio.Low)
	b.clock(&s, gpio.Low)
	if s.err != nil {
		return 0, fmt.Errorf("readback %#x: %w", uint8(sel), s.err)
	}
	return registers.Value(word), nil
}
