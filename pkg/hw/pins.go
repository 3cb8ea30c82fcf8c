// Package hw connects the radio and frame engine to GPIO lines on a
// Linux host through periph.io.
//
// The pin interfaces are the subsets of gpio.PinIO each part needs, so
// tests can substitute fakes.
package hw

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// OutputPin is a line driven by the host
type OutputPin interface {
	Out(l gpio.Level) error
}

// InputPin is a line sampled by the host
type InputPin interface {
	Read() gpio.Level
}

// EdgePin is an input with edge detection
type EdgePin interface {
	InputPin
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
}

// DataPin is the bidirectional TxRxDATA line
type DataPin interface {
	InputPin
	OutputPin
	In(pull gpio.Pull, edge gpio.Edge) error
}

// pinSeq drives a sequence of outputs and keeps the first error.
// Nil pins are skipped so optional board lines need no special cases.
type pinSeq struct {
	err error
}

func (s *pinSeq) set(p OutputPin, l gpio.Level) {
	if s.err != nil || p == nil {
		return
	}
	s.err = p.Out(l)
}
