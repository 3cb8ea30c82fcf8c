package adf7021

import "github.com/herlein/bluebox/pkg/registers"

// Bus is the 3-wire serial register interface to the chip.
// Implementations are not reentrant; Radio serializes access.
type Bus interface {
	// Write clocks one 32-bit register word into the chip
	Write(v registers.Value) error
	// Read programs the readback selector and clocks the result out
	Read(sel registers.ReadbackSelector) (registers.Value, error)
}

// Frontend drives the board-level lines around the chip.
type Frontend interface {
	// SetChipEnable powers the chip up or down
	SetChipEnable(on bool) error
	// SetTransmit flips the external TX/RX switch (PTT)
	SetTransmit(on bool) error
}

// readbackRequest is the R7 word that selects sel for the next readback
func readbackRequest(sel registers.ReadbackSelector) registers.Value {
	return registers.Readback{Selector: sel.Masked()}.Pack()
}
