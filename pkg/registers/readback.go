package registers

import "math"

// ReadbackSelector is the 5-bit R7 field choosing what is read back.
type ReadbackSelector uint8

// Readback selectors
const (
	ReadbackAFC         ReadbackSelector = 0x10
	ReadbackRSSI        ReadbackSelector = 0x14
	ReadbackVoltage     ReadbackSelector = 0x15
	ReadbackTemperature ReadbackSelector = 0x16
	ReadbackVersion     ReadbackSelector = 0x1C
	readbackMask        ReadbackSelector = 0x1F
)

// Masked returns the selector limited to its 5-bit field
func (s ReadbackSelector) Masked() ReadbackSelector {
	return s & readbackMask
}

// rssiGainCorrection is indexed by the 4-bit LNA/filter gain code
var rssiGainCorrection = [16]int{86, 0, 0, 0, 58, 38, 24, 0, 0, 0, 0, 0, 0, 0, 0, 0}

// RSSIFromReadback converts an RSSI readback to dBm.
// Bits [6:0] hold the raw level, bits [10:7] the gain code.
func RSSIFromReadback(v Value) int {
	rssi := int(v.Byte(0) & 0x7F)
	gc := (v.Lower() & 0x780) >> 7
	dbm := float64(rssi+rssiGainCorrection[gc])*0.5 - 130
	return int(math.Round(dbm))
}

// AFCFromReadback converts an AFC readback to a frequency offset in Hz
func AFCFromReadback(v Value, xtalHz uint32) int {
	return 100000 - int(math.Round(float64(v.Lower())*float64(xtalHz>>18)))
}

// TemperatureFromReadback converts a temperature readback to degrees Celsius
func TemperatureFromReadback(v Value) int {
	return int(math.Round(-40 + (68.4-float64(v.Byte(0)&0x7F))*9.32))
}

// VoltageFromReadback converts a battery voltage readback to volts
func VoltageFromReadback(v Value) float64 {
	return float64(v.Byte(0)&0x7F) / 21.1
}

// VersionFromReadback extracts the silicon revision word
func VersionFromReadback(v Value) uint16 {
	return v.Lower()
}
