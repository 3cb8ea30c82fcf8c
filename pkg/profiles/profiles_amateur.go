package profiles

import "fmt"

// Amateur 70 cm satellite band profiles. These carry the full training
// sequence and both coding layers.

// NewAmateurGFSK creates a 437.45 MHz profile at the given rate and index
func NewAmateurGFSK(freqHz uint32, bitrate uint16, modIndex uint8) *Profile {
	s := base(freqHz, bitrate, modIndex)
	s.IFBandwidth = ifBandwidthFor(bitrate, modIndex)
	return &Profile{
		Name:        fmt.Sprintf("70cm-%s-h%d", formatDataRate(bitrate), modIndex),
		Description: fmt.Sprintf("%.3f MHz at %d bps, modulation index %d", float64(freqHz)/1e6, bitrate, modIndex),
		Settings:    s,
	}
}

// NewAmateurBeacon creates a slow, long-training profile for beacon reception
func NewAmateurBeacon(freqHz uint32, bitrate uint16) *Profile {
	p := NewAmateurGFSK(freqHz, bitrate, 8)
	p.Name = fmt.Sprintf("70cm-beacon-%s", formatDataRate(bitrate))
	p.Description = fmt.Sprintf("%.3f MHz beacon at %d bps with wide AFC", float64(freqHz)/1e6, bitrate)
	p.Settings.TrainingBytes = 60
	p.Settings.AFCRange = 20
	p.Settings.SyncWordTolerance = 3
	return p
}

// AmateurProfiles returns the 70 cm profiles
func AmateurProfiles() []*Profile {
	const downlink = 437450000
	return []*Profile{
		NewAmateurGFSK(downlink, 1200, 8),
		NewAmateurGFSK(downlink, 2400, 8),
		NewAmateurGFSK(downlink, 4800, 4),
		NewAmateurGFSK(downlink, 9600, 2),
		NewAmateurGFSK(downlink, 19200, 1),
		NewAmateurBeacon(downlink, 600),
	}
}
