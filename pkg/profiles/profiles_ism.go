package profiles

import "fmt"

// ISM band profiles. These run uncoded with short training for
// point-to-point links between two blueboxes.

// NewISMLink creates an ISM band profile
func NewISMLink(band string, freqHz uint32, bitrate uint16, modIndex uint8) *Profile {
	s := base(freqHz, bitrate, modIndex)
	s.IFBandwidth = ifBandwidthFor(bitrate, modIndex)
	s.TrainingBytes = 8
	s.ReedSolomon = false
	s.Convolutional = false
	return &Profile{
		Name:        fmt.Sprintf("%s-%s-h%d", band, formatDataRate(bitrate), modIndex),
		Description: fmt.Sprintf("%s ISM %.3f MHz at %d bps, uncoded", band, float64(freqHz)/1e6, bitrate),
		Settings:    s,
	}
}

// ISMProfiles returns the 433, 868 and 915 MHz profiles
func ISMProfiles() []*Profile {
	return []*Profile{
		NewISMLink("433", 433920000, 2400, 8),
		NewISMLink("433", 433920000, 9600, 2),
		NewISMLink("868", 868300000, 4800, 4),
		NewISMLink("868", 868300000, 19200, 2),
		NewISMLink("915", 915000000, 9600, 4),
		NewISMLink("915", 915000000, 19200, 1),
	}
}
