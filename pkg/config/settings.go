package config

import (
	"fmt"
	"time"

	"github.com/herlein/bluebox/pkg/adf7021"
	"github.com/herlein/bluebox/pkg/framer"
)

// Settings is the complete volatile configuration of a bluebox. It is
// reset to Default on power-up; only the serial number is persisted.
type Settings struct {
	XtalHz uint32 `json:"xtal_hz"`

	RxFreq      uint32 `json:"rx_freq_hz"`
	TxFreq      uint32 `json:"tx_freq_hz"`
	Bitrate     uint16 `json:"bitrate"`
	ModIndex    uint8  `json:"mod_index"`
	PASetting   uint8  `json:"pa_setting"`
	IFBandwidth uint8  `json:"if_bandwidth"`

	CSMARSSI       int16  `json:"csma_rssi_dbm"`
	CSMAQuarantine uint16 `json:"csma_quarantine"`
	CSMADelayMs    uint16 `json:"csma_delay_ms"`

	AFCEnable bool  `json:"afc_enable"`
	AFCRange  uint8 `json:"afc_range"`
	AFCKI     uint8 `json:"afc_ki"`
	AFCKP     uint8 `json:"afc_kp"`

	SyncWord          uint32 `json:"sync_word"`
	SyncWordLength    uint8  `json:"sync_word_length"`
	SyncWordTolerance uint8  `json:"sync_word_tolerance"`

	Callsign      string `json:"callsign"`
	TrainingBytes uint8  `json:"training_bytes"`
	ReedSolomon   bool   `json:"reed_solomon"`
	Convolutional bool   `json:"convolutional"`

	PTTDelayHighMs uint16 `json:"ptt_delay_high_ms"`
	PTTDelayLowMs  uint16 `json:"ptt_delay_low_ms"`

	// Reserved: carried for the host but not enforced by the framer
	TxWaitTimeout  uint16 `json:"tx_wait_timeout,omitempty"`
	TxTimeoutDelay uint16 `json:"tx_timeout_delay,omitempty"`
	RxWaitTimeout  uint16 `json:"rx_wait_timeout,omitempty"`
}

// Default returns the build-time defaults
func Default() Settings {
	return Settings{
		XtalHz:            16000000,
		RxFreq:            437450000,
		TxFreq:            437450000,
		Bitrate:           2400,
		ModIndex:          8,
		PASetting:         8,
		IFBandwidth:       2,
		CSMARSSI:          -70,
		CSMAQuarantine:    60,
		CSMADelayMs:       10,
		AFCEnable:         true,
		AFCRange:          10,
		AFCKI:             11,
		AFCKP:             4,
		SyncWord:          0x4E4F43,
		SyncWordLength:    3,
		SyncWordTolerance: 3,
		Callsign:          "NOCALL",
		TrainingBytes:     30,
		ReedSolomon:       true,
		Convolutional:     true,
		PTTDelayHighMs:    2,
		PTTDelayLowMs:     1,
		TxWaitTimeout:     120,
		TxTimeoutDelay:    10,
		RxWaitTimeout:     120,
	}
}

// Validate checks the ranges the register fields cannot hold
func (s *Settings) Validate() error {
	if s.XtalHz == 0 {
		return fmt.Errorf("xtal_hz must be non-zero")
	}
	if s.Bitrate == 0 {
		return fmt.Errorf("bitrate must be non-zero")
	}
	if s.ModIndex == 0 {
		return fmt.Errorf("mod_index must be non-zero")
	}
	if s.PASetting > 63 {
		return fmt.Errorf("pa_setting %d out of range 0-63", s.PASetting)
	}
	if s.IFBandwidth > 2 {
		return fmt.Errorf("if_bandwidth %d out of range 0-2", s.IFBandwidth)
	}
	if s.SyncWordLength > 3 {
		return fmt.Errorf("sync_word_length %d out of range 0-3", s.SyncWordLength)
	}
	if s.SyncWordTolerance > 3 {
		return fmt.Errorf("sync_word_tolerance %d out of range 0-3", s.SyncWordTolerance)
	}
	if s.SyncWord>>24 != 0 {
		return fmt.Errorf("sync_word 0x%x wider than 24 bits", s.SyncWord)
	}
	if _, err := adf7021.PlanClocks(s.XtalHz, uint32(s.Bitrate), s.ModIndex); err != nil {
		return fmt.Errorf("bitrate %d with mod_index %d: %w", s.Bitrate, s.ModIndex, err)
	}
	return nil
}

// RadioConfig derives the radio controller configuration
func (s *Settings) RadioConfig() adf7021.Config {
	return adf7021.Config{
		XtalHz:            s.XtalHz,
		DataRate:          uint32(s.Bitrate),
		ModIndex:          s.ModIndex,
		RxFreq:            s.RxFreq,
		TxFreq:            s.TxFreq,
		IFBandwidth:       s.IFBandwidth,
		PASetting:         s.PASetting,
		SyncWord:          s.SyncWord,
		SyncWordLength:    s.SyncWordLength,
		SyncWordTolerance: s.SyncWordTolerance,
		AFCEnable:         s.AFCEnable,
		AFCRange:          s.AFCRange,
		AFCKI:             s.AFCKI,
		AFCKP:             s.AFCKP,
		PTTDelayHigh:      time.Duration(s.PTTDelayHighMs) * time.Millisecond,
		PTTDelayLow:       time.Duration(s.PTTDelayLowMs) * time.Millisecond,
	}
}

// FramerConfig derives the frame engine configuration
func (s *Settings) FramerConfig() framer.Config {
	return framer.Config{
		Callsign:      s.Callsign,
		SyncTolerance: s.SyncWordTolerance,
		TrainingBytes: s.TrainingBytes,
		Coding: framer.Coding{
			ReedSolomon:   s.ReedSolomon,
			Convolutional: s.Convolutional,
		},
	}
}

// CSMADelay is the per-pass quarantine delay
func (s *Settings) CSMADelay() time.Duration {
	return time.Duration(s.CSMADelayMs) * time.Millisecond
}
