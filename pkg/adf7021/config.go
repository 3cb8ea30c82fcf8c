package adf7021

import "time"

// Config holds everything the radio needs to synthesize its registers.
// It is copied into Radio; use Radio.SetConfig to change it.
type Config struct {
	XtalHz uint32

	DataRate    uint32 // bps
	ModIndex    uint8
	RxFreq      uint32 // Hz
	TxFreq      uint32 // Hz
	IFBandwidth uint8  // 0 = 12.5 kHz, 1 = 18.75 kHz, 2 = 25 kHz
	PASetting   uint8  // 0-63

	SyncWord          uint32
	SyncWordLength    uint8 // registers.SyncWordLen*
	SyncWordTolerance uint8

	AFCEnable bool
	AFCRange  uint8
	AFCKI     uint8
	AFCKP     uint8

	PTTDelayHigh time.Duration // after asserting PTT, before the final TX write
	PTTDelayLow  time.Duration // after releasing PTT
}

// DefaultConfig returns the power-up configuration
func DefaultConfig() Config {
	return Config{
		XtalHz:            16000000,
		DataRate:          2400,
		ModIndex:          8,
		RxFreq:            437450000,
		TxFreq:            437450000,
		IFBandwidth:       2,
		PASetting:         8,
		SyncWord:          0x4E4F43,
		SyncWordLength:    3,
		SyncWordTolerance: 3,
		AFCEnable:         true,
		AFCRange:          10,
		AFCKI:             11,
		AFCKP:             4,
		PTTDelayHigh:      2 * time.Millisecond,
		PTTDelayLow:       1 * time.Millisecond,
	}
}
