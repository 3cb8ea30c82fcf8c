package bluebox

import (
	"fmt"
	"strings"

	"github.com/herlein/bluebox/pkg/protocol"
	"github.com/herlein/bluebox/pkg/registers"
)

// ReadRegister reads back the 16-bit word for a readback selector
func (d *Device) ReadRegister(sel registers.ReadbackSelector) (registers.Value, error) {
	b, err := d.controlIn(protocol.RequestRegister, uint16(sel.Masked()), 0, 4)
	if err != nil {
		return 0, err
	}
	v, _ := protocol.U32(b)
	return registers.Value(v), nil
}

// WriteRegister writes a full register word. The device rewrites the
// address nibble from wValue.
func (d *Device) WriteRegister(v registers.Value) error {
	return d.controlOut(protocol.RequestRegister, uint16(v.Address()), 0, protocol.PutU32(uint32(v)))
}

// GetFrequency returns the RX or TX centre frequency in Hz
func (d *Device) GetFrequency(which uint16) (uint32, error) {
	b, err := d.controlIn(protocol.RequestFrequency, 0, which, 4)
	if err != nil {
		return 0, err
	}
	return protocol.U32(b)
}

// SetFrequency sets the RX, TX or both centre frequencies in Hz
func (d *Device) SetFrequency(which uint16, hz uint32) error {
	return d.controlOut(protocol.RequestFrequency, 0, which, protocol.PutU32(hz))
}

// GetModIndex returns the modulation index
func (d *Device) GetModIndex() (uint8, error) {
	b, err := d.controlIn(protocol.RequestModIndex, 0, 0, 1)
	if err != nil {
		return 0, err
	}
	return protocol.U8(b)
}

// SetModIndex sets the modulation index
func (d *Device) SetModIndex(index uint8) error {
	return d.controlOut(protocol.RequestModIndex, 0, 0, protocol.PutU8(index))
}

// GetBitrate returns the data rate in bps
func (d *Device) GetBitrate() (uint16, error) {
	b, err := d.controlIn(protocol.RequestBitrate, 0, 0, 2)
	if err != nil {
		return 0, err
	}
	return protocol.U16(b)
}

// SetBitrate sets the data rate in bps
func (d *Device) SetBitrate(bps uint16) error {
	return d.controlOut(protocol.RequestBitrate, 0, 0, protocol.PutU16(bps))
}

// GetPower returns the PA setting, 0-63
func (d *Device) GetPower() (uint8, error) {
	b, err := d.controlIn(protocol.RequestPower, 0, 0, 1)
	if err != nil {
		return 0, err
	}
	return protocol.U8(b)
}

// SetPower sets the PA setting, 0-63
func (d *Device) SetPower(pa uint8) error {
	return d.controlOut(protocol.RequestPower, 0, 0, protocol.PutU8(pa))
}

// GetCSMA returns the carrier sense threshold in dBm
func (d *Device) GetCSMA() (int16, error) {
	b, err := d.controlIn(protocol.RequestCSMARSSI, 0, 0, 2)
	if err != nil {
		return 0, err
	}
	return protocol.I16(b)
}

// SetCSMA sets the carrier sense threshold in dBm
func (d *Device) SetCSMA(dbm int16) error {
	return d.controlOut(protocol.RequestCSMARSSI, 0, 0, protocol.PutI16(dbm))
}

// GetAFC returns the AFC loop settings
func (d *Device) GetAFC() (protocol.AFC, error) {
	var afc protocol.AFC
	b, err := d.controlIn(protocol.RequestAFC, 0, 0, 4)
	if err != nil {
		return afc, err
	}
	err = afc.UnmarshalBinary(b)
	return afc, err
}

// SetAFC sets the AFC loop settings
func (d *Device) SetAFC(afc protocol.AFC) error {
	b, _ := afc.MarshalBinary()
	return d.controlOut(protocol.RequestAFC, 0, 0, b)
}

// GetIFBW returns the IF bandwidth class
func (d *Device) GetIFBW() (uint8, error) {
	b, err := d.controlIn(protocol.RequestIFBW, 0, 0, 1)
	if err != nil {
		return 0, err
	}
	return protocol.U8(b)
}

// SetIFBW sets the IF bandwidth class (0 = 12.5, 1 = 18.75, 2 = 25 kHz)
func (d *Device) SetIFBW(class uint8) error {
	return d.controlOut(protocol.RequestIFBW, 0, 0, protocol.PutU8(class))
}

// GetTraining returns the number of training bytes sent before a frame
func (d *Device) GetTraining() (uint8, error) {
	b, err := d.controlIn(protocol.RequestTraining, 0, 0, 1)
	if err != nil {
		return 0, err
	}
	return protocol.U8(b)
}

// SetTraining sets the number of training bytes
func (d *Device) SetTraining(n uint8) error {
	return d.controlOut(protocol.RequestTraining, 0, 0, protocol.PutU8(n))
}

// TrainingBytes converts a training duration to bytes at bitrate
func TrainingBytes(ms int, bitrate uint16) uint8 {
	n := ms * int(bitrate) / 8000
	if n > 255 {
		n = 255
	}
	if n < 0 {
		n = 0
	}
	return uint8(n)
}

// SetTrainingMs sets the training length as a duration at the current bitrate
func (d *Device) SetTrainingMs(ms int) error {
	bitrate, err := d.GetBitrate()
	if err != nil {
		return err
	}
	return d.SetTraining(TrainingBytes(ms, bitrate))
}

// TrainingMs returns the training length as a duration at the current bitrate
func (d *Device) TrainingMs() (int, error) {
	bitrate, err := d.GetBitrate()
	if err != nil {
		return 0, err
	}
	if bitrate == 0 {
		return 0, fmt.Errorf("device reports zero bitrate")
	}
	n, err := d.GetTraining()
	if err != nil {
		return 0, err
	}
	return int(n) * 8000 / int(bitrate), nil
}

// GetSyncWord returns the sync word detector settings
func (d *Device) GetSyncWord() (protocol.SyncWord, error) {
	var sw protocol.SyncWord
	b, err := d.controlIn(protocol.RequestSyncWord, 0, 0, 6)
	if err != nil {
		return sw, err
	}
	err = sw.UnmarshalBinary(b)
	return sw, err
}

// SetSyncWord sets the sync word detector settings
func (d *Device) SetSyncWord(sw protocol.SyncWord) error {
	b, _ := sw.MarshalBinary()
	return d.controlOut(protocol.RequestSyncWord, 0, 0, b)
}

// SetTXMode switches the radio to transmit
func (d *Device) SetTXMode() error {
	return d.controlOut(protocol.RequestRxTxMode, protocol.ModeTX, 0, nil)
}

// SetRXMode switches the radio to receive
func (d *Device) SetRXMode() error {
	return d.controlOut(protocol.RequestRxTxMode, protocol.ModeRX, 0, nil)
}

// GetSerial returns the persisted serial number
func (d *Device) GetSerial() (uint32, error) {
	b, err := d.controlIn(protocol.RequestSerial, 0, 0, 4)
	if err != nil {
		return 0, err
	}
	return protocol.U32(b)
}

// SetSerial persists a new serial number
func (d *Device) SetSerial(serial uint32) error {
	return d.controlOut(protocol.RequestSerial, 0, 0, protocol.PutU32(serial))
}

// GetFWRevision returns the firmware revision string
func (d *Device) GetFWRevision() (string, error) {
	b, err := d.controlIn(protocol.RequestFWRevision, 0, 0, 32)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}

// Reset soft-resets the radio. The transfer may fail as the device
// drops off the bus; that is not reported.
func (d *Device) Reset() {
	d.controlOut(protocol.RequestReset, 0, 0, nil)
}

// DFU asks the device to jump to its bootloader
func (d *Device) DFU() {
	d.controlOut(protocol.RequestDFU, 0, 0, nil)
}

// Version returns the chip silicon revision
func (d *Device) Version() (uint16, error) {
	v, err := d.ReadRegister(registers.ReadbackVersion)
	if err != nil {
		return 0, err
	}
	return registers.VersionFromReadback(v), nil
}

// RSSI returns the current channel RSSI in dBm
func (d *Device) RSSI() (int, error) {
	v, err := d.ReadRegister(registers.ReadbackRSSI)
	if err != nil {
		return 0, err
	}
	return registers.RSSIFromReadback(v), nil
}

// TestMode starts one of the chip's TX test patterns
func (d *Device) TestMode(mode uint8) error {
	return d.WriteRegister(registers.TestMode{TxTestMode: mode, ClkMux: 7}.Pack())
}
