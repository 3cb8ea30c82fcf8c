package registers

import "fmt"

// Accessor reads and writes chip registers, either directly on the
// serial bus or through a host link
type Accessor interface {
	ReadRegister(sel ReadbackSelector) (Value, error)
	WriteRegister(v Value) error
}

// Telemetry is a snapshot of every readback the chip offers
type Telemetry struct {
	Version     uint16  `json:"version"`
	RSSI        int     `json:"rssi_dbm"`
	AFCOffset   int     `json:"afc_offset_hz"`
	Temperature int     `json:"temperature_c"`
	Voltage     float64 `json:"voltage_v"`
}

// ReadTelemetry reads all readbacks. The ADC is enabled through R8
// before the temperature and voltage reads.
func ReadTelemetry(a Accessor, xtalHz uint32) (*Telemetry, error) {
	var t Telemetry

	v, err := a.ReadRegister(ReadbackVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	t.Version = VersionFromReadback(v)

	if v, err = a.ReadRegister(ReadbackRSSI); err != nil {
		return nil, fmt.Errorf("failed to read RSSI: %w", err)
	}
	t.RSSI = RSSIFromReadback(v)

	if v, err = a.ReadRegister(ReadbackAFC); err != nil {
		return nil, fmt.Errorf("failed to read AFC: %w", err)
	}
	t.AFCOffset = AFCFromReadback(v, xtalHz)

	if err := a.WriteRegister(PowerDown{ADCEnable: true}.Pack()); err != nil {
		return nil, fmt.Errorf("failed to enable ADC: %w", err)
	}

	if v, err = a.ReadRegister(ReadbackTemperature); err != nil {
		return nil, fmt.Errorf("failed to read temperature: %w", err)
	}
	t.Temperature = TemperatureFromReadback(v)

	if v, err = a.ReadRegister(ReadbackVoltage); err != nil {
		return nil, fmt.Errorf("failed to read voltage: %w", err)
	}
	t.Voltage = VoltageFromReadback(v)

	return &t, nil
}

// SetTestMode starts a TX test pattern, keeping CLK_MUX routed to the SPI
func SetTestMode(a Accessor, mode uint8) error {
	if err := a.WriteRegister(TestMode{TxTestMode: mode, ClkMux: 7}.Pack()); err != nil {
		return fmt.Errorf("failed to set test mode %d: %w", mode, err)
	}
	return nil
}
