package adf7021

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/herlein/bluebox/pkg/registers"
)

// Mode is the chip operating mode
type Mode int

const (
	ModeOff Mode = iota
	ModeIdle
	ModeReceiving
	ModeTransmitting
)

// String returns a human-readable name for the mode
func (m Mode) String() string {
	names := map[Mode]string{
		ModeOff:          "OFF",
		ModeIdle:         "IDLE",
		ModeReceiving:    "RX",
		ModeTransmitting: "TX",
	}
	if name, ok := names[m]; ok {
		return name
	}
	return "UNKNOWN"
}

// Desired is what a direction was asked to do
type Desired struct {
	DataRate uint32
	ModIndex uint8
	Freq     uint32
}

// Achieved is what the planned registers actually produce
type Achieved struct {
	DataRate      float64
	ModIndex      float64
	Freq          uint32
	FreqDeviation uint16
}

// ChannelPlan is the staged register set for one direction
type ChannelPlan struct {
	Desired Desired
	Real    Achieved
	Clocks  ClockPlan

	R0 registers.N
	R2 registers.TxMod // TX only
	R3 registers.TxRxClock
	R4 registers.Demod    // RX only
	R5 registers.IFFilter // RX only

	valid bool
}

// Valid reports whether the plan was produced by a successful configure
func (p ChannelPlan) Valid() bool {
	return p.valid
}

// SystemConfig holds the chip-wide registers that do not depend on direction
type SystemConfig struct {
	R1  registers.VCOOsc
	R10 registers.AFC
	R11 registers.SyncWord
	R12 registers.SWDThreshold
	R14 registers.TestDAC
	R15 registers.TestMode
}

// Radio controls one ADF7021. All methods are safe for concurrent use;
// bus access is serialized internally.
type Radio struct {
	mu     sync.Mutex
	bus    Bus
	fe     Frontend
	cfg    Config
	sleep  func(time.Duration)
	xtal   uint32
	mode   Mode
	paWarm bool

	rx  ChannelPlan
	tx  ChannelPlan
	sys SystemConfig
}

// Option tunes a Radio at construction
type Option func(*Radio)

// WithSleep replaces time.Sleep for the PTT and reset delays
func WithSleep(sleep func(time.Duration)) Option {
	return func(r *Radio) {
		r.sleep = sleep
	}
}

// NewRadio creates a powered-off radio on the given bus
func NewRadio(bus Bus, fe Frontend, cfg Config, opts ...Option) *Radio {
	r := &Radio{
		bus:   bus,
		fe:    fe,
		cfg:   cfg,
		sleep: time.Sleep,
		mode:  ModeOff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the current operating mode
func (r *Radio) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Config returns a copy of the active configuration
func (r *Radio) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// SetConfig replaces the configuration. Nothing is written until
// Reconfigure or one of the configure calls runs.
func (r *Radio) SetConfig(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// RXPlan returns the staged receive plan
func (r *Radio) RXPlan() ChannelPlan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rx
}

// TXPlan returns the staged transmit plan
func (r *Radio) TXPlan() ChannelPlan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tx
}

// System returns the chip-wide register state
func (r *Radio) System() SystemConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sys
}

func (r *Radio) write(v registers.Value) error {
	if err := r.bus.Write(v); err != nil {
		return fmt.Errorf("failed to write %s: %w", v.Address(), err)
	}
	return nil
}

// PowerOn enables the chip and brings up the oscillator, CLK_MUX and test DAC
func (r *Radio) PowerOn(xtalHz uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.powerOn(xtalHz)
}

func (r *Radio) powerOn(xtalHz uint32) error {
	if err := r.fe.SetChipEnable(true); err != nil {
		return fmt.Errorf("failed to enable chip: %w", err)
	}
	r.xtal = xtalHz

	r.sys.R1 = registers.VCOOsc{
		RCounter:    1,
		XoscEnable:  true,
		XtalBias:    3,
		CPCurrent:   3,
		VCOEnable:   true,
		RFDivideBy2: true,
		VCOBias:     15,
		VCOAdjust:   1,
	}
	if err := r.write(r.sys.R1.Pack()); err != nil {
		return err
	}

	r.sys.R15 = registers.TestMode{ClkMux: 7}
	if err := r.write(r.sys.R15.Pack()); err != nil {
		return err
	}

	r.sys.R14 = registers.TestDAC{}
	if err := r.write(r.sys.R14.Pack()); err != nil {
		return err
	}

	r.mode = ModeIdle
	r.paWarm = false
	return nil
}

// PowerOff drops chip enable. Allowed from any mode.
func (r *Radio) PowerOff() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.powerOff()
}

func (r *Radio) powerOff() error {
	if err := r.fe.SetChipEnable(false); err != nil {
		return fmt.Errorf("failed to disable chip: %w", err)
	}
	r.mode = ModeOff
	r.paWarm = false
	return nil
}

// nDivider splits freq/(xtal/2) into integer and 15-bit fractional parts
func nDivider(freq float64, xtalHz uint32) (uint8, uint16) {
	n := freq / (float64(xtalHz) * 0.5)
	whole := math.Floor(n)
	frac := math.Round((n - whole) * 32768)
	if frac >= 32768 {
		whole++
		frac = 0
	}
	return uint8(whole), uint16(frac)
}

// sharedClocks are the R3 dividers common to both directions
func (r *Radio) sharedClocks(c ClockPlan) registers.TxRxClock {
	seq := math.Round(float64(r.xtal) / 100000.0)
	return registers.TxRxClock{
		BBOSClkDivide: 2,
		DemClkDivide:  c.DemClkDivide,
		CDRClkDivide:  c.CDRClkDivide,
		SeqClkDivide:  uint8(seq),
		AGCClkDivide:  uint8(math.Round(float64(r.xtal) / seq / 10000.0)),
	}
}

func achieved(c ClockPlan, freq uint32) Achieved {
	return Achieved{
		DataRate:      c.DataRate,
		ModIndex:      c.ModIndex,
		Freq:          freq,
		FreqDeviation: c.FreqDeviation,
	}
}

// ConfigureRX plans and stages the receive registers. On error the
// previous plan is kept.
func (r *Radio) ConfigureRX(dataRate uint32, modIndex uint8, freq uint32, ifBandwidth uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.configureRX(dataRate, modIndex, freq, ifBandwidth)
}

func (r *Radio) configureRX(dataRate uint32, modIndex uint8, freq uint32, ifBandwidth uint8) error {
	if r.mode == ModeOff {
		return ErrPoweredOff
	}
	clocks, err := PlanClocks(r.xtal, dataRate, modIndex)
	if err != nil {
		return fmt.Errorf("failed to plan RX clocks: %w", err)
	}

	// the receiver runs 100 kHz below the carrier
	intN, fracN := nDivider(float64(freq)-100000, r.xtal)

	r.rx = ChannelPlan{
		Desired: Desired{DataRate: dataRate, ModIndex: modIndex, Freq: freq},
		Real:    achieved(clocks, freq),
		Clocks:  clocks,
		R0: registers.N{
			FracN:    fracN,
			IntN:     intN,
			RxOn:     true,
			UARTMode: true,
			Muxout:   2,
		},
		R3: r.sharedClocks(clocks),
		R4: registers.Demod{
			DemodScheme: 1,
			DotProduct:  clocks.DotProduct,
			RxInvert:    clocks.RxInvert,
			DiscBW:      clocks.DiscBW,
			PostDemodBW: clocks.PostDemodBW,
			IFBandwidth: ifBandwidth,
		},
		R5: registers.IFFilter{
			IFCalCoarse:     true,
			IFFilterDivider: uint16(r.xtal / 50000),
		},
		valid: true,
	}
	return nil
}

// ConfigureTX plans and stages the transmit registers and marks the PA
// register for rewrite on the next TX switch
func (r *Radio) ConfigureTX(dataRate uint32, modIndex uint8, freq uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.configureTX(dataRate, modIndex, freq)
}

func (r *Radio) configureTX(dataRate uint32, modIndex uint8, freq uint32) error {
	if r.mode == ModeOff {
		return ErrPoweredOff
	}
	clocks, err := PlanClocks(r.xtal, dataRate, modIndex)
	if err != nil {
		return fmt.Errorf("failed to plan TX clocks: %w", err)
	}

	intN, fracN := nDivider(float64(freq), r.xtal)

	r.tx = ChannelPlan{
		Desired: Desired{DataRate: dataRate, ModIndex: modIndex, Freq: freq},
		Real:    achieved(clocks, freq),
		Clocks:  clocks,
		R0: registers.N{
			FracN:    fracN,
			IntN:     intN,
			UARTMode: true,
			Muxout:   2,
		},
		R2: registers.TxMod{
			ModulationScheme: registers.ModGFSK,
			PAEnable:         true,
			PARamp:           7,
			PABias:           3,
			PowerAmplifier:   r.cfg.PASetting,
			FreqDeviation:    clocks.FreqDeviation,
		},
		R3:    r.sharedClocks(clocks),
		valid: true,
	}
	r.paWarm = false
	return nil
}

// SetRXMode switches to receive. Coming from TX only the registers that
// differ are rewritten. PTT is released after programming.
func (r *Radio) SetRXMode() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setRXMode()
}

func (r *Radio) setRXMode() error {
	if r.mode == ModeOff {
		return ErrPoweredOff
	}
	if !r.rx.valid {
		return fmt.Errorf("RX: %w", ErrNotConfigured)
	}

	var seq []registers.Value
	if r.mode == ModeTransmitting {
		if r.rx.R3.Pack() != r.tx.R3.Pack() {
			seq = append(seq, r.rx.R3.Pack())
		}
		seq = append(seq, r.rx.R0.Pack())
	} else {
		seq = append(seq, r.rx.R3.Pack(), r.rx.R5.Pack(), r.rx.R0.Pack(), r.rx.R4.Pack())
	}
	for _, v := range seq {
		if err := r.write(v); err != nil {
			return err
		}
	}

	if err := r.fe.SetTransmit(false); err != nil {
		return fmt.Errorf("failed to release PTT: %w", err)
	}
	r.sleep(r.cfg.PTTDelayLow)

	r.mode = ModeReceiving
	return nil
}

// SetTXMode switches to transmit. The PA register is written once after
// each TX configure. PTT is asserted before the final PLL write.
func (r *Radio) SetTXMode() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setTXMode()
}

func (r *Radio) setTXMode() error {
	if r.mode == ModeOff {
		return ErrPoweredOff
	}
	if !r.tx.valid {
		return fmt.Errorf("TX: %w", ErrNotConfigured)
	}

	if !r.paWarm {
		if err := r.write(r.tx.R2.Pack()); err != nil {
			return err
		}
		r.paWarm = true
	}

	if err := r.fe.SetTransmit(true); err != nil {
		return fmt.Errorf("failed to assert PTT: %w", err)
	}
	r.sleep(r.cfg.PTTDelayHigh)

	var seq []registers.Value
	if r.mode == ModeReceiving {
		if r.rx.R3.Pack() != r.tx.R3.Pack() {
			seq = append(seq, r.tx.R3.Pack())
		}
		seq = append(seq, r.tx.R0.Pack())
	} else {
		seq = append(seq, r.tx.R3.Pack(), r.tx.R0.Pack())
	}
	for _, v := range seq {
		if err := r.write(v); err != nil {
			return err
		}
	}

	r.mode = ModeTransmitting
	return nil
}

// SetSyncWord programs the sync word detector and re-arms it
func (r *Radio) SetSyncWord(word uint32, lengthClass, tolerance uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setSyncWord(word, lengthClass, tolerance)
}

func (r *Radio) setSyncWord(word uint32, lengthClass, tolerance uint8) error {
	r.sys.R11 = registers.SyncWord{
		Length:         lengthClass,
		ErrorTolerance: tolerance,
		Word:           word,
	}
	if err := r.write(r.sys.R11.Pack()); err != nil {
		return err
	}
	return r.setThresholdFree()
}

// SetThresholdFree re-arms free-running sync word detection
func (r *Radio) SetThresholdFree() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setThresholdFree()
}

func (r *Radio) setThresholdFree() error {
	r.sys.R12 = registers.SWDThreshold{
		LockThresMode: 1,
		SWDMode:       1,
		PacketLength:  255,
	}
	return r.write(r.sys.R12.Pack())
}

// afcScaling is 2^24 * 500 / xtal
func afcScaling(xtalHz uint32) uint16 {
	return uint16(math.Round(float64(1<<24) * 500 / float64(xtalHz)))
}

// EnableAFC turns the frequency correction loop on
func (r *Radio) EnableAFC(afcRange, ki, kp uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enableAFC(afcRange, ki, kp)
}

func (r *Radio) enableAFC(afcRange, ki, kp uint8) error {
	r.sys.R10 = registers.AFC{
		Enable:        true,
		ScalingFactor: afcScaling(r.xtal),
		KI:            ki,
		KP:            kp,
		Range:         afcRange,
	}
	return r.write(r.sys.R10.Pack())
}

// DisableAFC turns the loop off, keeping its constants
func (r *Radio) DisableAFC() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disableAFC()
}

func (r *Radio) disableAFC() error {
	r.sys.R10.Enable = false
	return r.write(r.sys.R10.Pack())
}

// SetTXPower updates the PA level and writes R2 immediately
func (r *Radio) SetTXPower(pa uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.PASetting = pa
	if !r.tx.valid {
		return nil
	}
	r.tx.R2.PowerAmplifier = pa
	return r.write(r.tx.R2.Pack())
}

func (r *Radio) readback(sel registers.ReadbackSelector) (registers.Value, error) {
	if r.mode == ModeOff {
		return 0, ErrPoweredOff
	}
	v, err := r.bus.Read(sel)
	if err != nil {
		return 0, fmt.Errorf("failed to read back 0x%02x: %w", uint8(sel), err)
	}
	return v, nil
}

// enableADC powers the ADC used by the temperature and voltage readbacks
func (r *Radio) enableADC() error {
	return r.write(registers.PowerDown{ADCEnable: true}.Pack())
}

// ReadRSSI returns the received signal strength in dBm
func (r *Radio) ReadRSSI() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, err := r.readback(registers.ReadbackRSSI)
	if err != nil {
		return 0, err
	}
	return registers.RSSIFromReadback(v), nil
}

// ReadAFCOffset returns the AFC frequency offset in Hz
func (r *Radio) ReadAFCOffset() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, err := r.readback(registers.ReadbackAFC)
	if err != nil {
		return 0, err
	}
	return registers.AFCFromReadback(v, r.xtal), nil
}

// ReadTemperature returns the die temperature in degrees Celsius
func (r *Radio) ReadTemperature() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode == ModeOff {
		return 0, ErrPoweredOff
	}
	if err := r.enableADC(); err != nil {
		return 0, err
	}
	v, err := r.readback(registers.ReadbackTemperature)
	if err != nil {
		return 0, err
	}
	return registers.TemperatureFromReadback(v), nil
}

// ReadSupplyVoltage returns the supply voltage in volts
func (r *Radio) ReadSupplyVoltage() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode == ModeOff {
		return 0, ErrPoweredOff
	}
	if err := r.enableADC(); err != nil {
		return 0, err
	}
	v, err := r.readback(registers.ReadbackVoltage)
	if err != nil {
		return 0, err
	}
	return registers.VoltageFromReadback(v), nil
}

// ReadVersion returns the silicon revision word
func (r *Radio) ReadVersion() (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, err := r.readback(registers.ReadbackVersion)
	if err != nil {
		return 0, err
	}
	return registers.VersionFromReadback(v), nil
}

// ReadRegister is the raw readback passthrough
func (r *Radio) ReadRegister(sel registers.ReadbackSelector) (registers.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readback(sel)
}

// WriteRegister is the raw write passthrough
func (r *Radio) WriteRegister(v registers.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode == ModeOff {
		return ErrPoweredOff
	}
	return r.write(v)
}

// Reconfigure reapplies sync word, RX plan, TX plan and AFC in that
// order, then forces RX mode
func (r *Radio) Reconfigure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconfigure()
}

func (r *Radio) reconfigure() error {
	c := r.cfg
	if err := r.setSyncWord(c.SyncWord, c.SyncWordLength, c.SyncWordTolerance); err != nil {
		return err
	}
	if err := r.configureRX(c.DataRate, c.ModIndex, c.RxFreq, c.IFBandwidth); err != nil {
		return err
	}
	if err := r.configureTX(c.DataRate, c.ModIndex, c.TxFreq); err != nil {
		return err
	}
	if c.AFCEnable {
		if err := r.enableAFC(c.AFCRange, c.AFCKI, c.AFCKP); err != nil {
			return err
		}
	} else {
		r.sys.R10 = registers.AFC{
			ScalingFactor: afcScaling(r.xtal),
			KI:            c.AFCKI,
			KP:            c.AFCKP,
			Range:         c.AFCRange,
		}
		if err := r.write(r.sys.R10.Pack()); err != nil {
			return err
		}
	}
	return r.setRXMode()
}

// Reset power-cycles the chip and reconfigures it from scratch
func (r *Radio) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode != ModeOff {
		if err := r.testMode(registers.TestModeOff); err != nil {
			return err
		}
	}
	if err := r.powerOff(); err != nil {
		return err
	}
	r.sleep(100 * time.Millisecond)
	if err := r.powerOn(r.cfg.XtalHz); err != nil {
		return err
	}
	return r.reconfigure()
}

// TestMode selects one of the R15 TX test patterns
func (r *Radio) TestMode(mode uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode == ModeOff {
		return ErrPoweredOff
	}
	return r.testMode(mode)
}

// TestOff leaves test mode
func (r *Radio) TestOff() error {
	return r.TestMode(registers.TestModeOff)
}

func (r *Radio) testMode(mode uint8) error {
	r.sys.R15.TxTestMode = mode
	return r.write(r.sys.R15.Pack())
}
