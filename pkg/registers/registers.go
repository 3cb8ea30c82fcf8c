package registers

// Value is the raw 32-bit word clocked into the ADF7021.
// Bits [3:0] always carry the register address.
type Value uint32

// Register identifies one of the sixteen ADF7021 registers
type Register uint8

const (
	RegN         Register = 0  // PLL N divider, RX/TX select
	RegVCOOsc    Register = 1  // VCO and crystal oscillator
	RegTxMod     Register = 2  // TX modulation and PA
	RegTxRxClock Register = 3  // Demod, CDR, sequencer and AGC clocks
	RegDemod     Register = 4  // Demodulator setup
	RegIFFilter  Register = 5  // IF filter setup
	RegIFFineCal Register = 6  // IF fine calibration
	RegReadback  Register = 7  // Readback select
	RegPowerDown Register = 8  // Power-down test
	RegAGC       Register = 9  // AGC
	RegAFC       Register = 10 // Automatic frequency control
	RegSyncWord  Register = 11 // Sync word detect
	RegSWDThresh Register = 12 // SWD/threshold setup
	Reg3FSK4FSK  Register = 13 // 3FSK/4FSK demod
	RegTestDAC   Register = 14 // Test DAC
	RegTestMode  Register = 15 // Test mode
)

const addressMask Value = 0xF

// String returns a human-readable name for the register
func (r Register) String() string {
	names := map[Register]string{
		RegN:         "N",
		RegVCOOsc:    "VCO_OSC",
		RegTxMod:     "TX_MOD",
		RegTxRxClock: "TXRX_CLK",
		RegDemod:     "DEMOD",
		RegIFFilter:  "IF_FILTER",
		RegIFFineCal: "IF_FINE_CAL",
		RegReadback:  "READBACK",
		RegPowerDown: "POWER_DOWN",
		RegAGC:       "AGC",
		RegAFC:       "AFC",
		RegSyncWord:  "SWD",
		RegSWDThresh: "SWD_THRESHOLD",
		Reg3FSK4FSK:  "3FSK_4FSK",
		RegTestDAC:   "TEST_DAC",
		RegTestMode:  "TEST_MODE",
	}
	if name, ok := names[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// Address returns the register address carried in bits [3:0]
func (v Value) Address() Register {
	return Register(v & addressMask)
}

// WithAddress returns v with its address field re-derived from r
func (v Value) WithAddress(r Register) Value {
	return (v &^ addressMask) | Value(r)&addressMask
}

// Lower returns the low 16 bits, which is where readback data lands
func (v Value) Lower() uint16 {
	return uint16(v)
}

// Byte returns byte i of the value, least significant first
func (v Value) Byte(i int) uint8 {
	return uint8(v >> (8 * uint(i)))
}

// field describes a bit range inside a register word
type field struct {
	shift uint
	width uint
}

func (f field) mask() uint32 {
	return (1<<f.width - 1) << f.shift
}

func (f field) put(v *uint32, x uint32) {
	*v = (*v &^ f.mask()) | (x<<f.shift)&f.mask()
}

func (f field) get(v uint32) uint32 {
	return (v & f.mask()) >> f.shift
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func pack(r Register, fill func(v *uint32)) Value {
	var v uint32
	fill(&v)
	return Value(v).WithAddress(r)
}

// N (R0) sets the synthesizer divider and RX/TX direction.
type N struct {
	FracN    uint16 // 15 bits
	IntN     uint8  // 8 bits
	RxOn     bool
	UARTMode bool
	Muxout   uint8 // 3 bits
}

var (
	r0FracN    = field{4, 15}
	r0IntN     = field{19, 8}
	r0RxOn     = field{27, 1}
	r0UARTMode = field{28, 1}
	r0Muxout   = field{29, 3}
)

// Pack encodes R0
func (r N) Pack() Value {
	return pack(RegN, func(v *uint32) {
		r0FracN.put(v, uint32(r.FracN))
		r0IntN.put(v, uint32(r.IntN))
		r0RxOn.put(v, b2u(r.RxOn))
		r0UARTMode.put(v, b2u(r.UARTMode))
		r0Muxout.put(v, uint32(r.Muxout))
	})
}

// UnpackN decodes R0
func UnpackN(v Value) N {
	w := uint32(v)
	return N{
		FracN:    uint16(r0FracN.get(w)),
		IntN:     uint8(r0IntN.get(w)),
		RxOn:     r0RxOn.get(w) == 1,
		UARTMode: r0UARTMode.get(w) == 1,
		Muxout:   uint8(r0Muxout.get(w)),
	}
}

// VCOOsc (R1) controls the VCO and crystal oscillator.
type VCOOsc struct {
	RCounter       uint8 // 3 bits
	ClockoutDivide uint8 // 4 bits
	XtalDoubler    bool
	XoscEnable     bool
	XtalBias       uint8 // 2 bits
	CPCurrent      uint8 // 2 bits
	VCOEnable      bool
	RFDivideBy2    bool
	VCOBias        uint8 // 4 bits
	VCOAdjust      uint8 // 2 bits
	VCOInductor    bool
}

var (
	r1RCounter       = field{4, 3}
	r1ClockoutDivide = field{7, 4}
	r1XtalDoubler    = field{11, 1}
	r1XoscEnable     = field{12, 1}
	r1XtalBias       = field{13, 2}
	r1CPCurrent      = field{15, 2}
	r1VCOEnable      = field{17, 1}
	r1RFDivideBy2    = field{18, 1}
	r1VCOBias        = field{19, 4}
	r1VCOAdjust      = field{23, 2}
	r1VCOInductor    = field{25, 1}
)

// Pack encodes R1
func (r VCOOsc) Pack() Value {
	return pack(RegVCOOsc, func(v *uint32) {
		r1RCounter.put(v, uint32(r.RCounter))
		r1ClockoutDivide.put(v, uint32(r.ClockoutDivide))
		r1XtalDoubler.put(v, b2u(r.XtalDoubler))
		r1XoscEnable.put(v, b2u(r.XoscEnable))
		r1XtalBias.put(v, uint32(r.XtalBias))
		r1CPCurrent.put(v, uint32(r.CPCurrent))
		r1VCOEnable.put(v, b2u(r.VCOEnable))
		r1RFDivideBy2.put(v, b2u(r.RFDivideBy2))
		r1VCOBias.put(v, uint32(r.VCOBias))
		r1VCOAdjust.put(v, uint32(r.VCOAdjust))
		r1VCOInductor.put(v, b2u(r.VCOInductor))
	})
}

// UnpackVCOOsc decodes R1
func UnpackVCOOsc(v Value) VCOOsc {
	w := uint32(v)
	return VCOOsc{
		RCounter:       uint8(r1RCounter.get(w)),
		ClockoutDivide: uint8(r1ClockoutDivide.get(w)),
		XtalDoubler:    r1XtalDoubler.get(w) == 1,
		XoscEnable:     r1XoscEnable.get(w) == 1,
		XtalBias:       uint8(r1XtalBias.get(w)),
		CPCurrent:      uint8(r1CPCurrent.get(w)),
		VCOEnable:      r1VCOEnable.get(w) == 1,
		RFDivideBy2:    r1RFDivideBy2.get(w) == 1,
		VCOBias:        uint8(r1VCOBias.get(w)),
		VCOAdjust:      uint8(r1VCOAdjust.get(w)),
		VCOInductor:    r1VCOInductor.get(w) == 1,
	}
}

// Modulation schemes for R2
const (
	ModFSK   = 0
	ModGFSK  = 1
	ModRCFSK = 5
)

// TxMod (R2) sets the TX modulation, deviation and power amplifier.
type TxMod struct {
	ModulationScheme uint8 // 3 bits
	PAEnable         bool
	PARamp           uint8  // 3 bits, 0 = off, 7 = slowest
	PABias           uint8  // 2 bits
	PowerAmplifier   uint8  // 6 bits, 0 = off, 63 = max
	FreqDeviation    uint16 // 9 bits
	TxDataInvert     uint8  // 2 bits
	RCosineAlpha     bool
}

var (
	r2Modulation = field{4, 3}
	r2PAEnable   = field{7, 1}
	r2PARamp     = field{8, 3}
	r2PABias     = field{11, 2}
	r2Power      = field{13, 6}
	r2Deviation  = field{19, 9}
	r2Invert     = field{28, 2}
	r2RCosine    = field{30, 1}
)

// Pack encodes R2
func (r TxMod) Pack() Value {
	return pack(RegTxMod, func(v *uint32) {
		r2Modulation.put(v, uint32(r.ModulationScheme))
		r2PAEnable.put(v, b2u(r.PAEnable))
		r2PARamp.put(v, uint32(r.PARamp))
		r2PABias.put(v, uint32(r.PABias))
		r2Power.put(v, uint32(r.PowerAmplifier))
		r2Deviation.put(v, uint32(r.FreqDeviation))
		r2Invert.put(v, uint32(r.TxDataInvert))
		r2RCosine.put(v, b2u(r.RCosineAlpha))
	})
}

// UnpackTxMod decodes R2
func UnpackTxMod(v Value) TxMod {
	w := uint32(v)
	return TxMod{
		ModulationScheme: uint8(r2Modulation.get(w)),
		PAEnable:         r2PAEnable.get(w) == 1,
		PARamp:           uint8(r2PARamp.get(w)),
		PABias:           uint8(r2PABias.get(w)),
		PowerAmplifier:   uint8(r2Power.get(w)),
		FreqDeviation:    uint16(r2Deviation.get(w)),
		TxDataInvert:     uint8(r2Invert.get(w)),
		RCosineAlpha:     r2RCosine.get(w) == 1,
	}
}

// TxRxClock (R3) holds the clock dividers derived by the clock planner.
type TxRxClock struct {
	BBOSClkDivide uint8 // 2 bits
	DemClkDivide  uint8 // 4 bits
	CDRClkDivide  uint8 // 8 bits
	SeqClkDivide  uint8 // 8 bits
	AGCClkDivide  uint8 // 6 bits
}

var (
	r3BBOS = field{4, 2}
	r3Dem  = field{6, 4}
	r3CDR  = field{10, 8}
	r3Seq  = field{18, 8}
	r3AGC  = field{26, 6}
)

// Pack encodes R3
func (r TxRxClock) Pack() Value {
	return pack(RegTxRxClock, func(v *uint32) {
		r3BBOS.put(v, uint32(r.BBOSClkDivide))
		r3Dem.put(v, uint32(r.DemClkDivide))
		r3CDR.put(v, uint32(r.CDRClkDivide))
		r3Seq.put(v, uint32(r.SeqClkDivide))
		r3AGC.put(v, uint32(r.AGCClkDivide))
	})
}

// UnpackTxRxClock decodes R3
func UnpackTxRxClock(v Value) TxRxClock {
	w := uint32(v)
	return TxRxClock{
		BBOSClkDivide: uint8(r3BBOS.get(w)),
		DemClkDivide:  uint8(r3Dem.get(w)),
		CDRClkDivide:  uint8(r3CDR.get(w)),
		SeqClkDivide:  uint8(r3Seq.get(w)),
		AGCClkDivide:  uint8(r3AGC.get(w)),
	}
}

// Demod (R4) configures the demodulator.
type Demod struct {
	DemodScheme uint8 // 3 bits
	DotProduct  uint8 // 1 bit
	RxInvert    uint8 // 2 bits
	DiscBW      uint16
	PostDemodBW uint16
	IFBandwidth uint8 // 0 = 12.5 kHz, 1 = 18.75 kHz, 2 = 25 kHz
}

var (
	r4Scheme    = field{4, 3}
	r4Dot       = field{7, 1}
	r4Invert    = field{8, 2}
	r4DiscBW    = field{10, 10}
	r4PostDemod = field{20, 10}
	r4IFBW      = field{30, 2}
)

// Pack encodes R4
func (r Demod) Pack() Value {
	return pack(RegDemod, func(v *uint32) {
		r4Scheme.put(v, uint32(r.DemodScheme))
		r4Dot.put(v, uint32(r.DotProduct))
		r4Invert.put(v, uint32(r.RxInvert))
		r4DiscBW.put(v, uint32(r.DiscBW))
		r4PostDemod.put(v, uint32(r.PostDemodBW))
		r4IFBW.put(v, uint32(r.IFBandwidth))
	})
}

// UnpackDemod decodes R4
func UnpackDemod(v Value) Demod {
	w := uint32(v)
	return Demod{
		DemodScheme: uint8(r4Scheme.get(w)),
		DotProduct:  uint8(r4Dot.get(w)),
		RxInvert:    uint8(r4Invert.get(w)),
		DiscBW:      uint16(r4DiscBW.get(w)),
		PostDemodBW: uint16(r4PostDemod.get(w)),
		IFBandwidth: uint8(r4IFBW.get(w)),
	}
}

// IFFilter (R5) sets up IF filter calibration.
type IFFilter struct {
	IFCalCoarse        bool
	IFFilterDivider    uint16 // 9 bits
	IFFilterAdjust     uint8  // 6 bits
	IRPhaseAdjustMag   uint8  // 4 bits
	IRPhaseAdjustDir   bool
	IRGainAdjustMag    uint8 // 5 bits
	IRGainAdjustIQ     bool
	IRGainAdjustUpDown bool
}

var (
	r5CalCoarse = field{4, 1}
	r5Divider   = field{5, 9}
	r5Adjust    = field{14, 6}
	r5PhaseMag  = field{20, 4}
	r5PhaseDir  = field{24, 1}
	r5GainMag   = field{25, 5}
	r5GainIQ    = field{30, 1}
	r5GainUpDn  = field{31, 1}
)

// Pack encodes R5
func (r IFFilter) Pack() Value {
	return pack(RegIFFilter, func(v *uint32) {
		r5CalCoarse.put(v, b2u(r.IFCalCoarse))
		r5Divider.put(v, uint32(r.IFFilterDivider))
		r5Adjust.put(v, uint32(r.IFFilterAdjust))
		r5PhaseMag.put(v, uint32(r.IRPhaseAdjustMag))
		r5PhaseDir.put(v, b2u(r.IRPhaseAdjustDir))
		r5GainMag.put(v, uint32(r.IRGainAdjustMag))
		r5GainIQ.put(v, b2u(r.IRGainAdjustIQ))
		r5GainUpDn.put(v, b2u(r.IRGainAdjustUpDown))
	})
}

// UnpackIFFilter decodes R5
func UnpackIFFilter(v Value) IFFilter {
	w := uint32(v)
	return IFFilter{
		IFCalCoarse:        r5CalCoarse.get(w) == 1,
		IFFilterDivider:    uint16(r5Divider.get(w)),
		IFFilterAdjust:     uint8(r5Adjust.get(w)),
		IRPhaseAdjustMag:   uint8(r5PhaseMag.get(w)),
		IRPhaseAdjustDir:   r5PhaseDir.get(w) == 1,
		IRGainAdjustMag:    uint8(r5GainMag.get(w)),
		IRGainAdjustIQ:     r5GainIQ.get(w) == 1,
		IRGainAdjustUpDown: r5GainUpDn.get(w) == 1,
	}
}

// Readback (R7) selects what the next readback cycle returns.
type Readback struct {
	Selector ReadbackSelector // 5 bits
}

var r7Selector = field{4, 5}

// Pack encodes R7
func (r Readback) Pack() Value {
	return pack(RegReadback, func(v *uint32) {
		r7Selector.put(v, uint32(r.Selector))
	})
}

// PowerDown (R8) only models the ADC enable bit used before
// temperature and voltage readback.
type PowerDown struct {
	ADCEnable bool
}

var r8ADCEnable = field{8, 1}

// Pack encodes R8
func (r PowerDown) Pack() Value {
	return pack(RegPowerDown, func(v *uint32) {
		r8ADCEnable.put(v, b2u(r.ADCEnable))
	})
}

// AFC (R10) controls the automatic frequency correction loop.
type AFC struct {
	Enable        bool
	ScalingFactor uint16 // 12 bits
	KI            uint8  // 4 bits
	KP            uint8  // 3 bits
	Range         uint8
}

var (
	r10Enable  = field{4, 1}
	r10Scaling = field{5, 12}
	r10KI      = field{17, 4}
	r10KP      = field{21, 3}
	r10Range   = field{24, 8}
)

// Pack encodes R10
func (r AFC) Pack() Value {
	return pack(RegAFC, func(v *uint32) {
		r10Enable.put(v, b2u(r.Enable))
		r10Scaling.put(v, uint32(r.ScalingFactor))
		r10KI.put(v, uint32(r.KI))
		r10KP.put(v, uint32(r.KP))
		r10Range.put(v, uint32(r.Range))
	})
}

// UnpackAFC decodes R10
func UnpackAFC(v Value) AFC {
	w := uint32(v)
	return AFC{
		Enable:        r10Enable.get(w) == 1,
		ScalingFactor: uint16(r10Scaling.get(w)),
		KI:            uint8(r10KI.get(w)),
		KP:            uint8(r10KP.get(w)),
		Range:         uint8(r10Range.get(w)),
	}
}

// Sync word length classes for R11
const (
	SyncWordLen12 = 0
	SyncWordLen16 = 1
	SyncWordLen20 = 2
	SyncWordLen24 = 3
)

// SyncWord (R11) programs the sync word detector.
type SyncWord struct {
	Length         uint8  // 2 bits, see SyncWordLen*
	ErrorTolerance uint8  // 2 bits, 0-3 bit errors
	Word           uint32 // 24 bits
}

var (
	r11Length    = field{4, 2}
	r11Tolerance = field{6, 2}
	r11Word      = field{8, 24}
)

// Pack encodes R11
func (r SyncWord) Pack() Value {
	return pack(RegSyncWord, func(v *uint32) {
		r11Length.put(v, uint32(r.Length))
		r11Tolerance.put(v, uint32(r.ErrorTolerance))
		r11Word.put(v, r.Word)
	})
}

// UnpackSyncWord decodes R11
func UnpackSyncWord(v Value) SyncWord {
	w := uint32(v)
	return SyncWord{
		Length:         uint8(r11Length.get(w)),
		ErrorTolerance: uint8(r11Tolerance.get(w)),
		Word:           r11Word.get(w),
	}
}

// SyncWordBits returns the detector length in bits for a length class
func SyncWordBits(lengthClass uint8) int {
	return 12 + 4*int(lengthClass&0x3)
}

// SWDThreshold (R12) arms the sync word detector.
type SWDThreshold struct {
	LockThresMode uint8 // 2 bits
	SWDMode       uint8 // 2 bits
	PacketLength  uint8
}

var (
	r12LockThres = field{4, 2}
	r12SWDMode   = field{6, 2}
	r12PktLen    = field{8, 8}
)

// Pack encodes R12
func (r SWDThreshold) Pack() Value {
	return pack(RegSWDThresh, func(v *uint32) {
		r12LockThres.put(v, uint32(r.LockThresMode))
		r12SWDMode.put(v, uint32(r.SWDMode))
		r12PktLen.put(v, uint32(r.PacketLength))
	})
}

// UnpackSWDThreshold decodes R12
func UnpackSWDThreshold(v Value) SWDThreshold {
	w := uint32(v)
	return SWDThreshold{
		LockThresMode: uint8(r12LockThres.get(w)),
		SWDMode:       uint8(r12SWDMode.get(w)),
		PacketLength:  uint8(r12PktLen.get(w)),
	}
}

// TestDAC (R14) configures the test DAC.
type TestDAC struct {
	TDACEnable bool
	DACOffset  uint16
	DACGain    uint8 // 4 bits
	PulseExt   uint8 // 2 bits
	LeakFactor uint8 // 3 bits
	EDPeakResp uint8 // 2 bits
}

var (
	r14Enable   = field{4, 1}
	r14Offset   = field{5, 16}
	r14Gain     = field{21, 4}
	r14PulseExt = field{25, 2}
	r14Leak     = field{27, 3}
	r14EDPeak   = field{30, 2}
)

// Pack encodes R14
func (r TestDAC) Pack() Value {
	return pack(RegTestDAC, func(v *uint32) {
		r14Enable.put(v, b2u(r.TDACEnable))
		r14Offset.put(v, uint32(r.DACOffset))
		r14Gain.put(v, uint32(r.DACGain))
		r14PulseExt.put(v, uint32(r.PulseExt))
		r14Leak.put(v, uint32(r.LeakFactor))
		r14EDPeak.put(v, uint32(r.EDPeakResp))
	})
}

// TX test patterns for R15
const (
	TestModeOff         = 0
	TestModeCarrierOnly = 1
	TestModeToneHigh    = 2
	TestModeToneLow     = 3
	TestModePattern1010 = 4
	TestModePatternPN9  = 5
	TestModeSyncByte    = 6
)

// TestMode (R15) selects test modes and the CLK_MUX output.
type TestMode struct {
	RxTestMode     uint8 // 4 bits
	TxTestMode     uint8 // 3 bits
	SDTestMode     uint8 // 3 bits
	CPTestMode     uint8 // 3 bits
	ClkMux         uint8 // 3 bits
	PLLTestMode    uint8 // 4 bits
	AnalogTestMode uint8 // 4 bits
	ForceLDHigh    bool
	Reg1PD         bool
	CalOverride    uint8 // 2 bits
}

var (
	r15RxTest   = field{4, 4}
	r15TxTest   = field{8, 3}
	r15SDTest   = field{11, 3}
	r15CPTest   = field{14, 3}
	r15ClkMux   = field{17, 3}
	r15PLLTest  = field{20, 4}
	r15Analog   = field{24, 4}
	r15ForceLD  = field{28, 1}
	r15Reg1PD   = field{29, 1}
	r15CalOverr = field{30, 2}
)

// Pack encodes R15
func (r TestMode) Pack() Value {
	return pack(RegTestMode, func(v *uint32) {
		r15RxTest.put(v, uint32(r.RxTestMode))
		r15TxTest.put(v, uint32(r.TxTestMode))
		r15SDTest.put(v, uint32(r.SDTestMode))
		r15CPTest.put(v, uint32(r.CPTestMode))
		r15ClkMux.put(v, uint32(r.ClkMux))
		r15PLLTest.put(v, uint32(r.PLLTestMode))
		r15Analog.put(v, uint32(r.AnalogTestMode))
		r15ForceLD.put(v, b2u(r.ForceLDHigh))
		r15Reg1PD.put(v, b2u(r.Reg1PD))
		r15CalOverr.put(v, uint32(r.CalOverride))
	})
}

// UnpackTestMode decodes R15
func UnpackTestMode(v Value) TestMode {
	w := uint32(v)
	return TestMode{
		RxTestMode:     uint8(r15RxTest.get(w)),
		TxTestMode:     uint8(r15TxTest.get(w)),
		SDTestMode:     uint8(r15SDTest.get(w)),
		CPTestMode:     uint8(r15CPTest.get(w)),
		ClkMux:         uint8(r15ClkMux.get(w)),
		PLLTestMode:    uint8(r15PLLTest.get(w)),
		AnalogTestMode: uint8(r15Analog.get(w)),
		ForceLDHigh:    r15ForceLD.get(w) == 1,
		Reg1PD:         r15Reg1PD.get(w) == 1,
		CalOverride:    uint8(r15CalOverr.get(w)),
	}
}
