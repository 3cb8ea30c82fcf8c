package framer

import (
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
)

const (
	// CallsignLen is the on-air callsign length
	CallsignLen = 6
	// PrefixLen is the callsign tail checked after the hardware sync word
	PrefixLen = 3
	// TrainingSymbol is sent before the preamble for receiver clock lock
	TrainingSymbol byte = 0x55
)

// Config is the engine configuration. It is swapped atomically so the
// interrupt path always sees a consistent value.
type Config struct {
	Callsign      string
	SyncTolerance uint8
	TrainingBytes uint8
	Coding        Coding
}

// DefaultConfig returns the power-up framer configuration
func DefaultConfig() Config {
	return Config{
		Callsign:      "NOCALL",
		SyncTolerance: 3,
		TrainingBytes: 30,
		Coding:        Coding{ReedSolomon: true, Convolutional: true},
	}
}

// callsign returns the callsign space padded or truncated to CallsignLen
func (c *Config) callsign() [CallsignLen]byte {
	var cs [CallsignLen]byte
	for i := range cs {
		cs[i] = ' '
	}
	copy(cs[:], c.Callsign)
	return cs
}

// Lines are the interrupt sources the engine arms and disarms
type Lines interface {
	EnableSyncDetect()
	DisableSyncDetect()
	StartByteClock()
	StopByteClock()
}

// Telemetry is sampled once per received frame, at sync detect
type Telemetry interface {
	ReadRSSI() (int, error)
	ReadAFCOffset() (int, error)
}

// RxState is the receive state machine position
type RxState int32

const (
	RxIdle RxState = iota
	RxArmed
	RxPreamble
	RxBody
	RxComplete
	RxRejected
)

// String returns a human-readable name for the state
func (s RxState) String() string {
	names := map[RxState]string{
		RxIdle:     "IDLE",
		RxArmed:    "ARMED",
		RxPreamble: "PREAMBLE",
		RxBody:     "BODY",
		RxComplete: "COMPLETE",
		RxRejected: "REJECTED",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// TxState is the transmit state machine position
type TxState int32

const (
	TxIdle TxState = iota
	TxTraining
	TxPreamble
	TxBody
	TxComplete
)

// String returns a human-readable name for the state
func (s TxState) String() string {
	names := map[TxState]string{
		TxIdle:     "IDLE",
		TxTraining: "TRAINING",
		TxPreamble: "PREAMBLE",
		TxBody:     "BODY",
		TxComplete: "COMPLETE",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// owner says which path may touch the front buffer
const (
	ownerIdle int32 = iota
	ownerRx
	ownerTx
	ownerHeld
)

// Stats are running frame counters
type Stats struct {
	Received    uint64
	Rejected    uint64
	Overruns    uint64
	Transmitted uint64
}

// Engine assembles and disassembles frames one byte-clock at a time.
//
// OnSyncDetect, Clock and Abandon run on the interrupt path. Clock never
// blocks; OnSyncDetect samples telemetry through the radio and so may
// wait on the radio's bus lock. Drain, StartTransmit and FinishTransmit
// run on the main loop. Ownership of the front buffer moves between them
// with a CAS on owner, and completed frames are handed over through
// per-buffer ready flags. Hold parks the engine so the main loop can
// touch the radio without a frame in flight.
type Engine struct {
	lines Lines
	telem Telemetry
	cfg   atomic.Pointer[Config]

	bufs  [2]FrameBuffer
	ready [2]atomic.Bool
	order [2]atomic.Uint64
	front atomic.Uint32
	owner atomic.Int32

	// interrupt handlers currently running
	active atomic.Int32

	rx     atomic.Int32
	tx     atomic.Int32
	txDone atomic.Bool

	// interrupt path only
	pre      [PrefixLen]byte
	prePos   int
	txPre    [CallsignLen + 1]byte
	txPos    int
	txLen    int
	complete uint64

	received    atomic.Uint64
	rejected    atomic.Uint64
	overruns    atomic.Uint64
	transmitted atomic.Uint64
}

// NewEngine creates an idle engine. telem may be nil, in which case
// frames are stamped with zero RSSI and offset.
func NewEngine(lines Lines, telem Telemetry, cfg Config) *Engine {
	e := &Engine{
		lines: lines,
		telem: telem,
	}
	e.cfg.Store(&cfg)
	return e
}

// Config returns the active configuration
func (e *Engine) Config() Config {
	return *e.cfg.Load()
}

// SetConfig replaces the configuration. A frame in progress keeps
// the sizing it started with.
func (e *Engine) SetConfig(cfg Config) {
	e.cfg.Store(&cfg)
}

// RxState returns the receive state
func (e *Engine) RxState() RxState {
	return RxState(e.rx.Load())
}

// TxState returns the transmit state
func (e *Engine) TxState() TxState {
	return TxState(e.tx.Load())
}

// Idle reports whether neither direction owns the front buffer
func (e *Engine) Idle() bool {
	return e.owner.Load() == ownerIdle
}

// Stats returns a snapshot of the frame counters
func (e *Engine) Stats() Stats {
	return Stats{
		Received:    e.received.Load(),
		Rejected:    e.rejected.Load(),
		Overruns:    e.overruns.Load(),
		Transmitted: e.transmitted.Load(),
	}
}

// Arm enables sync detection. Call once after the radio enters RX.
func (e *Engine) Arm() {
	e.lines.EnableSyncDetect()
}

// OnSyncDetect handles the sync word edge. The frame is dropped as an
// overrun when the front buffer still holds an undrained frame.
func (e *Engine) OnSyncDetect() {
	e.active.Add(1)
	defer e.active.Add(-1)

	if !e.owner.CompareAndSwap(ownerIdle, ownerRx) {
		return
	}
	idx := e.front.Load()
	if e.ready[idx].Load() {
		e.overruns.Add(1)
		e.owner.Store(ownerIdle)
		return
	}

	e.lines.DisableSyncDetect()

	buf := &e.bufs[idx]
	buf.Size = 0
	buf.Progress = 0
	buf.Flags = 0
	buf.Training = 0
	buf.RSSI, buf.Freq = e.sample()
	e.prePos = 0

	e.rx.Store(int32(RxArmed))
	e.lines.StartByteClock()
}

func (e *Engine) sample() (rssi, freq int16) {
	if e.telem == nil {
		return 0, 0
	}
	if v, err := e.telem.ReadRSSI(); err == nil {
		rssi = clampInt16(v)
	}
	if v, err := e.telem.ReadAFCOffset(); err == nil {
		freq = clampInt16(v)
	}
	return rssi, freq
}

func clampInt16(v int) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Clock handles one byte-clock event. In receive in is the byte just
// shifted in; in transmit the returned byte is the next one to shift out.
func (e *Engine) Clock(in byte) byte {
	e.active.Add(1)
	defer e.active.Add(-1)

	switch e.owner.Load() {
	case ownerRx:
		e.clockRx(in)
	case ownerTx:
		return e.clockTx()
	}
	return 0
}

func (e *Engine) clockRx(in byte) {
	cfg := e.cfg.Load()
	buf := &e.bufs[e.front.Load()]

	switch RxState(e.rx.Load()) {
	case RxArmed, RxPreamble:
		if e.prePos < PrefixLen {
			e.pre[e.prePos] = in
			e.prePos++
			e.rx.Store(int32(RxPreamble))
			if e.prePos == PrefixLen {
				cs := cfg.callsign()
				if HammingDistance(e.pre[:], cs[CallsignLen-PrefixLen:]) > 2*int(cfg.SyncTolerance) {
					e.endRx(RxRejected)
				}
			}
			return
		}
		buf.Size = uint16(FrameLength(InferFrameType(in), cfg.Coding))
		buf.Progress = 0
		e.rx.Store(int32(RxBody))

	case RxBody:
		buf.Payload[buf.Progress] = in
		buf.Progress++
		if buf.Progress >= buf.Size {
			buf.Flags |= FlagReady
			idx := e.front.Load()
			e.complete++
			e.order[idx].Store(e.complete)
			e.ready[idx].Store(true)
			e.front.Store(idx ^ 1)
			e.received.Add(1)
			e.endRx(RxComplete)
		}
	}
}

// endRx stops the byte clock and re-arms sync detection
func (e *Engine) endRx(s RxState) {
	if s == RxRejected {
		e.rejected.Add(1)
	}
	e.lines.StopByteClock()
	e.rx.Store(int32(s))
	e.owner.Store(ownerIdle)
	e.lines.EnableSyncDetect()
}

func (e *Engine) clockTx() byte {
	buf := &e.bufs[e.front.Load()]

	switch TxState(e.tx.Load()) {
	case TxTraining:
		buf.Training--
		if buf.Training == 0 {
			e.tx.Store(int32(TxPreamble))
		}
		return TrainingSymbol

	case TxPreamble:
		b := e.txPre[e.txPos]
		e.txPos++
		if e.txPos == len(e.txPre) {
			e.tx.Store(int32(TxBody))
		}
		return b

	case TxBody:
		b := buf.Payload[buf.Progress]
		buf.Progress++
		if int(buf.Progress) >= e.txLen {
			e.lines.StopByteClock()
			e.tx.Store(int32(TxComplete))
			e.txDone.Store(true)
		}
		return b
	}
	return 0
}

// Abandon drops the frame in progress after the byte clock stalls. A
// receive is counted as rejected; a transmit is marked done so the main
// loop returns the radio to RX.
func (e *Engine) Abandon() {
	e.active.Add(1)
	defer e.active.Add(-1)

	switch e.owner.Load() {
	case ownerRx:
		e.endRx(RxRejected)
	case ownerTx:
		e.lines.StopByteClock()
		e.tx.Store(int32(TxComplete))
		e.txDone.Store(true)
	}
}

// Hold parks an idle engine: sync detection is disabled and no interrupt
// handler is left running, so the radio may be reprogrammed. It reports
// false when a frame owns the engine. Release undoes a successful Hold.
func (e *Engine) Hold() bool {
	if !e.owner.CompareAndSwap(ownerIdle, ownerHeld) {
		return false
	}
	e.quiesce()
	e.lines.DisableSyncDetect()
	return true
}

// Release returns a held engine to idle and re-arms sync detection
func (e *Engine) Release() {
	if e.owner.CompareAndSwap(ownerHeld, ownerIdle) {
		e.lines.EnableSyncDetect()
	}
}

// quiesce waits out handlers that read owner before it changed
func (e *Engine) quiesce() {
	for e.active.Load() != 0 {
		runtime.Gosched()
	}
}

// Drain hands the oldest completed frame to push. The buffer's ready flag
// is cleared only when push returns nil, so a failed push is retried on
// the next call. It reports whether a frame was delivered.
func (e *Engine) Drain(push func(*FrameBuffer) error) (bool, error) {
	idx := -1
	for i := range e.ready {
		if !e.ready[i].Load() {
			continue
		}
		if idx < 0 || e.order[i].Load() < e.order[idx].Load() {
			idx = i
		}
	}
	if idx < 0 {
		return false, nil
	}
	if err := push(&e.bufs[idx]); err != nil {
		return false, fmt.Errorf("failed to push frame: %w", err)
	}
	e.bufs[idx].Flags &^= FlagReady
	e.ready[idx].Store(false)
	return true, nil
}

// StartTransmit loads f into the front buffer and starts clocking it out.
// The radio must already be in TX mode. The engine may be idle or held;
// a held engine passes straight to transmit. Bytes past f.Size up to the
// frame length are sent as zeros.
func (e *Engine) StartTransmit(f *FrameBuffer) error {
	cfg := e.cfg.Load()
	size := int(f.Size)
	if size > PayloadCapacity {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLong, size)
	}
	t, err := FrameTypeFor(size, cfg.Coding)
	if err != nil {
		return err
	}

	prev := ownerHeld
	if !e.owner.CompareAndSwap(ownerHeld, ownerTx) {
		prev = ownerIdle
		if !e.owner.CompareAndSwap(ownerIdle, ownerTx) {
			return ErrBusy
		}
	}
	idx := e.front.Load()
	if e.ready[idx].Load() {
		e.owner.Store(prev)
		return ErrBusy
	}
	e.lines.DisableSyncDetect()

	buf := &e.bufs[idx]
	*buf = FrameBuffer{Size: f.Size}
	copy(buf.Payload[:size], f.Payload[:size])
	buf.Training = cfg.TrainingBytes

	cs := cfg.callsign()
	copy(e.txPre[:], cs[:])
	e.txPre[CallsignLen] = t.Marker()
	e.txPos = 0
	e.txLen = FrameLength(t, cfg.Coding)

	e.txDone.Store(false)
	if buf.Training > 0 {
		e.tx.Store(int32(TxTraining))
	} else {
		e.tx.Store(int32(TxPreamble))
	}
	e.lines.StartByteClock()
	return nil
}

// TxDone reports whether the last transmit has finished clocking out
func (e *Engine) TxDone() bool {
	return e.txDone.Load()
}

// FinishTransmit releases the front buffer after a completed transmit and
// re-arms sync detection. The radio should be back in RX mode first.
func (e *Engine) FinishTransmit() bool {
	if !e.txDone.CompareAndSwap(true, false) {
		return false
	}
	e.tx.Store(int32(TxIdle))
	e.transmitted.Add(1)
	e.owner.Store(ownerIdle)
	e.lines.EnableSyncDetect()
	return true
}

// Reset abandons any frame in progress and empties both buffers. The
// engine is left held; call Release to re-arm sync detection.
func (e *Engine) Reset() {
	e.lines.StopByteClock()
	// a handler finishing a frame may hand the engine back to idle
	for {
		e.owner.Store(ownerHeld)
		e.quiesce()
		if e.owner.Load() == ownerHeld {
			break
		}
	}
	e.lines.StopByteClock()
	e.lines.DisableSyncDetect()
	e.rx.Store(int32(RxIdle))
	e.tx.Store(int32(TxIdle))
	e.txDone.Store(false)
	for i := range e.bufs {
		e.ready[i].Store(false)
		e.bufs[i] = FrameBuffer{}
	}
	e.front.Store(0)
}
