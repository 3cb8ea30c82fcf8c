package hw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/herlein/bluebox/pkg/framer"
	"github.com/herlein/bluebox/pkg/registers"
)

// wire records every level change on a set of named pins
type wire struct {
	mu     sync.Mutex
	events []string
	level  map[string]gpio.Level
	fail   string
}

func newWire() *wire {
	return &wire{level: map[string]gpio.Level{}}
}

type pin struct {
	w    *wire
	name string
}

func (w *wire) pin(name string) *pin {
	return &pin{w: w, name: name}
}

func (p *pin) Out(l gpio.Level) error {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	if p.w.fail == p.name {
		return errors.New("gpio write failed")
	}
	p.w.level[p.name] = l
	p.w.events = append(p.w.events, fmt.Sprintf("%s=%v", p.name, l))
	return nil
}

// sclkPin samples SDATA on every rising edge, like the chip does
type sclkPin struct {
	w       *wire
	last    gpio.Level
	sampled []gpio.Level
	rising  int
}

func (p *sclkPin) Out(l gpio.Level) error {
	if l == gpio.High && p.last == gpio.Low {
		p.rising++
		p.w.mu.Lock()
		p.sampled = append(p.sampled, p.w.level["SDATA"])
		p.w.mu.Unlock()
	}
	p.last = l
	return nil
}

// sreadPin returns the bits of word MSB first, one per read
type sreadPin struct {
	word  uint16
	reads int
}

func (p *sreadPin) Read() gpio.Level {
	bit := p.word >> uint(15-p.reads) & 1
	p.reads++
	return gpio.Level(bit == 1)
}

func TestSerialBusWrite(t *testing.T) {
	w := newWire()
	clk := &sclkPin{w: w}
	bus := NewSerialBus(clk, w.pin("SDATA"), w.pin("SLE"), &sreadPin{})

	const word = 0xE000F00F
	if err := bus.Write(registers.Value(word)); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	if len(clk.sampled) != 32 {
		t.Fatalf("clocked %d bits, want 32", len(clk.sampled))
	}
	var got uint32
	for _, l := range clk.sampled {
		got <<= 1
		if l == gpio.High {
			got |= 1
		}
	}
	if got != word {
		t.Errorf("chip received 0x%08x, want 0x%08x", got, uint32(word))
	}

	// SLE must pulse once after the last bit
	var sle []string
	for _, e := range w.events {
		if e[:3] == "SLE" {
			sle = append(sle, e)
		}
	}
	want := []string{"SLE=Low", "SLE=High", "SLE=Low"}
	if fmt.Sprint(sle) != fmt.Sprint(want) {
		t.Errorf("SLE sequence = %v, want %v", sle, want)
	}
}

func TestSerialBusRead(t *testing.T) {
	w := newWire()
	clk := &sclkPin{w: w}
	sread := &sreadPin{word: 0x0147}
	bus := NewSerialBus(clk, w.pin("SDATA"), w.pin("SLE"), sread)

	v, err := bus.Read(registers.ReadbackRSSI)
	if err != nil {
		t.Fatalf("Read() = %v", err)
	}
	if v != 0x0147 {
		t.Errorf("Read() = %#x, want 0x147", uint32(v))
	}
	if sread.reads != 16 {
		t.Errorf("sampled SREAD %d times, want 16", sread.reads)
	}

	var req uint32
	for _, l := range clk.sampled[:32] {
		req <<= 1
		if l == gpio.High {
			req |= 1
		}
	}
	if want := uint32(registers.Readback{Selector: registers.ReadbackRSSI}.Pack()); req != want {
		t.Errorf("readback request = %#x, want %#x", req, want)
	}
	// 32 write clocks, 1 discarded, 16 data, 1 trailing
	if clk.rising != 50 {
		t.Errorf("rising edges = %d, want 50", clk.rising)
	}
}

func TestSerialBusWriteError(t *testing.T) {
	w := newWire()
	w.fail = "SLE"
	bus := NewSerialBus(&sclkPin{w: w}, w.pin("SDATA"), w.pin("SLE"), &sreadPin{})
	if err := bus.Write(0x1); err == nil {
		t.Error("Write() = nil, want error")
	}
	if _, err := bus.Read(registers.ReadbackVersion); err == nil {
		t.Error("Read() = nil, want error")
	}
}

func TestFrontendStandardBoard(t *testing.T) {
	w := newWire()
	var slept []time.Duration
	f := &Frontend{
		CE:     w.pin("CE"),
		TX:     w.pin("TX"),
		RX:     w.pin("RX"),
		ExtLNA: w.pin("LNA"),
		PABias: w.pin("PA"),
		ExtPTT: w.pin("PTT"),
		sleep:  func(d time.Duration) { slept = append(slept, d) },
	}

	if err := f.SetChipEnable(true); err != nil {
		t.Fatal(err)
	}
	if err := f.SetTransmit(true); err != nil {
		t.Fatal(err)
	}
	if err := f.SetTransmit(false); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"CE=High",
		"LNA=Low", "RX=Low", "TX=High", "PA=High", "PTT=High",
		"PTT=Low", "PA=Low", "TX=Low", "RX=High", "LNA=High",
	}
	if fmt.Sprint(w.events) != fmt.Sprint(want) {
		t.Errorf("events = %v\nwant %v", w.events, want)
	}
	if fmt.Sprint(slept) != fmt.Sprint([]time.Duration{lnaOffDelay, paBiasDelay}) {
		t.Errorf("delays = %v", slept)
	}
}

func TestFrontendMicroBoard(t *testing.T) {
	w := newWire()
	f := &Frontend{CE: w.pin("CE"), TX: w.pin("TX"), RX: w.pin("RX"), sleep: func(time.Duration) {
		t.Error("micro board should not wait")
	}}
	if err := f.SetTransmit(true); err != nil {
		t.Fatal(err)
	}
	if err := f.SetChipEnable(false); err != nil {
		t.Fatal(err)
	}
	want := []string{"RX=Low", "TX=High", "CE=Low"}
	if fmt.Sprint(w.events) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", w.events, want)
	}

	w.fail = "TX"
	if err := f.SetTransmit(false); err == nil {
		t.Error("SetTransmit() = nil, want error")
	}
}

// edgePin delivers edges pushed by the test
type edgePin struct {
	edges chan struct{}
	level gpio.Level
}

func newEdgePin() *edgePin {
	return &edgePin{edges: make(chan struct{}, 64)}
}

func (p *edgePin) Read() gpio.Level { return p.level }
func (p *edgePin) In(gpio.Pull, gpio.Edge) error { return nil }
func (p *edgePin) WaitForEdge(timeout time.Duration) bool {
	select {
	case <-p.edges:
		return true
	case <-time.After(timeout):
		return false
	}
}

// dataPin serves queued bits on read and records driven bits
type dataPin struct {
	mu  sync.Mutex
	in  []gpio.Level
	out []gpio.Level
}

func (p *dataPin) In(gpio.Pull, gpio.Edge) error { return nil }

func (p *dataPin) Read() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.in) == 0 {
		return gpio.Low
	}
	l := p.in[0]
	p.in = p.in[1:]
	return l
}

func (p *dataPin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, l)
	return nil
}

func (p *dataPin) driven() []gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]gpio.Level(nil), p.out...)
}

func bitsOf(bytes ...byte) []gpio.Level {
	var out []gpio.Level
	for _, b := range bytes {
		for i := 7; i >= 0; i-- {
			out = append(out, gpio.Level(b>>uint(i)&1 == 1))
		}
	}
	return out
}

// fakeEngine follows the Lines protocol of framer.Engine
type fakeEngine struct {
	lines   framer.Lines
	tx      framer.TxState
	txBytes []byte
	want    int
	got     chan byte
	syncs   chan struct{}

	abandoned atomic.Bool
}

func (e *fakeEngine) OnSyncDetect() {
	e.lines.DisableSyncDetect()
	e.syncs <- struct{}{}
	e.lines.StartByteClock()
}

func (e *fakeEngine) Clock(in byte) byte {
	if e.tx != framer.TxIdle {
		b := e.txBytes[0]
		e.txBytes = e.txBytes[1:]
		if len(e.txBytes) == 0 {
			e.lines.StopByteClock()
		}
		return b
	}
	e.got <- in
	e.want--
	if e.want == 0 {
		e.lines.StopByteClock()
		e.lines.EnableSyncDetect()
	}
	return 0
}

func (e *fakeEngine) Abandon() { e.abandoned.Store(true) }

func (e *fakeEngine) TxState() framer.TxState { return e.tx }

func startController(t *testing.T, e *fakeEngine) (*Controller, *edgePin, *edgePin, *dataPin) {
	t.Helper()
	swd, clk, data := newEdgePin(), newEdgePin(), &dataPin{}
	c := NewController(swd, clk, data, nil)
	c.Poll = time.Millisecond
	c.Stall = 200 * time.Millisecond
	e.lines = c
	c.Attach(e)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c, swd, clk, data
}

func TestControllerReceive(t *testing.T) {
	e := &fakeEngine{want: 2, got: make(chan byte, 2), syncs: make(chan struct{}, 1)}
	c, swd, clk, data := startController(t, e)
	data.in = bitsOf(0xA5, 0x3C)

	c.EnableSyncDetect()
	swd.edges <- struct{}{}
	select {
	case <-e.syncs:
	case <-time.After(time.Second):
		t.Fatal("sync detect not delivered")
	}

	for i := 0; i < 16; i++ {
		clk.edges <- struct{}{}
	}
	for _, want := range []byte{0xA5, 0x3C} {
		select {
		case got := <-e.got:
			if got != want {
				t.Errorf("Clock(%#x), want %#x", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("byte %#x not clocked", want)
		}
	}
}

func TestControllerIgnoresSyncWhenDisabled(t *testing.T) {
	e := &fakeEngine{got: make(chan byte, 1), syncs: make(chan struct{}, 1)}
	_, swd, _, _ := startController(t, e)

	swd.edges <- struct{}{}
	select {
	case <-e.syncs:
		t.Error("sync delivered while disabled")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestControllerTransmit(t *testing.T) {
	e := &fakeEngine{tx: framer.TxTraining, txBytes: []byte{0x55, 0xF0}}
	c, _, clk, data := startController(t, e)

	c.StartByteClock()
	for i := 0; i < 16; i++ {
		clk.edges <- struct{}{}
	}

	want := append(bitsOf(0x55, 0xF0), gpio.Low)
	deadline := time.Now().Add(time.Second)
	for len(data.driven()) < len(want) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := data.driven(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("driven = %v\nwant %v", got, want)
	}
}

func TestControllerStall(t *testing.T) {
	e := &fakeEngine{want: 1, got: make(chan byte, 1), syncs: make(chan struct{}, 1)}
	c, _, _, _ := startController(t, e)

	c.StartByteClock()
	deadline := time.Now().Add(time.Second)
	for c.clockOn.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.clockOn.Load() {
		t.Error("byte clock still running after stall")
	}
	if !e.abandoned.Load() {
		t.Error("stalled frame not abandoned")
	}
}

func TestControllerRequiresEngine(t *testing.T) {
	c := NewController(newEdgePin(), newEdgePin(), &dataPin{}, nil)
	if err := c.Run(context.Background()); err == nil {
		t.Error("Run() without engine = nil error")
	}
}
