package device

import (
	"fmt"
	"time"

	"github.com/herlein/bluebox/pkg/adf7021"
	"github.com/herlein/bluebox/pkg/config"
	"github.com/herlein/bluebox/pkg/framer"
	"github.com/herlein/bluebox/pkg/protocol"
	"github.com/herlein/bluebox/pkg/registers"
)

// revisionLen is the fixed size of the firmware revision reply
const revisionLen = 32

// handler serves one request ID. get answers IN transfers; set decodes
// an OUT payload. Either may be nil. holdGet and holdSet mark directions
// that touch the radio and so wait for the engine to go idle.
type handler struct {
	get func(req *protocol.ControlRequest) ([]byte, error)
	set func(req *protocol.ControlRequest) error

	holdGet bool
	holdSet bool
}

func (d *Device) requestTable() map[protocol.Request]handler {
	return map[protocol.Request]handler{
		protocol.RequestRegister:   {get: d.getRegister, set: d.setRegister, holdGet: true, holdSet: true},
		protocol.RequestFrequency:  {get: d.getFrequency, set: d.setFrequency, holdSet: true},
		protocol.RequestModIndex:   {get: d.getModIndex, set: d.setModIndex, holdSet: true},
		protocol.RequestCSMARSSI:   {get: d.getCSMA, set: d.setCSMA},
		protocol.RequestPower:      {get: d.getPower, set: d.setPower, holdSet: true},
		protocol.RequestAFC:        {get: d.getAFC, set: d.setAFC, holdSet: true},
		protocol.RequestIFBW:       {get: d.getIFBW, set: d.setIFBW, holdSet: true},
		protocol.RequestTraining:   {get: d.getTraining, set: d.setTraining},
		protocol.RequestSyncWord:   {get: d.getSyncWord, set: d.setSyncWord, holdSet: true},
		protocol.RequestRxTxMode:   {get: d.getMode, set: d.setMode, holdSet: true},
		protocol.RequestBitrate:    {get: d.getBitrate, set: d.setBitrate, holdSet: true},
		protocol.RequestTxBuffer:   {set: d.setTxBuffer},
		protocol.RequestRxBuffer:   {get: d.getRxBuffer},
		protocol.RequestSerial:     {get: d.getSerial, set: d.setSerial},
		protocol.RequestFWRevision: {get: d.getRevision},
		protocol.RequestReset:      {set: d.reset},
		protocol.RequestDFU:        {set: d.dfu, holdSet: true},
	}
}

// HandleControl answers one control request from the host. It runs
// between main-loop passes, and requests that touch the radio wait for
// the frame in flight to finish.
func (d *Device) HandleControl(req *protocol.ControlRequest) ([]byte, error) {
	h, ok := d.handlers[req.Request]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, req.Request)
	}
	if req.In() && h.get == nil {
		return nil, fmt.Errorf("%w: %s", ErrWriteOnly, req.Request)
	}
	if !req.In() && h.set == nil {
		return nil, fmt.Errorf("%w: %s", ErrReadOnly, req.Request)
	}

	var release func()
	if (req.In() && h.holdGet) || (!req.In() && h.holdSet) {
		var err error
		if release, err = d.claim(); err != nil {
			return nil, fmt.Errorf("%s: %w", req.Request, err)
		}
	} else {
		d.loop.Lock()
		release = d.loop.Unlock
	}
	defer release()

	if req.In() {
		return h.get(req)
	}
	if err := h.set(req); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Request, err)
	}
	d.log.WithField("request", req.Request.String()).Debug("applied")
	return nil, nil
}

// claim takes the main loop and holds the engine idle. It waits out a
// frame in flight, and new transmits are held back meanwhile.
func (d *Device) claim() (func(), error) {
	d.waiting.Add(1)
	defer d.waiting.Add(-1)

	deadline := time.Now().Add(d.holdTimeout)
	for {
		d.loop.Lock()
		if d.engine.Hold() {
			return func() {
				d.engine.Release()
				d.loop.Unlock()
			}, nil
		}
		d.loop.Unlock()
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: frame still in flight after %s", framer.ErrBusy, d.holdTimeout)
		}
		time.Sleep(d.interval)
	}
}

// update mutates the settings and applies the change. An invalid result
// or a failed apply restores the previous settings.
func (d *Device) update(mutate func(s *config.Settings), apply func(s config.Settings) error) error {
	d.mu.Lock()
	old := d.settings
	next := old
	mutate(&next)
	if err := next.Validate(); err != nil {
		d.mu.Unlock()
		return err
	}
	d.settings = next
	d.mu.Unlock()

	if apply == nil {
		return nil
	}
	if err := apply(next); err != nil {
		d.mu.Lock()
		d.settings = old
		d.mu.Unlock()
		return err
	}
	return nil
}

// reconfigure reprograms the radio from s. A plan that cannot be met
// leaves the previous registers in place.
func (d *Device) reconfigure(s config.Settings) error {
	d.radio.SetConfig(s.RadioConfig())
	if err := d.radio.Reconfigure(); err != nil {
		return err
	}
	d.engine.SetConfig(s.FramerConfig())
	return nil
}

func (d *Device) applyFramer(s config.Settings) error {
	d.engine.SetConfig(s.FramerConfig())
	return nil
}

func (d *Device) getRegister(req *protocol.ControlRequest) ([]byte, error) {
	v, err := d.radio.ReadRegister(registers.ReadbackSelector(req.Value).Masked())
	if err != nil {
		return nil, err
	}
	return protocol.PutU32(uint32(v)), nil
}

func (d *Device) setRegister(req *protocol.ControlRequest) error {
	v, err := protocol.U32(req.Data)
	if err != nil {
		return err
	}
	return d.radio.WriteRegister(registers.Value(v).WithAddress(registers.Register(req.Value)))
}

func (d *Device) getFrequency(req *protocol.ControlRequest) ([]byte, error) {
	s := d.Settings()
	if req.Index == protocol.FrequencyTX {
		return protocol.PutU32(s.TxFreq), nil
	}
	return protocol.PutU32(s.RxFreq), nil
}

func (d *Device) setFrequency(req *protocol.ControlRequest) error {
	hz, err := protocol.U32(req.Data)
	if err != nil {
		return err
	}
	which := req.Index
	if which > protocol.FrequencyTX {
		return fmt.Errorf("invalid frequency selector %d", which)
	}
	return d.update(func(s *config.Settings) {
		if which != protocol.FrequencyTX {
			s.RxFreq = hz
		}
		if which != protocol.FrequencyRX {
			s.TxFreq = hz
		}
	}, d.reconfigure)
}

func (d *Device) getModIndex(*protocol.ControlRequest) ([]byte, error) {
	return protocol.PutU8(d.Settings().ModIndex), nil
}

func (d *Device) setModIndex(req *protocol.ControlRequest) error {
	v, err := protocol.U8(req.Data)
	if err != nil {
		return err
	}
	return d.update(func(s *config.Settings) { s.ModIndex = v }, d.reconfigure)
}

func (d *Device) getCSMA(*protocol.ControlRequest) ([]byte, error) {
	return protocol.PutI16(d.Settings().CSMARSSI), nil
}

func (d *Device) setCSMA(req *protocol.ControlRequest) error {
	v, err := protocol.I16(req.Data)
	if err != nil {
		return err
	}
	return d.update(func(s *config.Settings) { s.CSMARSSI = v }, func(s config.Settings) error {
		d.csma.SetThreshold(int(s.CSMARSSI))
		return nil
	})
}

func (d *Device) getPower(*protocol.ControlRequest) ([]byte, error) {
	return protocol.PutU8(d.Settings().PASetting), nil
}

func (d *Device) setPower(req *protocol.ControlRequest) error {
	v, err := protocol.U8(req.Data)
	if err != nil {
		return err
	}
	return d.update(func(s *config.Settings) { s.PASetting = v }, func(s config.Settings) error {
		cfg := d.radio.Config()
		cfg.PASetting = s.PASetting
		d.radio.SetConfig(cfg)
		return d.radio.SetTXPower(s.PASetting)
	})
}

func (d *Device) getAFC(*protocol.ControlRequest) ([]byte, error) {
	s := d.Settings()
	return protocol.AFC{Enable: s.AFCEnable, Range: s.AFCRange, KI: s.AFCKI, KP: s.AFCKP}.MarshalBinary()
}

func (d *Device) setAFC(req *protocol.ControlRequest) error {
	var afc protocol.AFC
	if err := afc.UnmarshalBinary(req.Data); err != nil {
		return err
	}
	return d.update(func(s *config.Settings) {
		s.AFCEnable, s.AFCRange, s.AFCKI, s.AFCKP = afc.Enable, afc.Range, afc.KI, afc.KP
	}, func(s config.Settings) error {
		d.radio.SetConfig(s.RadioConfig())
		if s.AFCEnable {
			return d.radio.EnableAFC(s.AFCRange, s.AFCKI, s.AFCKP)
		}
		return d.radio.DisableAFC()
	})
}

func (d *Device) getIFBW(*protocol.ControlRequest) ([]byte, error) {
	return protocol.PutU8(d.Settings().IFBandwidth), nil
}

func (d *Device) setIFBW(req *protocol.ControlRequest) error {
	v, err := protocol.U8(req.Data)
	if err != nil {
		return err
	}
	return d.update(func(s *config.Settings) { s.IFBandwidth = v }, d.reconfigure)
}

func (d *Device) getTraining(*protocol.ControlRequest) ([]byte, error) {
	return protocol.PutU8(d.Settings().TrainingBytes), nil
}

func (d *Device) setTraining(req *protocol.ControlRequest) error {
	v, err := protocol.U8(req.Data)
	if err != nil {
		return err
	}
	return d.update(func(s *config.Settings) { s.TrainingBytes = v }, d.applyFramer)
}

func (d *Device) getSyncWord(*protocol.ControlRequest) ([]byte, error) {
	s := d.Settings()
	return protocol.SyncWord{Word: s.SyncWord, Length: s.SyncWordLength, Tolerance: s.SyncWordTolerance}.MarshalBinary()
}

func (d *Device) setSyncWord(req *protocol.ControlRequest) error {
	var sw protocol.SyncWord
	if err := sw.UnmarshalBinary(req.Data); err != nil {
		return err
	}
	return d.update(func(s *config.Settings) {
		s.SyncWord, s.SyncWordLength, s.SyncWordTolerance = sw.Word, sw.Length, sw.Tolerance
	}, func(s config.Settings) error {
		d.radio.SetConfig(s.RadioConfig())
		if err := d.radio.SetSyncWord(s.SyncWord, s.SyncWordLength, s.SyncWordTolerance); err != nil {
			return err
		}
		d.engine.SetConfig(s.FramerConfig())
		return nil
	})
}

func (d *Device) getMode(*protocol.ControlRequest) ([]byte, error) {
	if d.radio.Mode() == adf7021.ModeTransmitting {
		return protocol.PutU8(uint8(protocol.ModeTX)), nil
	}
	return protocol.PutU8(uint8(protocol.ModeRX)), nil
}

func (d *Device) setMode(req *protocol.ControlRequest) error {
	switch req.Value {
	case protocol.ModeTX:
		return d.radio.SetTXMode()
	case protocol.ModeRX:
		return d.radio.SetRXMode()
	}
	return fmt.Errorf("invalid mode %d", req.Value)
}

func (d *Device) getBitrate(*protocol.ControlRequest) ([]byte, error) {
	return protocol.PutU16(d.Settings().Bitrate), nil
}

func (d *Device) setBitrate(req *protocol.ControlRequest) error {
	v, err := protocol.U16(req.Data)
	if err != nil {
		return err
	}
	return d.update(func(s *config.Settings) { s.Bitrate = v }, d.reconfigure)
}

// setTxBuffer queues a frame the same way the bulk endpoint does
func (d *Device) setTxBuffer(req *protocol.ControlRequest) error {
	var f framer.FrameBuffer
	if err := f.UnmarshalBinary(req.Data); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		return framer.ErrBusy
	}
	d.pending = &f
	return nil
}

// getRxBuffer drains one received frame. An empty record means none
// was waiting.
func (d *Device) getRxBuffer(*protocol.ControlRequest) ([]byte, error) {
	var out []byte
	_, err := d.engine.Drain(func(f *framer.FrameBuffer) error {
		b, err := f.MarshalBinary()
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return (&framer.FrameBuffer{}).MarshalBinary()
	}
	return out, nil
}

func (d *Device) getSerial(*protocol.ControlRequest) ([]byte, error) {
	if d.store == nil {
		return protocol.PutU32(0), nil
	}
	serial, err := d.store.Serial()
	if err != nil {
		return nil, err
	}
	return protocol.PutU32(serial), nil
}

func (d *Device) setSerial(req *protocol.ControlRequest) error {
	v, err := protocol.U32(req.Data)
	if err != nil {
		return err
	}
	if d.store == nil {
		return fmt.Errorf("no serial store")
	}
	if err := d.store.SetSerial(v); err != nil {
		return err
	}
	d.log.WithField("serial", fmt.Sprintf("%08x", v)).Info("serial number changed")
	return nil
}

func (d *Device) getRevision(*protocol.ControlRequest) ([]byte, error) {
	b := make([]byte, revisionLen)
	copy(b, d.revision)
	return b, nil
}

// reset abandons any frame in flight and power-cycles the radio. It
// does not wait for the engine; Reset takes it from whichever side owns it.
func (d *Device) reset(*protocol.ControlRequest) error {
	d.engine.Reset()
	defer d.engine.Release()

	d.mu.Lock()
	d.pending = nil
	s := d.settings
	d.mu.Unlock()

	d.radio.SetConfig(s.RadioConfig())
	if err := d.radio.Reset(); err != nil {
		return err
	}
	d.log.Info("radio reset")
	return nil
}

func (d *Device) dfu(*protocol.ControlRequest) error {
	if d.bootloader == nil {
		return ErrNoBootloader
	}
	d.log.Warn("entering bootloader")
	return d.bootloader()
}
