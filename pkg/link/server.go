package link

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/herlein/bluebox/pkg/framer"
	"github.com/herlein/bluebox/pkg/protocol"
)

// DefaultQueueDepth is the number of host frames held before the link
// stops reading
const DefaultQueueDepth = 4

// Handler answers control requests. For IN requests it returns the
// reply data; for OUT requests it returns nil.
type Handler interface {
	HandleControl(req *protocol.ControlRequest) ([]byte, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(req *protocol.ControlRequest) ([]byte, error)

// HandleControl calls f(req)
func (f HandlerFunc) HandleControl(req *protocol.ControlRequest) ([]byte, error) {
	return f(req)
}

// Server is the device end of the link
type Server struct {
	port    io.ReadWriter
	handler Handler
	log     logrus.FieldLogger
	frames  chan *framer.FrameBuffer

	writeMu sync.Mutex
}

// NewServer returns a server on port. Serve must be running for frames
// and requests to arrive.
func NewServer(port io.ReadWriter, handler Handler, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		port:    port,
		handler: handler,
		log:     log,
		frames:  make(chan *framer.FrameBuffer, DefaultQueueDepth),
	}
}

// SetHandler replaces the control handler. It must be called before Serve.
func (s *Server) SetHandler(h Handler) {
	s.handler = h
}

// Serve reads packets until ctx is done or the port fails
func (s *Server) Serve(ctx context.Context) error {
	dec := NewDecoder(s.port)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p, err := dec.Decode()
		if recoverable(err) {
			s.log.WithError(err).Warn("dropping corrupt packet")
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch p.Kind {
		case KindFrame:
			var f framer.FrameBuffer
			if err := f.UnmarshalBinary(p.Payload); err != nil {
				s.log.WithError(err).Warn("dropping bad frame record")
				continue
			}
			select {
			case s.frames <- &f:
			case <-ctx.Done():
				return ctx.Err()
			}
		case KindControl:
			if err := s.control(p.Payload); err != nil {
				return err
			}
		default:
			s.log.WithField("kind", p.Kind).Warn("unexpected packet")
		}
	}
}

func (s *Server) control(payload []byte) error {
	req, err := DecodeControl(payload)
	if err != nil {
		s.log.WithError(err).Warn("bad control request")
		return s.write(KindReply, EncodeReply(nil, err))
	}
	if s.handler == nil {
		return s.write(KindReply, EncodeReply(nil, errors.New("no handler")))
	}

	data, err := s.handler.HandleControl(req)
	if err != nil {
		s.log.WithError(err).WithField("request", req.String()).Debug("control request stalled")
	} else if req.In() && len(data) > len(req.Data) {
		data = data[:len(req.Data)]
	}
	return s.write(KindReply, EncodeReply(data, err))
}

func (s *Server) write(kind Kind, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.port.Write(Encode(kind, payload))
	return err
}

// PullTxFrame returns the next frame queued by the host, if any
func (s *Server) PullTxFrame() (*framer.FrameBuffer, bool) {
	select {
	case f := <-s.frames:
		return f, true
	default:
		return nil, false
	}
}

// PushRxFrame sends a received frame to the host
func (s *Server) PushRxFrame(f *framer.FrameBuffer) error {
	b, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	return s.write(KindFrame, b)
}
