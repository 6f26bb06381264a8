package share

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/quyphuc2111/lanpeek/pkg/signal"
)

// Host runs a sharing session: it announces the room code on the
// signaling channel and drives the engine from the messages that come
// back. One goroutine owns the message loop; offers are created in the
// background because ICE gathering blocks.
type Host struct {
	engine *Engine
	conn   *signal.ClientConn
	code   string

	onEvent func() // fired on any viewer change, for UI refresh
	onError func(reason string)

	log *zap.Logger
}

// NewHost wires an engine to an established signaling connection.
func NewHost(engine *Engine, conn *signal.ClientConn, code string, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Host{
		engine: engine,
		conn:   conn,
		code:   code,
		log:    log,
	}
	engine.SetICECallback(func(viewerID string, candidate json.RawMessage) {
		err := conn.Send(signal.Message{
			Type:      signal.TypeCandidate,
			ViewerID:  viewerID,
			Candidate: candidate,
		})
		if err != nil {
			log.Debug("send ice candidate", zap.Error(err))
		}
	})
	engine.SetConnectedCallback(func(string) { h.notify() })
	engine.SetDisconnectCallback(func(string) { h.notify() })
	return h
}

// SetEventHandler sets a callback fired whenever the viewer set changes.
func (h *Host) SetEventHandler(fn func()) {
	h.onEvent = fn
}

// SetErrorHandler sets a callback for protocol errors from the server.
func (h *Host) SetErrorHandler(fn func(reason string)) {
	h.onError = fn
}

// Code returns the room code this host announced.
func (h *Host) Code() string {
	return h.code
}

// Viewers returns the engine's current viewer states.
func (h *Host) Viewers() []ViewerState {
	return h.engine.Viewers()
}

// Run registers the room and processes signaling messages until the
// connection ends or ctx is cancelled.
func (h *Host) Run(ctx context.Context) error {
	if err := h.conn.Send(signal.Message{Type: signal.TypeHost, Room: h.code}); err != nil {
		return err
	}
	h.log.Info("room registered", zap.String("code", h.code))

	defer h.engine.Close()

	for {
		select {
		case <-ctx.Done():
			h.conn.Close()
			return ctx.Err()
		case msg, ok := <-h.conn.Messages():
			if !ok {
				return signal.ErrTransportClosed
			}
			h.handle(msg)
		}
	}
}

func (h *Host) handle(msg signal.Message) {
	switch msg.Type {
	case signal.TypeViewerJoined:
		h.log.Info("viewer joined", zap.String("viewer", msg.ViewerID))
		// CreateOffer waits for ICE gathering, so keep it off the loop.
		go h.sendOffer(msg.ViewerID)

	case signal.TypeAnswer:
		if err := h.engine.HandleAnswer(msg.ViewerID, msg.SDP); err != nil {
			h.log.Warn("apply answer", zap.String("viewer", msg.ViewerID), zap.Error(err))
		}
		h.notify()

	case signal.TypeCandidate:
		if err := h.engine.AddCandidate(msg.ViewerID, msg.Candidate); err != nil {
			h.log.Debug("add ice candidate", zap.String("viewer", msg.ViewerID), zap.Error(err))
		}

	case signal.TypeViewerLeft:
		h.log.Info("viewer left", zap.String("viewer", msg.ViewerID))
		h.engine.RemovePeer(msg.ViewerID)
		h.notify()

	case signal.TypeError:
		h.log.Warn("signal server error", zap.String("reason", msg.Error))
		if h.onError != nil {
			h.onError(msg.Error)
		}

	default:
		h.log.Debug("unhandled message", zap.String("type", msg.Type))
	}
}

func (h *Host) sendOffer(viewerID string) {
	sdp, err := h.engine.CreateOffer(viewerID)
	if err != nil {
		h.log.Error("create offer", zap.String("viewer", viewerID), zap.Error(err))
		return
	}
	err = h.conn.Send(signal.Message{
		Type:     signal.TypeOffer,
		ViewerID: viewerID,
		SDP:      sdp,
	})
	if err != nil {
		h.log.Warn("send offer", zap.String("viewer", viewerID), zap.Error(err))
		return
	}
	h.notify()
}

func (h *Host) notify() {
	if h.onEvent != nil {
		h.onEvent()
	}
}
