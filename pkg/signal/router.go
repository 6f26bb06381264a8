package signal

import (
	"sync"

	"go.uber.org/zap"

	"github.com/quyphuc2111/lanpeek/pkg/metrics"
)

// roleHost/roleViewer tag what a bound connection announced itself as.
const (
	roleHost   = "host"
	roleViewer = "viewer"
)

// binding records which room (and, for viewers, which identity) a
// connection belongs to. Assigned at join time so routing never has to
// infer identity from transport-level details.
type binding struct {
	role     string
	room     string
	viewerID string
}

// Router dispatches inbound signaling messages to the right peer. All
// durable state lives in the Registry and its Sessions; the router only
// keeps the connection-to-binding lookup.
type Router struct {
	reg *Registry

	mu       sync.Mutex
	bindings map[Peer]binding

	log     *zap.Logger
	metrics *metrics.Collector
}

// NewRouter creates a router over the given registry.
func NewRouter(reg *Registry, log *zap.Logger, m *metrics.Collector) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		reg:      reg,
		bindings: make(map[Peer]binding),
		log:      log,
		metrics:  m,
	}
}

// Route processes one inbound message from a connected party. Outbound
// messages go directly to the target peers; protocol errors go back to
// the sender only.
func (rt *Router) Route(from Peer, msg Message) {
	rt.metrics.MessageRouted(msg.Type)

	switch msg.Type {
	case TypeHost:
		rt.handleHostJoin(from, msg)
	case TypeViewer:
		rt.handleViewerJoin(from, msg)
	case TypeOffer:
		rt.handleOffer(from, msg)
	case TypeAnswer:
		rt.handleAnswer(from, msg)
	case TypeCandidate:
		rt.handleCandidate(from, msg)
	default:
		rt.log.Warn("unknown message type", zap.String("type", msg.Type))
		rt.sendError(from, ErrUnknownMessageType.Error())
	}
}

// Disconnect reacts to a connection loss (or an explicit stop) by tearing
// down whatever the connection was bound to. Safe to call for connections
// that never joined anything, and safe to call twice.
func (rt *Router) Disconnect(from Peer) {
	rt.mu.Lock()
	b, ok := rt.bindings[from]
	delete(rt.bindings, from)
	rt.mu.Unlock()

	if !ok {
		return
	}

	switch b.role {
	case roleHost:
		rt.reg.RemoveHost(b.room)
		// Bindings of the dropped viewers are now stale; clear them so a
		// late message from one of those connections is rejected cleanly.
		rt.mu.Lock()
		for peer, pb := range rt.bindings {
			if pb.role == roleViewer && pb.room == b.room {
				delete(rt.bindings, peer)
			}
		}
		rt.mu.Unlock()
	case roleViewer:
		rt.reg.RemoveViewer(b.room, b.viewerID)
	}
}

func (rt *Router) handleHostJoin(from Peer, msg Message) {
	code := NormalizeRoomCode(msg.Room)
	if !ValidateRoomCode(code) {
		rt.sendError(from, "invalid room code")
		return
	}

	if _, err := rt.reg.RegisterHost(code, from); err != nil {
		rt.sendError(from, err.Error())
		return
	}

	rt.bind(from, binding{role: roleHost, room: code})
}

func (rt *Router) handleViewerJoin(from Peer, msg Message) {
	code := NormalizeRoomCode(msg.Room)

	viewerID, err := rt.reg.JoinViewer(code, from)
	if err != nil {
		rt.sendError(from, err.Error())
		return
	}

	rt.bind(from, binding{role: roleViewer, room: code, viewerID: viewerID})
}

// handleOffer forwards a host's offer to the addressed viewer and moves
// that viewer's session to OfferSent.
func (rt *Router) handleOffer(from Peer, msg Message) {
	b, ok := rt.binding(from)
	if !ok || b.role != roleHost {
		rt.sendError(from, "not bound as host")
		return
	}

	room, ok := rt.reg.Room(b.room)
	if !ok {
		rt.sendError(from, ErrRoomNotFound.Error())
		return
	}

	found := room.withViewer(msg.ViewerID, func(entry *viewerEntry) {
		if err := entry.session.MarkOfferSent(); err != nil {
			rt.log.Debug("offer for closed session dropped",
				zap.String("room", b.room), zap.String("viewer", msg.ViewerID))
			return
		}
		entry.peer.Send(Message{Type: TypeOffer, ViewerID: msg.ViewerID, SDP: msg.SDP})
	})
	if !found {
		rt.sendError(from, ErrUnknownViewer.Error())
	}
}

// handleAnswer routes an answer to the host. For viewer connections the
// bound viewer id is attached; completing the exchange also drains every
// candidate buffered while the answer was outstanding, in arrival order,
// ahead of anything newer.
func (rt *Router) handleAnswer(from Peer, msg Message) {
	b, ok := rt.binding(from)
	if !ok {
		rt.sendError(from, ErrRoomNotFound.Error())
		return
	}

	room, roomOK := rt.reg.Room(b.room)
	if !roomOK {
		rt.sendError(from, ErrRoomNotFound.Error())
		return
	}

	if b.role == roleHost {
		// Host-side answer only occurs for viewer-initiated renegotiation;
		// it is forwarded verbatim without touching the state machine.
		found := room.withViewer(msg.ViewerID, func(entry *viewerEntry) {
			if entry.session.State() == Closed {
				return
			}
			entry.peer.Send(Message{Type: TypeAnswer, ViewerID: msg.ViewerID, SDP: msg.SDP})
		})
		if !found {
			rt.sendError(from, ErrUnknownViewer.Error())
		}
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	entry, ok := room.viewers[b.viewerID]
	if !ok {
		// Stale binding, the viewer was already removed. Expected during
		// disconnect races, so drop rather than error.
		return
	}

	drained, err := entry.session.AcceptAnswer()
	switch err {
	case nil:
	case ErrUnexpectedAnswer:
		rt.log.Warn("answer with no offer outstanding",
			zap.String("room", b.room), zap.String("viewer", b.viewerID))
		rt.sendError(from, ErrUnexpectedAnswer.Error())
		return
	default: // ErrSessionClosed
		rt.log.Debug("answer for closed session dropped",
			zap.String("room", b.room), zap.String("viewer", b.viewerID))
		return
	}

	if room.host == nil || room.closing {
		return
	}
	room.host.Send(Message{Type: TypeAnswer, ViewerID: b.viewerID, SDP: msg.SDP})
	for _, c := range drained {
		room.host.Send(Message{Type: TypeCandidate, ViewerID: b.viewerID, Candidate: c})
	}
	rt.metrics.CandidatesDrained(len(drained))
}

// handleCandidate routes connectivity candidates. Host-to-viewer
// candidates forward immediately (the viewer buffers locally until its
// descriptions are set); viewer-to-host candidates pass through the
// session so none is applied before the exchange completes.
func (rt *Router) handleCandidate(from Peer, msg Message) {
	b, ok := rt.binding(from)
	if !ok {
		rt.sendError(from, ErrRoomNotFound.Error())
		return
	}

	room, roomOK := rt.reg.Room(b.room)
	if !roomOK {
		rt.sendError(from, ErrRoomNotFound.Error())
		return
	}

	if b.role == roleHost {
		found := room.withViewer(msg.ViewerID, func(entry *viewerEntry) {
			if entry.session.State() == Closed {
				return
			}
			entry.peer.Send(Message{Type: TypeCandidate, ViewerID: msg.ViewerID, Candidate: msg.Candidate})
		})
		if !found {
			rt.sendError(from, ErrUnknownViewer.Error())
		}
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	entry, ok := room.viewers[b.viewerID]
	if !ok {
		return
	}

	deliver, err := entry.session.AddCandidate(msg.Candidate)
	if err != nil {
		rt.log.Debug("candidate for closed session dropped",
			zap.String("room", b.room), zap.String("viewer", b.viewerID))
		return
	}
	if !deliver {
		rt.metrics.CandidateBuffered()
		return
	}
	if room.host != nil && !room.closing {
		room.host.Send(Message{Type: TypeCandidate, ViewerID: b.viewerID, Candidate: msg.Candidate})
	}
}

func (rt *Router) bind(p Peer, b binding) {
	rt.mu.Lock()
	rt.bindings[p] = b
	rt.mu.Unlock()
}

func (rt *Router) binding(p Peer) (binding, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	b, ok := rt.bindings[p]
	return b, ok
}

func (rt *Router) sendError(to Peer, reason string) {
	rt.metrics.ErrorSent(reason)
	to.Send(errorMessage(reason))
}
