package signal

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quyphuc2111/lanpeek/pkg/metrics"
)

// Peer is one connected party on the signaling channel. Send must not
// block; transport implementations buffer and drop on overflow.
type Peer interface {
	Send(msg Message)
}

// Room pairs one host with its set of viewers under a shared code.
// Membership and every owned Session are only touched under mu, so
// operations against the same room never interleave while unrelated
// rooms proceed independently.
type Room struct {
	mu      sync.Mutex
	code    string
	host    Peer
	viewers map[string]*viewerEntry

	// closing is set before the teardown broadcast. A join that loses the
	// race against removal sees it and is rejected instead of being
	// admitted into a room that is already dying.
	closing bool
}

type viewerEntry struct {
	peer    Peer
	session *Session
}

// Code returns the room's code.
func (r *Room) Code() string { return r.code }

// Registry is the single source of truth for room and viewer existence.
// A message referencing a stale viewer id is always rejected here before
// anything is forwarded downstream.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	log     *zap.Logger
	metrics *metrics.Collector
}

// NewRegistry creates an empty room registry.
func NewRegistry(log *zap.Logger, m *metrics.Collector) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		rooms:   make(map[string]*Room),
		log:     log,
		metrics: m,
	}
}

// RegisterHost claims a room code for the given host connection.
// Exactly one concurrent caller wins; the rest get ErrCodeTaken.
func (reg *Registry) RegisterHost(code string, host Peer) (*Room, error) {
	code = NormalizeRoomCode(code)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.rooms[code]; exists {
		return nil, ErrCodeTaken
	}

	room := &Room{
		code:    code,
		host:    host,
		viewers: make(map[string]*viewerEntry),
	}
	reg.rooms[code] = room

	reg.log.Info("room registered", zap.String("room", code))
	reg.metrics.RoomCreated()
	return room, nil
}

// JoinViewer admits a viewer into the room for code and allocates a fresh
// viewer id. The new Session starts in AwaitingOffer. The host is notified
// with viewer-joined, and the same message doubles as the join ack carrying
// the assigned id back to the viewer.
func (reg *Registry) JoinViewer(code string, viewer Peer) (string, error) {
	code = NormalizeRoomCode(code)

	reg.mu.RLock()
	room, exists := reg.rooms[code]
	reg.mu.RUnlock()

	if !exists {
		return "", ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	// Lost the race against RemoveHost: the room object still exists but
	// its teardown already started. Reject rather than admit.
	if room.closing {
		return "", ErrRoomNotFound
	}

	viewerID := uuid.NewString()
	room.viewers[viewerID] = &viewerEntry{
		peer:    viewer,
		session: NewSession(viewerID),
	}

	room.host.Send(Message{Type: TypeViewerJoined, ViewerID: viewerID})
	viewer.Send(Message{Type: TypeViewerJoined, Room: code, ViewerID: viewerID})

	reg.log.Info("viewer joined",
		zap.String("room", code),
		zap.String("viewer", viewerID),
		zap.Int("viewers", len(room.viewers)))
	reg.metrics.ViewerJoined()
	return viewerID, nil
}

// RemoveViewer drops a viewer from its room and closes its session.
// Idempotent: removing an absent viewer is a no-op.
func (reg *Registry) RemoveViewer(code, viewerID string) {
	code = NormalizeRoomCode(code)

	reg.mu.RLock()
	room, exists := reg.rooms[code]
	reg.mu.RUnlock()

	if !exists {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	entry, ok := room.viewers[viewerID]
	if !ok {
		return
	}

	entry.session.Close()
	delete(room.viewers, viewerID)

	if !room.closing {
		room.host.Send(Message{Type: TypeViewerLeft, ViewerID: viewerID})
	}

	reg.log.Info("viewer left",
		zap.String("room", code),
		zap.String("viewer", viewerID),
		zap.Int("viewers", len(room.viewers)))
	reg.metrics.ViewerLeft()
}

// RemoveHost tears the whole room down: every session is closed, every
// viewer connection receives host-left, and the code becomes available
// again. Returns the ids of the viewers that were torn down. Removing a
// nonexistent room is a no-op returning nil.
//
// The room is detached from the code map before the drain, so a new host
// registering the same code gets a fresh room and never lands inside the
// half-torn-down one.
func (reg *Registry) RemoveHost(code string) []string {
	code = NormalizeRoomCode(code)

	reg.mu.Lock()
	room, exists := reg.rooms[code]
	if exists {
		delete(reg.rooms, code)
	}
	reg.mu.Unlock()

	if !exists {
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	room.closing = true

	viewerIDs := make([]string, 0, len(room.viewers))
	for id, entry := range room.viewers {
		entry.session.Close()
		entry.peer.Send(Message{Type: TypeHostLeft})
		viewerIDs = append(viewerIDs, id)
		reg.metrics.ViewerLeft()
	}
	room.viewers = make(map[string]*viewerEntry)

	reg.log.Info("room closed",
		zap.String("room", code),
		zap.Int("viewers_dropped", len(viewerIDs)))
	reg.metrics.RoomClosed()
	return viewerIDs
}

// Room returns the live room for code, if any.
func (reg *Registry) Room(code string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[NormalizeRoomCode(code)]
	return room, ok
}

// RoomCount returns the number of live rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// ViewerCount returns the number of viewers currently in a room.
func (reg *Registry) ViewerCount(code string) int {
	room, ok := reg.Room(code)
	if !ok {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.viewers)
}

// withViewer looks up a viewer entry under the room lock and hands it to fn.
// Returns false if the viewer is unknown.
func (r *Room) withViewer(viewerID string, fn func(*viewerEntry)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.viewers[viewerID]
	if !ok {
		return false
	}
	fn(entry)
	return true
}
