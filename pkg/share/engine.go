// Package share is the host side of a sharing session: one pion
// PeerConnection per viewer, all fed from a single local video track.
package share

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"

	"github.com/quyphuc2111/lanpeek/pkg/config"
)

// ViewerState describes one viewer's media connection as seen by the host.
type ViewerState struct {
	ViewerID       string
	State          string // connecting, connected, disconnected...
	ConnectedAt    time.Time
	ConnectionType string // "direct", "relay", or "unknown"
}

// Engine manages the host's WebRTC connections. Offers are created per
// viewer id; the shared track carries the same stream to everyone.
type Engine struct {
	config webrtc.Configuration
	track  *webrtc.TrackLocalStaticSample

	mu     sync.RWMutex
	conns  map[string]*webrtc.PeerConnection
	states map[string]*ViewerState

	onICE        func(viewerID string, candidate json.RawMessage)
	onConnected  func(viewerID string)
	onDisconnect func(viewerID string)

	log *zap.Logger
}

// NewEngine builds an engine from the WebRTC section of the config.
func NewEngine(cfg *config.Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.WebRTC.STUNServers)+1)
	if !cfg.WebRTC.ForceRelay {
		for _, url := range cfg.WebRTC.STUNServers {
			iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
		}
	}
	if cfg.WebRTC.TURN.URL != "" {
		turn := webrtc.ICEServer{URLs: []string{cfg.WebRTC.TURN.URL}}
		if cfg.WebRTC.TURN.Username != "" {
			turn.Username = cfg.WebRTC.TURN.Username
			turn.Credential = cfg.WebRTC.TURN.Password
			turn.CredentialType = webrtc.ICECredentialTypePassword
		}
		iceServers = append(iceServers, turn)
	}

	policy := webrtc.ICETransportPolicyAll
	if cfg.WebRTC.ForceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "lanpeek",
	)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}

	return &Engine{
		config: webrtc.Configuration{
			ICEServers:         iceServers,
			ICETransportPolicy: policy,
		},
		track:  track,
		conns:  make(map[string]*webrtc.PeerConnection),
		states: make(map[string]*ViewerState),
		log:    log,
	}, nil
}

// SetICECallback sets the callback for locally gathered candidates.
func (e *Engine) SetICECallback(fn func(viewerID string, candidate json.RawMessage)) {
	e.onICE = fn
}

// SetConnectedCallback sets the callback for a viewer reaching connected.
func (e *Engine) SetConnectedCallback(fn func(viewerID string)) {
	e.onConnected = fn
}

// SetDisconnectCallback sets the callback for a viewer's media dropping.
func (e *Engine) SetDisconnectCallback(fn func(viewerID string)) {
	e.onDisconnect = fn
}

// CreateOffer builds a PeerConnection for the viewer and returns the SDP
// offer. ICE gathering completes before returning, so the offer carries
// the host's candidates inline; trickled candidates still flow through
// the ICE callback for the TURN case.
func (e *Engine) CreateOffer(viewerID string) (string, error) {
	pc, err := webrtc.NewPeerConnection(e.config)
	if err != nil {
		return "", fmt.Errorf("create peer connection: %w", err)
	}

	if _, err := pc.AddTrack(e.track); err != nil {
		pc.Close()
		return "", fmt.Errorf("add video track: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || e.onICE == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			e.log.Error("marshal ice candidate", zap.Error(err))
			return
		}
		e.onICE(viewerID, data)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		e.log.Info("viewer connection state",
			zap.String("viewer", viewerID),
			zap.String("state", state.String()))

		e.mu.Lock()
		if st, ok := e.states[viewerID]; ok {
			st.State = state.String()
			if state == webrtc.PeerConnectionStateConnected {
				st.ConnectedAt = time.Now()
				st.ConnectionType = detectConnectionType(pc)
			}
		}
		e.mu.Unlock()

		switch state {
		case webrtc.PeerConnectionStateConnected:
			if e.onConnected != nil {
				e.onConnected(viewerID)
			}
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			if e.onDisconnect != nil {
				e.onDisconnect(viewerID)
			}
			e.RemovePeer(viewerID)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return "", fmt.Errorf("set local description: %w", err)
	}

	<-webrtc.GatheringCompletePromise(pc)

	e.mu.Lock()
	// A repeated offer for the same viewer supersedes the old connection.
	if old, ok := e.conns[viewerID]; ok {
		old.Close()
	}
	e.conns[viewerID] = pc
	e.states[viewerID] = &ViewerState{
		ViewerID:       viewerID,
		State:          "connecting",
		ConnectionType: "unknown",
	}
	e.mu.Unlock()

	return pc.LocalDescription().SDP, nil
}

// HandleAnswer applies a viewer's SDP answer.
func (e *Engine) HandleAnswer(viewerID, sdp string) error {
	pc, err := e.peer(viewerID)
	if err != nil {
		return err
	}
	return pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

// AddCandidate applies a remote ICE candidate for the viewer.
func (e *Engine) AddCandidate(viewerID string, raw json.RawMessage) error {
	pc, err := e.peer(viewerID)
	if err != nil {
		return err
	}
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return fmt.Errorf("parse ice candidate: %w", err)
	}
	return pc.AddICECandidate(candidate)
}

// RemovePeer closes and forgets the viewer's connection. Idempotent.
func (e *Engine) RemovePeer(viewerID string) {
	e.mu.Lock()
	pc, ok := e.conns[viewerID]
	delete(e.conns, viewerID)
	delete(e.states, viewerID)
	e.mu.Unlock()

	if ok {
		pc.Close()
	}
}

// Close tears down every connection.
func (e *Engine) Close() {
	e.mu.Lock()
	conns := e.conns
	e.conns = make(map[string]*webrtc.PeerConnection)
	e.states = make(map[string]*ViewerState)
	e.mu.Unlock()

	for _, pc := range conns {
		pc.Close()
	}
}

// WriteSample pushes one encoded video sample to every viewer.
func (e *Engine) WriteSample(sample media.Sample) error {
	return e.track.WriteSample(sample)
}

// Viewers returns a snapshot of the current viewer states.
func (e *Engine) Viewers() []ViewerState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ViewerState, 0, len(e.states))
	for _, st := range e.states {
		out = append(out, *st)
	}
	return out
}

func (e *Engine) peer(viewerID string) (*webrtc.PeerConnection, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pc, ok := e.conns[viewerID]
	if !ok {
		return nil, fmt.Errorf("peer not found: %s", viewerID)
	}
	return pc, nil
}

// detectConnectionType checks if the selected candidate pair is direct or
// relayed.
func detectConnectionType(pc *webrtc.PeerConnection) string {
	for _, stat := range pc.GetStats() {
		pair, ok := stat.(webrtc.ICECandidatePairStats)
		if !ok || pair.State != webrtc.StatsICECandidatePairStateSucceeded {
			continue
		}
		for _, s := range pc.GetStats() {
			local, ok := s.(webrtc.ICECandidateStats)
			if !ok || local.ID != pair.LocalCandidateID {
				continue
			}
			switch local.CandidateType {
			case webrtc.ICECandidateTypeRelay:
				return "relay"
			case webrtc.ICECandidateTypeHost,
				webrtc.ICECandidateTypeSrflx,
				webrtc.ICECandidateTypePrflx:
				return "direct"
			}
		}
	}
	return "unknown"
}
