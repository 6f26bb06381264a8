// Package view is the receiving side of a sharing session: it joins a
// room by code, answers the host's offer and sinks the incoming video
// track.
package view

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/quyphuc2111/lanpeek/pkg/config"
	"github.com/quyphuc2111/lanpeek/pkg/signal"
)

const pliInterval = 3 * time.Second

// TrackSink consumes the RTP packets of the received video track.
// ivfwriter.IVFWriter satisfies it.
type TrackSink interface {
	WriteRTP(packet *rtp.Packet) error
	Close() error
}

// Viewer joins a room and receives the host's stream.
type Viewer struct {
	conn   *signal.ClientConn
	config webrtc.Configuration
	sink   TrackSink

	mu       sync.Mutex
	pc       *webrtc.PeerConnection
	pending  []webrtc.ICECandidateInit // candidates ahead of the offer
	viewerID string

	onState func(state string)
	done    chan struct{}

	log *zap.Logger
}

// NewViewer wires a signaling connection to a track sink.
func NewViewer(cfg *config.Config, conn *signal.ClientConn, sink TrackSink, log *zap.Logger) *Viewer {
	if log == nil {
		log = zap.NewNop()
	}
	iceServers := make([]webrtc.ICEServer, 0, len(cfg.WebRTC.STUNServers))
	for _, url := range cfg.WebRTC.STUNServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}
	return &Viewer{
		conn:   conn,
		config: webrtc.Configuration{ICEServers: iceServers},
		sink:   sink,
		done:   make(chan struct{}),
		log:    log,
	}
}

// SetStateHandler sets a callback for connection state changes.
func (v *Viewer) SetStateHandler(fn func(state string)) {
	v.onState = fn
}

// ViewerID returns the id assigned by the server, empty before the join
// is acknowledged.
func (v *Viewer) ViewerID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewerID
}

// Run joins the room and processes signaling until the host leaves, the
// connection drops or ctx is cancelled.
func (v *Viewer) Run(ctx context.Context, code string) error {
	defer v.teardown()

	if err := v.conn.Send(signal.Message{Type: signal.TypeViewer, Room: code}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			v.conn.Close()
			return ctx.Err()
		case msg, ok := <-v.conn.Messages():
			if !ok {
				return signal.ErrTransportClosed
			}
			switch msg.Type {
			case signal.TypeViewerJoined:
				v.mu.Lock()
				v.viewerID = msg.ViewerID
				v.mu.Unlock()
				v.log.Info("joined room",
					zap.String("room", msg.Room),
					zap.String("viewer", msg.ViewerID))

			case signal.TypeOffer:
				if err := v.handleOffer(msg.SDP); err != nil {
					return fmt.Errorf("handle offer: %w", err)
				}

			case signal.TypeCandidate:
				v.handleCandidate(msg.Candidate)

			case signal.TypeHostLeft:
				v.log.Info("host left, session over")
				return nil

			case signal.TypeError:
				return fmt.Errorf("rejected by server: %s", msg.Error)

			default:
				v.log.Debug("unhandled message", zap.String("type", msg.Type))
			}
		}
	}
}

// handleOffer answers the host's SDP offer. A second offer supersedes the
// running connection.
func (v *Viewer) handleOffer(sdp string) error {
	pc, err := webrtc.NewPeerConnection(v.config)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly},
	); err != nil {
		pc.Close()
		return fmt.Errorf("add video transceiver: %w", err)
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		v.log.Info("receiving track", zap.String("codec", track.Codec().MimeType))
		go v.requestKeyframes(pc, uint32(track.SSRC()))
		v.readTrack(track)
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		if err := v.conn.Send(signal.Message{
			Type:      signal.TypeCandidate,
			Candidate: data,
		}); err != nil {
			v.log.Debug("send ice candidate", zap.Error(err))
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		v.log.Info("connection state", zap.String("state", state.String()))
		if v.onState != nil {
			v.onState(state.String())
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	}); err != nil {
		pc.Close()
		return fmt.Errorf("set remote description: %w", err)
	}

	v.mu.Lock()
	if v.pc != nil {
		v.pc.Close()
	}
	v.pc = pc
	pending := v.pending
	v.pending = nil
	v.mu.Unlock()

	for _, candidate := range pending {
		if err := pc.AddICECandidate(candidate); err != nil {
			v.log.Debug("apply buffered candidate", zap.Error(err))
		}
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	<-webrtc.GatheringCompletePromise(pc)

	return v.conn.Send(signal.Message{
		Type: signal.TypeAnswer,
		SDP:  pc.LocalDescription().SDP,
	})
}

// handleCandidate applies a host candidate, buffering it if the offer has
// not arrived yet.
func (v *Viewer) handleCandidate(raw json.RawMessage) {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &candidate); err != nil {
		v.log.Debug("parse ice candidate", zap.Error(err))
		return
	}

	v.mu.Lock()
	pc := v.pc
	if pc == nil || pc.RemoteDescription() == nil {
		v.pending = append(v.pending, candidate)
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()

	if err := pc.AddICECandidate(candidate); err != nil {
		v.log.Debug("add ice candidate", zap.Error(err))
	}
}

func (v *Viewer) readTrack(track *webrtc.TrackRemote) {
	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			v.log.Debug("track read ended", zap.Error(err))
			return
		}
		if err := v.sink.WriteRTP(packet); err != nil {
			v.log.Warn("sink write failed", zap.Error(err))
			return
		}
	}
}

// requestKeyframes asks the host for a fresh keyframe periodically so a
// late join or packet loss recovers quickly.
func (v *Viewer) requestKeyframes(pc *webrtc.PeerConnection, ssrc uint32) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-v.done:
			return
		case <-ticker.C:
			err := pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: ssrc},
			})
			if err != nil {
				return
			}
		}
	}
}

func (v *Viewer) teardown() {
	close(v.done)
	v.mu.Lock()
	pc := v.pc
	v.pc = nil
	v.mu.Unlock()
	if pc != nil {
		pc.Close()
	}
	if err := v.sink.Close(); err != nil {
		v.log.Debug("close sink", zap.Error(err))
	}
}
