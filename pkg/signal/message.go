package signal

import "encoding/json"

// Message types exchanged over the signaling channel.
const (
	TypeHost         = "host"          // host announces a room code
	TypeViewer       = "viewer"        // viewer asks to join a room code
	TypeOffer        = "offer"         // host -> viewer SDP offer
	TypeAnswer       = "answer"        // viewer -> host SDP answer
	TypeCandidate    = "ice-candidate" // ICE candidate, either direction
	TypeViewerJoined = "viewer-joined" // notification: a viewer entered the room
	TypeViewerLeft   = "viewer-left"   // notification: a viewer left the room
	TypeHostLeft     = "host-left"     // notification: the host is gone
	TypeError        = "error"         // protocol error, sent to the offender only
)

// Message represents a WebSocket signaling message.
// One struct covers every variant; unused fields are omitted on the wire.
type Message struct {
	Type      string          `json:"type"`                // see Type* constants
	Room      string          `json:"room,omitempty"`      // room code (host/viewer join)
	ViewerID  string          `json:"viewerId,omitempty"`  // routing identity within a room
	SDP       string          `json:"sdp,omitempty"`       // SDP offer/answer
	Candidate json.RawMessage `json:"candidate,omitempty"` // ICE candidate, passed through opaquely
	Error     string          `json:"error,omitempty"`     // error reason
}

// errorMessage builds an error variant for a given reason.
func errorMessage(reason string) Message {
	return Message{Type: TypeError, Error: reason}
}
