package signal

import "encoding/json"

// SessionState tracks where a viewer's negotiation stands.
type SessionState int

const (
	// AwaitingOffer: viewer joined, host has not sent an offer yet.
	AwaitingOffer SessionState = iota
	// OfferSent: an offer is on its way to the viewer, answer pending.
	OfferSent
	// AnswerReceived: negotiation complete, candidates flow freely.
	AnswerReceived
	// Closed: torn down. Absorbing; every further message is dropped.
	Closed
)

func (s SessionState) String() string {
	switch s {
	case AwaitingOffer:
		return "awaiting-offer"
	case OfferSent:
		return "offer-sent"
	case AnswerReceived:
		return "answer-received"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Session holds the negotiation lifecycle for one viewer within a room.
// It is owned by the Room that created it and is only touched under the
// room's lock, so transitions are atomic with respect to concurrent
// messages for the same viewer.
type Session struct {
	viewerID string
	state    SessionState

	// Candidates that arrived before the answer completed the exchange.
	// They must reach the host in arrival order, ahead of anything newer,
	// or connectivity establishment silently stalls.
	pending []json.RawMessage
}

// NewSession creates a session in AwaitingOffer for the given viewer id.
func NewSession(viewerID string) *Session {
	return &Session{viewerID: viewerID, state: AwaitingOffer}
}

// ViewerID returns the coordinator-assigned identity for this session.
func (s *Session) ViewerID() string { return s.viewerID }

// State returns the current negotiation state.
func (s *Session) State() SessionState { return s.state }

// MarkOfferSent records that the host produced an offer for this viewer.
// A second offer while already negotiating supersedes the exchange
// (renegotiation) and resets the session to OfferSent; buffered candidates
// are kept so nothing that already arrived is lost.
func (s *Session) MarkOfferSent() error {
	if s.state == Closed {
		return ErrSessionClosed
	}
	s.state = OfferSent
	return nil
}

// AcceptAnswer completes the exchange. It returns the candidates buffered
// while the answer was outstanding, in arrival order; the caller must
// deliver them before any candidate that arrives afterwards.
// An answer with no offer outstanding is a protocol violation and leaves
// the session untouched.
func (s *Session) AcceptAnswer() ([]json.RawMessage, error) {
	switch s.state {
	case Closed:
		return nil, ErrSessionClosed
	case AwaitingOffer:
		return nil, ErrUnexpectedAnswer
	}
	s.state = AnswerReceived
	drained := s.pending
	s.pending = nil
	return drained, nil
}

// AddCandidate accepts a remote candidate. Before the answer arrives the
// candidate is buffered and deliver is false; once negotiation completed
// deliver is true and the caller forwards it immediately.
func (s *Session) AddCandidate(candidate json.RawMessage) (deliver bool, err error) {
	switch s.state {
	case Closed:
		return false, ErrSessionClosed
	case AnswerReceived:
		return true, nil
	default:
		s.pending = append(s.pending, candidate)
		return false, nil
	}
}

// Close moves the session to its terminal state. Safe to call repeatedly.
func (s *Session) Close() {
	s.state = Closed
	s.pending = nil
}
