package signal

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(i int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"candidate":"cand-%d"}`, i))
}

func TestSessionHappyPath(t *testing.T) {
	s := NewSession("v1")
	assert.Equal(t, AwaitingOffer, s.State())

	require.NoError(t, s.MarkOfferSent())
	assert.Equal(t, OfferSent, s.State())

	drained, err := s.AcceptAnswer()
	require.NoError(t, err)
	assert.Empty(t, drained)
	assert.Equal(t, AnswerReceived, s.State())

	// Candidates after negotiation complete are delivered immediately.
	deliver, err := s.AddCandidate(candidate(1))
	require.NoError(t, err)
	assert.True(t, deliver)
}

func TestSessionAnswerBeforeOffer(t *testing.T) {
	s := NewSession("v1")

	_, err := s.AcceptAnswer()
	assert.ErrorIs(t, err, ErrUnexpectedAnswer)
	// Protocol violation must not mutate state.
	assert.Equal(t, AwaitingOffer, s.State())
}

func TestSessionCandidateBufferingOrder(t *testing.T) {
	s := NewSession("v1")

	// Candidates before the offer exists are buffered, not delivered.
	for i := 0; i < 3; i++ {
		deliver, err := s.AddCandidate(candidate(i))
		require.NoError(t, err)
		assert.False(t, deliver)
	}
	assert.Equal(t, AwaitingOffer, s.State())

	require.NoError(t, s.MarkOfferSent())

	// More candidates while the answer is outstanding: still buffered.
	deliver, err := s.AddCandidate(candidate(3))
	require.NoError(t, err)
	assert.False(t, deliver)

	drained, err := s.AcceptAnswer()
	require.NoError(t, err)
	require.Len(t, drained, 4)
	for i, c := range drained {
		assert.JSONEq(t, string(candidate(i)), string(c), "drain must preserve arrival order")
	}

	// The buffer drains exactly once.
	drainedAgain, err := s.AcceptAnswer()
	require.NoError(t, err)
	assert.Empty(t, drainedAgain)
}

func TestSessionRenegotiation(t *testing.T) {
	s := NewSession("v1")
	require.NoError(t, s.MarkOfferSent())
	_, err := s.AcceptAnswer()
	require.NoError(t, err)

	// A second offer supersedes the completed exchange.
	require.NoError(t, s.MarkOfferSent())
	assert.Equal(t, OfferSent, s.State())

	// Candidates buffer again until the new answer lands.
	deliver, err := s.AddCandidate(candidate(1))
	require.NoError(t, err)
	assert.False(t, deliver)

	drained, err := s.AcceptAnswer()
	require.NoError(t, err)
	assert.Len(t, drained, 1)
}

func TestSessionClosedIsAbsorbing(t *testing.T) {
	s := NewSession("v1")
	s.Close()
	assert.Equal(t, Closed, s.State())

	assert.ErrorIs(t, s.MarkOfferSent(), ErrSessionClosed)

	_, err := s.AcceptAnswer()
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = s.AddCandidate(candidate(1))
	assert.ErrorIs(t, err, ErrSessionClosed)

	s.Close() // second close is harmless
	assert.Equal(t, Closed, s.State())
}

func TestSessionStateString(t *testing.T) {
	assert.Equal(t, "awaiting-offer", AwaitingOffer.String())
	assert.Equal(t, "offer-sent", OfferSent.String())
	assert.Equal(t, "answer-received", AnswerReceived.String())
	assert.Equal(t, "closed", Closed.String())
}
