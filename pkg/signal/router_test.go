package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	return NewRouter(NewRegistry(nil, nil), nil, nil)
}

// joinPair registers a host and joins one viewer, returning the assigned id.
func joinPair(t *testing.T, rt *Router, host, viewer *fakePeer) string {
	t.Helper()
	rt.Route(host, Message{Type: TypeHost, Room: "AB12CD"})
	require.Empty(t, host.byType(TypeError))

	rt.Route(viewer, Message{Type: TypeViewer, Room: "AB12CD"})
	ack := viewer.byType(TypeViewerJoined)
	require.Len(t, ack, 1)
	return ack[0].ViewerID
}

func TestRouteHostAndViewerJoin(t *testing.T) {
	rt := newTestRouter(t)
	host := &fakePeer{}
	viewer := &fakePeer{}

	viewerID := joinPair(t, rt, host, viewer)

	notified := host.byType(TypeViewerJoined)
	require.Len(t, notified, 1)
	assert.Equal(t, viewerID, notified[0].ViewerID)
}

func TestRouteHostJoinInvalidCode(t *testing.T) {
	rt := newTestRouter(t)
	host := &fakePeer{}

	rt.Route(host, Message{Type: TypeHost, Room: "nope"})
	require.Len(t, host.byType(TypeError), 1)
	assert.Equal(t, 0, rt.reg.RoomCount())
}

func TestRouteViewerJoinNoRoom(t *testing.T) {
	rt := newTestRouter(t)
	viewer := &fakePeer{}

	rt.Route(viewer, Message{Type: TypeViewer, Room: "AB12CD"})
	errs := viewer.byType(TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrRoomNotFound.Error(), errs[0].Error)

	// The rejected connection was not bound to anything.
	_, bound := rt.binding(viewer)
	assert.False(t, bound)
}

func TestRouteOfferForwardedToViewer(t *testing.T) {
	rt := newTestRouter(t)
	host := &fakePeer{}
	viewer := &fakePeer{}
	viewerID := joinPair(t, rt, host, viewer)

	rt.Route(host, Message{Type: TypeOffer, ViewerID: viewerID, SDP: "v=0..."})

	offers := viewer.byType(TypeOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, "v=0...", offers[0].SDP)
	assert.Equal(t, viewerID, offers[0].ViewerID)
}

func TestRouteOfferUnknownViewer(t *testing.T) {
	rt := newTestRouter(t)
	host := &fakePeer{}
	viewer := &fakePeer{}
	joinPair(t, rt, host, viewer)

	rt.Route(host, Message{Type: TypeOffer, ViewerID: "bogus", SDP: "v=0..."})

	errs := host.byType(TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownViewer.Error(), errs[0].Error)
	// Nothing was forwarded downstream.
	assert.Empty(t, viewer.byType(TypeOffer))
}

func TestRouteAnswerFlowsToHost(t *testing.T) {
	rt := newTestRouter(t)
	host := &fakePeer{}
	viewer := &fakePeer{}
	viewerID := joinPair(t, rt, host, viewer)

	rt.Route(host, Message{Type: TypeOffer, ViewerID: viewerID, SDP: "offer"})
	rt.Route(viewer, Message{Type: TypeAnswer, SDP: "answer"})

	answers := host.byType(TypeAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, "answer", answers[0].SDP)
	// The router attaches the viewer's identity for host-side multiplexing.
	assert.Equal(t, viewerID, answers[0].ViewerID)
}

func TestRouteAnswerBeforeOffer(t *testing.T) {
	rt := newTestRouter(t)
	host := &fakePeer{}
	viewer := &fakePeer{}
	joinPair(t, rt, host, viewer)

	rt.Route(viewer, Message{Type: TypeAnswer, SDP: "answer"})

	errs := viewer.byType(TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnexpectedAnswer.Error(), errs[0].Error)
	assert.Empty(t, host.byType(TypeAnswer))
}

func TestRouteCandidateBufferedUntilAnswer(t *testing.T) {
	rt := newTestRouter(t)
	host := &fakePeer{}
	viewer := &fakePeer{}
	viewerID := joinPair(t, rt, host, viewer)

	// Viewer candidate before any offer: buffered, session untouched.
	rt.Route(viewer, Message{Type: TypeCandidate, Candidate: candidate(0)})
	assert.Empty(t, host.byType(TypeCandidate))

	rt.Route(host, Message{Type: TypeOffer, ViewerID: viewerID, SDP: "offer"})
	rt.Route(viewer, Message{Type: TypeCandidate, Candidate: candidate(1)})
	assert.Empty(t, host.byType(TypeCandidate))

	rt.Route(viewer, Message{Type: TypeAnswer, SDP: "answer"})

	// Answer first, then the buffered candidates in arrival order.
	msgs := host.messages()
	var relevant []Message
	for _, m := range msgs {
		if m.Type == TypeAnswer || m.Type == TypeCandidate {
			relevant = append(relevant, m)
		}
	}
	require.Len(t, relevant, 3)
	assert.Equal(t, TypeAnswer, relevant[0].Type)
	assert.JSONEq(t, string(candidate(0)), string(relevant[1].Candidate))
	assert.JSONEq(t, string(candidate(1)), string(relevant[2].Candidate))

	// A candidate arriving after negotiation flows straight through,
	// behind everything that was buffered.
	rt.Route(viewer, Message{Type: TypeCandidate, Candidate: candidate(2)})
	cands := host.byType(TypeCandidate)
	require.Len(t, cands, 3)
	assert.JSONEq(t, string(candidate(2)), string(cands[2].Candidate))
	for _, c := range cands {
		assert.Equal(t, viewerID, c.ViewerID)
	}
}

func TestRouteHostCandidateForwardedImmediately(t *testing.T) {
	rt := newTestRouter(t)
	host := &fakePeer{}
	viewer := &fakePeer{}
	viewerID := joinPair(t, rt, host, viewer)

	// Host-to-viewer candidates are not buffered server-side; the viewer
	// client holds them until its descriptions are in place.
	rt.Route(host, Message{Type: TypeCandidate, ViewerID: viewerID, Candidate: candidate(0)})

	cands := viewer.byType(TypeCandidate)
	require.Len(t, cands, 1)
	assert.JSONEq(t, string(candidate(0)), string(cands[0].Candidate))
}

func TestRouteUnknownMessageType(t *testing.T) {
	rt := newTestRouter(t)
	peer := &fakePeer{}

	rt.Route(peer, Message{Type: "frobnicate"})

	errs := peer.byType(TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownMessageType.Error(), errs[0].Error)
}

func TestDisconnectViewer(t *testing.T) {
	rt := newTestRouter(t)
	host := &fakePeer{}
	viewer := &fakePeer{}
	viewerID := joinPair(t, rt, host, viewer)

	rt.Disconnect(viewer)

	left := host.byType(TypeViewerLeft)
	require.Len(t, left, 1)
	assert.Equal(t, viewerID, left[0].ViewerID)
	assert.Equal(t, 0, rt.reg.ViewerCount("AB12CD"))

	// Second disconnect is a no-op.
	rt.Disconnect(viewer)
	assert.Len(t, host.byType(TypeViewerLeft), 1)

	// A fresh connection joins the same room and gets a distinct id.
	v2 := &fakePeer{}
	rt.Route(v2, Message{Type: TypeViewer, Room: "AB12CD"})
	ack := v2.byType(TypeViewerJoined)
	require.Len(t, ack, 1)
	assert.NotEqual(t, viewerID, ack[0].ViewerID)
}

func TestDisconnectHost(t *testing.T) {
	rt := newTestRouter(t)
	host := &fakePeer{}
	viewer := &fakePeer{}
	joinPair(t, rt, host, viewer)

	rt.Disconnect(host)

	assert.Len(t, viewer.byType(TypeHostLeft), 1)
	assert.Equal(t, 0, rt.reg.RoomCount())

	// The viewer's binding is gone: a late candidate is rejected, not routed.
	rt.Route(viewer, Message{Type: TypeCandidate, Candidate: candidate(0)})
	errs := viewer.byType(TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrRoomNotFound.Error(), errs[0].Error)
}

func TestClosedSessionSwallowsMessages(t *testing.T) {
	rt := newTestRouter(t)
	host := &fakePeer{}
	viewer := &fakePeer{}
	viewerID := joinPair(t, rt, host, viewer)

	// Close the session underneath the still-bound viewer connection.
	room, ok := rt.reg.Room("AB12CD")
	require.True(t, ok)
	room.withViewer(viewerID, func(e *viewerEntry) { e.session.Close() })

	before := len(viewer.messages())
	rt.Route(viewer, Message{Type: TypeCandidate, Candidate: candidate(0)})
	rt.Route(viewer, Message{Type: TypeAnswer, SDP: "late"})

	// Dropped silently: no errors back, nothing forwarded.
	assert.Len(t, viewer.messages(), before)
	assert.Empty(t, host.byType(TypeCandidate))
	assert.Empty(t, host.byType(TypeAnswer))
}
