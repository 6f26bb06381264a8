package signal

import (
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv := NewServer(nil, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestServerEndToEndNegotiation(t *testing.T) {
	_, wsURL := startTestServer(t)

	host := dialWS(t, wsURL)
	require.NoError(t, host.WriteJSON(Message{Type: TypeHost, Room: "AB12CD"}))

	viewer := dialWS(t, wsURL)
	require.NoError(t, viewer.WriteJSON(Message{Type: TypeViewer, Room: "ab12cd"}))

	// Both sides learn the assigned viewer id.
	ack := readMessage(t, viewer)
	require.Equal(t, TypeViewerJoined, ack.Type)
	viewerID := ack.ViewerID
	require.NotEmpty(t, viewerID)

	notify := readMessage(t, host)
	require.Equal(t, TypeViewerJoined, notify.Type)
	assert.Equal(t, viewerID, notify.ViewerID)

	// Offer travels host -> viewer unchanged.
	require.NoError(t, host.WriteJSON(Message{Type: TypeOffer, ViewerID: viewerID, SDP: "v=0 offer"}))
	offer := readMessage(t, viewer)
	require.Equal(t, TypeOffer, offer.Type)
	assert.Equal(t, "v=0 offer", offer.SDP)

	// Candidate sent before the answer is held back.
	require.NoError(t, viewer.WriteJSON(Message{Type: TypeCandidate, Candidate: candidate(0)}))

	// Answer completes the exchange; the held candidate follows it.
	require.NoError(t, viewer.WriteJSON(Message{Type: TypeAnswer, SDP: "v=0 answer"}))

	answer := readMessage(t, host)
	require.Equal(t, TypeAnswer, answer.Type)
	assert.Equal(t, viewerID, answer.ViewerID)

	cand := readMessage(t, host)
	require.Equal(t, TypeCandidate, cand.Type)
	assert.Equal(t, viewerID, cand.ViewerID)
	assert.JSONEq(t, string(candidate(0)), string(cand.Candidate))
}

func TestServerViewerDisconnectNotifiesHost(t *testing.T) {
	srv, wsURL := startTestServer(t)

	host := dialWS(t, wsURL)
	require.NoError(t, host.WriteJSON(Message{Type: TypeHost, Room: "AB12CD"}))

	viewer := dialWS(t, wsURL)
	require.NoError(t, viewer.WriteJSON(Message{Type: TypeViewer, Room: "AB12CD"}))
	joined := readMessage(t, viewer)
	viewerID := joined.ViewerID

	readMessage(t, host) // viewer-joined

	viewer.Close()

	left := readMessage(t, host)
	require.Equal(t, TypeViewerLeft, left.Type)
	assert.Equal(t, viewerID, left.ViewerID)

	require.Eventually(t, func() bool {
		return srv.Registry().ViewerCount("AB12CD") == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestServerHostDisconnectTearsDownRoom(t *testing.T) {
	srv, wsURL := startTestServer(t)

	host := dialWS(t, wsURL)
	require.NoError(t, host.WriteJSON(Message{Type: TypeHost, Room: "AB12CD"}))

	viewer := dialWS(t, wsURL)
	require.NoError(t, viewer.WriteJSON(Message{Type: TypeViewer, Room: "AB12CD"}))
	readMessage(t, viewer) // viewer-joined ack
	readMessage(t, host)   // viewer-joined notify

	host.Close()

	hostLeft := readMessage(t, viewer)
	assert.Equal(t, TypeHostLeft, hostLeft.Type)

	require.Eventually(t, func() bool {
		return srv.Registry().RoomCount() == 0
	}, 3*time.Second, 10*time.Millisecond)

	// The code is available again for a new host.
	host2 := dialWS(t, wsURL)
	require.NoError(t, host2.WriteJSON(Message{Type: TypeHost, Room: "AB12CD"}))
	require.Eventually(t, func() bool {
		return srv.Registry().RoomCount() == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestServerDuplicateCodeRejected(t *testing.T) {
	_, wsURL := startTestServer(t)

	host1 := dialWS(t, wsURL)
	require.NoError(t, host1.WriteJSON(Message{Type: TypeHost, Room: "AB12CD"}))

	host2 := dialWS(t, wsURL)
	require.NoError(t, host2.WriteJSON(Message{Type: TypeHost, Room: "AB12CD"}))

	errMsg := readMessage(t, host2)
	require.Equal(t, TypeError, errMsg.Type)
	assert.Equal(t, ErrCodeTaken.Error(), errMsg.Error)
}

func TestServerReleasesPumpsOnDisconnect(t *testing.T) {
	_, wsURL := startTestServer(t)

	baseline := runtime.NumGoroutine()

	conns := make([]*websocket.Conn, 0, 5)
	for i := 0; i < 5; i++ {
		conns = append(conns, dialWS(t, wsURL))
	}
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() >= baseline+10
	}, 3*time.Second, 10*time.Millisecond, "each connection runs two pumps")

	for _, c := range conns {
		c.Close()
	}

	// Both pumps must exit promptly, well inside the ping interval.
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline+2
	}, 3*time.Second, 20*time.Millisecond, "pumps linger after disconnect")
}

func TestClientConnAgainstServer(t *testing.T) {
	_, wsURL := startTestServer(t)

	hostConn, err := Dial(wsURL, nil)
	require.NoError(t, err)
	defer hostConn.Close()
	require.NoError(t, hostConn.Send(Message{Type: TypeHost, Room: "AB12CD"}))

	viewerConn, err := Dial(wsURL, nil)
	require.NoError(t, err)
	require.NoError(t, viewerConn.Send(Message{Type: TypeViewer, Room: "AB12CD"}))

	select {
	case msg := <-viewerConn.Messages():
		assert.Equal(t, TypeViewerJoined, msg.Type)
		assert.NotEmpty(t, msg.ViewerID)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for join ack")
	}

	disconnected := make(chan struct{})
	hostConn.SetDisconnectHandler(func() { close(disconnected) })

	viewerConn.Close()
	select {
	case msg := <-hostConn.Messages():
		// First the join notification, then the departure.
		if msg.Type == TypeViewerJoined {
			msg = <-hostConn.Messages()
		}
		assert.Equal(t, TypeViewerLeft, msg.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for viewer-left")
	}

	// Closing locally must not fire the disconnect handler.
	hostConn.Close()
	select {
	case <-disconnected:
		t.Fatal("disconnect handler fired on local close")
	case <-time.After(100 * time.Millisecond):
	}
}
