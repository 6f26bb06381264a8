package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quyphuc2111/lanpeek/pkg/metrics"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 512 * 1024 // SDP payloads are a few KB; 512K is generous
	sendBuffer     = 256
)

// Server owns the signaling endpoint: it upgrades WebSocket connections,
// feeds inbound frames to the Router, and triggers teardown when a
// connection drops.
type Server struct {
	registry *Registry
	router   *Router
	upgrader websocket.Upgrader

	httpSrv *http.Server
	log     *zap.Logger
	metrics *metrics.Collector
}

// NewServer creates a signaling server with a fresh registry and router.
func NewServer(log *zap.Logger, m *metrics.Collector) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	registry := NewRegistry(log, m)
	return &Server{
		registry: registry,
		router:   NewRouter(registry, log, m),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // LAN tool, any origin may connect
			},
		},
		log:     log,
		metrics: m,
	}
}

// Registry exposes the room registry, mainly for tests and status views.
func (s *Server) Registry() *Registry { return s.registry }

// Router exposes the message router.
func (s *Server) Router() *Router { return s.router }

// Handler returns the HTTP handler tree: /ws for signaling, /healthz,
// and /metrics when a collector is wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}

// HandleWebSocket upgrades a connection and starts its pumps. The party's
// role is established by its first host/viewer message, not by the URL.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		server: s,
	}

	go client.writePump()
	go client.readPump()
}

// Serve runs the HTTP server on addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("signal server listening", zap.String("addr", addr))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// Client represents one connected WebSocket party on the server side.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	server *Server
}

// close signals both pumps that the connection is finished. The done
// channel is closed rather than send, so a racing Send from another
// party's goroutine can never panic.
func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Send queues a message for delivery. Never blocks; if the client's
// buffer is full the message is dropped, which only happens to peers that
// stopped reading and are about to be torn down anyway.
func (c *Client) Send(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.server.log.Error("marshal outbound message", zap.Error(err))
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.server.log.Warn("send buffer full, dropping message",
			zap.String("type", msg.Type))
	}
}

// readPump reads frames until the connection dies, then hands the client
// to the router for teardown. Messages from one connection are processed
// strictly in arrival order.
func (c *Client) readPump() {
	defer func() {
		c.server.router.Disconnect(c)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.server.log.Warn("invalid message format", zap.Error(err))
			continue
		}

		c.server.router.Route(c, msg)
	}
}

// writePump drains the send channel to the socket and keeps the
// connection alive with pings. Exits when a write fails or readPump
// signals teardown.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
