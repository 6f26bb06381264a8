// Package framecast is the raw-frame broadcast path: one host pushes
// encoded frames to every open viewer connection with no negotiation and
// no session state. Viewers that fall behind lose frames, never block the
// broadcast.
package framecast

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const clientBuffer = 8

// FrameSource produces encoded frames (JPEG) for broadcast. Capture and
// encoding live behind this seam; the server never touches pixels.
type FrameSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// Server fans frames out to all connected viewers.
type Server struct {
	source   FrameSource
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*castClient]bool

	httpSrv *http.Server
	log     *zap.Logger
}

type castClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewServer creates a broadcast server reading one frame per interval.
func NewServer(source FrameSource, interval time.Duration, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		source:   source,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*castClient]bool),
		log:     log,
	}
}

// Handler returns the WebSocket endpoint viewers connect to.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleViewer)
	return mux
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &castClient{
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}

	s.mu.Lock()
	s.clients[client] = true
	n := len(s.clients)
	s.mu.Unlock()
	s.log.Info("cast viewer connected", zap.Int("viewers", n))

	go s.writePump(client)
	go s.readPump(client)
}

// readPump exists only to detect disconnects; viewers send nothing.
func (s *Server) readPump(c *castClient) {
	defer s.dropClient(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *castClient) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (s *Server) dropClient(c *castClient) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	n := len(s.clients)
	s.mu.Unlock()
	c.conn.Close()
	s.log.Info("cast viewer disconnected", zap.Int("viewers", n))
}

// Run pulls frames from the source at the configured interval and
// broadcasts them base64-encoded until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return ctx.Err()
		case <-ticker.C:
			frame, err := s.source.Next(ctx)
			if err != nil {
				s.log.Error("frame source failed", zap.Error(err))
				s.closeAll()
				return err
			}
			s.broadcast(frame)
		}
	}
}

// broadcast sends one frame to every client, dropping it for clients
// whose buffers are full.
func (s *Server) broadcast(frame []byte) {
	encoded := []byte(base64.StdEncoding.EncodeToString(frame))

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- encoded:
		default:
			// Viewer is not keeping up; skip this frame for it.
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

// ViewerCount returns the number of connected viewers.
func (s *Server) ViewerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Serve runs both the HTTP listener and the broadcast loop until ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 2)
	go func() {
		s.log.Info("frame broadcast listening", zap.String("addr", addr))
		errCh <- s.httpSrv.ListenAndServe()
	}()
	go func() {
		errCh <- s.Run(ctx)
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
