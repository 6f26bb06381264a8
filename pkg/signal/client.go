package signal

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientConn is the dialing side of the signaling channel, used by both
// the share host and the viewer. Reads are delivered on a channel so the
// caller owns its own message loop; writes are serialized by a mutex.
type ClientConn struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	msgChan chan Message
	done    chan struct{}

	closeMu      sync.Mutex
	closed       bool
	onDisconnect func()

	log *zap.Logger
}

// Dial connects to a signaling server (ws://host:port/ws).
func Dial(url string, log *zap.Logger) (*ClientConn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signal server %s: %w", url, err)
	}

	c := &ClientConn{
		conn:    conn,
		msgChan: make(chan Message, 100),
		done:    make(chan struct{}),
		log:     log,
	}
	go c.readLoop()
	return c, nil
}

func (c *ClientConn) readLoop() {
	defer func() {
		close(c.msgChan)
		c.closeMu.Lock()
		if c.onDisconnect != nil && !c.closed {
			c.onDisconnect()
		}
		c.closeMu.Unlock()
	}()

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.closeMu.Lock()
			closed := c.closed
			c.closeMu.Unlock()
			if !closed {
				c.log.Debug("signal connection read ended", zap.Error(err))
			}
			return
		}
		select {
		case c.msgChan <- msg:
		case <-c.done:
			return
		}
	}
}

// Messages returns the channel of inbound messages. It is closed when the
// connection ends.
func (c *ClientConn) Messages() <-chan Message {
	return c.msgChan
}

// Send writes a message to the server.
func (c *ClientConn) Send(msg Message) error {
	c.closeMu.Lock()
	closed := c.closed
	c.closeMu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// SetDisconnectHandler sets the callback invoked when the connection is
// lost (not when Close is called locally).
func (c *ClientConn) SetDisconnectHandler(handler func()) {
	c.closeMu.Lock()
	c.onDisconnect = handler
	c.closeMu.Unlock()
}

// Close shuts the connection down.
func (c *ClientConn) Close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		c.conn.Close()
	}
}
