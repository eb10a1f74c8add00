package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type state int

const (
	stateNew state = iota
	stateAuthenticated
	stateClosed
)

// Conn is the per-socket state. All writes to the underlying socket go
// through send/sendJSON so the tick timer and request handlers never
// interleave frames.
type Conn struct {
	id        string
	sourceIP  string
	userAgent string
	ws        *websocket.Conn

	mu    sync.Mutex // guards state, seq, and the socket writer
	state state
	seq   int64

	done      chan struct{}
	closeOnce sync.Once
}

func (c *Conn) authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateAuthenticated
}

func (c *Conn) closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}

// nextSeq increments the per-connection event sequence.
func (c *Conn) nextSeq() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// sendJSON marshals v and writes it as one text frame. A send on a closed
// connection reports an error without touching the socket.
func (c *Conn) sendJSON(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.send(msg)
}

func (c *Conn) send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return websocket.ErrCloseSent
	}
	c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

// ping writes a control frame; the janitor uses it to detect sockets that
// died without a close handshake.
func (c *Conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return websocket.ErrCloseSent
	}
	c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
