package webview

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// client is one WebSocket viewer. The write pump is the only writer on
// conn; the read pump only consumes control frames.
type client struct {
	conn *websocket.Conn
	sent *atomic.Uint64

	// frames and text hold at most one pending message each.
	frames chan []byte
	text   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, sent *atomic.Uint64) *client {
	return &client{
		conn:   conn,
		sent:   sent,
		frames: make(chan []byte, 1),
		text:   make(chan []byte, 1),
		done:   make(chan struct{}),
	}
}

// offer puts msg in ch, replacing a pending message. It reports whether
// one was replaced. Only the broadcaster sends on ch.
func offer(ch chan []byte, msg []byte) bool {
	replaced := false
	select {
	case <-ch:
		replaced = true
	default:
	}
	select {
	case ch <- msg:
	default:
	}
	return replaced
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *client) readPump() {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.close()
	}()

	for {
		var (
			kind int
			msg  []byte
		)
		select {
		case <-c.done:
			return
		case msg = <-c.frames:
			kind = websocket.BinaryMessage
		case msg = <-c.text:
			kind = websocket.TextMessage
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(kind, msg); err != nil {
			return
		}
		if kind == websocket.BinaryMessage {
			c.sent.Add(1)
		}
	}
}
