// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ws wraps a gorilla websocket connection with the read/write
// pumps and the bounded send queue the hub relies on. It knows nothing
// about the message protocol; frames are opaque byte slices.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/flowlink/flowlink/internal/log"
	"github.com/flowlink/flowlink/internal/metrics"
)

const (
	// writeWait bounds a single frame or control write.
	writeWait = 10 * time.Second

	defaultPingInterval = 30 * time.Second
	defaultSendBuffer   = 64

	// maxFrameBytes caps inbound frames. Clipboard payloads are the
	// largest legitimate frames and stay well under this.
	maxFrameBytes = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The hub trusts its local network. Clients are native shells and
	// app webviews without a meaningful browser origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Upgrade switches an HTTP request to the websocket protocol.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// Handler receives inbound frames and the disconnect notice for a
// connection. HandleMessage runs on the connection's read goroutine, so
// one connection's messages are always processed in order.
type Handler interface {
	HandleMessage(c *Conn, data []byte)
	HandleDisconnect(c *Conn)
}

// Options tune a single connection. Zero values fall back to defaults.
type Options struct {
	PingInterval time.Duration
	SendBuffer   int
}

// Conn is one websocket connection with its pumps.
//
// Outbound frames go through a bounded queue: TrySend never blocks, and
// a consumer that lets the queue overflow is dropped. The peer must
// answer pings; two missed intervals close the connection.
type Conn struct {
	id   string
	sock *websocket.Conn

	handler Handler

	send chan []byte
	done chan struct{}

	pingInterval time.Duration

	closeOnce  sync.Once
	sendOnce   sync.Once
	notifyOnce sync.Once

	closeMu   sync.Mutex
	closeCode int
	closeText string

	log zerolog.Logger
}

// NewConn wraps an upgraded websocket connection. Call Serve to start
// the pumps.
func NewConn(sock *websocket.Conn, handler Handler, opts Options) *Conn {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	id := uuid.NewString()
	return &Conn{
		id:           id,
		sock:         sock,
		handler:      handler,
		send:         make(chan []byte, opts.SendBuffer),
		done:         make(chan struct{}),
		pingInterval: opts.PingInterval,
		log:          log.WithComponent("ws").With().Str(log.FieldConnID, id).Logger(),
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address for logging.
func (c *Conn) RemoteAddr() string { return c.sock.RemoteAddr().String() }

// Serve runs the write pump in a new goroutine and the read pump in the
// calling goroutine. It returns once the connection is finished; the
// handler's HandleDisconnect has been called by then.
func (c *Conn) Serve() {
	go c.writePump()
	c.readPump()
}

// TrySend queues a frame without blocking. A full queue means the peer
// stopped draining; the connection is dropped and false is returned.
func (c *Conn) TrySend(data []byte) bool {
	if c.closed() {
		return false
	}
	defer func() {
		// Send raced with shutdown; the connection is gone either way.
		_ = recover()
	}()
	select {
	case c.send <- data:
		return true
	default:
		c.log.Warn().Int("queue_cap", cap(c.send)).Msg("send queue overflow, dropping connection")
		metrics.IncSendQueueDrop()
		c.Close()
		return false
	}
}

// CloseWithReason flushes queued frames, sends a close frame with the
// given code and reason, and tears the connection down.
func (c *Conn) CloseWithReason(code int, reason string) {
	c.closeMu.Lock()
	c.closeCode, c.closeText = code, reason
	c.closeMu.Unlock()
	c.sendOnce.Do(func() { close(c.send) })
}

// Close tears the connection down immediately without a close frame.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) readPump() {
	defer func() {
		c.Close()
		c.notifyOnce.Do(func() { c.handler.HandleDisconnect(c) })
	}()

	pongWait := 2 * c.pingInterval
	c.sock.SetReadLimit(maxFrameBytes)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug().Err(err).Msg("read loop ended")
			}
			return
		}
		_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
		c.handler.HandleMessage(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				// CloseWithReason closed the queue; everything buffered
				// before it has been flushed by now.
				c.closeMu.Lock()
				code, text := c.closeCode, c.closeText
				c.closeMu.Unlock()
				if code == 0 {
					code = websocket.CloseNormalClosure
				}
				_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.sock.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
				return
			}
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
