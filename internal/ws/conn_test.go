// SPDX-License-Identifier: MIT
package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingHandler struct {
	mu       sync.Mutex
	frames   [][]byte
	gone     chan struct{}
	goneOnce sync.Once
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{gone: make(chan struct{})}
}

func (h *recordingHandler) HandleMessage(_ *Conn, data []byte) {
	h.mu.Lock()
	h.frames = append(h.frames, append([]byte(nil), data...))
	h.mu.Unlock()
}

func (h *recordingHandler) HandleDisconnect(_ *Conn) {
	h.goneOnce.Do(func() { close(h.gone) })
}

func (h *recordingHandler) frameCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

func (h *recordingHandler) frame(i int) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames[i]
}

// startServedConn dials a connection whose pumps are running.
func startServedConn(t *testing.T, handler *recordingHandler, opts Options) (*websocket.Conn, *Conn, func()) {
	t.Helper()

	connCh := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := Upgrade(w, r)
		if err != nil {
			return
		}
		c := NewConn(sock, handler, opts)
		connCh <- c
		c.Serve()
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()

	var server *Conn
	select {
	case server = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server connection never arrived")
	}

	cleanup := func() {
		_ = client.Close()
		select {
		case <-handler.gone:
		case <-time.After(2 * time.Second):
		}
		srv.Close()
	}
	return client, server, cleanup
}

// startIdleConn dials a connection without starting its pumps, so queue
// behavior can be exercised deterministically.
func startIdleConn(t *testing.T, opts Options) (*websocket.Conn, *Conn, func()) {
	t.Helper()

	connCh := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := Upgrade(w, r)
		if err != nil {
			return
		}
		connCh <- NewConn(sock, newRecordingHandler(), opts)
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()

	var server *Conn
	select {
	case server = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server connection never arrived")
	}

	cleanup := func() {
		server.Close()
		_ = client.Close()
		srv.Close()
	}
	return client, server, cleanup
}

func TestFramesReachHandler(t *testing.T) {
	handler := newRecordingHandler()
	client, _, cleanup := startServedConn(t, handler, Options{})
	defer cleanup()

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"device_register"}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"session_create"}`)))

	require.Eventually(t, func() bool { return handler.frameCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"type":"device_register"}`, string(handler.frame(0)))
	assert.JSONEq(t, `{"type":"session_create"}`, string(handler.frame(1)))
}

func TestTrySendReachesClient(t *testing.T) {
	handler := newRecordingHandler()
	client, server, cleanup := startServedConn(t, handler, Options{})
	defer cleanup()

	require.True(t, server.TrySend([]byte(`{"type":"session_created"}`)))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.JSONEq(t, `{"type":"session_created"}`, string(data))
}

func TestCloseWithReasonFlushesQueueFirst(t *testing.T) {
	handler := newRecordingHandler()
	client, server, cleanup := startServedConn(t, handler, Options{})
	defer cleanup()

	require.True(t, server.TrySend([]byte(`{"seq":1}`)))
	require.True(t, server.TrySend([]byte(`{"seq":2}`)))
	server.CloseWithReason(websocket.CloseNormalClosure, "Session owner left")

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, first, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":1}`, string(first))

	_, second, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":2}`, string(second))

	_, _, err = client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "Session owner left", closeErr.Text)
}

func TestQueueOverflowDropsConnection(t *testing.T) {
	client, server, cleanup := startIdleConn(t, Options{SendBuffer: 2})
	defer cleanup()

	// No write pump is draining, so the third frame overflows.
	require.True(t, server.TrySend([]byte(`1`)))
	require.True(t, server.TrySend([]byte(`2`)))
	assert.False(t, server.TrySend([]byte(`3`)))

	// The connection is gone; further sends are refused and the peer
	// sees the socket close.
	assert.False(t, server.TrySend([]byte(`4`)))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)
}

func TestMissedPongsCloseConnection(t *testing.T) {
	handler := newRecordingHandler()
	_, _, cleanup := startServedConn(t, handler, Options{PingInterval: 40 * time.Millisecond})
	defer cleanup()

	// The client never reads, so it never answers pings. Two missed
	// intervals later the server gives up.
	select {
	case <-handler.gone:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed after missed pongs")
	}
}

func TestPongsKeepConnectionAlive(t *testing.T) {
	handler := newRecordingHandler()
	client, server, cleanup := startServedConn(t, handler, Options{PingInterval: 40 * time.Millisecond})
	defer cleanup()

	// A reading client answers pings automatically.
	got := make(chan []byte, 1)
	go func() {
		for {
			_, data, err := client.ReadMessage()
			if err != nil {
				return
			}
			select {
			case got <- data:
			default:
			}
		}
	}()

	time.Sleep(200 * time.Millisecond)

	require.True(t, server.TrySend([]byte(`{"type":"clipboard_sync"}`)))
	select {
	case data := <-got:
		assert.JSONEq(t, `{"type":"clipboard_sync"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered after idle period")
	}
}

func TestClientDisconnectNotifiesHandler(t *testing.T) {
	handler := newRecordingHandler()
	client, _, cleanup := startServedConn(t, handler, Options{})
	defer cleanup()

	require.NoError(t, client.Close())

	select {
	case <-handler.gone:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect was not reported")
	}
}
