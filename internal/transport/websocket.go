// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"audiofx/internal/log"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

var wsLog = log.Named("websocket")

const (
	writeWait       = 2 * time.Second
	broadcastBuffer = 16
)

// WebSocketTransport broadcasts every payload it is given, encoded as JSON,
// to all connected WebSocket clients. Sends are rate limited to maxFPS and
// dropped when the broadcast queue is full, so Send never blocks.
type WebSocketTransport struct {
	path     string
	upgrader websocket.Upgrader

	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex

	broadcast chan *websocket.PreparedMessage
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	server    *http.Server

	minInterval time.Duration
	rateMu      sync.Mutex
	lastSend    time.Time
}

// NewWebSocketTransport serves clients on addr at path. maxFPS <= 0
// disables rate limiting.
func NewWebSocketTransport(addr, path string, maxFPS int) *WebSocketTransport {
	wst := newWebSocketTransport(path, maxFPS)
	wst.server = &http.Server{
		Addr:              addr,
		Handler:           wst.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		wsLog.Infof("listening on %s%s", addr, path)
		if err := wst.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wsLog.Errorf("server error: %v", err)
		}
	}()
	return wst
}

// newWebSocketTransport returns a transport without a listener.
func newWebSocketTransport(path string, maxFPS int) *WebSocketTransport {
	wst := &WebSocketTransport{
		path: path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // local visualizers
			},
		},
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan *websocket.PreparedMessage, broadcastBuffer),
		done:      make(chan struct{}),
	}
	if maxFPS > 0 {
		wst.minInterval = time.Second / time.Duration(maxFPS)
	}
	wst.wg.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// Handler returns the HTTP handler that upgrades clients.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(wst.path, wst.handleWebSocket)
	return mux
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsLog.Warnf("upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = struct{}{}
	n := len(wst.clients)
	wst.clientsMu.Unlock()
	wsLog.Infof("client %s connected, total %d", conn.RemoteAddr(), n)

	// Clients never send anything meaningful; reading detects the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	n := len(wst.clients)
	wst.clientsMu.Unlock()
	conn.Close()
	if ok {
		wsLog.Infof("client %s disconnected, total %d", conn.RemoteAddr(), n)
	}
}

func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case <-wst.done:
			return
		case msg := <-wst.broadcast:
			wst.clientsMu.Lock()
			var failed []*websocket.Conn
			for client := range wst.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WritePreparedMessage(msg); err != nil {
					wsLog.Debugf("write to %s: %v", client.RemoteAddr(), err)
					failed = append(failed, client)
				}
			}
			wst.clientsMu.Unlock()
			for _, c := range failed {
				wst.drop(c)
			}
		}
	}
}

// allow reports whether a send at now fits the rate limit and records it.
func (wst *WebSocketTransport) allow(now time.Time) bool {
	if wst.minInterval == 0 {
		return true
	}
	wst.rateMu.Lock()
	defer wst.rateMu.Unlock()
	if !wst.lastSend.IsZero() && now.Sub(wst.lastSend) < wst.minInterval {
		return false
	}
	wst.lastSend = now
	return true
}

// Send queues data for broadcast. Payloads over the rate limit or beyond
// the queue capacity are dropped silently.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return ErrClosed
	default:
	}
	if wst.ClientCount() == 0 || !wst.allow(time.Now()) {
		return nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode websocket payload: %w", err)
	}
	msg, err := websocket.NewPreparedMessage(websocket.TextMessage, payload)
	if err != nil {
		return err
	}
	select {
	case wst.broadcast <- msg:
	default:
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Close disconnects all clients and stops the server. It is idempotent.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		wsLog.Infof("closing")
		close(wst.done)
		wst.wg.Wait()

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		clear(wst.clients)
		wst.clientsMu.Unlock()

		if wst.server != nil {
			err = wst.server.Close()
		}
	})
	return err
}

var _ Transport = (*WebSocketTransport)(nil)
