// Package diagbridge exposes the event bus over a WebSocket so a browser
// can watch udp-lan-stats/lan-input-server-stats live without going
// through the host application shell. It is read-only and carries no
// data-plane semantics: closing it changes nothing about frame
// reassembly or input injection. Grounded on the teacher's
// relay/server/connection.go ConnectionManager (http.ServeMux +
// gorilla/websocket upgrader, one goroutine per connection, a
// context-cancelled shutdown).
package diagbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meshdesk/corelan/internal/eventbus"
)

// Bridge upgrades /events to a WebSocket and streams every bus event to
// each connected viewer as {"topic":..., "payload":...}.
type Bridge struct {
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader
	server   *http.Server

	mu       sync.Mutex
	viewers  map[*viewer]struct{}
}

type viewer struct {
	conn *websocket.Conn
	send chan []byte
}

type envelope struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// New builds a Bridge that will listen on addr once Start is called.
func New(addr string, log *zap.SugaredLogger) *Bridge {
	b := &Bridge{
		log:     log,
		viewers: make(map[*viewer]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", b.handleEvents)
	b.server = &http.Server{Addr: addr, Handler: mux, ReadTimeout: 10 * time.Second}
	return b
}

// Subscribe wires the bridge onto bus b so every Emit fans out to viewers.
func (b *Bridge) Subscribe(bus *eventbus.LocalBus) {
	bus.Subscribe(b.broadcast)
}

func (b *Bridge) broadcast(topic string, payload any) {
	data, err := json.Marshal(envelope{Topic: topic, Payload: payload})
	if err != nil {
		b.log.Warnw("diagbridge: marshal failed", "topic", topic, "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for v := range b.viewers {
		select {
		case v.send <- data:
		default:
			b.log.Warnw("diagbridge: viewer send buffer full, dropping event", "topic", topic)
		}
	}
}

func (b *Bridge) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warnw("diagbridge: upgrade failed", "error", err)
		return
	}

	v := &viewer{conn: conn, send: make(chan []byte, 256)}
	b.mu.Lock()
	b.viewers[v] = struct{}{}
	b.mu.Unlock()

	go b.writeLoop(v)
	b.readLoop(v)
}

func (b *Bridge) readLoop(v *viewer) {
	defer b.drop(v)
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Bridge) writeLoop(v *viewer) {
	for data := range v.send {
		if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (b *Bridge) drop(v *viewer) {
	b.mu.Lock()
	delete(b.viewers, v)
	b.mu.Unlock()
	close(v.send)
	v.conn.Close()
}

// Start begins serving in the background. Errors other than a clean
// shutdown are logged, matching the fire-and-forget diagnostics contract.
func (b *Bridge) Start() {
	go func() {
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.log.Errorw("diagbridge: server stopped", "error", err)
		}
	}()
}

// Stop gracefully shuts the bridge down.
func (b *Bridge) Stop(ctx context.Context) error {
	return b.server.Shutdown(ctx)
}
