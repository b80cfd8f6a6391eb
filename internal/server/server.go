package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"ledbar-controller/internal/core"

	"github.com/gorilla/websocket"
)

// Monitor streams loop events to websocket clients on a port separate from
// the control port. It never touches loop-owned state; it only sees
// snapshots that arrive through the event bus.
type Monitor struct {
	Hub        *Hub
	eventBus   *core.EventBus
	httpServer *http.Server

	mu   sync.RWMutex
	last core.Snapshot

	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewMonitor creates a monitor listening on addr (":8081").
func NewMonitor(eventBus *core.EventBus, addr string, allowedOrigins []string) *Monitor {
	m := &Monitor{
		Hub:            NewHub(),
		eventBus:       eventBus,
		allowedOrigins: allowedOrigins,
		last:           core.Snapshot{Name: core.Stopped.String(), Lines: "00000000"},
	}

	m.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(m.allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range m.allowedOrigins {
				if allowed == "*" || strings.EqualFold(origin, allowed) {
					return true
				}
			}
			log.Printf("[Monitor] WebSocket connection blocked: Origin '%s' not in allowed list.", origin)
			return false
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.handleWebSocket)
	mux.HandleFunc("/status", m.handleStatus)
	m.httpServer = &http.Server{Addr: addr, Handler: mux}

	return m
}

// Run relays bus events to the hub until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	sub := m.eventBus.Subscribe(core.FrameEvent, core.PatternChangedEvent)
	defer m.eventBus.Unsubscribe(sub, core.FrameEvent, core.PatternChangedEvent)

	go m.Hub.Run()
	defer m.Hub.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub:
			snap := event.Snapshot
			m.mu.Lock()
			m.last = snap
			m.mu.Unlock()

			switch event.Type {
			case core.FrameEvent:
				m.Hub.Broadcast(NewMessage("frame", snap))
			case core.PatternChangedEvent:
				m.Hub.Broadcast(NewMessage("pattern_status", snap))
			}
		}
	}
}

// Last returns the most recent snapshot seen on the bus.
func (m *Monitor) Last() core.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *Monitor) ListenAndServe() error {
	return m.httpServer.ListenAndServe()
}

func (m *Monitor) Shutdown(ctx context.Context) error {
	return m.httpServer.Shutdown(ctx)
}

func (m *Monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.Last()); err != nil {
		log.Printf("[Monitor] status encode error: %v", err)
	}
}

func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Monitor] WebSocket upgrade error: %v", err)
		return
	}

	_ = conn.WriteJSON(NewMessage("pattern_status", m.Last()))

	select {
	case m.Hub.register <- conn:
	case <-m.Hub.done:
		conn.Close()
		return
	}

	defer func() {
		select {
		case m.Hub.unregister <- conn:
		case <-m.Hub.done:
		}
	}()

	// Clients only listen; reading keeps control frames flowing and detects close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
