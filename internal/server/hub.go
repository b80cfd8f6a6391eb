package server

import (
	"log"
	"sync"
)

// ClientConn is the part of a websocket connection the hub needs.
type ClientConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Hub manages monitor websocket clients.
type Hub struct {
	clients    map[ClientConn]bool
	mu         sync.Mutex
	broadcast  chan Message
	register   chan ClientConn
	unregister chan ClientConn
	done       chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[ClientConn]bool),
		broadcast:  make(chan Message, 64),
		register:   make(chan ClientConn),
		unregister: make(chan ClientConn),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Println("[Monitor] WebSocket client connected.")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				log.Println("[Monitor] WebSocket client disconnected.")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteJSON(message); err != nil {
					log.Printf("[Monitor] broadcast error: %v", err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues msg for every client. A full queue drops the message.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stop closes every client and ends Run.
func (h *Hub) Stop() {
	close(h.done)
}
