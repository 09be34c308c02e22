// Package realtime fans out booking and dispatch events to websocket
// subscribers grouped in rooms (schedule, driver, operator).
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

type subscription struct {
	client *Client
	room   string
}

// Hub owns room membership. Delivery is best effort: a slow client loses
// messages rather than stalling publishers.
type Hub struct {
	rooms       map[string]map[*Client]bool
	register    chan subscription
	unregister  chan *Client
	broadcast   chan *Message
	mu          sync.RWMutex
	done        chan struct{}
	stoppedOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan subscription),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
	}
}

// Run serves hub events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer h.stoppedOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case sub := <-h.register:
			h.mu.Lock()
			if sub.client.closed {
				h.mu.Unlock()
				continue
			}
			if h.rooms[sub.room] == nil {
				h.rooms[sub.room] = make(map[*Client]bool)
			}
			h.rooms[sub.room][sub.client] = true
			sub.client.rooms[sub.room] = true
			log.Printf("[REALTIME] action=join room=%s clients=%d", sub.room, len(h.rooms[sub.room]))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("[REALTIME] action=marshal event=%s err=%v", msg.Event, err)
				continue
			}
			h.mu.Lock()
			for client := range h.rooms[msg.Room] {
				select {
				case client.send <- data:
				default:
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes client from every room. Caller holds h.mu.
func (h *Hub) drop(client *Client) {
	if client.closed {
		return
	}
	for room := range client.rooms {
		delete(h.rooms[room], client)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	client.closed = true
	close(client.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for c := range clients {
			h.drop(c)
		}
	}
}

// Publish queues event for room without blocking the caller.
func (h *Hub) Publish(room, event string, payload any) {
	msg := &Message{Event: event, Room: room, Data: payload, Timestamp: time.Now().UnixMilli()}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		log.Printf("[REALTIME] action=drop event=%s room=%s reason=buffer_full", event, room)
	}
}

// Subscribe adds client to room. It is a no-op once the hub has stopped.
func (h *Hub) Subscribe(client *Client, room string) {
	select {
	case h.register <- subscription{client: client, room: room}:
	case <-h.done:
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of subscribers in room.
func (h *Hub) ClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
