// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/auditwal/internal/logging"
	"github.com/tomtom215/auditwal/internal/replay"
	"github.com/tomtom215/auditwal/internal/wal"
)

// Message types.
const (
	MessageTypeFlush  = "flush"
	MessageTypeReplay = "replay"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
)

// broadcastBuffer bounds messages waiting for the hub loop. Publish drops
// beyond it.
const broadcastBuffer = 256

// registerTimeout bounds how long a new connection waits for the hub loop.
const registerTimeout = 5 * time.Second

// Message is one frame sent to stream clients.
type Message struct {
	Type string      `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data,omitempty"`
}

// FlushEvent is the payload of a flush message.
type FlushEvent struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
	wal.FlushResult
}

// ReplayEvent is the payload of a replay message.
type ReplayEvent struct {
	Error string `json:"error,omitempty"`
	replay.Stats
}

// Hub fans engine events out to connected stream clients. It implements
// wal.Observer and suture.Service.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	now        func() time.Time
}

// NewHub creates a hub. Nothing is delivered until Serve runs.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		now:        time.Now,
	}
}

// String names the hub in supervisor logs.
func (h *Hub) String() string {
	return "stream-hub"
}

// Serve runs the hub loop until ctx is done, then closes every client.
// It may be called again after returning.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		// Shutdown first, then membership changes, then broadcasts, so a
		// client registered in the same instant sees the next message.
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	UpdateClients(n)
	logging.Info().Uint64("client", c.id).Int("clients", n).Msg("Stream client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	UpdateClients(n)
	logging.Info().Uint64("client", c.id).Int("clients", n).Msg("Stream client disconnected")
}

// fanOut delivers msg in client ID order. A client whose buffer is full is
// disconnected rather than allowed to stall the others.
func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.sortedLocked() {
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(h.clients, c)
			RecordSlowClient()
			logging.Warn().Uint64("client", c.id).Msg("Stream client too slow, disconnecting")
		}
	}
	UpdateClients(len(h.clients))
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	n := len(h.clients)
	for _, c := range h.sortedLocked() {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	UpdateClients(0)
	logging.Info().Int("clients_closed", n).Msg("Stream hub stopped")
}

func (h *Hub) sortedLocked() []*Client {
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// join hands c to the hub loop. False means the loop is not running.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-time.After(registerTimeout):
		return false
	}
}

// leave is join's counterpart, called from the client's read pump.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-time.After(registerTimeout):
	}
}

// Publish queues a message for every client. It never blocks; when the
// buffer is full the message is dropped and counted.
func (h *Hub) Publish(msgType string, data interface{}) {
	msg := Message{Type: msgType, Time: h.now().UTC(), Data: data}
	select {
	case h.broadcast <- msg:
	default:
		RecordDropped()
		logging.Debug().Str("type", msgType).Msg("Stream broadcast buffer full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// FlushFinished publishes a flush message.
func (h *Hub) FlushFinished(res wal.FlushResult, result string, err error) {
	ev := FlushEvent{Result: result, FlushResult: res}
	if err != nil {
		ev.Error = err.Error()
	}
	h.Publish(MessageTypeFlush, ev)
}

// ReplayFinished publishes a replay message.
func (h *Hub) ReplayFinished(stats replay.Stats, err error) {
	ev := ReplayEvent{Stats: stats}
	if err != nil {
		ev.Error = err.Error()
	}
	h.Publish(MessageTypeReplay, ev)
}
