package main

import (
	"context"
	"sync"

	"ai-mistake-tracker/pkg/middleware"
	"ai-mistake-tracker/pkg/models"

	"go.uber.org/zap"
)

const clientBuffer = 16

type client struct {
	principal models.Principal
	send      chan models.Event
}

// Hub fans events out to connected SSE clients. All membership changes go
// through Run so the client set has a single writer.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan models.Event
	mu         sync.RWMutex
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan models.Event, 100),
		log:        log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
				middleware.SSEClientDisconnected()
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			middleware.SSEClientConnected()
			h.log.Info("client registered", zap.String("user_id", c.principal.UserID), zap.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				middleware.SSEClientDisconnected()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client unregistered", zap.String("user_id", c.principal.UserID), zap.Int("clients", n))

		case e := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !deliverable(c.principal, e) {
					continue
				}
				select {
				case c.send <- e:
				default:
					h.log.Warn("client buffer full, dropping event",
						zap.String("user_id", c.principal.UserID),
						zap.String("type", string(e.Type)),
					)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish queues e for delivery. It blocks when the broadcast buffer is full
// so that the consumer applies back-pressure to the broker.
func (h *Hub) Publish(ctx context.Context, e models.Event) error {
	select {
	case h.broadcast <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliverable decides who sees an event. Report activity is public; a
// moderation outcome goes to staff and to the report's own reporter.
func deliverable(p models.Principal, e models.Event) bool {
	switch e.Type {
	case models.EventReportCreated, models.EventVoteChanged:
		return true
	case models.EventReportModerated:
		return p.IsStaff() || (e.ReporterID != "" && p.UserID == e.ReporterID)
	}
	return false
}
