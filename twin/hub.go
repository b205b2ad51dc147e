// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/gantry-systems/gantry/stream"
)

// Hub fans frames out to every connected websocket client. Clients
// that fail a write are pruned; a slow client loses frames rather
// than stalling the rest.
type Hub struct {
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger.With("component", "hub"),
		metrics: metrics,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Register adds a client to the broadcast set.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ActiveClients.Set(float64(count))
	}
}

// Unregister removes a client. Safe to call for clients already
// pruned.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	count := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ActiveClients.Set(float64(count))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends one typed frame to every client, pruning clients
// whose write fails.
func (h *Hub) Broadcast(frameType stream.FrameType, payload any) {
	data, err := stream.Encode(frameType, payload)
	if err != nil {
		h.logger.Error("encoding broadcast frame", "error", err)
		return
	}

	h.mu.Lock()
	targets := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, writeMu := range h.clients {
		targets[conn] = writeMu
	}
	h.mu.Unlock()

	var dead []*websocket.Conn
	for conn, writeMu := range targets {
		writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		writeMu.Unlock()
		if err != nil {
			dead = append(dead, conn)
		}
	}
	for _, conn := range dead {
		h.logger.Debug("pruning dead client")
		conn.Close()
		h.Unregister(conn)
	}
	if h.metrics != nil {
		h.metrics.FramesBroadcast.Add(float64(len(targets) - len(dead)))
	}
}

// Send writes one typed frame to a single client, using the same
// per-client write lock as Broadcast so concurrent writes never
// interleave.
func (h *Hub) Send(conn *websocket.Conn, frameType stream.FrameType, payload any) error {
	data, err := stream.Encode(frameType, payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	writeMu, ok := h.clients[conn]
	h.mu.Unlock()
	if !ok {
		return websocket.ErrCloseSent
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}
