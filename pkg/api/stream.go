/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shoham-z/netmon/pkg/logger"
	"github.com/shoham-z/netmon/pkg/models"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second

	// clientBuffer bounds the per-client send queue. A client that cannot
	// keep up is disconnected rather than allowed to stall the hub.
	clientBuffer = 16
)

// StreamMessage is the envelope sent over the notification stream.
type StreamMessage struct {
	Type         string               `json:"type"` // "notification", "ping"
	Notification *models.Notification `json:"notification,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}

// Hub fans notifications out to connected WebSocket clients.
type Hub struct {
	logger logger.Logger

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool
}

type streamClient struct {
	conn *websocket.Conn
	send chan StreamMessage
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		logger:  log,
		clients: make(map[*streamClient]struct{}),
	}
}

// Broadcast queues a notification for every connected client. Slow clients
// are dropped.
func (h *Hub) Broadcast(notification models.Notification) {
	msg := StreamMessage{
		Type:         "notification",
		Notification: &notification,
		Timestamp:    time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.logger.Warn().Msg("Dropping slow stream client")
			h.removeLocked(client)
		}
	}
}

// Close disconnects every client and rejects further registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	for client := range h.clients {
		h.removeLocked(client)
	}
}

func (h *Hub) register(client *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.clients[client] = struct{}{}

	return true
}

func (h *Hub) remove(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *streamClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.send)
}

// handleStream upgrades the connection and streams notifications until the
// client disconnects or the hub closes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to upgrade to WebSocket")
		return
	}

	s.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Stream client connected")

	client := &streamClient{
		conn: conn,
		send: make(chan StreamMessage, clientBuffer),
	}

	if !s.hub.register(client) {
		_ = conn.Close()
		return
	}

	go s.readLoop(client)
	s.writeLoop(client, r.RemoteAddr)
}

// writeLoop owns all writes on the connection: queued notifications plus
// periodic keepalive pings.
func (s *Server) writeLoop(client *streamClient, remoteAddr string) {
	ticker := time.NewTicker(streamPingInterval)

	defer func() {
		ticker.Stop()
		_ = client.conn.Close()

		s.logger.Info().Str("remote_addr", remoteAddr).Msg("Stream client disconnected")
	}()

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				return
			}

			_ = client.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))

			if err := client.conn.WriteJSON(msg); err != nil {
				s.hub.remove(client)
				s.drain(client)

				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))

			if err := client.conn.WriteJSON(StreamMessage{Type: "ping", Timestamp: time.Now()}); err != nil {
				s.hub.remove(client)
				s.drain(client)

				return
			}
		}
	}
}

// readLoop discards inbound frames; its job is disconnect detection.
func (s *Server) readLoop(client *streamClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			s.hub.remove(client)
			return
		}
	}
}

// drain empties the send queue after removal so Broadcast never blocks on
// a closed client.
func (*Server) drain(client *streamClient) {
	for range client.send {
	}
}
