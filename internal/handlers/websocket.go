// -----------------------------------------------------------------------
// WebSocket Hub - Activity feed fan-out to connected dashboards
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
)

// Keepalive tuning. Clients that miss a ping window are dropped.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// ActivityMessage is one broadcast frame. Every frame names its channel so a
// single socket carries the activity feed, job updates, and streamed logs.
type ActivityMessage struct {
	Channel    string                 `json:"channel"`
	Type       string                 `json:"type"`
	JobID      string                 `json:"jobId,omitempty"`
	PipelineID string                 `json:"pipelineId,omitempty"`
	Status     string                 `json:"status,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// WebSocketHandler is the hub: it owns the client set and serializes writes
// per connection. The server instance id lets clients detect restarts and
// drop stale local state.
type WebSocketHandler struct {
	logger           arbor.ILogger
	mu               sync.RWMutex
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	serverInstanceID string
}

// NewWebSocketHandler creates the hub with a fresh server instance id.
func NewWebSocketHandler(logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		serverInstanceID: common.NewInstanceID(),
	}
	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket hub initialized")
	return h
}

// ServerInstanceID returns the id sent to clients on connect.
func (h *WebSocketHandler) ServerInstanceID() string {
	return h.serverInstanceID
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the connection, registers the client, and holds
// the read loop open until the client goes away.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = mutex
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", total)

	h.sendTo(conn, mutex, ActivityMessage{
		Channel:   "system",
		Type:      "connected",
		Timestamp: time.Now().UTC(),
		Data:      map[string]interface{}{"serverInstanceId": h.serverInstanceID},
	})

	done := make(chan struct{})
	go h.pingLoop(conn, mutex, done)

	defer func() {
		close(done)
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

// pingLoop keeps the connection alive until the read loop exits.
func (h *WebSocketHandler) pingLoop(conn *websocket.Conn, mutex *sync.Mutex, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			mutex.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			mutex.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Broadcast sends one frame to every connected client. Marshals once; each
// write is serialized by the connection's own mutex so concurrent broadcasts
// never interleave frames.
func (h *WebSocketHandler) Broadcast(msg ActivityMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("channel", msg.Channel).Msg("Failed to marshal broadcast frame")
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range conns {
		h.write(conn, mutexes[i], data)
	}
}

// sendTo marshals and writes one frame to a single client.
func (h *WebSocketHandler) sendTo(conn *websocket.Conn, mutex *sync.Mutex, msg ActivityMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal frame")
		return
	}
	h.write(conn, mutex, data)
}

func (h *WebSocketHandler) write(conn *websocket.Conn, mutex *sync.Mutex, data []byte) {
	mutex.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write to WebSocket client")
	}
}
