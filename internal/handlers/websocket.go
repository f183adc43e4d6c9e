package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local deployment
	},
}

const recentLogCapacity = 200

// LogEntry is the websocket wire format for one log line
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// wsMessage is the envelope for every websocket frame
type wsMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler streams status snapshots, lifecycle events, and log
// entries to connected clients
type WebSocketHandler struct {
	logger arbor.ILogger
	events interfaces.EventService

	mu          sync.RWMutex
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex

	logMu      sync.Mutex
	recentLogs []LogEntry
}

// NewWebSocketHandler creates the websocket handler and subscribes it to the
// event feed
func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:      logger,
		events:      events,
		clients:     make(map[*websocket.Conn]bool),
		clientMutex: make(map[*websocket.Conn]*sync.Mutex),
	}

	if events != nil {
		h.subscribeToEvents()
	}

	return h
}

// HandleWebSocket upgrades the connection and registers the client. The read
// loop only exists to detect disconnects; all traffic is server to client.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", count).Msg("WebSocket client connected")

	go h.readLoop(conn)
}

// GetRecentLogsHandler returns the buffered log tail for clients that
// connect after startup
func (h *WebSocketHandler) GetRecentLogsHandler(w http.ResponseWriter, r *http.Request) {
	h.logMu.Lock()
	logs := make([]LogEntry, len(h.recentLogs))
	copy(logs, h.recentLogs)
	h.logMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

// BroadcastLog buffers the entry and pushes it to all clients
func (h *WebSocketHandler) BroadcastLog(entry LogEntry) {
	h.logMu.Lock()
	h.recentLogs = append(h.recentLogs, entry)
	if len(h.recentLogs) > recentLogCapacity {
		h.recentLogs = h.recentLogs[len(h.recentLogs)-recentLogCapacity:]
	}
	h.logMu.Unlock()

	h.broadcast(wsMessage{Type: string(interfaces.EventLogEntry), Payload: entry})
}

// Close disconnects all clients
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.clientMutex = make(map[*websocket.Conn]*sync.Mutex)
}

func (h *WebSocketHandler) subscribeToEvents() {
	forward := func(ctx context.Context, event interfaces.Event) error {
		h.broadcast(wsMessage{Type: string(event.Type), Payload: event.Payload})
		return nil
	}

	for _, eventType := range []interfaces.EventType{
		interfaces.EventStatusSnapshot,
		interfaces.EventModuleStarted,
		interfaces.EventModuleFinished,
		interfaces.EventBundleReady,
		interfaces.EventBuildComplete,
	} {
		if err := h.events.Subscribe(eventType, forward); err != nil {
			h.logger.Warn().Str("event_type", string(eventType)).Err(err).Msg("Event subscription failed")
		}
	}
}

func (h *WebSocketHandler) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) broadcast(msg wsMessage) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := h.writeTo(conn, msg); err != nil {
			h.removeClient(conn)
		}
	}
}

// writeTo serializes writes per connection; gorilla connections do not allow
// concurrent writers
func (h *WebSocketHandler) writeTo(conn *websocket.Conn, msg wsMessage) error {
	h.mu.RLock()
	mu, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	mu.Lock()
	defer mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}

func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		h.logger.Debug().Int("clients", len(h.clients)).Msg("WebSocket client disconnected")
	}
	h.mu.Unlock()

	conn.Close()
}
