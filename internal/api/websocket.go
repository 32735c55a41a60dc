package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ringworld/server/internal/coordinator"
	"github.com/ringworld/server/internal/performance"
	"github.com/ringworld/server/internal/ringmap"
	"github.com/ringworld/server/internal/streaming"
)

const (
	// Supported WebSocket protocol versions
	ProtocolVersion1 = "ringworld-v1"

	// Default ping interval (30 seconds)
	defaultPingInterval = 30 * time.Second

	// Pong wait timeout (60 seconds)
	pongWait = 60 * time.Second

	// Write timeout (10 seconds)
	writeTimeout = 10 * time.Second
)

// WebSocketConnection represents an active WebSocket connection
type WebSocketConnection struct {
	conn    *websocket.Conn
	actor   string
	version string
	send    chan []byte
	hub     *WebSocketHub
}

// WebSocketHub manages all active WebSocket connections
type WebSocketHub struct {
	connections map[*WebSocketConnection]bool
	broadcast   chan []byte
	register    chan *WebSocketConnection
	unregister  chan *WebSocketConnection
	mu          sync.RWMutex
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocketError represents an error message sent over WebSocket
type WebSocketError struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		connections: make(map[*WebSocketConnection]bool),
		broadcast:   make(chan []byte, 256),
		register:    make(chan *WebSocketConnection),
		unregister:  make(chan *WebSocketConnection),
	}
}

// Run starts the hub's main loop
func (h *WebSocketHub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = true
			h.mu.Unlock()
			log.Printf("WebSocket connection registered: actor=%s, version=%s", conn.actor, conn.version)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.send)
			}
			h.mu.Unlock()
			log.Printf("WebSocket connection unregistered: actor=%s", conn.actor)

		case message := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.connections {
				select {
				case conn.send <- message:
				default:
					close(conn.send)
					delete(h.connections, conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *WebSocketHub) Broadcast(message []byte) {
	h.broadcast <- message
}

// WebSocketHandlers handles WebSocket connections
type WebSocketHandlers struct {
	hub           *WebSocketHub
	coord         *coordinator.Coordinator
	streamManager *streaming.Manager
	profiler      *performance.Profiler
	upgrader      websocket.Upgrader
}

// NewWebSocketHandlers creates a new WebSocket handlers instance
func NewWebSocketHandlers(coord *coordinator.Coordinator, streamManager *streaming.Manager, profiler *performance.Profiler) *WebSocketHandlers {
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}

	return &WebSocketHandlers{
		hub:           NewWebSocketHub(),
		coord:         coord,
		streamManager: streamManager,
		profiler:      profiler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				return false
			},
		},
	}
}

// Hub exposes the connection hub, mainly so main can start its loop.
func (h *WebSocketHandlers) Hub() *WebSocketHub {
	return h.hub
}

// HandleWebSocket handles WebSocket connection upgrades
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	actor := h.extractActor(r)

	// Negotiate protocol version
	requestedVersions := r.Header.Get("Sec-WebSocket-Protocol")
	selectedVersion := h.negotiateVersion(requestedVersions)
	if selectedVersion == "" {
		log.Printf("WebSocket version negotiation failed: requested=%s", requestedVersions)
		http.Error(w, "Unsupported protocol version", http.StatusBadRequest)
		return
	}

	responseHeaders := http.Header{}
	responseHeaders.Set("Sec-WebSocket-Protocol", selectedVersion)

	conn, err := h.upgrader.Upgrade(w, r, responseHeaders)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := &WebSocketConnection{
		conn:    conn,
		actor:   actor,
		version: selectedVersion,
		send:    make(chan []byte, 256),
		hub:     h.hub,
	}

	h.hub.register <- wsConn

	go wsConn.writePump()
	go wsConn.readPump(h)
}

// extractActor identifies the client from the actor query parameter, or
// assigns an anonymous id for the life of the connection.
func (h *WebSocketHandlers) extractActor(r *http.Request) string {
	if actor := r.URL.Query().Get("actor"); actor != "" {
		return actor
	}
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "anon"
	}
	return "anon_" + hex.EncodeToString(buf)
}

// negotiateVersion selects the highest supported protocol version
func (h *WebSocketHandlers) negotiateVersion(requested string) string {
	if requested == "" {
		// Default to v1 if no version specified
		return ProtocolVersion1
	}

	requestedVersions := strings.Split(requested, ",")
	for i := range requestedVersions {
		requestedVersions[i] = strings.TrimSpace(requestedVersions[i])
	}

	// Supported versions in order (highest first)
	supportedVersions := []string{ProtocolVersion1}

	for _, supported := range supportedVersions {
		for _, req := range requestedVersions {
			if req == supported {
				return supported
			}
		}
	}

	return ""
}

// readPump handles incoming messages from the WebSocket connection
func (c *WebSocketConnection) readPump(handlers *WebSocketHandlers) {
	defer func() {
		c.hub.unregister <- c
		if err := c.conn.Close(); err != nil {
			log.Printf("Failed to close connection: %v", err)
		}
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.sendError("invalid_message", "Invalid message format", "InvalidMessageFormat")
			continue
		}

		handlers.handleMessage(c, &msg)
	}
}

// writePump handles outgoing messages to the WebSocket connection
func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(defaultPingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			log.Printf("Failed to close connection: %v", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Printf("Failed to set write deadline: %v", err)
				return
			}
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					log.Printf("Failed to write close message: %v", err)
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Printf("Failed to set write deadline for ping: %v", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendJSON marshals and queues a message, dropping it if the send buffer
// is full.
func (c *WebSocketConnection) sendJSON(msg interface{}) {
	bytes, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal WebSocket message: %v", err)
		return
	}
	select {
	case c.send <- bytes:
	default:
		log.Printf("Failed to send WebSocket message: channel full")
	}
}

// sendError sends an error message to the client
func (c *WebSocketConnection) sendError(id, errorMsg, code string) {
	c.sendJSON(WebSocketError{
		Type:    "error",
		ID:      id,
		Error:   errorMsg,
		Message: errorMsg,
		Code:    code,
	})
}

// handleMessage routes messages to appropriate handlers
func (h *WebSocketHandlers) handleMessage(conn *WebSocketConnection, msg *WebSocketMessage) {
	switch msg.Type {
	case "ping":
		conn.sendJSON(WebSocketMessage{Type: "pong", ID: msg.ID})
	case "stream_subscribe":
		h.handleStreamSubscribe(conn, msg)
	case "stream_update_pose":
		h.handleStreamUpdatePose(conn, msg)
	case "stream_unsubscribe":
		h.handleStreamUnsubscribe(conn, msg)
	default:
		conn.sendError(msg.ID, "Unknown message type", "UnknownMessageType")
	}
}

// StreamAck is the data payload of a stream_ack message.
type StreamAck struct {
	SubscriptionID string            `json:"subscription_id"`
	ChunkIDs       []ringmap.ChunkID `json:"chunk_ids,omitempty"`
}

// StreamDelta is the data payload of a stream_delta message. Removed
// chunks are named by id only; the client drops them locally.
type StreamDelta struct {
	SubscriptionID string                    `json:"subscription_id"`
	Chunks         []coordinator.ChunkResult `json:"chunks,omitempty"`
	RemovedChunks  []ringmap.ChunkID         `json:"removed_chunks,omitempty"`
}

func (h *WebSocketHandlers) sendData(conn *WebSocketConnection, msgType, msgID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal %s payload: %v", msgType, err)
		conn.sendError(msgID, "Failed to prepare response", "InternalError")
		return
	}
	conn.sendJSON(WebSocketMessage{Type: msgType, ID: msgID, Data: data})
}

// handleStreamSubscribe registers a server-driven streaming subscription.
func (h *WebSocketHandlers) handleStreamSubscribe(conn *WebSocketConnection, msg *WebSocketMessage) {
	var req streaming.SubscriptionRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		conn.sendError(msg.ID, "Invalid stream_subscribe payload", "InvalidMessageFormat")
		return
	}

	log.Printf("[Stream] stream_subscribe received: actor=%s, ring_position=%d, active_floor=%d, radius=%d, lod=%s",
		conn.actor, req.Pose.RingPosition, req.Pose.ActiveFloor, req.RadiusMeters, req.LOD)

	var plan *streaming.SubscriptionPlan
	var err error
	h.profiler.Time("stream.subscribe", func() {
		plan, err = h.streamManager.PlanSubscription(conn.actor, req)
	})
	if err != nil {
		log.Printf("[Stream] PlanSubscription failed: %v", err)
		conn.sendError(msg.ID, err.Error(), "InvalidSubscriptionRequest")
		return
	}

	h.sendData(conn, "stream_ack", msg.ID, StreamAck{
		SubscriptionID: plan.SubscriptionID,
		ChunkIDs:       plan.ChunkIDs,
	})

	// Initial chunk delivery runs asynchronously so pose updates are not
	// blocked behind generation.
	if len(plan.ChunkIDs) > 0 {
		subscription, err := h.streamManager.GetSubscription(plan.SubscriptionID)
		if err != nil {
			log.Printf("[Stream] GetSubscription failed after planning: %v", err)
			return
		}
		go h.deliverChunks(conn, plan.SubscriptionID, plan.ChunkIDs, nil, subscription.Request)
	}
}

// StreamUpdatePoseData represents the data payload for a stream_update_pose message
type StreamUpdatePoseData struct {
	SubscriptionID string               `json:"subscription_id"`
	Pose           streaming.CameraPose `json:"pose"`
}

// handleStreamUpdatePose handles pose update messages and sends chunk deltas.
func (h *WebSocketHandlers) handleStreamUpdatePose(conn *WebSocketConnection, msg *WebSocketMessage) {
	var req StreamUpdatePoseData
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		conn.sendError(msg.ID, "Invalid stream_update_pose payload", "InvalidMessageFormat")
		return
	}
	if req.SubscriptionID == "" {
		conn.sendError(msg.ID, "subscription_id is required", "InvalidMessageFormat")
		return
	}

	var delta *streaming.ChunkDelta
	var err error
	h.profiler.Time("stream.update_pose", func() {
		delta, err = h.streamManager.UpdatePose(conn.actor, req.SubscriptionID, req.Pose)
	})
	if err != nil {
		log.Printf("[Stream] UpdatePose failed: %v", err)
		conn.sendError(msg.ID, err.Error(), "InvalidSubscriptionRequest")
		return
	}

	if len(delta.AddedChunks) == 0 && len(delta.RemovedChunks) == 0 {
		return
	}
	log.Printf("[Stream] Chunk delta for %s: added=%d, removed=%d",
		req.SubscriptionID, len(delta.AddedChunks), len(delta.RemovedChunks))

	subscription, err := h.streamManager.GetSubscription(req.SubscriptionID)
	if err != nil {
		log.Printf("[Stream] GetSubscription failed: %v", err)
		return
	}
	go h.deliverChunks(conn, req.SubscriptionID, delta.AddedChunks, delta.RemovedChunks, subscription.Request)
}

// handleStreamUnsubscribe drops a streaming subscription.
func (h *WebSocketHandlers) handleStreamUnsubscribe(conn *WebSocketConnection, msg *WebSocketMessage) {
	var req struct {
		SubscriptionID string `json:"subscription_id"`
	}
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.SubscriptionID == "" {
		conn.sendError(msg.ID, "Invalid stream_unsubscribe payload", "InvalidMessageFormat")
		return
	}

	subscription, err := h.streamManager.GetSubscription(req.SubscriptionID)
	if err != nil {
		conn.sendError(msg.ID, err.Error(), "InvalidSubscriptionRequest")
		return
	}
	if subscription.Actor != conn.actor {
		conn.sendError(msg.ID, "subscription does not belong to the current actor", "InvalidSubscriptionRequest")
		return
	}

	h.streamManager.Unsubscribe(req.SubscriptionID)
	h.sendData(conn, "stream_closed", msg.ID, map[string]string{
		"subscription_id": req.SubscriptionID,
	})
}

// deliverChunks resolves chunk windows through the coordinator in
// batch-sized slices and streams the results as stream_delta messages.
func (h *WebSocketHandlers) deliverChunks(conn *WebSocketConnection, subscriptionID string, added, removed []ringmap.ChunkID, req streaming.SubscriptionRequest) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Stream] Recovered from panic while sending chunks for subscription %s: %v", subscriptionID, r)
		}
	}()

	if len(removed) > 0 {
		h.sendData(conn, "stream_delta", "", StreamDelta{
			SubscriptionID: subscriptionID,
			RemovedChunks:  removed,
		})
	}

	viewpoint := ringmap.NewChunkID(req.Pose.ActiveFloor, ringmap.PositionToChunkIndex(req.Pose.RingPosition))
	sent := 0
	for _, batch := range streaming.Batches(added, req.LOD) {
		results, err := h.coord.GetChunks(context.Background(), batch, viewpoint)
		if err != nil {
			log.Printf("[Stream] Batch resolution failed for subscription %s: %v", subscriptionID, err)
			continue
		}
		h.sendData(conn, "stream_delta", "", StreamDelta{
			SubscriptionID: subscriptionID,
			Chunks:         results,
		})
		sent += len(results)
	}
	if sent > 0 {
		log.Printf("[Stream] Sent %d chunks for subscription %s", sent, subscriptionID)
	}
}
