package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ringworld/server/internal/generation"
	"github.com/ringworld/server/internal/streaming"
)

func newWebSocketEnv(t *testing.T) (*WebSocketHandlers, *httptest.Server) {
	t.Helper()

	env := newTestEnv(t)
	handlers := NewWebSocketHandlers(env.coord, streaming.NewManager(), nil)
	go handlers.Hub().Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handlers.HandleWebSocket)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return handlers, server
}

func dialWebSocket(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	header := http.Header{}
	header.Set("Sec-WebSocket-Protocol", ProtocolVersion1)

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Failed to dial WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WebSocketMessage {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var msg WebSocketMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read WebSocket message: %v", err)
	}
	return msg
}

func TestNegotiateVersion(t *testing.T) {
	handlers := NewWebSocketHandlers(nil, streaming.NewManager(), nil)

	testCases := []struct {
		name      string
		requested string
		expected  string
	}{
		{"no version requested", "", ProtocolVersion1},
		{"v1 requested", "ringworld-v1", ProtocolVersion1},
		{"v1 with whitespace", " ringworld-v1 ", ProtocolVersion1},
		{"multiple with v1", "ringworld-v2, ringworld-v1", ProtocolVersion1},
		{"unsupported only", "ringworld-v99", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			selected := handlers.negotiateVersion(tc.requested)
			if selected != tc.expected {
				t.Errorf("negotiateVersion(%q) = %q, expected %q", tc.requested, selected, tc.expected)
			}
		})
	}
}

func TestExtractActor(t *testing.T) {
	handlers := NewWebSocketHandlers(nil, streaming.NewManager(), nil)

	r := httptest.NewRequest("GET", "/ws?actor=alice", nil)
	if actor := handlers.extractActor(r); actor != "alice" {
		t.Errorf("Expected actor 'alice', got %q", actor)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	anon := handlers.extractActor(r)
	if !strings.HasPrefix(anon, "anon_") {
		t.Errorf("Expected anonymous actor id, got %q", anon)
	}
}

func TestWebSocketPingPong(t *testing.T) {
	_, server := newWebSocketEnv(t)
	conn := dialWebSocket(t, server, "?actor=alice")

	if err := conn.WriteJSON(WebSocketMessage{Type: "ping", ID: "p1"}); err != nil {
		t.Fatalf("Failed to write ping: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != "pong" || msg.ID != "p1" {
		t.Errorf("Expected pong with id p1, got type=%s id=%s", msg.Type, msg.ID)
	}
}

func TestWebSocketUnknownMessageType(t *testing.T) {
	_, server := newWebSocketEnv(t)
	conn := dialWebSocket(t, server, "?actor=alice")

	if err := conn.WriteJSON(WebSocketMessage{Type: "teleport", ID: "t1"}); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != "error" {
		t.Errorf("Expected error message, got type=%s", msg.Type)
	}
}

func TestWebSocketStreamSubscribe(t *testing.T) {
	_, server := newWebSocketEnv(t)
	conn := dialWebSocket(t, server, "?actor=alice")

	subscribe := streaming.SubscriptionRequest{
		Pose: streaming.CameraPose{
			RingPosition: 500,
			ActiveFloor:  0,
		},
		RadiusMeters: 1000,
		LOD:          generation.LODLow,
	}
	data, err := json.Marshal(subscribe)
	if err != nil {
		t.Fatalf("Failed to marshal subscribe payload: %v", err)
	}
	if err := conn.WriteJSON(WebSocketMessage{Type: "stream_subscribe", ID: "s1", Data: data}); err != nil {
		t.Fatalf("Failed to write stream_subscribe: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != "stream_ack" || msg.ID != "s1" {
		t.Fatalf("Expected stream_ack for s1, got type=%s id=%s", msg.Type, msg.ID)
	}

	var ack StreamAck
	if err := json.Unmarshal(msg.Data, &ack); err != nil {
		t.Fatalf("Failed to decode stream_ack: %v", err)
	}
	if ack.SubscriptionID == "" {
		t.Fatal("stream_ack carries no subscription id")
	}
	if len(ack.ChunkIDs) == 0 {
		t.Fatal("stream_ack names no chunks")
	}

	// Low-detail chunks resolve to default bundles, delivered as deltas.
	received := 0
	for received < len(ack.ChunkIDs) {
		msg = readMessage(t, conn)
		if msg.Type != "stream_delta" {
			t.Fatalf("Expected stream_delta, got type=%s", msg.Type)
		}
		var delta StreamDelta
		if err := json.Unmarshal(msg.Data, &delta); err != nil {
			t.Fatalf("Failed to decode stream_delta: %v", err)
		}
		if delta.SubscriptionID != ack.SubscriptionID {
			t.Errorf("Delta for subscription %s, expected %s", delta.SubscriptionID, ack.SubscriptionID)
		}
		for _, chunk := range delta.Chunks {
			if chunk.Err != nil {
				t.Fatalf("Chunk %s failed: %+v", chunk.ID, chunk.Err)
			}
			if chunk.Bundle == nil || !chunk.Bundle.Default {
				t.Errorf("Chunk %s expected default bundle, got %+v", chunk.ID, chunk.Bundle)
			}
		}
		received += len(delta.Chunks)
	}

	// Unsubscribe closes the stream.
	closeData, err := json.Marshal(map[string]string{"subscription_id": ack.SubscriptionID})
	if err != nil {
		t.Fatalf("Failed to marshal unsubscribe payload: %v", err)
	}
	if err := conn.WriteJSON(WebSocketMessage{Type: "stream_unsubscribe", ID: "u1", Data: closeData}); err != nil {
		t.Fatalf("Failed to write stream_unsubscribe: %v", err)
	}
	msg = readMessage(t, conn)
	if msg.Type != "stream_closed" {
		t.Errorf("Expected stream_closed, got type=%s", msg.Type)
	}
}

func TestWebSocketUnsubscribeWrongActor(t *testing.T) {
	handlers, server := newWebSocketEnv(t)
	conn := dialWebSocket(t, server, "?actor=mallory")

	plan, err := handlers.streamManager.PlanSubscription("alice", streaming.SubscriptionRequest{
		Pose:         streaming.CameraPose{RingPosition: 0, ActiveFloor: 0},
		RadiusMeters: 1000,
		LOD:          generation.LODLow,
	})
	if err != nil {
		t.Fatalf("PlanSubscription failed: %v", err)
	}

	data, err := json.Marshal(map[string]string{"subscription_id": plan.SubscriptionID})
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	if err := conn.WriteJSON(WebSocketMessage{Type: "stream_unsubscribe", ID: "u1", Data: data}); err != nil {
		t.Fatalf("Failed to write stream_unsubscribe: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != "error" {
		t.Errorf("Expected error for foreign subscription, got type=%s", msg.Type)
	}
}
