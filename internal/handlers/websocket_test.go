package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/common"
	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
	"github.com/Matanbitton/cheap-crawler/internal/services/events"
)

func dialWebSocket(t *testing.T, handler *WebSocketHandler) (*websocket.Conn, func()) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketHandler_HelloFrame(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), nil)
	conn, cleanup := dialWebSocket(t, handler)
	defer cleanup()

	hello := readFrame(t, conn)
	assert.Equal(t, "connected", hello.Type)

	payload, ok := hello.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, payload["server_instance_id"])
}

func TestWebSocketHandler_BroadcastsBusEvents(t *testing.T) {
	eventService := events.NewService(arbor.NewLogger())
	defer eventService.Close()

	handler := NewWebSocketHandler(eventService, arbor.NewLogger(), nil)
	handler.SubscribeToEvents()

	conn, cleanup := dialWebSocket(t, handler)
	defer cleanup()

	readFrame(t, conn) // hello

	err := eventService.PublishSync(context.Background(), interfaces.Event{
		Type: interfaces.EventCrawlCompleted,
		Payload: map[string]interface{}{
			"url":   "https://example.com/",
			"pages": 3,
		},
	})
	require.NoError(t, err)

	msg := readFrame(t, conn)
	assert.Equal(t, "crawl_completed", msg.Type)

	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "https://example.com/", payload["url"])
	assert.Equal(t, float64(3), payload["pages"])
}

func TestWebSocketHandler_ThrottlesProgressEvents(t *testing.T) {
	eventService := events.NewService(arbor.NewLogger())
	defer eventService.Close()

	config := &common.WebSocketConfig{
		ThrottleIntervals: map[string]string{
			"crawl_progress": "1m",
		},
	}
	handler := NewWebSocketHandler(eventService, arbor.NewLogger(), config)
	handler.SubscribeToEvents()

	conn, cleanup := dialWebSocket(t, handler)
	defer cleanup()

	readFrame(t, conn) // hello

	for i := 0; i < 5; i++ {
		err := eventService.PublishSync(context.Background(), interfaces.Event{
			Type:    interfaces.EventCrawlProgress,
			Payload: map[string]interface{}{"pages_collected": i},
		})
		require.NoError(t, err)
	}

	// Only the first progress event passes the limiter inside a one
	// minute window.
	msg := readFrame(t, conn)
	assert.Equal(t, "crawl_progress", msg.Type)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var extra WSMessage
	err := conn.ReadJSON(&extra)
	assert.Error(t, err, "expected no further frames, got %+v", extra)
}

func TestWebSocketHandler_EventWhitelist(t *testing.T) {
	eventService := events.NewService(arbor.NewLogger())
	defer eventService.Close()

	config := &common.WebSocketConfig{
		AllowedEvents: []string{"job_status_changed"},
	}
	handler := NewWebSocketHandler(eventService, arbor.NewLogger(), config)
	handler.SubscribeToEvents()

	conn, cleanup := dialWebSocket(t, handler)
	defer cleanup()

	readFrame(t, conn) // hello

	require.NoError(t, eventService.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventCrawlStarted,
		Payload: map[string]interface{}{"url": "https://example.com/"},
	}))
	require.NoError(t, eventService.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventJobStatusChanged,
		Payload: map[string]interface{}{"job_id": "job_1", "status": "running"},
	}))

	msg := readFrame(t, conn)
	assert.Equal(t, "job_status_changed", msg.Type)
}

func TestWebSocketHandler_CleanupOnDisconnect(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), nil)

	conn, cleanup := dialWebSocket(t, handler)

	require.Eventually(t, func() bool {
		return handler.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return handler.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	cleanup()

	// Broadcasting with no clients must not panic
	handler.Broadcast(WSMessage{Type: "crawl_started", Payload: map[string]string{"url": "x"}})
}
