package progress

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

func TestBroadcaster_ClientConnectAndReceiveSnapshot(t *testing.T) {
	b := NewBroadcaster(arbor.NewLogger())

	srv := httptest.NewServer(http.HandlerFunc(b.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 connected client, got %d", b.ClientCount())
	}

	state := New(5)
	b.BroadcastSnapshot(state.Snapshot())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read broadcast frame: %v", err)
	}
	if !strings.Contains(string(data), `"type":"progress"`) {
		t.Errorf("expected a progress-typed frame, got %s", data)
	}
}

func TestBroadcaster_NoClientsDoesNotPanic(t *testing.T) {
	b := NewBroadcaster(arbor.NewLogger())
	state := New(1)
	b.BroadcastSnapshot(state.Snapshot())
	if b.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", b.ClientCount())
	}
}
