package live

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHubBroadcastsFramesToConnectedViewers(t *testing.T) {
	hub := NewHub(nil)
	stop := make(chan struct{})
	go hub.Run(stop)
	defer close(stop)

	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the hub a moment to process the registration before publishing.
	time.Sleep(50 * time.Millisecond)

	hub.Publish(Frame{SessionID: "s1", Time: 12.5, Line: "3.000, Bid:, 1, 100, 1, "})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	var got Frame
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if got.SessionID != "s1" || got.Time != 12.5 {
		t.Errorf("frame = %+v, want SessionID=s1 Time=12.5", got)
	}
}

func TestPublishNeverBlocksWhenBufferIsFull(t *testing.T) {
	hub := NewHub(nil) // not running: nothing drains the broadcast channel

	done := make(chan struct{})
	go func() {
		for i := 0; i < 512; i++ {
			hub.Publish(Frame{SessionID: "s", Time: float64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full broadcast buffer")
	}
}
