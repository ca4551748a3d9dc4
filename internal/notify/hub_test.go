package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func join(t *testing.T, conn *websocket.Conn, userID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, _ := json.Marshal(joinMessage{Type: "join", UserID: userID})
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		t.Fatalf("write join: %v", err)
	}
}

func waitForSession(t *testing.T, h *Hub, userID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := h.Notify(context.Background(), userID, "ping", nil); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("user %s never joined", userID)
}

func TestHubNotifyWithoutSession(t *testing.T) {
	h := NewHub()
	err := h.Notify(context.Background(), "nobody", "brain_done", nil)
	if err == nil {
		t.Fatal("expected error when no session is joined")
	}
}

func TestHubJoinAndNotify(t *testing.T) {
	h := NewHub()
	conn := dialHub(t, h)

	join(t, conn, "u-1")
	waitForSession(t, h, "u-1")

	if err := h.Notify(context.Background(), "u-1", "brain_done", map[string]any{"requestId": "r-1"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Drain until the brain_done push arrives; the ping probes from
	// waitForSession may precede it.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read push: %v", err)
		}
		var msg pushMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode push: %v", err)
		}
		if msg.Event == "brain_done" {
			return
		}
	}
}

func TestHubNotifyScopedToJoinedUser(t *testing.T) {
	h := NewHub()
	conn := dialHub(t, h)

	join(t, conn, "u-1")
	waitForSession(t, h, "u-1")

	if err := h.Notify(context.Background(), "u-2", "brain_done", nil); err == nil {
		t.Fatal("expected error notifying a user with no session")
	}
}

func TestHubNotifyDuringJoins(t *testing.T) {
	h := NewHub()
	conn := dialHub(t, h)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			h.Notify(context.Background(), "u-1", "review_due", nil)
		}
	}()
	join(t, conn, "u-1")
	wg.Wait()

	waitForSession(t, h, "u-1")
}
