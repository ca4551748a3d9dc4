package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

type joinMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type pushMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// hubClient is immutable once stored; a re-join replaces the map entry
// so Notify never observes a half-written client.
type hubClient struct {
	conn   *websocket.Conn
	userID string
}

// Hub is a websocket session registry keyed by user id. Clients join
// by sending {"type":"join","userId":"..."} after connecting.
type Hub struct {
	clients sync.Map // connection id -> *hubClient
	nextID  atomic.Int64
}

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) Name() string { return "websocket" }

// HandleWS upgrades the request and reads join messages until the
// client disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[notify] websocket accept error: %v", err)
		return
	}

	id := fmt.Sprintf("ws-%d", h.nextID.Add(1))
	log.Printf("[notify] client connected: %s", id)

	var joined string
	defer func() {
		h.clients.Delete(id)
		conn.CloseNow()
		log.Printf("[notify] client disconnected: %s", id)
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		var msg joinMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "join" && msg.UserID != "" && msg.UserID != joined {
			h.clients.Store(id, &hubClient{conn: conn, userID: msg.UserID})
			joined = msg.UserID
			log.Printf("[notify] %s joined as user %s", id, msg.UserID)
		}
	}
}

// Notify pushes the event to every connection joined as userID.
func (h *Hub) Notify(ctx context.Context, userID, event string, payload any) error {
	data, err := json.Marshal(pushMessage{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}

	delivered := 0
	h.clients.Range(func(_, value any) bool {
		c := value.(*hubClient)
		if c.userID != userID {
			return true
		}
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := c.conn.Write(wctx, websocket.MessageText, data); err == nil {
			delivered++
		}
		return true
	})
	if delivered == 0 {
		return fmt.Errorf("no session for user %s", userID)
	}
	return nil
}

// Close drops every connection.
func (h *Hub) Close() {
	h.clients.Range(func(key, value any) bool {
		value.(*hubClient).conn.CloseNow()
		h.clients.Delete(key)
		return true
	})
}
