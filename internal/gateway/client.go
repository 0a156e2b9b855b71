package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codelink/server/internal/ratelimit"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024 * 1024
	messagesPerSecond = 100
	messageBurst      = 200
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one socket connection. roomID is the single room the
// connection is currently joined to; it is read and written only on the
// gateway event loop.
type Client struct {
	gw          *Gateway
	conn        *websocket.Conn
	send        chan []byte
	id          string
	rateLimiter *ratelimit.Limiter

	// Set once during the handshake, read-only afterwards
	authenticated bool
	authFailed    bool
	userID        string
	handle        string

	// Event-loop state
	roomID      string
	displayName string
}

// ServeWS upgrades the HTTP request and hands the connection to the
// gateway. A bearer token may be presented via the Authorization header
// or a token query parameter; an invalid token downgrades the connection
// to a guest rather than rejecting it.
func ServeWS(gw *Gateway, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	client := &Client{
		gw:          gw,
		conn:        conn,
		send:        make(chan []byte, 512),
		id:          uuid.NewString(),
		rateLimiter: ratelimit.NewLimiter(messagesPerSecond, messageBurst),
	}

	if gw.verifier != nil {
		if token := bearerToken(r); token != "" {
			identity, err := gw.verifier.Verify(token)
			if err != nil {
				// Soft-fail: the connection proceeds as a guest. The
				// auth error is emitted from the event loop once the
				// client is registered.
				log.Printf("Socket auth failed for %s: %v", client.id, err)
				client.authFailed = true
			} else {
				client.authenticated = true
				client.userID = identity.UserID
				client.handle = identity.DisplayName
			}
		}
	}

	gw.register <- client

	go client.writePump()
	go client.readPump()
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (c *Client) readPump() {
	defer func() {
		c.gw.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if !c.rateLimiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				log.Printf("Rate limit exceeded for client %s (warning #%d)", c.id, rateLimitWarnings)
			}
			if rateLimitWarnings > 1000 {
				log.Printf("Disconnecting client %s for excessive rate limit violations", c.id)
				return
			}
			continue
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Printf("Invalid frame from client %s: %v", c.id, err)
			continue
		}
		if frame.Event == "" {
			log.Printf("Frame without event from client %s", c.id)
			continue
		}

		c.gw.events <- event{client: c, frame: frame}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendFrame queues a frame for delivery. Never blocks: frames to a
// client that cannot keep up are dropped, and the connection's ping
// deadlines take care of tearing it down if it has stalled for good.
func (c *Client) sendFrame(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		log.Printf("Failed to encode %s frame: %v", f.Event, err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("Send buffer full for client %s, dropping %s", c.id, f.Event)
	}
}
