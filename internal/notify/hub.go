package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Cuffsss/studio/internal"
)

const (
	MessageWelcome      = "WELCOME"
	MessageNotification = "NOTIFICATION"
	MessagePing         = "PING"
	MessagePong         = "PONG"
	MessageAudioError   = "AUDIO_ERROR"

	pongWait     = 60 * time.Second
	pingPeriod   = 50 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 32
	readLimitLen = 4096
)

// Message is the envelope of every frame exchanged on the notification
// socket.
type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan Message
}

// Hub pushes notifications to every dashboard a user has open.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{} // userID -> clients
	upgrader websocket.Upgrader
	logger   internal.Logger
}

func NewHub(logger internal.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// ServeWS upgrades the request and registers the connection for userID. The
// read and write pumps run on their own goroutines.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan Message, sendBuffer),
	}
	h.register(c)
	h.logger.Infof("ws: client %s connected for user %s", c.id, userID)

	go h.writePump(c)
	go h.readPump(c)

	h.reply(c, Message{Type: MessageWelcome, ClientID: c.id, Timestamp: time.Now().Unix()})
	return nil
}

// Notify sends n to the owner's connected clients. A user with no open
// dashboard is not an error. Slow clients drop the message.
func (h *Hub) Notify(ctx context.Context, n Notification) error {
	msg := Message{Type: MessageNotification, Payload: n, Timestamp: n.At.Unix()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[n.OwnerID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warnf("ws: dropping %s for slow client %s", n.Kind, c.id)
		}
	}
	return nil
}

func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.clients {
		for c := range set {
			close(c.send)
		}
		delete(h.clients, userID)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.userID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		h.logger.Infof("ws: client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(readLimitLen)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warnf("ws: read from %s: %v", c.id, err)
			}
			return
		}
		switch msg.Type {
		case MessagePing:
			h.reply(c, Message{Type: MessagePong, ClientID: c.id, Timestamp: time.Now().Unix()})
		case MessageAudioError:
			// Autoplay blocked and similar; diagnostics only.
			h.logger.Warnf("ws: client %s could not play alert sound: %v", c.id, msg.Payload)
		default:
			h.logger.Debugf("ws: unknown message type %q from %s", msg.Type, c.id)
		}
	}
}

func (h *Hub) reply(c *client, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.userID][c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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
