// Package stream pushes change signals to browser sessions over websockets.
package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ryohi-cloud/backend/internal/identity"
	"github.com/ryohi-cloud/backend/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Outbound event names.
const (
	EventReady     = "ready"
	EventChanged   = "changed"
	EventSignedOut = "signed_out"
)

// Message is the websocket envelope.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChangedData tells the client which topic to re-fetch.
type ChangedData struct {
	Topic string `json:"topic"`
}

// ReadyData is sent once after the session resolved.
type ReadyData struct {
	MemberID       uuid.UUID `json:"member_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Topics         []string  `json:"topics"`
}

type outbound struct {
	msg   Message
	topic string // set for change signals
	final bool   // close the connection after writing
}

// Client is one websocket connection bound to an identity session. Change
// signals are coalesced per topic: while a signal for a topic is queued, more
// changes on it are absorbed.
type Client struct {
	ID      string
	session *identity.Session
	conn    *websocket.Conn
	send    chan outbound
	quit    chan struct{}
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]bool
	closed  bool
	subs    []*realtime.Subscription
	offID   func()
	once    sync.Once
}

func newClient(sess *identity.Session, conn *websocket.Conn, buffer int, logger *zap.Logger) *Client {
	return &Client{
		ID:      uuid.New().String(),
		session: sess,
		conn:    conn,
		send:    make(chan outbound, buffer),
		quit:    make(chan struct{}),
		logger:  logger,
		pending: make(map[string]bool),
	}
}

func encode(event string, data interface{}) Message {
	raw, _ := json.Marshal(data)
	return Message{Event: event, Data: raw}
}

// changed queues a refresh signal for topic unless one is already queued.
func (c *Client) changed(topic string) {
	c.mu.Lock()
	if c.closed || c.pending[topic] {
		c.mu.Unlock()
		return
	}
	c.pending[topic] = true
	c.mu.Unlock()

	select {
	case c.send <- outbound{msg: encode(EventChanged, ChangedData{Topic: topic}), topic: topic}:
	default:
		c.mu.Lock()
		delete(c.pending, topic)
		c.mu.Unlock()
		c.logger.Warn("change signal dropped; send buffer full", zap.String("client", c.ID), zap.String("topic", topic))
	}
}

// enqueue queues a message that is not coalesced.
func (c *Client) enqueue(out outbound) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	select {
	case c.send <- out:
	default:
		c.logger.Warn("message dropped; send buffer full", zap.String("client", c.ID), zap.String("event", out.msg.Event))
	}
}

func (c *Client) onIdentityChange(change identity.IdentityChange) {
	switch change.State {
	case identity.StateSignedOut:
		c.enqueue(outbound{msg: Message{Event: EventSignedOut}, final: true})
	case identity.StateResolved:
		_, org, ok := c.session.CurrentIdentity()
		if ok {
			c.changed(realtime.ApplicationsTopic(org.ID))
		}
		if claims := c.session.Claims(); claims != nil {
			c.changed(realtime.IdentityTopic(claims.CredentialID))
		}
	}
}

// shutdown releases every subscription and the session. Safe to call more
// than once.
func (c *Client) shutdown() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		subs := c.subs
		c.subs = nil
		off := c.offID
		c.mu.Unlock()
		for _, s := range subs {
			s.Unsubscribe()
		}
		if off != nil {
			off()
		}
		c.session.Close()
		close(c.quit)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Clients only send keepalives; the payload is ignored.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case out := <-c.send:
			if out.topic != "" {
				c.mu.Lock()
				delete(c.pending, out.topic)
				c.mu.Unlock()
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(out.msg); err != nil {
				return
			}
			if out.final {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "signed out"),
					time.Now().Add(writeWait))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.quit:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
