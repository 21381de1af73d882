package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is a change signal. Subscribers must treat it as "something changed,
// re-fetch"; Data is informational only.
type Event struct {
	Topic string          `json:"topic"`
	Name  string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	At    int64           `json:"at"`
}

// Handler receives events of a subscribed topic. It must not block.
type Handler func(Event)

// RemotePublisher forwards events to other instances.
type RemotePublisher interface {
	PublishTopic(ctx context.Context, topic string, origin string, payload []byte) error
}

// RemoteSubscriber receives events other instances published on a topic.
type RemoteSubscriber interface {
	SubscribeTopic(topic string, handler func(origin string, payload []byte)) (cancel func(), err error)
}

// Hub maintains topic -> subscribers and fans out change events.
// Publish delivers to local subscribers directly and forwards to Redis for
// other instances; events coming back from Redis with this hub's origin are
// dropped so local subscribers see each event once.
type Hub struct {
	topics    map[string]map[uint64]Handler
	remote    map[string]*remoteLink
	nextID    uint64
	mu        sync.RWMutex
	origin    string
	logger    *zap.Logger
	publisher RemotePublisher
	remoteSub RemoteSubscriber
}

// NewHub creates a hub. publisher and subscriber may be nil for a single instance.
func NewHub(logger *zap.Logger, publisher RemotePublisher, subscriber RemoteSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		topics:    make(map[string]map[uint64]Handler),
		remote:    make(map[string]*remoteLink),
		origin:    uuid.New().String(),
		logger:    logger,
		publisher: publisher,
		remoteSub: subscriber,
	}
}

// Subscription is a handle on one registered handler. Unsubscribe releases it;
// calling it more than once is a no-op.
type Subscription struct {
	hub   *Hub
	topic string
	id    uint64
	once  sync.Once
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// Unsubscribe removes the handler. The Redis subscription for the topic is
// cancelled when its last local handler leaves.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() { s.hub.unsubscribe(s.topic, s.id) })
}

// Subscribe registers fn for topic. Starts the Redis subscription for the
// topic if this is the first local handler. The Redis round trip happens
// outside the hub lock so publishes on other topics are not held up.
func (h *Hub) Subscribe(topic string, fn Handler) *Subscription {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	var link *remoteLink
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[uint64]Handler)
		if h.remoteSub != nil {
			link = &remoteLink{}
			h.remote[topic] = link
		}
	}
	h.topics[topic][id] = fn
	h.mu.Unlock()

	if link != nil {
		h.linkRemote(topic, link)
	}
	h.logger.Debug("subscribed", zap.String("topic", topic), zap.Uint64("subscription", id))
	return &Subscription{hub: h, topic: topic, id: id}
}

// remoteLink is the Redis subscription of one topic. cancel is nil while the
// subscribe is in flight.
type remoteLink struct {
	cancel func()
}

func (h *Hub) linkRemote(topic string, link *remoteLink) {
	cancel, err := h.remoteSub.SubscribeTopic(topic, func(origin string, payload []byte) {
		if origin == h.origin {
			return
		}
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			h.logger.Warn("drop malformed remote event", zap.String("topic", topic), zap.Error(err))
			return
		}
		h.deliver(ev)
	})
	h.mu.Lock()
	current := h.remote[topic] == link
	if current {
		if err != nil {
			delete(h.remote, topic)
		} else {
			link.cancel = cancel
		}
	}
	h.mu.Unlock()

	switch {
	case err != nil:
		h.logger.Warn("remote subscribe failed; topic is local only", zap.String("topic", topic), zap.Error(err))
	case !current:
		// every local handler left while subscribing
		cancel()
	}
}

func (h *Hub) unsubscribe(topic string, id uint64) {
	h.mu.Lock()
	m, ok := h.topics[topic]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(m, id)
	var cancel func()
	if len(m) == 0 {
		delete(h.topics, topic)
		if link, ok := h.remote[topic]; ok {
			cancel = link.cancel
			delete(h.remote, topic)
		}
	}
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.logger.Debug("unsubscribed", zap.String("topic", topic), zap.Uint64("subscription", id))
}

// Publish sends a change event to every subscriber of topic on every instance.
// A failed Redis publish is logged; local delivery has already happened.
func (h *Hub) Publish(ctx context.Context, topic, name string, data interface{}) {
	ev := Event{Topic: topic, Name: name, At: time.Now().UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			h.logger.Warn("marshal event data", zap.String("topic", topic), zap.Error(err))
		} else {
			ev.Data = raw
		}
	}
	h.deliver(ev)
	if h.publisher == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := h.publisher.PublishTopic(ctx, topic, h.origin, payload); err != nil {
		h.logger.Error("remote publish failed", zap.String("topic", topic), zap.String("event", name), zap.Error(err))
	}
}

func (h *Hub) deliver(ev Event) {
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.topics[ev.Topic]))
	for _, fn := range h.topics[ev.Topic] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

// SubscriberCount returns the number of local handlers on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
