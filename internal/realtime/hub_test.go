package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackBus stands in for Redis: every publish reaches every subscriber of
// the topic on every hub, including the publishing one.
type loopbackBus struct {
	mu       sync.Mutex
	handlers map[string][]func(origin string, payload []byte)
	cancels  int
	fail     bool
}

func newLoopbackBus() *loopbackBus {
	return &loopbackBus{handlers: make(map[string][]func(string, []byte))}
}

func (b *loopbackBus) PublishTopic(_ context.Context, topic, origin string, payload []byte) error {
	if b.fail {
		return assert.AnError
	}
	b.mu.Lock()
	hs := append([]func(string, []byte){}, b.handlers[topic]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(origin, payload)
	}
	return nil
}

func (b *loopbackBus) SubscribeTopic(topic string, handler func(origin string, payload []byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	return func() {
		b.mu.Lock()
		b.cancels++
		b.mu.Unlock()
	}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestPublishDeliversLocallyOnce(t *testing.T) {
	bus := newLoopbackBus()
	hub := NewHub(nil, bus, bus)
	topic := ApplicationsTopic(uuid.New())

	var rec recorder
	sub := hub.Subscribe(topic, rec.handle)
	defer sub.Unsubscribe()

	hub.Publish(context.Background(), topic, EventApplicationsChanged, map[string]string{"id": "a1"})

	require.Equal(t, 1, rec.count())
	assert.Equal(t, EventApplicationsChanged, rec.events[0].Name)
	assert.JSONEq(t, `{"id":"a1"}`, string(rec.events[0].Data))
}

func TestPublishReachesOtherInstances(t *testing.T) {
	bus := newLoopbackBus()
	a := NewHub(nil, bus, bus)
	b := NewHub(nil, bus, bus)
	topic := NotificationsTopic(uuid.New())

	var onA, onB recorder
	a.Subscribe(topic, onA.handle)
	b.Subscribe(topic, onB.handle)

	a.Publish(context.Background(), topic, EventNotificationsChanged, nil)

	assert.Equal(t, 1, onA.count())
	assert.Equal(t, 1, onB.count())
}

func TestTopicsAreIsolated(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	org1, org2 := uuid.New(), uuid.New()

	var rec1, rec2 recorder
	hub.Subscribe(ApplicationsTopic(org1), rec1.handle)
	hub.Subscribe(ApplicationsTopic(org2), rec2.handle)

	hub.Publish(context.Background(), ApplicationsTopic(org1), EventApplicationsChanged, nil)

	assert.Equal(t, 1, rec1.count())
	assert.Equal(t, 0, rec2.count())
}

func TestUnsubscribeReleasesRemoteSubscription(t *testing.T) {
	bus := newLoopbackBus()
	hub := NewHub(nil, bus, bus)
	topic := IdentityTopic(uuid.New())

	var rec recorder
	s1 := hub.Subscribe(topic, rec.handle)
	s2 := hub.Subscribe(topic, rec.handle)
	assert.Equal(t, 2, hub.SubscriberCount(topic))

	s1.Unsubscribe()
	s1.Unsubscribe()
	assert.Equal(t, 1, hub.SubscriberCount(topic))
	assert.Equal(t, 0, bus.cancels)

	s2.Unsubscribe()
	assert.Equal(t, 0, hub.SubscriberCount(topic))
	assert.Equal(t, 1, bus.cancels)

	hub.Publish(context.Background(), topic, EventSignedOut, nil)
	assert.Equal(t, 0, rec.count())
}

func TestRemoteFailureStillDeliversLocally(t *testing.T) {
	bus := newLoopbackBus()
	bus.fail = true
	hub := NewHub(nil, bus, bus)
	topic := ApplicationsTopic(uuid.New())

	var rec recorder
	hub.Subscribe(topic, rec.handle)
	hub.Publish(context.Background(), topic, EventApplicationsChanged, nil)

	assert.Equal(t, 1, rec.count())
}

// stallingBus holds SubscribeTopic until release is closed, like a Redis
// SUBSCRIBE waiting on a slow server.
type stallingBus struct {
	*loopbackBus
	entered chan struct{}
	release chan struct{}
}

func (b *stallingBus) SubscribeTopic(topic string, handler func(origin string, payload []byte)) (func(), error) {
	close(b.entered)
	<-b.release
	return b.loopbackBus.SubscribeTopic(topic, handler)
}

func TestSlowRemoteSubscribeDoesNotBlockPublish(t *testing.T) {
	bus := &stallingBus{loopbackBus: newLoopbackBus(), entered: make(chan struct{}), release: make(chan struct{})}
	hub := NewHub(nil, bus.loopbackBus, bus)

	subscribed := make(chan *Subscription)
	go func() { subscribed <- hub.Subscribe(NotificationsTopic(uuid.New()), func(Event) {}) }()
	<-bus.entered

	published := make(chan struct{})
	go func() {
		hub.Publish(context.Background(), ApplicationsTopic(uuid.New()), EventApplicationsChanged, nil)
		close(published)
	}()
	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish waited on another topic's remote subscribe")
	}

	close(bus.release)
	sub := <-subscribed
	assert.Equal(t, 1, hub.SubscriberCount(sub.Topic()))
	sub.Unsubscribe()
	assert.Equal(t, 1, bus.cancels)
}
