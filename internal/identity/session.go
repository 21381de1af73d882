package identity

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/internal/realtime"
)

// State is the lifecycle of a Session.
type State int

const (
	StateUninitialized State = iota
	StateResolving
	StateResolved
	StateSignedOut
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateSignedOut:
		return "signed_out"
	default:
		return "uninitialized"
	}
}

const refreshTimeout = 10 * time.Second

// ErrNotSignedIn is returned by Establish when the token is not a live session.
var ErrNotSignedIn = apperr.Forbidden("establish session", "not signed in")

// SessionSource validates tokens; *CredentialService satisfies it.
type SessionSource interface {
	CurrentSession(ctx context.Context, token string) (*Claims, error)
}

// Subscriber registers change handlers; *realtime.Hub satisfies it.
type Subscriber interface {
	Subscribe(topic string, fn realtime.Handler) *realtime.Subscription
}

// IdentityChange is delivered to OnIdentityChange listeners after the session
// has applied it.
type IdentityChange struct {
	Event string
	State State
}

// Sessions builds sessions sharing one credential source, resolver and hub.
type Sessions struct {
	source   SessionSource
	resolver *Resolver
	hub      Subscriber
	logger   *zap.Logger
}

// NewSessions creates a session factory.
func NewSessions(source SessionSource, resolver *Resolver, hub Subscriber, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{source: source, resolver: resolver, hub: hub, logger: logger}
}

// New returns an uninitialized session.
func (f *Sessions) New() *Session {
	return &Session{
		f:         f,
		listeners: make(map[uint64]func(IdentityChange)),
	}
}

// Session binds one token to its member and organization. It is owned by a
// single request or websocket connection.
type Session struct {
	f *Sessions

	mu        sync.RWMutex
	state     State
	claims    *Claims
	member    *models.Member
	org       *models.Organization
	watch     *realtime.Subscription
	listeners map[uint64]func(IdentityChange)
	nextID    uint64
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Claims returns the token claims of a resolved session.
func (s *Session) Claims() *Claims {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims
}

// CurrentIdentity returns the bound member and organization, if resolved.
func (s *Session) CurrentIdentity() (*models.Member, *models.Organization, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateResolved {
		return nil, nil, false
	}
	return s.member, s.org, true
}

// Establish resolves token to a member and organization. It runs once per
// establishment; a signed-out or failed session may be established again.
func (s *Session) Establish(ctx context.Context, token string) error {
	s.mu.Lock()
	if s.state == StateResolving || s.state == StateResolved {
		st := s.state
		s.mu.Unlock()
		return apperr.InvalidTransition("establish session", "session is %s", st)
	}
	s.state = StateResolving
	s.mu.Unlock()

	claims, err := s.f.source.CurrentSession(ctx, token)
	if err != nil {
		s.setState(StateUninitialized)
		return err
	}
	if claims == nil {
		s.setState(StateSignedOut)
		return ErrNotSignedIn
	}
	member, org, err := s.f.resolver.Resolve(ctx, claims.CredentialID)
	if err != nil {
		s.setState(StateUninitialized)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateResolving {
		return ErrNotSignedIn
	}
	s.claims = claims
	s.member = member
	s.org = org
	s.state = StateResolved
	return nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Watch keeps the binding current: signed_out of this token drops it and
// signed_in of the same credential re-resolves it. Idempotent.
func (s *Session) Watch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateResolved {
		return apperr.InvalidTransition("watch session", "session is %s", s.state)
	}
	if s.watch == nil && s.f.hub != nil {
		s.watch = s.f.hub.Subscribe(realtime.IdentityTopic(s.claims.CredentialID), s.handleIdentity)
	}
	return nil
}

// OnIdentityChange registers fn for identity changes of this session and
// starts watching. The returned func unsubscribes; calling it twice is a no-op.
func (s *Session) OnIdentityChange(fn func(IdentityChange)) (func(), error) {
	if err := s.Watch(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}, nil
}

// Close releases the identity subscription and all listeners.
func (s *Session) Close() {
	s.mu.Lock()
	watch := s.watch
	s.watch = nil
	s.listeners = make(map[uint64]func(IdentityChange))
	s.mu.Unlock()
	watch.Unsubscribe()
}

func (s *Session) handleIdentity(ev realtime.Event) {
	var payload IdentityEvent
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			s.f.logger.Warn("drop malformed identity event", zap.String("topic", ev.Topic), zap.Error(err))
			return
		}
	}
	switch ev.Name {
	case realtime.EventSignedOut:
		s.mu.Lock()
		if s.state != StateResolved || s.claims == nil || payload.TokenID != s.claims.TokenID() {
			s.mu.Unlock()
			return
		}
		s.state = StateSignedOut
		s.member = nil
		s.org = nil
		s.mu.Unlock()
		s.notify(IdentityChange{Event: ev.Name, State: StateSignedOut})
	case realtime.EventSignedIn:
		go s.refresh()
	}
}

// refresh re-resolves the binding of a resolved session.
func (s *Session) refresh() {
	s.mu.RLock()
	claims := s.claims
	st := s.state
	s.mu.RUnlock()
	if st != StateResolved || claims == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	member, org, err := s.f.resolver.Resolve(ctx, claims.CredentialID)
	if err != nil {
		s.f.logger.Warn("re-resolve identity failed", zap.String("credential_id", claims.CredentialID.String()), zap.Error(err))
		return
	}
	s.mu.Lock()
	if s.state != StateResolved {
		s.mu.Unlock()
		return
	}
	s.member = member
	s.org = org
	s.mu.Unlock()
	s.notify(IdentityChange{Event: realtime.EventSignedIn, State: StateResolved})
}

func (s *Session) notify(change IdentityChange) {
	s.mu.RLock()
	fns := make([]func(IdentityChange), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(change)
	}
}
