package applications

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/queue"
)

// memStore mirrors the guarded writes of Repository.
type memStore struct {
	mu    sync.Mutex
	apps  map[uuid.UUID]*models.Application
	clock time.Time
}

func newMemStore() *memStore {
	return &memStore{apps: make(map[uuid.UUID]*models.Application), clock: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Minute)
	return s.clock
}

func clone(a *models.Application) *models.Application {
	cp := *a
	cp.Attachments = append([]models.Attachment{}, a.Attachments...)
	return &cp
}

func (s *memStore) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app.ID = uuid.New()
	app.CreatedAt = s.tick()
	app.UpdatedAt = app.CreatedAt
	s.apps[app.ID] = clone(app)
	return nil
}

func (s *memStore) Get(_ context.Context, orgID, id uuid.UUID) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok || a.OrganizationID != orgID {
		return nil, apperr.NotFound("get application", "application")
	}
	return clone(a), nil
}

func (s *memStore) List(_ context.Context, orgID uuid.UUID, f Filter) ([]*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Application, 0)
	for _, a := range s.apps {
		if a.OrganizationID != orgID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.Type != nil && a.Type != *f.Type {
			continue
		}
		if f.ApplicantID != nil && a.ApplicantID != *f.ApplicantID {
			continue
		}
		out = append(out, clone(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) guarded(orgID, id uuid.UUID, g Guard, apply func(*models.Application)) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok || a.OrganizationID != orgID || !g.Allows(a) {
		return nil, errGuardRejected
	}
	apply(a)
	a.UpdatedAt = s.tick()
	return clone(a), nil
}

func (s *memStore) Update(_ context.Context, app *models.Application, g Guard) (*models.Application, error) {
	return s.guarded(app.OrganizationID, app.ID, g, func(a *models.Application) {
		status := a.Status
		*a = *clone(app)
		a.Status = status
	})
}

func (s *memStore) Transition(_ context.Context, orgID, id uuid.UUID, g Guard, to models.ApplicationStatus) (*models.Application, error) {
	return s.guarded(orgID, id, g, func(a *models.Application) { a.Status = to })
}

func (s *memStore) AppendAttachment(_ context.Context, orgID, id uuid.UUID, g Guard, att models.Attachment) (*models.Application, error) {
	return s.guarded(orgID, id, g, func(a *models.Application) { a.Attachments = append(a.Attachments, att) })
}

func (s *memStore) Delete(_ context.Context, orgID, id uuid.UUID, g Guard) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok || a.OrganizationID != orgID || !g.Allows(a) {
		return nil, errGuardRejected
	}
	delete(s.apps, id)
	return a, nil
}

// setStatus forces a row into a state, bypassing the state machine.
func (s *memStore) setStatus(id uuid.UUID, st models.ApplicationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[id].Status = st
}

type sentNotice struct {
	Target  uuid.UUID
	Title   string
	Message string
	Kind    models.NotificationType
	Related *uuid.UUID
}

type memNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
	err  error
}

func (n *memNotifier) Create(ctx context.Context, target uuid.UUID, title, message string, kind models.NotificationType, related *uuid.UUID) (*models.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.sent = append(n.sent, sentNotice{target, title, message, kind, related})
	return &models.Notification{ID: uuid.New(), UserID: target, Title: title, Message: message, Type: kind, RelatedApplicationID: related}, nil
}

func (n *memNotifier) of(kind models.NotificationType) []sentNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotice
	for _, s := range n.sent {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type memberTable []*models.Member

func (t memberTable) ListApprovers(_ context.Context, orgID uuid.UUID) ([]*models.Member, error) {
	var out []*models.Member
	for _, m := range t {
		if m.OrganizationID == orgID && m.CanApprove() {
			out = append(out, m)
		}
	}
	return out, nil
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte)}
}

func (o *memObjects) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = data
	return nil
}

func (o *memObjects) PresignDownload(_ context.Context, key, filename string) (string, error) {
	return "https://objects.example.com/" + key + "?download=" + filename, nil
}

func (o *memObjects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	o.deleted = append(o.deleted, key)
	return nil
}

type memCleanup struct {
	mu   sync.Mutex
	jobs []queue.AttachmentCleanupPayload
}

func (c *memCleanup) EnqueueAttachmentCleanup(ctx context.Context, p queue.AttachmentCleanupPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, p)
	return nil
}

// cancelAfterWrite cancels the caller's context as soon as a write commits,
// like a client hanging up right after the row changed.
type cancelAfterWrite struct {
	*memStore
	cancel context.CancelFunc
}

func (s *cancelAfterWrite) Transition(ctx context.Context, orgID, id uuid.UUID, g Guard, to models.ApplicationStatus) (*models.Application, error) {
	app, err := s.memStore.Transition(ctx, orgID, id, g, to)
	if err == nil {
		s.cancel()
	}
	return app, err
}

func (s *cancelAfterWrite) Delete(ctx context.Context, orgID, id uuid.UUID, g Guard) (*models.Application, error) {
	app, err := s.memStore.Delete(ctx, orgID, id, g)
	if err == nil {
		s.cancel()
	}
	return app, err
}
