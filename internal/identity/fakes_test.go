package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
)

var errStoreDown = errors.New("connection refused")

type memCredentials struct {
	mu    sync.Mutex
	byKey map[string]*Credential
}

func newMemCredentials() *memCredentials {
	return &memCredentials{byKey: make(map[string]*Credential)}
}

func (m *memCredentials) Create(_ context.Context, email, hash string) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[email]; ok {
		return nil, ErrEmailTaken
	}
	c := &Credential{ID: uuid.New(), Email: email, PasswordHash: hash, CreatedAt: time.Now()}
	m.byKey[email] = c
	return c, nil
}

func (m *memCredentials) GetByEmail(_ context.Context, email string) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byKey[email]
	if !ok {
		return nil, apperr.NotFound("get credential", "credential")
	}
	return c, nil
}

type memRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func newMemRevocations() *memRevocations {
	return &memRevocations{revoked: make(map[string]time.Duration)}
}

func (m *memRevocations) Revoke(_ context.Context, id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[id] = ttl
	return nil
}

func (m *memRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[id]
	return ok, nil
}

type memOrgs struct {
	mu   sync.Mutex
	orgs map[uuid.UUID]*models.Organization
	err  error
}

func newMemOrgs() *memOrgs {
	return &memOrgs{orgs: make(map[uuid.UUID]*models.Organization)}
}

func (m *memOrgs) Create(_ context.Context, name string, plan models.PlanType, limit int) (*models.Organization, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o := &models.Organization{ID: uuid.New(), Name: name, PlanType: plan, UserLimit: limit, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.orgs[o.ID] = o
	return o, nil
}

// memMembers is both the resolver's directory and the registrar's member writer.
type memMembers struct {
	mu        sync.Mutex
	orgs      *memOrgs
	members   map[uuid.UUID]*models.Member
	createErr error
}

func newMemMembers(orgs *memOrgs) *memMembers {
	return &memMembers{orgs: orgs, members: make(map[uuid.UUID]*models.Member)}
}

func (m *memMembers) Create(_ context.Context, mem *models.Member) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mem.ID = uuid.New()
	mem.CreatedAt = time.Now()
	mem.UpdatedAt = mem.CreatedAt
	cp := *mem
	m.members[mem.ID] = &cp
	return nil
}

func (m *memMembers) GetInvitedByEmail(_ context.Context, email string) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.members {
		if mem.Email == email && mem.Status == models.MemberInvited {
			cp := *mem
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("get invited member", "invitation")
}

func (m *memMembers) Activate(_ context.Context, id, credID uuid.UUID, name string) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok || mem.Status != models.MemberInvited {
		return nil, apperr.NotFound("activate member", "invitation")
	}
	mem.CredentialID = &credID
	mem.FullName = name
	mem.Status = models.MemberActive
	cp := *mem
	return &cp, nil
}

func (m *memMembers) GetByCredential(_ context.Context, credID uuid.UUID) (*models.Member, *models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.members {
		if mem.CredentialID != nil && *mem.CredentialID == credID {
			org, ok := m.orgs.orgs[mem.OrganizationID]
			if !ok {
				return nil, nil, apperr.NotFound("get member", "organization")
			}
			cp, ocp := *mem, *org
			return &cp, &ocp, nil
		}
	}
	return nil, nil, apperr.NotFound("get member", "member")
}

func (m *memMembers) set(id uuid.UUID, fn func(*models.Member)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.members[id])
}

func (m *memMembers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.members)
}

type memSeeder struct {
	seeded map[uuid.UUID]int
	err    error
}

func (m *memSeeder) SeedDefaults(_ context.Context, orgID uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	if m.seeded == nil {
		m.seeded = make(map[uuid.UUID]int)
	}
	m.seeded[orgID] += len(models.DefaultRates)
	return nil
}
