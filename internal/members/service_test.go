package members

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/middleware"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/response"
)

type memStore struct {
	mu      sync.Mutex
	members map[uuid.UUID]*models.Member
}

func newMemStore(ms ...*models.Member) *memStore {
	s := &memStore{members: make(map[uuid.UUID]*models.Member)}
	for _, m := range ms {
		s.members[m.ID] = m
	}
	return s
}

func (s *memStore) Create(_ context.Context, m *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	cp := *m
	s.members[m.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, orgID, id uuid.UUID) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok || m.OrganizationID != orgID {
		return nil, apperr.NotFound("get member", "member")
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) List(_ context.Context, orgID uuid.UUID) ([]*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Member
	for _, m := range s.members {
		if m.OrganizationID == orgID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (s *memStore) CountSeats(_ context.Context, orgID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.members {
		if m.OrganizationID == orgID && m.Status != models.MemberInactive {
			n++
		}
	}
	return n, nil
}

func (s *memStore) Update(_ context.Context, m *models.Member) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[m.ID]; !ok {
		return nil, apperr.NotFound("update member", "member")
	}
	cp := *m
	s.members[m.ID] = &cp
	out := cp
	return &out, nil
}

type orgTable map[uuid.UUID]*models.Organization

func (t orgTable) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	o, ok := t[id]
	if !ok {
		return nil, apperr.NotFound("get organization", "organization")
	}
	return o, nil
}

type fixture struct {
	org   *models.Organization
	admin *models.Member
	user  *models.Member
	other *models.Member
	store *memStore
	svc   *Service
}

func newFixture(plan models.PlanType) *fixture {
	org := &models.Organization{ID: uuid.New(), Name: "Acme", PlanType: plan, UserLimit: plan.SeatLimit()}
	otherOrg := uuid.New()
	f := &fixture{
		org:   org,
		admin: &models.Member{ID: uuid.New(), OrganizationID: org.ID, FullName: "A admin", Email: "admin@example.com", Role: models.RoleAdmin, Status: models.MemberActive},
		user:  &models.Member{ID: uuid.New(), OrganizationID: org.ID, FullName: "B user", Email: "user@example.com", Role: models.RoleUser, Status: models.MemberActive},
		other: &models.Member{ID: uuid.New(), OrganizationID: otherOrg, FullName: "C other", Email: "other@example.com", Role: models.RoleAdmin, Status: models.MemberActive},
	}
	f.store = newMemStore(f.admin, f.user, f.other)
	f.svc = NewService(f.store, orgTable{org.ID: org}, nil)
	return f
}

func strPtr(s string) *string { return &s }

func TestService_ListIsOrganizationScoped(t *testing.T) {
	f := newFixture(models.PlanPro)
	list, err := f.svc.List(context.Background(), f.user)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, m := range list {
		assert.Equal(t, f.org.ID, m.OrganizationID)
	}
}

func TestService_UpdateProfile(t *testing.T) {
	f := newFixture(models.PlanPro)
	ctx := context.Background()

	m, err := f.svc.UpdateProfile(ctx, f.user, ProfileInput{FullName: strPtr(" 佐藤 "), Phone: strPtr("090-0000-0000")})
	require.NoError(t, err)
	assert.Equal(t, "佐藤", m.FullName)
	require.NotNil(t, m.Phone)

	m, err = f.svc.UpdateProfile(ctx, f.user, ProfileInput{Phone: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, m.Phone)
	assert.Equal(t, "佐藤", m.FullName)

	_, err = f.svc.UpdateProfile(ctx, f.user, ProfileInput{FullName: strPtr("  ")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestService_AdminUpdate(t *testing.T) {
	f := newFixture(models.PlanPro)
	ctx := context.Background()
	approver := models.RoleApprover
	pos := models.PositionSectionHead

	_, err := f.svc.AdminUpdate(ctx, f.user, f.admin.ID, AdminInput{Role: &approver})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	m, err := f.svc.AdminUpdate(ctx, f.admin, f.user.ID, AdminInput{Role: &approver, Position: &pos})
	require.NoError(t, err)
	assert.Equal(t, models.RoleApprover, m.Role)
	assert.Equal(t, models.PositionSectionHead, *m.Position)

	_, err = f.svc.AdminUpdate(ctx, f.admin, f.other.ID, AdminInput{Role: &approver})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.AdminUpdate(ctx, f.admin, f.admin.ID, AdminInput{Role: &approver})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	bad := models.Position("社長")
	_, err = f.svc.AdminUpdate(ctx, f.admin, f.user.ID, AdminInput{Position: &bad})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestService_InviteEnforcesSeatLimit(t *testing.T) {
	f := newFixture(models.PlanFree)
	ctx := context.Background()

	_, err := f.svc.Invite(ctx, f.admin, InviteInput{Email: "new@example.com", FullName: "New"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "seat limit")
}

func TestService_Invite(t *testing.T) {
	f := newFixture(models.PlanPro)
	ctx := context.Background()

	_, err := f.svc.Invite(ctx, f.user, InviteInput{Email: "new@example.com", FullName: "New"})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	m, err := f.svc.Invite(ctx, f.admin, InviteInput{Email: " New@Example.com ", FullName: "New"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", m.Email)
	assert.Equal(t, models.RoleUser, m.Role)
	assert.Equal(t, models.MemberInvited, m.Status)
	assert.Equal(t, f.org.ID, m.OrganizationID)

	_, err = f.svc.Invite(ctx, f.admin, InviteInput{Email: "not-an-email", FullName: "X"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestService_ReactivationCountsSeats(t *testing.T) {
	f := newFixture(models.PlanFree)
	f.org.UserLimit = 2
	ctx := context.Background()
	inactive := models.MemberInactive
	active := models.MemberActive

	_, err := f.svc.AdminUpdate(ctx, f.admin, f.user.ID, AdminInput{Status: &inactive})
	require.NoError(t, err)
	_, err = f.svc.Invite(ctx, f.admin, InviteInput{Email: "n@example.com", FullName: "N"})
	require.NoError(t, err)

	_, err = f.svc.AdminUpdate(ctx, f.admin, f.user.ID, AdminInput{Status: &active})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestHandler_List(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(models.PlanPro)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextMember, f.user)
		c.Set(middleware.ContextOrganization, f.org)
	})
	h := NewHandler(f.svc)
	r.GET("/members", h.List)
	r.POST("/members/invite", middleware.RequireRole(models.RoleAdmin), h.Invite)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/members", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool             `json:"success"`
		Data    []*models.Member `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Len(t, body.Data, 2)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/members/invite", strings.NewReader(`{"email":"x@example.com","full_name":"X"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	var errBody response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errBody))
	assert.False(t, errBody.Success)
}
