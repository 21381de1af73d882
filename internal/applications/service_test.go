package applications

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/internal/realtime"
	"github.com/ryohi-cloud/backend/pkg/storage"
)

type fixture struct {
	orgID     uuid.UUID
	applicant *models.Member
	colleague *models.Member
	approver  *models.Member
	admin     *models.Member
	outsider  *models.Member
	store     *memStore
	notifier  *memNotifier
	objects   *memObjects
	cleanup   *memCleanup
	hub       *realtime.Hub
	svc       *Service

	mu     sync.Mutex
	events []realtime.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	orgID := uuid.New()
	member := func(name string, role models.Role, org uuid.UUID) *models.Member {
		return &models.Member{ID: uuid.New(), OrganizationID: org, FullName: name, Role: role, Status: models.MemberActive}
	}
	f := &fixture{
		orgID:     orgID,
		applicant: member("田中", models.RoleUser, orgID),
		colleague: member("鈴木", models.RoleUser, orgID),
		approver:  member("佐藤", models.RoleApprover, orgID),
		admin:     member("高橋", models.RoleAdmin, orgID),
		outsider:  member("山本", models.RoleAdmin, uuid.New()),
		store:     newMemStore(),
		notifier:  &memNotifier{},
		objects:   newMemObjects(),
		cleanup:   &memCleanup{},
		hub:       realtime.NewHub(nil, nil, nil),
	}
	approvers := memberTable{f.applicant, f.colleague, f.approver, f.admin, f.outsider}
	f.svc = NewService(f.store, f.notifier, approvers, f.hub, f.objects, f.cleanup, nil)
	sub := f.hub.Subscribe(realtime.ApplicationsTopic(orgID), func(ev realtime.Event) {
		f.mu.Lock()
		f.events = append(f.events, ev)
		f.mu.Unlock()
	})
	t.Cleanup(sub.Unsubscribe)
	return f
}

func (f *fixture) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) tokyoTrip(t *testing.T) *models.Application {
	t.Helper()
	start := time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)
	app, err := f.svc.Create(context.Background(), f.applicant, CreateInput{
		Type:            models.KindBusinessTrip,
		Title:           "東京出張",
		Purpose:         ptr("顧客訪問"),
		EstimatedAmount: ptr(45000.0),
		StartDate:       &start,
		EndDate:         ptr(start.AddDate(0, 0, 2)),
		Destination:     ptr("東京"),
		Details: models.Details{Trip: &models.TripDetails{
			Region: models.RegionDomestic, Days: 3, Nights: 2, TransportationCost: 28000,
		}},
	})
	require.NoError(t, err)
	return app
}

func TestTransitions(t *testing.T) {
	all := []models.ApplicationStatus{models.StatusDraft, models.StatusPending, models.StatusApproved, models.StatusRejected, models.StatusReturned}
	allowed := map[Action]map[models.ApplicationStatus]models.ApplicationStatus{
		ActionSubmit:  {models.StatusDraft: models.StatusPending, models.StatusReturned: models.StatusPending},
		ActionApprove: {models.StatusPending: models.StatusApproved},
		ActionReject:  {models.StatusPending: models.StatusRejected},
		ActionReturn:  {models.StatusPending: models.StatusReturned},
	}
	for action, edges := range allowed {
		for _, from := range all {
			to, err := Next(from, action)
			if want, ok := edges[from]; ok {
				require.NoError(t, err, "%s from %s", action, from)
				assert.Equal(t, want, to)
				continue
			}
			assert.True(t, apperr.Is(err, apperr.KindInvalidTransition), "%s from %s", action, from)
		}
	}
	for _, terminal := range []models.ApplicationStatus{models.StatusApproved, models.StatusRejected} {
		assert.True(t, terminal.Terminal())
		for action := range allowed {
			_, err := Next(terminal, action)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "already "+string(terminal))
		}
	}

	_, err := Next(models.StatusDraft, Action("archive"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		in   string
		want Action
		ok   bool
	}{
		{"approved", ActionApprove, true},
		{"approve", ActionApprove, true},
		{" Rejected ", ActionReject, true},
		{"return", ActionReturn, true},
		{"returned", ActionReturn, true},
		{"submit", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ParseOutcome(tt.in)
		if !tt.ok {
			assert.True(t, apperr.Is(err, apperr.KindValidation), tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestCreate_StartsAsDraft(t *testing.T) {
	f := newFixture(t)
	app := f.tokyoTrip(t)

	assert.Equal(t, models.StatusDraft, app.Status)
	assert.Equal(t, f.applicant.ID, app.ApplicantID)
	assert.Equal(t, f.orgID, app.OrganizationID)
	assert.Equal(t, 0.0, app.ActualAmount)
	assert.NotNil(t, app.Attachments)
	assert.Equal(t, 1, f.eventCount())
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   CreateInput
	}{
		{"unknown type", CreateInput{Type: "travel", Title: "x"}},
		{"blank title", CreateInput{Type: models.KindExpense, Title: "  "}},
		{"negative amount", CreateInput{Type: models.KindExpense, Title: "x", EstimatedAmount: ptr(-1.0)}},
		{"end before start", CreateInput{Type: models.KindBusinessTrip, Title: "x", StartDate: &start, EndDate: ptr(start.AddDate(0, 0, -1))}},
		{"details mismatch", CreateInput{Type: models.KindExpense, Title: "x", Details: models.Details{Trip: &models.TripDetails{}}}},
		{"two kinds", CreateInput{Type: models.KindExpense, Title: "x", Details: models.Details{Trip: &models.TripDetails{}, Expense: &models.ExpenseDetails{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.applicant, tt.in)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestSubmit_NotifiesEveryApprover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)

	submitted, err := f.svc.Submit(ctx, f.applicant, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, submitted.Status)

	requests := f.notifier.of(models.NotificationApprovalRequest)
	require.Len(t, requests, 2)
	targets := []uuid.UUID{requests[0].Target, requests[1].Target}
	assert.ElementsMatch(t, []uuid.UUID{f.approver.ID, f.admin.ID}, targets)
	for _, n := range requests {
		assert.Equal(t, "承認依頼", n.Title)
		assert.Contains(t, n.Message, "田中")
		assert.Contains(t, n.Message, "東京出張")
		require.NotNil(t, n.Related)
		assert.Equal(t, app.ID, *n.Related)
	}
}

func TestSubmit_OnlyApplicant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)

	_, err := f.svc.Submit(ctx, f.approver, app.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	_, err = f.svc.Submit(ctx, f.outsider, app.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.Submit(ctx, f.applicant, app.ID)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, f.applicant, app.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
	assert.Len(t, f.notifier.of(models.NotificationApprovalRequest), 2)
}

func TestDecide_RejectIsFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)
	_, err := f.svc.Submit(ctx, f.applicant, app.ID)
	require.NoError(t, err)

	rejected, err := f.svc.Decide(ctx, f.approver, app.ID, ActionReject)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)

	updates := f.notifier.of(models.NotificationStatusUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, f.applicant.ID, updates[0].Target)
	assert.Equal(t, "申請が却下されました", updates[0].Title)

	for _, outcome := range []Action{ActionApprove, ActionReject, ActionReturn} {
		_, err = f.svc.Decide(ctx, f.admin, app.ID, outcome)
		assert.True(t, apperr.Is(err, apperr.KindInvalidTransition), "%s", outcome)
	}
	after, err := f.svc.Get(ctx, f.applicant, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, after.Status)
	assert.Equal(t, rejected.UpdatedAt, after.UpdatedAt)
	assert.Len(t, f.notifier.of(models.NotificationStatusUpdate), 1)
}

func TestDecide_ApproveSendsOneStatusUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)
	_, err := f.svc.Submit(ctx, f.applicant, app.ID)
	require.NoError(t, err)

	approved, err := f.svc.Decide(ctx, f.admin, app.ID, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)

	updates := f.notifier.of(models.NotificationStatusUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "申請が承認されました", updates[0].Title)
	assert.Equal(t, "「東京出張」が承認されました", updates[0].Message)
	// create, submit, approve
	assert.Equal(t, 3, f.eventCount())
}

func TestDecide_ReturnAllowsResubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)
	_, err := f.svc.Submit(ctx, f.applicant, app.ID)
	require.NoError(t, err)

	returned, err := f.svc.Decide(ctx, f.approver, app.ID, ActionReturn)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReturned, returned.Status)

	edited, err := f.svc.Update(ctx, f.applicant, app.ID, UpdateInput{EstimatedAmount: ptr(38000.0)})
	require.NoError(t, err)
	assert.Equal(t, 38000.0, edited.EstimatedAmount)
	assert.Equal(t, models.StatusReturned, edited.Status)

	again, err := f.svc.Submit(ctx, f.applicant, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.Status)
	assert.Len(t, f.notifier.of(models.NotificationApprovalRequest), 4)
}

func TestDecide_RequiresApprover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)
	_, err := f.svc.Submit(ctx, f.applicant, app.ID)
	require.NoError(t, err)

	_, err = f.svc.Decide(ctx, f.colleague, app.ID, ActionApprove)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	_, err = f.svc.Decide(ctx, f.outsider, app.ID, ActionApprove)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.svc.Decide(ctx, f.approver, app.ID, ActionSubmit)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	inactive := *f.approver
	inactive.Status = models.MemberInactive
	_, err = f.svc.Decide(ctx, &inactive, app.ID, ActionApprove)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestDecide_SelfApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app, err := f.svc.Create(ctx, f.approver, CreateInput{Type: models.KindExpense, Title: "書籍購入"})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, f.approver, app.ID)
	require.NoError(t, err)

	approved, err := f.svc.Decide(ctx, f.approver, app.ID, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
}

func TestDecide_ConcurrentDecisionsApplyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)
	_, err := f.svc.Submit(ctx, f.applicant, app.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := ActionApprove
			if i%2 == 1 {
				outcome = ActionReject
			}
			_, errs[i] = f.svc.Decide(ctx, f.admin, app.ID, outcome)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindInvalidTransition), "got %v", err)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, f.notifier.of(models.NotificationStatusUpdate), 1)
}

func TestUpdate_Rights(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)

	_, err := f.svc.Update(ctx, f.colleague, app.ID, UpdateInput{Title: ptr("他人の申請")})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.svc.Submit(ctx, f.applicant, app.ID)
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, f.applicant, app.ID, UpdateInput{Title: ptr("変更")})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	fixed, err := f.svc.Update(ctx, f.approver, app.ID, UpdateInput{ActualAmount: ptr(41200.0)})
	require.NoError(t, err)
	assert.Equal(t, 41200.0, fixed.ActualAmount)
	assert.Equal(t, models.StatusPending, fixed.Status)
	assert.Equal(t, "東京出張", fixed.Title)

	_, err = f.svc.Update(ctx, f.outsider, app.ID, UpdateInput{Title: ptr("x")})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpdate_ClearsOptionalFields(t *testing.T) {
	f := newFixture(t)
	app := f.tokyoTrip(t)

	cleared, err := f.svc.Update(context.Background(), f.applicant, app.ID, UpdateInput{
		Purpose:        ptr(""),
		Destination:    ptr("  "),
		ClearStartDate: true,
		ClearEndDate:   true,
	})
	require.NoError(t, err)
	assert.Nil(t, cleared.Purpose)
	assert.Nil(t, cleared.Destination)
	assert.Nil(t, cleared.StartDate)
	assert.Nil(t, cleared.EndDate)
	assert.Equal(t, "東京出張", cleared.Title)

	stored, err := f.svc.Get(context.Background(), f.applicant, app.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Purpose)
	assert.Nil(t, stored.StartDate)
}

func TestUpdate_StatusChangedUnderneath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)

	// submitted from another tab since the client loaded it
	f.store.setStatus(app.ID, models.StatusPending)
	_, err := f.svc.Update(ctx, f.applicant, app.ID, UpdateInput{Title: ptr("x")})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestClassify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)

	err := f.svc.classify(ctx, "op", f.applicant, app.ID, errors.New("boom"), nil)
	assert.EqualError(t, err, "boom")

	err = f.svc.classify(ctx, "op", f.applicant, app.ID, errGuardRejected, func(*models.Application) error { return nil })
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))

	err = f.svc.classify(ctx, "op", f.applicant, uuid.New(), errGuardRejected, func(*models.Application) error { return nil })
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestList_ScopedAndFiltered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.tokyoTrip(t)
	_, err := f.svc.Create(ctx, f.colleague, CreateInput{Type: models.KindExpense, Title: "タクシー代"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.outsider, CreateInput{Type: models.KindExpense, Title: "他社"})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, f.applicant, trip.ID)
	require.NoError(t, err)

	all, err := f.svc.List(ctx, f.applicant, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "タクシー代", all[0].Title)

	pending := models.StatusPending
	list, err := f.svc.List(ctx, f.approver, Filter{Status: &pending})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, trip.ID, list[0].ID)

	expense := models.KindExpense
	list, err = f.svc.List(ctx, f.approver, Filter{Type: &expense, ApplicantID: &f.colleague.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = f.svc.List(ctx, f.outsider, Filter{ApplicantID: &f.applicant.ID})
	require.NoError(t, err)
	assert.Empty(t, list)

	bogus := models.ApplicationStatus("archived")
	_, err = f.svc.List(ctx, f.applicant, Filter{Status: &bogus})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestDelete_DraftOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)

	err := f.svc.Delete(ctx, f.admin, app.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.svc.Submit(ctx, f.applicant, app.ID)
	require.NoError(t, err)
	err = f.svc.Delete(ctx, f.applicant, app.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))

	draft, err := f.svc.Create(ctx, f.applicant, CreateInput{Type: models.KindExpense, Title: "消耗品"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, f.applicant, draft.ID))
	_, err = f.svc.Get(ctx, f.applicant, draft.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Empty(t, f.cleanup.jobs)
}

func TestNotificationFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)
	f.notifier.err = errors.New("notifications table locked")

	submitted, err := f.svc.Submit(ctx, f.applicant, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, submitted.Status)
}

func TestDecide_ClientHangUpAfterCommitKeepsNotice(t *testing.T) {
	f := newFixture(t)
	app := f.tokyoTrip(t)
	_, err := f.svc.Submit(context.Background(), f.applicant, app.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancelAfterWrite{memStore: f.store, cancel: cancel}
	svc := NewService(store, f.notifier, memberTable{f.approver}, f.hub, f.objects, f.cleanup, nil)
	before := f.eventCount()

	decided, err := svc.Decide(ctx, f.approver, app.ID, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, decided.Status)
	require.Error(t, ctx.Err())

	updates := f.notifier.of(models.NotificationStatusUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, f.applicant.ID, updates[0].Target)
	assert.Equal(t, before+1, f.eventCount())
}

func TestDelete_ClientHangUpAfterCommitStillQueuesCleanup(t *testing.T) {
	f := newFixture(t)
	app := f.tokyoTrip(t)
	_, err := f.svc.AddAttachment(context.Background(), f.applicant, app.ID, Upload{
		FileName: "receipt.png", Size: 3, Body: strings.NewReader("png"),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewService(&cancelAfterWrite{memStore: f.store, cancel: cancel}, f.notifier, memberTable{}, f.hub, f.objects, f.cleanup, nil)

	require.NoError(t, svc.Delete(ctx, f.applicant, app.ID))
	require.Len(t, f.cleanup.jobs, 1)
	assert.Equal(t, app.ID, f.cleanup.jobs[0].ApplicationID)
}

func TestAttachments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)
	body := []byte("%PDF-1.7 receipt")

	updated, err := f.svc.AddAttachment(ctx, f.applicant, app.ID, Upload{
		FileName: `C:\scans\領収書.pdf`, Size: int64(len(body)), Body: bytes.NewReader(body),
	})
	require.NoError(t, err)
	require.Len(t, updated.Attachments, 1)
	att := updated.Attachments[0]
	assert.Equal(t, "領収書.pdf", att.FileName)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.True(t, strings.HasPrefix(att.Key, storage.FolderAttachments+"/"+f.orgID.String()+"/"+app.ID.String()+"/"))
	assert.Equal(t, body, f.objects.objects[att.Key])

	url, err := f.svc.AttachmentURL(ctx, f.approver, app.ID, att.Key)
	require.NoError(t, err)
	assert.Contains(t, url, att.Key)

	_, err = f.svc.AttachmentURL(ctx, f.approver, app.ID, "attachments/elsewhere.pdf")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.svc.AttachmentURL(ctx, f.outsider, app.ID, att.Key)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, f.svc.Delete(ctx, f.applicant, app.ID))
	require.Len(t, f.cleanup.jobs, 1)
	assert.Equal(t, []string{att.Key}, f.cleanup.jobs[0].Keys)
	assert.Equal(t, app.ID, f.cleanup.jobs[0].ApplicationID)
}

func TestAttachments_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)
	small := func(name string) Upload { return Upload{FileName: name, Size: 3, Body: strings.NewReader("abc")} }

	_, err := f.svc.AddAttachment(ctx, f.applicant, app.ID, small("script.exe"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.svc.AddAttachment(ctx, f.applicant, app.ID, Upload{FileName: "big.png", Size: storage.MaxAttachmentSize + 1, Body: strings.NewReader("")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.svc.AddAttachment(ctx, f.colleague, app.ID, small("receipt.png"))
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	assert.Empty(t, f.objects.objects)

	disabled := NewService(f.store, f.notifier, memberTable{}, nil, nil, nil, nil)
	_, err = disabled.AddAttachment(ctx, f.applicant, app.ID, small("receipt.png"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestAttachments_OrphanQueuedWhenAppendRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.tokyoTrip(t)

	racing := &racingStore{memStore: f.store, status: models.StatusPending}
	svc := NewService(racing, f.notifier, memberTable{}, nil, f.objects, f.cleanup, nil)
	_, err := svc.AddAttachment(ctx, f.applicant, app.ID, Upload{FileName: "r.jpg", Size: 3, Body: strings.NewReader("jpg")})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	require.Len(t, f.cleanup.jobs, 1)
	assert.Len(t, f.cleanup.jobs[0].Keys, 1)
}

// racingStore moves the row to status right before an append lands.
type racingStore struct {
	*memStore
	status models.ApplicationStatus
}

func (r *racingStore) AppendAttachment(ctx context.Context, orgID, id uuid.UUID, g Guard, att models.Attachment) (*models.Application, error) {
	r.setStatus(id, r.status)
	return r.memStore.AppendAttachment(ctx, orgID, id, g, att)
}
