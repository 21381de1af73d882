package applications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/internal/realtime"
)

// Store is the application persistence the service needs. Conditional
// writes return errGuardRejected when their guard no longer holds.
type Store interface {
	Create(ctx context.Context, app *models.Application) error
	Get(ctx context.Context, orgID, id uuid.UUID) (*models.Application, error)
	List(ctx context.Context, orgID uuid.UUID, f Filter) ([]*models.Application, error)
	Update(ctx context.Context, app *models.Application, g Guard) (*models.Application, error)
	Transition(ctx context.Context, orgID, id uuid.UUID, g Guard, to models.ApplicationStatus) (*models.Application, error)
	AppendAttachment(ctx context.Context, orgID, id uuid.UUID, g Guard, att models.Attachment) (*models.Application, error)
	Delete(ctx context.Context, orgID, id uuid.UUID, g Guard) (*models.Application, error)
}

// Notifier creates notices; *notifications.Dispatcher satisfies it.
type Notifier interface {
	Create(ctx context.Context, target uuid.UUID, title, message string, kind models.NotificationType, related *uuid.UUID) (*models.Notification, error)
}

// ApproverDirectory lists the approval chain of an organization.
type ApproverDirectory interface {
	ListApprovers(ctx context.Context, orgID uuid.UUID) ([]*models.Member, error)
}

// Publisher signals changes to subscribed sessions.
type Publisher interface {
	Publish(ctx context.Context, topic, name string, data interface{})
}

// CreateInput holds the fields of a new application.
type CreateInput struct {
	Type            models.ApplicationKind
	Title           string
	Purpose         *string
	EstimatedAmount *float64
	ActualAmount    *float64
	StartDate       *time.Time
	EndDate         *time.Time
	Destination     *string
	Details         models.Details
}

// UpdateInput is a partial edit. Nil fields are left unchanged; an empty
// Purpose or Destination clears it, as do ClearStartDate and ClearEndDate.
type UpdateInput struct {
	Title           *string
	Purpose         *string
	EstimatedAmount *float64
	ActualAmount    *float64
	StartDate       *time.Time
	EndDate         *time.Time
	ClearStartDate  bool
	ClearEndDate    bool
	Destination     *string
	Details         *models.Details
}

// ChangeEvent is the informational payload of applications_changed.
type ChangeEvent struct {
	ApplicationID uuid.UUID                `json:"application_id"`
	Status        models.ApplicationStatus `json:"status,omitempty"`
	Action        string                   `json:"action"`
}

// Service is the application store: CRUD plus the approval state machine,
// scoped to the actor's organization.
type Service struct {
	store     Store
	notifier  Notifier
	approvers ApproverDirectory
	publisher Publisher
	objects   ObjectStore
	cleanup   CleanupQueue
	logger    *zap.Logger
}

// NewService creates an application service. objects and cleanup may be nil
// when attachments are disabled.
func NewService(store Store, notifier Notifier, approvers ApproverDirectory, publisher Publisher, objects ObjectStore, cleanup CleanupQueue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		notifier:  notifier,
		approvers: approvers,
		publisher: publisher,
		objects:   objects,
		cleanup:   cleanup,
		logger:    logger,
	}
}

// List returns the actor's organization's applications, newest first. The
// filter only narrows within that organization.
func (s *Service) List(ctx context.Context, actor *models.Member, f Filter) ([]*models.Application, error) {
	if f.Status != nil && !validStatus(*f.Status) {
		return nil, apperr.Validation("list applications", "unknown status %q", *f.Status)
	}
	if f.Type != nil && !f.Type.Valid() {
		return nil, apperr.Validation("list applications", "unknown type %q", *f.Type)
	}
	return s.store.List(ctx, actor.OrganizationID, f)
}

// Get returns one application of the actor's organization.
func (s *Service) Get(ctx context.Context, actor *models.Member, id uuid.UUID) (*models.Application, error) {
	return s.store.Get(ctx, actor.OrganizationID, id)
}

// Create stores a draft owned by the actor.
func (s *Service) Create(ctx context.Context, actor *models.Member, in CreateInput) (*models.Application, error) {
	app := &models.Application{
		OrganizationID: actor.OrganizationID,
		ApplicantID:    actor.ID,
		Type:           in.Type,
		Title:          strings.TrimSpace(in.Title),
		Purpose:        in.Purpose,
		Status:         models.StatusDraft,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Destination:    in.Destination,
		Details:        in.Details,
		Attachments:    []models.Attachment{},
	}
	if in.EstimatedAmount != nil {
		app.EstimatedAmount = *in.EstimatedAmount
	}
	if in.ActualAmount != nil {
		app.ActualAmount = *in.ActualAmount
	}
	if err := validate("create application", app); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, app); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	s.logger.Info("application created",
		zap.String("organization_id", app.OrganizationID.String()),
		zap.String("application_id", app.ID.String()),
	)
	s.changed(ctx, app, "create")
	return app, nil
}

// editGuard returns the guard under which actor may edit app, or an
// authorization error. The applicant may edit while draft or returned;
// approvers and admins may edit in any status.
func editGuard(op string, actor *models.Member, app *models.Application) (Guard, error) {
	if actor.CanApprove() {
		return Guard{}, nil
	}
	if app.ApplicantID != actor.ID {
		return Guard{}, apperr.Forbidden(op, "only the applicant or an approver may edit this application")
	}
	if !app.Status.Editable() {
		return Guard{}, apperr.Forbidden(op, "application in status %s can no longer be edited by the applicant", app.Status)
	}
	id := actor.ID
	return Guard{Statuses: []models.ApplicationStatus{models.StatusDraft, models.StatusReturned}, ApplicantID: &id}, nil
}

// Update applies a partial edit. Concurrent edits are last-writer-wins.
func (s *Service) Update(ctx context.Context, actor *models.Member, id uuid.UUID, in UpdateInput) (*models.Application, error) {
	const op = "update application"
	app, err := s.store.Get(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	g, err := editGuard(op, actor, app)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		app.Title = strings.TrimSpace(*in.Title)
	}
	if in.Purpose != nil {
		app.Purpose = optional(*in.Purpose)
	}
	if in.EstimatedAmount != nil {
		app.EstimatedAmount = *in.EstimatedAmount
	}
	if in.ActualAmount != nil {
		app.ActualAmount = *in.ActualAmount
	}
	if in.ClearStartDate {
		app.StartDate = nil
	} else if in.StartDate != nil {
		app.StartDate = in.StartDate
	}
	if in.ClearEndDate {
		app.EndDate = nil
	} else if in.EndDate != nil {
		app.EndDate = in.EndDate
	}
	if in.Destination != nil {
		app.Destination = optional(*in.Destination)
	}
	if in.Details != nil {
		app.Details = *in.Details
	}
	if err := validate(op, app); err != nil {
		return nil, err
	}
	updated, err := s.store.Update(ctx, app, g)
	if err != nil {
		return nil, s.classify(ctx, op, actor, id, err, func(cur *models.Application) error {
			_, gerr := editGuard(op, actor, cur)
			return gerr
		})
	}
	ctx = context.WithoutCancel(ctx)
	updated.Applicant = app.Applicant
	s.changed(ctx, updated, "update")
	return updated, nil
}

// Submit moves a draft or returned application of the actor to pending and
// asks every approver and admin of the organization for a decision.
func (s *Service) Submit(ctx context.Context, actor *models.Member, id uuid.UUID) (*models.Application, error) {
	const op = "submit"
	app, err := s.store.Get(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if app.ApplicantID != actor.ID {
		return nil, apperr.Forbidden(op, "only the applicant may submit this application")
	}
	to, err := Next(app.Status, ActionSubmit)
	if err != nil {
		return nil, err
	}
	applicant := actor.ID
	g := Guard{Statuses: Sources(ActionSubmit), ApplicantID: &applicant}
	updated, err := s.store.Transition(ctx, actor.OrganizationID, id, g, to)
	if err != nil {
		return nil, s.classify(ctx, op, actor, id, err, func(cur *models.Application) error {
			_, terr := Next(cur.Status, ActionSubmit)
			return terr
		})
	}
	// Committed: the follow-up notices must not die with the request.
	ctx = context.WithoutCancel(ctx)
	updated.Applicant = app.Applicant
	s.logger.Info("application submitted",
		zap.String("organization_id", updated.OrganizationID.String()),
		zap.String("application_id", updated.ID.String()),
	)
	s.notifyApprovers(ctx, actor, updated)
	s.changed(ctx, updated, string(ActionSubmit))
	return updated, nil
}

// Decide applies an approver's outcome to a pending application and tells
// the applicant.
func (s *Service) Decide(ctx context.Context, actor *models.Member, id uuid.UUID, outcome Action) (*models.Application, error) {
	const op = "decide"
	if !IsDecision(outcome) {
		return nil, apperr.Validation(op, "outcome must be approved, rejected or returned")
	}
	if !actor.CanApprove() {
		return nil, apperr.Forbidden(op, "approver or admin role required")
	}
	app, err := s.store.Get(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	to, err := Next(app.Status, outcome)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Transition(ctx, actor.OrganizationID, id, Guard{Statuses: Sources(outcome)}, to)
	if err != nil {
		return nil, s.classify(ctx, op, actor, id, err, func(cur *models.Application) error {
			_, terr := Next(cur.Status, outcome)
			return terr
		})
	}
	ctx = context.WithoutCancel(ctx)
	updated.Applicant = app.Applicant
	s.logger.Info("application decided",
		zap.String("organization_id", updated.OrganizationID.String()),
		zap.String("application_id", updated.ID.String()),
		zap.String("status", string(updated.Status)),
		zap.String("by", actor.ID.String()),
	)
	s.notifyApplicant(ctx, updated)
	s.changed(ctx, updated, string(outcome))
	return updated, nil
}

// Delete removes a draft owned by the actor and schedules cleanup of its
// attachment objects.
func (s *Service) Delete(ctx context.Context, actor *models.Member, id uuid.UUID) error {
	const op = "delete application"
	app, err := s.store.Get(ctx, actor.OrganizationID, id)
	if err != nil {
		return err
	}
	check := func(cur *models.Application) error {
		if cur.ApplicantID != actor.ID {
			return apperr.Forbidden(op, "only the applicant may delete this application")
		}
		if cur.Status != models.StatusDraft {
			return apperr.InvalidTransition(op, "only drafts can be deleted, application is %s", cur.Status)
		}
		return nil
	}
	if err := check(app); err != nil {
		return err
	}
	applicant := actor.ID
	g := Guard{Statuses: []models.ApplicationStatus{models.StatusDraft}, ApplicantID: &applicant}
	removed, err := s.store.Delete(ctx, actor.OrganizationID, id, g)
	if err != nil {
		return s.classify(ctx, op, actor, id, err, check)
	}
	ctx = context.WithoutCancel(ctx)
	s.logger.Info("application deleted",
		zap.String("organization_id", removed.OrganizationID.String()),
		zap.String("application_id", removed.ID.String()),
	)
	s.scheduleCleanup(ctx, removed)
	s.publish(ctx, removed.OrganizationID, ChangeEvent{ApplicationID: removed.ID, Action: "delete"})
	return nil
}

// classify turns a failed conditional write into the error the caller
// should see: the row vanished (not found), or check explains why the
// current state rejects the operation.
func (s *Service) classify(ctx context.Context, op string, actor *models.Member, id uuid.UUID, err error, check func(*models.Application) error) error {
	if !errors.Is(err, errGuardRejected) {
		return err
	}
	cur, gerr := s.store.Get(ctx, actor.OrganizationID, id)
	if gerr != nil {
		return gerr
	}
	if cerr := check(cur); cerr != nil {
		return cerr
	}
	return apperr.InvalidTransition(op, "application changed concurrently, status is %s", cur.Status)
}

func (s *Service) notifyApprovers(ctx context.Context, actor *models.Member, app *models.Application) {
	approvers, err := s.approvers.ListApprovers(ctx, app.OrganizationID)
	if err != nil {
		s.logger.Error("list approvers for notification",
			zap.String("application_id", app.ID.String()),
			zap.Error(err),
		)
		return
	}
	title := "承認依頼"
	message := fmt.Sprintf("%sさんから「%s」の承認依頼が届きました", actor.FullName, app.Title)
	for _, m := range approvers {
		if m.OrganizationID != app.OrganizationID {
			continue
		}
		s.notify(ctx, m.ID, title, message, models.NotificationApprovalRequest, app.ID)
	}
}

func (s *Service) notifyApplicant(ctx context.Context, app *models.Application) {
	var title, verb string
	switch app.Status {
	case models.StatusApproved:
		title, verb = "申請が承認されました", "承認"
	case models.StatusRejected:
		title, verb = "申請が却下されました", "却下"
	default:
		title, verb = "申請が差し戻されました", "差し戻し"
	}
	message := fmt.Sprintf("「%s」が%sされました", app.Title, verb)
	s.notify(ctx, app.ApplicantID, title, message, models.NotificationStatusUpdate, app.ID)
}

// notify creates one notice. The transition has already committed, so a
// failure is logged and not returned.
func (s *Service) notify(ctx context.Context, target uuid.UUID, title, message string, kind models.NotificationType, appID uuid.UUID) {
	related := appID
	if _, err := s.notifier.Create(ctx, target, title, message, kind, &related); err != nil {
		s.logger.Error("create notification",
			zap.String("member_id", target.String()),
			zap.String("application_id", appID.String()),
			zap.String("type", string(kind)),
			zap.Error(err),
		)
	}
}

func (s *Service) changed(ctx context.Context, app *models.Application, action string) {
	s.publish(ctx, app.OrganizationID, ChangeEvent{ApplicationID: app.ID, Status: app.Status, Action: action})
}

func (s *Service) publish(ctx context.Context, orgID uuid.UUID, ev ChangeEvent) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, realtime.ApplicationsTopic(orgID), realtime.EventApplicationsChanged, ev)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func validStatus(st models.ApplicationStatus) bool {
	switch st {
	case models.StatusDraft, models.StatusPending, models.StatusApproved, models.StatusRejected, models.StatusReturned:
		return true
	}
	return false
}

func validate(op string, app *models.Application) error {
	if !app.Type.Valid() {
		return apperr.Validation(op, "type must be business_trip or expense")
	}
	if app.Title == "" {
		return apperr.Validation(op, "title is required")
	}
	if app.EstimatedAmount < 0 || app.ActualAmount < 0 {
		return apperr.Validation(op, "amounts must not be negative")
	}
	if app.StartDate != nil && app.EndDate != nil && app.EndDate.Before(*app.StartDate) {
		return apperr.Validation(op, "end_date is before start_date")
	}
	if app.Details.Trip != nil && app.Details.Expense != nil {
		return apperr.Validation(op, "details must carry a single kind")
	}
	if !app.Details.IsZero() && app.Details.Kind() != app.Type {
		return apperr.Validation(op, "details of kind %s do not match application type %s", app.Details.Kind(), app.Type)
	}
	return nil
}
