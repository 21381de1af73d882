package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
)

// Store is the billing persistence the service needs.
type Store interface {
	List(ctx context.Context, orgID uuid.UUID) ([]*models.BillingRecord, error)
	Get(ctx context.Context, orgID, id uuid.UUID) (*models.BillingRecord, error)
	Create(ctx context.Context, rec *models.BillingRecord) (*models.BillingRecord, error)
	SetStatus(ctx context.Context, orgID, id uuid.UUID, status models.BillingStatus) (*models.BillingRecord, error)
	ChangePlan(ctx context.Context, orgID uuid.UUID, plan models.PlanType, userLimit int, rec *models.BillingRecord) (*models.Organization, *models.BillingRecord, error)
}

// SeatCounter counts seats in use; *members.Repository satisfies it.
type SeatCounter interface {
	CountSeats(ctx context.Context, orgID uuid.UUID) (int, error)
}

// RecordInput is a manually entered ledger row.
type RecordInput struct {
	Period     string          `json:"period" binding:"required"`
	PlanType   models.PlanType `json:"plan_type" binding:"required"`
	Amount     float64         `json:"amount"`
	InvoiceURL *string         `json:"invoice_url"`
}

// PlanChange is the result of ChangePlan.
type PlanChange struct {
	Organization *models.Organization  `json:"organization"`
	Record       *models.BillingRecord `json:"billing_record"`
}

const periodLayout = "2006-01"

// Service manages the plan and the billing ledger of an organization.
// Every operation is admin only.
type Service struct {
	store  Store
	seats  SeatCounter
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a billing service.
func NewService(store Store, seats SeatCounter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, seats: seats, logger: logger, now: time.Now}
}

func requireAdmin(op string, actor *models.Member) error {
	if !actor.IsAdmin() {
		return apperr.Forbidden(op, "admin role required")
	}
	return nil
}

// List returns the ledger, newest first.
func (s *Service) List(ctx context.Context, actor *models.Member) ([]*models.BillingRecord, error) {
	if err := requireAdmin("list billing", actor); err != nil {
		return nil, err
	}
	return s.store.List(ctx, actor.OrganizationID)
}

// Record appends a pending ledger row.
func (s *Service) Record(ctx context.Context, actor *models.Member, in RecordInput) (*models.BillingRecord, error) {
	const op = "record billing"
	if err := requireAdmin(op, actor); err != nil {
		return nil, err
	}
	period := strings.TrimSpace(in.Period)
	if _, err := time.Parse(periodLayout, period); err != nil {
		return nil, apperr.Validation(op, "period must be YYYY-MM")
	}
	if !in.PlanType.Valid() {
		return nil, apperr.Validation(op, "unknown plan %q", in.PlanType)
	}
	if in.Amount < 0 {
		return nil, apperr.Validation(op, "amount must not be negative")
	}
	rec, err := s.store.Create(ctx, &models.BillingRecord{
		OrganizationID: actor.OrganizationID,
		Period:         period,
		PlanType:       in.PlanType,
		Amount:         in.Amount,
		Status:         models.BillingPending,
		InvoiceURL:     in.InvoiceURL,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("billing recorded",
		zap.String("organization_id", rec.OrganizationID.String()),
		zap.String("period", rec.Period),
		zap.Float64("amount", rec.Amount),
	)
	return rec, nil
}

// SetStatus settles a pending record as paid or failed. Settled records
// never change again.
func (s *Service) SetStatus(ctx context.Context, actor *models.Member, id uuid.UUID, status models.BillingStatus) (*models.BillingRecord, error) {
	const op = "set billing status"
	if err := requireAdmin(op, actor); err != nil {
		return nil, err
	}
	if status != models.BillingPaid && status != models.BillingFailed {
		return nil, apperr.Validation(op, "status must be paid or failed")
	}
	rec, err := s.store.SetStatus(ctx, actor.OrganizationID, id, status)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, errNotPending) {
		return nil, err
	}
	cur, gerr := s.store.Get(ctx, actor.OrganizationID, id)
	if gerr != nil {
		return nil, gerr
	}
	return nil, apperr.InvalidTransition(op, "billing record is already %s", cur.Status)
}

// ChangePlan moves the organization to plan, resets its seat limit and
// appends a pending charge for the current month. Downgrading below the
// seats in use is rejected.
func (s *Service) ChangePlan(ctx context.Context, actor *models.Member, current *models.Organization, plan models.PlanType) (*PlanChange, error) {
	const op = "change plan"
	if err := requireAdmin(op, actor); err != nil {
		return nil, err
	}
	if !plan.Valid() {
		return nil, apperr.Validation(op, "unknown plan %q", plan)
	}
	if current != nil && current.PlanType == plan {
		return nil, apperr.Validation(op, "organization is already on the %s plan", plan)
	}
	limit := plan.SeatLimit()
	if limit > 0 && s.seats != nil {
		used, err := s.seats.CountSeats(ctx, actor.OrganizationID)
		if err != nil {
			return nil, err
		}
		if used > limit {
			return nil, apperr.Validation(op, "%d seats in use exceed the %s plan limit of %d", used, plan, limit)
		}
	}
	org, rec, err := s.store.ChangePlan(ctx, actor.OrganizationID, plan, limit, &models.BillingRecord{
		OrganizationID: actor.OrganizationID,
		Period:         s.now().Format(periodLayout),
		PlanType:       plan,
		Amount:         plan.MonthlyPrice(),
		Status:         models.BillingPending,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("plan changed",
		zap.String("organization_id", org.ID.String()),
		zap.String("plan", string(plan)),
		zap.Int("user_limit", limit),
	)
	return &PlanChange{Organization: org, Record: rec}, nil
}
