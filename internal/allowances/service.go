package allowances

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
)

// Store is the allowance persistence the service needs.
type Store interface {
	Get(ctx context.Context, orgID uuid.UUID, position models.Position) (*models.AllowanceRate, error)
	List(ctx context.Context, orgID uuid.UUID) ([]*models.AllowanceRate, error)
	Upsert(ctx context.Context, orgID uuid.UUID, position models.Position, rates models.Rates) (*models.AllowanceRate, error)
}

// Service is the per-organization allowance table.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates an allowance service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Get returns the rate of position in the actor's organization.
func (s *Service) Get(ctx context.Context, actor *models.Member, position models.Position) (*models.AllowanceRate, error) {
	if !position.Valid() {
		return nil, apperr.Validation("get allowance", "unknown position %q", position)
	}
	return s.store.Get(ctx, actor.OrganizationID, position)
}

// List returns the actor's allowance table ordered from the highest rank down.
func (s *Service) List(ctx context.Context, actor *models.Member) ([]*models.AllowanceRate, error) {
	list, err := s.store.List(ctx, actor.OrganizationID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Position.Rank() < list[j].Position.Rank()
	})
	return list, nil
}

// Upsert sets the rates of position. Admin only; other roles fail before
// the store is touched.
func (s *Service) Upsert(ctx context.Context, actor *models.Member, position models.Position, rates models.Rates) (*models.AllowanceRate, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("upsert allowance", "admin role required")
	}
	if !position.Valid() {
		return nil, apperr.Validation("upsert allowance", "unknown position %q", position)
	}
	if rates.DomesticDaily < 0 || rates.DomesticAccommodation < 0 || rates.OverseasDaily < 0 || rates.OverseasAccommodation < 0 {
		return nil, apperr.Validation("upsert allowance", "rates must not be negative")
	}
	a, err := s.store.Upsert(ctx, actor.OrganizationID, position, rates)
	if err != nil {
		return nil, err
	}
	s.logger.Info("allowance updated",
		zap.String("organization_id", actor.OrganizationID.String()),
		zap.String("position", string(position)),
	)
	return a, nil
}

// Estimate computes the allowance of a trip for position in the actor's organization.
func (s *Service) Estimate(ctx context.Context, actor *models.Member, position models.Position, region models.Region, days, nights int) (Estimate, error) {
	rate, err := s.Get(ctx, actor, position)
	if err != nil {
		return Estimate{}, err
	}
	return Calculate(rate, region, days, nights)
}
