package storage

import (
	"context"
	"time"

	"github.com/maruel/listopt/internal/jsondoc"
	"github.com/maruel/listopt/internal/models"
)

// OptimizationService records optimization runs.
type OptimizationService struct {
	store *jsondoc.Store[models.Optimization]
}

// NewOptimizationService creates a new optimization service backed by store.
func NewOptimizationService(store *jsondoc.Store[models.Optimization]) *OptimizationService {
	return &OptimizationService{store: store}
}

// Create stores an optimization result.
func (s *OptimizationService) Create(ctx context.Context, o *models.Optimization) (*models.Optimization, error) {
	out, err := s.store.Create(ctx, *o)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateWithQuota stores o unless check rejects the number of optimizations
// o.UserID created at or after since. The count and the insert happen under
// one document lock, so concurrent requests cannot overrun the quota.
func (s *OptimizationService) CreateWithQuota(ctx context.Context, o *models.Optimization, since time.Time, check func(used int) error) (*models.Optimization, error) {
	out, err := s.store.CreateIf(ctx, *o, func(existing []models.Optimization) error {
		return check(countSince(existing, o.UserID, since))
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByUser returns the optimizations of userID, oldest first.
func (s *OptimizationService) ListByUser(ctx context.Context, userID string) ([]models.Optimization, error) {
	return s.store.Search(ctx, map[string]any{"user_id": userID})
}

// ListByProduct returns the optimizations of one product of userID.
func (s *OptimizationService) ListByProduct(ctx context.Context, userID, productID string) ([]models.Optimization, error) {
	return s.store.Search(ctx, map[string]any{"user_id": userID, "master_product_id": productID})
}

// Get returns optimization id if owned by userID.
func (s *OptimizationService) Get(ctx context.Context, userID, id string) (*models.Optimization, error) {
	o, ok, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if o.UserID != userID {
		return nil, ErrForbidden
	}
	return &o, nil
}

// CountSince returns how many optimizations userID created at or after since.
func (s *OptimizationService) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	all, err := s.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return countSince(all, userID, since), nil
}

func countSince(all []models.Optimization, userID string, since time.Time) int {
	n := 0
	for i := range all {
		if all[i].UserID == userID && !all[i].CreatedAt.Before(since) {
			n++
		}
	}
	return n
}
