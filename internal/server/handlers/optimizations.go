package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/maruel/listopt/internal/models"
	"github.com/maruel/listopt/internal/optimizer"
	"github.com/maruel/listopt/internal/storage"
)

// OptimizationHandler runs and lists listing optimizations.
type OptimizationHandler struct {
	products      *storage.ProductService
	optimizations *storage.OptimizationService
	optimizer     optimizer.Optimizer
	now           func() time.Time
}

// NewOptimizationHandler creates a new optimization handler.
func NewOptimizationHandler(products *storage.ProductService, optimizations *storage.OptimizationService, o optimizer.Optimizer) *OptimizationHandler {
	return &OptimizationHandler{
		products:      products,
		optimizations: optimizations,
		optimizer:     o,
		now:           time.Now,
	}
}

// CreateOptimizationRequest asks to optimize a product for some platforms.
type CreateOptimizationRequest struct {
	ProductID         string   `json:"product_id" validate:"required"`
	Platforms         []string `json:"platforms" validate:"required,min=1,dive,required"`
	OptimizationFocus string   `json:"optimization_focus"`
	TargetAudience    string   `json:"target_audience"`
}

// ListOptimizationsRequest optionally filters by product.
type ListOptimizationsRequest struct {
	ProductID string `query:"product_id" json:"-"`
}

// OptimizationRequest addresses an optimization by path ID.
type OptimizationRequest struct {
	ID string `path:"id" json:"-"`
}

// OptimizationCreated is written with 201.
type OptimizationCreated struct {
	models.Optimization
}

// HTTPStatus implements the status override of the handler wrapper.
func (OptimizationCreated) HTTPStatus() int { return http.StatusCreated }

// UsageResponse reports the caller's plan usage for the current month.
type UsageResponse struct {
	Plan          models.SubscriptionPlan `json:"plan"`
	Limits        optimizer.Limits        `json:"limits"`
	UsedThisMonth int                     `json:"used_this_month"`
	PeriodStart   time.Time               `json:"period_start"`
}

// Create optimizes one of the caller's products within the plan limits and
// records the result.
func (h *OptimizationHandler) Create(ctx context.Context, user *models.User, req *CreateOptimizationRequest) (*OptimizationCreated, error) {
	p, err := h.products.Get(ctx, user.ID, req.ProductID)
	if err != nil {
		return nil, toAPIError(err, "product")
	}
	platforms := optimizer.NormalizePlatforms(req.Platforms)
	limits := optimizer.LimitsFor(user.SubscriptionPlan)
	since := optimizer.MonthStart(h.now())
	used, err := h.optimizations.CountSince(ctx, user.ID, since)
	if err != nil {
		return nil, toAPIError(err, "optimization")
	}
	if err := limits.Check(used, len(platforms)); err != nil {
		return nil, toAPIError(err, "optimization")
	}
	listings, err := h.optimizer.Optimize(ctx, p, &optimizer.Request{
		Platforms:      platforms,
		Focus:          req.OptimizationFocus,
		TargetAudience: req.TargetAudience,
	})
	if err != nil {
		return nil, toAPIError(err, "optimization")
	}
	// The quota is checked again when the record is inserted: other requests
	// may have been created while optimizing.
	o, err := h.optimizations.CreateWithQuota(ctx, &models.Optimization{
		UserID:            user.ID,
		MasterProductID:   p.ID,
		OptimizedListings: listings,
		OptimizationFocus: req.OptimizationFocus,
		TargetAudience:    req.TargetAudience,
	}, since, func(used int) error {
		return limits.Check(used, len(platforms))
	})
	if err != nil {
		return nil, toAPIError(err, "optimization")
	}
	slog.InfoContext(ctx, "optimization created", "id", o.ID, "product", p.ID, "platforms", platforms)
	return &OptimizationCreated{Optimization: *o}, nil
}

// List returns the caller's optimizations.
func (h *OptimizationHandler) List(ctx context.Context, user *models.User, req *ListOptimizationsRequest) (*[]models.Optimization, error) {
	var list []models.Optimization
	var err error
	if req.ProductID != "" {
		list, err = h.optimizations.ListByProduct(ctx, user.ID, req.ProductID)
	} else {
		list, err = h.optimizations.ListByUser(ctx, user.ID)
	}
	if err != nil {
		return nil, toAPIError(err, "optimization")
	}
	return &list, nil
}

// Get returns one of the caller's optimizations.
func (h *OptimizationHandler) Get(ctx context.Context, user *models.User, req *OptimizationRequest) (*models.Optimization, error) {
	o, err := h.optimizations.Get(ctx, user.ID, req.ID)
	if err != nil {
		return nil, toAPIError(err, "optimization")
	}
	return o, nil
}

// Usage reports how much of the monthly quota the caller has used.
func (h *OptimizationHandler) Usage(ctx context.Context, user *models.User, _ *EmptyRequest) (*UsageResponse, error) {
	start := optimizer.MonthStart(h.now())
	used, err := h.optimizations.CountSince(ctx, user.ID, start)
	if err != nil {
		return nil, toAPIError(err, "optimization")
	}
	return &UsageResponse{
		Plan:          user.SubscriptionPlan,
		Limits:        optimizer.LimitsFor(user.SubscriptionPlan),
		UsedThisMonth: used,
		PeriodStart:   start,
	}, nil
}
