package handlers

import (
	"context"

	"github.com/maruel/listopt/internal/models"
	"github.com/maruel/listopt/internal/optimizer"

	apierrors "github.com/maruel/listopt/internal/errors"
)

// PlatformsResponse lists the marketplaces and the plan limits.
type PlatformsResponse struct {
	Platforms []models.PlatformRequirements                `json:"platforms"`
	Plans     map[models.SubscriptionPlan]optimizer.Limits `json:"plans"`
}

// PlatformRequest addresses a platform by name.
type PlatformRequest struct {
	Name string `path:"name" json:"-"`
}

// Platforms returns the requirements of every supported marketplace.
func Platforms(_ context.Context, _ *EmptyRequest) (*PlatformsResponse, error) {
	plans := map[models.SubscriptionPlan]optimizer.Limits{}
	for _, p := range []models.SubscriptionPlan{models.PlanFree, models.PlanBasic, models.PlanPro, models.PlanEnterprise} {
		plans[p] = optimizer.LimitsFor(p)
	}
	return &PlatformsResponse{Platforms: optimizer.AllRequirements(), Plans: plans}, nil
}

// Platform returns the requirements of one marketplace.
func Platform(_ context.Context, req *PlatformRequest) (*models.PlatformRequirements, error) {
	r, ok := optimizer.Requirements(req.Name)
	if !ok {
		return nil, apierrors.NotFound("platform")
	}
	return &r, nil
}
