package optimizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/maruel/listopt/internal/models"
)

// Unlimited disables a plan limit.
const Unlimited = -1

// ErrQuotaExceeded is returned when a request exceeds the plan limits.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Limits are the usage limits of a subscription plan.
type Limits struct {
	OptimizationsPerMonth int `json:"optimizations_per_month"`
	PlatformsPerRequest   int `json:"platforms_per_request"`
}

var planLimits = map[models.SubscriptionPlan]Limits{
	models.PlanFree:       {OptimizationsPerMonth: 5, PlatformsPerRequest: 1},
	models.PlanBasic:      {OptimizationsPerMonth: 25, PlatformsPerRequest: 2},
	models.PlanPro:        {OptimizationsPerMonth: 100, PlatformsPerRequest: 5},
	models.PlanEnterprise: {OptimizationsPerMonth: Unlimited, PlatformsPerRequest: Unlimited},
}

// LimitsFor returns the limits of plan. Unknown plans get the free limits.
func LimitsFor(plan models.SubscriptionPlan) Limits {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	return planLimits[models.PlanFree]
}

// Check returns an error wrapping ErrQuotaExceeded when a request for
// platforms, after used optimizations this month, is not allowed.
func (l Limits) Check(used, platforms int) error {
	if l.PlatformsPerRequest != Unlimited && platforms > l.PlatformsPerRequest {
		return fmt.Errorf("%w: plan allows %d platform(s) per optimization", ErrQuotaExceeded, l.PlatformsPerRequest)
	}
	if l.OptimizationsPerMonth != Unlimited && used >= l.OptimizationsPerMonth {
		return fmt.Errorf("%w: plan allows %d optimizations per month", ErrQuotaExceeded, l.OptimizationsPerMonth)
	}
	return nil
}

// MonthStart returns the first instant of t's month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
