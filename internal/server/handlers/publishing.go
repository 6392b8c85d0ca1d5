package handlers

import (
	"context"

	"github.com/maruel/listopt/internal/models"
	"github.com/maruel/listopt/internal/optimizer"
)

// PublishingHandler publishes optimized listings to marketplaces.
type PublishingHandler struct {
	dispatcher *optimizer.Dispatcher
}

// NewPublishingHandler creates a new publishing handler.
func NewPublishingHandler(d *optimizer.Dispatcher) *PublishingHandler {
	return &PublishingHandler{dispatcher: d}
}

// PublishRequest publishes one listing.
type PublishRequest struct {
	models.PublishRequest
}

// BatchPublishRequest publishes several listings at once.
type BatchPublishRequest struct {
	Requests []models.PublishRequest `json:"requests" validate:"required,min=1,max=10,dive"`
}

// BatchPublishResponse maps each platform to its result.
type BatchPublishResponse map[string]models.PublishResult

// Publish publishes one listing. Marketplace failures are reported in the
// result, not as an HTTP error.
func (h *PublishingHandler) Publish(ctx context.Context, _ *models.User, req *PublishRequest) (*models.PublishResult, error) {
	res := h.dispatcher.Publish(ctx, &req.PublishRequest)
	return &res, nil
}

// PublishBatch publishes listings concurrently.
func (h *PublishingHandler) PublishBatch(ctx context.Context, _ *models.User, req *BatchPublishRequest) (*BatchPublishResponse, error) {
	res, err := h.dispatcher.PublishMany(ctx, req.Requests)
	if err != nil {
		return nil, toAPIError(err, "listing")
	}
	out := BatchPublishResponse(res)
	return &out, nil
}
