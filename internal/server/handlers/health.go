package handlers

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// Counter is implemented by jsondoc.Store.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// HealthHandler reports whether every document is readable.
type HealthHandler struct {
	version string
	docs    map[string]Counter
}

// NewHealthHandler creates a health handler checking the named documents.
func NewHealthHandler(version string, docs map[string]Counter) *HealthHandler {
	return &HealthHandler{version: version, docs: docs}
}

// DocumentHealth is the state of one document.
type DocumentHealth struct {
	Records int    `json:"records"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status    string                    `json:"status"`
	Version   string                    `json:"version,omitempty"`
	Documents map[string]DocumentHealth `json:"documents"`
}

// Health returns "ok" when every document can be read, "degraded" otherwise.
func (h *HealthHandler) Health(ctx context.Context, _ *EmptyRequest) (*HealthResponse, error) {
	resp := &HealthResponse{Status: "ok", Version: h.version, Documents: make(map[string]DocumentHealth, len(h.docs))}
	for _, name := range slices.Sorted(maps.Keys(h.docs)) {
		n, err := h.docs[name].Count(ctx)
		d := DocumentHealth{Records: n}
		if err != nil {
			slog.WarnContext(ctx, "health check failed", "document", name, "err", err)
			d.Error = err.Error()
			resp.Status = "degraded"
		}
		resp.Documents[name] = d
	}
	return resp, nil
}

// RootResponse is returned by the API root.
type RootResponse struct {
	Message string `json:"message"`
}

// Root greets API clients.
func Root(_ context.Context, _ *EmptyRequest) (*RootResponse, error) {
	return &RootResponse{Message: "Welcome to the listing optimizer API"}, nil
}
