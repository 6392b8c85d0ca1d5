package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/maruel/listopt/internal/jsondoc"
	"github.com/maruel/listopt/internal/optimizer"
	"github.com/maruel/listopt/internal/storage"

	apierrors "github.com/maruel/listopt/internal/errors"
)

func TestToAPIError(t *testing.T) {
	if toAPIError(nil, "product") != nil {
		t.Fatal("nil error must stay nil")
	}
	tests := []struct {
		name   string
		err    error
		status int
		code   apierrors.ErrorCode
	}{
		{"not found", fmt.Errorf("get: %w", storage.ErrNotFound), http.StatusNotFound, apierrors.ErrNotFound},
		{"forbidden", storage.ErrForbidden, http.StatusForbidden, apierrors.ErrForbidden},
		{"exists", storage.ErrUserExists, http.StatusConflict, apierrors.ErrConflict},
		{"credentials", storage.ErrInvalidCredentials, http.StatusUnauthorized, apierrors.ErrUnauthorized},
		{"email pwd", storage.ErrEmailPwdRequired, http.StatusBadRequest, apierrors.ErrMissingField},
		{"invalid record", fmt.Errorf("%w: title", jsondoc.ErrInvalidRecord), http.StatusBadRequest, apierrors.ErrValidationFailed},
		{"platform", fmt.Errorf("%w: ebay", optimizer.ErrUnsupportedPlatform), http.StatusBadRequest, apierrors.ErrValidationFailed},
		{"quota", optimizer.ErrQuotaExceeded, http.StatusPaymentRequired, apierrors.ErrQuotaExceeded},
		{"storage", &jsondoc.StorageError{Op: "read", Path: "x.json", Err: errors.New("eio")}, http.StatusInternalServerError, apierrors.ErrStorageError},
		{"canceled", context.Canceled, http.StatusServiceUnavailable, apierrors.ErrInternal},
		{"passthrough", apierrors.Conflict("taken"), http.StatusConflict, apierrors.ErrConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError, apierrors.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var apiErr apierrors.ErrorWithStatus
			if !errors.As(toAPIError(tt.err, "product"), &apiErr) {
				t.Fatalf("not an API error: %v", tt.err)
			}
			if apiErr.StatusCode() != tt.status || apiErr.Code() != tt.code {
				t.Errorf("got %d %s, want %d %s", apiErr.StatusCode(), apiErr.Code(), tt.status, tt.code)
			}
		})
	}
	var apiErr apierrors.ErrorWithStatus
	errors.As(toAPIError(storage.ErrForbidden, "product"), &apiErr)
	if apiErr.Message() != "Not authorized to access this product" {
		t.Errorf("message = %q", apiErr.Message())
	}
}
