// Package handlers implements the HTTP API endpoints.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/maruel/listopt/internal/jsondoc"
	"github.com/maruel/listopt/internal/optimizer"
	"github.com/maruel/listopt/internal/storage"

	apierrors "github.com/maruel/listopt/internal/errors"
)

// Config holds the handler settings derived from the server configuration.
type Config struct {
	JWTSecret           []byte
	TokenTTL            time.Duration
	MaxRequestBodyBytes int64
}

// EmptyRequest is the input of endpoints without parameters.
type EmptyRequest struct{}

// NoContent is written as a bodiless 204 response.
type NoContent struct{}

// HTTPStatus implements the status override of the handler wrapper.
func (NoContent) HTTPStatus() int { return http.StatusNoContent }

// toAPIError converts a service error into an APIError. resource names the
// entity in not found and forbidden messages.
func toAPIError(err error, resource string) error {
	if err == nil {
		return nil
	}
	var apiErr apierrors.ErrorWithStatus
	switch {
	case errors.As(err, &apiErr):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return apierrors.NotFound(resource)
	case errors.Is(err, storage.ErrForbidden):
		return apierrors.Forbidden("Not authorized to access this " + resource)
	case errors.Is(err, storage.ErrUserExists):
		return apierrors.Conflict("Email already registered")
	case errors.Is(err, storage.ErrInvalidCredentials):
		return apierrors.Unauthorized("Incorrect email or password")
	case errors.Is(err, storage.ErrEmailPwdRequired):
		return apierrors.MissingField("email or password")
	case errors.Is(err, jsondoc.ErrInvalidRecord):
		return apierrors.BadRequest(err.Error())
	case errors.Is(err, optimizer.ErrUnsupportedPlatform):
		return apierrors.BadRequest(err.Error())
	case errors.Is(err, optimizer.ErrQuotaExceeded):
		return apierrors.QuotaExceeded(err.Error())
	case errors.Is(err, jsondoc.ErrStorage):
		return apierrors.Storage(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apierrors.NewAPIError(http.StatusServiceUnavailable, apierrors.ErrInternal, "Request aborted").Wrap(err)
	default:
		return apierrors.InternalWithError("Internal error", err)
	}
}
