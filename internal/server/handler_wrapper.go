// Provides adapters turning typed handler functions into http.Handlers.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/maruel/listopt/internal/models"
	"github.com/maruel/listopt/internal/server/handlers"
	"github.com/maruel/listopt/internal/server/ratelimit"
	"github.com/maruel/listopt/internal/server/reqctx"

	apierrors "github.com/maruel/listopt/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// statusCoder lets a response type override the 200 status.
type statusCoder interface {
	HTTPStatus() int
}

// Wrap wraps an unauthenticated handler function to work as an http.Handler.
//
// The request body is decoded as JSON into In, then fields tagged
// `path:"name"` and `query:"name"` are populated and `validate` tags are
// checked. limiter, when not nil, is keyed by client IP.
//
// Example:
//
//	type GetPlatformRequest struct {
//	    Name string `path:"name" json:"-"`
//	}
//
//	func Platform(ctx context.Context, req *GetPlatformRequest) (*Response, error)
func Wrap[In, Out any](fn func(context.Context, *In) (*Out, error), cfg *handlers.Config, limiter *ratelimit.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w, ok := checkRateLimit(w, limiter, ratelimit.ScopeIP, reqctx.GetClientIP(r))
		if !ok {
			return
		}
		input := new(In)
		if !decodeRequest(ctx, w, r, input, cfg) {
			return
		}
		output, err := fn(ctx, input)
		writeJSONResponse(ctx, w, output, err)
	})
}

// WrapAuth wraps a handler function that requires a valid bearer token. The
// authenticated user is passed to fn and stored in the context. limiter, when
// not nil, is keyed by user.
func WrapAuth[In, Out any](fn func(context.Context, *models.User, *In) (*Out, error), a *Authenticator, cfg *handlers.Config, limiter *ratelimit.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.Validate(r)
		if err != nil {
			var ewsErr apierrors.ErrorWithStatus
			if !errors.As(err, &ewsErr) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				err = apierrors.Unauthorized("Could not validate credentials").Wrap(err)
			}
			writeError(r.Context(), w, err)
			return
		}
		ctx := reqctx.WithUser(r.Context(), user)
		w, ok := checkRateLimit(w, limiter, ratelimit.ScopeUser, user.ID)
		if !ok {
			return
		}
		input := new(In)
		if !decodeRequest(ctx, w, r, input, cfg) {
			return
		}
		output, err := fn(ctx, user, input)
		writeJSONResponse(ctx, w, output, err)
	})
}

// checkRateLimit consumes a token and wraps the response writer to carry the
// rate limit headers. It returns false after writing a 429.
func checkRateLimit(w http.ResponseWriter, l *ratelimit.Limiter, scope ratelimit.Scope, identifier string) (http.ResponseWriter, bool) {
	if l == nil {
		return w, true
	}
	result := l.Allow(ratelimit.BuildKey(scope, identifier, l.Name()))
	w = ratelimit.NewResponseWriter(w, result)
	if !result.Allowed {
		writeErrorResponseWithCode(w, http.StatusTooManyRequests, apierrors.ErrRateLimited, "Too many requests", map[string]any{
			"retry_after": int(result.RetryAfter.Seconds()),
		})
		return w, false
	}
	return w, true
}

// decodeRequest reads the body with a size limit, decodes it into input,
// populates path and query parameters and validates the result. It returns
// false after writing an error response.
func decodeRequest[In any](ctx context.Context, w http.ResponseWriter, r *http.Request, input *In, cfg *handlers.Config) bool {
	if cfg != nil && cfg.MaxRequestBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxRequestBodyBytes)
	}
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeErrorResponseWithCode(w, http.StatusRequestEntityTooLarge, apierrors.ErrPayloadTooLarge, "Request body too large", map[string]any{"limit": maxErr.Limit})
			return false
		}
		slog.ErrorContext(ctx, "Failed to read request body", "err", err)
		writeErrorResponse(w, http.StatusBadRequest, "Failed to read request body")
		return false
	}
	if len(bytes.TrimSpace(body)) > 0 {
		d := json.NewDecoder(bytes.NewReader(body))
		d.DisallowUnknownFields()
		if err := d.Decode(input); err != nil {
			slog.WarnContext(ctx, "Failed to decode request body", "err", err)
			writeErrorResponseWithCode(w, http.StatusBadRequest, apierrors.ErrValidationFailed, "Invalid request body", nil)
			return false
		}
	}
	populatePathParams(r, input)
	populateQueryParams(r, input)
	if err := validateInput(input); err != nil {
		writeError(ctx, w, err)
		return false
	}
	return true
}

// validateInput runs the `validate` struct tags and reports the failing
// fields in the error details.
func validateInput(input any) error {
	rv := reflect.ValueOf(input)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return nil
	}
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierrors.BadRequest("Invalid request").Wrap(err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		// Drop the request type name.
		_, name, _ := strings.Cut(fe.Namespace(), ".")
		fields[name] = fe.Tag()
	}
	if len(verrs) == 1 && verrs[0].Tag() == "required" {
		return apierrors.MissingField(verrs[0].Field()).WithDetail("fields", fields)
	}
	return apierrors.BadRequest("Invalid request").WithDetail("fields", fields)
}

// writeJSONResponse writes a JSON response or error response.
func writeJSONResponse[Out any](ctx context.Context, w http.ResponseWriter, output *Out, err error) {
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	status := http.StatusOK
	if sc, ok := any(output).(statusCoder); ok {
		status = sc.HTTPStatus()
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(output); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}

// writeError writes err as a JSON error. Errors that are not
// ErrorWithStatus become a 500 without their message.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorCode := apierrors.ErrInternal
	message := "Internal error"
	var details map[string]any

	var ewsErr apierrors.ErrorWithStatus
	if errors.As(err, &ewsErr) {
		statusCode = ewsErr.StatusCode()
		errorCode = ewsErr.Code()
		message = ewsErr.Message()
		details = ewsErr.Details()
	}
	if statusCode >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", statusCode, "code", errorCode)
	} else {
		slog.DebugContext(ctx, "Handler error", "err", err, "statusCode", statusCode, "code", errorCode)
	}
	writeErrorResponseWithCode(w, statusCode, errorCode, message, details)
}

// populatePathParams extracts path parameters from the request and populates
// struct fields tagged with `path:"paramName"`.
func populatePathParams(r *http.Request, input any) {
	elem, ok := structElem(input)
	if !ok {
		return
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("path")
		if tag == "" || field.Type.Kind() != reflect.String {
			continue
		}
		if v := r.PathValue(tag); v != "" {
			elem.Field(i).SetString(v)
		}
	}
}

// populateQueryParams extracts query parameters from the request and populates
// struct fields tagged with `query:"paramName"`.
func populateQueryParams(r *http.Request, input any) {
	elem, ok := structElem(input)
	if !ok {
		return
	}
	query := r.URL.Query()
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("query")
		if tag == "" {
			continue
		}
		v := query.Get(tag)
		if v == "" {
			continue
		}
		//nolint:exhaustive // Only string and int are supported for query params.
		switch field.Type.Kind() {
		case reflect.String:
			elem.Field(i).SetString(v)
		case reflect.Int:
			if n, err := strconv.Atoi(v); err == nil {
				elem.Field(i).SetInt(int64(n))
			}
		default:
		}
	}
}

func structElem(input any) (reflect.Value, bool) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer {
		return reflect.Value{}, false
	}
	elem := val.Elem()
	return elem, elem.Kind() == reflect.Struct
}

// writeErrorResponse writes an error response as JSON.
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeErrorResponseWithCode(w, statusCode, apierrors.ErrInternal, message, nil)
}

// writeErrorResponseWithCode writes a detailed error response as JSON with code and details.
func writeErrorResponseWithCode(w http.ResponseWriter, statusCode int, code apierrors.ErrorCode, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
	if len(details) > 0 {
		response["details"] = details
	}
	_ = json.NewEncoder(w).Encode(response)
}
