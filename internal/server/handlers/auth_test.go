package handlers

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/listopt/internal/models"
	"github.com/maruel/listopt/internal/storage"

	apierrors "github.com/maruel/listopt/internal/errors"
)

func newTestAuthHandler(t *testing.T) *AuthHandler {
	t.Helper()
	stores, err := storage.OpenStores(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	h := NewAuthHandler(storage.NewUserService(stores.Users), &Config{
		JWTSecret: []byte("secret-secret-secret-secret-1234"),
		TokenTTL:  time.Hour,
	})
	h.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func TestRegister(t *testing.T) {
	h := newTestAuthHandler(t)
	ctx := t.Context()

	resp, err := h.Register(ctx, &RegisterRequest{Email: "Joe@Example.com ", Password: "password123", FirstName: "Joe"})
	if err != nil {
		t.Fatalf("failed to register Joe: %v", err)
	}
	if resp.HTTPStatus() != http.StatusCreated {
		t.Errorf("status = %d", resp.HTTPStatus())
	}
	if resp.User.Email != "joe@example.com" || resp.User.FirstName != "Joe" || resp.User.SubscriptionPlan != models.PlanFree {
		t.Errorf("unexpected user %+v", resp.User)
	}
	if resp.ExpiresIn != 3600 || resp.TokenType != "bearer" {
		t.Errorf("unexpected token response %+v", resp.TokenResponse)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(resp.AccessToken, claims, func(*jwt.Token) (any, error) {
		return h.jwtSecret, nil
	}, jwt.WithTimeFunc(h.now))
	if err != nil {
		t.Fatalf("token does not parse: %v", err)
	}
	if claims["sub"] != resp.User.ID || claims["email"] != "joe@example.com" {
		t.Errorf("unexpected claims %v", claims)
	}
	if exp, _ := claims.GetExpirationTime(); !exp.Equal(h.now().Add(time.Hour)) {
		t.Errorf("exp = %v", exp)
	}

	_, err = h.Register(ctx, &RegisterRequest{Email: "joe@example.com", Password: "password456"})
	var apiErr *apierrors.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode() != http.StatusConflict {
		t.Errorf("duplicate registration: got %v", err)
	}
}

func TestLogin(t *testing.T) {
	h := newTestAuthHandler(t)
	ctx := t.Context()
	reg, err := h.Register(ctx, &RegisterRequest{Email: "joe@example.com", Password: "password123"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		status   int
	}{
		{"ok", "joe@example.com", "password123", http.StatusOK},
		{"case insensitive email", "JOE@example.com", "password123", http.StatusOK},
		{"wrong password", "joe@example.com", "password124", http.StatusUnauthorized},
		{"unknown email", "bob@example.com", "password123", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := h.Login(ctx, &LoginRequest{Email: tt.email, Password: tt.password})
			if tt.status == http.StatusOK {
				if err != nil {
					t.Fatal(err)
				}
				if resp.User.ID != reg.User.ID {
					t.Errorf("logged in as %q, want %q", resp.User.ID, reg.User.ID)
				}
				return
			}
			var apiErr *apierrors.APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode() != tt.status {
				t.Errorf("got %v, want status %d", err, tt.status)
			}
		})
	}
}

func TestUpdatePlan(t *testing.T) {
	h := newTestAuthHandler(t)
	ctx := t.Context()
	reg, err := h.Register(ctx, &RegisterRequest{Email: "joe@example.com", Password: "password123"})
	if err != nil {
		t.Fatal(err)
	}
	u, err := h.UpdatePlan(ctx, reg.User, &UpdatePlanRequest{SubscriptionPlan: models.PlanPro})
	if err != nil {
		t.Fatal(err)
	}
	if u.SubscriptionPlan != models.PlanPro || u.Email != reg.User.Email {
		t.Errorf("unexpected user %+v", u)
	}
	if _, err := h.UpdatePlan(ctx, &models.User{}, &UpdatePlanRequest{SubscriptionPlan: models.PlanPro}); err == nil {
		t.Error("expected error for unknown user")
	}
}
