package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/listopt/internal/models"
	"github.com/maruel/listopt/internal/storage"

	apierrors "github.com/maruel/listopt/internal/errors"
)

// AuthHandler handles authentication requests.
type AuthHandler struct {
	users     *storage.UserService
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users *storage.UserService, cfg *Config) *AuthHandler {
	return &AuthHandler{
		users:     users,
		jwtSecret: cfg.JWTSecret,
		tokenTTL:  cfg.TokenTTL,
		now:       time.Now,
	}
}

// RegisterRequest is a request to register a new user.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LoginRequest is a request to log in.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse carries a bearer token and the user it was issued to.
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        *models.User `json:"user"`
}

// RegisterResponse is written with 201.
type RegisterResponse struct {
	TokenResponse
}

// HTTPStatus implements the status override of the handler wrapper.
func (RegisterResponse) HTTPStatus() int { return http.StatusCreated }

// Register creates an account and logs it in.
func (h *AuthHandler) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	user, err := h.users.Create(ctx, storage.NewUser{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return nil, toAPIError(err, "user")
	}
	resp, err := h.issue(user)
	if err != nil {
		return nil, err
	}
	return &RegisterResponse{TokenResponse: *resp}, nil
}

// Login handles user login and returns a JWT token.
func (h *AuthHandler) Login(ctx context.Context, req *LoginRequest) (*TokenResponse, error) {
	user, err := h.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, toAPIError(err, "user")
	}
	return h.issue(user)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(_ context.Context, user *models.User, _ *EmptyRequest) (*models.User, error) {
	return user, nil
}

// UpdatePlanRequest changes the subscription plan of the caller.
type UpdatePlanRequest struct {
	SubscriptionPlan models.SubscriptionPlan `json:"subscription_plan" validate:"required,oneof=free basic pro enterprise"`
}

// UpdatePlan changes the caller's subscription plan. Billing is out of scope.
func (h *AuthHandler) UpdatePlan(ctx context.Context, user *models.User, req *UpdatePlanRequest) (*models.User, error) {
	u, err := h.users.SetPlan(ctx, user.ID, req.SubscriptionPlan)
	if err != nil {
		return nil, toAPIError(err, "user")
	}
	return u, nil
}

func (h *AuthHandler) issue(user *models.User) (*TokenResponse, error) {
	now := h.now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"exp":   now.Add(h.tokenTTL).Unix(),
		"iat":   now.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	if err != nil {
		return nil, apierrors.InternalWithError("Failed to generate token", err)
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.tokenTTL.Seconds()),
		User:        user,
	}, nil
}
