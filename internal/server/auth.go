package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/listopt/internal/models"
	"github.com/maruel/listopt/internal/storage"

	apierrors "github.com/maruel/listopt/internal/errors"
)

var (
	errUnauthorized       = errors.New("unauthorized")
	errInvalidAuthHdr     = errors.New("invalid authorization header")
	errInvalidToken       = errors.New("invalid token")
	errInvalidClaims      = errors.New("invalid claims")
	errInvalidUserIDToken = errors.New("invalid user ID in token")
	errUserNotFound       = errors.New("user not found")
)

// Authenticator validates bearer tokens issued by the auth handler.
type Authenticator struct {
	users     *storage.UserService
	jwtSecret []byte
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(users *storage.UserService, jwtSecret []byte) *Authenticator {
	return &Authenticator{users: users, jwtSecret: jwtSecret}
}

// Validate extracts and validates the JWT token from the request and loads
// its user. A storage failure is returned as an *errors.APIError.
func (a *Authenticator) Validate(r *http.Request) (*models.User, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errUnauthorized
	}
	scheme, tokenString, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
		return nil, errInvalidAuthHdr
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errInvalidClaims
	}
	userID, err := claims.GetSubject()
	if err != nil || userID == "" {
		return nil, errInvalidUserIDToken
	}
	user, err := a.users.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errUserNotFound
		}
		return nil, apierrors.Storage(err)
	}
	return user, nil
}
