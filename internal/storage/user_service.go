package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maruel/listopt/internal/jsondoc"
	"github.com/maruel/listopt/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// UserRecord is a user as stored in users.json.
type UserRecord struct {
	models.User
	HashedPassword string `json:"hashed_password" validate:"required" jsonschema:"-"`
}

// NewUser is the input to UserService.Create.
type NewUser struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// UserService handles user management and authentication.
type UserService struct {
	store *jsondoc.Store[UserRecord]
	cost  int
}

// NewUserService creates a new user service backed by store.
func NewUserService(store *jsondoc.Store[UserRecord]) *UserService {
	return &UserService{store: store, cost: bcrypt.DefaultCost}
}

// Create registers a new user on the free plan. Emails are unique: the check
// is repeated under the document lock so concurrent registrations of one email
// yield a single account.
func (s *UserService) Create(ctx context.Context, in NewUser) (*models.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ErrEmailPwdRequired
	}
	if _, err := s.byEmail(ctx, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	rec, err := s.store.CreateIf(ctx, UserRecord{
		User: models.User{
			Email:            email,
			FirstName:        strings.TrimSpace(in.FirstName),
			LastName:         strings.TrimSpace(in.LastName),
			SubscriptionPlan: models.PlanFree,
		},
		HashedPassword: string(hash),
	}, func(existing []UserRecord) error {
		for i := range existing {
			if existing[i].Email == email {
				return ErrUserExists
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec.User, nil
}

// Authenticate verifies user credentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	rec, err := s.byEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.HashedPassword), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &rec.User, nil
}

// Get retrieves a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	rec, ok, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &rec.User, nil
}

// SetPlan changes the subscription plan of a user.
func (s *UserService) SetPlan(ctx context.Context, id string, plan models.SubscriptionPlan) (*models.User, error) {
	rec, ok, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	rec.SubscriptionPlan = plan
	rec, ok, err = s.store.Update(ctx, id, rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &rec.User, nil
}

// Count returns the number of registered users.
func (s *UserService) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func (s *UserService) byEmail(ctx context.Context, email string) (*UserRecord, error) {
	if email == "" {
		return nil, ErrNotFound
	}
	recs, err := s.store.Search(ctx, map[string]any{"email": email})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
