package storage

import (
	"context"

	"github.com/maruel/listopt/internal/jsondoc"
	"github.com/maruel/listopt/internal/models"
)

// ProductService manages master products. Every method is scoped to the
// calling user.
type ProductService struct {
	store *jsondoc.Store[models.Product]
}

// NewProductService creates a new product service backed by store.
func NewProductService(store *jsondoc.Store[models.Product]) *ProductService {
	return &ProductService{store: store}
}

// Create stores a product owned by userID.
func (s *ProductService) Create(ctx context.Context, userID string, fields models.ProductFields) (*models.Product, error) {
	p, err := s.store.Create(ctx, models.Product{UserID: userID, ProductFields: fields})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByUser returns the products owned by userID, oldest first.
func (s *ProductService) ListByUser(ctx context.Context, userID string) ([]models.Product, error) {
	return s.store.Search(ctx, map[string]any{"user_id": userID})
}

// Get returns the product id. It fails with ErrNotFound when missing and
// ErrForbidden when owned by another user.
func (s *ProductService) Get(ctx context.Context, userID, id string) (*models.Product, error) {
	p, ok, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if p.UserID != userID {
		return nil, ErrForbidden
	}
	return &p, nil
}

// Update replaces the editable fields of product id. The owner never changes.
func (s *ProductService) Update(ctx context.Context, userID, id string, fields models.ProductFields) (*models.Product, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	p, ok, err := s.store.Update(ctx, id, models.Product{UserID: userID, ProductFields: fields})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// Delete removes product id.
func (s *ProductService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
