package handlers

import (
	"context"
	"net/http"

	"github.com/maruel/listopt/internal/models"
	"github.com/maruel/listopt/internal/storage"
)

// ProductHandler handles master product CRUD for the authenticated user.
type ProductHandler struct {
	products *storage.ProductService
}

// NewProductHandler creates a new product handler.
func NewProductHandler(products *storage.ProductService) *ProductHandler {
	return &ProductHandler{products: products}
}

// ProductRequest addresses a product by path ID.
type ProductRequest struct {
	ID string `path:"id" json:"-"`
}

// WriteProductRequest carries the editable product fields.
type WriteProductRequest struct {
	ID string `path:"id" json:"-"`
	models.ProductFields
}

// ProductCreated is written with 201.
type ProductCreated struct {
	models.Product
}

// HTTPStatus implements the status override of the handler wrapper.
func (ProductCreated) HTTPStatus() int { return http.StatusCreated }

// List returns the caller's products.
func (h *ProductHandler) List(ctx context.Context, user *models.User, _ *EmptyRequest) (*[]models.Product, error) {
	list, err := h.products.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, toAPIError(err, "product")
	}
	return &list, nil
}

// Create stores a new product owned by the caller.
func (h *ProductHandler) Create(ctx context.Context, user *models.User, req *WriteProductRequest) (*ProductCreated, error) {
	p, err := h.products.Create(ctx, user.ID, req.ProductFields)
	if err != nil {
		return nil, toAPIError(err, "product")
	}
	return &ProductCreated{Product: *p}, nil
}

// Get returns one of the caller's products.
func (h *ProductHandler) Get(ctx context.Context, user *models.User, req *ProductRequest) (*models.Product, error) {
	p, err := h.products.Get(ctx, user.ID, req.ID)
	if err != nil {
		return nil, toAPIError(err, "product")
	}
	return p, nil
}

// Update replaces the editable fields of one of the caller's products.
func (h *ProductHandler) Update(ctx context.Context, user *models.User, req *WriteProductRequest) (*models.Product, error) {
	p, err := h.products.Update(ctx, user.ID, req.ID, req.ProductFields)
	if err != nil {
		return nil, toAPIError(err, "product")
	}
	return p, nil
}

// Delete removes one of the caller's products.
func (h *ProductHandler) Delete(ctx context.Context, user *models.User, req *ProductRequest) (*NoContent, error) {
	if err := h.products.Delete(ctx, user.ID, req.ID); err != nil {
		return nil, toAPIError(err, "product")
	}
	return &NoContent{}, nil
}
