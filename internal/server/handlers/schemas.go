package handlers

import (
	"context"

	"github.com/invopop/jsonschema"

	apierrors "github.com/maruel/listopt/internal/errors"
)

// SchemaProvider is implemented by jsondoc.Store.
type SchemaProvider interface {
	Schema() *jsonschema.Schema
}

// SchemaHandler serves the record shape of each document.
type SchemaHandler struct {
	docs map[string]SchemaProvider
}

// NewSchemaHandler creates a schema handler for the named documents.
func NewSchemaHandler(docs map[string]SchemaProvider) *SchemaHandler {
	return &SchemaHandler{docs: docs}
}

// SchemaRequest addresses a document by name.
type SchemaRequest struct {
	Entity string `path:"entity" json:"-"`
}

// Get returns the JSON Schema of the records of one document.
func (h *SchemaHandler) Get(_ context.Context, req *SchemaRequest) (*jsonschema.Schema, error) {
	p, ok := h.docs[req.Entity]
	if !ok || p.Schema() == nil {
		return nil, apierrors.NotFound("schema")
	}
	return p.Schema(), nil
}
