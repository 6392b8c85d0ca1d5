package storage

import (
	"fmt"
	"path/filepath"

	"github.com/maruel/listopt/internal/jsondoc"
	"github.com/maruel/listopt/internal/models"
)

// Stores groups the record documents of the application.
type Stores struct {
	Users         *jsondoc.Store[UserRecord]
	Products      *jsondoc.Store[models.Product]
	Optimizations *jsondoc.Store[models.Optimization]
}

// OpenStores opens or creates the documents under dataDir/db.
func OpenStores(dataDir string, opts *jsondoc.Options) (*Stores, error) {
	dbDir := filepath.Join(dataDir, "db")
	users, err := jsondoc.New[UserRecord](filepath.Join(dbDir, "users.json"), nil, withName(opts, "users"))
	if err != nil {
		return nil, fmt.Errorf("failed to open users: %w", err)
	}
	products, err := jsondoc.New[models.Product](filepath.Join(dbDir, "products.json"), nil, withName(opts, "products"))
	if err != nil {
		return nil, fmt.Errorf("failed to open products: %w", err)
	}
	opt, err := jsondoc.New[models.Optimization](filepath.Join(dbDir, "optimizations.json"), nil, withName(opts, "optimizations"))
	if err != nil {
		return nil, fmt.Errorf("failed to open optimizations: %w", err)
	}
	return &Stores{Users: users, Products: products, Optimizations: opt}, nil
}

func withName(opts *jsondoc.Options, name string) *jsondoc.Options {
	o := jsondoc.Options{}
	if opts != nil {
		o = *opts
	}
	o.Name = name
	return &o
}
