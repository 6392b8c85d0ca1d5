package storage

import (
	"testing"

	"github.com/maruel/listopt/internal/jsondoc"
	"golang.org/x/crypto/bcrypt"
)

func newTestStores(t *testing.T) *Stores {
	t.Helper()
	stores, err := OpenStores(t.TempDir(), &jsondoc.Options{LockRetryDelay: jsondoc.DefaultLockRetryDelay})
	if err != nil {
		t.Fatal(err)
	}
	return stores
}

func newTestUserService(t *testing.T, stores *Stores) *UserService {
	t.Helper()
	s := NewUserService(stores.Users)
	s.cost = bcrypt.MinCost
	return s
}
