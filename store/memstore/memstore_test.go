package memstore_test

import (
	"testing"

	"gavel/store"
	"gavel/store/memstore"
	"gavel/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.TestStore(t, func(t *testing.T) store.Store { return memstore.NewStore() })
}
