package pgstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"gavel/store"
	"gavel/store/pgstore"
	"gavel/store/storetest"
)

func TestStore(t *testing.T) {
	t.Parallel()

	if os.Getenv("PGCONNSTRING") == "" {
		t.Skipf("set PGCONNSTRING to run this test")
	}

	storetest.TestStore(t, pgstore.NewTestStore)
}

func TestPGStoreTransactionIsolation(t *testing.T) {
	t.Parallel()

	if os.Getenv("PGCONNSTRING") == "" {
		t.Skipf("set PGCONNSTRING to run this test")
	}

	var (
		ctx       = context.Background()
		store1    = pgstore.NewTestStore(t)
		store2    = pgstore.NewTestStore(t)
		auction   = storetest.NewAuction(t, store1)
		bidder    = storetest.GenAddr(t)
		oldAmount = int64(100)
		newAmount = int64(150)
	)

	storetest.NewEscrow(t, store1, auction, bidder, oldAmount)

	runtx := func(st store.Store, stepch <-chan int) error {
		t.Logf("step %d", <-stepch)

		return st.Transact(ctx, func(tx store.Store) error {
			e, err := tx.SelectEscrow(ctx, auction.ID, bidder)
			if err != nil {
				return fmt.Errorf("SelectEscrow: %w", err)
			}

			t.Logf("step %d", <-stepch)

			switch e.Amount {
			case oldAmount:
				e.Amount = newAmount
			case newAmount:
				return fmt.Errorf("escrow already updated to %d", newAmount)
			default:
				return fmt.Errorf("bonkers escrow amount %d", e.Amount)
			}

			t.Logf("step %d", <-stepch)

			if err := tx.UpsertEscrow(ctx, e); err != nil {
				return fmt.Errorf("upsert failed: %w", err)
			}

			return nil
		})
	}

	var (
		stepc1 = make(chan int, 100)
		errc1  = make(chan error, 1)
	)
	go func() { errc1 <- runtx(store1, stepc1) }()

	var (
		stepc2 = make(chan int, 100)
		errc2  = make(chan error, 1)
	)
	go func() { errc2 <- runtx(store2, stepc2) }()

	stepc1 <- 1     // allow store1 to enter Transact
	stepc2 <- 2     // allow store2 to enter Transact
	stepc1 <- 3     // allow store1 to bump the escrow amount
	stepc1 <- 4     // allow store1 to upsert the escrow
	err1 := <-errc1 // store1 should successfully Transact
	stepc2 <- 5     // allow store2 to bump the escrow amount -- this can be OK
	stepc2 <- 6     // allow store2 to upsert the escrow -- this should probably fail
	err2 := <-errc2 // store2 should fail to Transact

	if err1 != nil {
		t.Errorf("store1 should have successfully transacted, but had error: %v", err1)
	}

	if err2 == nil {
		t.Errorf("store2 should have failed to transact, but succeeded")
	}
}
