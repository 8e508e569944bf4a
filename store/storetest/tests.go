package storetest

import (
	"context"
	"errors"
	"testing"

	"gavel/store"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// TestStore runs the store conformance suite against fresh stores produced
// by makeStore.
func TestStore(t *testing.T, makeStore func(*testing.T) store.Store) {
	ctx := context.Background()

	t.Run("SelectAuction", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)

		have, err := s.SelectAuction(ctx, auction.ID)
		if err != nil {
			t.Fatal(err)
		}

		want := auction
		ignore := cmpopts.IgnoreFields(store.Auction{}, "CreatedAt", "UpdatedAt")
		if diff := cmp.Diff(have, want, ignore); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}

		bogusID, _ := uuid.NewV4()
		if _, err := s.SelectAuction(ctx, bogusID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("select bogus auction: want %v, have %v", store.ErrNotFound, err)
		}
	})

	t.Run("ListAuctions", func(t *testing.T) {
		s := makeStore(t)

		have, err := s.ListAuctions(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(have) != 0 {
			t.Fatalf("fresh store should list no auctions, have %d", len(have))
		}

		// Insertion order must be preserved.
		want := []*store.Auction{
			NewAuction(t, s),
			NewAuction(t, s),
			NewAuction(t, s),
		}

		have, err = s.ListAuctions(ctx)
		if err != nil {
			t.Fatal(err)
		}

		ignore := cmpopts.IgnoreFields(store.Auction{}, "CreatedAt", "UpdatedAt")
		if diff := cmp.Diff(have, want, ignore); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("UpdateAuction", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)

		auction.Canceled = true
		auction.HighestBidder = GenAddr(t)
		auction.HighestBindingBid = 42
		auction.OwnerHasWithdrawn = true

		if err := s.UpdateAuction(ctx, auction); err != nil {
			t.Fatal(err)
		}

		have, err := s.SelectAuction(ctx, auction.ID)
		if err != nil {
			t.Fatal(err)
		}

		want := auction
		ignore := cmpopts.IgnoreFields(store.Auction{}, "CreatedAt", "UpdatedAt")
		if diff := cmp.Diff(have, want, ignore); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}

		bogus := *auction
		bogusID, _ := uuid.NewV4()
		bogus.ID = bogusID
		if err := s.UpdateAuction(ctx, &bogus); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("update bogus auction: want %v, have %v", store.ErrNotFound, err)
		}
	})

	t.Run("UpsertEscrow", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)
		bidder := GenAddr(t)

		if _, err := s.SelectEscrow(ctx, auction.ID, bidder); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("select absent escrow: want %v, have %v", store.ErrNotFound, err)
		}

		escrow := NewEscrow(t, s, auction, bidder, 100)

		escrow.Amount = 250
		if err := s.UpsertEscrow(ctx, escrow); err != nil {
			t.Fatal(err)
		}

		have, err := s.SelectEscrow(ctx, auction.ID, bidder)
		if err != nil {
			t.Fatal(err)
		}

		if want, have := int64(250), have.Amount; want != have {
			t.Fatalf("escrow amount: want %d, have %d", want, have)
		}
	})

	t.Run("ListEscrows", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)
		other := NewAuction(t, s)

		want := []*store.Escrow{
			NewEscrow(t, s, auction, "gv1bbb", 200),
			NewEscrow(t, s, auction, "gv1aaa", 100),
		}
		NewEscrow(t, s, other, "gv1ccc", 300)

		// Escrows list in bidder order.
		want[0], want[1] = want[1], want[0]

		have, err := s.ListEscrows(ctx, auction.ID)
		if err != nil {
			t.Fatal(err)
		}

		ignore := cmpopts.IgnoreFields(store.Escrow{}, "CreatedAt", "UpdatedAt")
		if diff := cmp.Diff(have, want, ignore); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("ListEvents", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)

		want := []*store.Event{
			NewEvent(t, s, auction, store.EventKindCreated, auction.Owner, 0),
			NewEvent(t, s, auction, store.EventKindBid, GenAddr(t), 100),
			NewEvent(t, s, auction, store.EventKindCanceled, auction.Owner, 0),
		}

		have, err := s.ListEvents(ctx, auction.ID)
		if err != nil {
			t.Fatal(err)
		}

		ignore := cmpopts.IgnoreFields(store.Event{}, "CreatedAt")
		if diff := cmp.Diff(have, want, ignore); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("TransactCommit", func(t *testing.T) {
		s := makeStore(t)

		var auction *store.Auction
		err := s.Transact(ctx, func(tx store.Store) error {
			auction = NewAuction(t, tx)
			NewEscrow(t, tx, auction, "gv1aaa", 100)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		if _, err := s.SelectAuction(ctx, auction.ID); err != nil {
			t.Fatalf("committed auction should be visible: %v", err)
		}
		escrow, err := s.SelectEscrow(ctx, auction.ID, "gv1aaa")
		if err != nil {
			t.Fatalf("committed escrow should be visible: %v", err)
		}
		if want, have := int64(100), escrow.Amount; want != have {
			t.Fatalf("escrow amount: want %d, have %d", want, have)
		}
	})

	t.Run("TransactRollback", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)
		NewEscrow(t, s, auction, "gv1aaa", 100)

		errBoom := errors.New("boom")
		err := s.Transact(ctx, func(tx store.Store) error {
			if err := tx.UpsertEscrow(ctx, &store.Escrow{AuctionID: auction.ID, Bidder: "gv1aaa", Amount: 999}); err != nil {
				return err
			}
			if err := tx.InsertEvent(ctx, &store.Event{AuctionID: auction.ID, Kind: store.EventKindBid, Actor: "gv1aaa", Amount: 999}); err != nil {
				return err
			}
			a, err := tx.SelectAuction(ctx, auction.ID)
			if err != nil {
				return err
			}
			a.HighestBidder = "gv1aaa"
			a.HighestBindingBid = 999
			if err := tx.UpdateAuction(ctx, a); err != nil {
				return err
			}
			return errBoom
		})
		if !errors.Is(err, errBoom) {
			t.Fatalf("transact err: want %v, have %v", errBoom, err)
		}

		escrow, err := s.SelectEscrow(ctx, auction.ID, "gv1aaa")
		if err != nil {
			t.Fatal(err)
		}
		if want, have := int64(100), escrow.Amount; want != have {
			t.Fatalf("rolled-back escrow amount: want %d, have %d", want, have)
		}

		a, err := s.SelectAuction(ctx, auction.ID)
		if err != nil {
			t.Fatal(err)
		}
		if a.HighestBidder != "" || a.HighestBindingBid != 0 {
			t.Fatalf("rolled-back auction was mutated: %+v", a)
		}

		events, err := s.ListEvents(ctx, auction.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 0 {
			t.Fatalf("rolled-back events were recorded: %d", len(events))
		}
	})
}
