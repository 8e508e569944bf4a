package storetest

import (
	"context"
	"fmt"
	"testing"

	"gavel/cryptoutil"
	"gavel/store"
)

const (
	BidIncrement = 10
	StartBlock   = 100
	EndBlock     = 200
)

func GenAddr(t *testing.T) string {
	t.Helper()

	return fmt.Sprintf("gv1%s", cryptoutil.RandomHex(20))
}

func NewAuction(t *testing.T, s store.Store) *store.Auction {
	t.Helper()

	owner := GenAddr(t)
	a := &store.Auction{
		Owner:        owner,
		BidIncrement: BidIncrement,
		StartBlock:   StartBlock,
		EndBlock:     EndBlock,
		MetadataRef:  cryptoutil.ContentRef([]byte(owner)),
	}

	if err := s.InsertAuction(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	return a
}

func NewEscrow(t *testing.T, s store.Store, a *store.Auction, bidder string, amount int64) *store.Escrow {
	t.Helper()

	e := &store.Escrow{
		AuctionID: a.ID,
		Bidder:    bidder,
		Amount:    amount,
	}

	if err := s.UpsertEscrow(context.Background(), e); err != nil {
		t.Fatal(err)
	}

	return e
}

func NewEvent(t *testing.T, s store.Store, a *store.Auction, kind store.EventKind, actor string, amount int64) *store.Event {
	t.Helper()

	e := &store.Event{
		AuctionID:         a.ID,
		Kind:              kind,
		Actor:             actor,
		Amount:            amount,
		HighestBidder:     a.HighestBidder,
		HighestBindingBid: a.HighestBindingBid,
	}

	if err := s.InsertEvent(context.Background(), e); err != nil {
		t.Fatal(err)
	}

	return e
}
