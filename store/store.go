package store

import (
	"context"

	"github.com/gofrs/uuid"
)

type Store interface {
	Transact(context.Context, func(Store) error) error

	Ping(ctx context.Context) error

	InsertAuction(ctx context.Context, a *Auction) error
	UpdateAuction(ctx context.Context, a *Auction) error
	SelectAuction(ctx context.Context, id uuid.UUID) (*Auction, error)
	ListAuctions(ctx context.Context) ([]*Auction, error)

	UpsertEscrow(ctx context.Context, e *Escrow) error
	SelectEscrow(ctx context.Context, auctionID uuid.UUID, bidder string) (*Escrow, error)
	ListEscrows(ctx context.Context, auctionID uuid.UUID) ([]*Escrow, error)

	InsertEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, auctionID uuid.UUID) ([]*Event, error)
}
