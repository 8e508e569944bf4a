package store

import (
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid"
)

type Auction struct {
	ID                uuid.UUID
	Owner             string
	BidIncrement      int64
	StartBlock        int64
	EndBlock          int64
	MetadataRef       string
	Canceled          bool
	HighestBidder     string
	HighestBindingBid int64
	OwnerHasWithdrawn bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Escrow is one bidder's cumulative escrowed balance in one auction. An
// absent row means zero. The sum over all rows, plus completed payouts,
// always equals the total deposited into the auction.
type Escrow struct {
	AuctionID uuid.UUID
	Bidder    string
	Amount    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Event struct {
	ID                uuid.UUID
	AuctionID         uuid.UUID
	Kind              EventKind
	Actor             string
	Amount            int64
	HighestBidder     string
	HighestBindingBid int64
	AuctionCount      int64
	CreatedAt         time.Time
}

type EventKind string

const (
	EventKindCreated    EventKind = "created"
	EventKindBid        EventKind = "bid"
	EventKindCanceled   EventKind = "canceled"
	EventKindWithdrawal EventKind = "withdrawal"
)

func ParseEventKind(s string) EventKind {
	switch strings.ToLower(s) {
	case string(EventKindCreated):
		return EventKindCreated
	case string(EventKindCanceled):
		return EventKindCanceled
	case string(EventKindWithdrawal):
		return EventKindWithdrawal
	default:
		return EventKindBid
	}
}

var ErrNotFound = errors.New("not found")
