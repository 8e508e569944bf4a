package auction

import (
	"context"
	"errors"
	"fmt"

	"gavel/chain"
	"gavel/cryptoutil"
	"gavel/metrics"
	"gavel/store"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gofrs/uuid"
	"golang.org/x/sync/errgroup"
)

// These type aliases are quick and hacky way to ensure that the API of
// `package auction` doesn't include types defined in `package store`.
type (
	Auction = store.Auction
	Escrow  = store.Escrow
	Event   = store.Event
)

type Service interface {
	ChainID() string
	LatestHeight(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	CreateAuction(ctx context.Context, owner string, bidIncrement, startBlock, endBlock int64, metadataRef string) (*Auction, error)
	Auction(ctx context.Context, id string) (*Auction, error)
	ListAuctions(ctx context.Context) ([]*Auction, error)
	PlaceBid(ctx context.Context, id, bidder string, amount int64, depositTx []byte) (*Event, error)
	Cancel(ctx context.Context, id, caller string) error
	Withdraw(ctx context.Context, id, caller string) (*Event, error)
	EscrowBalance(ctx context.Context, id, bidder string) (int64, error)
	Events(ctx context.Context, id string) ([]*Event, error)
}

//
//
//

type MockService struct {
	ChainIDFunc       func() string
	LatestHeightFunc  func(ctx context.Context) (int64, error)
	PingFunc          func(ctx context.Context) error
	CreateAuctionFunc func(ctx context.Context, owner string, bidIncrement, startBlock, endBlock int64, metadataRef string) (*Auction, error)
	AuctionFunc       func(ctx context.Context, id string) (*Auction, error)
	ListAuctionsFunc  func(ctx context.Context) ([]*Auction, error)
	PlaceBidFunc      func(ctx context.Context, id, bidder string, amount int64, depositTx []byte) (*Event, error)
	CancelFunc        func(ctx context.Context, id, caller string) error
	WithdrawFunc      func(ctx context.Context, id, caller string) (*Event, error)
	EscrowBalanceFunc func(ctx context.Context, id, bidder string) (int64, error)
	EventsFunc        func(ctx context.Context, id string) ([]*Event, error)
}

func NewMockServiceErr(chainID string, err error) *MockService {
	return &MockService{
		ChainIDFunc: func() string {
			return chainID
		},
		LatestHeightFunc: func(ctx context.Context) (int64, error) {
			return 0, err
		},
		PingFunc: func(ctx context.Context) error {
			return err
		},
		CreateAuctionFunc: func(ctx context.Context, owner string, bidIncrement, startBlock, endBlock int64, metadataRef string) (*Auction, error) {
			return nil, err
		},
		AuctionFunc: func(ctx context.Context, id string) (*Auction, error) {
			return nil, err
		},
		ListAuctionsFunc: func(ctx context.Context) ([]*Auction, error) {
			return nil, err
		},
		PlaceBidFunc: func(ctx context.Context, id, bidder string, amount int64, depositTx []byte) (*Event, error) {
			return nil, err
		},
		CancelFunc: func(ctx context.Context, id, caller string) error {
			return err
		},
		WithdrawFunc: func(ctx context.Context, id, caller string) (*Event, error) {
			return nil, err
		},
		EscrowBalanceFunc: func(ctx context.Context, id, bidder string) (int64, error) {
			return 0, err
		},
		EventsFunc: func(ctx context.Context, id string) ([]*Event, error) {
			return nil, err
		},
	}
}

func (m *MockService) ChainID() string {
	return m.ChainIDFunc()
}

func (m *MockService) LatestHeight(ctx context.Context) (int64, error) {
	return m.LatestHeightFunc(ctx)
}

func (m *MockService) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}

func (m *MockService) CreateAuction(ctx context.Context, owner string, bidIncrement, startBlock, endBlock int64, metadataRef string) (*Auction, error) {
	return m.CreateAuctionFunc(ctx, owner, bidIncrement, startBlock, endBlock, metadataRef)
}

func (m *MockService) Auction(ctx context.Context, id string) (*Auction, error) {
	return m.AuctionFunc(ctx, id)
}

func (m *MockService) ListAuctions(ctx context.Context) ([]*Auction, error) {
	return m.ListAuctionsFunc(ctx)
}

func (m *MockService) PlaceBid(ctx context.Context, id, bidder string, amount int64, depositTx []byte) (*Event, error) {
	return m.PlaceBidFunc(ctx, id, bidder, amount, depositTx)
}

func (m *MockService) Cancel(ctx context.Context, id, caller string) error {
	return m.CancelFunc(ctx, id, caller)
}

func (m *MockService) Withdraw(ctx context.Context, id, caller string) (*Event, error) {
	return m.WithdrawFunc(ctx, id, caller)
}

func (m *MockService) EscrowBalance(ctx context.Context, id, bidder string) (int64, error) {
	return m.EscrowBalanceFunc(ctx, id, bidder)
}

func (m *MockService) Events(ctx context.Context, id string) ([]*Event, error) {
	return m.EventsFunc(ctx, id)
}

//
//
//

type CoreService struct {
	chain  chain.Chain
	store  store.Store
	logger log.Logger
}

var _ Service = (*CoreService)(nil)

func NewCoreService(c chain.Chain, s store.Store, logger log.Logger) *CoreService {
	return &CoreService{
		chain:  c,
		store:  s,
		logger: logger,
	}
}

func (s *CoreService) ChainID() string {
	return s.chain.ID()
}

func (s *CoreService) LatestHeight(ctx context.Context) (int64, error) {
	return s.chain.LatestHeight(ctx)
}

func (s *CoreService) Ping(ctx context.Context) error {
	var eg errgroup.Group

	eg.Go(func() error {
		if err := s.store.Ping(ctx); err != nil {
			return fmt.Errorf("ping store: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		if _, err := s.chain.LatestHeight(ctx); err != nil {
			return fmt.Errorf("ping chain: %w", err)
		}
		return nil
	})

	return eg.Wait()
}

func (s *CoreService) CreateAuction(ctx context.Context, owner string, bidIncrement, startBlock, endBlock int64, metadataRef string) (_ *Auction, err error) {
	defer func() {
		result := boolString(err == nil, "success", "error")
		metrics.CreateRequestsTotal.WithLabelValues(s.chain.ID(), result).Inc()
	}()

	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidConfig)
	}

	if bidIncrement <= 0 {
		return nil, fmt.Errorf("%w: bid increment %d must be positive", ErrInvalidConfig, bidIncrement)
	}

	if startBlock >= endBlock {
		return nil, fmt.Errorf("%w: start block %d must precede end block %d", ErrInvalidConfig, startBlock, endBlock)
	}

	if metadataRef != "" {
		if err := cryptoutil.ValidateContentRef(metadataRef); err != nil {
			return nil, fmt.Errorf("%w: metadata ref: %s", ErrInvalidConfig, err)
		}
	}

	height, err := s.chain.LatestHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest height: %w", err)
	}

	if startBlock <= height {
		return nil, fmt.Errorf("%w: start block %d is not above current height %d", ErrInvalidConfig, startBlock, height)
	}

	auction := &Auction{
		Owner:        owner,
		BidIncrement: bidIncrement,
		StartBlock:   startBlock,
		EndBlock:     endBlock,
		MetadataRef:  metadataRef,
	}

	if err := s.store.Transact(ctx, func(tx store.Store) error {
		if err := tx.InsertAuction(ctx, auction); err != nil {
			return fmt.Errorf("insert auction: %w", err)
		}

		all, err := tx.ListAuctions(ctx)
		if err != nil {
			return fmt.Errorf("count auctions: %w", err)
		}

		event := &Event{
			AuctionID:    auction.ID,
			Kind:         store.EventKindCreated,
			Actor:        owner,
			AuctionCount: int64(len(all)),
		}
		if err := tx.InsertEvent(ctx, event); err != nil {
			return fmt.Errorf("record event: %w", err)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	level.Debug(s.logger).Log("op", "CreateAuction", "auction_id", auction.ID, "owner", owner, "start", startBlock, "end", endBlock)

	return auction, nil
}

func (s *CoreService) Auction(ctx context.Context, id string) (*Auction, error) {
	auctionID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	return s.store.SelectAuction(ctx, auctionID)
}

func (s *CoreService) ListAuctions(ctx context.Context) ([]*Auction, error) {
	return s.store.ListAuctions(ctx)
}

func (s *CoreService) PlaceBid(ctx context.Context, id, bidder string, amount int64, depositTx []byte) (_ *Event, err error) {
	defer func() {
		result := boolString(err == nil, "success", "error")
		metrics.BidsSubmittedTotal.WithLabelValues(s.chain.ID(), result).Inc()
		if err == nil {
			metrics.DepositsTotal.WithLabelValues(s.chain.ID()).Add(float64(amount))
		}
	}()

	auctionID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	height, err := s.chain.LatestHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest height: %w", err)
	}

	var event *Event
	if err := s.store.Transact(ctx, func(tx store.Store) error {
		auction, err := tx.SelectAuction(ctx, auctionID)
		if err != nil {
			return fmt.Errorf("fetch auction: %w", err)
		}

		if phase := PhaseAt(height, auction); phase != PhaseActive {
			return fmt.Errorf("%s at height %d: %w", phase, height, ErrAuctionNotActive)
		}

		if bidder == auction.Owner {
			return ErrOwnerCannotBid
		}

		if amount <= 0 {
			return fmt.Errorf("%w: amount %d must be positive", ErrBidTooLow, amount)
		}

		balance, err := escrowBalance(ctx, tx, auctionID, bidder)
		if err != nil {
			return fmt.Errorf("fetch escrow: %w", err)
		}

		total := balance + amount
		if total <= auction.HighestBindingBid {
			return fmt.Errorf("%w: total %d does not beat binding bid %d", ErrBidTooLow, total, auction.HighestBindingBid)
		}

		if err := s.chain.VerifyDeposit(ctx, depositTx, bidder, amount); err != nil {
			return fmt.Errorf("verify deposit: %w", err)
		}

		if err := tx.UpsertEscrow(ctx, &Escrow{AuctionID: auctionID, Bidder: bidder, Amount: total}); err != nil {
			return fmt.Errorf("credit escrow: %w", err)
		}

		escrows, err := tx.ListEscrows(ctx, auctionID)
		if err != nil {
			return fmt.Errorf("list escrows: %w", err)
		}

		st := computeStanding(escrows, auction.HighestBidder, auction.HighestBindingBid, auction.BidIncrement)

		auction.HighestBidder = st.Leader
		auction.HighestBindingBid = st.Binding
		if err := tx.UpdateAuction(ctx, auction); err != nil {
			return fmt.Errorf("update auction: %w", err)
		}

		event = &Event{
			AuctionID:         auctionID,
			Kind:              store.EventKindBid,
			Actor:             bidder,
			Amount:            amount,
			HighestBidder:     st.Leader,
			HighestBindingBid: st.Binding,
		}
		if err := tx.InsertEvent(ctx, event); err != nil {
			return fmt.Errorf("record event: %w", err)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	level.Debug(s.logger).Log("op", "PlaceBid", "auction_id", id, "bidder", bidder, "amount", amount, "leader", event.HighestBidder, "binding", event.HighestBindingBid)

	return event, nil
}

func (s *CoreService) Cancel(ctx context.Context, id, caller string) (err error) {
	defer func() {
		result := boolString(err == nil, "success", "error")
		metrics.CancelRequestsTotal.WithLabelValues(s.chain.ID(), result).Inc()
	}()

	auctionID, err := parseID(id)
	if err != nil {
		return err
	}

	height, err := s.chain.LatestHeight(ctx)
	if err != nil {
		return fmt.Errorf("get latest height: %w", err)
	}

	if err := s.store.Transact(ctx, func(tx store.Store) error {
		auction, err := tx.SelectAuction(ctx, auctionID)
		if err != nil {
			return fmt.Errorf("fetch auction: %w", err)
		}

		if caller != auction.Owner {
			return ErrNotOwner
		}

		if auction.Canceled {
			return ErrAlreadyCanceled
		}

		if PhaseAt(height, auction) == PhaseEnded {
			return fmt.Errorf("ended at height %d: %w", height, ErrAuctionNotActive)
		}

		auction.Canceled = true
		if err := tx.UpdateAuction(ctx, auction); err != nil {
			return fmt.Errorf("update auction: %w", err)
		}

		event := &Event{
			AuctionID: auctionID,
			Kind:      store.EventKindCanceled,
			Actor:     caller,
		}
		if err := tx.InsertEvent(ctx, event); err != nil {
			return fmt.Errorf("record event: %w", err)
		}

		return nil
	}); err != nil {
		return err
	}

	level.Debug(s.logger).Log("op", "Cancel", "auction_id", id, "caller", caller)

	return nil
}

func (s *CoreService) Withdraw(ctx context.Context, id, caller string) (_ *Event, err error) {
	defer func() {
		result := boolString(err == nil, "success", "error")
		metrics.WithdrawalsTotal.WithLabelValues(s.chain.ID(), result).Inc()
	}()

	auctionID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	height, err := s.chain.LatestHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest height: %w", err)
	}

	var event *Event
	if err := s.store.Transact(ctx, func(tx store.Store) error {
		auction, err := tx.SelectAuction(ctx, auctionID)
		if err != nil {
			return fmt.Errorf("fetch auction: %w", err)
		}

		phase := PhaseAt(height, auction)
		if !phase.Concluded() {
			return fmt.Errorf("%s at height %d: %w", phase, height, ErrAuctionNotConcluded)
		}

		entitlement, err := settleEntitlement(ctx, tx, auction, phase, caller)
		if err != nil {
			return err
		}

		event = &Event{
			AuctionID: auctionID,
			Kind:      store.EventKindWithdrawal,
			Actor:     caller,
			Amount:    entitlement,
		}
		if err := tx.InsertEvent(ctx, event); err != nil {
			return fmt.Errorf("record event: %w", err)
		}

		// The external transfer is the very last step. Every ledger mutation
		// above is already applied within this transaction, so a re-entrant
		// call observes a settled ledger, and a failed transfer rolls back
		// the entire withdrawal.
		if err := s.chain.Transfer(ctx, caller, entitlement); err != nil {
			return fmt.Errorf("%w: %s", chain.ErrTransferFailed, err)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	metrics.PayoutsTotal.WithLabelValues(s.chain.ID()).Add(float64(event.Amount))

	level.Debug(s.logger).Log("op", "Withdraw", "auction_id", id, "caller", caller, "amount", event.Amount)

	return event, nil
}

func (s *CoreService) EscrowBalance(ctx context.Context, id, bidder string) (int64, error) {
	auctionID, err := parseID(id)
	if err != nil {
		return 0, err
	}

	if _, err := s.store.SelectAuction(ctx, auctionID); err != nil {
		return 0, fmt.Errorf("fetch auction: %w", err)
	}

	return escrowBalance(ctx, s.store, auctionID, bidder)
}

func (s *CoreService) Events(ctx context.Context, id string) ([]*Event, error) {
	auctionID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.SelectAuction(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("fetch auction: %w", err)
	}

	return s.store.ListEvents(ctx, auctionID)
}

//
//
//

// settleEntitlement computes how much the caller may take out of a concluded
// auction, and applies the corresponding ledger mutations. The owner's claim
// on the binding price is debited from the winner's escrow row the moment
// either party collects, so escrow rows always reflect what is still owed.
func settleEntitlement(ctx context.Context, tx store.Store, auction *Auction, phase Phase, caller string) (int64, error) {
	balance, err := escrowBalance(ctx, tx, auction.ID, caller)
	if err != nil {
		return 0, fmt.Errorf("fetch escrow: %w", err)
	}

	var (
		isOwner  = caller == auction.Owner
		isWinner = auction.HighestBidder != "" && caller == auction.HighestBidder
	)

	switch {
	case phase == PhaseCanceled:
		// Everyone gets a full refund.
		if balance <= 0 {
			return 0, ErrNothingToWithdraw
		}
		if err := tx.UpsertEscrow(ctx, &Escrow{AuctionID: auction.ID, Bidder: caller, Amount: 0}); err != nil {
			return 0, fmt.Errorf("zero escrow: %w", err)
		}
		return balance, nil

	case isOwner:
		// The owner collects the binding price, exactly once, out of the
		// winner's escrow.
		if auction.OwnerHasWithdrawn || auction.HighestBidder == "" || auction.HighestBindingBid <= 0 {
			return 0, ErrNothingToWithdraw
		}

		winnerBalance, err := escrowBalance(ctx, tx, auction.ID, auction.HighestBidder)
		if err != nil {
			return 0, fmt.Errorf("fetch winner escrow: %w", err)
		}

		proceeds := auction.HighestBindingBid
		if err := tx.UpsertEscrow(ctx, &Escrow{AuctionID: auction.ID, Bidder: auction.HighestBidder, Amount: winnerBalance - proceeds}); err != nil {
			return 0, fmt.Errorf("debit winner escrow: %w", err)
		}

		auction.OwnerHasWithdrawn = true
		if err := tx.UpdateAuction(ctx, auction); err != nil {
			return 0, fmt.Errorf("update auction: %w", err)
		}

		return proceeds, nil

	case isWinner:
		// The winner takes back everything above the binding price. The
		// binding price itself stays in escrow until the owner collects it.
		owed := int64(0)
		if !auction.OwnerHasWithdrawn {
			owed = auction.HighestBindingBid
		}

		refund := balance - owed
		if refund <= 0 {
			return 0, ErrNothingToWithdraw
		}

		if err := tx.UpsertEscrow(ctx, &Escrow{AuctionID: auction.ID, Bidder: caller, Amount: owed}); err != nil {
			return 0, fmt.Errorf("reduce escrow: %w", err)
		}

		return refund, nil

	default:
		// Any other bidder gets a full refund.
		if balance <= 0 {
			return 0, ErrNothingToWithdraw
		}
		if err := tx.UpsertEscrow(ctx, &Escrow{AuctionID: auction.ID, Bidder: caller, Amount: 0}); err != nil {
			return 0, fmt.Errorf("zero escrow: %w", err)
		}
		return balance, nil
	}
}

func escrowBalance(ctx context.Context, s store.Store, auctionID uuid.UUID, bidder string) (int64, error) {
	e, err := s.SelectEscrow(ctx, auctionID, bidder)
	switch {
	case err == nil:
		return e.Amount, nil
	case errors.Is(err, store.ErrNotFound):
		return 0, nil
	default:
		return 0, err
	}
}

func parseID(id string) (uuid.UUID, error) {
	auctionID, err := uuid.FromString(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("auction %q: %w", id, store.ErrNotFound)
	}
	return auctionID, nil
}
