package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gavel/store"

	"github.com/gofrs/uuid"
)

// Store is an in-memory store.Store. Transact runs against a deep copy of
// the data set and swaps it in only on success, so a failed transaction
// leaves no trace.
type Store struct {
	mu   sync.Mutex
	data *data
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		data: newData(),
	}
}

func (s *Store) Transact(ctx context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&txStore{data: work}); err != nil {
		return err
	}

	s.data = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) InsertAuction(ctx context.Context, a *store.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return (&txStore{data: s.data}).InsertAuction(ctx, a)
}

func (s *Store) UpdateAuction(ctx context.Context, a *store.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return (&txStore{data: s.data}).UpdateAuction(ctx, a)
}

func (s *Store) SelectAuction(ctx context.Context, id uuid.UUID) (*store.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return (&txStore{data: s.data}).SelectAuction(ctx, id)
}

func (s *Store) ListAuctions(ctx context.Context) ([]*store.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return (&txStore{data: s.data}).ListAuctions(ctx)
}

func (s *Store) UpsertEscrow(ctx context.Context, e *store.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return (&txStore{data: s.data}).UpsertEscrow(ctx, e)
}

func (s *Store) SelectEscrow(ctx context.Context, auctionID uuid.UUID, bidder string) (*store.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return (&txStore{data: s.data}).SelectEscrow(ctx, auctionID, bidder)
}

func (s *Store) ListEscrows(ctx context.Context, auctionID uuid.UUID) ([]*store.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return (&txStore{data: s.data}).ListEscrows(ctx, auctionID)
}

func (s *Store) InsertEvent(ctx context.Context, e *store.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return (&txStore{data: s.data}).InsertEvent(ctx, e)
}

func (s *Store) ListEvents(ctx context.Context, auctionID uuid.UUID) ([]*store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return (&txStore{data: s.data}).ListEvents(ctx, auctionID)
}

//
//
//

type data struct {
	auctions []*store.Auction // insertion order
	byID     map[uuid.UUID]*store.Auction
	escrows  map[escrowKey]*store.Escrow
	events   map[uuid.UUID][]*store.Event
}

type escrowKey struct {
	auctionID uuid.UUID
	bidder    string
}

func newData() *data {
	return &data{
		byID:    map[uuid.UUID]*store.Auction{},
		escrows: map[escrowKey]*store.Escrow{},
		events:  map[uuid.UUID][]*store.Event{},
	}
}

func (d *data) clone() *data {
	c := newData()

	c.auctions = make([]*store.Auction, 0, len(d.auctions))
	for _, a := range d.auctions {
		aa := *a
		c.auctions = append(c.auctions, &aa)
		c.byID[aa.ID] = &aa
	}

	for k, e := range d.escrows {
		ee := *e
		c.escrows[k] = &ee
	}

	for id, evs := range d.events {
		cp := make([]*store.Event, 0, len(evs))
		for _, ev := range evs {
			evv := *ev
			cp = append(cp, &evv)
		}
		c.events[id] = cp
	}

	return c
}

// txStore operates directly on a data set. The owning Store provides
// locking and commit semantics.
type txStore struct {
	data *data
}

var _ store.Store = (*txStore)(nil)

func (s *txStore) Transact(ctx context.Context, fn func(store.Store) error) error {
	work := s.data.clone()
	if err := fn(&txStore{data: work}); err != nil {
		return err
	}

	*s.data = *work
	return nil
}

func (s *txStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txStore) InsertAuction(ctx context.Context, a *store.Auction) error {
	var err error
	if a.ID, err = uuid.NewV4(); err != nil {
		return fmt.Errorf("generate auction ID: %w", err)
	}

	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt

	newAuction := *a
	s.data.auctions = append(s.data.auctions, &newAuction)
	s.data.byID[newAuction.ID] = &newAuction

	return nil
}

func (s *txStore) UpdateAuction(ctx context.Context, a *store.Auction) error {
	existing := s.data.byID[a.ID]
	if existing == nil {
		return store.ErrNotFound
	}

	existing.Canceled = a.Canceled
	existing.HighestBidder = a.HighestBidder
	existing.HighestBindingBid = a.HighestBindingBid
	existing.OwnerHasWithdrawn = a.OwnerHasWithdrawn
	existing.UpdatedAt = time.Now().UTC()

	return nil
}

func (s *txStore) SelectAuction(ctx context.Context, id uuid.UUID) (*store.Auction, error) {
	a := s.data.byID[id]
	if a == nil {
		return nil, store.ErrNotFound
	}

	aa := *a
	return &aa, nil
}

func (s *txStore) ListAuctions(ctx context.Context) ([]*store.Auction, error) {
	as := make([]*store.Auction, 0, len(s.data.auctions))
	for _, a := range s.data.auctions {
		aa := *a
		as = append(as, &aa)
	}

	return as, nil
}

func (s *txStore) UpsertEscrow(ctx context.Context, e *store.Escrow) error {
	key := escrowKey{e.AuctionID, e.Bidder}

	existing := s.data.escrows[key]
	if existing != nil { // update
		existing.Amount = e.Amount
		existing.UpdatedAt = time.Now().UTC()
		return nil
	}

	// create
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt
	newEscrow := *e
	s.data.escrows[key] = &newEscrow

	return nil
}

func (s *txStore) SelectEscrow(ctx context.Context, auctionID uuid.UUID, bidder string) (*store.Escrow, error) {
	e := s.data.escrows[escrowKey{auctionID, bidder}]
	if e == nil {
		return nil, store.ErrNotFound
	}

	ee := *e
	return &ee, nil
}

func (s *txStore) ListEscrows(ctx context.Context, auctionID uuid.UUID) ([]*store.Escrow, error) {
	var es []*store.Escrow
	for key, e := range s.data.escrows {
		if key.auctionID == auctionID {
			ee := *e
			es = append(es, &ee)
		}
	}

	sort.SliceStable(es, func(i, j int) bool {
		return es[i].Bidder < es[j].Bidder
	})

	return es, nil
}

func (s *txStore) InsertEvent(ctx context.Context, e *store.Event) error {
	var err error
	if e.ID, err = uuid.NewV4(); err != nil {
		return fmt.Errorf("generate event ID: %w", err)
	}

	e.CreatedAt = time.Now().UTC()

	newEvent := *e
	s.data.events[e.AuctionID] = append(s.data.events[e.AuctionID], &newEvent)

	return nil
}

func (s *txStore) ListEvents(ctx context.Context, auctionID uuid.UUID) ([]*store.Event, error) {
	evs := s.data.events[auctionID]

	cp := make([]*store.Event, 0, len(evs))
	for _, ev := range evs {
		evv := *ev
		cp = append(cp, &evv)
	}

	return cp, nil
}
