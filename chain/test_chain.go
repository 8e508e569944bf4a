package chain

import (
	"context"
	"sync"
)

// TestChain is an in-memory Chain for tests. Height is mutable so tests can
// walk an auction through its phases, and TransferFunc lets tests inject
// payout failures or re-entrant calls.
type TestChain struct {
	mtx          sync.Mutex
	chainID      string
	height       int64
	badDeposits  map[string]bool
	transfers    []TestTransfer
	TransferFunc func(ctx context.Context, addr string, amount int64) error
}

var _ Chain = (*TestChain)(nil)

type TestTransfer struct {
	Addr   string
	Amount int64
}

func NewTestChain(chainID string, height int64) *TestChain {
	return &TestChain{
		chainID:     chainID,
		height:      height,
		badDeposits: map[string]bool{},
	}
}

func (c *TestChain) ID() string {
	return c.chainID
}

func (c *TestChain) LatestHeight(ctx context.Context) (int64, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.height, nil
}

func (c *TestChain) VerifyDeposit(ctx context.Context, depositTx []byte, addr string, amount int64) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.badDeposits[string(depositTx)] {
		return ErrNoDeposit
	}
	return nil
}

func (c *TestChain) Transfer(ctx context.Context, addr string, amount int64) error {
	c.mtx.Lock()
	f := c.TransferFunc
	c.mtx.Unlock()

	if f != nil {
		if err := f(ctx, addr, amount); err != nil {
			return err
		}
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.transfers = append(c.transfers, TestTransfer{Addr: addr, Amount: amount})
	return nil
}

// SetHeight moves the chain to the given height.
func (c *TestChain) SetHeight(h int64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.height = h
}

// RejectDeposit makes VerifyDeposit fail for the given transaction bytes.
func (c *TestChain) RejectDeposit(depositTx []byte) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.badDeposits[string(depositTx)] = true
}

// Transfers returns a copy of every successful transfer so far.
func (c *TestChain) Transfers() []TestTransfer {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	ts := make([]TestTransfer, len(c.transfers))
	copy(ts, c.transfers)
	return ts
}
