package chain

import (
	"context"
	"errors"
)

var (
	ErrNoDeposit      = errors.New("no deposit")
	ErrTransferFailed = errors.New("transfer failed")
)

// Chain models the settlement chain that escrow deposits arrive on and
// payouts leave on. Block height drives auction phases.
type Chain interface {
	ID() string
	LatestHeight(ctx context.Context) (int64, error)

	// VerifyDeposit checks that the given transaction escrowed exactly
	// amount from addr into the service's custody. ErrNoDeposit if not.
	VerifyDeposit(ctx context.Context, depositTx []byte, addr string, amount int64) error

	// Transfer pays amount out of custody to addr. Callers are expected to
	// commit their own bookkeeping before invoking Transfer, and to abort
	// it entirely if Transfer fails.
	Transfer(ctx context.Context, addr string, amount int64) error
}
