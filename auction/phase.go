package auction

import (
	"gavel/store"
)

// Phase is the lifecycle state of an auction at some block height.
type Phase string

const (
	PhasePending  Phase = "pending"
	PhaseActive   Phase = "active"
	PhaseEnded    Phase = "ended"
	PhaseCanceled Phase = "canceled"
)

// PhaseAt derives the phase of an auction at the given height. The canceled
// latch wins over any height comparison.
func PhaseAt(height int64, a *store.Auction) Phase {
	switch {
	case a.Canceled:
		return PhaseCanceled
	case height < a.StartBlock:
		return PhasePending
	case height <= a.EndBlock:
		return PhaseActive
	default:
		return PhaseEnded
	}
}

// Concluded reports whether funds may leave the auction.
func (p Phase) Concluded() bool {
	return p == PhaseEnded || p == PhaseCanceled
}
