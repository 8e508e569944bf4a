package auction

import (
	"gavel/store"
)

// standing is the derived competitive state of an auction: who leads, and
// the price the leader is actually on the hook for.
type standing struct {
	Leader  string
	Binding int64
}

// computeStanding derives the standing from the full escrow ledger of an
// auction. The leader is the bidder with the greatest cumulative balance,
// with the incumbent keeping the lead on equal balances. The binding price
// is the second-highest balance plus one increment, capped at the leader's
// own balance, and never decreasing below the prior binding price.
func computeStanding(escrows []*store.Escrow, incumbent string, priorBinding, bidIncrement int64) standing {
	var (
		leader      string
		leaderBal   int64
		runnerUpBal int64
	)

	// The incumbent is considered first, so any challenger must strictly
	// exceed their balance to take the lead.
	for _, pass := range []int{0, 1} {
		for _, e := range escrows {
			isIncumbent := e.Bidder == incumbent
			if (pass == 0) != isIncumbent {
				continue
			}
			switch {
			case e.Amount > leaderBal || leader == "":
				if leader != "" && leaderBal > runnerUpBal {
					runnerUpBal = leaderBal
				}
				leader, leaderBal = e.Bidder, e.Amount
			case e.Amount > runnerUpBal:
				runnerUpBal = e.Amount
			}
		}
	}

	if leader == "" {
		return standing{Binding: priorBinding}
	}

	binding := runnerUpBal + bidIncrement
	if binding > leaderBal {
		binding = leaderBal
	}
	if binding < priorBinding {
		binding = priorBinding
	}

	return standing{Leader: leader, Binding: binding}
}
