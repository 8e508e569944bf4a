package auction_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"gavel/auction"
)

// TestInvariants runs randomized bid sequences and checks the properties
// that hold for every auction regardless of bid order: the binding bid never
// exceeds the leader's escrow, never decreases while the auction is active,
// the owner never leads, and every unit deposited is eventually either
// refunded or paid to the owner, exactly once.
func TestInvariants(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(0x6a77656c))

	bidders := []string{alice, bob, carol, "gv1dave", "gv1erin"}

	for round := 0; round < 20; round++ {
		svc, c, s := newTestService(t, 50)
		a := newTestAuction(t, svc)
		c.SetHeight(100)

		var (
			deposited   int64
			lastBinding int64
		)

		for i, n := 0, 5+rng.Intn(20); i < n; i++ {
			var (
				bidder = bidders[rng.Intn(len(bidders))]
				amount = int64(1 + rng.Intn(200))
			)

			ev, err := svc.PlaceBid(ctx, a.ID.String(), bidder, amount, nil)
			switch {
			case errors.Is(err, auction.ErrBidTooLow):
				continue
			case err != nil:
				t.Fatalf("round %d: bid %s/%d: %v", round, bidder, amount, err)
			}

			deposited += amount

			if ev.HighestBidder == owner {
				t.Fatalf("round %d: owner took the lead", round)
			}
			if ev.HighestBindingBid < lastBinding {
				t.Fatalf("round %d: binding bid decreased %d -> %d", round, lastBinding, ev.HighestBindingBid)
			}
			lastBinding = ev.HighestBindingBid

			leaderBalance, err := svc.EscrowBalance(ctx, a.ID.String(), ev.HighestBidder)
			if err != nil {
				t.Fatal(err)
			}
			if ev.HighestBindingBid > leaderBalance {
				t.Fatalf("round %d: binding bid %d exceeds leader balance %d", round, ev.HighestBindingBid, leaderBalance)
			}

			checkConservation(t, s, c, a, deposited)
		}

		c.SetHeight(201)

		// Everyone, owner included, withdraws in random order. Repeat
		// attempts must not mint value.
		callers := append([]string{owner, owner}, bidders...)
		callers = append(callers, bidders...)
		rng.Shuffle(len(callers), func(i, j int) { callers[i], callers[j] = callers[j], callers[i] })

		for _, caller := range callers {
			if _, err := svc.Withdraw(ctx, a.ID.String(), caller); err != nil && !errors.Is(err, auction.ErrNothingToWithdraw) {
				t.Fatalf("round %d: withdraw %s: %v", round, caller, err)
			}
			checkConservation(t, s, c, a, deposited)
		}

		// After the dust settles everything must have been paid out.
		var paid int64
		for _, tr := range c.Transfers() {
			paid += tr.Amount
		}
		if deposited != paid {
			t.Fatalf("round %d: deposited %d but paid out %d", round, deposited, paid)
		}
	}
}
