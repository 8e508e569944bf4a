package auction

import (
	"testing"

	"gavel/store"
)

func TestComputeStanding(t *testing.T) {
	ledger := func(pairs ...any) []*store.Escrow {
		var es []*store.Escrow
		for i := 0; i < len(pairs); i += 2 {
			es = append(es, &store.Escrow{
				Bidder: pairs[i].(string),
				Amount: int64(pairs[i+1].(int)),
			})
		}
		return es
	}

	for _, testcase := range []struct {
		name         string
		escrows      []*store.Escrow
		incumbent    string
		priorBinding int64
		increment    int64
		wantLeader   string
		wantBinding  int64
	}{
		{
			name:        "first bid",
			escrows:     ledger("alice", 100),
			increment:   10,
			wantLeader:  "alice",
			wantBinding: 10,
		},
		{
			name:         "challenger takes the lead",
			escrows:      ledger("alice", 100, "bob", 150),
			incumbent:    "alice",
			priorBinding: 10,
			increment:    10,
			wantLeader:   "bob",
			wantBinding:  110,
		},
		{
			name:         "binding capped at leader balance",
			escrows:      ledger("alice", 100, "bob", 105),
			incumbent:    "alice",
			priorBinding: 10,
			increment:    10,
			wantLeader:   "bob",
			wantBinding:  105,
		},
		{
			name:         "incumbent keeps lead on equal balance",
			escrows:      ledger("alice", 100, "bob", 100),
			incumbent:    "alice",
			priorBinding: 10,
			increment:    10,
			wantLeader:   "alice",
			wantBinding:  100,
		},
		{
			name:         "leader raises own balance",
			escrows:      ledger("alice", 150, "bob", 100),
			incumbent:    "alice",
			priorBinding: 110,
			increment:    10,
			wantLeader:   "alice",
			wantBinding:  110,
		},
		{
			name:         "binding never decreases",
			escrows:      ledger("alice", 100, "bob", 300),
			incumbent:    "bob",
			priorBinding: 250,
			increment:    10,
			wantLeader:   "bob",
			wantBinding:  250,
		},
		{
			name:         "three bidders",
			escrows:      ledger("alice", 100, "bob", 150, "carol", 400),
			incumbent:    "bob",
			priorBinding: 110,
			increment:    10,
			wantLeader:   "carol",
			wantBinding:  160,
		},
		{
			name:        "empty ledger",
			escrows:     nil,
			increment:   10,
			wantLeader:  "",
			wantBinding: 0,
		},
	} {
		t.Run(testcase.name, func(t *testing.T) {
			st := computeStanding(testcase.escrows, testcase.incumbent, testcase.priorBinding, testcase.increment)

			if want, have := testcase.wantLeader, st.Leader; want != have {
				t.Errorf("leader: want %q, have %q", want, have)
			}

			if want, have := testcase.wantBinding, st.Binding; want != have {
				t.Errorf("binding: want %d, have %d", want, have)
			}

			// The binding price must never exceed what the leader escrowed.
			for _, e := range testcase.escrows {
				if e.Bidder == st.Leader && st.Binding > e.Amount {
					t.Errorf("binding %d exceeds leader balance %d", st.Binding, e.Amount)
				}
			}
		})
	}
}
