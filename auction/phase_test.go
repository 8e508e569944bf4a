package auction

import (
	"testing"

	"gavel/store"
)

func TestPhaseAt(t *testing.T) {
	a := &store.Auction{StartBlock: 100, EndBlock: 200}

	for _, testcase := range []struct {
		name     string
		height   int64
		canceled bool
		want     Phase
	}{
		{"well before start", 1, false, PhasePending},
		{"just before start", 99, false, PhasePending},
		{"at start", 100, false, PhaseActive},
		{"mid window", 150, false, PhaseActive},
		{"at end", 200, false, PhaseActive},
		{"just past end", 201, false, PhaseEnded},
		{"long past end", 1_000_000, false, PhaseEnded},
		{"canceled before start", 1, true, PhaseCanceled},
		{"canceled mid window", 150, true, PhaseCanceled},
		{"canceled past end", 201, true, PhaseCanceled},
	} {
		t.Run(testcase.name, func(t *testing.T) {
			aa := *a
			aa.Canceled = testcase.canceled

			if want, have := testcase.want, PhaseAt(testcase.height, &aa); want != have {
				t.Errorf("phase: want %s, have %s", want, have)
			}
		})
	}
}

func TestPhaseConcluded(t *testing.T) {
	for phase, want := range map[Phase]bool{
		PhasePending:  false,
		PhaseActive:   false,
		PhaseEnded:    true,
		PhaseCanceled: true,
	} {
		if have := phase.Concluded(); want != have {
			t.Errorf("%s concluded: want %v, have %v", phase, want, have)
		}
	}
}
