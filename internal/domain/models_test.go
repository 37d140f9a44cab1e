package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDuelHumanIDs(t *testing.T) {
	human := Duel{ChallengerID: "1", ChallengedID: "2"}
	if ids := human.HumanIDs(); len(ids) != 2 || ids[0] != "1" {
		t.Fatalf("unexpected human ids %v", ids)
	}
	sim := Duel{ChallengerID: "1", ChallengedID: SimulatedOpponentID}
	if !sim.HasSimulatedOpponent() {
		t.Fatalf("expected simulated opponent")
	}
	if ids := sim.HumanIDs(); len(ids) != 1 || ids[0] != "1" {
		t.Fatalf("unexpected human ids %v", ids)
	}
}

func TestDefaultStakeByType(t *testing.T) {
	cases := map[DuelType]int{DuelStandard: 5, DuelSpeed: 10, DuelAccuracy: 15, "": 5}
	for typ, want := range cases {
		if got := typ.DefaultStake(); got != want {
			t.Fatalf("type %q: expected stake %d, got %d", typ, want, got)
		}
	}
}

func TestInsufficientQuestionsErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("start duel: %w", &InsufficientQuestionsError{Requested: 5, Scanned: 3, Skipped: 3})
	if !errors.Is(err, ErrInsufficientQuestions) {
		t.Fatalf("expected errors.Is to match sentinel, got %v", err)
	}
	var target *InsufficientQuestionsError
	if !errors.As(err, &target) || target.Skipped != 3 {
		t.Fatalf("expected errors.As to unwrap counts, got %+v", target)
	}
}

func TestSettlementTransfers(t *testing.T) {
	if (Settlement{Result: ResultTie, Stake: 10}).Transfers() {
		t.Fatalf("tie must not transfer")
	}
	if !(Settlement{Result: ResultChallengerWin, WinnerID: "a", LoserID: "b", Stake: 10}).Transfers() {
		t.Fatalf("decisive result with stake must transfer")
	}
	if (Settlement{Result: ResultChallengerWin, WinnerID: "a", Stake: 0}).Transfers() {
		t.Fatalf("zero stake must not transfer")
	}
}

func TestJobIDsAreStablePerRound(t *testing.T) {
	if SyntheticAnswerJobID("d1", 2) != SyntheticAnswerJobID("d1", 2) {
		t.Fatalf("expected deterministic job ids")
	}
	if SyntheticAnswerJobID("d1", 2) == DispatchRetryJobID("d1", 2, 1) {
		t.Fatalf("job kinds must not collide")
	}
	if got := SyntheticAnswerJobID("d1", 3); got != "synthetic_answer:d1:3" {
		t.Fatalf("unexpected id %s", got)
	}
	if DispatchRetryJobID("d1", 2, 1) == DispatchRetryJobID("d1", 2, 2) {
		t.Fatalf("retry attempts must not collide")
	}
}
