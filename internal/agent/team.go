package agent

import (
	"context"
	"fmt"
	"iter"
)

// defaultMaxRounds bounds how many times the team re-dispatches participants
// while waiting for the termination condition to match.
const defaultMaxRounds = 8

// Team coordinates participants in a fixed cyclic order until its
// termination condition matches. This deployment runs a team of one.
type Team struct {
	participants []*Assistant
	termination  Condition
	maxRounds    int
}

// NewRoundRobinTeam creates a team over participants with the given
// termination condition.
func NewRoundRobinTeam(participants []*Assistant, termination Condition) *Team {
	return &Team{
		participants: participants,
		termination:  termination,
		maxRounds:    defaultMaxRounds,
	}
}

// Run executes one task until the termination condition matches, yielding
// every event each participant emits, unchanged. The task string is handed to
// the first participant only; follow-up rounds rely on participant memory.
func (t *Team) Run(ctx context.Context, task string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if len(t.participants) == 0 {
			yield(Event{}, fmt.Errorf("team has no participants"))
			return
		}

		next := task
		for round := 0; round < t.maxRounds; round++ {
			participant := t.participants[round%len(t.participants)]

			terminated := false
			for ev, err := range participant.Stream(ctx, next) {
				if err != nil {
					yield(Event{}, err)
					return
				}
				if !yield(ev, nil) {
					return
				}
				if t.termination.Matches(ev) {
					terminated = true
				}
			}
			if terminated {
				return
			}
			next = ""
		}

		yield(Event{}, fmt.Errorf("no termination after %d rounds", t.maxRounds))
	}
}

// Reset clears every participant's conversation memory.
func (t *Team) Reset() {
	for _, p := range t.participants {
		p.Reset()
	}
}
