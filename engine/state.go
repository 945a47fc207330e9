// Package engine holds the Last Man Standing rules: the round lifecycle, pick
// outcomes, lives and elimination, and the no-repeat-team rule. It has no
// database or HTTP dependencies so every rule can be tested on its own.
package engine

import (
	"fmt"
	"time"
)

type RoundState string

const (
	RoundOpen           RoundState = "OPEN"
	RoundLocked         RoundState = "LOCKED"
	RoundResultsPending RoundState = "RESULTS_PENDING"
	RoundComplete       RoundState = "COMPLETE"
)

var allowedTransitions = map[RoundState][]RoundState{
	RoundOpen:   {RoundLocked},
	RoundLocked: {RoundResultsPending, RoundComplete},
	// Replacing the fixtures discards results entered so far.
	RoundResultsPending: {RoundComplete, RoundLocked},
	// An override re-opens result entry on a processed round.
	RoundComplete: {RoundResultsPending},
}

// CanTransition reports whether a round may move from current to next.
func CanTransition(current, next RoundState) bool {
	if current == next {
		return true
	}
	for _, allowed := range allowedTransitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RoundSnapshot is everything needed to derive a round's state.
type RoundSnapshot struct {
	LockTime        time.Time
	Processed       bool
	FixturesTotal   int
	FixturesResults int
}

// StateAt derives the state of a round at the given instant. OPEN ends exactly
// at lock time: a pick at now == LockTime is already locked.
func StateAt(r RoundSnapshot, now time.Time) RoundState {
	switch {
	case r.Processed:
		return RoundComplete
	case now.Before(r.LockTime):
		return RoundOpen
	case r.FixturesResults == 0:
		return RoundLocked
	default:
		return RoundResultsPending
	}
}

// ReadyToProcess reports whether eliminations can be computed: the round is
// locked, not yet processed and every fixture has a result.
func ReadyToProcess(r RoundSnapshot, now time.Time) bool {
	if r.Processed || now.Before(r.LockTime) || r.FixturesTotal == 0 {
		return false
	}
	return r.FixturesResults == r.FixturesTotal
}

// Transition validates a state change and returns the new state.
func Transition(current, next RoundState) (RoundState, error) {
	if !CanTransition(current, next) {
		return current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
	return next, nil
}
