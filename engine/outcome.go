package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid round state transition")
	ErrTeamNotInFixture  = errors.New("team does not play in fixture")
	ErrResultMissing     = errors.New("fixture has no result")
	ErrTeamAlreadyUsed   = errors.New("team already used")
	ErrRoundIncomplete   = errors.New("not every fixture in the round has a result")
)

type Outcome string

const (
	Win    Outcome = "win"
	Loss   Outcome = "loss"
	NoPick Outcome = "no_pick"
)

// LosesLife reports whether the outcome costs the player a life.
func (o Outcome) LosesLife() bool {
	return o == Loss || o == NoPick
}

// Result is a finished fixture.
type Result struct {
	FixtureID int
	HomeTeam  string
	AwayTeam  string
	HomeScore *int
	AwayScore *int
}

func (r Result) Complete() bool {
	return r.HomeScore != nil && r.AwayScore != nil
}

// OutcomeFor scores a pick of team against a fixture result. Only an outright
// win counts; a draw is a loss.
func OutcomeFor(team string, r Result) (Outcome, error) {
	if !r.Complete() {
		return "", fmt.Errorf("%w: fixture %d", ErrResultMissing, r.FixtureID)
	}
	home, away := *r.HomeScore, *r.AwayScore
	switch team {
	case r.HomeTeam:
		if home > away {
			return Win, nil
		}
		return Loss, nil
	case r.AwayTeam:
		if away > home {
			return Win, nil
		}
		return Loss, nil
	}
	return "", fmt.Errorf("%w: %q in fixture %d", ErrTeamNotInFixture, team, r.FixtureID)
}

// FixtureForTeam finds the result in which team plays.
func FixtureForTeam(team string, results []Result) (Result, bool) {
	for _, r := range results {
		if r.HomeTeam == team || r.AwayTeam == team {
			return r, true
		}
	}
	return Result{}, false
}
