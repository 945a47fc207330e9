package models

import "time"

type PickOutcome string

const (
	OutcomeWin    PickOutcome = "win"
	OutcomeLoss   PickOutcome = "loss"
	OutcomeNoPick PickOutcome = "no_pick"
)

// Pick is a player's team selection for one round. A row with a nil Team is the
// recorded "no pick" of an active player once the round has been processed.
type Pick struct {
	ID          int          `json:"id" db:"id"`
	PlayerID    int          `json:"player_id" db:"player_id"`
	RoundID     int          `json:"round_id" db:"round_id"`
	FixtureID   *int         `json:"fixture_id,omitempty" db:"fixture_id"`
	Team        *string      `json:"team,omitempty" db:"team"`
	Outcome     *PickOutcome `json:"outcome,omitempty" db:"outcome"`
	SetByUserID *int         `json:"set_by_user_id,omitempty" db:"set_by_user_id"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}
