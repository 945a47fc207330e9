package models

import "time"

// Standing is one row of a competition table.
type Standing struct {
	PlayerID       int          `json:"player_id"`
	UserID         int          `json:"user_id"`
	DisplayName    string       `json:"display_name"`
	Status         PlayerStatus `json:"status"`
	LivesRemaining int          `json:"lives_remaining"`
	CurrentPick    *string      `json:"current_pick,omitempty"`
	LastOutcome    *PickOutcome `json:"last_outcome,omitempty"`
}

type CompetitionStandings struct {
	CompetitionID int               `json:"competition_id"`
	Status        CompetitionStatus `json:"status"`
	RoundNumber   int               `json:"round_number"`
	RoundState    string            `json:"round_state,omitempty"`
	LockTime      *time.Time        `json:"lock_time,omitempty"`
	WinnerUserID  *int              `json:"winner_user_id,omitempty"`
	Players       []Standing        `json:"players"`
}
