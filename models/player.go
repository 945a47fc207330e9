package models

import "time"

type PlayerStatus string

const (
	PlayerActive     PlayerStatus = "active"
	PlayerEliminated PlayerStatus = "eliminated"
)

// Player is a user's participation record in a competition.
type Player struct {
	ID                int          `json:"id" db:"id"`
	CompetitionID     int          `json:"competition_id" db:"competition_id"`
	UserID            int          `json:"user_id" db:"user_id"`
	LivesRemaining    int          `json:"lives_remaining" db:"lives_remaining"`
	Status            PlayerStatus `json:"status" db:"status"`
	UsedTeams         []string     `json:"used_teams" db:"used_teams"`
	EliminatedRoundID *int         `json:"eliminated_round_id,omitempty" db:"eliminated_round_id"`
	JoinedAt          time.Time    `json:"joined_at" db:"joined_at"`

	DisplayName string `json:"display_name,omitempty" db:"-"`
}
