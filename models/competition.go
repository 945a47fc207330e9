package models

import "time"

// CompetitionStatus mirrors the competition_status ENUM in the database.
type CompetitionStatus string

const (
	CompetitionSetup     CompetitionStatus = "setup"
	CompetitionActive    CompetitionStatus = "active"
	CompetitionCompleted CompetitionStatus = "completed"
)

const MaxLivesPerPlayer = 2

// Competition is one Last Man Standing game run by an organiser.
type Competition struct {
	ID             int               `json:"id" db:"id"`
	Name           string            `json:"name" db:"name"`
	Description    *string           `json:"description,omitempty" db:"description"`
	OrganiserID    int               `json:"organiser_id" db:"organiser_id"`
	Status         CompetitionStatus `json:"status" db:"status"`
	LivesPerPlayer int               `json:"lives_per_player" db:"lives_per_player"`
	InviteCode     string            `json:"invite_code" db:"invite_code"`
	Slug           string            `json:"slug" db:"slug"`
	TeamListID     int               `json:"team_list_id" db:"team_list_id"`
	WinnerUserID   *int              `json:"winner_user_id,omitempty" db:"winner_user_id"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	LogoKey        *string           `json:"-" db:"logo_key"`
	LogoURL        *string           `json:"logo_url,omitempty" db:"-"`

	// Populated by services, not stored on the row.
	Access *Access `json:"access,omitempty" db:"-"`
}
