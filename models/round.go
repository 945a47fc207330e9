package models

import "time"

type Round struct {
	ID             int        `json:"id" db:"id"`
	CompetitionID  int        `json:"competition_id" db:"competition_id"`
	RoundNumber    int        `json:"round_number" db:"round_number"`
	LockTime       time.Time  `json:"lock_time" db:"lock_time"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty" db:"processed_at"`
	ReminderSentAt *time.Time `json:"-" db:"reminder_sent_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`

	// Derived by the service from lock time, results and processed_at.
	State    string     `json:"state,omitempty" db:"-"`
	Fixtures []*Fixture `json:"fixtures,omitempty" db:"-"`
}

type Fixture struct {
	ID          int       `json:"id" db:"id"`
	RoundID     int       `json:"round_id" db:"round_id"`
	HomeTeam    string    `json:"home_team" db:"home_team"`
	AwayTeam    string    `json:"away_team" db:"away_team"`
	KickoffTime time.Time `json:"kickoff_time" db:"kickoff_time"`
	HomeScore   *int      `json:"home_score,omitempty" db:"home_score"`
	AwayScore   *int      `json:"away_score,omitempty" db:"away_score"`
}

func (f *Fixture) HasResult() bool {
	return f.HomeScore != nil && f.AwayScore != nil
}

// Involves reports whether team plays in the fixture.
func (f *Fixture) Involves(team string) bool {
	return f.HomeTeam == team || f.AwayTeam == team
}
