package models

// Capability is one delegated organiser power.
type Capability string

const (
	CapabilityResults  Capability = "results"
	CapabilityFixtures Capability = "fixtures"
	CapabilityPlayers  Capability = "players"
	CapabilityPromote  Capability = "promote"
)

func (c Capability) Valid() bool {
	switch c {
	case CapabilityResults, CapabilityFixtures, CapabilityPlayers, CapabilityPromote:
		return true
	}
	return false
}

// CompetitionUser holds the capabilities the organiser granted to a delegate.
type CompetitionUser struct {
	CompetitionID  int  `json:"competition_id" db:"competition_id"`
	UserID         int  `json:"user_id" db:"user_id"`
	ManageResults  bool `json:"manage_results" db:"manage_results"`
	ManageFixtures bool `json:"manage_fixtures" db:"manage_fixtures"`
	ManagePlayers  bool `json:"manage_players" db:"manage_players"`
	ManagePromote  bool `json:"manage_promote" db:"manage_promote"`
}

func (cu *CompetitionUser) Has(c Capability) bool {
	if cu == nil {
		return false
	}
	switch c {
	case CapabilityResults:
		return cu.ManageResults
	case CapabilityFixtures:
		return cu.ManageFixtures
	case CapabilityPlayers:
		return cu.ManagePlayers
	case CapabilityPromote:
		return cu.ManagePromote
	}
	return false
}

// Set grants or revokes one capability.
func (cu *CompetitionUser) Set(c Capability, granted bool) {
	switch c {
	case CapabilityResults:
		cu.ManageResults = granted
	case CapabilityFixtures:
		cu.ManageFixtures = granted
	case CapabilityPlayers:
		cu.ManagePlayers = granted
	case CapabilityPromote:
		cu.ManagePromote = granted
	}
}

// Capabilities lists the granted capabilities in a stable order.
func (cu *CompetitionUser) Capabilities() []Capability {
	caps := make([]Capability, 0, 4)
	for _, c := range []Capability{CapabilityResults, CapabilityFixtures, CapabilityPlayers, CapabilityPromote} {
		if cu.Has(c) {
			caps = append(caps, c)
		}
	}
	return caps
}

// Access is the answer of a permission check.
type Access struct {
	Authorized  bool `json:"authorized"`
	IsOrganiser bool `json:"is_organiser"`
}
