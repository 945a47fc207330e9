package engine

type PlayerStatus string

const (
	Active     PlayerStatus = "active"
	Eliminated PlayerStatus = "eliminated"
)

// PlayerState is the mutable part of a player the engine works on.
type PlayerState struct {
	PlayerID int
	Lives    int
	Status   PlayerStatus
}

// Scored is the effect of one round on one player.
type Scored struct {
	PlayerID    int
	Team        string
	FixtureID   int
	Outcome     Outcome
	LivesBefore int
	LivesAfter  int
	Eliminated  bool
}

// ApplyOutcome updates p for one outcome and reports whether p was eliminated by
// it. A losing pick takes one life; the player is eliminated the first time
// lives drop below zero. Lives are not clamped: an eliminated player keeps -1
// as the record of the losing round. Eliminated players are never touched again.
func ApplyOutcome(p *PlayerState, o Outcome) bool {
	if p.Status != Active || !o.LosesLife() {
		return false
	}
	p.Lives--
	if p.Lives < 0 {
		p.Status = Eliminated
		return true
	}
	return false
}

// RevertOutcome undoes ApplyOutcome. eliminatedByIt says whether the outcome being
// reverted is the one that eliminated the player.
func RevertOutcome(p *PlayerState, o Outcome, eliminatedByIt bool) {
	if !o.LosesLife() {
		return
	}
	if p.Status == Eliminated && !eliminatedByIt {
		return
	}
	p.Lives++
	p.Status = Active
}

// ScoreRound computes the outcome of a fully resulted round for every active
// player. picks maps player id to the picked team; an active player missing from
// picks scores NoPick. players is updated in place.
func ScoreRound(players []*PlayerState, picks map[int]string, results []Result) ([]Scored, error) {
	for _, r := range results {
		if !r.Complete() {
			return nil, ErrRoundIncomplete
		}
	}

	scored := make([]Scored, 0, len(players))
	for _, p := range players {
		if p.Status != Active {
			continue
		}
		s := Scored{PlayerID: p.PlayerID, LivesBefore: p.Lives, Outcome: NoPick}
		if team, ok := picks[p.PlayerID]; ok && team != "" {
			s.Team = team
			r, found := FixtureForTeam(team, results)
			if !found {
				// Fixture removed after the pick by an override; treated as no pick.
				s.Outcome = NoPick
			} else {
				o, err := OutcomeFor(team, r)
				if err != nil {
					return nil, err
				}
				s.Outcome = o
				s.FixtureID = r.FixtureID
			}
		}
		s.Eliminated = ApplyOutcome(p, s.Outcome)
		s.LivesAfter = p.Lives
		scored = append(scored, s)
	}
	return scored, nil
}

// Conclusion is the competition-level consequence of a processed round.
type Conclusion struct {
	Complete bool
	WinnerID *int
	Active   int
}

// Conclude decides whether the competition is over. One survivor wins. When
// nobody survives the competition ends without a winner and the organiser
// settles it.
func Conclude(players []*PlayerState) Conclusion {
	var last *PlayerState
	active := 0
	for _, p := range players {
		if p.Status == Active {
			active++
			last = p
		}
	}
	switch active {
	case 0:
		return Conclusion{Complete: true}
	case 1:
		id := last.PlayerID
		return Conclusion{Complete: true, WinnerID: &id, Active: 1}
	default:
		return Conclusion{Active: active}
	}
}
