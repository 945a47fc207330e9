package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lmslocal/lms-server/engine"
	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/notify"
	"github.com/lmslocal/lms-server/repositories"
	"github.com/lmslocal/lms-server/storage"
)

// Actor is the authenticated caller as seen by services.
type Actor struct {
	UserID int
	Role   models.UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// Notifier queues notifications for delivery outside the request.
type Notifier interface {
	Enqueue(n notify.Notification) bool
}

// FixtureInput is one fixture of a round as submitted by an organiser.
type FixtureInput struct {
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	KickoffTime time.Time `json:"kickoff_time"`
}

func normalizeTeam(team string) string {
	return strings.ToUpper(strings.TrimSpace(team))
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// mapRepoNotFound translates repository not-found errors to service errors.
func mapRepoNotFound(err error) error {
	switch {
	case errors.Is(err, repositories.ErrCompetitionNotFound):
		return ErrCompetitionNotFound
	case errors.Is(err, repositories.ErrRoundNotFound):
		return ErrRoundNotFound
	case errors.Is(err, repositories.ErrFixtureNotFound):
		return ErrFixtureNotFound
	case errors.Is(err, repositories.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repositories.ErrPlayerNotFound):
		return ErrPlayerNotFound
	case errors.Is(err, repositories.ErrTeamListNotFound):
		return ErrTeamListNotFound
	}
	return err
}

// validateFixtures normalizes team codes and checks every fixture against the
// competition's team pool. A team may appear in only one fixture of a round.
func validateFixtures(inputs []FixtureInput, pool []string) ([]*models.Fixture, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one fixture is required", ErrValidationFailed)
	}
	inPool := make(map[string]struct{}, len(pool))
	for _, t := range pool {
		inPool[t] = struct{}{}
	}

	seen := make(map[string]struct{}, len(inputs)*2)
	fixtures := make([]*models.Fixture, 0, len(inputs))
	for i, in := range inputs {
		home, away := normalizeTeam(in.HomeTeam), normalizeTeam(in.AwayTeam)
		if home == "" || away == "" {
			return nil, fmt.Errorf("%w: fixture %d: both teams are required", ErrValidationFailed, i+1)
		}
		if home == away {
			return nil, fmt.Errorf("%w: fixture %d: a team cannot play itself", ErrValidationFailed, i+1)
		}
		if in.KickoffTime.IsZero() {
			return nil, fmt.Errorf("%w: fixture %d: kickoff_time is required", ErrValidationFailed, i+1)
		}
		for _, team := range []string{home, away} {
			if _, ok := inPool[team]; !ok {
				return nil, fmt.Errorf("%w: fixture %d: team %q is not in the competition's team list", ErrValidationFailed, i+1, team)
			}
			if _, dup := seen[team]; dup {
				return nil, fmt.Errorf("%w: team %q appears in more than one fixture", ErrValidationFailed, team)
			}
			seen[team] = struct{}{}
		}
		fixtures = append(fixtures, &models.Fixture{HomeTeam: home, AwayTeam: away, KickoffTime: in.KickoffTime.UTC()})
	}
	return fixtures, nil
}

func fixtureForTeam(fixtures []*models.Fixture, team string) *models.Fixture {
	for _, f := range fixtures {
		if f.Involves(team) {
			return f
		}
	}
	return nil
}

func roundSnapshot(r *models.Round, fixtures []*models.Fixture) engine.RoundSnapshot {
	snap := engine.RoundSnapshot{
		LockTime:      r.LockTime,
		Processed:     r.ProcessedAt != nil,
		FixturesTotal: len(fixtures),
	}
	for _, f := range fixtures {
		if f.HasResult() {
			snap.FixturesResults++
		}
	}
	return snap
}

func toResults(fixtures []*models.Fixture) []engine.Result {
	results := make([]engine.Result, len(fixtures))
	for i, f := range fixtures {
		results[i] = engine.Result{
			FixtureID: f.ID,
			HomeTeam:  f.HomeTeam,
			AwayTeam:  f.AwayTeam,
			HomeScore: f.HomeScore,
			AwayScore: f.AwayScore,
		}
	}
	return results
}

func userIDsOf(players []*models.Player) []int {
	ids := make([]int, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.UserID)
	}
	sort.Ints(ids)
	return ids
}

func populateCompetitionLogoURL(c *models.Competition, uploader storage.FileUploader) {
	if c == nil || c.LogoKey == nil || *c.LogoKey == "" || uploader == nil {
		return
	}
	if url := uploader.GetPublicURL(*c.LogoKey); url != "" {
		c.LogoURL = &url
	}
}

// GetExtensionFromContentType maps an accepted image content type to a file extension.
func GetExtensionFromContentType(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/webp":
		return ".webp", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}
