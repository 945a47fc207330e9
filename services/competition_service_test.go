package services

import (
	"strings"
	"testing"
	"time"

	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCompetition(t *testing.T) {
	env := newTestEnv(t)
	org := env.addUser("Olivia", models.RoleUser)

	c, err := env.competitions.CreateCompetition(env.ctx, org.ID, CreateCompetitionInput{
		Name:           "  Friday Five-a-side  ",
		LivesPerPlayer: 2,
		TeamListID:     testTeamListID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Friday Five-a-side", c.Name)
	assert.Equal(t, models.CompetitionSetup, c.Status)
	assert.Equal(t, org.ID, c.OrganiserID)
	assert.Len(t, c.InviteCode, 6)
	assert.True(t, strings.HasPrefix(c.Slug, "friday-five-a-side-"), c.Slug)
	require.NotNil(t, c.Access)
	assert.True(t, c.Access.IsOrganiser)

	tests := []struct {
		name    string
		input   CreateCompetitionInput
		wantErr error
	}{
		{"blank name", CreateCompetitionInput{Name: " ", TeamListID: testTeamListID}, ErrValidationFailed},
		{"too many lives", CreateCompetitionInput{Name: "X", LivesPerPlayer: models.MaxLivesPerPlayer + 1, TeamListID: testTeamListID}, ErrValidationFailed},
		{"negative lives", CreateCompetitionInput{Name: "X", LivesPerPlayer: -1, TeamListID: testTeamListID}, ErrValidationFailed},
		{"unknown team list", CreateCompetitionInput{Name: "X", TeamListID: 7}, ErrTeamListNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.competitions.CreateCompetition(env.ctx, org.ID, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestJoinByInviteCode(t *testing.T) {
	env := newTestEnv(t)
	org := env.addUser("Olivia", models.RoleUser)
	pat := env.addUser("Pat", models.RoleUser)
	c := env.addCompetition(org, 2)

	player, err := env.competitions.JoinByInviteCode(env.ctx, pat.ID, " "+strings.ToLower(c.InviteCode)+" ")
	require.NoError(t, err)
	assert.Equal(t, 2, player.LivesRemaining)
	assert.Equal(t, models.PlayerActive, player.Status)
	assert.Empty(t, player.UsedTeams)

	_, err = env.competitions.JoinByInviteCode(env.ctx, pat.ID, c.InviteCode)
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	_, err = env.competitions.JoinByInviteCode(env.ctx, pat.ID, "ZZZZZZ")
	assert.ErrorIs(t, err, ErrCompetitionNotFound)

	_, err = env.competitions.JoinByInviteCode(env.ctx, pat.ID, "")
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestJoinClosesWhenFirstRoundLocks(t *testing.T) {
	env := newTestEnv(t)
	org := env.addUser("Olivia", models.RoleUser)
	early := env.addUser("Early", models.RoleUser)
	late := env.addUser("Late", models.RoleUser)
	c := env.addCompetition(org, 1)
	lock := env.now.Add(time.Hour)
	env.addRound(c, lock)

	_, err := env.competitions.JoinByInviteCode(env.ctx, early.ID, c.InviteCode)
	require.NoError(t, err, "round 1 still open")

	env.now = lock
	_, err = env.competitions.JoinByInviteCode(env.ctx, late.ID, c.InviteCode)
	assert.ErrorIs(t, err, ErrRoundLocked)
}

func TestJoinCompletedCompetition(t *testing.T) {
	env := newTestEnv(t)
	org := env.addUser("Olivia", models.RoleUser)
	pat := env.addUser("Pat", models.RoleUser)
	c := env.addCompetition(org, 1)
	env.store.competitions[c.ID].Status = models.CompetitionCompleted

	_, err := env.competitions.JoinByInviteCode(env.ctx, pat.ID, c.InviteCode)
	assert.ErrorIs(t, err, ErrCompetitionCompleted)
}

func TestGetAndListCompetitions(t *testing.T) {
	env := newTestEnv(t)
	org := env.addUser("Olivia", models.RoleUser)
	pat := env.addUser("Pat", models.RoleUser)
	stranger := env.addUser("Sam", models.RoleUser)
	c := env.addCompetition(org, 1)
	env.join(c, pat)
	other := env.addCompetition(stranger, 0)

	got, err := env.competitions.GetCompetition(env.ctx, pat.ID, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Access)
	assert.False(t, got.Access.Authorized)

	_, err = env.competitions.GetCompetition(env.ctx, stranger.ID, c.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	list, err := env.competitions.ListMyCompetitions(env.ctx, pat.ID, repositories.CompetitionFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)

	active := models.CompetitionActive
	list, err = env.competitions.ListMyCompetitions(env.ctx, stranger.ID, repositories.CompetitionFilter{Status: &active})
	require.NoError(t, err)
	assert.Empty(t, list, "competition %d is still in setup", other.ID)
}

func TestResetCompetition(t *testing.T) {
	env := newTestEnv(t)
	org := env.addUser("Olivia", models.RoleUser)
	pat := env.addUser("Pat", models.RoleUser)
	quinn := env.addUser("Quinn", models.RoleUser)
	c := env.addCompetition(org, 1)
	patPlayer := env.join(c, pat)
	env.join(c, quinn)
	lock := env.now.Add(time.Hour)
	r := env.addRound(c, lock)
	_, err := env.picks.SubmitPick(env.ctx, pat.ID, r.ID, "ARS")
	require.NoError(t, err)

	env.now = lock.Add(3 * time.Hour)
	organiser := Actor{UserID: org.ID}
	_, err = env.results.ApplyResult(env.ctx, organiser, env.fixtureID(r, "ARS"), 0, 1, false)
	require.NoError(t, err)
	_, err = env.results.ApplyResult(env.ctx, organiser, env.fixtureID(r, "LIV"), 1, 0, false)
	require.NoError(t, err)
	require.Equal(t, 0, env.player(patPlayer.ID).LivesRemaining)

	_, err = env.competitions.ResetCompetition(env.ctx, pat.ID, c.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	reset, err := env.competitions.ResetCompetition(env.ctx, org.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompetitionSetup, reset.Status)
	assert.Nil(t, reset.WinnerUserID)

	p := env.player(patPlayer.ID)
	assert.Equal(t, 1, p.LivesRemaining)
	assert.Equal(t, models.PlayerActive, p.Status)
	assert.Empty(t, p.UsedTeams)
	assert.Empty(t, env.store.rounds)
	assert.Empty(t, env.store.picks)
	assert.Empty(t, env.store.fixtures)
}

func TestUploadLogo(t *testing.T) {
	env := newTestEnv(t)
	org := env.addUser("Olivia", models.RoleUser)
	pat := env.addUser("Pat", models.RoleUser)
	c := env.addCompetition(org, 1)

	_, err := env.competitions.UploadLogo(env.ctx, org.ID, c.ID, strings.NewReader("GIF89a"), "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedContentType)

	_, err = env.competitions.UploadLogo(env.ctx, pat.ID, c.ID, strings.NewReader("png"), "image/png")
	assert.ErrorIs(t, err, ErrUnauthorized)

	first, err := env.competitions.UploadLogo(env.ctx, org.ID, c.ID, strings.NewReader("first"), "image/png")
	require.NoError(t, err)
	require.NotNil(t, first.LogoURL)
	assert.True(t, strings.HasPrefix(*first.LogoURL, "https://cdn.test/competitions/"), *first.LogoURL)
	assert.True(t, strings.HasSuffix(*first.LogoKey, ".png"))

	second, err := env.competitions.UploadLogo(env.ctx, org.ID, c.ID, strings.NewReader("second"), "image/webp")
	require.NoError(t, err)

	_, _, ok := env.uploader.Object(*first.LogoKey)
	assert.False(t, ok, "the previous logo is removed")
	data, contentType, ok := env.uploader.Object(*second.LogoKey)
	require.True(t, ok)
	assert.Equal(t, "second", string(data))
	assert.Equal(t, "image/webp", contentType)
}
