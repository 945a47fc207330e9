package services

import (
	"testing"
	"time"

	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDueRemindersOncePerRound(t *testing.T) {
	env := newTestEnv(t)
	org := env.addUser("Olivia", models.RoleUser)
	pat := env.addUser("Pat", models.RoleUser)
	quinn := env.addUser("Quinn", models.RoleUser)
	c := env.addCompetition(org, 1)
	env.join(c, pat)
	env.join(c, quinn)
	r := env.addRound(c, env.now.Add(6*time.Hour))

	_, err := env.picks.SubmitPick(env.ctx, pat.ID, r.ID, "ARS")
	require.NoError(t, err)

	sent, err := env.reminders.SendDueReminders(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	reminders := env.notifier.ofKind(notify.KindPickReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, []int{quinn.ID}, reminders[0].UserIDs, "only players without a pick are reminded")
	assert.True(t, reminders[0].Push)

	env.now = env.now.Add(time.Hour)
	sent, err = env.reminders.SendDueReminders(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, env.notifier.ofKind(notify.KindPickReminder), 1)
}

func TestSendDueRemindersOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	org := env.addUser("Olivia", models.RoleUser)
	pat := env.addUser("Pat", models.RoleUser)
	c := env.addCompetition(org, 1)
	env.join(c, pat)
	env.addRound(c, env.now.Add(72*time.Hour))

	sent, err := env.reminders.SendDueReminders(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, env.notifier.sent)
}

func TestSendDueRemindersRetriesWhenQueueFull(t *testing.T) {
	env := newTestEnv(t)
	org := env.addUser("Olivia", models.RoleUser)
	pat := env.addUser("Pat", models.RoleUser)
	c := env.addCompetition(org, 1)
	env.join(c, pat)
	r := env.addRound(c, env.now.Add(2*time.Hour))

	env.notifier.full = true
	sent, err := env.reminders.SendDueReminders(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Nil(t, env.store.rounds[r.ID].ReminderSentAt)

	env.notifier.full = false
	sent, err = env.reminders.SendDueReminders(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.NotNil(t, env.store.rounds[r.ID].ReminderSentAt)
}

func TestSendDueRemindersEveryonePicked(t *testing.T) {
	env := newTestEnv(t)
	org := env.addUser("Olivia", models.RoleUser)
	pat := env.addUser("Pat", models.RoleUser)
	c := env.addCompetition(org, 1)
	env.join(c, pat)
	r := env.addRound(c, env.now.Add(2*time.Hour))
	_, err := env.picks.SubmitPick(env.ctx, pat.ID, r.ID, "EVE")
	require.NoError(t, err)

	sent, err := env.reminders.SendDueReminders(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "the round is marked even with nobody to remind")
	assert.Empty(t, env.notifier.ofKind(notify.KindPickReminder))
}
