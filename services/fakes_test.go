package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/notify"
	"github.com/lmslocal/lms-server/repositories"
	"github.com/lmslocal/lms-server/storage"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory stand-in for the Postgres schema. Rows are copied on
// the way in and out so services cannot mutate stored state by accident.
type memStore struct {
	mu               sync.Mutex
	nextID           int
	users            map[int]*models.User
	competitions     map[int]*models.Competition
	competitionUsers map[[2]int]*models.CompetitionUser
	teamLists        map[int][]string
	players          map[int]*models.Player
	rounds           map[int]*models.Round
	fixtures         map[int]*models.Fixture
	picks            map[int]*models.Pick
	devices          map[int]*models.Device
}

func newMemStore() *memStore {
	return &memStore{
		users:            map[int]*models.User{},
		competitions:     map[int]*models.Competition{},
		competitionUsers: map[[2]int]*models.CompetitionUser{},
		teamLists:        map[int][]string{},
		players:          map[int]*models.Player{},
		rounds:           map[int]*models.Round{},
		fixtures:         map[int]*models.Fixture{},
		picks:            map[int]*models.Pick{},
		devices:          map[int]*models.Device{},
	}
}

func (m *memStore) id() int {
	m.nextID++
	return m.nextID
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneCompetition(c *models.Competition) *models.Competition {
	out := *c
	out.Description = clonePtr(c.Description)
	out.WinnerUserID = clonePtr(c.WinnerUserID)
	out.LogoKey = clonePtr(c.LogoKey)
	out.LogoURL = nil
	out.Access = nil
	return &out
}

func clonePlayer(p *models.Player) *models.Player {
	out := *p
	out.UsedTeams = append([]string{}, p.UsedTeams...)
	out.EliminatedRoundID = clonePtr(p.EliminatedRoundID)
	return &out
}

func cloneRound(r *models.Round) *models.Round {
	out := *r
	out.ProcessedAt = clonePtr(r.ProcessedAt)
	out.ReminderSentAt = clonePtr(r.ReminderSentAt)
	out.Fixtures = nil
	out.State = ""
	return &out
}

func cloneFixture(f *models.Fixture) *models.Fixture {
	out := *f
	out.HomeScore = clonePtr(f.HomeScore)
	out.AwayScore = clonePtr(f.AwayScore)
	return &out
}

func clonePick(p *models.Pick) *models.Pick {
	out := *p
	out.FixtureID = clonePtr(p.FixtureID)
	out.Team = clonePtr(p.Team)
	out.Outcome = clonePtr(p.Outcome)
	out.SetByUserID = clonePtr(p.SetByUserID)
	return &out
}

// users

type fakeUserRepo struct{ *memStore }

func (r fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repositories.ErrUserEmailConflict
		}
	}
	user.ID = r.id()
	user.CreatedAt = time.Now()
	r.users[user.ID] = clonePtr(user)
	return nil
}

func (r fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return clonePtr(u), nil
}

func (r fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return clonePtr(u), nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r fakeUserRepo) ListByIDs(ctx context.Context, ids []int) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, clonePtr(u))
		}
	}
	return out, nil
}

func (r fakeUserRepo) SetPasswordResetToken(ctx context.Context, userID int, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.PasswordResetToken = &token
	u.PasswordResetExpiresAt = &expiresAt
	return nil
}

func (r fakeUserRepo) GetByPasswordResetToken(ctx context.Context, token string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.PasswordResetToken != nil && *u.PasswordResetToken == token {
			return clonePtr(u), nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r fakeUserRepo) UpdatePassword(ctx context.Context, userID int, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.PasswordResetToken = nil
	u.PasswordResetExpiresAt = nil
	return nil
}

// competitions

type fakeCompetitionRepo struct{ *memStore }

func (r fakeCompetitionRepo) Create(ctx context.Context, exec repositories.SQLExecutor, c *models.Competition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teamLists[c.TeamListID]; !ok {
		return repositories.ErrCompetitionTeamListInvalid
	}
	for _, existing := range r.competitions {
		if existing.InviteCode == c.InviteCode {
			return repositories.ErrCompetitionCodeConflict
		}
	}
	c.ID = r.id()
	c.CreatedAt = time.Now()
	r.competitions[c.ID] = cloneCompetition(c)
	return nil
}

func (r fakeCompetitionRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int, forUpdate bool) (*models.Competition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.competitions[id]
	if !ok {
		return nil, repositories.ErrCompetitionNotFound
	}
	return cloneCompetition(c), nil
}

func (r fakeCompetitionRepo) GetByInviteCode(ctx context.Context, code string) (*models.Competition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.competitions {
		if c.InviteCode == strings.ToUpper(code) {
			return cloneCompetition(c), nil
		}
	}
	return nil, repositories.ErrCompetitionNotFound
}

func (r fakeCompetitionRepo) ListForUser(ctx context.Context, userID int, filter repositories.CompetitionFilter) ([]*models.Competition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Competition
	for _, c := range r.competitions {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		member := c.OrganiserID == userID
		if _, ok := r.competitionUsers[[2]int{c.ID, userID}]; ok {
			member = true
		}
		for _, p := range r.players {
			if p.CompetitionID == c.ID && p.UserID == userID {
				member = true
			}
		}
		if member {
			out = append(out, cloneCompetition(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r fakeCompetitionRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.CompetitionStatus, winnerUserID *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.competitions[id]
	if !ok {
		return repositories.ErrCompetitionNotFound
	}
	c.Status = status
	c.WinnerUserID = clonePtr(winnerUserID)
	return nil
}

func (r fakeCompetitionRepo) UpdateLogoKey(ctx context.Context, id int, logoKey *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.competitions[id]
	if !ok {
		return repositories.ErrCompetitionNotFound
	}
	c.LogoKey = clonePtr(logoKey)
	return nil
}

// teams

type fakeTeamRepo struct{ *memStore }

func (r fakeTeamRepo) GetList(ctx context.Context, id int) (*models.TeamList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teamLists[id]; !ok {
		return nil, repositories.ErrTeamListNotFound
	}
	return &models.TeamList{ID: id, Name: "Test League"}, nil
}

func (r fakeTeamRepo) ListTeams(ctx context.Context, exec repositories.SQLExecutor, teamListID int) ([]*models.Team, error) {
	names, err := r.ShortNames(ctx, exec, teamListID)
	if err != nil {
		return nil, err
	}
	teams := make([]*models.Team, len(names))
	for i, n := range names {
		teams[i] = &models.Team{ID: i + 1, TeamListID: teamListID, Name: n, ShortName: n}
	}
	return teams, nil
}

func (r fakeTeamRepo) ShortNames(ctx context.Context, exec repositories.SQLExecutor, teamListID int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names, ok := r.teamLists[teamListID]
	if !ok {
		return nil, repositories.ErrTeamListNotFound
	}
	return append([]string{}, names...), nil
}

// delegates

type fakeCompetitionUserRepo struct{ *memStore }

func (r fakeCompetitionUserRepo) Get(ctx context.Context, competitionID, userID int) (*models.CompetitionUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cu, ok := r.competitionUsers[[2]int{competitionID, userID}]
	if !ok {
		return nil, repositories.ErrCompetitionUserNotFound
	}
	return clonePtr(cu), nil
}

func (r fakeCompetitionUserRepo) Upsert(ctx context.Context, cu *models.CompetitionUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[cu.UserID]; !ok {
		return repositories.ErrCompetitionUserInvalid
	}
	r.competitionUsers[[2]int{cu.CompetitionID, cu.UserID}] = clonePtr(cu)
	return nil
}

func (r fakeCompetitionUserRepo) ListByCompetition(ctx context.Context, competitionID int) ([]*models.CompetitionUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CompetitionUser
	for key, cu := range r.competitionUsers {
		if key[0] == competitionID {
			out = append(out, clonePtr(cu))
		}
	}
	return out, nil
}

// players

type fakePlayerRepo struct{ *memStore }

func (r fakePlayerRepo) Create(ctx context.Context, exec repositories.SQLExecutor, p *models.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.players {
		if existing.CompetitionID == p.CompetitionID && existing.UserID == p.UserID {
			return repositories.ErrPlayerAlreadyJoined
		}
	}
	p.ID = r.id()
	p.JoinedAt = time.Now()
	r.players[p.ID] = clonePlayer(p)
	return nil
}

func (r fakePlayerRepo) GetByCompetitionUser(ctx context.Context, exec repositories.SQLExecutor, competitionID, userID int, forUpdate bool) (*models.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		if p.CompetitionID == competitionID && p.UserID == userID {
			return clonePlayer(p), nil
		}
	}
	return nil, repositories.ErrPlayerNotFound
}

func (r fakePlayerRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int, forUpdate bool) (*models.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return nil, repositories.ErrPlayerNotFound
	}
	return clonePlayer(p), nil
}

func (r fakePlayerRepo) ListByCompetition(ctx context.Context, exec repositories.SQLExecutor, competitionID int, forUpdate bool) ([]*models.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Player
	for _, p := range r.players {
		if p.CompetitionID == competitionID {
			out = append(out, clonePlayer(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakePlayerRepo) UpdateState(ctx context.Context, exec repositories.SQLExecutor, p *models.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.players[p.ID]
	if !ok {
		return repositories.ErrPlayerNotFound
	}
	stored.LivesRemaining = p.LivesRemaining
	stored.Status = p.Status
	stored.UsedTeams = append([]string{}, p.UsedTeams...)
	stored.EliminatedRoundID = clonePtr(p.EliminatedRoundID)
	return nil
}

func (r fakePlayerRepo) ResetAll(ctx context.Context, exec repositories.SQLExecutor, competitionID, lives int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		if p.CompetitionID == competitionID {
			p.LivesRemaining = lives
			p.Status = models.PlayerActive
			p.UsedTeams = []string{}
			p.EliminatedRoundID = nil
		}
	}
	return nil
}

// rounds

type fakeRoundRepo struct{ *memStore }

func (r fakeRoundRepo) Create(ctx context.Context, exec repositories.SQLExecutor, round *models.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rounds {
		if existing.CompetitionID == round.CompetitionID && existing.RoundNumber == round.RoundNumber {
			return repositories.ErrRoundNumberConflict
		}
	}
	round.ID = r.id()
	round.CreatedAt = time.Now()
	r.rounds[round.ID] = cloneRound(round)
	return nil
}

func (r fakeRoundRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int, forUpdate bool) (*models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	round, ok := r.rounds[id]
	if !ok {
		return nil, repositories.ErrRoundNotFound
	}
	return cloneRound(round), nil
}

func (r fakeRoundRepo) Latest(ctx context.Context, exec repositories.SQLExecutor, competitionID int) (*models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Round
	for _, round := range r.rounds {
		if round.CompetitionID == competitionID && (latest == nil || round.RoundNumber > latest.RoundNumber) {
			latest = round
		}
	}
	if latest == nil {
		return nil, repositories.ErrRoundNotFound
	}
	return cloneRound(latest), nil
}

func (r fakeRoundRepo) ListByCompetition(ctx context.Context, competitionID int) ([]*models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Round
	for _, round := range r.rounds {
		if round.CompetitionID == competitionID {
			out = append(out, cloneRound(round))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

func (r fakeRoundRepo) SetProcessed(ctx context.Context, exec repositories.SQLExecutor, id int, processedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	round, ok := r.rounds[id]
	if !ok {
		return repositories.ErrRoundNotFound
	}
	round.ProcessedAt = clonePtr(processedAt)
	return nil
}

func (r fakeRoundRepo) ListNeedingReminder(ctx context.Context, from, to time.Time) ([]*models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Round
	for _, round := range r.rounds {
		if round.ReminderSentAt == nil && round.ProcessedAt == nil &&
			!round.LockTime.Before(from) && round.LockTime.Before(to) {
			out = append(out, cloneRound(round))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeRoundRepo) MarkReminderSent(ctx context.Context, id int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	round, ok := r.rounds[id]
	if !ok {
		return repositories.ErrRoundNotFound
	}
	round.ReminderSentAt = &at
	return nil
}

func (r fakeRoundRepo) DeleteByCompetition(ctx context.Context, exec repositories.SQLExecutor, competitionID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, round := range r.rounds {
		if round.CompetitionID != competitionID {
			continue
		}
		for fid, f := range r.fixtures {
			if f.RoundID == id {
				delete(r.fixtures, fid)
			}
		}
		for pid, p := range r.picks {
			if p.RoundID == id {
				delete(r.picks, pid)
			}
		}
		delete(r.rounds, id)
	}
	return nil
}

// fixtures

type fakeFixtureRepo struct{ *memStore }

func (r fakeFixtureRepo) CreateBatch(ctx context.Context, exec repositories.SQLExecutor, fixtures []*models.Fixture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range fixtures {
		f.ID = r.id()
		r.fixtures[f.ID] = cloneFixture(f)
	}
	return nil
}

func (r fakeFixtureRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Fixture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fixtures[id]
	if !ok {
		return nil, repositories.ErrFixtureNotFound
	}
	return cloneFixture(f), nil
}

func (r fakeFixtureRepo) ListByRound(ctx context.Context, exec repositories.SQLExecutor, roundID int) ([]*models.Fixture, error) {
	return r.ListByRounds(ctx, []int{roundID})
}

func (r fakeFixtureRepo) ListByRounds(ctx context.Context, roundIDs []int) ([]*models.Fixture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := map[int]bool{}
	for _, id := range roundIDs {
		wanted[id] = true
	}
	var out []*models.Fixture
	for _, f := range r.fixtures {
		if wanted[f.RoundID] {
			out = append(out, cloneFixture(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeFixtureRepo) UpdateResult(ctx context.Context, exec repositories.SQLExecutor, id int, homeScore, awayScore int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fixtures[id]
	if !ok {
		return repositories.ErrFixtureNotFound
	}
	f.HomeScore, f.AwayScore = &homeScore, &awayScore
	return nil
}

func (r fakeFixtureRepo) DeleteByRound(ctx context.Context, exec repositories.SQLExecutor, roundID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, f := range r.fixtures {
		if f.RoundID == roundID {
			delete(r.fixtures, id)
		}
	}
	return nil
}

// picks

type fakePickRepo struct{ *memStore }

func (r fakePickRepo) Create(ctx context.Context, exec repositories.SQLExecutor, pick *models.Pick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.picks {
		if p.PlayerID == pick.PlayerID && p.RoundID == pick.RoundID {
			return repositories.ErrPickDuplicate
		}
	}
	pick.ID = r.id()
	pick.CreatedAt = time.Now()
	r.picks[pick.ID] = clonePick(pick)
	return nil
}

func (r fakePickRepo) GetByPlayerRound(ctx context.Context, exec repositories.SQLExecutor, playerID, roundID int) (*models.Pick, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.picks {
		if p.PlayerID == playerID && p.RoundID == roundID {
			return clonePick(p), nil
		}
	}
	return nil, repositories.ErrPickNotFound
}

func (r fakePickRepo) ListByRound(ctx context.Context, exec repositories.SQLExecutor, roundID int) ([]*models.Pick, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Pick
	for _, p := range r.picks {
		if p.RoundID == roundID {
			out = append(out, clonePick(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakePickRepo) Update(ctx context.Context, exec repositories.SQLExecutor, pick *models.Pick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.picks[pick.ID]
	if !ok {
		return repositories.ErrPickNotFound
	}
	stored.FixtureID = clonePtr(pick.FixtureID)
	stored.Team = clonePtr(pick.Team)
	stored.Outcome = clonePtr(pick.Outcome)
	stored.SetByUserID = clonePtr(pick.SetByUserID)
	return nil
}

func (r fakePickRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.picks[id]; !ok {
		return repositories.ErrPickNotFound
	}
	delete(r.picks, id)
	return nil
}

func (r fakePickRepo) ClearOutcomes(ctx context.Context, exec repositories.SQLExecutor, roundID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.picks {
		if p.RoundID == roundID {
			p.Outcome = nil
		}
	}
	return nil
}

func (r fakePickRepo) DeleteNoPicks(ctx context.Context, exec repositories.SQLExecutor, roundID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.picks {
		if p.RoundID == roundID && p.Team == nil {
			delete(r.picks, id)
		}
	}
	return nil
}

func (r fakePickRepo) ListUsersWithoutPick(ctx context.Context, roundID int) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	round, ok := r.rounds[roundID]
	if !ok {
		return nil, repositories.ErrRoundNotFound
	}
	picked := map[int]bool{}
	for _, p := range r.picks {
		if p.RoundID == roundID {
			picked[p.PlayerID] = true
		}
	}
	var out []int
	for _, p := range r.players {
		if p.CompetitionID == round.CompetitionID && p.Status == models.PlayerActive && !picked[p.ID] {
			out = append(out, p.UserID)
		}
	}
	sort.Ints(out)
	return out, nil
}

// devices

type fakeDeviceRepo struct{ *memStore }

func (r fakeDeviceRepo) Register(ctx context.Context, device *models.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.UserID == device.UserID && d.Token == device.Token {
			d.Platform = device.Platform
			device.ID = d.ID
			device.CreatedAt = d.CreatedAt
			return nil
		}
	}
	device.ID = r.id()
	device.CreatedAt = time.Now()
	r.devices[device.ID] = clonePtr(device)
	return nil
}

func (r fakeDeviceRepo) ListByUsers(ctx context.Context, userIDs []int) ([]*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := map[int]bool{}
	for _, id := range userIDs {
		wanted[id] = true
	}
	var out []*models.Device
	for _, d := range r.devices {
		if wanted[d.UserID] {
			out = append(out, clonePtr(d))
		}
	}
	return out, nil
}

func (r fakeDeviceRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, id)
	return nil
}

// fakeTx runs fn without a database. A failed fn restores the store snapshot
// taken before it ran, like a rollback.
type fakeTx struct{ store *memStore }

func (t fakeTx) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	snapshot := t.store.snapshot()
	if err := fn(nil); err != nil {
		t.store.restore(snapshot)
		return err
	}
	return nil
}

func (m *memStore) snapshot() *memStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := newMemStore()
	s.nextID = m.nextID
	for k, v := range m.competitions {
		s.competitions[k] = cloneCompetition(v)
	}
	for k, v := range m.players {
		s.players[k] = clonePlayer(v)
	}
	for k, v := range m.rounds {
		s.rounds[k] = cloneRound(v)
	}
	for k, v := range m.fixtures {
		s.fixtures[k] = cloneFixture(v)
	}
	for k, v := range m.picks {
		s.picks[k] = clonePick(v)
	}
	return s
}

func (m *memStore) restore(s *memStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.competitions = s.competitions
	m.players = s.players
	m.rounds = s.rounds
	m.fixtures = s.fixtures
	m.picks = s.picks
}

type fakeNotifier struct {
	mu   sync.Mutex
	full bool
	sent []notify.Notification
}

func (n *fakeNotifier) Enqueue(msg notify.Notification) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.full {
		return false
	}
	n.sent = append(n.sent, msg)
	return true
}

func (n *fakeNotifier) ofKind(kind notify.Kind) []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Notification
	for _, msg := range n.sent {
		if msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages map[string][]interface{}
}

func (b *fakeBroadcaster) BroadcastToRoom(roomID string, message interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.messages == nil {
		b.messages = map[string][]interface{}{}
	}
	b.messages[roomID] = append(b.messages[roomID], message)
}

func (b *fakeBroadcaster) count(roomID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages[roomID])
}

// fakeCache expires entries against the test clock.
type fakeCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string][]byte
	expires map[string]time.Time
	ttls    map[string]time.Duration
	failGet bool
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, errors.New("cache down")
	}
	if exp, ok := c.expires[key]; ok && !c.now().Before(exp) {
		return nil, nil
	}
	return c.entries[key], nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string][]byte{}
		c.expires = map[string]time.Time{}
		c.ttls = map[string]time.Duration{}
	}
	c.entries[key] = value
	c.expires[key] = c.now().Add(ttl)
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
		delete(c.expires, k)
	}
	return nil
}

var testPool = []string{"ARS", "CHE", "LIV", "EVE", "MUN", "TOT"}

const testTeamListID = 100

// testEnv wires every service against one memStore and a settable clock.
type testEnv struct {
	t           *testing.T
	ctx         context.Context
	store       *memStore
	now         time.Time
	notifier    *fakeNotifier
	broadcaster *fakeBroadcaster
	cache       *fakeCache
	uploader    *storage.MemoryUploader

	permissions  PermissionService
	standings    StandingsService
	competitions CompetitionService
	rounds       RoundService
	picks        PickService
	results      ResultService
	auth         AuthService
	reminders    ReminderService
	devices      DeviceService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	store.teamLists[testTeamListID] = append([]string{}, testPool...)

	e := &testEnv{
		t:           t,
		ctx:         context.Background(),
		store:       store,
		now:         time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC),
		notifier:    &fakeNotifier{},
		broadcaster: &fakeBroadcaster{},
		cache:       &fakeCache{},
		uploader:    storage.NewMemoryUploader("https://cdn.test"),
	}
	clock := func() time.Time { return e.now }
	e.cache.now = clock
	logger := discardLogger()

	users := fakeUserRepo{store}
	competitions := fakeCompetitionRepo{store}
	competitionUsers := fakeCompetitionUserRepo{store}
	teams := fakeTeamRepo{store}
	players := fakePlayerRepo{store}
	rounds := fakeRoundRepo{store}
	fixtures := fakeFixtureRepo{store}
	picks := fakePickRepo{store}
	tx := fakeTx{store}

	e.permissions = NewPermissionService(competitions, competitionUsers, players, logger)

	standings := NewStandingsService(competitions, rounds, fixtures, players, picks, e.permissions, e.cache, e.broadcaster, logger).(*standingsService)
	standings.now = clock
	e.standings = standings

	competitionSvc := NewCompetitionService(tx, competitions, rounds, players, teams, e.permissions, e.standings, e.uploader, logger).(*competitionService)
	competitionSvc.now = clock
	e.competitions = competitionSvc

	roundSvc := NewRoundService(tx, competitions, rounds, fixtures, picks, players, teams, e.permissions, e.standings, logger).(*roundService)
	roundSvc.now = clock
	e.rounds = roundSvc

	pickSvc := NewPickService(tx, competitions, rounds, fixtures, players, picks, teams, e.permissions, e.standings, logger).(*pickService)
	pickSvc.now = clock
	e.picks = pickSvc

	resultSvc := NewResultService(tx, competitions, rounds, fixtures, players, picks, e.permissions, e.standings, e.notifier, "https://lms.test", logger).(*resultService)
	resultSvc.now = clock
	e.results = resultSvc

	authSvc := NewAuthService(users, e.notifier, "https://lms.test", logger).(*authService)
	authSvc.now = clock
	e.auth = authSvc

	reminderSvc := NewReminderService(competitions, rounds, picks, e.notifier, 24*time.Hour, "https://lms.test", logger).(*reminderService)
	reminderSvc.now = clock
	e.reminders = reminderSvc

	e.devices = NewDeviceService(fakeDeviceRepo{store})
	return e
}

func (e *testEnv) addUser(name string, role models.UserRole) *models.User {
	e.t.Helper()
	u := &models.User{DisplayName: name, Email: strings.ToLower(name) + "@example.com", Role: role}
	require.NoError(e.t, fakeUserRepo{e.store}.Create(e.ctx, u))
	return u
}

// addCompetition creates a competition in setup with the given starting lives.
func (e *testEnv) addCompetition(organiser *models.User, lives int) *models.Competition {
	e.t.Helper()
	c, err := e.competitions.CreateCompetition(e.ctx, organiser.ID, CreateCompetitionInput{
		Name:           "Office LMS",
		LivesPerPlayer: lives,
		TeamListID:     testTeamListID,
	})
	require.NoError(e.t, err)
	return c
}

func (e *testEnv) join(c *models.Competition, u *models.User) *models.Player {
	e.t.Helper()
	p, err := e.competitions.JoinByInviteCode(e.ctx, u.ID, c.InviteCode)
	require.NoError(e.t, err)
	return p
}

func (e *testEnv) grant(c *models.Competition, u *models.User, caps ...models.Capability) {
	e.t.Helper()
	grants := map[models.Capability]bool{}
	for _, capability := range caps {
		grants[capability] = true
	}
	_, err := e.permissions.GrantPermissions(e.ctx, c.OrganiserID, c.ID, u.ID, grants)
	require.NoError(e.t, err)
}

// fixture builds a FixtureInput kicking off at the lock time.
func fixture(home, away string, kickoff time.Time) FixtureInput {
	return FixtureInput{HomeTeam: home, AwayTeam: away, KickoffTime: kickoff}
}

// addRound creates the next round locking at lock with ARS v CHE and LIV v EVE.
func (e *testEnv) addRound(c *models.Competition, lock time.Time) *models.Round {
	e.t.Helper()
	r, err := e.rounds.CreateRound(e.ctx, c.OrganiserID, c.ID, CreateRoundInput{
		LockTime: lock,
		Fixtures: []FixtureInput{fixture("ARS", "CHE", lock), fixture("LIV", "EVE", lock)},
	})
	require.NoError(e.t, err)
	return r
}

func (e *testEnv) fixtureID(r *models.Round, team string) int {
	e.t.Helper()
	f := fixtureForTeam(r.Fixtures, team)
	require.NotNil(e.t, f, "no fixture for %s", team)
	return f.ID
}

func (e *testEnv) player(id int) *models.Player {
	e.t.Helper()
	p, err := fakePlayerRepo{e.store}.GetByID(e.ctx, nil, id, false)
	require.NoError(e.t, err)
	return p
}

func (e *testEnv) competition(id int) *models.Competition {
	e.t.Helper()
	c, err := fakeCompetitionRepo{e.store}.GetByID(e.ctx, nil, id, false)
	require.NoError(e.t, err)
	return c
}
