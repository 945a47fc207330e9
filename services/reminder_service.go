package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lmslocal/lms-server/notify"
	"github.com/lmslocal/lms-server/repositories"
)

type ReminderService interface {
	SendDueReminders(ctx context.Context) (int, error)
}

type reminderService struct {
	competitionRepo repositories.CompetitionRepository
	roundRepo       repositories.RoundRepository
	pickRepo        repositories.PickRepository
	notifier        Notifier
	window          time.Duration
	publicURL       string
	logger          *slog.Logger
	now             func() time.Time
}

func NewReminderService(
	competitionRepo repositories.CompetitionRepository,
	roundRepo repositories.RoundRepository,
	pickRepo repositories.PickRepository,
	notifier Notifier,
	window time.Duration,
	publicURL string,
	logger *slog.Logger,
) ReminderService {
	return &reminderService{
		competitionRepo: competitionRepo,
		roundRepo:       roundRepo,
		pickRepo:        pickRepo,
		notifier:        notifier,
		window:          window,
		publicURL:       publicURL,
		logger:          logger,
		now:             time.Now,
	}
}

// SendDueReminders queues a pick reminder for every round locking within the
// window, addressed to active players who have not picked. Each round is
// reminded once. It returns the number of rounds handled.
func (s *reminderService) SendDueReminders(ctx context.Context) (int, error) {
	now := s.now()
	rounds, err := s.roundRepo.ListNeedingReminder(ctx, now, now.Add(s.window))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, round := range rounds {
		userIDs, err := s.pickRepo.ListUsersWithoutPick(ctx, round.ID)
		if err != nil {
			return sent, err
		}
		if len(userIDs) > 0 {
			competition, err := s.competitionRepo.GetByID(ctx, nil, round.CompetitionID, false)
			if err != nil {
				return sent, err
			}
			queued := s.notifier.Enqueue(notify.Notification{
				Kind:     notify.KindPickReminder,
				UserIDs:  userIDs,
				Subject:  fmt.Sprintf("Round %d of %s locks soon", round.RoundNumber, competition.Name),
				Body:     fmt.Sprintf("You have not picked a team yet. Picks lock at %s UTC.", round.LockTime.UTC().Format("Mon 2 Jan 15:04")),
				Link:     fmt.Sprintf("%s/competitions/%d", s.publicURL, competition.ID),
				LinkText: "Make your pick",
				Push:     true,
			})
			if !queued {
				// Leave reminder_sent_at unset so the next run retries.
				s.logger.WarnContext(ctx, "pick reminder dropped, queue full", slog.Int("round_id", round.ID))
				continue
			}
		}
		if err := s.roundRepo.MarkReminderSent(ctx, round.ID, now); err != nil {
			return sent, err
		}
		sent++
		s.logger.InfoContext(ctx, "pick reminder queued", slog.Int("round_id", round.ID), slog.Int("recipients", len(userIDs)))
	}
	return sent, nil
}
