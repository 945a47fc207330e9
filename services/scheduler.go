package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const reminderRunTimeout = time.Minute

// StartReminderScheduler runs SendDueReminders every interval. The caller
// shuts the returned scheduler down on exit.
func StartReminderScheduler(reminders ReminderService, interval time.Duration, logger *slog.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), reminderRunTimeout)
			defer cancel()

			n, err := reminders.SendDueReminders(ctx)
			if err != nil {
				logger.Error("pick reminder run failed", slog.Any("error", err))
				return
			}
			if n > 0 {
				logger.Info("pick reminders handled", slog.Int("rounds", n))
			}
		}),
		gocron.WithName("pick-reminders"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to schedule pick reminders: %w", err)
	}

	sched.Start()
	return sched, nil
}
