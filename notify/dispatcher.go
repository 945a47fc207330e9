package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lmslocal/lms-server/metrics"
	"github.com/lmslocal/lms-server/models"
	"golang.org/x/sync/errgroup"
)

const (
	defaultQueueSize   = 256
	defaultFanout      = 8
	deliveryTimeout    = 30 * time.Second
	channelEmail       = "email"
	channelPush        = "push"
	channelQueue       = "queue"
	resultSent         = "sent"
	resultFailed       = "failed"
	resultDropped      = "dropped"
	resultDeviceRemove = "device_removed"
)

// UserDirectory resolves user ids to email recipients.
type UserDirectory interface {
	ListByIDs(ctx context.Context, ids []int) ([]*models.User, error)
}

// DeviceDirectory lists and prunes push registrations.
type DeviceDirectory interface {
	ListByUsers(ctx context.Context, userIDs []int) ([]*models.Device, error)
	Delete(ctx context.Context, id int) error
}

type DispatcherConfig struct {
	QueueSize int
	Fanout    int
}

// Dispatcher delivers notifications on a background worker. Enqueue never
// blocks; when the queue is full the notification is dropped and counted.
type Dispatcher struct {
	queue    chan Notification
	users    UserDirectory
	devices  DeviceDirectory
	renderer *Renderer
	mailer   Mailer
	pusher   Pusher
	fanout   int
	logger   *slog.Logger

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
}

func NewDispatcher(cfg DispatcherConfig, users UserDirectory, devices DeviceDirectory, renderer *Renderer, mailer Mailer, pusher Pusher, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = defaultFanout
	}
	return &Dispatcher{
		queue:    make(chan Notification, cfg.QueueSize),
		users:    users,
		devices:  devices,
		renderer: renderer,
		mailer:   mailer,
		pusher:   pusher,
		fanout:   cfg.Fanout,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (d *Dispatcher) Enqueue(n Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		metrics.NotificationsSent.WithLabelValues(channelQueue, resultDropped).Inc()
		return false
	}
	select {
	case d.queue <- n:
		metrics.NotificationQueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		metrics.NotificationsSent.WithLabelValues(channelQueue, resultDropped).Inc()
		d.logger.Warn("notification queue full, dropping", slog.String("kind", string(n.Kind)))
		return false
	}
}

// Run delivers queued notifications until Stop drains the queue.
func (d *Dispatcher) Run() {
	defer close(d.done)
	for n := range d.queue {
		metrics.NotificationQueueDepth.Set(float64(len(d.queue)))
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		d.deliver(ctx, n)
		cancel()
	}
}

// Stop refuses new notifications, then waits for the queue to drain or ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	recipients, err := d.recipients(ctx, n)
	if err != nil {
		d.logger.Error("failed to resolve notification recipients", slog.String("kind", string(n.Kind)), slog.Any("error", err))
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.fanout)

	if d.mailer != nil && d.renderer != nil {
		for _, rcpt := range recipients {
			g.Go(func() error {
				d.sendEmail(gctx, n, rcpt)
				return nil
			})
		}
	}

	if n.Push && d.pusher != nil && d.devices != nil && len(n.UserIDs) > 0 {
		devices, err := d.devices.ListByUsers(ctx, n.UserIDs)
		if err != nil {
			d.logger.Error("failed to list push devices", slog.String("kind", string(n.Kind)), slog.Any("error", err))
		}
		for _, device := range devices {
			g.Go(func() error {
				d.sendPush(gctx, n, device)
				return nil
			})
		}
	}

	_ = g.Wait()
}

func (d *Dispatcher) recipients(ctx context.Context, n Notification) ([]Recipient, error) {
	if n.Email != "" {
		return []Recipient{{Name: n.Name, Email: n.Email}}, nil
	}
	if len(n.UserIDs) == 0 || d.users == nil {
		return nil, nil
	}
	users, err := d.users.ListByIDs(ctx, n.UserIDs)
	if err != nil {
		return nil, err
	}
	recipients := make([]Recipient, 0, len(users))
	for _, u := range users {
		recipients = append(recipients, Recipient{UserID: u.ID, Name: u.DisplayName, Email: u.Email})
	}
	return recipients, nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, n Notification, to Recipient) {
	html, text, err := d.renderer.Render(n, to)
	if err == nil {
		err = d.mailer.Send(ctx, to, n.Subject, html, text)
	}
	if err != nil {
		metrics.NotificationsSent.WithLabelValues(channelEmail, resultFailed).Inc()
		d.logger.Error("email delivery failed",
			slog.String("kind", string(n.Kind)),
			slog.Int("user_id", to.UserID),
			slog.Any("error", err))
		return
	}
	metrics.NotificationsSent.WithLabelValues(channelEmail, resultSent).Inc()
}

func (d *Dispatcher) sendPush(ctx context.Context, n Notification, device *models.Device) {
	err := d.pusher.Push(ctx, device, n.Subject, n.Body, n.Link)
	switch {
	case err == nil:
		metrics.NotificationsSent.WithLabelValues(channelPush, resultSent).Inc()
	case errors.Is(err, ErrDeviceGone):
		metrics.NotificationsSent.WithLabelValues(channelPush, resultDeviceRemove).Inc()
		if delErr := d.devices.Delete(ctx, device.ID); delErr != nil {
			d.logger.Warn("failed to delete stale device", slog.Int("device_id", device.ID), slog.Any("error", delErr))
		}
	case errors.Is(err, errPlatformDisabled):
	default:
		metrics.NotificationsSent.WithLabelValues(channelPush, resultFailed).Inc()
		d.logger.Error("push delivery failed",
			slog.String("kind", string(n.Kind)),
			slog.Int("device_id", device.ID),
			slog.String("platform", string(device.Platform)),
			slog.Any("error", err))
	}
}
