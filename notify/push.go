package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/lmslocal/lms-server/models"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// ErrDeviceGone means the provider rejected the device for good; the
// registration should be deleted.
var ErrDeviceGone = errors.New("push device no longer valid")

// Pusher delivers one push message to one device.
type Pusher interface {
	Push(ctx context.Context, device *models.Device, title, body, link string) error
}

type APNSConfig struct {
	KeyPath    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

type APNSPusher struct {
	client *apns2.Client
	topic  string
}

func NewAPNSPusher(cfg APNSConfig) (*APNSPusher, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load apns auth key: %w", err)
	}
	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}
	return &APNSPusher{client: client, topic: cfg.Topic}, nil
}

func (p *APNSPusher) Push(ctx context.Context, device *models.Device, title, body, link string) error {
	pl := payload.NewPayload().AlertTitle(title).AlertBody(body).Sound("default")
	if link != "" {
		pl = pl.Custom("link", link)
	}

	res, err := p.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: device.Token,
		Topic:       p.topic,
		Payload:     pl,
	})
	if err != nil {
		return fmt.Errorf("apns push: %w", err)
	}
	if res.Sent() {
		return nil
	}
	if res.Reason == apns2.ReasonBadDeviceToken || res.Reason == apns2.ReasonUnregistered {
		return fmt.Errorf("%w: %s", ErrDeviceGone, res.Reason)
	}
	return fmt.Errorf("apns push: status %d: %s", res.StatusCode, res.Reason)
}

type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

type WebPusher struct {
	cfg WebPushConfig
}

func NewWebPusher(cfg WebPushConfig) *WebPusher {
	return &WebPusher{cfg: cfg}
}

type webPushMessage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Link  string `json:"link,omitempty"`
}

// ValidateWebSubscription checks that token is a browser PushSubscription JSON
// document with an endpoint and both keys.
func ValidateWebSubscription(token string) error {
	_, err := parseSubscription(token)
	return err
}

func parseSubscription(token string) (*webpush.Subscription, error) {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(token), &sub); err != nil {
		return nil, fmt.Errorf("web push subscription is not valid JSON: %w", err)
	}
	if sub.Endpoint == "" || sub.Keys.Auth == "" || sub.Keys.P256dh == "" {
		return nil, errors.New("web push subscription needs endpoint, keys.auth and keys.p256dh")
	}
	return &sub, nil
}

func (p *WebPusher) Push(ctx context.Context, device *models.Device, title, body, link string) error {
	sub, err := parseSubscription(device.Token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceGone, err)
	}
	message, err := json.Marshal(webPushMessage{Title: title, Body: body, Link: link})
	if err != nil {
		return err
	}

	resp, err := webpush.SendNotificationWithContext(ctx, message, sub, &webpush.Options{
		Subscriber:      p.cfg.Subject,
		VAPIDPublicKey:  p.cfg.PublicKey,
		VAPIDPrivateKey: p.cfg.PrivateKey,
		TTL:             3600,
	})
	if err != nil {
		return fmt.Errorf("web push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrDeviceGone, resp.StatusCode)
	case resp.StatusCode >= 300:
		return fmt.Errorf("web push: status %d", resp.StatusCode)
	}
	return nil
}

// PlatformPusher routes a device to the pusher of its platform. A nil pusher
// disables that platform.
type PlatformPusher struct {
	IOS Pusher
	Web Pusher
}

var errPlatformDisabled = errors.New("push platform not configured")

func (p PlatformPusher) Push(ctx context.Context, device *models.Device, title, body, link string) error {
	var target Pusher
	switch device.Platform {
	case models.PlatformIOS:
		target = p.IOS
	case models.PlatformWeb:
		target = p.Web
	}
	if target == nil {
		return errPlatformDisabled
	}
	return target.Push(ctx, device, title, body, link)
}
