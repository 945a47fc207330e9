package models

import "time"

type DevicePlatform string

const (
	PlatformIOS DevicePlatform = "ios"
	PlatformWeb DevicePlatform = "web"
)

// Device is a push target. For web devices Token holds the JSON push subscription.
type Device struct {
	ID        int            `json:"id"`
	UserID    int            `json:"user_id"`
	Platform  DevicePlatform `json:"platform"`
	Token     string         `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
}
