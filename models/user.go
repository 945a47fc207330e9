package models

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type User struct {
	ID                     int        `json:"id"`
	DisplayName            string     `json:"display_name"`
	Email                  string     `json:"email"`
	Role                   UserRole   `json:"role"`
	PasswordHash           string     `json:"-"`
	PasswordResetToken     *string    `json:"-"`
	PasswordResetExpiresAt *time.Time `json:"-"`
	CreatedAt              time.Time  `json:"created_at"`
}
