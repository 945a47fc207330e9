package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"DATABASE_URL":   "postgres://localhost/lms",
		"JWT_SECRET_KEY": "secret",
	}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 5*time.Minute, cfg.ReminderInterval)
	assert.Equal(t, 24*time.Hour, cfg.ReminderWindow)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.R2Enabled())
	assert.False(t, cfg.SendgridEnabled())
	assert.False(t, cfg.APNSEnabled())
	assert.False(t, cfg.WebPushEnabled())
}

func TestFromEnvRequired(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database", map[string]string{"JWT_SECRET_KEY": "secret"}},
		{"missing jwt secret", map[string]string{"DATABASE_URL": "postgres://localhost/lms"}},
		{"bad port", map[string]string{"DATABASE_URL": "x", "JWT_SECRET_KEY": "y", "SERVER_PORT": "99999"}},
		{"bad window", map[string]string{"DATABASE_URL": "x", "JWT_SECRET_KEY": "y", "REMINDER_WINDOW": "soon"}},
		{"bad apns flag", map[string]string{"DATABASE_URL": "x", "JWT_SECRET_KEY": "y", "APNS_PRODUCTION": "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(lookup(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestFromEnvOrigins(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"DATABASE_URL":         "x",
		"JWT_SECRET_KEY":       "y",
		"PUBLIC_URL":           "https://lmslocal.co.uk/",
		"CORS_ALLOWED_ORIGINS": "https://lmslocal.co.uk, https://www.lmslocal.co.uk ,",
		"SENDGRID_API_KEY":     "SG.x",
		"EMAIL_FROM":           "noreply@lmslocal.co.uk",
	}))
	require.NoError(t, err)
	assert.Equal(t, "https://lmslocal.co.uk", cfg.PublicURL)
	assert.Equal(t, []string{"https://lmslocal.co.uk", "https://www.lmslocal.co.uk"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.SendgridEnabled())
}
