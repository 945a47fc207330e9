package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lmslocal/lms-server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoUser(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := GetUserIDFromContext(r.Context())
		require.NoError(t, err)
		role, err := GetUserRoleFromContext(r.Context())
		require.NoError(t, err)
		w.Header().Set("X-User-ID", strconv.Itoa(id))
		w.Header().Set("X-User-Role", string(role))
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	token, err := IssueToken([]byte(testSecret), &models.User{ID: 42, Role: models.RoleAdmin, DisplayName: "Ann"}, time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken([]byte(testSecret), &models.User{ID: 42, Role: models.RoleUser}, -time.Hour)
	require.NoError(t, err)
	forged, err := IssueToken([]byte("other"), &models.User{ID: 42, Role: models.RoleUser}, time.Hour)
	require.NoError(t, err)

	handler := Authenticate(testSecret, discardLogger())(echoUser(t))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Token " + token, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/competitions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "42", rec.Header().Get("X-User-ID"))
				assert.Equal(t, "admin", rec.Header().Get("X-User-Role"))
			} else {
				assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
			}
		})
	}
}

func TestAuthenticateWebSocketQueryToken(t *testing.T) {
	token, err := IssueToken([]byte(testSecret), &models.User{ID: 7, Role: models.RoleUser}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws/competitions/1?token="+token, nil)
	rec := httptest.NewRecorder()
	AuthenticateWebSocket(testSecret, discardLogger())(echoUser(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("X-User-ID"))

	rec = httptest.NewRecorder()
	Authenticate(testSecret, discardLogger())(echoUser(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetUserIDFromContext(t *testing.T) {
	tests := []struct {
		name    string
		claims  jwt.MapClaims
		want    int
		wantErr bool
	}{
		{"float", jwt.MapClaims{"user_id": float64(12)}, 12, false},
		{"string", jwt.MapClaims{"user_id": "13"}, 13, false},
		{"fraction", jwt.MapClaims{"user_id": 1.5}, 0, true},
		{"zero", jwt.MapClaims{"user_id": float64(0)}, 0, true},
		{"missing", jwt.MapClaims{}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := GetUserIDFromContext(WithClaims(context.Background(), tt.claims))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}

	_, err := GetUserIDFromContext(context.Background())
	assert.Error(t, err)
}

func TestGetUserRoleFromContextRejectsUnknownRole(t *testing.T) {
	_, err := GetUserRoleFromContext(WithClaims(context.Background(), jwt.MapClaims{"role": "organizer"}))
	assert.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(time.Hour, 2, "slow down")
	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1000"))
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1002"))
	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:1000"))
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := NewRateLimiter(time.Second, 1, "")
	now := time.Now()
	limiter.now = func() time.Time { return now }
	limiter.limiterFor("10.0.0.1")

	now = now.Add(time.Hour)
	limiter.limiterFor("10.0.0.2")
	limiter.Cleanup(time.Minute)

	assert.Len(t, limiter.visitors, 1)
	assert.Contains(t, limiter.visitors, "10.0.0.2")
}
