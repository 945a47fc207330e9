package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/lmslocal/lms-server/services"
)

// LiveHub attaches websocket connections to broadcast rooms.
type LiveHub interface {
	Serve(w http.ResponseWriter, r *http.Request, roomID string, checkOrigin func(*http.Request) bool) error
}

type WebSocketHandler struct {
	hub            LiveHub
	permissions    services.PermissionService
	allowedOrigins map[string]struct{}
	logger         *slog.Logger
}

// NewWebSocketHandler accepts connections from allowedOrigins only. An empty
// list accepts every origin.
func NewWebSocketHandler(hub LiveHub, permissions services.PermissionService, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return &WebSocketHandler{hub: hub, permissions: permissions, allowedOrigins: origins, logger: logger}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Native clients send no Origin.
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	_, ok := h.allowedOrigins[strings.ToLower(u.Scheme+"://"+u.Host)]
	return ok
}

// ServeWs godoc
// @Summary Live standings updates for a competition
// @Description Upgrades to a websocket. The token may be passed as ?token= because browsers cannot set headers on the handshake.
// @Tags live
// @Param competitionID path int true "Competition ID"
// @Param token query string false "Bearer token"
// @Success 101 "Switching Protocols"
// @Failure 403 {object} map[string]string "UNAUTHORIZED"
// @Router /ws/competitions/{competitionID} [get]
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	allowed, err := h.permissions.CanView(r.Context(), actor.UserID, competitionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if !allowed {
		errorResponse(w, r, http.StatusForbidden, codeUnauthorized, "not a member of this competition")
		return
	}

	roomID := services.RoomForCompetition(competitionID)
	if err := h.hub.Serve(w, r, roomID, h.checkOrigin); err != nil {
		// The upgrader has already answered the client.
		h.logger.Warn("websocket upgrade failed", slog.String("room", roomID), slog.Any("error", err))
		return
	}
	h.logger.Debug("websocket connected", slog.String("room", roomID), slog.Int("user_id", actor.UserID))
}
