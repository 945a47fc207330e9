package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/repositories"
	"github.com/lmslocal/lms-server/services"
)

const maxLogoSize = 5 << 20

type CompetitionHandler struct {
	competitionService services.CompetitionService
	permissionService  services.PermissionService
	standingsService   services.StandingsService
}

func NewCompetitionHandler(cs services.CompetitionService, ps services.PermissionService, ss services.StandingsService) *CompetitionHandler {
	return &CompetitionHandler{
		competitionService: cs,
		permissionService:  ps,
		standingsService:   ss,
	}
}

// CreateCompetition godoc
// @Summary Create a competition
// @Description The caller becomes the organiser. An invite code and slug are generated.
// @Tags competitions
// @Accept json
// @Produce json
// @Param input body services.CreateCompetitionInput true "Competition"
// @Success 201 {object} map[string]interface{} "SUCCESS with competition"
// @Failure 400 {object} map[string]string "VALIDATION_ERROR"
// @Failure 404 {object} map[string]string "NOT_FOUND (team list)"
// @Security BearerAuth
// @Router /competitions [post]
func (h *CompetitionHandler) CreateCompetition(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var input services.CreateCompetitionInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	competition, err := h.competitionService.CreateCompetition(r.Context(), actor.UserID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	successResponse(w, r, http.StatusCreated, jsonResponse{"competition": competition})
}

// ListMyCompetitions godoc
// @Summary Competitions the caller organises, helps run or plays in
// @Tags competitions
// @Produce json
// @Param status query string false "setup, active or completed"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{} "SUCCESS with competitions"
// @Security BearerAuth
// @Router /competitions [get]
func (h *CompetitionHandler) ListMyCompetitions(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var filter repositories.CompetitionFilter
	query := r.URL.Query()
	if s := query.Get("status"); s != "" {
		status := models.CompetitionStatus(s)
		switch status {
		case models.CompetitionSetup, models.CompetitionActive, models.CompetitionCompleted:
			filter.Status = &status
		default:
			badRequestResponse(w, r, errors.New("invalid status filter"))
			return
		}
	}
	for name, dst := range map[string]*uint64{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := query.Get(name); v != "" {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				badRequestResponse(w, r, errors.New("invalid "+name+" query parameter"))
				return
			}
			*dst = n
		}
	}

	competitions, err := h.competitionService.ListMyCompetitions(r.Context(), actor.UserID, filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if competitions == nil {
		competitions = []*models.Competition{}
	}

	successResponse(w, r, http.StatusOK, jsonResponse{"competitions": competitions})
}

// GetCompetition godoc
// @Summary Competition details with the caller's access
// @Tags competitions
// @Produce json
// @Param competitionID path int true "Competition ID"
// @Success 200 {object} map[string]interface{} "SUCCESS with competition"
// @Failure 403 {object} map[string]string "UNAUTHORIZED"
// @Failure 404 {object} map[string]string "NOT_FOUND"
// @Security BearerAuth
// @Router /competitions/{competitionID} [get]
func (h *CompetitionHandler) GetCompetition(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	competition, err := h.competitionService.GetCompetition(r.Context(), actor.UserID, competitionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	successResponse(w, r, http.StatusOK, jsonResponse{"competition": competition})
}

// JoinCompetition godoc
// @Summary Join a competition with its invite code
// @Tags competitions
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{} "SUCCESS with player"
// @Failure 404 {object} map[string]string "NOT_FOUND (unknown code)"
// @Failure 409 {object} map[string]string "ROUND_LOCKED or CONFLICT (already joined)"
// @Security BearerAuth
// @Router /competitions/join [post]
func (h *CompetitionHandler) JoinCompetition(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var input struct {
		InviteCode string `json:"invite_code"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	player, err := h.competitionService.JoinByInviteCode(r.Context(), actor.UserID, input.InviteCode)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	successResponse(w, r, http.StatusCreated, jsonResponse{"player": player})
}

// ResetCompetition godoc
// @Summary Wipe rounds and picks and restore every player's lives
// @Tags competitions
// @Produce json
// @Param competitionID path int true "Competition ID"
// @Success 200 {object} map[string]interface{} "SUCCESS with competition"
// @Failure 403 {object} map[string]string "UNAUTHORIZED (organiser only)"
// @Security BearerAuth
// @Router /competitions/{competitionID}/reset [post]
func (h *CompetitionHandler) ResetCompetition(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	competition, err := h.competitionService.ResetCompetition(r.Context(), actor.UserID, competitionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	successResponse(w, r, http.StatusOK, jsonResponse{"competition": competition})
}

// GrantPermissions godoc
// @Summary Grant or revoke delegate capabilities
// @Description Capabilities: results, fixtures, players, promote. Organiser only.
// @Tags competitions
// @Accept json
// @Produce json
// @Param competitionID path int true "Competition ID"
// @Success 200 {object} map[string]interface{} "SUCCESS with the delegate's capabilities"
// @Failure 400 {object} map[string]string "VALIDATION_ERROR"
// @Failure 403 {object} map[string]string "UNAUTHORIZED"
// @Security BearerAuth
// @Router /competitions/{competitionID}/permissions [post]
func (h *CompetitionHandler) GrantPermissions(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var input struct {
		UserID       int                        `json:"user_id"`
		Capabilities map[models.Capability]bool `json:"capabilities"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.UserID <= 0 || len(input.Capabilities) == 0 {
		badRequestResponse(w, r, errors.New("user_id and capabilities are required"))
		return
	}

	cu, err := h.permissionService.GrantPermissions(r.Context(), actor.UserID, competitionID, input.UserID, input.Capabilities)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	successResponse(w, r, http.StatusOK, jsonResponse{
		"user_id":      cu.UserID,
		"capabilities": cu.Capabilities(),
	})
}

// UploadLogo godoc
// @Summary Upload a competition logo
// @Tags competitions
// @Accept multipart/form-data
// @Produce json
// @Param competitionID path int true "Competition ID"
// @Param logo formData file true "PNG, JPEG or WebP, up to 5MB"
// @Success 200 {object} map[string]interface{} "SUCCESS with competition"
// @Failure 415 {object} map[string]string "VALIDATION_ERROR (content type)"
// @Security BearerAuth
// @Router /competitions/{competitionID}/logo [post]
func (h *CompetitionHandler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxLogoSize+1024)
	if err := r.ParseMultipartForm(maxLogoSize); err != nil {
		badRequestResponse(w, r, errors.New("logo must be a multipart upload of at most 5MB"))
		return
	}

	file, header, err := r.FormFile("logo")
	if err != nil {
		badRequestResponse(w, r, errors.New("logo file is required"))
		return
	}
	defer file.Close()

	competition, err := h.competitionService.UploadLogo(r.Context(), actor.UserID, competitionID, file, header.Header.Get("Content-Type"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	successResponse(w, r, http.StatusOK, jsonResponse{"competition": competition})
}

// GetStandings godoc
// @Summary Lives, status and picks of every player
// @Description Current-round picks stay hidden until the round locks.
// @Tags competitions
// @Produce json
// @Param competitionID path int true "Competition ID"
// @Success 200 {object} map[string]interface{} "SUCCESS with standings"
// @Failure 403 {object} map[string]string "UNAUTHORIZED"
// @Security BearerAuth
// @Router /competitions/{competitionID}/standings [get]
func (h *CompetitionHandler) GetStandings(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	standings, err := h.standingsService.GetStandings(r.Context(), actor.UserID, competitionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	successResponse(w, r, http.StatusOK, jsonResponse{"standings": standings})
}
