package handlers

import (
	"errors"
	"net/http"

	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/services"
)

type RoundHandler struct {
	roundService  services.RoundService
	pickService   services.PickService
	resultService services.ResultService
}

func NewRoundHandler(rs services.RoundService, ps services.PickService, res services.ResultService) *RoundHandler {
	return &RoundHandler{
		roundService:  rs,
		pickService:   ps,
		resultService: res,
	}
}

// CreateRound godoc
// @Summary Open the next round with its fixtures
// @Description Needs the fixtures capability. The previous round must be processed.
// @Tags rounds
// @Accept json
// @Produce json
// @Param competitionID path int true "Competition ID"
// @Param input body services.CreateRoundInput true "Lock time and fixtures"
// @Success 201 {object} map[string]interface{} "SUCCESS with round"
// @Failure 400 {object} map[string]string "VALIDATION_ERROR"
// @Failure 403 {object} map[string]string "UNAUTHORIZED"
// @Security BearerAuth
// @Router /competitions/{competitionID}/rounds [post]
func (h *RoundHandler) CreateRound(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var input services.CreateRoundInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	round, err := h.roundService.CreateRound(r.Context(), actor.UserID, competitionID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	successResponse(w, r, http.StatusCreated, jsonResponse{"round": round})
}

// ListRounds godoc
// @Summary Rounds of a competition with their derived state
// @Tags rounds
// @Produce json
// @Param competitionID path int true "Competition ID"
// @Success 200 {object} map[string]interface{} "SUCCESS with rounds"
// @Security BearerAuth
// @Router /competitions/{competitionID}/rounds [get]
func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	rounds, err := h.roundService.ListRounds(r.Context(), actor.UserID, competitionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if rounds == nil {
		rounds = []*models.Round{}
	}

	successResponse(w, r, http.StatusOK, jsonResponse{"rounds": rounds})
}

// ReplaceFixtures godoc
// @Summary Replace the fixtures of a round
// @Description Rejected with ROUND_LOCKED once the round is locked and has picks, unless an admin overrides.
// @Tags rounds
// @Accept json
// @Produce json
// @Param roundID path int true "Round ID"
// @Success 200 {object} map[string]interface{} "SUCCESS with round"
// @Failure 409 {object} map[string]string "ROUND_LOCKED or CONFLICT (processed)"
// @Security BearerAuth
// @Router /rounds/{roundID}/fixtures [post]
func (h *RoundHandler) ReplaceFixtures(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var input struct {
		Fixtures []services.FixtureInput `json:"fixtures"`
		Override bool                    `json:"override"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	round, err := h.roundService.ReplaceFixtures(r.Context(), actor, roundID, input.Fixtures, input.Override)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	successResponse(w, r, http.StatusOK, jsonResponse{"round": round})
}

// SubmitPick godoc
// @Summary Pick a team for a round
// @Tags picks
// @Accept json
// @Produce json
// @Param roundID path int true "Round ID"
// @Success 201 {object} map[string]interface{} "SUCCESS with pick"
// @Failure 400 {object} map[string]string "VALIDATION_ERROR (team not playing)"
// @Failure 403 {object} map[string]string "UNAUTHORIZED (not an active player)"
// @Failure 409 {object} map[string]string "ROUND_LOCKED, DUPLICATE_PICK or TEAM_ALREADY_USED"
// @Security BearerAuth
// @Router /rounds/{roundID}/picks [post]
func (h *RoundHandler) SubmitPick(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var input struct {
		Team string `json:"team"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Team == "" {
		badRequestResponse(w, r, errors.New("team is required"))
		return
	}

	pick, err := h.pickService.SubmitPick(r.Context(), actor.UserID, roundID, input.Team)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	successResponse(w, r, http.StatusCreated, jsonResponse{"pick": pick})
}

// OverridePick godoc
// @Summary Set or replace a player's pick on their behalf
// @Description Needs the players capability. Allowed after lock.
// @Tags picks
// @Accept json
// @Produce json
// @Param roundID path int true "Round ID"
// @Success 200 {object} map[string]interface{} "SUCCESS with pick"
// @Security BearerAuth
// @Router /rounds/{roundID}/picks/override [post]
func (h *RoundHandler) OverridePick(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var input struct {
		UserID int    `json:"user_id"`
		Team   string `json:"team"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.UserID <= 0 || input.Team == "" {
		badRequestResponse(w, r, errors.New("user_id and team are required"))
		return
	}

	pick, err := h.pickService.OverridePick(r.Context(), actor.UserID, roundID, input.UserID, input.Team)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	successResponse(w, r, http.StatusOK, jsonResponse{"pick": pick})
}

// ApplyResult godoc
// @Summary Record a fixture result
// @Description Needs the results capability. The round is processed when its last result arrives.
// @Description A different score for a resulted fixture needs override (admin or organiser).
// @Tags results
// @Accept json
// @Produce json
// @Param fixtureID path int true "Fixture ID"
// @Success 200 {object} map[string]interface{} "SUCCESS with result outcome"
// @Failure 400 {object} map[string]string "VALIDATION_ERROR (round still open)"
// @Failure 409 {object} map[string]string "CONFLICT (different result exists)"
// @Security BearerAuth
// @Router /fixtures/{fixtureID}/result [post]
func (h *RoundHandler) ApplyResult(w http.ResponseWriter, r *http.Request) {
	fixtureID, err := getIDFromURL(r, "fixtureID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var input struct {
		HomeScore *int `json:"home_score"`
		AwayScore *int `json:"away_score"`
		Override  bool `json:"override"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.HomeScore == nil || input.AwayScore == nil {
		badRequestResponse(w, r, errors.New("home_score and away_score are required"))
		return
	}

	outcome, err := h.resultService.ApplyResult(r.Context(), actor, fixtureID, *input.HomeScore, *input.AwayScore, input.Override)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	successResponse(w, r, http.StatusOK, jsonResponse{"result": outcome})
}
