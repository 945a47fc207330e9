package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/lmslocal/lms-server/engine"
	"github.com/lmslocal/lms-server/metrics"
	"github.com/lmslocal/lms-server/middleware"
	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/services"
)

type jsonResponse map[string]interface{}

// API return codes. Clients branch on these, not on the HTTP status.
const (
	codeSuccess         = "SUCCESS"
	codeValidation      = "VALIDATION_ERROR"
	codeUnauthorized    = "UNAUTHORIZED"
	codeNotFound        = "NOT_FOUND"
	codeRoundLocked     = "ROUND_LOCKED"
	codeDuplicatePick   = "DUPLICATE_PICK"
	codeTeamAlreadyUsed = "TEAM_ALREADY_USED"
	codeConflict        = "CONFLICT"
	codeInternal        = "INTERNAL"
)

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err)
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

// successResponse writes payload with return_code SUCCESS merged in.
func successResponse(w http.ResponseWriter, r *http.Request, status int, payload jsonResponse) {
	env := jsonResponse{"return_code": codeSuccess}
	for k, v := range payload {
		env[k] = v
	}
	metrics.ReturnCodes.WithLabelValues(codeSuccess).Inc()
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.Default().Error("failed to write response", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func errorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	metrics.ReturnCodes.WithLabelValues(code).Inc()
	env := jsonResponse{"return_code": code, "message": message}
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.Default().Error("failed to write error response", slog.String("path", r.URL.Path), slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.Default().Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
	errorResponse(w, r, http.StatusInternalServerError, codeInternal, "the server encountered a problem and could not process your request")
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, codeValidation, err.Error())
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusUnauthorized, codeUnauthorized, message)
}

// errorMapping is one row of the service error table.
type errorMapping struct {
	target error
	status int
	code   string
}

var serviceErrors = []errorMapping{
	{services.ErrRoundLocked, http.StatusConflict, codeRoundLocked},
	{services.ErrDuplicatePick, http.StatusConflict, codeDuplicatePick},
	{services.ErrTeamAlreadyUsed, http.StatusConflict, codeTeamAlreadyUsed},

	{services.ErrNotFound, http.StatusNotFound, codeNotFound},
	{services.ErrUserNotFound, http.StatusNotFound, codeNotFound},
	{services.ErrCompetitionNotFound, http.StatusNotFound, codeNotFound},
	{services.ErrRoundNotFound, http.StatusNotFound, codeNotFound},
	{services.ErrFixtureNotFound, http.StatusNotFound, codeNotFound},
	{services.ErrTeamListNotFound, http.StatusNotFound, codeNotFound},
	{services.ErrPlayerNotFound, http.StatusNotFound, codeNotFound},

	{services.ErrConflict, http.StatusConflict, codeConflict},
	{services.ErrResultConflict, http.StatusConflict, codeConflict},
	{services.ErrUserEmailConflict, http.StatusConflict, codeConflict},
	{services.ErrAlreadyJoined, http.StatusConflict, codeConflict},
	{services.ErrRoundProcessed, http.StatusConflict, codeConflict},
	{engine.ErrInvalidTransition, http.StatusConflict, codeConflict},

	{services.ErrInvalidCredentials, http.StatusUnauthorized, codeUnauthorized},
	{services.ErrUnauthorized, http.StatusForbidden, codeUnauthorized},
	{services.ErrNotActivePlayer, http.StatusForbidden, codeUnauthorized},

	{services.ErrValidationFailed, http.StatusBadRequest, codeValidation},
	{services.ErrPasswordTooShort, http.StatusBadRequest, codeValidation},
	{services.ErrInvalidEmail, http.StatusBadRequest, codeValidation},
	{services.ErrInvalidResetToken, http.StatusBadRequest, codeValidation},
	{services.ErrRoundOpen, http.StatusBadRequest, codeValidation},
	{services.ErrPreviousRoundIncomplete, http.StatusBadRequest, codeValidation},
	{services.ErrCompetitionCompleted, http.StatusBadRequest, codeValidation},
	{services.ErrInvalidCapability, http.StatusBadRequest, codeValidation},
	{services.ErrUnsupportedContentType, http.StatusUnsupportedMediaType, codeValidation},
}

// mapServiceErrorToHTTP translates service errors into HTTP responses.
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			errorResponse(w, r, m.status, m.code, err.Error())
			return
		}
	}
	if errors.Is(err, services.ErrStorageUnavailable) {
		errorResponse(w, r, http.StatusServiceUnavailable, codeInternal, err.Error())
		return
	}
	serverErrorResponse(w, r, err)
}

func getIDFromURL(r *http.Request, paramName string) (int, error) {
	idStr := chi.URLParam(r, paramName)
	if idStr == "" {
		return 0, fmt.Errorf("missing %s in URL path", paramName)
	}
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s in URL path: %q", paramName, idStr)
	}
	return id, nil
}

// currentActor reads the authenticated user from the request. It writes the
// UNAUTHORIZED response itself when the claims are unusable.
func currentActor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return services.Actor{}, false
	}
	role, err := middleware.GetUserRoleFromContext(r.Context())
	if err != nil {
		role = models.RoleUser
	}
	return services.Actor{UserID: userID, Role: role}, true
}
