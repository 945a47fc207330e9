package services

import "errors"

// Errors shared by the services and the HTTP error mapping.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Validation and business rules
	ErrValidationFailed        = errors.New("validation failed")
	ErrPasswordTooShort        = errors.New("password is too short")
	ErrInvalidEmail            = errors.New("invalid email address")
	ErrRoundOpen               = errors.New("round is still open for picks")
	ErrPreviousRoundIncomplete = errors.New("previous round has not been processed")
	ErrCompetitionCompleted    = errors.New("competition is completed")
	ErrInvalidCapability       = errors.New("unknown capability")
	ErrUnsupportedContentType  = errors.New("unsupported file content type")
	ErrStorageUnavailable      = errors.New("file storage is not configured")

	// Game rules with their own return codes
	ErrRoundLocked     = errors.New("round is locked")
	ErrDuplicatePick   = errors.New("pick already submitted for this round")
	ErrTeamAlreadyUsed = errors.New("team already used by this player")

	// Conflicts
	ErrConflict          = errors.New("conflict")
	ErrResultConflict    = errors.New("fixture already has a different result")
	ErrUserEmailConflict = errors.New("email address is already in use")
	ErrAlreadyJoined     = errors.New("user already joined this competition")
	ErrRoundProcessed    = errors.New("round has already been processed")

	// Authentication and authorization
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrUnauthorized       = errors.New("operation not allowed for the current user")
	ErrNotActivePlayer    = errors.New("user is not an active player in this competition")

	// Entity specific not-found errors
	ErrUserNotFound        = errors.New("user not found")
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrRoundNotFound       = errors.New("round not found")
	ErrFixtureNotFound     = errors.New("fixture not found")
	ErrTeamListNotFound    = errors.New("team list not found")
	ErrPlayerNotFound      = errors.New("player not found")
)
