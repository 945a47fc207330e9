// Package docs registers the OpenAPI description served at /swagger/.
// Regenerate the paths with `swag init -g cmd/main.go` after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/auth/register": {"post": {"tags": ["auth"], "summary": "Register a new account", "responses": {"201": {"description": "SUCCESS"}, "400": {"description": "VALIDATION_ERROR"}, "409": {"description": "CONFLICT"}}}},
        "/auth/login": {"post": {"tags": ["auth"], "summary": "Log in with email and password", "responses": {"200": {"description": "SUCCESS"}, "401": {"description": "UNAUTHORIZED"}}}},
        "/auth/forgot-password": {"post": {"tags": ["auth"], "summary": "Email a password reset link", "responses": {"200": {"description": "SUCCESS"}}}},
        "/auth/reset-password": {"post": {"tags": ["auth"], "summary": "Set a new password with a reset token", "responses": {"200": {"description": "SUCCESS"}, "400": {"description": "VALIDATION_ERROR"}}}},
        "/competitions": {
            "get": {"tags": ["competitions"], "summary": "Competitions the caller organises, helps run or plays in", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "SUCCESS"}}},
            "post": {"tags": ["competitions"], "summary": "Create a competition", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "SUCCESS"}, "400": {"description": "VALIDATION_ERROR"}}}
        },
        "/competitions/join": {"post": {"tags": ["competitions"], "summary": "Join a competition with its invite code", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "SUCCESS"}, "409": {"description": "ROUND_LOCKED or CONFLICT"}}}},
        "/competitions/{competitionID}": {"get": {"tags": ["competitions"], "summary": "Competition details with the caller's access", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "competitionID", "in": "path", "required": true}], "responses": {"200": {"description": "SUCCESS"}, "404": {"description": "NOT_FOUND"}}}},
        "/competitions/{competitionID}/permissions": {"post": {"tags": ["competitions"], "summary": "Grant or revoke delegate capabilities", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "competitionID", "in": "path", "required": true}], "responses": {"200": {"description": "SUCCESS"}, "403": {"description": "UNAUTHORIZED"}}}},
        "/competitions/{competitionID}/reset": {"post": {"tags": ["competitions"], "summary": "Wipe rounds and picks and restore every player's lives", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "competitionID", "in": "path", "required": true}], "responses": {"200": {"description": "SUCCESS"}, "403": {"description": "UNAUTHORIZED"}}}},
        "/competitions/{competitionID}/logo": {"post": {"tags": ["competitions"], "summary": "Upload a competition logo", "consumes": ["multipart/form-data"], "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "competitionID", "in": "path", "required": true}, {"type": "file", "name": "logo", "in": "formData", "required": true}], "responses": {"200": {"description": "SUCCESS"}, "415": {"description": "VALIDATION_ERROR"}}}},
        "/competitions/{competitionID}/standings": {"get": {"tags": ["competitions"], "summary": "Lives, status and picks of every player", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "competitionID", "in": "path", "required": true}], "responses": {"200": {"description": "SUCCESS"}}}},
        "/competitions/{competitionID}/rounds": {
            "get": {"tags": ["rounds"], "summary": "Rounds of a competition with their derived state", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "competitionID", "in": "path", "required": true}], "responses": {"200": {"description": "SUCCESS"}}},
            "post": {"tags": ["rounds"], "summary": "Open the next round with its fixtures", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "competitionID", "in": "path", "required": true}], "responses": {"201": {"description": "SUCCESS"}, "400": {"description": "VALIDATION_ERROR"}}}
        },
        "/rounds/{roundID}/fixtures": {"post": {"tags": ["rounds"], "summary": "Replace the fixtures of a round", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "roundID", "in": "path", "required": true}], "responses": {"200": {"description": "SUCCESS"}, "409": {"description": "ROUND_LOCKED or CONFLICT"}}}},
        "/rounds/{roundID}/picks": {"post": {"tags": ["picks"], "summary": "Pick a team for a round", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "roundID", "in": "path", "required": true}], "responses": {"201": {"description": "SUCCESS"}, "409": {"description": "ROUND_LOCKED, DUPLICATE_PICK or TEAM_ALREADY_USED"}}}},
        "/rounds/{roundID}/picks/override": {"post": {"tags": ["picks"], "summary": "Set or replace a player's pick on their behalf", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "roundID", "in": "path", "required": true}], "responses": {"200": {"description": "SUCCESS"}}}},
        "/fixtures/{fixtureID}/result": {"post": {"tags": ["results"], "summary": "Record a fixture result", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "fixtureID", "in": "path", "required": true}], "responses": {"200": {"description": "SUCCESS"}, "409": {"description": "CONFLICT"}}}},
        "/devices": {"post": {"tags": ["devices"], "summary": "Register a push target", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "SUCCESS"}}}},
        "/ws/competitions/{competitionID}": {"get": {"tags": ["live"], "summary": "Live standings updates for a competition", "parameters": [{"type": "integer", "name": "competitionID", "in": "path", "required": true}, {"type": "string", "name": "token", "in": "query"}], "responses": {"101": {"description": "Switching Protocols"}}}}
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "LMSLocal API",
	Description:      "Last Man Standing football prediction competitions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
