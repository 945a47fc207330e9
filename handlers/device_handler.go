package handlers

import (
	"errors"
	"net/http"

	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/services"
)

type DeviceHandler struct {
	deviceService services.DeviceService
}

func NewDeviceHandler(ds services.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceService: ds}
}

// RegisterDevice godoc
// @Summary Register a push target
// @Description platform "ios" takes an APNs device token, "web" takes a Web Push subscription JSON.
// @Tags devices
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{} "SUCCESS with device"
// @Failure 400 {object} map[string]string "VALIDATION_ERROR"
// @Security BearerAuth
// @Router /devices [post]
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var input struct {
		Platform models.DevicePlatform `json:"platform"`
		Token    string                `json:"token"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Platform == "" || input.Token == "" {
		badRequestResponse(w, r, errors.New("platform and token are required"))
		return
	}

	device, err := h.deviceService.RegisterDevice(r.Context(), actor.UserID, input.Platform, input.Token)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	successResponse(w, r, http.StatusCreated, jsonResponse{"device": device})
}
