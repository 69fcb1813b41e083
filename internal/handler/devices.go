package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bluebricks/rba-harness/internal/device"
	"github.com/bluebricks/rba-harness/internal/service"
)

// DeviceManager reads and extends the device profile store.
type DeviceManager interface {
	Details() (json.RawMessage, error)
	AddProfiles(userIDs []string) error
}

type DeviceHandler struct {
	devices DeviceManager
}

func NewDeviceHandler(devices DeviceManager) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// Details handles GET /api/device-details.
func (h *DeviceHandler) Details(w http.ResponseWriter, r *http.Request) {
	doc, err := h.devices.Details()
	switch {
	case errors.Is(err, device.ErrStoreFormat):
		writeError(w, http.StatusInternalServerError, "Invalid device details format")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to load device details")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"deviceDetails": doc,
	})
}

type addProfilesRequest struct {
	UserIDs []string `json:"userIds"`
}

// AddProfiles handles POST /api/add-device-profiles.
func (h *DeviceHandler) AddProfiles(w http.ResponseWriter, r *http.Request) {
	var req addProfilesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, service.ErrUserIDsRequired.Error())
		return
	}

	err := h.devices.AddProfiles(req.UserIDs)
	switch {
	case errors.Is(err, service.ErrUserIDsRequired):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to update device details")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Device profiles added",
		"userIds": req.UserIDs,
	})
}
