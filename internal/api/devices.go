package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/cozylink/internal/device"
	"github.com/nerrad567/cozylink/internal/protocol"
	"github.com/nerrad567/cozylink/internal/session"
)

// handleListDevices returns all registered devices, with optional filters.
//
// Query parameters:
//   - type: filter by device type code ("01" switches, "02" lights)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if typeCode := r.URL.Query().Get("type"); typeCode != "" {
		sessions := s.registry.GetByType(typeCode)
		devices := make([]device.Device, 0, len(sessions))
		for _, sess := range sessions {
			devices = append(devices, sess.Device())
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
		return
	}

	devices := s.registry.Devices()
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := s.registry.Get(id)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, sess.Device())
}

// handleGetDeviceState queries the device for its live datapoint values.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := s.registry.Get(id)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	values, err := sess.Query(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "values": values})
}

// stateUpdateRequest is the body for PUT /devices/{id}/state.
type stateUpdateRequest struct {
	Values protocol.Values `json:"values"`
}

// handleSetDeviceState pushes datapoint values to the device.
//
// Request body:
//
//	{"values": {"1": 255, "4": 500}}
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := s.registry.Get(id)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	var req stateUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Values) == 0 {
		writeBadRequest(w, "values must not be empty")
		return
	}
	if err := req.Values.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := sess.Control(r.Context(), req.Values); err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "values": req.Values})
}

// handleDeviceStats returns registry statistics.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetStats())
}

// writeSessionError maps a session error onto an HTTP status.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "device not connected")
	case errors.Is(err, session.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "device did not respond")
	case errors.Is(err, protocol.ErrValueOutOfRange):
		writeBadRequest(w, err.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, "device exchange failed")
	}
}
