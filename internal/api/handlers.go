package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sporelab/mycelia-core/internal/command"
	"github.com/sporelab/mycelia-core/internal/device"
	"github.com/sporelab/mycelia-core/internal/farm"
	"github.com/sporelab/mycelia-core/internal/notification"
)

// handleHealth reports server, database, and broker health. Degraded
// dependencies yield 503 so load balancers and monitors notice.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}
	if s.transport != nil {
		if err := s.transport.HealthCheck(r.Context()); err != nil {
			checks["mqtt"] = err.Error()
			healthy = false
		} else {
			checks["mqtt"] = "ok"
		}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"status":  overall,
		"version": s.version,
		"checks":  checks,
	})
}

// ─── Farms and rooms ─────────────────────────────────────────────────────────

func (s *Server) handleListFarms(w http.ResponseWriter, r *http.Request) {
	farms, err := s.farms.ListFarms(r.Context())
	if err != nil {
		s.logger.Error("listing farms failed", "error", err)
		writeInternalError(w, "failed to list farms")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"farms": farms})
}

func (s *Server) handleGetFarm(w http.ResponseWriter, r *http.Request) {
	f, err := s.farms.GetFarm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, farm.ErrFarmNotFound) {
			writeNotFound(w, "farm not found")
			return
		}
		s.logger.Error("getting farm failed", "error", err)
		writeInternalError(w, "failed to get farm")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.farms.ListRooms(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("listing rooms failed", "error", err)
		writeInternalError(w, "failed to list rooms")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.farms.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, farm.ErrRoomNotFound) {
			writeNotFound(w, "room not found")
			return
		}
		s.logger.Error("getting room failed", "error", err)
		writeInternalError(w, "failed to get room")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// ─── Devices ─────────────────────────────────────────────────────────────────

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var (
		devices []device.Device
		err     error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		devices, err = s.devices.ListByStatus(r.Context(), device.Status(status))
	} else {
		devices, err = s.devices.List(r.Context())
	}
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

func (s *Server) handleListRoomDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.ListByRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("listing room devices failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("getting device failed", "error", err)
		writeInternalError(w, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ─── Readings ────────────────────────────────────────────────────────────────

func (s *Server) handleLatestReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := s.readings.LatestByRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("listing latest readings failed", "error", err)
		writeInternalError(w, "failed to list readings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": readings, "count": len(readings)})
}

func (s *Server) handleDeviceReadings(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		since = parsed
	}

	readings, err := s.readings.ListByDevice(r.Context(), chi.URLParam(r, "id"), since, queryLimit(r))
	if err != nil {
		s.logger.Error("listing device readings failed", "error", err)
		writeInternalError(w, "failed to list readings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": readings, "count": len(readings)})
}

// ─── Commands ────────────────────────────────────────────────────────────────

// issueCommandRequest is the body of POST /devices/{id}/commands.
type issueCommandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

func (s *Server) handleIssueCommand(w http.ResponseWriter, r *http.Request) {
	var req issueCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	identity, _ := identityFrom(r.Context())
	c, err := s.commands.CreateAndIssue(r.Context(), chi.URLParam(r, "id"), req.Command, req.Params, identity.Principal())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, c)
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, command.ErrPublishFailed):
		// Recorded but not delivered; the command stays pending.
		writeJSON(w, http.StatusAccepted, c)
	default:
		s.logger.Error("issuing command failed", "error", err)
		writeInternalError(w, "failed to issue command")
	}
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	c, err := s.commands.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, command.ErrCommandNotFound) {
			writeNotFound(w, "command not found")
			return
		}
		s.logger.Error("getting command failed", "error", err)
		writeInternalError(w, "failed to get command")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleListDeviceCommands(w http.ResponseWriter, r *http.Request) {
	commands, err := s.commands.ListByDevice(r.Context(), chi.URLParam(r, "id"), queryLimit(r))
	if err != nil {
		s.logger.Error("listing commands failed", "error", err)
		writeInternalError(w, "failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": commands, "count": len(commands)})
}

// ─── Rule evaluation ─────────────────────────────────────────────────────────

func (s *Server) handleEvaluateRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if _, err := s.farms.GetRoom(r.Context(), roomID); err != nil {
		if errors.Is(err, farm.ErrRoomNotFound) {
			writeNotFound(w, "room not found")
			return
		}
		s.logger.Error("resolving room failed", "error", err)
		writeInternalError(w, "failed to evaluate room")
		return
	}

	fired, err := s.evaluator.EvaluateRoom(r.Context(), roomID)
	if err != nil {
		s.logger.Error("room evaluation failed", "room_id", roomID, "error", err)
		writeInternalError(w, "failed to evaluate room")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID, "rules_fired": fired})
}

// ─── Notifications ───────────────────────────────────────────────────────────

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	unackedOnly := r.URL.Query().Get("unacked") == "true"

	notifications, err := s.notifications.List(r.Context(), unackedOnly, queryLimit(r))
	if err != nil {
		s.logger.Error("listing notifications failed", "error", err)
		writeInternalError(w, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications, "count": len(notifications)})
}

func (s *Server) handleListFarmNotifications(w http.ResponseWriter, r *http.Request) {
	unackedOnly := r.URL.Query().Get("unacked") == "true"

	notifications, err := s.notifications.ListByFarm(r.Context(), chi.URLParam(r, "id"), unackedOnly, queryLimit(r))
	if err != nil {
		s.logger.Error("listing farm notifications failed", "error", err)
		writeInternalError(w, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications, "count": len(notifications)})
}

func (s *Server) handleAckNotification(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	err := s.notifications.Ack(r.Context(), chi.URLParam(r, "id"), identity.Principal(), time.Now().UTC())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"acked": true})
	case errors.Is(err, notification.ErrNotificationNotFound):
		writeNotFound(w, "notification not found")
	case errors.Is(err, notification.ErrAlreadyAcked):
		writeConflict(w, "notification already acknowledged")
	default:
		s.logger.Error("acking notification failed", "error", err)
		writeInternalError(w, "failed to acknowledge notification")
	}
}

// queryLimit parses the limit query parameter, 0 when absent or bad
// (repositories apply their own defaults).
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
