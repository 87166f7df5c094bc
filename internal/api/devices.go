package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pesanet/scale-telemetry/internal/journal"
	"github.com/pesanet/scale-telemetry/internal/scale"
)

// DeviceView is the JSON shape of one scale.
type DeviceView struct {
	ID            string    `json:"id"`
	Port          string    `json:"port"`
	BaudRate      int       `json:"baud_rate"`
	ReadTimeoutMS int64     `json:"read_timeout_ms"`
	Encoding      string    `json:"encoding"`
	Status        string    `json:"status"`
	LastError     string    `json:"last_error,omitempty"`
	Since         time.Time `json:"since"`
	Registered    bool      `json:"registered"`
}

func (s *Server) deviceView(st scale.DeviceStatus) DeviceView {
	d := st.Descriptor
	return DeviceView{
		ID:            d.ID,
		Port:          d.Port,
		BaudRate:      d.BaudRate,
		ReadTimeoutMS: d.ReadTimeout.Milliseconds(),
		Encoding:      string(d.Encoding),
		Status:        string(st.Status),
		LastError:     st.LastError,
		Since:         st.Since.UTC(),
		Registered:    s.router.IsRegistered(d.ID),
	}
}

// handleListDevices returns every configured scale in configuration order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.devices.Snapshot()
	views := make([]DeviceView, 0, len(snapshot))
	for _, st := range snapshot {
		views = append(views, s.deviceView(st))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns one scale.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	st, ok := s.devices.Status(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, s.deviceView(st))
}

// handleListDeviceEvents returns journaled link events for one scale.
// Query params: kind, limit, offset.
func (s *Server) handleListDeviceEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeNotFound(w, "event journal is disabled")
		return
	}

	id := chi.URLParam(r, "id")
	if _, ok := s.devices.Status(id); !ok {
		writeNotFound(w, "device not found")
		return
	}

	filter := journal.Filter{
		DeviceID: id,
		Kind:     r.URL.Query().Get("kind"),
	}
	var ok bool
	if filter.Limit, ok = queryInt(r, "limit"); !ok {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, ok = queryInt(r, "offset"); !ok {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	result, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list link events", "device_id", id, "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// queryInt parses an optional integer query parameter. An absent
// parameter is 0.
func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
