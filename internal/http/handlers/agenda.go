package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/dental-agenda/internal/agenda"
	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/http/middleware"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

// AgendaAPI is the read surface the agenda endpoints use directly.
type AgendaAPI interface {
	GetAppointmentStats(ctx context.Context) (*appointments.Stats, error)
	GetTodayAppointments(ctx context.Context) ([]appointments.Record, error)
	GetUpcomingAppointments(ctx context.Context, days int) ([]appointments.Record, error)
}

// AgendaHandler serves the appointment board of the signed-in staff member.
type AgendaHandler struct {
	workspace *agenda.Workspace
	api       AgendaAPI
	sync      *agenda.SyncController
	location  *time.Location
	logger    *logging.Logger
}

func NewAgendaHandler(workspace *agenda.Workspace, api AgendaAPI, sync *agenda.SyncController, loc *time.Location, logger *logging.Logger) *AgendaHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &AgendaHandler{
		workspace: workspace,
		api:       api,
		sync:      sync,
		location:  loc,
		logger:    logger.Component("handlers.agenda"),
	}
}

// ActionResponse answers a status change.
type ActionResponse struct {
	Appointment agenda.AppointmentView `json:"appointment"`
	Message     string                 `json:"message"`
}

// ListResponse answers the today and upcoming lists.
type ListResponse struct {
	Appointments []agenda.AppointmentView `json:"appointments"`
	Count        int                      `json:"count"`
}

// SyncStatusResponse adds display fields to the backend's sync metadata.
type SyncStatusResponse struct {
	appointments.SyncStatus
	LastUpdateDisplay string                   `json:"last_update_display"`
	InFlight          bool                     `json:"in_flight"`
	LastResult        *appointments.SyncResult `json:"last_result,omitempty"`
}

func (h *AgendaHandler) board(r *http.Request) (*agenda.Board, bool) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		return nil, false
	}
	return h.workspace.Board(sess.ID, sess.ExpiresAt), true
}

// GetBoard applies filter, date and q from the query string and returns the
// board snapshot. The list is re-fetched only when the server-side query
// changed, nothing is loaded yet, or refresh=true.
func (h *AgendaHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	board, ok := h.board(r)
	if !ok {
		jsonError(w, "session required", http.StatusUnauthorized)
		return
	}

	criteria, err := h.criteriaFrom(r, board.Criteria())
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	needsFetch := board.SetCriteria(criteria)
	force, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	if needsFetch || force {
		h.refresh(w, r, board)
		return
	}
	writeJSON(w, http.StatusOK, board.Snapshot())
}

// Refresh re-fetches the board with its current criteria.
func (h *AgendaHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	board, ok := h.board(r)
	if !ok {
		jsonError(w, "session required", http.StatusUnauthorized)
		return
	}
	h.refresh(w, r, board)
}

// refresh answers with the snapshot even when the fetch failed, so the
// dashboard can keep showing the previous list next to the error.
func (h *AgendaHandler) refresh(w http.ResponseWriter, r *http.Request, board *agenda.Board) {
	err := board.Refresh(r.Context())
	if errors.Is(err, agenda.ErrBoardClosed) {
		writeError(w, err, "Session ended")
		return
	}
	snap := board.Snapshot()
	if err != nil && !errors.Is(err, agenda.ErrSuperseded) {
		writeJSON(w, statusFor(err), snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *AgendaHandler) criteriaFrom(r *http.Request, current appointments.Criteria) (appointments.Criteria, error) {
	q := r.URL.Query()
	c := current
	if q.Has("filter") {
		key, err := appointments.ParseFilterKey(q.Get("filter"))
		if err != nil {
			return c, err
		}
		c.StatusFilter = key
	}
	if q.Has("date") {
		day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(q.Get("date")), h.location)
		if err != nil {
			return c, errors.New("date must be YYYY-MM-DD")
		}
		c.SelectedDate = day
	}
	if q.Has("q") {
		c.SearchTerm = q.Get("q")
	}
	return c, nil
}

func (h *AgendaHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, agenda.ActionConfirm, "Appointment confirmed")
}

func (h *AgendaHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, agenda.ActionCancel, "Appointment cancelled")
}

func (h *AgendaHandler) transition(w http.ResponseWriter, r *http.Request, action agenda.Action, message string) {
	board, ok := h.board(r)
	if !ok {
		jsonError(w, "session required", http.StatusUnauthorized)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		jsonError(w, "missing appointment id", http.StatusBadRequest)
		return
	}

	rec, err := board.Transition(r.Context(), id, action)
	if err != nil {
		h.logger.Warn("status change failed", "appointment_id", id, "action", action, "error", err)
		writeError(w, err, "Error updating appointment")
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{
		Appointment: agenda.NewAppointmentView(*rec),
		Message:     message,
	})
}

// Sync triggers the spreadsheet import. On success the caller's board is
// refreshed once the settle delay has passed.
func (h *AgendaHandler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.Sync(r.Context())
	if err != nil {
		writeError(w, err, "Error syncing with Google Sheets")
		return
	}
	if result.Success {
		if board, ok := h.board(r); ok {
			board.RefreshAfter(h.sync.SettleDelay())
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AgendaHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.sync.Status(r.Context())
	if err != nil {
		writeError(w, err, "Error reading sync status")
		return
	}
	writeJSON(w, http.StatusOK, SyncStatusResponse{
		SyncStatus:        *status,
		LastUpdateDisplay: status.Display(h.location),
		InFlight:          h.sync.InFlight(),
		LastResult:        h.sync.LastResult(),
	})
}

func (h *AgendaHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.api.GetAppointmentStats(r.Context())
	if err != nil {
		writeError(w, err, "Error fetching statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AgendaHandler) Today(w http.ResponseWriter, r *http.Request) {
	records, err := h.api.GetTodayAppointments(r.Context())
	if err != nil {
		writeError(w, err, "Error fetching today's appointments")
		return
	}
	writeJSON(w, http.StatusOK, listResponse(records))
}

func (h *AgendaHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 365 {
			jsonError(w, "days must be between 1 and 365", http.StatusBadRequest)
			return
		}
		days = n
	}
	records, err := h.api.GetUpcomingAppointments(r.Context(), days)
	if err != nil {
		writeError(w, err, "Error fetching upcoming appointments")
		return
	}
	writeJSON(w, http.StatusOK, listResponse(records))
}

func listResponse(records []appointments.Record) ListResponse {
	sorted := appointments.Apply(records, appointments.Criteria{StatusFilter: appointments.FilterAll})
	views := make([]agenda.AppointmentView, 0, len(sorted))
	for _, rec := range sorted {
		views = append(views, agenda.NewAppointmentView(rec))
	}
	return ListResponse{Appointments: views, Count: len(views)}
}
