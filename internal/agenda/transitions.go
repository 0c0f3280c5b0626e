// Package agenda coordinates the appointment views a dashboard consumer sees:
// status transitions that patch local state only after the backend
// acknowledges them, a single-flight spreadsheet sync, and per-session boards
// holding the fetched list.
package agenda

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/observability/metrics"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

// ErrTransitionNotAllowed is returned for transitions the agenda does not offer.
var ErrTransitionNotAllowed = errors.New("agenda: status transition not offered")

// StatusUpdater persists a status change on the backend.
type StatusUpdater interface {
	UpdateAppointmentStatus(ctx context.Context, id string, status appointments.Status, label string) error
}

// Action names a user-initiable transition.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
)

// Transition is one offered status change.
type Transition struct {
	Action Action              `json:"action"`
	From   appointments.Status `json:"from"`
	To     appointments.Status `json:"to"`
	Label  string              `json:"label"`
}

// completed and rescheduled are set by backend-side processes only.
var offered = []Transition{
	{Action: ActionConfirm, From: appointments.StatusPending, To: appointments.StatusConfirmed, Label: "Confirmada"},
	{Action: ActionCancel, From: appointments.StatusPending, To: appointments.StatusCancelled, Label: "Cancelada"},
}

// Offered lists the transitions available from status.
func Offered(status appointments.Status) []Transition {
	var out []Transition
	for _, tr := range offered {
		if tr.From == status {
			out = append(out, tr)
		}
	}
	return out
}

// LookupAction resolves an action name.
func LookupAction(action Action) (Transition, bool) {
	for _, tr := range offered {
		if tr.Action == action {
			return tr, true
		}
	}
	return Transition{}, false
}

func find(from, to appointments.Status) (Transition, bool) {
	for _, tr := range offered {
		if tr.From == from && tr.To == to {
			return tr, true
		}
	}
	return Transition{}, false
}

// Transitioner applies offered transitions against the backend.
type Transitioner struct {
	api     StatusUpdater
	logger  *logging.Logger
	metrics *metrics.AgendaMetrics
}

func NewTransitioner(api StatusUpdater, logger *logging.Logger, m *metrics.AgendaMetrics) *Transitioner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Transitioner{api: api, logger: logger.Component("agenda.transitions"), metrics: m}
}

// Apply moves rec to target once the backend acknowledges it. Only Status and
// StatusLabel change, and only on success; on any error rec is left as it was.
// An empty label uses the transition's default.
func (t *Transitioner) Apply(ctx context.Context, rec *appointments.Record, target appointments.Status, label string) error {
	if rec == nil {
		return errors.New("agenda: nil appointment record")
	}
	tr, ok := find(rec.Status, target)
	if !ok {
		t.metrics.ObserveTransition(string(target), "rejected")
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, rec.Status, target)
	}
	if label == "" {
		label = tr.Label
	}

	if err := t.api.UpdateAppointmentStatus(ctx, rec.ID, target, label); err != nil {
		t.metrics.ObserveTransition(string(target), "error")
		t.logger.Warn("status update failed", "appointment_id", rec.ID, "target", target, "error", err)
		return err
	}

	rec.Status = target
	rec.StatusLabel = label
	t.metrics.ObserveTransition(string(target), "ok")
	t.logger.Info("status updated", "appointment_id", rec.ID, "status", target, "label", label)
	return nil
}
