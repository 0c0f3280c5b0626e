package appointments

import "strings"

// Status is the machine-readable appointment state. Values outside the five
// known variants are kept verbatim so they can still be displayed.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"

	// StatusUnrecognized is the variant reported for anything else.
	StatusUnrecognized Status = "unrecognized"
)

// KnownStatuses lists the closed set in display order.
var KnownStatuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusCompleted,
	StatusCancelled,
	StatusRescheduled,
}

var statusLabels = map[Status]string{
	StatusPending:     "Pendiente",
	StatusConfirmed:   "Confirmada",
	StatusCompleted:   "Completada",
	StatusCancelled:   "Cancelada",
	StatusRescheduled: "Reagendada",
}

// Known reports whether s is one of the five variants.
func (s Status) Known() bool {
	_, ok := statusLabels[s]
	return ok
}

// Variant collapses unknown values into StatusUnrecognized.
func (s Status) Variant() Status {
	if s.Known() {
		return s
	}
	return StatusUnrecognized
}

// Label is the Spanish display text; unknown values display as themselves.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Tone selects the badge style. Unknown values get the unstyled default.
func (s Status) Tone() string {
	if s.Known() {
		return string(s)
	}
	return "default"
}

var exactStatusText = map[string]Status{
	"confirmada":  StatusConfirmed,
	"confirmed":   StatusConfirmed,
	"completada":  StatusCompleted,
	"completed":   StatusCompleted,
	"cancelada":   StatusCancelled,
	"cancelled":   StatusCancelled,
	"pendiente":   StatusPending,
	"pending":     StatusPending,
	"reagendada":  StatusRescheduled,
	"rescheduled": StatusRescheduled,
}

// ParseStatus maps free-text status labels, as typed into the clinic's
// spreadsheet, onto a variant. Empty or unmatched text is pending.
func ParseStatus(text string) Status {
	if st, ok := LookupStatus(text); ok {
		return st
	}
	return StatusPending
}

// LookupStatus is ParseStatus without the pending default: ok is false for
// empty or unrecognized text.
func LookupStatus(text string) (Status, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return "", false
	}
	if st, ok := exactStatusText[s]; ok {
		return st, true
	}
	switch {
	case strings.Contains(s, "confirm"):
		return StatusConfirmed, true
	case strings.Contains(s, "complet"), strings.Contains(s, "realizad"):
		return StatusCompleted, true
	case strings.Contains(s, "cancel"), strings.Contains(s, "anulad"):
		return StatusCancelled, true
	case strings.Contains(s, "reagen"), strings.Contains(s, "reprog"), strings.Contains(s, "mover"):
		return StatusRescheduled, true
	case strings.Contains(s, "pendi"):
		return StatusPending, true
	default:
		return "", false
	}
}
