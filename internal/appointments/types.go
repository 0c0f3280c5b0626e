// Package appointments holds the appointment record model exchanged with the
// clinic backend and the pure query/filter engine the agenda view is built from.
package appointments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FallbackPatientName is shown when the backend sends a record without a name.
const FallbackPatientName = "Sin nombre"

var (
	ErrMissingID     = errors.New("appointments: record has no id")
	ErrMalformedDate = errors.New("appointments: date is not YYYY-MM-DD")
	ErrMalformedTime = errors.New("appointments: time is not HH:MM")
)

// Record is one appointment as returned by the backend. Records are owned by
// the backend; the client only reads them and patches Status/StatusLabel after
// an acknowledged status update.
type Record struct {
	ID            string `json:"_id"`
	ExternalID    string `json:"external_id,omitempty"`
	PatientName   string `json:"patient_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Treatment     string `json:"treatment,omitempty"`
	Doctor        string `json:"doctor,omitempty"`
	Date          string `json:"date,omitempty"`
	Time          string `json:"time,omitempty"`
	Duration      string `json:"duration,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Notes         string `json:"notes,omitempty"`
	PatientNumber string `json:"num_paciente,omitempty"`
	Status        Status `json:"status"`
	StatusLabel   string `json:"estado_cita,omitempty"`
	Source        string `json:"source,omitempty"`
}

// DisplayName returns the patient name or the fallback label.
func (r Record) DisplayName() string {
	if name := strings.TrimSpace(r.PatientName); name != "" {
		return name
	}
	return FallbackPatientName
}

// DisplayStatus prefers the backend's human-readable label over the derived one.
func (r Record) DisplayStatus() string {
	if label := strings.TrimSpace(r.StatusLabel); label != "" {
		return label
	}
	return r.Status.Label()
}

// Validate reports shape problems without rejecting the record. A nil return
// means the record is well formed.
func (r Record) Validate() error {
	var errs []error
	if strings.TrimSpace(r.ID) == "" {
		errs = append(errs, ErrMissingID)
	}
	if r.Date != "" {
		if _, err := time.Parse("2006-01-02", r.Date); err != nil || len(r.Date) != 10 {
			errs = append(errs, fmt.Errorf("%w: %q", ErrMalformedDate, r.Date))
		}
	}
	if r.Time != "" {
		if _, err := time.Parse("15:04", NormalizeTime(r.Time)); err != nil {
			errs = append(errs, fmt.Errorf("%w: %q", ErrMalformedTime, r.Time))
		}
	}
	return errors.Join(errs...)
}

// Query is the server-side filter for a list request. Empty fields are omitted
// from the request.
type Query struct {
	StartDate string
	EndDate   string
	Status    string
}

// IsZero reports whether the query carries no filters.
func (q Query) IsZero() bool {
	return q.StartDate == "" && q.EndDate == "" && q.Status == ""
}

// Stats mirrors the backend's aggregate counters.
type Stats struct {
	Total     int `json:"total_appointments"`
	Today     int `json:"today_appointments"`
	Confirmed int `json:"confirmed_appointments"`
	Pending   int `json:"pending_appointments"`
	Completed int `json:"completed_appointments"`
	Cancelled int `json:"cancelled_appointments"`
}

// SyncResult is the outcome of a spreadsheet sync. Success=false is a normal,
// reportable outcome.
type SyncResult struct {
	Success    bool   `json:"success"`
	Synced     int    `json:"synced"`
	Message    string `json:"message"`
	LastUpdate string `json:"last_update,omitempty"`
}

// SyncStatus is the last known sync metadata. A nil LastUpdate means the
// backend has never completed a sync.
type SyncStatus struct {
	LastUpdate          *time.Time `json:"last_update"`
	AutoSyncActive      bool       `json:"auto_sync_active"`
	SyncIntervalMinutes int        `json:"sync_interval_minutes,omitempty"`
	Headers             []string   `json:"headers,omitempty"`
	RowCount            int        `json:"row_count,omitempty"`
}

// Never is the display value of a status with no completed sync.
const Never = "Never"

// Display renders the last update in loc, or Never.
func (s SyncStatus) Display(loc *time.Location) string {
	if s.LastUpdate == nil || s.LastUpdate.IsZero() {
		return Never
	}
	if loc == nil {
		loc = time.Local
	}
	return s.LastUpdate.In(loc).Format("02/01/2006 15:04")
}

func (s *SyncStatus) UnmarshalJSON(data []byte) error {
	var raw struct {
		LastUpdate          *string  `json:"last_update"`
		AutoSyncActive      bool     `json:"auto_sync_active"`
		SyncIntervalMinutes int      `json:"sync_interval_minutes"`
		Headers             []string `json:"headers"`
		RowCount            int      `json:"row_count"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SyncStatus{
		AutoSyncActive:      raw.AutoSyncActive,
		SyncIntervalMinutes: raw.SyncIntervalMinutes,
		Headers:             raw.Headers,
		RowCount:            raw.RowCount,
	}
	if raw.LastUpdate == nil || strings.TrimSpace(*raw.LastUpdate) == "" {
		return nil
	}
	ts, err := ParseInstant(*raw.LastUpdate)
	if err != nil {
		return fmt.Errorf("appointments: last_update: %w", err)
	}
	s.LastUpdate = &ts
	return nil
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseInstant accepts RFC 3339 timestamps and the backend's offset-less ISO
// form, which is written in UTC.
func ParseInstant(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
