package appointments

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FilterKey is the agenda's filter button: all, today, or a status value.
type FilterKey string

const (
	FilterAll   FilterKey = "all"
	FilterToday FilterKey = "today"
)

// ParseFilterKey validates a filter key from user input. Empty means all.
func ParseFilterKey(raw string) (FilterKey, error) {
	key := FilterKey(strings.ToLower(strings.TrimSpace(raw)))
	switch {
	case key == "":
		return FilterAll, nil
	case key == FilterAll, key == FilterToday, Status(key).Known():
		return key, nil
	default:
		return "", fmt.Errorf("appointments: unknown filter %q", raw)
	}
}

// Criteria is the ephemeral filter state of an agenda view.
type Criteria struct {
	StatusFilter FilterKey
	SelectedDate time.Time
	SearchTerm   string
}

// SelectedDay is the local calendar day of SelectedDate.
func (c Criteria) SelectedDay() string {
	return LocalDate(c.SelectedDate)
}

// ServerQuery derives the list request for these criteria: the selected day for
// today, the status for a status key, nothing for all.
func (c Criteria) ServerQuery() Query {
	switch c.StatusFilter {
	case "", FilterAll:
		return Query{}
	case FilterToday:
		day := c.SelectedDay()
		return Query{StartDate: day, EndDate: day}
	default:
		return Query{Status: string(c.StatusFilter)}
	}
}

// LocalDate formats t's own calendar components as YYYY-MM-DD. It never
// converts to UTC, so a late-evening selection stays on the same day.
func LocalDate(t time.Time) string {
	return fmt.Sprintf("%04d-%02d-%02d", t.Year(), int(t.Month()), t.Day())
}

// NormalizeTime left-pads a wall-clock time to HH:MM width so that "9:00"
// orders before "10:00". Missing times stay empty and sort first.
func NormalizeTime(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if len(t) < 5 {
		return strings.Repeat("0", 5-len(t)) + t
	}
	return t
}

// Apply returns the displayable subset of records for c, ordered by date and
// time. Filters compose with AND: search, then the selected day, then status
// equality. Ties keep their input order. records is never modified.
func Apply(records []Record, c Criteria) []Record {
	term := strings.ToLower(c.SearchTerm)
	day := ""
	if c.StatusFilter == FilterToday {
		day = c.SelectedDay()
	}
	var status Status
	if c.StatusFilter != "" && c.StatusFilter != FilterAll && c.StatusFilter != FilterToday {
		status = Status(c.StatusFilter)
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if term != "" && !matchesSearch(rec, term) {
			continue
		}
		if c.StatusFilter == FilterToday && rec.Date != day {
			continue
		}
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i], out[j])
	})
	return out
}

// Less orders records by (date, zero-padded time).
func Less(a, b Record) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	return NormalizeTime(a.Time) < NormalizeTime(b.Time)
}

func matchesSearch(rec Record, term string) bool {
	for _, field := range []string{rec.PatientName, rec.Treatment, rec.Doctor, rec.PatientNumber} {
		if field != "" && strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// Tally counts records per status for the agenda summary row.
type Tally struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Confirmed   int `json:"confirmed"`
	Completed   int `json:"completed"`
	Cancelled   int `json:"cancelled"`
	Rescheduled int `json:"rescheduled"`
	Other       int `json:"other"`
}

// Count tallies records by status variant.
func Count(records []Record) Tally {
	t := Tally{Total: len(records)}
	for _, rec := range records {
		switch rec.Status.Variant() {
		case StatusPending:
			t.Pending++
		case StatusConfirmed:
			t.Confirmed++
		case StatusCompleted:
			t.Completed++
		case StatusCancelled:
			t.Cancelled++
		case StatusRescheduled:
			t.Rescheduled++
		default:
			t.Other++
		}
	}
	return t
}
