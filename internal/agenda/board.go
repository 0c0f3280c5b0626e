package agenda

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/clinicapi"
	"github.com/wolfman30/dental-agenda/internal/observability/metrics"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

var (
	// ErrBoardClosed is returned once the board's consumer has gone away.
	ErrBoardClosed = errors.New("agenda: board closed")
	// ErrSuperseded means a newer refresh started before this one finished,
	// so its response was discarded.
	ErrSuperseded = errors.New("agenda: refresh superseded by newer criteria")
	// ErrAppointmentNotFound means the id is not in the loaded list.
	ErrAppointmentNotFound = errors.New("agenda: appointment not in current list")
)

// Backend is what a board needs from the API client.
type Backend interface {
	ListAppointments(ctx context.Context, q appointments.Query) ([]appointments.Record, error)
	StatusUpdater
}

type BoardConfig struct {
	API      Backend
	Logger   *logging.Logger
	Metrics  *metrics.AgendaMetrics
	Location *time.Location
	Now      func() time.Time
}

// Board is one consumer's appointment list plus the criteria it is viewed
// with. The list is replaced wholesale by Refresh or patched in place by
// Transition; the filter engine only ever reads it.
type Board struct {
	api          Backend
	transitioner *Transitioner
	logger       *logging.Logger
	metrics      *metrics.AgendaMetrics
	now          func() time.Time

	mu          sync.Mutex
	criteria    appointments.Criteria
	records     []appointments.Record
	loaded      bool
	loadedQuery appointments.Query
	err         error
	fetchedAt   time.Time
	generation  uint64
	inflight    int
	closed      bool
	pending     *time.Timer
}

func NewBoard(cfg BoardConfig) *Board {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Board{
		api:          cfg.API,
		transitioner: NewTransitioner(cfg.API, logger, cfg.Metrics),
		logger:       logger.Component("agenda.board"),
		metrics:      cfg.Metrics,
		now:          now,
		criteria: appointments.Criteria{
			StatusFilter: appointments.FilterAll,
			SelectedDate: now().In(loc),
		},
	}
}

// Criteria returns the current view criteria.
func (b *Board) Criteria() appointments.Criteria {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.criteria
}

// SetCriteria replaces the view criteria and reports whether the loaded list
// no longer matches the server-side query they imply.
func (b *Board) SetCriteria(c appointments.Criteria) bool {
	if c.StatusFilter == "" {
		c.StatusFilter = appointments.FilterAll
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.criteria = c
	return !b.loaded || b.loadedQuery != c.ServerQuery()
}

// Refresh fetches the list for the current criteria. Only the newest refresh
// may apply its response; older ones return ErrSuperseded. A failed fetch keeps
// the previously loaded list and records the error.
func (b *Board) Refresh(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBoardClosed
	}
	b.generation++
	gen := b.generation
	query := b.criteria.ServerQuery()
	b.inflight++
	b.mu.Unlock()

	records, err := b.api.ListAppointments(ctx, query)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight--
	if b.closed {
		b.logger.Debug("discarding response for closed board")
		return ErrBoardClosed
	}
	if gen != b.generation {
		b.metrics.ObserveStaleResponse()
		b.logger.Debug("discarding superseded response", "generation", gen, "current", b.generation)
		return ErrSuperseded
	}
	if err != nil {
		b.err = err
		b.logger.Warn("appointment refresh failed", "error", err, "retryable", clinicapi.IsRetryable(err))
		return err
	}

	invalid := 0
	for _, rec := range records {
		if rec.Validate() != nil {
			invalid++
		}
	}
	if invalid > 0 {
		b.logger.Warn("backend returned malformed appointments", "count", invalid, "total", len(records))
	}

	b.records = records
	b.loaded = true
	b.loadedQuery = query
	b.err = nil
	b.fetchedAt = b.now()
	return nil
}

// RefreshAfter schedules a refresh once delay has passed, replacing any
// refresh already scheduled. Used after a sync to let the backend settle.
func (b *Board) RefreshAfter(delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if b.pending != nil {
		b.pending.Stop()
	}
	b.pending = time.AfterFunc(delay, func() {
		err := b.Refresh(context.Background())
		if err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrBoardClosed) {
			b.logger.Warn("scheduled refresh failed", "error", err)
		}
	})
}

// Snapshot is the displayable state of a board at one instant.
type Snapshot struct {
	Filter       appointments.FilterKey `json:"filter"`
	SelectedDate string                 `json:"selected_date"`
	Search       string                 `json:"search,omitempty"`
	Appointments []AppointmentView      `json:"appointments"`
	Summary      appointments.Tally     `json:"summary"`
	Loaded       bool                   `json:"loaded"`
	Loading      bool                   `json:"loading"`
	Stale        bool                   `json:"stale"`
	Error        string                 `json:"error,omitempty"`
	Retryable    bool                   `json:"retryable,omitempty"`
	FetchedAt    *time.Time             `json:"fetched_at,omitempty"`
}

// AppointmentView decorates a record with its display fields and actions.
type AppointmentView struct {
	appointments.Record
	DisplayName   string       `json:"display_name"`
	DisplayStatus string       `json:"display_status"`
	Tone          string       `json:"tone"`
	Actions       []Transition `json:"actions"`
}

// NewAppointmentView decorates rec for display.
func NewAppointmentView(rec appointments.Record) AppointmentView {
	actions := Offered(rec.Status)
	if actions == nil {
		actions = []Transition{}
	}
	return AppointmentView{
		Record:        rec,
		DisplayName:   rec.DisplayName(),
		DisplayStatus: rec.DisplayStatus(),
		Tone:          rec.Status.Tone(),
		Actions:       actions,
	}
}

// Snapshot applies the current criteria to the loaded list. The summary counts
// the whole loaded list, not just the visible part.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	criteria := b.criteria
	records := b.records
	snap := Snapshot{
		Filter:       criteria.StatusFilter,
		SelectedDate: criteria.SelectedDay(),
		Search:       criteria.SearchTerm,
		Loaded:       b.loaded,
		Loading:      b.inflight > 0,
		Stale:        b.err != nil || (b.loaded && b.loadedQuery != criteria.ServerQuery()),
	}
	if b.err != nil {
		snap.Error = clinicapi.ErrorMessage(b.err, "Error fetching appointments")
		snap.Retryable = clinicapi.IsRetryable(b.err)
	}
	if !b.fetchedAt.IsZero() {
		fetched := b.fetchedAt
		snap.FetchedAt = &fetched
	}
	b.mu.Unlock()

	visible := appointments.Apply(records, criteria)
	snap.Appointments = make([]AppointmentView, 0, len(visible))
	for _, rec := range visible {
		snap.Appointments = append(snap.Appointments, NewAppointmentView(rec))
	}
	snap.Summary = appointments.Count(records)
	return snap
}

// Transition applies action to the appointment with id. The loaded record is
// patched in place after the backend acknowledges, keeping its position.
func (b *Board) Transition(ctx context.Context, id string, action Action) (*appointments.Record, error) {
	tr, ok := LookupAction(action)
	if !ok {
		return nil, ErrTransitionNotAllowed
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBoardClosed
	}
	idx := b.indexLocked(id)
	if idx < 0 {
		b.mu.Unlock()
		return nil, ErrAppointmentNotFound
	}
	rec := b.records[idx]
	b.mu.Unlock()

	if err := b.transitioner.Apply(ctx, &rec, tr.To, tr.Label); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return &rec, nil
	}
	// Snapshots read the slice outside the lock, so patch a copy.
	if i := b.indexLocked(id); i >= 0 {
		patched := make([]appointments.Record, len(b.records))
		copy(patched, b.records)
		patched[i].Status = rec.Status
		patched[i].StatusLabel = rec.StatusLabel
		b.records = patched
	}
	return &rec, nil
}

func (b *Board) indexLocked(id string) int {
	for i := range b.records {
		if b.records[i].ID == id {
			return i
		}
	}
	return -1
}

// Close disposes the board. Responses arriving afterwards are discarded.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.pending != nil {
		b.pending.Stop()
		b.pending = nil
	}
	b.records = nil
}
