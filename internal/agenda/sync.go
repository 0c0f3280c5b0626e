package agenda

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/observability/metrics"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

// DefaultSettleDelay is how long callers wait after a sync before re-reading
// appointments. The backend's read side can lag the sync's HTTP answer; this
// is the known staleness window.
const DefaultSettleDelay = time.Second

// ErrSyncBusy matches every SyncBusyError.
var ErrSyncBusy = errors.New("agenda: sync already in progress")

// SyncBusyError rejects a sync while another one is outstanding.
type SyncBusyError struct {
	Since time.Time
}

func (e *SyncBusyError) Error() string {
	if e.Since.IsZero() {
		return ErrSyncBusy.Error()
	}
	return fmt.Sprintf("%s (started %s)", ErrSyncBusy, e.Since.Format(time.RFC3339))
}

func (e *SyncBusyError) Is(target error) bool { return target == ErrSyncBusy }

// SyncAPI is the backend surface the controller drives.
type SyncAPI interface {
	TriggerSync(ctx context.Context) (*appointments.SyncResult, error)
	GetSyncStatus(ctx context.Context) (*appointments.SyncStatus, error)
}

type SyncConfig struct {
	API         SyncAPI
	SettleDelay time.Duration
	Logger      *logging.Logger
	Metrics     *metrics.AgendaMetrics
	Now         func() time.Time
}

// SyncController allows at most one outstanding sync request per process.
type SyncController struct {
	api     SyncAPI
	sem     *semaphore.Weighted
	settle  time.Duration
	logger  *logging.Logger
	metrics *metrics.AgendaMetrics
	now     func() time.Time

	mu        sync.Mutex
	startedAt time.Time
	last      *appointments.SyncResult
}

func NewSyncController(cfg SyncConfig) (*SyncController, error) {
	if cfg.API == nil {
		return nil, errors.New("agenda: sync controller requires an API")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	settle := cfg.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SyncController{
		api:     cfg.API,
		sem:     semaphore.NewWeighted(1),
		settle:  settle,
		logger:  logger.Component("agenda.sync"),
		metrics: cfg.Metrics,
		now:     now,
	}, nil
}

// Sync triggers a backend sync and waits for its answer. A concurrent call
// returns a *SyncBusyError without contacting the backend. An unsuccessful
// result is returned with a nil error; only transport and server failures
// are errors.
func (s *SyncController) Sync(ctx context.Context) (*appointments.SyncResult, error) {
	if !s.sem.TryAcquire(1) {
		s.mu.Lock()
		since := s.startedAt
		s.mu.Unlock()
		s.metrics.ObserveSync("busy")
		s.logger.Info("sync rejected, already running", "since", since)
		return nil, &SyncBusyError{Since: since}
	}
	defer s.sem.Release(1)

	s.mu.Lock()
	s.startedAt = s.now()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.startedAt = time.Time{}
		s.mu.Unlock()
	}()

	s.logger.Info("sync started")
	result, err := s.api.TriggerSync(ctx)
	if err != nil {
		s.metrics.ObserveSync("error")
		s.logger.Error("sync failed", "error", err)
		return nil, err
	}

	if result.Success {
		s.metrics.ObserveSync("success")
		s.logger.Info("sync completed", "synced", result.Synced)
	} else {
		s.metrics.ObserveSync("unsuccessful")
		s.logger.Warn("sync reported failure", "message", result.Message)
	}

	s.mu.Lock()
	copied := *result
	s.last = &copied
	s.mu.Unlock()
	return result, nil
}

// InFlight reports whether a sync is outstanding.
func (s *SyncController) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.startedAt.IsZero()
}

// LastResult is the most recent completed sync result, or nil.
func (s *SyncController) LastResult() *appointments.SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	copied := *s.last
	return &copied
}

// Status reads the backend's sync metadata. It is safe to poll and independent
// of any sync in flight.
func (s *SyncController) Status(ctx context.Context) (*appointments.SyncStatus, error) {
	status, err := s.api.GetSyncStatus(ctx)
	if err != nil {
		return nil, err
	}
	if status == nil {
		status = &appointments.SyncStatus{}
	}
	return status, nil
}

// SettleDelay is how long to wait after a successful sync before re-fetching.
func (s *SyncController) SettleDelay() time.Duration {
	return s.settle
}
