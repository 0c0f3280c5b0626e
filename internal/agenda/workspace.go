package agenda

import (
	"sync"
	"time"

	"github.com/wolfman30/dental-agenda/pkg/logging"
)

const workspaceSweepInterval = time.Minute

// Workspace keeps one board per session. Boards are created on first use and
// closed when their session logs out or expires.
type Workspace struct {
	cfg    BoardConfig
	logger *logging.Logger
	now    func() time.Time
	stop   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	boards map[string]*workspaceEntry
}

type workspaceEntry struct {
	board     *Board
	expiresAt time.Time
}

// expired reports whether the entry's session has ended. A zero expiry never
// ends.
func (e *workspaceEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewWorkspace starts a background sweep of expired boards that runs until
// Close.
func NewWorkspace(cfg BoardConfig) *Workspace {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	w := &Workspace{
		cfg:    cfg,
		logger: logger.Component("agenda.workspace"),
		now:    now,
		stop:   make(chan struct{}),
		boards: make(map[string]*workspaceEntry),
	}
	go w.sweepLoop()
	return w
}

// Board returns the session's board, creating it if needed. expiresAt is the
// session's expiry; once it passes the board is released. A zero expiresAt
// leaves the recorded expiry unchanged.
func (w *Workspace) Board(sessionID string, expiresAt time.Time) *Board {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.boards[sessionID]; ok {
		if !expiresAt.IsZero() {
			e.expiresAt = expiresAt
		}
		if !e.expired(w.now()) {
			return e.board
		}
		e.board.Close()
	}
	b := NewBoard(w.cfg)
	w.boards[sessionID] = &workspaceEntry{board: b, expiresAt: expiresAt}
	return b
}

// Dispose closes and forgets the session's board.
func (w *Workspace) Dispose(sessionID string) {
	w.mu.Lock()
	e, ok := w.boards[sessionID]
	delete(w.boards, sessionID)
	w.mu.Unlock()
	if ok {
		e.board.Close()
	}
}

// Len is the number of open boards.
func (w *Workspace) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.boards)
}

// Close stops the sweep and disposes every board.
func (w *Workspace) Close() {
	w.once.Do(func() { close(w.stop) })
	w.mu.Lock()
	boards := w.boards
	w.boards = make(map[string]*workspaceEntry)
	w.mu.Unlock()
	for _, e := range boards {
		e.board.Close()
	}
}

func (w *Workspace) sweepLoop() {
	ticker := time.NewTicker(workspaceSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.stop:
			return
		}
	}
}

// sweep releases the boards of expired sessions and returns how many it closed.
func (w *Workspace) sweep() int {
	now := w.now()
	var expired []*Board
	w.mu.Lock()
	for id, e := range w.boards {
		if e.expired(now) {
			expired = append(expired, e.board)
			delete(w.boards, id)
		}
	}
	w.mu.Unlock()
	for _, b := range expired {
		b.Close()
	}
	if len(expired) > 0 {
		w.logger.Debug("released boards of expired sessions", "count", len(expired))
	}
	return len(expired)
}
