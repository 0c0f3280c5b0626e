package agenda

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/dental-agenda/internal/appointments"
)

type updateCall struct {
	id     string
	status appointments.Status
	label  string
}

type fakeBackend struct {
	mu      sync.Mutex
	list    func(ctx context.Context, q appointments.Query) ([]appointments.Record, error)
	update  func(ctx context.Context, id string, status appointments.Status, label string) error
	queries []appointments.Query
	updates []updateCall
}

func (f *fakeBackend) ListAppointments(ctx context.Context, q appointments.Query) ([]appointments.Record, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	list := f.list
	f.mu.Unlock()
	if list == nil {
		return []appointments.Record{}, nil
	}
	return list(ctx, q)
}

func (f *fakeBackend) UpdateAppointmentStatus(ctx context.Context, id string, status appointments.Status, label string) error {
	f.mu.Lock()
	f.updates = append(f.updates, updateCall{id: id, status: status, label: label})
	update := f.update
	f.mu.Unlock()
	if update == nil {
		return nil
	}
	return update(ctx, id, status, label)
}

func (f *fakeBackend) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func staticList(records ...appointments.Record) func(context.Context, appointments.Query) ([]appointments.Record, error) {
	return func(context.Context, appointments.Query) ([]appointments.Record, error) {
		out := make([]appointments.Record, len(records))
		copy(out, records)
		return out, nil
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
