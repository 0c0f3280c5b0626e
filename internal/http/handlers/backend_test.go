package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-agenda/internal/agenda"
	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/clinicapi"
	"github.com/wolfman30/dental-agenda/internal/http/middleware"
	"github.com/wolfman30/dental-agenda/internal/observability/metrics"
	"github.com/wolfman30/dental-agenda/internal/session"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

var testDay = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

// fakeClinic is an in-memory stand-in for the appointments backend.
type fakeClinic struct {
	mu            sync.Mutex
	records       []appointments.Record
	patients      []json.RawMessage
	listCalls     int
	listQueries   []url.Values
	statusCalls   []url.Values
	upcomingDays  string
	syncCalls     int
	failAll       bool
	statusDetail  string
	syncGate      chan struct{}
	syncEntered   chan struct{}
	syncSucceeded bool
}

func newFakeClinic() *fakeClinic {
	return &fakeClinic{
		syncSucceeded: true,
		records: []appointments.Record{
			{ID: "a3", PatientName: "Carla Ruiz", Treatment: "Ortodoncia", Doctor: "Dr. Gómez", Date: "2024-03-16", Time: "09:00", Status: appointments.StatusPending},
			{ID: "a1", PatientName: "Ana López", Treatment: "Limpieza", Doctor: "Dra. Vidal", Date: "2024-03-15", Time: "10:00", Status: appointments.StatusPending, PatientNumber: "P-001"},
			{ID: "a2", PatientName: "", Treatment: "Empaste", Doctor: "Dr. Gómez", Date: "2024-03-15", Time: "9:30", Status: appointments.StatusConfirmed},
		},
	}
}

func (f *fakeClinic) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			fail := f.failAll
			f.mu.Unlock()
			if fail {
				http.Error(w, `{"detail":"database unavailable"}`, http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/appointments/", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		q := req.URL.Query()
		f.listCalls++
		f.listQueries = append(f.listQueries, q)
		out := []appointments.Record{}
		for _, rec := range f.records {
			if s := q.Get("status"); s != "" && string(rec.Status) != s {
				continue
			}
			if d := q.Get("start_date"); d != "" && rec.Date < d {
				continue
			}
			if d := q.Get("end_date"); d != "" && rec.Date > d {
				continue
			}
			out = append(out, rec)
		}
		writeJSON(w, http.StatusOK, out)
	})
	r.Get("/api/appointments/today/", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		out := []appointments.Record{}
		for _, rec := range f.records {
			if rec.Date == "2024-03-15" {
				out = append(out, rec)
			}
		}
		writeJSON(w, http.StatusOK, out)
	})
	r.Get("/api/appointments/upcoming/", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.upcomingDays = req.URL.Query().Get("days")
		writeJSON(w, http.StatusOK, f.records)
	})
	r.Get("/api/appointments/stats/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{
			"total_appointments":     3,
			"today_appointments":     2,
			"confirmed_appointments": 1,
			"pending_appointments":   2,
		})
	})
	r.Post("/api/appointments/sync/", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.syncCalls++
		gate, entered, ok := f.syncGate, f.syncEntered, f.syncSucceeded
		f.mu.Unlock()
		if entered != nil {
			entered <- struct{}{}
		}
		if gate != nil {
			<-gate
		}
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Spreadsheet not shared"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "synced": 3, "message": "Synced 3 appointments"})
	})
	r.Get("/api/appointments/sync/status/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"last_update": nil, "auto_sync_active": true, "sync_interval_minutes": 5})
	})
	r.Post("/api/appointments/{id}/status", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		q := req.URL.Query()
		f.statusCalls = append(f.statusCalls, q)
		if f.statusDetail != "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": f.statusDetail})
			return
		}
		id := chi.URLParam(req, "id")
		for i := range f.records {
			if f.records[i].ID == id {
				f.records[i].Status = appointments.Status(q.Get("new_status"))
				f.records[i].StatusLabel = q.Get("estado_cita_text")
				writeJSON(w, http.StatusOK, map[string]string{"message": "updated"})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Cita no encontrada"})
	})
	r.Get("/api/patients/", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, f.patients)
	})
	r.Post("/api/patients/", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(req.Body).Decode(&body)
		body["_id"] = "p-new"
		raw, _ := json.Marshal(body)
		f.mu.Lock()
		f.patients = append(f.patients, raw)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, json.RawMessage(raw))
	})
	r.Put("/api/patients/{id}", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(req.Body).Decode(&body)
		body["_id"] = chi.URLParam(req, "id")
		writeJSON(w, http.StatusOK, body)
	})
	return r
}

func (f *fakeClinic) setFailing(fail bool) {
	f.mu.Lock()
	f.failAll = fail
	f.mu.Unlock()
}

func (f *fakeClinic) counts() (list, status, sync int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, len(f.statusCalls), f.syncCalls
}

type testEnv struct {
	clinic    *fakeClinic
	server    *httptest.Server
	client    *clinicapi.Client
	workspace *agenda.Workspace
	sync      *agenda.SyncController
	agenda    *AgendaHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clinic := newFakeClinic()
	srv := httptest.NewServer(clinic.handler())
	t.Cleanup(srv.Close)

	logger := logging.New("error")
	m := metrics.NewAgendaMetrics(prometheus.NewRegistry())
	client, err := clinicapi.New(clinicapi.Config{BaseURL: srv.URL, Logger: logger, Metrics: m})
	require.NoError(t, err)

	ws := agenda.NewWorkspace(agenda.BoardConfig{
		API:      client,
		Logger:   logger,
		Metrics:  m,
		Location: time.UTC,
		Now:      func() time.Time { return testDay },
	})
	t.Cleanup(ws.Close)
	ctrl, err := agenda.NewSyncController(agenda.SyncConfig{API: client, SettleDelay: 20 * time.Millisecond, Logger: logger, Metrics: m})
	require.NoError(t, err)

	return &testEnv{
		clinic:    clinic,
		server:    srv,
		client:    client,
		workspace: ws,
		sync:      ctrl,
		agenda:    NewAgendaHandler(ws, client, ctrl, time.UTC, logger),
	}
}

// request builds a request carrying the session and optional chi URL params.
func request(method, target string, sessionID string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := req.Context()
	if sessionID != "" {
		ctx = middleware.WithSession(ctx, &session.Session{ID: sessionID, Email: "lucia@clinica.es"}, "token-"+sessionID)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
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

func (f *fakeClinic) listQuery(i int) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listQueries[i]
}

func (f *fakeClinic) statusCall(i int) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls[i]
}

func (f *fakeClinic) lastUpcomingDays() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upcomingDays
}
