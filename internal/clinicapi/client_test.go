package clinicapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/observability/metrics"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Config)) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	cfg := Config{
		BaseURL: ts.URL,
		Logger:  logging.New("error"),
		Metrics: metrics.NewAgendaMetrics(prometheus.NewRegistry()),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	client, err := New(cfg)
	require.NoError(t, err)
	return client
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestListAppointments_OnlyNonEmptyFiltersAndHighLimit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/appointments/", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "2024-03-15", q.Get("start_date"))
		assert.Equal(t, "2024-03-15", q.Get("end_date"))
		assert.False(t, q.Has("status"), "empty status must not be sent")
		assert.Equal(t, "5000", q.Get("limit"))
		_, _ = w.Write([]byte(`[{"_id":"a","patient_name":"Ana","date":"2024-03-15","time":"09:00","status":"pending"}]`))
	})

	records, err := client.ListAppointments(context.Background(), appointments.Query{StartDate: "2024-03-15", EndDate: "2024-03-15"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, appointments.StatusPending, records[0].Status)
}

func TestListAppointments_NoFiltersStillSendsLimit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "limit=5000", r.URL.RawQuery)
		_, _ = w.Write([]byte(`null`))
	})

	records, err := client.ListAppointments(context.Background(), appointments.Query{})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestListAppointments_LimitNeverBelowMinimum(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "8000", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[]`))
	}, func(cfg *Config) { cfg.ListLimit = 8000 })
	_, err := client.ListAppointments(context.Background(), appointments.Query{Status: "confirmed"})
	require.NoError(t, err)

	low := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5000", r.URL.Query().Get("limit"))
		assert.Equal(t, "confirmed", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`[]`))
	}, func(cfg *Config) { cfg.ListLimit = 10 })
	_, err = low.ListAppointments(context.Background(), appointments.Query{Status: "confirmed"})
	require.NoError(t, err)
}

func TestServerErrorTaxonomy(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"Error fetching appointments: mongo down"}`))
	})

	_, err := client.ListAppointments(context.Background(), appointments.Query{})
	var srvErr *ServerError
	require.True(t, errors.As(err, &srvErr), "got %T", err)
	assert.Equal(t, http.StatusInternalServerError, srvErr.StatusCode)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "Error fetching appointments: mongo down", ErrorMessage(err, "fallback"))
}

func TestValidationErrorSurfacesDetailVerbatim(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Fecha inválida: 2024-13-01"}`))
	})

	_, err := client.ListAppointments(context.Background(), appointments.Query{StartDate: "2024-13-01"})
	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "Fecha inválida: 2024-13-01", valErr.Detail)
	assert.Equal(t, "Fecha inválida: 2024-13-01", err.Error())
	assert.False(t, IsRetryable(err))
}

func TestValidationErrorJoinsFastAPIEntries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["query","new_status"],"msg":"field required"},{"msg":"value is not a valid integer"}]}`))
	})

	err := client.UpdateAppointmentStatus(context.Background(), "a", appointments.StatusConfirmed, "")
	assert.Equal(t, "field required; value is not a valid integer", ErrorMessage(err, "x"))
}

func TestValidationErrorWithoutDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	err := client.UpdateAppointmentStatus(context.Background(), "missing", appointments.StatusConfirmed, "")
	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Empty(t, valErr.Detail)
	assert.Contains(t, err.Error(), "Not Found")
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, func(cfg *Config) { cfg.ListTimeout = 50 * time.Millisecond })
	defer close(release)

	_, err := client.ListAppointments(context.Background(), appointments.Query{})
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr), "got %T: %v", err, err)
	assert.True(t, netErr.Timeout())
	assert.True(t, IsRetryable(err))
}

func TestUnreachableBackendIsNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	client, err := New(Config{BaseURL: addr, Logger: logging.New("error")})
	require.NoError(t, err)

	_, err = client.GetAppointmentStats(context.Background())
	var netErr *NetworkError
	assert.True(t, errors.As(err, &netErr))
}

func TestMalformedBodyIsServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"_id":`))
	})

	_, err := client.GetTodayAppointments(context.Background())
	var srvErr *ServerError
	assert.True(t, errors.As(err, &srvErr))
}

func TestGetAppointmentStats(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/appointments/stats/", r.URL.Path)
		_, _ = w.Write([]byte(`{"total_appointments":40,"today_appointments":6,"confirmed_appointments":12,"pending_appointments":9,"completed_appointments":15,"cancelled_appointments":4}`))
	})

	stats, err := client.GetAppointmentStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, appointments.Stats{Total: 40, Today: 6, Confirmed: 12, Pending: 9, Completed: 15, Cancelled: 4}, *stats)
}

func TestGetUpcomingAppointmentsDefaultsDays(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/appointments/upcoming/", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.GetUpcomingAppointments(context.Background(), 0)
	require.NoError(t, err)
}

func TestTriggerSyncIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/appointments/sync/", r.URL.Path)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.TriggerSync(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTriggerSyncUnsuccessfulIsNotAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"synced":0,"message":"No data found"}`))
	})

	result, err := client.TriggerSync(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "No data found", result.Message)
}

func TestGetSyncStatusNeverSynced(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/appointments/sync/status/", r.URL.Path)
		_, _ = w.Write([]byte(`{"last_update":null,"auto_sync_active":true,"sync_interval_minutes":5}`))
	})

	status, err := client.GetSyncStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, status.LastUpdate)
	assert.Equal(t, 5, status.SyncIntervalMinutes)
}

func TestUpdateAppointmentStatusQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/appointments/abc 1/status", r.URL.Path)
		assert.Equal(t, "confirmed", r.URL.Query().Get("new_status"))
		assert.Equal(t, "Confirmada", r.URL.Query().Get("estado_cita_text"))
		_, _ = w.Write([]byte(`{"success":true,"appointment_id":"abc 1","status":"confirmed","estado_cita":"Confirmada"}`))
	})

	err := client.UpdateAppointmentStatus(context.Background(), "abc 1", appointments.StatusConfirmed, "Confirmada")
	require.NoError(t, err)
}

func TestUpdateAppointmentStatusRequiresID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	err := client.UpdateAppointmentStatus(context.Background(), " ", appointments.StatusConfirmed, "")
	assert.ErrorIs(t, err, ErrMissingAppointmentID)
}

func TestPatientPassthrough(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "/api/patients/", r.URL.Path)
			_, _ = w.Write([]byte(`[{"id":"p1","name":"Ana","allergies":["latex"]}]`))
		case http.MethodPost:
			assert.Equal(t, "/api/patients/", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(body)
		case http.MethodPut:
			assert.Equal(t, "/api/patients/p1", r.URL.Path)
			_, _ = w.Write([]byte(`{"id":"p1","name":"Ana María"}`))
		}
	})
	ctx := context.Background()

	patients, err := client.ListPatients(ctx)
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.JSONEq(t, `{"id":"p1","name":"Ana","allergies":["latex"]}`, string(patients[0]))

	created, err := client.CreatePatient(ctx, json.RawMessage(`{"name":"Luis"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Luis"}`, string(created))

	updated, err := client.UpdatePatient(ctx, "p1", json.RawMessage(`{"name":"Ana María"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"p1","name":"Ana María"}`, string(updated))
}

func TestHealth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	assert.NoError(t, client.Health(context.Background()))
}

func TestErrorMessageFallbacks(t *testing.T) {
	assert.Equal(t, "fallback", ErrorMessage(nil, "fallback"))
	assert.Equal(t, "boom", ErrorMessage(errors.New("boom"), "fallback"))
	assert.Contains(t, ErrorMessage(&NetworkError{Op: "list", Err: errors.New("refused")}, "fallback"), "refused")
}
