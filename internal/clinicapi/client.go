// Package clinicapi is the REST client for the clinic's appointments and
// patients backend. It builds URLs and query strings, bounds every call with a
// timeout and maps failures onto NetworkError, ServerError and ValidationError.
// It keeps no local cache.
package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/observability/metrics"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultListTimeout = 20 * time.Second
	defaultSyncTimeout = 30 * time.Second

	// MinListLimit keeps the backend from silently truncating list results.
	MinListLimit        = 5000
	DefaultUpcomingDays = 7

	maxResponseBytes = 32 << 20
)

var tracer = otel.Tracer("agenda.internal.clinicapi")

// ErrMissingAppointmentID is returned before any request is made.
var ErrMissingAppointmentID = errors.New("clinicapi: appointment id is required")

// Config configures a Client. Zero durations and limits use the defaults.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	ListTimeout time.Duration
	SyncTimeout time.Duration
	ListLimit   int
	HTTPClient  *http.Client
	Logger      *logging.Logger
	Metrics     *metrics.AgendaMetrics
}

// Client talks to <BaseURL>/api.
type Client struct {
	httpClient  *http.Client
	apiURL      string
	timeout     time.Duration
	listTimeout time.Duration
	syncTimeout time.Duration
	listLimit   int
	logger      *logging.Logger
	metrics     *metrics.AgendaMetrics
}

// New constructs a Client for the backend at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("clinicapi: backend base URL is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("clinicapi: invalid backend base URL %q", cfg.BaseURL)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		httpClient:  httpClient,
		apiURL:      base + "/api",
		timeout:     orDefault(cfg.Timeout, defaultTimeout),
		listTimeout: orDefault(cfg.ListTimeout, defaultListTimeout),
		syncTimeout: orDefault(cfg.SyncTimeout, defaultSyncTimeout),
		listLimit:   cfg.ListLimit,
		logger:      logger.Component("clinicapi"),
		metrics:     cfg.Metrics,
	}
	if c.listLimit < MinListLimit {
		c.listLimit = MinListLimit
	}
	return c, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// ListAppointments fetches appointments matching q. Only non-empty filters are
// sent, and a high limit is always included.
func (c *Client) ListAppointments(ctx context.Context, q appointments.Query) ([]appointments.Record, error) {
	params := url.Values{}
	if q.StartDate != "" {
		params.Set("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		params.Set("end_date", q.EndDate)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	params.Set("limit", strconv.Itoa(c.listLimit))

	var records []appointments.Record
	if err := c.doJSON(ctx, call{
		op:      "list_appointments",
		method:  http.MethodGet,
		path:    "/appointments/",
		query:   params,
		timeout: c.listTimeout,
	}, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []appointments.Record{}
	}
	return records, nil
}

// GetTodayAppointments fetches the backend's view of today's appointments.
func (c *Client) GetTodayAppointments(ctx context.Context) ([]appointments.Record, error) {
	var records []appointments.Record
	if err := c.doJSON(ctx, call{op: "today_appointments", method: http.MethodGet, path: "/appointments/today/"}, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []appointments.Record{}
	}
	return records, nil
}

// GetUpcomingAppointments fetches pending and confirmed appointments for the next days.
func (c *Client) GetUpcomingAppointments(ctx context.Context, days int) ([]appointments.Record, error) {
	if days <= 0 {
		days = DefaultUpcomingDays
	}
	params := url.Values{}
	params.Set("days", strconv.Itoa(days))

	var records []appointments.Record
	if err := c.doJSON(ctx, call{op: "upcoming_appointments", method: http.MethodGet, path: "/appointments/upcoming/", query: params}, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []appointments.Record{}
	}
	return records, nil
}

// GetAppointmentStats fetches aggregate counters.
func (c *Client) GetAppointmentStats(ctx context.Context) (*appointments.Stats, error) {
	var stats appointments.Stats
	if err := c.doJSON(ctx, call{op: "appointment_stats", method: http.MethodGet, path: "/appointments/stats/"}, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// TriggerSync asks the backend to pull the spreadsheet and waits for its answer.
// It is never retried here; repeating a sync is the user's decision.
func (c *Client) TriggerSync(ctx context.Context) (*appointments.SyncResult, error) {
	var result appointments.SyncResult
	if err := c.doJSON(ctx, call{op: "trigger_sync", method: http.MethodPost, path: "/appointments/sync/", timeout: c.syncTimeout}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSyncStatus reads the last sync metadata. A never-synced backend yields a
// status with a nil LastUpdate, not an error.
func (c *Client) GetSyncStatus(ctx context.Context) (*appointments.SyncStatus, error) {
	var status appointments.SyncStatus
	if err := c.doJSON(ctx, call{op: "sync_status", method: http.MethodGet, path: "/appointments/sync/status/"}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// UpdateAppointmentStatus sets the status and optional display label of one appointment.
func (c *Client) UpdateAppointmentStatus(ctx context.Context, id string, status appointments.Status, label string) error {
	if strings.TrimSpace(id) == "" {
		return ErrMissingAppointmentID
	}
	params := url.Values{}
	params.Set("new_status", string(status))
	if label != "" {
		params.Set("estado_cita_text", label)
	}
	return c.doJSON(ctx, call{
		op:     "update_status",
		method: http.MethodPost,
		path:   "/appointments/" + url.PathEscape(id) + "/status",
		query:  params,
	}, nil)
}

// ListPatients returns the backend's patient documents untouched.
func (c *Client) ListPatients(ctx context.Context) ([]json.RawMessage, error) {
	var patients []json.RawMessage
	if err := c.doJSON(ctx, call{op: "list_patients", method: http.MethodGet, path: "/patients/"}, &patients); err != nil {
		return nil, err
	}
	if patients == nil {
		patients = []json.RawMessage{}
	}
	return patients, nil
}

// CreatePatient forwards a patient document and returns the stored one.
func (c *Client) CreatePatient(ctx context.Context, patient json.RawMessage) (json.RawMessage, error) {
	var created json.RawMessage
	if err := c.doJSON(ctx, call{op: "create_patient", method: http.MethodPost, path: "/patients/", body: patient}, &created); err != nil {
		return nil, err
	}
	return created, nil
}

// UpdatePatient replaces a patient document.
func (c *Client) UpdatePatient(ctx context.Context, id string, patient json.RawMessage) (json.RawMessage, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("clinicapi: patient id is required")
	}
	var updated json.RawMessage
	if err := c.doJSON(ctx, call{op: "update_patient", method: http.MethodPut, path: "/patients/" + url.PathEscape(id), body: patient}, &updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Health checks that the backend answers.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, call{op: "health", method: http.MethodGet, path: "/health"}, nil)
}

type call struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    any
	timeout time.Duration
}

func (c *Client) doJSON(ctx context.Context, cl call, out any) (err error) {
	timeout := cl.timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "clinicapi."+cl.op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", cl.method),
		attribute.String("agenda.backend.path", cl.path),
	)

	start := time.Now()
	defer func() {
		c.metrics.ObserveBackend(cl.op, outcomeOf(err), time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, cl.op+" failed")
		}
	}()

	endpoint := c.apiURL + cl.path
	if len(cl.query) > 0 {
		endpoint += "?" + cl.query.Encode()
	}

	var bodyReader io.Reader
	if cl.body != nil {
		payload, mErr := json.Marshal(cl.body)
		if mErr != nil {
			return fmt.Errorf("clinicapi: %s: marshal request: %w", cl.op, mErr)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("clinicapi: %s: build request: %w", cl.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("api request", "method", cl.method, "path", cl.path, "query", cl.query.Encode())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("backend unreachable", "op", cl.op, "path", cl.path, "error", err)
		return &NetworkError{Op: cl.op, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Error("backend response interrupted", "op", cl.op, "path", cl.path, "error", err)
		return &NetworkError{Op: cl.op, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		detail := parseDetail(respBody)
		c.logger.Error("backend server error", "op", cl.op, "status", resp.StatusCode, "detail", detail)
		return &ServerError{Op: cl.op, StatusCode: resp.StatusCode, Detail: detail}
	case resp.StatusCode >= 400:
		detail := parseDetail(respBody)
		c.logger.Warn("backend rejected request", "op", cl.op, "status", resp.StatusCode, "detail", detail)
		return &ValidationError{Op: cl.op, StatusCode: resp.StatusCode, Detail: detail}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.logger.Error("unexpected backend status", "op", cl.op, "status", resp.StatusCode)
		return &ServerError{Op: cl.op, StatusCode: resp.StatusCode, Detail: "unexpected status"}
	}

	c.logger.Debug("api success", "method", cl.method, "path", cl.path, "status", resp.StatusCode)

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		c.logger.Error("malformed backend response", "op", cl.op, "error", err)
		return &ServerError{Op: cl.op, StatusCode: resp.StatusCode, Detail: "malformed response body", Err: err}
	}
	return nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var netErr *NetworkError
	var srvErr *ServerError
	var valErr *ValidationError
	switch {
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &srvErr):
		return "server"
	case errors.As(err, &valErr):
		return "validation"
	default:
		return "client"
	}
}
