package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/dental-agenda/pkg/logging"
)

const maxPatientBody = 64 << 10

// PatientAPI passes patient records through to the backend untouched.
type PatientAPI interface {
	ListPatients(ctx context.Context) ([]json.RawMessage, error)
	CreatePatient(ctx context.Context, patient json.RawMessage) (json.RawMessage, error)
	UpdatePatient(ctx context.Context, id string, patient json.RawMessage) (json.RawMessage, error)
}

type PatientsHandler struct {
	api    PatientAPI
	logger *logging.Logger
}

func NewPatientsHandler(api PatientAPI, logger *logging.Logger) *PatientsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PatientsHandler{api: api, logger: logger.Component("handlers.patients")}
}

func (h *PatientsHandler) List(w http.ResponseWriter, r *http.Request) {
	patients, err := h.api.ListPatients(r.Context())
	if err != nil {
		writeError(w, err, "Error fetching patients")
		return
	}
	if patients == nil {
		patients = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, patients)
}

func (h *PatientsHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSONObject(w, r)
	if !ok {
		return
	}
	created, err := h.api.CreatePatient(r.Context(), body)
	if err != nil {
		writeError(w, err, "Error creating patient")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *PatientsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		jsonError(w, "missing patient id", http.StatusBadRequest)
		return
	}
	body, ok := readJSONObject(w, r)
	if !ok {
		return
	}
	updated, err := h.api.UpdatePatient(r.Context(), id, body)
	if err != nil {
		writeError(w, err, "Error updating patient")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// readJSONObject reads a body that must be a single JSON object.
func readJSONObject(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPatientBody))
	if err != nil {
		jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil || probe == nil {
		jsonError(w, "body must be a JSON object", http.StatusBadRequest)
		return nil, false
	}
	return json.RawMessage(data), true
}
