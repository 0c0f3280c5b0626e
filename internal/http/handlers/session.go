package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wolfman30/dental-agenda/internal/http/middleware"
	"github.com/wolfman30/dental-agenda/internal/session"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

// SessionService is the part of session.Manager the handlers drive.
type SessionService interface {
	Login(ctx context.Context, email, password string, remember bool) (*session.Session, string, error)
	Logout(ctx context.Context, token string) (string, error)
}

// BoardDisposer releases per-session state on logout.
type BoardDisposer interface {
	Dispose(sessionID string)
}

type SessionHandler struct {
	sessions SessionService
	boards   BoardDisposer
	logger   *logging.Logger
}

func NewSessionHandler(sessions SessionService, boards BoardDisposer, logger *logging.Logger) *SessionHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionHandler{sessions: sessions, boards: boards, logger: logger.Component("handlers.session")}
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type LoginResponse struct {
	Token   string           `json:"token"`
	Session *session.Session `json:"session"`
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		jsonError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	sess, token, err := h.sessions.Login(r.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.Error("login failed", "error", err)
		}
		writeError(w, err, "Could not sign in")
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Session: sess})
}

// Logout ends the session and disposes its agenda board.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.TokenFromContext(r.Context())
	if !ok {
		jsonError(w, "session required", http.StatusUnauthorized)
		return
	}
	id, err := h.sessions.Logout(r.Context(), token)
	if err != nil {
		writeError(w, err, "Could not sign out")
		return
	}
	if h.boards != nil {
		h.boards.Dispose(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Current returns the signed-in session.
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		jsonError(w, "session required", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
