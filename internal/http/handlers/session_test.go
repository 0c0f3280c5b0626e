package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfman30/dental-agenda/internal/agenda"
	"github.com/wolfman30/dental-agenda/internal/http/middleware"
	"github.com/wolfman30/dental-agenda/internal/session"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

func newSessionManager(t *testing.T) *session.Manager {
	t.Helper()
	hash, err := session.HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	mgr, err := session.NewManager(session.ManagerConfig{
		Store:     session.NewMemoryStore(),
		Directory: session.NewDirectory(session.Staff{Email: "lucia@clinica.es", Name: "Lucía", Role: "receptionist", PasswordHash: hash}),
		Secret:    "test-secret",
		Logger:    logging.New("error"),
	})
	require.NoError(t, err)
	return mgr
}

func TestLogin(t *testing.T) {
	h := NewSessionHandler(newSessionManager(t), nil, logging.New("error"))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"email":"lucia@clinica.es","password":"s3cret","remember_me":true}`, http.StatusOK},
		{"wrong password", `{"email":"lucia@clinica.es","password":"nope"}`, http.StatusUnauthorized},
		{"missing fields", `{"email":"lucia@clinica.es"}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/session/login", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Login(rec, req)

			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want == http.StatusOK {
				resp := decode[LoginResponse](t, rec)
				assert.NotEmpty(t, resp.Token)
				assert.Equal(t, "receptionist", resp.Session.Role)
				assert.True(t, resp.Session.RememberMe)
			}
		})
	}
}

func TestLogoutDisposesBoard(t *testing.T) {
	mgr := newSessionManager(t)
	ws := agenda.NewWorkspace(agenda.BoardConfig{API: nil, Logger: logging.New("error")})
	h := NewSessionHandler(mgr, ws, logging.New("error"))

	sess, token, err := mgr.Login(context.Background(), "lucia@clinica.es", "s3cret", false)
	require.NoError(t, err)
	board := ws.Board(sess.ID, sess.ExpiresAt)
	require.Equal(t, 1, ws.Len())

	req := httptest.NewRequest(http.MethodPost, "/session/logout", nil)
	req = req.WithContext(middleware.WithSession(req.Context(), sess, token))
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, ws.Len())
	assert.ErrorIs(t, board.Refresh(context.Background()), agenda.ErrBoardClosed)

	_, err = mgr.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestCurrentSession(t *testing.T) {
	h := NewSessionHandler(newSessionManager(t), nil, logging.New("error"))

	rec := httptest.NewRecorder()
	h.Current(rec, httptest.NewRequest(http.MethodGet, "/session", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Current(rec, request(http.MethodGet, "/session", "s9", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s9", decode[session.Session](t, rec).ID)
}
