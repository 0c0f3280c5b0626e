package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/dental-agenda/pkg/logging"
)

const (
	DefaultTTL         = 12 * time.Hour
	DefaultRememberTTL = 30 * 24 * time.Hour

	tokenIssuer = "dental-agenda"
)

type ManagerConfig struct {
	Store       Store
	Directory   *Directory
	Secret      string
	TTL         time.Duration
	RememberTTL time.Duration
	Logger      *logging.Logger
	Now         func() time.Time
}

// Manager signs staff in and out. Tokens are HS256 JWTs whose jti is the
// session id; the store is the source of truth, so logout takes effect even
// while the token is still unexpired.
type Manager struct {
	store       Store
	directory   *Directory
	secret      []byte
	ttl         time.Duration
	rememberTTL time.Duration
	logger      *logging.Logger
	now         func() time.Time
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if cfg.Secret == "" {
		return nil, errors.New("session: signing secret is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rememberTTL := cfg.RememberTTL
	if rememberTTL <= 0 {
		rememberTTL = DefaultRememberTTL
	}
	return &Manager{
		store:       cfg.Store,
		directory:   cfg.Directory,
		secret:      []byte(cfg.Secret),
		ttl:         ttl,
		rememberTTL: rememberTTL,
		logger:      logger.Component("session"),
		now:         now,
	}, nil
}

// Login verifies credentials and opens a session. The returned token is
// what clients present as a Bearer credential.
func (m *Manager) Login(ctx context.Context, email, password string, remember bool) (*Session, string, error) {
	staff, err := m.directory.Authenticate(email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			m.logger.Info("login rejected", "email", email)
		}
		return nil, "", err
	}

	now := m.now().UTC()
	lifetime := m.ttl
	if remember {
		lifetime = m.rememberTTL
	}
	sess := &Session{
		ID:          uuid.NewString(),
		Email:       staff.Email,
		Name:        staff.Name,
		Role:        staff.Role,
		AvatarColor: staff.AvatarColor,
		RememberMe:  remember,
		CreatedAt:   now,
		ExpiresAt:   now.Add(lifetime),
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, "", err
	}
	token, err := m.sign(sess)
	if err != nil {
		_ = m.store.Delete(ctx, sess.ID)
		return nil, "", err
	}
	m.logger.Info("staff signed in", "session_id", sess.ID, "email", sess.Email, "remember", remember)
	return sess, token, nil
}

// Resolve validates token and loads its session.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	id, err := m.parse(token)
	if err != nil {
		return nil, err
	}
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Expired(m.now()) {
		_ = m.store.Delete(ctx, id)
		return nil, ErrNotFound
	}
	return sess, nil
}

// Logout ends the token's session and returns its id so callers can release
// per-session state. Logging out an already-ended session is not an error.
func (m *Manager) Logout(ctx context.Context, token string) (string, error) {
	id, err := m.parse(token)
	if err != nil {
		return "", err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return "", err
	}
	m.logger.Info("staff signed out", "session_id", id)
	return id, nil
}

func (m *Manager) sign(sess *Session) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        sess.ID,
		Subject:   sess.Email,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("session: sign token: %w", err)
	}
	return signed, nil
}

func (m *Manager) parse(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid || claims.ID == "" {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}
