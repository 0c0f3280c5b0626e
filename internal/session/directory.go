package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Staff is one entry of the staff directory.
type Staff struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	AvatarColor  string `json:"avatar_color"`
	PasswordHash string `json:"password_hash"`
}

// Directory authenticates staff against bcrypt password hashes.
type Directory struct {
	byEmail map[string]Staff
}

// ParseDirectory reads a JSON array of staff entries, as found in
// STAFF_DIRECTORY_JSON. Emails are matched case-insensitively.
func ParseDirectory(raw string) (*Directory, error) {
	dir := &Directory{byEmail: make(map[string]Staff)}
	if strings.TrimSpace(raw) == "" {
		return dir, nil
	}
	var entries []Staff
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("session: parse staff directory: %w", err)
	}
	for i, entry := range entries {
		email := normalizeEmail(entry.Email)
		if email == "" {
			return nil, fmt.Errorf("session: staff entry %d has no email", i)
		}
		if entry.PasswordHash == "" {
			return nil, fmt.Errorf("session: staff entry %s has no password hash", email)
		}
		if _, dup := dir.byEmail[email]; dup {
			return nil, fmt.Errorf("session: duplicate staff entry %s", email)
		}
		entry.Email = email
		dir.byEmail[email] = entry
	}
	return dir, nil
}

// NewDirectory builds a directory from already-hashed entries.
func NewDirectory(entries ...Staff) *Directory {
	dir := &Directory{byEmail: make(map[string]Staff, len(entries))}
	for _, entry := range entries {
		entry.Email = normalizeEmail(entry.Email)
		dir.byEmail[entry.Email] = entry
	}
	return dir
}

// Len is the number of staff entries.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.byEmail)
}

// Authenticate returns the staff entry when the password matches.
func (d *Directory) Authenticate(email, password string) (Staff, error) {
	if d == nil {
		return Staff{}, ErrInvalidCredentials
	}
	entry, ok := d.byEmail[normalizeEmail(email)]
	if !ok || password == "" {
		return Staff{}, ErrInvalidCredentials
	}
	err := bcrypt.CompareHashAndPassword([]byte(entry.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return Staff{}, ErrInvalidCredentials
	}
	if err != nil {
		return Staff{}, fmt.Errorf("session: verify password for %s: %w", entry.Email, err)
	}
	return entry, nil
}

// HashPassword produces a bcrypt hash suitable for a directory entry.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("session: hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
