package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	envToken = "TODOGATE_TOKEN"
	envUser  = "TODOGATE_USER"
)

var ErrNotSignedIn = errors.New("not signed in")

// Session is a signed-in identity and the bearer token that proves it.
type Session struct {
	Username  string     `json:"username"`
	Token     string     `json:"token"`
	Endpoint  string     `json:"endpoint"`
	Source    string     `json:"source"` // "env" | "file"
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s Session) DisplayName() string {
	if n := strings.TrimSpace(s.Username); n != "" {
		return n
	}
	return "there"
}

// Expired reports whether the stored expiry has passed.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// Store persists a Session in a JSON file readable only by its owner.
type Store struct {
	Path string
}

// Load returns the current session: $TODOGATE_TOKEN wins, then the
// credentials file. ErrNotSignedIn means neither is present.
func (s Store) Load() (Session, error) {
	if tok := strings.TrimSpace(os.Getenv(envToken)); tok != "" {
		return Session{
			Username: strings.TrimSpace(os.Getenv(envUser)),
			Token:    stripBearer(tok),
			Source:   "env",
		}, nil
	}

	b, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, ErrNotSignedIn
		}
		return Session{}, fmt.Errorf("read credentials: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return Session{}, fmt.Errorf("parse credentials: %w", err)
	}
	sess.Token = stripBearer(sess.Token)
	if sess.Token == "" {
		return Session{}, ErrNotSignedIn
	}
	sess.Source = "file"
	return sess, nil
}

func (s Store) Save(sess Session) error {
	sess.Token = stripBearer(strings.TrimSpace(sess.Token))
	if sess.Token == "" {
		return fmt.Errorf("empty token")
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	sess.Source = "file"
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	b, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.WriteFile(s.Path, b, 0o600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (s Store) Delete() error {
	if err := os.Remove(s.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

func stripBearer(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return strings.TrimSpace(s[7:])
	}
	return s
}
