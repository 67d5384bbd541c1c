package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

type Session struct {
	Token     string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Store) CreateUser(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE username = ?;`, username).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return ErrUserExists
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?);`,
		username, hash, time.Now().UTC().Format(time.RFC3339))
	return err
}

// Authenticate checks a username/password pair. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Store) Authenticate(ctx context.Context, username, password string) error {
	var hash []byte
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE username = ?;`, strings.TrimSpace(username)).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, username string, ttl time.Duration) (Session, error) {
	now := time.Now().UTC()
	sess := Session{
		Token:     uuid.NewString(),
		Username:  strings.TrimSpace(username),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (token, username, created_at, expires_at) VALUES (?, ?, ?, ?);`,
		sess.Token, sess.Username, now.Format(time.RFC3339), sess.ExpiresAt.Format(time.RFC3339))
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// LookupSession returns the live session for token; unknown and expired
// tokens both return ErrNotFound.
func (s *Store) LookupSession(ctx context.Context, token string) (Session, error) {
	var sess Session
	var createdStr, expiresStr string
	err := s.db.QueryRowContext(ctx, `SELECT token, username, created_at, expires_at FROM sessions WHERE token = ?;`, token).
		Scan(&sess.Token, &sess.Username, &createdStr, &expiresStr)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if t, err := time.Parse(time.RFC3339, createdStr); err == nil {
		sess.CreatedAt = t
	}
	expires, err := time.Parse(time.RFC3339, expiresStr)
	if err != nil || !time.Now().UTC().Before(expires) {
		return Session{}, ErrNotFound
	}
	sess.ExpiresAt = expires
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?;`, token)
	return err
}
