package storage

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"todogate/internal/model"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("db path is empty")
	}
	if !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
	dsn := sqliteDSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	is_done INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS items_owner ON items(owner);
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password_hash BLOB NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);`
	_, err := s.db.Exec(ddl)
	return err
}

// ListItems returns every item owned by owner in insertion order.
func (s *Store) ListItems(ctx context.Context, owner string) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, status, is_done, created_at FROM items WHERE owner = ? ORDER BY rowid;`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		var it model.Item
		var doneInt int
		var createdStr string
		if err := rows.Scan(&it.ID, &it.Status, &doneInt, &createdStr); err != nil {
			return nil, err
		}
		it.IsDone = doneInt == 1
		if created, err := time.Parse(time.RFC3339Nano, createdStr); err == nil {
			it.CreatedAt = created
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateItem stores a new item for owner and returns it with its assigned id.
func (s *Store) CreateItem(ctx context.Context, owner string, in model.CreateItemInput) (model.Item, error) {
	now := time.Now().UTC()
	it := model.Item{
		ID:        uuid.NewString(),
		Status:    in.Status,
		IsDone:    in.IsDone,
		CreatedAt: now,
	}
	done := 0
	if in.IsDone {
		done = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO items (id, owner, status, is_done, created_at) VALUES (?, ?, ?, ?, ?);`,
		it.ID, owner, it.Status, done, now.Format(time.RFC3339Nano))
	if err != nil {
		return model.Item{}, err
	}
	return it, nil
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	u := url.URL{
		Scheme: "file",
		Path:   path,
	}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}
