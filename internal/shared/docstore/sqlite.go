// Package docstore keeps JSON documents in SQLite for single-host deployments.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no document matches.
var ErrNotFound = errors.New("document not found")

// ErrExists is returned by Insert when the key is taken.
var ErrExists = errors.New("document already exists")

// Store persists documents keyed by (collection, user id, id).
type Store struct {
	db *sqlx.DB
}

type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS documents (
				collection TEXT NOT NULL,
				user_id    TEXT NOT NULL,
				id         TEXT NOT NULL,
				body       TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				PRIMARY KEY (collection, user_id, id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_documents_user ON documents (user_id, collection, created_at)`,
		},
	},
}

// Open opens (or creates) the database at path and applies pending migrations.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One writer keeps SQLite happy and makes :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_version: %w", err)
	}
	var current int
	if err := s.db.Get(&current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Beginx()
		if err != nil {
			return err
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

type row struct {
	ID   string `db:"id"`
	Body string `db:"body"`
}

// Insert stores v as a new document.
func (s *Store) Insert(ctx context.Context, collection, userID, id string, v any, at time.Time) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, user_id, id, body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		collection, userID, id, string(body), at.UTC(), at.UTC())
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExists
	}
	return nil
}

// Put inserts or replaces a document.
func (s *Store) Put(ctx context.Context, collection, userID, id string, v any, at time.Time) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, user_id, id, body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (collection, user_id, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		collection, userID, id, string(body), at.UTC(), at.UTC())
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

// Get decodes a single document into dst.
func (s *Store) Get(ctx context.Context, collection, userID, id string, dst any) error {
	var body string
	err := s.db.GetContext(ctx, &body,
		`SELECT body FROM documents WHERE collection = ? AND user_id = ? AND id = ?`,
		collection, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	return json.Unmarshal([]byte(body), dst)
}

// Update loads a document, applies mutate and writes it back in one transaction.
func (s *Store) Update(ctx context.Context, collection, userID, id string, dst any, mutate func() error, at time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var body string
	err = tx.GetContext(ctx, &body,
		`SELECT body FROM documents WHERE collection = ? AND user_id = ? AND id = ?`,
		collection, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := mutate(); err != nil {
		return err
	}
	updated, err := json.Marshal(dst)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND user_id = ? AND id = ?`,
		string(updated), at.UTC(), collection, userID, id); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return tx.Commit()
}

// List returns the raw JSON bodies of a user's collection ordered by creation time.
func (s *Store) List(ctx context.Context, collection, userID string) ([]json.RawMessage, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, body FROM documents WHERE collection = ? AND user_id = ? ORDER BY created_at, id`,
		collection, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, json.RawMessage(r.Body))
	}
	return out, nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND user_id = ? AND id = ?`,
		collection, userID, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
