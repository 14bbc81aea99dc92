// Package content is the host content-item store: items keyed by numeric ID with
// a status, plus per-item key/value metadata.
package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"contentexpiry/internal/domain"
)

var ErrNotFound = errors.New("content item not found")

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS content_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL DEFAULT 'post',
  status TEXT NOT NULL DEFAULT 'publish',
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_content_items_type ON content_items(type);
CREATE TABLE IF NOT EXISTS content_meta (
  item_id INTEGER NOT NULL,
  meta_key TEXT NOT NULL,
  meta_value TEXT NOT NULL,
  PRIMARY KEY (item_id, meta_key)
);
`
	_, err := db.Exec(schema)
	return err
}

type Store interface {
	Create(ctx context.Context, item domain.ContentItem) (int64, error)
	// Get returns nil and no error when the item does not exist.
	Get(ctx context.Context, id int64) (*domain.ContentItem, error)
	SetStatus(ctx context.Context, id int64, status string) error
	Delete(ctx context.Context, id int64) error
	// GetMeta returns "" when the key is unset.
	GetMeta(ctx context.Context, id int64, key string) (string, error)
	SetMeta(ctx context.Context, id int64, key, value string) error
	DeleteMeta(ctx context.Context, id int64, key string) error
}

type sqliteStore struct{ db *sql.DB }

func NewSQLiteStore(db *sql.DB) Store { return &sqliteStore{db: db} }

func (s *sqliteStore) Create(ctx context.Context, item domain.ContentItem) (int64, error) {
	if item.Type == "" {
		item.Type = "post"
	}
	if item.Status == "" {
		item.Status = domain.StatusPublish
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO content_items (title,type,status,created_at,updated_at)
VALUES (?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`, item.Title, item.Type, item.Status)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) Get(ctx context.Context, id int64) (*domain.ContentItem, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,title,type,status,created_at,updated_at FROM content_items WHERE id=?`, id)
	var (
		item             domain.ContentItem
		created, updated string
	)
	err := row.Scan(&item.ID, &item.Title, &item.Type, &item.Status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	item.CreatedAt, _ = domain.ParseDate(created)
	item.UpdatedAt, _ = domain.ParseDate(updated)
	return &item, nil
}

func (s *sqliteStore) SetStatus(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE content_items SET status=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// Delete removes the item and all of its metadata permanently.
func (s *sqliteStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM content_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if err := requireRow(res, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM content_meta WHERE item_id=?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) GetMeta(ctx context.Context, id int64, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `
SELECT meta_value FROM content_meta WHERE item_id=? AND meta_key=?`, id, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func (s *sqliteStore) SetMeta(ctx context.Context, id int64, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO content_meta (item_id,meta_key,meta_value) VALUES (?,?,?)
ON CONFLICT(item_id,meta_key) DO UPDATE SET meta_value=excluded.meta_value`, id, key, value)
	return err
}

func (s *sqliteStore) DeleteMeta(ctx context.Context, id int64, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM content_meta WHERE item_id=? AND meta_key=?`, id, key)
	return err
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return nil
}
