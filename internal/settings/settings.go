// Package settings persists the key/value settings blob and keeps the loaded
// Settings in memory for the rest of the process.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"contentexpiry/internal/domain"
)

const (
	KeySettings         = "settings"
	KeyLastRuntimeSweep = "last_runtime_sweep"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS options (
  name TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);`)
	return err
}

type Store interface {
	Get(ctx context.Context, key, def string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type sqliteStore struct{ db *sql.DB }

func NewSQLiteStore(db *sql.DB) Store { return &sqliteStore{db: db} }

func (s *sqliteStore) Get(ctx context.Context, key, def string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM options WHERE name=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return v, nil
}

func (s *sqliteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO options (name,value,updated_at) VALUES (?,?,CURRENT_TIMESTAMP)
ON CONFLICT(name) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP`, key, value)
	return err
}

// Manager holds the settings loaded at startup and writes changes back to the Store.
type Manager struct {
	store    Store
	validate *validator.Validate
	allowed  func(action string) bool

	mu      sync.RWMutex
	current domain.Settings
}

// Load reads the persisted blob, falling back to defaults for absent fields.
// allowed reports whether an action name may be used as the default action.
func Load(ctx context.Context, store Store, allowed func(action string) bool) (*Manager, error) {
	m := &Manager{store: store, validate: validator.New(), allowed: allowed, current: domain.DefaultSettings()}

	raw, err := store.Get(ctx, KeySettings, "")
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &m.current); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return m, nil
}

func (m *Manager) Current() domain.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) CronEnabled() bool { return m.Current().CronEnabled }

// Update validates s, persists it and makes it current.
func (m *Manager) Update(ctx context.Context, s domain.Settings) error {
	if m.allowed != nil && !m.allowed(s.DefaultAction) {
		return &domain.ValidationError{Code: domain.CodeInvalidDefaultAction, Message: "Invalid default action."}
	}
	if err := m.validate.Struct(s); err != nil {
		return domain.NewValidationError("Invalid settings: %s", describe(err))
	}

	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, KeySettings, string(b)); err != nil {
		return &domain.StorageError{Op: "save settings", Err: err}
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return nil
}

// LastRuntimeSweep returns the persisted time of the last opportunistic sweep,
// or the zero time if none was recorded.
func (m *Manager) LastRuntimeSweep(ctx context.Context) (time.Time, error) {
	raw, err := m.store.Get(ctx, KeyLastRuntimeSweep, "0")
	if err != nil {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}, nil
	}
	return time.Unix(sec, 0), nil
}

func (m *Manager) SetLastRuntimeSweep(ctx context.Context, t time.Time) error {
	return m.store.Set(ctx, KeyLastRuntimeSweep, strconv.FormatInt(t.Unix(), 10))
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Field() + " failed " + verrs[0].Tag()
	}
	return err.Error()
}
