package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"contentexpiry/internal/content"
	"contentexpiry/internal/domain"
	"contentexpiry/internal/events"
)

// EnsureSchema creates tables if they don't exist. The listing query joins
// content_items, so content.EnsureSchema must have run on the same database.
func EnsureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS schedules (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  post_id INTEGER NOT NULL,
  due_at TEXT NOT NULL,
  action TEXT NOT NULL DEFAULT 'unpublish',
  redirect_url TEXT,
  new_status TEXT,
  processed INTEGER NOT NULL DEFAULT 0 CHECK(processed IN (0,1)),
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_schedules_post ON schedules(post_id, processed);
CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(processed, due_at);
`
	_, err := db.Exec(schema)
	return err
}

// ActionSet reports whether an action name is registered.
type ActionSet interface {
	Has(action string) bool
}

type Repository interface {
	Create(ctx context.Context, in domain.ScheduleInput) (int64, error)
	Update(ctx context.Context, id int64, in domain.ScheduleInput) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.Schedule, error)
	GetActiveForContent(ctx context.Context, contentID int64) (*domain.Schedule, error)
	ListDue(ctx context.Context, now time.Time) ([]domain.Schedule, error)
	ListDueAfter(ctx context.Context, now time.Time, afterID int64, limit int) ([]domain.Schedule, error)
	MarkProcessed(ctx context.Context, id int64) error
	List(ctx context.Context, f domain.ListFilter, page, perPage int) ([]domain.ScheduleRow, error)
	Count(ctx context.Context, f domain.ListFilter) (int, error)
}

const (
	DefaultPerPage = 20
	scheduleCols   = `id,post_id,due_at,action,redirect_url,new_status,processed,created_at,updated_at`
)

type sqliteRepo struct {
	db       *sql.DB
	content  content.Store
	actions  ActionSet
	sink     events.Sink
	validate *validator.Validate
}

func NewSQLiteRepo(db *sql.DB, items content.Store, actions ActionSet, sink events.Sink) Repository {
	if sink == nil {
		sink = events.Discard
	}
	return &sqliteRepo{db: db, content: items, actions: actions, sink: sink, validate: newValidator()}
}

func (r *sqliteRepo) Create(ctx context.Context, in domain.ScheduleInput) (int64, error) {
	in = sanitize(in)
	due, err := r.check(ctx, in)
	if err != nil {
		return 0, err
	}
	in = dropUnused(in)

	res, err := r.db.ExecContext(ctx, `
INSERT INTO schedules (post_id,due_at,action,redirect_url,new_status,processed,created_at,updated_at)
VALUES (?,?,?,?,?,0,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
`, in.PostID, domain.FormatDate(due), in.ExpiryAction, nullable(in.RedirectURL), nullable(in.NewStatus))
	if err != nil {
		return 0, &domain.StorageError{Op: "insert schedule", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &domain.StorageError{Op: "insert schedule", Err: err}
	}
	r.clearStaleRedirect(ctx, in)

	r.sink.Publish(ctx, events.ScheduleCreated{ID: id, Data: in})
	return id, nil
}

// Update replaces every mutable field. The processed flag is not mutable.
func (r *sqliteRepo) Update(ctx context.Context, id int64, in domain.ScheduleInput) error {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return &domain.NotFoundError{Resource: "schedule", ID: id}
	}

	in = sanitize(in)
	due, err := r.check(ctx, in)
	if err != nil {
		return err
	}
	in = dropUnused(in)

	_, err = r.db.ExecContext(ctx, `
UPDATE schedules SET post_id=?,due_at=?,action=?,redirect_url=?,new_status=?,updated_at=CURRENT_TIMESTAMP
WHERE id=?`, in.PostID, domain.FormatDate(due), in.ExpiryAction, nullable(in.RedirectURL), nullable(in.NewStatus), id)
	if err != nil {
		return &domain.StorageError{Op: "update schedule", Err: err}
	}
	r.clearStaleRedirect(ctx, in)

	r.sink.Publish(ctx, events.ScheduleUpdated{ID: id, Data: in})
	return nil
}

func (r *sqliteRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM schedules WHERE id=?", id); err != nil {
		return &domain.StorageError{Op: "delete schedule", Err: err}
	}
	r.sink.Publish(ctx, events.ScheduleDeleted{ID: id})
	return nil
}

func (r *sqliteRepo) Get(ctx context.Context, id int64) (*domain.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE id=?`, id)
	return r.one(row, "get schedule")
}

func (r *sqliteRepo) GetActiveForContent(ctx context.Context, contentID int64) (*domain.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+scheduleCols+` FROM schedules
WHERE post_id=? AND processed=0 ORDER BY id DESC LIMIT 1`, contentID)
	return r.one(row, "get active schedule")
}

func (r *sqliteRepo) ListDue(ctx context.Context, now time.Time) ([]domain.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+scheduleCols+` FROM schedules
WHERE processed=0 AND due_at <= ? ORDER BY id`, domain.FormatDate(now))
	if err != nil {
		return nil, &domain.StorageError{Op: "list due schedules", Err: err}
	}
	return collect(rows, "list due schedules")
}

func (r *sqliteRepo) ListDueAfter(ctx context.Context, now time.Time, afterID int64, limit int) ([]domain.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+scheduleCols+` FROM schedules
WHERE processed=0 AND due_at <= ? AND id > ? ORDER BY id LIMIT ?`, domain.FormatDate(now), afterID, limit)
	if err != nil {
		return nil, &domain.StorageError{Op: "list due schedules", Err: err}
	}
	return collect(rows, "list due schedules")
}

// MarkProcessed is idempotent: a second call matches no rows and is not an error.
func (r *sqliteRepo) MarkProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE schedules SET processed=1, updated_at=CURRENT_TIMESTAMP WHERE id=? AND processed=0`, id)
	if err != nil {
		return &domain.StorageError{Op: "mark schedule processed", Err: err}
	}
	return nil
}

func (r *sqliteRepo) List(ctx context.Context, f domain.ListFilter, page, perPage int) ([]domain.ScheduleRow, error) {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page < 1 {
		page = 1
	}
	where, args := filterClause(f)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.db.QueryContext(ctx, `
SELECT s.id,s.post_id,s.due_at,s.action,s.redirect_url,s.new_status,s.processed,s.created_at,s.updated_at,
       COALESCE(c.title,''),COALESCE(c.type,''),COALESCE(c.status,'')
FROM schedules s LEFT JOIN content_items c ON c.id = s.post_id
WHERE `+where+`
ORDER BY s.due_at ASC, s.id ASC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, &domain.StorageError{Op: "list schedules", Err: err}
	}
	defer rows.Close()

	var out []domain.ScheduleRow
	for rows.Next() {
		var sr domain.ScheduleRow
		s, err := scanSchedule(rows, &sr.ContentTitle, &sr.ContentType, &sr.ContentStatus)
		if err != nil {
			return nil, &domain.StorageError{Op: "list schedules", Err: err}
		}
		sr.Schedule = s
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "list schedules", Err: err}
	}
	return out, nil
}

func (r *sqliteRepo) Count(ctx context.Context, f domain.ListFilter) (int, error) {
	where, args := filterClause(f)
	var n int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM schedules s LEFT JOIN content_items c ON c.id = s.post_id
WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, &domain.StorageError{Op: "count schedules", Err: err}
	}
	return n, nil
}

// clearStaleRedirect drops a redirect target left behind by an earlier schedule
// when the item is now scheduled for a different action.
func (r *sqliteRepo) clearStaleRedirect(ctx context.Context, in domain.ScheduleInput) {
	if domain.Action(in.ExpiryAction) == domain.ActionRedirect {
		return
	}
	if err := r.content.DeleteMeta(ctx, in.PostID, domain.RedirectMetaKey); err != nil {
		log.Warn().Err(err).Int64("post_id", in.PostID).Msg("failed to clear stale redirect target")
	}
}

func (r *sqliteRepo) one(row *sql.Row, op string) (*domain.Schedule, error) {
	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Op: op, Err: err}
	}
	return &s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(sc scanner, extra ...any) (domain.Schedule, error) {
	var (
		s                     domain.Schedule
		due, created, updated string
		action                string
		redirect, status      sql.NullString
	)
	dest := append([]any{&s.ID, &s.ContentID, &due, &action, &redirect, &status, &s.Processed, &created, &updated}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return domain.Schedule{}, err
	}
	var err error
	if s.DueAt, err = domain.ParseDate(due); err != nil {
		return domain.Schedule{}, err
	}
	s.CreatedAt, _ = domain.ParseDate(created)
	s.UpdatedAt, _ = domain.ParseDate(updated)
	s.Action = domain.Action(action)
	if redirect.Valid {
		v := redirect.String
		s.RedirectTarget = &v
	}
	if status.Valid {
		v := status.String
		s.TargetStatus = &v
	}
	return s, nil
}

func collect(rows *sql.Rows, op string) ([]domain.Schedule, error) {
	defer rows.Close()
	var out []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, &domain.StorageError{Op: op, Err: err}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: op, Err: err}
	}
	return out, nil
}

func filterClause(f domain.ListFilter) (string, []any) {
	where := []string{"1=1"}
	var args []any
	if f.ContentType != "" {
		where = append(where, "c.type = ?")
		args = append(args, f.ContentType)
	}
	if f.Processed != nil {
		processed := 0
		if *f.Processed {
			processed = 1
		}
		where = append(where, "s.processed = ?")
		args = append(args, processed)
	}
	return strings.Join(where, " AND "), args
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
