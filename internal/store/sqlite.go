package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"remindd/internal/reminder"
	"remindd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- reminders ----

const reminderCols = `id, owner_id, title, description, category, tags, priority,
	scheduled_time, timezone, recurrence, channels, advance_notice, tone,
	status, snooze_until, completed_at, created_at, updated_at, created_by, meta`

func (s *sqliteStore) CreateReminder(ctx context.Context, r *reminder.Reminder) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(`+reminderCols+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.OwnerID, r.Title, nullStr(r.Description), nullStr(string(r.Category)),
		jsonOrNull(r.Tags), nullStr(string(r.Priority)),
		r.ScheduledTime.UnixMilli(), nullStr(r.Timezone), jsonOrNull(r.Recurrence),
		jsonOrNull(r.Channels), jsonOrNull(r.AdvanceNotice), nullStr(r.Tone),
		string(r.Status), nullTimeMS(r.SnoozeUntil), nullTimeMS(r.CompletedAt),
		r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli(), nullStr(string(r.CreatedBy)),
		jsonOrNull(r.Meta),
	)
	return err
}

func (s *sqliteStore) GetReminder(ctx context.Context, id string) (*reminder.Reminder, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reminder.NotFoundError{ID: id}
	}
	return r, err
}

func (s *sqliteStore) UpdateReminder(ctx context.Context, r *reminder.Reminder) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET owner_id=?, title=?, description=?, category=?, tags=?,
		   priority=?, scheduled_time=?, timezone=?, recurrence=?, channels=?,
		   advance_notice=?, tone=?, status=?, snooze_until=?, completed_at=?,
		   created_at=?, updated_at=?, created_by=?, meta=?
		 WHERE id=?`,
		r.OwnerID, r.Title, nullStr(r.Description), nullStr(string(r.Category)),
		jsonOrNull(r.Tags), nullStr(string(r.Priority)),
		r.ScheduledTime.UnixMilli(), nullStr(r.Timezone), jsonOrNull(r.Recurrence),
		jsonOrNull(r.Channels), jsonOrNull(r.AdvanceNotice), nullStr(r.Tone),
		string(r.Status), nullTimeMS(r.SnoozeUntil), nullTimeMS(r.CompletedAt),
		r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli(), nullStr(string(r.CreatedBy)),
		jsonOrNull(r.Meta),
		r.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return reminder.NotFoundError{ID: r.ID}
	}
	return err
}

func (s *sqliteStore) DeleteReminder(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) DueReminders(ctx context.Context, at time.Time, limit int) ([]*reminder.Reminder, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := `SELECT ` + reminderCols + ` FROM reminders
	      WHERE status IN (?, ?) AND scheduled_time <= ?
	      ORDER BY scheduled_time ASC`
	args := []any{string(reminder.StatusActive), string(reminder.StatusSnoozed), at.UnixMilli()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (s *sqliteStore) RemindersByOwner(ctx context.Context, ownerID string, f ReminderFilter) ([]*reminder.Reminder, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := `SELECT ` + reminderCols + ` FROM reminders WHERE owner_id = ?`
	args := []any{ownerID}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		q += ` AND category = ?`
		args = append(args, string(f.Category))
	}
	if !f.Since.IsZero() {
		q += ` AND scheduled_time >= ?`
		args = append(args, f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		q += ` AND scheduled_time <= ?`
		args = append(args, f.Until.UnixMilli())
	}
	q += ` ORDER BY scheduled_time ASC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			q += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

// ---- user prefs ----

const prefCols = `owner_id, timezone, quiet_start, quiet_end, check_in_time,
	digest_every_ms, next_digest_at, default_channels, last_seen_at`

func (s *sqliteStore) PutUserPrefs(ctx context.Context, p UserPrefs) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_prefs(`+prefCols+`) VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(owner_id) DO UPDATE SET
		   timezone=excluded.timezone, quiet_start=excluded.quiet_start,
		   quiet_end=excluded.quiet_end, check_in_time=excluded.check_in_time,
		   digest_every_ms=excluded.digest_every_ms, next_digest_at=excluded.next_digest_at,
		   default_channels=excluded.default_channels, last_seen_at=excluded.last_seen_at`,
		p.OwnerID, nullStr(p.Timezone), nullStr(p.Quiet.Start), nullStr(p.Quiet.End),
		nullStr(p.CheckInTime), p.DigestEvery.Milliseconds(), msOrZero(p.NextDigestAt),
		jsonOrNull(p.DefaultChannels), msOrZero(p.LastSeenAt),
	)
	return err
}

func (s *sqliteStore) GetUserPrefs(ctx context.Context, ownerID string) (UserPrefs, bool, error) {
	if s == nil || s.db == nil {
		return UserPrefs{}, false, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+prefCols+` FROM user_prefs WHERE owner_id = ?`, ownerID)
	p, err := scanPrefs(row)
	if errors.Is(err, sql.ErrNoRows) {
		return UserPrefs{}, false, nil
	}
	if err != nil {
		return UserPrefs{}, false, err
	}
	return p, true, nil
}

func (s *sqliteStore) CheckInOwners(ctx context.Context, at time.Time, tolerance time.Duration) ([]UserPrefs, error) {
	prefs, err := s.allPrefs(ctx, `check_in_time IS NOT NULL AND check_in_time != ''`)
	if err != nil {
		return nil, err
	}
	out := prefs[:0]
	for _, p := range prefs {
		if p.CheckInDue(at, tolerance) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *sqliteStore) DigestOwners(ctx context.Context, at time.Time) ([]UserPrefs, error) {
	return s.allPrefs(ctx,
		fmt.Sprintf(`digest_every_ms > 0 AND next_digest_at > 0 AND next_digest_at <= %d`, at.UnixMilli()))
}

func (s *sqliteStore) InactiveOwners(ctx context.Context, since time.Time) ([]UserPrefs, error) {
	return s.allPrefs(ctx,
		fmt.Sprintf(`last_seen_at > 0 AND last_seen_at < %d`, since.UnixMilli()))
}

func (s *sqliteStore) allPrefs(ctx context.Context, where string) ([]UserPrefs, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+prefCols+` FROM user_prefs WHERE `+where)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserPrefs
	for rows.Next() {
		p, err := scanPrefs(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- execution log ----

func (s *sqliteStore) AppendExecution(ctx context.Context, rec ExecutionRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_executions(task_id, task_name, task_type, started_at,
		   duration_ms, success, processed, failed, errors)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		rec.TaskID, nullStr(rec.TaskName), nullStr(rec.TaskType), rec.StartedAt.UnixMilli(),
		rec.Duration.Milliseconds(), boolInt(rec.Success), rec.Processed, rec.Failed,
		nullStr(rec.Errors),
	)
	return err
}

func (s *sqliteStore) Executions(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := `SELECT task_id, task_name, task_type, started_at, duration_ms, success,
	        processed, failed, errors
	      FROM task_executions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExecutionRecord
	for rows.Next() {
		var rec ExecutionRecord
		var name, typ, errsJSON sql.NullString
		var startedMS, durMS int64
		var success int
		if err := rows.Scan(&rec.TaskID, &name, &typ, &startedMS, &durMS, &success,
			&rec.Processed, &rec.Failed, &errsJSON); err != nil {
			return nil, err
		}
		rec.TaskName = name.String
		rec.TaskType = typ.String
		rec.StartedAt = time.UnixMilli(startedMS)
		rec.Duration = time.Duration(durMS) * time.Millisecond
		rec.Success = success != 0
		rec.Errors = errsJSON.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneExecutions(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_executions WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) PruneReminders(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE status IN (?,?,?) AND updated_at < ?`,
		string(reminder.StatusCompleted), string(reminder.StatusCancelled),
		string(reminder.StatusExpired), cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ---- scanning helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*reminder.Reminder, error) {
	var r reminder.Reminder
	var desc, category, tags, priority, tz, recur, channels, advance, tone, createdBy, meta sql.NullString
	var scheduledMS, createdMS, updatedMS int64
	var snoozeMS, completedMS sql.NullInt64
	var status string

	err := row.Scan(&r.ID, &r.OwnerID, &r.Title, &desc, &category, &tags, &priority,
		&scheduledMS, &tz, &recur, &channels, &advance, &tone,
		&status, &snoozeMS, &completedMS, &createdMS, &updatedMS, &createdBy, &meta)
	if err != nil {
		return nil, err
	}

	r.Description = desc.String
	r.Category = reminder.Category(category.String)
	r.Priority = reminder.Priority(priority.String)
	r.Timezone = tz.String
	r.Tone = tone.String
	r.Status = reminder.Status(status)
	r.CreatedBy = reminder.CreatedBy(createdBy.String)
	r.ScheduledTime = time.UnixMilli(scheduledMS)
	r.CreatedAt = time.UnixMilli(createdMS)
	r.UpdatedAt = time.UnixMilli(updatedMS)
	if snoozeMS.Valid {
		t := time.UnixMilli(snoozeMS.Int64)
		r.SnoozeUntil = &t
	}
	if completedMS.Valid {
		t := time.UnixMilli(completedMS.Int64)
		r.CompletedAt = &t
	}
	if err := unmarshalInto(tags, &r.Tags); err != nil {
		return nil, err
	}
	if err := unmarshalInto(recur, &r.Recurrence); err != nil {
		return nil, err
	}
	if err := unmarshalInto(channels, &r.Channels); err != nil {
		return nil, err
	}
	if err := unmarshalInto(advance, &r.AdvanceNotice); err != nil {
		return nil, err
	}
	if err := unmarshalInto(meta, &r.Meta); err != nil {
		return nil, err
	}
	return &r, nil
}

func collectReminders(rows *sql.Rows) ([]*reminder.Reminder, error) {
	var out []*reminder.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanPrefs(row rowScanner) (UserPrefs, error) {
	var p UserPrefs
	var tz, qs, qe, checkin, channels sql.NullString
	var digestMS, nextDigestMS, lastSeenMS int64

	err := row.Scan(&p.OwnerID, &tz, &qs, &qe, &checkin,
		&digestMS, &nextDigestMS, &channels, &lastSeenMS)
	if err != nil {
		return UserPrefs{}, err
	}
	p.Timezone = tz.String
	p.Quiet = reminder.QuietWindow{Start: qs.String, End: qe.String}
	p.CheckInTime = checkin.String
	p.DigestEvery = time.Duration(digestMS) * time.Millisecond
	if nextDigestMS > 0 {
		p.NextDigestAt = time.UnixMilli(nextDigestMS)
	}
	if lastSeenMS > 0 {
		p.LastSeenAt = time.UnixMilli(lastSeenMS)
	}
	if err := unmarshalInto(channels, &p.DefaultChannels); err != nil {
		return UserPrefs{}, err
	}
	return p, nil
}

func unmarshalInto(s sql.NullString, dst any) error {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}

func jsonOrNull(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" || string(b) == "[]" || string(b) == "{}" {
		return nil
	}
	return string(b)
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTimeMS(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func msOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
