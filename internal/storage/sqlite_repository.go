package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sandeepkv93/remindd/internal/model"
)

const sqliteTimeLayout = time.RFC3339Nano

const taskColumns = `id, title, status, priority, category, reminder_time, end_time, repeat_rule, parent_task_id,
	dependencies, progress, advance_reminders, reminder_strategy, persistent_reminder, notification_interval,
	snooze_until, snooze_count, reminder_sent, completed_at, created_at`

type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// SQLiteDSN starts every transaction with BEGIN IMMEDIATE, so concurrent
// read-then-write updates queue on the busy timeout instead of failing on
// lock upgrade.
func SQLiteDSN(path string) string {
	return path + "?_busy_timeout=5000&_txlock=immediate"
}

func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo, err := NewSQLiteRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) CreateTask(ctx context.Context, in model.Task) error {
	if err := in.Validate(); err != nil {
		return err
	}
	args, err := taskArgs(in)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	return err
}

func (r *SQLiteRepository) GetTask(ctx context.Context, id string) (model.Task, error) {
	return getTask(ctx, r.db, id)
}

// UpdateTask applies patch to the stored row inside a transaction.
func (r *SQLiteRepository) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	task, err := getTask(ctx, tx, id)
	if err != nil {
		return err
	}
	patch.Apply(&task)
	args, err := taskArgs(task)
	if err != nil {
		return err
	}
	// Drop the id from the front and append it for the WHERE clause.
	args = append(args[1:], task.ID)
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, status = ?, priority = ?, category = ?, reminder_time = ?, end_time = ?, repeat_rule = ?,
			parent_task_id = ?, dependencies = ?, progress = ?, advance_reminders = ?, reminder_strategy = ?,
			persistent_reminder = ?, notification_interval = ?, snooze_until = ?, snooze_count = ?,
			reminder_sent = ?, completed_at = ?, created_at = ?
		WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) DeleteTask(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListTasks(ctx context.Context, filter TaskListFilter) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.ParentTaskID != "" {
		clauses = append(clauses, "parent_task_id = ?")
		args = append(args, filter.ParentTaskID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Task, 0)
	for rows.Next() {
		task, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateRule(ctx context.Context, in model.NotificationRule) error {
	if err := in.Validate(); err != nil {
		return err
	}
	minutes, err := json.Marshal(nonNilInts(in.ActionAdvanceMinutes))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notification_rules (id, name, is_enabled, condition_category, condition_priority, action_mute, action_sound, action_advance_minutes, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Name, boolInt(in.IsEnabled), orAll(in.ConditionCategory), orAll(in.ConditionPriority),
		boolInt(in.ActionMute), in.ActionSound, string(minutes), in.Position,
	)
	return err
}

// ListRules returns rules in declaration order, which is also match order.
func (r *SQLiteRepository) ListRules(ctx context.Context) ([]model.NotificationRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, is_enabled, condition_category, condition_priority, action_mute, action_sound, action_advance_minutes, position
		FROM notification_rules ORDER BY position ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.NotificationRule, 0)
	for rows.Next() {
		var item model.NotificationRule
		var enabled, mute int
		var minutes string
		if err := rows.Scan(&item.ID, &item.Name, &enabled, &item.ConditionCategory, &item.ConditionPriority,
			&mute, &item.ActionSound, &minutes, &item.Position); err != nil {
			return nil, err
		}
		item.IsEnabled = enabled == 1
		item.ActionMute = mute == 1
		if err := json.Unmarshal([]byte(minutes), &item.ActionAdvanceMinutes); err != nil {
			return nil, fmt.Errorf("decode rule %s minutes: %w", item.ID, err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) RecordBehavior(ctx context.Context, in model.Behavior) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO behaviors (id, task_id, action, occurred_at) VALUES (?, ?, ?, ?)`,
		in.ID, in.TaskID, in.Action, mustTime(in.OccurredAt))
	return err
}

func (r *SQLiteRepository) ListRecentBehavior(ctx context.Context, limit int) ([]model.Behavior, error) {
	args := make([]any, 0, 1)
	query := `SELECT id, task_id, action, occurred_at FROM behaviors ORDER BY occurred_at DESC` + applyPagination(&args, limit, 0)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Behavior, 0)
	for rows.Next() {
		var item model.Behavior
		var occurred string
		if err := rows.Scan(&item.ID, &item.TaskID, &item.Action, &occurred); err != nil {
			return nil, err
		}
		at, err := parseRequiredTime(occurred)
		if err != nil {
			return nil, err
		}
		item.OccurredAt = at
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateCompletionRecord(ctx context.Context, in model.CompletionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO completion_records (id, task_id, completed_at, narrative, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM completion_records))`,
		in.ID, in.TaskID, mustTime(in.CompletedAt), in.Narrative,
	)
	return err
}

// DeleteMostRecentCompletionRecord removes only the latest record of a task.
func (r *SQLiteRepository) DeleteMostRecentCompletionRecord(ctx context.Context, taskID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM completion_records
		WHERE id = (SELECT id FROM completion_records WHERE task_id = ? ORDER BY seq DESC LIMIT 1)`, taskID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListCompletionRecords(ctx context.Context, taskID string) ([]model.CompletionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, completed_at, narrative FROM completion_records
		WHERE task_id = ? ORDER BY seq ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.CompletionRecord, 0)
	for rows.Next() {
		var item model.CompletionRecord
		var completed string
		if err := rows.Scan(&item.ID, &item.TaskID, &completed, &item.Narrative); err != nil {
			return nil, err
		}
		at, err := parseRequiredTime(completed)
		if err != nil {
			return nil, err
		}
		item.CompletedAt = at
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) AttachNarrative(ctx context.Context, recordID, narrative string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE completion_records SET narrative = ? WHERE id = ?`, narrative, recordID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// GetCurrentUser returns the settings row, or DND-disabled defaults when the
// row has not been written yet.
func (r *SQLiteRepository) GetCurrentUser(ctx context.Context) (model.UserSettings, error) {
	row := r.db.QueryRowContext(ctx, `SELECT user_id, dnd_enabled, dnd_start, dnd_end FROM user_settings WHERE user_id = ?`, DefaultUserID)
	var out model.UserSettings
	var enabled int
	if err := row.Scan(&out.UserID, &enabled, &out.DND.Start, &out.DND.End); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.UserSettings{UserID: DefaultUserID}, nil
		}
		return model.UserSettings{}, err
	}
	out.DND.Enabled = enabled == 1
	return out, nil
}

func (r *SQLiteRepository) SaveUserSettings(ctx context.Context, in model.UserSettings) error {
	if in.UserID == "" {
		in.UserID = DefaultUserID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, dnd_enabled, dnd_start, dnd_end) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET dnd_enabled = excluded.dnd_enabled, dnd_start = excluded.dnd_start, dnd_end = excluded.dnd_end`,
		in.UserID, boolInt(in.DND.Enabled), in.DND.Start, in.DND.End)
	return err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTask(ctx context.Context, q queryer, id string) (model.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, err
	}
	return task, nil
}

func taskArgs(in model.Task) ([]any, error) {
	deps, err := json.Marshal(nonNilStrings(in.Dependencies))
	if err != nil {
		return nil, err
	}
	advance, err := json.Marshal(nonNilInts(in.AdvanceReminders))
	if err != nil {
		return nil, err
	}
	var strategy any
	if in.Strategy != nil {
		raw, err := json.Marshal(in.Strategy)
		if err != nil {
			return nil, err
		}
		strategy = string(raw)
	}
	repeat := in.RepeatRule
	if repeat == "" {
		repeat = model.RepeatNone
	}
	return []any{
		in.ID, in.Title, in.Status, in.Priority, in.Category, nullTime(in.ReminderTime), nullTime(in.EndTime),
		repeat, in.ParentTaskID, string(deps), in.Progress, string(advance), strategy,
		boolInt(in.PersistentReminder), in.NotificationInterval, nullTime(in.SnoozeUntil), in.SnoozeCount,
		boolInt(in.ReminderSent), nullTime(in.CompletedAt), mustTime(in.CreatedAt),
	}, nil
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(sqliteTimeLayout)
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	tm, err := time.Parse(sqliteTimeLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func orAll(v string) string {
	if v == "" {
		return model.MatchAll
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

func applyPagination(args *[]any, limit, offset int) string {
	sql := ""
	if limit > 0 {
		sql += " LIMIT ?"
		*args = append(*args, limit)
	}
	if offset > 0 {
		if limit <= 0 {
			sql += " LIMIT -1"
		}
		sql += " OFFSET ?"
		*args = append(*args, offset)
	}
	return sql
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (model.Task, error) {
	var out model.Task
	var reminder, end, snooze, completed, strategy sql.NullString
	var deps, advance, created string
	var persistent, sent int
	if err := s.Scan(&out.ID, &out.Title, &out.Status, &out.Priority, &out.Category, &reminder, &end,
		&out.RepeatRule, &out.ParentTaskID, &deps, &out.Progress, &advance, &strategy, &persistent,
		&out.NotificationInterval, &snooze, &out.SnoozeCount, &sent, &completed, &created); err != nil {
		return model.Task{}, err
	}
	var err error
	if out.ReminderTime, err = parseNullableTime(reminder); err != nil {
		return model.Task{}, err
	}
	if out.EndTime, err = parseNullableTime(end); err != nil {
		return model.Task{}, err
	}
	if out.SnoozeUntil, err = parseNullableTime(snooze); err != nil {
		return model.Task{}, err
	}
	if out.CompletedAt, err = parseNullableTime(completed); err != nil {
		return model.Task{}, err
	}
	if out.CreatedAt, err = parseRequiredTime(created); err != nil {
		return model.Task{}, err
	}
	if err := json.Unmarshal([]byte(deps), &out.Dependencies); err != nil {
		return model.Task{}, fmt.Errorf("decode dependencies of %s: %w", out.ID, err)
	}
	if err := json.Unmarshal([]byte(advance), &out.AdvanceReminders); err != nil {
		return model.Task{}, fmt.Errorf("decode advance reminders of %s: %w", out.ID, err)
	}
	if strategy.Valid && strategy.String != "" {
		out.Strategy = &model.ReminderStrategy{}
		if err := json.Unmarshal([]byte(strategy.String), out.Strategy); err != nil {
			return model.Task{}, fmt.Errorf("decode strategy of %s: %w", out.ID, err)
		}
	}
	out.PersistentReminder = persistent == 1
	out.ReminderSent = sent == 1
	return out, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
