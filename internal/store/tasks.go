package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TaskStatus mirrors the lifecycle states a translation task moves through.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// TaskRecord is the durable row shape for translation_tasks. Timestamps are
// stored as RFC3339 strings; zero time.Time means "not set" (NULL).
type TaskRecord struct {
	TaskID           string
	MangaRef         string
	PageIndex        int
	Language         string
	EngineID         string
	Priority         int
	Status           TaskStatus
	RequestTime      time.Time
	StartTime        time.Time
	EndTime          time.Time
	RetryCount       int
	MaxRetries       int
	LastError        string
	ForceRetranslate bool
	Metadata         []byte
}

// ErrTaskNotFound is returned when a task lookup finds no matching row.
var ErrTaskNotFound = errors.New("store: task not found")

// InsertTask persists a new task row.
func (s *Store) InsertTask(t TaskRecord) error {
	_, err := s.writer.Exec(
		`INSERT INTO translation_tasks
		 (task_id, manga_ref, page_index, language, engine_id, priority, status,
		  request_time, start_time, end_time, retry_count, max_retries,
		  last_error, force_retranslate, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TaskID, t.MangaRef, t.PageIndex, t.Language, t.EngineID, t.Priority, string(t.Status),
		formatTime(t.RequestTime), formatTimePtr(t.StartTime), formatTimePtr(t.EndTime),
		t.RetryCount, t.MaxRetries, t.LastError, boolToInt(t.ForceRetranslate), t.Metadata,
	)
	if err != nil {
		return fmt.Errorf("store: insert task: %w", err)
	}
	return nil
}

// UpdateTaskStatus transitions a task's status and, where applicable, its
// start/end timestamps and error message in a single statement.
func (s *Store) UpdateTaskStatus(taskID string, status TaskStatus, startTime, endTime time.Time, lastError string) error {
	result, err := s.writer.Exec(
		`UPDATE translation_tasks
		 SET status = ?, start_time = COALESCE(?, start_time), end_time = COALESCE(?, end_time), last_error = ?
		 WHERE task_id = ?`,
		string(status), formatTimePtr(startTime), formatTimePtr(endTime), lastError, taskID,
	)
	if err != nil {
		return fmt.Errorf("store: update task status: %w", err)
	}
	return checkRowsAffected(result, ErrTaskNotFound)
}

// IncrementTaskRetry bumps retry_count and resets status to pending.
func (s *Store) IncrementTaskRetry(taskID string, lastError string) error {
	result, err := s.writer.Exec(
		`UPDATE translation_tasks
		 SET retry_count = retry_count + 1, status = ?, last_error = ?
		 WHERE task_id = ?`,
		string(TaskPending), lastError, taskID,
	)
	if err != nil {
		return fmt.Errorf("store: increment task retry: %w", err)
	}
	return checkRowsAffected(result, ErrTaskNotFound)
}

// DeleteTask removes a task row outright (used for hard cancellation/cleanup).
func (s *Store) DeleteTask(taskID string) error {
	result, err := s.writer.Exec(`DELETE FROM translation_tasks WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("store: delete task: %w", err)
	}
	return checkRowsAffected(result, ErrTaskNotFound)
}

// GetTask fetches a single task by id.
func (s *Store) GetTask(taskID string) (TaskRecord, error) {
	row := s.reader.QueryRow(taskColumns()+` WHERE task_id = ?`, taskID)
	return scanTask(row)
}

// ListTasksByStatus returns all tasks with the given status, oldest request
// first (FIFO within a status; request time is also the last key of the
// priority dequeue comparator, after class and weight).
func (s *Store) ListTasksByStatus(status TaskStatus) ([]TaskRecord, error) {
	rows, err := s.reader.Query(taskColumns()+` WHERE status = ? ORDER BY request_time ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("store: list tasks by status: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListActiveTasks returns every pending or processing task, used to
// repopulate the in-memory queue after a restart.
func (s *Store) ListActiveTasks() ([]TaskRecord, error) {
	rows, err := s.reader.Query(
		taskColumns()+` WHERE status IN (?, ?) ORDER BY request_time ASC`,
		string(TaskPending), string(TaskProcessing),
	)
	if err != nil {
		return nil, fmt.Errorf("store: list active tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// UpsertTask writes t, replacing any existing row with the same task_id.
// Used by the in-memory queue's periodic flusher, which has no notion of
// "new" vs. "existing" row — it just mirrors its current snapshot to disk.
func (s *Store) UpsertTask(t TaskRecord) error {
	_, err := s.writer.Exec(
		`INSERT OR REPLACE INTO translation_tasks
		 (task_id, manga_ref, page_index, language, engine_id, priority, status,
		  request_time, start_time, end_time, retry_count, max_retries,
		  last_error, force_retranslate, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TaskID, t.MangaRef, t.PageIndex, t.Language, t.EngineID, t.Priority, string(t.Status),
		formatTime(t.RequestTime), formatTimePtr(t.StartTime), formatTimePtr(t.EndTime),
		t.RetryCount, t.MaxRetries, t.LastError, boolToInt(t.ForceRetranslate), t.Metadata,
	)
	if err != nil {
		return fmt.Errorf("store: upsert task: %w", err)
	}
	return nil
}

// DemoteStaleProcessing resets any task still marked processing back to
// pending. Called once at startup: a processing row found on disk means the
// previous run crashed mid-task, and the work was never actually finished.
func (s *Store) DemoteStaleProcessing() (int64, error) {
	result, err := s.writer.Exec(
		`UPDATE translation_tasks SET status = ?, start_time = NULL WHERE status = ?`,
		string(TaskPending), string(TaskProcessing),
	)
	if err != nil {
		return 0, fmt.Errorf("store: demote stale processing: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: demote stale processing rows affected: %w", err)
	}
	return n, nil
}

func taskColumns() string {
	return `SELECT task_id, manga_ref, page_index, language, engine_id, priority, status,
	        request_time, start_time, end_time, retry_count, max_retries,
	        last_error, force_retranslate, metadata
	        FROM translation_tasks`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (TaskRecord, error) {
	var t TaskRecord
	var status string
	var requestTime string
	var startTime, endTime sql.NullString
	var forceRetranslate int

	err := row.Scan(
		&t.TaskID, &t.MangaRef, &t.PageIndex, &t.Language, &t.EngineID, &t.Priority, &status,
		&requestTime, &startTime, &endTime, &t.RetryCount, &t.MaxRetries,
		&t.LastError, &forceRetranslate, &t.Metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return TaskRecord{}, ErrTaskNotFound
	}
	if err != nil {
		return TaskRecord{}, fmt.Errorf("store: scan task: %w", err)
	}

	t.Status = TaskStatus(status)
	t.ForceRetranslate = forceRetranslate != 0
	t.RequestTime, _ = time.Parse(time.RFC3339, requestTime)
	if startTime.Valid {
		t.StartTime, _ = time.Parse(time.RFC3339, startTime.String)
	}
	if endTime.Valid {
		t.EndTime, _ = time.Parse(time.RFC3339, endTime.String)
	}
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]TaskRecord, error) {
	var out []TaskRecord
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate tasks: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(result sql.Result, notFoundErr error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}
