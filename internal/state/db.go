// Package state provides SQLite-backed snapshots of task and subtask
// records. The orchestrator treats persistence as write-only and
// fire-and-forget: snapshot errors are logged, never propagated, and
// the core never reads its own snapshots back. The status command and
// tests are the only readers.
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

// DB wraps an SQLite database connection with snapshot operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// ProjectDBPath returns the default project-local database path.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".studio", "state.db")
}

// Open opens an SQLite database at the given path, creating parent
// directories if needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Tasks},
		{2, migrationV2Subtasks},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Migration SQL statements
const migrationV1Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	result_json TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
`

const migrationV2Subtasks = `
CREATE TABLE IF NOT EXISTS subtasks (
	id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	generation INTEGER NOT NULL DEFAULT 0,
	assigned_to TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	result_json TEXT,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (task_id, id)
);

CREATE INDEX IF NOT EXISTS idx_subtasks_task ON subtasks(task_id);
`

// SaveTask upserts a task snapshot with its current status and, once
// terminal, its aggregated result.
func (db *DB) SaveTask(task *models.Task, status models.TaskStatus, result *models.TaskResult) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var resultJSON sql.NullString
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal task result: %w", err)
		}
		resultJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := db.conn.Exec(`
		INSERT INTO tasks (id, type, status, priority, result_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result_json = excluded.result_json,
			updated_at = excluded.updated_at
	`, task.ID, task.Type, string(status), task.Priority, resultJSON, task.CreatedAt, time.Now())
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

// SaveSubtask upserts a subtask snapshot.
func (db *DB) SaveSubtask(st *models.Subtask) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var resultJSON sql.NullString
	if st.Result != nil {
		raw, err := json.Marshal(st.Result)
		if err != nil {
			return fmt.Errorf("marshal subtask result: %w", err)
		}
		resultJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := db.conn.Exec(`
		INSERT INTO subtasks (id, task_id, type, status, generation, assigned_to, attempts, error, result_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id, id) DO UPDATE SET
			status = excluded.status,
			generation = excluded.generation,
			assigned_to = excluded.assigned_to,
			attempts = excluded.attempts,
			error = excluded.error,
			result_json = excluded.result_json,
			updated_at = excluded.updated_at
	`, st.ID, st.TaskID, st.Type, string(st.Status), st.Generation, st.AssignedTo, st.Attempts, st.Error, resultJSON, time.Now())
	if err != nil {
		return fmt.Errorf("save subtask %s/%s: %w", st.TaskID, st.ID, err)
	}
	return nil
}

// TaskSnapshot is one row of the tasks table, as read by the status
// command.
type TaskSnapshot struct {
	ID        string
	Type      string
	Status    models.TaskStatus
	Priority  int
	Result    *models.TaskResult
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListTasks returns task snapshots, newest first, up to limit rows.
func (db *DB) ListTasks(limit int) ([]*TaskSnapshot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, type, status, priority, result_json, created_at, updated_at
		FROM tasks ORDER BY updated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*TaskSnapshot
	for rows.Next() {
		snap := &TaskSnapshot{}
		var status string
		var resultJSON sql.NullString
		if err := rows.Scan(&snap.ID, &snap.Type, &status, &snap.Priority, &resultJSON, &snap.CreatedAt, &snap.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		snap.Status = models.TaskStatus(status)
		if resultJSON.Valid {
			result := &models.TaskResult{}
			if err := json.Unmarshal([]byte(resultJSON.String), result); err == nil {
				snap.Result = result
			}
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// ListSubtasks returns subtask snapshots for one task.
func (db *DB) ListSubtasks(taskID string) ([]*models.Subtask, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, task_id, type, status, generation, assigned_to, attempts, error, result_json
		FROM subtasks WHERE task_id = ? ORDER BY generation, id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list subtasks: %w", err)
	}
	defer rows.Close()

	var out []*models.Subtask
	for rows.Next() {
		st := &models.Subtask{}
		var status string
		var assignedTo, errMsg, resultJSON sql.NullString
		if err := rows.Scan(&st.ID, &st.TaskID, &st.Type, &status, &st.Generation, &assignedTo, &st.Attempts, &errMsg, &resultJSON); err != nil {
			return nil, fmt.Errorf("scan subtask row: %w", err)
		}
		st.Status = models.SubtaskStatus(status)
		st.AssignedTo = assignedTo.String
		st.Error = errMsg.String
		if resultJSON.Valid {
			result := &models.SubtaskResult{}
			if err := json.Unmarshal([]byte(resultJSON.String), result); err == nil {
				st.Result = result
			}
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
