package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aristath/phasing/internal/schedule"
)

// queryTimeout bounds every statement issued by SQLiteStore.
const queryTimeout = 5 * time.Second

var memoryDBCounter atomic.Int64

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	activeName
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite doesn't support _foreign_keys in the connection string
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return openSQLite(ctx, connStr)
}

// NewMemorySQLiteStore creates an in-memory SQLite store. Each call gets its
// own database.
func NewMemorySQLiteStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:phasing-%d?mode=memory&cache=shared", memoryDBCounter.Add(1))
	return openSQLite(ctx, connStr)
}

func openSQLite(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Foreign keys are per connection; a single connection keeps the pragma in force
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Save stores tasks and associations under name, replacing any previous
// content. Uses ON CONFLICT so an overwrite keeps the original position.
func (s *SQLiteStore) Save(ctx context.Context, name string, tasks []*schedule.Task, assoc schedule.Associations) error {
	if err := validateName(name); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (name, position, saved_at)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM snapshots), ?)
		ON CONFLICT(name) DO UPDATE SET
			saved_at = excluded.saved_at
	`, name, formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_tasks WHERE snapshot = ?`, name); err != nil {
		return fmt.Errorf("failed to delete old tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_elements WHERE snapshot = ?`, name); err != nil {
		return fmt.Errorf("failed to delete old associations: %w", err)
	}

	for i, task := range tasks {
		rec := toTaskRecord(task)
		deps, err := json.Marshal(rec.Dependencies)
		if err != nil {
			return fmt.Errorf("failed to encode dependencies of %s: %w", task.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshot_tasks (snapshot, position, task_id, name, start_at, end_at, progress, dependencies, element_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, name, i, rec.ID, rec.Name, rec.Start, rec.End, rec.Progress, string(deps), rec.ElementID)
		if err != nil {
			return fmt.Errorf("failed to insert task %s: %w", task.ID, err)
		}
	}

	for taskID, elements := range assoc {
		for i, elementID := range elements {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO snapshot_elements (snapshot, task_id, position, element_id)
				VALUES (?, ?, ?, ?)
			`, name, taskID, i, elementID)
			if err != nil {
				return fmt.Errorf("failed to insert association %s -> %s: %w", taskID, elementID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.set(name)
	return nil
}

// Load retrieves a snapshot by name.
func (s *SQLiteStore) Load(ctx context.Context, name string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var savedAt string
	err := s.db.QueryRowContext(ctx, `SELECT saved_at FROM snapshots WHERE name = ?`, name).Scan(&savedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	snap := &Snapshot{
		Name:         name,
		Tasks:        []*schedule.Task{},
		Associations: schedule.Associations{},
	}
	if snap.SavedAt, err = parseTime(savedAt); err != nil {
		return nil, fmt.Errorf("snapshot %s saved_at: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, name, start_at, end_at, progress, dependencies, element_id
		FROM snapshot_tasks
		WHERE snapshot = ?
		ORDER BY position
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	for rows.Next() {
		var rec taskRecord
		var deps string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Start, &rec.End, &rec.Progress, &deps, &rec.ElementID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if err := json.Unmarshal([]byte(deps), &rec.Dependencies); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode dependencies of %s: %w", rec.ID, err)
		}
		task, err := fromTaskRecord(rec)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snap.Tasks = append(snap.Tasks, task)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT task_id, element_id
		FROM snapshot_elements
		WHERE snapshot = ?
		ORDER BY task_id, position
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query associations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, elementID string
		if err := rows.Scan(&taskID, &elementID); err != nil {
			return nil, fmt.Errorf("failed to scan association: %w", err)
		}
		snap.Associations[taskID] = append(snap.Associations[taskID], elementID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read associations: %w", err)
	}

	s.set(name)
	return snap, nil
}

// List returns snapshot names in the order they were first saved.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM snapshots ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
