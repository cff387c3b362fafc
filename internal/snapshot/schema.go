package snapshot

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		name TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		saved_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshot_tasks (
		snapshot TEXT NOT NULL,
		position INTEGER NOT NULL,
		task_id TEXT NOT NULL,
		name TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		progress INTEGER NOT NULL,
		dependencies TEXT NOT NULL,
		element_id TEXT NOT NULL,
		PRIMARY KEY (snapshot, position),
		FOREIGN KEY (snapshot) REFERENCES snapshots(name) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS snapshot_elements (
		snapshot TEXT NOT NULL,
		task_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		element_id TEXT NOT NULL,
		PRIMARY KEY (snapshot, task_id, position),
		FOREIGN KEY (snapshot) REFERENCES snapshots(name) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_position ON snapshots(position);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
