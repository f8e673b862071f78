// Package lotdb provides the append-only sqlite persistence layer for
// occupancy sessions: transition events, periodic snapshots and session
// metadata. The on-disk log is what the offline report replays; the live
// engine never reads it back during a session.
package lotdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the sqlite database at path and applies the
// connection pragmas. Schema management is separate; see MigrateUp.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// WAL keeps the per-frame append writes from blocking API reads;
	// busy_timeout covers the brief writer overlap during checkpoints.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", p, err)
		}
	}

	return &DB{db}, nil
}
