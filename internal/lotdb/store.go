package lotdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

// Store handles database operations for occupancy sessions. It implements
// parking.EventSink so a session can fan its output stream straight into
// the append-only log.
type Store struct {
	db *DB
}

// NewStore creates a Store over an open database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// CreateSession records session metadata at session start.
func (s *Store) CreateSession(sessionID string, startedAt time.Time, configPath string, totalSpaces int) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (session_id, started_unix, config_path, total_spaces)
		VALUES (?, ?, ?, ?)
	`, sessionID, unixSeconds(startedAt), configPath, totalSpaces)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// SaveTransition appends one transition record to the log.
func (s *Store) SaveTransition(sessionID string, rec parking.TransitionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO occupancy_transitions (
			session_id, space_id, old_state, new_state, unix_time, dwell_seconds
		) VALUES (?, ?, ?, ?, ?, ?)
	`, sessionID, rec.SpaceID, string(rec.OldState), string(rec.NewState),
		unixSeconds(rec.Timestamp), rec.DwellSeconds)
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

// SaveSnapshot appends one occupancy snapshot to the log.
func (s *Store) SaveSnapshot(sessionID string, snap parking.Snapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO occupancy_snapshots (
			session_id, unix_time, empty_count, occupied_count, total_count, occupancy_rate
		) VALUES (?, ?, ?, ?, ?, ?)
	`, sessionID, unixSeconds(snap.Timestamp), snap.EmptyCount, snap.OccupiedCount,
		snap.TotalCount, snap.OccupancyRate)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// ListTransitions retrieves transitions for a session with optional
// filters: spaceID (parking.AllSpaces for all), start/end unix seconds
// (0 to skip), and limit (0 for no limit). Results come back in
// chronological append order.
func (s *Store) ListTransitions(sessionID string, spaceID int, startUnix, endUnix float64, limit int) ([]parking.TransitionRecord, error) {
	query := `
		SELECT space_id, old_state, new_state, unix_time, dwell_seconds
		FROM occupancy_transitions
		WHERE session_id = ?
	`
	args := []interface{}{sessionID}

	if spaceID != parking.AllSpaces {
		query += " AND space_id = ?"
		args = append(args, spaceID)
	}
	if startUnix > 0 {
		query += " AND unix_time >= ?"
		args = append(args, startUnix)
	}
	if endUnix > 0 {
		query += " AND unix_time <= ?"
		args = append(args, endUnix)
	}

	query += " ORDER BY transition_id ASC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	records := []parking.TransitionRecord{}
	for rows.Next() {
		var rec parking.TransitionRecord
		var oldState, newState string
		var unix float64
		if err := rows.Scan(&rec.SpaceID, &oldState, &newState, &unix, &rec.DwellSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan transition row: %w", err)
		}
		rec.OldState = parking.SpaceState(oldState)
		rec.NewState = parking.SpaceState(newState)
		rec.Timestamp = fromUnixSeconds(unix)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transition rows: %w", err)
	}

	return records, nil
}

// ListSnapshots retrieves snapshots for a session with optional time
// filters and limit, in chronological append order.
func (s *Store) ListSnapshots(sessionID string, startUnix, endUnix float64, limit int) ([]parking.Snapshot, error) {
	query := `
		SELECT unix_time, empty_count, occupied_count, total_count, occupancy_rate
		FROM occupancy_snapshots
		WHERE session_id = ?
	`
	args := []interface{}{sessionID}

	if startUnix > 0 {
		query += " AND unix_time >= ?"
		args = append(args, startUnix)
	}
	if endUnix > 0 {
		query += " AND unix_time <= ?"
		args = append(args, endUnix)
	}

	query += " ORDER BY snapshot_id ASC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []parking.Snapshot{}
	for rows.Next() {
		var snap parking.Snapshot
		var unix float64
		if err := rows.Scan(&unix, &snap.EmptyCount, &snap.OccupiedCount, &snap.TotalCount, &snap.OccupancyRate); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snap.Timestamp = fromUnixSeconds(unix)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}

	return snaps, nil
}

// SessionInfo is one row of session metadata plus stream counts.
type SessionInfo struct {
	SessionID   string    `json:"session_id"`
	StartedAt   time.Time `json:"started_at"`
	ConfigPath  string    `json:"config_path"`
	TotalSpaces int       `json:"total_spaces"`
	Transitions int       `json:"transitions"`
	Snapshots   int       `json:"snapshots"`
}

// ListSessions returns metadata for all recorded sessions, newest first.
func (s *Store) ListSessions() ([]SessionInfo, error) {
	rows, err := s.db.Query(`
		SELECT
			se.session_id, se.started_unix, se.config_path, se.total_spaces,
			(SELECT COUNT(*) FROM occupancy_transitions tr WHERE tr.session_id = se.session_id),
			(SELECT COUNT(*) FROM occupancy_snapshots sn WHERE sn.session_id = se.session_id)
		FROM sessions se
		ORDER BY se.started_unix DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionInfo{}
	for rows.Next() {
		var info SessionInfo
		var unix float64
		var configPath sql.NullString
		if err := rows.Scan(&info.SessionID, &unix, &configPath, &info.TotalSpaces, &info.Transitions, &info.Snapshots); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		info.StartedAt = fromUnixSeconds(unix)
		if configPath.Valid {
			info.ConfigPath = configPath.String
		}
		sessions = append(sessions, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(unix float64) time.Time {
	return time.Unix(0, int64(unix*1e9)).UTC()
}
