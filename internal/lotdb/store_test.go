package lotdb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "occupancy_test.db"))
	require.NoError(t, err, "failed to open test DB")
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.MigrateUp("../../migrations"), "failed to migrate test DB")

	return NewStore(db)
}

func transitionRecord(spaceID int, old, new parking.SpaceState, ts time.Time, dwell float64) parking.TransitionRecord {
	return parking.TransitionRecord{
		SpaceID:      spaceID,
		OldState:     old,
		NewState:     new,
		Timestamp:    ts,
		DwellSeconds: dwell,
	}
}

func TestStoreTransitionRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateSession("sess-1", start, "spaces.json", 2))

	recs := []parking.TransitionRecord{
		transitionRecord(1, parking.SpaceEmpty, parking.SpaceOccupied, start.Add(5*time.Minute), 0),
		transitionRecord(2, parking.SpaceEmpty, parking.SpaceOccupied, start.Add(10*time.Minute), 0),
		transitionRecord(1, parking.SpaceOccupied, parking.SpaceEmpty, start.Add(35*time.Minute), 1800),
	}
	for _, rec := range recs {
		require.NoError(t, store.SaveTransition("sess-1", rec))
	}

	got, err := store.ListTransitions("sess-1", parking.AllSpaces, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Append order preserved.
	assert.Equal(t, 1, got[0].SpaceID)
	assert.Equal(t, parking.SpaceOccupied, got[0].NewState)
	assert.Equal(t, 2, got[1].SpaceID)
	assert.Equal(t, 1800.0, got[2].DwellSeconds)
	assert.True(t, got[2].Timestamp.Equal(start.Add(35*time.Minute)),
		"timestamp should survive the unix round trip: got %v", got[2].Timestamp)
}

func TestStoreTransitionFilters(t *testing.T) {
	store := setupTestStore(t)

	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateSession("sess-1", start, "spaces.json", 2))

	for i := 0; i < 6; i++ {
		spaceID := 1 + i%2
		ts := start.Add(time.Duration(i*10) * time.Minute)
		require.NoError(t, store.SaveTransition("sess-1",
			transitionRecord(spaceID, parking.SpaceEmpty, parking.SpaceOccupied, ts, 0)))
	}

	t.Run("by space", func(t *testing.T) {
		got, err := store.ListTransitions("sess-1", 2, 0, 0, 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for _, rec := range got {
			assert.Equal(t, 2, rec.SpaceID)
		}
	})

	t.Run("by time range", func(t *testing.T) {
		startUnix := float64(start.Add(15 * time.Minute).Unix())
		endUnix := float64(start.Add(45 * time.Minute).Unix())
		got, err := store.ListTransitions("sess-1", parking.AllSpaces, startUnix, endUnix, 0)
		require.NoError(t, err)
		assert.Len(t, got, 3) // offsets 20, 30, 40
	})

	t.Run("with limit", func(t *testing.T) {
		got, err := store.ListTransitions("sess-1", parking.AllSpaces, 0, 0, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[0].Timestamp.Equal(start), "limit should keep the earliest rows")
	})

	t.Run("unknown session", func(t *testing.T) {
		got, err := store.ListTransitions("no-such-session", parking.AllSpaces, 0, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateSession("sess-1", start, "spaces.json", 4))

	snaps := []parking.Snapshot{
		{Timestamp: start, EmptyCount: 4, OccupiedCount: 0, TotalCount: 4, OccupancyRate: 0},
		{Timestamp: start.Add(time.Minute), EmptyCount: 3, OccupiedCount: 1, TotalCount: 4, OccupancyRate: 0.25},
		{Timestamp: start.Add(2 * time.Minute), EmptyCount: 1, OccupiedCount: 3, TotalCount: 4, OccupancyRate: 0.75},
	}
	for _, snap := range snaps {
		require.NoError(t, store.SaveSnapshot("sess-1", snap))
	}

	got, err := store.ListSnapshots("sess-1", 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 3, got[2].OccupiedCount)
	assert.InDelta(t, 0.75, got[2].OccupancyRate, 1e-9)

	limited, err := store.ListSnapshots("sess-1", float64(start.Add(30*time.Second).Unix()), 0, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, 1, limited[0].OccupiedCount)
}

func TestStoreListSessions(t *testing.T) {
	store := setupTestStore(t)

	early := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	late := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateSession("sess-early", early, "spaces.json", 2))
	require.NoError(t, store.CreateSession("sess-late", late, "spaces.json", 3))

	require.NoError(t, store.SaveTransition("sess-early",
		transitionRecord(1, parking.SpaceEmpty, parking.SpaceOccupied, early.Add(time.Minute), 0)))
	require.NoError(t, store.SaveSnapshot("sess-early",
		parking.Snapshot{Timestamp: early.Add(time.Minute), EmptyCount: 1, OccupiedCount: 1, TotalCount: 2, OccupancyRate: 0.5}))
	require.NoError(t, store.SaveSnapshot("sess-early",
		parking.Snapshot{Timestamp: early.Add(2 * time.Minute), EmptyCount: 1, OccupiedCount: 1, TotalCount: 2, OccupancyRate: 0.5}))

	sessions, err := store.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	// Newest first.
	assert.Equal(t, "sess-late", sessions[0].SessionID)
	assert.Equal(t, 3, sessions[0].TotalSpaces)
	assert.Equal(t, 0, sessions[0].Transitions)

	assert.Equal(t, "sess-early", sessions[1].SessionID)
	assert.Equal(t, 1, sessions[1].Transitions)
	assert.Equal(t, 2, sessions[1].Snapshots)
	assert.True(t, sessions[1].StartedAt.Equal(early))
}

func TestStoreDuplicateSessionRejected(t *testing.T) {
	store := setupTestStore(t)

	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateSession("sess-1", start, "spaces.json", 2))
	assert.Error(t, store.CreateSession("sess-1", start, "spaces.json", 2))
}
