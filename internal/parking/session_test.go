package parking

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

// captureSink records everything a session fans out.
type captureSink struct {
	transitions []TransitionRecord
	snapshots   []Snapshot
	failSaves   bool
}

func (c *captureSink) SaveTransition(sessionID string, rec TransitionRecord) error {
	if c.failSaves {
		return errors.New("sink unavailable")
	}
	c.transitions = append(c.transitions, rec)
	return nil
}

func (c *captureSink) SaveSnapshot(sessionID string, snap Snapshot) error {
	if c.failSaves {
		return errors.New("sink unavailable")
	}
	c.snapshots = append(c.snapshots, snap)
	return nil
}

func newTestSession(t *testing.T) (*Session, *timeutil.FakeClock) {
	t.Helper()
	clock := timeutil.NewFakeClock(time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC))
	spaces := []*ParkingSpace{
		NewParkingSpace(1, squarePolygon(), 0.2),
		NewParkingSpace(2, []Point{{200, 0}, {300, 0}, {300, 100}, {200, 100}}, 0.2),
	}
	return NewSession(spaces, clock), clock
}

func TestSessionProcessFrame(t *testing.T) {
	t.Parallel()

	t.Run("assigns a session id", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestSession(t)
		assert.NotEmpty(t, s.ID)
		s2, _ := newTestSession(t)
		assert.NotEqual(t, s.ID, s2.ID, "sessions are independent")
	})

	t.Run("records one snapshot per frame regardless of transitions", func(t *testing.T) {
		t.Parallel()
		s, clock := newTestSession(t)
		for i := 0; i < 4; i++ {
			_, err := s.ProcessFrame(nil, clock.Now())
			require.NoError(t, err)
			clock.Advance(time.Second)
		}
		assert.Len(t, s.Metrics.Snapshots(), 4)
		assert.Empty(t, s.Metrics.Transitions())
		assert.Equal(t, 4, s.FrameCount())
	})

	t.Run("zero timestamp falls back to session clock", func(t *testing.T) {
		t.Parallel()
		s, clock := newTestSession(t)
		clock.Set(time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC))
		_, err := s.ProcessFrame(nil, time.Time{})
		require.NoError(t, err)
		snaps := s.Metrics.Snapshots()
		require.Len(t, snaps, 1)
		assert.Equal(t, clock.Now(), snaps[0].Timestamp)
	})

	t.Run("transitions carry current dwell to the metrics log", func(t *testing.T) {
		t.Parallel()
		s, clock := newTestSession(t)
		occupied := []Detection{DetectionFromBBox(BBox{X1: 0, Y1: 0, X2: 100, Y2: 100})}

		_, err := s.ProcessFrame(nil, clock.Now()) // baseline: both empty
		require.NoError(t, err)

		clock.Advance(time.Minute)
		events, err := s.ProcessFrame(occupied, clock.Now()) // space 1 occupied
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, 1, events[0].SpaceID)

		clock.Advance(2 * time.Minute)
		// Window is [0,1,0]: majority empty, space 1 transitions back.
		events, err = s.ProcessFrame(nil, clock.Now())
		require.NoError(t, err)
		require.Len(t, events, 1)

		recs := s.Metrics.Transitions()
		require.Len(t, recs, 2)
		assert.Zero(t, recs[0].DwellSeconds)
		assert.InDelta(t, 120.0, recs[1].DwellSeconds, 1e-9)
	})

	t.Run("fans out to sinks", func(t *testing.T) {
		t.Parallel()
		s, clock := newTestSession(t)
		sink := &captureSink{}
		s.AddSink(sink)

		occupied := []Detection{DetectionFromBBox(BBox{X1: 0, Y1: 0, X2: 100, Y2: 100})}
		_, err := s.ProcessFrame(occupied, clock.Now())
		require.NoError(t, err)
		clock.Advance(time.Second)
		_, err = s.ProcessFrame(nil, clock.Now())
		require.NoError(t, err)

		assert.Len(t, sink.snapshots, 2)
		require.Len(t, sink.transitions, 1)
		assert.Equal(t, SpaceOccupied, sink.transitions[0].OldState)
	})

	t.Run("sink failure does not stop processing", func(t *testing.T) {
		t.Parallel()
		s, clock := newTestSession(t)
		s.AddSink(&captureSink{failSaves: true})

		_, err := s.ProcessFrame(nil, clock.Now())
		assert.Error(t, err, "sink errors are surfaced")
		assert.Len(t, s.Metrics.Snapshots(), 1, "session state still updated")
	})
}

func TestSessionExport(t *testing.T) {
	t.Parallel()
	s, clock := newTestSession(t)
	occupied := []Detection{DetectionFromBBox(BBox{X1: 0, Y1: 0, X2: 100, Y2: 100})}

	_, err := s.ProcessFrame(occupied, clock.Now())
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = s.ProcessFrame(nil, clock.Now())
	require.NoError(t, err)

	ex := s.Export()
	assert.Equal(t, 1, ex.Summary.TotalTransitions)
	assert.Equal(t, 2, ex.Summary.TotalSnapshots)
}
