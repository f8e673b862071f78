package parking

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/timeutil"
)

// EventSink receives the per-frame output stream of a session: logged
// transitions and periodic occupancy snapshots. Implementations include
// the sqlite store, the MQTT publisher and the telemetry collector.
//
// Sink calls happen synchronously inside ProcessFrame, in sink
// registration order. A failing sink does not stop frame processing or
// the remaining sinks.
type EventSink interface {
	SaveTransition(sessionID string, rec TransitionRecord) error
	SaveSnapshot(sessionID string, snap Snapshot) error
}

// Session owns all mutable state for one monitoring run: the space set,
// the in-memory metrics log, and the fan-out sinks. Sessions are fully
// independent of each other; concurrent sessions over different videos
// never share state.
//
// A session is single-threaded by contract: at most one ProcessFrame call
// in flight at a time. Callers sharing one session across concurrent
// requests must serialise access themselves (the HTTP layer does).
type Session struct {
	ID        string
	StartedAt time.Time

	Manager *SpaceManager
	Metrics *MetricsLog

	clock      timeutil.Clock
	sinks      []EventSink
	frameCount int

	logf func(format string, v ...interface{})
}

// NewSession builds a session over the given spaces. A nil clock defaults
// to the real clock.
func NewSession(spaces []*ParkingSpace, clock timeutil.Clock) *Session {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: clock.Now(),
		Manager:   NewSpaceManager(spaces),
		Metrics:   NewMetricsLog(),
		clock:     clock,
		logf:      monitoring.Prefixed("Session"),
	}
}

// AddSink registers an output sink. Not safe to call concurrently with
// ProcessFrame.
func (s *Session) AddSink(sink EventSink) {
	s.sinks = append(s.sinks, sink)
}

// FrameCount returns how many frames this session has processed.
func (s *Session) FrameCount() int {
	return s.frameCount
}

// ProcessFrame runs one update cycle: classifies every space against the
// detections, records any logged transitions plus one snapshot into the
// metrics log, and fans both out to the sinks.
//
// The zero timestamp means "now" per the session clock. The returned
// error aggregates sink failures; the session's own state is always fully
// updated regardless.
func (s *Session) ProcessFrame(detections []Detection, timestamp time.Time) ([]TransitionEvent, error) {
	if timestamp.IsZero() {
		timestamp = s.clock.Now()
	}

	events := s.Manager.UpdateAll(detections, timestamp)
	s.frameCount++

	var sinkErrs []error
	for _, ev := range events {
		rec := TransitionRecord{
			SpaceID:   ev.SpaceID,
			OldState:  ev.OldState,
			NewState:  ev.NewState,
			Timestamp: ev.Timestamp,
		}
		if sp := s.Manager.Space(ev.SpaceID); sp != nil {
			rec.DwellSeconds = sp.DwellSeconds
		}
		s.Metrics.RecordTransition(rec)
		s.logf("space #%d: %s -> %s", ev.SpaceID, ev.OldState, ev.NewState)

		for _, sink := range s.sinks {
			if err := sink.SaveTransition(s.ID, rec); err != nil {
				s.logf("sink transition save failed: %v", err)
				sinkErrs = append(sinkErrs, err)
			}
		}
	}

	empty, occupied := s.Manager.Counts()
	s.Metrics.RecordSnapshot(timestamp, empty, occupied)
	snap := s.Metrics.Snapshots()[len(s.Metrics.Snapshots())-1]
	for _, sink := range s.sinks {
		if err := sink.SaveSnapshot(s.ID, snap); err != nil {
			s.logf("sink snapshot save failed: %v", err)
			sinkErrs = append(sinkErrs, err)
		}
	}

	return events, errors.Join(sinkErrs...)
}

// Export assembles the canonical end-of-session metrics snapshot.
func (s *Session) Export() *MetricsExport {
	return s.Metrics.Export()
}
