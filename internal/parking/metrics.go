package parking

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// AllSpaces selects every space when passed as a space id filter.
const AllSpaces = -1

// maxPeakHours caps the number of hourly buckets returned by PeakHours.
const maxPeakHours = 10

// TransitionRecord is one entry of the metrics engine's transition stream.
// It extends the TransitionEvent value object with the dwell duration the
// space carried at the moment the transition was recorded.
type TransitionRecord struct {
	SpaceID      int        `json:"space_id"`
	OldState     SpaceState `json:"old_state"`
	NewState     SpaceState `json:"new_state"`
	Timestamp    time.Time  `json:"timestamp"`
	DwellSeconds float64    `json:"dwell_seconds"`
}

// Snapshot is one periodic occupancy count sample. Snapshots are emitted
// every update cycle regardless of whether any transition occurred.
type Snapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	EmptyCount    int       `json:"empty"`
	OccupiedCount int       `json:"occupied"`
	TotalCount    int       `json:"total"`
	OccupancyRate float64   `json:"occupancy_rate"`
}

// PeakHour is one hourly bucket of averaged occupancy rate.
type PeakHour struct {
	Hour             time.Time `json:"timestamp"`
	AvgOccupancyRate float64   `json:"average_occupancy_rate"`
}

// MetricsSummary is the header block of an export.
type MetricsSummary struct {
	TotalTransitions int        `json:"total_transitions"`
	TotalSnapshots   int        `json:"total_snapshots"`
	AvgTurnoverRate  float64    `json:"avg_turnover_rate"`
	AvgDwellDuration float64    `json:"avg_dwell_duration"`
	PeakHours        []PeakHour `json:"peak_hours"`
}

// MetricsExport is the canonical external serialisation shape. Field names
// and nesting are a contract consumed by the file-writer and dashboard
// collaborators; do not rename.
type MetricsExport struct {
	Summary     MetricsSummary     `json:"summary"`
	Transitions []TransitionRecord `json:"transitions"`
	Snapshots   []Snapshot         `json:"snapshots"`
}

// MetricsLog accumulates the ordered transition stream and the periodic
// snapshot stream for one session and derives operational metrics from
// them. Both streams grow monotonically and are never mutated after
// append; readers get the backing slices and must treat them as
// read-only.
type MetricsLog struct {
	transitions []TransitionRecord
	snapshots   []Snapshot
}

// NewMetricsLog returns an empty metrics log.
func NewMetricsLog() *MetricsLog {
	return &MetricsLog{}
}

// RecordTransition appends one transition record.
func (ml *MetricsLog) RecordTransition(rec TransitionRecord) {
	ml.transitions = append(ml.transitions, rec)
}

// RecordSnapshot appends one occupancy count sample.
func (ml *MetricsLog) RecordSnapshot(timestamp time.Time, emptyCount, occupiedCount int) {
	total := emptyCount + occupiedCount
	rate := 0.0
	if total > 0 {
		rate = float64(occupiedCount) / float64(total)
	}
	ml.snapshots = append(ml.snapshots, Snapshot{
		Timestamp:     timestamp,
		EmptyCount:    emptyCount,
		OccupiedCount: occupiedCount,
		TotalCount:    total,
		OccupancyRate: rate,
	})
}

// Transitions returns the transition stream in append order.
func (ml *MetricsLog) Transitions() []TransitionRecord {
	return ml.transitions
}

// Snapshots returns the snapshot stream in append order.
func (ml *MetricsLog) Snapshots() []Snapshot {
	return ml.snapshots
}

// TurnoverRate computes state changes per hour over the trailing window
// ending at the latest recorded transition, optionally filtered to one
// space (pass AllSpaces for the whole set). Returns 0 when no matching
// transitions exist or the window is not positive.
func (ml *MetricsLog) TurnoverRate(spaceID int, windowMinutes int) float64 {
	if len(ml.transitions) == 0 || windowMinutes <= 0 {
		return 0
	}

	var filtered []TransitionRecord
	for _, rec := range ml.transitions {
		if spaceID == AllSpaces || rec.SpaceID == spaceID {
			filtered = append(filtered, rec)
		}
	}
	if len(filtered) == 0 {
		return 0
	}

	// Timestamps are caller-controlled; find the latest rather than
	// assuming append order is chronological.
	latest := filtered[0].Timestamp
	for _, rec := range filtered[1:] {
		if rec.Timestamp.After(latest) {
			latest = rec.Timestamp
		}
	}
	cutoff := latest.Add(-time.Duration(windowMinutes) * time.Minute)

	recent := 0
	for _, rec := range filtered {
		if !rec.Timestamp.Before(cutoff) {
			recent++
		}
	}

	hours := float64(windowMinutes) / 60.0
	return float64(recent) / hours
}

// AvgDwellDuration computes the mean of all positive dwell durations
// recorded across transitions for the filter scope, in seconds. Returns 0
// when no positive dwell has been recorded.
func (ml *MetricsLog) AvgDwellDuration(spaceID int) float64 {
	var durations []float64
	for _, rec := range ml.transitions {
		if spaceID != AllSpaces && rec.SpaceID != spaceID {
			continue
		}
		if rec.DwellSeconds > 0 {
			durations = append(durations, rec.DwellSeconds)
		}
	}
	if len(durations) == 0 {
		return 0
	}
	return stat.Mean(durations, nil)
}

// PeakHours groups snapshots into hourly buckets, averages the occupancy
// rate per bucket, and returns at most the top 10 buckets sorted
// descending by average rate. Ordering among equal averages is
// unspecified.
func (ml *MetricsLog) PeakHours() []PeakHour {
	if len(ml.snapshots) == 0 {
		return nil
	}

	buckets := make(map[time.Time][]float64)
	for _, snap := range ml.snapshots {
		hour := snap.Timestamp.Truncate(time.Hour)
		buckets[hour] = append(buckets[hour], snap.OccupancyRate)
	}

	peaks := make([]PeakHour, 0, len(buckets))
	for hour, rates := range buckets {
		peaks = append(peaks, PeakHour{
			Hour:             hour,
			AvgOccupancyRate: stat.Mean(rates, nil),
		})
	}

	sort.Slice(peaks, func(i, j int) bool {
		return peaks[i].AvgOccupancyRate > peaks[j].AvgOccupancyRate
	})

	if len(peaks) > maxPeakHours {
		peaks = peaks[:maxPeakHours]
	}
	return peaks
}

// Export assembles the canonical end-of-session snapshot of both streams
// plus summary metrics. The summary turnover rate uses the default
// 60-minute window over all spaces.
func (ml *MetricsLog) Export() *MetricsExport {
	transitions := ml.transitions
	if transitions == nil {
		transitions = []TransitionRecord{}
	}
	snapshots := ml.snapshots
	if snapshots == nil {
		snapshots = []Snapshot{}
	}
	peaks := ml.PeakHours()
	if peaks == nil {
		peaks = []PeakHour{}
	}
	return &MetricsExport{
		Summary: MetricsSummary{
			TotalTransitions: len(ml.transitions),
			TotalSnapshots:   len(ml.snapshots),
			AvgTurnoverRate:  ml.TurnoverRate(AllSpaces, 60),
			AvgDwellDuration: ml.AvgDwellDuration(AllSpaces),
			PeakHours:        peaks,
		},
		Transitions: transitions,
		Snapshots:   snapshots,
	}
}
