// Package export serialises an end-of-session metrics export into the
// interchange formats downstream tooling consumes: canonical JSON, flat
// CSV streams, and a multi-sheet XLSX workbook.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

// WriteJSON writes the canonical metrics export document.
func WriteJSON(w io.Writer, exp *parking.MetricsExport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exp); err != nil {
		return fmt.Errorf("failed to encode metrics export: %w", err)
	}
	return nil
}

var transitionsHeader = []string{"space_id", "old_state", "new_state", "timestamp", "dwell_seconds"}

var snapshotsHeader = []string{"timestamp", "empty", "occupied", "total", "occupancy_rate"}

// WriteTransitionsCSV writes the transition stream as CSV, one row per
// logged transition, in append order.
func WriteTransitionsCSV(w io.Writer, recs []parking.TransitionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(transitionsHeader); err != nil {
		return fmt.Errorf("failed to write transitions header: %w", err)
	}
	for _, rec := range recs {
		row := []string{
			strconv.Itoa(rec.SpaceID),
			string(rec.OldState),
			string(rec.NewState),
			rec.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(rec.DwellSeconds),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write transition row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSnapshotsCSV writes the snapshot stream as CSV, one row per
// periodic sample, in append order.
func WriteSnapshotsCSV(w io.Writer, snaps []parking.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(snapshotsHeader); err != nil {
		return fmt.Errorf("failed to write snapshots header: %w", err)
	}
	for _, snap := range snaps {
		row := []string{
			snap.Timestamp.UTC().Format(time.RFC3339),
			strconv.Itoa(snap.EmptyCount),
			strconv.Itoa(snap.OccupiedCount),
			strconv.Itoa(snap.TotalCount),
			formatFloat(snap.OccupancyRate),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write snapshot row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
