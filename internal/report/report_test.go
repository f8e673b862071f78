package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

func sampleExport() *parking.MetricsExport {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return &parking.MetricsExport{
		Summary: parking.MetricsSummary{
			TotalTransitions: 1,
			TotalSnapshots:   3,
			AvgTurnoverRate:  1.0,
			PeakHours: []parking.PeakHour{
				{Hour: base.Truncate(time.Hour), AvgOccupancyRate: 0.5},
			},
		},
		Transitions: []parking.TransitionRecord{
			{SpaceID: 1, OldState: parking.SpaceEmpty, NewState: parking.SpaceOccupied, Timestamp: base},
		},
		Snapshots: []parking.Snapshot{
			{Timestamp: base, EmptyCount: 2, OccupiedCount: 0, TotalCount: 2, OccupancyRate: 0},
			{Timestamp: base.Add(time.Minute), EmptyCount: 1, OccupiedCount: 1, TotalCount: 2, OccupancyRate: 0.5},
			{Timestamp: base.Add(2 * time.Minute), EmptyCount: 0, OccupiedCount: 2, TotalCount: 2, OccupancyRate: 1},
		},
	}
}

func TestWriteHTML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, sampleExport(), "Lot Report"))

	out := buf.String()
	assert.Contains(t, out, "Occupancy Rate")
	assert.Contains(t, out, "Peak Hours")
	assert.Contains(t, out, "echarts")
}

func TestWriteHTMLEmptyExport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	exp := &parking.MetricsExport{
		Transitions: []parking.TransitionRecord{},
		Snapshots:   []parking.Snapshot{},
	}
	require.NoError(t, WriteHTML(&buf, exp, "Empty"))
	assert.NotZero(t, buf.Len())
}

func TestWritePNG(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, sampleExport()))

	// PNG magic bytes.
	require.GreaterOrEqual(t, buf.Len(), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, buf.Bytes()[:4])
}
