package mqttpub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

func TestTopicLayout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "parking/space/7/transition", transitionTopic("parking", 7))
	assert.Equal(t, "lot-a/space/1/transition", transitionTopic("lot-a", 1))
	assert.Equal(t, "parking/status", statusTopic("parking"))
}

func TestTransitionMessageShape(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	payload, err := json.Marshal(transitionMessage{
		SessionID:    "sess-1",
		SpaceID:      3,
		OldState:     string(parking.SpaceOccupied),
		NewState:     string(parking.SpaceEmpty),
		Timestamp:    ts.Format(time.RFC3339),
		DwellSeconds: 450,
	})
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &doc))
	assert.EqualValues(t, 3, doc["space_id"])
	assert.Equal(t, "occupied", doc["old_state"])
	assert.Equal(t, "empty", doc["new_state"])
	assert.Equal(t, "2025-06-01T09:30:00Z", doc["timestamp"])
	assert.EqualValues(t, 450, doc["dwell_seconds"])
}

func TestStatusMessageShape(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	payload, err := json.Marshal(statusMessage{
		SessionID:     "sess-1",
		Timestamp:     ts.Format(time.RFC3339),
		Empty:         5,
		Occupied:      15,
		Total:         20,
		OccupancyRate: 0.75,
	})
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &doc))
	assert.EqualValues(t, 15, doc["occupied"])
	assert.EqualValues(t, 20, doc["total"])
	assert.EqualValues(t, 0.75, doc["occupancy_rate"])
}
