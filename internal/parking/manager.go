package parking

import "time"

// TransitionEvent is the value object emitted for each logged state change
// during an update cycle. It is returned to the caller and not retained by
// the manager.
type TransitionEvent struct {
	SpaceID   int        `json:"space_id"`
	OldState  SpaceState `json:"old_state"`
	NewState  SpaceState `json:"new_state"`
	Timestamp time.Time  `json:"timestamp"`
}

// SpaceManager holds the ordered set of spaces for one monitoring session
// and drives per-frame updates across all of them.
//
// All methods assume a single-threaded access pattern: each UpdateAll call
// must complete before the next begins, and the derived queries are
// consistent with the latest completed update. The manager provides no
// internal locking; a shared session must be serialised by its owner.
type SpaceManager struct {
	Spaces      []*ParkingSpace
	TotalSpaces int

	byID map[int]*ParkingSpace
}

// NewSpaceManager builds a manager over the given spaces. Space iteration
// order is the insertion order of the slice; ids are assumed unique
// (enforced at configuration load).
func NewSpaceManager(spaces []*ParkingSpace) *SpaceManager {
	byID := make(map[int]*ParkingSpace, len(spaces))
	for _, sp := range spaces {
		byID[sp.ID] = sp
	}
	return &SpaceManager{
		Spaces:      spaces,
		TotalSpaces: len(spaces),
		byID:        byID,
	}
}

// Space returns the space with the given id, or nil.
func (m *SpaceManager) Space(id int) *ParkingSpace {
	return m.byID[id]
}

// UpdateAll evaluates one frame of detections against every space and
// advances each space's state machine. It returns the transitions that
// were actually logged this cycle, in space iteration order. An empty
// detection slice is a valid frame meaning no vehicles are present.
func (m *SpaceManager) UpdateAll(detections []Detection, timestamp time.Time) []TransitionEvent {
	var events []TransitionEvent
	for _, sp := range m.Spaces {
		occupied := sp.CheckOccupancy(detections)
		oldState := sp.State
		sp.UpdateState(occupied, timestamp)

		if oldState != sp.State && oldState != SpaceUnknown {
			events = append(events, TransitionEvent{
				SpaceID:   sp.ID,
				OldState:  oldState,
				NewState:  sp.State,
				Timestamp: timestamp,
			})
		}
	}
	return events
}

// Counts returns the number of empty and occupied spaces as of the latest
// update. Spaces still in the Unknown state count toward neither.
func (m *SpaceManager) Counts() (empty, occupied int) {
	for _, sp := range m.Spaces {
		switch sp.State {
		case SpaceEmpty:
			empty++
		case SpaceOccupied:
			occupied++
		}
	}
	return empty, occupied
}

// OccupancyRate returns occupied/total in [0,1], or 0 for an empty set.
func (m *SpaceManager) OccupancyRate() float64 {
	if m.TotalSpaces == 0 {
		return 0
	}
	_, occupied := m.Counts()
	return float64(occupied) / float64(m.TotalSpaces)
}
