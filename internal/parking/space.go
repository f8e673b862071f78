package parking

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// SpaceState represents the occupancy classification of a parking space.
type SpaceState string

const (
	SpaceUnknown  SpaceState = "unknown"  // No classification yet (initial baseline)
	SpaceEmpty    SpaceState = "empty"    // No vehicle meaningfully overlapping
	SpaceOccupied SpaceState = "occupied" // Vehicle overlap above threshold
)

const (
	// SmoothingWindowSize is the fixed capacity of the per-space FIFO of
	// raw occupancy decisions used to suppress single-frame flicker.
	SmoothingWindowSize = 5

	// smoothingMinSamples is how many raw decisions must be buffered
	// before the majority vote overrides the raw value.
	smoothingMinSamples = 3

	// DefaultMinOccupancyRatio is the fallback classification threshold
	// when a configuration document does not set one.
	DefaultMinOccupancyRatio = 0.2
)

// StateChange is one logged entry of a space's transition history.
type StateChange struct {
	Timestamp time.Time  `json:"timestamp"`
	State     SpaceState `json:"state"`
}

// ParkingSpace is a single polygonal monitoring region with its own
// classification parameters, smoothing buffer and transition history.
//
// A space is mutated only by CheckOccupancy and UpdateState, called once
// per frame in that order by the SpaceManager. It is not safe for
// concurrent writers; callers serialise frame processing per session.
type ParkingSpace struct {
	ID                int
	Polygon           []Point
	MinOccupancyRatio float64

	State         SpaceState
	PreviousState SpaceState

	// TransitionLog grows append-only for the lifetime of the session.
	TransitionLog []StateChange

	// LastChangeTime is the timestamp of the most recent logged
	// transition; zero if none has occurred.
	LastChangeTime time.Time

	// DwellSeconds is the duration of the most recently completed
	// occupied period. It is only updated when computable, never reset.
	DwellSeconds float64

	// VehicleCount is how many detections counted as occupying this
	// space in the most recent evaluation. Diagnostic only; it does not
	// drive classification.
	VehicleCount int

	// smoothing holds the last raw decisions as 1.0/0.0 samples.
	smoothing []float64

	// area is the cached polygon area. Zero marks the space as
	// permanently non-occupiable (degenerate geometry policy).
	area float64
}

// NewParkingSpace constructs a space in the Unknown state. The polygon is
// owned by the space after construction and must not be mutated by the
// caller.
func NewParkingSpace(id int, polygon []Point, minOccupancyRatio float64) *ParkingSpace {
	return &ParkingSpace{
		ID:                id,
		Polygon:           polygon,
		MinOccupancyRatio: minOccupancyRatio,
		State:             SpaceUnknown,
		PreviousState:     SpaceUnknown,
		smoothing:         make([]float64, 0, SmoothingWindowSize),
		area:              PolygonArea(polygon),
	}
}

// Area returns the cached polygon area.
func (s *ParkingSpace) Area() float64 {
	return s.area
}

// StateString returns the external string form of the current state.
func (s *ParkingSpace) StateString() string {
	return string(s.State)
}

// CheckOccupancy evaluates one frame of detections against the space and
// returns the debounced occupancy decision. It also refreshes
// VehicleCount.
//
// Detections with zero overlap whose centroid is also outside the polygon
// are ignored entirely. The raw decision is pushed onto the smoothing
// window; until the window holds 3 samples the raw value is the decision,
// after that a majority vote over the buffered samples takes over.
func (s *ParkingSpace) CheckOccupancy(detections []Detection) bool {
	s.VehicleCount = 0
	maxRatio := 0.0

	for _, det := range detections {
		cx := float64(det.Centroid.X)
		cy := float64(det.Centroid.Y)
		centroidInside := PointInPolygon(s.Polygon, cx, cy)

		ratio := 0.0
		if s.area > 0 {
			ratio = IntersectionRatio(s.Polygon, det.BBox)
		}

		if ratio > 0 || centroidInside {
			if ratio > maxRatio {
				maxRatio = ratio
			}
			if ratio > s.MinOccupancyRatio {
				s.VehicleCount++
			}
		}
	}

	// With a zero threshold, any positive overlap counts; a >= comparison
	// would classify a space with no overlapping detection at all as
	// occupied (maxRatio >= 0 is vacuously true), so the strict branch is
	// load-bearing.
	var raw bool
	if s.MinOccupancyRatio == 0 {
		raw = maxRatio > 0
	} else {
		raw = maxRatio >= s.MinOccupancyRatio
	}

	sample := 0.0
	if raw {
		sample = 1.0
	}
	s.smoothing = append(s.smoothing, sample)
	if len(s.smoothing) > SmoothingWindowSize {
		s.smoothing = s.smoothing[1:]
	}

	occupied := raw
	if len(s.smoothing) >= smoothingMinSamples {
		occupied = stat.Mean(s.smoothing, nil) >= 0.5
	}
	return occupied
}

// UpdateState advances the state machine for one frame.
//
// A transition is logged only when the state changes value and the
// previous state was not Unknown: the first classification establishes a
// baseline and is never recorded as a change. On an occupied-to-empty
// transition with at least one prior logged transition to diff against,
// DwellSeconds is set to the elapsed time since that prior transition.
//
// Timestamps are accepted as-is. A timestamp earlier than the previous
// call's can produce a negative dwell; monotonic timestamps per session
// are the caller's contract.
func (s *ParkingSpace) UpdateState(isOccupied bool, timestamp time.Time) {
	newState := SpaceEmpty
	if isOccupied {
		newState = SpaceOccupied
	}

	s.PreviousState = s.State
	s.State = newState

	if s.PreviousState == s.State || s.PreviousState == SpaceUnknown {
		return
	}

	s.LastChangeTime = timestamp
	s.TransitionLog = append(s.TransitionLog, StateChange{Timestamp: timestamp, State: newState})

	if newState == SpaceEmpty && s.PreviousState == SpaceOccupied && len(s.TransitionLog) >= 2 {
		prev := s.TransitionLog[len(s.TransitionLog)-2]
		s.DwellSeconds = timestamp.Sub(prev.Timestamp).Seconds()
	}
}
