package parking

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidConfig marks any space-set configuration failure. All
// validation errors wrap it so callers can test with errors.Is.
var ErrInvalidConfig = errors.New("invalid space configuration")

// SpaceConfig is one region entry of the configuration document.
type SpaceConfig struct {
	ID                int      `json:"id"`
	Polygon           []Point  `json:"polygon"`
	MinOccupancyRatio *float64 `json:"min_occupancy_ratio,omitempty"`
}

// SpaceSetConfig is the root configuration document.
//
// Document shape:
//
//	{
//	  "default_min_occupancy_ratio": 0.2,
//	  "spaces": [
//	    {"id": 1, "polygon": [[100,100],[200,100],[200,200],[100,200]]},
//	    {"id": 2, "polygon": [{"x":300,"y":100}, ...], "min_occupancy_ratio": 0.3}
//	  ]
//	}
type SpaceSetConfig struct {
	DefaultMinOccupancyRatio *float64      `json:"default_min_occupancy_ratio,omitempty"`
	Spaces                   []SpaceConfig `json:"spaces"`
}

// LoadSpaces reads and validates a space-set configuration file and
// constructs the spaces. Any invalid entry fails the whole load before any
// session state is created; defaults are never silently substituted for
// missing geometry.
func LoadSpaces(path string) ([]*ParkingSpace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, path, err)
	}
	return ParseSpaces(data)
}

// ParseSpaces validates and constructs spaces from a raw configuration
// document.
func ParseSpaces(data []byte) ([]*ParkingSpace, error) {
	var cfg SpaceSetConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if len(cfg.Spaces) == 0 {
		return nil, fmt.Errorf("%w: document defines no spaces", ErrInvalidConfig)
	}

	defaultRatio := DefaultMinOccupancyRatio
	if cfg.DefaultMinOccupancyRatio != nil {
		defaultRatio = *cfg.DefaultMinOccupancyRatio
	}
	if defaultRatio < 0 || defaultRatio > 1 {
		return nil, fmt.Errorf("%w: default_min_occupancy_ratio %v outside [0,1]", ErrInvalidConfig, defaultRatio)
	}

	seen := make(map[int]bool, len(cfg.Spaces))
	spaces := make([]*ParkingSpace, 0, len(cfg.Spaces))
	for i, sc := range cfg.Spaces {
		if len(sc.Polygon) < 3 {
			return nil, fmt.Errorf("%w: space %d has %d polygon points, need at least 3", ErrInvalidConfig, sc.ID, len(sc.Polygon))
		}
		if seen[sc.ID] {
			return nil, fmt.Errorf("%w: duplicate space id %d (entry %d)", ErrInvalidConfig, sc.ID, i)
		}
		seen[sc.ID] = true

		ratio := defaultRatio
		if sc.MinOccupancyRatio != nil {
			ratio = *sc.MinOccupancyRatio
			if ratio < 0 || ratio > 1 {
				return nil, fmt.Errorf("%w: space %d min_occupancy_ratio %v outside [0,1]", ErrInvalidConfig, sc.ID, ratio)
			}
		}

		spaces = append(spaces, NewParkingSpace(sc.ID, sc.Polygon, ratio))
	}

	return spaces, nil
}
