package parking

// Detection is one vehicle detection reported by the upstream detector for
// a single frame. The detector is an external collaborator; the engine
// consumes its output as-is and never validates boxes against frame bounds.
type Detection struct {
	BBox       BBox    `json:"bbox"`
	Centroid   Point   `json:"centroid"`
	Class      string  `json:"class,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// DetectionFromBBox builds a detection whose centroid is the geometric
// centre of the box, for callers whose detector does not report centroids
// separately.
func DetectionFromBBox(box BBox) Detection {
	cx, cy := box.Center()
	return Detection{
		BBox:     box,
		Centroid: Point{X: int(cx), Y: int(cy)},
	}
}
