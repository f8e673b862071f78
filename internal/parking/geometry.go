package parking

import (
	"encoding/json"
	"fmt"
	"math"
)

// geometryEpsilon is the tolerance for boundary and collinearity tests.
// Polygon vertices are integer pixel coordinates, so anything below this
// is floating point noise from the clipping arithmetic.
const geometryEpsilon = 1e-9

// Point is a single polygon vertex in image pixel coordinates.
//
// Configuration documents encode points either as a two-element array
// [x, y] or as an object {"x": .., "y": ..}; UnmarshalJSON accepts both
// and normalises to this form, so the rest of the engine only ever sees
// one representation.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// UnmarshalJSON decodes a point from either the array or the object
// encoding. Non-numeric coordinates are rejected.
func (p *Point) UnmarshalJSON(b []byte) error {
	var arr []json.Number
	if err := json.Unmarshal(b, &arr); err == nil {
		if len(arr) != 2 {
			return fmt.Errorf("point array must have exactly 2 elements, got %d", len(arr))
		}
		x, err := arr[0].Float64()
		if err != nil {
			return fmt.Errorf("point x is not numeric: %v", err)
		}
		y, err := arr[1].Float64()
		if err != nil {
			return fmt.Errorf("point y is not numeric: %v", err)
		}
		p.X = int(x)
		p.Y = int(y)
		return nil
	}

	var obj struct {
		X *json.Number `json:"x"`
		Y *json.Number `json:"y"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("point must be [x,y] or {x,y}: %v", err)
	}
	if obj.X == nil || obj.Y == nil {
		return fmt.Errorf("point object missing x or y")
	}
	x, err := obj.X.Float64()
	if err != nil {
		return fmt.Errorf("point x is not numeric: %v", err)
	}
	y, err := obj.Y.Float64()
	if err != nil {
		return fmt.Errorf("point y is not numeric: %v", err)
	}
	p.X = int(x)
	p.Y = int(y)
	return nil
}

// MarshalJSON encodes a point in the array form, matching the canonical
// configuration layout.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.X, p.Y})
}

// BBox is an axis-aligned detection bounding box (x1,y1)-(x2,y2).
// Corners may arrive in any order; methods normalise internally.
type BBox struct {
	X1, Y1, X2, Y2 int
}

// UnmarshalJSON decodes a bounding box from a four-element [x1,y1,x2,y2]
// array, the shape produced by the detector collaborator.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var arr []json.Number
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("bbox must be [x1,y1,x2,y2]: %v", err)
	}
	if len(arr) != 4 {
		return fmt.Errorf("bbox must have exactly 4 elements, got %d", len(arr))
	}
	vals := make([]int, 4)
	for i, n := range arr {
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("bbox coordinate %d is not numeric: %v", i, err)
		}
		vals[i] = int(f)
	}
	b.X1, b.Y1, b.X2, b.Y2 = vals[0], vals[1], vals[2], vals[3]
	return nil
}

// MarshalJSON encodes the box as [x1,y1,x2,y2].
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X1, b.Y1, b.X2, b.Y2})
}

// Center returns the geometric centre of the box.
func (b BBox) Center() (float64, float64) {
	return float64(b.X1+b.X2) / 2, float64(b.Y1+b.Y2) / 2
}

// normalised returns min/max corner ordering regardless of input order.
func (b BBox) normalised() (minX, minY, maxX, maxY float64) {
	minX = math.Min(float64(b.X1), float64(b.X2))
	maxX = math.Max(float64(b.X1), float64(b.X2))
	minY = math.Min(float64(b.Y1), float64(b.Y2))
	maxY = math.Max(float64(b.Y1), float64(b.Y2))
	return
}

// vec is an internal float-precision vertex used by the clipping routines.
type vec struct {
	x, y float64
}

// PolygonArea computes the area of a simple polygon via the shoelace
// formula. Winding order does not matter; the result is always >= 0.
// Fewer than 3 vertices yields 0.
func PolygonArea(poly []Point) float64 {
	if len(poly) < 3 {
		return 0
	}
	var sum float64
	for i := range poly {
		j := (i + 1) % len(poly)
		sum += float64(poly[i].X)*float64(poly[j].Y) - float64(poly[j].X)*float64(poly[i].Y)
	}
	return math.Abs(sum) / 2
}

func vecArea(pts []vec) float64 {
	if len(pts) < 3 {
		return 0
	}
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].x*pts[j].y - pts[j].x*pts[i].y
	}
	return math.Abs(sum) / 2
}

// PointInPolygon reports whether (x,y) lies inside the polygon. Points on
// the boundary count as inside. Uses the even-odd ray casting rule with an
// explicit on-edge check so boundary points never depend on crossing
// parity.
func PointInPolygon(poly []Point, x, y float64) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := float64(poly[i].X), float64(poly[i].Y)
		xj, yj := float64(poly[j].X), float64(poly[j].Y)

		if onSegment(xj, yj, xi, yi, x, y) {
			return true
		}

		if (yi > y) != (yj > y) {
			// X coordinate of the edge at height y
			xCross := xi + (y-yi)/(yj-yi)*(xj-xi)
			if x < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// onSegment reports whether (px,py) lies on the segment (ax,ay)-(bx,by).
func onSegment(ax, ay, bx, by, px, py float64) bool {
	cross := (bx-ax)*(py-ay) - (by-ay)*(px-ax)
	if math.Abs(cross) > geometryEpsilon {
		return false
	}
	if px < math.Min(ax, bx)-geometryEpsilon || px > math.Max(ax, bx)+geometryEpsilon {
		return false
	}
	if py < math.Min(ay, by)-geometryEpsilon || py > math.Max(ay, by)+geometryEpsilon {
		return false
	}
	return true
}

// IntersectionRatio computes the area of intersection between the polygon
// and the axis-aligned box, normalised by the polygon's own area. The
// result is clamped to [0,1].
//
// Normalising to the region rather than the box means a small vehicle box
// cannot saturate a large region: the region only scores highly when a
// sufficient fraction of its own footprint is covered.
//
// A polygon with zero area is treated as permanently non-occupiable and
// always yields 0 rather than an error; one malformed region must not take
// down a session.
//
// Algorithm: Sutherland-Hodgman clipping of the polygon against the four
// half-planes of the box, then shoelace area of the clipped result. Exact
// for simple polygons against an axis-aligned rectangle.
func IntersectionRatio(poly []Point, box BBox) float64 {
	area := PolygonArea(poly)
	if area == 0 {
		return 0
	}

	minX, minY, maxX, maxY := box.normalised()
	if maxX-minX == 0 || maxY-minY == 0 {
		return 0
	}

	subject := make([]vec, len(poly))
	for i, p := range poly {
		subject[i] = vec{float64(p.X), float64(p.Y)}
	}

	// Clip against each box edge in turn. Each pass keeps the part of the
	// polygon on the inside of one half-plane.
	clipped := clipHalfPlane(subject,
		func(v vec) bool { return v.x >= minX },
		func(a, b vec) vec { return intersectVertical(a, b, minX) })
	clipped = clipHalfPlane(clipped,
		func(v vec) bool { return v.x <= maxX },
		func(a, b vec) vec { return intersectVertical(a, b, maxX) })
	clipped = clipHalfPlane(clipped,
		func(v vec) bool { return v.y >= minY },
		func(a, b vec) vec { return intersectHorizontal(a, b, minY) })
	clipped = clipHalfPlane(clipped,
		func(v vec) bool { return v.y <= maxY },
		func(a, b vec) vec { return intersectHorizontal(a, b, maxY) })

	ratio := vecArea(clipped) / area
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// clipHalfPlane keeps the portion of the polygon satisfying inside,
// inserting edge/boundary intersection vertices as needed.
func clipHalfPlane(pts []vec, inside func(vec) bool, intersect func(a, b vec) vec) []vec {
	if len(pts) == 0 {
		return nil
	}
	out := make([]vec, 0, len(pts)+4)
	prev := pts[len(pts)-1]
	prevIn := inside(prev)
	for _, cur := range pts {
		curIn := inside(cur)
		switch {
		case curIn && prevIn:
			out = append(out, cur)
		case curIn && !prevIn:
			out = append(out, intersect(prev, cur), cur)
		case !curIn && prevIn:
			out = append(out, intersect(prev, cur))
		}
		prev, prevIn = cur, curIn
	}
	return out
}

// intersectVertical returns the point where segment a-b crosses x = xLine.
func intersectVertical(a, b vec, xLine float64) vec {
	dx := b.x - a.x
	if math.Abs(dx) < geometryEpsilon {
		return vec{xLine, a.y}
	}
	t := (xLine - a.x) / dx
	return vec{xLine, a.y + t*(b.y-a.y)}
}

// intersectHorizontal returns the point where segment a-b crosses y = yLine.
func intersectHorizontal(a, b vec, yLine float64) vec {
	dy := b.y - a.y
	if math.Abs(dy) < geometryEpsilon {
		return vec{a.x, yLine}
	}
	t := (yLine - a.y) / dy
	return vec{a.x + t*(b.x-a.x), yLine}
}
