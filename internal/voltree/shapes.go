package voltree

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"volcarve/internal/spatial"
)

// Intersection classifies how a shape relates to a node's box.
type Intersection int

const (
	Disjoint Intersection = iota
	Inside
	Straddles
)

// Box is the conservative cube a tree node occupies, passed to Shape.Test
// and Shape.Apply.
type Box struct {
	Center    mgl64.Vec3
	Halfwidth float64
}

// Corner returns the world position of box corner ci (0..7), following the
// same octant convention as the rest of the package.
func (b Box) Corner(ci int) mgl64.Vec3 {
	return spatial.CornerPosition(b.Center, b.Halfwidth, ci)
}

// Shape is the capability set the insertion engine dispatches over. It is
// a closed, tagged-variant set: LineSegmentShape, ExtrudedPolygonShape,
// BoundingBoxShape, PlaneShape.
type Shape interface {
	// AABB returns a conservative axis-aligned bound on the shape.
	AABB() (min, max mgl64.Vec3)
	// Test classifies the shape's relation to a node's box.
	Test(box Box) Intersection
	// Apply merges the shape's contribution into a leaf's existing
	// payload (which may be nil) and returns the new payload.
	Apply(existing *Payload, box Box) *Payload
	// SubdivideInside reports whether an INSIDE node that hasn't reached
	// max depth should still be subdivided and recursed into, rather than
	// applied immediately. Line-like shapes never need this (a thin
	// shape is essentially never INSIDE a coarse box); it exists for
	// ExtrudedPolygonShape's hollow/fill toggle.
	SubdivideInside() bool
}

// --- LineSegmentShape (ray carve) ---------------------------------------

// LineSegmentShape carves a weighted ray between two endpoints, with a
// monotone occupancy profile that rises from 0 (empty) near Start to 1
// (solid) across a narrow transition band near End. The transition
// parameterization is pinned to a smoothstep over the last
// TransitionFrac of the arc length; see DESIGN.md, Open Question
// decisions, #3.
type LineSegmentShape struct {
	Start, End mgl64.Vec3
	Weight     float64

	SurfacePrior, PlanarPrior, CornerPrior float64

	// Radius is the half-thickness of the carved tube; it accounts for
	// the ray's probabilistic envelope (the wedge between two scan
	// points across two frames, flattened into this shape).
	Radius float64

	// TransitionFrac is the fraction (0,1] of the arc length, counted
	// back from End, over which occupancy rises from 0 to 1. Defaults to
	// 0.15 via NewLineSegmentShape.
	TransitionFrac float64
}

// NewLineSegmentShape builds a ray-carve shape with documented defaults
// (Radius 0.05m, TransitionFrac 0.15).
func NewLineSegmentShape(start, end mgl64.Vec3, weight, surfacePrior, planarPrior, cornerPrior float64) *LineSegmentShape {
	return &LineSegmentShape{
		Start: start, End: end, Weight: weight,
		SurfacePrior: surfacePrior, PlanarPrior: planarPrior, CornerPrior: cornerPrior,
		Radius:         0.05,
		TransitionFrac: 0.15,
	}
}

func (s *LineSegmentShape) AABB() (min, max mgl64.Vec3) {
	r := s.Radius
	min = mgl64.Vec3{
		math.Min(s.Start.X(), s.End.X()) - r,
		math.Min(s.Start.Y(), s.End.Y()) - r,
		math.Min(s.Start.Z(), s.End.Z()) - r,
	}
	max = mgl64.Vec3{
		math.Max(s.Start.X(), s.End.X()) + r,
		math.Max(s.Start.Y(), s.End.Y()) + r,
		math.Max(s.Start.Z(), s.End.Z()) + r,
	}
	return
}

// closestT returns the arc-length parameter t in [0,1] of the point on the
// segment closest to p, and the distance from p to that point.
func (s *LineSegmentShape) closestT(p mgl64.Vec3) (t, dist float64) {
	d := s.End.Sub(s.Start)
	len2 := d.Dot(d)
	if len2 == 0 {
		return 0, p.Sub(s.Start).Len()
	}
	t = p.Sub(s.Start).Dot(d) / len2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	closest := s.Start.Add(d.Mul(t))
	return t, p.Sub(closest).Len()
}

func (s *LineSegmentShape) Test(box Box) Intersection {
	_, dist := s.closestT(box.Center)
	boxReach := box.Halfwidth * math.Sqrt(3)
	if dist > s.Radius+boxReach {
		return Disjoint
	}
	if dist+boxReach <= s.Radius {
		return Inside
	}
	return Straddles
}

// occupancy and priorWeight implement the pinned smoothstep parameterization.
func (s *LineSegmentShape) occupancy(t float64) float64 {
	frac := s.TransitionFrac
	if frac <= 0 {
		frac = 1e-6
	}
	bandStart := 1 - frac
	switch {
	case t <= bandStart:
		return 0
	case t >= 1:
		return 1
	default:
		u := (t - bandStart) / frac
		return u * u * (3 - 2*u)
	}
}

func (s *LineSegmentShape) priorWeight(t float64) float64 {
	frac := s.TransitionFrac
	if frac <= 0 {
		frac = 1e-6
	}
	bandStart := 1 - frac
	if t <= bandStart || t >= 1 {
		return 0
	}
	u := (t - bandStart) / frac
	return 4 * u * (1 - u)
}

func (s *LineSegmentShape) Apply(existing *Payload, box Box) *Payload {
	t, _ := s.closestT(box.Center)
	occ := s.occupancy(t)
	bump := s.priorWeight(t)
	sample := &Payload{
		Count:       1,
		TotalWeight: s.Weight,
		ProbSum:     s.Weight * occ,
		ProbSumSq:   s.Weight * occ * occ,
		SurfaceSum:  s.Weight * bump * s.SurfacePrior,
		CornerSum:   s.Weight * bump * s.CornerPrior,
		PlanarSum:   s.Weight * bump * s.PlanarPrior,
		FPRoom:      DefaultFPRoom,
		IsCarved:    true,
	}
	return MergePayload(existing, sample)
}

func (s *LineSegmentShape) SubdivideInside() bool { return false }

// NewWedgeShape builds the line-segment shape derived from a scan wedge
// (the probabilistic envelope between two scan points across two
// frames): the wedge's spread becomes the carve radius.
func NewWedgeShape(start, end mgl64.Vec3, weight, spread, surfacePrior, planarPrior, cornerPrior float64) *LineSegmentShape {
	s := NewLineSegmentShape(start, end, weight, surfacePrior, planarPrior, cornerPrior)
	s.Radius = spread
	return s
}

// --- BoundingBoxShape ----------------------------------------------------

// BoundingBoxShape carves a solid axis-aligned box with a uniform
// occupancy contribution; used for synthetic/test fixtures and for
// importing simple block-shaped fixtures.
type BoundingBoxShape struct {
	Min, Max mgl64.Vec3
	Weight   float64
	Prob     float64 // occupancy sample to merge in, typically 1 (solid) or 0 (empty)
}

func (s *BoundingBoxShape) AABB() (min, max mgl64.Vec3) { return s.Min, s.Max }

func (s *BoundingBoxShape) Test(box Box) Intersection {
	bmin := mgl64.Vec3{box.Center.X() - box.Halfwidth, box.Center.Y() - box.Halfwidth, box.Center.Z() - box.Halfwidth}
	bmax := mgl64.Vec3{box.Center.X() + box.Halfwidth, box.Center.Y() + box.Halfwidth, box.Center.Z() + box.Halfwidth}
	if bmax.X() < s.Min.X() || bmin.X() > s.Max.X() ||
		bmax.Y() < s.Min.Y() || bmin.Y() > s.Max.Y() ||
		bmax.Z() < s.Min.Z() || bmin.Z() > s.Max.Z() {
		return Disjoint
	}
	if bmin.X() >= s.Min.X() && bmax.X() <= s.Max.X() &&
		bmin.Y() >= s.Min.Y() && bmax.Y() <= s.Max.Y() &&
		bmin.Z() >= s.Min.Z() && bmax.Z() <= s.Max.Z() {
		return Inside
	}
	return Straddles
}

func (s *BoundingBoxShape) Apply(existing *Payload, box Box) *Payload {
	sample := &Payload{
		Count:       1,
		TotalWeight: s.Weight,
		ProbSum:     s.Weight * s.Prob,
		ProbSumSq:   s.Weight * s.Prob * s.Prob,
		FPRoom:      DefaultFPRoom,
		IsCarved:    true,
	}
	return MergePayload(existing, sample)
}

func (s *BoundingBoxShape) SubdivideInside() bool { return false }

// --- PlaneShape ------------------------------------------------------------

// PlaneShape carves a thin planar slab (point + unit normal + half
// thickness), used for synthetic test fixtures (e.g. a six-sided cube)
// and for manually seeding flat surfaces.
type PlaneShape struct {
	Point, Normal mgl64.Vec3
	Thickness     float64
	Weight        float64
	SurfacePrior  float64
	PlanarPrior   float64
	CornerPrior   float64
	TransitionFrac float64
}

func (s *PlaneShape) signedDist(p mgl64.Vec3) float64 {
	return p.Sub(s.Point).Dot(s.Normal.Normalize())
}

func (s *PlaneShape) AABB() (min, max mgl64.Vec3) {
	const big = 1 << 20
	return mgl64.Vec3{-big, -big, -big}, mgl64.Vec3{big, big, big}
}

func (s *PlaneShape) Test(box Box) Intersection {
	d := math.Abs(s.signedDist(box.Center))
	reach := box.Halfwidth * math.Sqrt(3)
	half := s.Thickness / 2
	if d > half+reach {
		return Disjoint
	}
	if d+reach <= half {
		return Inside
	}
	return Straddles
}

func (s *PlaneShape) Apply(existing *Payload, box Box) *Payload {
	d := s.signedDist(box.Center)
	half := s.Thickness / 2
	frac := s.TransitionFrac
	if frac <= 0 {
		frac = 0.5
	}
	// occ rises from 0 (d << -half) to 1 (d >> +half) across [-half,half]*frac-scaled band.
	u := (d + half) / (s.Thickness * frac)
	if u < 0 {
		u = 0
	} else if u > 1 {
		u = 1
	}
	occ := u * u * (3 - 2*u)
	bump := 4 * u * (1 - u)
	sample := &Payload{
		Count:       1,
		TotalWeight: s.Weight,
		ProbSum:     s.Weight * occ,
		ProbSumSq:   s.Weight * occ * occ,
		SurfaceSum:  s.Weight * bump * s.SurfacePrior,
		CornerSum:   s.Weight * bump * s.CornerPrior,
		PlanarSum:   s.Weight * bump * s.PlanarPrior,
		FPRoom:      DefaultFPRoom,
		IsCarved:    true,
	}
	return MergePayload(existing, sample)
}

func (s *PlaneShape) SubdivideInside() bool { return false }

// --- ExtrudedPolygonShape --------------------------------------------------

// ExtrudedPolygonShape imports a floorplan room: a 2D polygon (XZ plane,
// vertices in order) extruded between FloorY and CeilingY, tagging every
// intersected leaf with RoomIndex. Hollow toggles between a
// boundary-preserving subdivide pass (Hollow=true: keep drilling into the
// interior so fixture-scale objects inside the room are still resolved)
// and an interior-fill pass (Hollow=false: tag whole coarse interior
// leaves without forcing them to max depth).
type ExtrudedPolygonShape struct {
	Vertices        []mgl64.Vec2
	FloorY, CeilingY float64
	RoomIndex       int
	Hollow          bool
}

func (s *ExtrudedPolygonShape) AABB() (min, max mgl64.Vec3) {
	minX, minZ := math.Inf(1), math.Inf(1)
	maxX, maxZ := math.Inf(-1), math.Inf(-1)
	for _, v := range s.Vertices {
		minX = math.Min(minX, v.X())
		maxX = math.Max(maxX, v.X())
		minZ = math.Min(minZ, v.Y())
		maxZ = math.Max(maxZ, v.Y())
	}
	return mgl64.Vec3{minX, s.FloorY, minZ}, mgl64.Vec3{maxX, s.CeilingY, maxZ}
}

// pointInPolygon is the standard even-odd ray-casting test in the XZ plane.
func (s *ExtrudedPolygonShape) pointInPolygon(x, z float64) bool {
	in := false
	n := len(s.Vertices)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := s.Vertices[i], s.Vertices[j]
		if (vi.Y() > z) != (vj.Y() > z) &&
			x < (vj.X()-vi.X())*(z-vi.Y())/(vj.Y()-vi.Y())+vi.X() {
			in = !in
		}
	}
	return in
}

func (s *ExtrudedPolygonShape) Test(box Box) Intersection {
	yMin, yMax := box.Center.Y()-box.Halfwidth, box.Center.Y()+box.Halfwidth
	if yMax < s.FloorY || yMin > s.CeilingY {
		return Disjoint
	}
	allIn := true
	anyIn := false
	for ci := 0; ci < 4; ci++ {
		// sample the four XZ corners at the box's own Y (polygon test is Y-independent)
		dx := box.Halfwidth
		dz := box.Halfwidth
		if ci == 1 || ci == 2 {
			dx = -dx
		}
		if ci >= 2 {
			dz = -dz
		}
		x := box.Center.X() + dx
		z := box.Center.Z() + dz
		in := s.pointInPolygon(x, z)
		if in {
			anyIn = true
		} else {
			allIn = false
		}
	}
	yFullyInside := yMin >= s.FloorY && yMax <= s.CeilingY
	if allIn && yFullyInside {
		return Inside
	}
	if !anyIn && yMax < s.FloorY {
		return Disjoint
	}
	if !anyIn {
		// may still straddle if the polygon boundary passes through the box
		// without containing a sampled corner; conservative: straddle.
		return Straddles
	}
	return Straddles
}

func (s *ExtrudedPolygonShape) Apply(existing *Payload, box Box) *Payload {
	base := existing
	if base == nil {
		base = NewPayload()
	}
	out := clonePayload(base)
	out.FPRoom = s.RoomIndex
	return out
}

func (s *ExtrudedPolygonShape) SubdivideInside() bool { return s.Hollow }
