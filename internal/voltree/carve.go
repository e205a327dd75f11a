package voltree

import (
	"github.com/go-gl/mathgl/mgl64"
	"volcarve/internal/recon/errs"
	"volcarve/internal/telemetry"
)

// InsertShape walks the tree and merges shape's contribution into every
// leaf it reaches, subdividing as needed. It returns the handles of every
// leaf whose payload was touched, and grows the domain first so the
// shape's AABB is fully contained.
func (t *Tree) InsertShape(shape Shape) ([]NodeHandle, error) {
	defer telemetry.Track("voltree.InsertShape")()
	min, max := shape.AABB()
	if min.X() > max.X() || min.Y() > max.Y() || min.Z() > max.Z() {
		return nil, errs.ErrInvalidInput
	}
	if err := t.InsertPoint(min); err != nil {
		return nil, err
	}
	if err := t.InsertPoint(max); err != nil {
		return nil, err
	}

	var affected []NodeHandle
	var walk func(h NodeHandle)
	walk = func(h NodeHandle) {
		n := t.arena.get(h)
		box := Box{Center: n.center, Halfwidth: n.halfwidth}
		switch shape.Test(box) {
		case Disjoint:
			return
		case Inside:
			if n.isLeaf() {
				if n.depth >= t.maxDepth || !shape.SubdivideInside() {
					n.payload = shape.Apply(n.payload, box)
					affected = append(affected, h)
					return
				}
				children := t.subdivide(h)
				for _, c := range children {
					walk(c)
				}
				return
			}
			for _, c := range t.arena.get(h).children {
				walk(c)
			}
		case Straddles:
			if n.isLeaf() {
				if n.depth >= t.maxDepth {
					n.payload = shape.Apply(n.payload, box)
					affected = append(affected, h)
					return
				}
				children := t.subdivide(h)
				for _, c := range children {
					walk(c)
				}
				return
			}
			for _, c := range t.arena.get(h).children {
				walk(c)
			}
		}
	}
	walk(t.root)
	return affected, nil
}

// RaySample is one item of the external ray stream: a weighted line
// segment with attached probabilistic priors.
type RaySample struct {
	Start, End                             [3]float64
	Weight                                 float64
	SurfacePrior, PlanarPrior, CornerPrior float64
}

// RayIterator is the pull-style source of ray samples the carving engine
// drives at its own pace. Next returns ok=false once the stream is
// exhausted.
type RayIterator interface {
	Next() (sample RaySample, ok bool)
}

// CarveSummary reports how a bulk carve pass disposed of its input:
// invalid items are skipped, counted, and reported here rather than
// aborting the pass.
type CarveSummary struct {
	Accepted int
	Skipped  int
	Errors   []error
}

// CarveRays drains it into the tree, converting each sample into a
// LineSegmentShape. Carving is associative up to the payload merge law:
// no ordering guarantee is made across samples beyond that. Invalid
// samples (zero weight, degenerate segment) are skipped and counted
// rather than aborting the pass.
func CarveRays(t *Tree, it RayIterator) CarveSummary {
	defer telemetry.Track("voltree.CarveRays")()
	var summary CarveSummary
	for {
		s, ok := it.Next()
		if !ok {
			return summary
		}
		if s.Weight <= 0 {
			summary.Skipped++
			continue
		}
		start := mgl64.Vec3{s.Start[0], s.Start[1], s.Start[2]}
		end := mgl64.Vec3{s.End[0], s.End[1], s.End[2]}
		if start == end {
			summary.Skipped++
			continue
		}
		shape := NewLineSegmentShape(start, end, s.Weight, s.SurfacePrior, s.PlanarPrior, s.CornerPrior)
		if _, err := t.InsertShape(shape); err != nil {
			summary.Skipped++
			summary.Errors = append(summary.Errors, err)
			continue
		}
		summary.Accepted++
	}
}
