// Package topology builds the face-adjacency layer over an octree: for
// every leaf and every face, the set of neighbor leaves on the other
// side, even when the neighboring side has been subdivided more finely
// than the leaf itself.
package topology

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"volcarve/internal/recon/errs"
	"volcarve/internal/spatial"
	"volcarve/internal/telemetry"
	"volcarve/internal/voltree"
)

func axisOf(v mgl64.Vec3, axis int) float64 {
	switch axis {
	case 0:
		return v.X()
	case 1:
		return v.Y()
	default:
		return v.Z()
	}
}

// Topology records, for every leaf, the set of neighbor leaf handles on
// each of its six faces.
type Topology struct {
	tree      *voltree.Tree
	neighbors map[voltree.NodeHandle][6][]voltree.NodeHandle
}

// Build walks the tree and derives every leaf's six-face neighbor sets.
// Per leaf/face this locates every leaf on the other side of the face:
// a single coarser-or-equal neighbor, or several finer ones when that
// side has been subdivided deeper than this leaf.
func Build(tree *voltree.Tree) *Topology {
	defer telemetry.Track("topology.Build")()
	tp := &Topology{tree: tree, neighbors: make(map[voltree.NodeHandle][6][]voltree.NodeHandle)}
	tree.Walk(func(h voltree.NodeHandle) {
		var entry [6][]voltree.NodeHandle
		for fi, f := range spatial.Faces {
			entry[fi] = findFaceNeighbors(tree, h, f)
		}
		tp.neighbors[h] = entry
	})
	return tp
}

// findFaceNeighbors locates every leaf touching h across face f by a
// pruned top-down search from the root: a subtree is only descended into
// if its box overlaps the thin slab just beyond h's face, and a leaf is
// accepted only if it exactly satisfies the touching condition (axis gap
// equals the sum of halfwidths, with footprint overlap on the other two
// axes). This produces the same neighbor sets a recursive
// parent-propagation construction would, without needing to carry
// partially-resolved same-depth neighbor state through the recursion;
// see DESIGN.md.
func findFaceNeighbors(tree *voltree.Tree, h voltree.NodeHandle, f spatial.Face) []voltree.NodeHandle {
	center := tree.Center(h)
	hw := tree.Halfwidth(h)
	axis := spatial.Axis(f)
	sign := spatial.Sign(f)

	var out []voltree.NodeHandle
	var rec func(n voltree.NodeHandle)
	rec = func(n voltree.NodeHandle) {
		nc := tree.Center(n)
		nhw := tree.Halfwidth(n)
		if !slabOverlap(center, hw, nc, nhw, axis, sign) {
			return
		}
		if tree.IsLeaf(n) {
			if n == h {
				return
			}
			if touches(center, hw, nc, nhw, axis, sign) {
				out = append(out, n)
			}
			return
		}
		for i := 0; i < 8; i++ {
			rec(tree.Child(n, i))
		}
	}
	rec(tree.Root())
	return out
}

// slabOverlap prunes subtrees that cannot possibly touch h's face: the
// candidate must reach into the half-space beyond the face on axis, and
// must overlap h's footprint on the other two axes.
func slabOverlap(center mgl64.Vec3, hw float64, nc mgl64.Vec3, nhw float64, axis int, sign float64) bool {
	faceCoord := axisOf(center, axis) + sign*hw
	nMin := axisOf(nc, axis) - nhw
	nMax := axisOf(nc, axis) + nhw
	if sign > 0 {
		if nMax < faceCoord-1e-9 {
			return false
		}
	} else {
		if nMin > faceCoord+1e-9 {
			return false
		}
	}
	for _, u := range otherAxes(axis) {
		cu := axisOf(center, u)
		nu := axisOf(nc, u)
		if math.Abs(cu-nu) >= hw+nhw-1e-9 {
			return false
		}
	}
	return true
}

func touches(center mgl64.Vec3, hw float64, nc mgl64.Vec3, nhw float64, axis int, sign float64) bool {
	want := axisOf(center, axis) + sign*(hw+nhw)
	tol := 1e-6 * math.Max(1, math.Max(hw, nhw))
	if math.Abs(axisOf(nc, axis)-want) > tol {
		return false
	}
	for _, u := range otherAxes(axis) {
		if math.Abs(axisOf(center, u)-axisOf(nc, u)) >= hw+nhw-1e-9 {
			return false
		}
	}
	return true
}

func otherAxes(axis int) [2]int {
	switch axis {
	case 0:
		return [2]int{1, 2}
	case 1:
		return [2]int{0, 2}
	default:
		return [2]int{0, 1}
	}
}

// Neighbors returns the neighbor leaf handles of h on face f.
func (tp *Topology) Neighbors(h voltree.NodeHandle, f spatial.Face) []voltree.NodeHandle {
	entry, ok := tp.neighbors[h]
	if !ok {
		return nil
	}
	return entry[faceIndex(f)]
}

// AreNeighbors reports whether b appears in any of a's six recorded
// face-neighbor sets.
func (tp *Topology) AreNeighbors(a, b voltree.NodeHandle) bool {
	for _, f := range spatial.Faces {
		for _, n := range tp.Neighbors(a, f) {
			if n == b {
				return true
			}
		}
	}
	return false
}

// Verify checks the invariants a built topology must hold: neighbor
// symmetry, leaf-only membership, and correct axis-distance geometry.
func (tp *Topology) Verify() error {
	tree := tp.tree
	for h, entry := range tp.neighbors {
		if !tree.IsLeaf(h) {
			return fmt.Errorf("topology: internal node %d recorded in neighbor map: %w", h, errs.ErrInconsistentTopology)
		}
		for fi, f := range spatial.Faces {
			for _, n := range entry[fi] {
				if !tree.IsLeaf(n) {
					return fmt.Errorf("topology: neighbor %d of %d is not a leaf: %w", n, h, errs.ErrInconsistentTopology)
				}
				opp := spatial.Opposite(f)
				if !containsHandle(tp.Neighbors(n, opp), h) {
					return fmt.Errorf("topology: asymmetric neighbor (%d,%v)->%d: %w", h, f, n, errs.ErrInconsistentTopology)
				}
				axis := spatial.Axis(f)
				want := tree.Halfwidth(h) + tree.Halfwidth(n)
				got := math.Abs(axisOf(tree.Center(h), axis) - axisOf(tree.Center(n), axis))
				tol := 1e-6 * math.Max(1, want)
				if math.Abs(got-want) > tol {
					return fmt.Errorf("topology: axis distance mismatch (%d,%v)->%d: got %v want %v: %w", h, f, n, got, want, errs.ErrInconsistentTopology)
				}
			}
		}
	}
	return nil
}

func containsHandle(list []voltree.NodeHandle, h voltree.NodeHandle) bool {
	for _, v := range list {
		if v == h {
			return true
		}
	}
	return false
}

func faceIndex(f spatial.Face) int {
	for i, ff := range spatial.Faces {
		if ff == f {
			return i
		}
	}
	panic("topology: invalid face")
}
