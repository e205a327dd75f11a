// Package boundary extracts oriented boundary faces between interior and
// exterior leaves under a chosen segmentation scheme, and links
// neighboring boundary faces that share an edge into a face-to-face
// adjacency graph for downstream region flood fill.
package boundary

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"volcarve/internal/spatial"
	"volcarve/internal/telemetry"
	"volcarve/internal/topology"
	"volcarve/internal/voltree"
)

// Scheme selects the is_interior predicate boundary extraction runs
// under.
type Scheme int

const (
	// ALL treats every leaf purely by its probability-derived Interior().
	ALL Scheme = iota
	// OBJECTS treats any leaf without a floorplan room association as
	// exterior, regardless of probability. This drops fixture-scale
	// objects floating outside any room.
	OBJECTS
	// ROOM treats any leaf with a room association as interior,
	// regardless of probability. This fills in fixtures so only
	// voids genuinely outside the building envelope remain exterior.
	ROOM
)

// IsInterior is the pure predicate each scheme reduces to.
func (s Scheme) IsInterior(p *voltree.Payload) bool {
	switch s {
	case OBJECTS:
		return p.Interior() && p.FPRoom >= 0
	case ROOM:
		return p.Interior() || p.FPRoom >= 0
	default:
		return p.Interior()
	}
}

// InvalidHandle aliases voltree's sentinel so callers needn't import
// voltree just to test for the NULL/unbounded-exterior neighbor.
const InvalidHandle = voltree.InvalidHandle

// Face is an oriented (interior, exterior, direction) tuple. Exterior is
// InvalidHandle for the unbounded-exterior sentinel (a domain-boundary
// face with no neighbor at all).
type Face struct {
	Interior  voltree.NodeHandle
	Exterior  voltree.NodeHandle
	Direction spatial.Face
}

// Area is 4*min(hw_i, hw_e)^2, or 4*hw_i^2 when Exterior is absent.
func (f Face) Area(tree *voltree.Tree) float64 {
	hw := tree.Halfwidth(f.Interior)
	if f.Exterior != InvalidHandle {
		if ehw := tree.Halfwidth(f.Exterior); ehw < hw {
			hw = ehw
		}
	}
	return 4 * hw * hw
}

// Position is the face center on the touching plane, with its in-plane
// coordinates biased toward the smaller of the two leaves.
func (f Face) Position(tree *voltree.Tree) mgl64.Vec3 {
	ic := tree.Center(f.Interior)
	ihw := tree.Halfwidth(f.Interior)
	axis := spatial.Axis(f.Direction)
	sign := spatial.Sign(f.Direction)

	ref := ic
	if f.Exterior != InvalidHandle {
		if tree.Halfwidth(f.Exterior) < ihw {
			ref = tree.Center(f.Exterior)
		}
	}
	out := ref
	return setAxis(out, axis, axisOf(ic, axis)+sign*ihw)
}

func setAxis(v mgl64.Vec3, axis int, val float64) mgl64.Vec3 {
	switch axis {
	case 0:
		return mgl64.Vec3{val, v.Y(), v.Z()}
	case 1:
		return mgl64.Vec3{v.X(), val, v.Z()}
	default:
		return mgl64.Vec3{v.X(), v.Y(), val}
	}
}

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

// Result is the output of Extract: the boundary face list, an index from
// every node (interior or exterior side) to the faces touching it, and
// the face-to-face adjacency graph (indices into Faces).
type Result struct {
	Faces     []Face
	NodeFaces map[voltree.NodeHandle][]int
	Adjacency [][]int
}

// Extract enumerates a boundary face for every (interior leaf, face,
// neighbor) where the neighbor is non-interior or absent under scheme,
// then links neighboring faces that share an edge.
func Extract(tree *voltree.Tree, tp *topology.Topology, scheme Scheme) Result {
	defer telemetry.Track("boundary.Extract")()

	res := Result{NodeFaces: make(map[voltree.NodeHandle][]int)}
	tree.Walk(func(h voltree.NodeHandle) {
		p := tree.Payload(h)
		if p == nil || !scheme.IsInterior(p) {
			return
		}
		for _, f := range spatial.Faces {
			neighbors := tp.Neighbors(h, f)
			if len(neighbors) == 0 {
				res.addFace(Face{Interior: h, Exterior: InvalidHandle, Direction: f})
				continue
			}
			for _, n := range neighbors {
				if !scheme.IsInterior(tree.Payload(n)) {
					res.addFace(Face{Interior: h, Exterior: n, Direction: f})
				}
			}
		}
	})

	res.Adjacency = make([][]int, len(res.Faces))
	for i := range res.Faces {
		for j := i + 1; j < len(res.Faces); j++ {
			if facesShareEdge(tree, res.Faces[i], res.Faces[j]) {
				res.Adjacency[i] = append(res.Adjacency[i], j)
				res.Adjacency[j] = append(res.Adjacency[j], i)
			}
		}
	}
	return res
}

func (r *Result) addFace(f Face) {
	idx := len(r.Faces)
	r.Faces = append(r.Faces, f)
	r.NodeFaces[f.Interior] = append(r.NodeFaces[f.Interior], idx)
	if f.Exterior != InvalidHandle {
		r.NodeFaces[f.Exterior] = append(r.NodeFaces[f.Exterior], idx)
	}
}

const edgeEpsilon = 1e-6

// facesShareEdge implements the two compatibility rules: a same-direction
// pair must be coplanar and abut in the 2D projection; a perpendicular
// pair must pass the inner/outer corner test.
func facesShareEdge(tree *voltree.Tree, a, b Face) bool {
	switch {
	case a.Direction == b.Direction:
		return coplanarAbut(tree, a, b)
	case a.Direction == spatial.Opposite(b.Direction):
		return false // parallel, opposite-facing faces never share an edge
	default:
		return innerOuterCorner(tree, a, b)
	}
}

func coplanarAbut(tree *voltree.Tree, a, b Face) bool {
	axis := spatial.Axis(a.Direction)
	sign := spatial.Sign(a.Direction)
	ac := tree.Center(a.Interior)
	bc := tree.Center(b.Interior)
	ahw := tree.Halfwidth(a.Interior)
	bhw := tree.Halfwidth(b.Interior)

	planeA := axisOf(ac, axis) + sign*ahw
	planeB := axisOf(bc, axis) + sign*bhw
	if math.Abs(planeA-planeB) > edgeEpsilon*math.Max(1, math.Max(ahw, bhw)) {
		return false
	}
	for _, u := range otherAxes(axis) {
		da := math.Abs(axisOf(ac, u) - axisOf(bc, u))
		if da > ahw+bhw+edgeEpsilon {
			return false
		}
	}
	return a.Interior != b.Interior
}

// innerOuterCorner tests whether two perpendicular boundary faces meet
// along a convex or concave corner: the in-plane component of the
// inter-center displacement must equal n_a*hw_b - n_b*hw_a (convex) or
// its negation (concave), and the displacement's component along the
// shared-edge axis must be shorter than the larger of the two halfwidths.
func innerOuterCorner(tree *voltree.Tree, a, b Face) bool {
	axisA, axisB := spatial.Axis(a.Direction), spatial.Axis(b.Direction)
	if axisA == axisB {
		return false
	}
	na := spatial.Normal(a.Direction)
	nb := spatial.Normal(b.Direction)
	cross := na.Cross(nb)
	if cross.Len() < 1e-9 {
		return false
	}
	cross = cross.Normalize()

	ca := tree.Center(a.Interior)
	cb := tree.Center(b.Interior)
	hwA := tree.Halfwidth(a.Interior)
	hwB := tree.Halfwidth(b.Interior)
	d := cb.Sub(ca)

	parallel := d.Dot(cross)
	proj := d.Sub(cross.Mul(parallel))
	rhs := na.Mul(hwB).Sub(nb.Mul(hwA))

	tol := edgeEpsilon * math.Max(1, math.Max(hwA, hwB))
	convex := proj.Sub(rhs).Len() < tol
	concave := proj.Add(rhs).Len() < tol
	if !convex && !concave {
		return false
	}
	return math.Abs(parallel) < math.Max(hwA, hwB)
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

// ObjectFilter extracts the subset of a ROOM-scheme extraction's faces
// whose interior side is actually a probability-exterior, room-associated
// leaf (a fixture voxel the ROOM scheme filled in as interior). This is
// how "object" surfaces are recovered without a fourth Scheme constant:
// run Extract under ROOM, then ObjectFilter the result to get the
// fixture-shell faces a consumer wants to label separately.
func ObjectFilter(tree *voltree.Tree, res Result) []Face {
	var out []Face
	for _, f := range res.Faces {
		p := tree.Payload(f.Interior)
		if p != nil && !p.Interior() && p.FPRoom >= 0 {
			out = append(out, f)
		}
	}
	return out
}
