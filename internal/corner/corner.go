// Package corner maps boundary-face corners (shared vertices) to the set
// of incident boundary faces and builds the dual graph's edges.
package corner

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"volcarve/internal/boundary"
	"volcarve/internal/spatial"
	"volcarve/internal/telemetry"
	"volcarve/internal/voltree"
)

// Key canonically identifies a corner by its quantized world position.
// Quantizing (rather than comparing floats) is what lets two boundary
// faces on opposite sides of a subdivision step agree on the same corner.
type Key struct {
	X, Y, Z int64
}

// DefaultEpsilon is a reasonable quantization grain relative to a tree
// built at typical scan resolutions; callers with finer geometry should
// pass a smaller epsilon to NewMap.
const DefaultEpsilon = 1e-6

func quantize(v mgl64.Vec3, eps float64) Key {
	return Key{
		X: int64(math.Round(v.X() / eps)),
		Y: int64(math.Round(v.Y() / eps)),
		Z: int64(math.Round(v.Z() / eps)),
	}
}

// Map is the populated corner dictionary: every corner key to its
// incident boundary-face indices, and the dual graph's edges between
// corners. Population uses a mutex to guard concurrent map access, even
// though nothing in this pipeline currently populates a Map from
// multiple goroutines at once: Extract output is always folded in by a
// single caller.
type Map struct {
	eps       float64
	mu        sync.Mutex
	positions map[Key]mgl64.Vec3
	priors    map[Key]float64 // winning candidate's corner-sharpness score
	faces     map[Key]map[int]struct{}
	edges     map[[2]Key]struct{}
}

// NewMap creates an empty corner map with the given position quantization
// epsilon.
func NewMap(eps float64) *Map {
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	return &Map{
		eps:       eps,
		positions: make(map[Key]mgl64.Vec3),
		priors:    make(map[Key]float64),
		faces:     make(map[Key]map[int]struct{}),
		edges:     make(map[[2]Key]struct{}),
	}
}

// cornerScore reads the corner-sharpness prior carried on h's payload, or
// 0 if h has no payload.
func cornerScore(tree *voltree.Tree, h voltree.NodeHandle) float64 {
	p := tree.Payload(h)
	if p == nil {
		return 0
	}
	return p.Corner()
}

// cornerNode picks the node whose geometry defines a face's actual corner
// resolution: the smaller of (interior, exterior), since that's the side
// that subdivides the shared plane into multiple sub-quads.
func cornerNode(tree *voltree.Tree, f boundary.Face) voltree.NodeHandle {
	if f.Exterior == boundary.InvalidHandle {
		return f.Interior
	}
	if tree.Halfwidth(f.Exterior) < tree.Halfwidth(f.Interior) {
		return f.Exterior
	}
	return f.Interior
}

// FaceCornerKeys returns the four quantized corner keys of a boundary
// face, in the winding order spatial.FaceCorners defines. Exported for
// callers that need to walk a face's corners without re-deriving the
// cornerNode/quantization logic.
func (m *Map) FaceCornerKeys(tree *voltree.Tree, f boundary.Face) [4]Key {
	var out [4]Key
	for i, p := range faceCornerPositions(tree, f) {
		out[i] = quantize(p, m.eps)
	}
	return out
}

// faceCornerPositions returns the four world-space corner positions of a
// boundary face, in the winding order spatial.FaceCorners defines.
func faceCornerPositions(tree *voltree.Tree, f boundary.Face) [4]mgl64.Vec3 {
	n := cornerNode(tree, f)
	center := tree.Center(n)
	hw := tree.Halfwidth(n)
	ci := spatial.FaceCorners(f.Direction)
	var out [4]mgl64.Vec3
	for i, c := range ci {
		out[i] = spatial.CornerPosition(center, hw, c)
	}
	return out
}

// Add registers every corner of every face in res into the map. When two
// distinct candidate positions quantize to the same key, the one with
// the higher corner-sharpness prior (from the owning leaf's payload)
// becomes the canonical position stored for that key.
func (m *Map) Add(tree *voltree.Tree, res boundary.Result) {
	defer telemetry.Track("corner.Add")()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range res.Faces {
		score := cornerScore(tree, cornerNode(tree, f))
		for _, pos := range faceCornerPositions(tree, f) {
			key := quantize(pos, m.eps)
			if _, ok := m.faces[key]; !ok {
				m.faces[key] = make(map[int]struct{})
				m.positions[key] = pos
				m.priors[key] = score
			} else if score > m.priors[key] {
				m.positions[key] = pos
				m.priors[key] = score
			}
			m.faces[key][i] = struct{}{}
		}
	}
}

// PopulateEdges derives the dual graph's edges: pairs of corners that
// share a boundary-face edge, i.e. adjacent corners (in winding order) of
// the same face.
func (m *Map) PopulateEdges(tree *voltree.Tree, res boundary.Result) {
	defer telemetry.Track("corner.PopulateEdges")()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range res.Faces {
		corners := faceCornerPositions(tree, f)
		keys := [4]Key{}
		for i, c := range corners {
			keys[i] = quantize(c, m.eps)
		}
		for i := 0; i < 4; i++ {
			a, b := keys[i], keys[(i+1)%4]
			if a == b {
				continue
			}
			m.edges[orderedEdge(a, b)] = struct{}{}
		}
	}
}

func orderedEdge(a, b Key) [2]Key {
	if less(a, b) {
		return [2]Key{a, b}
	}
	return [2]Key{b, a}
}

func less(a, b Key) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

// FacesFor returns the boundary-face indices incident on the corner at
// position p.
func (m *Map) FacesFor(p mgl64.Vec3) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := quantize(p, m.eps)
	set, ok := m.faces[key]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	return out
}

// FacesForKey is FacesFor for callers that already hold a quantized key
// (avoids re-quantizing a position derived from Position()).
func (m *Map) FacesForKey(key Key) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.faces[key]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	return out
}

// KeyOf quantizes a world position into this map's corner key space, for
// callers that need to look a corner up by position.
func (m *Map) KeyOf(p mgl64.Vec3) Key { return quantize(p, m.eps) }

// Edges returns every dual-graph edge as a pair of corner keys.
func (m *Map) Edges() [][2]Key {
	out := make([][2]Key, 0, len(m.edges))
	for e := range m.edges {
		out = append(out, e)
	}
	return out
}

// Keys returns every corner key currently registered.
func (m *Map) Keys() []Key {
	out := make([]Key, 0, len(m.positions))
	for k := range m.positions {
		out = append(out, k)
	}
	return out
}

// Position returns the (unquantized) world position stored for a corner
// key.
func (m *Map) Position(key Key) (mgl64.Vec3, bool) {
	p, ok := m.positions[key]
	return p, ok
}
