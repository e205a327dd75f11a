// Package region flood-fills boundary faces into planar regions, fits a
// plane to each, and coalesces regions whose combined fit stays within a
// statistical distance threshold.
package region

import (
	"container/heap"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
	"volcarve/internal/boundary"
	"volcarve/internal/spatial"
	"volcarve/internal/telemetry"
	"volcarve/internal/voltree"
)

// Plane is a fitted point+unit-normal plane.
type Plane struct {
	Point  mgl64.Vec3
	Normal mgl64.Vec3
}

// Region is a maximal set of coplanar, same-direction boundary faces
// under the coalescence policy.
type Region struct {
	ID            int
	Faces         map[int]struct{}
	Plane         Plane
	NeighborSeeds map[int]int // neighbor region ID -> seeding face index
	faceCount     int         // cached for pair staleness checks
	alive         bool
}

// Config governs the open region-formation parameters: the planarity
// acceptance threshold during flood fill, the max-error threshold that
// aborts coalescence, the in-plane scale used to normalize planarity, and
// whether region-pair scoring uses geometric face centers or
// isosurface-adjusted ones.
type Config struct {
	PlaneThreshold         float64
	DistanceThreshold      float64
	PlanarityScale         float64
	UseIsosurfacePositions bool
}

// Build runs seed-and-grow flood fill over res's face adjacency and
// returns one Region per connected, sufficiently-planar patch; faces
// that fail the seed's own planarity test become singleton regions.
func Build(tree *voltree.Tree, res boundary.Result, cfg Config) []*Region {
	defer telemetry.Track("region.Build")()
	visited := make([]bool, len(res.Faces))
	faceToRegion := make([]int, len(res.Faces))
	for i := range faceToRegion {
		faceToRegion[i] = -1
	}
	var regions []*Region
	nextID := 0

	for i, f := range res.Faces {
		if visited[i] {
			continue
		}
		seedPos := facePosition(tree, cfg, f)
		plane := Plane{Point: seedPos, Normal: spatial.Normal(f.Direction)}

		if planarity(seedPos, plane, cfg.scale()) < cfg.PlaneThreshold {
			visited[i] = true
			r := &Region{ID: nextID, Faces: map[int]struct{}{i: {}}, Plane: plane, NeighborSeeds: map[int]int{}, alive: true}
			faceToRegion[i] = nextID
			regions = append(regions, r)
			nextID++
			continue
		}

		members := map[int]struct{}{i: {}}
		visited[i] = true
		queue := []int{i}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, nb := range res.Adjacency[cur] {
				if visited[nb] {
					continue
				}
				nf := res.Faces[nb]
				if nf.Direction != f.Direction {
					continue
				}
				pos := facePosition(tree, cfg, nf)
				if planarity(pos, plane, cfg.scale()) < cfg.PlaneThreshold {
					continue
				}
				visited[nb] = true
				members[nb] = struct{}{}
				queue = append(queue, nb)
			}
		}
		r := &Region{ID: nextID, Faces: members, Plane: plane, NeighborSeeds: map[int]int{}, alive: true}
		for m := range members {
			faceToRegion[m] = nextID
		}
		regions = append(regions, r)
		nextID++
	}

	for i := range res.Faces {
		ri := faceToRegion[i]
		for _, j := range res.Adjacency[i] {
			rj := faceToRegion[j]
			if rj != ri {
				regions[ri].NeighborSeeds[rj] = j
			}
		}
	}
	return regions
}

func (c Config) scale() float64 {
	if c.PlanarityScale > 0 {
		return c.PlanarityScale
	}
	return 1
}

// planarity measures how well a candidate position fits a tentative
// plane: 1 at zero distance, decaying toward 0 as distance grows relative
// to scale. The curve is 1/(1+d/scale): monotone, bounded, and easy to
// threshold.
func planarity(p mgl64.Vec3, plane Plane, scale float64) float64 {
	d := math.Abs(p.Sub(plane.Point).Dot(plane.Normal))
	return 1.0 / (1.0 + d/scale)
}

func facePosition(tree *voltree.Tree, cfg Config, f boundary.Face) mgl64.Vec3 {
	if cfg.UseIsosurfacePositions {
		return IsosurfacePosition(tree, f)
	}
	return f.Position(tree)
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// Variance is the face position variance contract.
func Variance(tree *voltree.Tree, f boundary.Face) float64 {
	pi := tree.Payload(f.Interior)
	muI, varI, hwI := pi.Probability(), pi.Variance(), tree.Halfwidth(f.Interior)
	muE, varE, hwE := 0.5, 1.0, 0.0
	if f.Exterior != boundary.InvalidHandle {
		pe := tree.Payload(f.Exterior)
		muE, varE, hwE = pe.Probability(), pe.Variance(), tree.Halfwidth(f.Exterior)
	}
	if sign(muI-0.5) == sign(muE-0.5) {
		d := hwE - hwI
		return d * d / 12
	}
	s := (muI - 0.5) / (muI - muE)
	varS := (1-s*s)*varI + s*s*varE
	sum := hwI + hwE
	return varS * sum * sum
}

// IsosurfacePosition is the face isosurface position contract.
func IsosurfacePosition(tree *voltree.Tree, f boundary.Face) mgl64.Vec3 {
	pi := tree.Payload(f.Interior)
	muI := pi.Probability()
	muE := 0.5
	if f.Exterior != boundary.InvalidHandle {
		muE = tree.Payload(f.Exterior).Probability()
	}
	if sign(muI-0.5) == sign(muE-0.5) {
		return f.Position(tree)
	}
	hwI := tree.Halfwidth(f.Interior)
	hwE := 0.0
	if f.Exterior != boundary.InvalidHandle {
		hwE = tree.Halfwidth(f.Exterior)
	}
	s := (muI - 0.5) / (muI - muE)
	normal := spatial.Normal(f.Direction)
	return tree.Center(f.Interior).Add(normal.Mul(s * (hwI + hwE)))
}

// FitPlane least-squares fits a plane through points via SVD: the normal
// is the right singular vector paired with the smallest singular value,
// the point is the centroid.
func FitPlane(points []mgl64.Vec3) Plane {
	if len(points) == 0 {
		return Plane{Normal: mgl64.Vec3{0, 0, 1}}
	}
	var centroid mgl64.Vec3
	for _, p := range points {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1.0 / float64(len(points)))

	if len(points) < 3 {
		return Plane{Point: centroid, Normal: mgl64.Vec3{0, 0, 1}}
	}

	a := mat.NewDense(len(points), 3, nil)
	for i, p := range points {
		d := p.Sub(centroid)
		a.Set(i, 0, d.X())
		a.Set(i, 1, d.Y())
		a.Set(i, 2, d.Z())
	}
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return Plane{Point: centroid, Normal: mgl64.Vec3{0, 0, 1}}
	}
	var v mat.Dense
	svd.VTo(&v)
	normal := mgl64.Vec3{v.At(0, 2), v.At(1, 2), v.At(2, 2)}
	if normal.Len() == 0 {
		normal = mgl64.Vec3{0, 0, 1}
	}
	return Plane{Point: centroid, Normal: normal.Normalize()}
}

// FaceToRegion builds a dense face-index -> region-ID lookup from a final
// region set, for callers that need to know which region owns each
// boundary face after coalescence has merged the original flood-fill
// partition.
func FaceToRegion(regions []*Region, numFaces int) []int {
	out := make([]int, numFaces)
	for i := range out {
		out[i] = -1
	}
	for _, r := range regions {
		for f := range r.Faces {
			out[f] = r.ID
		}
	}
	return out
}

// ByID indexes a region set by ID for random-access lookups.
func ByID(regions []*Region) map[int]*Region {
	out := make(map[int]*Region, len(regions))
	for _, r := range regions {
		out[r.ID] = r
	}
	return out
}

// --- Coalescence ---------------------------------------------------------

// pairItem is one candidate merge in the priority queue, scored by
// max_err (lower is better): a tiny struct plus a slice-backed
// container/heap.Interface.
type pairItem struct {
	a, b       int // region IDs
	maxErr     float64
	aFaceCount int
	bFaceCount int
}

type pairPQ []*pairItem

func (pq pairPQ) Len() int            { return len(pq) }
func (pq pairPQ) Less(i, j int) bool  { return pq[i].maxErr < pq[j].maxErr }
func (pq pairPQ) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *pairPQ) Push(x interface{}) { *pq = append(*pq, x.(*pairItem)) }
func (pq *pairPQ) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// scorePair computes the pair's least-squares plane (fit over the union
// of both regions' face positions) and its max error.
func scorePair(tree *voltree.Tree, res boundary.Result, cfg Config, ra, rb *Region) (Plane, float64) {
	var points []mgl64.Vec3
	var faces []int
	for i := range ra.Faces {
		faces = append(faces, i)
		points = append(points, facePosition(tree, cfg, res.Faces[i]))
	}
	for i := range rb.Faces {
		faces = append(faces, i)
		points = append(points, facePosition(tree, cfg, res.Faces[i]))
	}
	plane := FitPlane(points)

	maxErr := 0.0
	for idx, i := range faces {
		v := Variance(tree, res.Faces[i])
		if v <= 0 {
			v = 1e-12
		}
		d := math.Abs(points[idx].Sub(plane.Point).Dot(plane.Normal))
		errI := d / math.Sqrt(v)
		if errI > maxErr {
			maxErr = errI
		}
	}
	return plane, maxErr
}

// Coalesce repeatedly merges the best-scoring adjacent region pair until
// every remaining candidate pair's max_err exceeds cfg.DistanceThreshold.
// Returns the surviving regions.
func Coalesce(tree *voltree.Tree, res boundary.Result, regions []*Region, cfg Config) []*Region {
	defer telemetry.Track("region.Coalesce")()
	byID := make(map[int]*Region, len(regions))
	for _, r := range regions {
		r.faceCount = len(r.Faces)
		byID[r.ID] = r
	}

	pq := &pairPQ{}
	heap.Init(pq)
	pushed := make(map[[2]int]bool)
	pushPair := func(a, b int) {
		if a == b {
			return
		}
		if a > b {
			a, b = b, a
		}
		key := [2]int{a, b}
		if pushed[key] {
			return
		}
		ra, rb := byID[a], byID[b]
		_, maxErr := scorePair(tree, res, cfg, ra, rb)
		heap.Push(pq, &pairItem{a: a, b: b, maxErr: maxErr, aFaceCount: ra.faceCount, bFaceCount: rb.faceCount})
		pushed[key] = true
	}

	for _, r := range regions {
		for nb := range r.NeighborSeeds {
			pushPair(r.ID, nb)
		}
	}

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*pairItem)
		key := [2]int{item.a, item.b}
		pushed[key] = false
		ra, ok1 := byID[item.a]
		rb, ok2 := byID[item.b]
		if !ok1 || !ok2 || !ra.alive || !rb.alive {
			continue
		}
		if ra.faceCount != item.aFaceCount || rb.faceCount != item.bFaceCount {
			pushPair(item.a, item.b)
			continue
		}
		plane, maxErr := scorePair(tree, res, cfg, ra, rb)
		if maxErr > cfg.DistanceThreshold {
			continue
		}

		// Merge rb into ra: union faces, neighbor seeds (minus self),
		// and tell every neighbor of rb to point at ra instead.
		for f := range rb.Faces {
			ra.Faces[f] = struct{}{}
		}
		for nb, seedFace := range rb.NeighborSeeds {
			if nb == ra.ID {
				continue
			}
			ra.NeighborSeeds[nb] = seedFace
			if nbr, ok := byID[nb]; ok {
				delete(nbr.NeighborSeeds, rb.ID)
				nbr.NeighborSeeds[ra.ID] = seedFace
			}
		}
		delete(ra.NeighborSeeds, rb.ID)
		ra.Plane = plane
		ra.faceCount = len(ra.Faces)
		rb.alive = false

		for nb := range ra.NeighborSeeds {
			pushPair(ra.ID, nb)
		}
	}

	var out []*Region
	for _, r := range regions {
		if r.alive {
			out = append(out, r)
		}
	}
	return out
}
