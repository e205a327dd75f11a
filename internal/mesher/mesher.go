// Package mesher assigns a vertex position to every boundary-face corner
// and triangulates each region's faces into a watertight surface.
//
// Vertex assignment generalizes cleanly across how many regions meet at a
// corner: a corner incident on k regions defines a k-row linear system
// N·x=b (one row per incident region's plane), solved by SVD with
// singular-value thresholding so that under-constrained directions (k<3)
// keep the corner's original position along the directions the system
// doesn't pin down. A corner touching exactly one region reduces to a
// plane projection; two regions snap to their intersection line; three or
// more snap to a point. This is the same formula for every k, so every
// registered corner gets a vertex rather than special-casing the
// "two or more regions" case.
//
// Triangulation reuses each boundary face directly as a planar quad:
// because the corner map always keys a face's corners to its smaller
// leaf, adjacent boundary faces at different subdivision depths already
// share exactly the corner keys their common edge requires, so a
// per-face CCW quad split already produces the same triangulation a
// quadtree built over the region's projected corners would, with no
// separate insertion/merge step, since the octree's adaptive subdivision
// already performed that quadtree refinement.
package mesher

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
	"volcarve/internal/boundary"
	"volcarve/internal/corner"
	"volcarve/internal/recon/errs"
	"volcarve/internal/region"
	"volcarve/internal/telemetry"
	"volcarve/internal/voltree"
)

// Config governs vertex snapping and triangulation.
type Config struct {
	// MinSingularValueFrac sets the SVD rank-acceptance threshold as a
	// fraction of the largest singular value: threshold = min_singular_value
	// * sigma_1.
	MinSingularValueFrac float64
}

func (c Config) fracOrDefault() float64 {
	if c.MinSingularValueFrac > 0 {
		return c.MinSingularValueFrac
	}
	return 0.1
}

// Vertex is a snapped corner: its position, the corner key it was derived
// from, and the regions that constrained it.
type Vertex struct {
	Key      corner.Key
	Position mgl64.Vec3
	Regions  []int
}

// Triangle references three vertex indices into Mesh.Vertices, wound
// consistent with the boundary face's outward normal.
type Triangle struct {
	A, B, C int
}

// Mesh is the final triangulated surface.
type Mesh struct {
	Vertices  []mgl64.Vec3
	Triangles []Triangle
}

// Build assigns vertices to every registered corner and triangulates
// every region's faces.
func Build(tree *voltree.Tree, res boundary.Result, cmap *corner.Map, regions []*region.Region, cfg Config) (*Mesh, error) {
	defer telemetry.Track("mesher.Build")()

	faceToRegion := region.FaceToRegion(regions, len(res.Faces))
	byID := region.ByID(regions)

	keys := cmap.Keys()
	keyToIndex := make(map[corner.Key]int, len(keys))
	vertices := make([]mgl64.Vec3, 0, len(keys))

	for _, k := range keys {
		faces := cmap.FacesForKey(k)
		if len(faces) == 0 {
			continue
		}
		seen := make(map[int]struct{})
		var planes []region.Plane
		for _, fi := range faces {
			rid := faceToRegion[fi]
			if rid < 0 {
				continue
			}
			if _, ok := seen[rid]; ok {
				continue
			}
			seen[rid] = struct{}{}
			planes = append(planes, byID[rid].Plane)
		}
		if len(planes) == 0 {
			return nil, fmt.Errorf("mesher: corner %v has no owning region: %w", k, errs.ErrMissingReference)
		}
		initial, ok := cmap.Position(k)
		if !ok {
			return nil, fmt.Errorf("mesher: corner %v missing registered position: %w", k, errs.ErrMissingReference)
		}
		pos := snapVertex(planes, initial, cfg.fracOrDefault())
		keyToIndex[k] = len(vertices)
		vertices = append(vertices, pos)
	}

	var triangles []Triangle
	for _, r := range regions {
		for fi := range r.Faces {
			corners := cmap.FaceCornerKeys(tree, res.Faces[fi])
			var idx [4]int
			ok := true
			for i, k := range corners {
				vi, found := keyToIndex[k]
				if !found {
					ok = false
					break
				}
				idx[i] = vi
			}
			if !ok {
				return nil, fmt.Errorf("mesher: boundary face %d references an unassigned corner: %w", fi, errs.ErrMissingReference)
			}
			triangles = append(triangles,
				Triangle{idx[0], idx[1], idx[2]},
				Triangle{idx[0], idx[2], idx[3]},
			)
		}
	}

	return &Mesh{Vertices: vertices, Triangles: triangles}, nil
}

// snapVertex solves the N*x=b system built from one row per incident
// plane. With k planes (k >= 1; Build never calls it with none) the
// system matrix is k x 3; directions the system doesn't constrain (small
// or missing singular values) keep the corner's initial position instead
// of being zeroed out.
func snapVertex(planes []region.Plane, initial mgl64.Vec3, minSingularValueFrac float64) mgl64.Vec3 {
	k := len(planes)
	a := mat.NewDense(k, 3, nil)
	b := mat.NewVecDense(k, nil)
	for i, p := range planes {
		a.Set(i, 0, p.Normal.X())
		a.Set(i, 1, p.Normal.Y())
		a.Set(i, 2, p.Normal.Z())
		b.SetVec(i, p.Normal.Dot(p.Point))
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThinU|mat.SVDFullV) {
		return initial
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	sigma1 := 0.0
	if len(values) > 0 {
		sigma1 = values[0]
	}
	threshold := minSingularValueFrac * sigma1

	var result mgl64.Vec3
	for j := 0; j < 3; j++ {
		vj := mgl64.Vec3{v.At(0, j), v.At(1, j), v.At(2, j)}
		var sigma float64
		if j < len(values) {
			sigma = values[j]
		}
		if sigma >= threshold && sigma > 0 {
			var dot float64
			for i := 0; i < k; i++ {
				dot += b.AtVec(i) * u.At(i, j)
			}
			coeff := dot / sigma
			result = result.Add(vj.Mul(coeff))
		} else {
			coeff := initial.Dot(vj)
			result = result.Add(vj.Mul(coeff))
		}
	}
	return result
}

// Verify checks the watertightness contract: every undirected edge in
// the triangulation is shared by exactly two triangles, traversed in
// opposite directions.
func Verify(m *Mesh) error {
	defer telemetry.Track("mesher.Verify")()
	type dirEdge struct{ a, b int }
	count := make(map[[2]int]int)
	dirs := make(map[[2]int][]dirEdge)
	addEdge := func(a, b int) {
		key := [2]int{a, b}
		if a > b {
			key = [2]int{b, a}
		}
		count[key]++
		dirs[key] = append(dirs[key], dirEdge{a, b})
	}
	for _, t := range m.Triangles {
		addEdge(t.A, t.B)
		addEdge(t.B, t.C)
		addEdge(t.C, t.A)
	}
	for key, c := range count {
		if c != 2 {
			return fmt.Errorf("mesher: edge %v shared by %d triangles, want 2: %w", key, c, errs.ErrInconsistentTopology)
		}
		es := dirs[key]
		if es[0].a == es[1].a && es[0].b == es[1].b {
			return fmt.Errorf("mesher: edge %v wound the same direction twice: %w", key, errs.ErrInconsistentTopology)
		}
	}
	return nil
}
