package topology

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"volcarve/internal/spatial"
	"volcarve/internal/voltree"
)

func subdividedTree(t *testing.T) *voltree.Tree {
	t.Helper()
	tree := voltree.NewTree(mgl64.Vec3{0, 0, 0}, 1, 0.3)
	_, err := tree.InsertShape(voltree.NewWedgeShape(
		mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{1, 0, 0}, 1, 0.2, 0, 0, 0,
	))
	if err != nil {
		t.Fatalf("InsertShape: %v", err)
	}
	return tree
}

func TestBuildSymmetric(t *testing.T) {
	tree := subdividedTree(t)
	tp := Build(tree)
	if err := tp.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	var leaves []voltree.NodeHandle
	tree.Walk(func(h voltree.NodeHandle) { leaves = append(leaves, h) })
	for _, h := range leaves {
		for _, f := range spatial.Faces {
			for _, n := range tp.Neighbors(h, f) {
				if !tp.AreNeighbors(n, h) {
					t.Fatalf("neighbor relation not symmetric: %d -%v-> %d", h, f, n)
				}
			}
		}
	}
}

func TestNeighborsEmptyOnSingleLeafTree(t *testing.T) {
	tree := voltree.NewTree(mgl64.Vec3{0, 0, 0}, 1, 0.4)
	a := tree.LeafAt(mgl64.Vec3{0.5, 0.5, 0.5})
	_ = a
	tp := Build(tree)
	if err := tp.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	// Single-leaf domain: no neighbors at all, since there is nothing
	// beyond the root's own boundary.
	for _, f := range spatial.Faces {
		if got := tp.Neighbors(tree.Root(), f); len(got) != 0 {
			t.Fatalf("expected no neighbors on a single-leaf tree, got %v on face %v", got, f)
		}
	}
}

func TestRemoveOutliersFlipsIsolatedVoxel(t *testing.T) {
	// maxDepth works out to 1: a single subdivision gives an 8-leaf grid.
	tree := voltree.NewTree(mgl64.Vec3{0, 0, 0}, 4, 3)
	// The wedge's AABB (endpoints plus spread) stays within the root's
	// [-4,4] cube, so the domain does not grow.
	wedge := voltree.NewWedgeShape(mgl64.Vec3{-3.9, -3.9, -3.9}, mgl64.Vec3{3.9, 3.9, 3.9}, 1, 0.1, 0, 0, 0)
	if _, err := tree.InsertShape(wedge); err != nil {
		t.Fatalf("InsertShape: %v", err)
	}

	var leaves []voltree.NodeHandle
	tree.Walk(func(h voltree.NodeHandle) { leaves = append(leaves, h) })
	if len(leaves) != 8 {
		t.Fatalf("expected 8 leaves after one subdivision, got %d", len(leaves))
	}
	// Overwrite every leaf to a known, unambiguous interior state, then
	// make one leaf an isolated exterior outlier surrounded by interior.
	for _, h := range leaves {
		tree.SetPayload(h, &voltree.Payload{TotalWeight: 1, ProbSum: 1, ProbSumSq: 1, FPRoom: voltree.DefaultFPRoom})
	}
	outlier := leaves[0]
	tree.SetPayload(outlier, &voltree.Payload{TotalWeight: 1, ProbSum: 0, ProbSumSq: 0, FPRoom: voltree.DefaultFPRoom})

	tp := Build(tree)
	if err := tp.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := tp.RemoveOutliers(0.51); err != nil {
		t.Fatalf("RemoveOutliers: %v", err)
	}
	if !tree.Payload(outlier).Interior() {
		t.Fatalf("expected isolated outlier to be flipped back to interior")
	}
}

func TestRemoveOutliersRejectsBadThreshold(t *testing.T) {
	tree := voltree.NewTree(mgl64.Vec3{0, 0, 0}, 1, 0.5)
	tp := Build(tree)
	for _, bad := range []float64{0, 0.5, 1.5} {
		if err := tp.RemoveOutliers(bad); err == nil {
			t.Fatalf("expected error for threshold %v", bad)
		}
	}
}
