package mesher

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"volcarve/internal/boundary"
	"volcarve/internal/corner"
	"volcarve/internal/region"
	"volcarve/internal/topology"
	"volcarve/internal/voltree"
)

func cubePipeline(t *testing.T) (*voltree.Tree, boundary.Result, *corner.Map, []*region.Region) {
	t.Helper()
	tree := voltree.NewTree(mgl64.Vec3{0, 0, 0}, 1, 2)
	tree.SetPayload(tree.Root(), &voltree.Payload{TotalWeight: 1, ProbSum: 1, ProbSumSq: 1, FPRoom: voltree.DefaultFPRoom})
	tp := topology.Build(tree)
	res := boundary.Extract(tree, tp, boundary.ALL)

	cmap := corner.NewMap(1e-6)
	cmap.Add(tree, res)
	cmap.PopulateEdges(tree, res)

	regions := region.Build(tree, res, region.Config{PlaneThreshold: 0.5, DistanceThreshold: 0, PlanarityScale: 1})
	return tree, res, cmap, regions
}

func TestBuildProducesWatertightCube(t *testing.T) {
	tree, res, cmap, regions := cubePipeline(t)

	mesh, err := Build(tree, res, cmap, regions, Config{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(mesh.Vertices) != 8 {
		t.Fatalf("expected 8 vertices on a unit cube, got %d", len(mesh.Vertices))
	}
	if len(mesh.Triangles) != 12 {
		t.Fatalf("expected 12 triangles (2 per face * 6 faces), got %d", len(mesh.Triangles))
	}
	if err := Verify(mesh); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestSnapVertexSingleRegionProjectsOntoPlane(t *testing.T) {
	plane := region.Plane{Point: mgl64.Vec3{0, 0, 5}, Normal: mgl64.Vec3{0, 0, 1}}
	initial := mgl64.Vec3{3, 4, 0}
	got := snapVertex([]region.Plane{plane}, initial, 1e-3)

	if got.Z() != 5 {
		t.Fatalf("expected z snapped to the plane at 5, got %v", got.Z())
	}
	if got.X() != 3 || got.Y() != 4 {
		t.Fatalf("expected x,y preserved at (3,4), got (%v,%v)", got.X(), got.Y())
	}
}

func TestSnapVertexTwoOrthogonalPlanesSnapsToLine(t *testing.T) {
	planes := []region.Plane{
		{Point: mgl64.Vec3{2, 0, 0}, Normal: mgl64.Vec3{1, 0, 0}},
		{Point: mgl64.Vec3{0, 3, 0}, Normal: mgl64.Vec3{0, 1, 0}},
	}
	initial := mgl64.Vec3{0, 0, 9}
	got := snapVertex(planes, initial, 1e-3)

	if got.X() != 2 || got.Y() != 3 {
		t.Fatalf("expected snap to intersection line x=2,y=3, got (%v,%v)", got.X(), got.Y())
	}
	if got.Z() != 9 {
		t.Fatalf("expected z preserved along the unconstrained line direction, got %v", got.Z())
	}
}
