package corner

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"volcarve/internal/boundary"
	"volcarve/internal/topology"
	"volcarve/internal/voltree"
)

func TestAddAndFacesFor(t *testing.T) {
	tree := voltree.NewTree(mgl64.Vec3{0, 0, 0}, 1, 2)
	tree.SetPayload(tree.Root(), &voltree.Payload{TotalWeight: 1, ProbSum: 1, ProbSumSq: 1, FPRoom: voltree.DefaultFPRoom})
	tp := topology.Build(tree)
	res := boundary.Extract(tree, tp, boundary.ALL)

	m := NewMap(1e-6)
	m.Add(tree, res)
	m.PopulateEdges(tree, res)

	if len(m.Keys()) == 0 {
		t.Fatalf("expected at least one corner key")
	}
	// The cube's 8 corners should each be incident on exactly 3 boundary
	// faces (one per axis-aligned face meeting there).
	for _, k := range m.Keys() {
		faces := m.FacesForKey(k)
		if len(faces) != 3 {
			t.Fatalf("expected 3 incident faces per cube corner, got %d", len(faces))
		}
	}
	if len(m.Keys()) != 8 {
		t.Fatalf("expected 8 distinct corners on a single cube, got %d", len(m.Keys()))
	}
}

func TestPositionRoundTrips(t *testing.T) {
	tree := voltree.NewTree(mgl64.Vec3{0, 0, 0}, 1, 2)
	tree.SetPayload(tree.Root(), &voltree.Payload{TotalWeight: 1, ProbSum: 1, ProbSumSq: 1, FPRoom: voltree.DefaultFPRoom})
	tp := topology.Build(tree)
	res := boundary.Extract(tree, tp, boundary.ALL)

	m := NewMap(1e-6)
	m.Add(tree, res)

	want := mgl64.Vec3{1, 1, 1}
	key := m.KeyOf(want)
	got, ok := m.Position(key)
	if !ok {
		t.Fatalf("expected corner %v to be registered", want)
	}
	if got.Sub(want).Len() > 1e-9 {
		t.Fatalf("expected position %v, got %v", want, got)
	}
}
