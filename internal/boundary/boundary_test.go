package boundary

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"volcarve/internal/spatial"
	"volcarve/internal/topology"
	"volcarve/internal/voltree"
)

func TestExtractSingleLeafDomainBoundary(t *testing.T) {
	tree := voltree.NewTree(mgl64.Vec3{0, 0, 0}, 1, 2)
	tree.SetPayload(tree.Root(), &voltree.Payload{TotalWeight: 1, ProbSum: 1, ProbSumSq: 1, FPRoom: voltree.DefaultFPRoom})

	tp := topology.Build(tree)
	res := Extract(tree, tp, ALL)
	if len(res.Faces) != 6 {
		t.Fatalf("expected 6 boundary faces on a single interior leaf, got %d", len(res.Faces))
	}
	for _, f := range res.Faces {
		if f.Exterior != InvalidHandle {
			t.Fatalf("expected unbounded exterior sentinel, got %v", f.Exterior)
		}
		if got := f.Area(tree); got != 4 {
			t.Fatalf("expected area 4 for halfwidth-1 leaf, got %v", got)
		}
	}
}

func TestSchemePredicates(t *testing.T) {
	interiorByProb := &voltree.Payload{TotalWeight: 1, ProbSum: 1, ProbSumSq: 1, FPRoom: voltree.DefaultFPRoom}
	objectLeaf := &voltree.Payload{TotalWeight: 1, ProbSum: 0, ProbSumSq: 0, FPRoom: 3} // exterior by prob, room-associated
	floatingExterior := &voltree.Payload{TotalWeight: 1, ProbSum: 0, ProbSumSq: 0, FPRoom: voltree.DefaultFPRoom}

	if !ALL.IsInterior(interiorByProb) {
		t.Fatalf("ALL should treat a probability-interior leaf as interior")
	}
	if OBJECTS.IsInterior(objectLeaf) {
		t.Fatalf("OBJECTS should treat a probability-exterior leaf as exterior regardless of room")
	}
	if !ROOM.IsInterior(objectLeaf) {
		t.Fatalf("ROOM should fill in a room-associated object leaf as interior")
	}
	if ROOM.IsInterior(floatingExterior) {
		t.Fatalf("ROOM should leave a room-unassociated exterior leaf as exterior")
	}
}

func TestObjectFilterRecoversFixtureFaces(t *testing.T) {
	tree := voltree.NewTree(mgl64.Vec3{0, 0, 0}, 1, 2)
	tree.SetPayload(tree.Root(), &voltree.Payload{TotalWeight: 1, ProbSum: 0, ProbSumSq: 0, FPRoom: 1})
	tp := topology.Build(tree)

	res := Extract(tree, tp, ROOM)
	if len(res.Faces) != 6 {
		t.Fatalf("expected ROOM scheme to fill in the room-associated leaf, got %d faces", len(res.Faces))
	}
	fixtureFaces := ObjectFilter(tree, res)
	if len(fixtureFaces) != 6 {
		t.Fatalf("expected ObjectFilter to recover all 6 fixture faces, got %d", len(fixtureFaces))
	}

	// Under OBJECTS the same leaf is exterior, so there is nothing to
	// extract at all.
	objRes := Extract(tree, tp, OBJECTS)
	if len(objRes.Faces) != 0 {
		t.Fatalf("expected OBJECTS scheme to drop the room-associated fixture, got %d faces", len(objRes.Faces))
	}
}

func TestFacePositionOnDomainBoundaryFacePlane(t *testing.T) {
	tree := voltree.NewTree(mgl64.Vec3{0, 0, 0}, 2, 0.5)
	interior := tree.LeafAt(mgl64.Vec3{-1, 0, 0})
	_ = interior
	f := Face{Interior: tree.Root(), Exterior: InvalidHandle, Direction: spatial.PX}
	pos := f.Position(tree)
	if pos.X() != 2 {
		t.Fatalf("expected face position on the +x plane at x=2, got %v", pos.X())
	}
}
