package voltree

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-gl/mathgl/mgl64"
)

// collectLeafPayloads snapshots every leaf's payload keyed by its center, so
// two trees with different arena layouts (e.g. original vs. round-tripped)
// can still be compared structurally.
func collectLeafPayloads(t *Tree) map[mgl64.Vec3]Payload {
	out := make(map[mgl64.Vec3]Payload)
	t.Walk(func(h NodeHandle) {
		p := t.Payload(h)
		if p == nil {
			out[t.Center(h)] = Payload{FPRoom: DefaultFPRoom}
			return
		}
		out[t.Center(h)] = *p
	})
	return out
}

func TestSerializeParseRoundTrips(t *testing.T) {
	tree := NewTree(mgl64.Vec3{0, 0, 0}, 8, 0.5)
	shape := NewLineSegmentShape(mgl64.Vec3{-4, 0, 0}, mgl64.Vec3{4, 0, 0}, 1, 0.3, 0.4, 0.5)
	if _, err := tree.InsertShape(shape); err != nil {
		t.Fatalf("InsertShape: %v", err)
	}
	poly := &ExtrudedPolygonShape{
		Vertices: []mgl64.Vec2{{-2, -2}, {2, -2}, {2, 2}, {-2, 2}},
		FloorY:   -1, CeilingY: 1, RoomIndex: 4,
	}
	if _, err := tree.InsertShape(poly); err != nil {
		t.Fatalf("InsertShape(polygon): %v", err)
	}

	var buf bytes.Buffer
	if err := tree.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	parsed, err := ParseTree(&buf)
	if err != nil {
		t.Fatalf("ParseTree: %v", err)
	}

	want := collectLeafPayloads(tree)
	got := collectLeafPayloads(parsed)
	if len(want) != len(got) {
		t.Fatalf("leaf count mismatch after round-trip: want %d got %d\nwant=%s\ngot=%s",
			len(want), len(got), spew.Sdump(want), spew.Sdump(got))
	}
	for center, wp := range want {
		gp, ok := got[center]
		if !ok {
			t.Fatalf("leaf at %v missing after round-trip\nwant=%s\ngot=%s", center, spew.Sdump(wp), spew.Sdump(got))
		}
		if wp != gp {
			t.Fatalf("payload mismatch at %v after round-trip:\nwant=%s\ngot=%s", center, spew.Sdump(wp), spew.Sdump(gp))
		}
	}
}

func TestParseTreeAppliesVersionDefaultsToLegacyStream(t *testing.T) {
	// Hand-build a v1 payload (no surface/corner/planar/fp_room/is_carved
	// fields) to confirm the parser fills the documented defaults rather
	// than erroring or zeroing probability (spec §6).
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := writeFloat64(bw, 1.0); err != nil {
		t.Fatalf("writeFloat64: %v", err)
	}
	if err := writeVec3(bw, mgl64.Vec3{0, 0, 0}); err != nil {
		t.Fatalf("writeVec3: %v", err)
	}
	if err := writeFloat64(bw, 4.0); err != nil {
		t.Fatalf("writeFloat64: %v", err)
	}
	// root: not a leaf-with-children marker pair (hasChildren=false, hasPayload=true)
	if err := writeBool(bw, false); err != nil {
		t.Fatalf("writeBool: %v", err)
	}
	if err := writeBool(bw, true); err != nil {
		t.Fatalf("writeBool: %v", err)
	}
	if err := bw.WriteByte(1); err != nil { // version 1
		t.Fatalf("WriteByte: %v", err)
	}
	for _, f := range []float64{3, 2, 1.5, 1.0} {
		if err := writeFloat64(bw, f); err != nil {
			t.Fatalf("writeFloat64: %v", err)
		}
	}
	if err := bw.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	parsed, err := ParseTree(&buf)
	if err != nil {
		t.Fatalf("ParseTree: %v", err)
	}
	p := parsed.Payload(parsed.Root())
	if p == nil {
		t.Fatalf("expected a payload on the parsed root")
	}
	if p.FPRoom != DefaultFPRoom {
		t.Fatalf("expected legacy fp_room default -1, got %d", p.FPRoom)
	}
	if p.IsCarved {
		t.Fatalf("expected legacy is_carved default false")
	}
	if p.SurfaceSum != 0 || p.CornerSum != 0 || p.PlanarSum != 0 {
		t.Fatalf("expected legacy prior sums to default to 0, got surface=%v corner=%v planar=%v", p.SurfaceSum, p.CornerSum, p.PlanarSum)
	}
}
