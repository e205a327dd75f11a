package recon

import (
	"context"
	"strings"
	"testing"

	"volcarve/internal/boundary"
	"volcarve/internal/mesher"
	"volcarve/internal/voltree"
)

func cubeConfig() Config {
	cfg := DefaultConfig()
	cfg.RootHalfwidth = 1
	cfg.Resolution = 2 // coarser than halfwidth -> maxDepth 0, single leaf
	return cfg
}

func TestPipelineEndToEndSingleCube(t *testing.T) {
	p := New(cubeConfig())
	p.Tree().SetPayload(p.Tree().Root(), &voltree.Payload{TotalWeight: 1, ProbSum: 1, ProbSumSq: 1, FPRoom: voltree.DefaultFPRoom})

	if err := p.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	mesh, err := p.Mesh()
	if err != nil {
		t.Fatalf("Mesh: %v", err)
	}
	if len(mesh.Vertices) != 8 || len(mesh.Triangles) != 12 {
		t.Fatalf("expected an 8-vertex/12-triangle cube, got %d vertices, %d triangles", len(mesh.Vertices), len(mesh.Triangles))
	}
	if err := mesher.Verify(mesh); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestPipelineCarveRayRejectsDegenerateAndZeroWeight(t *testing.T) {
	p := New(DefaultConfig())
	if err := p.CarveRay(voltree.RaySample{Start: [3]float64{0, 0, 0}, End: [3]float64{0, 0, 0}, Weight: 1}); err == nil {
		t.Fatalf("expected degenerate segment to be rejected")
	}
	if err := p.CarveRay(voltree.RaySample{Start: [3]float64{0, 0, 0}, End: [3]float64{1, 0, 0}, Weight: 0}); err == nil {
		t.Fatalf("expected zero-weight ray to be rejected")
	}
}

func TestMeshBeforeBuildErrors(t *testing.T) {
	p := New(DefaultConfig())
	if _, err := p.Mesh(); err == nil {
		t.Fatalf("expected Mesh to error before Build")
	}
}

func TestDecodeOptionsRejectsUnknownFields(t *testing.T) {
	_, err := DecodeOptions(strings.NewReader(`{"resolution": 0.1, "bogus_field": true}`))
	if err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestDecodeOptionsAcceptsKnownFields(t *testing.T) {
	cfg, err := DecodeOptions(strings.NewReader(`{"resolution": 0.1, "scheme": 0, "root_halfwidth": 4}`))
	if err != nil {
		t.Fatalf("DecodeOptions: %v", err)
	}
	if cfg.Resolution != 0.1 || cfg.RootHalfwidth != 4 || cfg.Scheme != boundary.ALL {
		t.Fatalf("unexpected decoded config: %+v", cfg)
	}
}

func TestSetOutlierThresholdClamps(t *testing.T) {
	o := DefaultOptions()
	o.SetOutlierThreshold(0)
	if o.Get().OutlierThreshold <= 0.5 {
		t.Fatalf("expected threshold clamped above 0.5, got %v", o.Get().OutlierThreshold)
	}
	o.SetOutlierThreshold(5)
	if o.Get().OutlierThreshold != 1 {
		t.Fatalf("expected threshold clamped to 1, got %v", o.Get().OutlierThreshold)
	}
}
