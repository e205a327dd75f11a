// Package recon is the reconstruction pipeline facade: it wires the
// octree through shape carving, topology, boundary extraction, the
// corner map, region coalescence, and the mesher into one ordered
// sequence of calls.
package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"volcarve/internal/boundary"
	"volcarve/internal/corner"
	"volcarve/internal/mesher"
	"volcarve/internal/recon/errs"
	"volcarve/internal/region"
	"volcarve/internal/topology"
	"volcarve/internal/voltree"
)

// Config is the plain, freely-copyable pipeline configuration record
// (JSON-decodable directly via DecodeOptions).
type Config struct {
	RootHalfwidth    float64         `json:"root_halfwidth"`
	Resolution       float64         `json:"resolution"`
	Scheme           boundary.Scheme `json:"scheme"`
	OutlierThreshold float64         `json:"outlier_threshold"`
	Region           region.Config   `json:"region"`
	Mesh             mesher.Config   `json:"mesh"`
}

// DefaultConfig returns a conservative starting configuration.
func DefaultConfig() Config {
	return Config{
		RootHalfwidth:    8,
		Resolution:       0.05,
		Scheme:           boundary.ALL,
		OutlierThreshold: 0.75,
		Region: region.Config{
			PlaneThreshold:    0.8,
			DistanceThreshold: 2.0,
			PlanarityScale:    1.0,
		},
		Mesh: mesher.Config{MinSingularValueFrac: 0.1},
	}
}

// Options is a mutex-guarded, clamped-setter wrapper around Config:
// values are clamped to their valid range on Set rather than rejected,
// since every field here has a sane fallback and a hard reject would
// just push the clamping logic onto every caller. Options is never
// copied after construction; callers share one *Options and read a
// Config snapshot via Get.
type Options struct {
	mu  sync.RWMutex
	cfg Config
}

// DefaultOptions wraps DefaultConfig in a fresh Options.
func DefaultOptions() *Options {
	return &Options{cfg: DefaultConfig()}
}

// NewOptions wraps an arbitrary starting Config (e.g. one loaded via
// DecodeOptions) in a fresh Options.
func NewOptions(cfg Config) *Options {
	return &Options{cfg: cfg}
}

// Get returns a copy of the current configuration, safe for concurrent
// callers.
func (o *Options) Get() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// SetResolution clamps r to a positive value and updates the target leaf
// resolution.
func (o *Options) SetResolution(r float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r <= 0 {
		r = 0.01
	}
	o.cfg.Resolution = r
}

// SetOutlierThreshold clamps threshold to topology.RemoveOutliers' valid
// range (0.5, 1].
func (o *Options) SetOutlierThreshold(threshold float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case threshold <= 0.5:
		threshold = 0.51
	case threshold > 1:
		threshold = 1
	}
	o.cfg.OutlierThreshold = threshold
}

// DecodeOptions strict-decodes JSON configuration, rejecting any field
// that doesn't match Config's schema rather than silently ignoring it.
func DecodeOptions(r io.Reader) (Config, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("recon: decoding options: %w: %v", errs.ErrInvalidInput, err)
	}
	return cfg, nil
}

// Pipeline carries one reconstruction run's state from the first carved
// ray to the final mesh.
type Pipeline struct {
	cfg  Config
	tree *voltree.Tree

	tp      *topology.Topology
	bound   boundary.Result
	cmap    *corner.Map
	regions []*region.Region
	mesh    *mesher.Mesh
}

// New creates a pipeline with a fresh, empty octree sized per cfg.
func New(cfg Config) *Pipeline {
	center := mgl64.Vec3{0, 0, 0}
	hw := cfg.RootHalfwidth
	if hw <= 0 {
		hw = 8
	}
	res := cfg.Resolution
	if res <= 0 {
		res = 0.05
	}
	return &Pipeline{
		cfg:  cfg,
		tree: voltree.NewTree(center, hw, res),
	}
}

// Tree exposes the underlying octree for direct inspection or testing.
func (p *Pipeline) Tree() *voltree.Tree { return p.tree }

// CarveRay folds a single weighted line-segment sample into the tree,
// the per-sample entry point for a pull-style external ray stream.
func (p *Pipeline) CarveRay(s voltree.RaySample) error {
	if s.Weight <= 0 {
		return fmt.Errorf("recon: zero or negative ray weight: %w", errs.ErrInvalidInput)
	}
	start := mgl64.Vec3{s.Start[0], s.Start[1], s.Start[2]}
	end := mgl64.Vec3{s.End[0], s.End[1], s.End[2]}
	if start == end {
		return fmt.Errorf("recon: degenerate ray segment: %w", errs.ErrInvalidInput)
	}
	shape := voltree.NewLineSegmentShape(start, end, s.Weight, s.SurfacePrior, s.PlanarPrior, s.CornerPrior)
	if _, err := p.tree.InsertShape(shape); err != nil {
		return fmt.Errorf("recon: carving ray: %w", err)
	}
	return nil
}

// CarveRays drains a ray stream through the carving engine, reporting a
// summary rather than aborting on the first bad sample.
func (p *Pipeline) CarveRays(it voltree.RayIterator) voltree.CarveSummary {
	return voltree.CarveRays(p.tree, it)
}

// CarveRaysConcurrent drains jobs across n worker goroutines, each
// carving into a private tree clone, folding results back via
// Tree.MergeFrom.
func (p *Pipeline) CarveRaysConcurrent(ctx context.Context, n int, jobs []voltree.CarveJob) voltree.CarveSummary {
	pool := voltree.NewCarvePool(ctx, p.tree, n)
	defer pool.Shutdown()
	return pool.RunAndMerge(p.tree, jobs)
}

// CarveShape folds an arbitrary shape (a floorplan polygon, a bounding
// box, a plane) directly into the tree.
func (p *Pipeline) CarveShape(shape voltree.Shape) ([]voltree.NodeHandle, error) {
	affected, err := p.tree.InsertShape(shape)
	if err != nil {
		return nil, fmt.Errorf("recon: carving shape: %w", err)
	}
	return affected, nil
}

// Build runs topology construction, outlier removal, boundary extraction
// under the configured scheme, corner mapping, and region formation plus
// coalescence. Call after all carving is done and before Mesh.
func (p *Pipeline) Build(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("recon: build cancelled: %w", errs.ErrCancelled)
	default:
	}

	p.tp = topology.Build(p.tree)
	if err := p.tp.Verify(); err != nil {
		return fmt.Errorf("recon: topology verification: %w", err)
	}
	if threshold := p.cfg.OutlierThreshold; threshold > 0 {
		if err := p.tp.RemoveOutliers(threshold); err != nil {
			return fmt.Errorf("recon: outlier removal: %w", err)
		}
	}

	p.bound = boundary.Extract(p.tree, p.tp, p.cfg.Scheme)

	p.cmap = corner.NewMap(corner.DefaultEpsilon)
	p.cmap.Add(p.tree, p.bound)
	p.cmap.PopulateEdges(p.tree, p.bound)

	seeded := region.Build(p.tree, p.bound, p.cfg.Region)
	p.regions = region.Coalesce(p.tree, p.bound, seeded, p.cfg.Region)
	return nil
}

// Mesh runs the mesher over the built regions and returns the final
// triangulated surface. Build must have succeeded first.
func (p *Pipeline) Mesh() (*mesher.Mesh, error) {
	if p.regions == nil {
		return nil, fmt.Errorf("recon: Mesh called before Build: %w", errs.ErrInvalidInput)
	}
	m, err := mesher.Build(p.tree, p.bound, p.cmap, p.regions, p.cfg.Mesh)
	if err != nil {
		return nil, fmt.Errorf("recon: meshing: %w", err)
	}
	if err := mesher.Verify(m); err != nil {
		return nil, fmt.Errorf("recon: mesh watertightness: %w", err)
	}
	p.mesh = m
	return m, nil
}

// Regions exposes the coalesced region set built by Build, for callers
// that want per-region metadata (plane, face membership) alongside the
// final mesh.
func (p *Pipeline) Regions() []*region.Region { return p.regions }

// Boundary exposes the boundary extraction result built by Build.
func (p *Pipeline) Boundary() boundary.Result { return p.bound }

// Serialize writes the underlying octree to w. The tree is the only
// state a pipeline needs to resume carving or re-run Build/Mesh with
// different options.
func (p *Pipeline) Serialize(w io.Writer) error {
	if err := p.tree.Serialize(w); err != nil {
		return fmt.Errorf("recon: serializing tree: %w", err)
	}
	return nil
}

// Load replaces the pipeline's tree with one parsed from r, discarding
// any previously built topology/boundary/region/mesh state.
func (p *Pipeline) Load(r io.Reader) error {
	tree, err := voltree.ParseTree(r)
	if err != nil {
		return fmt.Errorf("recon: loading tree: %w", err)
	}
	p.tree = tree
	p.tp = nil
	p.bound = boundary.Result{}
	p.cmap = nil
	p.regions = nil
	p.mesh = nil
	return nil
}
