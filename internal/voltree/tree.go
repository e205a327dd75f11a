package voltree

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"volcarve/internal/recon/errs"
	"volcarve/internal/spatial"
	"volcarve/internal/telemetry"
)

// MaxDomainHalfwidth bounds how large repeated domain growth may make the
// root cube before InsertPoint reports errs.ErrDomainTooLarge.
const MaxDomainHalfwidth = 1 << 30

// Tree is the adaptive octree store. It owns a root node, a target leaf
// resolution, and a derived max depth such that
// root_halfwidth / 2^max_depth <= resolution.
type Tree struct {
	arena      *arena
	root       NodeHandle
	resolution float64
	maxDepth   int
}

// NewTree creates an empty tree centered at center with the given initial
// halfwidth and target leaf resolution r.
func NewTree(center mgl64.Vec3, halfwidth, r float64) *Tree {
	a := newArena()
	root := a.alloc(node{
		center:    center,
		halfwidth: halfwidth,
		depth:     0,
		parent:    InvalidHandle,
		children:  [8]NodeHandle{InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle},
		payload:   NewPayload(),
	})
	t := &Tree{arena: a, root: root, resolution: r}
	t.recomputeMaxDepth()
	return t
}

func (t *Tree) recomputeMaxDepth() {
	hw := t.arena.get(t.root).halfwidth
	depth := 0
	for hw/math.Pow(2, float64(depth)) > t.resolution {
		depth++
		if depth > 48 {
			break
		}
	}
	t.maxDepth = depth
}

// SetResolution updates the target leaf resolution and re-derives MaxDepth.
// Existing leaves are not retroactively subdivided or merged.
func (t *Tree) SetResolution(r float64) {
	t.resolution = r
	t.recomputeMaxDepth()
}

// Resolution returns the configured target leaf resolution.
func (t *Tree) Resolution() float64 { return t.resolution }

// MaxDepth returns the derived maximum subdivision depth.
func (t *Tree) MaxDepth() int { return t.maxDepth }

// Root returns the handle of the current root node.
func (t *Tree) Root() NodeHandle { return t.root }

// Center returns the world-space center of a node.
func (t *Tree) Center(h NodeHandle) mgl64.Vec3 { return t.arena.get(h).center }

// Halfwidth returns the halfwidth of a node.
func (t *Tree) Halfwidth(h NodeHandle) float64 { return t.arena.get(h).halfwidth }

// Depth returns the subdivision depth of a node (root is depth 0).
func (t *Tree) Depth(h NodeHandle) int { return t.arena.get(h).depth }

// Parent returns the parent handle of a node, or InvalidHandle for the root.
func (t *Tree) Parent(h NodeHandle) NodeHandle { return t.arena.get(h).parent }

// Child returns the handle of the i-th child (0..7) of a node, or
// InvalidHandle if the node is a leaf.
func (t *Tree) Child(h NodeHandle, i int) NodeHandle { return t.arena.get(h).children[i] }

// IsLeaf reports whether a node has no children.
func (t *Tree) IsLeaf(h NodeHandle) bool { return t.arena.get(h).isLeaf() }

// Payload returns the payload of a leaf node, or nil for internal nodes. A
// leaf with no accumulated samples carries either nil or a zeroed payload.
func (t *Tree) Payload(h NodeHandle) *Payload { return t.arena.get(h).payload }

// SetPayload replaces the payload of a leaf node.
func (t *Tree) SetPayload(h NodeHandle, p *Payload) { t.arena.get(h).payload = p }

// Walk calls fn for every leaf node in the tree.
func (t *Tree) Walk(fn func(h NodeHandle)) {
	var rec func(h NodeHandle)
	rec = func(h NodeHandle) {
		n := t.arena.get(h)
		if n.isLeaf() {
			fn(h)
			return
		}
		for _, c := range n.children {
			rec(c)
		}
	}
	rec(t.root)
}

// WalkAll calls fn for every node (leaf and internal) in the tree.
func (t *Tree) WalkAll(fn func(h NodeHandle)) {
	for h := range t.arena.nodes {
		fn(NodeHandle(h))
	}
}

// NodeCount returns the total number of allocated nodes (leaf + internal).
func (t *Tree) NodeCount() int { return len(t.arena.nodes) }

// InsertPoint grows the tree's domain, if needed, so that p falls within
// the root cube. Growth preserves all existing payloads.
func (t *Tree) InsertPoint(p mgl64.Vec3) error {
	defer telemetry.Track("voltree.InsertPoint")()
	for !t.contains(t.root, p) {
		root := t.arena.get(t.root)
		if root.halfwidth*2 > MaxDomainHalfwidth {
			return errs.ErrDomainTooLarge
		}
		if err := t.growRoot(p); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) contains(h NodeHandle, p mgl64.Vec3) bool {
	n := t.arena.get(h)
	return math.Abs(p.X()-n.center.X()) <= n.halfwidth &&
		math.Abs(p.Y()-n.center.Y()) <= n.halfwidth &&
		math.Abs(p.Z()-n.center.Z()) <= n.halfwidth
}

// growRoot doubles the domain by creating a new root of double halfwidth
// that contains the old root as one of its children, chosen by the sign
// vector of (old_center - new_center).
func (t *Tree) growRoot(p mgl64.Vec3) error {
	old := t.arena.get(t.root)
	newHW := old.halfwidth * 2

	// Choose the new center so the old root sits at the correct octant and
	// the domain grows toward p.
	signX, signY, signZ := 1.0, 1.0, 1.0
	if p.X() < old.center.X() {
		signX = -1
	}
	if p.Y() < old.center.Y() {
		signY = -1
	}
	if p.Z() < old.center.Z() {
		signZ = -1
	}
	newCenter := mgl64.Vec3{
		old.center.X() + signX*old.halfwidth,
		old.center.Y() + signY*old.halfwidth,
		old.center.Z() + signZ*old.halfwidth,
	}

	newRoot := node{
		center:    newCenter,
		halfwidth: newHW,
		depth:     0,
		parent:    InvalidHandle,
		children:  [8]NodeHandle{InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle},
	}
	oldOctant := spatial.Octant(newCenter, old.center)
	newRootHandle := t.arena.alloc(newRoot)

	// Fill the new root's other seven octants with empty leaves the size
	// of the old root, so every internal node has all eight children.
	var children [8]NodeHandle
	for i := 0; i < 8; i++ {
		if i == oldOctant {
			continue
		}
		off := spatial.ChildOffset[i]
		children[i] = t.arena.alloc(node{
			center:    newCenter.Add(off.Mul(newHW / 2)),
			halfwidth: newHW / 2,
			depth:     1,
			parent:    newRootHandle,
			children:  [8]NodeHandle{InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle},
			payload:   NewPayload(),
		})
	}

	// Re-parent the old root under the new root, and bump every
	// descendant's depth by one. Re-fetch old: alloc above may have grown
	// the arena's backing slice and invalidated the earlier pointer.
	t.bumpDepth(t.root, 1)
	old = t.arena.get(t.root)
	old.parent = newRootHandle
	children[oldOctant] = t.root
	t.arena.get(newRootHandle).children = children
	t.root = newRootHandle
	t.recomputeMaxDepth()
	return nil
}

func (t *Tree) bumpDepth(h NodeHandle, delta int) {
	n := t.arena.get(h)
	n.depth += delta
	if n.isLeaf() {
		return
	}
	for _, c := range n.children {
		t.bumpDepth(c, delta)
	}
}

// LeafAt walks the tree top-down and returns the handle of the leaf
// containing p. p must lie within the root domain (call InsertPoint first
// if it might not).
func (t *Tree) LeafAt(p mgl64.Vec3) NodeHandle {
	h := t.root
	for {
		n := t.arena.get(h)
		if n.isLeaf() {
			return h
		}
		oc := spatial.Octant(n.center, p)
		h = n.children[oc]
	}
}

// subdivide allocates eight children of halved halfwidth for the leaf at h,
// distributes the parent's payload (divided by 8) to each child, and
// clears the parent's own payload. Returns the handles of the new
// children in canonical octant order.
func (t *Tree) subdivide(h NodeHandle) [8]NodeHandle {
	n := t.arena.get(h)
	childHW := n.halfwidth / 2
	childDepth := n.depth + 1
	parentPayload := n.payload

	var childPayload *Payload
	if parentPayload != nil {
		childPayload = SubdividePayload(parentPayload, 8)
	}

	var out [8]NodeHandle
	for i := 0; i < 8; i++ {
		off := spatial.ChildOffset[i]
		center := mgl64.Vec3{
			n.center.X() + off.X()*childHW,
			n.center.Y() + off.Y()*childHW,
			n.center.Z() + off.Z()*childHW,
		}
		var p *Payload
		if childPayload != nil {
			cp := *childPayload
			p = &cp
		}
		ch := t.arena.alloc(node{
			center:    center,
			halfwidth: childHW,
			depth:     childDepth,
			parent:    h,
			children:  [8]NodeHandle{InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle},
			payload:   p,
		})
		out[i] = ch
	}
	// Re-fetch n: arena.alloc may have grown the backing slice and
	// invalidated the earlier pointer.
	n = t.arena.get(h)
	n.children = out
	n.payload = nil
	return out
}

// Clone returns a deep copy of the tree (arena + payloads); handles remain
// valid and numerically identical in the clone.
func (t *Tree) Clone() *Tree {
	return &Tree{
		arena:      t.arena.clone(),
		root:       t.root,
		resolution: t.resolution,
		maxDepth:   t.maxDepth,
	}
}
