package voltree

// MergeFrom folds every leaf payload of src into dst, subdividing dst where
// src is finer and spreading src's payload down dst's finer leaves where
// src is coarser; src itself is not modified. src and dst must share
// the same root geometry (typically: src was Clone()d from dst, or both
// were grown from a common ancestor). This is what lets concurrent carve
// workers each own a private clone and fold results back afterward while
// still honoring the commutative payload-merge law.
func (dst *Tree) MergeFrom(src *Tree) {
	mergeNode(dst, dst.root, src, src.root)
	if src.maxDepth > dst.maxDepth {
		dst.maxDepth = src.maxDepth
	}
}

func mergeNode(dst *Tree, dh NodeHandle, src *Tree, sh NodeHandle) {
	dn := dst.arena.get(dh)
	sn := src.arena.get(sh)

	switch {
	case dn.isLeaf() && sn.isLeaf():
		dn.payload = MergePayload(dn.payload, sn.payload)

	case dn.isLeaf() && !sn.isLeaf():
		// dst is coarser here: subdivide it to match src's structure,
		// then recurse child-by-child (octant ordering guarantees
		// geometric correspondence).
		children := dst.subdivide(dh)
		for i, c := range children {
			mergeNode(dst, c, src, sn.children[i])
		}

	case !dn.isLeaf() && sn.isLeaf():
		// src is coarser: distribute its single payload across dst's
		// existing finer structure the same way subdivide() would have,
		// recursively, so a leaf two levels down receives payload/ (8*8).
		pushCoarsePayload(dst, dh, sn.payload)

	default:
		for i, dc := range dn.children {
			mergeNode(dst, dc, src, sn.children[i])
		}
	}
}

// pushCoarsePayload merges a single coarse payload into every leaf under
// h, dividing it by the branching factor at each level so the total
// contributed weight matches what a literal subdivide-then-merge would
// have produced.
func pushCoarsePayload(dst *Tree, h NodeHandle, payload *Payload) {
	n := dst.arena.get(h)
	if n.isLeaf() {
		n.payload = MergePayload(n.payload, payload)
		return
	}
	share := SubdividePayload(payload, 8)
	for _, c := range n.children {
		pushCoarsePayload(dst, c, share)
	}
}
