// Package spatial holds the octant/face/corner ordering tables shared by
// every layer that walks the octree: voltree (subdivision), topology
// (face adjacency), boundary (face enumeration), corner (corner keys),
// and region (face normals). Keeping one canonical ordering here is
// what makes the cross-package "axis distance == sum of halfwidths"
// invariant checkable without every package re-deriving it.
package spatial

import "github.com/go-gl/mathgl/mgl64"

// Face identifies one of the six axis-aligned faces of a cube node.
type Face int

const (
	PX Face = iota // +x
	NX              // -x
	PY              // +y
	NY              // -y
	PZ              // +z
	NZ              // -z
)

// Faces lists all six faces in a fixed, iterable order.
var Faces = [6]Face{PX, NX, PY, NY, PZ, NZ}

// Opposite returns the face on the other side of the same axis.
func Opposite(f Face) Face {
	switch f {
	case PX:
		return NX
	case NX:
		return PX
	case PY:
		return NY
	case NY:
		return PY
	case PZ:
		return NZ
	case NZ:
		return PZ
	}
	panic("spatial: invalid face")
}

// Normal returns the outward unit normal for a face.
func Normal(f Face) mgl64.Vec3 {
	switch f {
	case PX:
		return mgl64.Vec3{1, 0, 0}
	case NX:
		return mgl64.Vec3{-1, 0, 0}
	case PY:
		return mgl64.Vec3{0, 1, 0}
	case NY:
		return mgl64.Vec3{0, -1, 0}
	case PZ:
		return mgl64.Vec3{0, 0, 1}
	case NZ:
		return mgl64.Vec3{0, 0, -1}
	}
	panic("spatial: invalid face")
}

// Axis returns the coordinate index (0=x,1=y,2=z) a face is perpendicular to.
func Axis(f Face) int {
	switch f {
	case PX, NX:
		return 0
	case PY, NY:
		return 1
	default:
		return 2
	}
}

// Sign returns +1 for the positive-direction faces and -1 for the negative ones.
func Sign(f Face) float64 {
	switch f {
	case PX, PY, PZ:
		return 1
	default:
		return -1
	}
}

// ChildOffset is the canonical octant ordering used throughout the tree:
//
//	0: +x+y+z   1: -x+y+z   2: -x-y+z   3: +x-y+z
//	4: +x+y-z   5: -x+y-z   6: -x-y-z   7: +x-y-z
//
// Each entry is the sign vector of (child center - parent center).
var ChildOffset = [8]mgl64.Vec3{
	{1, 1, 1},
	{-1, 1, 1},
	{-1, -1, 1},
	{1, -1, 1},
	{1, 1, -1},
	{-1, 1, -1},
	{-1, -1, -1},
	{1, -1, -1},
}

// Octant returns the child index whose octant contains p, relative to center.
func Octant(center, p mgl64.Vec3) int {
	sx, sy, sz := p.X() >= center.X(), p.Y() >= center.Y(), p.Z() >= center.Z()
	for i, off := range ChildOffset {
		if (off.X() > 0) == sx && (off.Y() > 0) == sy && (off.Z() > 0) == sz {
			return i
		}
	}
	panic("spatial: unreachable octant lookup")
}

// SiblingAcrossFace returns, for a child octant index, the sibling octant
// index adjacent across the given face, and whether that sibling lies
// within the same parent (false means the neighbor is across the parent's
// boundary on that face, i.e. it is the parent's own neighbor on that face).
func SiblingAcrossFace(octant int, f Face) (sibling int, withinParent bool) {
	off := ChildOffset[octant]
	axis := Axis(f)
	dir := Sign(f)
	var comp float64
	switch axis {
	case 0:
		comp = off.X()
	case 1:
		comp = off.Y()
	case 2:
		comp = off.Z()
	}
	// Moving in direction `dir` along `axis`: if the child already sits on
	// that side of the parent (comp and dir share sign), stepping further
	// leaves the parent; otherwise the sibling on the other half is found
	// by flipping the sign of that axis.
	if (comp > 0) == (dir > 0) {
		return -1, false
	}
	flipped := off
	switch axis {
	case 0:
		flipped = mgl64.Vec3{-off.X(), off.Y(), off.Z()}
	case 1:
		flipped = mgl64.Vec3{off.X(), -off.Y(), off.Z()}
	case 2:
		flipped = mgl64.Vec3{off.X(), off.Y(), -off.Z()}
	}
	for i, o := range ChildOffset {
		if o == flipped {
			return i, true
		}
	}
	panic("spatial: unreachable sibling lookup")
}

// CornerOffset gives the 8 corner sign-vectors of a cube, using the same
// convention as ChildOffset (so corner i sits in octant i).
var CornerOffset = ChildOffset

// CornerPosition returns the world position of corner index ci (0..7) of a
// node with the given center and halfwidth.
func CornerPosition(center mgl64.Vec3, halfwidth float64, ci int) mgl64.Vec3 {
	o := CornerOffset[ci]
	return mgl64.Vec3{
		center.X() + o.X()*halfwidth,
		center.Y() + o.Y()*halfwidth,
		center.Z() + o.Z()*halfwidth,
	}
}

// FaceCorners returns the 4 corner indices bounding a given face, in a
// consistent winding order (counter-clockwise viewed from outside the cube
// along the outward normal).
func FaceCorners(f Face) [4]int {
	switch f {
	case PX:
		return [4]int{0, 3, 7, 4}
	case NX:
		return [4]int{1, 5, 6, 2}
	case PY:
		return [4]int{0, 4, 5, 1}
	case NY:
		return [4]int{3, 2, 6, 7}
	case PZ:
		return [4]int{0, 1, 2, 3}
	case NZ:
		return [4]int{4, 7, 6, 5}
	}
	panic("spatial: invalid face")
}
