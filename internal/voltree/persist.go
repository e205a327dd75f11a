package voltree

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"volcarve/internal/recon/errs"
	"volcarve/internal/spatial"
)

// CurrentPayloadVersion is the version tag written for every leaf payload.
// Parsers must accept older versions and fill newly-added fields with
// their documented defaults.
const CurrentPayloadVersion = 2

// Serialize writes resolution, root center/halfwidth, and a pre-order
// traversal of (has_children?, has_payload?, payload fields) to w.
func (t *Tree) Serialize(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := writeFloat64(bw, t.resolution); err != nil {
		return wrapIO(err)
	}
	root := t.arena.get(t.root)
	if err := writeVec3(bw, root.center); err != nil {
		return wrapIO(err)
	}
	if err := writeFloat64(bw, root.halfwidth); err != nil {
		return wrapIO(err)
	}
	if err := writeNode(bw, t.root, t); err != nil {
		return wrapIO(err)
	}
	if err := bw.Flush(); err != nil {
		return wrapIO(err)
	}
	return nil
}

func writeNode(w *bufio.Writer, h NodeHandle, t *Tree) error {
	n := t.arena.get(h)
	leaf := n.isLeaf()
	if err := writeBool(w, !leaf); err != nil {
		return err
	}
	hasPayload := leaf && n.payload != nil
	if err := writeBool(w, hasPayload); err != nil {
		return err
	}
	if hasPayload {
		if err := writePayload(w, n.payload); err != nil {
			return err
		}
	}
	if !leaf {
		for _, c := range n.children {
			if err := writeNode(w, c, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func writePayload(w *bufio.Writer, p *Payload) error {
	if err := w.WriteByte(CurrentPayloadVersion); err != nil {
		return err
	}
	fields := []float64{
		float64(p.Count), p.TotalWeight, p.ProbSum, p.ProbSumSq,
		p.SurfaceSum, p.CornerSum, p.PlanarSum, float64(p.FPRoom),
	}
	for _, f := range fields {
		if err := writeFloat64(w, f); err != nil {
			return err
		}
	}
	return writeBool(w, p.IsCarved)
}

func writeFloat64(w *bufio.Writer, f float64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	_, err := w.Write(buf[:])
	return err
}

func writeVec3(w *bufio.Writer, v mgl64.Vec3) error {
	if err := writeFloat64(w, v.X()); err != nil {
		return err
	}
	if err := writeFloat64(w, v.Y()); err != nil {
		return err
	}
	return writeFloat64(w, v.Z())
}

func writeBool(w *bufio.Writer, b bool) error {
	if b {
		return w.WriteByte(1)
	}
	return w.WriteByte(0)
}

// ParseTree reads a tree previously written by Serialize from r, restoring
// the resolution recorded in the stream.
func ParseTree(r io.Reader) (*Tree, error) {
	br := bufio.NewReader(r)
	resolution, err := readFloat64(br)
	if err != nil {
		return nil, wrapIO(err)
	}
	center, err := readVec3(br)
	if err != nil {
		return nil, wrapIO(err)
	}
	halfwidth, err := readFloat64(br)
	if err != nil {
		return nil, wrapIO(err)
	}

	t := &Tree{arena: newArena(), resolution: resolution}
	root := t.arena.alloc(node{
		center: center, halfwidth: halfwidth, parent: InvalidHandle,
		children: [8]NodeHandle{InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle},
	})
	t.root = root
	if err := readNode(br, root, t); err != nil {
		return nil, wrapIO(err)
	}
	t.recomputeMaxDepth()
	return t, nil
}

func readNode(r *bufio.Reader, h NodeHandle, t *Tree) error {
	hasChildren, err := readBool(r)
	if err != nil {
		return err
	}
	hasPayload, err := readBool(r)
	if err != nil {
		return err
	}
	if hasPayload {
		p, err := readPayload(r)
		if err != nil {
			return err
		}
		t.arena.get(h).payload = p
	}
	if hasChildren {
		n := t.arena.get(h)
		childHW := n.halfwidth / 2
		childDepth := n.depth + 1
		var handles [8]NodeHandle
		for i := 0; i < 8; i++ {
			off := spatial.ChildOffset[i]
			center := mgl64.Vec3{
				n.center.X() + off.X()*childHW,
				n.center.Y() + off.Y()*childHW,
				n.center.Z() + off.Z()*childHW,
			}
			handles[i] = t.arena.alloc(node{
				center: center, halfwidth: childHW, depth: childDepth, parent: h,
				children: [8]NodeHandle{InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle, InvalidHandle},
			})
		}
		t.arena.get(h).children = handles
		for _, c := range handles {
			if err := readNode(r, c, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// readPayload decodes a payload, applying the documented defaults for any
// field a prior version didn't write: 0.5 probability (a zeroed
// ProbSum/TotalWeight pair), 1.0 variance, -1 fp_room, false is_carved.
func readPayload(r *bufio.Reader) (*Payload, error) {
	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p := NewPayload()
	switch {
	case version >= 1:
		count, err := readFloat64(r)
		if err != nil {
			return nil, err
		}
		p.Count = uint64(count)
		if p.TotalWeight, err = readFloat64(r); err != nil {
			return nil, err
		}
		if p.ProbSum, err = readFloat64(r); err != nil {
			return nil, err
		}
		if p.ProbSumSq, err = readFloat64(r); err != nil {
			return nil, err
		}
	}
	if version >= 2 {
		var err error
		if p.SurfaceSum, err = readFloat64(r); err != nil {
			return nil, err
		}
		if p.CornerSum, err = readFloat64(r); err != nil {
			return nil, err
		}
		if p.PlanarSum, err = readFloat64(r); err != nil {
			return nil, err
		}
		fpRoom, err := readFloat64(r)
		if err != nil {
			return nil, err
		}
		p.FPRoom = int(fpRoom)
		if p.IsCarved, err = readBool(r); err != nil {
			return nil, err
		}
	}
	// version < 2: SurfaceSum/CornerSum/PlanarSum stay 0 (defined as 0
	// "when unobserved"), FPRoom stays DefaultFPRoom, IsCarved stays false.
	return p, nil
}

func readFloat64(r *bufio.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
}

func readVec3(r *bufio.Reader) (mgl64.Vec3, error) {
	x, err := readFloat64(r)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	y, err := readFloat64(r)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	z, err := readFloat64(r)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	return mgl64.Vec3{x, y, z}, nil
}

func readBool(r *bufio.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func wrapIO(err error) error {
	return fmt.Errorf("voltree: %w: %v", errs.ErrIO, err)
}
