package topology

import (
	"fmt"

	"volcarve/internal/recon/errs"
	"volcarve/internal/spatial"
	"volcarve/internal/telemetry"
	"volcarve/internal/voltree"
)

// RemoveOutliers flips any leaf whose boundary-area-weighted disagreement
// with its neighbors exceeds threshold. Processing uses two FIFOs,
// interior leaves first and exterior leaves second, mirroring a
// breadth-first flood: a leaf is only
// re-queued after one of its neighbors actually flips, which bounds the
// number of times any leaf is revisited and guarantees termination.
func (tp *Topology) RemoveOutliers(threshold float64) error {
	if threshold <= 0.5 || threshold > 1.0 {
		return fmt.Errorf("topology: threshold %v out of range (0.5,1]: %w", threshold, errs.ErrInvalidInput)
	}
	defer telemetry.Track("topology.RemoveOutliers")()

	tree := tp.tree
	var interiorQ, exteriorQ []voltree.NodeHandle
	tree.Walk(func(h voltree.NodeHandle) {
		p := tree.Payload(h)
		if p == nil {
			return
		}
		if p.Interior() {
			interiorQ = append(interiorQ, h)
		} else {
			exteriorQ = append(exteriorQ, h)
		}
	})

	processOne := func(h voltree.NodeHandle) []voltree.NodeHandle {
		frac := tp.outlierFraction(h)
		if frac <= threshold {
			return nil
		}
		p := tree.Payload(h)
		tree.SetPayload(h, voltree.FlipPayload(p))
		var requeue []voltree.NodeHandle
		for _, f := range spatial.Faces {
			requeue = append(requeue, tp.Neighbors(h, f)...)
		}
		return requeue
	}

	enqueue := func(h voltree.NodeHandle) {
		if tree.Payload(h).Interior() {
			interiorQ = append(interiorQ, h)
		} else {
			exteriorQ = append(exteriorQ, h)
		}
	}

	for len(interiorQ) > 0 || len(exteriorQ) > 0 {
		for len(interiorQ) > 0 {
			h := interiorQ[0]
			interiorQ = interiorQ[1:]
			for _, r := range processOne(h) {
				enqueue(r)
			}
		}
		for len(exteriorQ) > 0 {
			h := exteriorQ[0]
			exteriorQ = exteriorQ[1:]
			for _, r := range processOne(h) {
				enqueue(r)
			}
		}
	}
	return nil
}

// outlierFraction is the fraction of h's boundary area whose neighbor
// disagrees with h's own interior/exterior label. A face with no
// recorded neighbor (a true domain boundary) contributes no area on
// either side of the ratio, since there is nothing to disagree with.
func (tp *Topology) outlierFraction(h voltree.NodeHandle) float64 {
	tree := tp.tree
	p := tree.Payload(h)
	interior := p.Interior()
	hw := tree.Halfwidth(h)

	var total, disagree float64
	for _, f := range spatial.Faces {
		for _, n := range tp.Neighbors(h, f) {
			nhw := tree.Halfwidth(n)
			small := nhw
			if hw < nhw {
				small = hw
			}
			area := 4 * small * small
			total += area
			if tree.Payload(n).Interior() != interior {
				disagree += area
			}
		}
	}
	if total == 0 {
		return 0
	}
	return disagree / total
}
