package voltree

// Payload holds the mutable probabilistic statistics a leaf accumulates
// from carved shapes. Only leaves carry a Payload; internal nodes have a
// nil payload.
type Payload struct {
	Count       uint64
	TotalWeight float64

	ProbSum   float64
	ProbSumSq float64

	SurfaceSum float64
	CornerSum  float64
	PlanarSum  float64

	FPRoom int // signed room index; negative = unassigned

	IsCarved bool // debug flag
}

// DefaultFPRoom is the documented default for an unassigned room tag.
const DefaultFPRoom = -1

// NewPayload returns a zeroed payload with the documented defaults.
func NewPayload() *Payload {
	return &Payload{FPRoom: DefaultFPRoom}
}

// Probability returns prob_sum/total_weight, defaulting to 0.5 when unobserved.
func (p *Payload) Probability() float64 {
	if p == nil || p.TotalWeight == 0 {
		return 0.5
	}
	return p.ProbSum / p.TotalWeight
}

// Variance returns prob_sum_sq/total_weight - probability^2, capped at 1.
func (p *Payload) Variance() float64 {
	if p == nil || p.TotalWeight == 0 {
		return 1
	}
	mu := p.Probability()
	v := p.ProbSumSq/p.TotalWeight - mu*mu
	if v > 1 || v < 0 {
		return 1
	}
	return v
}

// Planar returns planar_sum/total_weight, defaulting to 0 when unobserved.
func (p *Payload) Planar() float64 {
	if p == nil || p.TotalWeight == 0 {
		return 0
	}
	return p.PlanarSum / p.TotalWeight
}

// Surface returns surface_sum/total_weight, defaulting to 0 when unobserved.
func (p *Payload) Surface() float64 {
	if p == nil || p.TotalWeight == 0 {
		return 0
	}
	return p.SurfaceSum / p.TotalWeight
}

// Corner returns corner_sum/total_weight, defaulting to 0 when unobserved.
func (p *Payload) Corner() float64 {
	if p == nil || p.TotalWeight == 0 {
		return 0
	}
	return p.CornerSum / p.TotalWeight
}

// Interior reports whether probability > 0.5.
func (p *Payload) Interior() bool {
	return p.Probability() > 0.5
}

// Object reports whether the leaf is exterior and has no floorplan
// association (requires floorplan association to be meaningful).
func (p *Payload) Object() bool {
	return !p.Interior() && p.FPRoom < 0
}

// MergePayload implements the payload merge law: counts and weighted
// sums add; fp_room is taken from whichever operand has one set,
// with b (the later write) winning when both are set; is_carved is OR-ed.
func MergePayload(a, b *Payload) *Payload {
	if a == nil {
		return clonePayload(b)
	}
	if b == nil {
		return clonePayload(a)
	}
	out := &Payload{
		Count:       a.Count + b.Count,
		TotalWeight: a.TotalWeight + b.TotalWeight,
		ProbSum:     a.ProbSum + b.ProbSum,
		ProbSumSq:   a.ProbSumSq + b.ProbSumSq,
		SurfaceSum:  a.SurfaceSum + b.SurfaceSum,
		CornerSum:   a.CornerSum + b.CornerSum,
		PlanarSum:   a.PlanarSum + b.PlanarSum,
		IsCarved:    a.IsCarved || b.IsCarved,
		FPRoom:      a.FPRoom,
	}
	if b.FPRoom >= 0 {
		out.FPRoom = b.FPRoom
	}
	return out
}

// SubdividePayload scales all additive fields by 1/n, leaving fp_room and
// is_carved unchanged.
func SubdividePayload(p *Payload, n int) *Payload {
	if p == nil {
		return nil
	}
	inv := 1.0 / float64(n)
	return &Payload{
		Count:       p.Count / uint64(n),
		TotalWeight: p.TotalWeight * inv,
		ProbSum:     p.ProbSum * inv,
		ProbSumSq:   p.ProbSumSq * inv,
		SurfaceSum:  p.SurfaceSum * inv,
		CornerSum:   p.CornerSum * inv,
		PlanarSum:   p.PlanarSum * inv,
		FPRoom:      p.FPRoom,
		IsCarved:    p.IsCarved,
	}
}

// FlipPayload replaces prob_sum/prob_sum_sq with values consistent with
// probability := 1 - probability, and clamps variance to its maximum.
func FlipPayload(p *Payload) *Payload {
	if p == nil || p.TotalWeight == 0 {
		return clonePayload(p)
	}
	mu := 1 - p.Probability()
	out := clonePayload(p)
	out.ProbSum = mu * p.TotalWeight
	// Clamp variance to its maximum (1): prob_sum_sq/total_weight - mu^2 = 1
	// => prob_sum_sq = (1+mu^2) * total_weight
	out.ProbSumSq = (1 + mu*mu) * p.TotalWeight
	return out
}

func clonePayload(p *Payload) *Payload {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
