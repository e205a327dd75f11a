package voltree

import (
	"context"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"volcarve/internal/recon/errs"
	"volcarve/internal/telemetry"
)

// CarveJob is one batch of rays to fold into the tree. Batches are carved
// independently and folded back with Tree.MergeFrom, which is safe
// because the payload-merge law is commutative and associative.
type CarveJob struct {
	Rays []RaySample
}

// CarvePool runs carve batches concurrently against private tree clones:
// a job channel, context cancellation, and a WaitGroup shutdown, folding
// results back into a shared destination tree.
type CarvePool struct {
	jobs    chan carveTask
	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type carveTask struct {
	job    CarveJob
	result chan<- carveResult
}

type carveResult struct {
	shard   *Tree
	summary CarveSummary
}

// NewCarvePool starts a pool of n worker goroutines, each carving batches
// into its own clone of base (which must already have its domain grown
// to cover every batch's rays; callers typically pre-grow with
// Tree.InsertPoint over the full ray set before submitting jobs).
func NewCarvePool(ctx context.Context, base *Tree, n int) *CarvePool {
	if n < 1 {
		n = 1
	}
	cctx, cancel := context.WithCancel(ctx)
	p := &CarvePool{
		jobs:    make(chan carveTask, n*4),
		workers: n,
		ctx:     cctx,
		cancel:  cancel,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker(base)
	}
	return p
}

func (p *CarvePool) worker(base *Tree) {
	defer p.wg.Done()
	for {
		select {
		case task, ok := <-p.jobs:
			if !ok {
				return
			}
			shard := base.Clone()
			summary := carveBatch(shard, task.job.Rays, p.ctx)
			select {
			case task.result <- carveResult{shard: shard, summary: summary}:
			case <-p.ctx.Done():
				return
			}
		case <-p.ctx.Done():
			return
		}
	}
}

func carveBatch(t *Tree, rays []RaySample, ctx context.Context) CarveSummary {
	var summary CarveSummary
	for _, s := range rays {
		select {
		case <-ctx.Done():
			summary.Errors = append(summary.Errors, errs.ErrCancelled)
			return summary
		default:
		}
		if s.Weight <= 0 {
			summary.Skipped++
			continue
		}
		start := mgl64.Vec3{s.Start[0], s.Start[1], s.Start[2]}
		end := mgl64.Vec3{s.End[0], s.End[1], s.End[2]}
		if start == end {
			summary.Skipped++
			continue
		}
		shape := NewLineSegmentShape(start, end, s.Weight, s.SurfacePrior, s.PlanarPrior, s.CornerPrior)
		if _, err := t.InsertShape(shape); err != nil {
			summary.Skipped++
			summary.Errors = append(summary.Errors, err)
			continue
		}
		summary.Accepted++
	}
	return summary
}

// Submit queues a batch for carving. It blocks only if the internal queue
// is full.
func (p *CarvePool) Submit(job CarveJob) <-chan carveResult {
	out := make(chan carveResult, 1)
	select {
	case p.jobs <- carveTask{job: job, result: out}:
	case <-p.ctx.Done():
		close(out)
	}
	return out
}

// RunAndMerge submits every job, waits for all shards, and folds them
// into dst in submission order. Order doesn't affect the result, since
// the merge law is commutative; this just makes output deterministic
// for tests. Returns the combined summary.
func (p *CarvePool) RunAndMerge(dst *Tree, jobs []CarveJob) CarveSummary {
	defer telemetry.Track("voltree.CarvePool.RunAndMerge")()
	channels := make([]<-chan carveResult, len(jobs))
	for i, j := range jobs {
		channels[i] = p.Submit(j)
	}
	var combined CarveSummary
	for _, ch := range channels {
		res, ok := <-ch
		if !ok {
			combined.Errors = append(combined.Errors, errs.ErrCancelled)
			continue
		}
		dst.MergeFrom(res.shard)
		combined.Accepted += res.summary.Accepted
		combined.Skipped += res.summary.Skipped
		combined.Errors = append(combined.Errors, res.summary.Errors...)
	}
	return combined
}

// Shutdown stops all workers and waits for them to exit.
func (p *CarvePool) Shutdown() {
	p.cancel()
	close(p.jobs)
	p.wg.Wait()
}
