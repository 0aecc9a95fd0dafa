package gleval

import (
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/soypat/geometry/ms3"
)

var errParallelClosed = errors.New("ParallelSDF3 closed")

// ParallelConfig configures a [ParallelSDF3].
type ParallelConfig struct {
	// Workers is the number of pool goroutines. Zero selects NumCPU-1 (at least 1).
	Workers int
	// MinBatch is the smallest slice handed to a single worker. Batches
	// smaller than twice MinBatch are evaluated on the calling goroutine. Zero selects 1024.
	MinBatch int
	// IdleTimeout is how long an idle worker lingers before exiting. Zero selects 1 second.
	IdleTimeout time.Duration
}

// ParallelSDF3 splits large evaluation batches across a worker pool.
// Each worker evaluates a disjoint slice of the position and distance buffers,
// so the wrapped SDF3 must be safe for concurrent use on disjoint buffers.
type ParallelSDF3 struct {
	sdf      SDF3
	pool     worker.DynamicWorkerPool
	workers  int
	minBatch int
	errs     []error
	closed   bool
}

// NewParallelSDF3 wraps sdf for concurrent evaluation.
func NewParallelSDF3(sdf SDF3, cfg ParallelConfig) (*ParallelSDF3, error) {
	if sdf == nil {
		return nil, errors.New("nil SDF3")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = max(runtime.NumCPU()-1, 1)
	}
	if cfg.MinBatch <= 0 {
		cfg.MinBatch = 1024
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = time.Second
	}
	return &ParallelSDF3{
		sdf:      sdf,
		pool:     worker.NewDynamicWorkerPool(cfg.Workers, 256, cfg.IdleTimeout),
		workers:  cfg.Workers,
		minBatch: cfg.MinBatch,
	}, nil
}

// Reset replaces the wrapped SDF and keeps the worker pool.
func (ps *ParallelSDF3) Reset(sdf SDF3) error {
	if sdf == nil {
		return errors.New("nil SDF3")
	} else if ps.closed {
		return errParallelClosed
	}
	ps.sdf = sdf
	return nil
}

// Close ends every pool goroutine and returns once they have all exited.
// Evaluate fails after Close. Close is idempotent.
func (ps *ParallelSDF3) Close() {
	if ps.closed {
		return
	}
	ps.closed = true
	// The pool's own Stop can lose stop signals between workers. Each worker
	// goroutine instead runs exactly one retire task and exits inside it.
	var wg sync.WaitGroup
	wg.Add(ps.workers)
	for i := 0; i < ps.workers; i++ {
		ps.pool.SubmitTask(worker.Task{
			ID: -1 - i,
			Do: func() (any, error) {
				defer wg.Done()
				runtime.Goexit()
				return nil, nil
			},
		})
	}
	wg.Wait()
}

// Evaluate implements [SDF3].
func (ps *ParallelSDF3) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if ps.closed {
		return errParallelClosed
	} else if len(pos) != len(dist) {
		return errMismatchBufferLength
	} else if len(pos) == 0 {
		return errEmptyBuffers
	}
	nchunks := min(ps.workers, len(pos)/ps.minBatch)
	if nchunks < 2 {
		return ps.sdf.Evaluate(pos, dist, userData)
	}
	chunk := (len(pos) + nchunks - 1) / nchunks
	ps.errs = append(ps.errs[:0], make([]error, nchunks)...)
	var wg sync.WaitGroup
	for i := 0; i < nchunks; i++ {
		start := i * chunk
		end := min(start+chunk, len(pos))
		if start >= end {
			break
		}
		wg.Add(1)
		id := i
		ps.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				err := ps.sdf.Evaluate(pos[start:end], dist[start:end], userData)
				ps.errs[id] = err
				return nil, err
			},
		})
	}
	wg.Wait()
	return errors.Join(ps.errs...)
}

// Bounds returns the wrapped SDF's bounding box.
func (ps *ParallelSDF3) Bounds() ms3.Box { return ps.sdf.Bounds() }

// VecPool exposes the wrapped evaluator's VecPool, if any.
func (ps *ParallelSDF3) VecPool() *VecPool {
	vp, _ := GetVecPool(ps.sdf)
	return vp
}
