package gleval

import (
	"errors"
	"fmt"
	"sync"

	"github.com/soypat/geometry/ms3"
)

// VecPool contains buffers for SDF evaluators that need scratch space
// during evaluation. Acquired buffers must be released after use.
type VecPool struct {
	V3    bufPool[ms3.Vec]
	Float bufPool[float32]
}

// GetVecPool extracts a [VecPool] from userData. userData may be a *VecPool
// or a type with a VecPool method such as [SDF3CPU].
func GetVecPool(userData any) (*VecPool, error) {
	switch v := userData.(type) {
	case *VecPool:
		if v == nil {
			return nil, errors.New("nil VecPool")
		}
		return v, nil
	case interface{ VecPool() *VecPool }:
		vp := v.VecPool()
		if vp == nil {
			return nil, fmt.Errorf("%T returned nil VecPool", userData)
		}
		return vp, nil
	}
	return nil, fmt.Errorf("want userData type *gleval.VecPool for CPU evaluations, got %T", userData)
}

// AssertAllReleased checks every acquired buffer has been released.
func (vp *VecPool) AssertAllReleased() error {
	err := vp.Float.assertAllReleased()
	if err != nil {
		return fmt.Errorf("Float pool: %w", err)
	}
	err = vp.V3.assertAllReleased()
	if err != nil {
		return fmt.Errorf("V3 pool: %w", err)
	}
	return nil
}

// TotalAlloc returns the amount of bytes allocated by the pool's buffers.
func (vp *VecPool) TotalAlloc() uint64 {
	return vp.Float.totalAlloc(4) + vp.V3.totalAlloc(12)
}

type bufPool[T any] struct {
	mu       sync.Mutex
	ins      [][]T
	acquired []bool
}

// Acquire returns a buffer of the argument length, reusing a released one if available.
func (bp *bufPool[T]) Acquire(length int) []T {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for i, locked := range bp.acquired {
		if !locked && cap(bp.ins[i]) >= length {
			bp.acquired[i] = true
			return bp.ins[i][:length]
		}
	}
	newSlice := make([]T, length, max(length, 1))
	bp.ins = append(bp.ins, newSlice)
	bp.acquired = append(bp.acquired, true)
	return newSlice
}

// Release returns the buffer to the pool for later reuse.
func (bp *bufPool[T]) Release(buf []T) error {
	if cap(buf) == 0 {
		return errors.New("release of zero capacity buffer")
	}
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for i, instance := range bp.ins {
		if &instance[:1][0] == &buf[:1][0] {
			if !bp.acquired[i] {
				return errors.New("release of unacquired resource")
			}
			bp.acquired[i] = false
			return nil
		}
	}
	return errors.New("release of nonexistent resource")
}

func (bp *bufPool[T]) assertAllReleased() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for i, locked := range bp.acquired {
		if locked {
			return fmt.Errorf("buffer %d of length %d not released", i, len(bp.ins[i]))
		}
	}
	return nil
}

func (bp *bufPool[T]) totalAlloc(elemSize int) (n uint64) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, buf := range bp.ins {
		n += uint64(cap(buf) * elemSize)
	}
	return n
}
