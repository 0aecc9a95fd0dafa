package glrender

import (
	"errors"
	"io"

	"github.com/chewxy/math32"
	"github.com/fractalfolio/fractalfolio/gleval"
	"github.com/soypat/geometry/ms3"
)

// Octree is a marching-tetrahedra polygonizer over an integer octree with
// empty space pruning. A cube whose center lies at least half its diagonal
// away from the surface contains no surface and is discarded with all its
// descendants.
type Octree struct {
	s      gleval.SDF3
	origin ms3.Vec
	res    float32
	top    icube

	// frontier holds cubes awaiting the prune test at the current level, next
	// the surviving children for the following level.
	frontier []icube
	next     []icube
	// leaves are the level 0 cells left after pruning. They are marched in order.
	leaves  []icube
	leafIdx int
	// Corner distances of leaves[evalStart:evalEnd] are stored in distbuf, 8 per leaf.
	evalStart int
	evalEnd   int
	pruneDone bool

	posbuf  []ms3.Vec
	distbuf []float32
	// pruned statistics: quantity of level 0 cells pruned from octree.
	pruned uint64
	evals  uint64
}

// NewOctreeRenderer instantiates a new Octree renderer for rendering triangles
// from an [gleval.SDF3]. The cube starting at the SDF's bounds minimum with
// side equal to the longest bounds axis is split into cellsPerAxis cells
// per axis. cellsPerAxis must be a power of two.
func NewOctreeRenderer(s gleval.SDF3, cellsPerAxis int, evalBufferSize int) (*Octree, error) {
	if evalBufferSize < 64 {
		return nil, errors.New("bad octree eval buffer size")
	}
	var oc Octree
	oc.posbuf = make([]ms3.Vec, evalBufferSize)
	oc.distbuf = make([]float32, evalBufferSize)
	err := oc.Reset(s, cellsPerAxis)
	if err != nil {
		return nil, err
	}
	return &oc, nil
}

// Reset switches the underlying SDF3 for a new one with a new cell count. It reuses
// the evaluation and cube buffers.
func (oc *Octree) Reset(s gleval.SDF3, cellsPerAxis int) error {
	if s == nil {
		return errors.New("nil SDF3")
	}
	bb := s.Bounds()
	top, res, err := makeICube(bb, cellsPerAxis)
	if err != nil {
		return err
	}
	*oc = Octree{
		s:        s,
		origin:   bb.Min,
		res:      res,
		top:      top,
		frontier: append(oc.frontier[:0], top),
		next:     oc.next[:0],
		leaves:   oc.leaves[:0],
		posbuf:   oc.posbuf,
		distbuf:  oc.distbuf,
	}
	return nil
}

// Resolution returns the side length of a single cell.
func (oc *Octree) Resolution() float32 { return oc.res }

// TotalPruned returns the amount of cells pruned throughout the rendering of the current SDF3.
// This number is reset on a call to Reset.
func (oc *Octree) TotalPruned() uint64 { return oc.pruned }

// Evaluations returns the amount of positions handed to the SDF since the last Reset.
func (oc *Octree) Evaluations() uint64 { return oc.evals }

// ReadTriangles implements [Renderer]. dst must have room for at least 12 triangles.
func (oc *Octree) ReadTriangles(dst []ms3.Triangle, userData any) (n int, err error) {
	if len(dst) < maxCellTriangles {
		return 0, io.ErrShortBuffer
	}
	if !oc.pruneDone {
		err = oc.prune(userData)
		if err != nil {
			return 0, err
		}
	}
	for len(dst)-n >= maxCellTriangles {
		if oc.leafIdx >= len(oc.leaves) {
			return n, io.EOF // Done rendering model.
		}
		if oc.leafIdx >= oc.evalEnd {
			err = oc.evaluateLeaves(userData)
			if err != nil {
				return n, err
			}
		}
		i := 8 * (oc.leafIdx - oc.evalStart)
		n += marchCell(dst[n:], oc.posbuf[i:i+8], oc.distbuf[i:i+8])
		oc.leafIdx++
	}
	return n, nil
}

// prune descends the octree breadth first evaluating cube centers in batches
// until only level 0 cells that may contain surface remain.
func (oc *Octree) prune(userData any) error {
	// The cubes pruned must not contain a surface within.
	const szDistMult = sqrt3 / 2
	batch := len(oc.posbuf)
	for len(oc.frontier) > 0 {
		oc.next = oc.next[:0]
		for start := 0; start < len(oc.frontier); start += batch {
			cubes := oc.frontier[start:min(start+batch, len(oc.frontier))]
			pos := oc.posbuf[:len(cubes)]
			dist := oc.distbuf[:len(cubes)]
			for i, c := range cubes {
				pos[i] = c.center(oc.origin, oc.res)
			}
			err := oc.s.Evaluate(pos, dist, userData)
			if err != nil {
				return err
			}
			oc.evals += uint64(len(pos))
			for i, c := range cubes {
				maxDist := oc.res * float32(c.cells()) * szDistMult
				if math32.Abs(dist[i]) >= maxDist {
					oc.pruned += c.decomposesTo()
					continue
				}
				if c.lvl == 0 {
					oc.leaves = append(oc.leaves, c)
				} else {
					oc.next = c.appendChildren(oc.next)
				}
			}
		}
		oc.frontier, oc.next = oc.next, oc.frontier
	}
	oc.pruneDone = true
	return nil
}

func (oc *Octree) evaluateLeaves(userData any) error {
	ncells := min(len(oc.leaves)-oc.leafIdx, len(oc.posbuf)/8)
	cells := oc.leaves[oc.leafIdx : oc.leafIdx+ncells]
	for i, c := range cells {
		c.corners(oc.posbuf[8*i:8*i+8], oc.origin, oc.res)
	}
	pos := oc.posbuf[:8*ncells]
	err := oc.s.Evaluate(pos, oc.distbuf[:len(pos)], userData)
	if err != nil {
		return err
	}
	oc.evals += uint64(len(pos))
	oc.evalStart = oc.leafIdx
	oc.evalEnd = oc.leafIdx + ncells
	return nil
}
