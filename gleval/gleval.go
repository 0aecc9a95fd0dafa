package gleval

import (
	"errors"
	"fmt"
	"slices"

	"github.com/soypat/geometry/ms3"
)

// SDF3 implements a 3D signed distance field in vectorized
// form suitable for running on GPU.
type SDF3 interface {
	// Evaluate evaluates the signed distance field over pos positions.
	// dist and pos must be of same length.  Resulting distances are stored
	// in dist.
	//
	// userData facilitates getting data to the evaluators for use in processing, such as [VecPool].
	Evaluate(pos []ms3.Vec, dist []float32, userData any) error
	// Bounds returns the SDF's bounding box such that all of the shape is contained within.
	Bounds() ms3.Box
}

type bounder3 = interface{ Bounds() ms3.Box }

var (
	errEmptyBuffers         = errors.New("empty buffers")
	errMismatchBufferLength = errors.New("position and distance buffer length mismatch")
)

// AssertSDF3 asserts the argument as a SDF3 and returns an error if it fails.
func AssertSDF3(s bounder3) (SDF3, error) {
	sdf, ok := s.(SDF3)
	if !ok {
		return nil, fmt.Errorf("%T does not implement gleval.SDF3", s)
	}
	return sdf, nil
}

// NewCPUSDF3 checks if the shader implements CPU evaluation and returns a [SDF3CPU]
// ready for evaluation, taking care of the buffers for evaluating the SDF correctly.
func NewCPUSDF3(root bounder3) (*SDF3CPU, error) {
	sdf, err := AssertSDF3(root)
	if err != nil {
		return nil, fmt.Errorf("top level SDF cannot be CPU evaluated: %s", err.Error())
	}
	return &SDF3CPU{SDF: sdf}, nil
}

// SDF3CPU implements a CPU evaluator for a [SDF3] that owns a [VecPool].
type SDF3CPU struct {
	SDF SDF3
	vp  VecPool
}

// Evaluate performs CPU evaluation of the underlying SDF3. If userData carries
// no [VecPool] the evaluator's own pool is handed down.
func (sdf *SDF3CPU) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if len(pos) != len(dist) {
		return errMismatchBufferLength
	} else if len(pos) == 0 {
		return errEmptyBuffers
	}
	if _, err := GetVecPool(userData); err != nil {
		userData = &sdf.vp
	}
	return sdf.SDF.Evaluate(pos, dist, userData)
}

// Bounds returns the SDF's bounding box such that all of the shape is contained within.
func (sdf *SDF3CPU) Bounds() ms3.Box {
	return sdf.SDF.Bounds()
}

// VecPool method exposes the SDF3CPU's VecPool in case user wishes to use their own userData in evaluations.
func (sdf *SDF3CPU) VecPool() *VecPool { return &sdf.vp }

// NormalsCentralDiff uses central differences algorithm for normal calculation, which are stored in normals for each position.
// The returned normals are not normalized (converted to unit length).
func NormalsCentralDiff(s SDF3, pos []ms3.Vec, normals []ms3.Vec, step float32, userData any) error {
	step *= 0.5
	if step <= 0 {
		return errors.New("invalid step")
	} else if len(pos) != len(normals) {
		return errors.New("length of position must match length of normals")
	} else if s == nil {
		return errors.New("nil SDF3")
	} else if len(pos) == 0 {
		return errEmptyBuffers
	}
	vp, err := GetVecPool(userData)
	if err != nil {
		return fmt.Errorf("VecPool required for normal calculation: %s", err)
	}
	d1 := vp.Float.Acquire(len(pos))
	d2 := vp.Float.Acquire(len(pos))
	auxPos := vp.V3.Acquire(len(pos))
	defer vp.Float.Release(d1)
	defer vp.Float.Release(d2)
	defer vp.V3.Release(auxPos)
	var vecs = [3]ms3.Vec{{X: step}, {Y: step}, {Z: step}}
	for dim := 0; dim < 3; dim++ {
		h := vecs[dim]
		for i, p := range pos {
			auxPos[i] = ms3.Add(p, h)
		}
		err = s.Evaluate(auxPos, d1, userData)
		if err != nil {
			return err
		}
		for i, p := range pos {
			auxPos[i] = ms3.Sub(p, h)
		}
		err = s.Evaluate(auxPos, d2, userData)
		if err != nil {
			return err
		}
		switch dim {
		case 0:
			for i, d := range d1 {
				normals[i].X = d - d2[i]
			}
		case 1:
			for i, d := range d1 {
				normals[i].Y = d - d2[i]
			}
		case 2:
			for i, d := range d1 {
				normals[i].Z = d - d2[i]
			}
		}
	}
	return nil
}

// NormalizeNormals converts every normal to unit length. Zero length normals,
// found where the field is flat to float precision, are set to +Z.
func NormalizeNormals(normals []ms3.Vec) {
	for i, n := range normals {
		norm := ms3.Norm(n)
		if norm == 0 {
			normals[i] = ms3.Vec{Z: 1}
			continue
		}
		normals[i] = ms3.Scale(1/norm, n)
	}
}

// BlockCachedSDF3 caches distances by snapping positions to a grid of the
// configured resolution. The octree evaluates the same corners from adjacent
// cells so repeated lookups are common.
type BlockCachedSDF3 struct {
	sdf     SDF3
	mul     ms3.Vec
	m       map[[3]int]float32
	posbuf  []ms3.Vec
	distbuf []float32
	idxbuf  []int
	hits    uint64
	evals   uint64
}

func (c3 *BlockCachedSDF3) VecPool() *VecPool {
	vp, _ := GetVecPool(c3.sdf)
	return vp
}

// Reset resets the SDF3 and reuses the underlying buffers for future SDF evaluations. It also resets statistics such as evaluations and cache hits.
func (c3 *BlockCachedSDF3) Reset(sdf SDF3, resX, resY, resZ float32) error {
	if resX <= 0 || resY <= 0 || resZ <= 0 {
		return errors.New("invalid resolution for BlockCachedSDF3")
	}
	if c3.m == nil {
		c3.m = make(map[[3]int]float32)
	} else {
		clear(c3.m)
	}
	*c3 = BlockCachedSDF3{
		sdf:     sdf,
		mul:     ms3.DivElem(ms3.Vec{X: 1, Y: 1, Z: 1}, ms3.Vec{X: resX, Y: resY, Z: resZ}),
		m:       c3.m,
		posbuf:  c3.posbuf[:0],
		distbuf: c3.distbuf[:0],
		idxbuf:  c3.idxbuf[:0],
	}
	return nil
}

// CacheHits returns total amount of cached evalutions done throughout the SDF's lifetime.
func (c3 *BlockCachedSDF3) CacheHits() uint64 {
	return c3.hits
}

// Evaluations returns total evaluations performed succesfully during sdf's lifetime, including cached.
func (c3 *BlockCachedSDF3) Evaluations() uint64 {
	return c3.evals
}

// Evaluate implements the [SDF3] interface with cached evaluation.
func (c3 *BlockCachedSDF3) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if len(pos) != len(dist) {
		return errMismatchBufferLength
	} else if len(pos) == 0 {
		return errEmptyBuffers
	}
	bb := c3.sdf.Bounds()
	seekPos := c3.posbuf[:0]
	idx := c3.idxbuf[:0]
	for i, p := range pos {
		d, cached := c3.m[c3.key(bb, p)]
		if cached {
			dist[i] = d
		} else {
			seekPos = append(seekPos, p)
			idx = append(idx, i)
		}
	}
	if len(idx) > 0 {
		// Renew buffers in case they were grown.
		c3.idxbuf = idx
		c3.posbuf = seekPos
		c3.distbuf = slices.Grow(c3.distbuf[:0], len(seekPos))
		seekDist := c3.distbuf[:len(seekPos)]
		err := c3.sdf.Evaluate(seekPos, seekDist, userData)
		if err != nil {
			return err
		}
		for i, p := range seekPos {
			c3.m[c3.key(bb, p)] = seekDist[i]
		}
		for i, d := range seekDist {
			dist[idx[i]] = d
		}
	}
	c3.evals += uint64(len(dist))
	c3.hits += uint64(len(dist) - len(seekPos))
	return nil
}

func (c3 *BlockCachedSDF3) key(bb ms3.Box, p ms3.Vec) [3]int {
	// Round to nearest so grid corners snap to the same key from either side.
	tp := ms3.AddScalar(0.5, ms3.MulElem(c3.mul, ms3.Sub(p, bb.Min)))
	return [3]int{int(tp.X), int(tp.Y), int(tp.Z)}
}

// Bounds returns the SDF's bounding box such that all of the shape is contained within.
func (c3 *BlockCachedSDF3) Bounds() ms3.Box {
	return c3.sdf.Bounds()
}

// OverloadBounds returns a SDF3 evaluating sdf with Bounds replaced by bb.
func OverloadBounds(sdf SDF3, bb ms3.Box) SDF3 {
	return &overloadBounds3{SDF3: sdf, bb: bb}
}

type overloadBounds3 struct {
	SDF3
	bb ms3.Box
}

func (ob *overloadBounds3) Bounds() ms3.Box { return ob.bb }

func (ob *overloadBounds3) VecPool() *VecPool {
	vp, _ := GetVecPool(ob.SDF3)
	return vp
}
