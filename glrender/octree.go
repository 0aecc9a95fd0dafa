package glrender

import (
	"errors"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

// icube is an integer cube of the octree. Its corner is at (x,y,z) in cell
// units and it spans 1<<lvl cells per side. Level 0 cubes are single cells.
type icube struct {
	x, y, z int32
	lvl     uint8
}

func (c icube) cells() int32 { return 1 << c.lvl }

// decomposesTo returns the amount of level 0 cells the cube contains.
func (c icube) decomposesTo() uint64 {
	n := uint64(c.cells())
	return n * n * n
}

func (c icube) origin(origin ms3.Vec, res float32) ms3.Vec {
	return ms3.Add(origin, ms3.Scale(res, ms3.Vec{X: float32(c.x), Y: float32(c.y), Z: float32(c.z)}))
}

func (c icube) center(origin ms3.Vec, res float32) ms3.Vec {
	half := 0.5 * res * float32(c.cells())
	return ms3.AddScalar(half, c.origin(origin, res))
}

// appendChildren appends the 8 octants of c to dst. c must not be a level 0 cube.
func (c icube) appendChildren(dst []icube) []icube {
	lvl := c.lvl - 1
	h := int32(1) << lvl
	for i := int32(0); i < 8; i++ {
		dst = append(dst, icube{
			x:   c.x + h*(i&1),
			y:   c.y + h*((i>>1)&1),
			z:   c.z + h*((i>>2)&1),
			lvl: lvl,
		})
	}
	return dst
}

// corners writes the cell's 8 corner positions in marching order:
// c0=(0,0,0) c1=(1,0,0) c2=(1,1,0) c3=(0,1,0) c4=(0,0,1) c5=(1,0,1) c6=(1,1,1) c7=(0,1,1).
func (c icube) corners(dst []ms3.Vec, origin ms3.Vec, res float32) {
	o := c.origin(origin, res)
	s := res * float32(c.cells())
	dst[0] = o
	dst[1] = ms3.Add(o, ms3.Vec{X: s})
	dst[2] = ms3.Add(o, ms3.Vec{X: s, Y: s})
	dst[3] = ms3.Add(o, ms3.Vec{Y: s})
	dst[4] = ms3.Add(o, ms3.Vec{Z: s})
	dst[5] = ms3.Add(o, ms3.Vec{X: s, Z: s})
	dst[6] = ms3.Add(o, ms3.Vec{X: s, Y: s, Z: s})
	dst[7] = ms3.Add(o, ms3.Vec{Y: s, Z: s})
}

// makeICube returns the top level cube spanning cellsPerAxis cells and the
// resolution (cell side length) needed to cover bb's longest axis.
func makeICube(bb ms3.Box, cellsPerAxis int) (top icube, res float32, err error) {
	if cellsPerAxis < 2 || cellsPerAxis&(cellsPerAxis-1) != 0 {
		return icube{}, 0, errors.New("cells per axis must be a power of two greater than one")
	}
	sz := bb.Size()
	longAxis := sz.Max()
	if !(longAxis > 0) || math32.IsInf(longAxis, 0) {
		return icube{}, 0, errors.New("invalid bounding box for octree")
	}
	lvl := uint8(0)
	for 1<<lvl < cellsPerAxis {
		lvl++
	}
	return icube{lvl: lvl}, longAxis / float32(cellsPerAxis), nil
}
