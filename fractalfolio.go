// Package fractalfolio implements the distance functions rendered by the
// portfolio scene: a fixed set of 3D fractals that can be evaluated on the CPU
// through [gleval.SDF3] and on the GPU through [glbuild.Shader3D].
package fractalfolio

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

const (
	sqrt3    = 1.7320508075688772935274463415058723669428052538103806280558069794
	invSqrt3 = 1 / sqrt3
)

// Builder wraps all fractal and operation logic generation.
// Provides error handling strategies with panics or error accumulation during shape generation.
type Builder struct {
	NoDimensionPanic bool
	accumErrs        []error
}

func (bld *Builder) Err() error {
	if len(bld.accumErrs) == 0 {
		return nil
	}
	return errors.Join(bld.accumErrs...)
}

// ClearErrors discards accumulated shape errors.
func (bld *Builder) ClearErrors() {
	bld.accumErrs = bld.accumErrs[:0]
}

func (bld *Builder) shapeErrorf(msg string, args ...any) {
	if !bld.NoDimensionPanic {
		panic(fmt.Sprintf(msg, args...))
	}
	bld.accumErrs = append(bld.accumErrs, fmt.Errorf(msg, args...))
}

func (*Builder) nilsdf(msg string) {
	panic("nil SDF argument: " + msg)
}

type bounder3 = interface{ Bounds() ms3.Box }

func clampf(v, Min, Max float32) float32 {
	if v < Min {
		return Min
	} else if v > Max {
		return Max
	}
	return v
}

func maxf(a, b float32) float32 {
	return math32.Max(a, b)
}

func minf(a, b float32) float32 {
	return math32.Min(a, b)
}

// modf is GLSL's mod: x - y*floor(x/y), result has the sign of y.
func modf(x, y float32) float32 {
	return x - y*math32.Floor(x/y)
}

func cross(a, b ms3.Vec) ms3.Vec {
	return ms3.Vec{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}
