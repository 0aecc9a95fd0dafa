package glrender

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/fractalfolio/fractalfolio/gleval"
	"github.com/soypat/geometry/ms3"
)

type setImage = interface {
	image.Image
	Set(x, y int, c color.Color)
}

// ImageRendererSlice renders a constant-Z cross section of a 3D SDF into an image.
type ImageRendererSlice struct {
	conv func(f float32) color.Color
	pos  []ms3.Vec
	dist []float32
}

// NewImageRendererSlice instances a new [ImageRendererSlice]. A nil float->color conversion
// function results in a simple black-white color scheme where black is the interior of the SDF (negative distance).
func NewImageRendererSlice(evalBufferSize int, conversion func(float32) color.Color) (*ImageRendererSlice, error) {
	if evalBufferSize <= 64 {
		return nil, errors.New("too small evaluation buffer size")
	}
	if conversion == nil {
		conversion = func(f float32) color.Color {
			switch {
			case math32.IsNaN(f) || math32.IsInf(f, 0):
				return color.RGBA{R: 255, A: 255}
			case f > 0:
				return color.White
			default:
				return color.Black
			}
		}
	}
	ir := &ImageRendererSlice{
		conv: conversion,
		pos:  make([]ms3.Vec, evalBufferSize),
		dist: make([]float32, evalBufferSize),
	}
	return ir, nil
}

// Render maps the XY extent of the SDF's bounds at height z to the image. It uses userData as an argument to all [gleval.SDF3.Evaluate] calls.
// Image rows grow downwards so the top row corresponds to the bounds' maximum Y.
func (ir *ImageRendererSlice) Render(sdf gleval.SDF3, z float32, img setImage, userData any) error {
	imgBB := img.Bounds()
	dxi := imgBB.Dx()
	dyi := imgBB.Dy()
	if len(ir.dist) < dxi {
		return fmt.Errorf("require evaluation buffer (%d) to be at least of length of image rows (%d)", len(ir.dist), dxi)
	}
	bb := sdf.Bounds()
	sz := bb.Size()
	dx := sz.X / float32(dxi)
	dy := sz.Y / float32(dyi)
	x0 := bb.Min.X + dx/2
	for j := 0; j < dyi; j++ {
		y := bb.Max.Y - dy/2 - float32(j)*dy
		for i := 0; i < dxi; i++ {
			ir.pos[i] = ms3.Vec{X: x0 + float32(i)*dx, Y: y, Z: z}
		}
		err := sdf.Evaluate(ir.pos[:dxi], ir.dist[:dxi], userData)
		if err != nil {
			return err
		}
		for i := 0; i < dxi; i++ {
			img.Set(i+imgBB.Min.X, j+imgBB.Min.Y, ir.conv(ir.dist[i]))
		}
	}
	return nil
}
