package glrender

import (
	"io"

	"github.com/soypat/geometry/ms3"
)

const sqrt3 = 1.73205080757

// Renderer streams triangles of a polygonized surface. ReadTriangles returns
// io.EOF once all triangles have been read.
type Renderer interface {
	ReadTriangles(dst []ms3.Triangle, userData any) (n int, err error)
}

// RenderAll reads the full contents of a Renderer and returns the slice read.
// It does not return error on io.EOF, like the io.ReadAll implementation.
func RenderAll(r Renderer, userData any) ([]ms3.Triangle, error) {
	const startSize = 4096
	var err error
	var nt int
	result := make([]ms3.Triangle, 0, startSize)
	buf := make([]ms3.Triangle, startSize)
	for {
		nt, err = r.ReadTriangles(buf, userData)
		if err == nil || err == io.EOF {
			result = append(result, buf[:nt]...)
		}
		if err != nil {
			break
		}
	}
	if err == io.EOF {
		return result, nil
	}
	return result, err
}

// TriangleNormal returns the unit normal of t following the right hand rule,
// or the zero vector for degenerate triangles.
func TriangleNormal(t ms3.Triangle) ms3.Vec {
	n := cross(ms3.Sub(t[1], t[0]), ms3.Sub(t[2], t[0]))
	norm := ms3.Norm(n)
	if norm == 0 {
		return ms3.Vec{}
	}
	return ms3.Scale(1/norm, n)
}

// TrianglesBounds returns the axis aligned bounding box of all triangle vertices.
func TrianglesBounds(triangles []ms3.Triangle) ms3.Box {
	if len(triangles) == 0 {
		return ms3.Box{}
	}
	bb := ms3.Box{Min: triangles[0][0], Max: triangles[0][0]}
	for _, t := range triangles {
		for _, v := range t {
			bb.Min = ms3.MinElem(bb.Min, v)
			bb.Max = ms3.MaxElem(bb.Max, v)
		}
	}
	return bb
}

func cross(a, b ms3.Vec) ms3.Vec {
	return ms3.Vec{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}
