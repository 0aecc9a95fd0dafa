package glrender

import "github.com/soypat/geometry/ms3"

// maxCellTriangles is the most triangles a single cell may produce:
// two triangles for each of its six tetrahedra.
const maxCellTriangles = 12

// cellTetrahedra splits a cube into 6 tetrahedra sharing the 0-6 diagonal.
var cellTetrahedra = [6][4]uint8{
	{0, 5, 1, 6},
	{0, 1, 2, 6},
	{0, 2, 3, 6},
	{0, 3, 7, 6},
	{0, 7, 4, 6},
	{0, 4, 5, 6},
}

// marchCell appends the triangles of the surface crossing the cell to dst and
// returns the amount written. dst must have room for maxCellTriangles.
// A corner is inside the surface when its distance is negative.
func marchCell(dst []ms3.Triangle, pos []ms3.Vec, dist []float32) (n int) {
	_ = pos[7]
	_ = dist[7]
	var in, out [4]uint8
	for _, tet := range cellTetrahedra {
		nin, nout := 0, 0
		for _, c := range tet {
			if dist[c] < 0 {
				in[nin] = c
				nin++
			} else {
				out[nout] = c
				nout++
			}
		}
		var inCentroid, outCentroid ms3.Vec
		for _, c := range in[:nin] {
			inCentroid = ms3.Add(inCentroid, pos[c])
		}
		for _, c := range out[:nout] {
			outCentroid = ms3.Add(outCentroid, pos[c])
		}
		switch nin {
		case 1:
			outward := ms3.Sub(ms3.Scale(1.0/3, outCentroid), inCentroid)
			n += emitTriangle(dst[n:], outward,
				edgePoint(pos, dist, in[0], out[0]),
				edgePoint(pos, dist, in[0], out[1]),
				edgePoint(pos, dist, in[0], out[2]))
		case 3:
			outward := ms3.Sub(outCentroid, ms3.Scale(1.0/3, inCentroid))
			n += emitTriangle(dst[n:], outward,
				edgePoint(pos, dist, in[0], out[0]),
				edgePoint(pos, dist, in[1], out[0]),
				edgePoint(pos, dist, in[2], out[0]))
		case 2:
			outward := ms3.Scale(0.5, ms3.Sub(outCentroid, inCentroid))
			q0 := edgePoint(pos, dist, in[0], out[0])
			q1 := edgePoint(pos, dist, in[0], out[1])
			q2 := edgePoint(pos, dist, in[1], out[1])
			q3 := edgePoint(pos, dist, in[1], out[0])
			n += emitTriangle(dst[n:], outward, q0, q1, q2)
			n += emitTriangle(dst[n:], outward, q0, q2, q3)
		}
	}
	return n
}

// edgePoint linearly interpolates the zero crossing between corners a and b.
func edgePoint(pos []ms3.Vec, dist []float32, a, b uint8) ms3.Vec {
	p1, p2 := pos[a], pos[b]
	d1, d2 := dist[a], dist[b]
	t := d1 / (d1 - d2)
	return ms3.Add(p1, ms3.Scale(t, ms3.Sub(p2, p1)))
}

// emitTriangle writes the triangle wound so its normal points along outward.
// Degenerate triangles are dropped.
func emitTriangle(dst []ms3.Triangle, outward, a, b, c ms3.Vec) int {
	normal := cross(ms3.Sub(b, a), ms3.Sub(c, a))
	dot := ms3.Dot(normal, outward)
	if normal == (ms3.Vec{}) {
		return 0
	}
	if dot < 0 {
		b, c = c, b
	}
	dst[0] = ms3.Triangle{a, b, c}
	return 1
}
