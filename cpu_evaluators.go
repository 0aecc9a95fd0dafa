package fractalfolio

import (
	"github.com/chewxy/math32"
	"github.com/fractalfolio/fractalfolio/gleval"
	"github.com/soypat/geometry/ms3"
)

func (mb *mandelbulb) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	power := mb.power
	bail := mb.bailout
	for i, p := range pos {
		z := p
		var dr float32 = 1
		var r float32
		for it := 0; it < mb.iters; it++ {
			r = ms3.Norm(z)
			if r > bail || r == 0 {
				break
			}
			theta := math32.Acos(clampf(z.Y/r, -1, 1)) * power
			phi := math32.Atan2(z.Z, z.X) * power
			dr = math32.Pow(r, power-1)*power*dr + 1
			zr := math32.Pow(r, power)
			st, ct := math32.Sincos(theta)
			sp, cp := math32.Sincos(phi)
			z = ms3.Add(ms3.Scale(zr, ms3.Vec{X: st * cp, Y: ct, Z: st * sp}), p)
		}
		if r == 0 {
			dist[i] = 0
			continue
		}
		dist[i] = 0.5 * math32.Log(r) * r / dr
	}
	return nil
}

// quaternion with scalar part w and vector part v.
type quat struct {
	w float32
	v ms3.Vec
}

func (q quat) mul(b quat) quat {
	return quat{
		w: q.w*b.w - ms3.Dot(q.v, b.v),
		v: ms3.Add(ms3.Add(ms3.Scale(q.w, b.v), ms3.Scale(b.w, q.v)), cross(q.v, b.v)),
	}
}

func (q quat) norm2() float32 { return q.w*q.w + ms3.Dot(q.v, q.v) }

func (qj *quaternionJulia) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	c := quat{w: qj.c[0], v: ms3.Vec{X: qj.c[1], Y: qj.c[2], Z: qj.c[3]}}
	for i, p := range pos {
		// The 3D slice maps p=(x,y,z) to quaternion x + y*i + z*j.
		z := quat{w: p.X, v: ms3.Vec{X: p.Y, Y: p.Z}}
		dz := quat{w: 1}
		m2 := z.norm2()
		for it := 0; it < qj.iters; it++ {
			dz = z.mul(dz)
			dz.w *= 2
			dz.v = ms3.Scale(2, dz.v)
			z = z.mul(z)
			z.w += c.w
			z.v = ms3.Add(z.v, c.v)
			m2 = z.norm2()
			if m2 > 4 {
				break
			}
		}
		dzl := math32.Sqrt(dz.norm2())
		if m2 == 0 || dzl == 0 {
			dist[i] = 0
			continue
		}
		r := math32.Sqrt(m2)
		dist[i] = 0.5 * r * math32.Log(r) / dzl
	}
	return nil
}

func (ms *mengerSponge) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	for i, p := range pos {
		q := ms3.AddScalar(-1, ms3.AbsElem(p))
		d := ms3.Norm(ms3.MaxElem(q, ms3.Vec{})) + minf(maxf(q.X, maxf(q.Y, q.Z)), 0)
		var s float32 = 1
		for m := 0; m < ms.iters; m++ {
			a := ms3.Vec{X: modf(p.X*s, 2) - 1, Y: modf(p.Y*s, 2) - 1, Z: modf(p.Z*s, 2) - 1}
			s *= 3
			r := ms3.AbsElem(ms3.AddScalar(1, ms3.Scale(-3, ms3.AbsElem(a))))
			da := maxf(r.X, r.Y)
			db := maxf(r.Y, r.Z)
			dc := maxf(r.Z, r.X)
			c := (minf(da, minf(db, dc)) - 1) / s
			d = maxf(d, c)
		}
		dist[i] = d
	}
	return nil
}

func (st *sierpinskiTetrahedron) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	for i, z := range pos {
		var s float32 = 1
		for n := 0; n < st.iters; n++ {
			if z.X+z.Y < 0 {
				z.X, z.Y = -z.Y, -z.X
			}
			if z.X+z.Z < 0 {
				z.X, z.Z = -z.Z, -z.X
			}
			if z.Y+z.Z < 0 {
				z.Y, z.Z = -z.Z, -z.Y
			}
			z = ms3.AddScalar(-1, ms3.Scale(2, z))
			s *= 0.5
		}
		t := maxf(maxf(-z.X-z.Y-z.Z, z.X+z.Y-z.Z), maxf(-z.X+z.Y+z.Z, z.X-z.Y+z.Z))
		dist[i] = (t - 1) * invSqrt3 * s
	}
	return nil
}

func evaluateSDF3(obj bounder3, pos []ms3.Vec, dist []float32, userData any) error {
	sdf, err := gleval.AssertSDF3(obj)
	if err != nil {
		return err
	}
	return sdf.Evaluate(pos, dist, userData)
}
