package fractalfolio

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/fractalfolio/fractalfolio/glbuild"
	"github.com/fractalfolio/fractalfolio/gleval"
	"github.com/soypat/geometry/ms3"
)

// NewBoundsBoxFrame creates a BoxFrame from a bb ([ms3.Box]) such that the BoxFrame envelops the bb.
// Useful for visualizing the polygonization cube around a fractal.
func (bld *Builder) NewBoundsBoxFrame(bb ms3.Box) glbuild.Shader3D {
	size := bb.Size()
	frameThickness := size.Max() / 256
	// Bounding box's frames protrude.
	size = ms3.AddScalar(2*frameThickness, size)
	bounding := bld.NewBoxFrame(size.X, size.Y, size.Z, frameThickness)
	center := bb.Center()
	return bld.Translate(bounding, center.X, center.Y, center.Z)
}

// NewBoxFrame creates a framed box with the frame being composed of square beams of thickness e.
func (bld *Builder) NewBoxFrame(dimX, dimY, dimZ, e float32) glbuild.Shader3D {
	e /= 2
	if dimX <= 0 || dimY <= 0 || dimZ <= 0 || e <= 0 {
		bld.shapeErrorf("negative or zero BoxFrame dimension")
	}
	d := ms3.Vec{X: dimX, Y: dimY, Z: dimZ}
	if 2*e > d.Min() {
		bld.shapeErrorf("BoxFrame edge thickness too large")
	}
	return &boxframe{dims: d, e: e}
}

type boxframe struct {
	dims ms3.Vec
	e    float32
}

func (bf *boxframe) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (bf *boxframe) AppendShaderName(b []byte) []byte {
	b = append(b, "boxframe"...)
	arr := bf.dims.Array()
	b = glbuild.AppendFloats(b, 0, 'n', 'p', arr[:]...)
	b = glbuild.AppendFloat(b, 'n', 'p', bf.e)
	return b
}

func (bf *boxframe) AppendShaderBody(b []byte) []byte {
	e, bb := bf.args()
	b = glbuild.AppendFloatDecl(b, "e", e)
	b = glbuild.AppendVec3Decl(b, "b", bb)
	b = append(b, `p = abs(p)-b;
vec3 q = abs(p+e)-e;
return min(min(
      length(max(vec3(p.x,q.y,q.z),0.0))+min(max(p.x,max(q.y,q.z)),0.0),
      length(max(vec3(q.x,p.y,q.z),0.0))+min(max(q.x,max(p.y,q.z)),0.0)),
      length(max(vec3(q.x,q.y,p.z),0.0))+min(max(q.x,max(q.y,p.z)),0.0));`...)
	return b
}

func (bf *boxframe) Bounds() ms3.Box {
	return ms3.NewCenteredBox(ms3.Vec{}, bf.dims)
}

func (bf *boxframe) args() (e float32, b ms3.Vec) {
	dd := ms3.Scale(0.5, bf.dims)
	dd = ms3.AddScalar(-2*bf.e, dd)
	return bf.e, dd
}

func (bf *boxframe) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	e, b := bf.args()
	var z3 ms3.Vec
	for i, p := range pos {
		p = ms3.Sub(ms3.AbsElem(p), b)
		q := ms3.AddScalar(-e, ms3.AbsElem(ms3.AddScalar(e, p)))
		s1 := math32.Min(0, math32.Max(p.X, math32.Max(q.Y, q.Z)))
		n1 := ms3.Norm(ms3.MaxElem(ms3.Vec{X: p.X, Y: q.Y, Z: q.Z}, z3)) + s1
		s2 := math32.Min(0, math32.Max(q.X, math32.Max(p.Y, q.Z)))
		n2 := ms3.Norm(ms3.MaxElem(ms3.Vec{X: q.X, Y: p.Y, Z: q.Z}, z3)) + s2
		s3 := math32.Min(0, math32.Max(q.X, math32.Max(q.Y, p.Z)))
		n3 := ms3.Norm(ms3.MaxElem(ms3.Vec{X: q.X, Y: q.Y, Z: p.Z}, z3)) + s3
		dist[i] = math32.Min(n1, math32.Min(n2, n3))
	}
	return nil
}

// Translate moves the SDF s in the given direction (dirX, dirY, dirZ) and returns the result.
func (bld *Builder) Translate(s glbuild.Shader3D, dirX, dirY, dirZ float32) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Translate")
	}
	return &translate{s: s, p: ms3.Vec{X: dirX, Y: dirY, Z: dirZ}}
}

type translate struct {
	s glbuild.Shader3D
	p ms3.Vec
}

func (t *translate) Bounds() ms3.Box {
	return t.s.Bounds().Add(t.p)
}

func (t *translate) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return fn(userData, &t.s)
}

func (t *translate) AppendShaderName(b []byte) []byte {
	b = append(b, "translate"...)
	arr := t.p.Array()
	b = glbuild.AppendFloats(b, 0, 'n', 'p', arr[:]...)
	b = append(b, '_')
	b = t.s.AppendShaderName(b)
	return b
}

func (t *translate) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendVec3Decl(b, "t", t.p)
	b = append(b, "return "...)
	b = t.s.AppendShaderName(b)
	b = append(b, "(p-t);"...)
	return b
}

func (t *translate) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	transPos := vp.V3.Acquire(len(pos))
	defer vp.V3.Release(transPos)
	for i, p := range pos {
		transPos[i] = ms3.Sub(p, t.p)
	}
	return evaluateSDF3(t.s, transPos, dist, userData)
}

// Scale scales the SDF s uniformly by scaleFactor about the origin.
func (bld *Builder) Scale(s glbuild.Shader3D, scaleFactor float32) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Scale")
	}
	if scaleFactor <= 0 {
		bld.shapeErrorf("non-positive scale factor")
	}
	return &scale{s: s, scale: scaleFactor}
}

type scale struct {
	s     glbuild.Shader3D
	scale float32
}

func (s *scale) Bounds() ms3.Box {
	b := s.s.Bounds()
	return ms3.Box{Min: ms3.Scale(s.scale, b.Min), Max: ms3.Scale(s.scale, b.Max)}
}

func (s *scale) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return fn(userData, &s.s)
}

func (s *scale) AppendShaderName(b []byte) []byte {
	b = append(b, "scale"...)
	b = glbuild.AppendFloat(b, 'n', 'p', s.scale)
	b = append(b, '_')
	b = s.s.AppendShaderName(b)
	return b
}

func (s *scale) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendFloatDecl(b, "s", s.scale)
	b = append(b, "return "...)
	b = s.s.AppendShaderName(b)
	b = append(b, "(p/s)*s;"...)
	return b
}

func (s *scale) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	scaledPos := vp.V3.Acquire(len(pos))
	defer vp.V3.Release(scaledPos)
	inv := 1 / s.scale
	for i, p := range pos {
		scaledPos[i] = ms3.Scale(inv, p)
	}
	err = evaluateSDF3(s.s, scaledPos, dist, userData)
	if err != nil {
		return err
	}
	for i := range dist {
		dist[i] *= s.scale
	}
	return nil
}

// union joins two or more 3D SDFs. Nested unions are flattened.
type union struct {
	joined []glbuild.Shader3D
}

// Union joins the shapes of several 3D SDFs into one. Is exact.
func (bld *Builder) Union(shaders ...glbuild.Shader3D) glbuild.Shader3D {
	if len(shaders) < 2 {
		panic("need at least 2 arguments to Union")
	}
	var U union
	for i, s := range shaders {
		if s == nil {
			bld.nilsdf(fmt.Sprintf("nil arg[%d] to Union", i))
		}
		if subU, ok := s.(*union); ok {
			U.joined = append(U.joined, subU.joined...)
		} else {
			U.joined = append(U.joined, s)
		}
	}
	return &U
}

func (u *union) Bounds() ms3.Box {
	bb := u.joined[0].Bounds()
	for _, bb2 := range u.joined[1:] {
		bb = bb.Union(bb2.Bounds())
	}
	return bb
}

func (u *union) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	for i := range u.joined {
		err := fn(userData, &u.joined[i])
		if err != nil {
			return err
		}
	}
	return nil
}

func (u *union) AppendShaderName(b []byte) []byte {
	b = append(b, "union_"...)
	for i := range u.joined {
		b = u.joined[i].AppendShaderName(b)
		if i < len(u.joined)-1 {
			b = append(b, '_')
		}
	}
	return b
}

func (u *union) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendDistanceDecl(b, "d", "p", u.joined[0])
	for i := range u.joined[1:] {
		b = append(b, "d=min(d,"...)
		b = u.joined[i+1].AppendShaderName(b)
		b = append(b, "(p));\n"...)
	}
	b = append(b, "return d;"...)
	return b
}

func (u *union) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	err = evaluateSDF3(u.joined[0], pos, dist, userData)
	if err != nil {
		return err
	}
	auxDist := vp.Float.Acquire(len(dist))
	defer vp.Float.Release(auxDist)
	for _, s := range u.joined[1:] {
		err = evaluateSDF3(s, pos, auxDist, userData)
		if err != nil {
			return err
		}
		for i, d := range auxDist {
			dist[i] = math32.Min(dist[i], d)
		}
	}
	return nil
}
