package fractalfolio

import (
	"fmt"

	"github.com/fractalfolio/fractalfolio/glbuild"
	"github.com/soypat/geometry/ms3"
)

// Kind enumerates the fractals a session can be built from.
type Kind uint8

const (
	KindMandelbulb Kind = iota
	KindQuaternionJulia
	KindMengerSponge
	KindSierpinskiTetrahedron
	numKinds
)

// Kinds returns all fractal kinds in selection order.
func Kinds() []Kind {
	return []Kind{KindMandelbulb, KindQuaternionJulia, KindMengerSponge, KindSierpinskiTetrahedron}
}

// String returns the display name shown in the status overlay.
func (k Kind) String() string {
	switch k {
	case KindMandelbulb:
		return "Mandelbulb"
	case KindQuaternionJulia:
		return "Quaternion Julia"
	case KindMengerSponge:
		return "Menger Sponge"
	case KindSierpinskiTetrahedron:
		return "Sierpinski Tetrahedron"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind parses a short fractal name: mandelbulb, julia, menger or sierpinski.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "mandelbulb":
		return KindMandelbulb, nil
	case "julia":
		return KindQuaternionJulia, nil
	case "menger":
		return KindMengerSponge, nil
	case "sierpinski":
		return KindSierpinskiTetrahedron, nil
	}
	return 0, fmt.Errorf("unknown fractal %q", s)
}

// Default parameters used by [Builder.NewFractal].
const (
	DefaultMandelbulbPower      = 8
	DefaultMandelbulbIterations = 16
	DefaultJuliaIterations      = 16
	DefaultMengerIterations     = 4
	DefaultSierpinskiIterations = 5
)

// DefaultJuliaC is the quaternion constant of the default Julia set. It lies in
// the interior of the main cardioid so the set is connected.
var DefaultJuliaC = [4]float32{-0.1, 0.45, 0.4, 0}

// NewFractal returns the fractal of the given kind with default parameters.
func (bld *Builder) NewFractal(k Kind) glbuild.Shader3D {
	switch k {
	case KindMandelbulb:
		return bld.NewMandelbulb(DefaultMandelbulbPower, DefaultMandelbulbIterations)
	case KindQuaternionJulia:
		return bld.NewQuaternionJulia(DefaultJuliaC, DefaultJuliaIterations)
	case KindMengerSponge:
		return bld.NewMengerSponge(DefaultMengerIterations)
	case KindSierpinskiTetrahedron:
		return bld.NewSierpinskiTetrahedron(DefaultSierpinskiIterations)
	}
	bld.shapeErrorf("unknown fractal kind %d", uint8(k))
	return nil
}

type mandelbulb struct {
	power   float32
	iters   int
	bailout float32
}

// NewMandelbulb creates a Mandelbulb with its pole along the Y axis using the
// distance estimator 0.5*log(r)*r/dr.
func (bld *Builder) NewMandelbulb(power float32, iterations int) glbuild.Shader3D {
	if power < 2 {
		bld.shapeErrorf("mandelbulb power must be at least 2")
	}
	if iterations < 1 {
		bld.shapeErrorf("mandelbulb needs at least one iteration")
	}
	return &mandelbulb{power: power, iters: iterations, bailout: 2}
}

func (mb *mandelbulb) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (mb *mandelbulb) AppendShaderName(b []byte) []byte {
	b = append(b, "mandelbulb"...)
	b = glbuild.AppendFloat(b, 'n', 'p', mb.power)
	b = append(b, 'i')
	b = glbuild.AppendFloat(b, 'n', 'p', float32(mb.iters))
	return b
}

func (mb *mandelbulb) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendFloatDecl(b, "power", mb.power)
	b = glbuild.AppendFloatDecl(b, "bailout", mb.bailout)
	b = glbuild.AppendIntDecl(b, "iters", mb.iters)
	b = append(b, `vec3 z=p;
float dr=1.0;
float r=0.0;
for(int i=0;i<iters;i++){
	r=length(z);
	if(r>bailout || r==0.0) break;
	float theta=acos(clamp(z.y/r,-1.0,1.0))*power;
	float phi=atan(z.z,z.x)*power;
	dr=pow(r,power-1.0)*power*dr+1.0;
	float zr=pow(r,power);
	z=zr*vec3(sin(theta)*cos(phi),cos(theta),sin(theta)*sin(phi))+p;
}
if(r==0.0) return 0.0;
return 0.5*log(r)*r/dr;`...)
	return b
}

func (mb *mandelbulb) Bounds() ms3.Box {
	return ms3.NewCenteredBox(ms3.Vec{}, ms3.Vec{X: 2.4, Y: 2.4, Z: 2.4})
}

type quaternionJulia struct {
	c     [4]float32
	iters int
}

// NewQuaternionJulia creates the 3D slice (w=0) of the quaternion Julia set of z²+c.
func (bld *Builder) NewQuaternionJulia(c [4]float32, iterations int) glbuild.Shader3D {
	if iterations < 1 {
		bld.shapeErrorf("julia set needs at least one iteration")
	}
	if c[0]*c[0]+c[1]*c[1]+c[2]*c[2]+c[3]*c[3] > 4 {
		bld.shapeErrorf("julia constant outside escape radius")
	}
	return &quaternionJulia{c: c, iters: iterations}
}

func (qj *quaternionJulia) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (qj *quaternionJulia) AppendShaderName(b []byte) []byte {
	b = append(b, "qjulia"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', qj.c[:]...)
	b = append(b, 'i')
	b = glbuild.AppendFloat(b, 'n', 'p', float32(qj.iters))
	return b
}

func (qj *quaternionJulia) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendVec4Decl(b, "c", qj.c)
	b = glbuild.AppendIntDecl(b, "iters", qj.iters)
	b = append(b, `vec4 z=vec4(p,0.0);
vec4 dz=vec4(1.0,0.0,0.0,0.0);
float m2=dot(z,z);
for(int i=0;i<iters;i++){
	dz=2.0*vec4(z.x*dz.x-dot(z.yzw,dz.yzw), z.x*dz.yzw+dz.x*z.yzw+cross(z.yzw,dz.yzw));
	z=vec4(z.x*z.x-dot(z.yzw,z.yzw), 2.0*z.x*z.yzw)+c;
	m2=dot(z,z);
	if(m2>4.0) break;
}
float dzl=length(dz);
if(m2==0.0 || dzl==0.0) return 0.0;
float r=sqrt(m2);
return 0.5*r*log(r)/dzl;`...)
	return b
}

func (qj *quaternionJulia) Bounds() ms3.Box {
	return ms3.NewCenteredBox(ms3.Vec{}, ms3.Vec{X: 3, Y: 3, Z: 3})
}

type mengerSponge struct {
	iters int
}

// NewMengerSponge creates a Menger sponge of unit half side centered at the origin.
func (bld *Builder) NewMengerSponge(iterations int) glbuild.Shader3D {
	if iterations < 0 {
		bld.shapeErrorf("negative menger sponge iterations")
	}
	return &mengerSponge{iters: iterations}
}

func (ms *mengerSponge) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (ms *mengerSponge) AppendShaderName(b []byte) []byte {
	b = append(b, "menger"...)
	b = glbuild.AppendFloat(b, 'n', 'p', float32(ms.iters))
	return b
}

func (ms *mengerSponge) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendIntDecl(b, "iters", ms.iters)
	b = append(b, `vec3 q=abs(p)-vec3(1.0);
float d=length(max(q,0.0))+min(max(q.x,max(q.y,q.z)),0.0);
float s=1.0;
for(int m=0;m<iters;m++){
	vec3 a=mod(p*s,2.0)-1.0;
	s*=3.0;
	vec3 r=abs(1.0-3.0*abs(a));
	float da=max(r.x,r.y);
	float db=max(r.y,r.z);
	float dc=max(r.z,r.x);
	float c=(min(da,min(db,dc))-1.0)/s;
	d=max(d,c);
}
return d;`...)
	return b
}

func (ms *mengerSponge) Bounds() ms3.Box {
	return ms3.NewCenteredBox(ms3.Vec{}, ms3.Vec{X: 2, Y: 2, Z: 2})
}

type sierpinskiTetrahedron struct {
	iters int
}

// NewSierpinskiTetrahedron creates a Sierpinski tetrahedron with vertices at
// (1,1,1), (-1,-1,1), (-1,1,-1) and (1,-1,-1) by space folding.
func (bld *Builder) NewSierpinskiTetrahedron(iterations int) glbuild.Shader3D {
	if iterations < 0 {
		bld.shapeErrorf("negative sierpinski iterations")
	}
	return &sierpinskiTetrahedron{iters: iterations}
}

func (st *sierpinskiTetrahedron) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (st *sierpinskiTetrahedron) AppendShaderName(b []byte) []byte {
	b = append(b, "sierpinski"...)
	b = glbuild.AppendFloat(b, 'n', 'p', float32(st.iters))
	return b
}

func (st *sierpinskiTetrahedron) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendIntDecl(b, "iters", st.iters)
	b = append(b, `vec3 z=p;
float s=1.0;
for(int n=0;n<iters;n++){
	if(z.x+z.y<0.0) z.xy=-z.yx;
	if(z.x+z.z<0.0) z.xz=-z.zx;
	if(z.y+z.z<0.0) z.zy=-z.yz;
	z=2.0*z-vec3(1.0);
	s*=0.5;
}
float t=max(max(-z.x-z.y-z.z,z.x+z.y-z.z),max(-z.x+z.y+z.z,z.x-z.y+z.z));
return (t-1.0)*0.577350269*s;`...)
	return b
}

func (st *sierpinskiTetrahedron) Bounds() ms3.Box {
	return ms3.NewCenteredBox(ms3.Vec{}, ms3.Vec{X: 2, Y: 2, Z: 2})
}
