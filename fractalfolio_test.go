package fractalfolio

import (
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/fractalfolio/fractalfolio/glbuild"
	"github.com/fractalfolio/fractalfolio/gleval"
	"github.com/fractalfolio/fractalfolio/glrender"
	"github.com/soypat/geometry/ms3"
)

func TestFractalsPolygonize(t *testing.T) {
	settings := DefaultSettings()
	settings.Res = 3
	var bld Builder
	for _, k := range Kinds() {
		t.Run(k.String(), func(t *testing.T) {
			shape := bld.NewFractal(k)
			sdf, err := gleval.NewCPUSDF3(shape)
			if err != nil {
				t.Fatal(err)
			}
			b := settings.Bounds
			bounded := gleval.OverloadBounds(sdf, ms3.Box{Min: ms3.Vec{X: -b, Y: -b, Z: -b}, Max: ms3.Vec{X: b, Y: b, Z: b}})
			oc, err := glrender.NewOctreeRenderer(bounded, settings.CellsPerAxis(), 1<<14)
			if err != nil {
				t.Fatal(err)
			}
			triangles, err := glrender.RenderAll(oc, sdf.VecPool())
			if err != nil {
				t.Fatal(err)
			}
			if len(triangles) == 0 {
				t.Fatal("no triangles")
			}
			bb := glrender.TrianglesBounds(triangles)
			sz := bb.Size()
			if sz.X*sz.Y*sz.Z <= 0 {
				t.Fatalf("zero volume bounding box %+v", bb)
			}
		})
	}
	if err := bld.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestFractalSigns(t *testing.T) {
	var bld Builder
	far := ms3.Vec{X: 1.45, Y: 1.45, Z: 1.45}
	for _, tc := range []struct {
		k      Kind
		inside ms3.Vec
	}{
		{k: KindMandelbulb, inside: ms3.Vec{X: 0.1, Y: 0.05}},
		{k: KindQuaternionJulia, inside: ms3.Vec{X: 0.01}},
		{k: KindMengerSponge, inside: ms3.Vec{X: 0.99, Y: 0.99, Z: 0.99}},
		{k: KindSierpinskiTetrahedron, inside: ms3.Vec{X: 0.99, Y: 0.99, Z: 0.99}},
	} {
		sdf, err := gleval.NewCPUSDF3(bld.NewFractal(tc.k))
		if err != nil {
			t.Fatal(err)
		}
		var dist [2]float32
		err = sdf.Evaluate([]ms3.Vec{tc.inside, far}, dist[:], nil)
		if err != nil {
			t.Fatal(err)
		}
		if !(dist[0] < 0) {
			t.Errorf("%s: want negative distance at %v, got %g", tc.k, tc.inside, dist[0])
		}
		if !(dist[1] > 0) {
			t.Errorf("%s: want positive distance at %v, got %g", tc.k, far, dist[1])
		}
		if math32.IsNaN(dist[0]) || math32.IsNaN(dist[1]) {
			t.Errorf("%s: NaN distance", tc.k)
		}
	}
}

func TestMandelbulbOrigin(t *testing.T) {
	var bld Builder
	sdf, err := gleval.NewCPUSDF3(bld.NewFractal(KindMandelbulb))
	if err != nil {
		t.Fatal(err)
	}
	var d [1]float32
	err = sdf.Evaluate([]ms3.Vec{{}}, d[:], nil)
	if err != nil {
		t.Fatal(err)
	}
	if d[0] != 0 {
		t.Errorf("origin must evaluate to 0 so it is never pruned, got %g", d[0])
	}
}

func TestKindNames(t *testing.T) {
	seen := make(map[string]bool)
	for _, k := range Kinds() {
		name := k.String()
		if strings.HasPrefix(name, "Kind(") || seen[name] {
			t.Errorf("bad or duplicate name %q", name)
		}
		seen[name] = true
	}
	if len(Kinds()) != int(numKinds) {
		t.Error("Kinds does not list every kind")
	}
	for name, want := range map[string]Kind{"mandelbulb": KindMandelbulb, "julia": KindQuaternionJulia, "menger": KindMengerSponge, "sierpinski": KindSierpinskiTetrahedron} {
		got, err := ParseKind(name)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseKind("torus"); err == nil {
		t.Error("expected error for unknown fractal")
	}
}

func TestBuilderAccumulatesErrors(t *testing.T) {
	bld := Builder{NoDimensionPanic: true}
	bld.NewMandelbulb(1, 0)
	bld.NewBoxFrame(-1, 1, 1, 0.1)
	err := bld.Err()
	if err == nil {
		t.Fatal("expected accumulated errors")
	}
	if !strings.Contains(err.Error(), "power") || !strings.Contains(err.Error(), "BoxFrame") {
		t.Errorf("missing error messages: %v", err)
	}
	bld.ClearErrors()
	if bld.Err() != nil {
		t.Error("errors not cleared")
	}
}

func TestBuilderPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on invalid dimension")
		}
	}()
	var bld Builder
	bld.NewMengerSponge(-1)
}

func TestOperationsCPU(t *testing.T) {
	var bld Builder
	frame := bld.NewBoxFrame(2, 2, 2, 0.1)
	moved := bld.Translate(frame, 1, 0, 0)
	scaled := bld.Scale(frame, 2)
	joined := bld.Union(moved, scaled)
	sdf, err := gleval.NewCPUSDF3(joined)
	if err != nil {
		t.Fatal(err)
	}
	// Points just inside the frame corners and the hollow center of the moved frame.
	pos := []ms3.Vec{{X: 1.88, Y: 0.88, Z: 0.88}, {X: 1.76, Y: 1.76, Z: 1.76}, {X: 1, Y: 0, Z: 0}}
	dist := make([]float32, len(pos))
	err = sdf.Evaluate(pos, dist, nil)
	if err != nil {
		t.Fatal(err)
	}
	if dist[0] > 1e-3 {
		t.Errorf("moved frame corner: want <=0, got %g", dist[0])
	}
	if dist[1] > 1e-3 {
		t.Errorf("scaled frame corner: want <=0, got %g", dist[1])
	}
	if dist[2] <= 0 {
		t.Errorf("moved frame center is hollow: want >0, got %g", dist[2])
	}
	if err := sdf.VecPool().AssertAllReleased(); err != nil {
		t.Error(err)
	}
	bb := joined.Bounds()
	if bb.Max.X != 2 || bb.Min.X != -2 {
		t.Errorf("unexpected union bounds %+v", bb)
	}
}

func TestFractalGLSL(t *testing.T) {
	var bld Builder
	for _, k := range Kinds() {
		shape := bld.NewFractal(k)
		name := string(shape.AppendShaderName(nil))
		if strings.ContainsAny(name, ".-") {
			t.Errorf("%s: shader name %q is not a valid identifier", k, name)
		}
		var src strings.Builder
		prog := glbuild.NewDefaultProgrammer()
		_, err := prog.WriteComputeSDF3(&src, shape)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(src.String(), "float "+name+"(vec3 p)") {
			t.Errorf("%s: missing declaration in\n%s", k, src.String())
		}
	}
}

func TestSettingsValidate(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatal(err)
	}
	for _, b := range []float32{0, -1, math32.NaN(), math32.Inf(1), math32.Inf(-1)} {
		s := DefaultSettings()
		s.Bounds = b
		if err := s.Validate(); err == nil {
			t.Errorf("bounds %g accepted", b)
		}
	}
	for _, res := range []int{-1, 9} {
		s := DefaultSettings()
		s.Res = res
		if err := s.Validate(); err == nil {
			t.Errorf("resolution %d accepted", res)
		}
	}
}
