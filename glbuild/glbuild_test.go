package glbuild_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fractalfolio/fractalfolio"
	"github.com/fractalfolio/fractalfolio/glbuild"
	"github.com/soypat/geometry/ms3"
)

func TestShaderNameDeduplication(t *testing.T) {
	var bld fractalfolio.Builder
	// s1 and s2 are identical in name and body but different instances.
	s1 := bld.NewFractal(fractalfolio.KindMengerSponge)
	s2 := bld.NewFractal(fractalfolio.KindMengerSponge)
	s1s1 := bld.Union(s1, s1)
	s1s2 := bld.Union(s1, s2)
	s1Name := string(s1.AppendShaderName(nil))
	s2Name := string(s2.AppendShaderName(nil))
	if s1Name != s2Name {
		t.Error("expected same name, got\n", s1Name, "\n", s2Name)
	}
	decl := "float " + s1Name + "(vec3 p)"
	for _, obj := range []glbuild.Shader3D{s1s1, s1s2} {
		programmer := glbuild.NewDefaultProgrammer()
		source := new(bytes.Buffer)
		n, err := programmer.WriteVisualizerSDF3(source, obj)
		if err != nil {
			t.Fatal(err)
		} else if n != source.Len() {
			t.Fatal("written length mismatch")
		}
		src := source.String()
		declCount := strings.Count(src, decl)
		if declCount != 1 {
			t.Errorf("\n%s\nVisualizer: want one declaration, got %d", src, declCount)
		}
		source.Reset()
		n, err = programmer.WriteComputeSDF3(source, obj)
		if err != nil {
			t.Fatal(err)
		} else if n != source.Len() {
			t.Fatal("written length mismatch")
		}
		src = source.String()
		declCount = strings.Count(src, decl)
		if declCount != 1 {
			t.Errorf("\n%s\nCompute: want one declaration, got %d", src, declCount)
		}
	}
}

type namedShader struct {
	name, body string
}

func (ns *namedShader) AppendShaderName(b []byte) []byte { return append(b, ns.name...) }
func (ns *namedShader) AppendShaderBody(b []byte) []byte { return append(b, ns.body...) }
func (ns *namedShader) Bounds() ms3.Box                  { return ms3.Box{Max: ms3.Vec{X: 1, Y: 1, Z: 1}} }
func (ns *namedShader) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func TestShaderNameConflict(t *testing.T) {
	var bld fractalfolio.Builder
	a := &namedShader{name: "shape", body: "return length(p)-1.0;"}
	b := &namedShader{name: "shape", body: "return length(p)-2.0;"}
	programmer := glbuild.NewDefaultProgrammer()
	var source bytes.Buffer
	_, _, err := programmer.WriteSDFDecl(&source, bld.Union(a, b))
	if err == nil {
		t.Fatal("expected conflicting shader name error")
	}
}

func TestComputeHeader(t *testing.T) {
	var bld fractalfolio.Builder
	programmer := glbuild.NewDefaultProgrammer()
	programmer.SetComputeInvocations(64, 1, 1)
	var source bytes.Buffer
	_, err := programmer.WriteComputeSDF3(&source, bld.NewFractal(fractalfolio.KindMandelbulb))
	if err != nil {
		t.Fatal(err)
	}
	src := source.String()
	if !strings.HasPrefix(src, "#shader compute\n"+glbuild.VersionStr) {
		t.Error("missing glgl compute header")
	}
	if !strings.Contains(src, "local_size_x = 64") {
		t.Error("invocation size not applied")
	}
}

func TestAppendFloat(t *testing.T) {
	for _, tc := range []struct {
		v    float32
		want string
	}{
		{v: 8, want: "8p"},
		{v: -0.5, want: "n0p5"},
		{v: 0.25, want: "0p25"},
	} {
		got := string(glbuild.AppendFloat(nil, 'n', 'p', tc.v))
		if got != tc.want {
			t.Errorf("AppendFloat(%g): want %q, got %q", tc.v, tc.want, got)
		}
	}
}

func TestFormatShader(t *testing.T) {
	var bld fractalfolio.Builder
	shape := bld.Translate(bld.NewFractal(fractalfolio.KindSierpinskiTetrahedron), 1, 0, 0)
	got := glbuild.FormatShader(shape)
	if got != "translate(sierpinskiTetrahedron)" {
		t.Errorf("unexpected format %q", got)
	}
}
