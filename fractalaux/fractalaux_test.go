package fractalaux

import (
	"bytes"
	"encoding/binary"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/fractalfolio/fractalfolio"
)

func TestExportAllOutputs(t *testing.T) {
	var bld fractalfolio.Builder
	shape := bld.NewFractal(fractalfolio.KindMengerSponge)
	settings := fractalfolio.DefaultSettings()
	settings.Res = 2
	var stl, visual, pic bytes.Buffer
	err := Export(shape, ExportConfig{
		STLOutput:     &stl,
		VisualOutput:  &visual,
		PNGOutput:     &pic,
		PNGHeight:     64,
		Settings:      &settings,
		EnableCaching: true,
		Silent:        true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if stl.Len() < 84 {
		t.Fatalf("short STL output: %d bytes", stl.Len())
	}
	ntri := binary.LittleEndian.Uint32(stl.Bytes()[80:84])
	if ntri == 0 {
		t.Error("STL has no triangles")
	}
	if want := 84 + 50*int(ntri); stl.Len() != want {
		t.Errorf("STL length %d, want %d", stl.Len(), want)
	}
	if !strings.Contains(visual.String(), "float sdf(vec3 p)") {
		t.Error("visualizer missing sdf entry point")
	}
	img, err := png.Decode(&pic)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Fatalf("image size %v", b)
	}
	first := img.At(0, 0)
	uniform := true
	for y := 0; y < 64 && uniform; y++ {
		for x := 0; x < 64; x++ {
			if img.At(x, y) != first {
				uniform = false
				break
			}
		}
	}
	if uniform {
		t.Error("cross section is a single color")
	}
}

func TestExportRequiresOutput(t *testing.T) {
	var bld fractalfolio.Builder
	err := Export(bld.NewFractal(fractalfolio.KindMandelbulb), ExportConfig{Silent: true})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestExportBadSettings(t *testing.T) {
	var bld fractalfolio.Builder
	settings := fractalfolio.DefaultSettings()
	settings.Bounds = 0
	var stl bytes.Buffer
	err := Export(bld.NewFractal(fractalfolio.KindMandelbulb), ExportConfig{STLOutput: &stl, Settings: &settings, Silent: true})
	if err == nil {
		t.Fatal("expected error")
	}
	if stl.Len() != 0 {
		t.Error("wrote output despite invalid settings")
	}
}

func TestColorConversionInigoQuilez(t *testing.T) {
	conv := ColorConversionInigoQuilez(1)
	if got := conv(math32.NaN()); got != nanColor {
		t.Errorf("NaN color %v", got)
	}
	surface := conv(0).(color.RGBA)
	if surface.R != 255 || surface.G != 255 || surface.B != 255 {
		t.Errorf("surface not white: %v", surface)
	}
	out := conv(0.5).(color.RGBA)
	in := conv(-0.5).(color.RGBA)
	if out.R <= out.B {
		t.Errorf("outside not warm: %v", out)
	}
	if in.B <= in.R {
		t.Errorf("inside not cool: %v", in)
	}
}

func TestColorConversionLinearGradient(t *testing.T) {
	c0 := color.RGBA{R: 255, A: 255}
	c1 := color.RGBA{B: 255, A: 255}
	conv := ColorConversionLinearGradient(2, c0, c1)
	if got := conv(-5); got != color.Color(c0) {
		t.Errorf("deep inside %v", got)
	}
	if got := conv(5); got != color.Color(c1) {
		t.Errorf("far outside %v", got)
	}
	mid := conv(0).(color.RGBA)
	if mid.A != 255 || (mid.R == 255 && mid.B == 0) {
		t.Errorf("midpoint not blended: %v", mid)
	}
}

func TestHSVRoundTrip(t *testing.T) {
	for _, c := range [][3]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {0.2, 0.4, 0.6}, {0.5, 0.5, 0.5}} {
		r, g, b := hsvToRGB(rgbToHSV(c[0], c[1], c[2]))
		if math32.Abs(r-c[0]) > 1e-5 || math32.Abs(g-c[1]) > 1e-5 || math32.Abs(b-c[2]) > 1e-5 {
			t.Errorf("round trip %v gave %v %v %v", c, r, g, b)
		}
	}
}
