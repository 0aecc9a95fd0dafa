package fractalaux

import (
	"image/color"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

// The HSV helpers follow Esme Lamb's (@dedelala) color work presented at
// Gophercon AU 2024. https://github.com/dedelala/disco/tree/main/color

var nanColor = color.RGBA{R: 255, A: 255}

// ColorConversionInigoQuilez colors distances with [Inigo Quilez]'s contour
// bands: orange outside, blue inside and white on the surface. A good
// characteristic distance is the bounds diagonal divided by 3. NaN distances
// are red.
//
// [Inigo Quilez]: https://iquilezles.org/articles/distfunctions2d/
func ColorConversionInigoQuilez(characteristicDistance float32) func(float32) color.Color {
	inv := 1 / characteristicDistance
	return func(d float32) color.Color {
		if math32.IsNaN(d) {
			return nanColor
		}
		d *= inv
		var c ms3.Vec
		if d > 0 {
			c = ms3.Vec{X: 0.9, Y: 0.6, Z: 0.3}
		} else {
			c = ms3.Vec{X: 0.65, Y: 0.85, Z: 1.0}
		}
		ad := math32.Abs(d)
		c = ms3.Scale((1-math32.Exp(-6*ad))*(0.8+0.2*math32.Cos(150*d)), c)
		edge := 1 - smoothstep(0, 0.01, ad)
		c = ms3.Vec{X: interp(c.X, 1, edge), Y: interp(c.Y, 1, edge), Z: interp(c.Z, 1, edge)}
		return color.RGBA{
			R: uint8(clamp(c.X, 0, 1) * 255),
			G: uint8(clamp(c.Y, 0, 1) * 255),
			B: uint8(clamp(c.Z, 0, 1) * 255),
			A: 255,
		}
	}
}

// ColorConversionLinearGradient blends from c0 inside the surface to c1
// outside it over a band of width gradientLength centered on d=0. Colors are
// interpolated in HSV space.
func ColorConversionLinearGradient(gradientLength float32, c0, c1 color.Color) func(d float32) color.Color {
	h0, s0, v0 := colorToHSV(c0)
	h1, s1, v1 := colorToHSV(c1)
	return func(d float32) color.Color {
		blend := d/gradientLength + 0.5
		if blend <= 0 || math32.IsNaN(d) {
			return c0
		} else if blend >= 1 {
			return c1
		}
		r, g, b := hsvToRGB(interpHSV(h0, s0, v0, h1, s1, v1, blend))
		return color.RGBA{
			R: uint8(clamp(r, 0, 1) * 255),
			G: uint8(clamp(g, 0, 1) * 255),
			B: uint8(clamp(b, 0, 1) * 255),
			A: 255,
		}
	}
}

func interpHSV(h0, s0, v0, h1, s1, v1, t float32) (h, s, v float32) {
	switch {
	case h1-h0 > 0.5:
		h0 += 1
	case h1-h0 < -0.5:
		h1 += 1
	}
	h = interp(h0, h1, t)
	if h > 1 {
		h -= 1
	}
	return h, interp(s0, s1, t), interp(v0, v1, t)
}

func colorToHSV(c color.Color) (h, s, v float32) {
	r, g, b, _ := c.RGBA()
	return rgbToHSV(float32(r)/0xffff, float32(g)/0xffff, float32(b)/0xffff)
}

// hsvToRGB converts hue, saturation and value in [0, 1] to RGB in [0, 1].
func hsvToRGB(h, s, v float32) (r, g, b float32) {
	c := s * v
	x := c * (1 - math32.Abs(math32.Mod(h*6, 2)-1))
	m := v - c
	switch {
	case h <= 1.0/6:
		r, g, b = c, x, 0
	case h <= 2.0/6:
		r, g, b = x, c, 0
	case h <= 3.0/6:
		r, g, b = 0, c, x
	case h <= 4.0/6:
		r, g, b = 0, x, c
	case h <= 5.0/6:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return r + m, g + m, b + m
}

// rgbToHSV converts RGB in [0, 1] to hue, saturation and value in [0, 1].
func rgbToHSV(r, g, b float32) (h, s, v float32) {
	xmax := max(r, g, b)
	c := xmax - min(r, g, b)
	v = xmax
	switch {
	case c == 0:
		h = 0
	case v == r:
		h = (g - b) / (c * 6)
	case v == g:
		h = 1.0/3 + (b-r)/(c*6)
	default:
		h = 2.0/3 + (r-g)/(c*6)
	}
	if h < 0 {
		h += 1
	}
	if xmax > 0 {
		s = c / xmax
	}
	return h, s, v
}

func interp(a, b, t float32) float32 { return a + (b-a)*t }

func clamp(v, lo, hi float32) float32 { return math32.Max(lo, math32.Min(v, hi)) }

func smoothstep(e0, e1, x float32) float32 {
	t := clamp((x-e0)/(e1-e0), 0, 1)
	return t * t * (3 - 2*t)
}
