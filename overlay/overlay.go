// Package overlay rasterizes the status text and sound button drawn over
// the scene.
package overlay

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Config configures [Labels]. The zero value is usable.
type Config struct {
	// Title is drawn next to the sound button.
	Title string
	// Footer is drawn at the bottom right.
	Footer string
	// FontSize in points at 72 DPI. Zero selects 14.
	FontSize float64
	// Color of text and button. The zero value selects opaque white.
	Color color.RGBA
	// TTF is a TrueType font file. Nil selects Go Regular.
	TTF []byte
}

const (
	margin     = 12
	buttonSize = 24
	lineGap    = 6
)

// Labels holds the three status slots and the play state and renders them
// to a transparent RGBA image the size of the viewport. It implements
// effect.StatusSink and is safe for concurrent use.
type Labels struct {
	mu      sync.Mutex
	ttf     *truetype.Font
	size    float64
	col     color.RGBA
	title   string
	footer  string
	track   string
	shader  string
	effect  string
	playing bool

	img   *image.RGBA
	dirty bool
}

// New parses the configured font and returns empty labels.
func New(cfg Config) (*Labels, error) {
	ttf := cfg.TTF
	if ttf == nil {
		ttf = goregular.TTF
	}
	f, err := freetype.ParseFont(ttf)
	if err != nil {
		return nil, err
	}
	l := &Labels{
		ttf:    f,
		size:   cfg.FontSize,
		col:    cfg.Color,
		title:  cfg.Title,
		footer: cfg.Footer,
		dirty:  true,
	}
	if l.size <= 0 {
		l.size = 14
	}
	if l.col == (color.RGBA{}) {
		l.col = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	return l, nil
}

func (l *Labels) set(dst *string, s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if *dst != s {
		*dst = s
		l.dirty = true
	}
}

func (l *Labels) SetTrackLabel(name string)  { l.set(&l.track, name) }
func (l *Labels) SetShaderLabel(name string) { l.set(&l.shader, name) }
func (l *Labels) SetEffectLabel(name string) { l.set(&l.effect, name) }

// SetPlaying selects the sound or mute glyph on the button.
func (l *Labels) SetPlaying(playing bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.playing != playing {
		l.playing = playing
		l.dirty = true
	}
}

// Text returns the status slots in track, shader, effect order.
func (l *Labels) Text() [3]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return [3]string{l.track, l.shader, l.effect}
}

// ButtonRect returns the sound button region in viewport pixels, origin top-left.
func ButtonRect() image.Rectangle {
	return image.Rect(margin, margin, margin+buttonSize, margin+buttonSize)
}

// HitButton reports whether viewport pixel (x, y) lies on the sound button.
func HitButton(x, y int) bool {
	return image.Pt(x, y).In(ButtonRect())
}

// Render returns the overlay for a w×h viewport. The image is reused and
// redrawn only when labels, play state or size changed; changed reports a redraw.
func (l *Labels) Render(w, h int) (img *image.RGBA, changed bool, err error) {
	if w <= 0 || h <= 0 {
		return nil, false, errors.New("non-positive overlay size")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.img != nil && !l.dirty && l.img.Rect.Dx() == w && l.img.Rect.Dy() == h {
		return l.img, false, nil
	}
	if l.img == nil || l.img.Rect.Dx() != w || l.img.Rect.Dy() != h {
		l.img = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		draw.Draw(l.img, l.img.Rect, image.Transparent, image.Point{}, draw.Src)
	}
	err = l.draw(l.img)
	if err != nil {
		return nil, false, err
	}
	l.dirty = false
	return l.img, true, nil
}

func (l *Labels) draw(dst *image.RGBA) error {
	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(l.ttf)
	c.SetFontSize(l.size)
	c.SetClip(dst.Bounds())
	c.SetDst(dst)
	c.SetSrc(image.NewUniform(l.col))
	c.SetHinting(font.HintingFull)
	ascent := int(c.PointToFixed(l.size) >> 6)
	lineHeight := ascent + lineGap

	drawButton(dst, ButtonRect(), l.col, l.playing)
	if l.title != "" {
		pt := freetype.Pt(margin+buttonSize+margin, margin+(buttonSize+ascent)/2)
		if _, err := c.DrawString(l.title, pt); err != nil {
			return err
		}
	}
	h := dst.Bounds().Dy()
	y := h - margin - 2*lineHeight
	for _, line := range [3]string{l.track, l.shader, l.effect} {
		if line != "" {
			if _, err := c.DrawString(line, freetype.Pt(margin, y)); err != nil {
				return err
			}
		}
		y += lineHeight
	}
	if l.footer != "" {
		width := textWidth(l.ttf, l.size, l.footer)
		pt := freetype.Pt(dst.Bounds().Dx()-margin-width, h-margin)
		if _, err := c.DrawString(l.footer, pt); err != nil {
			return err
		}
	}
	return nil
}

func textWidth(f *truetype.Font, size float64, s string) int {
	face := truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72})
	defer face.Close()
	return font.MeasureString(face, s).Ceil()
}

// drawButton draws a speaker inside r followed by sound waves when playing
// or a cross when muted.
func drawButton(dst draw.Image, r image.Rectangle, col color.RGBA, playing bool) {
	src := image.NewUniform(col)
	s := r.Dx()
	// Speaker body and cone.
	body := image.Rect(r.Min.X+s/8, r.Min.Y+3*s/8, r.Min.X+3*s/8, r.Min.Y+5*s/8)
	draw.Draw(dst, body, src, image.Point{}, draw.Over)
	coneX0, coneX1 := body.Max.X, r.Min.X+5*s/8
	for x := coneX0; x < coneX1; x++ {
		t := float64(x-coneX0) / float64(coneX1-coneX0)
		half := float64(s)/8 + t*float64(s)/4
		cy := r.Min.Y + s/2
		draw.Draw(dst, image.Rect(x, cy-int(half), x+1, cy+int(half)), src, image.Point{}, draw.Over)
	}
	x0 := r.Min.X + 11*s/16
	if playing {
		for i, half := range [2]int{s / 8, s / 4} {
			x := x0 + i*s/8
			cy := r.Min.Y + s/2
			draw.Draw(dst, image.Rect(x, cy-half, x+2, cy+half), src, image.Point{}, draw.Over)
		}
		return
	}
	n := r.Max.X - x0 - 1
	cy := r.Min.Y + s/2
	for i := 0; i < n; i++ {
		dst.Set(x0+i, cy-n/2+i, col)
		dst.Set(x0+i, cy+n/2-i, col)
	}
}
