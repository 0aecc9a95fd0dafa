//go:build !tinygo && cgo

package glview

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fractalfolio/fractalfolio/overlay"
	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// Window is a GLFW window with a current OpenGL 4.6 core context. It
// implements session.Viewport. All methods must be called from the main
// OS thread.
type Window struct {
	win *glfw.Window
	log *slog.Logger

	nextID   int
	frameFns []frameFn
	sizeFns  []sizeFn

	input  Input
	toggle func()
	keyFn  func(key rune)
	// fbScale converts cursor coordinates to framebuffer pixels.
	fbScaleX, fbScaleY float32
}

type frameFn struct {
	id int
	fn func(dt float32)
}

type sizeFn struct {
	id int
	fn func(w, h int)
}

// Open creates the window and makes its context current.
func Open(cfg WindowConfig) (*Window, error) {
	cfg.defaults()
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("initializing GLFW: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 6)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	win, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("creating GLFW window: %w", err)
	}
	win.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		win.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("initializing OpenGL: %w", err)
	}
	glfw.SwapInterval(1)
	w := &Window{win: win, log: cfg.Logger, fbScaleX: 1, fbScaleY: 1}
	w.updateScale()
	cfg.Logger.Info("window opened", "gl", gl.GoStr(gl.GetString(gl.VERSION)), "width", cfg.Width, "height", cfg.Height)

	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.updateScale()
		gl.Viewport(0, 0, int32(width), int32(height))
		for _, s := range w.sizeFns {
			s.fn(width, height)
		}
	})
	win.SetMouseButtonCallback(w.onMouseButton)
	win.SetCursorPosCallback(func(_ *glfw.Window, xpos, ypos float64) {
		if w.input != nil {
			x, y := w.toFramebuffer(xpos, ypos)
			w.input.PointerMove(x, y)
		}
	})
	win.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		if w.input != nil {
			w.input.Scroll(float32(yoff))
		}
	})
	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeySpace:
			if w.toggle != nil {
				w.toggle()
			}
		case glfw.KeyEscape:
			w.win.SetShouldClose(true)
		default:
			if key >= glfw.KeyA && key <= glfw.KeyZ && w.keyFn != nil {
				w.keyFn(rune(key))
			}
		}
	})
	return w, nil
}

func (w *Window) onMouseButton(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
	if button != glfw.MouseButtonLeft || w.input == nil {
		return
	}
	x, y := w.toFramebuffer(w.win.GetCursorPos())
	switch action {
	case glfw.Press:
		if overlay.HitButton(int(x), int(y)) {
			if w.toggle != nil {
				w.toggle()
			}
			return
		}
		w.input.PointerDown(x, y)
	case glfw.Release:
		w.input.PointerUp()
	}
}

func (w *Window) updateScale() {
	ww, wh := w.win.GetSize()
	fw, fh := w.win.GetFramebufferSize()
	if ww > 0 && wh > 0 {
		w.fbScaleX = float32(fw) / float32(ww)
		w.fbScaleY = float32(fh) / float32(wh)
	}
}

func (w *Window) toFramebuffer(xpos, ypos float64) (x, y float32) {
	return float32(xpos) * w.fbScaleX, float32(ypos) * w.fbScaleY
}

// SetInput routes pointer input to in. toggle is called on the space key and
// on clicks over the overlay's sound button.
func (w *Window) SetInput(in Input, toggle func()) {
	w.input = in
	w.toggle = toggle
}

// SetKeyHandler registers fn for presses of letter keys, reported as
// upper case runes.
func (w *Window) SetKeyHandler(fn func(key rune)) {
	w.keyFn = fn
}

// Size returns the framebuffer size in pixels.
func (w *Window) Size() (width, height int) {
	return w.win.GetFramebufferSize()
}

// OnResize registers fn for framebuffer size changes.
func (w *Window) OnResize(fn func(w, h int)) (deregister func()) {
	w.nextID++
	id := w.nextID
	w.sizeFns = append(w.sizeFns, sizeFn{id: id, fn: fn})
	return func() {
		for i := range w.sizeFns {
			if w.sizeFns[i].id == id {
				w.sizeFns = append(w.sizeFns[:i], w.sizeFns[i+1:]...)
				return
			}
		}
	}
}

// OnFrame registers fn to be called every refresh in [Window.Run].
func (w *Window) OnFrame(fn func(dt float32)) (deregister func()) {
	w.nextID++
	id := w.nextID
	w.frameFns = append(w.frameFns, frameFn{id: id, fn: fn})
	return func() {
		for i := range w.frameFns {
			if w.frameFns[i].id == id {
				w.frameFns = append(w.frameFns[:i], w.frameFns[i+1:]...)
				return
			}
		}
	}
}

// Run calls the frame callbacks once per refresh until the window is closed
// or ctx is done.
func (w *Window) Run(ctx context.Context) error {
	prev := glfw.GetTime()
	for !w.win.ShouldClose() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		now := glfw.GetTime()
		dt := float32(now - prev)
		prev = now
		for i := 0; i < len(w.frameFns); i++ {
			w.frameFns[i].fn(dt)
		}
		w.win.SwapBuffers()
		glfw.PollEvents()
	}
	w.log.Info("window closed")
	return nil
}

// Close destroys the window and terminates GLFW.
func (w *Window) Close() {
	w.win.Destroy()
	glfw.Terminate()
}
