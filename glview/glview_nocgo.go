//go:build tinygo || !cgo

package glview

import (
	"context"
	"log/slog"

	"github.com/fractalfolio/fractalfolio/overlay"
	"github.com/fractalfolio/fractalfolio/scene"
	"github.com/fractalfolio/fractalfolio/session"
)

type Window struct{}

func Open(cfg WindowConfig) (*Window, error) { return nil, errNoCGO }

func (w *Window) SetInput(in Input, toggle func())                {}
func (w *Window) SetKeyHandler(fn func(key rune))                 {}
func (w *Window) Size() (width, height int)                       { return 0, 0 }
func (w *Window) OnResize(fn func(w, h int)) (deregister func())  { return func() {} }
func (w *Window) OnFrame(fn func(dt float32)) (deregister func()) { return func() {} }
func (w *Window) Run(ctx context.Context) error                   { return errNoCGO }
func (w *Window) Close()                                          {}

type Backend struct{}

func NewBackend(logger *slog.Logger) *Backend { return &Backend{} }

func (b *Backend) UploadGeometry(g *scene.Geometry) (scene.GeometryID, error) { return 0, errNoCGO }
func (b *Backend) ReleaseGeometry(id scene.GeometryID)                        {}
func (b *Backend) NewMaterial(spec scene.MaterialSpec) (scene.MaterialID, error) {
	return 0, errNoCGO
}
func (b *Backend) ReleaseMaterial(id scene.MaterialID) {}

type Renderer struct{}

func NewRenderer(win *Window, backend *Backend, labels *overlay.Labels, logger *slog.Logger) (*Renderer, error) {
	return nil, errNoCGO
}

func (r *Renderer) Render(f *session.Frame) error { return errNoCGO }
func (r *Renderer) Close()                        {}
