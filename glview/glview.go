// Package glview displays a session in a GLFW window using OpenGL 4.6. It
// provides the window viewport, the GPU geometry and material backend and the
// frame renderer with post-processing and the status overlay.
package glview

import (
	"errors"
	"log/slog"
)

var errNoCGO = errors.New("glview requires cgo")

// WindowConfig configures the window.
type WindowConfig struct {
	Title  string
	Width  int
	Height int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (cfg *WindowConfig) defaults() {
	if cfg.Title == "" {
		cfg.Title = "fractalfolio"
	}
	if cfg.Width <= 0 {
		cfg.Width = 1280
	}
	if cfg.Height <= 0 {
		cfg.Height = 720
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
}

// Input receives pointer events in framebuffer pixels.
type Input interface {
	PointerDown(x, y float32)
	PointerMove(x, y float32)
	PointerUp()
	Scroll(steps float32)
}
