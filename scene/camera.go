package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/soypat/geometry/ms3"
)

// Camera is an orthographic camera whose frustum is expressed in viewport
// pixels. Zoom converts pixels to world units: a world unit spans Zoom pixels.
type Camera struct {
	Position ms3.Vec
	Target   ms3.Vec
	Up       ms3.Vec
	Zoom     float32

	Left, Right float32
	Top, Bottom float32
	Near, Far   float32
}

// CameraPose is the framing computed by [Builder.Reframe].
type CameraPose struct {
	Position ms3.Vec
	Target   ms3.Vec
	Zoom     float32
}

func newCamera(zoom float32) Camera {
	return Camera{
		Position: ms3.Vec{Z: 1},
		Up:       ms3.Vec{Y: 1},
		Zoom:     zoom,
		Near:     0.01,
		Far:      1000,
	}
}

// SetFrustum sets the frustum planes to match a viewport of w×h pixels.
// It reports false and leaves the camera untouched for non-positive sizes.
func (c *Camera) SetFrustum(w, h int) bool {
	if w <= 0 || h <= 0 {
		return false
	}
	hw, hh := float32(w)/2, float32(h)/2
	c.Left, c.Right = -hw, hw
	c.Top, c.Bottom = hh, -hh
	return true
}

// Projection returns the orthographic projection matrix.
func (c *Camera) Projection() mgl32.Mat4 {
	z := c.Zoom
	if z <= 0 {
		z = 1
	}
	return mgl32.Ortho(c.Left/z, c.Right/z, c.Bottom/z, c.Top/z, c.Near, c.Far)
}

// View returns the world-to-camera matrix.
func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(vec3(c.Position), vec3(c.Target), vec3(c.Up))
}

// Pose returns the camera's current framing.
func (c *Camera) Pose() CameraPose {
	return CameraPose{Position: c.Position, Target: c.Target, Zoom: c.Zoom}
}

func vec3(v ms3.Vec) mgl32.Vec3 { return mgl32.Vec3{v.X, v.Y, v.Z} }
