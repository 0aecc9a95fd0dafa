package scene

import (
	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

// DefaultDamping is the fraction of pending orbit motion applied per update.
const DefaultDamping = 0.05

// OrbitControls rotates a [Camera] around its target on a sphere and zooms it.
// Pointer and scroll input accumulate pending motion which [OrbitControls.Update]
// applies with damping, so motion eases out over several frames after input stops.
type OrbitControls struct {
	cam *Camera

	// Damping is the fraction of pending motion consumed by each Update, in (0, 1].
	Damping float32
	// RotateSpeed is radians of orbit per dragged pixel.
	RotateSpeed float32
	// ZoomSpeed scales zoom per scroll step: zoom *= (1+ZoomSpeed)^steps.
	ZoomSpeed        float32
	MinZoom, MaxZoom float32

	dragging     bool
	lastX, lastY float32

	dAzimuth   float32
	dElevation float32
	dLogZoom   float32
}

const maxElevation = math32.Pi/2 - 0.01

func newOrbitControls(cam *Camera) OrbitControls {
	return OrbitControls{
		cam:         cam,
		Damping:     DefaultDamping,
		RotateSpeed: 0.01,
		ZoomSpeed:   0.1,
		MinZoom:     1,
		MaxZoom:     10000,
	}
}

// PointerDown starts a rotation drag at viewport pixel (x, y).
func (oc *OrbitControls) PointerDown(x, y float32) {
	oc.dragging = true
	oc.lastX, oc.lastY = x, y
}

// PointerMove accumulates rotation while dragging.
func (oc *OrbitControls) PointerMove(x, y float32) {
	if !oc.dragging {
		return
	}
	oc.dAzimuth -= (x - oc.lastX) * oc.RotateSpeed
	oc.dElevation += (y - oc.lastY) * oc.RotateSpeed
	oc.lastX, oc.lastY = x, y
}

// PointerUp ends a drag. Pending motion keeps easing out.
func (oc *OrbitControls) PointerUp() { oc.dragging = false }

// Dragging reports whether a drag is in progress.
func (oc *OrbitControls) Dragging() bool { return oc.dragging }

// Scroll accumulates zoom. Positive steps zoom in.
func (oc *OrbitControls) Scroll(steps float32) {
	oc.dLogZoom += steps * math32.Log1p(oc.ZoomSpeed)
}

// Sync discards pending motion, used after the camera is reframed.
func (oc *OrbitControls) Sync() {
	oc.dAzimuth, oc.dElevation, oc.dLogZoom = 0, 0, 0
	oc.dragging = false
}

// Update applies the damped fraction of pending motion to the camera and
// reports whether the camera moved.
func (oc *OrbitControls) Update() bool {
	if oc.cam == nil {
		return false
	}
	damp := oc.Damping
	if damp <= 0 || damp > 1 {
		damp = 1
	}
	const eps = 1e-7
	if math32.Abs(oc.dAzimuth) < eps && math32.Abs(oc.dElevation) < eps && math32.Abs(oc.dLogZoom) < eps {
		oc.dAzimuth, oc.dElevation, oc.dLogZoom = 0, 0, 0
		return false
	}
	offset := ms3.Sub(oc.cam.Position, oc.cam.Target)
	radius := ms3.Norm(offset)
	if radius > 0 {
		azimuth := math32.Atan2(offset.X, offset.Z)
		elevation := math32.Asin(clamp(offset.Y/radius, -1, 1))
		azimuth += oc.dAzimuth * damp
		elevation = clamp(elevation+oc.dElevation*damp, -maxElevation, maxElevation)
		cosElev := math32.Cos(elevation)
		oc.cam.Position = ms3.Add(oc.cam.Target, ms3.Vec{
			X: radius * cosElev * math32.Sin(azimuth),
			Y: radius * math32.Sin(elevation),
			Z: radius * cosElev * math32.Cos(azimuth),
		})
	}
	zoom := oc.cam.Zoom * math32.Exp(oc.dLogZoom*damp)
	oc.cam.Zoom = clamp(zoom, oc.MinZoom, oc.MaxZoom)

	oc.dAzimuth *= 1 - damp
	oc.dElevation *= 1 - damp
	oc.dLogZoom *= 1 - damp
	return true
}

func clamp(v, lo, hi float32) float32 {
	return math32.Min(hi, math32.Max(lo, v))
}
