// Package scene assembles the fractal scene: it polygonizes a distance
// function into a mesh, frames an orthographic camera around it, and keeps
// the frustum in step with the viewport.
package scene

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"time"

	"github.com/fractalfolio/fractalfolio"
	"github.com/fractalfolio/fractalfolio/gleval"
	"github.com/fractalfolio/fractalfolio/glrender"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/soypat/geometry/ms3"
)

// DefaultZoom is the camera zoom set on reframing, in pixels per world unit.
const DefaultZoom = 120

// ErrDegenerateGeometry is returned when polygonization yields no triangles
// or a mesh whose bounding box has no volume.
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// GeometryID identifies geometry uploaded to a [Backend].
type GeometryID uint32

// MaterialID identifies a material created by a [Backend].
type MaterialID uint32

// Geometry is a non-indexed triangle list: every three consecutive positions
// form a triangle. Normals has one entry per position.
type Geometry struct {
	Positions []ms3.Vec
	Normals   []ms3.Vec
	Bounds    ms3.Box
}

// MaterialSpec describes how a mesh is shaded.
type MaterialSpec struct {
	Mode      fractalfolio.MaterialMode
	Wireframe bool
}

// Backend owns GPU resources on behalf of the scene. Release methods are
// called exactly once per resource.
type Backend interface {
	UploadGeometry(g *Geometry) (GeometryID, error)
	ReleaseGeometry(id GeometryID)
	NewMaterial(spec MaterialSpec) (MaterialID, error)
	ReleaseMaterial(id MaterialID)
}

// Mesh is the polygonized fractal placed in the scene.
type Mesh struct {
	Geometry   Geometry
	GeometryID GeometryID
	Material   MaterialSpec
	MaterialID MaterialID
	// Rotation holds Euler XYZ angles in radians.
	Rotation ms3.Vec
}

// VertexCount returns the number of vertices in the mesh.
func (m *Mesh) VertexCount() int { return len(m.Geometry.Positions) }

// Model returns the mesh's model matrix.
func (m *Mesh) Model() mgl32.Mat4 {
	return mgl32.HomogRotate3DX(m.Rotation.X).
		Mul4(mgl32.HomogRotate3DY(m.Rotation.Y)).
		Mul4(mgl32.HomogRotate3DZ(m.Rotation.Z))
}

// Config configures a [Builder]. The zero value is usable.
type Config struct {
	// Backend receives geometry and materials. Nil selects a backend that only
	// hands out identifiers, for headless use.
	Backend Backend
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// EvalBufferSize is the polygonizer's distance evaluation batch size. Zero selects 1<<14.
	EvalBufferSize int
	// Workers enables parallel distance evaluation when positive.
	Workers int
	// Background is the clear color. The zero value is opaque black.
	Background color.RGBA
	// Zoom is the zoom set by Reframe. Zero selects DefaultZoom.
	Zoom float32
}

// Builder owns the scene's camera, orbit controls and mesh.
type Builder struct {
	backend    Backend
	log        *slog.Logger
	bufSize    int
	workers    int
	zoom       float32
	background color.RGBA

	cam      Camera
	controls OrbitControls
	mesh     *Mesh
	width    int
	height   int

	cache gleval.BlockCachedSDF3
	oc    *glrender.Octree
	// par is created on the first parallel build and reused until Release.
	par *gleval.ParallelSDF3
}

// NewBuilder returns a scene with no mesh and a camera looking down -Z.
func NewBuilder(cfg Config) *Builder {
	bld := &Builder{
		backend:    cfg.Backend,
		log:        cfg.Logger,
		bufSize:    cfg.EvalBufferSize,
		workers:    cfg.Workers,
		zoom:       cfg.Zoom,
		background: cfg.Background,
	}
	if bld.backend == nil {
		bld.backend = &idBackend{}
	}
	if bld.log == nil {
		bld.log = slog.Default()
	}
	if bld.bufSize <= 0 {
		bld.bufSize = 1 << 14
	}
	if bld.zoom <= 0 {
		bld.zoom = DefaultZoom
	}
	if bld.background == (color.RGBA{}) {
		bld.background = color.RGBA{A: 255}
	}
	bld.cam = newCamera(bld.zoom)
	bld.controls = newOrbitControls(&bld.cam)
	return bld
}

// Camera returns the scene camera.
func (bld *Builder) Camera() *Camera { return &bld.cam }

// Controls returns the orbit controls driving the camera.
func (bld *Builder) Controls() *OrbitControls { return &bld.controls }

// Mesh returns the current mesh or nil if none was built.
func (bld *Builder) Mesh() *Mesh { return bld.mesh }

// Background returns the scene's clear color.
func (bld *Builder) Background() color.RGBA { return bld.background }

// Viewport returns the last size passed to OnResize.
func (bld *Builder) Viewport() (w, h int) { return bld.width, bld.height }

// Build polygonizes sdf inside the cube [-Bounds, Bounds]³ at the settings'
// resolution and replaces the current mesh with the result. On success
// settings.VertexCount is updated. On error the current mesh is kept.
func (bld *Builder) Build(settings *fractalfolio.Settings, sdf gleval.SDF3) (*Mesh, error) {
	if sdf == nil {
		return nil, errors.New("nil SDF3")
	}
	err := settings.Validate()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	b := settings.Bounds
	bb := ms3.Box{Min: ms3.Vec{X: -b, Y: -b, Z: -b}, Max: ms3.Vec{X: b, Y: b, Z: b}}
	eval := gleval.OverloadBounds(sdf, bb)
	if bld.workers > 0 {
		if bld.par == nil {
			bld.par, err = gleval.NewParallelSDF3(eval, gleval.ParallelConfig{Workers: bld.workers})
		} else {
			err = bld.par.Reset(eval)
		}
		if err != nil {
			return nil, err
		}
		eval = bld.par
	}
	vp, err := gleval.GetVecPool(eval)
	if err != nil {
		vp = &gleval.VecPool{}
	}

	cells := settings.CellsPerAxis()
	res := 2 * b / float32(cells)
	// Leaf centers sit on odd half-cells so keys at half resolution never alias corners.
	err = bld.cache.Reset(eval, res/2, res/2, res/2)
	if err != nil {
		return nil, err
	}
	if bld.oc == nil {
		bld.oc, err = glrender.NewOctreeRenderer(&bld.cache, cells, bld.bufSize)
	} else {
		err = bld.oc.Reset(&bld.cache, cells)
	}
	if err != nil {
		return nil, err
	}
	triangles, err := glrender.RenderAll(bld.oc, vp)
	if err != nil {
		return nil, fmt.Errorf("polygonizing: %w", err)
	}
	if len(triangles) == 0 {
		return nil, fmt.Errorf("no triangles at %d cells per axis: %w", cells, ErrDegenerateGeometry)
	}
	geomBounds := glrender.TrianglesBounds(triangles)
	sz := geomBounds.Size()
	if !(sz.X*sz.Y*sz.Z > 0) {
		return nil, fmt.Errorf("zero volume mesh bounds %v: %w", sz, ErrDegenerateGeometry)
	}

	positions := make([]ms3.Vec, 0, 3*len(triangles))
	for i := range triangles {
		positions = append(positions, triangles[i][:]...)
	}
	normals := make([]ms3.Vec, len(positions))
	err = gleval.NormalsCentralDiff(eval, positions, normals, res*0.5, vp)
	if err != nil {
		return nil, fmt.Errorf("computing normals: %w", err)
	}
	gleval.NormalizeNormals(normals)

	mesh := &Mesh{
		Geometry: Geometry{Positions: positions, Normals: normals, Bounds: geomBounds},
		Material: MaterialSpec{Mode: settings.Material, Wireframe: settings.Wireframe},
	}
	mesh.MaterialID, err = bld.backend.NewMaterial(mesh.Material)
	if err != nil {
		return nil, fmt.Errorf("creating material: %w", err)
	}
	mesh.GeometryID, err = bld.backend.UploadGeometry(&mesh.Geometry)
	if err != nil {
		bld.backend.ReleaseMaterial(mesh.MaterialID)
		return nil, fmt.Errorf("uploading geometry: %w", err)
	}
	if prev := bld.mesh; prev != nil {
		mesh.Rotation = prev.Rotation
		bld.backend.ReleaseGeometry(prev.GeometryID)
		bld.backend.ReleaseMaterial(prev.MaterialID)
	}
	bld.mesh = mesh
	settings.VertexCount = mesh.VertexCount()
	bld.log.Info("mesh built",
		"triangles", len(triangles),
		"vertices", settings.VertexCount,
		"cells", cells,
		"pruned", bld.oc.TotalPruned(),
		"evaluations", bld.cache.Evaluations(),
		"cachehits", bld.cache.CacheHits(),
		"elapsed", time.Since(start),
	)
	return mesh, nil
}

// Reframe centers the camera on the mesh's bounding box, places it one box
// diagonal away along +Z and resets zoom. Pending orbit motion is discarded.
func (bld *Builder) Reframe(mesh *Mesh) CameraPose {
	if mesh == nil {
		return bld.cam.Pose()
	}
	bb := mesh.Geometry.Bounds
	center := bb.Center()
	diag := bb.Diagonal()
	bld.cam.Target = center
	bld.cam.Position = ms3.Add(center, ms3.Vec{Z: diag})
	bld.cam.Up = ms3.Vec{Y: 1}
	bld.cam.Zoom = bld.zoom
	bld.cam.Far = max(bld.cam.Far, 3*diag)
	bld.controls.Sync()
	return bld.cam.Pose()
}

// ApplyMaterial replaces the mesh's material. The new material is created
// before the old one is released, so the mesh always has one material.
func (bld *Builder) ApplyMaterial(mesh *Mesh, mode fractalfolio.MaterialMode, wireframe bool) error {
	if mesh == nil {
		return errors.New("nil mesh")
	}
	spec := MaterialSpec{Mode: mode, Wireframe: wireframe}
	id, err := bld.backend.NewMaterial(spec)
	if err != nil {
		return fmt.Errorf("creating material: %w", err)
	}
	old := mesh.MaterialID
	mesh.Material, mesh.MaterialID = spec, id
	bld.backend.ReleaseMaterial(old)
	return nil
}

// OnResize recomputes the camera frustum for a w×h pixel viewport.
// Non-positive sizes are ignored. The mesh is never rebuilt.
func (bld *Builder) OnResize(w, h int) {
	if !bld.cam.SetFrustum(w, h) {
		bld.log.Debug("ignoring resize", "width", w, "height", h)
		return
	}
	bld.width, bld.height = w, h
}

// Release frees the current mesh's backend resources and stops the
// evaluation workers.
func (bld *Builder) Release() {
	if bld.par != nil {
		bld.par.Close()
		bld.par = nil
	}
	if bld.mesh == nil {
		return
	}
	bld.backend.ReleaseGeometry(bld.mesh.GeometryID)
	bld.backend.ReleaseMaterial(bld.mesh.MaterialID)
	bld.mesh = nil
}

// idBackend hands out identifiers without holding any resources.
type idBackend struct {
	next uint32
}

func (b *idBackend) UploadGeometry(*Geometry) (GeometryID, error) {
	b.next++
	return GeometryID(b.next), nil
}

func (b *idBackend) ReleaseGeometry(GeometryID) {}

func (b *idBackend) NewMaterial(MaterialSpec) (MaterialID, error) {
	b.next++
	return MaterialID(b.next), nil
}

func (b *idBackend) ReleaseMaterial(MaterialID) {}
