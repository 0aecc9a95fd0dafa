package scene

import (
	"errors"
	"io"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/fractalfolio/fractalfolio"
	"github.com/fractalfolio/fractalfolio/gleval"
	"github.com/soypat/geometry/ms3"
)

func TestBuildFractals(t *testing.T) {
	var shapes fractalfolio.Builder
	for _, k := range fractalfolio.Kinds() {
		t.Run(k.String(), func(t *testing.T) {
			sdf, err := gleval.NewCPUSDF3(shapes.NewFractal(k))
			if err != nil {
				t.Fatal(err)
			}
			settings := fractalfolio.DefaultSettings()
			backend := &countingBackend{}
			bld := NewBuilder(Config{Backend: backend, Logger: discardLogger()})
			mesh, err := bld.Build(&settings, sdf)
			if err != nil {
				t.Fatal(err)
			}
			if settings.VertexCount == 0 || settings.VertexCount != mesh.VertexCount() {
				t.Errorf("vertex count %d, mesh has %d", settings.VertexCount, mesh.VertexCount())
			}
			if len(mesh.Geometry.Normals) != len(mesh.Geometry.Positions) {
				t.Errorf("normals %d positions %d", len(mesh.Geometry.Normals), len(mesh.Geometry.Positions))
			}
			if sz := mesh.Geometry.Bounds.Size(); sz.X*sz.Y*sz.Z <= 0 {
				t.Errorf("zero volume bounds %+v", mesh.Geometry.Bounds)
			}
			for i, n := range mesh.Geometry.Normals {
				if l := ms3.Norm(n); math32.Abs(l-1) > 1e-3 {
					t.Fatalf("normal %d not unit length: %v", i, n)
				}
			}
			if backend.uploads != 1 || backend.materials != 1 {
				t.Errorf("want one upload and one material, got %d and %d", backend.uploads, backend.materials)
			}
		})
	}
}

func TestBuildDegenerateKeepsMesh(t *testing.T) {
	backend := &countingBackend{}
	bld := NewBuilder(Config{Backend: backend, Logger: discardLogger()})
	settings := fractalfolio.DefaultSettings()
	settings.Res = 2
	mesh, err := bld.Build(&settings, sphere{r: 1})
	if err != nil {
		t.Fatal(err)
	}
	count := settings.VertexCount
	_, err = bld.Build(&settings, sphere{r: -1})
	if !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("want ErrDegenerateGeometry, got %v", err)
	}
	if bld.Mesh() != mesh {
		t.Error("mesh replaced after failed build")
	}
	if settings.VertexCount != count {
		t.Errorf("vertex count changed to %d after failed build", settings.VertexCount)
	}
	if backend.geomReleases != 0 || backend.matReleases != 0 {
		t.Errorf("resources released after failed build: %+v", backend)
	}
}

func TestRebuildReleasesPrevious(t *testing.T) {
	backend := &countingBackend{}
	bld := NewBuilder(Config{Backend: backend, Logger: discardLogger()})
	settings := fractalfolio.DefaultSettings()
	settings.Res = 2
	first, err := bld.Build(&settings, sphere{r: 1})
	if err != nil {
		t.Fatal(err)
	}
	first.Rotation = ms3.Vec{X: 1, Y: 2, Z: 3}
	second, err := bld.Build(&settings, sphere{r: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if backend.geomReleased[first.GeometryID] != 1 || backend.matReleased[first.MaterialID] != 1 {
		t.Errorf("previous resources not released exactly once: %+v", backend)
	}
	if backend.geomReleased[second.GeometryID] != 0 || backend.matReleased[second.MaterialID] != 0 {
		t.Error("new resources released")
	}
	if second.Rotation != first.Rotation {
		t.Errorf("rotation not carried over: %v", second.Rotation)
	}
	bld.Release()
	if backend.geomReleased[second.GeometryID] != 1 || backend.matReleased[second.MaterialID] != 1 {
		t.Error("Release did not free current mesh")
	}
	if bld.Mesh() != nil {
		t.Error("mesh kept after Release")
	}
}

func TestParallelBuildsDoNotLeakWorkers(t *testing.T) {
	before := runtime.NumGoroutine()
	bld := NewBuilder(Config{Logger: discardLogger(), Workers: 8})
	settings := fractalfolio.DefaultSettings()
	settings.Res = 2
	for i := 0; i < 5; i++ {
		if _, err := bld.Build(&settings, sphere{r: 1}); err != nil {
			t.Fatal(err)
		}
	}
	bld.Release()
	deadline := time.Now().Add(time.Second)
	after := runtime.NumGoroutine()
	for after > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		after = runtime.NumGoroutine()
	}
	if after > before {
		t.Errorf("goroutines before=%d after 5 builds and Release=%d", before, after)
	}
}

func TestResizeHalvesFrustum(t *testing.T) {
	backend := &countingBackend{}
	bld := NewBuilder(Config{Backend: backend, Logger: discardLogger()})
	settings := fractalfolio.DefaultSettings()
	settings.Res = 2
	mesh, err := bld.Build(&settings, sphere{r: 1})
	if err != nil {
		t.Fatal(err)
	}
	bld.OnResize(800, 600)
	cam := *bld.Camera()
	bld.OnResize(400, 300)
	got := bld.Camera()
	for _, c := range []struct {
		name     string
		big, got float32
	}{
		{"left", cam.Left, got.Left},
		{"right", cam.Right, got.Right},
		{"top", cam.Top, got.Top},
		{"bottom", cam.Bottom, got.Bottom},
	} {
		if c.got != c.big/2 {
			t.Errorf("%s: want %g, got %g", c.name, c.big/2, c.got)
		}
	}
	if cam.Right != 400 || cam.Top != 300 {
		t.Errorf("frustum for 800x600 is %g,%g", cam.Right, cam.Top)
	}
	// Repeated resizes are idempotent.
	bld.OnResize(400, 300)
	if *bld.Camera() != *got {
		t.Error("resize not idempotent")
	}
	bld.OnResize(0, -1)
	if bld.Camera().Right != 200 {
		t.Error("non-positive resize modified frustum")
	}
	if bld.Mesh() != mesh || backend.uploads != 1 {
		t.Error("resize rebuilt mesh")
	}
	w, h := bld.Viewport()
	if w != 400 || h != 300 {
		t.Errorf("viewport %dx%d", w, h)
	}
}

func TestApplyMaterialReleasesOnce(t *testing.T) {
	backend := &countingBackend{}
	bld := NewBuilder(Config{Backend: backend, Logger: discardLogger()})
	settings := fractalfolio.DefaultSettings()
	settings.Res = 2
	mesh, err := bld.Build(&settings, sphere{r: 1})
	if err != nil {
		t.Fatal(err)
	}
	old := mesh.MaterialID
	err = bld.ApplyMaterial(mesh, fractalfolio.MaterialDepth, true)
	if err != nil {
		t.Fatal(err)
	}
	if backend.matReleased[old] != 1 {
		t.Errorf("old material released %d times", backend.matReleased[old])
	}
	if mesh.MaterialID == old || backend.matReleased[mesh.MaterialID] != 0 {
		t.Error("new material not active")
	}
	if backend.materials-backend.matReleases != 1 {
		t.Errorf("want exactly one live material, got %d", backend.materials-backend.matReleases)
	}
	if mesh.Material.Mode != fractalfolio.MaterialDepth || !mesh.Material.Wireframe {
		t.Errorf("material spec not applied: %+v", mesh.Material)
	}
}

func TestReframe(t *testing.T) {
	bld := NewBuilder(Config{Logger: discardLogger()})
	mesh := &Mesh{Geometry: Geometry{Bounds: ms3.Box{Min: ms3.Vec{X: 1, Y: 1, Z: 1}, Max: ms3.Vec{X: 3, Y: 5, Z: 1 + 4}}}}
	bld.Controls().Scroll(5)
	pose := bld.Reframe(mesh)
	wantTarget := ms3.Vec{X: 2, Y: 3, Z: 3}
	if pose.Target != wantTarget {
		t.Errorf("target %v, want %v", pose.Target, wantTarget)
	}
	diag := mesh.Geometry.Bounds.Diagonal()
	if d := ms3.Norm(ms3.Sub(pose.Position, pose.Target)); math32.Abs(d-diag) > 1e-5 {
		t.Errorf("camera distance %g, want %g", d, diag)
	}
	if pose.Zoom != DefaultZoom {
		t.Errorf("zoom %g", pose.Zoom)
	}
	if bld.Controls().Update() {
		t.Error("pending zoom survived reframe")
	}
}

func TestOrbitDamping(t *testing.T) {
	cam := newCamera(DefaultZoom)
	cam.Position = ms3.Vec{Z: 5}
	oc := newOrbitControls(&cam)
	oc.PointerDown(0, 0)
	oc.PointerMove(10, 0)
	oc.PointerUp()
	want := -10 * oc.RotateSpeed
	if !oc.Update() {
		t.Fatal("no motion")
	}
	az := math32.Atan2(cam.Position.X, cam.Position.Z)
	if math32.Abs(az-want*DefaultDamping) > 1e-5 {
		t.Errorf("first update azimuth %g, want %g", az, want*DefaultDamping)
	}
	for i := 0; i < 400; i++ {
		oc.Update()
	}
	az = math32.Atan2(cam.Position.X, cam.Position.Z)
	if math32.Abs(az-want) > 1e-4 {
		t.Errorf("settled azimuth %g, want %g", az, want)
	}
	if r := ms3.Norm(cam.Position); math32.Abs(r-5) > 1e-4 {
		t.Errorf("orbit radius changed to %g", r)
	}

	oc.Scroll(1)
	for i := 0; i < 400; i++ {
		oc.Update()
	}
	if math32.Abs(cam.Zoom-DefaultZoom*(1+oc.ZoomSpeed)) > 1e-2 {
		t.Errorf("zoom %g, want %g", cam.Zoom, DefaultZoom*(1+oc.ZoomSpeed))
	}
}

func TestOrbitElevationClamped(t *testing.T) {
	cam := newCamera(DefaultZoom)
	cam.Position = ms3.Vec{Z: 2}
	oc := newOrbitControls(&cam)
	oc.Damping = 1
	oc.PointerDown(0, 0)
	oc.PointerMove(0, 1e4)
	oc.Update()
	if cam.Position.Y >= 2 || cam.Position.Y <= 1.9 {
		t.Errorf("elevation not clamped below pole: %v", cam.Position)
	}
}

func TestMeshModelRotation(t *testing.T) {
	m := Mesh{Rotation: ms3.Vec{Z: math32.Pi / 2}}
	v := m.Model().Mul4x1([4]float32{1, 0, 0, 1})
	if math32.Abs(v[0]) > 1e-6 || math32.Abs(v[1]-1) > 1e-6 {
		t.Errorf("rotating X by 90° about Z gave %v", v)
	}
}

type sphere struct{ r float32 }

func (s sphere) Evaluate(pos []ms3.Vec, dist []float32, _ any) error {
	for i, p := range pos {
		dist[i] = ms3.Norm(p) - s.r
	}
	return nil
}

func (s sphere) Bounds() ms3.Box {
	r := math32.Abs(s.r)
	return ms3.Box{Min: ms3.Vec{X: -r, Y: -r, Z: -r}, Max: ms3.Vec{X: r, Y: r, Z: r}}
}

type countingBackend struct {
	next         uint32
	uploads      int
	materials    int
	geomReleases int
	matReleases  int
	geomReleased map[GeometryID]int
	matReleased  map[MaterialID]int
}

func (b *countingBackend) UploadGeometry(*Geometry) (GeometryID, error) {
	b.next++
	b.uploads++
	return GeometryID(b.next), nil
}

func (b *countingBackend) ReleaseGeometry(id GeometryID) {
	if b.geomReleased == nil {
		b.geomReleased = make(map[GeometryID]int)
	}
	b.geomReleases++
	b.geomReleased[id]++
}

func (b *countingBackend) NewMaterial(MaterialSpec) (MaterialID, error) {
	b.next++
	b.materials++
	return MaterialID(b.next), nil
}

func (b *countingBackend) ReleaseMaterial(id MaterialID) {
	if b.matReleased == nil {
		b.matReleased = make(map[MaterialID]int)
	}
	b.matReleases++
	b.matReleased[id]++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
