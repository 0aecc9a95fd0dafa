package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/chewxy/math32"
	"github.com/fractalfolio/fractalfolio"
	"github.com/fractalfolio/fractalfolio/audio"
	"github.com/fractalfolio/fractalfolio/effect"
	"github.com/fractalfolio/fractalfolio/glbuild"
	"github.com/fractalfolio/fractalfolio/gleval"
	"github.com/soypat/geometry/ms3"
)

func TestEndToEndFirstFrame(t *testing.T) {
	vp := &fakeViewport{w: 800, h: 600}
	rd := &fakeRenderer{}
	au := &fakeAudio{loudness: 128}
	status := &recordSink{}
	settings := fractalfolio.DefaultSettings()
	settings.Res = 3
	s, err := New(Config{
		Viewport: vp,
		Renderer: rd,
		Audio:    au,
		Status:   status,
		Rand:     zeroRand{},
		Settings: &settings,
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != Uninitialized {
		t.Fatalf("state %v", s.State())
	}
	err = s.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != Running {
		t.Fatalf("state %v after start", s.State())
	}
	if s.Fractal() != fractalfolio.Kinds()[0] || s.Effect().Kind() != effect.Kinds()[0] || s.Track() != audio.Catalog[0] {
		t.Fatalf("unexpected selections %v %v %v", s.Fractal(), s.Effect().Kind(), s.Track())
	}
	if status.shader != fractalfolio.Kinds()[0].String() || status.effect != effect.Kinds()[0].String() || status.track != audio.Catalog[0].Name {
		t.Errorf("status labels %+v", status)
	}
	if s.Settings().VertexCount == 0 {
		t.Error("vertex count not written")
	}
	if cam := s.Camera(); cam.Right != 400 || cam.Top != 300 {
		t.Errorf("frustum not sized at start: %+v", cam)
	}
	if au.loads != 1 {
		t.Errorf("audio loaded %d times", au.loads)
	}
	if vp.frame == nil || vp.resize == nil {
		t.Fatal("callbacks not registered")
	}

	before := s.Mesh().Rotation
	vp.frame(0.016)
	after := s.Mesh().Rotation
	want := float32(DefaultRotationSpeed * 0.016)
	for i, d := range [3]float32{after.X - before.X, after.Y - before.Y, after.Z - before.Z} {
		if math32.Abs(d-want) > 1e-6 {
			t.Errorf("axis %d rotated %g, want %g", i, d, want)
		}
	}
	lo, hi := s.Effect().Range()
	if got := s.Effect().Value(); math32.Abs(got-(lo+hi)/2) > 1e-6 {
		t.Errorf("effect value %g, want midpoint %g", got, (lo+hi)/2)
	}
	if rd.frames != 1 {
		t.Fatalf("rendered %d frames", rd.frames)
	}
	if rd.last.Mesh != s.Mesh() || rd.last.Effect != s.Effect() || rd.last.Loudness.Average != 128 {
		t.Errorf("frame contents %+v", rd.last)
	}
	s.Stop()
}

func TestStartMissingContainer(t *testing.T) {
	for _, vp := range []Viewport{nil, &fakeViewport{w: 0, h: 600}} {
		s, err := New(Config{Viewport: vp, Renderer: &fakeRenderer{}, Audio: &fakeAudio{}, Logger: discardLogger()})
		if err != nil {
			t.Fatal(err)
		}
		err = s.Start(context.Background())
		if !errors.Is(err, ErrMissingContainer) {
			t.Errorf("want ErrMissingContainer, got %v", err)
		}
		if s.State() != Uninitialized {
			t.Errorf("state %v after failed start", s.State())
		}
	}
}

func TestStopDeregisters(t *testing.T) {
	vp := &fakeViewport{w: 320, h: 240}
	rd := &fakeRenderer{}
	s := startSphereSession(t, vp, rd, &fakeAudio{})
	frame := vp.frame
	s.Stop()
	if vp.frameDeregs != 1 || vp.resizeDeregs != 1 {
		t.Errorf("deregistered frame %d resize %d times", vp.frameDeregs, vp.resizeDeregs)
	}
	s.Stop()
	if vp.frameDeregs != 1 || vp.resizeDeregs != 1 {
		t.Error("second Stop deregistered again")
	}
	frame(0.016)
	if rd.frames != 0 {
		t.Error("stopped session rendered")
	}
	if s.State() != Stopped {
		t.Errorf("state %v", s.State())
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("restart of stopped session succeeded")
	}
}

func TestRenderErrorsCountedAndPanicsRecovered(t *testing.T) {
	vp := &fakeViewport{w: 320, h: 240}
	rd := &fakeRenderer{err: errors.New("lost context")}
	s := startSphereSession(t, vp, rd, &fakeAudio{})
	vp.frame(0.016)
	vp.frame(0.016)
	if st := s.Stats(); st.RenderErrors != 2 || st.Frames != 2 {
		t.Errorf("stats %+v", st)
	}
	rd.err = nil
	rd.panic = true
	vp.frame(0.016)
	if st := s.Stats(); st.Panics != 1 {
		t.Errorf("stats %+v", st)
	}
	rd.panic = false
	vp.frame(0.016)
	if rd.frames != 4 {
		t.Errorf("frame loop stopped after panic, rendered %d", rd.frames)
	}
}

func TestResizeDoesNotRebuild(t *testing.T) {
	vp := &fakeViewport{w: 800, h: 600}
	s := startSphereSession(t, vp, &fakeRenderer{}, &fakeAudio{})
	mesh := s.Mesh()
	vp.resize(400, 300)
	cam := s.Camera()
	if cam.Right != 200 || cam.Top != 150 || cam.Left != -200 || cam.Bottom != -150 {
		t.Errorf("frustum %+v", cam)
	}
	if s.Mesh() != mesh {
		t.Error("resize rebuilt mesh")
	}
}

func TestDegenerateMeshStillRenders(t *testing.T) {
	vp := &fakeViewport{w: 320, h: 240}
	rd := &fakeRenderer{}
	settings := fractalfolio.DefaultSettings()
	settings.Res = 2
	s, err := New(Config{
		Viewport:  vp,
		Renderer:  rd,
		Audio:     &fakeAudio{},
		Rand:      zeroRand{},
		Settings:  &settings,
		Evaluator: func(glbuild.Shader3D) (gleval.SDF3, error) { return sphere{r: -1}, nil },
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Mesh() != nil {
		t.Fatal("degenerate mesh attached")
	}
	vp.frame(0.016)
	if rd.frames != 1 || rd.last.Mesh != nil {
		t.Errorf("background-only frame not rendered: %d", rd.frames)
	}
}

func TestNoModulationWithoutAudio(t *testing.T) {
	vp := &fakeViewport{w: 320, h: 240}
	s := startSphereSession(t, vp, &fakeRenderer{}, &fakeAudio{err: audio.ErrNotLoaded})
	fx := s.Effect()
	lo, _ := fx.Range()
	vp.frame(0.016)
	if fx.Value() != lo {
		t.Errorf("effect modulated without audio: %g", fx.Value())
	}
}

func TestAudioPanicStillRenders(t *testing.T) {
	vp := &fakeViewport{w: 320, h: 240}
	rd := &fakeRenderer{}
	s := startSphereSession(t, vp, rd, &fakeAudio{loudness: 200, panic: true})
	fx := s.Effect()
	lo, _ := fx.Range()
	vp.frame(0.016)
	if rd.frames != 1 {
		t.Fatalf("frame skipped after audio panic, rendered %d", rd.frames)
	}
	if st := s.Stats(); st.Panics != 1 || st.Frames != 1 {
		t.Errorf("stats %+v", st)
	}
	if fx.Value() != lo {
		t.Errorf("effect modulated by panicking audio: %g", fx.Value())
	}
	if rd.last.Loudness.Average != 0 {
		t.Errorf("loudness %g reached renderer", rd.last.Loudness.Average)
	}
}

func TestToggleAudioUpdatesPlayGlyph(t *testing.T) {
	au := &fakeAudio{}
	status := &recordSink{}
	s, err := New(Config{Renderer: &fakeRenderer{}, Audio: au, Status: status, Logger: discardLogger()})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []bool{true, false} {
		playing, err := s.ToggleAudio(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if playing != want || status.playing != want {
			t.Errorf("playing %v glyph %v, want %v", playing, status.playing, want)
		}
	}
}

func TestRebuildKeepsMeshOnFailure(t *testing.T) {
	vp := &fakeViewport{w: 320, h: 240}
	s := startSphereSession(t, vp, &fakeRenderer{}, &fakeAudio{})
	mesh := s.Mesh()
	prev := s.Settings()
	bad := prev
	bad.Bounds = -1
	if err := s.Rebuild(bad); err == nil {
		t.Fatal("expected error")
	}
	if s.Mesh() != mesh || s.Settings() != prev {
		t.Error("failed rebuild changed state")
	}
	good := prev
	good.Res = 3
	if err := s.Rebuild(good); err != nil {
		t.Fatal(err)
	}
	if s.Mesh() == mesh || s.Settings().VertexCount == 0 {
		t.Error("rebuild did not replace mesh")
	}
}

func TestSetMaterialKeepsGeometry(t *testing.T) {
	vp := &fakeViewport{w: 320, h: 240}
	s := startSphereSession(t, vp, &fakeRenderer{}, &fakeAudio{})
	mesh := s.Mesh()
	geom, mat := mesh.GeometryID, mesh.MaterialID
	if err := s.SetMaterial(fractalfolio.MaterialDepth, true); err != nil {
		t.Fatal(err)
	}
	if s.Mesh() != mesh || mesh.GeometryID != geom {
		t.Error("material swap rebuilt geometry")
	}
	if mesh.MaterialID == mat || mesh.Material.Mode != fractalfolio.MaterialDepth || !mesh.Material.Wireframe {
		t.Errorf("material not applied: %+v", mesh.Material)
	}
	if st := s.Settings(); st.Material != fractalfolio.MaterialDepth || !st.Wireframe {
		t.Errorf("settings not updated: %+v", st)
	}
}

func startSphereSession(t *testing.T, vp *fakeViewport, rd *fakeRenderer, au *fakeAudio) *Session {
	t.Helper()
	settings := fractalfolio.DefaultSettings()
	settings.Res = 2
	s, err := New(Config{
		Viewport:  vp,
		Renderer:  rd,
		Audio:     au,
		Rand:      zeroRand{},
		Settings:  &settings,
		Evaluator: func(glbuild.Shader3D) (gleval.SDF3, error) { return sphere{r: 1}, nil },
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

type zeroRand struct{}

func (zeroRand) Intn(int) int { return 0 }

type fakeViewport struct {
	w, h         int
	frame        func(dt float32)
	resize       func(w, h int)
	frameDeregs  int
	resizeDeregs int
}

func (v *fakeViewport) Size() (int, int) { return v.w, v.h }

func (v *fakeViewport) OnResize(fn func(w, h int)) func() {
	v.resize = fn
	return func() { v.resizeDeregs++ }
}

func (v *fakeViewport) OnFrame(fn func(dt float32)) func() {
	v.frame = fn
	return func() { v.frameDeregs++ }
}

type fakeRenderer struct {
	frames int
	last   Frame
	err    error
	panic  bool
}

func (r *fakeRenderer) Render(f *Frame) error {
	r.frames++
	r.last = *f
	if r.panic {
		panic("renderer exploded")
	}
	return r.err
}

type fakeAudio struct {
	loudness float32
	err      error
	panic    bool
	loads    int
	playing  bool
}

func (a *fakeAudio) ChooseTrack(rng audio.Rand) audio.Track {
	return audio.Catalog[rng.Intn(len(audio.Catalog))]
}

func (a *fakeAudio) LoadAsync(context.Context, audio.Track) *audio.LoadHandle {
	a.loads++
	h, complete := audio.NewLoadHandle()
	complete(nil)
	return h
}

func (a *fakeAudio) Toggle(context.Context) (bool, error) {
	a.playing = !a.playing
	return a.playing, nil
}

func (a *fakeAudio) SampleLoudness() (audio.Loudness, error) {
	if a.panic {
		panic("analyser exploded")
	} else if a.err != nil {
		return audio.Loudness{}, a.err
	}
	return audio.Loudness{Average: a.loudness}, nil
}

type recordSink struct {
	track, shader, effect string
	playing               bool
}

func (r *recordSink) SetTrackLabel(s string)  { r.track = s }
func (r *recordSink) SetShaderLabel(s string) { r.shader = s }
func (r *recordSink) SetEffectLabel(s string) { r.effect = s }
func (r *recordSink) SetPlaying(p bool)       { r.playing = p }

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

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
