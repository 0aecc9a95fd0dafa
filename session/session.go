// Package session runs the fractal scene: it makes the per-session
// selections, builds the mesh, starts audio and updates the scene every frame.
package session

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/fractalfolio/fractalfolio"
	"github.com/fractalfolio/fractalfolio/audio"
	"github.com/fractalfolio/fractalfolio/effect"
	"github.com/fractalfolio/fractalfolio/glbuild"
	"github.com/fractalfolio/fractalfolio/gleval"
	"github.com/fractalfolio/fractalfolio/scene"
	"github.com/soypat/geometry/ms3"
)

// DefaultRotationSpeed is the mesh spin in radians per second on each axis.
const DefaultRotationSpeed = 0.6

// ErrMissingContainer is returned by Start when there is no viewport to render into.
var ErrMissingContainer = errors.New("missing viewport container")

// State is the lifecycle stage of a [Session].
type State uint8

const (
	Uninitialized State = iota
	Initializing
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Viewport is the surface the scene is rendered into.
type Viewport interface {
	// Size returns the current size in pixels.
	Size() (w, h int)
	// OnResize registers fn to be called on every size change.
	OnResize(fn func(w, h int)) (deregister func())
	// OnFrame registers fn to be called once per display refresh with the
	// seconds elapsed since the previous call.
	OnFrame(fn func(dt float32)) (deregister func())
}

// Frame is what the renderer draws on a tick.
type Frame struct {
	Camera     scene.Camera
	Mesh       *scene.Mesh
	Background color.RGBA
	// Effect is nil when post-processing is disabled.
	Effect   *effect.Effect
	Loudness audio.Loudness
	// Elapsed is the total of tick deltas since Start, in seconds.
	Elapsed float32
}

// Renderer draws frames.
type Renderer interface {
	Render(f *Frame) error
}

// Audio is the audio collaborator. *audio.Controller implements it.
type Audio interface {
	ChooseTrack(rng audio.Rand) audio.Track
	LoadAsync(ctx context.Context, track audio.Track) *audio.LoadHandle
	Toggle(ctx context.Context) (playing bool, err error)
	SampleLoudness() (audio.Loudness, error)
}

// PlayStateSink is implemented by status sinks that display the play state.
type PlayStateSink interface {
	SetPlaying(playing bool)
}

// Evaluator converts a shape into an evaluable distance field.
type Evaluator func(shape glbuild.Shader3D) (gleval.SDF3, error)

// Config configures a [Session].
type Config struct {
	Viewport Viewport
	Renderer Renderer
	Audio    Audio
	// Status receives the selection labels. Nil logs them.
	Status effect.StatusSink
	// Rand drives every selection. Nil seeds a *rand.Rand from the clock.
	Rand effect.Rand
	// Settings are copied at construction. Nil selects fractalfolio.DefaultSettings.
	Settings *fractalfolio.Settings
	Scene    scene.Config
	// Fractal forces the distance function instead of drawing one.
	Fractal *fractalfolio.Kind
	// Effect forces the post effect instead of drawing one. effect.None disables post-processing.
	Effect *effect.Kind
	// Evaluator defaults to CPU evaluation.
	Evaluator Evaluator
	// RotationSpeed in radians per second. Zero selects DefaultRotationSpeed.
	RotationSpeed float32
	Logger        *slog.Logger
}

// Session owns all mutable scene state. Tick, Resize and Stop serialize on
// an internal mutex.
type Session struct {
	viewport     Viewport
	renderer     Renderer
	audio        Audio
	status       effect.StatusSink
	rng          effect.Rand
	eval         Evaluator
	fixedFractal *fractalfolio.Kind
	fixedEffect  *effect.Kind
	rotSpeed     float32
	log          *slog.Logger

	mu         sync.Mutex
	state      State
	settings   fractalfolio.Settings
	scene      *scene.Builder
	fractal    fractalfolio.Kind
	fx         *effect.Effect
	track      audio.Track
	load       *audio.LoadHandle
	frame      Frame
	frames     uint64
	renderErrs uint64
	panics     uint64
	deregister []func()
}

// New returns an uninitialized session.
func New(cfg Config) (*Session, error) {
	if cfg.Renderer == nil {
		return nil, errors.New("nil Renderer")
	} else if cfg.Audio == nil {
		return nil, errors.New("nil Audio")
	}
	s := &Session{
		viewport:     cfg.Viewport,
		renderer:     cfg.Renderer,
		audio:        cfg.Audio,
		status:       cfg.Status,
		rng:          cfg.Rand,
		eval:         cfg.Evaluator,
		fixedFractal: cfg.Fractal,
		fixedEffect:  cfg.Effect,
		rotSpeed:     cfg.RotationSpeed,
		log:          cfg.Logger,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.status == nil {
		s.status = effect.LogSink{Logger: s.log}
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.eval == nil {
		s.eval = cpuEvaluator
	}
	if s.rotSpeed == 0 {
		s.rotSpeed = DefaultRotationSpeed
	}
	if cfg.Settings != nil {
		s.settings = *cfg.Settings
	} else {
		s.settings = fractalfolio.DefaultSettings()
	}
	if err := s.settings.Validate(); err != nil {
		return nil, err
	}
	sceneCfg := cfg.Scene
	if sceneCfg.Logger == nil {
		sceneCfg.Logger = s.log
	}
	s.scene = scene.NewBuilder(sceneCfg)
	return s, nil
}

func cpuEvaluator(shape glbuild.Shader3D) (gleval.SDF3, error) {
	return gleval.NewCPUSDF3(shape)
}

// Start selects the distance function, effect and track, builds and frames
// the mesh, begins loading audio and registers the frame and resize
// callbacks. A mesh build failure is logged and the session renders the
// background only. Start returns [ErrMissingContainer] when the viewport
// is missing or has no area.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Uninitialized {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot start session in state %s", st)
	}
	if s.viewport == nil {
		s.mu.Unlock()
		s.log.Error("cannot start session", "err", ErrMissingContainer)
		return ErrMissingContainer
	}
	w, h := s.viewport.Size()
	if w <= 0 || h <= 0 {
		s.mu.Unlock()
		err := fmt.Errorf("viewport size %dx%d: %w", w, h, ErrMissingContainer)
		s.log.Error("cannot start session", "err", err)
		return err
	}
	s.state = Initializing
	s.initLocked(ctx, w, h)
	s.state = Running
	s.mu.Unlock()

	// Callbacks may fire synchronously so they are registered unlocked.
	unsubResize := s.viewport.OnResize(s.Resize)
	unsubFrame := s.viewport.OnFrame(s.Tick)
	s.mu.Lock()
	s.deregister = append(s.deregister, unsubFrame, unsubResize)
	stopped := s.state == Stopped
	s.mu.Unlock()
	if stopped {
		// Stop ran between registration and bookkeeping.
		unsubFrame()
		unsubResize()
	}
	return nil
}

func (s *Session) initLocked(ctx context.Context, w, h int) {
	sel := effect.NewSelector(s.rng)
	var shaderName, effectName string
	if s.fixedFractal != nil {
		s.fractal, shaderName = *s.fixedFractal, s.fixedFractal.String()
	} else {
		s.fractal, shaderName = sel.ChooseDistanceFunction()
	}
	var fxKind effect.Kind
	if s.fixedEffect != nil {
		fxKind, effectName = *s.fixedEffect, s.fixedEffect.String()
	} else {
		fxKind, effectName = sel.ChoosePostEffect()
	}
	s.track = s.audio.ChooseTrack(s.rng)
	s.status.SetShaderLabel(shaderName)
	s.status.SetEffectLabel(effectName)
	s.status.SetTrackLabel(s.track.Name)
	s.log.Info("session selections", "fractal", shaderName, "effect", effectName, "track", s.track.Name)

	s.fx = effect.New(fxKind)
	err := s.buildLocked()
	if err != nil {
		s.log.Error("building mesh", "fractal", shaderName, "err", err)
	}
	s.load = s.audio.LoadAsync(ctx, s.track)
	// Size the frustum once up front, then on every resize notification.
	s.scene.OnResize(w, h)
}

func (s *Session) buildLocked() error {
	var shapes fractalfolio.Builder
	shapes.NoDimensionPanic = true
	shape := shapes.NewFractal(s.fractal)
	if err := shapes.Err(); err != nil {
		return err
	}
	sdf, err := s.eval(shape)
	if err != nil {
		return err
	}
	mesh, err := s.scene.Build(&s.settings, sdf)
	if err != nil {
		return err
	}
	s.scene.Reframe(mesh)
	return nil
}

// Tick advances the scene by dt seconds and renders a frame. Render errors
// and panics are logged and counted, never propagated.
func (s *Session) Tick(dt float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.panics++
			s.log.Error("frame panicked", "panic", r, "panics", s.panics)
		}
	}()
	s.scene.Controls().Update()
	mesh := s.scene.Mesh()
	if s.settings.AutoRotate && mesh != nil {
		d := s.rotSpeed * dt
		mesh.Rotation = ms3.Add(mesh.Rotation, ms3.Vec{X: d, Y: d, Z: d})
	}
	loud, err := s.sampleAudio()
	if err == nil {
		s.frame.Loudness = loud
		if s.fx != nil {
			s.fx.Modulate(loud.Average)
		}
	}
	s.frame.Camera = *s.scene.Camera()
	s.frame.Mesh = mesh
	s.frame.Background = s.scene.Background()
	s.frame.Effect = s.fx
	s.frame.Elapsed += dt
	s.frames++
	err = s.renderer.Render(&s.frame)
	if err != nil {
		s.renderErrs++
		if s.renderErrs == 1 || s.renderErrs%600 == 0 {
			s.log.Error("render failed", "err", err, "failures", s.renderErrs)
		}
	}
}

// sampleAudio converts a panic in the audio collaborator into an error so the
// frame still renders, without modulation.
func (s *Session) sampleAudio() (loud audio.Loudness, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.panics++
			s.log.Error("audio sampling panicked", "panic", r, "panics", s.panics)
			err = fmt.Errorf("audio sampling panicked: %v", r)
		}
	}()
	return s.audio.SampleLoudness()
}

// Resize recomputes the camera frustum. The mesh is not rebuilt.
func (s *Session) Resize(w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return
	}
	s.scene.OnResize(w, h)
}

// Rebuild re-polygonizes the active distance function with new settings.
// On failure the current mesh and settings are kept.
func (s *Session) Rebuild(settings fractalfolio.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return fmt.Errorf("cannot rebuild session in state %s", s.state)
	}
	prev := s.settings
	s.settings = settings
	err := s.buildLocked()
	if err != nil {
		s.settings = prev
		return err
	}
	return nil
}

// SetMaterial swaps the mesh material without rebuilding geometry.
func (s *Session) SetMaterial(mode fractalfolio.MaterialMode, wireframe bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mesh := s.scene.Mesh()
	if mesh == nil {
		return errors.New("no mesh to apply material to")
	}
	err := s.scene.ApplyMaterial(mesh, mode, wireframe)
	if err != nil {
		return err
	}
	s.settings.Material, s.settings.Wireframe = mode, wireframe
	s.log.Debug("material applied", "mode", mode, "wireframe", wireframe)
	return nil
}

// ToggleAudio flips audio play state and updates the status sink's play
// glyph when it has one.
func (s *Session) ToggleAudio(ctx context.Context) (playing bool, err error) {
	playing, err = s.audio.Toggle(ctx)
	if err != nil {
		s.log.Error("toggling audio", "err", err)
		return playing, err
	}
	if ps, ok := s.status.(PlayStateSink); ok {
		ps.SetPlaying(playing)
	}
	return playing, nil
}

// PointerDown, PointerMove, PointerUp and Scroll forward input to the orbit controls.
func (s *Session) PointerDown(x, y float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scene.Controls().PointerDown(x, y)
}

func (s *Session) PointerMove(x, y float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scene.Controls().PointerMove(x, y)
}

func (s *Session) PointerUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scene.Controls().PointerUp()
}

func (s *Session) Scroll(steps float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scene.Controls().Scroll(steps)
}

// Stop deregisters the frame and resize callbacks and releases the mesh.
// It is idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return
	}
	s.state = Stopped
	deregister := s.deregister
	s.deregister = nil
	s.scene.Release()
	s.frame.Mesh = nil
	s.mu.Unlock()
	for _, fn := range deregister {
		fn()
	}
	s.log.Info("session stopped", "frames", s.frames, "renderErrors", s.renderErrs, "panics", s.panics)
}

// Stats holds frame loop counters.
type Stats struct {
	Frames       uint64
	RenderErrors uint64
	Panics       uint64
}

// Stats returns the frame loop counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Frames: s.frames, RenderErrors: s.renderErrs, Panics: s.panics}
}

// State returns the lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Fractal returns the selected distance function.
func (s *Session) Fractal() fractalfolio.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fractal
}

// Effect returns the active effect or nil when post-processing is disabled.
func (s *Session) Effect() *effect.Effect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fx
}

// Track returns the selected track.
func (s *Session) Track() audio.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

// AudioLoad returns the handle of the track load started by Start.
func (s *Session) AudioLoad() *audio.LoadHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load
}

// Settings returns a copy of the current settings, including the vertex count.
func (s *Session) Settings() fractalfolio.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Mesh returns the current mesh, nil when the build failed.
func (s *Session) Mesh() *scene.Mesh {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene.Mesh()
}

// Camera returns a copy of the camera.
func (s *Session) Camera() scene.Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.scene.Camera()
}
