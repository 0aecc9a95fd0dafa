//go:build !tinygo && cgo

package glview

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fractalfolio/fractalfolio/effect"
	"github.com/fractalfolio/fractalfolio/overlay"
	"github.com/fractalfolio/fractalfolio/session"
	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/glgl/v4.6-core/glgl"
)

const quadVertexShader = `#version 460
layout(location = 0) in vec2 aPos;
out vec2 vUv;
void main() {
	vUv = aPos * 0.5 + 0.5;
	gl_Position = vec4(aPos, 0.0, 1.0);
}
` + "\x00"

const chromaticFragmentShader = `#version 460
uniform sampler2D tDiffuse;
uniform vec2 uOffset;
in vec2 vUv;
out vec4 fragColor;
void main() {
	vec4 color = texture(tDiffuse, vUv);
	color.r = texture(tDiffuse, vUv + uOffset).r;
	color.b = texture(tDiffuse, vUv - uOffset).b;
	fragColor = color;
}
` + "\x00"

const dotScreenFragmentShader = `#version 460
uniform sampler2D tDiffuse;
uniform vec2 uCenter;
uniform float uAngle;
uniform float uScale;
uniform vec2 uSize;
in vec2 vUv;
out vec4 fragColor;

float pattern() {
	float s = sin(uAngle);
	float c = cos(uAngle);
	vec2 tex = vUv * uSize - uCenter;
	vec2 point = vec2(c*tex.x - s*tex.y, s*tex.x + c*tex.y) * uScale;
	return (sin(point.x) * sin(point.y)) * 4.0;
}

void main() {
	vec4 color = texture(tDiffuse, vUv);
	float average = (color.r + color.g + color.b) / 3.0;
	fragColor = vec4(vec3(average*10.0 - 5.0 + pattern()), color.a);
}
` + "\x00"

const overlayFragmentShader = `#version 460
uniform sampler2D tOverlay;
in vec2 vUv;
out vec4 fragColor;
void main() {
	fragColor = texture(tOverlay, vec2(vUv.x, 1.0 - vUv.y));
}
` + "\x00"

// Dot screen pattern parameters besides its scale.
const (
	dotCenterX = 0.5
	dotCenterY = 0.5
	dotAngle   = 1.57
)

// Renderer draws session frames into the window's default framebuffer. When
// the frame carries an effect the scene is drawn offscreen first and then
// composited through the effect's shader. The status overlay is blended on
// top. It implements session.Renderer.
type Renderer struct {
	win     *Window
	backend *Backend
	labels  *overlay.Labels
	log     *slog.Logger

	quadVAO, quadVBO uint32

	// Offscreen target, sized lazily.
	fbo, colorTex, depthRBO uint32
	fboW, fboH              int

	chromatic struct {
		prog    glgl.Program
		uOffset int32
	}
	dots struct {
		prog   glgl.Program
		uScale int32
		uSize  int32
	}
	over struct {
		prog glgl.Program
		tex  uint32
	}
}

// NewRenderer compiles the post-processing and overlay programs. labels may be
// nil to disable the overlay.
func NewRenderer(win *Window, backend *Backend, labels *overlay.Labels, logger *slog.Logger) (*Renderer, error) {
	if win == nil || backend == nil {
		return nil, errors.New("nil window or backend")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{win: win, backend: backend, labels: labels, log: logger}
	quad := []float32{
		-1.0, -1.0,
		1.0, -1.0,
		-1.0, 1.0,
		-1.0, 1.0,
		1.0, -1.0,
		1.0, 1.0,
	}
	gl.GenVertexArrays(1, &r.quadVAO)
	gl.BindVertexArray(r.quadVAO)
	gl.GenBuffers(1, &r.quadVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.quadVBO)
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(quad), gl.Ptr(quad), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 0, gl.PtrOffset(0))
	gl.BindVertexArray(0)

	var err error
	r.chromatic.prog, err = glgl.CompileProgram(glgl.ShaderSource{Vertex: quadVertexShader, Fragment: chromaticFragmentShader})
	if err != nil {
		return nil, fmt.Errorf("compiling chromatic aberration: %w", err)
	}
	r.chromatic.uOffset, err = r.chromatic.prog.UniformLocation("uOffset\x00")
	if err != nil {
		return nil, err
	}

	r.dots.prog, err = glgl.CompileProgram(glgl.ShaderSource{Vertex: quadVertexShader, Fragment: dotScreenFragmentShader})
	if err != nil {
		return nil, fmt.Errorf("compiling dot screen: %w", err)
	}
	r.dots.prog.Bind()
	center, err := r.dots.prog.UniformLocation("uCenter\x00")
	if err != nil {
		return nil, err
	}
	angle, err := r.dots.prog.UniformLocation("uAngle\x00")
	if err != nil {
		return nil, err
	}
	gl.Uniform2f(center, dotCenterX, dotCenterY)
	gl.Uniform1f(angle, dotAngle)
	r.dots.prog.Unbind()
	r.dots.uScale, err = r.dots.prog.UniformLocation("uScale\x00")
	if err != nil {
		return nil, err
	}
	r.dots.uSize, err = r.dots.prog.UniformLocation("uSize\x00")
	if err != nil {
		return nil, err
	}

	r.over.prog, err = glgl.CompileProgram(glgl.ShaderSource{Vertex: quadVertexShader, Fragment: overlayFragmentShader})
	if err != nil {
		return nil, fmt.Errorf("compiling overlay: %w", err)
	}
	gl.GenTextures(1, &r.over.tex)
	gl.BindTexture(gl.TEXTURE_2D, r.over.tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	if err := glgl.Err(); err != nil {
		return nil, fmt.Errorf("initializing renderer: %w", err)
	}
	return r, nil
}

// Render draws f. A zero sized framebuffer, as when minimized, draws nothing.
func (r *Renderer) Render(f *session.Frame) error {
	w, h := r.win.Size()
	if w <= 0 || h <= 0 {
		return nil
	}
	target := uint32(0)
	if f.Effect != nil {
		if err := r.resizeTarget(w, h); err != nil {
			return err
		}
		target = r.fbo
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, target)
	gl.Viewport(0, 0, int32(w), int32(h))
	bg := f.Background
	gl.ClearColor(float32(bg.R)/255, float32(bg.G)/255, float32(bg.B)/255, float32(bg.A)/255)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	if f.Mesh != nil {
		gl.Enable(gl.DEPTH_TEST)
		model := f.Mesh.Model()
		view := f.Camera.View()
		proj := f.Camera.Projection()
		if !r.backend.draw(f.Mesh.GeometryID, f.Mesh.MaterialID, &model, &view, &proj) {
			return fmt.Errorf("mesh resources %d/%d not in backend", f.Mesh.GeometryID, f.Mesh.MaterialID)
		}
		gl.Disable(gl.DEPTH_TEST)
	}
	if f.Effect != nil {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		r.composite(f.Effect, w, h)
	}
	if r.labels != nil {
		if err := r.drawOverlay(w, h); err != nil {
			return err
		}
	}
	return glgl.Err()
}

func (r *Renderer) composite(fx *effect.Effect, w, h int) {
	var prog glgl.Program
	switch fx.Kind() {
	case effect.ChromaticAberration:
		prog = r.chromatic.prog
		prog.Bind()
		gl.Uniform2f(r.chromatic.uOffset, fx.Value(), fx.Value())
	case effect.DotScreen:
		prog = r.dots.prog
		prog.Bind()
		gl.Uniform1f(r.dots.uScale, fx.Value())
		gl.Uniform2f(r.dots.uSize, float32(w), float32(h))
	default:
		return
	}
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, r.colorTex)
	gl.BindVertexArray(r.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)
	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	prog.Unbind()
}

func (r *Renderer) drawOverlay(w, h int) error {
	img, changed, err := r.labels.Render(w, h)
	if err != nil {
		return err
	}
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, r.over.tex)
	if changed {
		gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(w), int32(h), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	}
	// Overlay pixels are alpha premultiplied.
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.ONE, gl.ONE_MINUS_SRC_ALPHA)
	r.over.prog.Bind()
	gl.BindVertexArray(r.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)
	gl.BindVertexArray(0)
	r.over.prog.Unbind()
	gl.Disable(gl.BLEND)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return nil
}

func (r *Renderer) resizeTarget(w, h int) error {
	if r.fbo != 0 && r.fboW == w && r.fboH == h {
		return nil
	}
	r.deleteTarget()
	gl.GenFramebuffers(1, &r.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, r.fbo)

	gl.GenTextures(1, &r.colorTex)
	gl.BindTexture(gl.TEXTURE_2D, r.colorTex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(w), int32(h), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, r.colorTex, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.GenRenderbuffers(1, &r.depthRBO)
	gl.BindRenderbuffer(gl.RENDERBUFFER, r.depthRBO)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT24, int32(w), int32(h))
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, r.depthRBO)
	gl.BindRenderbuffer(gl.RENDERBUFFER, 0)

	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		r.deleteTarget()
		return fmt.Errorf("offscreen framebuffer incomplete: status 0x%x", status)
	}
	r.fboW, r.fboH = w, h
	r.log.Debug("offscreen target resized", "width", w, "height", h)
	return nil
}

func (r *Renderer) deleteTarget() {
	if r.fbo == 0 {
		return
	}
	gl.DeleteFramebuffers(1, &r.fbo)
	gl.DeleteTextures(1, &r.colorTex)
	gl.DeleteRenderbuffers(1, &r.depthRBO)
	r.fbo, r.colorTex, r.depthRBO = 0, 0, 0
}

// Close deletes the renderer's GL objects.
func (r *Renderer) Close() {
	r.deleteTarget()
	gl.DeleteTextures(1, &r.over.tex)
	gl.DeleteBuffers(1, &r.quadVBO)
	gl.DeleteVertexArrays(1, &r.quadVAO)
	r.chromatic.prog.Delete()
	r.dots.prog.Delete()
	r.over.prog.Delete()
}
