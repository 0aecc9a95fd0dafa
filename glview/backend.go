//go:build !tinygo && cgo

package glview

import (
	"fmt"
	"log/slog"

	"github.com/fractalfolio/fractalfolio"
	"github.com/fractalfolio/fractalfolio/scene"
	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/soypat/glgl/v4.6-core/glgl"
)

const meshVertexShader = `#version 460
layout(location = 0) in vec3 aPos;
layout(location = 1) in vec3 aNormal;
uniform mat4 uModel;
uniform mat4 uView;
uniform mat4 uProjection;
out vec3 vNormal;
void main() {
	mat4 modelView = uView * uModel;
	vNormal = mat3(modelView) * aNormal;
	gl_Position = uProjection * modelView * vec4(aPos, 1.0);
}
` + "\x00"

const normalFragmentShader = `#version 460
in vec3 vNormal;
out vec4 fragColor;
void main() {
	fragColor = vec4(normalize(vNormal) * 0.5 + 0.5, 1.0);
}
` + "\x00"

const depthFragmentShader = `#version 460
in vec3 vNormal;
out vec4 fragColor;
void main() {
	fragColor = vec4(vec3(1.0 - gl_FragCoord.z), 1.0);
}
` + "\x00"

type glGeometry struct {
	vao, vbo uint32
	count    int32
}

type glMaterial struct {
	prog      glgl.Program
	wireframe bool
	uModel    int32
	uView     int32
	uProj     int32
}

// Backend stores mesh geometry in vertex buffers and materials as shader
// programs. It implements scene.Backend and must be used on the thread that
// owns the GL context.
type Backend struct {
	log   *slog.Logger
	next  uint32
	geoms map[scene.GeometryID]glGeometry
	mats  map[scene.MaterialID]*glMaterial
}

// NewBackend returns an empty backend. A nil logger selects slog.Default().
func NewBackend(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		log:   logger,
		geoms: make(map[scene.GeometryID]glGeometry),
		mats:  make(map[scene.MaterialID]*glMaterial),
	}
}

// UploadGeometry interleaves positions and normals into a single buffer.
func (b *Backend) UploadGeometry(g *scene.Geometry) (scene.GeometryID, error) {
	if len(g.Normals) != len(g.Positions) {
		return 0, fmt.Errorf("got %d normals for %d positions", len(g.Normals), len(g.Positions))
	}
	data := make([]float32, 0, 6*len(g.Positions))
	for i, p := range g.Positions {
		n := g.Normals[i]
		data = append(data, p.X, p.Y, p.Z, n.X, n.Y, n.Z)
	}
	var geom glGeometry
	gl.GenVertexArrays(1, &geom.vao)
	gl.BindVertexArray(geom.vao)
	gl.GenBuffers(1, &geom.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, geom.vbo)
	if len(data) > 0 {
		gl.BufferData(gl.ARRAY_BUFFER, 4*len(data), gl.Ptr(data), gl.STATIC_DRAW)
	}
	const stride = 6 * 4
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, stride, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 3, gl.FLOAT, false, stride, gl.PtrOffset(3*4))
	gl.BindVertexArray(0)
	if err := glgl.Err(); err != nil {
		gl.DeleteBuffers(1, &geom.vbo)
		gl.DeleteVertexArrays(1, &geom.vao)
		return 0, fmt.Errorf("uploading geometry: %w", err)
	}
	geom.count = int32(len(g.Positions))
	b.next++
	id := scene.GeometryID(b.next)
	b.geoms[id] = geom
	b.log.Debug("geometry uploaded", "id", id, "vertices", geom.count, "bytes", 4*len(data))
	return id, nil
}

// ReleaseGeometry deletes the vertex buffer of id.
func (b *Backend) ReleaseGeometry(id scene.GeometryID) {
	geom, ok := b.geoms[id]
	if !ok {
		b.log.Warn("release of unknown geometry", "id", id)
		return
	}
	gl.DeleteBuffers(1, &geom.vbo)
	gl.DeleteVertexArrays(1, &geom.vao)
	delete(b.geoms, id)
}

// NewMaterial compiles the program for spec.Mode.
func (b *Backend) NewMaterial(spec scene.MaterialSpec) (scene.MaterialID, error) {
	var frag string
	switch spec.Mode {
	case fractalfolio.MaterialNormal:
		frag = normalFragmentShader
	case fractalfolio.MaterialDepth:
		frag = depthFragmentShader
	default:
		return 0, fmt.Errorf("unsupported material mode %v", spec.Mode)
	}
	prog, err := glgl.CompileProgram(glgl.ShaderSource{Vertex: meshVertexShader, Fragment: frag})
	if err != nil {
		return 0, fmt.Errorf("compiling %v material: %w", spec.Mode, err)
	}
	mat := &glMaterial{prog: prog, wireframe: spec.Wireframe}
	for _, u := range []struct {
		name string
		dst  *int32
	}{
		{"uModel\x00", &mat.uModel},
		{"uView\x00", &mat.uView},
		{"uProjection\x00", &mat.uProj},
	} {
		*u.dst, err = prog.UniformLocation(u.name)
		if err != nil {
			prog.Delete()
			return 0, err
		}
	}
	b.next++
	id := scene.MaterialID(b.next)
	b.mats[id] = mat
	b.log.Debug("material created", "id", id, "mode", spec.Mode, "wireframe", spec.Wireframe)
	return id, nil
}

// ReleaseMaterial deletes the program of id.
func (b *Backend) ReleaseMaterial(id scene.MaterialID) {
	mat, ok := b.mats[id]
	if !ok {
		b.log.Warn("release of unknown material", "id", id)
		return
	}
	mat.prog.Delete()
	delete(b.mats, id)
}

// draw renders geometry gid with material mid. It reports false if either
// resource is unknown.
func (b *Backend) draw(gid scene.GeometryID, mid scene.MaterialID, model, view, proj *mgl32.Mat4) bool {
	geom, ok := b.geoms[gid]
	if !ok {
		return false
	}
	mat, ok := b.mats[mid]
	if !ok {
		return false
	}
	mat.prog.Bind()
	gl.UniformMatrix4fv(mat.uModel, 1, false, &model[0])
	gl.UniformMatrix4fv(mat.uView, 1, false, &view[0])
	gl.UniformMatrix4fv(mat.uProj, 1, false, &proj[0])
	if mat.wireframe {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
	}
	gl.BindVertexArray(geom.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, geom.count)
	gl.BindVertexArray(0)
	gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
	mat.prog.Unbind()
	return true
}
