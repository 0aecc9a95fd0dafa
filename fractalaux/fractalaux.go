// Package fractalaux exports fractals outside the running scene: an STL mesh,
// a GLSL ray-march visualizer and a PNG of the z=0 cross section.
package fractalaux

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/chewxy/math32"
	"github.com/fractalfolio/fractalfolio"
	"github.com/fractalfolio/fractalfolio/glbuild"
	"github.com/fractalfolio/fractalfolio/gleval"
	"github.com/fractalfolio/fractalfolio/glrender"
	"github.com/soypat/geometry/ms3"
)

// ExportConfig selects the outputs of [Export]. At least one output is required.
type ExportConfig struct {
	STLOutput    io.Writer
	VisualOutput io.Writer
	PNGOutput    io.Writer
	// PNGHeight is the side of the square cross section image. Zero selects 512.
	PNGHeight int
	// ColorConversion maps distances to PNG pixels. Nil selects
	// [ColorConversionInigoQuilez] scaled to the bounds.
	ColorConversion func(float32) color.Color
	// Settings bound and resolve the polygonization. Nil selects fractalfolio.DefaultSettings.
	Settings *fractalfolio.Settings
	UseGPU   bool
	// EnableCaching uses [gleval.BlockCachedSDF3] to omit repeated evaluations.
	EnableCaching bool
	// Silent suppresses progress logs. Errors are returned either way.
	Silent bool
	Logger *slog.Logger
}

// Export evaluates shape inside the settings' bounds cube and writes the
// configured outputs.
func Export(shape glbuild.Shader3D, cfg ExportConfig) (err error) {
	if cfg.STLOutput == nil && cfg.VisualOutput == nil && cfg.PNGOutput == nil {
		return errors.New("Export requires an output in config")
	}
	settings := fractalfolio.DefaultSettings()
	if cfg.Settings != nil {
		settings = *cfg.Settings
	}
	if err = settings.Validate(); err != nil {
		return err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	log := func(msg string, args ...any) {
		if !cfg.Silent {
			logger.Info(msg, args...)
		}
	}

	b := settings.Bounds
	bb := ms3.Box{Min: ms3.Vec{X: -b, Y: -b, Z: -b}, Max: ms3.Vec{X: b, Y: b, Z: b}}
	shape = glbuild.OverloadShader3DBounds(shape, bb)
	watch := stopwatch()
	if cfg.UseGPU {
		log("using GPU")
		terminate, err := gleval.Init1x1GLFW()
		if err != nil {
			return err
		}
		defer terminate()
	} else {
		log("using CPU")
	}
	sdf, err := NewSDF3(shape, cfg.UseGPU)
	if err != nil {
		return fmt.Errorf("instantiating SDF: %w", err)
	}
	if cfg.EnableCaching {
		var cache gleval.BlockCachedSDF3
		cacheRes := b / float32(settings.CellsPerAxis())
		err = cache.Reset(sdf, cacheRes, cacheRes, cacheRes)
		if err != nil {
			return err
		}
		sdf = &cache
		defer func() {
			log("SDF caching", "omitted_percent", percentUint64(cache.CacheHits(), cache.Evaluations()), "evaluations", cache.Evaluations())
		}()
	}
	log("instantiated SDF", "elapsed", watch())

	if cfg.VisualOutput != nil {
		watch = stopwatch()
		err = writeVisual(cfg.VisualOutput, shape, bb)
		if err != nil {
			return fmt.Errorf("writing visual GLSL: %w", err)
		}
		log("wrote visualizer", "file", outputName(cfg.VisualOutput, "GLSL visualization"), "elapsed", watch())
	}

	vp, _ := gleval.GetVecPool(sdf)
	if cfg.STLOutput != nil {
		watch = stopwatch()
		const size = 1 << 12
		renderer, err := glrender.NewOctreeRenderer(sdf, settings.CellsPerAxis(), size)
		if err != nil {
			return err
		}
		triangles, err := glrender.RenderAll(renderer, vp)
		if err != nil {
			return fmt.Errorf("rendering triangles: %w", err)
		}
		omitted := 8 * renderer.TotalPruned()
		log("polygonized", "triangles", len(triangles), "evaluations", renderer.Evaluations(),
			"omitted_percent", percentUint64(omitted, renderer.Evaluations()+omitted), "elapsed", watch())

		watch = stopwatch()
		err = glrender.WriteBinarySTL(cfg.STLOutput, triangles)
		if err != nil {
			return fmt.Errorf("writing STL: %w", err)
		}
		log("wrote STL", "file", outputName(cfg.STLOutput, "STL"), "elapsed", watch())
	}

	if cfg.PNGOutput != nil {
		watch = stopwatch()
		height := cfg.PNGHeight
		if height <= 0 {
			height = 512
		}
		conv := cfg.ColorConversion
		if conv == nil {
			conv = ColorConversionInigoQuilez(bb.Diagonal() / 3)
		}
		img := image.NewRGBA(image.Rect(0, 0, height, height))
		renderer, err := glrender.NewImageRendererSlice(max(4096, height), conv)
		if err != nil {
			return err
		}
		err = renderer.Render(sdf, 0, img, vp)
		if err != nil {
			return fmt.Errorf("rendering cross section: %w", err)
		}
		err = png.Encode(cfg.PNGOutput, img)
		if err != nil {
			return fmt.Errorf("encoding PNG: %w", err)
		}
		log("wrote cross section", "file", outputName(cfg.PNGOutput, "PNG"), "elapsed", watch())
	}
	return nil
}

// NewSDF3 returns an evaluator for shape. The GPU evaluator requires a
// current OpenGL 4.6 context, see [gleval.Init1x1GLFW].
func NewSDF3(shape glbuild.Shader3D, useGPU bool) (gleval.SDF3, error) {
	if !useGPU {
		return gleval.NewCPUSDF3(shape)
	}
	programmer := glbuild.NewDefaultProgrammer()
	var source bytes.Buffer
	n, err := programmer.WriteComputeSDF3(&source, shape)
	if err != nil {
		return nil, err
	} else if n != source.Len() {
		return nil, fmt.Errorf("wrote %d bytes but WriteComputeSDF3 counted %d", source.Len(), n)
	}
	invocX, _, _ := programmer.ComputeInvocations()
	return gleval.NewComputeGPUSDF3(&source, shape.Bounds(), gleval.ComputeConfig{InvocX: invocX})
}

// writeVisual writes shape with its bounds frame, centered and scaled into
// the visualizer's camera range.
func writeVisual(w io.Writer, shape glbuild.Shader3D, bb ms3.Box) error {
	const sceneSize = 1.4
	var bld fractalfolio.Builder
	bld.NoDimensionPanic = true
	envelope := bld.NewBoundsBoxFrame(bb)
	visual := bld.Union(shape, envelope)
	center := bb.Center()
	visual = bld.Translate(visual, -center.X, -center.Y, -center.Z)
	visual = bld.Scale(visual, sceneSize/bb.Diagonal())
	if err := bld.Err(); err != nil {
		return err
	}
	_, err := glbuild.NewDefaultProgrammer().WriteVisualizerSDF3(w, visual)
	return err
}

func outputName(w io.Writer, fallback string) string {
	if fp, ok := w.(*os.File); ok {
		return fp.Name()
	}
	return fallback
}

func stopwatch() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}

func percentUint64(num, denom uint64) float32 {
	if denom == 0 {
		return 0
	}
	return math32.Trunc(10000*float32(num)/float32(denom)) / 100
}
