package fractalfolio

import (
	"fmt"

	"github.com/chewxy/math32"
)

// MaterialMode selects how the mesh surface is shaded.
type MaterialMode uint8

const (
	// MaterialNormal colors fragments by their surface normal.
	MaterialNormal MaterialMode = iota
	// MaterialDepth colors fragments by their distance to the camera.
	MaterialDepth
)

func (m MaterialMode) String() string {
	switch m {
	case MaterialNormal:
		return "normal"
	case MaterialDepth:
		return "depth"
	}
	return fmt.Sprintf("MaterialMode(%d)", uint8(m))
}

// ParseMaterialMode parses the names returned by [MaterialMode.String].
func ParseMaterialMode(s string) (MaterialMode, error) {
	switch s {
	case "normal":
		return MaterialNormal, nil
	case "depth":
		return MaterialDepth, nil
	}
	return 0, fmt.Errorf("unknown material mode %q", s)
}

// Settings configures polygonization and presentation of a fractal.
type Settings struct {
	// Res is the polygonization level. The cube is divided in 2^(Res+2) cells per axis.
	Res int
	// Bounds is the half extent of the polygonization cube [-Bounds, Bounds]³.
	Bounds float32
	// AutoRotate spins the mesh every frame.
	AutoRotate bool
	// Wireframe draws triangle edges only.
	Wireframe bool
	Material  MaterialMode
	// VertexCount is written by the mesh build step.
	VertexCount int
}

// DefaultSettings returns the settings the scene starts with.
func DefaultSettings() Settings {
	return Settings{
		Res:        4,
		Bounds:     1.5,
		AutoRotate: true,
		Material:   MaterialNormal,
	}
}

// CellsPerAxis returns the amount of polygonization cells along each axis.
func (s Settings) CellsPerAxis() int {
	return 1 << (s.Res + 2)
}

// Validate checks the settings can be used to build a mesh.
func (s Settings) Validate() error {
	if s.Res < 0 || s.Res > 8 {
		return fmt.Errorf("resolution level %d out of range [0, 8]", s.Res)
	} else if !(s.Bounds > 0) || math32.IsInf(s.Bounds, 0) {
		return fmt.Errorf("bounds %g not positive and finite", s.Bounds)
	}
	return nil
}
