package glrender

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/soypat/geometry/ms3"
)

const stlHeaderSize = 80

// WriteBinarySTL writes the triangles as a binary STL file. Each facet's normal
// is computed from its winding.
func WriteBinarySTL(w io.Writer, model []ms3.Triangle) error {
	if uint64(len(model)) > math.MaxUint32 {
		return errors.New("too many triangles for STL")
	}
	var header [stlHeaderSize + 4]byte
	copy(header[:], "fractalfolio binary STL")
	binary.LittleEndian.PutUint32(header[stlHeaderSize:], uint32(len(model)))
	_, err := w.Write(header[:])
	if err != nil {
		return err
	}
	var facet [50]byte
	for _, t := range model {
		n := TriangleNormal(t)
		putVec(facet[0:], n)
		putVec(facet[12:], t[0])
		putVec(facet[24:], t[1])
		putVec(facet[36:], t[2])
		// Attribute byte count is left zero.
		_, err = w.Write(facet[:])
		if err != nil {
			return err
		}
	}
	return nil
}

func putVec(b []byte, v ms3.Vec) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(v.X))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v.Y))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(v.Z))
}
