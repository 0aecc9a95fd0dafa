// Package effect selects the session's distance function and post-processing
// effect and maps audio loudness onto the effect's runtime parameter.
package effect

import (
	"fmt"
	"log/slog"

	"github.com/chewxy/math32"
	"github.com/fractalfolio/fractalfolio"
)

// Kind enumerates post-processing effects.
type Kind uint8

const (
	// ChromaticAberration splits color channels by an offset in UV units.
	ChromaticAberration Kind = iota
	// DotScreen renders a halftone dot pattern with a scale.
	DotScreen
	numKinds

	// None disables post-processing.
	None Kind = 255
)

// LoudnessMax is the upper end of the loudness domain mapped by [Effect.Modulate].
const LoudnessMax = 256

// Kinds returns the selectable effects in selection order.
func Kinds() []Kind {
	return []Kind{ChromaticAberration, DotScreen}
}

func (k Kind) String() string {
	switch k {
	case ChromaticAberration:
		return "Chromatic Aberration"
	case DotScreen:
		return "Dot Screen"
	case None:
		return "None"
	}
	return fmt.Sprintf("effect.Kind(%d)", uint8(k))
}

// ParseKind parses the flag names "chromatic", "dotscreen" and "none".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "chromatic":
		return ChromaticAberration, nil
	case "dotscreen":
		return DotScreen, nil
	case "none":
		return None, nil
	}
	return None, fmt.Errorf("unknown effect %q", s)
}

// Range returns the interval the effect's parameter is modulated within.
func (k Kind) Range() (lo, hi float32) {
	switch k {
	case ChromaticAberration:
		return 0, 0.01
	case DotScreen:
		return 0, 10
	}
	return 0, 0
}

// Effect is an active post-processing effect and its runtime parameter.
type Effect struct {
	kind  Kind
	min   float32
	max   float32
	value float32
}

// New returns the effect for k with its parameter at the range minimum.
// It returns nil for None so callers render without post-processing.
func New(k Kind) *Effect {
	if k >= numKinds {
		return nil
	}
	lo, hi := k.Range()
	return &Effect{kind: k, min: lo, max: hi, value: lo}
}

// Kind returns the effect's kind.
func (e *Effect) Kind() Kind { return e.kind }

// Value returns the current parameter: the chromatic offset or the dot scale.
func (e *Effect) Value() float32 { return e.value }

// Range returns the parameter interval.
func (e *Effect) Range() (lo, hi float32) { return e.min, e.max }

// Modulate maps loudness from [0, LoudnessMax] linearly onto the parameter
// range, clamping outside values, stores and returns it.
func (e *Effect) Modulate(loudness float32) float32 {
	t := math32.Min(1, math32.Max(0, loudness/LoudnessMax))
	e.value = e.min + t*(e.max-e.min)
	return e.value
}

// Selector draws the session's distance function and post effect.
type Selector struct {
	rng Rand
}

// Rand is the random source used by [Selector]. *math/rand.Rand implements it.
type Rand interface {
	Intn(n int) int
}

// NewSelector returns a Selector drawing from rng.
func NewSelector(rng Rand) *Selector {
	if rng == nil {
		panic("nil Rand")
	}
	return &Selector{rng: rng}
}

// ChooseDistanceFunction draws a fractal uniformly and returns its display name.
func (s *Selector) ChooseDistanceFunction() (fractalfolio.Kind, string) {
	kinds := fractalfolio.Kinds()
	k := kinds[s.rng.Intn(len(kinds))]
	return k, k.String()
}

// ChoosePostEffect draws an effect uniformly and returns its display name.
func (s *Selector) ChoosePostEffect() (Kind, string) {
	kinds := Kinds()
	k := kinds[s.rng.Intn(len(kinds))]
	return k, k.String()
}

// StatusSink displays the session's selections.
type StatusSink interface {
	SetTrackLabel(name string)
	SetShaderLabel(name string)
	SetEffectLabel(name string)
}

// LogSink writes selections as structured log records.
type LogSink struct {
	Logger *slog.Logger
}

var _ StatusSink = LogSink{}

func (ls LogSink) logger() *slog.Logger {
	if ls.Logger == nil {
		return slog.Default()
	}
	return ls.Logger
}

func (ls LogSink) SetTrackLabel(name string)  { ls.logger().Info("status", "track", name) }
func (ls LogSink) SetShaderLabel(name string) { ls.logger().Info("status", "shader", name) }
func (ls LogSink) SetEffectLabel(name string) { ls.logger().Info("status", "effect", name) }

// Tee returns a StatusSink forwarding to every sink in order.
func Tee(sinks ...StatusSink) StatusSink {
	return teeSink(sinks)
}

type teeSink []StatusSink

func (t teeSink) SetTrackLabel(name string) {
	for _, s := range t {
		s.SetTrackLabel(name)
	}
}

func (t teeSink) SetShaderLabel(name string) {
	for _, s := range t {
		s.SetShaderLabel(name)
	}
}

func (t teeSink) SetEffectLabel(name string) {
	for _, s := range t {
		s.SetEffectLabel(name)
	}
}
