package audio

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	fftSize        = 32
	smoothing      = 0.8
	minDecibels    = -100
	maxDecibels    = -30
	analyserRingSz = 4096
)

// Analyser computes a smoothed byte spectrum over the last fftSize mono
// samples tapped from playback. Tap and Sample may be called from different
// goroutines.
type Analyser struct {
	mu       sync.Mutex
	ring     [analyserRingSz]float32
	writePos int

	fft      *fourier.FFT
	window   [fftSize]float64
	seq      [fftSize]float64
	coeff    [fftSize/2 + 1]complex128
	smoothed [NumBins]float64
}

// NewAnalyser returns an analyser whose window holds silence.
func NewAnalyser() *Analyser {
	a := &Analyser{fft: fourier.NewFFT(fftSize)}
	// Blackman window with alpha 0.16.
	const a0, a1, a2 = 0.42, 0.5, 0.08
	for i := range a.window {
		x := 2 * math.Pi * float64(i) / fftSize
		a.window[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return a
}

// Tap records interleaved samples with the given channel count as mono.
func (a *Analyser) Tap(samples []float32, channels int) {
	if channels <= 0 {
		return
	}
	inv := 1 / float32(channels)
	a.mu.Lock()
	for i := 0; i+channels <= len(samples); i += channels {
		var mono float32
		for c := 0; c < channels; c++ {
			mono += samples[i+c]
		}
		a.ring[a.writePos] = mono * inv
		a.writePos = (a.writePos + 1) % analyserRingSz
	}
	a.mu.Unlock()
}

// Reset fills the window with silence. Smoothed levels decay on later samples.
func (a *Analyser) Reset() {
	a.mu.Lock()
	a.ring = [analyserRingSz]float32{}
	a.mu.Unlock()
}

// Sample writes the current spectrum into dst.
func (a *Analyser) Sample(dst *Loudness) {
	a.mu.Lock()
	start := (a.writePos - fftSize + analyserRingSz) % analyserRingSz
	for i := 0; i < fftSize; i++ {
		a.seq[i] = float64(a.ring[(start+i)%analyserRingSz]) * a.window[i]
	}
	a.mu.Unlock()

	a.fft.Coefficients(a.coeff[:], a.seq[:])
	var sum float32
	for k := range a.smoothed {
		mag := cmplx.Abs(a.coeff[k]) / fftSize
		a.smoothed[k] = smoothing*a.smoothed[k] + (1-smoothing)*mag
		v := byteLevel(a.smoothed[k])
		dst.Bins[k] = v
		sum += float32(v)
	}
	dst.Average = sum / NumBins
}

func byteLevel(mag float64) uint8 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
	if v <= 0 {
		return 0
	} else if v >= 255 {
		return 255
	}
	return uint8(v)
}
