// Package audio loads a looping music track, plays it through an [Output]
// and summarizes its loudness every frame.
package audio

import "errors"

var (
	// ErrAssetLoad wraps failures fetching or decoding a track.
	ErrAssetLoad = errors.New("audio asset load failed")
	// ErrNotLoaded is returned by loudness sampling before a track is ready.
	ErrNotLoaded = errors.New("audio track not loaded")
	// ErrSuspended is returned by an [Output] asked to play while suspended.
	ErrSuspended = errors.New("audio output suspended")
)

// DefaultVolume is the playback volume set when a track is loaded.
const DefaultVolume = 0.5

// Track is a catalog entry. Source is an http(s) URL or a path relative to
// the controller's assets location.
type Track struct {
	Name   string
	Source string
}

// Catalog lists the tracks a session picks from.
var Catalog = []Track{
	{Name: "Drift", Source: "drift.mp3"},
	{Name: "Undertow", Source: "undertow.mp3"},
	{Name: "Glass Tide", Source: "glasstide.wav"},
}

// NumBins is the number of frequency bins in a [Loudness] summary.
const NumBins = fftSize / 2

// Loudness summarizes the most recent playback window.
type Loudness struct {
	// Average is the mean of Bins, in [0, 255].
	Average float32
	// Bins holds per-frequency levels in [0, 255] from low to high frequency.
	Bins [NumBins]uint8
}

// Rand is the random source used to pick a track. *math/rand.Rand implements it.
type Rand interface {
	Intn(n int) int
}
