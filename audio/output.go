package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/oto/v2"
)

// Output is a sound device. It may start suspended and must be resumed
// before players produce sound.
type Output interface {
	// Open prepares the device for float32 samples at the given format.
	Open(ctx context.Context, sampleRate, channels int) error
	// Suspended reports whether the device is suspended.
	Suspended() bool
	// Resume returns once the device is running.
	Resume(ctx context.Context) error
	// NewPlayer returns a paused player pulling float32 little endian samples from r.
	NewPlayer(r io.Reader) (Player, error)
}

// Player plays one stream. oto.Player implements it.
type Player interface {
	Play()
	Pause()
	IsPlaying() bool
	SetVolume(volume float64)
	Close() error
}

// OtoOutput is an [Output] backed by an oto context. The context is created
// on Open and immediately suspended until the first Resume. Only one
// OtoOutput may be opened per process.
type OtoOutput struct {
	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int
	channels   int
	// running is set by Resume, possibly before the context exists.
	running bool
}

var _ Output = (*OtoOutput)(nil)

// Open creates the oto context. Opening again with the same format is a no-op.
func (o *OtoOutput) Open(ctx context.Context, sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx != nil {
		if sampleRate != o.sampleRate || channels != o.channels {
			return fmt.Errorf("oto output already open at %dHz/%dch", o.sampleRate, o.channels)
		}
		return nil
	}
	otoCtx, ready, err := oto.NewContext(sampleRate, channels, oto.FormatFloat32LE)
	if err != nil {
		return err
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	o.ctx, o.sampleRate, o.channels = otoCtx, sampleRate, channels
	if !o.running {
		return o.ctx.Suspend()
	}
	return nil
}

// Suspended reports whether the output still waits for Resume.
func (o *OtoOutput) Suspended() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.running
}

// Resume resumes the oto context. Called before Open it marks the output to
// start running once opened.
func (o *OtoOutput) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx != nil {
		if err := o.ctx.Resume(); err != nil {
			return err
		}
	}
	o.running = true
	return nil
}

// NewPlayer returns a paused oto player.
func (o *OtoOutput) NewPlayer(r io.Reader) (Player, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx == nil {
		return nil, errors.New("oto output not open")
	}
	if err := o.ctx.Err(); err != nil {
		return nil, err
	}
	return o.ctx.NewPlayer(r), nil
}
