package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ControllerConfig configures a [Controller].
type ControllerConfig struct {
	// Output plays decoded audio. Required.
	Output Output
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Assets is a directory or http(s) base URL that relative track sources resolve against.
	Assets string
	// Client fetches http(s) sources. Nil selects http.DefaultClient.
	Client *http.Client
	// Volume in [0, 1]. Zero selects DefaultVolume.
	Volume float64
}

// Controller owns the session's track, its player and the loudness analyser.
// Its methods are safe for concurrent use.
type Controller struct {
	out    Output
	log    *slog.Logger
	assets string
	client *http.Client
	volume float64

	analyser *Analyser

	mu          sync.Mutex
	track       Track
	player      Player
	wantPlaying bool
	loud        Loudness
}

// NewController returns a controller with no track loaded.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Output == nil {
		return nil, errors.New("nil audio Output")
	}
	c := &Controller{
		out:      cfg.Output,
		log:      cfg.Logger,
		assets:   cfg.Assets,
		client:   cfg.Client,
		volume:   cfg.Volume,
		analyser: NewAnalyser(),
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if c.volume <= 0 {
		c.volume = DefaultVolume
	}
	return c, nil
}

// ChooseTrack draws a track uniformly from [Catalog].
func (c *Controller) ChooseTrack(rng Rand) Track {
	return Catalog[rng.Intn(len(Catalog))]
}

// LoadHandle reports completion of [Controller.LoadAsync].
type LoadHandle struct {
	done chan struct{}
	err  error
}

// NewLoadHandle returns a pending handle and the function completing it.
// complete must be called exactly once.
func NewLoadHandle() (h *LoadHandle, complete func(err error)) {
	h = &LoadHandle{done: make(chan struct{})}
	return h, func(err error) {
		h.err = err
		close(h.done)
	}
}

// Done is closed when loading finishes.
func (h *LoadHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until loading finishes or ctx is done.
func (h *LoadHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadAsync fetches, decodes and attaches track in a new goroutine. Failures
// are logged and reported through the handle wrapping [ErrAssetLoad]; the
// controller then stays silent. A Toggle issued before completion is applied
// once the track is attached.
func (c *Controller) LoadAsync(ctx context.Context, track Track) *LoadHandle {
	h, complete := NewLoadHandle()
	c.mu.Lock()
	c.track = track
	c.mu.Unlock()
	go func() {
		start := time.Now()
		err := c.load(ctx, track)
		if err != nil {
			c.log.Error("loading track", "track", track.Name, "source", track.Source, "err", err)
			complete(fmt.Errorf("%w: %s: %w", ErrAssetLoad, track.Name, err))
			return
		}
		c.log.Info("track loaded", "track", track.Name, "elapsed", time.Since(start))
		complete(nil)
	}()
	return h
}

func (c *Controller) load(ctx context.Context, track Track) error {
	data, err := c.fetch(ctx, track.Source)
	if err != nil {
		return err
	}
	pcm, err := Decode(track.Source, data, c.log)
	if err != nil {
		return err
	}
	err = c.out.Open(ctx, pcm.SampleRate, pcm.Channels)
	if err != nil {
		return err
	}
	player, err := c.out.NewPlayer(newLoopReader(pcm, c.analyser))
	if err != nil {
		return err
	}
	player.SetVolume(c.volume)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player != nil {
		c.player.Close()
	}
	c.player = player
	if c.wantPlaying {
		player.Play()
	}
	return nil
}

func (c *Controller) fetch(ctx context.Context, source string) ([]byte, error) {
	loc := c.resolve(source)
	if !isHTTP(loc) {
		c.log.Debug("reading track", "path", loc)
		return os.ReadFile(loc)
	}
	c.log.Debug("fetching track", "url", loc)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", loc, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *Controller) resolve(source string) string {
	if isHTTP(source) || c.assets == "" || filepath.IsAbs(source) {
		return source
	}
	if isHTTP(c.assets) {
		u, err := url.Parse(c.assets)
		if err != nil {
			return source
		}
		u.Path = path.Join(u.Path, source)
		return u.String()
	}
	return filepath.Join(c.assets, source)
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Track returns the track passed to LoadAsync.
func (c *Controller) Track() Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.track
}

// Loaded reports whether a track is attached to a player.
func (c *Controller) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player != nil
}

// Playing reports the requested play state.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wantPlaying
}

// Toggle resumes a suspended output, waiting for it to run, then flips
// between playing and paused. It returns the new state.
func (c *Controller) Toggle(ctx context.Context) (playing bool, err error) {
	if c.out.Suspended() {
		err = c.out.Resume(ctx)
		if err != nil {
			return c.Playing(), fmt.Errorf("resuming audio output: %w", err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wantPlaying = !c.wantPlaying
	if c.player != nil {
		if c.wantPlaying {
			c.player.Play()
		} else {
			c.player.Pause()
			c.analyser.Reset()
		}
	}
	c.log.Debug("audio toggled", "playing", c.wantPlaying, "loaded", c.player != nil)
	return c.wantPlaying, nil
}

// SampleLoudness returns the loudness of the latest playback window. It
// returns [ErrNotLoaded] until a track is attached. It does not allocate.
func (c *Controller) SampleLoudness() (Loudness, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player == nil {
		return Loudness{}, ErrNotLoaded
	}
	c.analyser.Sample(&c.loud)
	return c.loud, nil
}

// Close releases the player.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player == nil {
		return nil
	}
	err := c.player.Close()
	c.player = nil
	return err
}
