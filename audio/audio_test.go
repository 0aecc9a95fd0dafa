package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestAnalyserSilenceAndTone(t *testing.T) {
	a := NewAnalyser()
	var loud Loudness
	a.Sample(&loud)
	if loud.Average != 0 {
		t.Fatalf("silence gave average %g", loud.Average)
	}
	tone := make([]float32, 2*fftSize)
	for i := 0; i < fftSize; i++ {
		v := float32(0.5 * math.Sin(2*math.Pi*4*float64(i)/fftSize))
		tone[2*i], tone[2*i+1] = v, v
	}
	a.Tap(tone, 2)
	a.Sample(&loud)
	if !(loud.Average > 0) {
		t.Fatalf("tone gave average %g", loud.Average)
	}
	if loud.Bins[4] == 0 {
		t.Errorf("tone bin empty: %v", loud.Bins)
	}
	first := loud.Bins[4]
	a.Sample(&loud)
	if loud.Bins[4] <= first {
		t.Errorf("smoothed level did not rise toward steady tone: %d then %d", first, loud.Bins[4])
	}
	a.Reset()
	prev := loud.Average
	for i := 0; i < 50; i++ {
		a.Sample(&loud)
	}
	if loud.Average >= prev {
		t.Errorf("level did not decay after reset: %g >= %g", loud.Average, prev)
	}
}

func TestFFTImpulse(t *testing.T) {
	a := NewAnalyser()
	a.seq[0] = 1
	a.fft.Coefficients(a.coeff[:], a.seq[:])
	for i, v := range a.coeff {
		if math.Abs(real(v)-1) > 1e-12 || math.Abs(imag(v)) > 1e-12 {
			t.Errorf("bin %d = %v, want 1", i, v)
		}
	}
}

func TestDecodeWAV(t *testing.T) {
	path := writeTestWAV(t, 8000, 1, 800)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	pcm, err := Decode(path, data, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if pcm.SampleRate != 8000 || pcm.Channels != 1 || pcm.Frames() != 800 {
		t.Fatalf("got %dHz %dch %d frames", pcm.SampleRate, pcm.Channels, pcm.Frames())
	}
	for i, v := range pcm.Samples {
		want := testSample(i)
		if math.Abs(float64(v-want)) > 1.0/16384 {
			t.Fatalf("sample %d = %g, want %g", i, v, want)
		}
	}
}

func TestDecodeUnsupported(t *testing.T) {
	_, err := Decode("track.ogg", []byte("OggS"), discardLogger())
	if err == nil {
		t.Fatal("expected error")
	}
	_, err = Decode("track.wav", []byte("not a wav file at all"), discardLogger())
	if err == nil {
		t.Fatal("expected error for invalid wav")
	}
}

func TestLoopReaderWrapsAndTaps(t *testing.T) {
	pcm := &PCM{SampleRate: 100, Channels: 2, Samples: []float32{0.1, 0.2, 0.3, 0.4}}
	a := NewAnalyser()
	lr := newLoopReader(pcm, a)
	buf := make([]byte, 4*6+3)
	n, err := lr.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4*6 {
		t.Fatalf("read %d bytes, want whole frames %d", n, 4*6)
	}
	want := []float32{0.1, 0.2, 0.3, 0.4, 0.1, 0.2}
	for i, w := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		if got != w {
			t.Errorf("sample %d = %g, want %g", i, got, w)
		}
	}
	if a.writePos != 3 {
		t.Errorf("tapped %d mono samples, want 3", a.writePos)
	}
}

func TestToggleTwice(t *testing.T) {
	out := &fakeOutput{suspended: true}
	c := newTestController(t, out, t.TempDir())
	playing, err := c.Toggle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !playing || out.resumes != 1 || out.suspended {
		t.Fatalf("first toggle: playing=%v resumes=%d", playing, out.resumes)
	}
	start := c.Playing()
	for i := 0; i < 2; i++ {
		if _, err := c.Toggle(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if c.Playing() != start {
		t.Error("two toggles did not restore state")
	}
	if out.resumes != 1 {
		t.Errorf("running output resumed again: %d", out.resumes)
	}
}

func TestToggleBeforeLoad(t *testing.T) {
	dir := t.TempDir()
	writeTestWAVAt(t, filepath.Join(dir, "tone.wav"), 8000, 2, 400)
	out := &fakeOutput{suspended: true}
	c := newTestController(t, out, dir)
	if _, err := c.SampleLoudness(); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("want ErrNotLoaded, got %v", err)
	}
	if _, err := c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	h := c.LoadAsync(context.Background(), Track{Name: "Tone", Source: "tone.wav"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	p := out.lastPlayer()
	if p == nil || !p.IsPlaying() {
		t.Fatal("pending toggle not applied on load")
	}
	if p.volume != DefaultVolume {
		t.Errorf("volume %g", p.volume)
	}
	if out.rate != 8000 || out.channels != 2 {
		t.Errorf("output opened at %dHz %dch", out.rate, out.channels)
	}
	// Pull samples as the device would.
	buf := make([]byte, 4*2*fftSize)
	if _, err := p.r.Read(buf); err != nil {
		t.Fatal(err)
	}
	loud, err := c.SampleLoudness()
	if err != nil {
		t.Fatal(err)
	}
	if !(loud.Average > 0) {
		t.Errorf("loudness of playing tone is %g", loud.Average)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if !p.closed {
		t.Error("player not closed")
	}
}

func TestLoadFailureReportsAssetError(t *testing.T) {
	out := &fakeOutput{}
	c := newTestController(t, out, t.TempDir())
	h := c.LoadAsync(context.Background(), Track{Name: "Missing", Source: "missing.mp3"})
	<-h.Done()
	err := h.Wait(context.Background())
	if !errors.Is(err, ErrAssetLoad) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want ErrAssetLoad wrapping not-exist, got %v", err)
	}
	if c.Loaded() {
		t.Error("controller loaded after failure")
	}
	if _, err := c.SampleLoudness(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("want ErrNotLoaded, got %v", err)
	}
}

func TestLoadOverHTTP(t *testing.T) {
	path := writeTestWAV(t, 8000, 1, 200)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/music/tone.wav" {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()
	out := &fakeOutput{}
	c := newTestController(t, out, srv.URL+"/music")
	err = c.LoadAsync(context.Background(), Track{Name: "Tone", Source: "tone.wav"}).Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !c.Loaded() {
		t.Fatal("not loaded")
	}
	err = c.LoadAsync(context.Background(), Track{Name: "Gone", Source: "gone.wav"}).Wait(context.Background())
	if !errors.Is(err, ErrAssetLoad) {
		t.Fatalf("want ErrAssetLoad for 404, got %v", err)
	}
}

func TestChooseTrack(t *testing.T) {
	c := newTestController(t, &fakeOutput{}, "")
	for i, want := range Catalog {
		if got := c.ChooseTrack(fixedIntn(i)); got != want {
			t.Errorf("draw %d: got %+v", i, got)
		}
	}
}

type fixedIntn int

func (f fixedIntn) Intn(n int) int { return int(f) % n }

func newTestController(t *testing.T, out Output, assets string) *Controller {
	t.Helper()
	c, err := NewController(ControllerConfig{Output: out, Assets: assets, Logger: discardLogger()})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func testSample(i int) float32 {
	return float32(0.5 * math.Sin(float64(i)*0.3))
}

func writeTestWAV(t *testing.T, rate, channels, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	writeTestWAVAt(t, path, rate, channels, frames)
	return path
}

func writeTestWAVAt(t *testing.T, path string, rate, channels, frames int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           make([]int, frames*channels),
		SourceBitDepth: 16,
	}
	for i := range buf.Data {
		buf.Data[i] = int(testSample(i) * 32767)
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

type fakeOutput struct {
	mu        sync.Mutex
	suspended bool
	resumes   int
	rate      int
	channels  int
	players   []*fakePlayer
}

func (o *fakeOutput) Open(_ context.Context, rate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rate, o.channels = rate, channels
	return nil
}

func (o *fakeOutput) Suspended() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.suspended
}

func (o *fakeOutput) Resume(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.suspended = false
	o.resumes++
	return nil
}

func (o *fakeOutput) NewPlayer(r io.Reader) (Player, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := &fakePlayer{r: r}
	o.players = append(o.players, p)
	return p, nil
}

func (o *fakeOutput) lastPlayer() *fakePlayer {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.players) == 0 {
		return nil
	}
	return o.players[len(o.players)-1]
}

type fakePlayer struct {
	r       io.Reader
	playing bool
	volume  float64
	closed  bool
}

func (p *fakePlayer) Play() { p.playing = true }
func (p *fakePlayer) Pause() { p.playing = false }
func (p *fakePlayer) IsPlaying() bool { return p.playing }
func (p *fakePlayer) SetVolume(v float64) { p.volume = v }
func (p *fakePlayer) Close() error { p.closed = true; return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
