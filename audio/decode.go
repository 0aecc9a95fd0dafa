package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// PCM is decoded audio with interleaved float samples in [-1, 1].
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Frames returns the number of sample frames.
func (p *PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Decode decodes an MP3 or WAV file chosen by the extension of name.
func Decode(name string, data []byte, logger *slog.Logger) (*PCM, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".mp3":
		return decodeMP3(name, data, logger)
	case ".wav":
		return decodeWAV(name, data, logger)
	default:
		return nil, fmt.Errorf("unsupported audio format %q", ext)
	}
}

func decodeMP3(name string, data []byte, logger *slog.Logger) (*PCM, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	nbytes := decoder.Length()
	if nbytes <= 0 {
		return nil, fmt.Errorf("cannot determine length of MP3 file: %s", name)
	}
	// go-mp3 always outputs 16-bit little endian stereo.
	const nchannels = 2
	nsamples := int(nbytes / 2)
	logger.Debug("decoding mp3 file", "name", name, "sampleRate", decoder.SampleRate(), "nsamples", nsamples)
	pcm := &PCM{
		SampleRate: decoder.SampleRate(),
		Channels:   nchannels,
		Samples:    make([]float32, 0, nsamples),
	}
	var sample int16
	for range nsamples {
		err := binary.Read(decoder, binary.LittleEndian, &sample)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		} else if err != nil {
			return nil, err
		}
		pcm.Samples = append(pcm.Samples, float32(sample)/32768)
	}
	pcm.Samples = pcm.Samples[:len(pcm.Samples)/nchannels*nchannels]
	logger.Debug("decoded mp3 file", "name", name, "frames", pcm.Frames())
	return pcm, nil
}

func decodeWAV(name string, data []byte, logger *slog.Logger) (*PCM, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: %s", name)
	}
	err := decoder.FwdToPCM()
	if err != nil {
		return nil, err
	}
	format := decoder.Format()
	bitDepth := int(decoder.SampleBitDepth())
	if bitDepth == 0 {
		return nil, fmt.Errorf("unknown bit depth for WAV file: %s", name)
	}
	nchannels := format.NumChannels
	if nchannels < 1 || nchannels > 2 {
		return nil, fmt.Errorf("unsupported channel count %d in WAV file: %s", nchannels, name)
	}
	bytesPerSample := (bitDepth-1)/8 + 1
	nsamples := int(decoder.PCMLen()) / bytesPerSample
	logger.Debug("decoding wav file",
		"name", name,
		"sampleRate", format.SampleRate,
		"nchannels", nchannels,
		"bitDepth", bitDepth,
		"nsamples", nsamples,
	)
	buf := &audio.IntBuffer{
		Format:         format,
		Data:           make([]int, nsamples),
		SourceBitDepth: bitDepth,
	}
	n, err := decoder.PCMBuffer(buf)
	if err != nil {
		return nil, err
	}
	factor := float32(math.Pow(2, float64(bitDepth-1)))
	n = n / nchannels * nchannels
	pcm := &PCM{
		SampleRate: format.SampleRate,
		Channels:   nchannels,
		Samples:    make([]float32, n),
	}
	for i, v := range buf.Data[:n] {
		pcm.Samples[i] = float32(v) / factor
	}
	logger.Debug("decoded wav file", "name", name, "frames", pcm.Frames())
	return pcm, nil
}

// loopReader streams PCM as float32 little endian bytes forever, tapping
// every emitted sample into an analyser.
type loopReader struct {
	pcm  *PCM
	pos  int
	tap  *Analyser
	smps []float32
}

func newLoopReader(pcm *PCM, tap *Analyser) *loopReader {
	return &loopReader{pcm: pcm, tap: tap}
}

func (lr *loopReader) Read(b []byte) (int, error) {
	if len(lr.pcm.Samples) == 0 {
		return 0, io.EOF
	}
	n := len(b) / 4
	// Keep whole frames so the tap stays channel aligned.
	n -= n % lr.pcm.Channels
	if n == 0 {
		return 0, nil
	}
	lr.smps = lr.smps[:0]
	for i := 0; i < n; i++ {
		v := lr.pcm.Samples[lr.pos]
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
		lr.smps = append(lr.smps, v)
		lr.pos++
		if lr.pos == len(lr.pcm.Samples) {
			lr.pos = 0
		}
	}
	if lr.tap != nil {
		lr.tap.Tap(lr.smps, lr.pcm.Channels)
	}
	return 4 * n, nil
}
