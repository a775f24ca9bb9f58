// Package sound plays greeting audio on the local output device.
//
// Fetched MP3 bytes are parked in a temp-file BlobStore, decoded with go-mp3
// and written to a PortAudio output stream. Speaker implements player.Media
// and the handles it returns implement player.Handle.
package sound

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/hajimehoshi/go-mp3"

	"github.com/nadzzz/islandgreet/internal/player"
)

// Channels is the channel count of decoded audio. go-mp3 always yields
// interleaved 16-bit stereo.
const Channels = 2

// DefaultFramesPerBuffer is the PortAudio buffer size in frames.
const DefaultFramesPerBuffer = 1024

var errDetached = errors.New("audio handle detached")

// PCM is decoded interleaved 16-bit audio.
type PCM struct {
	SampleRate int
	Samples    []int16
}

// Duration returns the playing time of p.
func (p *PCM) Duration() time.Duration {
	if p.SampleRate == 0 {
		return 0
	}
	frames := len(p.Samples) / Channels
	return time.Duration(frames) * time.Second / time.Duration(p.SampleRate)
}

// Decode decodes an MP3 stream.
func Decode(data []byte) (*PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("decode mp3: no audio frames")
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
	}
	return &PCM{SampleRate: dec.SampleRate(), Samples: samples}, nil
}

// Stream is the subset of *portaudio.Stream used for playback.
type Stream interface {
	Start() error
	Write() error
	Stop() error
	Close() error
}

// OpenFunc opens an output stream that plays buf on every Write.
type OpenFunc func(sampleRate float64, framesPerBuffer int, buf []int16) (Stream, error)

// Speaker loads blobs into playable handles.
type Speaker struct {
	blobs           *Blobs
	open            OpenFunc
	framesPerBuffer int
	terminate       func() error
}

var _ player.Media = (*Speaker)(nil)

// NewSpeaker initializes PortAudio and plays through the default output
// device. Close terminates PortAudio.
func NewSpeaker(blobs *Blobs) (*Speaker, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	s := NewSpeakerWith(blobs, openDefault)
	s.terminate = portaudio.Terminate
	return s, nil
}

// NewSpeakerWith creates a speaker that writes to streams from open.
func NewSpeakerWith(blobs *Blobs, open OpenFunc) *Speaker {
	return &Speaker{blobs: blobs, open: open, framesPerBuffer: DefaultFramesPerBuffer}
}

// Load decodes the blob behind url.
func (s *Speaker) Load(url string) (player.Handle, error) {
	data, err := s.blobs.Read(url)
	if err != nil {
		return nil, err
	}
	pcm, err := Decode(data)
	if err != nil {
		return nil, err
	}
	slog.Debug("greeting audio decoded", "sample_rate", pcm.SampleRate, "duration", pcm.Duration())
	return &handle{speaker: s, pcm: pcm}, nil
}

// Close releases the audio subsystem.
func (s *Speaker) Close() error {
	if s.terminate == nil {
		return nil
	}
	return s.terminate()
}

// --- Internal types and helpers ---

func openDefault(sampleRate float64, framesPerBuffer int, buf []int16) (Stream, error) {
	stream, err := portaudio.OpenDefaultStream(0, Channels, sampleRate, framesPerBuffer, buf)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

type handle struct {
	speaker *Speaker

	mu      sync.Mutex
	pcm     *PCM
	pos     int // next sample index
	stop    chan struct{}
	stopped sync.WaitGroup
}

func (h *handle) Play(onEnded func(), onError func(error)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pcm == nil {
		return errDetached
	}
	if h.stop != nil {
		return nil
	}
	if h.pos >= len(h.pcm.Samples) {
		h.pos = 0
	}

	buf := make([]int16, h.speaker.framesPerBuffer*Channels)
	stream, err := h.speaker.open(float64(h.pcm.SampleRate), h.speaker.framesPerBuffer, buf)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("start output stream: %w", err)
	}

	stop := make(chan struct{})
	h.stop = stop
	h.stopped.Add(1)
	go h.run(stream, buf, h.pcm.Samples, h.pos, stop, onEnded, onError)
	return nil
}

// run writes samples from pos until the end, a write error or stop.
func (h *handle) run(stream Stream, buf, samples []int16, pos int, stop chan struct{}, onEnded func(), onError func(error)) {
	defer h.stopped.Done()

	finish := func() {
		_ = stream.Stop()
		_ = stream.Close()
		h.mu.Lock()
		h.pos = pos
		if h.stop == stop {
			h.stop = nil
		}
		h.mu.Unlock()
	}

	for pos < len(samples) {
		select {
		case <-stop:
			finish()
			return
		default:
		}

		n := copy(buf, samples[pos:])
		clear(buf[n:])
		if err := stream.Write(); err != nil {
			finish()
			onError(err)
			return
		}
		pos += n
	}

	finish()
	onEnded()
}

func (h *handle) Pause() {
	h.mu.Lock()
	stop := h.stop
	h.stop = nil
	h.mu.Unlock()

	if stop != nil {
		close(stop)
		h.stopped.Wait()
	}
}

func (h *handle) Detach() {
	h.Pause()
	h.mu.Lock()
	h.pcm = nil
	h.pos = 0
	h.mu.Unlock()
}
