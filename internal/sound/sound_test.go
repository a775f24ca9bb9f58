package sound

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silentMP3 builds n MPEG-1 Layer III frames (128 kbit/s, 44.1 kHz,
// stereo) with zeroed side info, which decode to silence.
func silentMP3(n int) []byte {
	const frameSize = 417 // 144 * 128000 / 44100
	out := make([]byte, 0, n*frameSize)
	for i := 0; i < n; i++ {
		frame := make([]byte, frameSize)
		frame[0], frame[1], frame[2], frame[3] = 0xFF, 0xFB, 0x90, 0x00
		out = append(out, frame...)
	}
	return out
}

func TestDecode(t *testing.T) {
	t.Parallel()

	pcm, err := Decode(silentMP3(20))
	require.NoError(t, err)
	assert.Equal(t, 44100, pcm.SampleRate)
	assert.NotEmpty(t, pcm.Samples)
	assert.Zero(t, len(pcm.Samples)%Channels)
	assert.Greater(t, pcm.Duration(), 100*time.Millisecond)
	assert.Less(t, pcm.Duration(), time.Second)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"error":"Failed to generate speech"}`))
	assert.Error(t, err)

	_, err = Decode(nil)
	assert.Error(t, err)
}

func TestBlobs(t *testing.T) {
	t.Parallel()

	b, err := NewBlobs(t.TempDir())
	require.NoError(t, err)

	url, err := b.Create([]byte("mp3"))
	require.NoError(t, err)
	assert.Contains(t, url, "file://")
	assert.Equal(t, 1, b.Len())

	data, err := b.Read(url)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), data)

	path := b.live[url]
	b.Revoke(url)
	assert.Zero(t, b.Len())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = b.Read(url)
	assert.Error(t, err)
	b.Revoke(url)

	_, err = b.Create([]byte("again"))
	require.NoError(t, err)
	require.NoError(t, b.Close())
	_, err = os.Stat(b.dir)
	assert.True(t, os.IsNotExist(err))
}

// --- Playback with a fake output stream ---

type fakeStream struct {
	mu       sync.Mutex
	writes   int
	writeErr error
	block    chan struct{} // when set, Write waits on it
	started  bool
	closed   bool
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeStream) Write() error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	return s.writeErr
}

func (s *fakeStream) Stop() error { return nil }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func loadSpeaker(t *testing.T, stream *fakeStream, openErr error) (*Speaker, string) {
	t.Helper()

	b, err := NewBlobs(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	url, err := b.Create(silentMP3(20))
	require.NoError(t, err)

	sp := NewSpeakerWith(b, func(rate float64, frames int, buf []int16) (Stream, error) {
		if openErr != nil {
			return nil, openErr
		}
		assert.Equal(t, 44100.0, rate)
		assert.Len(t, buf, frames*Channels)
		return stream, nil
	})
	return sp, url
}

func TestHandlePlaysToEnd(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{}
	sp, url := loadSpeaker(t, stream, nil)

	h, err := sp.Load(url)
	require.NoError(t, err)

	ended := make(chan struct{})
	require.NoError(t, h.Play(func() { close(ended) }, func(err error) { t.Errorf("unexpected error: %v", err) }))

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not end")
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()
	assert.True(t, stream.started)
	assert.True(t, stream.closed)
	assert.Positive(t, stream.writes)
}

func TestHandleWriteError(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{writeErr: errors.New("device lost")}
	sp, url := loadSpeaker(t, stream, nil)

	h, err := sp.Load(url)
	require.NoError(t, err)

	failed := make(chan error, 1)
	require.NoError(t, h.Play(func() { t.Error("unexpected end") }, func(err error) { failed <- err }))

	select {
	case err := <-failed:
		assert.EqualError(t, err, "device lost")
	case <-time.After(2 * time.Second):
		t.Fatal("playback error not reported")
	}
}

func TestHandlePlayRejected(t *testing.T) {
	t.Parallel()

	sp, url := loadSpeaker(t, nil, errors.New("no output device"))

	h, err := sp.Load(url)
	require.NoError(t, err)
	assert.Error(t, h.Play(func() {}, func(error) {}))
}

func TestHandlePauseAndDetach(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{block: make(chan struct{})}
	sp, url := loadSpeaker(t, stream, nil)

	h, err := sp.Load(url)
	require.NoError(t, err)

	calls := make(chan string, 2)
	require.NoError(t, h.Play(func() { calls <- "ended" }, func(error) { calls <- "error" }))

	hh := h.(*handle)
	hh.mu.Lock()
	stop := hh.stop
	hh.mu.Unlock()
	require.NotNil(t, stop)

	done := make(chan struct{})
	go func() {
		h.Pause()
		close(done)
	}()
	<-stop
	// The in-flight write returns only after the stop is visible.
	close(stream.block)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pause did not return")
	}
	select {
	case c := <-calls:
		t.Fatalf("unexpected callback %s after pause", c)
	default:
	}

	h.Detach()
	assert.Error(t, h.Play(func() {}, func(error) {}))
}

func TestLoadUnknownBlob(t *testing.T) {
	t.Parallel()

	sp, _ := loadSpeaker(t, &fakeStream{}, nil)
	_, err := sp.Load("file:///nowhere.mp3")
	assert.Error(t, err)
}
