package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/islandgreet/internal/config"
	"github.com/nadzzz/islandgreet/internal/tts"
)

func newTestSynth(t *testing.T, h http.HandlerFunc) *Synthesizer {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	s := New(config.ElevenLabsConfig{
		APIKey:  "xi-key",
		VoiceID: "voice-1",
		BaseURL: srv.URL + "/",
		Timeout: 5 * time.Second,
	})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSynthesizeSuccess(t *testing.T) {
	t.Parallel()

	audio := []byte("ID3\x04fake-mp3-frames")
	s := newTestSynth(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "xi-key", r.Header.Get("xi-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))

		var body speechRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Wah gwaan Tom", body.Text)
		assert.Equal(t, "eleven_multilingual_v2", body.ModelID)
		assert.Equal(t, DefaultVoiceSettings, body.VoiceSettings)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(audio)
	})

	res, err := s.Synthesize(context.Background(), "Wah gwaan Tom", tts.SynthesizeOpts{})
	require.NoError(t, err)
	assert.Equal(t, audio, res.Audio)
	assert.Equal(t, tts.ContentTypeMPEG, res.ContentType)
}

func TestSynthesizeOversizedAudio(t *testing.T) {
	t.Parallel()

	s := newTestSynth(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("0123456789"))
	})

	s.maxAudio = 10
	res, err := s.Synthesize(context.Background(), "Tom", tts.SynthesizeOpts{})
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), res.Audio)

	s.maxAudio = 9
	_, err = s.Synthesize(context.Background(), "Tom", tts.SynthesizeOpts{})
	require.Error(t, err)
	var se *tts.StatusError
	assert.False(t, errors.As(err, &se))
}

func TestSynthesizeVoiceOverride(t *testing.T) {
	t.Parallel()

	s := newTestSynth(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/other-voice", r.URL.Path)
		_, _ = w.Write([]byte("mp3"))
	})

	_, err := s.Synthesize(context.Background(), "hi", tts.SynthesizeOpts{Voice: "other-voice"})
	require.NoError(t, err)
}

func TestSynthesizeUpstreamStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()

			s := newTestSynth(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"detail":"nope"}`))
			})

			_, err := s.Synthesize(context.Background(), "hi", tts.SynthesizeOpts{})
			var se *tts.StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, status, se.StatusCode)
			assert.Contains(t, se.Body, "nope")
		})
	}
}

func TestSynthesizeTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := New(config.ElevenLabsConfig{APIKey: "k", VoiceID: "v", BaseURL: url, Timeout: time.Second})
	_, err := s.Synthesize(context.Background(), "hi", tts.SynthesizeOpts{})
	require.Error(t, err)

	var se *tts.StatusError
	assert.False(t, errors.As(err, &se))
}
