// Package elevenlabs implements the TTS Synthesizer using the ElevenLabs
// text-to-speech REST API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/nadzzz/islandgreet/internal/config"
	"github.com/nadzzz/islandgreet/internal/tts"
)

const (
	defaultModelID = "eleven_multilingual_v2"
	maxAudioBytes  = 25 << 20 // 25 MB
	maxErrorBody   = 2048
)

// VoiceSettings are the fixed delivery settings for every greeting.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings is tuned for an energetic, expressive read.
var DefaultVoiceSettings = VoiceSettings{
	Stability:       0.4,
	SimilarityBoost: 0.85,
	Style:           0.6,
	UseSpeakerBoost: true,
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// Synthesizer implements tts.Synthesizer against ElevenLabs.
type Synthesizer struct {
	apiKey  string
	voiceID string
	baseURL string
	modelID string
	client  *http.Client

	maxAudio int64
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// New creates a new ElevenLabs synthesizer from config.
func New(cfg config.ElevenLabsConfig) *Synthesizer {
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = defaultModelID
	}
	return &Synthesizer{
		apiKey:  cfg.APIKey,
		voiceID: cfg.VoiceID,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		modelID: modelID,
		client:  &http.Client{Timeout: cfg.Timeout},

		maxAudio: maxAudioBytes,
	}
}

// Synthesize converts text to MP3 audio with the configured voice.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	voice := s.voiceID
	if opts.Voice != "" {
		voice = opts.Voice
	}

	bodyBytes, err := json.Marshal(speechRequest{
		Text:          text,
		ModelID:       s.modelID,
		VoiceSettings: DefaultVoiceSettings,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling speech request: %w", err)
	}

	endpoint := s.baseURL + "/v1/text-to-speech/" + url.PathEscape(voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating speech request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", tts.ContentTypeMPEG)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.Warn("elevenlabs rejected speech request", "status", resp.StatusCode, "voice", voice)
		return nil, &tts.StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, s.maxAudio+1))
	if err != nil {
		return nil, fmt.Errorf("reading speech audio: %w", err)
	}
	if int64(len(audio)) > s.maxAudio {
		return nil, fmt.Errorf("speech audio exceeds %d bytes", s.maxAudio)
	}

	slog.Debug("speech synthesized", "voice", voice, "audio_bytes", len(audio))
	return &tts.SynthesizeResult{Audio: audio, ContentType: tts.ContentTypeMPEG}, nil
}

// Close drops idle keep-alive connections.
func (s *Synthesizer) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
