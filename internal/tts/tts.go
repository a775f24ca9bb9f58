// Package tts defines the interface for text-to-speech synthesis.
//
// islandgreet speaks the generated greeting script with a single configured
// voice and hands the resulting MP3 straight back to the caller. Nothing
// produced here is cached or stored.
package tts

import (
	"context"
	"fmt"
)

// ContentTypeMPEG is the content type of synthesized greetings.
const ContentTypeMPEG = "audio/mpeg"

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Voice overrides the configured voice id.
	Voice string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Synthesize generates audio for text. A rejection by the upstream
	// service is reported as a *StatusError.
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}

// SynthesizeResult holds the output of TTS synthesis.
type SynthesizeResult struct {
	// Audio is the encoded audio exactly as returned upstream.
	Audio []byte

	// ContentType is the MIME type of the audio (e.g., "audio/mpeg").
	ContentType string
}

// StatusError is returned when the speech service answers with a non-2xx
// status. The status is carried forward to the client.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("speech service returned status %d: %s", e.StatusCode, e.Body)
}
