// Package textgen defines the interface for greeting script generation.
//
// A generator takes a validated name and a flavor and produces the text that
// is later spoken by the synthesizer. The shipped backend resolves a prompt
// template through PromptLayer and runs it against the OpenAI Chat
// Completions API.
package textgen

import (
	"context"
	"errors"

	"github.com/nadzzz/islandgreet/internal/greeting"
)

// ErrEmptyText is returned when the completion produced no usable text.
var ErrEmptyText = errors.New("completion returned empty text")

// Generator produces a greeting script for a name.
type Generator interface {
	// Generate returns the trimmed, non-empty greeting script.
	Generate(ctx context.Context, name string, flavor greeting.Flavor) (string, error)
}
