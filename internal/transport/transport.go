// Package transport defines the interface for pluggable greeting transports.
//
// Each transport (HTTP, NATS) decodes requests in its own wire format, hands
// them to the orchestrator through a Handler and encodes the audio or the
// taxonomy error back to the caller. The orchestrator doesn't care how
// requests arrive.
package transport

import (
	"context"

	"github.com/nadzzz/islandgreet/internal/greeting"
)

// Handler processes one greeting request and returns MP3 audio or exactly
// one error.
type Handler func(ctx context.Context, req *greeting.Request) ([]byte, *greeting.Error)

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "http", "nats").
	Name() string

	// Listen starts accepting requests and passes them to the handler.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
