// Package client fetches greeting audio from an islandgreet server.
//
// Client talks to the HTTP transport and NATS talks to the NATS transport.
// Both satisfy player.Fetcher and report server-side failures as
// *StatusError carrying the server's error message.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/tidwall/gjson"

	"github.com/nadzzz/islandgreet/internal/greeting"
	natstransport "github.com/nadzzz/islandgreet/internal/transport/nats"
)

// DefaultTimeout bounds one audio fetch, generation and synthesis included.
const DefaultTimeout = 90 * time.Second

const (
	maxAudioBytes = 25 << 20
	maxErrorBytes = 64 << 10
)

// StatusError is a failure reported by the server.
type StatusError struct {
	Status  int
	Code    string // taxonomy code, when the transport carries it
	Message string // the server's "error" field
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Request failed (%d)", e.Status)
}

// Client fetches greetings over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxAudio   int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxAudio:   maxAudioBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch posts name to the flavor's endpoint and returns the MP3 body.
func (c *Client) Fetch(ctx context.Context, name string, flavor greeting.Flavor) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, fmt.Errorf("marshal greeting request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+flavor.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create greeting request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("greeting request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return nil, &StatusError{
			Status:  resp.StatusCode,
			Message: gjson.GetBytes(raw, "error").String(),
		}
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, c.maxAudio+1))
	if err != nil {
		return nil, fmt.Errorf("read greeting audio: %w", err)
	}
	if int64(len(audio)) > c.maxAudio {
		return nil, fmt.Errorf("greeting audio exceeds %d bytes", c.maxAudio)
	}
	return audio, nil
}

// NATS fetches greetings over NATS request/reply.
type NATS struct {
	conn    *nats.Conn
	prefix  string
	timeout time.Duration
}

// NewNATS creates a fetcher that requests <prefix>.<flavor> on conn.
func NewNATS(conn *nats.Conn, prefix string, timeout time.Duration) *NATS {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &NATS{conn: conn, prefix: prefix, timeout: timeout}
}

// Fetch requests the greeting and returns the MP3 payload.
func (n *NATS) Fetch(ctx context.Context, name string, flavor greeting.Flavor) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	data, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, fmt.Errorf("marshal greeting request: %w", err)
	}

	msg := nats.NewMsg(natstransport.Subject(n.prefix, flavor))
	msg.Data = data
	reply, err := n.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("greeting request: %w", err)
	}

	if s := reply.Header.Get(natstransport.HeaderStatus); s != "" {
		status, _ := strconv.Atoi(s)
		return nil, &StatusError{
			Status:  status,
			Code:    reply.Header.Get(natstransport.HeaderCode),
			Message: gjson.GetBytes(reply.Data, "error").String(),
		}
	}
	return reply.Data, nil
}
