// Package nats implements the NATS request/reply transport for islandgreet.
//
// Greeting requests arrive on <prefix>.standard and <prefix>.alternate as
// JSON {"name": ...}. The reply carries the MP3 bytes with a Content-Type
// header, or the JSON error body with Islandgreet-Status and
// Islandgreet-Code headers. Subscriptions join a queue group so several
// daemons can share the load.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/nadzzz/islandgreet/internal/config"
	"github.com/nadzzz/islandgreet/internal/greeting"
	"github.com/nadzzz/islandgreet/internal/transport"
)

// Reply headers.
const (
	HeaderContentType = "Content-Type"
	HeaderStatus      = "Islandgreet-Status"
	HeaderCode        = "Islandgreet-Code"
)

const handleTimeout = 2 * time.Minute

// Subject returns the request subject for flavor under prefix.
func Subject(prefix string, flavor greeting.Flavor) string {
	return strings.TrimSuffix(prefix, ".") + "." + string(flavor)
}

// Transport implements transport.Transport over NATS.
type Transport struct {
	cfg config.NATSConfig

	mu       sync.Mutex
	embedded *server.Server
	conn     *nats.Conn
	subs     []*nats.Subscription

	// gate orders inflight.Add against Close so no request is admitted
	// once closing is set.
	gate     sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

// New creates a new NATS transport.
func New(cfg config.NATSConfig) *Transport {
	return &Transport{cfg: cfg}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "nats" }

// Listen subscribes to the greeting subjects and blocks until the context
// is cancelled.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	if err := t.Start(ctx, handler); err != nil {
		return err
	}
	<-ctx.Done()
	slog.Info("nats transport shutting down")
	return t.Close()
}

// Start connects and subscribes without blocking. Requests are handled
// until ctx is cancelled or Close is called.
func (t *Transport) Start(ctx context.Context, handler transport.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gate.Lock()
	t.closing = false
	t.gate.Unlock()

	url := strings.Join(t.cfg.Servers, ",")
	if t.cfg.Embedded {
		ns, err := startEmbedded(t.cfg.EmbeddedPort)
		if err != nil {
			return err
		}
		t.embedded = ns
		url = ns.ClientURL()
	}
	if url == "" {
		return errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("islandgreet"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	}
	if t.cfg.Token != "" {
		options = append(options, nats.Token(t.cfg.Token))
	}

	conn, err := nats.Connect(url, options...)
	if err != nil {
		t.shutdownEmbedded()
		return fmt.Errorf("connect to nats: %w", err)
	}
	t.conn = conn

	for _, flavor := range greeting.Flavors {
		subject := Subject(t.cfg.SubjectPrefix, flavor)
		sub, err := conn.QueueSubscribe(subject, t.cfg.QueueGroup, func(msg *nats.Msg) {
			if !t.admit() {
				return
			}
			go func() {
				defer t.inflight.Done()
				t.handle(ctx, handler, flavor, msg)
			}()
		})
		if err != nil {
			t.closeLocked()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		t.subs = append(t.subs, sub)
	}
	if err := conn.Flush(); err != nil {
		t.closeLocked()
		return fmt.Errorf("flush subscriptions: %w", err)
	}

	slog.Info("nats transport listening",
		"url", conn.ConnectedUrl(),
		"prefix", t.cfg.SubjectPrefix,
		"queue", t.cfg.QueueGroup,
		"embedded", t.cfg.Embedded)
	return nil
}

// Healthy reports an error unless the connection is up.
func (t *Transport) Healthy(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return errors.New("nats not connected")
	}
	if status := t.conn.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats connection %s", status)
	}
	return nil
}

// Close drains the subscriptions, waits for in-flight requests and closes
// the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

// --- Internal types and helpers ---

// admit registers a request as in flight unless the transport is closing.
func (t *Transport) admit() bool {
	t.gate.Lock()
	defer t.gate.Unlock()
	if t.closing {
		return false
	}
	t.inflight.Add(1)
	return true
}

func (t *Transport) closeLocked() error {
	t.gate.Lock()
	t.closing = true
	t.gate.Unlock()

	var errs []error
	for _, sub := range t.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	t.subs = nil
	t.inflight.Wait()

	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.shutdownEmbedded()
	return errors.Join(errs...)
}

func (t *Transport) shutdownEmbedded() {
	if t.embedded == nil {
		return
	}
	slog.Info("shutting down embedded NATS server")
	t.embedded.Shutdown()
	t.embedded.WaitForShutdown()
	t.embedded = nil
}

func (t *Transport) handle(ctx context.Context, handler transport.Handler, flavor greeting.Flavor, msg *nats.Msg) {
	if msg.Reply == "" {
		slog.Warn("dropping greeting request without reply subject", "subject", msg.Subject)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	reply := nats.NewMsg(msg.Reply)
	audio, gerr := safeHandle(ctx, handler, decodeRequest(msg.Data, flavor))
	if gerr != nil {
		body, _ := json.Marshal(gerr.Body())
		reply.Data = body
		reply.Header.Set(HeaderContentType, "application/json")
		reply.Header.Set(HeaderStatus, strconv.Itoa(gerr.Status))
		reply.Header.Set(HeaderCode, string(gerr.Code))
	} else {
		reply.Data = audio
		reply.Header.Set(HeaderContentType, "audio/mpeg")
	}

	if err := msg.RespondMsg(reply); err != nil {
		slog.Warn("nats reply failed", "subject", msg.Subject, "error", err)
	}
}

// decodeRequest treats an undecodable payload as a request without a name.
func decodeRequest(data []byte, flavor greeting.Flavor) *greeting.Request {
	req := &greeting.Request{}
	if err := json.Unmarshal(data, req); err != nil {
		req = &greeting.Request{}
	}
	req.Flavor = flavor
	return req
}

func safeHandle(ctx context.Context, handler transport.Handler, req *greeting.Request) (audio []byte, gerr *greeting.Error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("greeting handler panicked", "panic", r, "transport", "nats")
			audio, gerr = nil, greeting.New(greeting.CodeInternal)
		}
	}()
	return handler(ctx, req)
}

func startEmbedded(port int) (*server.Server, error) {
	opts := &server.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start within 5 seconds")
	}

	slog.Info("embedded NATS server started", "url", ns.ClientURL())
	return ns, nil
}
