// Package http implements the HTTP transport for islandgreet.
//
// This transport exposes the greeting endpoints consumed by the player, the
// name-save form, a database health probe, the Swagger UI and, when
// telemetry is enabled, the Prometheus scrape endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/islandgreet/internal/config"
	"github.com/nadzzz/islandgreet/internal/greeting"
	"github.com/nadzzz/islandgreet/internal/names"
	"github.com/nadzzz/islandgreet/internal/transport"
)

const maxBodyBytes = 64 << 10

// NameStore persists names from the name form.
type NameStore interface {
	Save(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}

// Transport implements transport.Transport over HTTP.
type Transport struct {
	port         int
	writeTimeout time.Duration
	development  bool
	names        NameStore
	metrics      http.Handler
	server       *http.Server // built in New; Listen only sets its Handler
}

var _ transport.Transport = (*Transport)(nil)

// Option configures the HTTP transport.
type Option func(*Transport)

// WithNames enables the name-save form and the database health probe.
func WithNames(store NameStore) Option {
	return func(t *Transport) { t.names = store }
}

// WithMetrics serves h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(t *Transport) { t.metrics = h }
}

// WithDevelopment exposes diagnostic details from the name store and panics.
func WithDevelopment(dev bool) Option {
	return func(t *Transport) { t.development = dev }
}

// New creates a new HTTP transport.
func New(cfg config.HTTPConfig, opts ...Option) *Transport {
	t := &Transport{port: cfg.Port, writeTimeout: cfg.WriteTimeout}
	for _, opt := range opts {
		opt(t)
	}
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      t.writeTimeout,
	}
	return t
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler builds the route table around handler.
func (t *Transport) Handler(handler transport.Handler) http.Handler {
	mux := http.NewServeMux()

	for _, flavor := range greeting.Flavors {
		h := t.greetHandler(handler, flavor)
		// POST /api/greet, /greet (standard) and the -pussyclaat variants.
		mux.HandleFunc("POST "+flavor.Endpoint(), h)
		mux.HandleFunc("POST "+legacyPath(flavor), h)
	}

	mux.HandleFunc("POST /api/names", t.handleSaveName)
	mux.HandleFunc("GET /api/health/db", t.handleDBHealth)

	// Swagger UI serves the registered OpenAPI document.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	if t.metrics != nil {
		mux.Handle("GET /metrics", t.metrics)
	}

	return mux
}

// Listen starts the HTTP server and routes greeting requests to the handler.
// It returns nil once the server is shut down, including when Close ran first.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	t.server.Handler = t.Handler(handler)

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.server.Shutdown(ctx)
}

// greetHandler processes a POST greeting request for one flavor.
//
// @Summary     Generate a spoken greeting
// @Description Generates a personalized greeting script for the name and returns it as MP3 audio.
// @Description The name is trimmed and truncated to 100 UTF-16 code units.
// @Tags        greet
// @Accept      json
// @Produce     audio/mpeg
// @Produce     json
// @Param       request  body      greetRequest   true  "Name to greet"
// @Success     200      {file}    binary         "MP3 audio"
// @Failure     400      {object}  greeting.Body  "Name is required"
// @Failure     429      {object}  greeting.Body  "Speech service rate limited"
// @Failure     500      {object}  greeting.Body  "Missing configuration or text generation failure"
// @Failure     502      {object}  greeting.Body  "Speech service unreachable"
// @Router      /api/greet [post]
// @Router      /api/greet-pussyclaat [post]
func (t *Transport) greetHandler(handler transport.Handler, flavor greeting.Flavor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("greeting handler panicked", "panic", rec, "path", r.URL.Path)
				gerr := greeting.New(greeting.CodeInternal)
				if t.development {
					gerr.WithDetails(fmt.Sprint(rec))
				}
				writeError(w, gerr)
			}
		}()

		// A body that isn't a JSON object is treated as carrying no name.
		req := greeting.Request{Flavor: flavor}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			slog.Debug("greeting body not decodable", "error", err)
			req = greeting.Request{Flavor: flavor}
		}

		audio, gerr := handler(r.Context(), &req)
		if gerr != nil {
			writeError(w, gerr)
			return
		}

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(audio); err != nil {
			slog.Warn("writing greeting audio", "error", err)
		}
	}
}

// handleSaveName stores a name submitted by the name form.
//
// @Summary     Save a name
// @Description Trims the submitted name and inserts it into the names table.
// @Tags        names
// @Accept      x-www-form-urlencoded
// @Accept      json
// @Produce     json
// @Param       name  formData  string          false  "Name (form submission)"
// @Success     200   {object}  saveNameResult
// @Failure     400   {object}  saveNameResult  "Please enter a name."
// @Failure     500   {object}  saveNameResult
// @Failure     503   {object}  saveNameResult  "Name store disabled"
// @Router      /api/names [post]
func (t *Transport) handleSaveName(w http.ResponseWriter, r *http.Request) {
	if t.names == nil {
		writeJSON(w, http.StatusServiceUnavailable, saveNameResult{OK: false, Error: "Name store is not configured"})
		return
	}

	name := readFormName(w, r)
	if err := t.names.Save(r.Context(), name); err != nil {
		if errors.Is(err, names.ErrEmptyName) {
			writeJSON(w, http.StatusBadRequest, saveNameResult{OK: false, Error: err.Error()})
			return
		}
		slog.Error("saving name failed", "error", err)
		msg := "Something went wrong."
		if t.development {
			msg = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, saveNameResult{OK: false, Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, saveNameResult{OK: true})
}

// handleDBHealth verifies the name store is reachable.
//
// @Summary     Database health
// @Tags        health
// @Produce     json
// @Success     200  {object}  dbHealthResult
// @Failure     503  {object}  dbHealthResult
// @Router      /api/health/db [get]
func (t *Transport) handleDBHealth(w http.ResponseWriter, r *http.Request) {
	if t.names == nil {
		writeJSON(w, http.StatusServiceUnavailable, dbHealthResult{
			OK:      false,
			Error:   "Missing database configuration",
			Details: map[string]bool{"enabled": false},
		})
		return
	}

	if err := t.names.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, dbHealthResult{
			OK:      false,
			Error:   "Connection failed",
			Details: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, dbHealthResult{OK: true, Message: "Connected to database"})
}

// --- Internal types and helpers ---

type greetRequest struct {
	Name string `json:"name" example:"Tom"`
}

type saveNameResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type dbHealthResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// legacyPath returns the unprefixed route kept for older clients.
func legacyPath(f greeting.Flavor) string {
	if f == greeting.Alternate {
		return "/greet-pussyclaat"
	}
	return "/greet"
}

// readFormName extracts "name" from a JSON body or a form submission.
func readFormName(w http.ResponseWriter, r *http.Request) string {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body struct {
			Name any `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return ""
		}
		s, _ := body.Name.(string)
		return s
	}

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return ""
		}
	}
	return r.FormValue("name")
}

func writeError(w http.ResponseWriter, gerr *greeting.Error) {
	writeJSON(w, gerr.Status, gerr.Body())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
