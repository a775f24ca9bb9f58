// Package orchestrator implements the greeting pipeline.
//
// The orchestrator receives a raw name from a transport, validates it,
// checks that every upstream credential is configured, then runs text
// generation followed by speech synthesis. Steps run strictly in order and
// stop at the first failure. Whatever goes wrong, the caller gets exactly one
// *greeting.Error back, never a raw upstream error.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nadzzz/islandgreet/internal/config"
	"github.com/nadzzz/islandgreet/internal/greeting"
	"github.com/nadzzz/islandgreet/internal/textgen"
	"github.com/nadzzz/islandgreet/internal/tts"
)

const instrumentationName = "github.com/nadzzz/islandgreet/internal/orchestrator"

// outcomeOK labels successful greetings in the outcome counter.
const outcomeOK = "OK"

// Credentials are the upstream secrets that must be present before any
// network call is attempted.
type Credentials struct {
	ElevenLabsKey  string
	VoiceID        string
	PromptLayerKey string
	OpenAIKey      string
}

// CredentialsFrom extracts the required credentials from the loaded config.
func CredentialsFrom(cfg *config.Config) Credentials {
	return Credentials{
		ElevenLabsKey:  cfg.ElevenLabs.APIKey,
		VoiceID:        cfg.ElevenLabs.VoiceID,
		PromptLayerKey: cfg.PromptLayer.APIKey,
		OpenAIKey:      cfg.OpenAI.APIKey,
	}
}

// missing returns the code for the first absent credential, in the order
// speech key, voice, template key, completion key.
func (c Credentials) missing() (greeting.Code, bool) {
	switch {
	case c.ElevenLabsKey == "":
		return greeting.CodeMissingElevenLabsKey, true
	case c.VoiceID == "":
		return greeting.CodeMissingVoiceID, true
	case c.PromptLayerKey == "":
		return greeting.CodeMissingPromptLayerKey, true
	case c.OpenAIKey == "":
		return greeting.CodeMissingOpenAIKey, true
	}
	return "", false
}

// Orchestrator sequences validation, text generation and speech synthesis.
type Orchestrator struct {
	generator   textgen.Generator
	synthesizer tts.Synthesizer
	creds       Credentials
	development bool

	tracer   trace.Tracer
	outcomes metric.Int64Counter
	duration metric.Float64Histogram
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDevelopment includes upstream error text as details in returned errors.
func WithDevelopment(dev bool) Option {
	return func(o *Orchestrator) { o.development = dev }
}

// WithTelemetry overrides the global tracer and meter providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(o *Orchestrator) {
		o.tracer = tp.Tracer(instrumentationName)
		o.initInstruments(mp.Meter(instrumentationName))
	}
}

// New creates a new Orchestrator.
func New(gen textgen.Generator, synth tts.Synthesizer, creds Credentials, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		generator:   gen,
		synthesizer: synth,
		creds:       creds,
		tracer:      otel.Tracer(instrumentationName),
	}
	o.initInstruments(otel.Meter(instrumentationName))
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) initInstruments(meter metric.Meter) {
	outcomes, err := meter.Int64Counter("islandgreet.greetings",
		metric.WithDescription("Greeting requests by outcome code and flavor."))
	if err != nil {
		slog.Warn("creating greeting counter", "error", err)
	}
	duration, err := meter.Float64Histogram("islandgreet.greeting.duration",
		metric.WithDescription("End-to-end greeting latency."),
		metric.WithUnit("s"))
	if err != nil {
		slog.Warn("creating greeting histogram", "error", err)
	}
	o.outcomes, o.duration = outcomes, duration
}

// Orchestrate turns a raw name into greeting audio.
// The returned audio is owned by the caller and is never retained.
func (o *Orchestrator) Orchestrate(ctx context.Context, rawName any, flavor greeting.Flavor) (audio []byte, gerr *greeting.Error) {
	start := time.Now()
	requestID := uuid.NewString()
	logger := slog.With("request_id", requestID, "flavor", flavor)

	ctx, span := o.tracer.Start(ctx, "greeting.orchestrate", trace.WithAttributes(
		attribute.String("greeting.flavor", string(flavor)),
		attribute.String("greeting.request_id", requestID),
	))
	defer func() {
		outcome := outcomeOK
		if gerr != nil {
			outcome = string(gerr.Code)
			span.SetStatus(codes.Error, string(gerr.Code))
			span.SetAttributes(attribute.Int("http.status_code", gerr.Status))
		}
		span.End()
		o.record(ctx, outcome, flavor, time.Since(start))
	}()

	// Step 1: Validate.
	name, gerr := greeting.ValidateName(rawName)
	if gerr != nil {
		logger.Info("greeting rejected", "code", gerr.Code)
		return nil, gerr
	}

	// Step 2: Configuration. No network call is made past a missing credential.
	if code, missing := o.creds.missing(); missing {
		logger.Error("greeting misconfigured", "code", code)
		return nil, greeting.New(code)
	}

	logger.Info("greeting started", "name_length", len(name))

	// Step 3: Generate the script.
	script, err := o.generate(ctx, name, flavor)
	if err != nil {
		logger.Error("text generation failed", "error", err)
		return nil, o.fail(greeting.Wrap(greeting.CodeTextGen, err))
	}

	// Step 4: Speak it.
	result, err := o.synthesize(ctx, script)
	if err != nil {
		speechErr := greeting.Wrap(greeting.CodeSpeech, err).WithStatus(http.StatusBadGateway)
		var se *tts.StatusError
		if errors.As(err, &se) {
			speechErr.WithStatus(se.StatusCode)
		}
		logger.Error("speech synthesis failed", "status", speechErr.Status, "error", err)
		return nil, o.fail(speechErr)
	}

	logger.Info("greeting complete", "duration", time.Since(start), "audio_bytes", len(result.Audio))
	return result.Audio, nil
}

// Handle adapts Orchestrate to transport.Handler.
// Requests without a known flavor get the standard greeting.
func (o *Orchestrator) Handle(ctx context.Context, req *greeting.Request) ([]byte, *greeting.Error) {
	flavor := req.Flavor
	if !flavor.Valid() {
		flavor = greeting.Standard
	}
	return o.Orchestrate(ctx, req.Name, flavor)
}

// --- Internal types and helpers ---

func (o *Orchestrator) generate(ctx context.Context, name string, flavor greeting.Flavor) (string, error) {
	ctx, span := o.tracer.Start(ctx, "greeting.generate_text")
	defer span.End()

	script, err := o.generator.Generate(ctx, name, flavor)
	if err == nil && strings.TrimSpace(script) == "" {
		err = textgen.ErrEmptyText
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "text generation failed")
		return "", err
	}
	span.SetAttributes(attribute.Int("greeting.script_length", len(script)))
	return script, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, script string) (*tts.SynthesizeResult, error) {
	ctx, span := o.tracer.Start(ctx, "greeting.synthesize")
	defer span.End()

	result, err := o.synthesizer.Synthesize(ctx, script, tts.SynthesizeOpts{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "speech synthesis failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("greeting.audio_bytes", len(result.Audio)))
	return result, nil
}

// fail attaches diagnostic details when running in development.
func (o *Orchestrator) fail(gerr *greeting.Error) *greeting.Error {
	if o.development {
		if cause := gerr.Unwrap(); cause != nil {
			gerr.WithDetails(cause.Error())
		}
	}
	return gerr
}

func (o *Orchestrator) record(ctx context.Context, outcome string, flavor greeting.Flavor, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("code", outcome),
		attribute.String("flavor", string(flavor)),
	)
	if o.outcomes != nil {
		o.outcomes.Add(ctx, 1, attrs)
	}
	if o.duration != nil {
		o.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
