// Islandgreet turns a name into a personalized spoken greeting: a prompt
// template drives a completion model to write the script and a
// text-to-speech service voices it as MP3.
//
// Usage:
//
//	islandgreet [flags]
//	islandgreet --config /path/to/islandgreet.yaml
//
// @title       islandgreet API
// @version     1.0
// @description Personalized spoken greetings: a name goes in, an MP3 comes out.
// @BasePath    /
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/nadzzz/islandgreet/docs"
	"github.com/nadzzz/islandgreet/internal/config"
	"github.com/nadzzz/islandgreet/internal/health"
	"github.com/nadzzz/islandgreet/internal/names"
	"github.com/nadzzz/islandgreet/internal/orchestrator"
	"github.com/nadzzz/islandgreet/internal/telemetry"
	"github.com/nadzzz/islandgreet/internal/textgen/promptlayer"
	"github.com/nadzzz/islandgreet/internal/transport"
	httptransport "github.com/nadzzz/islandgreet/internal/transport/http"
	natstransport "github.com/nadzzz/islandgreet/internal/transport/nats"
	"github.com/nadzzz/islandgreet/internal/tts/elevenlabs"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/islandgreet.local.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("islandgreet %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	config.SetupLogging(cfg.Logging)
	slog.Info("islandgreet starting", "version", version, "environment", cfg.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Environment)
	if err != nil {
		slog.Error("failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	// Missing credentials fail each greeting request with their own code;
	// the daemon still starts.
	creds := orchestrator.CredentialsFrom(cfg)
	if cfg.ElevenLabs.APIKey == "" || cfg.ElevenLabs.VoiceID == "" || cfg.PromptLayer.APIKey == "" || cfg.OpenAI.APIKey == "" {
		slog.Warn("greeting credentials incomplete; greeting requests will fail until configured")
	}

	gen := promptlayer.New(cfg.PromptLayer, cfg.OpenAI)
	defer gen.Close()
	synth := elevenlabs.New(cfg.ElevenLabs)
	defer synth.Close()

	orch := orchestrator.New(gen, synth, creds,
		orchestrator.WithDevelopment(cfg.Development()),
		orchestrator.WithTelemetry(tel.Tracer, tel.Meter))

	healthServer := health.New(cfg.Server.HealthPort, cfg.Server.GRPCHealthPort)

	var store *names.Store
	if cfg.Names.Enabled {
		store, err = names.Open(ctx, cfg.Names)
		if err != nil {
			slog.Error("failed to open name store", "path", cfg.Names.Path, "error", err)
			os.Exit(1)
		}
		defer store.Close()
		healthServer.AddCheck("names", store.Ping)
		slog.Info("name store ready", "path", store.Path())
	}

	var transports []transport.Transport

	if cfg.Transports.HTTP.Enabled {
		opts := []httptransport.Option{httptransport.WithDevelopment(cfg.Development())}
		if store != nil {
			opts = append(opts, httptransport.WithNames(store))
		}
		if tel.MetricsHandler != nil {
			opts = append(opts, httptransport.WithMetrics(tel.MetricsHandler))
		}
		transports = append(transports, httptransport.New(cfg.Transports.HTTP, opts...))
	}
	if cfg.Transports.NATS.Enabled {
		nt := natstransport.New(cfg.Transports.NATS)
		healthServer.AddCheck("nats", nt.Healthy)
		transports = append(transports, nt)
	}

	if len(transports) == 0 {
		slog.Error("no transports enabled, enable at least one in config")
		os.Exit(1)
	}

	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, orch.Handle); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	healthServer.SetReady(true)
	slog.Info("islandgreet ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort,
		"grpc_health_port", cfg.Server.GRPCHealthPort)

	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")
	healthServer.SetReady(false)

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("islandgreet stopped")
}
