// Greetplay is a terminal player for islandgreet. It fetches a greeting
// from a running daemon and plays it on the default audio device.
//
// Usage:
//
//	greetplay [flags]                      prompt for names
//	greetplay [flags] https://host/bomboclaat/Amara
//
// With a share link the greeting is prefetched and plays when Enter is
// pressed.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/nadzzz/islandgreet/internal/client"
	"github.com/nadzzz/islandgreet/internal/config"
	"github.com/nadzzz/islandgreet/internal/greeting"
	"github.com/nadzzz/islandgreet/internal/player"
	"github.com/nadzzz/islandgreet/internal/sound"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	serverURL := flag.String("server", "http://localhost:8080", "islandgreet HTTP base URL")
	natsURL := flag.String("nats", "", "fetch over NATS from this server instead of HTTP")
	natsPrefix := flag.String("nats-prefix", "islandgreet.greet", "NATS subject prefix")
	flavorName := flag.String("flavor", "bomboclaat", "greeting flavor (bomboclaat, pussyclaat)")
	origin := flag.String("origin", "", "share link origin (defaults to -server)")
	hideShare := flag.Bool("hide-share", false, "do not print a share link")
	timeout := flag.Duration("timeout", client.DefaultTimeout, "audio fetch timeout")
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("greetplay %s\n", version)
		os.Exit(0)
	}

	config.SetupLogging(config.LoggingConfig{Level: *logLevel, Format: "text"})

	flavor, err := greeting.ParseFlavor(*flavorName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var initialName string
	if arg := flag.Arg(0); arg != "" {
		f, name, err := player.ParseShareURL(arg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		flavor, initialName = f, name
	}

	if *origin == "" {
		*origin = *serverURL
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var fetcher player.Fetcher = client.New(*serverURL, client.WithTimeout(*timeout))
	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL, nats.Name("greetplay"))
		if err != nil {
			slog.Error("failed to connect to nats", "url", *natsURL, "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		fetcher = client.NewNATS(nc, *natsPrefix, *timeout)
	}

	blobs, err := sound.NewBlobs("")
	if err != nil {
		slog.Error("failed to create blob store", "error", err)
		os.Exit(1)
	}
	defer blobs.Close()

	speaker, err := sound.NewSpeaker(blobs)
	if err != nil {
		slog.Error("failed to open audio output", "error", err)
		os.Exit(1)
	}
	defer speaker.Close()

	var state atomic.Int32
	ui := &terminal{flavor: flavor, preset: initialName != ""}

	ctrl := player.New(fetcher, speaker, blobs, player.Options{
		Flavor:       flavor,
		Origin:       *origin,
		HideShareURL: *hideShare,
		InitialName:  initialName,
		AutoPlay:     initialName != "",
		Reload: func() {
			ui.preset = false
		},
		Observer: func(s player.Session) {
			state.Store(int32(s.State))
			ui.render(s)
		},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()

	if initialName == "" {
		ui.render(player.Session{State: player.Idle})
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return
		case line := <-lines:
			switch player.State(state.Load()) {
			case player.Ready:
				ctrl.Tap()
			case player.Done, player.Error:
				ctrl.Reset()
			default:
				ctrl.Submit(line)
			}
		}
	}
}

// terminal prints session snapshots. It is only touched from the
// controller's loop goroutine after startup.
type terminal struct {
	flavor greeting.Flavor
	preset bool
}

func (t *terminal) render(s player.Session) {
	switch s.State {
	case player.Idle:
		if t.preset {
			fmt.Println("Press Enter fi hear di prophecy")
		} else {
			fmt.Print("Whisper a name to di Oracle… den press Enter\n> ")
		}
	case player.Loading:
		fmt.Printf("Di spirits dem a channel fi %s…\n", s.Name)
	case player.Ready:
		fmt.Printf("Di prophecy ready fi %s. Press Enter fi receive it!\n", s.Name)
	case player.Playing:
		exclaim := "Bomboclaat!"
		if t.flavor == greeting.Alternate {
			exclaim = "Pussyclaat!"
		}
		fmt.Printf("🔥 %s Di Prophet speaks to %s…\n", exclaim, s.Name)
	case player.Done:
		fmt.Printf("✦ ✦ ✦\nDi Oracle has spoken fi %s\nSo it go, seen?\n", s.Name)
		if s.ShareURL != "" {
			fmt.Printf("Spread di Prophecy: %s\n", s.ShareURL)
		}
		fmt.Println("Press Enter fi seek another prophecy")
	case player.Error:
		msg := s.ErrorMessage
		if strings.TrimSpace(msg) == "" {
			msg = "Di spirits dem gone silent."
		}
		fmt.Printf("🔥 %s\nPress Enter fi try seek di Oracle again\n", msg)
	}
}
