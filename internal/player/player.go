// Package player implements the client-side greeting playback controller.
//
// A Controller is an explicit state machine driven from a single event loop
// (Run). User actions (Submit, Tap, Reset) and asynchronous completions
// (fetch results, playback end or failure) are posted onto the loop and
// applied by one transition function. The controller owns at most one audio
// handle and one blob URL; both are released every time a new fetch starts
// and again when Run returns.
package player

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/nadzzz/islandgreet/internal/greeting"
)

// State is the playback session state.
type State int

const (
	Idle State = iota
	Loading
	Ready
	Playing
	Done
	Error
)

var stateNames = [...]string{"idle", "loading", "ready", "playing", "done", "error"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// User-facing messages.
const (
	MsgPlaybackFailed = "Di spirits couldn't carry di message. Try again."
	MsgPlayRejected   = "Di Oracle need yuh permission fi speak. Tap di play button, seen?"
	MsgNotLoaded      = "Di prophecy neva load. Seek again, bredren."
	MsgSilent         = "Di spirits dem gone silent. Try again."
)

// Session is the observable part of the controller state.
type Session struct {
	State        State
	Name         string
	ShareURL     string
	ErrorMessage string
}

// Fetcher retrieves greeting audio for a name.
type Fetcher interface {
	Fetch(ctx context.Context, name string, flavor greeting.Flavor) ([]byte, error)
}

// Handle is a loaded, playable audio resource.
type Handle interface {
	// Play starts playback without blocking. onEnded or onError fires at
	// most once, from any goroutine. A non-nil return means the platform
	// refused to start playback.
	Play(onEnded func(), onError func(error)) error
	Pause()
	// Detach drops the handle's reference to its source.
	Detach()
}

// Media turns a blob URL into a playable handle.
type Media interface {
	Load(url string) (Handle, error)
}

// BlobStore holds fetched audio behind a temporary URL.
type BlobStore interface {
	Create(data []byte) (string, error)
	Revoke(url string)
}

// Options configures a Controller.
type Options struct {
	Flavor greeting.Flavor

	// Origin prefixes the share URL, e.g. "https://islandgreet.example".
	Origin       string
	HideShareURL bool

	// InitialName with AutoPlay prefetches on mount and waits for Tap.
	InitialName string
	AutoPlay    bool

	// Reload is called by Reset when the controller was mounted with a
	// preset name and auto-play; it should show the origin view.
	Reload func()

	// Observer receives a snapshot after every transition, on the loop
	// goroutine.
	Observer func(Session)
}

// Controller drives one playback session.
type Controller struct {
	fetcher Fetcher
	media   Media
	blobs   BlobStore
	opts    Options

	events chan event
	done   chan struct{}

	// Owned by the loop goroutine.
	ctx         context.Context
	session     Session
	cycle       uint64
	prefetch    bool
	handle      Handle
	blobURL     string
	cancelFetch context.CancelFunc
}

// New creates a controller. Call Run to start it.
func New(fetcher Fetcher, media Media, blobs BlobStore, opts Options) *Controller {
	if !opts.Flavor.Valid() {
		opts.Flavor = greeting.Standard
	}
	opts.Origin = strings.TrimRight(opts.Origin, "/")
	return &Controller{
		fetcher: fetcher,
		media:   media,
		blobs:   blobs,
		opts:    opts,
		events:  make(chan event, 16),
		done:    make(chan struct{}),
		ctx:     context.Background(),
	}
}

// Run processes events until ctx is cancelled, then releases any held
// audio. It must be called exactly once.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)
	defer c.step(event{kind: evUnmount})

	if c.opts.AutoPlay && greeting.TrimName(c.opts.InitialName) != "" {
		c.step(event{kind: evPrefetch, name: c.opts.InitialName})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			c.step(ev)
		}
	}
}

// Submit fetches and plays the greeting for name. Ignored unless the
// session is idle, loading or in error.
func (c *Controller) Submit(name string) { c.post(event{kind: evSubmit, name: name}) }

// Tap plays prefetched audio. Ignored unless the session is ready.
func (c *Controller) Tap() { c.post(event{kind: evTap}) }

// Reset returns a finished or failed session to idle.
func (c *Controller) Reset() { c.post(event{kind: evReset}) }

// --- Internal types and helpers ---

type eventKind int

const (
	evSubmit eventKind = iota
	evPrefetch
	evFetched
	evFetchFailed
	evTap
	evEnded
	evPlaybackFailed
	evReset
	evUnmount
)

type event struct {
	kind  eventKind
	cycle uint64
	name  string
	audio []byte
	err   error
}

// async reports whether the event is a completion tied to a cycle.
func (e event) async() bool {
	switch e.kind {
	case evFetched, evFetchFailed, evEnded, evPlaybackFailed:
		return true
	}
	return false
}

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// step is the single transition function.
func (c *Controller) step(ev event) {
	if ev.async() && ev.cycle != c.cycle {
		slog.Debug("dropping stale player event", "kind", ev.kind, "cycle", ev.cycle, "current", c.cycle)
		return
	}

	from := c.session.State
	switch ev.kind {
	case evSubmit:
		name := greeting.TrimName(ev.name)
		if name == "" || (from != Idle && from != Error && from != Loading) {
			return
		}
		c.enterLoading(name, false)

	case evPrefetch:
		name := greeting.TrimName(ev.name)
		if name == "" || from != Idle {
			return
		}
		c.enterLoading(name, true)

	case evFetched:
		if from != Loading {
			return
		}
		c.cancelFetch = nil
		if err := c.load(ev.audio); err != nil {
			slog.Warn("loading greeting audio failed", "error", err)
			c.fail(MsgPlaybackFailed)
			break
		}
		if c.prefetch {
			c.session.State = Ready
		} else {
			c.play()
		}

	case evFetchFailed:
		if from != Loading {
			return
		}
		c.cancelFetch = nil
		slog.Warn("greeting fetch failed", "name", c.session.Name, "error", ev.err)
		c.fail(fetchMessage(ev.err))

	case evTap:
		if from != Ready {
			return
		}
		if c.handle == nil {
			c.fail(MsgNotLoaded)
			break
		}
		c.play()

	case evEnded:
		if from != Playing {
			return
		}
		c.session.State = Done
		if !c.opts.HideShareURL {
			c.session.ShareURL = ShareURL(c.opts.Origin, c.opts.Flavor, c.session.Name)
		}

	case evPlaybackFailed:
		if from != Playing {
			return
		}
		slog.Warn("greeting playback failed", "error", ev.err)
		c.fail(MsgPlaybackFailed)

	case evReset:
		if from != Done && from != Error {
			return
		}
		c.release()
		if c.opts.InitialName != "" && c.opts.AutoPlay {
			c.opts.InitialName = ""
			c.opts.AutoPlay = false
			if c.opts.Reload != nil {
				c.opts.Reload()
			}
		}
		c.session = Session{State: Idle}

	case evUnmount:
		c.release()
		return
	}

	slog.Debug("player transition", "from", from, "to", c.session.State, "cycle", c.cycle)
	if c.opts.Observer != nil {
		c.opts.Observer(c.session)
	}
}

// enterLoading is the only way into Loading. It releases everything the
// previous cycle held before starting a new fetch.
func (c *Controller) enterLoading(name string, prefetch bool) {
	c.release()
	c.prefetch = prefetch
	c.session = Session{State: Loading, Name: name}

	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelFetch = cancel
	cycle, flavor := c.cycle, c.opts.Flavor

	go func() {
		defer cancel()
		audio, err := c.fetcher.Fetch(ctx, name, flavor)
		if err != nil {
			c.post(event{kind: evFetchFailed, cycle: cycle, err: err})
			return
		}
		c.post(event{kind: evFetched, cycle: cycle, audio: audio})
	}()
}

// release cancels the in-flight fetch, stops and detaches the held handle
// and revokes the held blob URL. Completions from earlier cycles are
// ignored afterwards.
func (c *Controller) release() {
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
	if c.handle != nil {
		c.handle.Pause()
		c.handle.Detach()
		c.handle = nil
	}
	if c.blobURL != "" {
		c.blobs.Revoke(c.blobURL)
		c.blobURL = ""
	}
	c.cycle++
}

func (c *Controller) load(audio []byte) error {
	url, err := c.blobs.Create(audio)
	if err != nil {
		return err
	}
	c.blobURL = url

	h, err := c.media.Load(url)
	if err != nil {
		return err
	}
	c.handle = h
	return nil
}

func (c *Controller) play() {
	cycle := c.cycle
	c.session.State = Playing

	err := c.handle.Play(
		func() { c.post(event{kind: evEnded, cycle: cycle}) },
		func(err error) { c.post(event{kind: evPlaybackFailed, cycle: cycle, err: err}) },
	)
	if err != nil {
		slog.Warn("greeting playback rejected", "error", err)
		c.fail(MsgPlayRejected)
	}
}

func (c *Controller) fail(msg string) {
	c.session.State = Error
	c.session.ErrorMessage = msg
}

func fetchMessage(err error) string {
	if err == nil || errors.Is(err, context.Canceled) || err.Error() == "" {
		return MsgSilent
	}
	return err.Error()
}
