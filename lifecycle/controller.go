// Package lifecycle decides when the single live player is torn down, loaded, played, retried
// or stopped, reacting to the trigger store, quality changes, source changes and player events.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/livewatch-cli/livewatch/attempt"
	"github.com/livewatch-cli/livewatch/freeze"
	"github.com/livewatch-cli/livewatch/log"
	"github.com/livewatch-cli/livewatch/metrics"
	"github.com/livewatch-cli/livewatch/player"
	"github.com/livewatch-cli/livewatch/quality"
	"github.com/livewatch-cli/livewatch/trigger"
	"github.com/samber/mo"
)

var (
	ErrNotInitialized = errors.New("controller is not initialized")
	ErrClosed         = errors.New("controller is closed")
	ErrNoFactory      = errors.New("no player factory given")
	ErrNoTriggers     = errors.New("no trigger store given")
)

// Callbacks are invoked without the controller lock held, on the goroutine that caused them.
type Callbacks struct {
	// OnPlay fires after the first frame of an attempt was confirmed.
	OnPlay func()
	// OnStop fires after a live handle was stopped because playback is no longer wanted or allowed.
	OnStop func()
	// OnError fires with the error of the last attempt once retries are exhausted.
	OnError func(err error)
	// OnUnavailable fires when the stream is marked unavailable.
	OnUnavailable func()
	// OnQuality fires when the selection changed, by the caller or by player feedback.
	OnQuality func(sel quality.Selection)
}

// Options are the inputs of New.
type Options struct {
	Surface   player.Surface
	Sources   quality.Sources
	Selection quality.Selection
	Triggers  *trigger.Store
	Factory   player.Factory
	Config    Config
	Callbacks Callbacks
}

// Controller owns at most one player handle and runs at most one attempt at a time.
type Controller struct {
	surface      player.Surface
	factory      player.Factory
	triggers     *trigger.Store
	cfg          Config
	cb           Callbacks
	freeze       *freeze.Unit
	orchestrator attempt.Orchestrator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	initialized bool
	closed      bool
	wantPlay    bool
	unsubscribe func()

	sources   quality.Sources
	selection quality.Selection
	url       string

	handle player.Handle
	subs   []player.SubscriptionID

	// gen identifies the current cycle. Listeners and retry timers of older cycles compare against it.
	gen         uint64
	retryCount  int
	unavailable bool
	retryTimer  *time.Timer
	session     string
	logger      log.Entry

	renderMode    player.RenderMode
	width         int
	height        int
	muted         bool
	audioUnlocked bool
	userVolume    float64
	masterVolume  float64
}

// New returns a controller that does nothing until Init and RequestPlay.
func New(opts Options) (*Controller, error) {
	if opts.Factory == nil {
		return nil, ErrNoFactory
	}
	if opts.Triggers == nil {
		return nil, ErrNoTriggers
	}

	return &Controller{
		surface:      opts.Surface,
		factory:      opts.Factory,
		triggers:     opts.Triggers,
		cfg:          opts.Config,
		cb:           opts.Callbacks,
		freeze:       freeze.New(opts.Config.SnapshotFormat, opts.Config.SnapshotQuality),
		orchestrator: attempt.Orchestrator{Timeout: opts.Config.attemptTimeout()},
		sources:      opts.Sources,
		selection:    opts.Selection,
		width:        opts.Surface.Width,
		height:       opts.Surface.Height,
		userVolume:   1,
		masterVolume: 1,
		logger:       log.WithFields(log.Fields{"surface": opts.Surface.ID}),
	}, nil
}

// Init starts listening to the trigger store. Cycles run until ctx is done or Close is called.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.initialized {
		return nil
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.initialized = true
	c.unsubscribe = c.triggers.Subscribe(c.onTriggers)
	metrics.SetState(c.state.String(), stateNames)
	return nil
}

func (c *Controller) usableLocked() error {
	switch {
	case c.closed:
		return ErrClosed
	case !c.initialized:
		return ErrNotInitialized
	default:
		return nil
	}
}

// RequestPlay asks for playback. It is safe to call repeatedly: calls while a cycle is busy,
// while waiting for a retry, or while already playing the resolved URL do nothing.
func (c *Controller) RequestPlay() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usableLocked(); err != nil {
		return err
	}

	c.wantPlay = true

	switch c.state {
	case StateRetryWait:
		return nil
	case StateSteady:
		if url, reason := c.eligibleLocked(); reason == "" && url == c.url {
			return nil
		}
	}

	c.reevaluateLocked(TriggerRequest)
	return nil
}

// RequestStop freezes the current frame, then stops and destroys the handle. When a cycle is
// busy the stop happens at its settle point and RequestStop returns without waiting.
func (c *Controller) RequestStop() error {
	c.mu.Lock()

	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	c.wantPlay = false

	if c.state.Busy() {
		c.mu.Unlock()
		return nil
	}

	if c.handle == nil && c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}

	done := c.launchLocked("", true)
	c.mu.Unlock()

	<-done
	return nil
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		State:       c.state,
		RetryCount:  c.retryCount,
		Unavailable: c.unavailable,
		Selection:   c.selection,
		URL:         c.url,
		Session:     c.session,
	}
	h := c.handle
	c.mu.Unlock()

	if h != nil {
		st.HasPlayer = true
		st.Player = h.Status()
	}
	st.HasSnapshot = c.freeze.Image().IsPresent()
	return st
}

// SnapshotImage returns the held freeze frame.
func (c *Controller) SnapshotImage() mo.Option[freeze.Image] {
	return c.freeze.Image()
}

// SaveSnapshot writes the held freeze frame into dir.
func (c *Controller) SaveSnapshot(dir string) (string, error) {
	return c.freeze.Save(dir)
}

// SetRenderMode applies m to the live handle and every handle created later.
func (c *Controller) SetRenderMode(m player.RenderMode) error {
	c.mu.Lock()
	c.renderMode = m
	h, logger := c.handle, c.logger
	c.mu.Unlock()

	if h == nil {
		return nil
	}
	if err := h.SetRenderMode(m); err != nil {
		logger.Warnf("set render mode %s: %v", m, err)
		return err
	}
	return nil
}

// Resize fits the live handle and every handle created later to width x height.
func (c *Controller) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid surface size %dx%d", width, height)
	}

	c.mu.Lock()
	c.width, c.height = width, height
	h, logger := c.handle, c.logger
	c.mu.Unlock()

	if h == nil {
		return nil
	}
	if err := h.Resize(width, height); err != nil {
		logger.Warnf("resize to %dx%d: %v", width, height, err)
		return err
	}
	return nil
}

// Mute silences the live handle and keeps later handles silent until ResumeWithVolume.
func (c *Controller) Mute() error {
	c.mu.Lock()
	c.muted = true
	h := c.handle
	c.mu.Unlock()

	if h == nil {
		return nil
	}
	return h.SetVolume(0)
}

// ResumeWithVolume is called after the user unlocked audio. It resumes the live handle and
// raises its volume to user * master * multiplier. Handles confirmed later get the same volume.
func (c *Controller) ResumeWithVolume(user, master float64) error {
	c.mu.Lock()
	c.audioUnlocked = true
	c.muted = false
	c.userVolume, c.masterVolume = user, master
	h, logger := c.handle, c.logger
	steady := c.state == StateSteady
	c.mu.Unlock()

	if h == nil || !steady {
		return nil
	}

	if err := h.Resume(); err != nil {
		logger.Warnf("resume: %v", err)
		return err
	}
	return h.SetVolume(c.cfg.volume(user, master))
}

// SelectQuality switches the selection. Selecting automatic mode keeps the active tier.
// A tier change reloads, a mode change alone reconfigures the live handle, and reselecting
// the active selection does nothing.
func (c *Controller) SelectQuality(sel quality.Selection) error {
	c.mu.Lock()

	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	prev := c.selection
	next := sel
	if sel.IsAuto() {
		next = quality.Auto(prev.Tier)
	} else if _, ok := c.sources.Resolve(sel.Tier); !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", quality.ErrUnknownTier, sel.Tier)
	}

	if next == prev {
		c.mu.Unlock()
		return nil
	}

	c.selection = next
	tierChanged := next.Tier != prev.Tier
	modeChanged := next.Mode != prev.Mode
	h, total, logger := c.handle, c.sources.Len(), c.logger
	onQuality := c.cb.OnQuality

	logger.Infof("quality %s -> %s", prev, next)
	if tierChanged {
		c.reevaluateLocked(TriggerQuality)
	}
	c.mu.Unlock()

	if modeChanged && !tierChanged && h != nil {
		if err := h.ConfigQualityMode(int(next.Tier), total); err != nil {
			logger.Warnf("configure quality mode: %v", err)
		}
	}

	if onQuality != nil {
		onQuality(next)
	}
	return nil
}

// SetSources replaces the tier to URL map. An equal map is ignored.
// An automatic selection whose tier disappeared moves to the highest remaining tier.
func (c *Controller) SetSources(sources quality.Sources) error {
	moved, onQuality, err := c.setSources(sources)
	if err != nil {
		return err
	}

	if onQuality != nil && moved.IsPresent() {
		onQuality(moved.MustGet())
	}
	return nil
}

func (c *Controller) setSources(sources quality.Sources) (mo.Option[quality.Selection], func(quality.Selection), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	moved := mo.None[quality.Selection]()
	if err := c.usableLocked(); err != nil {
		return moved, nil, err
	}

	if c.sources.Equal(sources) {
		return moved, nil, nil
	}
	c.sources = sources

	if _, ok := sources.Resolve(c.selection.Tier); !ok && c.selection.IsAuto() {
		if highest, ok := sources.Highest(); ok {
			c.logger.Infof("quality %s -> %s", c.selection, quality.Auto(highest))
			c.selection = quality.Auto(highest)
			moved = mo.Some(c.selection)
		}
	}

	if _, ok := sources.Resolve(c.selection.Tier); !ok {
		c.logger.Warnf("no source for tier %d", c.selection.Tier)
		if !c.state.Busy() && c.handle != nil {
			c.launchLocked("", true)
		}
		return moved, c.cb.OnQuality, nil
	}

	c.reevaluateLocked(TriggerSource)
	return moved, c.cb.OnQuality, nil
}

// Close stops listening, waits for the running cycle and destroys the handle without a freeze frame.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopRetryTimerLocked()
	unsubscribe, cancel := c.unsubscribe, c.cancel
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	h, subs, logger := c.handle, c.subs, c.logger
	c.handle, c.subs = nil, nil
	c.setStateLocked(StateIdle)
	c.mu.Unlock()

	if h != nil {
		c.release(h, subs, false, logger)
	}
	return nil
}
