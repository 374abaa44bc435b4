package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livewatch-cli/livewatch/attempt"
	"github.com/livewatch-cli/livewatch/log"
	"github.com/livewatch-cli/livewatch/metrics"
	"github.com/livewatch-cli/livewatch/player"
)

// eligibleLocked returns the URL to play, or the reason playback is not allowed right now.
func (c *Controller) eligibleLocked() (url string, reason string) {
	switch {
	case !c.initialized:
		return "", "not initialized"
	case c.closed:
		return "", "closed"
	case c.ctx.Err() != nil:
		return "", "cancelled"
	case !c.wantPlay:
		return "", "not requested"
	}

	if r := c.triggers.Load().Reason(); r != "" {
		return "", r
	}

	url, ok := c.sources.Resolve(c.selection.Tier)
	if !ok {
		return "", fmt.Sprintf("no source for tier %d", c.selection.Tier)
	}
	return url, ""
}

// reevaluateLocked starts a new cycle when the controller is idle enough and playback is allowed.
func (c *Controller) reevaluateLocked(t Trigger) bool {
	if c.state.Busy() {
		c.logger.Debugf("%s trigger dropped while %s", t, c.state)
		metrics.IncTrigger(t.String(), false)
		return false
	}

	url, reason := c.eligibleLocked()
	if reason != "" {
		c.logger.Debugf("%s trigger skipped: %s", t, reason)
		metrics.IncTrigger(t.String(), false)
		return false
	}

	metrics.IncTrigger(t.String(), true)
	if t.startsSession() {
		c.startSessionLocked(t)
	}
	c.launchLocked(url, false)
	return true
}

func (c *Controller) startSessionLocked(t Trigger) {
	c.session = uuid.NewString()
	c.retryCount = 0
	c.logger = log.WithFields(log.Fields{"session": c.session, "surface": c.surface.ID})
	c.logger.Debugf("session started by %s trigger", t)
}

// launchLocked moves to TEARING_DOWN and hands the handle to a new cycle goroutine.
// With stopOnly the cycle tears down and rests instead of attempting.
func (c *Controller) launchLocked(url string, stopOnly bool) <-chan struct{} {
	c.stopRetryTimerLocked()
	c.gen++
	if !stopOnly {
		c.url = url
	}
	c.setStateLocked(StateTearingDown)

	done := make(chan struct{})
	c.wg.Add(1)
	go func(ctx context.Context, gen uint64) {
		defer close(done)
		c.cycle(ctx, gen, url, stopOnly)
	}(c.ctx, c.gen)
	return done
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debugf("state %s -> %s", c.state, s)
	c.state = s
	metrics.SetState(s.String(), stateNames)
}

func (c *Controller) stopRetryTimerLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// cycle runs teardown, attempt and settle until the controller rests in a non-busy state.
// Only one cycle runs at a time since every entry point refuses to launch while busy.
func (c *Controller) cycle(ctx context.Context, gen uint64, url string, stopOnly bool) {
	defer c.wg.Done()

	for {
		if stopOnly {
			released := c.teardown(true)

			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			nextGen, nextURL, again := c.restLocked()
			onStop := c.cb.OnStop
			c.mu.Unlock()

			if released && onStop != nil {
				onStop()
			}
			if !again {
				return
			}
			gen, url, stopOnly = nextGen, nextURL, false
			continue
		}

		if c.teardown(true) {
			pause(ctx, c.cfg.TeardownDelay)
		}

		h, elapsed, err := c.attempt(ctx, url)

		var again bool
		gen, url, stopOnly, again = c.settle(gen, url, h, elapsed, err)
		if !again {
			return
		}
	}
}

// restLocked enters IDLE, or starts over if the triggers allow playback again after being
// dropped while the cycle was busy.
func (c *Controller) restLocked() (gen uint64, url string, again bool) {
	url, reason := c.eligibleLocked()
	if reason != "" {
		c.logger.Debugf("resting: %s", reason)
		c.setStateLocked(StateIdle)
		return 0, "", false
	}

	c.startSessionLocked(TriggerCoalesced)
	c.gen++
	c.url = url
	c.setStateLocked(StateTearingDown)
	return c.gen, url, true
}

// teardown takes the handle away from the controller and releases it.
// It reports whether there was a handle.
func (c *Controller) teardown(capture bool) bool {
	c.mu.Lock()
	h, subs, logger := c.handle, c.subs, c.logger
	c.handle, c.subs = nil, nil
	c.mu.Unlock()

	if h == nil {
		return false
	}
	c.release(h, subs, capture, logger)
	return true
}

// release freezes the current frame if asked, drops the armed listeners, then stops and
// destroys h. Failures are logged and swallowed.
func (c *Controller) release(h player.Handle, subs []player.SubscriptionID, capture bool, logger log.Entry) {
	if capture {
		c.freeze.CaptureIfAbsent(h)
	}

	for _, id := range subs {
		h.Unsubscribe(id)
	}

	if err := h.Stop(); err != nil {
		logger.Warnf("stop player: %v", err)
		metrics.IncTeardownFailure("stop")
	}
	if err := h.Destroy(); err != nil {
		logger.Warnf("destroy player: %v", err)
		metrics.IncTeardownFailure("destroy")
	}
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// attempt creates a handle, carries the remembered surface settings over and runs the orchestrator.
func (c *Controller) attempt(ctx context.Context, url string) (player.Handle, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	h, err := c.factory.New(c.surface)
	if err != nil {
		return nil, 0, fmt.Errorf("create player: %w", err)
	}

	c.mu.Lock()
	c.handle = h
	c.setStateLocked(StateAttempting)
	mode, width, height := c.renderMode, c.width, c.height
	sel, total, logger := c.selection, c.sources.Len(), c.logger
	c.mu.Unlock()

	if err := h.SetVolume(0); err != nil {
		logger.Warnf("mute player: %v", err)
	}
	if err := h.SetRenderMode(mode); err != nil {
		logger.Warnf("set render mode %s: %v", mode, err)
	}
	if width > 0 && height > 0 {
		if err := h.Resize(width, height); err != nil {
			logger.Warnf("resize to %dx%d: %v", width, height, err)
		}
	}
	if sel.IsAuto() {
		if err := h.ConfigQualityMode(int(sel.Tier), total); err != nil {
			logger.Warnf("configure quality mode: %v", err)
		}
	}

	logger.Debugf("attempting %s", url)
	start := time.Now()
	err = c.orchestrator.Run(ctx, h, url)
	return h, time.Since(start), err
}

// settle decides what follows an attempt against the triggers and sources as they are now.
func (c *Controller) settle(gen uint64, url string, h player.Handle, elapsed time.Duration, err error) (uint64, string, bool, bool) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		metrics.ObserveAttempt(metrics.ResultDiscarded, elapsed)
		return gen, url, false, false
	}

	current, reason := c.eligibleLocked()
	if reason != "" {
		c.logger.Infof("attempt result discarded: %s", reason)
		metrics.ObserveAttempt(metrics.ResultDiscarded, elapsed)
		c.setStateLocked(StateTearingDown)
		c.mu.Unlock()
		return gen, url, true, true
	}

	if current != url {
		c.logger.Infof("source changed to %s during attempt, restarting", current)
		metrics.ObserveAttempt(metrics.ResultDiscarded, elapsed)
		c.startSessionLocked(TriggerCoalesced)
		c.gen++
		c.url = current
		c.setStateLocked(StateTearingDown)
		gen = c.gen
		c.mu.Unlock()
		return gen, current, false, true
	}

	if err == nil {
		c.steadyLocked(gen, h, elapsed)
		return gen, url, false, false
	}

	c.failLocked(gen, err, elapsed)
	return gen, url, false, false
}

// steadyLocked confirms a first frame. It unlocks c.mu.
func (c *Controller) steadyLocked(gen uint64, h player.Handle, elapsed time.Duration) {
	metrics.ObserveAttempt(metrics.ResultSuccess, elapsed)

	c.freeze.Clear()
	c.retryCount = 0
	c.unavailable = false
	metrics.SetUnavailable(false)

	c.subs = []player.SubscriptionID{
		h.Subscribe(player.EventStopped, func(ev player.Event) { c.onPlayerEvent(gen, ev) }),
		h.Subscribe(player.EventEnded, func(ev player.Event) { c.onPlayerEvent(gen, ev) }),
		h.Subscribe(player.EventError, func(ev player.Event) { c.onPlayerEvent(gen, ev) }),
		h.Subscribe(player.EventQualityChange, func(ev player.Event) { c.onQualityChange(gen, ev) }),
	}
	c.setStateLocked(StateSteady)
	c.logger.Infof("playing %s after %s", c.url, elapsed.Round(time.Millisecond))

	raise := c.audioUnlocked && !c.muted
	volume := c.cfg.volume(c.userVolume, c.masterVolume)
	onPlay, logger := c.cb.OnPlay, c.logger
	c.mu.Unlock()

	if raise {
		if err := h.Resume(); err != nil {
			logger.Warnf("resume: %v", err)
		}
		if err := h.SetVolume(volume); err != nil {
			logger.Warnf("set volume: %v", err)
		}
	}

	if onPlay != nil {
		onPlay()
	}
}

// failLocked schedules a retry or halts. It unlocks c.mu.
func (c *Controller) failLocked(gen uint64, err error, elapsed time.Duration) {
	if errors.Is(err, attempt.ErrTimeout) {
		metrics.ObserveAttempt(metrics.ResultTimeout, elapsed)
	} else {
		metrics.ObserveAttempt(metrics.ResultFailure, elapsed)
	}

	if c.cfg.MaxRetries >= 0 && c.retryCount >= c.cfg.MaxRetries {
		c.unavailable = true
		metrics.SetUnavailable(true)
		c.setStateLocked(StateHalted)
		c.logger.Errorf("giving up after %d retries: %v", c.retryCount, err)

		onUnavailable, onError := c.cb.OnUnavailable, c.cb.OnError
		c.mu.Unlock()

		if onUnavailable != nil {
			onUnavailable()
		}
		if onError != nil {
			onError(err)
		}
		return
	}

	c.logger.Warnf("attempt %d failed, retrying in %s: %v", c.retryCount+1, c.cfg.RetryDelay, err)
	c.setStateLocked(StateRetryWait)
	c.retryTimer = time.AfterFunc(c.cfg.RetryDelay, func() { c.retryFired(gen) })
	c.mu.Unlock()
}

// retryFired re-enters the state machine unless the session it belongs to was superseded.
func (c *Controller) retryFired(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.gen != gen || c.state != StateRetryWait {
		return
	}

	c.retryTimer = nil
	c.retryCount++
	metrics.IncRetry()

	if c.reevaluateLocked(TriggerRetry) {
		return
	}

	if c.handle != nil {
		c.launchLocked("", true)
		return
	}
	c.setStateLocked(StateIdle)
}

// onPlayerEvent restarts playback when a confirmed player stops, ends or fails.
func (c *Controller) onPlayerEvent(gen uint64, ev player.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.gen != gen || c.state != StateSteady {
		return
	}

	if ev.Err != nil {
		c.logger.Warnf("player %s: %v", ev.Kind, ev.Err)
	} else {
		c.logger.Infof("player %s", ev.Kind)
	}
	c.reevaluateLocked(TriggerPlayer)
}
