package lifecycle

import (
	"github.com/livewatch-cli/livewatch/player"
	"github.com/livewatch-cli/livewatch/quality"
	"github.com/livewatch-cli/livewatch/trigger"
)

// onTriggers reacts to the trigger store. Losing eligibility stops the live handle with a
// freeze frame, regaining it starts a new session. While busy the settle point takes over.
func (c *Controller) onTriggers(prev, next trigger.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized || c.closed {
		return
	}

	if !next.Eligible() {
		if prev.Eligible() {
			c.logger.Infof("playback blocked: %s", next.Reason())
		}
		if c.state.Busy() {
			return
		}

		switch {
		case c.handle != nil:
			c.launchLocked("", true)
		case c.state != StateIdle:
			c.stopRetryTimerLocked()
			c.setStateLocked(StateIdle)
		}
		return
	}

	if prev.Eligible() {
		return
	}

	t := TriggerNetwork
	if !prev.Visible {
		t = TriggerVisibility
	}
	c.reevaluateLocked(t)
}

// onQualityChange follows the player's tier target in automatic mode while playing.
func (c *Controller) onQualityChange(gen uint64, ev player.Event) {
	c.mu.Lock()

	if c.closed || c.gen != gen || c.state != StateSteady {
		c.mu.Unlock()
		return
	}

	if ev.Quality.Stutter > 0 {
		c.logger.Debugf("player reports %d dropped frames on tier %d/%d", ev.Quality.Stutter, ev.Quality.Current, ev.Quality.Total)
	}

	next, changed := quality.Feedback(c.selection, ev.Quality)
	if !changed {
		c.mu.Unlock()
		return
	}

	if _, ok := c.sources.Resolve(next.Tier); !ok {
		c.logger.Warnf("player asked for unknown tier %d", next.Tier)
		c.mu.Unlock()
		return
	}

	c.logger.Infof("automatic quality %s -> %s", c.selection, next)
	c.selection = next
	c.reevaluateLocked(TriggerQuality)
	onQuality := c.cb.OnQuality
	c.mu.Unlock()

	if onQuality != nil {
		onQuality(next)
	}
}
