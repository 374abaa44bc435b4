// Package attempt drives one load-and-play sequence on a player handle and races the first
// rendered frame against a timeout.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/livewatch-cli/livewatch/player"
)

// ErrTimeout is returned when no frame was rendered before the timeout.
var ErrTimeout = errors.New("timed out waiting for the first frame")

// Orchestrator runs attempts. The zero value has no timeout and waits for an outcome forever.
type Orchestrator struct {
	Timeout time.Duration
}

// Run loads url on h, plays it and waits for the first frame, an error event, a failed
// load or play call, the timeout, or ctx, whichever comes first. Outcomes arriving after
// the attempt settled are dropped. The subscriptions made by Run are removed before it returns.
func (o Orchestrator) Run(ctx context.Context, h player.Handle, url string) error {
	settled := make(chan error, 1)
	var once sync.Once
	settle := func(err error) {
		once.Do(func() { settled <- err })
	}

	frame := h.Subscribe(player.EventFirstFrame, func(player.Event) {
		settle(nil)
	})
	defer h.Unsubscribe(frame)

	failure := h.Subscribe(player.EventError, func(ev player.Event) {
		err := ev.Err
		if err == nil {
			err = errors.New("unspecified player error")
		}
		settle(fmt.Errorf("player error: %w", err))
	})
	defer h.Unsubscribe(failure)

	// load and play are not cancellable; once the attempt has settled their result is ignored
	go func() {
		if err := h.Load(url); err != nil {
			settle(fmt.Errorf("load %s: %w", url, err))
			return
		}
		if err := h.Play(); err != nil {
			settle(fmt.Errorf("play %s: %w", url, err))
		}
	}()

	var expired <-chan time.Time
	if o.Timeout > 0 {
		timer := time.NewTimer(o.Timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err := <-settled:
		return err
	case <-expired:
		settle(ErrTimeout)
	case <-ctx.Done():
		settle(ctx.Err())
	}

	// whichever outcome claimed the slot first wins, even if it raced the timer
	return <-settled
}
