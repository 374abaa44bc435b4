// Package playertest provides an in-memory player.Handle whose behavior is scripted per handle,
// together with a Factory that tracks how many handles are alive at once.
package playertest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/livewatch-cli/livewatch/player"
)

// ErrDestroyed is returned by every call on a destroyed handle.
var ErrDestroyed = errors.New("playertest: handle destroyed")

// Behavior scripts how one handle reacts to Load and Play.
type Behavior struct {
	LoadErr error
	PlayErr error

	// FailWith, when set, is emitted as an error event after Play instead of a first frame.
	FailWith error

	// Silent handles never emit a first frame, which makes the attempt time out.
	Silent bool

	// FirstFrameDelay postpones the first frame after Play returns.
	FirstFrameDelay time.Duration

	// OnPlay runs inside Play before it returns.
	OnPlay func(h *Handle)

	SnapshotErr  error
	SnapshotData []byte
	DestroyErr   error
	StopErr      error
}

// Factory creates Handles and records their lifetimes.
type Factory struct {
	// Script returns the behavior of the n-th handle, counting from zero.
	Script func(n int) Behavior

	mu      sync.Mutex
	handles []*Handle
	live    int
	maxLive int
	journal []string
	newErr  error
}

// NewFactory returns a Factory whose handles all succeed.
func NewFactory() *Factory {
	return &Factory{Script: func(int) Behavior { return Behavior{} }}
}

// Failing returns a Factory whose first n handles fail with err before succeeding.
func Failing(n int, err error) *Factory {
	return &Factory{Script: func(i int) Behavior {
		if i < n {
			return Behavior{FailWith: err}
		}
		return Behavior{}
	}}
}

// FailNew makes every subsequent New call fail with err.
func (f *Factory) FailNew(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newErr = err
}

// New implements player.Factory.
func (f *Factory) New(surface player.Surface) (player.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.newErr != nil {
		return nil, f.newErr
	}

	n := len(f.handles)
	h := &Handle{
		factory:  f,
		name:     fmt.Sprintf("h%d", n),
		behavior: f.Script(n),
		surface:  surface,
		status:   player.StateStopped,
		volume:   -1,
	}
	f.handles = append(f.handles, h)
	f.live++
	if f.live > f.maxLive {
		f.maxLive = f.live
	}
	f.journal = append(f.journal, h.name+":new")
	return h, nil
}

// Note appends an entry to the journal, letting tests interleave their own markers with handle calls.
func (f *Factory) Note(entry string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.journal = append(f.journal, entry)
}

// Journal returns every recorded call in order, as "<handle>:<call>".
func (f *Factory) Journal() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.journal...)
}

// Created returns the number of handles created so far.
func (f *Factory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

// Handles returns every handle created so far.
func (f *Factory) Handles() []*Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Handle(nil), f.handles...)
}

// Last returns the most recently created handle or nil.
func (f *Factory) Last() *Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handles) == 0 {
		return nil
	}
	return f.handles[len(f.handles)-1]
}

// Live returns the number of handles created and not yet destroyed.
func (f *Factory) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

// MaxLive returns the highest number of simultaneously live handles observed.
func (f *Factory) MaxLive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxLive
}

func (f *Factory) record(h *Handle, call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.journal = append(f.journal, h.name+":"+call)
}

func (f *Factory) destroyed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live--
}

// Handle is a scripted player.Handle.
type Handle struct {
	player.Emitter

	factory  *Factory
	name     string
	behavior Behavior
	surface  player.Surface

	mu         sync.Mutex
	status     player.State
	url        string
	volume     float64
	renderMode player.RenderMode
	width      int
	height     int
	quality    [2]int
	resumed    int
	snapshots  int
	timer      *time.Timer
}

// Name returns the journal name of the handle.
func (h *Handle) Name() string {
	return h.name
}

func (h *Handle) destroyedLocked() bool {
	return h.status == player.StateDestroyed || h.status == player.StateDestroying
}

func (h *Handle) Load(url string) error {
	h.factory.record(h, "load "+url)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyedLocked() {
		return ErrDestroyed
	}
	if h.behavior.LoadErr != nil {
		h.status = player.StateStopped
		return h.behavior.LoadErr
	}
	h.url = url
	h.status = player.StateLoaded
	return nil
}

func (h *Handle) Play() error {
	h.factory.record(h, "play")

	h.mu.Lock()
	if h.destroyedLocked() {
		h.mu.Unlock()
		return ErrDestroyed
	}
	if h.behavior.PlayErr != nil {
		h.mu.Unlock()
		return h.behavior.PlayErr
	}
	h.status = player.StatePlaying
	h.mu.Unlock()

	if h.behavior.OnPlay != nil {
		h.behavior.OnPlay(h)
	}

	switch {
	case h.behavior.FailWith != nil:
		err := h.behavior.FailWith
		h.schedule(0, func() { h.Emit(player.Event{Kind: player.EventError, Err: err}) })
	case !h.behavior.Silent:
		h.schedule(h.behavior.FirstFrameDelay, h.FirstFrame)
	}
	return nil
}

func (h *Handle) schedule(d time.Duration, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timer = time.AfterFunc(d, fn)
}

// FirstFrame marks the handle as rendering and emits the first-frame event.
func (h *Handle) FirstFrame() {
	h.mu.Lock()
	if h.destroyedLocked() {
		h.mu.Unlock()
		return
	}
	h.status = player.StatePlayed
	h.mu.Unlock()

	h.factory.record(h, "first-frame")
	h.Emit(player.Event{Kind: player.EventFirstFrame})
}

// Emit records and delivers an event as if the player produced it.
func (h *Handle) Emit(ev player.Event) {
	if ev.Kind != player.EventFirstFrame {
		h.factory.record(h, "emit "+ev.Kind.String())
	}
	h.Emitter.Emit(ev)
}

func (h *Handle) Stop() error {
	h.factory.record(h, "stop")

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyedLocked() {
		return ErrDestroyed
	}
	h.status = player.StateStopped
	return h.behavior.StopErr
}

func (h *Handle) Destroy() error {
	h.factory.record(h, "destroy")

	h.mu.Lock()
	if h.status == player.StateDestroyed {
		h.mu.Unlock()
		return ErrDestroyed
	}
	h.status = player.StateDestroyed
	if h.timer != nil {
		h.timer.Stop()
	}
	h.mu.Unlock()

	h.Emitter.Clear()
	h.factory.destroyed()
	return h.behavior.DestroyErr
}

func (h *Handle) Resume() error {
	h.factory.record(h, "resume")

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyedLocked() {
		return ErrDestroyed
	}
	h.resumed++
	return nil
}

func (h *Handle) SetVolume(v float64) error {
	h.factory.record(h, fmt.Sprintf("volume %g", v))

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyedLocked() {
		return ErrDestroyed
	}
	h.volume = v
	return nil
}

func (h *Handle) SetRenderMode(m player.RenderMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyedLocked() {
		return ErrDestroyed
	}
	h.renderMode = m
	return nil
}

func (h *Handle) Resize(width, height int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyedLocked() {
		return ErrDestroyed
	}
	h.width, h.height = width, height
	return nil
}

func (h *Handle) Snapshot(format string, quality int) ([]byte, error) {
	h.factory.record(h, "snapshot")

	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots++
	if h.behavior.SnapshotErr != nil {
		return nil, h.behavior.SnapshotErr
	}
	if !h.status.Renders() {
		return nil, player.ErrNoFrame
	}
	if h.behavior.SnapshotData != nil {
		return h.behavior.SnapshotData, nil
	}
	return []byte(fmt.Sprintf("%s|%s|%d", h.name, format, quality)), nil
}

func (h *Handle) ConfigQualityMode(current, total int) error {
	h.factory.record(h, fmt.Sprintf("quality-mode %d/%d", current, total))

	h.mu.Lock()
	defer h.mu.Unlock()
	h.quality = [2]int{current, total}
	return nil
}

func (h *Handle) Status() player.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// URL returns the last successfully loaded URL.
func (h *Handle) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

// Volume returns the last volume set, or -1 if none was set.
func (h *Handle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

// RenderMode returns the last render mode set.
func (h *Handle) RenderMode() player.RenderMode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.renderMode
}

// Size returns the last size set through Resize.
func (h *Handle) Size() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

// QualityMode returns the arguments of the last ConfigQualityMode call.
func (h *Handle) QualityMode() (current, total int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.quality[0], h.quality[1]
}

// Resumed returns how many times Resume was called.
func (h *Handle) Resumed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resumed
}

// Snapshots returns how many times Snapshot was called.
func (h *Handle) Snapshots() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshots
}

// Subscribers returns the number of active subscriptions on the handle.
func (h *Handle) Subscribers() int {
	return h.Emitter.Len()
}

var _ player.Handle = (*Handle)(nil)
