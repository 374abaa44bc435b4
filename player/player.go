// Package player defines the contract the playback controller expects from a live video player,
// together with an implementation that drives mpv through its JSON-IPC interface.
package player

import (
	"fmt"
	"time"

	"github.com/samber/mo"
)

// State is the lifecycle status reported by a player handle.
type State int

const (
	StateStopped State = iota
	StateLoading
	StateLoaded
	StatePlaying
	StatePlayed
	StatePaused
	StateSeeking
	StateChanging
	StateDestroying
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePlayed:
		return "played"
	case StatePaused:
		return "paused"
	case StateSeeking:
		return "seeking"
	case StateChanging:
		return "changing"
	case StateDestroying:
		return "destroying"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Renders reports whether a handle in this state has a frame that can be captured.
func (s State) Renders() bool {
	switch s {
	case StatePlaying, StatePlayed, StatePaused, StateSeeking, StateChanging:
		return true
	default:
		return false
	}
}

// EventKind names an event emitted by a player handle.
type EventKind int

const (
	EventFirstFrame EventKind = iota + 1
	EventStopped
	EventEnded
	EventError
	EventQualityChange
)

func (k EventKind) String() string {
	switch k {
	case EventFirstFrame:
		return "first-frame-rendered"
	case EventStopped:
		return "stopped"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	case EventQualityChange:
		return "quality-change"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// QualityChange is the payload of EventQualityChange.
// Target is absent when the player reports conditions without asking for a tier switch.
type QualityChange struct {
	Target  mo.Option[int]
	Current int
	Total   int
	Stutter int
}

// Event is a single notification from a player handle.
type Event struct {
	Kind    EventKind
	Err     error
	Quality QualityChange
}

// Handler receives events for the kinds it was subscribed to.
type Handler func(Event)

// SubscriptionID identifies a handler registered through Handle.Subscribe.
type SubscriptionID uint64

// RenderMode controls how the video is fitted into its surface.
type RenderMode int

const (
	RenderContain RenderMode = iota
	RenderCover
	RenderFill
)

func (m RenderMode) String() string {
	switch m {
	case RenderContain:
		return "contain"
	case RenderCover:
		return "cover"
	case RenderFill:
		return "fill"
	default:
		return fmt.Sprintf("render(%d)", int(m))
	}
}

// ParseRenderMode converts a user supplied name into a RenderMode.
func ParseRenderMode(s string) (RenderMode, error) {
	switch s {
	case "contain":
		return RenderContain, nil
	case "cover":
		return RenderCover, nil
	case "fill":
		return RenderFill, nil
	default:
		return 0, fmt.Errorf("unknown render mode %q", s)
	}
}

// Surface identifies where a handle renders. ID is backend specific, for mpv it is a native window id.
type Surface struct {
	ID     string
	Width  int
	Height int
}

// Handle is a single live player instance.
type Handle interface {
	// Load opens the stream at url. It returns once the player accepted the source.
	Load(url string) error

	// Play starts or continues playback of the loaded source.
	Play() error

	// Stop halts playback without releasing the handle.
	Stop() error

	// Destroy releases every resource held by the handle. The handle is unusable afterwards.
	Destroy() error

	// Resume continues playback after an autoplay block was lifted by a user gesture.
	Resume() error

	SetVolume(v float64) error
	SetRenderMode(m RenderMode) error
	Resize(width, height int) error

	// Snapshot encodes the currently displayed frame.
	Snapshot(format string, quality int) ([]byte, error)

	// ConfigQualityMode tells the player which tier is active and how many exist.
	ConfigQualityMode(current, total int) error

	Status() State

	Subscribe(kind EventKind, h Handler) SubscriptionID
	Unsubscribe(id SubscriptionID)
}

// Options configure every handle a Factory produces.
type Options struct {
	LowLatency   bool
	MaxLatency   time.Duration
	LogVerbosity string
}

// Factory creates handles bound to a rendering surface.
type Factory interface {
	New(surface Surface) (Handle, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(surface Surface) (Handle, error)

func (f FactoryFunc) New(surface Surface) (Handle, error) {
	return f(surface)
}
