package lifecycle

import (
	"fmt"

	"github.com/livewatch-cli/livewatch/player"
	"github.com/livewatch-cli/livewatch/quality"
	"github.com/samber/lo"
)

// State is the position of the controller in the playback lifecycle.
type State int

const (
	// StateIdle means no attempt is requested or the triggers forbid one.
	StateIdle State = iota
	// StateTearingDown means the previous handle is being frozen, stopped and destroyed.
	StateTearingDown
	// StateAttempting means a load-and-play race is in flight.
	StateAttempting
	// StateSteady means the first frame was confirmed and the player listeners are armed.
	StateSteady
	// StateRetryWait means a failed attempt is waiting for the retry delay.
	StateRetryWait
	// StateHalted means retries are exhausted. Only a new session trigger leaves it.
	StateHalted
)

var states = []State{StateIdle, StateTearingDown, StateAttempting, StateSteady, StateRetryWait, StateHalted}

var stateNames = lo.Map(states, func(s State, _ int) string { return s.String() })

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTearingDown:
		return "tearing_down"
	case StateAttempting:
		return "attempting"
	case StateSteady:
		return "steady"
	case StateRetryWait:
		return "retry_wait"
	case StateHalted:
		return "halted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Busy reports whether a cycle goroutine owns the handle. Entry triggers are dropped while busy.
func (s State) Busy() bool {
	return s == StateTearingDown || s == StateAttempting
}

// Trigger names what caused a re-evaluation.
type Trigger int

const (
	TriggerRequest Trigger = iota
	TriggerVisibility
	TriggerNetwork
	TriggerSource
	TriggerQuality
	// TriggerCoalesced stands for triggers dropped while busy and picked up at the settle point.
	TriggerCoalesced
	TriggerPlayer
	TriggerRetry
)

func (t Trigger) String() string {
	switch t {
	case TriggerRequest:
		return "request"
	case TriggerVisibility:
		return "visibility"
	case TriggerNetwork:
		return "network"
	case TriggerSource:
		return "source"
	case TriggerQuality:
		return "quality"
	case TriggerCoalesced:
		return "coalesced"
	case TriggerPlayer:
		return "player"
	case TriggerRetry:
		return "retry"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// startsSession reports whether the trigger begins a new session and resets the retry count.
func (t Trigger) startsSession() bool {
	return t != TriggerPlayer && t != TriggerRetry
}

// Status is a point-in-time view of the controller.
type Status struct {
	State       State
	Player      player.State
	HasPlayer   bool
	RetryCount  int
	Unavailable bool
	Selection   quality.Selection
	URL         string
	Session     string
	HasSnapshot bool
}
