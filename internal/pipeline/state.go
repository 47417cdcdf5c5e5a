package pipeline

import (
	"fmt"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
)

// State is the pipeline phase. Only the consumer goroutine writes it.
type State int

const (
	Idle State = iota
	Capturing
	Reading
)

func (s State) String() string {
	switch s {
	case Capturing:
		return "capturing"
	case Reading:
		return "reading"
	default:
		return "idle"
	}
}

// MarshalText renders the state name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Event drives a state transition.
type Event int

const (
	EventStart Event = iota
	EventCaptured
	EventPreviewed
	EventPresented
	EventFailed
	EventCancelled
)

func (e Event) String() string {
	return [...]string{"start", "captured", "previewed", "presented", "failed", "cancelled"}[e]
}

// transitions lists every legal edge. Anything absent is a programming fault.
var transitions = map[State]map[Event]State{
	Idle: {
		EventStart: Capturing,
	},
	Capturing: {
		EventCaptured:  Reading,
		EventPreviewed: Idle,
		EventFailed:    Idle,
		EventCancelled: Idle,
	},
	Reading: {
		EventPresented: Idle,
		EventFailed:    Idle,
		EventCancelled: Idle,
	},
}

// next resolves the target state for ev, or an Internal error for an illegal edge.
func next(from State, ev Event) (State, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, apperrors.New(apperrors.CodeInternal, fmt.Sprintf("illegal transition %s --%s-->", from, ev))
}
