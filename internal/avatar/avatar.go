// Package avatar tracks the on-screen character's animation state. The
// tracker is a passive observer: it consumes notifications from the voice
// detector and the transport session and exposes state transitions, but
// never feeds back into the pipeline.
package avatar

import (
	"sync"

	"github.com/lumivoice/lumi/internal/transport"
)

// State is the avatar's animation state.
type State int

const (
	// StateIdle means nothing is happening.
	StateIdle State = iota
	// StateListening means the user is speaking.
	StateListening
	// StateThinking means an utterance is in flight to the server.
	StateThinking
	// StateTalking means reply audio is playing.
	StateTalking
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateTalking:
		return "talking"
	default:
		return "unknown"
	}
}

// Transition is one state change.
type Transition struct {
	From, To State
}

// Tracker derives the avatar state from pipeline notifications. All methods
// are safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	state State

	transitions chan Transition
}

// NewTracker creates a Tracker in the idle state.
func NewTracker() *Tracker {
	return &Tracker{
		transitions: make(chan Transition, 16),
	}
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Transitions returns the state-change channel. Transitions are dropped,
// not blocked on, if the consumer falls behind.
func (t *Tracker) Transitions() <-chan Transition { return t.transitions }

func (t *Tracker) set(to State) {
	t.mu.Lock()
	from := t.state
	if from == to {
		t.mu.Unlock()
		return
	}
	t.state = to
	t.mu.Unlock()

	select {
	case t.transitions <- Transition{From: from, To: to}:
	default:
	}
}

// SpeechStarted reports that the voice detector began recording.
func (t *Tracker) SpeechStarted() { t.set(StateListening) }

// UtteranceSent reports that an utterance was accepted by the transport.
func (t *Tracker) UtteranceSent() { t.set(StateThinking) }

// PlaybackStarted reports that reply audio started playing.
func (t *Tracker) PlaybackStarted() { t.set(StateTalking) }

// PlaybackFinished reports that reply audio finished.
func (t *Tracker) PlaybackFinished() { t.set(StateIdle) }

// ObserveResult folds a transport outcome into the state: audio moves to
// talking (the player then reports PlaybackFinished), anything else reverts
// to idle.
func (t *Tracker) ObserveResult(res transport.Result) {
	if res.Err == nil && len(res.Audio) > 0 {
		t.set(StateTalking)
		return
	}
	t.set(StateIdle)
}

// ObserveStatus folds a transport lifecycle event into the state: any loss
// of the connection reverts the avatar to idle.
func (t *Tracker) ObserveStatus(ev transport.StatusEvent) {
	switch ev.Kind {
	case transport.StatusDisconnected, transport.StatusReconnectFailed, transport.StatusClosed:
		t.set(StateIdle)
	}
}
