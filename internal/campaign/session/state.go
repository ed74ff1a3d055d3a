package session

import (
	"campaign-client/internal/common/errors"
	"campaign-client/internal/models"
)

type State int

const (
	Idle State = iota
	Connecting
	Streaming
	Completed
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Live reports whether a channel is being established or in use.
func (s State) Live() bool {
	return s == Connecting || s == Streaming
}

// Observer receives session events. Callbacks run on the session's own
// goroutines and never under its lock.
type Observer interface {
	OnStateChange(from, to State)
	OnStatus(message string)
	OnError(err *errors.StandardError)
	OnResult(images models.PerTargetImages)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnStateChange(State, State) {}
func (NopObserver) OnStatus(string) {}
func (NopObserver) OnError(*errors.StandardError) {}
func (NopObserver) OnResult(models.PerTargetImages) {}
