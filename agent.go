package vbforge

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/vbforge-ai/vbforge/event"
)

// StageAgent is one named step of the pipeline with an observable
// lifecycle. It records state transitions and emits an event for each
// one; it does not validate them. Legal sequencing is the pipeline's
// responsibility by construction of its call order; the agent is
// only ever driven from one logical sequence point per stage.
type StageAgent struct {
	name  string
	stage string

	mu          sync.Mutex
	state       StageState
	lastMessage string

	bus    *event.Bus
	logger *slog.Logger
}

// NewStageAgent creates an agent bound to a run-scoped bus. stage is
// the lowercase stage key used in events (e.g. "parser").
func NewStageAgent(name, stage string, bus *event.Bus, logger *slog.Logger) *StageAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &StageAgent{
		name:   name,
		stage:  stage,
		state:  StateIdle,
		bus:    bus,
		logger: logger.With("agent", name),
	}
}

func (a *StageAgent) Name() string { return a.name }

func (a *StageAgent) Stage() string { return a.stage }

// State returns the agent's current lifecycle state.
func (a *StageAgent) State() StageState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// LastMessage returns the message attached to the most recent
// transition, if any.
func (a *StageAgent) LastMessage() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastMessage
}

// SetState updates the agent's state and always emits a state_update
// event, whether or not a message is supplied. An empty message is
// replaced with a generic transition description.
func (a *StageAgent) SetState(state StageState, message string) {
	if message == "" {
		message = fmt.Sprintf("%s state changed to %s", a.name, state)
	}

	a.mu.Lock()
	a.state = state
	a.lastMessage = message
	a.mu.Unlock()

	a.logger.Info(message, "state", string(state))
	a.bus.Publish(event.PipelineEvent{
		Kind:    event.KindStateUpdate,
		Stage:   a.stage,
		Agent:   a.name,
		State:   string(state),
		Message: message,
	})
}

// Log emits a log event attributed to this agent's stage without
// touching its state. level follows the stream's naming ("INFO",
// "WARNING", "ERROR").
func (a *StageAgent) Log(level, message string) {
	switch level {
	case "ERROR":
		a.logger.Error(message)
	case "WARNING":
		a.logger.Warn(message)
	default:
		a.logger.Info(message)
	}
	a.bus.Publish(event.PipelineEvent{
		Kind:    event.KindLog,
		Level:   level,
		Stage:   a.stage,
		Agent:   a.name,
		Message: message,
	})
}
