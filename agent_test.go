package vbforge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbforge-ai/vbforge/event"
)

func TestStageAgentRecordsTransitions(t *testing.T) {
	bus := event.NewBus(NumStages, nil)
	agent := NewStageAgent("ParserAgent", "parser", bus, nil)

	assert.Equal(t, StateIdle, agent.State())

	agent.SetState(StateRunning, "Parsing started")
	assert.Equal(t, StateRunning, agent.State())
	assert.Equal(t, "Parsing started", agent.LastMessage())

	agent.SetState(StateCompleted, "")
	assert.Equal(t, StateCompleted, agent.State())
	assert.Equal(t, "ParserAgent state changed to Completed", agent.LastMessage())

	bus.Close()
	var states []string
	for ev := range bus.Events() {
		require.Equal(t, event.KindStateUpdate, ev.Kind)
		require.Equal(t, "parser", ev.Stage)
		require.Equal(t, "ParserAgent", ev.Agent)
		states = append(states, ev.State)
	}
	assert.Equal(t, []string{"Running", "Completed"}, states)
}

func TestStageAgentLogDoesNotChangeState(t *testing.T) {
	bus := event.NewBus(NumStages, nil)
	agent := NewStageAgent("IngestorAgent", "ingestor", bus, nil)

	agent.Log("WARNING", "suspicious entry skipped")
	assert.Equal(t, StateIdle, agent.State())

	bus.Close()
	ev := <-bus.Events()
	assert.Equal(t, event.KindLog, ev.Kind)
	assert.Equal(t, "WARNING", ev.Level)
	assert.Equal(t, "suspicious entry skipped", ev.Message)
	assert.Equal(t, "ingestor", ev.Stage)
}

func TestStageStateTerminal(t *testing.T) {
	assert.False(t, StateIdle.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())
}
