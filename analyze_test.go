package vbforge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbforge-ai/vbforge/ai"
	"github.com/vbforge-ai/vbforge/event"
)

const contextMapResponse = `{
  "application_type": "Service",
  "main_workflow": {"entry_point": "Main", "processing_pattern": "Timer", "main_operations": ["poll"], "termination": "service stop", "primary_module": "Module1"},
  "module_hierarchy": {"main_module": "Module1", "dependencies": [], "call_graph": [{"caller": "Module1.Main", "callee": "Module1.Poll"}]}
}`

func newTestAggregator(t *testing.T, model *ai.Model) *ContextAggregator {
	t.Helper()
	bus := event.NewBus(NumStages, nil)
	t.Cleanup(bus.Close)
	agent := NewStageAgent("ContextAnalyzerAgent", "context_analyzer", bus, nil)
	return NewContextAggregator(agent, model)
}

func TestAnalyzeBuildsContextMap(t *testing.T) {
	model := ai.NewDummyModel(func(prompt string) (string, error) {
		assert.Contains(t, prompt, "Module1.bas")
		return contextMapResponse, nil
	})
	agg := newTestAggregator(t, model)

	units := []ParsedUnit{
		{
			Procedures: []Procedure{{Name: "Main", ModuleName: "Module1"}},
			Metadata:   UnitMetadata{FileName: "Module1.bas", ModuleType: "Module"},
		},
	}
	result := agg.Analyze(context.Background(), units)

	assert.Equal(t, "Service", result.ApplicationType)
	assert.Equal(t, "Timer", result.MainWorkflow.ProcessingPattern)
	assert.Equal(t, "Module1", result.ModuleHierarchy.MainModule)
	require.Len(t, result.ModuleHierarchy.CallGraph, 1)
}

func TestAnalyzeDegradesToDefault(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
	}{
		{"transform error", "", errors.New("boom")},
		{"malformed json", "not even close", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := ai.NewDummyModel(func(prompt string) (string, error) {
				return tt.response, tt.err
			})
			agg := newTestAggregator(t, model)

			result := agg.Analyze(context.Background(), []ParsedUnit{emptyParsedUnit("a.bas", 1)})
			assert.Equal(t, DefaultContextMap(), result)
		})
	}
}
