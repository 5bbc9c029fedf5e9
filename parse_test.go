package vbforge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbforge-ai/vbforge/ai"
	"github.com/vbforge-ai/vbforge/event"
)

const parsedUnitResponse = `{
  "procedures": [{"name": "Main", "parameters": [], "return_type": "void", "body": "Debug.Print \"hi\"", "is_function": false, "access_level": "Public", "module_name": "Module1", "line_number": 1}],
  "events": [],
  "globals": [{"name": "counter", "type": "Integer", "default_value": "0", "scope": "Public", "is_array": false, "module_name": "Module1"}],
  "dependencies": [{"name": "FileSystemObject", "type": "COM", "description": "file access", "methods_used": ["OpenTextFile"]}],
  "main_logic": {"entry_point": "Main", "processing_pattern": "Sequential", "description": "prints", "primary_module": "Module1"},
  "metadata": {"file_name": "wrong.bas", "module_type": "Class", "total_lines": 999}
}`

func newTestProcessor(t *testing.T, model *ai.Model) *UnitProcessor {
	t.Helper()
	bus := event.NewBus(NumStages, nil)
	t.Cleanup(bus.Close)
	agent := NewStageAgent("ParserAgent", "parser", bus, nil)
	return NewUnitProcessor(agent, model, 100000)
}

func writeUnit(t *testing.T, name, code string) InputUnit {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(code), 0o644))
	return InputUnit{Path: path, Name: name}
}

func TestProcessExtractsStructure(t *testing.T) {
	model := ai.NewDummyModel(func(prompt string) (string, error) {
		return parsedUnitResponse, nil
	})
	proc := newTestProcessor(t, model)

	unit := writeUnit(t, "Module1.bas", "Sub Main()\n  Debug.Print \"hi\"\nEnd Sub\n")
	result := proc.Process(context.Background(), unit)

	require.Len(t, result.Procedures, 1)
	assert.Equal(t, "Main", result.Procedures[0].Name)
	assert.Equal(t, "FileSystemObject", result.Dependencies[0].Name)

	// Authoritative metadata comes from the file, not the response.
	assert.Equal(t, "Module1.bas", result.Metadata.FileName)
	assert.Equal(t, "Module", result.Metadata.ModuleType)
	assert.Equal(t, 4, result.Metadata.TotalLines)
}

func TestProcessStripsCodeFences(t *testing.T) {
	model := ai.NewDummyModel(func(prompt string) (string, error) {
		return "```json\n" + parsedUnitResponse + "\n```", nil
	})
	proc := newTestProcessor(t, model)

	unit := writeUnit(t, "Thing.cls", "Public Sub Go()\nEnd Sub\n")
	result := proc.Process(context.Background(), unit)

	require.Len(t, result.Procedures, 1)
	assert.Equal(t, "Class", result.Metadata.ModuleType)
}

func TestProcessDegradesOnFailure(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
	}{
		{"transform error", "", errors.New("boom")},
		{"malformed json", "{not json", nil},
		{"empty response", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := ai.NewDummyModel(func(prompt string) (string, error) {
				return tt.response, tt.err
			})
			proc := newTestProcessor(t, model)

			unit := writeUnit(t, "Main.frm", "Private Sub Form_Load()\nEnd Sub\n")
			result := proc.Process(context.Background(), unit)

			assert.NotNil(t, result.Procedures)
			assert.Empty(t, result.Procedures)
			assert.Equal(t, "Main.frm", result.Metadata.FileName)
			assert.Equal(t, 3, result.Metadata.TotalLines)
		})
	}
}

func TestProcessUnreadableFile(t *testing.T) {
	model := ai.NewDummyModel(func(prompt string) (string, error) {
		t.Fatal("transform must not be called for an unreadable file")
		return "", nil
	})
	proc := newTestProcessor(t, model)

	result := proc.Process(context.Background(), InputUnit{Path: "/nonexistent/gone.bas", Name: "gone.bas"})
	assert.Empty(t, result.Procedures)
	assert.Equal(t, "gone.bas", result.Metadata.FileName)
}

func TestProcessTruncatesLargeFiles(t *testing.T) {
	var seen string
	model := ai.NewDummyModel(func(prompt string) (string, error) {
		seen = prompt
		return parsedUnitResponse, nil
	})

	bus := event.NewBus(NumStages, nil)
	t.Cleanup(bus.Close)
	agent := NewStageAgent("ParserAgent", "parser", bus, nil)
	proc := NewUnitProcessor(agent, model, 100)

	unit := writeUnit(t, "Big.bas", strings.Repeat("Dim x As Integer\n", 500))
	result := proc.Process(context.Background(), unit)

	assert.NotContains(t, seen, strings.Repeat("Dim x As Integer\n", 20))
	assert.Equal(t, 501, result.Metadata.TotalLines)
}
