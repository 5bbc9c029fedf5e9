package vbforge

import (
	"bytes"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbforge-ai/vbforge/event"
	"github.com/vbforge-ai/vbforge/store"
)

func newTestBuilder(t *testing.T) (*Builder, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), time.Hour, nil)
	require.NoError(t, err)
	bus := event.NewBus(NumStages, nil)
	t.Cleanup(bus.Close)
	agent := NewStageAgent("FileBuilderAgent", "filebuilder", bus, nil)
	return NewBuilder(agent, st), st
}

func TestBuilderProducesStoredArchive(t *testing.T) {
	builder, st := newTestBuilder(t)

	archive, id, err := builder.Build(map[string]string{
		"Program.cs":                     "class Program {}",
		"Properties/launchSettings.json": "{}",
		"MyWindowsService.csproj":        "<Project/>",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NotEmpty(t, archive)

	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{
		"Program.cs",
		"Properties/launchSettings.json",
		"MyWindowsService.csproj",
	}, names)

	stored, err := st.Take(id)
	require.NoError(t, err)
	assert.Equal(t, archive, stored)

	assert.Equal(t, StateCompleted, builder.Agent().State())
}

func TestBuilderFreshIDPerBuild(t *testing.T) {
	builder, _ := newTestBuilder(t)

	_, first, err := builder.Build(map[string]string{"Worker.cs": "class Worker {}"})
	require.NoError(t, err)
	_, second, err := builder.Build(map[string]string{"Worker.cs": "class Worker {}"})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestBuilderEmptyFileSet(t *testing.T) {
	builder, _ := newTestBuilder(t)

	_, _, err := builder.Build(map[string]string{})
	require.ErrorIs(t, err, ErrEmptyArtifact)
	assert.Equal(t, StateFailed, builder.Agent().State())
}
