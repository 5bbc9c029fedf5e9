package vbforge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbforge-ai/vbforge/ai"
	"github.com/vbforge-ai/vbforge/event"
	"github.com/vbforge-ai/vbforge/store"
)

func routingDummyModel(t *testing.T) *ai.Model {
	t.Helper()
	return ai.NewDummyModel(func(prompt string) (string, error) {
		if strings.Contains(prompt, "context map") {
			return contextMapResponse, nil
		}
		return parsedUnitResponse, nil
	})
}

func newTestPipeline(t *testing.T, model *ai.Model) (*Pipeline, *event.Bus, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), time.Hour, nil)
	require.NoError(t, err)
	bus := event.NewBus(NumStages, nil)
	cfg := Config{
		MaxFileSizeMB: 50,
		MaxCodeLength: 100000,
		MaxFiles:      50,
		AllowedHosts:  []string{"github.com"},
	}
	return NewPipeline(cfg, model, st, bus, nil), bus, st
}

func TestPipelineFullRun(t *testing.T) {
	p, bus, st := newTestPipeline(t, routingDummyModel(t))

	archive := zipFixture(t, map[string]string{
		"Module1.bas": "Sub Main()\n  Debug.Print \"hi\"\nEnd Sub\n",
		"Main.frm":    "Private Sub Form_Load()\nEnd Sub\n",
	})

	res, err := p.Run(context.Background(), Input{Archive: archive})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ConversionID)
	assert.NotEmpty(t, res.Archive)

	for _, agent := range p.Agents() {
		assert.Equal(t, StateCompleted, agent.State(), agent.Name())
	}

	stored, err := st.Take(res.ConversionID)
	require.NoError(t, err)
	assert.Equal(t, res.Archive, stored)

	bus.Close()
	var sawTerminal bool
	var lastProgress int
	for ev := range bus.Events() {
		require.GreaterOrEqual(t, ev.Progress, lastProgress, "progress never decreases")
		lastProgress = ev.Progress
		if ev.Terminal() {
			assert.Equal(t, "Completed", ev.State)
			sawTerminal = true
		}
	}
	assert.True(t, sawTerminal)
	assert.Equal(t, 96, bus.Progress())
}

func TestPipelineFailureMarksAllAgents(t *testing.T) {
	p, bus, _ := newTestPipeline(t, routingDummyModel(t))

	_, err := p.Run(context.Background(), Input{Archive: []byte("not a zip")})
	require.ErrorIs(t, err, ErrCorruptArchive)

	for _, agent := range p.Agents() {
		assert.Equal(t, StateFailed, agent.State(), agent.Name())
	}

	bus.Close()
	var sawFailedTerminal bool
	for ev := range bus.Events() {
		if ev.Terminal() {
			assert.Equal(t, "Failed", ev.State)
			sawFailedTerminal = true
		}
	}
	assert.True(t, sawFailedTerminal)
}

func TestPipelineDegradedInferenceStillCompletes(t *testing.T) {
	model := ai.NewDummyModel(func(prompt string) (string, error) {
		return "", errors.New("provider unavailable")
	})
	p, _, _ := newTestPipeline(t, model)

	archive := zipFixture(t, map[string]string{
		"Module1.bas": "Sub Main()\nEnd Sub\n",
	})

	res, err := p.Run(context.Background(), Input{Archive: archive})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Archive)

	for _, agent := range p.Agents() {
		assert.Equal(t, StateCompleted, agent.State(), agent.Name())
	}
}

func TestPipelineTruncatesFileCount(t *testing.T) {
	p, bus, _ := newTestPipeline(t, routingDummyModel(t))
	p.cfg.MaxFiles = 1

	archive := zipFixture(t, map[string]string{
		"A.bas": "Sub A()\nEnd Sub\n",
		"B.bas": "Sub B()\nEnd Sub\n",
		"C.bas": "Sub C()\nEnd Sub\n",
	})

	res, err := p.Run(context.Background(), Input{Archive: archive})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ConversionID)

	bus.Close()
	var sawTruncationWarning bool
	for ev := range bus.Events() {
		if ev.Kind == event.KindLog && strings.Contains(ev.Message, "Processing only first 1 files") {
			sawTruncationWarning = true
		}
	}
	assert.True(t, sawTruncationWarning)
}

func TestPipelineCancelledContext(t *testing.T) {
	p, _, _ := newTestPipeline(t, routingDummyModel(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	archive := zipFixture(t, map[string]string{"Module1.bas": "Sub Main()\nEnd Sub\n"})
	_, err := p.Run(ctx, Input{Archive: archive})
	require.ErrorIs(t, err, ErrTimeout)
}
