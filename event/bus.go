package event

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// stage weights used for the per-stage progress detail. These mirror
// the relative cost of each stage; they do not have to add up to 100.
var stageWeights = map[string]float64{
	"ingestor":         10,
	"parser":           30,
	"context_analyzer": 20,
	"summarizer":       10,
	"generator":        20,
	"filebuilder":      10,
}

var stageDescriptions = map[string]string{
	"ingestor":         "Ingesting VB6 project files from ZIP or GitHub",
	"parser":           "Parsing VB6 code to extract procedures and events",
	"context_analyzer": "Analyzing application context and workflow",
	"summarizer":       "Summarizing parsed data for code generation",
	"generator":        "Generating .NET 9 Worker Service code",
	"filebuilder":      "Building and packaging the .NET project ZIP",
}

// Bus is a bounded, ordered queue of pipeline events with a single
// consumer. Producers never block: when the queue is full the event is
// dropped and logged. The bus also derives the overall progress
// percentage and the currently running agent from the state updates
// flowing through it, so every published event carries a consistent
// snapshot of both.
//
// A Bus is scoped to one run. Construct a fresh bus per pipeline run
// and hand it to the pipeline and its agents at construction time.
type Bus struct {
	mu           sync.Mutex
	events       chan PipelineEvent
	progress     int
	totalStages  int
	currentAgent string
	closed       bool
	logger       *slog.Logger
}

// NewBus creates a bus sized for one run over the given number of
// pipeline stages. totalStages drives the progress increment applied
// on each stage completion.
func NewBus(totalStages int, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if totalStages <= 0 {
		totalStages = 1
	}
	return &Bus{
		events:      make(chan PipelineEvent, 256),
		totalStages: totalStages,
		logger:      logger,
	}
}

// Events returns the consumer side of the bus. The channel is closed
// by Close once the run has finished and no more events will arrive.
func (b *Bus) Events() <-chan PipelineEvent { return b.events }

// Progress returns the last derived overall progress percentage.
func (b *Bus) Progress() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progress
}

// Publish stamps the event with the current timestamp, derived
// progress and current agent, then enqueues it. Publish never blocks;
// a full queue drops the event with a log line.
func (b *Bus) Publish(ev PipelineEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.Level == "" {
		ev.Level = "INFO"
	}

	stage := strings.ToLower(ev.Stage)
	if ev.Kind == KindStateUpdate {
		switch ev.State {
		case "Running":
			b.currentAgent = ev.Agent
		case "Completed":
			if b.currentAgent == ev.Agent {
				b.currentAgent = ""
			}
			if stage != PipelineStage {
				b.progress = min(b.progress+100/b.totalStages, 100)
			}
		case "Failed":
			if b.currentAgent == ev.Agent {
				b.currentAgent = ""
			}
		}
	}
	ev.Progress = b.progress
	ev.CurrentAgent = b.currentAgent

	ev.Details.StageDescription = stageDescriptions[stage]
	if ev.Details.StageDescription == "" {
		ev.Details.StageDescription = "General processing"
	}
	if ev.Kind == KindStateUpdate && ev.State == "Completed" {
		ev.Details.StageProgress = stageWeights[stage]
	}
	b.mu.Unlock()

	select {
	case b.events <- ev:
	default:
		b.logger.Error("event queue is full, dropping event", "stage", ev.Stage, "kind", ev.Kind)
	}
}

// Close marks the bus finished and closes the consumer channel.
// Publish calls after Close are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.events)
}
