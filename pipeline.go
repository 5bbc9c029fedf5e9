package vbforge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/vbforge-ai/vbforge/ai"
	"github.com/vbforge-ai/vbforge/event"
	"github.com/vbforge-ai/vbforge/store"
)

// Result is the outcome of a successful run.
type Result struct {
	ConversionID string
	Archive      []byte
}

// Pipeline drives one conversion run through the fixed stage order:
// ingest, parse (fan-out per file), analyze, summarize, generate,
// build. It owns the stage agents and the run-scoped event bus.
//
// A Pipeline instance owns its per-agent state for the duration of a
// run; construct one instance per concurrent run.
type Pipeline struct {
	cfg    Config
	bus    *event.Bus
	logger *slog.Logger

	ingestor   *Ingestor
	parser     *UnitProcessor
	analyzer   *ContextAggregator
	summarizer *Summarizer
	generator  *Generator
	builder    *Builder

	agents []*StageAgent
}

// NewPipeline wires the six stage agents to a fresh run-scoped bus.
func NewPipeline(cfg Config, model *ai.Model, st *store.Store, bus *event.Bus, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	ingestorAgent := NewStageAgent("IngestorAgent", "ingestor", bus, logger)
	parserAgent := NewStageAgent("ParserAgent", "parser", bus, logger)
	analyzerAgent := NewStageAgent("ContextAnalyzerAgent", "context_analyzer", bus, logger)
	summarizerAgent := NewStageAgent("SummarizerAgent", "summarizer", bus, logger)
	generatorAgent := NewStageAgent("GeneratorAgent", "generator", bus, logger)
	builderAgent := NewStageAgent("FileBuilderAgent", "filebuilder", bus, logger)

	return &Pipeline{
		cfg:        cfg,
		bus:        bus,
		logger:     logger,
		ingestor:   NewIngestor(ingestorAgent, cfg.MaxFileSizeMB, cfg.AllowedHosts),
		parser:     NewUnitProcessor(parserAgent, model, cfg.MaxCodeLength),
		analyzer:   NewContextAggregator(analyzerAgent, model),
		summarizer: NewSummarizer(summarizerAgent),
		generator:  NewGenerator(generatorAgent),
		builder:    NewBuilder(builderAgent, st),
		agents: []*StageAgent{
			ingestorAgent, parserAgent, analyzerAgent,
			summarizerAgent, generatorAgent, builderAgent,
		},
	}
}

// NumStages is the number of pipeline stages, used to size the event
// bus progress increments.
const NumStages = 6

// Agents exposes the stage agents in pipeline order, primarily for
// observing recorded states after a run.
func (p *Pipeline) Agents() []*StageAgent { return p.agents }

// Run executes one conversion end to end and returns the artifact and
// its fresh identifier. Either every stage completes, or no artifact
// is produced: any stage-fatal error aborts the remaining sequence,
// marks the pipeline and every stage Failed, and is returned to the
// caller. All scratch state lives under one disposable working
// directory removed on every exit path.
func (p *Pipeline) Run(ctx context.Context, input Input) (res Result, err error) {
	workDir, derr := os.MkdirTemp("", "vbforge-run-*")
	if derr != nil {
		return Result{}, fmt.Errorf("creating working directory: %w", derr)
	}
	defer os.RemoveAll(workDir)

	p.setPipelineState(StateRunning, "Starting VB6 to .NET conversion pipeline")
	defer func() {
		if err != nil {
			p.setPipelineState(StateFailed, fmt.Sprintf("Conversion pipeline failed: %v", err))
			for _, agent := range p.agents {
				agent.SetState(StateFailed, "")
			}
		}
	}()

	// Defensive reset in case the instance is reused across runs.
	for _, agent := range p.agents {
		if agent != p.ingestor.agent {
			agent.SetState(StateIdle, "")
		}
	}

	units, err := p.ingestor.Run(ctx, input, workDir)
	if err != nil {
		return Result{}, err
	}
	p.setPipelineState(StateRunning, fmt.Sprintf("Processing %d VB6 files", len(units)))

	parsed := p.parseAll(ctx, units)

	p.analyzer.Agent().SetState(StateRunning, "Running context analysis")
	contextMap := p.analyzer.Analyze(ctx, parsed)
	p.analyzer.Agent().SetState(StateCompleted, "Successfully analyzed application context")

	p.summarizer.Agent().SetState(StateRunning, "Starting summarization")
	yamlSummary := p.summarizer.Summarize(parsed)
	p.summarizer.Agent().SetState(StateCompleted, "")

	p.generator.Agent().SetState(StateRunning, "Running code generation")
	files, err := p.generator.Generate(yamlSummary, contextMap)
	if err != nil {
		p.generator.Agent().SetState(StateFailed, fmt.Sprintf("Generation error: %v", err))
		return Result{}, err
	}
	p.generator.Agent().SetState(StateCompleted, "Successfully generated C# project files")

	archive, conversionID, err := p.builder.Build(files)
	if err != nil {
		return Result{}, err
	}

	if ctx.Err() != nil {
		// The run raced a timeout; the caller must never see this
		// artifact.
		p.builder.store.Delete(conversionID)
		return Result{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}

	p.setPipelineState(StateCompleted, "Conversion pipeline completed")
	return Result{ConversionID: conversionID, Archive: archive}, nil
}

// parseAll fans out one task per unit and joins before returning.
// Each task's failure is contained as a degraded (empty) result, so
// the barrier always completes with one entry per processed unit.
func (p *Pipeline) parseAll(ctx context.Context, units []InputUnit) []ParsedUnit {
	if len(units) > p.cfg.MaxFiles {
		p.pipelineLog("WARNING", fmt.Sprintf("Processing only first %d files out of %d total", p.cfg.MaxFiles, len(units)))
		units = units[:p.cfg.MaxFiles]
	}

	p.parser.Agent().SetState(StateRunning, "")

	results := make([]ParsedUnit, len(units))
	var wg sync.WaitGroup
	for i, unit := range units {
		wg.Add(1)
		go func(i int, unit InputUnit) {
			defer wg.Done()
			results[i] = p.parser.Process(ctx, unit)
		}(i, unit)
	}
	wg.Wait()

	p.parser.Agent().SetState(StateCompleted, "")
	return results
}

func (p *Pipeline) setPipelineState(state StageState, message string) {
	p.logger.Info(message, "stage", event.PipelineStage, "state", string(state))
	p.bus.Publish(event.PipelineEvent{
		Kind:    event.KindStateUpdate,
		Stage:   event.PipelineStage,
		Agent:   "MCP",
		State:   string(state),
		Message: message,
	})
}

func (p *Pipeline) pipelineLog(level, message string) {
	if level == "WARNING" {
		p.logger.Warn(message)
	} else {
		p.logger.Info(message)
	}
	p.bus.Publish(event.PipelineEvent{
		Kind:    event.KindLog,
		Level:   level,
		Stage:   event.PipelineStage,
		Message: message,
	})
}
