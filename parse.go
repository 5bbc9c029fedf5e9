package vbforge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vbforge-ai/vbforge/ai"
)

// Procedure is one extracted VB6 procedure or function.
type Procedure struct {
	Name        string   `json:"name" yaml:"name"`
	Parameters  []string `json:"parameters" yaml:"parameters"`
	ReturnType  string   `json:"return_type" yaml:"return_type"`
	Body        string   `json:"body" yaml:"body"`
	IsFunction  bool     `json:"is_function" yaml:"is_function"`
	AccessLevel string   `json:"access_level" yaml:"access_level"`
	ModuleName  string   `json:"module_name" yaml:"module_name"`
	LineNumber  int      `json:"line_number" yaml:"line_number"`
}

// EventHandler is one extracted VB6 event handler (Form_Load,
// Command1_Click and friends).
type EventHandler struct {
	Name       string   `json:"name" yaml:"name"`
	Object     string   `json:"object" yaml:"object"`
	EventType  string   `json:"event_type" yaml:"event_type"`
	Handler    string   `json:"handler" yaml:"handler"`
	Parameters []string `json:"parameters" yaml:"parameters"`
	ModuleName string   `json:"module_name" yaml:"module_name"`
	LineNumber int      `json:"line_number" yaml:"line_number"`
}

// GlobalVar is one extracted module-level variable.
type GlobalVar struct {
	Name         string `json:"name" yaml:"name"`
	Type         string `json:"type" yaml:"type"`
	DefaultValue string `json:"default_value" yaml:"default_value"`
	Scope        string `json:"scope" yaml:"scope"`
	IsArray      bool   `json:"is_array" yaml:"is_array"`
	ModuleName   string `json:"module_name" yaml:"module_name"`
}

// Dependency is one external API, COM object or module the source
// relies on.
type Dependency struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Description string   `json:"description" yaml:"description"`
	MethodsUsed []string `json:"methods_used" yaml:"methods_used"`
}

// MainLogic describes the application's entry point and processing
// pattern as inferred from a file.
type MainLogic struct {
	EntryPoint        string `json:"entry_point" yaml:"entry_point"`
	ProcessingPattern string `json:"processing_pattern" yaml:"processing_pattern"`
	Description       string `json:"description" yaml:"description"`
	PrimaryModule     string `json:"primary_module" yaml:"primary_module"`
}

// UnitMetadata carries per-file bookkeeping.
type UnitMetadata struct {
	FileName   string `json:"file_name" yaml:"file_name"`
	ModuleType string `json:"module_type" yaml:"module_type"`
	TotalLines int    `json:"total_lines" yaml:"total_lines"`
}

// ParsedUnit is the structured result of analyzing one source file.
// A degraded parse yields an empty but well-formed value with empty
// slices rather than nil gaps, so downstream merging never
// special-cases failures.
type ParsedUnit struct {
	Procedures   []Procedure    `json:"procedures" yaml:"procedures"`
	Events       []EventHandler `json:"events" yaml:"events"`
	Globals      []GlobalVar    `json:"globals" yaml:"globals"`
	Dependencies []Dependency   `json:"dependencies" yaml:"dependencies"`
	MainLogic    MainLogic      `json:"main_logic" yaml:"main_logic"`
	Metadata     UnitMetadata   `json:"metadata" yaml:"metadata"`
}

func emptyParsedUnit(fileName string, totalLines int) ParsedUnit {
	return ParsedUnit{
		Procedures:   []Procedure{},
		Events:       []EventHandler{},
		Globals:      []GlobalVar{},
		Dependencies: []Dependency{},
		Metadata: UnitMetadata{
			FileName:   fileName,
			ModuleType: "Unknown",
			TotalLines: totalLines,
		},
	}
}

func moduleTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".frm":
		return "Form"
	case ".bas":
		return "Module"
	case ".cls":
		return "Class"
	default:
		return "Unknown"
	}
}

const parserPromptLimit = 8000

const parserPrompt = `You are an expert VB6 code analyst. Analyze this VB6 code and extract ALL procedures, functions, events, and relevant context information for C# conversion.

Extract and return ONLY a valid JSON object with this structure:
{
  "procedures": [{"name": "procedure_name", "parameters": ["param1:Type"], "return_type": "Integer|String|Boolean|void", "body": "actual VB6 code implementation", "is_function": boolean, "access_level": "Public|Private", "module_name": "module or form name", "line_number": int}],
  "events": [{"name": "event_name", "object": "form_or_control_name", "event_type": "Click|Load|Timer|Change|Activate", "handler": "actual event handler code", "parameters": ["param1:Type"], "module_name": "module or form name", "line_number": int}],
  "globals": [{"name": "variable_name", "type": "Integer", "default_value": "0", "scope": "Public|Private", "is_array": boolean, "module_name": "module or form name"}],
  "dependencies": [{"name": "dependency_name", "type": "API|COM|Module", "description": "what it does", "methods_used": ["method1"]}],
  "main_logic": {"entry_point": "main procedure or form load", "processing_pattern": "Timer|EventDriven|Sequential", "description": "what the main logic does", "primary_module": "main module or form name"},
  "metadata": {"file_name": "%s", "module_type": "Form|Module|Class", "total_lines": int}
}

Extract ALL procedures, functions, and event handlers (e.g., Form_Load, Command1_Click, Timer1_Timer) with their full code bodies, parameters, and metadata. For .frm files, prioritize event handlers and Form-related procedures. Ensure event handlers are correctly identified by their naming convention (e.g., ControlName_EventName).

VB6 Code to analyze:
%s`

// UnitProcessor transforms one source file into a ParsedUnit via the
// inference boundary. It is deliberately best-effort: empty, malformed
// or failed transform output degrades to an empty result so one bad
// file cannot abort the run. Invocations are independent and may run
// concurrently; the processor holds no per-call mutable state.
type UnitProcessor struct {
	agent         *StageAgent
	model         *ai.Model
	maxCodeLength int
}

func NewUnitProcessor(agent *StageAgent, model *ai.Model, maxCodeLength int) *UnitProcessor {
	return &UnitProcessor{agent: agent, model: model, maxCodeLength: maxCodeLength}
}

func (p *UnitProcessor) Agent() *StageAgent { return p.agent }

// Process analyzes one unit. It never returns an error; degradations
// are logged and produce an empty ParsedUnit.
func (p *UnitProcessor) Process(ctx context.Context, unit InputUnit) ParsedUnit {
	p.agent.Log("INFO", fmt.Sprintf("Parsing file: %s", unit.Name))

	raw, err := os.ReadFile(unit.Path)
	if err != nil {
		p.agent.Log("ERROR", fmt.Sprintf("Parser error for %s: %v", unit.Name, err))
		return emptyParsedUnit(unit.Name, 0)
	}
	code := string(raw)
	totalLines := strings.Count(code, "\n") + 1

	if len(code) > p.maxCodeLength {
		p.agent.Log("WARNING", fmt.Sprintf("Truncating large file: %s (%d -> %d chars)", unit.Name, len(code), p.maxCodeLength))
		code = code[:p.maxCodeLength]
	}
	if len(code) > parserPromptLimit {
		code = code[:parserPromptLimit]
	}

	def := emptyParsedUnit(unit.Name, totalLines)
	response, err := p.model.Transform(ctx, fmt.Sprintf(parserPrompt, unit.Name, code))
	if err != nil {
		p.agent.Log("ERROR", fmt.Sprintf("Transform failed for %s: %v", unit.Name, err))
		return def
	}

	result, ok := ai.DecodeOrDefault(response, ai.CleanJSON, def)
	if !ok {
		p.agent.Log("ERROR", fmt.Sprintf("Unparsable transform output for %s, using empty result", unit.Name))
		return def
	}
	if result.Procedures == nil {
		result.Procedures = []Procedure{}
	}
	if result.Events == nil {
		result.Events = []EventHandler{}
	}
	if result.Globals == nil {
		result.Globals = []GlobalVar{}
	}
	if result.Dependencies == nil {
		result.Dependencies = []Dependency{}
	}

	result.Metadata.FileName = unit.Name
	result.Metadata.ModuleType = moduleTypeFor(unit.Name)
	result.Metadata.TotalLines = totalLines

	p.agent.Log("INFO", fmt.Sprintf("Successfully parsed %s: %d procedures, %d events",
		unit.Name, len(result.Procedures), len(result.Events)))
	return result
}
