package vbforge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vbforge-ai/vbforge/ai"
)

// ContextMap is the whole-application view derived from every parsed
// unit: entry point, call relationships, shared state and timing
// patterns.
type ContextMap struct {
	ApplicationType string          `json:"application_type" yaml:"application_type"`
	MainWorkflow    MainWorkflow    `json:"main_workflow" yaml:"main_workflow"`
	DataFlow        []DataFlowEdge  `json:"data_flow" yaml:"data_flow"`
	StateManagement StateManagement `json:"state_management" yaml:"state_management"`
	Communication   Communication   `json:"communication" yaml:"communication"`
	TimingPatterns  TimingPatterns  `json:"timing_patterns" yaml:"timing_patterns"`
	ModuleHierarchy ModuleHierarchy `json:"module_hierarchy" yaml:"module_hierarchy"`
}

type MainWorkflow struct {
	EntryPoint        string   `json:"entry_point" yaml:"entry_point"`
	ProcessingPattern string   `json:"processing_pattern" yaml:"processing_pattern"`
	MainOperations    []string `json:"main_operations" yaml:"main_operations"`
	Termination       string   `json:"termination" yaml:"termination"`
	PrimaryModule     string   `json:"primary_module" yaml:"primary_module"`
}

type DataFlowEdge struct {
	From       string `json:"from" yaml:"from"`
	To         string `json:"to" yaml:"to"`
	DataType   string `json:"data_type" yaml:"data_type"`
	Processing string `json:"processing" yaml:"processing"`
}

type StateManagement struct {
	GlobalVariables []string `json:"global_variables" yaml:"global_variables"`
	SharedResources []string `json:"shared_resources" yaml:"shared_resources"`
	Persistence     string   `json:"persistence" yaml:"persistence"`
}

type Communication struct {
	ExternalAPIs      []string `json:"external_apis" yaml:"external_apis"`
	FileOperations    []string `json:"file_operations" yaml:"file_operations"`
	NetworkOperations []string `json:"network_operations" yaml:"network_operations"`
}

type TimingPatterns struct {
	Timers     []string `json:"timers" yaml:"timers"`
	Delays     []string `json:"delays" yaml:"delays"`
	Scheduling string   `json:"scheduling" yaml:"scheduling"`
}

type CallEdge struct {
	Caller string `json:"caller" yaml:"caller"`
	Callee string `json:"callee" yaml:"callee"`
}

type ModuleHierarchy struct {
	MainModule   string     `json:"main_module" yaml:"main_module"`
	Dependencies []string   `json:"dependencies" yaml:"dependencies"`
	CallGraph    []CallEdge `json:"call_graph" yaml:"call_graph"`
}

// DefaultContextMap is the uninformative-but-usable map the pipeline
// falls back to when context analysis degrades.
func DefaultContextMap() ContextMap {
	return ContextMap{ApplicationType: "Service"}
}

const analyzerPromptLimit = 4000

const analyzerPrompt = `Analyze VB6 parsed data to create a comprehensive context map for the entire application, identifying primary modules and processing flows.

Return ONLY a valid JSON object with this structure:
{
  "application_type": "Service|Desktop|Library",
  "main_workflow": {"entry_point": "main procedure or form load", "processing_pattern": "Timer|EventDriven|Sequential", "main_operations": ["operation1"], "termination": "how the application exits", "primary_module": "main module or form name"},
  "data_flow": [{"from": "source module/procedure", "to": "destination module/procedure", "data_type": "type of data", "processing": "what happens to the data"}],
  "state_management": {"global_variables": ["var1:module"], "shared_resources": ["resource1"], "persistence": "how state is maintained (file|memory|database)"},
  "communication": {"external_apis": ["api1"], "file_operations": ["read:module"], "network_operations": ["tcp:module"]},
  "timing_patterns": {"timers": ["timer1:1000:module"], "delays": ["delay1:100:module"], "scheduling": "how operations are scheduled"},
  "module_hierarchy": {"main_module": "primary module name", "dependencies": ["module1"], "call_graph": [{"caller": "module1.procedure1", "callee": "module2.procedure2"}]}
}

Incorporate ALL parsed procedures, events, and globals across all modules. Identify the main module/form by prioritizing .frm files or modules with Form_Load events, then modules with the most procedures.

Parsed VB6 Data:
%s`

// ContextAggregator merges per-file parse results into one
// application-wide context map with a single transform call. Any
// failure degrades to DefaultContextMap, so the pipeline always has
// some context to proceed with.
type ContextAggregator struct {
	agent *StageAgent
	model *ai.Model
}

func NewContextAggregator(agent *StageAgent, model *ai.Model) *ContextAggregator {
	return &ContextAggregator{agent: agent, model: model}
}

func (c *ContextAggregator) Agent() *StageAgent { return c.agent }

// Analyze builds the whole-application context map from the complete
// set of parse results, degraded entries included.
func (c *ContextAggregator) Analyze(ctx context.Context, units []ParsedUnit) ContextMap {
	c.agent.Log("INFO", "Starting context analysis")
	def := DefaultContextMap()

	encoded, err := json.MarshalIndent(units, "", "  ")
	if err != nil {
		c.agent.Log("ERROR", fmt.Sprintf("Failed to encode parsed data: %v", err))
		return def
	}
	payload := string(encoded)
	if len(payload) > analyzerPromptLimit {
		payload = payload[:analyzerPromptLimit]
	}

	response, err := c.model.Transform(ctx, fmt.Sprintf(analyzerPrompt, payload))
	if err != nil {
		c.agent.Log("ERROR", fmt.Sprintf("Context analysis transform failed: %v", err))
		return def
	}

	result, ok := ai.DecodeOrDefault(response, ai.CleanJSON, def)
	if !ok {
		c.agent.Log("ERROR", "Unparsable context analysis output, using default context map")
		return def
	}

	c.agent.Log("INFO", "Successfully analyzed VB6 context")
	return result
}
