package vbforge

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ProjectSummary is the merged view of every parsed unit, handed to
// the generator as a YAML document.
type ProjectSummary struct {
	Procedures   []Procedure             `yaml:"procedures"`
	Events       []EventHandler          `yaml:"events"`
	Globals      []GlobalVar             `yaml:"globals"`
	Dependencies []string                `yaml:"dependencies"`
	MainLogic    MainLogic               `yaml:"main_logic"`
	Metadata     map[string]UnitMetadata `yaml:"metadata"`
	FileCount    int                     `yaml:"file_count"`
}

func emptySummary() ProjectSummary {
	return ProjectSummary{
		Procedures:   []Procedure{},
		Events:       []EventHandler{},
		Globals:      []GlobalVar{},
		Dependencies: []string{},
		Metadata:     map[string]UnitMetadata{},
	}
}

// Summarizer merges all per-file results into one summary document.
// Purely local computation; no external calls.
type Summarizer struct {
	agent *StageAgent
}

func NewSummarizer(agent *StageAgent) *Summarizer {
	return &Summarizer{agent: agent}
}

func (s *Summarizer) Agent() *StageAgent { return s.agent }

// Summarize merges parse results into a single document, dedupes
// dependency names, and serializes it to YAML. Degraded entries
// contribute empty pieces rather than gaps.
func (s *Summarizer) Summarize(units []ParsedUnit) string {
	summary := emptySummary()
	summary.FileCount = len(units)

	seen := map[string]bool{}
	for _, unit := range units {
		summary.Procedures = append(summary.Procedures, unit.Procedures...)
		summary.Events = append(summary.Events, unit.Events...)
		summary.Globals = append(summary.Globals, unit.Globals...)
		for _, dep := range unit.Dependencies {
			if dep.Name != "" && !seen[dep.Name] {
				summary.Dependencies = append(summary.Dependencies, dep.Name)
				seen[dep.Name] = true
			}
		}
		if unit.MainLogic.EntryPoint != "" || unit.MainLogic.PrimaryModule != "" {
			summary.MainLogic = unit.MainLogic
		}
		if unit.Metadata.FileName != "" {
			summary.Metadata[unit.Metadata.FileName] = unit.Metadata
		}
	}

	out, err := yaml.Marshal(summary)
	if err != nil {
		s.agent.Log("ERROR", fmt.Sprintf("Summarizer error: %v", err))
		fallback, _ := yaml.Marshal(emptySummary())
		return string(fallback)
	}

	s.agent.Log("INFO", fmt.Sprintf("Created summary: %d procedures, %d events, %d globals",
		len(summary.Procedures), len(summary.Events), len(summary.Globals)))
	return string(out)
}
