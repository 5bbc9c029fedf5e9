package event

import "time"

// Kind identifies the type of a pipeline event.
//
// The stream consumer will typically use a switch statement to handle
// the event kind. For example:
//
//	for ev := range bus.Events() {
//		switch ev.Kind {
//		case event.KindStateUpdate:
//			fmt.Println(ev.Agent, ev.State)
//		case event.KindLog:
//			fmt.Println(ev.Message)
//		case event.KindPing:
//			// keep-alive, no payload
//		}
//	}
type Kind string

const (
	KindStateUpdate Kind = "state_update"
	KindLog         Kind = "log"
	KindPing        Kind = "ping"
)

// PipelineStage is the synthetic stage name used for pipeline-level
// events, as opposed to events emitted by an individual stage agent.
const PipelineStage = "pipeline"

// Details carries per-stage progress information attached to an event.
type Details struct {
	StageProgress    float64 `json:"stage_progress"`
	StageDescription string  `json:"stage_description"`
}

// PipelineEvent is an immutable progress record produced by stage
// agents and by the pipeline itself. Consumers must treat it as
// read-only.
type PipelineEvent struct {
	Kind         Kind      `json:"event_type"`
	Level        string    `json:"level"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Stage        string    `json:"stage"`
	Agent        string    `json:"agent,omitempty"`
	State        string    `json:"state,omitempty"`
	CurrentAgent string    `json:"current_agent,omitempty"`
	Progress     int       `json:"progress"`
	Details      Details   `json:"details"`
}

// Terminal reports whether the event marks the end of a run: a
// pipeline-level state update reaching Completed or Failed. The
// stream endpoint closes once it observes a terminal event.
func (e PipelineEvent) Terminal() bool {
	return e.Kind == KindStateUpdate &&
		e.Stage == PipelineStage &&
		(e.State == "Completed" || e.State == "Failed")
}
