// Package planner filters tools by usage control, builds the per-provider
// steering value (tool_choice / toolConfig), and advances the forced-tool
// queue as the orchestrator observes which tools the model actually called.
package planner

import "github.com/taipm/llmgateway/gateway"

// Plan is the outcome of planning one request's tools: the filtered tool
// list to send on the wire, the initial steering, and the forced queue
// state the orchestrator will advance turn by turn.
type Plan struct {
	Tools    []gateway.Tool
	Steering Steering
	Queue    ForcedQueueState
	// Downgraded lists force tools that were downgraded to auto because the
	// provider does not honor tool-usage control.
	Downgraded []string
}

// Steering is the backend-neutral description of which tools the model may
// or must call next. Adapters translate this into their own wire shape.
type Steering struct {
	Mode Mode
	// Name is populated when Mode == ModeForceOne.
	Name string
}

// Mode enumerates the steering a provider can be given.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeNone     Mode = "none"
	ModeForceOne Mode = "force_one"
)

// NewPlan filters tools by usageControl and computes the initial steering
// and forced-tool queue for one request. supportsForce reports whether the
// target provider honors force/none steering at all (Cerebras, Groq, and
// Ollama do not — force is downgraded to auto and logged).
func NewPlan(tools []gateway.Tool, supportsForce bool) Plan {
	var kept []gateway.Tool
	var forced []string
	var downgraded []string

	for _, t := range tools {
		switch t.UsageControl {
		case gateway.UsageNone:
			continue // dropped: filtered out entirely
		case gateway.UsageForce:
			if supportsForce {
				forced = append(forced, t.ID)
			} else {
				downgraded = append(downgraded, t.ID)
			}
			kept = append(kept, t)
		default:
			kept = append(kept, t)
		}
	}

	queue := ForcedQueueState{Head: forced, Used: map[string]bool{}}

	steering := Steering{Mode: ModeAuto}
	if len(queue.Head) > 0 {
		steering = Steering{Mode: ModeForceOne, Name: queue.Head[0]}
	}

	return Plan{Tools: kept, Steering: steering, Queue: queue, Downgraded: downgraded}
}

// ForcedQueueState is the pure state of the forced-tool queue: an ordered
// list of tool ids still to be forced, and the set already observed and
// marked used. It is consumed in insertion order and never revisits a tool
// already marked used.
type ForcedQueueState struct {
	Head []string
	Used map[string]bool
}

// Advance consumes any currently-forced tool names present in observed,
// popping them (in order) off the head of the queue and marking them used.
// It returns the new queue state and the steering for the next call: the
// next head of the queue if non-empty, otherwise ModeAuto.
func (s ForcedQueueState) Advance(observed []string) (ForcedQueueState, Steering) {
	used := map[string]bool{}
	for k, v := range s.Used {
		used[k] = v
	}

	observedSet := make(map[string]bool, len(observed))
	for _, n := range observed {
		observedSet[n] = true
	}

	head := append([]string{}, s.Head...)
	for len(head) > 0 && observedSet[head[0]] {
		used[head[0]] = true
		head = head[1:]
	}

	next := ForcedQueueState{Head: head, Used: used}

	if len(head) == 0 {
		return next, Steering{Mode: ModeAuto}
	}
	return next, Steering{Mode: ModeForceOne, Name: head[0]}
}

// Done reports whether the forced-tool queue has been fully drained.
func (s ForcedQueueState) Done() bool {
	return len(s.Head) == 0
}
