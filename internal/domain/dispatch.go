package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Match is the ephemeral result of evaluating one definition against one
// snapshot. It exists only to feed the priority resolver and is never
// persisted.
type Match struct {
	Definition TriggerDefinition
	SnapshotID uuid.UUID
	MatchedAt  time.Time

	// Payload holds values extracted by the condition (matched field,
	// observed value, keywords hit). Passed through to the handler.
	Payload map[string]any
}

// TriggerContext is what a module handler receives for one dispatch.
type TriggerContext struct {
	TenantID    uuid.UUID
	TriggerType string
	Snapshot    Snapshot

	// TriggerPayload is the condition's extracted payload.
	TriggerPayload map[string]any

	// Params is the definition's opaque ActionParameters.
	Params map[string]any
}

// DispatchRequest travels from the resolver to the dispatcher over the bus.
type DispatchRequest struct {
	Definition TriggerDefinition
	Snapshot   Snapshot
	Payload    map[string]any

	// Chain is shared by every request descending from one root evaluation.
	Chain *ChainState
}

// Context builds the handler-facing view of the request.
func (r DispatchRequest) Context() TriggerContext {
	return TriggerContext{
		TenantID:       r.Snapshot.TenantID,
		TriggerType:    r.Definition.Type,
		Snapshot:       r.Snapshot,
		TriggerPayload: r.Payload,
		Params:         r.Definition.ActionParameters,
	}
}

// Report aggregates one root evaluation pass. Dispatch is asynchronous, so
// Dispatched counts scheduled dispatches; callers needing completion poll
// the execution log.
type Report struct {
	Matched    int `json:"matched"`
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// ChainState tracks which trigger types already fired at each generation
// under one root snapshot. It is an in-memory fast path; the execution
// log's unique constraint remains the source of truth.
type ChainState struct {
	mu      sync.Mutex
	root    uuid.UUID
	visited map[chainVisit]struct{}
}

type chainVisit struct {
	triggerType string
	generation  int
}

// NewChainState starts tracking a root evaluation.
func NewChainState(root uuid.UUID) *ChainState {
	return &ChainState{
		root:    root,
		visited: make(map[chainVisit]struct{}),
	}
}

// Root returns the root snapshot ID this chain descends from.
func (s *ChainState) Root() uuid.UUID {
	return s.root
}

// Visit marks (triggerType, generation) as fired. Returns false if it
// already fired, in which case the caller must not schedule it again.
func (s *ChainState) Visit(triggerType string, generation int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := chainVisit{triggerType: triggerType, generation: generation}
	if _, ok := s.visited[key]; ok {
		return false
	}
	s.visited[key] = struct{}{}
	return true
}
