package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CategoryScore holds the numeric and textual findings for one analysis
// category (culture, skills, structure, performance, hiring, learning).
//
// All numeric values use the 0-100 scale. Upstream producers emitting 0-1
// must rescale before submission; the evaluator never normalizes.
type CategoryScore struct {
	Overall  float64            `json:"overall"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	Findings []string           `json:"findings,omitempty"`
}

// Recommendation is one upstream analysis recommendation.
type Recommendation struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Snapshot is an immutable analysis result ("unified results") consumed by
// the trigger engine. One snapshot may be evaluated multiple times; the
// execution log keeps that idempotent.
//
// Synthetic snapshots derived during chaining share the root's scores and
// recommendations, carry the parent outcome data in Context, and have
// Generation > 0.
type Snapshot struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	TakenAt  time.Time

	Scores          map[string]CategoryScore
	Recommendations []Recommendation

	// Context carries forward outcome data on synthetic snapshots; nil on roots.
	Context map[string]any

	RootID     uuid.UUID
	Generation int
}

// Root reports whether this is an original (non-synthetic) snapshot.
func (s Snapshot) Root() bool {
	return s.Generation == 0
}

// syntheticNamespace scopes derived snapshot IDs. Deterministic IDs make
// chain hops idempotent: re-running a chain lands on the same idempotency
// tuples, and two parents chaining into the same generation converge.
var syntheticNamespace = uuid.MustParse("8f1aa2be-7e64-4b63-9c3f-5a4fbd6f2a10")

// Derive builds the synthetic snapshot for the next chain generation. The
// tenant, scores and recommendations carry over unchanged; data is merged
// into a fresh Context map (the receiver is never mutated).
func (s Snapshot) Derive(data map[string]any, generation int) Snapshot {
	ctx := make(map[string]any, len(s.Context)+len(data))
	for k, v := range s.Context {
		ctx[k] = v
	}
	for k, v := range data {
		ctx[k] = v
	}

	root := s.RootID
	if root == uuid.Nil {
		root = s.ID
	}

	return Snapshot{
		ID:              uuid.NewSHA1(syntheticNamespace, []byte(fmt.Sprintf("%s:%d", root, generation))),
		TenantID:        s.TenantID,
		TakenAt:         s.TakenAt,
		Scores:          s.Scores,
		Recommendations: s.Recommendations,
		Context:         ctx,
		RootID:          root,
		Generation:      generation,
	}
}
