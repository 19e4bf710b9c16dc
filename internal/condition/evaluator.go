// Package condition evaluates trigger conditions against analysis snapshots.
//
// Evaluation is pure and total: it performs no I/O, and a malformed
// definition yields (no match, error) rather than a panic, so one broken
// definition can never abort a batch. Unknown field paths and absent
// categories are treated as data, not errors: they resolve to no match.
package condition

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// ErrMalformedCondition marks a structurally invalid condition. Callers log
// it as a warning and treat the definition as non-matching.
var ErrMalformedCondition = errors.New("malformed condition")

// Result is a successful evaluation outcome.
type Result struct {
	Matched bool
	Payload map[string]any
}

// Evaluator evaluates conditions. It caches compiled expressions; the cache
// is the only state and is safe for concurrent use.
type Evaluator struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
}

func New() *Evaluator {
	return &Evaluator{programs: make(map[string]*vm.Program)}
}

// Evaluate checks one definition against one snapshot. A returned error
// means the condition itself is malformed; the snapshot never causes one.
func (e *Evaluator) Evaluate(def domain.TriggerDefinition, snap domain.Snapshot) (Result, error) {
	return e.eval(def.Condition, snap)
}

func (e *Evaluator) eval(c domain.Condition, snap domain.Snapshot) (Result, error) {
	switch c.Kind {
	case domain.ConditionThreshold:
		return evalThreshold(c, snap)
	case domain.ConditionKeyword:
		return evalKeyword(c, snap)
	case domain.ConditionComposite:
		return e.evalComposite(c, snap)
	case domain.ConditionExpression:
		return e.evalExpression(c, snap)
	default:
		return Result{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedCondition, c.Kind)
	}
}

func evalThreshold(c domain.Condition, snap domain.Snapshot) (Result, error) {
	if c.Field == "" {
		return Result{}, fmt.Errorf("%w: threshold requires a field", ErrMalformedCondition)
	}

	value, ok := resolveField(snap, c.Field)
	if !ok {
		// Unknown path resolves to no match, not an error.
		return Result{}, nil
	}

	var matched bool
	switch c.Compare {
	case domain.CompareLT:
		matched = value < c.Value
	case domain.CompareLTE:
		matched = value <= c.Value
	case domain.CompareGT:
		matched = value > c.Value
	case domain.CompareGTE:
		matched = value >= c.Value
	case domain.CompareEQ:
		matched = value == c.Value
	default:
		return Result{}, fmt.Errorf("%w: unknown comparator %q", ErrMalformedCondition, c.Compare)
	}

	if !matched {
		return Result{}, nil
	}
	return Result{
		Matched: true,
		Payload: map[string]any{
			"field":     c.Field,
			"value":     value,
			"threshold": c.Value,
		},
	}, nil
}

func evalKeyword(c domain.Condition, snap domain.Snapshot) (Result, error) {
	if len(c.Keywords) == 0 {
		return Result{}, fmt.Errorf("%w: keyword requires at least one keyword", ErrMalformedCondition)
	}

	var hits []string
	var texts []string

	for _, rec := range snap.Recommendations {
		if c.Category != "" && !strings.EqualFold(rec.Category, c.Category) {
			continue
		}
		if kw, ok := matchKeywords(rec.Title, c.Keywords); ok {
			hits = append(hits, kw)
			texts = append(texts, rec.Title)
			continue
		}
		if kw, ok := matchKeywords(rec.Description, c.Keywords); ok {
			hits = append(hits, kw)
			texts = append(texts, rec.Title)
		}
	}

	for category, score := range snap.Scores {
		if c.Category != "" && !strings.EqualFold(category, c.Category) {
			continue
		}
		for _, finding := range score.Findings {
			if kw, ok := matchKeywords(finding, c.Keywords); ok {
				hits = append(hits, kw)
				texts = append(texts, finding)
			}
		}
	}

	if len(hits) == 0 {
		return Result{}, nil
	}
	return Result{
		Matched: true,
		Payload: map[string]any{
			"category": c.Category,
			"keywords": dedup(hits),
			"matched":  texts,
		},
	}, nil
}

func (e *Evaluator) evalComposite(c domain.Condition, snap domain.Snapshot) (Result, error) {
	if len(c.Children) == 0 {
		return Result{}, fmt.Errorf("%w: composite requires children", ErrMalformedCondition)
	}
	if c.Op != domain.CompositeAnd && c.Op != domain.CompositeOr {
		return Result{}, fmt.Errorf("%w: unknown composite op %q", ErrMalformedCondition, c.Op)
	}

	payload := make(map[string]any)
	matchedAny := false
	matchedAll := true

	for i, child := range c.Children {
		res, err := e.eval(child, snap)
		if err != nil {
			return Result{}, fmt.Errorf("child %d: %w", i, err)
		}
		if res.Matched {
			matchedAny = true
			for k, v := range res.Payload {
				payload[k] = v
			}
		} else {
			// No short-circuit: every child is validated so malformed
			// definitions surface regardless of sibling results.
			matchedAll = false
		}
	}

	matched := matchedAny
	if c.Op == domain.CompositeAnd {
		matched = matchedAll
	}
	if !matched {
		return Result{}, nil
	}
	return Result{Matched: true, Payload: payload}, nil
}

func (e *Evaluator) evalExpression(c domain.Condition, snap domain.Snapshot) (Result, error) {
	if c.Expr == "" {
		return Result{}, fmt.Errorf("%w: empty expression", ErrMalformedCondition)
	}

	program, err := e.compile(c.Expr)
	if err != nil {
		return Result{}, fmt.Errorf("%w: compile %q: %v", ErrMalformedCondition, c.Expr, err)
	}

	env := exprEnv(snap)
	out, err := expr.Run(program, env)
	if err != nil {
		// Runtime errors (nil deref on absent keys etc.) are data-shaped:
		// treat as no match so a batch never aborts.
		return Result{}, nil
	}

	matched, ok := out.(bool)
	if !ok {
		return Result{}, fmt.Errorf("%w: expression %q yields %T, want bool", ErrMalformedCondition, c.Expr, out)
	}
	if !matched {
		return Result{}, nil
	}
	return Result{Matched: true, Payload: map[string]any{"expr": c.Expr}}, nil
}

func (e *Evaluator) compile(src string) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.programs[src]; ok {
		return p, nil
	}
	p, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	e.programs[src] = p
	return p, nil
}

// exprEnv exposes the snapshot to expression conditions as plain maps.
func exprEnv(snap domain.Snapshot) map[string]any {
	scores := make(map[string]any, len(snap.Scores))
	for category, s := range snap.Scores {
		scores[category] = map[string]any{
			"overall":  s.Overall,
			"metrics":  s.Metrics,
			"findings": s.Findings,
		}
	}

	recs := make([]map[string]any, len(snap.Recommendations))
	for i, r := range snap.Recommendations {
		recs[i] = map[string]any{
			"category":    r.Category,
			"title":       r.Title,
			"description": r.Description,
		}
	}

	return map[string]any{
		"tenant":          snap.TenantID.String(),
		"generation":      snap.Generation,
		"scores":          scores,
		"recommendations": recs,
		"context":         snap.Context,
	}
}

// resolveField walks a dotted path into the snapshot's numeric fields.
// Supported shapes: "scores.<category>.overall" and
// "scores.<category>.<metric>". Anything else resolves to not-found.
func resolveField(snap domain.Snapshot, path string) (float64, bool) {
	parts := strings.Split(path, ".")
	if len(parts) != 3 || parts[0] != "scores" {
		return 0, false
	}

	score, ok := snap.Scores[parts[1]]
	if !ok {
		return 0, false
	}

	if parts[2] == "overall" {
		return score.Overall, true
	}
	value, ok := score.Metrics[parts[2]]
	return value, ok
}

func matchKeywords(text string, keywords []string) (string, bool) {
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

func dedup(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
