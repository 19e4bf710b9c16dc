package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConditionKind discriminates the condition variants understood by the evaluator.
type ConditionKind string

const (
	ConditionThreshold  ConditionKind = "threshold"
	ConditionKeyword    ConditionKind = "keyword"
	ConditionComposite  ConditionKind = "composite"
	ConditionExpression ConditionKind = "expression"
)

// Comparator names a numeric comparison for threshold conditions.
type Comparator string

const (
	CompareLT  Comparator = "lt"
	CompareLTE Comparator = "lte"
	CompareGT  Comparator = "gt"
	CompareGTE Comparator = "gte"
	CompareEQ  Comparator = "eq"
)

// CompositeOp combines child conditions.
type CompositeOp string

const (
	CompositeAnd CompositeOp = "and"
	CompositeOr  CompositeOp = "or"
)

// Condition is a tagged variant: exactly one kind is active, selected by Kind.
// Only the fields belonging to that kind are read; the rest are ignored.
//
// Threshold compares a numeric snapshot field (dotted path, e.g.
// "scores.skills.coverage") against Value. Keyword matches any of Keywords
// case-insensitively against recommendation titles/descriptions and score
// findings for Category (empty Category means all categories). Composite
// combines Children with Op. Expression evaluates an expr-lang program
// against the snapshot and must yield a boolean.
type Condition struct {
	Kind ConditionKind `json:"kind" yaml:"kind"`

	// Threshold fields.
	Field   string     `json:"field,omitempty" yaml:"field,omitempty"`
	Compare Comparator `json:"compare,omitempty" yaml:"compare,omitempty"`
	Value   float64    `json:"value,omitempty" yaml:"value,omitempty"`

	// Keyword fields.
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// Composite fields.
	Op       CompositeOp `json:"op,omitempty" yaml:"op,omitempty"`
	Children []Condition `json:"children,omitempty" yaml:"children,omitempty"`

	// Expression fields.
	Expr string `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// TriggerDefinition is a declarative rule mapping a condition to a target
// module. Definitions are data: they are loaded from a YAML file or the
// trigger_definitions table, never compiled in.
//
// Type is unique per tenant scope; a tenant-specific definition shadows the
// global one of the same type. TenantID == uuid.Nil means global.
type TriggerDefinition struct {
	ID       uuid.UUID
	Type     string
	TenantID uuid.UUID

	// Priority orders dispatch; lower fires first.
	Priority int
	Enabled  bool

	Condition    Condition
	TargetModule string

	// ActionParameters is opaque handler configuration.
	ActionParameters map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Global reports whether the definition applies to all tenants.
func (d TriggerDefinition) Global() bool {
	return d.TenantID == uuid.Nil
}
