package condition

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

func snapshotFixture() domain.Snapshot {
	return domain.Snapshot{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Scores: map[string]domain.CategoryScore{
			"skills": {
				Overall:  42,
				Metrics:  map[string]float64{"coverage": 35.5},
				Findings: []string{"Backend coverage is thin"},
			},
			"culture": {
				Overall: 78,
			},
		},
		Recommendations: []domain.Recommendation{
			{Category: "skills", Title: "Critical technical skills gap", Description: "Backend team lacks Go expertise"},
			{Category: "hiring", Title: "Expand the engineering funnel"},
		},
	}
}

func defWith(c domain.Condition) domain.TriggerDefinition {
	return domain.TriggerDefinition{
		ID:        uuid.New(),
		Type:      "test_trigger",
		Enabled:   true,
		Condition: c,
	}
}

// TestEvaluate_Threshold covers every comparator against the fixture's
// scores.skills.coverage value of 35.5.
func TestEvaluate_Threshold(t *testing.T) {
	snap := snapshotFixture()
	eval := New()

	tests := []struct {
		name    string
		compare domain.Comparator
		value   float64
		want    bool
	}{
		{"lt match", domain.CompareLT, 40, true},
		{"lt no match", domain.CompareLT, 30, false},
		{"lte boundary", domain.CompareLTE, 35.5, true},
		{"gt match", domain.CompareGT, 30, true},
		{"gte boundary", domain.CompareGTE, 35.5, true},
		{"eq match", domain.CompareEQ, 35.5, true},
		{"eq no match", domain.CompareEQ, 36, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := eval.Evaluate(defWith(domain.Condition{
				Kind:    domain.ConditionThreshold,
				Field:   "scores.skills.coverage",
				Compare: tt.compare,
				Value:   tt.value,
			}), snap)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if res.Matched != tt.want {
				t.Errorf("Matched = %v, want %v", res.Matched, tt.want)
			}
			if tt.want && res.Payload["value"] != 35.5 {
				t.Errorf("payload value = %v, want 35.5", res.Payload["value"])
			}
		})
	}
}

// TestEvaluate_Threshold_OverallField verifies the "overall" leaf resolves
// to the category's top-level score.
func TestEvaluate_Threshold_OverallField(t *testing.T) {
	res, err := New().Evaluate(defWith(domain.Condition{
		Kind:    domain.ConditionThreshold,
		Field:   "scores.culture.overall",
		Compare: domain.CompareGTE,
		Value:   70,
	}), snapshotFixture())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Matched {
		t.Error("expected match on scores.culture.overall >= 70")
	}
}

// TestEvaluate_Threshold_UnknownPath verifies unknown field paths resolve to
// no match without an error, so a broken definition cannot abort a batch.
func TestEvaluate_Threshold_UnknownPath(t *testing.T) {
	eval := New()
	for _, field := range []string{
		"scores.nonexistent.overall",
		"scores.skills.velocity",
		"not.a.path",
		"scores.skills",
	} {
		res, err := eval.Evaluate(defWith(domain.Condition{
			Kind:    domain.ConditionThreshold,
			Field:   field,
			Compare: domain.CompareGT,
			Value:   0,
		}), snapshotFixture())
		if err != nil {
			t.Errorf("field %q: unexpected error %v", field, err)
		}
		if res.Matched {
			t.Errorf("field %q: matched, want no match", field)
		}
	}
}

// TestEvaluate_Keyword_SkillsGap is the skills-gap scenario: a keyword
// condition for category "skills" with {"critical","urgent"} must match the
// "Critical technical skills gap" recommendation exactly once.
func TestEvaluate_Keyword_SkillsGap(t *testing.T) {
	res, err := New().Evaluate(defWith(domain.Condition{
		Kind:     domain.ConditionKeyword,
		Category: "skills",
		Keywords: []string{"critical", "urgent"},
	}), snapshotFixture())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Matched {
		t.Fatal("expected keyword match")
	}

	matched, ok := res.Payload["matched"].([]string)
	if !ok || len(matched) != 1 {
		t.Fatalf("payload matched = %v, want exactly one text", res.Payload["matched"])
	}
	if matched[0] != "Critical technical skills gap" {
		t.Errorf("matched text = %q", matched[0])
	}
}

// TestEvaluate_Keyword_CaseInsensitive verifies matching ignores case on
// both sides.
func TestEvaluate_Keyword_CaseInsensitive(t *testing.T) {
	res, err := New().Evaluate(defWith(domain.Condition{
		Kind:     domain.ConditionKeyword,
		Category: "SKILLS",
		Keywords: []string{"CRITICAL"},
	}), snapshotFixture())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Matched {
		t.Error("expected case-insensitive match")
	}
}

// TestEvaluate_Keyword_Findings verifies score findings participate in
// keyword matching alongside recommendations.
func TestEvaluate_Keyword_Findings(t *testing.T) {
	res, err := New().Evaluate(defWith(domain.Condition{
		Kind:     domain.ConditionKeyword,
		Category: "skills",
		Keywords: []string{"thin"},
	}), snapshotFixture())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Matched {
		t.Error("expected match against score findings")
	}
}

// TestEvaluate_Keyword_WrongCategory verifies the category filter.
func TestEvaluate_Keyword_WrongCategory(t *testing.T) {
	res, err := New().Evaluate(defWith(domain.Condition{
		Kind:     domain.ConditionKeyword,
		Category: "culture",
		Keywords: []string{"critical"},
	}), snapshotFixture())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Matched {
		t.Error("keyword must not match outside its category")
	}
}

// TestEvaluate_Composite covers AND and OR over threshold and keyword
// children.
func TestEvaluate_Composite(t *testing.T) {
	snap := snapshotFixture()
	eval := New()

	coverageLow := domain.Condition{
		Kind:    domain.ConditionThreshold,
		Field:   "scores.skills.coverage",
		Compare: domain.CompareLT,
		Value:   40,
	}
	cultureLow := domain.Condition{
		Kind:    domain.ConditionThreshold,
		Field:   "scores.culture.overall",
		Compare: domain.CompareLT,
		Value:   50,
	}
	criticalKeyword := domain.Condition{
		Kind:     domain.ConditionKeyword,
		Category: "skills",
		Keywords: []string{"critical"},
	}

	tests := []struct {
		name string
		op   domain.CompositeOp
		kids []domain.Condition
		want bool
	}{
		{"and both match", domain.CompositeAnd, []domain.Condition{coverageLow, criticalKeyword}, true},
		{"and one fails", domain.CompositeAnd, []domain.Condition{coverageLow, cultureLow}, false},
		{"or one matches", domain.CompositeOr, []domain.Condition{cultureLow, criticalKeyword}, true},
		{"or none match", domain.CompositeOr, []domain.Condition{cultureLow, cultureLow}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := eval.Evaluate(defWith(domain.Condition{
				Kind:     domain.ConditionComposite,
				Op:       tt.op,
				Children: tt.kids,
			}), snap)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if res.Matched != tt.want {
				t.Errorf("Matched = %v, want %v", res.Matched, tt.want)
			}
		})
	}
}

// TestEvaluate_Expression verifies the expr-lang condition kind, including
// runtime errors on absent data resolving to no match.
func TestEvaluate_Expression(t *testing.T) {
	snap := snapshotFixture()
	eval := New()

	res, err := eval.Evaluate(defWith(domain.Condition{
		Kind: domain.ConditionExpression,
		Expr: `scores.skills.overall < 50 && len(recommendations) > 0`,
	}), snap)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Matched {
		t.Error("expected expression match")
	}

	// Same expression evaluated again exercises the program cache.
	res, err = eval.Evaluate(defWith(domain.Condition{
		Kind: domain.ConditionExpression,
		Expr: `scores.skills.overall < 50 && len(recommendations) > 0`,
	}), snap)
	if err != nil || !res.Matched {
		t.Errorf("cached evaluation: res=%v err=%v", res, err)
	}

	// Absent category: runtime lookup fails, evaluation stays total.
	res, err = eval.Evaluate(defWith(domain.Condition{
		Kind: domain.ConditionExpression,
		Expr: `scores.retention.overall < 50`,
	}), snap)
	if err != nil {
		t.Fatalf("absent data must not error, got %v", err)
	}
	if res.Matched {
		t.Error("absent data must not match")
	}
}

// TestEvaluate_MalformedConditions verifies every structural defect is
// reported as ErrMalformedCondition and never matches.
func TestEvaluate_MalformedConditions(t *testing.T) {
	snap := snapshotFixture()
	eval := New()

	tests := []struct {
		name string
		cond domain.Condition
	}{
		{"unknown kind", domain.Condition{Kind: "regex"}},
		{"threshold no field", domain.Condition{Kind: domain.ConditionThreshold, Compare: domain.CompareLT}},
		{"threshold bad comparator", domain.Condition{Kind: domain.ConditionThreshold, Field: "scores.skills.overall", Compare: "neq"}},
		{"keyword empty set", domain.Condition{Kind: domain.ConditionKeyword, Category: "skills"}},
		{"composite no children", domain.Condition{Kind: domain.ConditionComposite, Op: domain.CompositeAnd}},
		{"composite bad op", domain.Condition{Kind: domain.ConditionComposite, Op: "xor", Children: []domain.Condition{{Kind: domain.ConditionKeyword, Keywords: []string{"x"}}}}},
		{"expression empty", domain.Condition{Kind: domain.ConditionExpression}},
		{"expression bad syntax", domain.Condition{Kind: domain.ConditionExpression, Expr: "((("}},
		{"expression non-bool", domain.Condition{Kind: domain.ConditionExpression, Expr: `1 + 1`}},
		{"composite malformed child", domain.Condition{
			Kind:     domain.ConditionComposite,
			Op:       domain.CompositeOr,
			Children: []domain.Condition{{Kind: "bogus"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := eval.Evaluate(defWith(tt.cond), snap)
			if !errors.Is(err, ErrMalformedCondition) {
				t.Errorf("err = %v, want ErrMalformedCondition", err)
			}
			if res.Matched {
				t.Error("malformed condition must not match")
			}
		})
	}
}

// TestEvaluate_Deterministic verifies repeated evaluation of the same
// (definition, snapshot) pair always agrees.
func TestEvaluate_Deterministic(t *testing.T) {
	snap := snapshotFixture()
	eval := New()
	def := defWith(domain.Condition{
		Kind:     domain.ConditionKeyword,
		Category: "skills",
		Keywords: []string{"critical"},
	})

	first, err := eval.Evaluate(def, snap)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for i := 0; i < 50; i++ {
		res, err := eval.Evaluate(def, snap)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if res.Matched != first.Matched {
			t.Fatalf("iteration %d: Matched flipped", i)
		}
	}
}
