package modules

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// TestRegistry_RegisterAndResolve verifies lookups return the registered
// handler and unknown modules fail with ErrUnknownModule.
func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()

	h := HandlerFunc(func(ctx context.Context, tc domain.TriggerContext) domain.Outcome {
		return domain.Outcome{Success: true, Action: "noop"}
	})
	if err := r.Register("lxp", h); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Resolve("lxp")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	out := got.Handle(context.Background(), domain.TriggerContext{})
	if !out.Success || out.Action != "noop" {
		t.Errorf("outcome = %+v", out)
	}

	if _, err := r.Resolve("ghost"); !errors.Is(err, ErrUnknownModule) {
		t.Errorf("Resolve(ghost) err = %v, want ErrUnknownModule", err)
	}
}

// TestRegistry_RejectsDuplicates verifies duplicate registration fails
// instead of silently replacing the earlier handler.
func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	h := HandlerFunc(func(ctx context.Context, tc domain.TriggerContext) domain.Outcome {
		return domain.Outcome{Success: true}
	})

	if err := r.Register("hiring", h); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register("hiring", h); err == nil {
		t.Error("duplicate Register succeeded, want error")
	}
	if err := r.Register("", h); err == nil {
		t.Error("empty module identifier accepted")
	}
	if err := r.Register("talent", nil); err == nil {
		t.Error("nil handler accepted")
	}
}

// TestRegisterBuiltins verifies every built-in module resolves and the lxp
// handler produces the training-program action.
func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}

	want := []string{
		ModuleCompliance, ModuleHiring, ModuleLXP,
		ModuleOnboarding, ModulePerformance, ModuleTalent,
	}
	got := r.Modules()
	if len(got) != len(want) {
		t.Fatalf("Modules() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Modules()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	lxp, err := r.Resolve(ModuleLXP)
	if err != nil {
		t.Fatalf("Resolve(lxp): %v", err)
	}
	out := lxp.Handle(context.Background(), domain.TriggerContext{
		TenantID:    uuid.New(),
		TriggerType: "skill_gaps_critical",
		Params:      map[string]any{"program": "technical"},
	})
	if !out.Success || out.Action != "initiate_training_program" {
		t.Errorf("lxp outcome = %+v", out)
	}
	if out.Data["program"] != "technical" {
		t.Errorf("lxp program = %v, want technical", out.Data["program"])
	}
}

// TestBuiltin_HiringChains verifies the hiring module requests onboarding
// preparation as a follow-up trigger.
func TestBuiltin_HiringChains(t *testing.T) {
	out := handleHiring(context.Background(), domain.TriggerContext{TenantID: uuid.New()})
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if len(out.NextTriggers) != 1 || out.NextTriggers[0] != "onboarding_prepare" {
		t.Errorf("NextTriggers = %v", out.NextTriggers)
	}
}
