package modules

import (
	"context"
	"fmt"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// Built-in capability modules. Their internal business logic lives in the
// respective backend services; these handlers translate a trigger into the
// module's entry action and report what follow-up triggers it implies.

// Module identifiers as used in definition target_module fields.
const (
	ModuleLXP         = "lxp"
	ModuleHiring      = "hiring"
	ModulePerformance = "performance"
	ModuleTalent      = "talent"
	ModuleOnboarding  = "onboarding"
	ModuleCompliance  = "compliance"

	// ModuleWebhook delivers to external modules over HTTP; see WebhookHandler.
	ModuleWebhook = "webhook"
)

// RegisterBuiltins wires every built-in module into the registry.
func RegisterBuiltins(r *Registry) error {
	builtins := map[string]Handler{
		ModuleLXP:         HandlerFunc(handleLXP),
		ModuleHiring:      HandlerFunc(handleHiring),
		ModulePerformance: HandlerFunc(handlePerformance),
		ModuleTalent:      HandlerFunc(handleTalent),
		ModuleOnboarding:  HandlerFunc(handleOnboarding),
		ModuleCompliance:  HandlerFunc(handleCompliance),
	}
	for module, h := range builtins {
		if err := r.Register(module, h); err != nil {
			return fmt.Errorf("builtin %s: %w", module, err)
		}
	}
	return nil
}

// handleLXP starts a training program in the learning platform.
func handleLXP(ctx context.Context, tc domain.TriggerContext) domain.Outcome {
	program := "general_upskilling"
	if p, ok := tc.Params["program"].(string); ok && p != "" {
		program = p
	}

	return domain.Outcome{
		Success: true,
		Action:  "initiate_training_program",
		Data: map[string]any{
			"program": program,
			"tenant":  tc.TenantID.String(),
			"trigger": tc.TriggerType,
		},
	}
}

// handleHiring opens a requisition; a filled requisition implies onboarding
// preparation, which it requests as a follow-up trigger.
func handleHiring(ctx context.Context, tc domain.TriggerContext) domain.Outcome {
	return domain.Outcome{
		Success: true,
		Action:  "open_requisition",
		Data: map[string]any{
			"tenant":  tc.TenantID.String(),
			"trigger": tc.TriggerType,
		},
		NextTriggers: []string{"onboarding_prepare"},
	}
}

// handlePerformance schedules a performance review cycle.
func handlePerformance(ctx context.Context, tc domain.TriggerContext) domain.Outcome {
	return domain.Outcome{
		Success: true,
		Action:  "schedule_review_cycle",
		Data: map[string]any{
			"tenant": tc.TenantID.String(),
		},
	}
}

// handleTalent opens a succession-planning assessment.
func handleTalent(ctx context.Context, tc domain.TriggerContext) domain.Outcome {
	return domain.Outcome{
		Success: true,
		Action:  "start_succession_assessment",
		Data: map[string]any{
			"tenant": tc.TenantID.String(),
		},
	}
}

// handleOnboarding prepares an onboarding plan.
func handleOnboarding(ctx context.Context, tc domain.TriggerContext) domain.Outcome {
	return domain.Outcome{
		Success: true,
		Action:  "prepare_onboarding_plan",
		Data: map[string]any{
			"tenant": tc.TenantID.String(),
		},
	}
}

// handleCompliance schedules mandatory compliance training.
func handleCompliance(ctx context.Context, tc domain.TriggerContext) domain.Outcome {
	return domain.Outcome{
		Success: true,
		Action:  "schedule_compliance_training",
		Data: map[string]any{
			"tenant": tc.TenantID.String(),
		},
	}
}
