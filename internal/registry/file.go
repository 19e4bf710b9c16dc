package registry

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// definitionFile is the YAML shape of a trigger definition file:
//
//	triggers:
//	  - type: skill_gaps_critical
//	    priority: 1
//	    target_module: lxp
//	    condition:
//	      kind: keyword
//	      category: skills
//	      keywords: [critical, urgent]
type definitionFile struct {
	Triggers []definitionSpec `yaml:"triggers" validate:"required,min=1,dive"`
}

type definitionSpec struct {
	ID           string           `yaml:"id"`
	Type         string           `yaml:"type" validate:"required"`
	TenantID     string           `yaml:"tenant_id"`
	Priority     int              `yaml:"priority" validate:"gte=0"`
	Disabled     bool             `yaml:"disabled"`
	TargetModule string           `yaml:"target_module" validate:"required"`
	Condition    domain.Condition `yaml:"condition"`
	Params       map[string]any   `yaml:"params"`
}

// FileSource loads trigger definitions from a YAML file.
type FileSource struct {
	path     string
	validate *validator.Validate
	clock    func() time.Time
}

// NewFileSource creates a source reading from path on every Load, so edits
// are picked up by the registry's refresh loop without a restart.
func NewFileSource(path string) *FileSource {
	return &FileSource{
		path:     path,
		validate: validator.New(),
		clock:    time.Now,
	}
}

func (s *FileSource) Load(ctx context.Context) ([]domain.TriggerDefinition, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read triggers file: %w", err)
	}

	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse triggers file: %w", err)
	}

	if err := s.validate.Struct(file); err != nil {
		return nil, fmt.Errorf("validate triggers file: %w", err)
	}

	now := s.clock().UTC()
	defs := make([]domain.TriggerDefinition, 0, len(file.Triggers))
	seen := make(map[string]struct{})

	for i, spec := range file.Triggers {
		def, err := spec.toDomain(now)
		if err != nil {
			return nil, fmt.Errorf("trigger %d (%s): %w", i, spec.Type, err)
		}
		scope := def.Type + "/" + def.TenantID.String()
		if _, dup := seen[scope]; dup {
			return nil, fmt.Errorf("trigger %d: duplicate type %q in the same tenant scope", i, def.Type)
		}
		seen[scope] = struct{}{}
		defs = append(defs, def)
	}

	return defs, nil
}

func (s definitionSpec) toDomain(now time.Time) (domain.TriggerDefinition, error) {
	def := domain.TriggerDefinition{
		Type:             s.Type,
		Priority:         s.Priority,
		Enabled:          !s.Disabled,
		Condition:        s.Condition,
		TargetModule:     s.TargetModule,
		ActionParameters: s.Params,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if s.ID != "" {
		id, err := uuid.Parse(s.ID)
		if err != nil {
			return domain.TriggerDefinition{}, fmt.Errorf("invalid id: %w", err)
		}
		def.ID = id
	} else {
		// Stable ID derived from the scope so reloads keep idempotency
		// tuples intact across restarts.
		def.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("trigger:"+s.Type+":"+s.TenantID))
	}

	if s.TenantID != "" {
		tenant, err := uuid.Parse(s.TenantID)
		if err != nil {
			return domain.TriggerDefinition{}, fmt.Errorf("invalid tenant_id: %w", err)
		}
		def.TenantID = tenant
	}

	if err := validateCondition(def.Condition); err != nil {
		return domain.TriggerDefinition{}, err
	}
	return def, nil
}

// validateCondition rejects structurally invalid conditions at load time.
// The evaluator would also reject them, but failing the load gives the
// operator an immediate error instead of per-snapshot warnings.
func validateCondition(c domain.Condition) error {
	switch c.Kind {
	case domain.ConditionThreshold:
		if c.Field == "" {
			return fmt.Errorf("threshold condition requires field")
		}
		switch c.Compare {
		case domain.CompareLT, domain.CompareLTE, domain.CompareGT, domain.CompareGTE, domain.CompareEQ:
		default:
			return fmt.Errorf("threshold condition has unknown comparator %q", c.Compare)
		}
	case domain.ConditionKeyword:
		if len(c.Keywords) == 0 {
			return fmt.Errorf("keyword condition requires keywords")
		}
	case domain.ConditionComposite:
		if c.Op != domain.CompositeAnd && c.Op != domain.CompositeOr {
			return fmt.Errorf("composite condition has unknown op %q", c.Op)
		}
		if len(c.Children) == 0 {
			return fmt.Errorf("composite condition requires children")
		}
		for i, child := range c.Children {
			if err := validateCondition(child); err != nil {
				return fmt.Errorf("child %d: %w", i, err)
			}
		}
	case domain.ConditionExpression:
		if c.Expr == "" {
			return fmt.Errorf("expression condition requires expr")
		}
	default:
		return fmt.Errorf("unknown condition kind %q", c.Kind)
	}
	return nil
}
