package service

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// TemplateAdminStore is the template persistence surface for administration.
type TemplateAdminStore interface {
	Create(ctx context.Context, t *repository.WorkflowTemplate) error
	GetByID(ctx context.Context, id string) (*repository.WorkflowTemplate, error)
	GetByCode(ctx context.Context, code string) (*repository.WorkflowTemplate, error)
	List(ctx context.Context, entityType string, activeOnly bool) ([]*repository.WorkflowTemplate, error)
	Update(ctx context.Context, t *repository.WorkflowTemplate) error
	Deactivate(ctx context.Context, id string) error
}

// DelegateAdminStore is the delegation persistence surface for administration.
type DelegateAdminStore interface {
	Create(ctx context.Context, d *repository.ApprovalDelegate) error
	ListForDelegator(ctx context.Context, delegatorID string) ([]*repository.ApprovalDelegate, error)
	Delete(ctx context.Context, id string) error
}

// AdminService handles administrative CRUD over workflow templates and
// delegations.
type AdminService struct {
	templates TemplateAdminStore
	delegates DelegateAdminStore
	registry  *EntityRegistry
	log       *logger.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(templates TemplateAdminStore, delegates DelegateAdminStore, registry *EntityRegistry, log *logger.Logger) *AdminService {
	return &AdminService{
		templates: templates,
		delegates: delegates,
		registry:  registry,
		log:       log,
	}
}

// ── Templates ─────────────────────────────────────────────────────────────────

// CreateTemplate validates and persists a template with its steps.
func (s *AdminService) CreateTemplate(ctx context.Context, t *repository.WorkflowTemplate) (*repository.WorkflowTemplate, error) {
	if t.Code == "" {
		return nil, errors.InvalidInput("code", "template code is required")
	}
	if t.Name == "" {
		return nil, errors.InvalidInput("name", "template name is required")
	}
	if _, ok := s.registry.Resolve(t.EntityType); !ok {
		return nil, errors.InvalidInput("entity_type", fmt.Sprintf("unknown entity type %q", t.EntityType))
	}
	if err := ValidateSteps(t.Steps); err != nil {
		return nil, err
	}

	t.IsActive = true
	if err := s.templates.Create(ctx, t); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("template_id", t.ID).
		Str("code", t.Code).
		Int("steps", len(t.Steps)).
		Msg("Workflow template created")
	return t, nil
}

// GetTemplate retrieves a template by id or, when id is empty, by code.
func (s *AdminService) GetTemplate(ctx context.Context, id, code string) (*repository.WorkflowTemplate, error) {
	if id != "" {
		return s.templates.GetByID(ctx, id)
	}
	if code != "" {
		return s.templates.GetByCode(ctx, code)
	}
	return nil, errors.InvalidInput("id", "template id or code is required")
}

// ListTemplates lists templates filtered by entity type and active flag.
func (s *AdminService) ListTemplates(ctx context.Context, entityType string, activeOnly bool) ([]*repository.WorkflowTemplate, error) {
	return s.templates.List(ctx, entityType, activeOnly)
}

// UpdateTemplate changes a template's name and threshold. Steps are immutable.
func (s *AdminService) UpdateTemplate(ctx context.Context, id, name string, threshold *int64) (*repository.WorkflowTemplate, error) {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		t.Name = name
	}
	t.AutoApproveThreshold = threshold

	if err := s.templates.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeactivateTemplate soft-deletes a template.
func (s *AdminService) DeactivateTemplate(ctx context.Context, id string) error {
	if err := s.templates.Deactivate(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("template_id", id).Msg("Workflow template deactivated")
	return nil
}

// ── Delegations ───────────────────────────────────────────────────────────────

// CreateDelegate validates and persists a delegation grant.
func (s *AdminService) CreateDelegate(ctx context.Context, d *repository.ApprovalDelegate) (*repository.ApprovalDelegate, error) {
	if d.DelegatorID == "" || d.DelegateID == "" {
		return nil, errors.InvalidInput("delegate", "delegator and delegate are required")
	}
	if d.DelegatorID == d.DelegateID {
		return nil, errors.InvalidInput("delegate", "cannot delegate to oneself")
	}
	if d.EndDate.Before(d.StartDate) {
		return nil, errors.InvalidInput("end_date", "end date must not precede start date")
	}
	if d.WorkflowID != nil {
		if _, err := s.templates.GetByID(ctx, *d.WorkflowID); err != nil {
			return nil, err
		}
	}

	if err := s.delegates.Create(ctx, d); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("delegation_id", d.ID).
		Str("delegator", d.DelegatorID).
		Str("delegate", d.DelegateID).
		Msg("Delegation created")
	return d, nil
}

// ListDelegates returns all delegations granted by a user.
func (s *AdminService) ListDelegates(ctx context.Context, delegatorID string) ([]*repository.ApprovalDelegate, error) {
	if delegatorID == "" {
		return nil, errors.InvalidInput("delegator", "delegator is required")
	}
	return s.delegates.ListForDelegator(ctx, delegatorID)
}

// DeleteDelegate revokes a delegation grant.
func (s *AdminService) DeleteDelegate(ctx context.Context, id string) error {
	return s.delegates.Delete(ctx, id)
}

// ── Validation ────────────────────────────────────────────────────────────────

// ValidateSteps checks the step sequence invariants: orders start at one or
// above, strictly increase, and each policy is one of the five known
// variants with its value present where required.
func ValidateSteps(steps []*repository.WorkflowStep) error {
	prev := 0
	for i, step := range steps {
		if step.StepOrder < 1 {
			return errors.InvalidInput("step_order",
				fmt.Sprintf("step %d: order must be at least 1", i+1))
		}
		if step.StepOrder <= prev {
			return errors.InvalidInput("step_order",
				fmt.Sprintf("step %d: order %d is not strictly increasing", i+1, step.StepOrder))
		}
		prev = step.StepOrder

		if !step.Policy.Valid() {
			return errors.InvalidInput("approver_policy",
				fmt.Sprintf("step %d: unknown policy %q", i+1, step.Policy))
		}
		switch step.Policy {
		case repository.PolicyRole, repository.PolicyUser, repository.PolicyGroup:
			if step.PolicyValue == nil || *step.PolicyValue == "" {
				return errors.InvalidInput("approver_value",
					fmt.Sprintf("step %d: policy %s requires a value", i+1, step.Policy))
			}
		}
		if step.AutoApproveDays != nil && *step.AutoApproveDays < 1 {
			return errors.InvalidInput("auto_approve_days",
				fmt.Sprintf("step %d: deadline must be at least 1 day", i+1))
		}
	}
	return nil
}
