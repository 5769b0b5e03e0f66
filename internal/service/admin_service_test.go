package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// ── fakes ─────────────────────────────────────────────────────────────────────

type fakeTemplateAdmin struct {
	fakeTemplates
	seq int
}

func (f *fakeTemplateAdmin) Create(_ context.Context, t *repository.WorkflowTemplate) error {
	f.seq++
	t.ID = "wf-" + string(rune('0'+f.seq))
	f.templates[t.Code] = t
	return nil
}

func (f *fakeTemplateAdmin) List(_ context.Context, entityType string, activeOnly bool) ([]*repository.WorkflowTemplate, error) {
	var out []*repository.WorkflowTemplate
	for _, t := range f.templates {
		if entityType != "" && t.EntityType != entityType {
			continue
		}
		if activeOnly && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTemplateAdmin) Update(_ context.Context, t *repository.WorkflowTemplate) error {
	if _, ok := f.templates[t.Code]; !ok {
		return errors.NotFound("workflow_template", t.ID)
	}
	f.templates[t.Code] = t
	return nil
}

func (f *fakeTemplateAdmin) Deactivate(_ context.Context, id string) error {
	for _, t := range f.templates {
		if t.ID == id {
			t.IsActive = false
			return nil
		}
	}
	return errors.NotFound("workflow_template", id)
}

type fakeDelegateAdmin struct {
	seq  int
	rows map[string]*repository.ApprovalDelegate
}

func (f *fakeDelegateAdmin) Create(_ context.Context, d *repository.ApprovalDelegate) error {
	f.seq++
	d.ID = "del-" + string(rune('0'+f.seq))
	f.rows[d.ID] = d
	return nil
}

func (f *fakeDelegateAdmin) ListForDelegator(_ context.Context, delegatorID string) ([]*repository.ApprovalDelegate, error) {
	var out []*repository.ApprovalDelegate
	for _, d := range f.rows {
		if d.DelegatorID == delegatorID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDelegateAdmin) Delete(_ context.Context, id string) error {
	if _, ok := f.rows[id]; !ok {
		return errors.NotFound("approval_delegate", id)
	}
	delete(f.rows, id)
	return nil
}

func newAdminService() (*AdminService, *fakeTemplateAdmin, *fakeDelegateAdmin) {
	templates := &fakeTemplateAdmin{
		fakeTemplates: fakeTemplates{templates: make(map[string]*repository.WorkflowTemplate)},
	}
	delegates := &fakeDelegateAdmin{rows: make(map[string]*repository.ApprovalDelegate)}

	registry := NewEntityRegistry()
	registry.Register("expense.claim", EntityModule{Module: "expense"})

	log := &logger.Logger{Logger: zerolog.Nop()}
	return NewAdminService(templates, delegates, registry, log), templates, delegates
}

// ── Templates ─────────────────────────────────────────────────────────────────

func TestCreateTemplate_Success(t *testing.T) {
	svc, _, _ := newAdminService()

	created, err := svc.CreateTemplate(context.Background(), &repository.WorkflowTemplate{
		Code:       "expense-default",
		Name:       "Expense approval",
		EntityType: "expense.claim",
		Steps: []*repository.WorkflowStep{
			{StepOrder: 1, Policy: repository.PolicySupervisor},
			{StepOrder: 2, Policy: repository.PolicyRole, PolicyValue: strPtr("finance")},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)
}

func TestCreateTemplate_UnknownEntityType(t *testing.T) {
	svc, _, _ := newAdminService()

	_, err := svc.CreateTemplate(context.Background(), &repository.WorkflowTemplate{
		Code:       "x",
		Name:       "X",
		EntityType: "unknown.kind",
		Steps:      []*repository.WorkflowStep{{StepOrder: 1, Policy: repository.PolicySupervisor}},
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestUpdateTemplate_NameAndThreshold(t *testing.T) {
	svc, templates, _ := newAdminService()
	templates.templates["expense-default"] = twoStepTemplate()

	updated, err := svc.UpdateTemplate(context.Background(), "wf-1", "Expenses v2", int64Ptr(10000))
	require.NoError(t, err)
	assert.Equal(t, "Expenses v2", updated.Name)
	require.NotNil(t, updated.AutoApproveThreshold)
	assert.Equal(t, int64(10000), *updated.AutoApproveThreshold)
}

func TestDeactivateTemplate(t *testing.T) {
	svc, templates, _ := newAdminService()
	templates.templates["expense-default"] = twoStepTemplate()

	require.NoError(t, svc.DeactivateTemplate(context.Background(), "wf-1"))
	assert.False(t, templates.templates["expense-default"].IsActive)

	err := svc.DeactivateTemplate(context.Background(), "wf-unknown")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

// ── Step validation ───────────────────────────────────────────────────────────

func TestValidateSteps(t *testing.T) {
	cases := []struct {
		name    string
		steps   []*repository.WorkflowStep
		wantErr bool
	}{
		{
			name: "valid ascending orders",
			steps: []*repository.WorkflowStep{
				{StepOrder: 1, Policy: repository.PolicySupervisor},
				{StepOrder: 3, Policy: repository.PolicyUser, PolicyValue: strPtr("cfo")},
			},
		},
		{
			name:    "order below one",
			steps:   []*repository.WorkflowStep{{StepOrder: 0, Policy: repository.PolicySupervisor}},
			wantErr: true,
		},
		{
			name: "duplicate order",
			steps: []*repository.WorkflowStep{
				{StepOrder: 1, Policy: repository.PolicySupervisor},
				{StepOrder: 1, Policy: repository.PolicyDepartmentHead},
			},
			wantErr: true,
		},
		{
			name: "descending order",
			steps: []*repository.WorkflowStep{
				{StepOrder: 2, Policy: repository.PolicySupervisor},
				{StepOrder: 1, Policy: repository.PolicyDepartmentHead},
			},
			wantErr: true,
		},
		{
			name:    "unknown policy",
			steps:   []*repository.WorkflowStep{{StepOrder: 1, Policy: "committee"}},
			wantErr: true,
		},
		{
			name:    "role without value",
			steps:   []*repository.WorkflowStep{{StepOrder: 1, Policy: repository.PolicyRole}},
			wantErr: true,
		},
		{
			name:    "group with empty value",
			steps:   []*repository.WorkflowStep{{StepOrder: 1, Policy: repository.PolicyGroup, PolicyValue: strPtr("")}},
			wantErr: true,
		},
		{
			name:    "deadline below one day",
			steps:   []*repository.WorkflowStep{{StepOrder: 1, Policy: repository.PolicySupervisor, AutoApproveDays: intPtr(0)}},
			wantErr: true,
		},
		{
			name:  "empty sequence is valid here",
			steps: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSteps(tc.steps)
			if tc.wantErr {
				assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ── Delegations ───────────────────────────────────────────────────────────────

func TestCreateDelegate_Success(t *testing.T) {
	svc, _, _ := newAdminService()

	created, err := svc.CreateDelegate(context.Background(), &repository.ApprovalDelegate{
		DelegatorID: "bob",
		DelegateID:  "carol",
		StartDate:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
}

func TestCreateDelegate_SelfDelegation(t *testing.T) {
	svc, _, _ := newAdminService()

	_, err := svc.CreateDelegate(context.Background(), &repository.ApprovalDelegate{
		DelegatorID: "bob",
		DelegateID:  "bob",
		StartDate:   time.Now(),
		EndDate:     time.Now().AddDate(0, 0, 7),
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestCreateDelegate_InvertedDates(t *testing.T) {
	svc, _, _ := newAdminService()

	_, err := svc.CreateDelegate(context.Background(), &repository.ApprovalDelegate{
		DelegatorID: "bob",
		DelegateID:  "carol",
		StartDate:   time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestCreateDelegate_UnknownWorkflowScope(t *testing.T) {
	svc, _, _ := newAdminService()

	_, err := svc.CreateDelegate(context.Background(), &repository.ApprovalDelegate{
		DelegatorID: "bob",
		DelegateID:  "carol",
		WorkflowID:  strPtr("wf-missing"),
		StartDate:   time.Now(),
		EndDate:     time.Now().AddDate(0, 0, 7),
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestDeleteDelegate(t *testing.T) {
	svc, _, delegates := newAdminService()

	created, err := svc.CreateDelegate(context.Background(), &repository.ApprovalDelegate{
		DelegatorID: "bob",
		DelegateID:  "carol",
		StartDate:   time.Now(),
		EndDate:     time.Now().AddDate(0, 0, 7),
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDelegate(context.Background(), created.ID))
	assert.Empty(t, delegates.rows)

	err = svc.DeleteDelegate(context.Background(), created.ID)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}
