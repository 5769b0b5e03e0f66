package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// WorkflowRepository manages workflow templates and their step definitions.
// Template + step creation is always done together in a single transaction.
type WorkflowRepository struct {
	db *database.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts a template and its steps in one transaction.
func (r *WorkflowRepository) Create(ctx context.Context, t *WorkflowTemplate) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		tmplQuery := `
			INSERT INTO approval_workflows
			    (entity_type, code, name, auto_approve_threshold, is_active)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at
		`

		err := tx.QueryRow(ctx, tmplQuery,
			t.EntityType,
			t.Code,
			t.Name,
			t.AutoApproveThreshold,
			t.IsActive,
		).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create workflow template")
		}

		stepQuery := `
			INSERT INTO approval_workflow_steps
			    (workflow_id, step_order, approver_policy, approver_value,
			     can_reject, can_request_revision, requires_comment, auto_approve_days)
			VALUES ($1, $2, $3::approver_policy, $4,
			        $5, $6, $7, $8)
			RETURNING id, created_at, updated_at
		`

		for _, step := range t.Steps {
			step.WorkflowID = t.ID

			err := tx.QueryRow(ctx, stepQuery,
				step.WorkflowID,
				step.StepOrder,
				step.Policy,
				step.PolicyValue,
				step.CanReject,
				step.CanRequestRevision,
				step.RequiresComment,
				step.AutoApproveDays,
			).Scan(&step.ID, &step.CreatedAt, &step.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create workflow step")
			}
		}

		return nil
	})
}

// GetByID retrieves a template with its steps.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*WorkflowTemplate, error) {
	query := `
		SELECT id, entity_type, code, name, auto_approve_threshold,
		       is_active, created_at, updated_at
		FROM approval_workflows
		WHERE id = $1
	`

	t, err := r.scanTemplate(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("workflow_template", id)
	}
	if err != nil {
		return nil, err
	}
	return r.withSteps(ctx, t)
}

// GetByCode retrieves a template by its unique code, with its steps.
func (r *WorkflowRepository) GetByCode(ctx context.Context, code string) (*WorkflowTemplate, error) {
	query := `
		SELECT id, entity_type, code, name, auto_approve_threshold,
		       is_active, created_at, updated_at
		FROM approval_workflows
		WHERE code = $1
	`

	t, err := r.scanTemplate(r.db.QueryRow(ctx, query, code))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("workflow_template", code)
	}
	if err != nil {
		return nil, err
	}
	return r.withSteps(ctx, t)
}

// List returns templates, optionally filtered by entity type and active flag.
// Steps are not loaded for listings.
func (r *WorkflowRepository) List(ctx context.Context, entityType string, activeOnly bool) ([]*WorkflowTemplate, error) {
	query := `
		SELECT id, entity_type, code, name, auto_approve_threshold,
		       is_active, created_at, updated_at
		FROM approval_workflows
		WHERE ($1 = '' OR entity_type = $1)
	`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY entity_type ASC, code ASC"

	rows, err := r.db.Query(ctx, query, entityType)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list workflow templates")
	}
	defer rows.Close()

	var templates []*WorkflowTemplate
	for rows.Next() {
		t, err := r.scanTemplate(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow template")
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// Update persists name and threshold changes. Step definitions are immutable
// once created; a changed step sequence means a new template.
func (r *WorkflowRepository) Update(ctx context.Context, t *WorkflowTemplate) error {
	query := `
		UPDATE approval_workflows
		SET name                   = $2,
		    auto_approve_threshold = $3,
		    updated_at             = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query, t.ID, t.Name, t.AutoApproveThreshold).Scan(&t.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("workflow_template", t.ID)
	}
	return err
}

// Deactivate soft-deletes a template. Requests already bound to it keep working.
func (r *WorkflowRepository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE approval_workflows
		SET is_active  = FALSE,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("workflow_template", id)
	}
	return err
}

// ── internal ──────────────────────────────────────────────────────────────────

func (r *WorkflowRepository) withSteps(ctx context.Context, t *WorkflowTemplate) (*WorkflowTemplate, error) {
	query := `
		SELECT id, workflow_id, step_order, approver_policy, approver_value,
		       can_reject, can_request_revision, requires_comment,
		       auto_approve_days, created_at, updated_at
		FROM approval_workflow_steps
		WHERE workflow_id = $1
		ORDER BY step_order ASC
	`

	rows, err := r.db.Query(ctx, query, t.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get workflow steps")
	}
	defer rows.Close()

	for rows.Next() {
		s := &WorkflowStep{}
		err := rows.Scan(
			&s.ID,
			&s.WorkflowID,
			&s.StepOrder,
			&s.Policy,
			&s.PolicyValue,
			&s.CanReject,
			&s.CanRequestRevision,
			&s.RequiresComment,
			&s.AutoApproveDays,
			&s.CreatedAt,
			&s.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow step")
		}
		t.Steps = append(t.Steps, s)
	}
	return t, nil
}

type templateScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanTemplate(row templateScanner) (*WorkflowTemplate, error) {
	t := &WorkflowTemplate{}
	err := row.Scan(
		&t.ID,
		&t.EntityType,
		&t.Code,
		&t.Name,
		&t.AutoApproveThreshold,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
