package repository

import (
	"context"
	"time"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// DelegateRepository manages temporal delegations of approval authority.
type DelegateRepository struct {
	db *database.DB
}

// NewDelegateRepository creates a new DelegateRepository.
func NewDelegateRepository(db *database.DB) *DelegateRepository {
	return &DelegateRepository{db: db}
}

// Create inserts a delegation. Date-range validation happens in the service.
func (r *DelegateRepository) Create(ctx context.Context, d *ApprovalDelegate) error {
	query := `
		INSERT INTO approval_delegates
		    (delegator_id, delegate_id, workflow_id, start_date, end_date, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	return r.db.QueryRow(ctx, query,
		d.DelegatorID,
		d.DelegateID,
		d.WorkflowID,
		d.StartDate,
		d.EndDate,
		d.Reason,
	).Scan(&d.ID, &d.CreatedAt)
}

// ListForDelegator returns all delegations granted by a user, newest first.
func (r *DelegateRepository) ListForDelegator(ctx context.Context, delegatorID string) ([]*ApprovalDelegate, error) {
	query := `
		SELECT id, delegator_id, delegate_id, workflow_id,
		       start_date, end_date, reason, created_at
		FROM approval_delegates
		WHERE delegator_id = $1
		ORDER BY start_date DESC, created_at DESC
	`

	rows, err := r.db.Query(ctx, query, delegatorID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list delegations")
	}
	defer rows.Close()

	var delegates []*ApprovalDelegate
	for rows.Next() {
		d := &ApprovalDelegate{}
		err := rows.Scan(
			&d.ID,
			&d.DelegatorID,
			&d.DelegateID,
			&d.WorkflowID,
			&d.StartDate,
			&d.EndDate,
			&d.Reason,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan delegation")
		}
		delegates = append(delegates, d)
	}
	return delegates, nil
}

// FindActiveDelegators returns the users who have an active, scope-matching
// delegation to delegateID on the given day. Overlapping delegations union;
// the result is de-duplicated by the DISTINCT.
func (r *DelegateRepository) FindActiveDelegators(ctx context.Context, delegateID, workflowID string, day time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT delegator_id
		FROM approval_delegates
		WHERE delegate_id = $1
		  AND start_date <= $3::date
		  AND end_date   >= $3::date
		  AND (workflow_id IS NULL OR workflow_id = $2)
	`

	rows, err := r.db.Query(ctx, query, delegateID, workflowID, day)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find active delegators")
	}
	defer rows.Close()

	var delegators []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan delegator")
		}
		delegators = append(delegators, u)
	}
	return delegators, nil
}

// Delete removes a delegation grant.
func (r *DelegateRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM approval_delegates WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete delegation")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("approval_delegate", id)
	}
	return nil
}
