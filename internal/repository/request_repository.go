package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// RequestRepository manages approval request instances, their audit actions
// and the materialized per-step assignee set. Every state change is a single
// transaction guarded by a compare-and-set on (id, status, current_step), so
// two racing actions can never both advance the same request.
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Transition describes one CAS-guarded state change.
type Transition struct {
	RequestID    string
	FromStatuses []RequestStatus
	FromStep     int
	NewStatus    RequestStatus
	NewStep      int
	// TouchStepStartedAt resets the step age clock (set when entering a step).
	TouchStepStartedAt bool
	CompletedAt        *time.Time
	// Action is the audit entry persisted in the same transaction.
	Action *ApprovalAction
	// Assignees replaces the materialized assignee set for NewStep when
	// ReplaceAssignees is true. An empty slice with ReplaceAssignees set
	// clears the set (terminal transitions).
	Assignees        []string
	ReplaceAssignees bool
}

// Create inserts the request, its submit action and the first step's
// assignees in one transaction.
func (r *RequestRepository) Create(ctx context.Context, req *ApprovalRequest, action *ApprovalAction, assignees []string) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO approval_requests
			    (workflow_id, entity_type, entity_id, requester_id,
			     status, current_step, value, step_started_at, completed_at)
			VALUES ($1, $2, $3, $4,
			        $5::approval_request_status, $6, $7, NOW(), $8)
			RETURNING id, submitted_at, step_started_at, created_at, updated_at
		`

		err := tx.QueryRow(ctx, query,
			req.WorkflowID,
			req.EntityType,
			req.EntityID,
			req.RequesterID,
			req.Status,
			req.CurrentStep,
			req.Value,
			req.CompletedAt,
		).Scan(&req.ID, &req.SubmittedAt, &req.StepStartedAt, &req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval request")
		}

		if action != nil {
			action.RequestID = req.ID
			if err := insertAction(ctx, tx, action); err != nil {
				return err
			}
		}

		return insertAssignees(ctx, tx, req.ID, req.CurrentStep, assignees)
	})
}

// GetByID retrieves a request by its primary key.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*ApprovalRequest, error) {
	query := `
		SELECT id, workflow_id, entity_type, entity_id, requester_id,
		       status, current_step, value,
		       submitted_at, step_started_at, completed_at,
		       created_at, updated_at
		FROM approval_requests
		WHERE id = $1
	`

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_request", id)
	}
	return req, err
}

// Apply executes a transition. When the CAS guard matches no row the request
// changed under the caller and ErrCodeConcurrentModification is returned;
// no part of the transition is persisted in that case.
func (r *RequestRepository) Apply(ctx context.Context, t *Transition) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE approval_requests
			SET status          = $2::approval_request_status,
			    current_step    = $3,
			    step_started_at = CASE WHEN $4 THEN NOW() ELSE step_started_at END,
			    completed_at    = $5,
			    updated_at      = NOW()
			WHERE id = $1
			  AND status = ANY($6::approval_request_status[])
			  AND current_step = $7
			RETURNING id
		`

		from := make([]string, len(t.FromStatuses))
		for i, s := range t.FromStatuses {
			from[i] = string(s)
		}

		var returnedID string
		err := tx.QueryRow(ctx, query,
			t.RequestID,
			t.NewStatus,
			t.NewStep,
			t.TouchStepStartedAt,
			t.CompletedAt,
			from,
			t.FromStep,
		).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.New(errors.ErrCodeConcurrentModification,
				"request was modified by another action")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval request")
		}

		if t.Action != nil {
			t.Action.RequestID = t.RequestID
			if err := insertAction(ctx, tx, t.Action); err != nil {
				return err
			}
		}

		if t.ReplaceAssignees {
			if _, err := tx.Exec(ctx,
				`DELETE FROM approval_request_assignees WHERE request_id = $1`,
				t.RequestID,
			); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear request assignees")
			}
			if err := insertAssignees(ctx, tx, t.RequestID, t.NewStep, t.Assignees); err != nil {
				return err
			}
		}

		return nil
	})
}

// Reassign swaps one assignee for another on the current step, recording the
// reassign action in the same transaction. Guarded by the same CAS so the
// request must still be pending at stepOrder.
func (r *RequestRepository) Reassign(ctx context.Context, requestID string, stepOrder int, fromUser, toUser string, action *ApprovalAction) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var returnedID string
		err := tx.QueryRow(ctx, `
			UPDATE approval_requests
			SET updated_at = NOW()
			WHERE id = $1
			  AND status = 'pending'::approval_request_status
			  AND current_step = $2
			RETURNING id
		`, requestID, stepOrder).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.New(errors.ErrCodeConcurrentModification,
				"request was modified by another action")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock approval request")
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM approval_request_assignees
			WHERE request_id = $1 AND step_order = $2 AND user_id = $3
		`, requestID, stepOrder, fromUser); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to remove assignee")
		}

		if err := insertAssignees(ctx, tx, requestID, stepOrder, []string{toUser}); err != nil {
			return err
		}

		action.RequestID = requestID
		return insertAction(ctx, tx, action)
	})
}

// Assignees returns the materialized base approver set for a request step.
func (r *RequestRepository) Assignees(ctx context.Context, requestID string, stepOrder int) ([]string, error) {
	query := `
		SELECT user_id
		FROM approval_request_assignees
		WHERE request_id = $1 AND step_order = $2
		ORDER BY user_id ASC
	`

	rows, err := r.db.Query(ctx, query, requestID, stepOrder)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get request assignees")
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan assignee")
		}
		users = append(users, u)
	}
	return users, nil
}

// ListPendingForActor returns all pending requests whose current step the user
// may act on, directly or through a delegation active on the given day.
// Resolution happened at materialization time, so this is a pure SQL join.
func (r *RequestRepository) ListPendingForActor(ctx context.Context, userID string, day time.Time) ([]*ApprovalRequest, error) {
	query := `
		SELECT DISTINCT r.id, r.workflow_id, r.entity_type, r.entity_id, r.requester_id,
		       r.status, r.current_step, r.value,
		       r.submitted_at, r.step_started_at, r.completed_at,
		       r.created_at, r.updated_at
		FROM approval_requests r
		JOIN approval_request_assignees a
		  ON a.request_id = r.id AND a.step_order = r.current_step
		WHERE r.status = 'pending'::approval_request_status
		  AND (
		    a.user_id = $1
		    OR EXISTS (
		      SELECT 1 FROM approval_delegates d
		      WHERE d.delegate_id = $1
		        AND d.delegator_id = a.user_id
		        AND d.start_date <= $2::date
		        AND d.end_date   >= $2::date
		        AND (d.workflow_id IS NULL OR d.workflow_id = r.workflow_id)
		    )
		  )
		ORDER BY r.submitted_at ASC
	`

	rows, err := r.db.Query(ctx, query, userID, day)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending requests")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ListOverdue returns pending requests whose current step carries an SLA
// deadline that has elapsed as of now.
func (r *RequestRepository) ListOverdue(ctx context.Context, now time.Time) ([]*OverdueRequest, error) {
	query := `
		SELECT r.id, r.workflow_id, r.entity_type, r.entity_id, r.requester_id,
		       r.status, r.current_step, r.value,
		       r.submitted_at, r.step_started_at, r.completed_at,
		       r.created_at, r.updated_at,
		       s.id, s.workflow_id, s.step_order, s.approver_policy, s.approver_value,
		       s.can_reject, s.can_request_revision, s.requires_comment,
		       s.auto_approve_days, s.created_at, s.updated_at
		FROM approval_requests r
		JOIN approval_workflow_steps s
		  ON s.workflow_id = r.workflow_id AND s.step_order = r.current_step
		WHERE r.status = 'pending'::approval_request_status
		  AND s.auto_approve_days IS NOT NULL
		  AND r.step_started_at + make_interval(days => s.auto_approve_days) <= $1
		ORDER BY r.step_started_at ASC
	`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list overdue requests")
	}
	defer rows.Close()

	var overdue []*OverdueRequest
	for rows.Next() {
		req := &ApprovalRequest{}
		step := &WorkflowStep{}
		err := rows.Scan(
			&req.ID, &req.WorkflowID, &req.EntityType, &req.EntityID, &req.RequesterID,
			&req.Status, &req.CurrentStep, &req.Value,
			&req.SubmittedAt, &req.StepStartedAt, &req.CompletedAt,
			&req.CreatedAt, &req.UpdatedAt,
			&step.ID, &step.WorkflowID, &step.StepOrder, &step.Policy, &step.PolicyValue,
			&step.CanReject, &step.CanRequestRevision, &step.RequiresComment,
			&step.AutoApproveDays, &step.CreatedAt, &step.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan overdue request")
		}
		overdue = append(overdue, &OverdueRequest{Request: req, Step: step})
	}
	return overdue, nil
}

// ── shared transaction helpers ────────────────────────────────────────────────

func insertAction(ctx context.Context, tx pgx.Tx, a *ApprovalAction) error {
	var metadataJSON []byte
	if a.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(a.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal action metadata")
		}
	}

	query := `
		INSERT INTO approval_actions
		    (request_id, step_order, kind, actor_id, comment, target_user, metadata)
		VALUES ($1, $2, $3::approval_action_kind, $4, $5, $6, $7)
		RETURNING id, performed_at
	`

	err := tx.QueryRow(ctx, query,
		a.RequestID,
		a.StepOrder,
		a.Kind,
		a.ActorID,
		a.Comment,
		a.TargetUser,
		metadataJSON,
	).Scan(&a.ID, &a.PerformedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append approval action")
	}
	return nil
}

func insertAssignees(ctx context.Context, tx pgx.Tx, requestID string, stepOrder int, users []string) error {
	query := `
		INSERT INTO approval_request_assignees (request_id, step_order, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`

	for _, u := range users {
		if _, err := tx.Exec(ctx, query, requestID, stepOrder, u); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert assignee")
		}
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type requestScanner interface {
	Scan(dest ...any) error
}

func (r *RequestRepository) scanRequest(row requestScanner) (*ApprovalRequest, error) {
	req := &ApprovalRequest{}
	err := row.Scan(
		&req.ID,
		&req.WorkflowID,
		&req.EntityType,
		&req.EntityID,
		&req.RequesterID,
		&req.Status,
		&req.CurrentStep,
		&req.Value,
		&req.SubmittedAt,
		&req.StepStartedAt,
		&req.CompletedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *RequestRepository) scanRows(rows pgx.Rows) ([]*ApprovalRequest, error) {
	var requests []*ApprovalRequest
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval request")
		}
		requests = append(requests, req)
	}
	return requests, nil
}
