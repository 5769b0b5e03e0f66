package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// ActionRepository reads the immutable audit trail. Writes happen inside the
// RequestRepository transactions; the table has a delete-prevention trigger,
// so no mutation methods are exposed here.
type ActionRepository struct {
	db *database.DB
}

// NewActionRepository creates a new ActionRepository.
func NewActionRepository(db *database.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

// ListByRequest returns the full action history for a request, oldest first.
func (r *ActionRepository) ListByRequest(ctx context.Context, requestID string) ([]*ApprovalAction, error) {
	query := `
		SELECT id, request_id, step_order, kind, actor_id,
		       comment, target_user, metadata, performed_at
		FROM approval_actions
		WHERE request_id = $1
		ORDER BY performed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get action history")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type actionScanner interface {
	Scan(dest ...any) error
}

func (r *ActionRepository) scanAction(sc actionScanner) (*ApprovalAction, error) {
	a := &ApprovalAction{}
	var metadataJSON []byte

	err := sc.Scan(
		&a.ID,
		&a.RequestID,
		&a.StepOrder,
		&a.Kind,
		&a.ActorID,
		&a.Comment,
		&a.TargetUser,
		&metadataJSON,
		&a.PerformedAt,
	)
	if err != nil {
		return nil, err
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &a.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal action metadata")
		}
	}
	return a, nil
}

func (r *ActionRepository) scanRows(rows pgx.Rows) ([]*ApprovalAction, error) {
	var actions []*ApprovalAction
	for rows.Next() {
		a, err := r.scanAction(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval action")
		}
		actions = append(actions, a)
	}
	return actions, nil
}
