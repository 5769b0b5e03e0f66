package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/metrics"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// SystemActor is the acting identity recorded for engine-initiated actions.
const SystemActor = "system:sla-auto-approval"

const (
	autoApproveComment     = "auto-approved: step exceeded SLA deadline"
	thresholdBypassComment = "auto-approved: value below workflow threshold"
)

// TemplateStore is the template lookup surface the engine needs.
type TemplateStore interface {
	GetByID(ctx context.Context, id string) (*repository.WorkflowTemplate, error)
	GetByCode(ctx context.Context, code string) (*repository.WorkflowTemplate, error)
}

// RequestStore is the request persistence surface the engine needs.
type RequestStore interface {
	Create(ctx context.Context, req *repository.ApprovalRequest, action *repository.ApprovalAction, assignees []string) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalRequest, error)
	Apply(ctx context.Context, t *repository.Transition) error
	Reassign(ctx context.Context, requestID string, stepOrder int, fromUser, toUser string, action *repository.ApprovalAction) error
	Assignees(ctx context.Context, requestID string, stepOrder int) ([]string, error)
	ListPendingForActor(ctx context.Context, userID string, day time.Time) ([]*repository.ApprovalRequest, error)
	ListOverdue(ctx context.Context, now time.Time) ([]*repository.OverdueRequest, error)
}

// ActionStore reads the audit trail.
type ActionStore interface {
	ListByRequest(ctx context.Context, requestID string) ([]*repository.ApprovalAction, error)
}

// DelegateStore answers delegation authorization queries.
type DelegateStore interface {
	FindActiveDelegators(ctx context.Context, delegateID, workflowID string, day time.Time) ([]string, error)
}

// DirectoryClient resolves organizational data from the HR collaborator.
type DirectoryClient interface {
	GetSupervisor(ctx context.Context, userID string) (string, error)
	GetDepartmentHead(ctx context.Context, userID string) (string, error)
	GetRoleMembers(ctx context.Context, role string) ([]string, error)
	GetGroupMembers(ctx context.Context, group string) ([]string, error)
}

// Notifier publishes approval workflow events. Implementations must be
// non-fatal: a failed publish never interrupts the approval operation.
type Notifier interface {
	PublishApprovalEvent(ctx context.Context, eventType string, req *repository.ApprovalRequest, actorID string, recipients []string, payload map[string]interface{})
}

// Engine is the approval request state machine. One instance per process;
// all per-request serialization happens at the data layer via CAS.
type Engine struct {
	templates TemplateStore
	requests  RequestStore
	actions   ActionStore
	delegates DelegateStore
	resolver  *Resolver
	registry  *EntityRegistry
	notifier  Notifier
	log       *logger.Logger
	now       func() time.Time
}

// NewEngine creates the engine. notifier may be nil.
func NewEngine(
	templates TemplateStore,
	requests RequestStore,
	actions ActionStore,
	delegates DelegateStore,
	directory DirectoryClient,
	registry *EntityRegistry,
	notifier Notifier,
	log *logger.Logger,
) *Engine {
	return &Engine{
		templates: templates,
		requests:  requests,
		actions:   actions,
		delegates: delegates,
		resolver:  NewResolver(directory),
		registry:  registry,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// SubmitInput is the payload for Submit.
type SubmitInput struct {
	TemplateCode string
	EntityType   string
	EntityID     string
	RequesterID  string
	Value        *int64
}

// Submit creates an approval request for a business record. When the
// template defines an auto-approve threshold and the submitted value falls
// below it, the request is created directly in approved status with a system
// audit action; otherwise it starts pending at the first step.
func (e *Engine) Submit(ctx context.Context, in *SubmitInput) (*repository.ApprovalRequest, error) {
	if in.EntityType == "" || in.EntityID == "" {
		return nil, errors.InvalidInput("entity", "entity_type and entity_id are required")
	}
	if in.RequesterID == "" {
		return nil, errors.InvalidInput("requester", "requester is required")
	}
	if _, ok := e.registry.Resolve(in.EntityType); !ok {
		return nil, errors.InvalidInput("entity_type", fmt.Sprintf("unknown entity type %q", in.EntityType))
	}

	tmpl, err := e.templates.GetByCode(ctx, in.TemplateCode)
	if err != nil {
		return nil, err
	}
	if !tmpl.IsActive {
		return nil, errors.New(errors.ErrCodeInvalidTemplate,
			fmt.Sprintf("workflow template %s is deactivated", tmpl.Code))
	}
	if len(tmpl.Steps) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidTemplate,
			fmt.Sprintf("workflow template %s has no steps", tmpl.Code))
	}
	if tmpl.EntityType != in.EntityType {
		return nil, errors.InvalidInput("entity_type",
			fmt.Sprintf("template %s governs %s, not %s", tmpl.Code, tmpl.EntityType, in.EntityType))
	}

	if in.Value != nil && tmpl.AutoApproveThreshold != nil && *in.Value < *tmpl.AutoApproveThreshold {
		return e.submitBelowThreshold(ctx, in, tmpl)
	}

	first := tmpl.Steps[0]
	assignees, err := e.resolver.Resolve(ctx, first, in.RequesterID)
	if err != nil {
		return nil, err
	}
	if len(assignees) == 0 {
		e.reportStalledStep(tmpl, first, in.RequesterID)
	}

	req := &repository.ApprovalRequest{
		WorkflowID:  tmpl.ID,
		EntityType:  in.EntityType,
		EntityID:    in.EntityID,
		RequesterID: in.RequesterID,
		Status:      repository.StatusPending,
		CurrentStep: first.StepOrder,
		Value:       in.Value,
	}
	action := &repository.ApprovalAction{
		StepOrder: first.StepOrder,
		Kind:      repository.ActionSubmit,
		ActorID:   in.RequesterID,
		Metadata:  map[string]interface{}{"stalled": len(assignees) == 0},
	}

	if err := e.requests.Create(ctx, req, action, assignees); err != nil {
		return nil, err
	}

	metrics.SubmissionsTotal.WithLabelValues("pending").Inc()
	e.log.Info().
		Str("request_id", req.ID).
		Str("workflow", tmpl.Code).
		Str("entity_type", req.EntityType).
		Int("step", req.CurrentStep).
		Msg("Approval request submitted")

	e.notify(ctx, "approval_required", req, in.RequesterID, assignees, nil)
	return req, nil
}

// submitBelowThreshold creates the request directly in approved status.
func (e *Engine) submitBelowThreshold(ctx context.Context, in *SubmitInput, tmpl *repository.WorkflowTemplate) (*repository.ApprovalRequest, error) {
	now := e.now()
	comment := thresholdBypassComment
	req := &repository.ApprovalRequest{
		WorkflowID:  tmpl.ID,
		EntityType:  in.EntityType,
		EntityID:    in.EntityID,
		RequesterID: in.RequesterID,
		Status:      repository.StatusApproved,
		CurrentStep: tmpl.Steps[0].StepOrder,
		Value:       in.Value,
		CompletedAt: &now,
	}
	action := &repository.ApprovalAction{
		StepOrder: req.CurrentStep,
		Kind:      repository.ActionApprove,
		ActorID:   SystemActor,
		Comment:   &comment,
		Metadata: map[string]interface{}{
			"threshold": *tmpl.AutoApproveThreshold,
			"value":     *in.Value,
		},
	}

	if err := e.requests.Create(ctx, req, action, nil); err != nil {
		return nil, err
	}

	metrics.SubmissionsTotal.WithLabelValues("auto_approved").Inc()
	e.log.Info().
		Str("request_id", req.ID).
		Str("workflow", tmpl.Code).
		Int64("value", *in.Value).
		Msg("Approval request auto-approved below threshold")

	e.notify(ctx, "request_approved", req, SystemActor, []string{in.RequesterID}, map[string]interface{}{"reason": "below_threshold"})
	return req, nil
}

// TakeAction applies an approve, reject, revision or cancel action to a
// request. The caller must be authorized for the current step, directly or
// through an active delegation; cancel is reserved for the requester.
func (e *Engine) TakeAction(ctx context.Context, requestID, actorID string, kind repository.ActionKind, comment string) (*repository.ApprovalRequest, error) {
	req, err := e.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if kind == repository.ActionCancel {
		return e.cancel(ctx, req, actorID, comment)
	}

	if req.Status != repository.StatusPending {
		return nil, errors.New(errors.ErrCodeInvalidState,
			fmt.Sprintf("request is not pending (status: %s)", req.Status))
	}

	tmpl, err := e.templates.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	step := tmpl.StepAt(req.CurrentStep)
	if step == nil {
		return nil, errors.New(errors.ErrCodeInvalidState,
			fmt.Sprintf("no step definition at position %d", req.CurrentStep))
	}

	if err := e.authorize(ctx, req, actorID); err != nil {
		return nil, err
	}
	if step.RequiresComment && comment == "" {
		return nil, errors.New(errors.ErrCodeCommentRequired,
			fmt.Sprintf("step %d requires a comment", step.StepOrder))
	}

	switch kind {
	case repository.ActionApprove:
		return e.approve(ctx, req, tmpl, step, actorID, comment)
	case repository.ActionReject:
		if !step.CanReject {
			return nil, errors.New(errors.ErrCodeActionNotAllowed,
				fmt.Sprintf("step %d does not allow rejection", step.StepOrder))
		}
		return e.terminate(ctx, req, repository.StatusRejected, repository.ActionReject, actorID, comment)
	case repository.ActionRevision:
		if !step.CanRequestRevision {
			return nil, errors.New(errors.ErrCodeActionNotAllowed,
				fmt.Sprintf("step %d does not allow revision requests", step.StepOrder))
		}
		return e.requestRevision(ctx, req, actorID, comment)
	default:
		return nil, errors.InvalidInput("kind", fmt.Sprintf("unsupported action kind %q", kind))
	}
}

// approve advances to the next step or completes the request.
func (e *Engine) approve(ctx context.Context, req *repository.ApprovalRequest, tmpl *repository.WorkflowTemplate, step *repository.WorkflowStep, actorID, comment string) (*repository.ApprovalRequest, error) {
	action := &repository.ApprovalAction{
		StepOrder: step.StepOrder,
		Kind:      repository.ActionApprove,
		ActorID:   actorID,
		Comment:   optional(comment),
	}

	next := tmpl.NextStep(step.StepOrder)
	if next == nil {
		return e.complete(ctx, req, action, "request_approved", actorID)
	}

	assignees, err := e.resolver.Resolve(ctx, next, req.RequesterID)
	if err != nil {
		return nil, err
	}
	if len(assignees) == 0 {
		e.reportStalledStep(tmpl, next, req.RequesterID)
		action.Metadata = map[string]interface{}{"stalled": true}
	}

	t := &repository.Transition{
		RequestID:          req.ID,
		FromStatuses:       []repository.RequestStatus{repository.StatusPending},
		FromStep:           step.StepOrder,
		NewStatus:          repository.StatusPending,
		NewStep:            next.StepOrder,
		TouchStepStartedAt: true,
		Action:             action,
		Assignees:          assignees,
		ReplaceAssignees:   true,
	}
	if err := e.requests.Apply(ctx, t); err != nil {
		return nil, err
	}

	req.Status = repository.StatusPending
	req.CurrentStep = next.StepOrder
	metrics.ActionsTotal.WithLabelValues(string(repository.ActionApprove)).Inc()
	e.log.Info().
		Str("request_id", req.ID).
		Str("actor", actorID).
		Int("step", next.StepOrder).
		Msg("Approval request advanced")

	e.notify(ctx, "approval_required", req, actorID, assignees, nil)
	return req, nil
}

// complete stamps a terminal approved status in the same transition as the
// final approve action.
func (e *Engine) complete(ctx context.Context, req *repository.ApprovalRequest, action *repository.ApprovalAction, event, actorID string) (*repository.ApprovalRequest, error) {
	now := e.now()
	t := &repository.Transition{
		RequestID:        req.ID,
		FromStatuses:     []repository.RequestStatus{repository.StatusPending},
		FromStep:         req.CurrentStep,
		NewStatus:        repository.StatusApproved,
		NewStep:          req.CurrentStep,
		CompletedAt:      &now,
		Action:           action,
		ReplaceAssignees: true,
	}
	if err := e.requests.Apply(ctx, t); err != nil {
		return nil, err
	}

	req.Status = repository.StatusApproved
	req.CompletedAt = &now
	metrics.ActionsTotal.WithLabelValues(string(action.Kind)).Inc()
	e.log.Info().
		Str("request_id", req.ID).
		Str("actor", actorID).
		Msg("Approval request approved")

	e.notify(ctx, event, req, actorID, []string{req.RequesterID}, nil)
	return req, nil
}

// terminate ends the request in rejected status.
func (e *Engine) terminate(ctx context.Context, req *repository.ApprovalRequest, status repository.RequestStatus, kind repository.ActionKind, actorID, comment string) (*repository.ApprovalRequest, error) {
	now := e.now()
	t := &repository.Transition{
		RequestID:    req.ID,
		FromStatuses: []repository.RequestStatus{repository.StatusPending},
		FromStep:     req.CurrentStep,
		NewStatus:    status,
		NewStep:      req.CurrentStep,
		CompletedAt:  &now,
		Action: &repository.ApprovalAction{
			StepOrder: req.CurrentStep,
			Kind:      kind,
			ActorID:   actorID,
			Comment:   optional(comment),
		},
		ReplaceAssignees: true,
	}
	if err := e.requests.Apply(ctx, t); err != nil {
		return nil, err
	}

	req.Status = status
	req.CompletedAt = &now
	metrics.ActionsTotal.WithLabelValues(string(kind)).Inc()
	e.log.Info().
		Str("request_id", req.ID).
		Str("actor", actorID).
		Str("status", string(status)).
		Msg("Approval request terminated")

	e.notify(ctx, "request_"+string(status), req, actorID, []string{req.RequesterID}, nil)
	return req, nil
}

// requestRevision returns the request to the requester for rework. The
// current step is kept; resubmission restarts at step one.
func (e *Engine) requestRevision(ctx context.Context, req *repository.ApprovalRequest, actorID, comment string) (*repository.ApprovalRequest, error) {
	t := &repository.Transition{
		RequestID:    req.ID,
		FromStatuses: []repository.RequestStatus{repository.StatusPending},
		FromStep:     req.CurrentStep,
		NewStatus:    repository.StatusRevision,
		NewStep:      req.CurrentStep,
		Action: &repository.ApprovalAction{
			StepOrder: req.CurrentStep,
			Kind:      repository.ActionRevision,
			ActorID:   actorID,
			Comment:   optional(comment),
		},
	}
	if err := e.requests.Apply(ctx, t); err != nil {
		return nil, err
	}

	req.Status = repository.StatusRevision
	metrics.ActionsTotal.WithLabelValues(string(repository.ActionRevision)).Inc()
	e.log.Info().
		Str("request_id", req.ID).
		Str("actor", actorID).
		Msg("Revision requested")

	e.notify(ctx, "revision_requested", req, actorID, []string{req.RequesterID}, nil)
	return req, nil
}

// cancel is reserved for the requester, from pending or revision status.
func (e *Engine) cancel(ctx context.Context, req *repository.ApprovalRequest, actorID, comment string) (*repository.ApprovalRequest, error) {
	if req.RequesterID != actorID {
		return nil, errors.New(errors.ErrCodeNotAuthorized, "only the requester can cancel the request")
	}
	if req.Status != repository.StatusPending && req.Status != repository.StatusRevision {
		return nil, errors.New(errors.ErrCodeInvalidState,
			fmt.Sprintf("request cannot be cancelled from status %s", req.Status))
	}

	now := e.now()
	t := &repository.Transition{
		RequestID:    req.ID,
		FromStatuses: []repository.RequestStatus{repository.StatusPending, repository.StatusRevision},
		FromStep:     req.CurrentStep,
		NewStatus:    repository.StatusCancelled,
		NewStep:      req.CurrentStep,
		CompletedAt:  &now,
		Action: &repository.ApprovalAction{
			StepOrder: req.CurrentStep,
			Kind:      repository.ActionCancel,
			ActorID:   actorID,
			Comment:   optional(comment),
		},
		ReplaceAssignees: true,
	}
	if err := e.requests.Apply(ctx, t); err != nil {
		return nil, err
	}

	req.Status = repository.StatusCancelled
	req.CompletedAt = &now
	metrics.ActionsTotal.WithLabelValues(string(repository.ActionCancel)).Inc()
	e.log.Info().
		Str("request_id", req.ID).
		Str("actor", actorID).
		Msg("Approval request cancelled")

	e.notify(ctx, "request_cancelled", req, actorID, []string{req.RequesterID}, nil)
	return req, nil
}

// Resubmit returns a revision-status request to pending at the first step,
// re-resolving approvers for the new pass.
func (e *Engine) Resubmit(ctx context.Context, requestID, requesterID string) (*repository.ApprovalRequest, error) {
	req, err := e.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != requesterID {
		return nil, errors.New(errors.ErrCodeNotAuthorized, "only the requester can resubmit the request")
	}
	if req.Status != repository.StatusRevision {
		return nil, errors.New(errors.ErrCodeInvalidState,
			fmt.Sprintf("request is not awaiting revision (status: %s)", req.Status))
	}

	tmpl, err := e.templates.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if len(tmpl.Steps) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidTemplate,
			fmt.Sprintf("workflow template %s has no steps", tmpl.Code))
	}

	first := tmpl.Steps[0]
	assignees, err := e.resolver.Resolve(ctx, first, req.RequesterID)
	if err != nil {
		return nil, err
	}
	if len(assignees) == 0 {
		e.reportStalledStep(tmpl, first, req.RequesterID)
	}

	t := &repository.Transition{
		RequestID:          req.ID,
		FromStatuses:       []repository.RequestStatus{repository.StatusRevision},
		FromStep:           req.CurrentStep,
		NewStatus:          repository.StatusPending,
		NewStep:            first.StepOrder,
		TouchStepStartedAt: true,
		Action: &repository.ApprovalAction{
			StepOrder: first.StepOrder,
			Kind:      repository.ActionResubmit,
			ActorID:   requesterID,
		},
		Assignees:        assignees,
		ReplaceAssignees: true,
	}
	if err := e.requests.Apply(ctx, t); err != nil {
		return nil, err
	}

	req.Status = repository.StatusPending
	req.CurrentStep = first.StepOrder
	metrics.ActionsTotal.WithLabelValues(string(repository.ActionResubmit)).Inc()
	e.log.Info().
		Str("request_id", req.ID).
		Msg("Approval request resubmitted")

	e.notify(ctx, "approval_required", req, requesterID, assignees, nil)
	return req, nil
}

// Reassign hands the actor's seat on the current step to a named user.
func (e *Engine) Reassign(ctx context.Context, requestID, actorID, targetUserID, reason string) error {
	if reason == "" {
		return errors.InvalidInput("reason", "reassignment reason is required")
	}
	if targetUserID == "" {
		return errors.InvalidInput("target_user", "target user is required")
	}

	req, err := e.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != repository.StatusPending {
		return errors.New(errors.ErrCodeInvalidState,
			fmt.Sprintf("request is not pending (status: %s)", req.Status))
	}
	if err := e.authorize(ctx, req, actorID); err != nil {
		return err
	}

	action := &repository.ApprovalAction{
		StepOrder:  req.CurrentStep,
		Kind:       repository.ActionReassign,
		ActorID:    actorID,
		Comment:    &reason,
		TargetUser: &targetUserID,
	}
	if err := e.requests.Reassign(ctx, req.ID, req.CurrentStep, actorID, targetUserID, action); err != nil {
		return err
	}

	metrics.ActionsTotal.WithLabelValues(string(repository.ActionReassign)).Inc()
	e.log.Info().
		Str("request_id", req.ID).
		Str("actor", actorID).
		Str("target", targetUserID).
		Msg("Approval step reassigned")

	e.notify(ctx, "approval_required", req, actorID, []string{targetUserID}, map[string]interface{}{"reassigned_by": actorID})
	return nil
}

// GetRequest returns a request by id.
func (e *Engine) GetRequest(ctx context.Context, requestID string) (*repository.ApprovalRequest, error) {
	return e.requests.GetByID(ctx, requestID)
}

// GetHistory returns the full action trail for a request, oldest first.
func (e *Engine) GetHistory(ctx context.Context, requestID string) ([]*repository.ApprovalAction, error) {
	if _, err := e.requests.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return e.actions.ListByRequest(ctx, requestID)
}

// GetPendingForActor returns all pending requests the user may act on.
func (e *Engine) GetPendingForActor(ctx context.Context, userID string) ([]*repository.ApprovalRequest, error) {
	if userID == "" {
		return nil, errors.InvalidInput("user", "user is required")
	}
	return e.requests.ListPendingForActor(ctx, userID, e.now())
}

// EscalateOverdue scans pending requests whose current step exceeded its SLA
// deadline and applies a system approve to each. Per-request failures are
// logged and counted, never aborting the batch. Safe to re-run: a request
// advanced by a concurrent action simply loses the CAS and is skipped.
func (e *Engine) EscalateOverdue(ctx context.Context) (int, error) {
	overdue, err := e.requests.ListOverdue(ctx, e.now())
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, od := range overdue {
		if err := e.escalateOne(ctx, od); err != nil {
			if errors.IsCode(err, errors.ErrCodeConcurrentModification) {
				// Someone acted on it during the scan; nothing to do.
				continue
			}
			metrics.EscalationFailuresTotal.Inc()
			e.log.Error().Err(err).
				Str("request_id", od.Request.ID).
				Int("step", od.Step.StepOrder).
				Msg("Escalation failed for request")
			continue
		}
		escalated++
		metrics.EscalationsTotal.Inc()
	}
	return escalated, nil
}

func (e *Engine) escalateOne(ctx context.Context, od *repository.OverdueRequest) error {
	tmpl, err := e.templates.GetByID(ctx, od.Request.WorkflowID)
	if err != nil {
		return err
	}

	comment := autoApproveComment
	action := &repository.ApprovalAction{
		StepOrder: od.Step.StepOrder,
		Kind:      repository.ActionApprove,
		ActorID:   SystemActor,
		Comment:   &comment,
		Metadata:  map[string]interface{}{"auto_approve_days": *od.Step.AutoApproveDays},
	}

	next := tmpl.NextStep(od.Step.StepOrder)
	if next == nil {
		_, err := e.complete(ctx, od.Request, action, "request_approved", SystemActor)
		return err
	}

	assignees, err := e.resolver.Resolve(ctx, next, od.Request.RequesterID)
	if err != nil {
		return err
	}
	if len(assignees) == 0 {
		e.reportStalledStep(tmpl, next, od.Request.RequesterID)
	}

	t := &repository.Transition{
		RequestID:          od.Request.ID,
		FromStatuses:       []repository.RequestStatus{repository.StatusPending},
		FromStep:           od.Step.StepOrder,
		NewStatus:          repository.StatusPending,
		NewStep:            next.StepOrder,
		TouchStepStartedAt: true,
		Action:             action,
		Assignees:          assignees,
		ReplaceAssignees:   true,
	}
	if err := e.requests.Apply(ctx, t); err != nil {
		return err
	}

	e.log.Info().
		Str("request_id", od.Request.ID).
		Int("from_step", od.Step.StepOrder).
		Int("to_step", next.StepOrder).
		Msg("Step auto-approved past SLA deadline")

	od.Request.CurrentStep = next.StepOrder
	e.notify(ctx, "approval_required", od.Request, SystemActor, assignees, map[string]interface{}{"escalated": true})
	return nil
}

// ── authorization ─────────────────────────────────────────────────────────────

// authorize checks that actorID is in the materialized assignee set for the
// request's current step, or stands in for an assignee through an active,
// scope-matching delegation.
func (e *Engine) authorize(ctx context.Context, req *repository.ApprovalRequest, actorID string) error {
	base, err := e.requests.Assignees(ctx, req.ID, req.CurrentStep)
	if err != nil {
		return err
	}
	for _, u := range base {
		if u == actorID {
			return nil
		}
	}

	delegators, err := e.delegates.FindActiveDelegators(ctx, actorID, req.WorkflowID, e.now())
	if err != nil {
		return err
	}
	for _, d := range delegators {
		for _, u := range base {
			if u == d {
				return nil
			}
		}
	}

	return errors.New(errors.ErrCodeNotAuthorized,
		"user is not authorized to act on this approval step")
}

// ── internal helpers ──────────────────────────────────────────────────────────

func (e *Engine) reportStalledStep(tmpl *repository.WorkflowTemplate, step *repository.WorkflowStep, requesterID string) {
	metrics.StalledStepsTotal.Inc()
	e.log.Warn().
		Str("workflow", tmpl.Code).
		Int("step", step.StepOrder).
		Str("policy", string(step.Policy)).
		Str("requester", requesterID).
		Msg("Step resolved to an empty approver set; request is stalled")
}

func (e *Engine) notify(ctx context.Context, eventType string, req *repository.ApprovalRequest, actorID string, recipients []string, payload map[string]interface{}) {
	if e.notifier == nil {
		return
	}
	e.notifier.PublishApprovalEvent(ctx, eventType, req, actorID, recipients, payload)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
