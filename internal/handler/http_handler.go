package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
	"github.com/pesio-ai/be-plt-approvals/internal/service"
)

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	engine *service.Engine
	admin  *service.AdminService
	log    *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(engine *service.Engine, admin *service.AdminService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		engine: engine,
		admin:  admin,
		log:    log,
	}
}

// ── Workflow templates ────────────────────────────────────────────────────────

type stepRequest struct {
	StepOrder          int     `json:"step_order"`
	Policy             string  `json:"approver_policy"`
	PolicyValue        *string `json:"approver_value,omitempty"`
	CanReject          bool    `json:"can_reject"`
	CanRequestRevision bool    `json:"can_request_revision"`
	RequiresComment    bool    `json:"requires_comment"`
	AutoApproveDays    *int    `json:"auto_approve_days,omitempty"`
}

type createTemplateRequest struct {
	EntityType           string        `json:"entity_type"`
	Code                 string        `json:"code"`
	Name                 string        `json:"name"`
	AutoApproveThreshold *int64        `json:"auto_approve_threshold,omitempty"`
	Steps                []stepRequest `json:"steps"`
}

// CreateTemplate handles template creation requests.
func (h *HTTPHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	tmpl := &repository.WorkflowTemplate{
		EntityType:           req.EntityType,
		Code:                 req.Code,
		Name:                 req.Name,
		AutoApproveThreshold: req.AutoApproveThreshold,
	}
	for _, s := range req.Steps {
		tmpl.Steps = append(tmpl.Steps, &repository.WorkflowStep{
			StepOrder:          s.StepOrder,
			Policy:             repository.ApproverPolicy(s.Policy),
			PolicyValue:        s.PolicyValue,
			CanReject:          s.CanReject,
			CanRequestRevision: s.CanRequestRevision,
			RequiresComment:    s.RequiresComment,
			AutoApproveDays:    s.AutoApproveDays,
		})
	}

	created, err := h.admin.CreateTemplate(r.Context(), tmpl)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, templateResponse(created))
}

// GetTemplate handles template lookups by id or code.
func (h *HTTPHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.admin.GetTemplate(r.Context(), r.URL.Query().Get("id"), r.URL.Query().Get("code"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, templateResponse(tmpl))
}

// ListTemplates handles template listing requests.
func (h *HTTPHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	templates, err := h.admin.ListTemplates(r.Context(), r.URL.Query().Get("entity_type"), activeOnly)
	if err != nil {
		h.respondError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(templates))
	for _, t := range templates {
		out = append(out, templateResponse(t))
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"templates": out})
}

// UpdateTemplate handles template name/threshold updates.
func (h *HTTPHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID                   string `json:"id"`
		Name                 string `json:"name"`
		AutoApproveThreshold *int64 `json:"auto_approve_threshold,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	tmpl, err := h.admin.UpdateTemplate(r.Context(), req.ID, req.Name, req.AutoApproveThreshold)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, templateResponse(tmpl))
}

// DeactivateTemplate handles template soft-deletion.
func (h *HTTPHandler) DeactivateTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	if err := h.admin.DeactivateTemplate(r.Context(), req.ID); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// ── Delegations ───────────────────────────────────────────────────────────────

type createDelegateRequest struct {
	DelegatorID string  `json:"delegator"`
	DelegateID  string  `json:"delegate"`
	WorkflowID  *string `json:"workflow_id,omitempty"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	Reason      *string `json:"reason,omitempty"`
}

// CreateDelegate handles delegation creation requests.
func (h *HTTPHandler) CreateDelegate(w http.ResponseWriter, r *http.Request) {
	var req createDelegateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		h.respondError(w, errors.InvalidInput("start_date", "invalid date format, expected YYYY-MM-DD"))
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		h.respondError(w, errors.InvalidInput("end_date", "invalid date format, expected YYYY-MM-DD"))
		return
	}

	d := &repository.ApprovalDelegate{
		DelegatorID: req.DelegatorID,
		DelegateID:  req.DelegateID,
		WorkflowID:  req.WorkflowID,
		StartDate:   start,
		EndDate:     end,
		Reason:      req.Reason,
	}

	created, err := h.admin.CreateDelegate(r.Context(), d)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, delegateResponse(created))
}

// ListDelegates handles delegation listing for a delegator.
func (h *HTTPHandler) ListDelegates(w http.ResponseWriter, r *http.Request) {
	delegates, err := h.admin.ListDelegates(r.Context(), r.URL.Query().Get("delegator"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(delegates))
	for _, d := range delegates {
		out = append(out, delegateResponse(d))
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"delegates": out})
}

// DeleteDelegate revokes a delegation.
func (h *HTTPHandler) DeleteDelegate(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.respondError(w, errors.InvalidInput("id", "delegation id is required"))
		return
	}
	if err := h.admin.DeleteDelegate(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Requests ──────────────────────────────────────────────────────────────────

type submitRequest struct {
	TemplateCode string `json:"template_code"`
	EntityType   string `json:"entity_type"`
	EntityID     string `json:"entity_id"`
	Requester    string `json:"requester"`
	Value        *int64 `json:"value,omitempty"`
}

// SubmitRequest handles approval request submission.
func (h *HTTPHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	created, err := h.engine.Submit(r.Context(), &service.SubmitInput{
		TemplateCode: req.TemplateCode,
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		RequesterID:  req.Requester,
		Value:        req.Value,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, requestResponse(created))
}

// GetRequest handles request lookups.
func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.respondError(w, errors.InvalidInput("id", "request id is required"))
		return
	}

	req, err := h.engine.GetRequest(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, requestResponse(req))
}

// GetHistory handles action-history queries.
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.respondError(w, errors.InvalidInput("id", "request id is required"))
		return
	}

	actions, err := h.engine.GetHistory(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(actions))
	for _, a := range actions {
		out = append(out, actionResponse(a))
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"actions": out})
}

// GetPending returns all requests awaiting action from a user.
func (h *HTTPHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	requests, err := h.engine.GetPendingForActor(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(requests))
	for _, req := range requests {
		out = append(out, requestResponse(req))
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"requests": out})
}

type actionRequest struct {
	ID      string `json:"id"`
	Actor   string `json:"actor"`
	Kind    string `json:"kind"`
	Comment string `json:"comment,omitempty"`
}

// TakeAction handles approve/reject/revision/cancel actions.
func (h *HTTPHandler) TakeAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	updated, err := h.engine.TakeAction(r.Context(), req.ID, req.Actor, repository.ActionKind(req.Kind), req.Comment)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, requestResponse(updated))
}

// ResubmitRequest returns a revision-status request to the first step.
func (h *HTTPHandler) ResubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        string `json:"id"`
		Requester string `json:"requester"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	updated, err := h.engine.Resubmit(r.Context(), req.ID, req.Requester)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, requestResponse(updated))
}

// ReassignRequest hands the current step to a named user.
func (h *HTTPHandler) ReassignRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID         string `json:"id"`
		Actor      string `json:"actor"`
		TargetUser string `json:"target_user"`
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	if err := h.engine.Reassign(r.Context(), req.ID, req.Actor, req.TargetUser, req.Reason); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "reassigned"})
}

// ── Response shaping ──────────────────────────────────────────────────────────

func templateResponse(t *repository.WorkflowTemplate) map[string]interface{} {
	steps := make([]map[string]interface{}, 0, len(t.Steps))
	for _, s := range t.Steps {
		steps = append(steps, map[string]interface{}{
			"id":                   s.ID,
			"step_order":           s.StepOrder,
			"approver_policy":      s.Policy,
			"approver_value":       s.PolicyValue,
			"can_reject":           s.CanReject,
			"can_request_revision": s.CanRequestRevision,
			"requires_comment":     s.RequiresComment,
			"auto_approve_days":    s.AutoApproveDays,
		})
	}
	return map[string]interface{}{
		"id":                     t.ID,
		"entity_type":            t.EntityType,
		"code":                   t.Code,
		"name":                   t.Name,
		"auto_approve_threshold": t.AutoApproveThreshold,
		"is_active":              t.IsActive,
		"created_at":             t.CreatedAt,
		"updated_at":             t.UpdatedAt,
		"steps":                  steps,
	}
}

func requestResponse(r *repository.ApprovalRequest) map[string]interface{} {
	return map[string]interface{}{
		"id":              r.ID,
		"workflow_id":     r.WorkflowID,
		"entity_type":     r.EntityType,
		"entity_id":       r.EntityID,
		"requester":       r.RequesterID,
		"status":          r.Status,
		"current_step":    r.CurrentStep,
		"value":           r.Value,
		"submitted_at":    r.SubmittedAt,
		"step_started_at": r.StepStartedAt,
		"completed_at":    r.CompletedAt,
	}
}

func actionResponse(a *repository.ApprovalAction) map[string]interface{} {
	return map[string]interface{}{
		"id":           a.ID,
		"request_id":   a.RequestID,
		"step_order":   a.StepOrder,
		"kind":         a.Kind,
		"actor":        a.ActorID,
		"comment":      a.Comment,
		"target_user":  a.TargetUser,
		"metadata":     a.Metadata,
		"performed_at": a.PerformedAt,
	}
}

func delegateResponse(d *repository.ApprovalDelegate) map[string]interface{} {
	return map[string]interface{}{
		"id":          d.ID,
		"delegator":   d.DelegatorID,
		"delegate":    d.DelegateID,
		"workflow_id": d.WorkflowID,
		"start_date":  d.StartDate.Format("2006-01-02"),
		"end_date":    d.EndDate.Format("2006-01-02"),
		"reason":      d.Reason,
		"created_at":  d.CreatedAt,
	}
}

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("failed to encode response")
	}
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  errors.Code(err),
	})
}
