package repository

import "time"

// ── Domain types for the approval workflow engine ────────────────────────────

// ApproverPolicy selects how a step's approver set is resolved.
type ApproverPolicy string

const (
	PolicySupervisor     ApproverPolicy = "supervisor"
	PolicyDepartmentHead ApproverPolicy = "department_head"
	PolicyRole           ApproverPolicy = "role"
	PolicyUser           ApproverPolicy = "user"
	PolicyGroup          ApproverPolicy = "group"
)

// Valid reports whether p is one of the five known policies.
func (p ApproverPolicy) Valid() bool {
	switch p {
	case PolicySupervisor, PolicyDepartmentHead, PolicyRole, PolicyUser, PolicyGroup:
		return true
	}
	return false
}

// RequestStatus is the lifecycle status of an approval request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
	StatusRevision  RequestStatus = "revision"
)

// Terminal reports whether no further actions are accepted in this status.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// ActionKind is the kind of an audit-logged action.
type ActionKind string

const (
	ActionSubmit   ActionKind = "submit"
	ActionApprove  ActionKind = "approve"
	ActionReject   ActionKind = "reject"
	ActionRevision ActionKind = "revision"
	ActionCancel   ActionKind = "cancel"
	ActionResubmit ActionKind = "resubmit"
	ActionReassign ActionKind = "reassign"
)

// WorkflowTemplate is the ordered step definition set for one entity type.
// Templates are soft-deactivated, never deleted, so in-flight requests keep a
// valid reference.
type WorkflowTemplate struct {
	ID         string
	EntityType string
	Code       string
	Name       string
	// AutoApproveThreshold, in minor currency units; requests submitted with
	// a value below it bypass the workflow entirely. Nil disables the bypass.
	AutoApproveThreshold *int64
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Steps []*WorkflowStep
}

// StepAt returns the step with the given step_order, or nil.
func (t *WorkflowTemplate) StepAt(order int) *WorkflowStep {
	for _, s := range t.Steps {
		if s.StepOrder == order {
			return s
		}
	}
	return nil
}

// NextStep returns the first step with step_order greater than order, or nil.
// Steps are stored in ascending step_order.
func (t *WorkflowTemplate) NextStep(order int) *WorkflowStep {
	for _, s := range t.Steps {
		if s.StepOrder > order {
			return s
		}
	}
	return nil
}

// WorkflowStep is one ordered stage in a template.
type WorkflowStep struct {
	ID         string
	WorkflowID string
	StepOrder  int
	Policy     ApproverPolicy
	// PolicyValue carries the role name, user id, or group name for the
	// role/user/group policies. Nil for supervisor and department_head.
	PolicyValue        *string
	CanReject          bool
	CanRequestRevision bool
	RequiresComment    bool
	// AutoApproveDays is the SLA deadline in days; nil means no deadline.
	AutoApproveDays *int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ApprovalRequest is a live workflow instance bound to a business record via
// its (entity_type, entity_id) reference.
type ApprovalRequest struct {
	ID          string
	WorkflowID  string
	EntityType  string
	EntityID    string
	RequesterID string
	Status      RequestStatus
	CurrentStep int
	// Value is the optional monetary value used for threshold logic.
	Value       *int64
	SubmittedAt time.Time
	// StepStartedAt is reset whenever the request enters a step; the
	// escalation scanner measures step age against it.
	StepStartedAt time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ApprovalAction is one immutable audit log entry.
type ApprovalAction struct {
	ID        string
	RequestID string
	StepOrder int
	Kind      ActionKind
	ActorID   string
	Comment   *string
	// TargetUser is set for reassign actions only.
	TargetUser  *string
	Metadata    map[string]interface{}
	PerformedAt time.Time
}

// ApprovalDelegate grants delegate the delegator's approval authority between
// StartDate and EndDate inclusive, optionally scoped to one workflow.
type ApprovalDelegate struct {
	ID          string
	DelegatorID string
	DelegateID  string
	// WorkflowID nil means the delegation covers all workflows.
	WorkflowID *string
	StartDate  time.Time
	EndDate    time.Time
	Reason     *string
	CreatedAt  time.Time
}

// ActiveOn reports whether the delegation covers the given day and workflow.
func (d *ApprovalDelegate) ActiveOn(day time.Time, workflowID string) bool {
	if day.Before(d.StartDate) || day.After(d.EndDate.Add(24*time.Hour-time.Nanosecond)) {
		return false
	}
	return d.WorkflowID == nil || *d.WorkflowID == workflowID
}

// OverdueRequest pairs a pending request with its deadline-bearing current step.
type OverdueRequest struct {
	Request *ApprovalRequest
	Step    *WorkflowStep
}
