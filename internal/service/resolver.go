package service

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// Resolver maps a step's approver policy plus the request context to the
// base set of authorized users. It holds no state of its own; delegation
// expansion happens against the delegate store at authorization time.
type Resolver struct {
	directory DirectoryClient
}

// NewResolver creates a resolver over the given directory client.
func NewResolver(directory DirectoryClient) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve returns the de-duplicated approver set for a step. An empty set is
// not an error: the caller surfaces it as a stalled step.
func (r *Resolver) Resolve(ctx context.Context, step *repository.WorkflowStep, requesterID string) ([]string, error) {
	switch step.Policy {
	case repository.PolicySupervisor:
		supervisor, err := r.directory.GetSupervisor(ctx, requesterID)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve supervisor")
		}
		return single(supervisor), nil

	case repository.PolicyDepartmentHead:
		head, err := r.directory.GetDepartmentHead(ctx, requesterID)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve department head")
		}
		return single(head), nil

	case repository.PolicyRole:
		if step.PolicyValue == nil {
			return nil, errors.InvalidInput("approver_value", "role policy requires a role name")
		}
		members, err := r.directory.GetRoleMembers(ctx, *step.PolicyValue)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve role members")
		}
		return dedupe(members), nil

	case repository.PolicyUser:
		if step.PolicyValue == nil {
			return nil, errors.InvalidInput("approver_value", "user policy requires a user id")
		}
		return single(*step.PolicyValue), nil

	case repository.PolicyGroup:
		if step.PolicyValue == nil {
			return nil, errors.InvalidInput("approver_value", "group policy requires a group name")
		}
		members, err := r.directory.GetGroupMembers(ctx, *step.PolicyValue)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve group members")
		}
		return dedupe(members), nil
	}

	return nil, errors.InvalidInput("approver_policy", fmt.Sprintf("unknown policy %q", step.Policy))
}

func single(userID string) []string {
	if userID == "" {
		return nil
	}
	return []string{userID}
}

func dedupe(users []string) []string {
	seen := make(map[string]struct{}, len(users))
	var out []string
	for _, u := range users {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
