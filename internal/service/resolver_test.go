package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

func testDirectory() *fakeDirectory {
	return &fakeDirectory{
		supervisors: map[string]string{"alice": "bob"},
		heads:       map[string]string{"alice": "head-1"},
		roles:       map[string][]string{"finance": {"fin-1", "fin-2", "fin-1", ""}},
		groups:      map[string][]string{"legal": {"leg-1", "leg-2"}},
	}
}

func TestResolve_Supervisor(t *testing.T) {
	r := NewResolver(testDirectory())

	users, err := r.Resolve(context.Background(), &repository.WorkflowStep{
		Policy: repository.PolicySupervisor,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)
}

func TestResolve_SupervisorMissing(t *testing.T) {
	r := NewResolver(testDirectory())

	// No supervisor on record resolves to an empty set, not an error.
	users, err := r.Resolve(context.Background(), &repository.WorkflowStep{
		Policy: repository.PolicySupervisor,
	}, "ceo")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestResolve_DepartmentHead(t *testing.T) {
	r := NewResolver(testDirectory())

	users, err := r.Resolve(context.Background(), &repository.WorkflowStep{
		Policy: repository.PolicyDepartmentHead,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"head-1"}, users)
}

func TestResolve_RoleDeduplicates(t *testing.T) {
	r := NewResolver(testDirectory())

	users, err := r.Resolve(context.Background(), &repository.WorkflowStep{
		Policy:      repository.PolicyRole,
		PolicyValue: strPtr("finance"),
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"fin-1", "fin-2"}, users)
}

func TestResolve_RoleWithoutValue(t *testing.T) {
	r := NewResolver(testDirectory())

	_, err := r.Resolve(context.Background(), &repository.WorkflowStep{
		Policy: repository.PolicyRole,
	}, "alice")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestResolve_User(t *testing.T) {
	r := NewResolver(testDirectory())

	users, err := r.Resolve(context.Background(), &repository.WorkflowStep{
		Policy:      repository.PolicyUser,
		PolicyValue: strPtr("cfo"),
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"cfo"}, users)
}

func TestResolve_Group(t *testing.T) {
	r := NewResolver(testDirectory())

	users, err := r.Resolve(context.Background(), &repository.WorkflowStep{
		Policy:      repository.PolicyGroup,
		PolicyValue: strPtr("legal"),
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"leg-1", "leg-2"}, users)
}

func TestResolve_EmptyGroup(t *testing.T) {
	r := NewResolver(testDirectory())

	users, err := r.Resolve(context.Background(), &repository.WorkflowStep{
		Policy:      repository.PolicyGroup,
		PolicyValue: strPtr("nobody-home"),
	}, "alice")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestResolve_UnknownPolicy(t *testing.T) {
	r := NewResolver(testDirectory())

	_, err := r.Resolve(context.Background(), &repository.WorkflowStep{
		Policy: repository.ApproverPolicy("manager-of-managers"),
	}, "alice")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}
