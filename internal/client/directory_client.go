package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// DirectoryHTTPClient resolves organizational data (supervisor links,
// department heads, role and group membership) from the platform directory
// service. Calls run through a circuit breaker so a slow or failing
// directory degrades approvals instead of hanging them.
type DirectoryHTTPClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewDirectoryHTTPClient creates a directory client for the given base URL.
func NewDirectoryHTTPClient(baseURL string, timeout time.Duration) *DirectoryHTTPClient {
	return &DirectoryHTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "directory",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

type userResponse struct {
	UserID *string `json:"user_id"`
}

type membersResponse struct {
	UserIDs []string `json:"user_ids"`
}

// GetSupervisor returns the direct supervisor of a user, or "" when the user
// has none.
func (c *DirectoryHTTPClient) GetSupervisor(ctx context.Context, userID string) (string, error) {
	var resp userResponse
	path := "/api/v1/org/supervisor?user=" + url.QueryEscape(userID)
	if err := c.get(ctx, path, &resp); err != nil {
		return "", fmt.Errorf("failed to get supervisor: %w", err)
	}
	if resp.UserID == nil {
		return "", nil
	}
	return *resp.UserID, nil
}

// GetDepartmentHead returns the head of the user's department, or "".
func (c *DirectoryHTTPClient) GetDepartmentHead(ctx context.Context, userID string) (string, error) {
	var resp userResponse
	path := "/api/v1/org/department-head?user=" + url.QueryEscape(userID)
	if err := c.get(ctx, path, &resp); err != nil {
		return "", fmt.Errorf("failed to get department head: %w", err)
	}
	if resp.UserID == nil {
		return "", nil
	}
	return *resp.UserID, nil
}

// GetRoleMembers returns all users currently holding the named role.
func (c *DirectoryHTTPClient) GetRoleMembers(ctx context.Context, role string) ([]string, error) {
	var resp membersResponse
	path := "/api/v1/org/roles/members?role=" + url.QueryEscape(role)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to get role members: %w", err)
	}
	return resp.UserIDs, nil
}

// GetGroupMembers returns all members of the named group.
func (c *DirectoryHTTPClient) GetGroupMembers(ctx context.Context, group string) ([]string, error) {
	var resp membersResponse
	path := "/api/v1/org/groups/members?group=" + url.QueryEscape(group)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	return resp.UserIDs, nil
}

func (c *DirectoryHTTPClient) get(ctx context.Context, path string, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
		}
		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	return err
}
