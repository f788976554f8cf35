// Package tracker projects generated tickets into Linear issues.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal Linear GraphQL API client covering issue creation and
// team/project discovery.
type Client struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEndpoint sets a custom GraphQL endpoint.
func WithEndpoint(url string) ClientOption {
	return func(c *Client) { c.endpoint = url }
}

// WithClientHTTP sets a custom HTTP client.
func WithClientHTTP(h *http.Client) ClientOption {
	return func(c *Client) { c.client = h }
}

// NewClient creates a Linear API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: "https://api.linear.app/graphql",
		apiKey:   apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Team is a Linear team.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Project is a Linear project.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key,omitempty"`
}

// Issue is a created Linear issue.
type Issue struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// IssueInput is the payload for issue creation.
type IssueInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	TeamID      string   `json:"teamId"`
	ProjectID   string   `json:"projectId,omitempty"`
	StateID     string   `json:"stateId,omitempty"`
	Priority    *int     `json:"priority,omitempty"`
	AssigneeID  string   `json:"assigneeId,omitempty"`
	LabelIDs    []string `json:"labelIds,omitempty"`
}

// IssueCreator is the narrow capability the projector depends on.
type IssueCreator interface {
	CreateIssue(ctx context.Context, input IssueInput) (*Issue, error)
}

const issueCreateMutation = `mutation IssueCreate($input: IssueCreateInput!) {
  issueCreate(input: $input) { success issue { id url } }
}`

// CreateIssue creates one issue and returns its id and URL.
func (c *Client) CreateIssue(ctx context.Context, input IssueInput) (*Issue, error) {
	var out struct {
		IssueCreate struct {
			Success bool   `json:"success"`
			Issue   *Issue `json:"issue"`
		} `json:"issueCreate"`
	}
	if err := c.do(ctx, issueCreateMutation, map[string]any{"input": input}, &out); err != nil {
		return nil, err
	}
	if !out.IssueCreate.Success || out.IssueCreate.Issue == nil {
		return nil, fmt.Errorf("linear: issue creation rejected")
	}
	return out.IssueCreate.Issue, nil
}

// Teams lists the workspace's teams.
func (c *Client) Teams(ctx context.Context) ([]Team, error) {
	var out struct {
		Teams struct {
			Nodes []Team `json:"nodes"`
		} `json:"teams"`
	}
	query := `query { teams { nodes { id name key } } }`
	if err := c.do(ctx, query, nil, &out); err != nil {
		return nil, err
	}
	return out.Teams.Nodes, nil
}

// Projects lists projects, scoped to a team when teamID is non-empty.
func (c *Client) Projects(ctx context.Context, teamID string) ([]Project, error) {
	if teamID == "" {
		var out struct {
			Projects struct {
				Nodes []Project `json:"nodes"`
			} `json:"projects"`
		}
		query := `query { projects { nodes { id name } } }`
		if err := c.do(ctx, query, nil, &out); err != nil {
			return nil, err
		}
		return out.Projects.Nodes, nil
	}

	var out struct {
		Team struct {
			Projects struct {
				Nodes []Project `json:"nodes"`
			} `json:"projects"`
		} `json:"team"`
	}
	query := `query TeamProjects($id: String!) {
  team(id: $id) { projects { nodes { id name } } }
}`
	if err := c.do(ctx, query, map[string]any{"id": teamID}, &out); err != nil {
		return nil, err
	}
	return out.Team.Projects.Nodes, nil
}

// do executes one GraphQL request and decodes the data envelope into out.
func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("linear: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("linear: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("linear: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("linear: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("linear: api error (status %d): %s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("linear: unmarshal response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, len(envelope.Errors))
		for i, e := range envelope.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("linear: graphql: %s", strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("linear: unmarshal data: %w", err)
	}
	return nil
}
