package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stageline-io/stageline/pkg/protocol"
)

// submitDelay is the pause between issue submissions in a multi-ticket
// batch. A rate-limit accommodation for the tracker API, not tunable
// per call; a single-ticket batch incurs no delay.
const submitDelay = 200 * time.Millisecond

// Options carries the optional issue fields applied to every ticket in a
// projection batch.
type Options struct {
	ProjectID  string   `json:"projectId,omitempty"`
	StateID    string   `json:"stateId,omitempty"`
	Priority   *int     `json:"priority,omitempty"`
	AssigneeID string   `json:"assigneeId,omitempty"`
	LabelIDs   []string `json:"labelIds,omitempty"`
}

// IssueResult is the per-ticket outcome of a projection batch,
// order-preserving with the input.
type IssueResult struct {
	Success  bool   `json:"success"`
	IssueID  string `json:"issueId,omitempty"`
	IssueURL string `json:"issueUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Summary aggregates a batch's results. Always derived from the result
// list, never tracked separately.
type Summary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Summarize derives the batch summary from per-ticket results.
func Summarize(results []IssueResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			s.Successful++
		} else {
			s.Failed++
		}
	}
	return s
}

// Projector maps ticket sets into tracker issues. Submission is strictly
// sequential: the tracker rate-limits aggressively and the inter-submission
// delay is part of the contract, so this must not be parallelized.
type Projector struct {
	creator IssueCreator
	logger  *slog.Logger
	delay   time.Duration
}

// NewProjector creates a Projector. logger may be nil.
func NewProjector(creator IssueCreator, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{creator: creator, logger: logger, delay: submitDelay}
}

// Project submits the tickets as issues, one result per ticket in input
// order. An empty teamID fails every ticket up front with zero tracker
// calls. One ticket's failure never aborts the batch.
func (p *Projector) Project(ctx context.Context, tickets []protocol.Ticket, teamID string, opts Options) []IssueResult {
	results := make([]IssueResult, len(tickets))

	if teamID == "" {
		for i := range results {
			results[i] = IssueResult{Success: false, Error: "missing team"}
		}
		return results
	}

	for i, t := range tickets {
		issue, err := p.creator.CreateIssue(ctx, BuildInput(t, teamID, opts))
		if err != nil {
			p.logger.Warn("issue creation failed", "ticket", t.TicketID, "error", err)
			results[i] = IssueResult{Success: false, Error: err.Error()}
		} else {
			results[i] = IssueResult{Success: true, IssueID: issue.ID, IssueURL: issue.URL}
		}

		if len(tickets) > 1 && i < len(tickets)-1 {
			select {
			case <-ctx.Done():
				for j := i + 1; j < len(tickets); j++ {
					results[j] = IssueResult{Success: false, Error: ctx.Err().Error()}
				}
				return results
			case <-time.After(p.delay):
			}
		}
	}
	return results
}

// BuildInput maps one ticket plus batch options into an issue payload.
func BuildInput(t protocol.Ticket, teamID string, opts Options) IssueInput {
	return IssueInput{
		Title:       t.Title,
		Description: FormatDescription(t),
		TeamID:      teamID,
		ProjectID:   opts.ProjectID,
		StateID:     opts.StateID,
		Priority:    opts.Priority,
		AssigneeID:  opts.AssigneeID,
		LabelIDs:    opts.LabelIDs,
	}
}

// FormatDescription renders a ticket's sections as markdown in a fixed
// order. Empty sections are omitted entirely; the ordering is a display
// contract consumers rely on.
func FormatDescription(t protocol.Ticket) string {
	var parts []string

	text := func(header, body string) {
		if body != "" {
			parts = append(parts, fmt.Sprintf("## %s\n%s", header, body))
		}
	}
	list := func(header string, items []string) {
		if len(items) == 0 {
			return
		}
		bullets := make([]string, len(items))
		for i, item := range items {
			bullets[i] = "- " + item
		}
		parts = append(parts, fmt.Sprintf("## %s\n%s", header, strings.Join(bullets, "\n")))
	}

	text("Context", t.Context)
	list("Scope", t.Scope)
	list("Out of Scope", t.NonScope)
	text("Technical Approach", t.TechnicalApproach)
	list("Files/Modules", t.FilesOrModules)
	list("Acceptance Criteria", t.AcceptanceCriteria)
	list("Edge Cases", t.EdgeCases)
	list("Validation", t.Validation)
	list("Dependencies", t.Dependencies)

	return strings.Join(parts, "\n\n")
}
