package tracker

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stageline-io/stageline/pkg/protocol"
)

// fakeCreator fails the call whose (1-based) ordinal is in failOn.
type fakeCreator struct {
	calls  []IssueInput
	failOn map[int]bool
}

func (f *fakeCreator) CreateIssue(_ context.Context, input IssueInput) (*Issue, error) {
	f.calls = append(f.calls, input)
	n := len(f.calls)
	if f.failOn[n] {
		return nil, fmt.Errorf("linear: api error (status 400): bad state id")
	}
	return &Issue{ID: fmt.Sprintf("iss-%d", n), URL: fmt.Sprintf("https://linear.app/iss-%d", n)}, nil
}

func newTestProjector(c IssueCreator) *Projector {
	p := NewProjector(c, nil)
	p.delay = 0
	return p
}

func tickets(n int) []protocol.Ticket {
	out := make([]protocol.Ticket, n)
	for i := range out {
		out[i] = protocol.Ticket{TicketID: fmt.Sprintf("T%d", i+1), Title: fmt.Sprintf("Ticket %d", i+1)}
	}
	return out
}

func TestProject_MissingTeamShortCircuits(t *testing.T) {
	creator := &fakeCreator{}
	p := newTestProjector(creator)

	results := p.Project(context.Background(), tickets(3), "", Options{})
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.Success || r.Error != "missing team" {
			t.Errorf("results[%d] = %+v", i, r)
		}
	}
	if len(creator.calls) != 0 {
		t.Errorf("made %d tracker calls, want 0", len(creator.calls))
	}
}

func TestProject_PartialFailureIsolation(t *testing.T) {
	creator := &fakeCreator{failOn: map[int]bool{2: true}}
	p := newTestProjector(creator)

	results := p.Project(context.Background(), tickets(3), "team-1", Options{})
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if !results[0].Success || results[0].IssueID != "iss-1" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Success || !strings.Contains(results[1].Error, "bad state id") {
		t.Errorf("results[1] = %+v", results[1])
	}
	if !results[2].Success || results[2].IssueID != "iss-3" {
		t.Errorf("results[2] = %+v", results[2])
	}

	sum := Summarize(results)
	if sum.Total != 3 || sum.Successful != 2 || sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestProject_OrderPreserving(t *testing.T) {
	creator := &fakeCreator{}
	p := newTestProjector(creator)

	in := tickets(4)
	p.Project(context.Background(), in, "team-1", Options{})
	for i, call := range creator.calls {
		if call.Title != in[i].Title {
			t.Errorf("call %d title = %q, want %q", i, call.Title, in[i].Title)
		}
	}
}

func TestProject_OptionsApplied(t *testing.T) {
	creator := &fakeCreator{}
	p := newTestProjector(creator)

	prio := 2
	p.Project(context.Background(), tickets(1), "team-1", Options{
		ProjectID:  "proj-1",
		StateID:    "state-1",
		Priority:   &prio,
		AssigneeID: "user-1",
		LabelIDs:   []string{"l1", "l2"},
	})
	call := creator.calls[0]
	if call.TeamID != "team-1" || call.ProjectID != "proj-1" || call.StateID != "state-1" {
		t.Errorf("call = %+v", call)
	}
	if call.Priority == nil || *call.Priority != 2 || call.AssigneeID != "user-1" || len(call.LabelIDs) != 2 {
		t.Errorf("call = %+v", call)
	}
}

func TestProject_CancelledContextFailsRemainder(t *testing.T) {
	creator := &fakeCreator{}
	p := NewProjector(creator, nil) // real delay so cancellation lands in the wait

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := p.Project(ctx, tickets(3), "team-1", Options{})

	if !results[0].Success {
		t.Errorf("results[0] = %+v", results[0])
	}
	for i := 1; i < 3; i++ {
		if results[i].Success || !strings.Contains(results[i].Error, "canceled") {
			t.Errorf("results[%d] = %+v", i, results[i])
		}
	}
	if len(creator.calls) != 1 {
		t.Errorf("made %d calls after cancel, want 1", len(creator.calls))
	}
}

func TestFormatDescription_SectionOrdering(t *testing.T) {
	ticket := protocol.Ticket{
		Context:            "Some context.",
		AcceptanceCriteria: []string{"builds", "tests pass"},
	}
	got := FormatDescription(ticket)

	want := "## Context\nSome context.\n\n## Acceptance Criteria\n- builds\n- tests pass"
	if got != want {
		t.Errorf("description = %q, want %q", got, want)
	}
	if strings.Count(got, "## ") != 2 {
		t.Errorf("got %d section headers, want exactly 2", strings.Count(got, "## "))
	}
}

func TestFormatDescription_FullOrder(t *testing.T) {
	ticket := protocol.Ticket{
		Context:            "c",
		Scope:              []string{"s"},
		NonScope:           []string{"n"},
		TechnicalApproach:  "t",
		FilesOrModules:     []string{"f"},
		AcceptanceCriteria: []string{"a"},
		EdgeCases:          []string{"e"},
		Validation:         []string{"v"},
		Dependencies:       []string{"d"},
	}
	got := FormatDescription(ticket)
	order := []string{"Context", "Scope", "Out of Scope", "Technical Approach",
		"Files/Modules", "Acceptance Criteria", "Edge Cases", "Validation", "Dependencies"}
	last := -1
	for _, h := range order {
		idx := strings.Index(got, "## "+h)
		if idx < 0 {
			t.Fatalf("section %q missing", h)
		}
		if idx < last {
			t.Errorf("section %q out of order", h)
		}
		last = idx
	}
}

func TestFormatDescription_Empty(t *testing.T) {
	if got := FormatDescription(protocol.Ticket{Title: "x"}); got != "" {
		t.Errorf("description = %q, want empty", got)
	}
}
