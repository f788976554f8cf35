package expander

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stageline-io/stageline/pkg/protocol"
)

type fakeProvider struct {
	content string
	err     error
	last    protocol.CompletionRequest
}

func (f *fakeProvider) Complete(_ context.Context, req protocol.CompletionRequest) (*protocol.CompletionResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &protocol.CompletionResponse{Content: f.content}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func planJSON(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(threeStagePlan())
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestExpand_PromptSections(t *testing.T) {
	prov := &fakeProvider{content: `{"stage_id":"S1","stage_title":"Scaffold","tickets":[]}`}
	e := New(prov, nil)

	raw, err := e.Expand(context.Background(), ExpansionContext{
		ProjectDescription: "build a todo app",
		Images:             []protocol.ImageAttachment{{Data: "AAAA", Description: "home", Filename: "home.png"}},
		StagePlanJSON:      planJSON(t),
		TargetStageID:      "S1",
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.HasPrefix(raw, "{") {
		t.Errorf("raw = %q", raw)
	}

	text := prov.last.Text
	for _, tag := range []string{"project_description", "screenshots", "stages_json", "target_stage", "previous_stages_tickets"} {
		if !strings.Contains(text, "<"+tag+">") {
			t.Errorf("prompt missing <%s> section", tag)
		}
	}
	if !strings.Contains(text, "Image 1 (home.png): home") {
		t.Error("screenshot caption missing")
	}
	// First stage: the prior array is explicit, not omitted.
	if !strings.Contains(text, "<previous_stages_tickets>\n[]\n</previous_stages_tickets>") {
		t.Error("empty prior ticket sets not serialized as []")
	}
	if !prov.last.JSONMode {
		t.Error("JSONMode not set")
	}
}

func TestExpand_PriorSetsSerialized(t *testing.T) {
	prov := &fakeProvider{content: "{}"}
	e := New(prov, nil)

	prior := []*protocol.TicketSet{
		{StageID: "S1", StageTitle: "Scaffold", Tickets: []protocol.Ticket{{TicketID: "S1-T1", Title: "Init repo"}}},
		{StageID: "S2", StageTitle: "Core", Tickets: []protocol.Ticket{}},
	}
	_, err := e.Expand(context.Background(), ExpansionContext{
		ProjectDescription: "d",
		StagePlanJSON:      planJSON(t),
		TargetStageID:      "S3",
		Prior:              prior,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.Contains(prov.last.Text, `"S1-T1"`) {
		t.Error("prior tickets not embedded in prompt")
	}
	if strings.Index(prov.last.Text, `"S1"`) > strings.Index(prov.last.Text, `"S2"`) {
		t.Error("prior sets not in ascending plan order")
	}
}

func TestExpand_DefensiveGate(t *testing.T) {
	e := New(&fakeProvider{content: "{}"}, nil)

	_, err := e.Expand(context.Background(), ExpansionContext{
		ProjectDescription: "d",
		StagePlanJSON:      planJSON(t),
		TargetStageID:      "S3",
		Prior:              []*protocol.TicketSet{set("S1")}, // plan demands two
	})
	var dnre *DependencyNotReadyError
	if !errors.As(err, &dnre) {
		t.Fatalf("err = %v, want DependencyNotReadyError", err)
	}
	if dnre.Want != 2 || dnre.Got != 1 {
		t.Errorf("want/got = %d/%d", dnre.Want, dnre.Got)
	}

	_, err = e.Expand(context.Background(), ExpansionContext{
		ProjectDescription: "d",
		StagePlanJSON:      planJSON(t),
		TargetStageID:      "S9",
	})
	var use *UnknownStageError
	if !errors.As(err, &use) {
		t.Fatalf("err = %v, want UnknownStageError", err)
	}
}

func TestExpand_UndecodablePlanSkipsGate(t *testing.T) {
	prov := &fakeProvider{content: "{}"}
	e := New(prov, nil)

	// Raw pass-through mode: the plan text never parsed, so the expander
	// cannot verify priors and must not reject.
	_, err := e.Expand(context.Background(), ExpansionContext{
		ProjectDescription: "d",
		StagePlanJSON:      "stage one then stage two",
		TargetStageID:      "S2",
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence with trailing newline", "```json\n{\"a\":1}\n```\n", `{"a":1}`},
		{"leading prose", "Here you go:\n{\"a\":1}\nDone.", `{"a":1}`},
		{"whitespace", "  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFence(tt.in); got != tt.want {
				t.Errorf("StripFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseTicketSet(t *testing.T) {
	raw := `{"stage_id":"S1","stage_title":"Scaffold","tickets":[{"ticket_id":"S1-T1","title":"Init","scope":["a","b"]}]}`
	got, err := ParseTicketSet(raw)
	if err != nil {
		t.Fatalf("ParseTicketSet: %v", err)
	}
	if got.StageID != "S1" || len(got.Tickets) != 1 || got.Tickets[0].Scope[1] != "b" {
		t.Errorf("set = %+v", got)
	}
}

func TestParseTicketSet_Malformed(t *testing.T) {
	for _, raw := range []string{"not json", `{"tickets":[]}`} {
		_, err := ParseTicketSet(raw)
		var mte *MalformedTicketSetError
		if !errors.As(err, &mte) {
			t.Fatalf("err = %v, want MalformedTicketSetError", err)
		}
		if mte.Raw != raw {
			t.Error("raw text not preserved")
		}
	}
}
