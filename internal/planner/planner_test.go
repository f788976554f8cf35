package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stageline-io/stageline/pkg/protocol"
)

// fakeProvider records the last request and returns a canned response.
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

func TestPlan_PayloadAssembly(t *testing.T) {
	prov := &fakeProvider{content: "{}"}
	p := New(prov, nil)

	images := []protocol.ImageAttachment{
		{Data: "AAAA", Description: "home screen", Filename: "home.png"},
		{Data: "BBBB", Filename: "menu.png"},
	}
	if _, err := p.Plan(context.Background(), "build a todo app", images); err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if !prov.last.JSONMode {
		t.Error("JSONMode not set")
	}
	if prov.last.System != stagePlanPrompt {
		t.Error("system instruction not the fixed stage-plan prompt")
	}
	want := "build a todo app\n\nImage 1 (home.png): home screen\n\nImage 2 (menu.png)"
	if prov.last.Text != want {
		t.Errorf("text = %q, want %q", prov.last.Text, want)
	}
	if len(prov.last.Images) != 2 {
		t.Errorf("got %d images attached", len(prov.last.Images))
	}
}

func TestPlan_NoImagesDegeneratesToPlainText(t *testing.T) {
	prov := &fakeProvider{content: "{}"}
	p := New(prov, nil)

	if _, err := p.Plan(context.Background(), "build a todo app", nil); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if prov.last.Text != "build a todo app" {
		t.Errorf("text = %q", prov.last.Text)
	}
	if len(prov.last.Images) != 0 {
		t.Errorf("got %d images", len(prov.last.Images))
	}
}

func TestPlan_ProviderError(t *testing.T) {
	prov := &fakeProvider{err: errors.New("boom")}
	p := New(prov, nil)

	_, err := p.Plan(context.Background(), "x", nil)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v", err)
	}
}

func TestParsePlan(t *testing.T) {
	raw := `{"project_name":"demo","assumptions":["a"],"stages":[
		{"stage_id":"S1","title":"Setup","goal":"g","repo_changes":{"custom":"field"}},
		{"stage_id":"S2","title":"Core"}
	]}`
	plan, err := ParsePlan(raw)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if plan.ProjectName != "demo" || len(plan.Stages) != 2 {
		t.Errorf("plan = %+v", plan)
	}
	if plan.StageIndex("S2") != 1 {
		t.Errorf("StageIndex(S2) = %d", plan.StageIndex("S2"))
	}
	// Opaque sub-records survive verbatim.
	if string(plan.Stages[0].RepoChanges) != `{"custom":"field"}` {
		t.Errorf("repo_changes = %s", plan.Stages[0].RepoChanges)
	}
}

func TestParsePlan_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "here are your stages: ..."},
		{"no stages", `{"project_name":"demo","stages":[]}`},
		{"duplicate ids", `{"stages":[{"stage_id":"S1"},{"stage_id":"S1"}]}`},
		{"empty id", `{"stages":[{"stage_id":""}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan(tt.raw)
			var mpe *MalformedPlanError
			if !errors.As(err, &mpe) {
				t.Fatalf("err = %v, want MalformedPlanError", err)
			}
			if mpe.Raw != tt.raw {
				t.Error("raw text not preserved")
			}
		})
	}
}
