package expander

import (
	"errors"
	"testing"

	"github.com/stageline-io/stageline/pkg/protocol"
)

func threeStagePlan() *protocol.StagePlan {
	return &protocol.StagePlan{
		ProjectName: "demo",
		Stages: []protocol.Stage{
			{StageID: "S1", Title: "Scaffold"},
			{StageID: "S2", Title: "Core"},
			{StageID: "S3", Title: "Polish"},
		},
	}
}

func set(stageID string) *protocol.TicketSet {
	return &protocol.TicketSet{StageID: stageID, StageTitle: stageID, Tickets: []protocol.Ticket{}}
}

func TestStageReadiness_FirstStageAlwaysAllowed(t *testing.T) {
	r, err := StageReadiness(threeStagePlan(), map[string]*protocol.TicketSet{}, "S1")
	if err != nil {
		t.Fatalf("StageReadiness: %v", err)
	}
	if !r.Allowed {
		t.Error("first stage not allowed")
	}
	if len(r.Prior) != 0 {
		t.Errorf("prior = %d sets, want 0", len(r.Prior))
	}
}

func TestStageReadiness_CausalOrder(t *testing.T) {
	t1, t2 := set("S1"), set("S2")
	// Insertion order deliberately reversed; plan order must win.
	produced := map[string]*protocol.TicketSet{}
	produced["S2"] = t2
	produced["S1"] = t1

	r, err := StageReadiness(threeStagePlan(), produced, "S3")
	if err != nil {
		t.Fatalf("StageReadiness: %v", err)
	}
	if !r.Allowed {
		t.Fatal("S3 not allowed with both priors produced")
	}
	if len(r.Prior) != 2 || r.Prior[0] != t1 || r.Prior[1] != t2 {
		t.Errorf("prior order wrong: %v", r.Prior)
	}
}

func TestStageReadiness_Refusal(t *testing.T) {
	produced := map[string]*protocol.TicketSet{"S1": set("S1")} // S2 missing
	r, err := StageReadiness(threeStagePlan(), produced, "S3")
	if err != nil {
		t.Fatalf("StageReadiness: %v", err)
	}
	if r.Allowed {
		t.Error("S3 allowed with S2 missing")
	}
}

func TestStageReadiness_ExcludesNonCausal(t *testing.T) {
	// S3 already expanded out of order; it must not leak into S2's context.
	produced := map[string]*protocol.TicketSet{
		"S1": set("S1"),
		"S3": set("S3"),
	}
	r, err := StageReadiness(threeStagePlan(), produced, "S2")
	if err != nil {
		t.Fatalf("StageReadiness: %v", err)
	}
	if !r.Allowed {
		t.Fatal("S2 not allowed")
	}
	if len(r.Prior) != 1 || r.Prior[0].StageID != "S1" {
		t.Errorf("prior = %v, want only S1", r.Prior)
	}
}

func TestStageReadiness_UnknownStage(t *testing.T) {
	_, err := StageReadiness(threeStagePlan(), nil, "S9")
	var use *UnknownStageError
	if !errors.As(err, &use) {
		t.Fatalf("err = %v, want UnknownStageError", err)
	}
	if use.StageID != "S9" {
		t.Errorf("stage id = %q", use.StageID)
	}
}
