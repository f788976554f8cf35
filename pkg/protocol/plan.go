package protocol

import (
	"encoding/json"
	"fmt"
)

// Stage is one ordered unit of a stage plan. The structured sub-records
// (repo changes, architecture, implementation details, quality strategy)
// are opaque payload: they are carried as raw JSON so re-serialization is
// lossless regardless of what the generator put in them.
type Stage struct {
	StageID  string   `json:"stage_id"`
	Title    string   `json:"title"`
	Goal     string   `json:"goal,omitempty"`
	ScopeIn  []string `json:"scope_in,omitempty"`
	ScopeOut []string `json:"scope_out,omitempty"`

	RepoChanges           json.RawMessage `json:"repo_changes,omitempty"`
	Architecture          json.RawMessage `json:"architecture,omitempty"`
	ImplementationDetails json.RawMessage `json:"implementation_details,omitempty"`
	QualityStrategy       json.RawMessage `json:"quality_strategy,omitempty"`

	ExitCriteria []string `json:"stage_exit_criteria,omitempty"`
}

// StagePlan is the full ordered list of stages for a project. The sequence
// order defines the dependency order: a stage may depend only on stages
// that precede it. Plans are never mutated in place; regeneration produces
// a new plan.
type StagePlan struct {
	ProjectName string   `json:"project_name"`
	Assumptions []string `json:"assumptions,omitempty"`
	Stages      []Stage  `json:"stages"`
}

// StageIndex returns the position of the stage with the given id,
// or -1 if the plan has no such stage.
func (p *StagePlan) StageIndex(stageID string) int {
	for i, s := range p.Stages {
		if s.StageID == stageID {
			return i
		}
	}
	return -1
}

// Validate checks the plan's structural invariants: at least one stage,
// non-empty stage ids, and ids unique within the plan.
func (p *StagePlan) Validate() error {
	if len(p.Stages) == 0 {
		return fmt.Errorf("plan has no stages")
	}
	seen := make(map[string]struct{}, len(p.Stages))
	for i, s := range p.Stages {
		if s.StageID == "" {
			return fmt.Errorf("stage[%d] has empty stage_id", i)
		}
		if _, dup := seen[s.StageID]; dup {
			return fmt.Errorf("duplicate stage_id %q", s.StageID)
		}
		seen[s.StageID] = struct{}{}
	}
	return nil
}
