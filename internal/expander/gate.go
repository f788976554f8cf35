package expander

import (
	"fmt"

	"github.com/stageline-io/stageline/pkg/protocol"
)

// Readiness is the dependency gate's verdict for one candidate stage.
// Prior is populated only when Allowed: the ticket sets of every stage
// preceding the target, in ascending plan order.
type Readiness struct {
	Allowed bool
	Prior   []*protocol.TicketSet
}

// UnknownStageError reports a target stage id absent from the plan.
type UnknownStageError struct {
	StageID string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown stage %q", e.StageID)
}

// DependencyNotReadyError reports expansion attempted before every
// causally-prior stage has a ticket set.
type DependencyNotReadyError struct {
	StageID string
	Want    int // prior ticket sets the plan demands
	Got     int
}

func (e *DependencyNotReadyError) Error() string {
	return fmt.Sprintf("stage %q not ready: have %d of %d prior ticket sets", e.StageID, e.Got, e.Want)
}

// StageReadiness decides whether the target stage may be expanded given the
// ticket sets produced so far, and collects the prior context to feed the
// expander.
//
// Priors are returned in plan order, not produced-map insertion order: the
// generator sees prior stage context in causal order, matching how the
// project was decomposed. Ticket sets for stages at or after the target are
// excluded: strictly causal context only. The first stage is always
// expandable.
func StageReadiness(plan *protocol.StagePlan, produced map[string]*protocol.TicketSet, target string) (Readiness, error) {
	idx := plan.StageIndex(target)
	if idx < 0 {
		return Readiness{}, &UnknownStageError{StageID: target}
	}

	prior := make([]*protocol.TicketSet, 0, idx)
	for _, stage := range plan.Stages[:idx] {
		set, ok := produced[stage.StageID]
		if !ok {
			return Readiness{Allowed: false}, nil
		}
		prior = append(prior, set)
	}
	return Readiness{Allowed: true, Prior: prior}, nil
}
