// Package planner produces the ordered stage plan for a project description.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stageline-io/stageline/internal/provider"
	"github.com/stageline-io/stageline/pkg/protocol"
)

// jsonMode is the pipeline-wide response mode for plan generation. It is a
// constant, not per-call configuration: the system instruction demands raw
// JSON and the provider-level mode backs it up where the API supports one.
const jsonMode = true

// Planner generates stage plans via a generation provider. Stateless; all
// inputs arrive per call and the result is returned to the caller.
type Planner struct {
	prov   provider.Provider
	logger *slog.Logger
}

// New creates a Planner. logger may be nil.
func New(prov provider.Provider, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{prov: prov, logger: logger}
}

// Plan generates a stage plan for the description and optional screenshots,
// returning the raw generated text. The caller validates that description is
// non-empty before calling. Use ParsePlan to decode the result.
func (p *Planner) Plan(ctx context.Context, description string, images []protocol.ImageAttachment) (string, error) {
	text := description + protocol.ImageCaptions(images)

	resp, err := p.prov.Complete(ctx, protocol.CompletionRequest{
		System:   stagePlanPrompt,
		Text:     text,
		Images:   images,
		JSONMode: jsonMode,
	})
	if err != nil {
		return "", fmt.Errorf("planner: %w", err)
	}

	p.logger.Debug("stage plan generated",
		"provider", p.prov.Name(),
		"images", len(images),
		"tokens", resp.Usage.TotalTokens())
	return resp.Content, nil
}

// MalformedPlanError reports generator output that failed strict StagePlan
// decoding. Raw preserves the offending text so callers can surface it.
type MalformedPlanError struct {
	Raw string
	Err error
}

func (e *MalformedPlanError) Error() string {
	return fmt.Sprintf("planner: malformed stage plan: %v", e.Err)
}

func (e *MalformedPlanError) Unwrap() error { return e.Err }

// ParsePlan decodes raw generator output into a StagePlan and validates its
// structural invariants. Failure yields a MalformedPlanError carrying the
// raw text; the output is never coerced into a default shape.
func ParsePlan(raw string) (*protocol.StagePlan, error) {
	var plan protocol.StagePlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, &MalformedPlanError{Raw: raw, Err: err}
	}
	if err := plan.Validate(); err != nil {
		return nil, &MalformedPlanError{Raw: raw, Err: err}
	}
	return &plan, nil
}
