// Package expander turns one selected stage of a plan into engineering
// tickets, feeding the generator every causally-prior stage's tickets, and
// gates expansion on those priors existing.
package expander

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stageline-io/stageline/internal/planner"
	"github.com/stageline-io/stageline/internal/provider"
	"github.com/stageline-io/stageline/pkg/protocol"
)

// ExpansionContext is the full input for one expansion call. It is
// assembled fresh per call and never persisted. Prior must hold the ticket
// sets of every stage preceding the target, in ascending plan order.
type ExpansionContext struct {
	ProjectDescription string
	Images             []protocol.ImageAttachment
	StagePlanJSON      string
	TargetStageID      string
	Prior              []*protocol.TicketSet
}

// Expander generates ticket sets via a generation provider. Stateless.
type Expander struct {
	prov   provider.Provider
	logger *slog.Logger
}

// New creates an Expander. logger may be nil.
func New(prov provider.Provider, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{prov: prov, logger: logger}
}

// Expand generates tickets for the target stage and returns the raw
// generated text with any code-fence wrapper stripped. Use ParseTicketSet
// to decode the result.
//
// When the stage plan JSON decodes cleanly, Expand re-checks the
// dependency contract: the target must exist in the plan and ec.Prior must
// hold exactly one set per preceding stage. An undecodable plan skips the
// check and passes through to the generator verbatim.
func (e *Expander) Expand(ctx context.Context, ec ExpansionContext) (string, error) {
	if plan, err := planner.ParsePlan(ec.StagePlanJSON); err == nil {
		idx := plan.StageIndex(ec.TargetStageID)
		if idx < 0 {
			return "", &UnknownStageError{StageID: ec.TargetStageID}
		}
		if len(ec.Prior) != idx {
			return "", &DependencyNotReadyError{
				StageID: ec.TargetStageID,
				Want:    idx,
				Got:     len(ec.Prior),
			}
		}
	}

	text, err := buildUserText(ec)
	if err != nil {
		return "", err
	}

	resp, err := e.prov.Complete(ctx, protocol.CompletionRequest{
		System:   ticketPrompt,
		Text:     text,
		Images:   ec.Images,
		JSONMode: true,
	})
	if err != nil {
		return "", fmt.Errorf("expander: %w", err)
	}

	e.logger.Debug("tickets generated",
		"provider", e.prov.Name(),
		"stage", ec.TargetStageID,
		"prior_sets", len(ec.Prior),
		"tokens", resp.Usage.TotalTokens())
	return StripFence(resp.Content), nil
}

// buildUserText assembles the sectioned prompt body. The prior ticket sets
// are serialized even when empty: an explicit [] tells the generator this
// is the first stage.
func buildUserText(ec ExpansionContext) (string, error) {
	prior := ec.Prior
	if prior == nil {
		prior = []*protocol.TicketSet{}
	}
	priorJSON, err := json.MarshalIndent(prior, "", "  ")
	if err != nil {
		return "", fmt.Errorf("expander: marshal prior ticket sets: %w", err)
	}

	screenshots := ec.ProjectDescription + protocol.ImageCaptions(ec.Images)

	var b strings.Builder
	section := func(tag, body string) {
		fmt.Fprintf(&b, "<%s>\n%s\n</%s>\n\n", tag, body, tag)
	}
	section("project_description", ec.ProjectDescription)
	section("screenshots", screenshots)
	section("stages_json", ec.StagePlanJSON)
	section("target_stage", ec.TargetStageID)
	section("previous_stages_tickets", string(priorJSON))
	return b.String(), nil
}

// StripFence removes a markdown code-fence wrapper from generator output.
// The generator is instructed to emit bare JSON but is not fully
// trustworthy about it. A leading fence line and trailing fence are cut;
// failing that, output with junk around a JSON object is sliced from the
// first '{' to the last '}'. Already-bare output passes through untouched.
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if _, body, ok := strings.Cut(s, "\n"); ok {
			s = body
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
		return s
	}
	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			return s[start : end+1]
		}
	}
	return s
}

// MalformedTicketSetError reports generator output that failed strict
// TicketSet decoding. Raw preserves the offending text.
type MalformedTicketSetError struct {
	Raw string
	Err error
}

func (e *MalformedTicketSetError) Error() string {
	return fmt.Sprintf("expander: malformed ticket set: %v", e.Err)
}

func (e *MalformedTicketSetError) Unwrap() error { return e.Err }

// ParseTicketSet decodes raw generator output into a TicketSet with the
// same fail-loud policy as planner.ParsePlan.
func ParseTicketSet(raw string) (*protocol.TicketSet, error) {
	var set protocol.TicketSet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, &MalformedTicketSetError{Raw: raw, Err: err}
	}
	if set.StageID == "" {
		return nil, &MalformedTicketSetError{Raw: raw, Err: fmt.Errorf("missing stage_id")}
	}
	return &set, nil
}
