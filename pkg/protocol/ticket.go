package protocol

// Ticket is one engineering work item derived from a stage. Beyond the
// identity fields the content is payload the pipeline carries through
// untouched; list fields keep their generator-produced order.
type Ticket struct {
	TicketID           string   `json:"ticket_id"`
	Title              string   `json:"title"`
	Context            string   `json:"context,omitempty"`
	Scope              []string `json:"scope,omitempty"`
	NonScope           []string `json:"non_scope,omitempty"`
	TechnicalApproach  string   `json:"technical_approach,omitempty"`
	FilesOrModules     []string `json:"files_or_modules,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	EdgeCases          []string `json:"edge_cases,omitempty"`
	Validation         []string `json:"validation,omitempty"`
	Dependencies       []string `json:"dependencies,omitempty"`
}

// TicketSet is all tickets produced for one stage. A stage has at most one
// ticket set per session; regenerating replaces the prior set wholesale.
type TicketSet struct {
	StageID    string   `json:"stage_id"`
	StageTitle string   `json:"stage_title"`
	Tickets    []Ticket `json:"tickets"`
}
