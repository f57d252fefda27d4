// Package cds implements the collaborative decision engine: the Issue
// state machine, scenario voting and objections, consensus scoring, and
// decision dispatch to the other subsystems (spec.md §4.E).
package cds

import "time"

// IssueStatus enumerates the Issue lifecycle (spec.md §3).
type IssueStatus string

const (
	IssueIntake       IssueStatus = "intake"
	IssueStructured   IssueStatus = "structured"
	IssueContextReady IssueStatus = "context_ready"
	IssueDeliberation IssueStatus = "deliberation"
	IssueDecided      IssueStatus = "decided"
	IssueDispatched   IssueStatus = "dispatched"
	IssueUnderReview  IssueStatus = "under_review"
	IssueReopened     IssueStatus = "reopened"
	IssueAmended      IssueStatus = "amended"
)

// SubmissionType enumerates Submission.type (spec.md §3).
type SubmissionType string

const (
	SubmissionProposal     SubmissionType = "proposal"
	SubmissionObjection    SubmissionType = "objection"
	SubmissionComment      SubmissionType = "comment"
	SubmissionSystemSignal SubmissionType = "system_signal"
)

// Issue is the central CDS entity (spec.md §3).
type Issue struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	NodeID      string         `json:"nodeId"`
	Status      IssueStatus    `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Submissions []Submission   `json:"submissions"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Submission is exclusively owned by its issue (spec.md §3).
type Submission struct {
	ID        string         `json:"id"`
	IssueID   string         `json:"issueId"`
	AuthorID  string         `json:"authorId"`
	Type      SubmissionType `json:"type"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ScenarioParameters carries the structured routing hints dispatch()
// inspects (spec.md §3).
type ScenarioParameters struct {
	OADDesignRequired bool           `json:"oadDesignRequired,omitempty"`
	COSTaskRequired   bool           `json:"cosTaskRequired,omitempty"`
	ITCPolicyChange   bool           `json:"itcPolicyChange,omitempty"`
	Materials         map[string]any `json:"materials,omitempty"`
	OADFlags          map[string]any `json:"oadFlags,omitempty"`
	ITCAdjustments    map[string]any `json:"itcAdjustments,omitempty"`
	Monitors          []string       `json:"monitors,omitempty"`
}

// Scenario is a candidate resolution for an Issue (spec.md §3).
type Scenario struct {
	ID         string             `json:"id"`
	IssueID    string             `json:"issueId"`
	Label      string             `json:"label"`
	Parameters ScenarioParameters `json:"parameters"`
	Indicators map[string]any     `json:"indicators,omitempty"`
}

// SupportLevel is a discrete vote value (spec.md §3).
type SupportLevel string

const (
	SupportStrong   SupportLevel = "strong_support"
	SupportSupport  SupportLevel = "support"
	SupportNeutral  SupportLevel = "neutral"
	SupportConcern  SupportLevel = "concern"
	SupportBlock    SupportLevel = "block"
)

// Numeric returns the signed numeric contribution of a support level, per
// spec.md §3: strong_support(+1), support(+0.5), neutral(0),
// concern(-0.5), block(-1).
func (l SupportLevel) Numeric() float64 {
	switch l {
	case SupportStrong:
		return 1
	case SupportSupport:
		return 0.5
	case SupportConcern:
		return -0.5
	case SupportBlock:
		return -1
	default:
		return 0
	}
}

// Vote is at most one per (participant, scenario); re-casting replaces
// (spec.md §3).
type Vote struct {
	ParticipantID string       `json:"participantId"`
	ScenarioID    string       `json:"scenarioId"`
	SupportLevel  SupportLevel `json:"supportLevel"`
	Weight        float64      `json:"weight"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// Objection registers a concern against a scenario (spec.md §3).
type Objection struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participantId"`
	IssueID       string    `json:"issueId"`
	ScenarioID    string    `json:"scenarioId"`
	Severity      float64   `json:"severity"`
	Scope         float64   `json:"scope"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Directive is the outcome of the consensus directive rule (spec.md §4.E).
type Directive string

const (
	DirectiveApprove  Directive = "approve"
	DirectiveRevise   Directive = "revise"
	DirectiveEscalate Directive = "escalate"
)

// ConsensusResult is the scenario-level scoring outcome.
type ConsensusResult struct {
	ScenarioID      string    `json:"scenarioId"`
	ConsensusScore  float64   `json:"consensusScore"`
	ObjectionIndex  float64   `json:"objectionIndex"`
	Directive       Directive `json:"directive"`
	VoterCount      int       `json:"voterCount"`
	ComputedAt      time.Time `json:"computedAt"`
}

// DecisionStatus enumerates Decision.status (spec.md §3).
type DecisionStatus string

const (
	DecisionApproved DecisionStatus = "approved"
	DecisionAmended  DecisionStatus = "amended"
	DecisionRejected DecisionStatus = "rejected"
)

// Decision is the durable outcome of make_decision/amend_decision
// (spec.md §3).
type Decision struct {
	ID                   string         `json:"id"`
	IssueID              string         `json:"issueId"`
	ScenarioID           string         `json:"scenarioId"`
	Status               DecisionStatus `json:"status"`
	ConsensusScore       float64        `json:"consensusScore"`
	ObjectionIndex       float64        `json:"objectionIndex"`
	DecidedAt            time.Time      `json:"decidedAt"`
	RationaleHash        string         `json:"rationaleHash"`
	SupersedesDecisionID *string        `json:"supersedesDecisionId,omitempty"`
}

// DispatchTask is one routed sub-task of a Dispatch packet (spec.md §3).
type DispatchTask struct {
	System  string         `json:"system"`
	Payload map[string]any `json:"payload"`
}

// DispatchPacket is produced by dispatch() (spec.md §3). It does not
// itself execute downstream work — downstream subsystems consume it.
type DispatchPacket struct {
	ID             string         `json:"id"`
	IssueID        string         `json:"issueId"`
	ScenarioID     string         `json:"scenarioId"`
	CreatedAt      time.Time      `json:"createdAt"`
	Tasks          []DispatchTask `json:"tasks"`
	Materials      map[string]any `json:"materials,omitempty"`
	OADFlags       map[string]any `json:"oadFlags,omitempty"`
	ITCAdjustments map[string]any `json:"itcAdjustments,omitempty"`
	FRSMonitors    []string       `json:"frsMonitors,omitempty"`
}
