package cds

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/pkg/apierrors"
	"github.com/liminalvillage/integral-sub001/pkg/logging"
)

// ParticipantWeighter resolves a participant to its consensus weight.
// Implemented by internal/identity.Service; accepted here as an interface
// so CDS couples to identity through a signal contract, not an object
// graph (spec.md §9).
type ParticipantWeighter interface {
	ParticipantWeight(ctx context.Context, participantID string) (float64, error)
}

// Service implements the CDS decision engine operations of spec.md §4.E.
type Service struct {
	nodeID     string
	store      Store
	ledger     *ledger.Ledger
	logger     *logging.Logger
	thresholds Thresholds
	weights    ParticipantWeighter
}

// New constructs a cds.Service bound to nodeID.
func New(nodeID string, store Store, l *ledger.Ledger, logger *logging.Logger, thresholds Thresholds, weights ParticipantWeighter) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{nodeID: nodeID, store: store, ledger: l, logger: logger, thresholds: thresholds, weights: weights}
}

// CreateIssue implements create_issue: the issue starts in intake.
func (s *Service) CreateIssue(ctx context.Context, title, description string, metadata map[string]any) (Issue, error) {
	now := time.Now().UTC()
	issue := Issue{
		ID: uuid.New().String(), Title: title, Description: description,
		NodeID: s.nodeID, Status: IssueIntake, CreatedAt: now, UpdatedAt: now, Metadata: metadata,
	}
	if err := s.store.PutIssue(ctx, issue); err != nil {
		return Issue{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist issue", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "cds.issue_created", s.nodeID, nil,
		map[string]string{"issue_id": issue.ID}, map[string]any{"title": title}); err != nil {
		return Issue{}, err
	}
	return issue, nil
}

// addSubmissionStates are the issue states in which any caller may add a
// submission (spec.md §4.E).
var addSubmissionStates = map[IssueStatus]bool{
	IssueIntake: true, IssueStructured: true, IssueContextReady: true, IssueDeliberation: true,
}

// AddSubmission appends a submission while the issue is open to
// submissions (spec.md §4.E).
func (s *Service) AddSubmission(ctx context.Context, issueID, authorID string, subType SubmissionType, content string, metadata map[string]any) (Submission, error) {
	issue, ok, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		return Submission{}, apierrors.Wrap(apierrors.KindIntegrityError, "read issue", 500, err)
	}
	if !ok {
		return Submission{}, apierrors.NotFound("issue", issueID)
	}
	if !addSubmissionStates[issue.Status] {
		return Submission{}, apierrors.InvalidTransition("issue", string(issue.Status), "submission_accepted")
	}

	submission := Submission{
		ID: uuid.New().String(), IssueID: issueID, AuthorID: authorID,
		Type: subType, Content: content, CreatedAt: time.Now().UTC(), Metadata: metadata,
	}
	issue.Submissions = append(issue.Submissions, submission)
	issue.UpdatedAt = time.Now().UTC()
	if err := s.store.PutIssue(ctx, issue); err != nil {
		return Submission{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist issue", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "cds.submission_added", s.nodeID, &authorID,
		map[string]string{"issue_id": issueID, "submission_id": submission.ID}, map[string]any{"type": subType}); err != nil {
		return Submission{}, err
	}
	return submission, nil
}

func (s *Service) transition(ctx context.Context, issueID string, from, to IssueStatus, entryType string, details map[string]any) (Issue, error) {
	issue, ok, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		return Issue{}, apierrors.Wrap(apierrors.KindIntegrityError, "read issue", 500, err)
	}
	if !ok {
		return Issue{}, apierrors.NotFound("issue", issueID)
	}
	if issue.Status != from {
		return Issue{}, apierrors.InvalidTransition("issue", string(issue.Status), string(to))
	}
	issue.Status = to
	issue.UpdatedAt = time.Now().UTC()
	if err := s.store.PutIssue(ctx, issue); err != nil {
		return Issue{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist issue", 500, err)
	}
	if _, err := s.ledger.Append(ctx, entryType, s.nodeID, nil, map[string]string{"issue_id": issueID}, details); err != nil {
		return Issue{}, err
	}
	s.logger.LogStateTransition(ctx, "issue", issueID, string(from), string(to))
	return issue, nil
}

// StructureIssue implements structure_issue.
func (s *Service) StructureIssue(ctx context.Context, issueID string, structuredData map[string]any) (Issue, error) {
	return s.transition(ctx, issueID, IssueIntake, IssueStructured, "cds.issue_structured", structuredData)
}

// PrepareContext implements prepare_context.
func (s *Service) PrepareContext(ctx context.Context, issueID string, contextData map[string]any) (Issue, error) {
	return s.transition(ctx, issueID, IssueStructured, IssueContextReady, "cds.issue_context_prepared", contextData)
}

// OpenDeliberation implements open_deliberation.
func (s *Service) OpenDeliberation(ctx context.Context, issueID string) (Issue, error) {
	return s.transition(ctx, issueID, IssueContextReady, IssueDeliberation, "cds.deliberation_opened", nil)
}

// AddScenario adds a candidate resolution scenario to an issue under
// deliberation.
func (s *Service) AddScenario(ctx context.Context, issueID, label string, parameters ScenarioParameters) (Scenario, error) {
	issue, ok, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		return Scenario{}, apierrors.Wrap(apierrors.KindIntegrityError, "read issue", 500, err)
	}
	if !ok {
		return Scenario{}, apierrors.NotFound("issue", issueID)
	}
	if issue.Status != IssueDeliberation {
		return Scenario{}, apierrors.InvalidTransition("issue", string(issue.Status), "scenario_added")
	}
	scenario := Scenario{ID: uuid.New().String(), IssueID: issueID, Label: label, Parameters: parameters}
	if err := s.store.PutScenario(ctx, scenario); err != nil {
		return Scenario{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist scenario", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "cds.scenario_added", s.nodeID, nil,
		map[string]string{"issue_id": issueID, "scenario_id": scenario.ID}, map[string]any{"label": label}); err != nil {
		return Scenario{}, err
	}
	return scenario, nil
}

// CastVote implements cast_vote: replaces any prior vote for the same
// (participant, scenario); weight is clamped to W_max.
func (s *Service) CastVote(ctx context.Context, participantID, scenarioID string, level SupportLevel) (Vote, error) {
	if _, ok, err := s.store.GetScenario(ctx, scenarioID); err != nil {
		return Vote{}, apierrors.Wrap(apierrors.KindIntegrityError, "read scenario", 500, err)
	} else if !ok {
		return Vote{}, apierrors.NotFound("scenario", scenarioID)
	}

	weight, err := s.weights.ParticipantWeight(ctx, participantID)
	if err != nil {
		return Vote{}, err
	}
	if weight > s.thresholds.WMax {
		weight = s.thresholds.WMax
	}
	if weight < 0 {
		weight = 0
	}

	vote := Vote{ParticipantID: participantID, ScenarioID: scenarioID, SupportLevel: level, Weight: weight, CreatedAt: time.Now().UTC()}
	if err := s.store.PutVote(ctx, vote); err != nil {
		return Vote{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist vote", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "cds.vote_cast", s.nodeID, &participantID,
		map[string]string{"scenario_id": scenarioID}, map[string]any{"support_level": level, "weight": weight}); err != nil {
		return Vote{}, err
	}
	return vote, nil
}

// RegisterObjection implements register_objection: severity/scope each
// clamped to [0,1].
func (s *Service) RegisterObjection(ctx context.Context, participantID, issueID, scenarioID, description string, severity, scope float64) (Objection, error) {
	objection := Objection{
		ID: uuid.New().String(), ParticipantID: participantID, IssueID: issueID, ScenarioID: scenarioID,
		Severity: clamp01(severity), Scope: clamp01(scope), Description: description, CreatedAt: time.Now().UTC(),
	}
	if err := s.store.PutObjection(ctx, objection); err != nil {
		return Objection{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist objection", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "cds.objection_registered", s.nodeID, &participantID,
		map[string]string{"issue_id": issueID, "scenario_id": scenarioID, "objection_id": objection.ID}, map[string]any{
			"severity": objection.Severity, "scope": objection.Scope,
		}); err != nil {
		return Objection{}, err
	}
	return objection, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Evaluate computes the scenario-level consensus score C(s), objection
// index O(s), and the resulting Directive (spec.md §4.E).
func (s *Service) Evaluate(ctx context.Context, scenarioID string) (ConsensusResult, error) {
	votes, err := s.store.VotesByScenario(ctx, scenarioID)
	if err != nil {
		return ConsensusResult{}, apierrors.Wrap(apierrors.KindIntegrityError, "read votes", 500, err)
	}
	objections, err := s.store.ObjectionsByScenario(ctx, scenarioID)
	if err != nil {
		return ConsensusResult{}, apierrors.Wrap(apierrors.KindIntegrityError, "read objections", 500, err)
	}

	weightSum, numSum := 0.0, 0.0
	for _, v := range votes {
		weightSum += v.Weight
		numSum += v.Weight * v.SupportLevel.Numeric()
	}
	consensus := 0.0
	if weightSum > 0 {
		consensus = numSum / weightSum
	}

	objectionSum := 0.0
	for _, o := range objections {
		objectionSum += o.Severity * o.Scope
	}
	voterCount := len(votes)
	objectionIndex := objectionSum / float64(max(1, voterCount))

	directive := s.directive(consensus, objectionIndex)

	result := ConsensusResult{
		ScenarioID: scenarioID, ConsensusScore: consensus, ObjectionIndex: objectionIndex,
		Directive: directive, VoterCount: voterCount, ComputedAt: time.Now().UTC(),
	}
	s.logger.LogNumericPolicy(ctx, "cds.evaluate",
		map[string]any{"weight_sum": weightSum, "objection_sum": objectionSum, "voter_count": voterCount},
		map[string]any{"consensus_score": consensus, "objection_index": objectionIndex, "directive": directive})
	return result, nil
}

func (s *Service) directive(consensus, objectionIndex float64) Directive {
	t := s.thresholds
	if consensus >= t.ConsensusThreshold && objectionIndex <= t.ObjectionThreshold {
		return DirectiveApprove
	}
	if consensus >= t.MinConsensusThreshold {
		return DirectiveRevise
	}
	if t.EscalationEnabled {
		return DirectiveEscalate
	}
	return DirectiveRevise
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// rationalePayload is the exact structure hashed into Decision.rationale_hash:
// the full issue snapshot (including its ordered submissions), the full
// scenario snapshot, and the consensus result (SPEC_FULL.md §C.1 resolution
// of spec.md §9's open question).
type rationalePayload struct {
	IssueSnapshot    Issue           `json:"issue_snapshot"`
	ScenarioSnapshot Scenario        `json:"scenario_snapshot"`
	ConsensusResult  ConsensusResult `json:"consensus_result"`
}

func computeRationaleHash(issue Issue, scenario Scenario, result ConsensusResult) (string, error) {
	payload, err := json.Marshal(rationalePayload{IssueSnapshot: issue, ScenarioSnapshot: scenario, ConsensusResult: result})
	if err != nil {
		return "", fmt.Errorf("marshal rationale payload: %w", err)
	}
	h := sha256.Sum256(payload)
	return hex.EncodeToString(h[:]), nil
}

// MakeDecision implements make_decision: requires directive == approve.
func (s *Service) MakeDecision(ctx context.Context, issueID, scenarioID string, result ConsensusResult) (Decision, error) {
	if result.Directive != DirectiveApprove {
		return Decision{}, apierrors.PolicyRejected("make_decision requires an approve directive")
	}
	issue, ok, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		return Decision{}, apierrors.Wrap(apierrors.KindIntegrityError, "read issue", 500, err)
	}
	if !ok {
		return Decision{}, apierrors.NotFound("issue", issueID)
	}
	if issue.Status != IssueDeliberation {
		return Decision{}, apierrors.InvalidTransition("issue", string(issue.Status), string(IssueDecided))
	}
	scenario, ok, err := s.store.GetScenario(ctx, scenarioID)
	if err != nil {
		return Decision{}, apierrors.Wrap(apierrors.KindIntegrityError, "read scenario", 500, err)
	}
	if !ok {
		return Decision{}, apierrors.NotFound("scenario", scenarioID)
	}

	rationaleHash, err := computeRationaleHash(issue, scenario, result)
	if err != nil {
		return Decision{}, apierrors.Wrap(apierrors.KindIntegrityError, "compute rationale hash", 500, err)
	}

	decision := Decision{
		ID: uuid.New().String(), IssueID: issueID, ScenarioID: scenarioID, Status: DecisionApproved,
		ConsensusScore: result.ConsensusScore, ObjectionIndex: result.ObjectionIndex,
		DecidedAt: time.Now().UTC(), RationaleHash: rationaleHash,
	}
	if err := s.store.PutDecision(ctx, decision); err != nil {
		return Decision{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist decision", 500, err)
	}

	issue.Status = IssueDecided
	issue.UpdatedAt = time.Now().UTC()
	if err := s.store.PutIssue(ctx, issue); err != nil {
		return Decision{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist issue", 500, err)
	}

	if _, err := s.ledger.Append(ctx, "cds.decision_made", s.nodeID, nil,
		map[string]string{"issue_id": issueID, "scenario_id": scenarioID, "decision_id": decision.ID}, map[string]any{
			"rationale_hash": rationaleHash, "consensus_score": result.ConsensusScore, "objection_index": result.ObjectionIndex,
		}); err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// Dispatch implements dispatch(): routes sub-tasks to OAD/COS/ITC by
// inspecting the scenario's parameters; a single ledger entry, no
// downstream execution.
func (s *Service) Dispatch(ctx context.Context, decision Decision) (DispatchPacket, error) {
	issue, ok, err := s.store.GetIssue(ctx, decision.IssueID)
	if err != nil {
		return DispatchPacket{}, apierrors.Wrap(apierrors.KindIntegrityError, "read issue", 500, err)
	}
	if !ok {
		return DispatchPacket{}, apierrors.NotFound("issue", decision.IssueID)
	}
	if issue.Status != IssueDecided {
		return DispatchPacket{}, apierrors.InvalidTransition("issue", string(issue.Status), string(IssueDispatched))
	}
	scenario, ok, err := s.store.GetScenario(ctx, decision.ScenarioID)
	if err != nil {
		return DispatchPacket{}, apierrors.Wrap(apierrors.KindIntegrityError, "read scenario", 500, err)
	}
	if !ok {
		return DispatchPacket{}, apierrors.NotFound("scenario", decision.ScenarioID)
	}

	var tasks []DispatchTask
	p := scenario.Parameters
	if p.OADDesignRequired {
		tasks = append(tasks, DispatchTask{System: "OAD", Payload: map[string]any{"oad_flags": p.OADFlags}})
	}
	if p.COSTaskRequired {
		tasks = append(tasks, DispatchTask{System: "COS", Payload: map[string]any{"materials": p.Materials}})
	}
	if p.ITCPolicyChange {
		tasks = append(tasks, DispatchTask{System: "ITC", Payload: map[string]any{"itc_adjustments": p.ITCAdjustments}})
	}

	packet := DispatchPacket{
		ID: uuid.New().String(), IssueID: decision.IssueID, ScenarioID: decision.ScenarioID,
		CreatedAt: time.Now().UTC(), Tasks: tasks, Materials: p.Materials, OADFlags: p.OADFlags,
		ITCAdjustments: p.ITCAdjustments, FRSMonitors: p.Monitors,
	}

	issue.Status = IssueDispatched
	issue.UpdatedAt = time.Now().UTC()
	if err := s.store.PutIssue(ctx, issue); err != nil {
		return DispatchPacket{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist issue", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "cds.dispatched", s.nodeID, nil,
		map[string]string{"issue_id": decision.IssueID, "decision_id": decision.ID, "dispatch_id": packet.ID}, map[string]any{
			"systems": dispatchSystems(tasks),
		}); err != nil {
		return DispatchPacket{}, err
	}
	return packet, nil
}

func dispatchSystems(tasks []DispatchTask) []string {
	systems := make([]string, 0, len(tasks))
	for _, t := range tasks {
		systems = append(systems, t.System)
	}
	return systems
}

// EscalateToDeliberation implements escalate_to_deliberation: records an
// escalation under metadata; no numeric consensus is overridden.
func (s *Service) EscalateToDeliberation(ctx context.Context, issueID, reason string) (Issue, error) {
	issue, ok, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		return Issue{}, apierrors.Wrap(apierrors.KindIntegrityError, "read issue", 500, err)
	}
	if !ok {
		return Issue{}, apierrors.NotFound("issue", issueID)
	}
	if issue.Metadata == nil {
		issue.Metadata = map[string]any{}
	}
	issue.Metadata["escalation_reason"] = reason
	issue.UpdatedAt = time.Now().UTC()
	if err := s.store.PutIssue(ctx, issue); err != nil {
		return Issue{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist issue", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "cds.escalated_to_deliberation", s.nodeID, nil,
		map[string]string{"issue_id": issueID}, map[string]any{"reason": reason}); err != nil {
		return Issue{}, err
	}
	return issue, nil
}

// RequestReview implements request_review: creates a new Issue referencing
// the original; sets the original issue to under_review.
func (s *Service) RequestReview(ctx context.Context, decisionID, reviewerID, reason string) (Issue, error) {
	decision, ok, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return Issue{}, apierrors.Wrap(apierrors.KindIntegrityError, "read decision", 500, err)
	}
	if !ok {
		return Issue{}, apierrors.NotFound("decision", decisionID)
	}
	original, ok, err := s.store.GetIssue(ctx, decision.IssueID)
	if err != nil {
		return Issue{}, apierrors.Wrap(apierrors.KindIntegrityError, "read issue", 500, err)
	}
	if !ok {
		return Issue{}, apierrors.NotFound("issue", decision.IssueID)
	}

	now := time.Now().UTC()
	reviewIssue := Issue{
		ID: uuid.New().String(), Title: "Review: " + original.Title,
		Description: reason, NodeID: s.nodeID, Status: IssueIntake,
		CreatedAt: now, UpdatedAt: now,
		Metadata: map[string]any{"reviews_issue_id": original.ID, "reviews_decision_id": decisionID, "requested_by": reviewerID},
	}
	if err := s.store.PutIssue(ctx, reviewIssue); err != nil {
		return Issue{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist issue", 500, err)
	}

	original.Status = IssueUnderReview
	original.UpdatedAt = now
	if err := s.store.PutIssue(ctx, original); err != nil {
		return Issue{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist issue", 500, err)
	}

	if _, err := s.ledger.Append(ctx, "cds.review_requested", s.nodeID, &reviewerID,
		map[string]string{"original_issue_id": original.ID, "review_issue_id": reviewIssue.ID, "decision_id": decisionID},
		map[string]any{"reason": reason}); err != nil {
		return Issue{}, err
	}
	return reviewIssue, nil
}

// AmendDecision implements amend_decision: produces a new Decision with
// supersedes_decision_id = original_id and status amended. Supersession is
// transitive; callers should follow the chain to find the effective
// decision.
func (s *Service) AmendDecision(ctx context.Context, originalID, newScenarioID string, newResult ConsensusResult) (Decision, error) {
	original, ok, err := s.store.GetDecision(ctx, originalID)
	if err != nil {
		return Decision{}, apierrors.Wrap(apierrors.KindIntegrityError, "read decision", 500, err)
	}
	if !ok {
		return Decision{}, apierrors.NotFound("decision", originalID)
	}

	issue, ok, err := s.store.GetIssue(ctx, original.IssueID)
	if err != nil {
		return Decision{}, apierrors.Wrap(apierrors.KindIntegrityError, "read issue", 500, err)
	}
	if !ok {
		return Decision{}, apierrors.NotFound("issue", original.IssueID)
	}
	scenario, ok, err := s.store.GetScenario(ctx, newScenarioID)
	if err != nil {
		return Decision{}, apierrors.Wrap(apierrors.KindIntegrityError, "read scenario", 500, err)
	}
	if !ok {
		return Decision{}, apierrors.NotFound("scenario", newScenarioID)
	}

	rationaleHash, err := computeRationaleHash(issue, scenario, newResult)
	if err != nil {
		return Decision{}, apierrors.Wrap(apierrors.KindIntegrityError, "compute rationale hash", 500, err)
	}

	amended := Decision{
		ID: uuid.New().String(), IssueID: original.IssueID, ScenarioID: newScenarioID,
		Status: DecisionAmended, ConsensusScore: newResult.ConsensusScore, ObjectionIndex: newResult.ObjectionIndex,
		DecidedAt: time.Now().UTC(), RationaleHash: rationaleHash, SupersedesDecisionID: &originalID,
	}
	if err := s.store.PutDecision(ctx, amended); err != nil {
		return Decision{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist decision", 500, err)
	}

	issue.Status = IssueAmended
	issue.UpdatedAt = time.Now().UTC()
	if err := s.store.PutIssue(ctx, issue); err != nil {
		return Decision{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist issue", 500, err)
	}

	if _, err := s.ledger.Append(ctx, "cds.decision_amended", s.nodeID, nil,
		map[string]string{"issue_id": original.IssueID, "original_decision_id": originalID, "amended_decision_id": amended.ID},
		map[string]any{"rationale_hash": rationaleHash}); err != nil {
		return Decision{}, err
	}
	return amended, nil
}
