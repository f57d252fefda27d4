package cds_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalvillage/integral-sub001/internal/cds"
	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/internal/storage/memory"
)

type fixedWeigher struct{ w float64 }

func (f fixedWeigher) ParticipantWeight(context.Context, string) (float64, error) { return f.w, nil }

func newTestService() *cds.Service {
	l := ledger.New("node-a", memory.NewLedgerStore(), nil, nil)
	return cds.New("node-a", memory.NewCDSStore(), l, nil, cds.DefaultThresholds(), fixedWeigher{w: 1.0})
}

func advanceToDeliberation(t *testing.T, svc *cds.Service, issueID string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.StructureIssue(ctx, issueID, nil)
	require.NoError(t, err)
	_, err = svc.PrepareContext(ctx, issueID, nil)
	require.NoError(t, err)
	_, err = svc.OpenDeliberation(ctx, issueID)
	require.NoError(t, err)
}

func TestIssueLifecycle_HappyPath(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	issue, err := svc.CreateIssue(ctx, "fix the kiln", "kiln overheats", nil)
	require.NoError(t, err)
	assert.Equal(t, cds.IssueIntake, issue.Status)

	advanceToDeliberation(t, svc, issue.ID)

	scenario, err := svc.AddScenario(ctx, issue.ID, "replace thermostat", cds.ScenarioParameters{COSTaskRequired: true})
	require.NoError(t, err)

	_, err = svc.CastVote(ctx, "p1", scenario.ID, cds.SupportStrong)
	require.NoError(t, err)
	_, err = svc.CastVote(ctx, "p2", scenario.ID, cds.SupportSupport)
	require.NoError(t, err)

	result, err := svc.Evaluate(ctx, scenario.ID)
	require.NoError(t, err)
	assert.Equal(t, cds.DirectiveApprove, result.Directive)

	decision, err := svc.MakeDecision(ctx, issue.ID, scenario.ID, result)
	require.NoError(t, err)
	assert.Equal(t, cds.DecisionApproved, decision.Status)
	assert.NotEmpty(t, decision.RationaleHash)

	packet, err := svc.Dispatch(ctx, decision)
	require.NoError(t, err)
	require.Len(t, packet.Tasks, 1)
	assert.Equal(t, "COS", packet.Tasks[0].System)
}

func TestCastVote_ReplacesPriorVote(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	issue, err := svc.CreateIssue(ctx, "x", "y", nil)
	require.NoError(t, err)
	advanceToDeliberation(t, svc, issue.ID)
	scenario, err := svc.AddScenario(ctx, issue.ID, "s1", cds.ScenarioParameters{})
	require.NoError(t, err)

	_, err = svc.CastVote(ctx, "p1", scenario.ID, cds.SupportBlock)
	require.NoError(t, err)
	_, err = svc.CastVote(ctx, "p1", scenario.ID, cds.SupportStrong)
	require.NoError(t, err)

	result, err := svc.Evaluate(ctx, scenario.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.VoterCount)
	assert.InDelta(t, 1.0, result.ConsensusScore, 1e-9)
}

// spec.md §8 scenario 3: consensus directive.
func TestEvaluate_Scenario3(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	issue, err := svc.CreateIssue(ctx, "x", "y", nil)
	require.NoError(t, err)
	advanceToDeliberation(t, svc, issue.ID)
	scenario, err := svc.AddScenario(ctx, issue.ID, "s1", cds.ScenarioParameters{})
	require.NoError(t, err)

	_, err = svc.CastVote(ctx, "p1", scenario.ID, cds.SupportStrong)
	require.NoError(t, err)
	_, err = svc.CastVote(ctx, "p2", scenario.ID, cds.SupportSupport)
	require.NoError(t, err)
	_, err = svc.CastVote(ctx, "p3", scenario.ID, cds.SupportSupport)
	require.NoError(t, err)
	_, err = svc.CastVote(ctx, "p4", scenario.ID, cds.SupportNeutral)
	require.NoError(t, err)

	_, err = svc.RegisterObjection(ctx, "p5", issue.ID, scenario.ID, "too risky", 0.7, 0.6)
	require.NoError(t, err)

	result, err := svc.Evaluate(ctx, scenario.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.ConsensusScore, 1e-9)
	assert.InDelta(t, 0.105, result.ObjectionIndex, 1e-9)
	assert.Equal(t, cds.DirectiveRevise, result.Directive)
}

func TestMakeDecision_RejectsNonApproveDirective(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	issue, err := svc.CreateIssue(ctx, "x", "y", nil)
	require.NoError(t, err)
	advanceToDeliberation(t, svc, issue.ID)
	scenario, err := svc.AddScenario(ctx, issue.ID, "s1", cds.ScenarioParameters{})
	require.NoError(t, err)

	result := cds.ConsensusResult{ScenarioID: scenario.ID, Directive: cds.DirectiveRevise}
	_, err = svc.MakeDecision(ctx, issue.ID, scenario.ID, result)
	require.Error(t, err)
}

func TestAmendDecision_SetsSupersession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	issue, err := svc.CreateIssue(ctx, "x", "y", nil)
	require.NoError(t, err)
	advanceToDeliberation(t, svc, issue.ID)
	scenario, err := svc.AddScenario(ctx, issue.ID, "s1", cds.ScenarioParameters{})
	require.NoError(t, err)
	newScenario, err := svc.AddScenario(ctx, issue.ID, "s2", cds.ScenarioParameters{})
	require.NoError(t, err)

	_, err = svc.CastVote(ctx, "p1", scenario.ID, cds.SupportStrong)
	require.NoError(t, err)
	result, err := svc.Evaluate(ctx, scenario.ID)
	require.NoError(t, err)
	decision, err := svc.MakeDecision(ctx, issue.ID, scenario.ID, result)
	require.NoError(t, err)

	amended, err := svc.AmendDecision(ctx, decision.ID, newScenario.ID, result)
	require.NoError(t, err)
	require.NotNil(t, amended.SupersedesDecisionID)
	assert.Equal(t, decision.ID, *amended.SupersedesDecisionID)
	assert.Equal(t, cds.DecisionAmended, amended.Status)
}
