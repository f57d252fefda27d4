package engine_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalvillage/integral-sub001/internal/cds"
	"github.com/liminalvillage/integral-sub001/internal/cos"
	"github.com/liminalvillage/integral-sub001/internal/engine"
	"github.com/liminalvillage/integral-sub001/internal/frs"
	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/pkg/config"
	"github.com/liminalvillage/integral-sub001/pkg/logging"
	"github.com/liminalvillage/integral-sub001/pkg/metrics"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := config.New()
	cfg.Node.ID = "node-a"
	m := metrics.NewWithRegistry("engine-test", prometheus.NewRegistry())
	e, err := engine.New(context.Background(), cfg, logging.Default(), m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNew_WiresAllSubsystemsOverMemoryStorage(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, "node-a", e.NodeID)
	assert.NotNil(t, e.Ledger)
	assert.NotNil(t, e.CDS)
	assert.NotNil(t, e.OAD)
	assert.NotNil(t, e.ITC)
	assert.NotNil(t, e.COS)
	assert.NotNil(t, e.FRS)
	assert.NotNil(t, e.Federation)
}

func TestRouteDispatchPacket_RoutesRecognizedCOSPayload(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	spec, err := e.OAD.CreateSpec(ctx, "a bench vise", []string{"holds 4in stock"})
	require.NoError(t, err)
	version, err := e.OAD.CreateVersion(ctx, spec.ID, "v1", []string{"alice"}, nil)
	require.NoError(t, err)

	packet := cds.DispatchPacket{
		ID:      "dispatch-1",
		IssueID: "issue-1",
		Tasks: []cds.DispatchTask{
			{
				System: "COS",
				Payload: map[string]interface{}{
					"versionId": version.ID,
					"batchId":   "batch-1",
					"batchSize": float64(2),
					"steps": []interface{}{
						map[string]interface{}{"label": "cut", "skillTier": "medium", "estimatedHoursPerUnit": 1.5},
					},
				},
			},
			{System: "ITC", Payload: map[string]interface{}{"note": "wage policy review"}},
		},
	}

	err = e.RouteDispatchPacket(ctx, packet)
	require.NoError(t, err)

	entries, err := e.Ledger.Trail(ctx, ledger.Filter{EntryTypePrefix: "engine.dispatch_routed"})
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the unrecognized ITC task should fall back to advisory routing")
}

func TestComputeAccessValueForVersion_UsesOADValuationProfile(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	spec, err := e.OAD.CreateSpec(ctx, "a bench vise", []string{"holds 4in stock"})
	require.NoError(t, err)
	version, err := e.OAD.CreateVersion(ctx, spec.ID, "v1", []string{"alice"}, nil)
	require.NoError(t, err)

	_, err = e.OAD.ComputeEcoAssessment(ctx, version.ID)
	require.NoError(t, err)

	valuation, err := e.ComputeAccessValueForVersion(ctx, "item-1", version.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "item-1", valuation.ItemID)
	assert.Equal(t, version.ID, valuation.DesignVersionID)
}

func TestWorkloadSignalForITC_MapsMaterialScarcity(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	spec, err := e.OAD.CreateSpec(ctx, "a bench vise", []string{"holds 4in stock"})
	require.NoError(t, err)
	version, err := e.OAD.CreateVersion(ctx, spec.ID, "v1", []string{"alice"}, nil)
	require.NoError(t, err)

	plan, _, err := e.COS.CreateProductionPlan(ctx, version.ID, "batch-1", 1,
		[]cos.ProductionStep{{Label: "cut", SkillTier: cos.SkillMedium, EstimatedHoursPerUnit: 1.0}})
	require.NoError(t, err)

	signal, err := e.WorkloadSignalForITC(ctx, plan.ID, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, signal.MaterialScarcityIndex, 0.0)
}

func TestRouteRecommendations_BroadcastsFederationTargetedRecommendations(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	recs := []frs.Recommendation{
		{ID: "rec-1", FindingID: "find-1", Target: frs.TargetFED, Severity: frs.SeverityCritical, Summary: "scarcity spike", Action: frs.ActionGovernanceTriage},
		{ID: "rec-2", FindingID: "find-1", Target: frs.TargetCOS, Severity: frs.SeverityLow, Summary: "minor delay", Action: frs.ActionWorkloadRebalance},
	}

	err := e.RouteRecommendations(ctx, recs)
	require.NoError(t, err)

	entries, err := e.Ledger.Trail(ctx, ledger.Filter{EntryTypePrefix: "engine.recommendation_routed"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	fedEntries, err := e.Ledger.Trail(ctx, ledger.Filter{EntryTypePrefix: "fed.message_sent"})
	require.NoError(t, err)
	assert.Len(t, fedEntries, 1, "only the FED-targeted recommendation should produce a federation envelope")
}
