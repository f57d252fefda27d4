package frs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalvillage/integral-sub001/internal/cache"
	"github.com/liminalvillage/integral-sub001/internal/frs"
	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/internal/storage/memory"
)

func newTestService() *frs.Service {
	l := ledger.New("node-a", memory.NewLedgerStore(), nil, nil)
	return frs.New("node-a", memory.NewFRSStore(), l, nil, frs.DefaultDetectorThresholds(), frs.DefaultIndexCoefficients(), nil)
}

func TestCreateSignalPacket_Persists(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	packet, err := svc.CreateSignalPacket(ctx, frs.SignalPacket{MaterialScarcityIndex: 0.2, BlockedTaskRatio: 0.1})
	require.NoError(t, err)
	assert.NotEmpty(t, packet.ID)
	assert.Equal(t, "node-a", packet.NodeID)
}

func TestAnalyzePacket_LaborStressDetector(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	packet, err := svc.CreateSignalPacket(ctx, frs.SignalPacket{
		SkillTierUtilization: map[string]float64{"high": 0.75, "medium": 0.3},
	})
	require.NoError(t, err)

	findings, err := svc.AnalyzePacket(ctx, packet.ID)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, frs.FindingLaborStress, findings[0].Type)
}

func TestAnalyzePacket_MaterialDependencyDetector(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	packet, err := svc.CreateSignalPacket(ctx, frs.SignalPacket{
		SupplierShares: map[string]float64{"supplier-a": 0.8, "supplier-b": 0.2},
	})
	require.NoError(t, err)

	findings, err := svc.AnalyzePacket(ctx, packet.ID)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, frs.FindingMaterialDependency, findings[0].Type)
}

func TestAnalyzePacket_ValuationDriftDetector(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	packet, err := svc.CreateSignalPacket(ctx, frs.SignalPacket{
		LatestValuation:  40,
		RecentValuations: []float64{24, 25, 26},
	})
	require.NoError(t, err)

	findings, err := svc.AnalyzePacket(ctx, packet.ID)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, frs.FindingValuationDrift, findings[0].Type)
}

func TestAnalyzePacket_NoDetectorsTrigger(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	packet, err := svc.CreateSignalPacket(ctx, frs.SignalPacket{
		SkillTierUtilization: map[string]float64{"high": 0.2},
		SupplierShares:       map[string]float64{"a": 0.3, "b": 0.3, "c": 0.4},
		BlockedTaskRatio:     0.05,
	})
	require.NoError(t, err)

	findings, err := svc.AnalyzePacket(ctx, packet.ID)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestGenerateRecommendations_MapsFindingToTarget(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	packet, err := svc.CreateSignalPacket(ctx, frs.SignalPacket{
		SkillTierUtilization: map[string]float64{"expert": 0.9},
	})
	require.NoError(t, err)
	findings, err := svc.AnalyzePacket(ctx, packet.ID)
	require.NoError(t, err)
	require.Len(t, findings, 1)

	recs, err := svc.GenerateRecommendations(ctx, []string{findings[0].ID})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, frs.TargetCOS, recs[0].Target)
	assert.Equal(t, frs.ActionWorkloadRebalance, recs[0].Action)
}

func TestComputeIndices_BoundedToUnitInterval(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	indices, err := svc.ComputeIndices(ctx, frs.IndexInputs{
		GovernanceParticipationRatio: 1, LaborVerificationRatio: 1, CertifiedDesignRatio: 1, TaskCompletionRatio: 1,
		BlockedTaskRatio: 1, CriticalAndModerateFindingRatio: 1, HighScarcityMaterialRatio: 1, PendingIssueRatio: 1,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, indices.Autonomy, 1.0)
	assert.GreaterOrEqual(t, indices.Autonomy, 0.0)
	assert.LessOrEqual(t, indices.Fragility, 1.0)
	assert.GreaterOrEqual(t, indices.Fragility, 0.0)
	assert.Equal(t, "v1", indices.PolicyVersion)
}

func TestRecordMemory_Persists(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	record, err := svc.RecordMemory(ctx, frs.MemoryLesson, "kiln downtime", "the kiln needs a backup heating element on hand")
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, frs.MemoryLesson, record.Type)
}

func TestCreateSignalPacket_SeedsRecentValuationsFromCache(t *testing.T) {
	ctx := context.Background()
	l := ledger.New("node-a", memory.NewLedgerStore(), nil, nil)
	window := cache.NewMemoryWindow(12)
	svc := frs.New("node-a", memory.NewFRSStore(), l, nil, frs.DefaultDetectorThresholds(), frs.DefaultIndexCoefficients(), window)

	first, err := svc.CreateSignalPacket(ctx, frs.SignalPacket{LatestValuation: 20})
	require.NoError(t, err)
	assert.Empty(t, first.RecentValuations, "first packet has no history to seed from")

	second, err := svc.CreateSignalPacket(ctx, frs.SignalPacket{LatestValuation: 22})
	require.NoError(t, err)
	require.Len(t, second.RecentValuations, 1)
	assert.Equal(t, 20.0, second.RecentValuations[0])
}
