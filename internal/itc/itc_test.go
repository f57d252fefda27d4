package itc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalvillage/integral-sub001/internal/cache"
	"github.com/liminalvillage/integral-sub001/internal/itc"
	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/internal/storage/memory"
)

func newTestService() (*itc.Service, *memory.ITCStore) {
	store := memory.NewITCStore()
	l := ledger.New("node-a", memory.NewLedgerStore(), nil, nil)
	svc := itc.New("node-a", store, l, nil, itc.DefaultWeightingPolicy("node-a"), itc.DefaultDecayRule(), nil)
	return svc, store
}

// spec.md §8 scenario 1: 4 hours at tier high, zero context, credits 6.0.
func TestWeightedCredit_Scenario1(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	event, err := svc.RecordLabor(ctx, "member-m", "coop-1", "task-1", "assembly", "generic", start, end, itc.SkillHigh, itc.LaborContext{}, nil)
	require.NoError(t, err)

	_, err = svc.VerifyLabor(ctx, event.ID, "verifier-1")
	require.NoError(t, err)

	record, err := svc.ComputeWeighted(ctx, event.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, record.WeightMultiplier, 1e-9)
	assert.InDelta(t, 6.0, record.WeightedHours, 1e-9)

	account, err := svc.CreditAccount(ctx, "member-m", record.ID)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, account.Balance, 1e-9)
}

func TestVerifyLabor_IdempotentOnRepeatVerifier(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	event, err := svc.RecordLabor(ctx, "member-m", "coop-1", "task-1", "assembly", "generic", start, end, itc.SkillLow, itc.LaborContext{}, nil)
	require.NoError(t, err)

	e1, err := svc.VerifyLabor(ctx, event.ID, "verifier-1")
	require.NoError(t, err)
	e2, err := svc.VerifyLabor(ctx, event.ID, "verifier-1")
	require.NoError(t, err)
	assert.Len(t, e2.VerifiedBy, 1)
	assert.Equal(t, e1.VerifiedBy, e2.VerifiedBy)
}

// spec.md §8 scenario 2: decay with grace.
func TestApplyDecay_Scenario2(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	account := itc.Account{
		ID: "acc-1", MemberID: "member-n", NodeID: "node-a",
		Balance:            100,
		LastDecayAppliedAt: time.Now().UTC().Add(-40 * 24 * time.Hour),
		ActiveDecayRuleID:  "itc-decay-default-v1",
	}
	require.NoError(t, store.PutAccount(ctx, account))

	decay, err := svc.ApplyDecay(ctx, "member-n")
	require.NoError(t, err)
	assert.InDelta(t, 0.685, decay, 0.01)

	updated, ok, err := store.GetAccount(ctx, "member-n", "node-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 99.315, updated.Balance, 0.01)
}

func TestApplyDecay_ZeroWithinGrace(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	account := itc.Account{
		ID: "acc-1", MemberID: "member-n", NodeID: "node-a",
		Balance: 100, LastDecayAppliedAt: time.Now().UTC().Add(-10 * 24 * time.Hour),
	}
	require.NoError(t, store.PutAccount(ctx, account))

	decay, err := svc.ApplyDecay(ctx, "member-n")
	require.NoError(t, err)
	assert.Equal(t, 0.0, decay)
}

// spec.md §8 scenario 5: access valuation.
func TestComputeAccessValue_Scenario5(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	profile := itc.OADProfile{
		LaborBySkillTier: map[itc.SkillTier]float64{
			itc.SkillLow: 10, itc.SkillMedium: 5, itc.SkillHigh: 5,
		},
		EcoScore: 0.4, Repairability: 0.6, ExpectedLifespanHours: 10000,
	}

	valuation, err := svc.ComputeAccessValue(ctx, "item-1", "version-1", profile, nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 23.5, valuation.BaseWeightedLaborHours, 1e-6)
	assert.InDelta(t, 4.7, valuation.EcoBurdenAdjustment, 1e-6)
	assert.InDelta(t, 0.0, valuation.MaterialScarcityAdjustment, 1e-6)
	assert.InDelta(t, 2.115, valuation.RepairabilityCredit, 1e-6)
	assert.InDelta(t, 1.175, valuation.LongevityCredit, 1e-6)
	assert.InDelta(t, 24.91, valuation.FinalITCCost, 1e-6)
}

// spec.md §8 scenario 6: redemption atomicity.
func TestRedeemAccess_Scenario6(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	require.NoError(t, store.PutAccount(ctx, itc.Account{
		ID: "acc-1", MemberID: "member-m", NodeID: "node-a", Balance: 24.91,
	}))

	valuation := itc.Valuation{FinalITCCost: 24.91}
	redemption, err := svc.RedeemAccess(ctx, "member-m", "item-1", itc.RedemptionOneTime, valuation, nil)
	require.NoError(t, err)
	assert.Equal(t, 24.91, redemption.ITCSpent)

	account, ok, err := store.GetAccount(ctx, "member-m", "node-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.0, account.Balance, 1e-9)
}

func TestRedeemAccess_InsufficientBalanceLeavesBalanceUnchanged(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	require.NoError(t, store.PutAccount(ctx, itc.Account{
		ID: "acc-1", MemberID: "member-m", NodeID: "node-a", Balance: 24.90,
	}))

	_, err := svc.RedeemAccess(ctx, "member-m", "item-1", itc.RedemptionOneTime, itc.Valuation{FinalITCCost: 24.91}, nil)
	require.Error(t, err)

	account, ok, err := store.GetAccount(ctx, "member-m", "node-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 24.90, account.Balance)
}

func TestEquivalenceBand_ClampedToRange(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	band, err := svc.EquivalenceBand(ctx, "home", "local", 1.5, 0.2)
	require.NoError(t, err)
	assert.Equal(t, itc.EquivalenceBandMax, band.LaborContextFactor)
	assert.Equal(t, itc.EquivalenceBandMin, band.EcoContextFactor)
}

func TestEquivalenceBand_SmoothsAcrossCalls(t *testing.T) {
	ctx := context.Background()
	store := memory.NewITCStore()
	l := ledger.New("node-a", memory.NewLedgerStore(), nil, nil)
	window := cache.NewMemoryWindow(8)
	svc := itc.New("node-a", store, l, nil, itc.DefaultWeightingPolicy("node-a"), itc.DefaultDecayRule(), window)

	first, err := svc.EquivalenceBand(ctx, "home", "local", 1.0, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, first.LaborContextFactor)

	second, err := svc.EquivalenceBand(ctx, "home", "local", 1.1, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 1.05, second.LaborContextFactor, 1e-9, "second reading should be averaged against the first, not applied raw")
}

func TestAutonomyAndFragility_Bounded(t *testing.T) {
	svc, _ := newTestService()

	result := svc.AutonomyAndFragility(0.8, 0.3, 0.9, 0.5, []float64{0.7, 0.2, 0.1})
	assert.GreaterOrEqual(t, result.Autonomy, 0.0)
	assert.LessOrEqual(t, result.Autonomy, 1.0)
	assert.GreaterOrEqual(t, result.Fragility, 0.0)
	assert.LessOrEqual(t, result.Fragility, 1.0)
}

func TestDetectCoercion_FlagsExcessiveHours(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		start := now.Add(-time.Duration(i*24) * time.Hour)
		end := start.Add(10 * time.Hour)
		_, err := svc.RecordLabor(ctx, "member-m", "coop-1", "task", "lbl", "generic", start, end, itc.SkillLow, itc.LaborContext{}, nil)
		require.NoError(t, err)
	}

	event, err := svc.DetectCoercion(ctx, "member-m", now, 10)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Greater(t, event.ExcessiveHoursRatio, 0.5)
}
