package cos_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalvillage/integral-sub001/internal/cos"
	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/internal/storage/memory"
)

func newTestService() (*cos.Service, *memory.COSStore) {
	store := memory.NewCOSStore()
	l := ledger.New("node-a", memory.NewLedgerStore(), nil, nil)
	return cos.New("node-a", store, l, nil, cos.DefaultBottleneckCoefficients()), store
}

func TestCreateProductionPlan_LinearCycleTime(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	steps := []cos.ProductionStep{
		{Label: "cut", SkillTier: cos.SkillMedium, EstimatedHoursPerUnit: 1.5},
		{Label: "assemble", SkillTier: cos.SkillHigh, EstimatedHoursPerUnit: 2.0, Predecessors: []string{"cut"}},
		{Label: "finish", SkillTier: cos.SkillLow, EstimatedHoursPerUnit: 0.5, Predecessors: []string{"assemble"}},
	}
	plan, defs, err := svc.CreateProductionPlan(ctx, "version-1", "batch-1", 3, steps)
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.InDelta(t, 4.0, plan.CycleTimeHours, 1e-9)
	assert.Equal(t, 3, plan.BatchSize)
}

func TestCreateProductionPlan_DisconnectedPredecessorIsRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	steps := []cos.ProductionStep{
		{Label: "assemble", SkillTier: cos.SkillHigh, EstimatedHoursPerUnit: 2.0, Predecessors: []string{"missing_step"}},
	}
	_, _, err := svc.CreateProductionPlan(ctx, "version-1", "batch-1", 1, steps)
	require.Error(t, err)
}

func TestTaskLifecycle_HappyPath(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	plan, defs, err := svc.CreateProductionPlan(ctx, "version-1", "batch-1", 1,
		[]cos.ProductionStep{{Label: "cut", SkillTier: cos.SkillMedium, EstimatedHoursPerUnit: 2.0}})
	require.NoError(t, err)

	inventory, err := svc.MaterialInventory(ctx, plan.ID)
	require.NoError(t, err)
	assert.Empty(t, inventory)

	instances, err := store.TaskInstancesByDefinition(ctx, defs[0].ID)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	instanceID := instances[0].ID

	_, err = svc.AssignTask(ctx, instanceID, "coop-1", []string{"alice"})
	require.NoError(t, err)
	_, err = svc.StartTask(ctx, instanceID)
	require.NoError(t, err)
	done, err := svc.CompleteTask(ctx, instanceID, 2.2)
	require.NoError(t, err)
	assert.Equal(t, cos.TaskDone, done.Status)
	assert.InDelta(t, 2.2, done.ActualHours, 1e-9)
}

// spec.md §8 scenario 4: bottleneck detection.
func TestDetectBottlenecks_Scenario4(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	plan, defs, err := svc.CreateProductionPlan(ctx, "version-1", "batch-1", 10,
		[]cos.ProductionStep{{Label: "fire_kiln", SkillTier: cos.SkillHigh, EstimatedHoursPerUnit: 2.0}})
	require.NoError(t, err)
	def := defs[0]

	instances, err := store.TaskInstancesByDefinition(ctx, def.ID)
	require.NoError(t, err)
	require.Len(t, instances, 10)

	// 8 instances complete at 3.5h each (28h total), 2 instances blocked.
	for i, inst := range instances {
		if i < 2 {
			inst.Status = cos.TaskBlocked
			inst.BlockReasons = []string{"kiln offline"}
		} else {
			inst.Status = cos.TaskDone
			inst.ActualHours = 3.5
		}
		require.NoError(t, store.PutTaskInstance(ctx, inst))
	}

	constraints, err := svc.DetectBottlenecks(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, constraints, 1)
	assert.InDelta(t, 0.32, constraints[0].Severity, 1e-9)
	assert.Equal(t, def.ID, constraints[0].TaskDefinitionID)
}

func TestDetectBottlenecks_BelowThresholdEmitsNothing(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	plan, defs, err := svc.CreateProductionPlan(ctx, "version-1", "batch-1", 10,
		[]cos.ProductionStep{{Label: "cut", SkillTier: cos.SkillMedium, EstimatedHoursPerUnit: 2.0}})
	require.NoError(t, err)
	def := defs[0]

	instances, err := store.TaskInstancesByDefinition(ctx, def.ID)
	require.NoError(t, err)
	for _, inst := range instances {
		inst.Status = cos.TaskDone
		inst.ActualHours = 2.0
		require.NoError(t, store.PutTaskInstance(ctx, inst))
	}

	constraints, err := svc.DetectBottlenecks(ctx, plan.ID)
	require.NoError(t, err)
	assert.Empty(t, constraints)
}

func TestRecordMaterialFlow_InventoryNets(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	plan, _, err := svc.CreateProductionPlan(ctx, "version-1", "batch-1", 1,
		[]cos.ProductionStep{{Label: "cut", SkillTier: cos.SkillMedium, EstimatedHoursPerUnit: 1.0}})
	require.NoError(t, err)

	_, err = svc.RecordMaterialFlow(ctx, plan.ID, "clay", 100, cos.MaterialExternalProcurement, 0.2, nil)
	require.NoError(t, err)
	_, err = svc.RecordMaterialFlow(ctx, plan.ID, "clay", 10, cos.MaterialInternalRecycle, 0.05, nil)
	require.NoError(t, err)
	_, err = svc.RecordMaterialFlow(ctx, plan.ID, "clay", 60, cos.MaterialProductionUse, 0.3, nil)
	require.NoError(t, err)
	_, err = svc.RecordMaterialFlow(ctx, plan.ID, "clay", 5, cos.MaterialLossScrap, 0.1, nil)
	require.NoError(t, err)

	inventory, err := svc.MaterialInventory(ctx, plan.ID)
	require.NoError(t, err)
	assert.InDelta(t, 45, inventory["clay"], 1e-9)
}

func TestWorkloadSignal_ScarcityIndex(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	plan, _, err := svc.CreateProductionPlan(ctx, "version-1", "batch-1", 1,
		[]cos.ProductionStep{{Label: "cut", SkillTier: cos.SkillMedium, EstimatedHoursPerUnit: 1.0}})
	require.NoError(t, err)

	signal, err := svc.WorkloadSignal(ctx, plan.ID, map[string]cos.ExpectedMaterial{
		"clay": {Expected: 100, Available: 60},
		"glaze": {Expected: 50, Available: 50},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, signal.MaterialScarcityIndex, 1e-9)
}

func TestRecordQAResult_Persists(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	plan, _, err := svc.CreateProductionPlan(ctx, "version-1", "batch-1", 1,
		[]cos.ProductionStep{{Label: "cut", SkillTier: cos.SkillMedium, EstimatedHoursPerUnit: 1.0}})
	require.NoError(t, err)

	result, err := svc.RecordQAResult(ctx, plan.ID, "mug-001", false, []string{"bob"}, []string{"hairline crack"}, 0.4)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, 0.4, result.SeverityIndex)
}
