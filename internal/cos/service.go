package cos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/pkg/apierrors"
	"github.com/liminalvillage/integral-sub001/pkg/logging"
)

// ErrDisconnectedGraph is returned by CreateProductionPlan when a step's
// predecessors reference an unknown step label or form a cycle, resolving
// the open question of how create_production_plan must behave on a
// malformed predecessor graph: reject the plan rather than silently drop
// the edge.
var ErrDisconnectedGraph = errors.New("cos: production step predecessor graph is disconnected or cyclic")

// Service implements the COS production/constraint coordinator operations
// of spec.md §4.F.
type Service struct {
	nodeID string
	store  Store
	ledger *ledger.Ledger
	logger *logging.Logger
	coeff  BottleneckCoefficients
}

// New constructs a cos.Service bound to nodeID.
func New(nodeID string, store Store, l *ledger.Ledger, logger *logging.Logger, coeff BottleneckCoefficients) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{nodeID: nodeID, store: store, ledger: l, logger: logger, coeff: coeff}
}

// planTaskID returns the deterministic TaskDefinition ID for a step label
// within a plan, so a ProductionStep.Predecessors list (authored against
// step labels) maps directly onto TaskDefinition.Predecessors without a
// second lookup table.
func planTaskID(planID, label string) string { return planID + "/" + label }

// CreateProductionPlan implements create_production_plan: synthesizes a
// TaskDefinition per production step and batchSize TaskInstances per
// definition, then computes the batch's critical-path cycle time.
func (s *Service) CreateProductionPlan(ctx context.Context, versionID, batchID string, batchSize int, steps []ProductionStep) (ProductionPlan, []TaskDefinition, error) {
	if batchSize <= 0 {
		return ProductionPlan{}, nil, apierrors.OutOfRange("batch_size", 1, nil)
	}

	planID := uuid.New().String()
	defs := make([]TaskDefinition, 0, len(steps))
	byLabel := make(map[string]TaskDefinition, len(steps))
	for _, step := range steps {
		def := TaskDefinition{
			ID: planTaskID(planID, step.Label), PlanID: planID, Label: step.Label,
			SkillTier: step.SkillTier, EstimatedHoursPerUnit: step.EstimatedHoursPerUnit,
			ToolRequirements: step.ToolRequirements, WorkspaceRequirements: step.WorkspaceRequirements,
			MaterialRequirements: step.MaterialRequirements,
		}
		for _, pred := range step.Predecessors {
			def.Predecessors = append(def.Predecessors, planTaskID(planID, pred))
		}
		defs = append(defs, def)
		byLabel[step.Label] = def
	}

	cycleTime, err := criticalPathHours(defs)
	if err != nil {
		return ProductionPlan{}, nil, apierrors.Wrap(apierrors.KindConstraintViolation, "compute critical path", 422, err)
	}

	plan := ProductionPlan{
		ID: planID, VersionID: versionID, NodeID: s.nodeID, BatchID: batchID,
		BatchSize: batchSize, CycleTimeHours: cycleTime, CreatedAt: time.Now().UTC(),
	}
	if err := s.store.PutPlan(ctx, plan); err != nil {
		return ProductionPlan{}, nil, apierrors.Wrap(apierrors.KindIntegrityError, "persist plan", 500, err)
	}
	for _, def := range defs {
		if err := s.store.PutTaskDefinition(ctx, def); err != nil {
			return ProductionPlan{}, nil, apierrors.Wrap(apierrors.KindIntegrityError, "persist task definition", 500, err)
		}
		for i := 0; i < batchSize; i++ {
			instance := TaskInstance{ID: uuid.New().String(), DefinitionID: def.ID, PlanID: planID, Status: TaskPending}
			if err := s.store.PutTaskInstance(ctx, instance); err != nil {
				return ProductionPlan{}, nil, apierrors.Wrap(apierrors.KindIntegrityError, "persist task instance", 500, err)
			}
		}
	}

	if _, err := s.ledger.Append(ctx, "cos.production_plan_created", s.nodeID, nil,
		map[string]string{"plan_id": planID, "version_id": versionID, "batch_id": batchID}, map[string]any{
			"batch_size": batchSize, "cycle_time_hours": cycleTime, "step_count": len(defs),
		}); err != nil {
		return ProductionPlan{}, nil, err
	}
	return plan, defs, nil
}

// criticalPathHours computes the longest path through the predecessor DAG,
// memoizing each definition's longest-path-to-here so the walk is linear
// in the number of edges. inStack detects a cycle; a predecessor ID with
// no matching definition is treated as disconnected.
func criticalPathHours(defs []TaskDefinition) (float64, error) {
	byID := make(map[string]TaskDefinition, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}

	memo := make(map[string]float64, len(defs))
	inStack := make(map[string]bool, len(defs))

	var longestTo func(id string) (float64, error)
	longestTo = func(id string) (float64, error) {
		if v, ok := memo[id]; ok {
			return v, nil
		}
		def, ok := byID[id]
		if !ok {
			return 0, fmt.Errorf("%w: unknown predecessor %q", ErrDisconnectedGraph, id)
		}
		if inStack[id] {
			return 0, fmt.Errorf("%w: cycle at %q", ErrDisconnectedGraph, id)
		}
		inStack[id] = true
		defer delete(inStack, id)

		best := 0.0
		for _, pred := range def.Predecessors {
			predLen, err := longestTo(pred)
			if err != nil {
				return 0, err
			}
			if predLen > best {
				best = predLen
			}
		}
		total := best + def.EstimatedHoursPerUnit
		memo[id] = total
		return total, nil
	}

	cycleTime := 0.0
	for _, d := range defs {
		total, err := longestTo(d.ID)
		if err != nil {
			return 0, err
		}
		if total > cycleTime {
			cycleTime = total
		}
	}
	return cycleTime, nil
}

func (s *Service) getTaskInstance(ctx context.Context, id string) (TaskInstance, error) {
	instance, ok, err := s.store.GetTaskInstance(ctx, id)
	if err != nil {
		return TaskInstance{}, apierrors.Wrap(apierrors.KindIntegrityError, "read task instance", 500, err)
	}
	if !ok {
		return TaskInstance{}, apierrors.NotFound("task_instance", id)
	}
	return instance, nil
}

func (s *Service) transitionTask(ctx context.Context, instanceID string, from []TaskInstanceStatus, to TaskInstanceStatus, entryType string, mutate func(*TaskInstance), details map[string]any) (TaskInstance, error) {
	instance, err := s.getTaskInstance(ctx, instanceID)
	if err != nil {
		return TaskInstance{}, err
	}
	allowed := false
	for _, f := range from {
		if instance.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return TaskInstance{}, apierrors.InvalidTransition("task_instance", string(instance.Status), string(to))
	}
	instance.Status = to
	if mutate != nil {
		mutate(&instance)
	}
	if err := s.store.PutTaskInstance(ctx, instance); err != nil {
		return TaskInstance{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist task instance", 500, err)
	}
	if _, err := s.ledger.Append(ctx, entryType, s.nodeID, nil,
		map[string]string{"task_instance_id": instanceID, "plan_id": instance.PlanID}, details); err != nil {
		return TaskInstance{}, err
	}
	return instance, nil
}

// AssignTask implements assign_task: pending/blocked -> assigned.
func (s *Service) AssignTask(ctx context.Context, instanceID, coopID string, participants []string) (TaskInstance, error) {
	return s.transitionTask(ctx, instanceID, []TaskInstanceStatus{TaskPending, TaskBlocked}, TaskAssigned, "cos.task_assigned",
		func(t *TaskInstance) { t.AssignedCoopID = coopID; t.Participants = participants; t.BlockReasons = nil },
		map[string]any{"coop_id": coopID})
}

// StartTask implements start_task: assigned -> in_progress.
func (s *Service) StartTask(ctx context.Context, instanceID string) (TaskInstance, error) {
	now := time.Now().UTC()
	return s.transitionTask(ctx, instanceID, []TaskInstanceStatus{TaskAssigned}, TaskInProgress, "cos.task_started",
		func(t *TaskInstance) { t.ActualStart = &now }, nil)
}

// BlockTask implements block_task: assigned/in_progress -> blocked.
func (s *Service) BlockTask(ctx context.Context, instanceID, reason string) (TaskInstance, error) {
	return s.transitionTask(ctx, instanceID, []TaskInstanceStatus{TaskAssigned, TaskInProgress}, TaskBlocked, "cos.task_blocked",
		func(t *TaskInstance) { t.BlockReasons = append(t.BlockReasons, reason) },
		map[string]any{"reason": reason})
}

// CompleteTask implements complete_task: in_progress -> done, recording
// actual_hours.
func (s *Service) CompleteTask(ctx context.Context, instanceID string, actualHours float64) (TaskInstance, error) {
	now := time.Now().UTC()
	return s.transitionTask(ctx, instanceID, []TaskInstanceStatus{TaskInProgress}, TaskDone, "cos.task_completed",
		func(t *TaskInstance) { t.ActualEnd = &now; t.ActualHours = actualHours },
		map[string]any{"actual_hours": actualHours})
}

// RecordMaterialFlow implements record_material_flow.
func (s *Service) RecordMaterialFlow(ctx context.Context, planID, materialID string, quantityKg float64, direction MaterialDirection, ecoImpact float64, taskInstanceID *string) (MaterialLedgerEntry, error) {
	entry := MaterialLedgerEntry{
		ID: uuid.New().String(), PlanID: planID, MaterialID: materialID, QuantityKg: quantityKg,
		Direction: direction, EcologicalImpactIndex: ecoImpact, Timestamp: time.Now().UTC(), TaskInstanceID: taskInstanceID,
	}
	if err := s.store.AppendMaterialEntry(ctx, entry); err != nil {
		return MaterialLedgerEntry{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist material entry", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "cos.material_flow_recorded", s.nodeID, nil,
		map[string]string{"plan_id": planID, "material_id": materialID, "entry_id": entry.ID}, map[string]any{
			"quantity_kg": quantityKg, "direction": direction,
		}); err != nil {
		return MaterialLedgerEntry{}, err
	}
	return entry, nil
}

// MaterialInventory implements material_inventory: internal_recycle +
// external_procurement - production_use - loss_scrap, per material.
func (s *Service) MaterialInventory(ctx context.Context, planID string) (map[string]float64, error) {
	entries, err := s.store.MaterialEntriesByPlan(ctx, planID)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindIntegrityError, "read material entries", 500, err)
	}
	inventory := make(map[string]float64)
	for _, e := range entries {
		switch e.Direction {
		case MaterialInternalRecycle, MaterialExternalProcurement:
			inventory[e.MaterialID] += e.QuantityKg
		case MaterialProductionUse, MaterialLossScrap:
			inventory[e.MaterialID] -= e.QuantityKg
		}
	}
	return inventory, nil
}

// DetectBottlenecks implements detect_bottlenecks: for each task
// definition, D_k = (sum(actual_hours) - N*estimated_per_unit) /
// max(1, N*estimated_per_unit), B_k = blocked_count / N,
// S_k = alpha*max(0,D_k) + beta*B_k. A COSConstraint is emitted when
// S_k exceeds the configured threshold. Every emitted constraint is
// returned in the slice. The per-constraint errors collected in a
// multierror along the way are not returned: the error result is nil
// unless a store read or a ledger append fails.
func (s *Service) DetectBottlenecks(ctx context.Context, planID string) ([]COSConstraint, error) {
	defs, err := s.store.TaskDefinitionsByPlan(ctx, planID)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindIntegrityError, "read task definitions", 500, err)
	}

	var constraints []COSConstraint
	var merr *multierror.Error
	for _, def := range defs {
		instances, err := s.store.TaskInstancesByDefinition(ctx, def.ID)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.KindIntegrityError, "read task instances", 500, err)
		}
		n := len(instances)
		if n == 0 {
			continue
		}
		actualTotal, blocked := 0.0, 0
		for _, inst := range instances {
			actualTotal += inst.ActualHours
			if inst.Status == TaskBlocked {
				blocked++
			}
		}
		expectedTotal := float64(n) * def.EstimatedHoursPerUnit
		dK := (actualTotal - expectedTotal) / maxf(1, expectedTotal)
		bK := float64(blocked) / float64(n)
		sK := s.coeff.Alpha*maxf(0, dK) + s.coeff.Beta*bK

		s.logger.LogNumericPolicy(ctx, "cos.detect_bottlenecks",
			map[string]any{"task_definition_id": def.ID, "actual_total": actualTotal, "expected_total": expectedTotal, "blocked": blocked, "n": n},
			map[string]any{"d_k": dK, "b_k": bK, "s_k": sK})

		if sK <= s.coeff.BottleneckThreshold {
			continue
		}
		severity := sK
		if severity > 1 {
			severity = 1
		}
		constraint := COSConstraint{
			PlanID: planID, NodeID: s.nodeID, TaskDefinitionID: def.ID,
			ConstraintType: "throughput_bottleneck", Severity: severity,
			Description: fmt.Sprintf("step %q exceeds bottleneck threshold: d_k=%.4f b_k=%.4f s_k=%.4f", def.Label, dK, bK, sK),
		}
		constraints = append(constraints, constraint)
		merr = multierror.Append(merr, fmt.Errorf("%s: %w", def.Label, apierrors.ConstraintViolation(constraint.Description)))

		if _, err := s.ledger.Append(ctx, "cos.constraint_detected", s.nodeID, nil,
			map[string]string{"plan_id": planID, "task_definition_id": def.ID}, map[string]any{
				"severity": severity, "d_k": dK, "b_k": bK,
			}); err != nil {
			return constraints, err
		}
	}
	if merr.ErrorOrNil() != nil {
		merr.ErrorFormat = func(es []error) string {
			msgs := make([]string, len(es))
			for i, e := range es {
				msgs[i] = e.Error()
			}
			return fmt.Sprintf("%d constraint(s) detected: %v", len(es), msgs)
		}
	}
	return constraints, nil
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// WorkloadSignal implements the workload_signal feed into ITC/FRS:
// scarcity_index = min(1, avg over materials of max(0, expected-available)/expected).
func (s *Service) WorkloadSignal(ctx context.Context, planID string, expectedMaterials map[string]ExpectedMaterial) (WorkloadSignal, error) {
	defs, err := s.store.TaskDefinitionsByPlan(ctx, planID)
	if err != nil {
		return WorkloadSignal{}, apierrors.Wrap(apierrors.KindIntegrityError, "read task definitions", 500, err)
	}
	laborBySkill := make(map[SkillTier]float64)
	for _, def := range defs {
		instances, err := s.store.TaskInstancesByDefinition(ctx, def.ID)
		if err != nil {
			return WorkloadSignal{}, apierrors.Wrap(apierrors.KindIntegrityError, "read task instances", 500, err)
		}
		for _, inst := range instances {
			laborBySkill[def.SkillTier] += inst.ActualHours
		}
	}

	scarcity := 0.0
	if len(expectedMaterials) > 0 {
		sum := 0.0
		for _, m := range expectedMaterials {
			if m.Expected <= 0 {
				continue
			}
			shortfall := maxf(0, m.Expected-m.Available) / m.Expected
			sum += shortfall
		}
		scarcity = minf(1, sum/float64(len(expectedMaterials)))
	}

	constraints, err := s.DetectBottlenecks(ctx, planID)
	if err != nil {
		return WorkloadSignal{}, err
	}

	signal := WorkloadSignal{
		PlanID: planID, LaborBySkill: laborBySkill, MaterialScarcityIndex: scarcity,
		ThroughputConstraints: constraints, Timestamp: time.Now().UTC(),
	}
	if _, err := s.ledger.Append(ctx, "cos.workload_signal_emitted", s.nodeID, nil,
		map[string]string{"plan_id": planID}, map[string]any{"material_scarcity_index": scarcity}); err != nil {
		return WorkloadSignal{}, err
	}
	return signal, nil
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// RecordQAResult implements record_qa_result.
func (s *Service) RecordQAResult(ctx context.Context, planID, item string, passed bool, inspectors, defects []string, severityIndex float64) (QAResult, error) {
	result := QAResult{
		ID: uuid.New().String(), PlanID: planID, Item: item, Passed: passed,
		Inspectors: inspectors, Defects: defects, SeverityIndex: severityIndex, RecordedAt: time.Now().UTC(),
	}
	if err := s.store.PutQAResult(ctx, result); err != nil {
		return QAResult{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist qa result", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "cos.qa_result_recorded", s.nodeID, nil,
		map[string]string{"plan_id": planID, "qa_result_id": result.ID}, map[string]any{
			"passed": passed, "severity_index": severityIndex,
		}); err != nil {
		return QAResult{}, err
	}
	return result, nil
}
