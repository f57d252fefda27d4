// Package cos implements the production/constraint coordinator: plans,
// task definitions and instances, critical-path cycle time, the material
// ledger, bottleneck detection, workload signaling, and QA recording
// (spec.md §4.F).
package cos

import "time"

// SkillTier mirrors the tiers shared with OAD/ITC.
type SkillTier string

const (
	SkillLow    SkillTier = "low"
	SkillMedium SkillTier = "medium"
	SkillHigh   SkillTier = "high"
	SkillExpert SkillTier = "expert"
)

// ProductionStep is the local shape of one labor-profile step, mirroring
// oad.ProductionStep — kept local rather than imported so COS couples to
// OAD only through the explicit signal this constructor accepts, not an
// object graph (spec.md §9).
type ProductionStep struct {
	Label                 string
	SkillTier             SkillTier
	EstimatedHoursPerUnit float64
	ToolRequirements      []string
	WorkspaceRequirements []string
	MaterialRequirements  []string
	Predecessors          []string
}

// TaskInstanceStatus enumerates TaskInstance.status (spec.md §3).
type TaskInstanceStatus string

const (
	TaskPending    TaskInstanceStatus = "pending"
	TaskAssigned   TaskInstanceStatus = "assigned"
	TaskInProgress TaskInstanceStatus = "in_progress"
	TaskBlocked    TaskInstanceStatus = "blocked"
	TaskDone       TaskInstanceStatus = "done"
	TaskCancelled  TaskInstanceStatus = "cancelled"
)

// ProductionPlan references an OAD version and synthesizes task
// definitions from its labor profile (spec.md §3).
type ProductionPlan struct {
	ID              string    `json:"id"`
	VersionID       string    `json:"versionId"`
	NodeID          string    `json:"nodeId"`
	BatchID         string    `json:"batchId"`
	BatchSize       int       `json:"batchSize"`
	CycleTimeHours  float64   `json:"cycleTimeHours"`
	CreatedAt       time.Time `json:"createdAt"`
}

// TaskDefinition names one production step (spec.md §3).
type TaskDefinition struct {
	ID                    string    `json:"id"`
	PlanID                string    `json:"planId"`
	Label                 string    `json:"label"`
	SkillTier             SkillTier `json:"skillTier"`
	EstimatedHoursPerUnit float64   `json:"estimatedHoursPerUnit"`
	ToolRequirements      []string  `json:"toolRequirements,omitempty"`
	WorkspaceRequirements []string  `json:"workspaceRequirements,omitempty"`
	MaterialRequirements  []string  `json:"materialRequirements,omitempty"`
	Predecessors          []string  `json:"predecessors,omitempty"` // predecessor TaskDefinition IDs
}

// TaskInstance is a per-unit execution of a TaskDefinition (spec.md §3).
type TaskInstance struct {
	ID              string             `json:"id"`
	DefinitionID    string             `json:"definitionId"`
	PlanID          string             `json:"planId"`
	Status          TaskInstanceStatus `json:"status"`
	AssignedCoopID  string             `json:"assignedCoopId,omitempty"`
	Participants    []string           `json:"participants,omitempty"`
	ScheduledStart  *time.Time         `json:"scheduledStart,omitempty"`
	ScheduledEnd    *time.Time         `json:"scheduledEnd,omitempty"`
	ActualStart     *time.Time         `json:"actualStart,omitempty"`
	ActualEnd       *time.Time         `json:"actualEnd,omitempty"`
	ActualHours     float64            `json:"actualHours"`
	BlockReasons    []string           `json:"blockReasons,omitempty"`
}

// MaterialDirection enumerates MaterialLedgerEntry.direction (spec.md §3).
type MaterialDirection string

const (
	MaterialInternalRecycle    MaterialDirection = "internal_recycle"
	MaterialExternalProcurement MaterialDirection = "external_procurement"
	MaterialProductionUse      MaterialDirection = "production_use"
	MaterialLossScrap          MaterialDirection = "loss_scrap"
)

// MaterialLedgerEntry is an append to a plan's material ledger (spec.md §3).
type MaterialLedgerEntry struct {
	ID                   string            `json:"id"`
	PlanID               string            `json:"planId"`
	MaterialID           string            `json:"materialId"`
	QuantityKg           float64           `json:"quantityKg"`
	Direction            MaterialDirection `json:"direction"`
	EcologicalImpactIndex float64          `json:"ecologicalImpactIndex"`
	Timestamp            time.Time         `json:"timestamp"`
	TaskInstanceID        *string          `json:"taskInstanceId,omitempty"`
}

// COSConstraint is emitted by detect_bottlenecks when S_k exceeds policy
// threshold (spec.md §3).
type COSConstraint struct {
	PlanID           string   `json:"planId"`
	NodeID           string   `json:"nodeId"`
	TaskDefinitionID string   `json:"taskDefinitionId"`
	ConstraintType   string   `json:"constraintType"`
	Severity         float64  `json:"severity"`
	Description      string   `json:"description"`
	SuggestedActions []string `json:"suggestedActions,omitempty"`
}

// WorkloadSignal is consumed by ITC and FRS (spec.md §4.F).
type WorkloadSignal struct {
	PlanID                string                `json:"planId"`
	LaborBySkill          map[SkillTier]float64 `json:"laborBySkill"`
	MaterialScarcityIndex float64               `json:"materialScarcityIndex"`
	ThroughputConstraints []COSConstraint       `json:"throughputConstraints"`
	Timestamp             time.Time             `json:"timestamp"`
}

// QAResult feeds downstream quality statistics (spec.md §4.F).
type QAResult struct {
	ID            string    `json:"id"`
	PlanID        string    `json:"planId"`
	Item          string    `json:"item"`
	Passed        bool      `json:"passed"`
	Inspectors    []string  `json:"inspectors"`
	Defects       []string  `json:"defects"`
	SeverityIndex float64   `json:"severityIndex"`
	RecordedAt    time.Time `json:"recordedAt"`
}

// ExpectedMaterial is one entry of the expected_materials map given to
// WorkloadSignal.
type ExpectedMaterial struct {
	Expected  float64
	Available float64
}
