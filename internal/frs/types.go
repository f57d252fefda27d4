// Package frs implements the feedback/diagnostic engine: signal-packet
// snapshots, detector-driven findings, recommendations, autonomy/fragility
// indices, and immutable memory records (spec.md §4.G).
package frs

import "time"

// FindingType enumerates the seven configured detectors (spec.md §3).
type FindingType string

const (
	FindingEcologicalOvershoot  FindingType = "ecological_overshoot"
	FindingLaborStress          FindingType = "labor_stress"
	FindingMaterialDependency   FindingType = "material_dependency"
	FindingDesignFriction       FindingType = "design_friction"
	FindingValuationDrift       FindingType = "valuation_drift"
	FindingGovernanceLoad       FindingType = "governance_load"
	FindingCoordinationFragility FindingType = "coordination_fragility"
)

// Severity enumerates Finding/Recommendation severity (spec.md §3).
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityCritical Severity = "critical"
)

// Confidence enumerates Finding.confidence (spec.md §3).
type Confidence string

const (
	ConfidenceProvisional Confidence = "provisional"
	ConfidenceConfident   Confidence = "confident"
	ConfidenceStrong      Confidence = "strong"
)

// RecommendationTarget enumerates the subsystem a recommendation targets.
type RecommendationTarget string

const (
	TargetCDS RecommendationTarget = "CDS"
	TargetOAD RecommendationTarget = "OAD"
	TargetITC RecommendationTarget = "ITC"
	TargetCOS RecommendationTarget = "COS"
	TargetFED RecommendationTarget = "FED"
)

// SignalPacket aggregates structured metrics from all subsystems at a
// point in time (spec.md §4.G).
type SignalPacket struct {
	ID                    string             `json:"id"`
	NodeID                string             `json:"nodeId"`
	IssueCountsByState    map[string]int     `json:"issueCountsByState"`
	LaborVerificationRatio float64           `json:"laborVerificationRatio"`
	CertifiedDesignRatio  float64            `json:"certifiedDesignRatio"`
	TaskCompletionCount   int                `json:"taskCompletionCount"`
	TaskBlockCount        int                `json:"taskBlockCount"`
	MaterialScarcityIndex float64            `json:"materialScarcityIndex"`
	ActiveFindingCounts   map[FindingType]int `json:"activeFindingCounts"`
	SkillTierUtilization  map[string]float64  `json:"skillTierUtilization"`
	SupplierShares        map[string]float64  `json:"supplierShares"`
	CriticalExternalRatio float64            `json:"criticalExternalRatio"`
	AverageCertifiedEcoScore float64         `json:"averageCertifiedEcoScore"`
	QAFailRate            float64            `json:"qaFailRate"`
	RecentQAFailRates     []float64          `json:"recentQaFailRates,omitempty"`
	RecentValuations      []float64          `json:"recentValuations,omitempty"`
	LatestValuation       float64            `json:"latestValuation"`
	PreDeliberationIssueRatio float64        `json:"preDeliberationIssueRatio"`
	BlockedTaskRatio      float64            `json:"blockedTaskRatio"`
	CreatedAt             time.Time          `json:"createdAt"`
}

// Finding is one diagnostic observation produced by analyze_packet
// (spec.md §3).
type Finding struct {
	ID         string         `json:"id"`
	PacketID   string         `json:"packetId"`
	Type       FindingType    `json:"type"`
	Severity   Severity       `json:"severity"`
	Confidence Confidence     `json:"confidence"`
	Summary    string         `json:"summary"`
	Rationale  string         `json:"rationale"`
	Indicators map[string]any `json:"indicators"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// ActionType enumerates a recommendation's deterministic default action.
type ActionType string

const (
	ActionWorkloadRebalance    ActionType = "workload_rebalancing"
	ActionEcoPolicyReview      ActionType = "eco_policy_review"
	ActionSupplierDiversify    ActionType = "supplier_diversification"
	ActionQAProcessReview      ActionType = "qa_process_review"
	ActionValuationRecompute   ActionType = "valuation_recompute"
	ActionGovernanceTriage     ActionType = "governance_triage"
	ActionCapacityReallocation ActionType = "capacity_reallocation"
)

// Recommendation is advisory; acceptance is mediated by CDS (spec.md §4.G).
type Recommendation struct {
	ID        string               `json:"id"`
	FindingID string               `json:"findingId"`
	Target    RecommendationTarget `json:"target"`
	Severity  Severity             `json:"severity"`
	Summary   string               `json:"summary"`
	Rationale string               `json:"rationale"`
	Action    ActionType           `json:"action"`
	CreatedAt time.Time            `json:"createdAt"`
}

// MemoryRecordType enumerates memory_record.type (spec.md §4.G).
type MemoryRecordType string

const (
	MemoryLesson  MemoryRecordType = "lesson"
	MemoryIncident MemoryRecordType = "incident"
	MemoryOutcome MemoryRecordType = "outcome"
)

// MemoryRecord is a structured narrative, immutable once written.
type MemoryRecord struct {
	ID        string           `json:"id"`
	Type      MemoryRecordType `json:"type"`
	Title     string           `json:"title"`
	Narrative string           `json:"narrative"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Indices bundles the autonomy and fragility scores for one computation
// (spec.md §4.G).
type Indices struct {
	NodeID           string    `json:"nodeId"`
	Autonomy         float64   `json:"autonomy"`
	Fragility        float64   `json:"fragility"`
	PolicyVersion    string    `json:"policyVersion"`
	ComputedAt       time.Time `json:"computedAt"`
}
