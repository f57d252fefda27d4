// Package oad implements the design registry: specs, versions, ecological
// assessment, and quorum certification (spec.md §4.C).
package oad

import "time"

// VersionStatus is the lifecycle state of a design Version.
type VersionStatus string

const (
	VersionDraft      VersionStatus = "draft"
	VersionUnderReview VersionStatus = "under_review"
	VersionCertified  VersionStatus = "certified"
	VersionDeprecated VersionStatus = "deprecated"
)

// SkillTier mirrors the ITC skill tiers a labor profile is expressed over.
type SkillTier string

const (
	SkillLow    SkillTier = "low"
	SkillMedium SkillTier = "medium"
	SkillHigh   SkillTier = "high"
	SkillExpert SkillTier = "expert"
)

// Spec carries a design's purpose and functional requirements.
type Spec struct {
	ID                    string    `json:"id"`
	Purpose               string    `json:"purpose"`
	FunctionalRequirements []string `json:"functionalRequirements"`
	NodeID                string    `json:"nodeId"`
	CreatedAt             time.Time `json:"createdAt"`
}

// Version references a Spec and carries the parameters under assessment.
type Version struct {
	ID        string                 `json:"id"`
	SpecID    string                 `json:"specId"`
	Label     string                 `json:"label"`
	AuthorIDs []string               `json:"authorIds"`
	Parameters map[string]any        `json:"parameters"`
	Status    VersionStatus          `json:"status"`
	NodeID    string                 `json:"nodeId"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`

	// EcoScore is set once compute_eco_assessment has run. Lower is more
	// sustainable (spec.md §3).
	EcoScore *float64 `json:"ecoScore,omitempty"`

	// LaborByTier and the fields below feed valuation_profile.
	LaborByTier        map[SkillTier]float64 `json:"laborByTier,omitempty"`
	EstimatedLaborHours float64              `json:"estimatedLaborHours"`
	Repairability       float64              `json:"repairability"`
	ExpectedLifespanHours float64            `json:"expectedLifespanHours"`

	// ProductionSteps lists the version's production steps; each step names
	// its predecessors by label. COS.CreateProductionPlan takes its steps as
	// an argument and does not read this field.
	ProductionSteps []ProductionStep `json:"productionSteps,omitempty"`
}

// ProductionStep is one step of a version's labor profile (spec.md §4.F).
type ProductionStep struct {
	Label             string    `json:"label"`
	SkillTier         SkillTier `json:"skillTier"`
	EstimatedHoursPerUnit float64 `json:"estimatedHoursPerUnit"`
	ToolRequirements  []string  `json:"toolRequirements,omitempty"`
	WorkspaceRequirements []string `json:"workspaceRequirements,omitempty"`
	MaterialRequirements []string `json:"materialRequirements,omitempty"`
	Predecessors      []string  `json:"predecessors,omitempty"`
}

// EcoAssessment is the recorded outcome and rationale of
// compute_eco_assessment.
type EcoAssessment struct {
	VersionID string             `json:"versionId"`
	Score     float64            `json:"score"`
	Weights   map[string]float64 `json:"weights"`
	Material  float64            `json:"material"`
	Energy    float64            `json:"energy"`
	Waste     float64            `json:"waste"`
	Longevity float64            `json:"longevity"`
	ComputedAt time.Time         `json:"computedAt"`
}

// CertificationRecord binds a version to a set of certifier signatures and
// the policy id that governed the quorum at the time.
type CertificationRecord struct {
	ID          string    `json:"id"`
	VersionID   string    `json:"versionId"`
	PolicyID    string    `json:"policyId"`
	RequestedBy string    `json:"requestedBy"`
	CertifierIDs []string `json:"certifierIds"`
	Signed      map[string]bool `json:"signed"`
	RequestedAt time.Time `json:"requestedAt"`
	CertifiedAt *time.Time `json:"certifiedAt,omitempty"`
}

// ValuationProfile is the read model ITC consumes to price access to an
// item built from this version (spec.md §4.C).
type ValuationProfile struct {
	VersionID             string                `json:"versionId"`
	LaborBySkillTier      map[SkillTier]float64 `json:"laborBySkillTier"`
	EstimatedLaborHours   float64               `json:"estimatedLaborHours"`
	EcoScore              float64               `json:"ecoScore"`
	Repairability         float64               `json:"repairability"`
	ExpectedLifespanHours float64               `json:"expectedLifespanHours"`
}
