package frs

// DetectorThresholds holds the configured trigger points for each
// detector in analyze_packet (spec.md §4.G). Exact coefficients are
// policy values, version-stamped, not spec-fixed constants.
type DetectorThresholds struct {
	EcologicalOvershootEcoScore   float64
	LaborStressUtilization        float64
	MaterialDependencyHerfindahl  float64
	MaterialDependencyCriticalExt float64
	DesignFrictionQAFailSpike     float64
	ValuationDriftRatio           float64
	GovernanceLoadRatio           float64
	CoordinationFragilityRatio    float64
}

// DefaultDetectorThresholds matches the literal thresholds named in
// spec.md §4.G (skill-tier utilization > 0.6, Herfindahl > 0.5,
// critical-external ratio > 0.1, valuation drift > 0.25).
func DefaultDetectorThresholds() DetectorThresholds {
	return DetectorThresholds{
		EcologicalOvershootEcoScore:   0.7,
		LaborStressUtilization:        0.6,
		MaterialDependencyHerfindahl:  0.5,
		MaterialDependencyCriticalExt: 0.1,
		DesignFrictionQAFailSpike:     0.2,
		ValuationDriftRatio:           0.25,
		GovernanceLoadRatio:           0.4,
		CoordinationFragilityRatio:    0.3,
	}
}

// IndexCoefficients are the bounded additive increments each index
// contributes, version-stamped so a recomputation can be attributed to
// the policy in force at the time (spec.md §4.G).
type IndexCoefficients struct {
	Version string

	// Autonomy: baseline 0.5 plus each of the following, clamped to [0,1].
	GovernanceParticipationWeight float64
	LaborVerificationWeight       float64
	CertifiedDesignWeight         float64
	TaskCompletionWeight          float64

	// Fragility: clamp(sum, 0, 1).
	BlockedTaskWeight     float64
	FindingCountWeight    float64
	ScarcityMaterialWeight float64
	PendingIssueWeight    float64
}

// DefaultIndexCoefficients is policy version "v1" of the autonomy/
// fragility index weights.
func DefaultIndexCoefficients() IndexCoefficients {
	return IndexCoefficients{
		Version:                       "v1",
		GovernanceParticipationWeight: 0.15,
		LaborVerificationWeight:       0.15,
		CertifiedDesignWeight:         0.1,
		TaskCompletionWeight:          0.1,
		BlockedTaskWeight:             0.3,
		FindingCountWeight:            0.05,
		ScarcityMaterialWeight:        0.2,
		PendingIssueWeight:            0.15,
	}
}

// actionForFinding returns generate_recommendations' deterministic default
// action and target for a finding type (spec.md §4.G).
func actionForFinding(t FindingType) (RecommendationTarget, ActionType) {
	switch t {
	case FindingEcologicalOvershoot:
		return TargetOAD, ActionEcoPolicyReview
	case FindingLaborStress:
		return TargetCOS, ActionWorkloadRebalance
	case FindingMaterialDependency:
		return TargetCOS, ActionSupplierDiversify
	case FindingDesignFriction:
		return TargetOAD, ActionQAProcessReview
	case FindingValuationDrift:
		return TargetITC, ActionValuationRecompute
	case FindingGovernanceLoad:
		return TargetCDS, ActionGovernanceTriage
	case FindingCoordinationFragility:
		return TargetCOS, ActionCapacityReallocation
	default:
		return TargetCDS, ActionGovernanceTriage
	}
}
