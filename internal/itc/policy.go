package itc

import "time"

// DefaultWeightingPolicy mirrors spec.md §8 scenario 1's literal skill
// weights and a permissive default context.
func DefaultWeightingPolicy(nodeID string) WeightingPolicy {
	return WeightingPolicy{
		ID:     "itc-weighting-default-v1",
		NodeID: nodeID,
		EffectiveFrom: time.Unix(0, 0).UTC(),
		BaseWeightsBySkill: map[SkillTier]float64{
			SkillLow: 1.0, SkillMedium: 1.2, SkillHigh: 1.5, SkillExpert: 1.8,
		},
		TaskTypeModifiers: map[string]float64{
			"generic": 1.0,
		},
		ContextWeights:      ContextWeights{Urgency: 0.2, EcoSensitivity: 0.15, Scarcity: 0.15},
		ContextFactorMin:    0.8,
		ContextFactorMax:    1.3,
		MinWeightMultiplier: 0.5,
		MaxWeightMultiplier: 3.0,
	}
}

// TaskTypeModifier looks up a task type's modifier, falling back to
// "generic" = 1.0 for unknown task types (spec.md §9 open question).
func (p WeightingPolicy) TaskTypeModifier(taskType string) float64 {
	if taskType != "" {
		if m, ok := p.TaskTypeModifiers[taskType]; ok {
			return m
		}
	}
	if m, ok := p.TaskTypeModifiers["generic"]; ok {
		return m
	}
	return 1.0
}

// DefaultDecayRule mirrors spec.md §8 scenario 2's literal decay rule.
func DefaultDecayRule() DecayRule {
	return DecayRule{
		ID:                     "itc-decay-default-v1",
		Label:                  "standard",
		InactivityGraceDays:    30,
		HalfLifeDays:           180,
		MinBalanceProtected:    10,
		MaxAnnualDecayFraction: 0.25,
		EffectiveFrom:          time.Unix(0, 0).UTC(),
	}
}

// EquivalenceBandMin/Max are the hard caps spec.md §4.D and §8 require:
// equivalence band factors are always in [0.9, 1.1] to cap cross-node
// arbitrage.
const (
	EquivalenceBandMin = 0.9
	EquivalenceBandMax = 1.1
)

// AutonomyWeights are the coefficients for autonomy_and_fragility's
// A = clamp(1*s_int + 0.7*s_fed - 1*s_ext, 0, 1) (spec.md §4.D).
type AutonomyWeights struct {
	Internal  float64
	Federated float64
	External  float64
	CriticalExternal float64
}

// DefaultAutonomyWeights mirrors the literal coefficients spec.md §4.D
// names.
func DefaultAutonomyWeights() AutonomyWeights {
	return AutonomyWeights{Internal: 1.0, Federated: 0.7, External: 1.0, CriticalExternal: 0.3}
}

// CoercionThresholds govern detect_coercion's advisory flags.
type CoercionThresholds struct {
	ExcessiveHoursRatio  float64
	MonotoneLowTierRatio float64
	WindowDays           float64
}

// DefaultCoercionThresholds is a conservative default window/threshold
// pair; operators are expected to tune these per node.
func DefaultCoercionThresholds() CoercionThresholds {
	return CoercionThresholds{ExcessiveHoursRatio: 0.5, MonotoneLowTierRatio: 0.8, WindowDays: 14}
}
