package cds

// Thresholds governs the directive rule (spec.md §4.E):
//   approve  if C >= ConsensusThreshold and O <= ObjectionThreshold
//   revise   if C >= MinConsensusThreshold and approve does not hold
//   escalate otherwise (if EscalationEnabled), else revise.
type Thresholds struct {
	ConsensusThreshold    float64
	MinConsensusThreshold float64
	ObjectionThreshold    float64
	EscalationEnabled     bool
	WMax                  float64
}

// DefaultThresholds mirrors spec.md §8 scenario 3's literal values and
// pkg/config's seeded policy document.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ConsensusThreshold:    0.6,
		MinConsensusThreshold: 0.4,
		ObjectionThreshold:    0.3,
		EscalationEnabled:     true,
		WMax:                  1.0,
	}
}
