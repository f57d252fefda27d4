package cos

// BottleneckCoefficients are the alpha/beta weights for S_k = alpha *
// max(0, D_k) + beta * B_k (spec.md §8 scenario 4).
type BottleneckCoefficients struct {
	Alpha               float64
	Beta                float64
	BottleneckThreshold float64
}

// DefaultBottleneckCoefficients matches pkg/config's seeded
// PolicyConfig.BottleneckThreshold and spec.md §8 scenario 4's literal
// alpha=0.6, beta=0.4.
func DefaultBottleneckCoefficients() BottleneckCoefficients {
	return BottleneckCoefficients{Alpha: 0.6, Beta: 0.4, BottleneckThreshold: 0.15}
}
