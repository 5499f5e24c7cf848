package retrieval

import "math"

// Bands classify a raw backend score before mapping it into [0,1].
//
// Scores above DistanceAbove are read as unbounded distances, scores in
// [CosineLow, CosineHigh] as cosine-like similarities, and anything else as
// a distance of magnitude |score|. The cut-offs are empirical: a small L2
// distance inside the cosine band is mapped as if it were a similarity, so
// thresholds only approximate the same meaning across backends.
type Bands struct {
	DistanceAbove float64 `yaml:"distance_above"`
	CosineLow     float64 `yaml:"cosine_low"`
	CosineHigh    float64 `yaml:"cosine_high"`
}

// DefaultBands returns the stock cut-offs.
func DefaultBands() Bands {
	return Bands{DistanceAbove: 1.5, CosineLow: -1.2, CosineHigh: 1.2}
}

// Normalize maps a raw score to a similarity in [0,1]. It reports false for
// scores that cannot be interpreted, which callers must skip.
func (b Bands) Normalize(raw float64) (float64, bool) {
	if math.IsNaN(raw) {
		return 0, false
	}
	var sim float64
	switch {
	case raw > b.DistanceAbove:
		sim = 1 / (1 + raw)
	case raw >= b.CosineLow && raw <= b.CosineHigh:
		sim = (raw + 1) / 2
	default:
		sim = 1 / (1 + math.Abs(raw))
	}
	return clamp(sim), true
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
