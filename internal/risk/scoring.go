package risk

import "math"

// StatusForScore maps a pillar or overall score onto the traffic-light
// status. Status is always derived from the score, never set directly.
func StatusForScore(score, passThreshold, warnThreshold float64) Status {
	switch {
	case score >= passThreshold:
		return StatusPass
	case score >= warnThreshold:
		return StatusWarn
	default:
		return StatusFail
	}
}

// WeightedMean reduces per-pillar scores with the configured weights. A
// pillar with no configured weight counts at weight 1. Missing or failed
// pillars still present in scores contribute their (forced) score to both
// numerator and denominator.
func WeightedMean(scores map[string]float64, weights map[string]float64) float64 {
	weightedSum := 0.0
	totalWeight := 0.0
	for name, score := range scores {
		weight := 1.0
		if w, ok := weights[name]; ok && w > 0 {
			weight = w
		}
		weightedSum += score * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

func Clamp(value, minValue, maxValue float64) float64 {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}
	return value
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func MetricFloat(result PillarResult, key string) (float64, bool) {
	if result.Metrics == nil {
		return 0, false
	}
	value, ok := result.Metrics[key]
	if !ok {
		return 0, false
	}
	return ToFloat(value)
}

func ToFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}
