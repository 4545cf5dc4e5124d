package predictive

import "math"

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// nearestDistance finds the smallest euclidean distance from x to any row.
func nearestDistance(x []float64, rows [][]float64) float64 {
	best := math.Inf(1)
	for _, row := range rows {
		if d := euclidean(x, row); d < best {
			best = d
		}
	}
	return best
}

// meanPairwiseDistance estimates the dataset's scale from a bounded number
// of row pairs; exact all-pairs cost is quadratic and unnecessary here.
func meanPairwiseDistance(rows [][]float64, maxPairs int) float64 {
	n := len(rows)
	if n < 2 {
		return 0
	}
	if maxPairs <= 0 {
		maxPairs = 2000
	}
	total := 0.0
	count := 0
	for i := 0; i < n && count < maxPairs; i++ {
		for j := i + 1; j < n && count < maxPairs; j++ {
			total += euclidean(rows[i], rows[j])
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func labelAgreement(a, b []int) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
