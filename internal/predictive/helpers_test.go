package predictive

import (
	"math/rand"
)

// thresholdModel predicts positive when the first feature is at least 0.5.
func thresholdModel() *ModelWrapper {
	return &ModelWrapper{
		ModelID: "threshold",
		PredictFn: func(X [][]float64) ([]int, error) {
			out := make([]int, len(X))
			for i, row := range X {
				if row[0] >= 0.5 {
					out[i] = 1
				}
			}
			return out, nil
		},
	}
}

// gradientModel is thresholdModel with a probability surface that rises
// linearly in the first feature, giving hill-climbing searches a gradient.
func gradientModel() *ModelWrapper {
	m := thresholdModel()
	m.ModelID = "gradient"
	m.ProbaFn = func(X [][]float64) ([][]float64, error) {
		out := make([][]float64, len(X))
		for i, row := range X {
			p := row[0]
			if p < 0.01 {
				p = 0.01
			}
			if p > 0.99 {
				p = 0.99
			}
			out[i] = []float64{1 - p, p}
		}
		return out, nil
	}
	return m
}

// constantModel always predicts the same class.
func constantModel(label int) *ModelWrapper {
	return &ModelWrapper{
		ModelID: "constant",
		PredictFn: func(X [][]float64) ([]int, error) {
			out := make([]int, len(X))
			for i := range out {
				out[i] = label
			}
			return out, nil
		},
	}
}

// separableDataset builds rows whose label is fully determined by the first
// feature (0 or 1), with a second noise feature. zeros controls the class
// balance.
func separableDataset(zeros, ones int) Dataset {
	rng := rand.New(rand.NewSource(7))
	n := zeros + ones
	X := make([][]float64, 0, n)
	Y := make([]int, 0, n)
	for i := 0; i < zeros; i++ {
		X = append(X, []float64{0, rng.Float64()})
		Y = append(Y, 0)
	}
	for i := 0; i < ones; i++ {
		X = append(X, []float64{1, rng.Float64()})
		Y = append(Y, 1)
	}
	return Dataset{X: X, Y: Y, FeatureNames: []string{"signal", "noise"}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Seed = 1
	return cfg
}
