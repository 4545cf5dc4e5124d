package predictive

import (
	"errors"
	"fmt"
)

// Model is the predictive-model capability a pillar consumes: hard labels
// in, hard labels out. Predict calls are synchronous and CPU-bound.
type Model interface {
	Predict(X [][]float64) ([]int, error)
}

// ProbaModel is the optional upgrade for models that expose class
// probabilities.
type ProbaModel interface {
	Model
	PredictProba(X [][]float64) ([][]float64, error)
}

// WatermarkedModel is the optional upgrade for models that declare an
// embedded prediction watermark, making stolen surrogate copies traceable.
type WatermarkedModel interface {
	Model
	Watermarked() bool
}

// ModelWrapper adapts arbitrary predict/predict_proba implementations behind
// the Model capability. It is scoped to a single evaluation call and
// discarded afterwards.
type ModelWrapper struct {
	ModelID   string
	PredictFn func(X [][]float64) ([]int, error)
	ProbaFn   func(X [][]float64) ([][]float64, error)
	Watermark bool
}

func (w *ModelWrapper) Predict(X [][]float64) ([]int, error) {
	if w.PredictFn == nil {
		return nil, errors.New("model wrapper has no predict function")
	}
	labels, err := w.PredictFn(X)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	if len(labels) != len(X) {
		return nil, fmt.Errorf("predict returned %d labels for %d rows", len(labels), len(X))
	}
	return labels, nil
}

func (w *ModelWrapper) PredictProba(X [][]float64) ([][]float64, error) {
	if w.ProbaFn == nil {
		return nil, errors.New("model does not expose predict_proba")
	}
	probas, err := w.ProbaFn(X)
	if err != nil {
		return nil, fmt.Errorf("predict_proba: %w", err)
	}
	if len(probas) != len(X) {
		return nil, fmt.Errorf("predict_proba returned %d rows for %d inputs", len(probas), len(X))
	}
	return probas, nil
}

// HasProba reports whether the wrapped model exposes probabilities.
func (w *ModelWrapper) HasProba() bool {
	return w.ProbaFn != nil
}

// Watermarked reports whether the wrapped model carries a prediction
// watermark.
func (w *ModelWrapper) Watermarked() bool {
	return w.Watermark
}

// probaOf returns the probability-of-positive for one instance when the
// model supports it.
func probaOf(model Model, x []float64) (float64, bool) {
	proba, ok := model.(ProbaModel)
	if !ok {
		return 0, false
	}
	rows, err := proba.PredictProba([][]float64{x})
	if err != nil || len(rows) == 0 || len(rows[0]) < 2 {
		return 0, false
	}
	return rows[0][1], true
}

// probasOf returns the probability-of-positive for every row when the model
// supports it.
func probasOf(model Model, X [][]float64) ([]float64, bool) {
	proba, ok := model.(ProbaModel)
	if !ok {
		return nil, false
	}
	rows, err := proba.PredictProba(X)
	if err != nil || len(rows) != len(X) {
		return nil, false
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, false
		}
		out[i] = row[1]
	}
	return out, true
}

// Dataset is the shared, read-only evaluation view. No pillar mutates X or Y;
// pillars that need perturbed inputs copy rows first.
type Dataset struct {
	X            [][]float64
	Y            []int
	FeatureNames []string
}

func (d Dataset) Rows() int {
	return len(d.X)
}

func (d Dataset) Features() int {
	if len(d.X) == 0 {
		return 0
	}
	return len(d.X[0])
}

func (d Dataset) Validate() error {
	if len(d.X) == 0 {
		return errors.New("dataset has no rows")
	}
	width := len(d.X[0])
	if width == 0 {
		return errors.New("dataset has no features")
	}
	for i, row := range d.X {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
		}
	}
	if len(d.Y) != 0 && len(d.Y) != len(d.X) {
		return fmt.Errorf("label count %d does not match row count %d", len(d.Y), len(d.X))
	}
	if len(d.FeatureNames) != 0 && len(d.FeatureNames) != width {
		return fmt.Errorf("feature name count %d does not match width %d", len(d.FeatureNames), width)
	}
	return nil
}

// FeatureRange returns the observed min and max of one feature column.
func (d Dataset) FeatureRange(feature int) (minValue, maxValue float64) {
	if d.Rows() == 0 || feature < 0 || feature >= d.Features() {
		return 0, 0
	}
	minValue = d.X[0][feature]
	maxValue = d.X[0][feature]
	for _, row := range d.X {
		if row[feature] < minValue {
			minValue = row[feature]
		}
		if row[feature] > maxValue {
			maxValue = row[feature]
		}
	}
	return minValue, maxValue
}

func (d Dataset) featureName(feature int) string {
	if feature >= 0 && feature < len(d.FeatureNames) {
		return d.FeatureNames[feature]
	}
	return fmt.Sprintf("f%d", feature)
}

func copyRow(row []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	return out
}
