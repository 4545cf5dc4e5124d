package predictive

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadCSV reads a headered CSV into a Dataset. The label column holds the
// binary target; sensitive columns are excluded from the feature matrix and
// returned as per-row group assignments, with distinct column values coded
// as integer group ids in order of first appearance.
func LoadCSV(path, labelColumn string, sensitiveColumns []string) (Dataset, map[string][]int, error) {
	data, _, sensitive, err := loadCSV(path, labelColumn, "", sensitiveColumns)
	return data, sensitive, err
}

// LoadCSVWithPredictions additionally extracts a recorded-predictions column,
// for scoring a model whose outputs were exported alongside the dataset.
func LoadCSVWithPredictions(path, labelColumn, predictionColumn string, sensitiveColumns []string) (Dataset, []int, map[string][]int, error) {
	if strings.TrimSpace(predictionColumn) == "" {
		return Dataset{}, nil, nil, fmt.Errorf("prediction column name is required")
	}
	return loadCSV(path, labelColumn, predictionColumn, sensitiveColumns)
}

func loadCSV(path, labelColumn, predictionColumn string, sensitiveColumns []string) (Dataset, []int, map[string][]int, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Dataset{}, nil, nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return Dataset{}, nil, nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(records) < 2 {
		return Dataset{}, nil, nil, fmt.Errorf("dataset %s needs a header and at least one row", path)
	}

	header := records[0]
	labelIdx, predictionIdx := -1, -1
	sensitiveIdx := map[int]string{}
	for i, name := range header {
		name = strings.TrimSpace(name)
		header[i] = name
		if name == labelColumn {
			labelIdx = i
		}
		if predictionColumn != "" && name == predictionColumn {
			predictionIdx = i
		}
		for _, column := range sensitiveColumns {
			if name == column {
				sensitiveIdx[i] = column
			}
		}
	}
	if labelIdx < 0 {
		return Dataset{}, nil, nil, fmt.Errorf("label column %q not found in %s", labelColumn, path)
	}
	if predictionColumn != "" && predictionIdx < 0 {
		return Dataset{}, nil, nil, fmt.Errorf("prediction column %q not found in %s", predictionColumn, path)
	}
	if len(sensitiveIdx) != len(sensitiveColumns) {
		return Dataset{}, nil, nil, fmt.Errorf("not every sensitive column of %v is present in %s", sensitiveColumns, path)
	}

	var data Dataset
	for i, name := range header {
		if i == labelIdx || i == predictionIdx {
			continue
		}
		if _, ok := sensitiveIdx[i]; ok {
			continue
		}
		data.FeatureNames = append(data.FeatureNames, name)
	}

	var predictions []int
	sensitive := map[string][]int{}
	groupCodes := map[string]map[string]int{}
	for _, column := range sensitiveColumns {
		groupCodes[column] = map[string]int{}
	}
	for rowNum, record := range records[1:] {
		if len(record) != len(header) {
			return Dataset{}, nil, nil, fmt.Errorf("row %d has %d columns, expected %d", rowNum+2, len(record), len(header))
		}
		label, err := parseLabel(record[labelIdx])
		if err != nil {
			return Dataset{}, nil, nil, fmt.Errorf("row %d: %w", rowNum+2, err)
		}
		if predictionIdx >= 0 {
			prediction, err := parseLabel(record[predictionIdx])
			if err != nil {
				return Dataset{}, nil, nil, fmt.Errorf("row %d prediction: %w", rowNum+2, err)
			}
			predictions = append(predictions, prediction)
		}
		row := make([]float64, 0, len(data.FeatureNames))
		for i, cell := range record {
			if i == labelIdx || i == predictionIdx {
				continue
			}
			if column, ok := sensitiveIdx[i]; ok {
				value := strings.TrimSpace(cell)
				code, known := groupCodes[column][value]
				if !known {
					code = len(groupCodes[column])
					groupCodes[column][value] = code
				}
				sensitive[column] = append(sensitive[column], code)
				continue
			}
			value, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return Dataset{}, nil, nil, fmt.Errorf("row %d column %s: %w", rowNum+2, header[i], err)
			}
			row = append(row, value)
		}
		data.X = append(data.X, row)
		data.Y = append(data.Y, label)
	}
	if err := data.Validate(); err != nil {
		return Dataset{}, nil, nil, err
	}
	return data, predictions, sensitive, nil
}

func parseLabel(cell string) (int, error) {
	cell = strings.TrimSpace(cell)
	label, err := strconv.Atoi(cell)
	if err != nil {
		return 0, fmt.Errorf("label %q is not an integer", cell)
	}
	if label != 0 && label != 1 {
		return 0, fmt.Errorf("label %d outside {0, 1}", label)
	}
	return label, nil
}

// ReplayModel replays recorded predictions. Unseen query rows get the
// prediction of the nearest recorded row by Euclidean distance, so pillars
// that perturb inputs still receive answers consistent with the recording.
type ReplayModel struct {
	modelID     string
	rows        [][]float64
	predictions []int
}

func NewReplayModel(modelID string, data Dataset, predictions []int) (*ReplayModel, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if len(predictions) != data.Rows() {
		return nil, fmt.Errorf("%d predictions for %d rows", len(predictions), data.Rows())
	}
	return &ReplayModel{modelID: modelID, rows: data.X, predictions: predictions}, nil
}

func (m *ReplayModel) Predict(X [][]float64) ([]int, error) {
	out := make([]int, len(X))
	for i, query := range X {
		if len(query) != len(m.rows[0]) {
			return nil, fmt.Errorf("query row %d has %d features, expected %d", i, len(query), len(m.rows[0]))
		}
		best, bestDist := 0, math.Inf(1)
		for j, row := range m.rows {
			if dist := euclidean(row, query); dist < bestDist {
				bestDist = dist
				best = j
			}
		}
		out[i] = m.predictions[best]
	}
	return out, nil
}

// TrainReferenceModel fits a logistic model on the dataset and wraps it as a
// probability-exposing Model. It exists so a dataset alone is enough to
// exercise the full pillar set from the command line.
func TrainReferenceModel(modelID string, data Dataset) (*ModelWrapper, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if len(data.Y) == 0 {
		return nil, fmt.Errorf("dataset %s has no labels to train on", modelID)
	}
	learner := newLogisticSurrogate()
	learner.fit(data.X, data.Y)
	return &ModelWrapper{
		ModelID:   modelID,
		PredictFn: func(X [][]float64) ([]int, error) { return learner.predict(X), nil },
		ProbaFn: func(X [][]float64) ([][]float64, error) {
			out := make([][]float64, len(X))
			for i, row := range X {
				p := sigmoid(dot(learner.weights, row) + learner.bias)
				out[i] = []float64{1 - p, p}
			}
			return out, nil
		},
	}, nil
}
