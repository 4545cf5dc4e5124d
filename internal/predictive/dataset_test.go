package predictive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSVSplitsFeaturesLabelsAndGroups(t *testing.T) {
	path := writeCSV(t, "income,age,gender,approved\n"+
		"0.3,0.2,f,0\n"+
		"0.8,0.5,m,1\n"+
		"0.6,0.9,f,1\n")

	data, sensitive, err := LoadCSV(path, "approved", []string{"gender"})
	require.NoError(t, err)

	assert.Equal(t, []string{"income", "age"}, data.FeatureNames)
	assert.Equal(t, 3, data.Rows())
	assert.Equal(t, 2, data.Features())
	assert.Equal(t, []int{0, 1, 1}, data.Y)
	assert.Equal(t, []float64{0.8, 0.5}, data.X[1])

	require.Contains(t, sensitive, "gender")
	// f first, so f=0 and m=1.
	assert.Equal(t, []int{0, 1, 0}, sensitive["gender"])
}

func TestLoadCSVRejectsBadInput(t *testing.T) {
	missingLabel := writeCSV(t, "a,b\n1,2\n")
	_, _, err := LoadCSV(missingLabel, "approved", nil)
	assert.ErrorContains(t, err, `label column "approved" not found`)

	badLabel := writeCSV(t, "a,approved\n1,7\n")
	_, _, err = LoadCSV(badLabel, "approved", nil)
	assert.ErrorContains(t, err, "outside {0, 1}")

	missingGroup := writeCSV(t, "a,approved\n1,0\n")
	_, _, err = LoadCSV(missingGroup, "approved", []string{"gender"})
	assert.ErrorContains(t, err, "sensitive column")

	_, _, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), "approved", nil)
	assert.ErrorContains(t, err, "open dataset")
}

func TestLoadCSVWithPredictionsAndReplayModel(t *testing.T) {
	path := writeCSV(t, "income,predicted,approved\n"+
		"0.1,0,0\n"+
		"0.9,1,1\n"+
		"0.2,1,0\n")

	data, recorded, _, err := LoadCSVWithPredictions(path, "approved", "predicted", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"income"}, data.FeatureNames)
	assert.Equal(t, []int{0, 1, 1}, recorded)

	model, err := NewReplayModel("replay", data, recorded)
	require.NoError(t, err)

	// Exact rows replay their recording; unseen rows borrow the nearest one.
	labels, err := model.Predict([][]float64{{0.9}, {0.12}, {0.85}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 1}, labels)

	_, err = NewReplayModel("replay", data, []int{1})
	assert.ErrorContains(t, err, "predictions for")
}

func TestTrainReferenceModelLearnsSeparableData(t *testing.T) {
	data := separableDataset(30, 30)
	model, err := TrainReferenceModel("reference", data)
	require.NoError(t, err)
	require.True(t, model.HasProba())

	labels, err := model.Predict(data.X)
	require.NoError(t, err)
	agreement := labelAgreement(labels, data.Y)
	assert.Greater(t, agreement, 0.9, "reference model should fit a separable dataset")

	probas, err := model.PredictProba(data.X)
	require.NoError(t, err)
	for i, row := range probas {
		require.Len(t, row, 2)
		assert.InDelta(t, 1.0, row[0]+row[1], 1e-9, "row %d probabilities should sum to 1", i)
	}
}
