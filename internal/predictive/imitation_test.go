package predictive

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskeval/internal/risk"
)

func TestImitationExtractableModelIsFlagged(t *testing.T) {
	// A single axis-aligned threshold is trivially stolen: the tree
	// surrogate reproduces it exactly.
	data := separableDataset(30, 20)
	pillar := NewImitationPillar(testConfig())
	result := pillar.Evaluate(context.Background(), thresholdModel(), data, nil)

	require.Empty(t, result.Error)
	assert.Equal(t, 1.0, result.Metrics["best_fidelity"])

	// Full fidelity penalty, no mitigating bonuses: 100 - 50*1.0.
	assert.Equal(t, 50.0, result.Score)
	assert.Equal(t, risk.StatusFail, result.Status)

	var extraction *risk.Finding
	for i := range result.Findings {
		if result.Findings[i].Type == "model_extraction" {
			extraction = &result.Findings[i]
		}
	}
	require.NotNil(t, extraction, "expected model_extraction finding")
	assert.Equal(t, risk.SeverityCritical, extraction.Severity)
}

func TestImitationResistantModelScoresHigher(t *testing.T) {
	// Predictions keyed to high-frequency structure in a noise feature are
	// not learnable by either surrogate within the query budget.
	rng := rand.New(rand.NewSource(11))
	n := 60
	X := make([][]float64, n)
	Y := make([]int, n)
	for i := range X {
		X[i] = []float64{rng.Float64(), rng.Float64()}
		Y[i] = i % 2
	}
	data := Dataset{X: X, Y: Y, FeatureNames: []string{"a", "b"}}

	opaque := &ModelWrapper{
		ModelID: "opaque",
		PredictFn: func(rows [][]float64) ([]int, error) {
			out := make([]int, len(rows))
			for i, row := range rows {
				if int(row[1]*990001)%2 == 0 {
					out[i] = 1
				}
			}
			return out, nil
		},
	}

	pillar := NewImitationPillar(testConfig())
	result := pillar.Evaluate(context.Background(), opaque, data, nil)

	require.Empty(t, result.Error)
	fidelity, ok := result.Metrics["best_fidelity"].(float64)
	require.True(t, ok)
	assert.Less(t, fidelity, 0.85)
	assert.Greater(t, result.Score, 57.0)

	for _, finding := range result.Findings {
		assert.NotEqual(t, "model_extraction", finding.Type)
	}
}

func TestImitationWatermarkAndBudgetBonuses(t *testing.T) {
	// A watermarked target earns back 10 points even when fully extracted,
	// and a query budget past the complexity line earns 10 more.
	data := separableDataset(30, 20)
	marked := thresholdModel()
	marked.Watermark = true

	cfg := testConfig()
	cfg.ImitationQueryBudget = 600
	pillar := NewImitationPillar(cfg)
	result := pillar.Evaluate(context.Background(), marked, data, nil)

	require.Empty(t, result.Error)
	assert.Equal(t, 1.0, result.Metrics["best_fidelity"])
	assert.Equal(t, true, result.Metrics["watermarked"])
	assert.Equal(t, 70.0, result.Score)
	assert.Equal(t, risk.StatusWarn, result.Status)
}

func TestImitationTinyDatasetFails(t *testing.T) {
	data := Dataset{
		X:            [][]float64{{0, 0}},
		Y:            []int{0},
		FeatureNames: []string{"a", "b"},
	}
	pillar := NewImitationPillar(testConfig())
	result := pillar.Evaluate(context.Background(), thresholdModel(), data, nil)

	assert.NotEmpty(t, result.Error)
	assert.Equal(t, risk.StatusFail, result.Status)
}
