package predictive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskeval/internal/risk"
)

func TestActionsAllPositiveIsNeutralNotError(t *testing.T) {
	data := separableDataset(4, 4)
	pillar := NewActionsPillar(testConfig())
	result := pillar.Evaluate(context.Background(), constantModel(1), data, nil)

	require.Empty(t, result.Error)
	assert.Equal(t, 50.0, result.Score)
	assert.Equal(t, 0.0, result.Metrics["coverage"])
	assert.Equal(t, 0, result.Metrics["attempted"])
}

func TestActionsFindsCounterfactualsForSeparableModel(t *testing.T) {
	// The decision flips once the first feature crosses 0.5 and the
	// probability surface points straight at it, so the greedy search
	// should reach a counterfactual for every negative row.
	data := separableDataset(10, 10)
	pillar := NewActionsPillar(testConfig())
	result := pillar.Evaluate(context.Background(), gradientModel(), data, nil)

	require.Empty(t, result.Error)
	assert.Equal(t, 10, result.Metrics["attempted"])
	assert.Equal(t, 10, result.Metrics["flipped"])
	assert.Equal(t, 1.0, result.Metrics["coverage"])
	assert.Greater(t, result.Score, 60.0)
}

func TestActionsImmutableFeaturesBlockRecourse(t *testing.T) {
	// With the only decisive feature frozen, no counterfactual exists.
	cfg := testConfig()
	cfg.ImmutableFeatures = []string{"signal", "noise"}

	data := separableDataset(6, 6)
	pillar := NewActionsPillar(cfg)
	result := pillar.Evaluate(context.Background(), thresholdModel(), data, nil)

	require.Empty(t, result.Error)
	assert.Equal(t, 0.0, result.Metrics["coverage"])

	types := map[string]bool{}
	for _, finding := range result.Findings {
		types[finding.Type] = true
	}
	assert.True(t, types["low_recourse_coverage"], "expected low coverage finding")
}

func TestActionsPredictErrorFailsPillar(t *testing.T) {
	data := separableDataset(4, 4)
	broken := &ModelWrapper{
		ModelID:   "broken",
		PredictFn: func(X [][]float64) ([]int, error) { return nil, assert.AnError },
	}

	pillar := NewActionsPillar(testConfig())
	result := pillar.Evaluate(context.Background(), broken, data, nil)

	assert.NotEmpty(t, result.Error)
	assert.Equal(t, risk.StatusFail, result.Status)
	assert.Equal(t, 0.0, result.Score)
}
