package predictive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskeval/internal/risk"
)

func TestNewEvaluatorRejectsUnknownPillar(t *testing.T) {
	cfg := testConfig()
	cfg.EnabledPillars = []string{"explain", "telepathy"}

	_, err := NewEvaluator(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telepathy")
}

func TestEvaluateRunsEveryEnabledPillar(t *testing.T) {
	evaluator, err := NewEvaluator(testConfig())
	require.NoError(t, err)

	data := separableDataset(20, 20)
	sensitive := map[string][]int{"group": alternatingGroups(data.Rows())}

	evaluation, err := evaluator.Evaluate(context.Background(), "threshold", thresholdModel(), data, sensitive)
	require.NoError(t, err)

	assert.Len(t, evaluation.PillarResults, len(PillarOrder()))
	for _, name := range PillarOrder() {
		assert.Contains(t, evaluation.PillarResults, name)
	}
	assert.False(t, evaluation.Incomplete)
	assert.Equal(t, "threshold", evaluation.ModelID)
	assert.NotEmpty(t, evaluation.ID)
	assert.NotEmpty(t, evaluation.CompletedAt)
}

func TestEvaluateSurvivesPanickingModel(t *testing.T) {
	evaluator, err := NewEvaluator(testConfig())
	require.NoError(t, err)

	bomb := &ModelWrapper{
		ModelID:   "bomb",
		PredictFn: func(X [][]float64) ([]int, error) { panic("model detonated") },
		ProbaFn:   func(X [][]float64) ([][]float64, error) { panic("model detonated") },
	}

	data := separableDataset(10, 10)
	evaluation, err := evaluator.Evaluate(context.Background(), "bomb", bomb, data, nil)
	require.NoError(t, err)

	assert.Len(t, evaluation.PillarResults, len(PillarOrder()))
	for name, result := range evaluation.PillarResults {
		assert.Equal(t, risk.StatusFail, result.Status, "pillar %s should fail", name)
		assert.NotEmpty(t, result.Error, "pillar %s should carry the failure", name)
	}
	assert.Equal(t, 0.0, evaluation.OverallScore)
	assert.Equal(t, risk.StatusFail, evaluation.RiskStatus)
}

func TestEvaluateSingleFailedPillarDoesNotHaltSiblings(t *testing.T) {
	// A one-row dataset is too small for the extraction split, so imitation
	// fails while trace and testing complete normally and the failure only
	// drags the aggregate down as a zero score.
	cfg := testConfig()
	cfg.EnabledPillars = []string{"imitation", "trace", "testing"}
	evaluator, err := NewEvaluator(cfg)
	require.NoError(t, err)

	data := Dataset{
		X:            [][]float64{{1, 0.2}},
		Y:            []int{1},
		FeatureNames: []string{"signal", "noise"},
	}
	evaluation, err := evaluator.Evaluate(context.Background(), "threshold", thresholdModel(), data, nil)
	require.NoError(t, err)

	require.Len(t, evaluation.PillarResults, 3)
	assert.Equal(t, risk.StatusFail, evaluation.PillarResults["imitation"].Status)
	assert.NotEmpty(t, evaluation.PillarResults["imitation"].Error)
	assert.Equal(t, risk.StatusPass, evaluation.PillarResults["trace"].Status)
	assert.Equal(t, risk.StatusPass, evaluation.PillarResults["testing"].Status)
	assert.InDelta(t, 66.67, evaluation.OverallScore, 0.01)
	assert.Equal(t, risk.StatusWarn, evaluation.RiskStatus)
}

func TestEvaluateCanceledContextMarksIncomplete(t *testing.T) {
	evaluator, err := NewEvaluator(testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := separableDataset(10, 10)
	evaluation, err := evaluator.Evaluate(ctx, "threshold", thresholdModel(), data, nil)
	require.NoError(t, err)

	assert.True(t, evaluation.Incomplete)
	assert.Len(t, evaluation.PillarResults, len(PillarOrder()))
}

func TestEvaluateRejectsMismatchedSensitiveAttributes(t *testing.T) {
	evaluator, err := NewEvaluator(testConfig())
	require.NoError(t, err)

	data := separableDataset(10, 10)
	sensitive := map[string][]int{"group": {0, 1}}

	_, err = evaluator.Evaluate(context.Background(), "threshold", thresholdModel(), data, sensitive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group")
}

func TestEvaluateWeightedAggregation(t *testing.T) {
	// fairness carries weight 1.5 against testing's 1. With no sensitive
	// attributes fairness is neutral at 50 and testing is perfect at 100,
	// so the aggregate lands at (50*1.5 + 100*1) / 2.5.
	cfg := testConfig()
	cfg.EnabledPillars = []string{"fairness", "testing"}
	evaluator, err := NewEvaluator(cfg)
	require.NoError(t, err)

	data := separableDataset(15, 15)
	evaluation, err := evaluator.Evaluate(context.Background(), "threshold", thresholdModel(), data, nil)
	require.NoError(t, err)

	assert.Equal(t, 70.0, evaluation.OverallScore)
	assert.Equal(t, risk.StatusWarn, evaluation.RiskStatus)
}

func alternatingGroups(n int) []int {
	groups := make([]int, n)
	for i := range groups {
		groups[i] = i % 2
	}
	return groups
}
