package predictive

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"riskeval/internal/risk"
)

// ExplainPillar measures how much of the model's behavior can be attributed
// to individual features via permutation importance. A model whose decisions
// no feature can account for is effectively unexplainable.
type ExplainPillar struct {
	cfg Config
}

func NewExplainPillar(cfg Config) Pillar {
	return &ExplainPillar{cfg: cfg}
}

func (p *ExplainPillar) Name() string            { return "explain" }
func (p *ExplainPillar) Category() risk.Category { return risk.CategoryPredictive }

func (p *ExplainPillar) Evaluate(ctx context.Context, model Model, data Dataset, sensitive map[string][]int) risk.PillarResult {
	res := risk.NewPillarResult(p.Name(), p.Category())
	if err := data.Validate(); err != nil {
		return risk.FailedResult(p.Name(), p.Category(), err)
	}

	rng := rand.New(rand.NewSource(p.cfg.Seed))
	n := minInt(p.cfg.MaxSamples, data.Rows())
	idx := sampleIndices(data.Rows(), n, rng)

	X := make([][]float64, n)
	for i, row := range idx {
		X[i] = copyRow(data.X[row])
	}
	baseline, err := model.Predict(X)
	if err != nil {
		return risk.FailedResult(p.Name(), p.Category(), fmt.Errorf("baseline predict: %w", err))
	}

	importances := make([]float64, data.Features())
	for j := 0; j < data.Features(); j++ {
		if ctx.Err() != nil {
			return risk.FailedResult(p.Name(), p.Category(), ctx.Err())
		}
		shuffled := permuteColumn(X, j, rng)
		preds, err := model.Predict(shuffled)
		if err != nil {
			return risk.FailedResult(p.Name(), p.Category(), fmt.Errorf("permuted predict feature %d: %w", j, err))
		}
		// Importance is the fraction of decisions the shuffle flipped.
		importances[j] = 1 - labelAgreement(preds, baseline)
	}

	total := 0.0
	maxImportance := 0.0
	for _, imp := range importances {
		total += imp
		if imp > maxImportance {
			maxImportance = imp
		}
	}

	ranked := rankedImportances(data, importances)
	// Coverage: how much of the total importance the top three features
	// carry. Concentrated attribution reads as explainable.
	topShare := 0.0
	if total > 0 {
		for i := 0; i < minInt(3, len(ranked)); i++ {
			topShare += ranked[i].importance
		}
		topShare /= total
	}

	score := 0.0
	switch {
	case total == 0:
		score = 0
		res.Findings = append(res.Findings, risk.NewFinding(p.Name(), "no_feature_attribution", risk.SeverityHigh,
			"no input feature measurably influences the model's decisions",
			map[string]any{"samples": n}))
	default:
		score = 60*topShare + 40*risk.Clamp(maxImportance/0.2, 0, 1)
	}
	score = risk.Clamp(score, 0, 100)

	if total > 0 && topShare < 0.3 {
		res.Findings = append(res.Findings, risk.NewFinding(p.Name(), "diffuse_attribution", risk.SeverityMedium,
			fmt.Sprintf("top features explain only %.0f%% of decision changes", topShare*100),
			map[string]any{"top3_share": risk.Round3(topShare)}))
	}

	byFeature := map[string]any{}
	for j, imp := range importances {
		byFeature[data.featureName(j)] = risk.Round3(imp)
	}

	res.Score = risk.Round2(score)
	res.Status = risk.StatusForScore(res.Score, p.cfg.PassThreshold, p.cfg.WarnThreshold)
	res.SamplesTested = n
	res.Metrics = map[string]any{
		"top3_share":     risk.Round3(topShare),
		"max_importance": risk.Round3(maxImportance),
		"by_feature":     byFeature,
	}
	return res
}

type featureImportance struct {
	name       string
	importance float64
}

func rankedImportances(data Dataset, importances []float64) []featureImportance {
	ranked := make([]featureImportance, len(importances))
	for j, imp := range importances {
		ranked[j] = featureImportance{name: data.featureName(j), importance: imp}
	}
	sort.Slice(ranked, func(a, b int) bool { return ranked[a].importance > ranked[b].importance })
	return ranked
}

// permuteColumn returns copies of the rows with one feature shuffled across
// the sample. The input rows are not modified.
func permuteColumn(X [][]float64, feature int, rng *rand.Rand) [][]float64 {
	out := make([][]float64, len(X))
	perm := rng.Perm(len(X))
	for i, row := range X {
		out[i] = copyRow(row)
		out[i][feature] = X[perm[i]][feature]
	}
	return out
}
