package predictive

import (
	"context"
	"fmt"
	"math/rand"

	"riskeval/internal/risk"
)

// TracePillar audits the model's accountability surface: predictions must be
// deterministic for identical inputs and, when probabilities are exposed,
// consistent with the returned labels.
type TracePillar struct {
	cfg Config
}

func NewTracePillar(cfg Config) Pillar {
	return &TracePillar{cfg: cfg}
}

func (p *TracePillar) Name() string            { return "trace" }
func (p *TracePillar) Category() risk.Category { return risk.CategoryPredictive }

func (p *TracePillar) Evaluate(ctx context.Context, model Model, data Dataset, sensitive map[string][]int) risk.PillarResult {
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

	first, err := model.Predict(X)
	if err != nil {
		return risk.FailedResult(p.Name(), p.Category(), fmt.Errorf("first predict: %w", err))
	}
	if ctx.Err() != nil {
		return risk.FailedResult(p.Name(), p.Category(), ctx.Err())
	}
	second, err := model.Predict(X)
	if err != nil {
		return risk.FailedResult(p.Name(), p.Category(), fmt.Errorf("second predict: %w", err))
	}
	determinism := labelAgreement(first, second)

	// When probabilities are exposed they must agree with the labels at
	// the 0.5 boundary, otherwise downstream audit trails contradict the
	// decisions actually made.
	probaConsistency := 1.0
	hasProba := false
	if proba, ok := probasOf(model, X); ok {
		hasProba = true
		agree := 0
		for i, pr := range proba {
			implied := 0
			if pr >= 0.5 {
				implied = 1
			}
			if implied == first[i] {
				agree++
			}
		}
		probaConsistency = float64(agree) / float64(len(proba))
	}

	score := risk.Clamp(100*(0.6*determinism+0.4*probaConsistency), 0, 100)

	if determinism < 1.0 {
		res.Findings = append(res.Findings, risk.NewFinding(p.Name(), "nondeterministic_predictions", risk.SeverityCritical,
			fmt.Sprintf("%.0f%% of predictions changed between identical calls", (1-determinism)*100),
			map[string]any{"determinism": risk.Round3(determinism)}))
	}
	if hasProba && probaConsistency < 0.95 {
		res.Findings = append(res.Findings, risk.NewFinding(p.Name(), "probability_label_mismatch", risk.SeverityHigh,
			fmt.Sprintf("probabilities contradict labels for %.0f%% of inputs", (1-probaConsistency)*100),
			map[string]any{"proba_consistency": risk.Round3(probaConsistency)}))
	}

	res.Score = risk.Round2(score)
	res.Status = risk.StatusForScore(res.Score, p.cfg.PassThreshold, p.cfg.WarnThreshold)
	res.SamplesTested = n
	res.Metrics = map[string]any{
		"determinism":       risk.Round3(determinism),
		"proba_consistency": risk.Round3(probaConsistency),
		"exposes_proba":     hasProba,
	}
	return res
}
