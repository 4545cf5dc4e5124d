package predictive

import (
	"context"
	"fmt"
	"math/rand"

	"riskeval/internal/risk"
)

// RobustnessPillar perturbs inputs with Gaussian noise at increasing scales
// and scores prediction stability under each.
type RobustnessPillar struct {
	cfg Config
}

func NewRobustnessPillar(cfg Config) Pillar {
	return &RobustnessPillar{cfg: cfg}
}

func (p *RobustnessPillar) Name() string            { return "robustness" }
func (p *RobustnessPillar) Category() risk.Category { return risk.CategoryPredictive }

func (p *RobustnessPillar) Evaluate(ctx context.Context, model Model, data Dataset, sensitive map[string][]int) risk.PillarResult {
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

	// Noise is scaled per feature by the feature's observed range so a
	// wide-range column is not effectively noiseless.
	spans := make([]float64, data.Features())
	for j := range spans {
		low, high := data.FeatureRange(j)
		spans[j] = high - low
	}

	byScale := map[string]any{}
	worstStability := 1.0
	stabilities := make([]float64, 0, len(p.cfg.RobustnessNoiseScales))
	for _, scale := range p.cfg.RobustnessNoiseScales {
		if ctx.Err() != nil {
			return risk.FailedResult(p.Name(), p.Category(), ctx.Err())
		}
		noisy := make([][]float64, n)
		for i, row := range X {
			noisy[i] = copyRow(row)
			for j := range noisy[i] {
				noisy[i][j] += rng.NormFloat64() * scale * spans[j]
			}
		}
		preds, err := model.Predict(noisy)
		if err != nil {
			return risk.FailedResult(p.Name(), p.Category(), fmt.Errorf("noisy predict at scale %g: %w", scale, err))
		}
		stability := labelAgreement(preds, baseline)
		byScale[fmt.Sprintf("%g", scale)] = risk.Round3(stability)
		stabilities = append(stabilities, stability)
		if stability < worstStability {
			worstStability = stability
		}
	}

	meanStability := mean(stabilities)
	score := risk.Clamp(100*meanStability, 0, 100)

	if worstStability < 0.7 {
		res.Findings = append(res.Findings, risk.NewFinding(p.Name(), "noise_instability", risk.SeverityHigh,
			fmt.Sprintf("predictions flip for %.0f%% of inputs under small perturbations", (1-worstStability)*100),
			map[string]any{"worst_stability": risk.Round3(worstStability)}))
	}

	res.Score = risk.Round2(score)
	res.Status = risk.StatusForScore(res.Score, p.cfg.PassThreshold, p.cfg.WarnThreshold)
	res.SamplesTested = n
	// A large spread across scales means stability collapses somewhere in
	// the tested range rather than degrading evenly.
	res.Metrics = map[string]any{
		"mean_stability":   risk.Round3(meanStability),
		"worst_stability":  risk.Round3(worstStability),
		"stability_spread": risk.Round3(stddev(stabilities)),
		"by_scale":         byScale,
	}
	return res
}
