package predictive

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"riskeval/internal/risk"
)

// ActionsPillar measures actionability: for every negatively classified
// instance it searches for a minimal counterfactual, then scores coverage,
// plausibility against the training distribution, and sparsity.
type ActionsPillar struct {
	cfg Config
}

func NewActionsPillar(cfg Config) *ActionsPillar {
	return &ActionsPillar{cfg: cfg}
}

func (p *ActionsPillar) Name() string {
	return "actions"
}

func (p *ActionsPillar) Category() risk.Category {
	return risk.CategoryPredictive
}

type counterfactual struct {
	original        []float64
	perturbed       []float64
	featuresChanged int
}

func (p *ActionsPillar) Evaluate(ctx context.Context, model Model, data Dataset, _ map[string][]int) risk.PillarResult {
	start := time.Now()
	result := risk.NewPillarResult(p.Name(), p.Category())

	if err := data.Validate(); err != nil {
		failed := risk.FailedResult(p.Name(), p.Category(), err)
		failed.ExecutionTimeMS = time.Since(start).Milliseconds()
		return failed
	}

	labels, err := model.Predict(data.X)
	if err != nil {
		failed := risk.FailedResult(p.Name(), p.Category(), fmt.Errorf("baseline predictions: %w", err))
		failed.ExecutionTimeMS = time.Since(start).Milliseconds()
		return failed
	}

	mutable := p.mutableFeatures(data)
	rng := rand.New(rand.NewSource(p.cfg.Seed))

	attempted := 0
	flipped := 0
	var counterfactuals []counterfactual

	for i, label := range labels {
		if label != 0 || attempted >= p.cfg.MaxSamples {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		attempted++
		if cf, ok := p.searchCounterfactual(model, data, data.X[i], mutable, rng); ok {
			flipped++
			counterfactuals = append(counterfactuals, cf)
		}
	}

	elapsed := time.Since(start).Milliseconds()
	result.ExecutionTimeMS = elapsed
	result.SamplesTested = attempted

	// A dataset where every prediction is already positive yields coverage 0
	// and a neutral score, never an error.
	if attempted == 0 {
		result.Score = 50
		result.Status = risk.StatusForScore(result.Score, p.cfg.PassThreshold, p.cfg.WarnThreshold)
		result.Metrics["coverage"] = 0.0
		result.Metrics["attempted"] = 0
		result.Metrics["flipped"] = 0
		result.Details["note"] = "no negatively classified instances to search from"
		return result
	}

	coverage := float64(flipped) / float64(attempted)
	avgChanged := 0.0
	plausibility := 0.0
	if len(counterfactuals) > 0 {
		scale := meanPairwiseDistance(data.X, 2000)
		plausibilitySum := 0.0
		changedSum := 0
		for _, cf := range counterfactuals {
			changedSum += cf.featuresChanged
			if scale > 0 {
				plausibilitySum += math.Exp(-nearestDistance(cf.perturbed, data.X) / scale)
			} else {
				plausibilitySum += 1
			}
		}
		avgChanged = float64(changedSum) / float64(len(counterfactuals))
		plausibility = plausibilitySum / float64(len(counterfactuals))
	}
	sparsityBonus := math.Max(0, 1-avgChanged/10)

	score := p.cfg.ActionsCoverageWeight*coverage +
		p.cfg.ActionsPlausibilityWeight*plausibility +
		p.cfg.ActionsSparsityWeight*sparsityBonus
	result.Score = risk.Round2(risk.Clamp(score, 0, 100))
	result.Status = risk.StatusForScore(result.Score, p.cfg.PassThreshold, p.cfg.WarnThreshold)

	if coverage < 0.5 {
		result.Findings = append(result.Findings, risk.NewFinding(
			p.Name(),
			"low_recourse_coverage",
			risk.SeverityMedium,
			fmt.Sprintf("counterfactuals found for only %.0f%% of negative instances", coverage*100),
			map[string]any{"coverage": risk.Round3(coverage), "attempted": attempted},
		))
	}
	if avgChanged > 5 {
		result.Findings = append(result.Findings, risk.NewFinding(
			p.Name(),
			"costly_recourse",
			risk.SeverityLow,
			fmt.Sprintf("counterfactuals change %.1f features on average", avgChanged),
			map[string]any{"avg_features_changed": risk.Round2(avgChanged)},
		))
	}

	result.Metrics["coverage"] = risk.Round3(coverage)
	result.Metrics["attempted"] = attempted
	result.Metrics["flipped"] = flipped
	result.Metrics["avg_features_changed"] = risk.Round2(avgChanged)
	result.Metrics["plausibility"] = risk.Round3(plausibility)
	result.Metrics["sparsity_bonus"] = risk.Round3(sparsityBonus)
	return result
}

// searchCounterfactual runs the greedy single-feature perturbation search:
// pick a random mutable feature, step by the configured fraction of its
// observed range in both directions, accept a step when it flips the
// prediction or improves probability-of-positive, stop on flip or at the
// iteration cap. Instances that never flip are dropped.
func (p *ActionsPillar) searchCounterfactual(model Model, data Dataset, instance []float64, mutable []int, rng *rand.Rand) (counterfactual, bool) {
	if len(mutable) == 0 {
		return counterfactual{}, false
	}
	current := copyRow(instance)
	changed := map[int]bool{}
	bestProba, hasProba := probaOf(model, current)

	for iter := 0; iter < p.cfg.ActionsMaxIterations; iter++ {
		feature := mutable[rng.Intn(len(mutable))]
		low, high := data.FeatureRange(feature)
		step := (high - low) * p.cfg.ActionsStepFraction
		if step == 0 {
			continue
		}
		for _, direction := range []float64{1, -1} {
			candidate := copyRow(current)
			candidate[feature] += direction * step

			labels, err := model.Predict([][]float64{candidate})
			if err != nil {
				return counterfactual{}, false
			}
			if labels[0] == 1 {
				changed[feature] = true
				return counterfactual{
					original:        instance,
					perturbed:       candidate,
					featuresChanged: len(changed),
				}, true
			}
			if hasProba {
				if proba, ok := probaOf(model, candidate); ok && proba > bestProba {
					bestProba = proba
					current = candidate
					changed[feature] = true
					break
				}
			}
		}
	}
	return counterfactual{}, false
}

func (p *ActionsPillar) mutableFeatures(data Dataset) []int {
	immutable := map[string]bool{}
	for _, name := range p.cfg.ImmutableFeatures {
		immutable[strings.ToLower(strings.TrimSpace(name))] = true
	}
	var mutable []int
	for j := 0; j < data.Features(); j++ {
		if !immutable[strings.ToLower(data.featureName(j))] {
			mutable = append(mutable, j)
		}
	}
	return mutable
}
