package predictive

import (
	"context"
	"fmt"
	"math/rand"

	"riskeval/internal/risk"
)

// ImitationPillar simulates a model extraction attack: an adversary with a
// bounded query budget trains surrogate models on the target's own labels
// and the best surrogate's agreement with the target measures how easy the
// model is to steal.
type ImitationPillar struct {
	cfg Config
}

func NewImitationPillar(cfg Config) Pillar {
	return &ImitationPillar{cfg: cfg}
}

func (p *ImitationPillar) Name() string            { return "imitation" }
func (p *ImitationPillar) Category() risk.Category { return risk.CategoryPredictive }

func (p *ImitationPillar) Evaluate(ctx context.Context, model Model, data Dataset, sensitive map[string][]int) risk.PillarResult {
	res := risk.NewPillarResult(p.Name(), p.Category())
	if err := data.Validate(); err != nil {
		return risk.FailedResult(p.Name(), p.Category(), err)
	}

	rng := rand.New(rand.NewSource(p.cfg.Seed))
	budget := minInt(p.cfg.ImitationQueryBudget, data.Rows())
	queryIdx := sampleIndices(data.Rows(), budget, rng)

	queryX := make([][]float64, len(queryIdx))
	for i, idx := range queryIdx {
		queryX[i] = copyRow(data.X[idx])
	}
	stolen, err := model.Predict(queryX)
	if err != nil {
		return risk.FailedResult(p.Name(), p.Category(), fmt.Errorf("query target: %w", err))
	}

	// Hold out a slice of the stolen set to measure surrogate fidelity
	// against the target's behavior on unseen points.
	split := len(queryX) * 4 / 5
	if split < 1 || split >= len(queryX) {
		return risk.FailedResult(p.Name(), p.Category(), fmt.Errorf("query budget %d too small for extraction simulation", budget))
	}
	trainX, trainY := queryX[:split], stolen[:split]
	testX, testY := queryX[split:], stolen[split:]

	surrogates := []surrogate{newLogisticSurrogate(), newTreeSurrogate()}
	bestFidelity, bestName := 0.0, ""
	fidelityBySurrogate := map[string]any{}
	for _, s := range surrogates {
		if ctx.Err() != nil {
			return risk.FailedResult(p.Name(), p.Category(), ctx.Err())
		}
		s.fit(trainX, trainY)
		fidelity := labelAgreement(s.predict(testX), testY)
		fidelityBySurrogate[s.name()] = risk.Round3(fidelity)
		if fidelity > bestFidelity {
			bestFidelity = fidelity
			bestName = s.name()
		}
	}

	// Confidence leakage: a target exposing calibrated probabilities gives
	// the attacker a richer training signal than hard labels.
	leakage := 0.0
	if proba, ok := probasOf(model, testX); ok {
		spread := 0.0
		for _, pr := range proba {
			spread += 2 * absFloat(pr-0.5)
		}
		leakage = 1 - spread/float64(len(proba))
	}

	// Mitigating factors: a declared prediction watermark makes stolen
	// copies traceable, and an attack needing more than the complex-budget
	// line of queries is costlier to mount.
	watermarked := false
	if wm, ok := model.(WatermarkedModel); ok && wm.Watermarked() {
		watermarked = true
	}
	score := 100 - p.cfg.ImitationFidelityPenalty*bestFidelity - p.cfg.ImitationLeakagePenalty*leakage
	if watermarked {
		score += p.cfg.ImitationWatermarkBonus
	}
	if p.cfg.ImitationQueryBudget > p.cfg.ImitationComplexBudget {
		score += p.cfg.ImitationBudgetBonus
	}
	score = risk.Clamp(score, 0, 100)

	if bestFidelity >= p.cfg.ImitationExtractionThreshold {
		res.Findings = append(res.Findings, risk.NewFinding(p.Name(), "model_extraction", risk.SeverityCritical,
			fmt.Sprintf("surrogate %s reproduces %.1f%% of target decisions with %d queries", bestName, bestFidelity*100, budget),
			map[string]any{
				"surrogate":    bestName,
				"fidelity":     risk.Round3(bestFidelity),
				"query_budget": budget,
			}))
	}
	if leakage >= 0.5 {
		res.Findings = append(res.Findings, risk.NewFinding(p.Name(), "confidence_leakage", risk.SeverityMedium,
			"prediction confidences are poorly separated and leak decision-boundary information",
			map[string]any{"leakage": risk.Round3(leakage)}))
	}

	res.Score = risk.Round2(score)
	res.Status = risk.StatusForScore(res.Score, p.cfg.PassThreshold, p.cfg.WarnThreshold)
	res.SamplesTested = budget
	res.Metrics = map[string]any{
		"best_fidelity":  risk.Round3(bestFidelity),
		"best_surrogate": bestName,
		"leakage":        risk.Round3(leakage),
		"query_budget":   budget,
		"watermarked":    watermarked,
		"by_surrogate":   fidelityBySurrogate,
	}
	return res
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
