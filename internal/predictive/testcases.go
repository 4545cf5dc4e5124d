package predictive

import (
	"context"
	"fmt"
	"math/rand"

	"riskeval/internal/risk"
)

// TestingPillar runs behavioral checks against held-out data: accuracy on
// labeled rows, per-class error balance, and handling of boundary inputs at
// the extremes of each feature's observed range.
type TestingPillar struct {
	cfg Config
}

func NewTestingPillar(cfg Config) Pillar {
	return &TestingPillar{cfg: cfg}
}

func (p *TestingPillar) Name() string            { return "testing" }
func (p *TestingPillar) Category() risk.Category { return risk.CategoryPredictive }

func (p *TestingPillar) Evaluate(ctx context.Context, model Model, data Dataset, sensitive map[string][]int) risk.PillarResult {
	res := risk.NewPillarResult(p.Name(), p.Category())
	if err := data.Validate(); err != nil {
		return risk.FailedResult(p.Name(), p.Category(), err)
	}
	// Validate permits unlabeled datasets; every check here compares against
	// the labels, so this pillar cannot score without them.
	if len(data.Y) == 0 {
		return risk.FailedResult(p.Name(), p.Category(),
			fmt.Errorf("behavioral testing requires a labeled dataset"))
	}

	rng := rand.New(rand.NewSource(p.cfg.Seed))
	n := minInt(p.cfg.MaxSamples, data.Rows())
	idx := sampleIndices(data.Rows(), n, rng)

	X := make([][]float64, n)
	y := make([]int, n)
	for i, row := range idx {
		X[i] = copyRow(data.X[row])
		y[i] = data.Y[row]
	}
	preds, err := model.Predict(X)
	if err != nil {
		return risk.FailedResult(p.Name(), p.Category(), fmt.Errorf("predict: %w", err))
	}
	accuracy := labelAgreement(preds, y)

	// Class balance: the gap between per-class error rates. A model that
	// only ever errs on one class fails quietly in production.
	errByClass := map[int]*classErrors{0: {}, 1: {}}
	for i, pred := range preds {
		ce := errByClass[y[i]]
		ce.total++
		if pred != y[i] {
			ce.wrong++
		}
	}
	balanceGap := 0.0
	if errByClass[0].total > 0 && errByClass[1].total > 0 {
		balanceGap = absFloat(errByClass[0].rate() - errByClass[1].rate())
	}

	// Boundary handling: predictions on rows pinned to feature minima and
	// maxima must come back without error.
	boundaryOK := true
	boundary := boundaryRows(data)
	if ctx.Err() != nil {
		return risk.FailedResult(p.Name(), p.Category(), ctx.Err())
	}
	if _, err := model.Predict(boundary); err != nil {
		boundaryOK = false
		res.Findings = append(res.Findings, risk.NewFinding(p.Name(), "boundary_failure", risk.SeverityHigh,
			"model errors on inputs at the edges of the training distribution",
			map[string]any{"error": err.Error()}))
	}

	score := 70*accuracy + 20*(1-risk.Clamp(balanceGap/0.3, 0, 1))
	if boundaryOK {
		score += 10
	}
	score = risk.Clamp(score, 0, 100)

	if accuracy < 0.6 {
		res.Findings = append(res.Findings, risk.NewFinding(p.Name(), "low_accuracy", risk.SeverityHigh,
			fmt.Sprintf("accuracy %.1f%% on held-out rows", accuracy*100),
			map[string]any{"accuracy": risk.Round3(accuracy)}))
	}
	if balanceGap > 0.2 {
		res.Findings = append(res.Findings, risk.NewFinding(p.Name(), "class_error_imbalance", risk.SeverityMedium,
			fmt.Sprintf("per-class error rates differ by %.0f points", balanceGap*100),
			map[string]any{"error_gap": risk.Round3(balanceGap)}))
	}

	res.Score = risk.Round2(score)
	res.Status = risk.StatusForScore(res.Score, p.cfg.PassThreshold, p.cfg.WarnThreshold)
	res.SamplesTested = n
	res.Metrics = map[string]any{
		"accuracy":    risk.Round3(accuracy),
		"error_gap":   risk.Round3(balanceGap),
		"boundary_ok": boundaryOK,
	}
	return res
}

type classErrors struct {
	total int
	wrong int
}

func (c *classErrors) rate() float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.wrong) / float64(c.total)
}

// boundaryRows builds two synthetic rows at the per-feature minima and maxima.
func boundaryRows(data Dataset) [][]float64 {
	low := make([]float64, data.Features())
	high := make([]float64, data.Features())
	for j := range low {
		low[j], high[j] = data.FeatureRange(j)
	}
	return [][]float64{low, high}
}
