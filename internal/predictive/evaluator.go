package predictive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"riskeval/internal/risk"
)

// Evaluator runs the configured predictive pillars against one model and
// dataset. Pillars that only read the model and data run concurrently;
// pillars that perturb inputs or depend on dataset-wide statistics run
// sequentially after them so their sampling stays reproducible.
type Evaluator struct {
	cfg         Config
	independent []Pillar
	dependent   []Pillar
}

// NewEvaluator validates the configuration and constructs every enabled
// pillar up front, partitioned into the concurrent and sequential groups.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	normalizeConfig(&cfg)
	constructors := PillarConstructors()
	enabled := make(map[string]bool, len(cfg.EnabledPillars))
	for _, name := range cfg.EnabledPillars {
		if _, ok := constructors[name]; !ok {
			return nil, fmt.Errorf("unknown pillar: %s", name)
		}
		enabled[name] = true
	}

	ev := &Evaluator{cfg: cfg}
	for _, name := range IndependentPillars() {
		if enabled[name] {
			ev.independent = append(ev.independent, constructors[name](cfg))
		}
	}
	for _, name := range DependentPillars() {
		if enabled[name] {
			ev.dependent = append(ev.dependent, constructors[name](cfg))
		}
	}
	if len(ev.independent)+len(ev.dependent) == 0 {
		return nil, fmt.Errorf("no pillars enabled")
	}
	return ev, nil
}

// Evaluate runs every enabled pillar and aggregates the weighted score. A
// pillar failure or panic never halts its siblings; the failed pillar
// contributes a zero score to the aggregate. On deadline expiry the pillars
// still pending fail with the context error and the evaluation is marked
// incomplete.
func (e *Evaluator) Evaluate(ctx context.Context, modelID string, model Model, data Dataset, sensitive map[string][]int) (risk.EvaluationResult, error) {
	evaluation := risk.NewEvaluationResult(modelID)
	if model == nil {
		return evaluation, fmt.Errorf("nil model")
	}
	if err := data.Validate(); err != nil {
		return evaluation, fmt.Errorf("dataset: %w", err)
	}
	for attr, values := range sensitive {
		if len(values) != data.Rows() {
			return evaluation, fmt.Errorf("sensitive attribute %s: %d values for %d rows", attr, len(values), data.Rows())
		}
	}

	start := time.Now()
	timeout := time.Duration(e.cfg.TimeoutSec) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]risk.PillarResult, len(e.independent)+len(e.dependent))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, pillar := range e.independent {
		group.Go(func() error {
			results[i] = runPillarSafely(groupCtx, pillar, model, data, sensitive)
			return nil
		})
	}
	// Pillar errors land in their result slot, never in the group.
	_ = group.Wait()

	offset := len(e.independent)
	for i, pillar := range e.dependent {
		if ctx.Err() != nil {
			evaluation.Incomplete = true
			slog.Warn("evaluation deadline reached, failing pending pillar",
				"pillar", pillar.Name())
			results[offset+i] = risk.FailedResult(pillar.Name(), pillar.Category(), ctx.Err())
			continue
		}
		results[offset+i] = runPillarSafely(ctx, pillar, model, data, sensitive)
	}
	if ctx.Err() != nil {
		evaluation.Incomplete = true
	}

	scores := map[string]float64{}
	for _, result := range results {
		evaluation.Attach(result)
		scores[result.PillarName] = result.Score
		slog.Info("pillar finished",
			"pillar", result.PillarName,
			"score", result.Score,
			"status", string(result.Status),
			"findings", len(result.Findings),
			"duration_ms", result.ExecutionTimeMS)
	}

	evaluation.SortFindings()
	evaluation.OverallScore = risk.Round2(risk.WeightedMean(scores, e.cfg.PillarWeights))
	evaluation.RiskStatus = risk.StatusForScore(evaluation.OverallScore, e.cfg.PassThreshold, e.cfg.WarnThreshold)
	evaluation.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	evaluation.ExecutionTimeMS = time.Since(start).Milliseconds()
	return evaluation, nil
}

// runPillarSafely is the failure-isolation boundary: a panicking pillar is
// recovered into a failed result instead of aborting sibling pillars.
func runPillarSafely(ctx context.Context, pillar Pillar, model Model, data Dataset, sensitive map[string][]int) (result risk.PillarResult) {
	start := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("pillar panicked", "pillar", pillar.Name(), "panic", recovered)
			result = risk.FailedResult(pillar.Name(), pillar.Category(), fmt.Errorf("pillar panicked: %v", recovered))
		}
		result.ExecutionTimeMS = time.Since(start).Milliseconds()
	}()
	return pillar.Evaluate(ctx, model, data, sensitive)
}
