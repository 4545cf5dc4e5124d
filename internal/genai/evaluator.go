package genai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"riskeval/internal/risk"
)

// Evaluator orchestrates the enabled generative pillars against one model
// session and reduces their results into a single evaluation.
type Evaluator struct {
	cfg     Config
	pillars map[string]Pillar
}

// NewEvaluator validates the configuration and constructs every enabled
// pillar up front. Configuration errors are fatal here, before any pillar
// runs.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	normalizeConfig(&cfg)
	constructors := PillarConstructors()
	pillars := make(map[string]Pillar, len(cfg.EnabledPillars))
	for _, name := range cfg.EnabledPillars {
		constructor, ok := constructors[name]
		if !ok {
			return nil, fmt.Errorf("unknown pillar: %s", name)
		}
		pillars[name] = constructor(cfg)
	}
	return &Evaluator{cfg: cfg, pillars: pillars}, nil
}

// Evaluate runs each enabled pillar in config order against a shared prompt
// pool. A failing pillar degrades only its own contribution; the run always
// produces an aggregatable result. On deadline expiry the completed pillar
// results are returned and the evaluation is marked incomplete.
func (e *Evaluator) Evaluate(ctx context.Context, conn Connector, session string, prompts []string) risk.EvaluationResult {
	start := time.Now()
	evaluation := risk.NewEvaluationResult(session)

	timeout := time.Duration(e.cfg.TimeoutSec) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool := e.buildPromptPool(prompts)
	scores := map[string]float64{}

	for _, name := range e.cfg.EnabledPillars {
		if ctx.Err() != nil {
			evaluation.Incomplete = true
			slog.Warn("evaluation deadline reached, returning partial results",
				"completed_pillars", len(scores), "pending_pillar", name)
			break
		}
		pillar := e.pillars[name]
		result := runPillarSafely(ctx, pillar, conn, session, pool)
		evaluation.Attach(result)
		scores[name] = result.Score
		slog.Info("pillar finished",
			"pillar", name,
			"score", result.Score,
			"status", string(result.Status),
			"findings", len(result.Findings),
			"duration_ms", result.ExecutionTimeMS)
	}
	// The deadline can also expire inside a pillar's sample loop; the pillar
	// then returns a result built from fewer samples than planned. That run
	// is partial too.
	if ctx.Err() != nil {
		evaluation.Incomplete = true
	}

	evaluation.SortFindings()
	evaluation.OverallScore = risk.Round2(risk.WeightedMean(scores, e.cfg.PillarWeights))
	evaluation.RiskStatus = risk.StatusForScore(evaluation.OverallScore, e.cfg.PassThreshold, e.cfg.WarnThreshold)
	evaluation.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	evaluation.ExecutionTimeMS = time.Since(start).Milliseconds()
	return evaluation
}

// buildPromptPool merges explicit prompts, each pillar's standard prompts,
// and configured custom prompts, then random-samples down to the configured
// sample size when oversized. Pillars receive their own view; none mutates
// the pool.
func (e *Evaluator) buildPromptPool(prompts []string) []string {
	pool := make([]string, 0, len(prompts)+len(e.cfg.CustomPrompts))
	pool = append(pool, prompts...)
	for _, name := range e.cfg.EnabledPillars {
		pool = append(pool, e.pillars[name].StandardPrompts()...)
	}
	pool = append(pool, e.cfg.CustomPrompts...)
	return samplePrompts(pool, e.cfg.SampleSize)
}

// runPillarSafely is the failure-isolation boundary: a panicking pillar is
// recovered into a failed result instead of aborting sibling pillars.
func runPillarSafely(ctx context.Context, pillar Pillar, conn Connector, session string, prompts []string) (result risk.PillarResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("pillar panicked", "pillar", pillar.Name(), "panic", recovered)
			result = risk.FailedResult(pillar.Name(), pillar.Category(), fmt.Errorf("pillar panicked: %v", recovered))
		}
	}()
	return pillar.Evaluate(ctx, conn, session, prompts)
}
