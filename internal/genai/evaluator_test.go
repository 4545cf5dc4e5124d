package genai

import (
	"context"
	"testing"

	"riskeval/internal/risk"
)

type panicPillar struct{}

func (panicPillar) Name() string            { return "panicky" }
func (panicPillar) Category() risk.Category { return risk.CategoryGenerative }
func (panicPillar) StandardPrompts() []string {
	return nil
}
func (panicPillar) Evaluate(context.Context, Connector, string, []string) risk.PillarResult {
	panic("boom")
}

func TestNewEvaluatorRejectsUnknownPillar(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledPillars = []string{"privacy", "nonexistent"}
	if _, err := NewEvaluator(cfg); err == nil {
		t.Fatalf("expected configuration error for unknown pillar")
	}
}

func TestEvaluateSinglePillarAggregateEqualsPillarScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledPillars = []string{"privacy"}
	evaluator, err := NewEvaluator(cfg)
	if err != nil {
		t.Fatalf("NewEvaluator error: %v", err)
	}
	evaluation := evaluator.Evaluate(context.Background(), safeConnector(), "model-1", nil)

	privacy, ok := evaluation.PillarResults["privacy"]
	if !ok {
		t.Fatalf("missing privacy pillar result")
	}
	if evaluation.OverallScore != privacy.Score {
		t.Fatalf("single-pillar aggregate %.2f should equal pillar score %.2f",
			evaluation.OverallScore, privacy.Score)
	}
	if evaluation.Incomplete {
		t.Fatalf("evaluation should be complete")
	}
}

func TestEvaluateFailedPillarDoesNotHaltSiblings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledPillars = []string{"panicky", "toxicity"}
	evaluator, err := NewEvaluator(Config{EnabledPillars: []string{"toxicity"}})
	if err != nil {
		t.Fatalf("NewEvaluator error: %v", err)
	}
	// Inject the panicking pillar directly; the public constructor map only
	// carries real pillars.
	evaluator.cfg.EnabledPillars = cfg.EnabledPillars
	evaluator.pillars["panicky"] = panicPillar{}

	evaluation := evaluator.Evaluate(context.Background(), safeConnector(), "model-1", nil)

	failed, ok := evaluation.PillarResults["panicky"]
	if !ok {
		t.Fatalf("panicking pillar result missing from evaluation")
	}
	if failed.Status != risk.StatusFail || failed.Score != 0 {
		t.Fatalf("panicking pillar should be forced to fail/0, got %s/%.2f", failed.Status, failed.Score)
	}
	if _, ok := evaluation.PillarResults["toxicity"]; !ok {
		t.Fatalf("sibling pillar did not run after failure")
	}

	// Forced zero participates in both numerator and denominator.
	toxicity := evaluation.PillarResults["toxicity"]
	want := risk.Round2((0 + toxicity.Score) / 2)
	if evaluation.OverallScore != want {
		t.Fatalf("aggregate %.2f should include forced zero, want %.2f", evaluation.OverallScore, want)
	}
}

func TestEvaluateTimeoutMarksIncomplete(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledPillars = []string{"privacy", "toxicity"}
	evaluator, err := NewEvaluator(cfg)
	if err != nil {
		t.Fatalf("NewEvaluator error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	evaluation := evaluator.Evaluate(ctx, safeConnector(), "model-1", nil)

	if !evaluation.Incomplete {
		t.Fatalf("expired context should mark the evaluation incomplete")
	}
}

func TestEvaluateMidPillarExpiryMarksIncomplete(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledPillars = []string{"privacy"}
	evaluator, err := NewEvaluator(cfg)
	if err != nil {
		t.Fatalf("NewEvaluator error: %v", err)
	}

	// Expire the context partway through the pillar's sample loop, so the
	// pillar scores fewer samples than the pool holds.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := &scriptedConnector{}
	conn.respond = func(string) (string, error) {
		if conn.calls >= 2 {
			cancel()
		}
		return "I keep personal data confidential and cannot repeat it.", nil
	}

	prompts := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	evaluation := evaluator.Evaluate(ctx, conn, "model-1", prompts)

	privacy, ok := evaluation.PillarResults["privacy"]
	if !ok {
		t.Fatalf("missing privacy pillar result")
	}
	if privacy.SamplesTested >= len(prompts) {
		t.Fatalf("expected truncated sample loop, tested %d of %d", privacy.SamplesTested, len(prompts))
	}
	if !evaluation.Incomplete {
		t.Fatalf("truncated evaluation must be marked incomplete")
	}
}

func TestBuildPromptPoolSamplesDown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledPillars = []string{"privacy"}
	cfg.SampleSize = 3
	evaluator, err := NewEvaluator(cfg)
	if err != nil {
		t.Fatalf("NewEvaluator error: %v", err)
	}
	pool := evaluator.buildPromptPool([]string{"p1", "p2", "p3", "p4", "p5"})
	if len(pool) != 3 {
		t.Fatalf("expected pool sampled down to 3, got %d", len(pool))
	}
}
