package service

import (
	"context"
	"testing"
	"time"

	"riskeval/internal/genai"
	"riskeval/internal/predictive"
)

type benignConnector struct{}

func (benignConnector) Invoke(_ context.Context, _, _ string) (*genai.Invocation, error) {
	return &genai.Invocation{
		Content:      "I cannot help with that request.",
		InputTokens:  10,
		OutputTokens: 8,
		FinishReason: "stop",
	}, nil
}

func testManagerConfig() ServiceConfig {
	cfg := DefaultServiceConfig()
	cfg.Workers.MaxParallelEvals = 1
	cfg.Workers.DefaultTimeoutSec = 30
	cfg.GenAI.EnabledPillars = []string{"privacy"}
	cfg.GenAI.SampleSize = 3
	cfg.Predictive.EnabledPillars = []string{"trace", "testing"}
	return cfg
}

func stepModelLoader(EvalRequest) (predictive.Model, predictive.Dataset, map[string][]int, error) {
	model := &predictive.ModelWrapper{
		ModelID: "step",
		PredictFn: func(X [][]float64) ([]int, error) {
			labels := make([]int, len(X))
			for i, row := range X {
				if row[0] >= 0.5 {
					labels[i] = 1
				}
			}
			return labels, nil
		},
	}
	data := predictive.Dataset{FeatureNames: []string{"signal", "noise"}}
	for i := 0; i < 20; i++ {
		signal := float64(i % 2)
		data.X = append(data.X, []float64{signal, float64(i) / 20})
		data.Y = append(data.Y, i%2)
	}
	return model, data, nil, nil
}

func waitForTerminal(t *testing.T, store Store, evalID string) EvalMeta {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		meta, ok := store.GetEvaluation(evalID)
		if !ok {
			t.Fatalf("evaluation %s missing from store", evalID)
		}
		if meta.Status != "queued" && meta.Status != "running" {
			return meta
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("evaluation %s never reached a terminal status", evalID)
	return EvalMeta{}
}

func TestSubmitRejectsInvalidRequests(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	manager := NewEvalManager(testManagerConfig(), store, nil,
		func(EvalRequest) (genai.Connector, error) { return benignConnector{}, nil },
		stepModelLoader)
	defer manager.Shutdown()

	if _, err := manager.Submit(EvalRequest{Mode: "tarot", ModelID: "m"}, "test"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if _, err := manager.Submit(EvalRequest{Mode: ModeGenerative}, "test"); err == nil {
		t.Fatalf("expected error for missing model_id")
	}
	if _, err := manager.Submit(EvalRequest{Mode: ModePredictive, ModelID: "m"}, "test"); err == nil {
		t.Fatalf("expected error for predictive request without dataset path")
	}
}

func TestGenerativeEvaluationLifecycle(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	manager := NewEvalManager(testManagerConfig(), store, nil,
		func(EvalRequest) (genai.Connector, error) { return benignConnector{}, nil },
		nil)
	defer manager.Shutdown()

	meta, err := manager.Submit(EvalRequest{Mode: ModeGenerative, ModelID: "chat-model"}, "test")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if meta.Status != "queued" {
		t.Fatalf("expected queued, got %s", meta.Status)
	}

	final := waitForTerminal(t, store, meta.EvalID)
	if final.Result == nil {
		t.Fatalf("terminal evaluation should carry a result, error=%q", final.Error)
	}
	if _, ok := final.Result.PillarResults["privacy"]; !ok {
		t.Fatalf("expected privacy pillar result")
	}
	if final.FinishedAt == "" {
		t.Fatalf("finished_at not set")
	}

	stages := map[string]bool{}
	for _, event := range store.ListEvents(meta.EvalID, 0) {
		stages[event.Stage] = true
	}
	for _, want := range []string{"queue", "start", "pillar_result", "completed"} {
		if !stages[want] {
			t.Fatalf("missing %s event, got %v", want, stages)
		}
	}
}

func TestPredictiveEvaluationLifecycle(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	manager := NewEvalManager(testManagerConfig(), store, nil, nil, stepModelLoader)
	defer manager.Shutdown()

	meta, err := manager.Submit(EvalRequest{
		Mode:        ModePredictive,
		ModelID:     "credit-model",
		DatasetPath: "inline",
	}, "test")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	final := waitForTerminal(t, store, meta.EvalID)
	if final.Error != "" {
		t.Fatalf("unexpected evaluation error: %s", final.Error)
	}
	if final.Result == nil {
		t.Fatalf("terminal evaluation should carry a result")
	}
	if len(final.Result.PillarResults) != 2 {
		t.Fatalf("expected 2 pillar results, got %d", len(final.Result.PillarResults))
	}
	if final.Result.ModelID != "credit-model" {
		t.Fatalf("expected model id carried through, got %s", final.Result.ModelID)
	}
}

func TestConnectorFailureMarksEvaluationFailed(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	manager := NewEvalManager(testManagerConfig(), store, nil,
		func(EvalRequest) (genai.Connector, error) { return nil, context.DeadlineExceeded },
		nil)
	defer manager.Shutdown()

	meta, err := manager.Submit(EvalRequest{Mode: ModeGenerative, ModelID: "chat-model"}, "test")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	final := waitForTerminal(t, store, meta.EvalID)
	if final.Status != "fail" {
		t.Fatalf("expected fail status, got %s", final.Status)
	}
	if final.Error == "" {
		t.Fatalf("expected error recorded on evaluation")
	}
}
