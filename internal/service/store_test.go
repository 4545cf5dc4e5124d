package service

import (
	"path/filepath"
	"testing"

	"riskeval/internal/risk"
)

func TestMemoryStoreEvalLifecycle(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	meta := EvalMeta{
		EvalID:    "eval_test_1",
		Status:    "queued",
		Source:    "test",
		Request:   EvalRequest{Mode: ModePredictive, ModelID: "credit-model"},
		CreatedAt: nowRFC3339(),
	}
	if err := store.CreateEvaluation(meta); err != nil {
		t.Fatalf("CreateEvaluation error: %v", err)
	}
	event, err := store.AppendEvent(meta.EvalID, "queue", "queued", nil)
	if err != nil {
		t.Fatalf("AppendEvent error: %v", err)
	}
	if event.Seq != 1 {
		t.Fatalf("expected first seq=1, got %d", event.Seq)
	}
	updated, err := store.UpdateEvaluation(meta.EvalID, func(item *EvalMeta) {
		item.Status = "running"
	})
	if err != nil {
		t.Fatalf("UpdateEvaluation error: %v", err)
	}
	if updated.Status != "running" {
		t.Fatalf("expected status running, got %s", updated.Status)
	}
	queued := store.ListQueued(10)
	if len(queued) != 0 {
		t.Fatalf("running evaluation should not be listed as queued, got %d", len(queued))
	}
}

func TestMemoryStoreListEventsSinceSeq(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	if err := store.CreateEvaluation(EvalMeta{EvalID: "eval_test_2", Status: "queued", CreatedAt: nowRFC3339()}); err != nil {
		t.Fatalf("CreateEvaluation error: %v", err)
	}
	for _, stage := range []string{"queue", "start", "completed"} {
		if _, err := store.AppendEvent("eval_test_2", stage, stage, nil); err != nil {
			t.Fatalf("AppendEvent(%s) error: %v", stage, err)
		}
	}
	tail := store.ListEvents("eval_test_2", 1)
	if len(tail) != 2 {
		t.Fatalf("expected 2 events after seq 1, got %d", len(tail))
	}
	if tail[0].Stage != "start" || tail[1].Stage != "completed" {
		t.Fatalf("unexpected event order: %s, %s", tail[0].Stage, tail[1].Stage)
	}
}

func TestMemoryStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewMemoryFileStore(path)
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	if err := store.CreateEvaluation(EvalMeta{EvalID: "eval_persist", Status: "queued", CreatedAt: nowRFC3339()}); err != nil {
		t.Fatalf("CreateEvaluation error: %v", err)
	}
	if _, err := store.AppendEvent("eval_persist", "queue", "queued", map[string]any{"mode": ModeGenerative}); err != nil {
		t.Fatalf("AppendEvent error: %v", err)
	}

	reloaded, err := NewMemoryFileStore(path)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if _, ok := reloaded.GetEvaluation("eval_persist"); !ok {
		t.Fatalf("evaluation missing after reload")
	}
	event, err := reloaded.AppendEvent("eval_persist", "start", "started", nil)
	if err != nil {
		t.Fatalf("AppendEvent after reload error: %v", err)
	}
	if event.Seq != 2 {
		t.Fatalf("sequence should resume after reload, expected 2, got %d", event.Seq)
	}
}

func TestMetricsOverviewCounts(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	result := risk.NewEvaluationResult("model-a")
	result.OverallScore = 90
	result.RiskStatus = risk.StatusPass
	result.CriticalFindings = 2
	result.ExecutionTimeMS = 120

	entries := []EvalMeta{
		{EvalID: "e1", Status: string(risk.StatusPass), CreatedAt: "2026-01-01T00:00:00Z", Result: &result},
		{EvalID: "e2", Status: string(risk.StatusFail), CreatedAt: "2026-01-02T00:00:00Z"},
		{EvalID: "e3", Status: "running", CreatedAt: "2026-01-03T00:00:00Z"},
	}
	for _, meta := range entries {
		if err := store.CreateEvaluation(meta); err != nil {
			t.Fatalf("CreateEvaluation(%s) error: %v", meta.EvalID, err)
		}
	}

	overview := store.GetMetricsOverview()
	if overview.TotalEvals != 3 {
		t.Fatalf("expected 3 evaluations, got %d", overview.TotalEvals)
	}
	if overview.PassEvals != 1 || overview.FailEvals != 1 || overview.RunningEvals != 1 {
		t.Fatalf("unexpected status counts: pass=%d fail=%d running=%d",
			overview.PassEvals, overview.FailEvals, overview.RunningEvals)
	}
	if overview.CriticalFindings != 2 {
		t.Fatalf("expected 2 critical findings, got %d", overview.CriticalFindings)
	}
	if overview.AverageScore != 90 {
		t.Fatalf("expected average score 90, got %.2f", overview.AverageScore)
	}
}
