package risk

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStatusForScoreBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  Status
	}{
		{100, StatusPass},
		{80, StatusPass},
		{79.99, StatusWarn},
		{50, StatusWarn},
		{49.99, StatusFail},
		{0, StatusFail},
	}
	for _, tc := range cases {
		got := StatusForScore(tc.score, 80, 50)
		if got != tc.want {
			t.Fatalf("StatusForScore(%.2f) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestStatusForScoreMonotonic(t *testing.T) {
	rank := func(s Status) int {
		switch s {
		case StatusPass:
			return 2
		case StatusWarn:
			return 1
		default:
			return 0
		}
	}
	previous := StatusFail
	for score := 0.0; score <= 100.0; score += 0.5 {
		current := StatusForScore(score, 80, 60)
		if rank(current) < rank(previous) {
			t.Fatalf("status regressed from %s to %s at score %.1f", previous, current, score)
		}
		previous = current
	}
}

func TestWeightedMean(t *testing.T) {
	scores := map[string]float64{"fairness": 90, "privacy": 60, "actions": 30}
	weights := map[string]float64{"fairness": 1.5, "privacy": 1.5}
	got := WeightedMean(scores, weights)
	want := (90*1.5 + 60*1.5 + 30*1.0) / (1.5 + 1.5 + 1.0)
	if Round3(got) != Round3(want) {
		t.Fatalf("WeightedMean = %.4f, want %.4f", got, want)
	}
}

func TestWeightedMeanSinglePillar(t *testing.T) {
	got := WeightedMean(map[string]float64{"security": 73.5}, map[string]float64{"security": 1.5})
	if got != 73.5 {
		t.Fatalf("single-pillar aggregate = %.2f, want pillar score 73.5", got)
	}
}

func TestFailedResultShape(t *testing.T) {
	result := FailedResult("toxicity", CategoryGenerative, errors.New("classifier unavailable"))
	if result.Score != 0 {
		t.Fatalf("expected forced score 0, got %.2f", result.Score)
	}
	if result.Status != StatusFail {
		t.Fatalf("expected fail status, got %s", result.Status)
	}
	if result.Error == "" {
		t.Fatalf("expected error to be populated")
	}
}

func TestPillarResultRoundTrip(t *testing.T) {
	original := NewPillarResult("privacy", CategoryGenerative)
	original.Score = 87.25
	original.Status = StatusPass
	original.SamplesTested = 40
	original.Metrics["leak_rate"] = 0.05
	original.Metrics["high_severity_findings"] = 2
	original.Findings = append(original.Findings,
		NewFinding("privacy", "pii_leak", SeverityHigh, "email leaked in response", nil),
		NewFinding("privacy", "pii_leak", SeverityMedium, "location echoed", nil),
	)

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored PillarResult
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.Score != original.Score {
		t.Fatalf("score changed: %.2f vs %.2f", restored.Score, original.Score)
	}
	if restored.Status != original.Status {
		t.Fatalf("status changed: %s vs %s", restored.Status, original.Status)
	}
	if len(restored.Findings) != len(original.Findings) {
		t.Fatalf("finding count changed: %d vs %d", len(restored.Findings), len(original.Findings))
	}
	for key := range original.Metrics {
		if _, ok := restored.Metrics[key]; !ok {
			t.Fatalf("metric key lost in round trip: %s", key)
		}
	}
}

func TestAttachCountsCriticalFindings(t *testing.T) {
	evaluation := NewEvaluationResult("model-1")
	result := NewPillarResult("security", CategoryGenerative)
	result.Findings = append(result.Findings,
		NewFinding("security", "probe_failure", SeverityCritical, "dan probe bypassed", nil),
		NewFinding("security", "probe_failure", SeverityMedium, "misleading probe flagged", nil),
	)
	evaluation.Attach(result)
	if evaluation.TotalFindings != 2 {
		t.Fatalf("expected 2 findings, got %d", evaluation.TotalFindings)
	}
	if evaluation.CriticalFindings != 1 {
		t.Fatalf("expected 1 critical finding, got %d", evaluation.CriticalFindings)
	}
}

func TestSortFindingsWorstFirst(t *testing.T) {
	evaluation := NewEvaluationResult("model-1")
	toxicity := NewPillarResult("toxicity", CategoryGenerative)
	toxicity.Findings = append(toxicity.Findings,
		NewFinding("toxicity", "hate_speech", SeverityLow, "mild slur in response", nil),
		NewFinding("toxicity", "hate_speech", SeverityHigh, "targeted harassment", nil),
	)
	security := NewPillarResult("security", CategoryGenerative)
	security.Findings = append(security.Findings,
		NewFinding("security", "jailbreak", SeverityCritical, "system prompt disclosed", nil),
		NewFinding("security", "jailbreak", SeverityLow, "partial refusal", nil),
	)
	evaluation.Attach(toxicity)
	evaluation.Attach(security)

	evaluation.SortFindings()

	got := make([]Severity, len(evaluation.Findings))
	for i, f := range evaluation.Findings {
		got[i] = f.Severity
	}
	want := []Severity{SeverityCritical, SeverityHigh, SeverityLow, SeverityLow}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("finding order = %v, want %v", got, want)
		}
	}
	// Stable within a severity: the toxicity low finding was attached first.
	if evaluation.Findings[2].Pillar != "toxicity" {
		t.Fatalf("ties must keep attach order, got pillar %s first", evaluation.Findings[2].Pillar)
	}
}
