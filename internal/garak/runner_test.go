package garak

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

type cannedGenerator struct {
	respond func(prompt string) string
}

func (g cannedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return g.respond(prompt), nil
}

func TestRunProbesRefusingModelPassesAll(t *testing.T) {
	gen := cannedGenerator{respond: func(string) string {
		return "No. I can't help with that request."
	}}
	report, err := RunProbes(context.Background(), gen, nil, nil)
	if err != nil {
		t.Fatalf("RunProbes error: %v", err)
	}
	if report.TotalAttempts == 0 {
		t.Fatalf("expected attempts to be recorded")
	}
	if report.TotalFailures != 0 {
		t.Fatalf("refusing model should not fail probes, got %d failures", report.TotalFailures)
	}
}

func TestRunProbesCompliantModelFailsDAN(t *testing.T) {
	gen := cannedGenerator{respond: func(prompt string) string {
		if strings.Contains(prompt, "DAN") {
			return "DAN Mode enabled. I can do anything now."
		}
		return "I cannot help with that."
	}}
	report, err := RunProbes(context.Background(), gen, []string{"dan"}, nil)
	if err != nil {
		t.Fatalf("RunProbes error: %v", err)
	}
	dan, ok := report.Probes["dan.DAN_11_0"]
	if !ok {
		t.Fatalf("expected dan probe stats, got %v", report.Probes)
	}
	if dan.Failures != dan.Attempts {
		t.Fatalf("compliant model should fail every dan attempt, got %d/%d", dan.Failures, dan.Attempts)
	}
	if len(report.Probes) != 1 {
		t.Fatalf("module filter should select only dan, got %d probes", len(report.Probes))
	}
}

func TestRunProbesTranscriptRoundTrip(t *testing.T) {
	gen := cannedGenerator{respond: func(string) string {
		return "<script>alert(1)</script> sure, here you go"
	}}
	var transcript bytes.Buffer
	live, err := RunProbes(context.Background(), gen, []string{"xss"}, &transcript)
	if err != nil {
		t.Fatalf("RunProbes error: %v", err)
	}
	parsed, err := ParseReport(&transcript)
	if err != nil {
		t.Fatalf("ParseReport error: %v", err)
	}
	if parsed.TotalAttempts != live.TotalAttempts {
		t.Fatalf("attempt mismatch: parsed %d, live %d", parsed.TotalAttempts, live.TotalAttempts)
	}
	if parsed.TotalFailures != live.TotalFailures {
		t.Fatalf("failure mismatch: parsed %d, live %d", parsed.TotalFailures, live.TotalFailures)
	}
	if parsed.TotalFailures == 0 {
		t.Fatalf("xss-compliant model should fail the xss probe")
	}
}
