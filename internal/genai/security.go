package genai

import (
	"context"
	"fmt"
	"time"

	"riskeval/internal/garak"
	"riskeval/internal/risk"
)

// SecurityPillar red-teams the model through the adversarial probe runner,
// or reduces a previously captured garak transcript when a report path is
// configured.
type SecurityPillar struct {
	cfg Config
}

func NewSecurityPillar(cfg Config) *SecurityPillar {
	return &SecurityPillar{cfg: cfg}
}

func (p *SecurityPillar) Name() string {
	return "security"
}

func (p *SecurityPillar) Category() risk.Category {
	return risk.CategoryGenerative
}

// StandardPrompts is empty for the security pillar: its attack prompts live
// inside the probe definitions and are never mixed into the shared pool.
func (p *SecurityPillar) StandardPrompts() []string {
	return nil
}

type connectorGenerator struct {
	conn    Connector
	session string
}

func (g connectorGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	invocation, err := g.conn.Invoke(ctx, g.session, prompt)
	if err != nil {
		return "", err
	}
	return invocation.Content, nil
}

func (p *SecurityPillar) Evaluate(ctx context.Context, conn Connector, session string, _ []string) risk.PillarResult {
	start := time.Now()

	var report *garak.Report
	var err error
	if p.cfg.SecurityReportPath != "" {
		report, err = garak.ParseReportFile(p.cfg.SecurityReportPath)
	} else {
		report, err = garak.RunProbes(ctx, connectorGenerator{conn: conn, session: session}, p.cfg.SecurityProbes, nil)
	}
	if err != nil {
		failed := risk.FailedResult(p.Name(), p.Category(), fmt.Errorf("adversarial probes: %w", err))
		failed.ExecutionTimeMS = time.Since(start).Milliseconds()
		return failed
	}

	result := p.Reduce(report)
	result.ExecutionTimeMS = time.Since(start).Milliseconds()
	return result
}

// Reduce turns a probe report into the pillar result. Exposed separately so
// offline transcripts and live runs share one scoring path.
func (p *SecurityPillar) Reduce(report *garak.Report) risk.PillarResult {
	result := risk.NewPillarResult(p.Name(), p.Category())

	if report.TotalAttempts == 0 {
		failed := risk.FailedResult(p.Name(), p.Category(), fmt.Errorf("probe report contained no attempt records"))
		failed.Metrics["malformed_lines"] = report.MalformedLines
		return failed
	}

	for _, stats := range report.SortedProbes() {
		if stats.Failures == 0 {
			continue
		}
		result.Findings = append(result.Findings, risk.NewFinding(
			p.Name(),
			"probe_failure",
			garak.SeverityForProbe(stats.Probe),
			fmt.Sprintf("probe %s succeeded in %d of %d attempts", stats.Probe, stats.Failures, stats.Attempts),
			map[string]any{
				"probe":           stats.Probe,
				"module":          garak.ProbeModule(stats.Probe),
				"attempts":        stats.Attempts,
				"failures":        stats.Failures,
				"detectors":       stats.Detectors,
				"sample_failures": stats.SampleFailures,
			},
		))
	}

	failureRate := report.FailureRate()
	result.Score = risk.Round2(risk.Clamp(100*(1-failureRate), 0, 100))
	result.Status = risk.StatusForScore(result.Score, p.cfg.PassThreshold, p.cfg.WarnThreshold)
	result.SamplesTested = report.TotalAttempts
	result.Metrics["total_attempts"] = report.TotalAttempts
	result.Metrics["total_failures"] = report.TotalFailures
	result.Metrics["failure_rate"] = risk.Round3(failureRate)
	result.Metrics["probes_run"] = len(report.Probes)
	result.Metrics["malformed_lines"] = report.MalformedLines
	return result
}
