package risk

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// SeverityRank orders severities for sorting and threshold checks. Higher is worse.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

type Category string

const (
	CategoryGenerative Category = "generative"
	CategoryPredictive Category = "predictive"
)

type Finding struct {
	ID        string         `json:"id"`
	Pillar    string         `json:"pillar"`
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt string         `json:"created_at"`
}

func NewFinding(pillar, findingType string, severity Severity, message string, detail map[string]any) Finding {
	return Finding{
		ID:        uuid.NewString(),
		Pillar:    pillar,
		Type:      findingType,
		Severity:  severity,
		Message:   message,
		Detail:    detail,
		CreatedAt: nowRFC3339(),
	}
}

type PillarResult struct {
	PillarName      string         `json:"pillar_name"`
	PillarCategory  Category       `json:"pillar_category"`
	Score           float64        `json:"score"`
	Status          Status         `json:"status"`
	Findings        []Finding      `json:"findings"`
	Metrics         map[string]any `json:"metrics,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
	Error           string         `json:"error,omitempty"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
	SamplesTested   int            `json:"samples_tested"`
	CreatedAt       string         `json:"created_at"`
}

// NewPillarResult seeds an empty, passing result for the pillar to fill in.
func NewPillarResult(name string, category Category) PillarResult {
	return PillarResult{
		PillarName:     name,
		PillarCategory: category,
		Status:         StatusPass,
		Findings:       []Finding{},
		Metrics:        map[string]any{},
		Details:        map[string]any{},
		CreatedAt:      nowRFC3339(),
	}
}

// FailedResult is the forced terminal shape for a pillar whose own logic
// failed: score 0, status fail, error populated. The evaluator aggregates it
// like any other result instead of aborting the run.
func FailedResult(name string, category Category, err error) PillarResult {
	result := NewPillarResult(name, category)
	result.Score = 0
	result.Status = StatusFail
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

type EvaluationResult struct {
	ID               string                  `json:"id"`
	ModelID          string                  `json:"model_id"`
	OverallScore     float64                 `json:"overall_score"`
	RiskStatus       Status                  `json:"risk_status"`
	PillarResults    map[string]PillarResult `json:"pillar_results"`
	Findings         []Finding               `json:"findings"`
	TotalFindings    int                     `json:"total_findings"`
	CriticalFindings int                     `json:"critical_findings"`
	Incomplete       bool                    `json:"incomplete,omitempty"`
	StartedAt        string                  `json:"started_at"`
	CompletedAt      string                  `json:"completed_at,omitempty"`
	ExecutionTimeMS  int64                   `json:"execution_time_ms"`
}

func NewEvaluationResult(modelID string) EvaluationResult {
	return EvaluationResult{
		ID:            uuid.NewString(),
		ModelID:       modelID,
		PillarResults: map[string]PillarResult{},
		Findings:      []Finding{},
		StartedAt:     nowRFC3339(),
	}
}

// Attach records a finished pillar result and folds its findings into the
// flattened evaluation-level list. Findings are attached only once the pillar
// has fully terminated.
func (e *EvaluationResult) Attach(result PillarResult) {
	e.PillarResults[result.PillarName] = result
	for _, finding := range result.Findings {
		e.Findings = append(e.Findings, finding)
		e.TotalFindings++
		if finding.Severity == SeverityCritical {
			e.CriticalFindings++
		}
	}
}

// SortFindings orders the flattened findings worst first, keeping the
// pillar discovery order within each severity.
func (e *EvaluationResult) SortFindings() {
	sort.SliceStable(e.Findings, func(i, j int) bool {
		return SeverityRank(e.Findings[i].Severity) > SeverityRank(e.Findings[j].Severity)
	})
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
