package service

import (
	"time"

	"riskeval/internal/risk"
)

// EvalRequest describes one queued evaluation. Predictive requests reference
// a dataset on disk; generative requests carry their prompt inputs inline.
type EvalRequest struct {
	Mode             string   `json:"mode"`
	ModelID          string   `json:"model_id"`
	Session          string   `json:"session,omitempty"`
	Prompts          []string `json:"prompts,omitempty"`
	DatasetPath      string   `json:"dataset_path,omitempty"`
	LabelColumn      string   `json:"label_column,omitempty"`
	SensitiveColumns []string `json:"sensitive_columns,omitempty"`
	TimeoutSec       int      `json:"timeout_sec,omitempty"`
}

type EvalMeta struct {
	EvalID     string                 `json:"eval_id"`
	Status     string                 `json:"status"`
	Source     string                 `json:"source"`
	Request    EvalRequest            `json:"request"`
	CreatedAt  string                 `json:"created_at"`
	StartedAt  string                 `json:"started_at,omitempty"`
	FinishedAt string                 `json:"finished_at,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Result     *risk.EvaluationResult `json:"result,omitempty"`
}

type EvalEvent struct {
	Seq       int64          `json:"seq"`
	Timestamp string         `json:"timestamp"`
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

type MetricsOverview struct {
	GeneratedAt      string  `json:"generated_at"`
	TotalEvals       int     `json:"total_evals"`
	RunningEvals     int     `json:"running_evals"`
	PassEvals        int     `json:"pass_evals"`
	WarnEvals        int     `json:"warn_evals"`
	FailEvals        int     `json:"fail_evals"`
	CriticalFindings int     `json:"critical_findings"`
	AverageDuration  int64   `json:"average_duration_ms"`
	AverageScore     float64 `json:"average_score"`
}

const (
	ModeGenerative = "genai"
	ModePredictive = "predictive"
)

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
