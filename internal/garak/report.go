// Package garak normalizes adversarial-probe transcripts, either parsed from
// garak JSON-Lines reports or produced by the built-in probe runner, into the
// per-probe tallies the security pillar reduces.
package garak

import (
	"encoding/json"
	"sort"
	"strings"

	"riskeval/internal/risk"
)

const (
	EntryInit       = "init"
	EntryProbeStart = "probe_start"
	EntryAttempt    = "attempt"
	EntryEval       = "eval"
)

// Record is one JSONL transcript line. Only attempt records carry scoring
// payload; init/probe_start/eval records are bookkeeping.
type Record struct {
	EntryType       string           `json:"entry_type"`
	Probe           string           `json:"probe,omitempty"`
	Detector        string           `json:"detector,omitempty"`
	Prompt          string           `json:"prompt,omitempty"`
	Response        string           `json:"response,omitempty"`
	Passed          *bool            `json:"passed,omitempty"`
	DetectorResults *DetectorResults `json:"detector_results,omitempty"`
	GarakVersion    string           `json:"garak_version,omitempty"`
	StartTime       string           `json:"start_time,omitempty"`
	Total           int              `json:"total,omitempty"`
}

type DetectorResults struct {
	Failed int `json:"failed"`
	Passed int `json:"passed"`
}

// Failed reports whether the attempt record represents a successful attack.
// Either the explicit passed flag or detector_results.failed may carry the
// verdict.
func (r Record) Failed() bool {
	if r.Passed != nil {
		return !*r.Passed
	}
	if r.DetectorResults != nil {
		return r.DetectorResults.Failed > 0
	}
	return false
}

type ProbeStats struct {
	Probe          string   `json:"probe"`
	Attempts       int      `json:"attempts"`
	Failures       int      `json:"failures"`
	Detectors      []string `json:"detectors,omitempty"`
	SamplePrompts  []string `json:"sample_prompts,omitempty"`
	SampleFailures []string `json:"sample_failures,omitempty"`
}

type Report struct {
	Version        string                 `json:"version,omitempty"`
	Probes         map[string]*ProbeStats `json:"probes"`
	TotalAttempts  int                    `json:"total_attempts"`
	TotalFailures  int                    `json:"total_failures"`
	MalformedLines int                    `json:"malformed_lines"`
	EntryCounts    map[string]int         `json:"entry_counts"`
}

func NewReport() *Report {
	return &Report{
		Probes:      map[string]*ProbeStats{},
		EntryCounts: map[string]int{},
	}
}

const sampleKeepPerProbe = 3

// Tally folds one record into the report.
func (rep *Report) Tally(record Record) {
	entryType := strings.ToLower(strings.TrimSpace(record.EntryType))
	rep.EntryCounts[entryType]++
	switch entryType {
	case EntryInit:
		if record.GarakVersion != "" {
			rep.Version = record.GarakVersion
		}
	case EntryAttempt:
		probe := strings.TrimSpace(record.Probe)
		if probe == "" {
			rep.MalformedLines++
			return
		}
		stats, ok := rep.Probes[probe]
		if !ok {
			stats = &ProbeStats{Probe: probe}
			rep.Probes[probe] = stats
		}
		stats.Attempts++
		rep.TotalAttempts++
		if record.Detector != "" && !containsString(stats.Detectors, record.Detector) {
			stats.Detectors = append(stats.Detectors, record.Detector)
		}
		if len(stats.SamplePrompts) < sampleKeepPerProbe && record.Prompt != "" {
			stats.SamplePrompts = append(stats.SamplePrompts, truncate(record.Prompt, 120))
		}
		if record.Failed() {
			stats.Failures++
			rep.TotalFailures++
			if len(stats.SampleFailures) < sampleKeepPerProbe && record.Response != "" {
				stats.SampleFailures = append(stats.SampleFailures, truncate(record.Response, 160))
			}
		}
	}
}

// FailureRate is total failures over total attempts across all probes run.
func (rep *Report) FailureRate() float64 {
	if rep.TotalAttempts == 0 {
		return 0
	}
	return float64(rep.TotalFailures) / float64(rep.TotalAttempts)
}

// SortedProbes returns probe stats in deterministic name order.
func (rep *Report) SortedProbes() []*ProbeStats {
	names := make([]string, 0, len(rep.Probes))
	for name := range rep.Probes {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*ProbeStats, 0, len(names))
	for _, name := range names {
		out = append(out, rep.Probes[name])
	}
	return out
}

// ProbeModule extracts the module part from a garak probe name such as
// "dan.DAN_11_0".
func ProbeModule(probe string) string {
	probe = strings.ToLower(strings.TrimSpace(probe))
	if idx := strings.Index(probe, "."); idx > 0 {
		return probe[:idx]
	}
	return probe
}

// SeverityForProbe maps a probe module onto finding severity.
func SeverityForProbe(probe string) risk.Severity {
	switch ProbeModule(probe) {
	case "dan", "promptinject", "xss":
		return risk.SeverityCritical
	case "encoding", "continuation", "leakreplay":
		return risk.SeverityHigh
	default:
		return risk.SeverityMedium
	}
}

func (r Record) MarshalLine() ([]byte, error) {
	return json.Marshal(r)
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
