package genai

import (
	"regexp"
	"strings"

	"riskeval/internal/risk"
)

type PIIEntity struct {
	Type  string `json:"type"`
	Match string `json:"match"`
}

// PIIDetector is the two-strategy entity-recognition capability used by the
// privacy pillar. The strategy is selected once at construction via
// Available; there is no per-call fallback inside the hot path.
type PIIDetector interface {
	Available() bool
	Detect(text string) []PIIEntity
}

type patternDetector struct {
	patterns map[string]*regexp.Regexp
	entities map[string]bool
}

var piiPatterns = map[string]string{
	"email":       `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
	"phone":       `(?:\+?\d{1,2}[\s.\-]?)?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}`,
	"ssn":         `\b\d{3}-\d{2}-\d{4}\b`,
	"credit_card": `\b(?:\d{4}[\s\-]?){3}\d{4}\b`,
	"ip_address":  `\b(?:\d{1,3}\.){3}\d{1,3}\b`,
}

// NewPatternDetector builds the regex fallback detector. entityFilter limits
// detection to the named entity types; empty means all supported types.
func NewPatternDetector(entityFilter []string) PIIDetector {
	detector := &patternDetector{
		patterns: make(map[string]*regexp.Regexp, len(piiPatterns)),
		entities: map[string]bool{},
	}
	for name, pattern := range piiPatterns {
		detector.patterns[name] = regexp.MustCompile(pattern)
	}
	for _, entity := range entityFilter {
		entity = strings.ToLower(strings.TrimSpace(entity))
		if entity != "" {
			detector.entities[entity] = true
		}
	}
	return detector
}

func (d *patternDetector) Available() bool {
	return true
}

func (d *patternDetector) Detect(text string) []PIIEntity {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var found []PIIEntity
	for name, pattern := range d.patterns {
		if len(d.entities) > 0 && !d.entities[name] {
			continue
		}
		for _, match := range pattern.FindAllString(text, -1) {
			found = append(found, PIIEntity{Type: name, Match: match})
		}
	}
	return found
}

// severityForEntity maps a detected entity type onto finding severity.
func severityForEntity(entityType string) risk.Severity {
	switch strings.ToLower(strings.TrimSpace(entityType)) {
	case "ssn", "credit_card", "bank_number":
		return risk.SeverityCritical
	case "email", "phone", "passport", "license":
		return risk.SeverityHigh
	case "person", "location", "ip_address":
		return risk.SeverityMedium
	default:
		return risk.SeverityLow
	}
}
