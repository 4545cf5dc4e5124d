package predictive

import (
	"context"
	"fmt"
	"sort"
	"time"

	"riskeval/internal/risk"
)

// FairnessPillar computes group-fairness metrics per named sensitive
// attribute and flags violations against the configured thresholds.
type FairnessPillar struct {
	cfg Config
}

func NewFairnessPillar(cfg Config) *FairnessPillar {
	return &FairnessPillar{cfg: cfg}
}

func (p *FairnessPillar) Name() string {
	return "fairness"
}

func (p *FairnessPillar) Category() risk.Category {
	return risk.CategoryPredictive
}

type groupRates struct {
	Group             int     `json:"group"`
	Count             int     `json:"count"`
	PositiveRate      float64 `json:"positive_rate"`
	TruePositiveRate  float64 `json:"true_positive_rate"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

type attributeMetrics struct {
	DemographicParity float64 `json:"demographic_parity"`
	DisparateImpact   float64 `json:"disparate_impact"`
	EqualizedOdds     float64 `json:"equalized_odds"`
	EqualOpportunity  float64 `json:"equal_opportunity"`
}

func (p *FairnessPillar) Evaluate(ctx context.Context, model Model, data Dataset, sensitive map[string][]int) risk.PillarResult {
	start := time.Now()
	result := risk.NewPillarResult(p.Name(), p.Category())

	if err := data.Validate(); err != nil {
		failed := risk.FailedResult(p.Name(), p.Category(), err)
		failed.ExecutionTimeMS = time.Since(start).Milliseconds()
		return failed
	}

	// Without sensitive attributes there is nothing to compare; the pillar
	// reports a neutral score instead of guessing group structure.
	if len(sensitive) == 0 {
		result.Score = 50
		result.Status = risk.StatusForScore(result.Score, p.cfg.PassThreshold, p.cfg.WarnThreshold)
		result.ExecutionTimeMS = time.Since(start).Milliseconds()
		result.Details["note"] = "no sensitive attributes supplied"
		return result
	}

	predictions, err := model.Predict(data.X)
	if err != nil {
		failed := risk.FailedResult(p.Name(), p.Category(), fmt.Errorf("predictions: %w", err))
		failed.ExecutionTimeMS = time.Since(start).Milliseconds()
		return failed
	}

	attributeScores := make([]float64, 0, len(sensitive))
	perAttribute := map[string]any{}

	names := make([]string, 0, len(sensitive))
	for name := range sensitive {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		groups := sensitive[name]
		if len(groups) != len(data.X) {
			failed := risk.FailedResult(p.Name(), p.Category(),
				fmt.Errorf("sensitive attribute %s has %d values for %d rows", name, len(groups), len(data.X)))
			failed.ExecutionTimeMS = time.Since(start).Milliseconds()
			return failed
		}

		rates := computeGroupRates(predictions, data.Y, groups)
		metrics := deriveAttributeMetrics(rates)
		p.flagViolations(&result, name, metrics)

		attributeScore := (metrics.DemographicParity + metrics.DisparateImpact +
			metrics.EqualizedOdds + metrics.EqualOpportunity) / 4 * 100
		attributeScores = append(attributeScores, attributeScore)
		perAttribute[name] = map[string]any{
			"groups":             rates,
			"demographic_parity": risk.Round3(metrics.DemographicParity),
			"disparate_impact":   risk.Round3(metrics.DisparateImpact),
			"equalized_odds":     risk.Round3(metrics.EqualizedOdds),
			"equal_opportunity":  risk.Round3(metrics.EqualOpportunity),
			"score":              risk.Round2(attributeScore),
		}
	}

	result.Score = risk.Round2(risk.Clamp(mean(attributeScores), 0, 100))
	result.Status = risk.StatusForScore(result.Score, p.cfg.PassThreshold, p.cfg.WarnThreshold)
	result.SamplesTested = len(data.X)
	result.ExecutionTimeMS = time.Since(start).Milliseconds()
	result.Metrics["attributes_tested"] = len(names)
	result.Metrics["per_attribute"] = perAttribute
	return result
}

func computeGroupRates(predictions, truth, groups []int) []groupRates {
	type tally struct {
		count, positives    int
		truePos, actualPos  int
		falsePos, actualNeg int
	}
	byGroup := map[int]*tally{}
	for i, group := range groups {
		item, ok := byGroup[group]
		if !ok {
			item = &tally{}
			byGroup[group] = item
		}
		item.count++
		if predictions[i] == 1 {
			item.positives++
		}
		if len(truth) == len(groups) {
			if truth[i] == 1 {
				item.actualPos++
				if predictions[i] == 1 {
					item.truePos++
				}
			} else {
				item.actualNeg++
				if predictions[i] == 1 {
					item.falsePos++
				}
			}
		}
	}

	ids := make([]int, 0, len(byGroup))
	for id := range byGroup {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]groupRates, 0, len(ids))
	for _, id := range ids {
		item := byGroup[id]
		rates := groupRates{Group: id, Count: item.count}
		if item.count > 0 {
			rates.PositiveRate = float64(item.positives) / float64(item.count)
		}
		if item.actualPos > 0 {
			rates.TruePositiveRate = float64(item.truePos) / float64(item.actualPos)
		}
		if item.actualNeg > 0 {
			rates.FalsePositiveRate = float64(item.falsePos) / float64(item.actualNeg)
		}
		out = append(out, rates)
	}
	return out
}

func deriveAttributeMetrics(rates []groupRates) attributeMetrics {
	if len(rates) == 0 {
		return attributeMetrics{DemographicParity: 1, DisparateImpact: 1, EqualizedOdds: 1, EqualOpportunity: 1}
	}
	minPos, maxPos := rates[0].PositiveRate, rates[0].PositiveRate
	minTPR, maxTPR := rates[0].TruePositiveRate, rates[0].TruePositiveRate
	minFPR, maxFPR := rates[0].FalsePositiveRate, rates[0].FalsePositiveRate
	for _, r := range rates[1:] {
		minPos = minFloat(minPos, r.PositiveRate)
		maxPos = maxFloat(maxPos, r.PositiveRate)
		minTPR = minFloat(minTPR, r.TruePositiveRate)
		maxTPR = maxFloat(maxTPR, r.TruePositiveRate)
		minFPR = minFloat(minFPR, r.FalsePositiveRate)
		maxFPR = maxFloat(maxFPR, r.FalsePositiveRate)
	}

	disparateImpact := 1.0
	if maxPos > 0 {
		disparateImpact = minPos / maxPos
	}
	deltaTPR := maxTPR - minTPR
	deltaFPR := maxFPR - minFPR
	return attributeMetrics{
		DemographicParity: 1 - (maxPos - minPos),
		DisparateImpact:   disparateImpact,
		EqualizedOdds:     1 - maxFloat(deltaTPR, deltaFPR),
		EqualOpportunity:  1 - deltaTPR,
	}
}

func (p *FairnessPillar) flagViolations(result *risk.PillarResult, attribute string, metrics attributeMetrics) {
	if metrics.DisparateImpact < p.cfg.DisparateImpactThreshold {
		result.Findings = append(result.Findings, risk.NewFinding(
			p.Name(),
			"disparate_impact_violation",
			risk.SeverityHigh,
			fmt.Sprintf("disparate impact %.3f below %.2f threshold for %s", metrics.DisparateImpact, p.cfg.DisparateImpactThreshold, attribute),
			map[string]any{"attribute": attribute, "disparate_impact": risk.Round3(metrics.DisparateImpact)},
		))
	}
	if parityDiff := 1 - metrics.DemographicParity; parityDiff > p.cfg.DemographicParityThreshold {
		result.Findings = append(result.Findings, risk.NewFinding(
			p.Name(),
			"demographic_parity_violation",
			risk.SeverityCritical,
			fmt.Sprintf("demographic parity difference %.3f exceeds %.2f threshold for %s", parityDiff, p.cfg.DemographicParityThreshold, attribute),
			map[string]any{"attribute": attribute, "parity_difference": risk.Round3(parityDiff)},
		))
	}
	if oddsDiff := 1 - metrics.EqualizedOdds; oddsDiff > p.cfg.EqualizedOddsThreshold {
		result.Findings = append(result.Findings, risk.NewFinding(
			p.Name(),
			"equalized_odds_violation",
			risk.SeverityHigh,
			fmt.Sprintf("equalized odds difference %.3f exceeds %.2f threshold for %s", oddsDiff, p.cfg.EqualizedOddsThreshold, attribute),
			map[string]any{"attribute": attribute, "odds_difference": risk.Round3(oddsDiff)},
		))
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
