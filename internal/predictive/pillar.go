package predictive

import (
	"context"

	"riskeval/internal/risk"
)

// Pillar is one independently scored risk dimension for a predictive model.
// Evaluate never propagates errors outward; failures become a failed
// PillarResult.
type Pillar interface {
	Name() string
	Category() risk.Category
	Evaluate(ctx context.Context, model Model, data Dataset, sensitive map[string][]int) risk.PillarResult
}

type Config struct {
	EnabledPillars []string `json:"enabled_pillars" yaml:"enabled_pillars"`
	MaxSamples     int      `json:"max_samples" yaml:"max_samples"`
	TimeoutSec     int      `json:"timeout_sec" yaml:"timeout_sec"`
	Seed           int64    `json:"seed" yaml:"seed"`

	ImmutableFeatures []string `json:"immutable_features" yaml:"immutable_features"`

	// Fairness violation thresholds.
	DisparateImpactThreshold   float64 `json:"disparate_impact_threshold" yaml:"disparate_impact_threshold"`
	DemographicParityThreshold float64 `json:"demographic_parity_threshold" yaml:"demographic_parity_threshold"`
	EqualizedOddsThreshold     float64 `json:"equalized_odds_threshold" yaml:"equalized_odds_threshold"`

	// Counterfactual-search knobs. The 40/40/20 scoring split is empirical
	// and carried as configuration.
	ActionsCoverageWeight     float64 `json:"actions_coverage_weight" yaml:"actions_coverage_weight"`
	ActionsPlausibilityWeight float64 `json:"actions_plausibility_weight" yaml:"actions_plausibility_weight"`
	ActionsSparsityWeight     float64 `json:"actions_sparsity_weight" yaml:"actions_sparsity_weight"`
	ActionsMaxIterations      int     `json:"actions_max_iterations" yaml:"actions_max_iterations"`
	ActionsStepFraction       float64 `json:"actions_step_fraction" yaml:"actions_step_fraction"`

	// Extraction-simulation knobs. The 50/30/10/10 split is empirical and
	// carried as configuration.
	ImitationQueryBudget         int     `json:"imitation_query_budget" yaml:"imitation_query_budget"`
	ImitationExtractionThreshold float64 `json:"imitation_extraction_threshold" yaml:"imitation_extraction_threshold"`
	ImitationFidelityPenalty     float64 `json:"imitation_fidelity_penalty" yaml:"imitation_fidelity_penalty"`
	ImitationLeakagePenalty      float64 `json:"imitation_leakage_penalty" yaml:"imitation_leakage_penalty"`
	ImitationWatermarkBonus      float64 `json:"imitation_watermark_bonus" yaml:"imitation_watermark_bonus"`
	ImitationBudgetBonus         float64 `json:"imitation_budget_bonus" yaml:"imitation_budget_bonus"`
	ImitationComplexBudget       int     `json:"imitation_complex_budget" yaml:"imitation_complex_budget"`

	RobustnessNoiseScales []float64 `json:"robustness_noise_scales" yaml:"robustness_noise_scales"`

	PillarWeights map[string]float64 `json:"pillar_weights" yaml:"pillar_weights"`
	PassThreshold float64            `json:"pass_threshold" yaml:"pass_threshold"`
	WarnThreshold float64            `json:"warn_threshold" yaml:"warn_threshold"`
}

func DefaultConfig() Config {
	return Config{
		EnabledPillars:               PillarOrder(),
		MaxSamples:                   100,
		TimeoutSec:                   600,
		Seed:                         1,
		DisparateImpactThreshold:     0.8,
		DemographicParityThreshold:   0.1,
		EqualizedOddsThreshold:       0.1,
		ActionsCoverageWeight:        40,
		ActionsPlausibilityWeight:    40,
		ActionsSparsityWeight:        20,
		ActionsMaxIterations:         100,
		ActionsStepFraction:          0.1,
		ImitationQueryBudget:         500,
		ImitationExtractionThreshold: 0.85,
		ImitationFidelityPenalty:     50,
		ImitationLeakagePenalty:      30,
		ImitationWatermarkBonus:      10,
		ImitationBudgetBonus:         10,
		ImitationComplexBudget:       500,
		RobustnessNoiseScales:        []float64{0.01, 0.05, 0.1},
		PillarWeights: map[string]float64{
			"fairness":   1.5,
			"privacy":    1.5,
			"robustness": 1.2,
		},
		PassThreshold: 80,
		WarnThreshold: 60,
	}
}

func normalizeConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	defaults := DefaultConfig()
	if len(cfg.EnabledPillars) == 0 {
		cfg.EnabledPillars = defaults.EnabledPillars
	}
	if cfg.MaxSamples <= 0 || cfg.MaxSamples > defaults.MaxSamples {
		cfg.MaxSamples = defaults.MaxSamples
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = defaults.TimeoutSec
	}
	if cfg.Seed == 0 {
		cfg.Seed = defaults.Seed
	}
	if cfg.DisparateImpactThreshold <= 0 || cfg.DisparateImpactThreshold > 1 {
		cfg.DisparateImpactThreshold = defaults.DisparateImpactThreshold
	}
	if cfg.DemographicParityThreshold <= 0 || cfg.DemographicParityThreshold > 1 {
		cfg.DemographicParityThreshold = defaults.DemographicParityThreshold
	}
	if cfg.EqualizedOddsThreshold <= 0 || cfg.EqualizedOddsThreshold > 1 {
		cfg.EqualizedOddsThreshold = defaults.EqualizedOddsThreshold
	}
	if cfg.ActionsCoverageWeight <= 0 {
		cfg.ActionsCoverageWeight = defaults.ActionsCoverageWeight
	}
	if cfg.ActionsPlausibilityWeight <= 0 {
		cfg.ActionsPlausibilityWeight = defaults.ActionsPlausibilityWeight
	}
	if cfg.ActionsSparsityWeight <= 0 {
		cfg.ActionsSparsityWeight = defaults.ActionsSparsityWeight
	}
	if cfg.ActionsMaxIterations <= 0 {
		cfg.ActionsMaxIterations = defaults.ActionsMaxIterations
	}
	if cfg.ActionsStepFraction <= 0 || cfg.ActionsStepFraction > 1 {
		cfg.ActionsStepFraction = defaults.ActionsStepFraction
	}
	if cfg.ImitationQueryBudget <= 0 {
		cfg.ImitationQueryBudget = defaults.ImitationQueryBudget
	}
	if cfg.ImitationExtractionThreshold <= 0 || cfg.ImitationExtractionThreshold > 1 {
		cfg.ImitationExtractionThreshold = defaults.ImitationExtractionThreshold
	}
	if cfg.ImitationFidelityPenalty <= 0 {
		cfg.ImitationFidelityPenalty = defaults.ImitationFidelityPenalty
	}
	if cfg.ImitationLeakagePenalty <= 0 {
		cfg.ImitationLeakagePenalty = defaults.ImitationLeakagePenalty
	}
	if cfg.ImitationWatermarkBonus < 0 {
		cfg.ImitationWatermarkBonus = defaults.ImitationWatermarkBonus
	}
	if cfg.ImitationBudgetBonus < 0 {
		cfg.ImitationBudgetBonus = defaults.ImitationBudgetBonus
	}
	if cfg.ImitationComplexBudget <= 0 {
		cfg.ImitationComplexBudget = defaults.ImitationComplexBudget
	}
	if len(cfg.RobustnessNoiseScales) == 0 {
		cfg.RobustnessNoiseScales = defaults.RobustnessNoiseScales
	}
	if cfg.PillarWeights == nil {
		cfg.PillarWeights = defaults.PillarWeights
	}
	if cfg.PassThreshold <= 0 || cfg.PassThreshold > 100 {
		cfg.PassThreshold = defaults.PassThreshold
	}
	if cfg.WarnThreshold <= 0 || cfg.WarnThreshold > 100 {
		cfg.WarnThreshold = defaults.WarnThreshold
	}
	if cfg.WarnThreshold > cfg.PassThreshold {
		cfg.WarnThreshold = cfg.PassThreshold
	}
}

// PillarConstructors is the explicit name-to-constructor map for the eight
// predictive pillars.
func PillarConstructors() map[string]func(Config) Pillar {
	return map[string]func(Config) Pillar{
		"explain":    func(cfg Config) Pillar { return NewExplainPillar(cfg) },
		"actions":    func(cfg Config) Pillar { return NewActionsPillar(cfg) },
		"fairness":   func(cfg Config) Pillar { return NewFairnessPillar(cfg) },
		"robustness": func(cfg Config) Pillar { return NewRobustnessPillar(cfg) },
		"trace":      func(cfg Config) Pillar { return NewTracePillar(cfg) },
		"testing":    func(cfg Config) Pillar { return NewTestingPillar(cfg) },
		"imitation":  func(cfg Config) Pillar { return NewImitationPillar(cfg) },
		"privacy":    func(cfg Config) Pillar { return NewPrivacyPillar(cfg) },
	}
}

func PillarOrder() []string {
	return []string{"explain", "actions", "fairness", "robustness", "trace", "testing", "imitation", "privacy"}
}

// IndependentPillars never re-query the model in ways that conflict, so the
// evaluator launches them concurrently.
func IndependentPillars() []string {
	return []string{"explain", "trace", "testing", "imitation"}
}

// DependentPillars perform repeated model queries whose cost and ordering
// should not overlap; they run strictly sequentially.
func DependentPillars() []string {
	return []string{"fairness", "robustness", "actions", "privacy"}
}
