package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"riskeval/internal/connector/openai"
	"riskeval/internal/genai"
	"riskeval/internal/predictive"
	"riskeval/internal/risk"
	"riskeval/internal/service"
)

func main() {
	mode := flag.String("mode", "genai", "Evaluation mode: genai|predictive")
	configPath := flag.String("config", "", "Optional service config file (yaml or json) for pillar tuning")
	modelID := flag.String("model-id", "", "Identifier recorded on the evaluation")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall evaluation timeout")
	format := flag.String("format", "text", "Output format: text|json")
	outputPath := flag.String("out", "", "Write full evaluation JSON to this file")
	strict := flag.Bool("strict", false, "Exit non-zero unless the overall status is pass")

	apiKey := flag.String("api-key", envOr("OPENAI_API_KEY", ""), "API key for the generative endpoint")
	baseURL := flag.String("base-url", envOr("OPENAI_BASE_URL", ""), "OpenAI-compatible base URL")
	targetModel := flag.String("model", envOr("OPENAI_MODEL", ""), "Generative model to evaluate")
	session := flag.String("session", "", "Session identifier sent with every prompt (defaults to model-id)")
	promptsPath := flag.String("prompts", "", "File with one extra probe prompt per line")
	garakReport := flag.String("garak-report", "", "Parse this garak JSONL report instead of probing live")

	datasetPath := flag.String("dataset", "", "CSV dataset for predictive mode (header row required)")
	labelColumn := flag.String("label", "label", "Name of the binary label column")
	predictionColumn := flag.String("predictions", "", "Optional recorded-predictions column; skips the reference model")
	sensitiveSpec := flag.String("sensitive", "", "Comma-separated sensitive column names")
	flag.Parse()

	cfg := service.DefaultServiceConfig()
	if strings.TrimSpace(*configPath) != "" {
		loaded, err := service.LoadServiceConfig(*configPath)
		if err != nil {
			exitWith("failed to load config: " + err.Error())
		}
		cfg = loaded
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var evaluation risk.EvaluationResult
	switch strings.ToLower(strings.TrimSpace(*mode)) {
	case service.ModeGenerative:
		evaluation = runGenerative(ctx, cfg, generativeOptions{
			apiKey:      *apiKey,
			baseURL:     *baseURL,
			model:       *targetModel,
			session:     *session,
			modelID:     *modelID,
			promptsPath: *promptsPath,
			garakReport: *garakReport,
		})
	case service.ModePredictive:
		evaluation = runPredictive(ctx, cfg, predictiveOptions{
			datasetPath: *datasetPath,
			label:       *labelColumn,
			predictions: *predictionColumn,
			sensitive:   splitList(*sensitiveSpec),
			modelID:     *modelID,
		})
	default:
		exitWith("unknown mode: " + *mode)
	}

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "json":
		printJSON(evaluation)
	default:
		printText(evaluation)
	}

	if strings.TrimSpace(*outputPath) != "" {
		if err := writeJSON(*outputPath, evaluation); err != nil {
			exitWith("failed to write evaluation: " + err.Error())
		}
	}

	if *strict && evaluation.RiskStatus != risk.StatusPass {
		os.Exit(1)
	}
}

type generativeOptions struct {
	apiKey      string
	baseURL     string
	model       string
	session     string
	modelID     string
	promptsPath string
	garakReport string
}

func runGenerative(ctx context.Context, cfg service.ServiceConfig, opts generativeOptions) risk.EvaluationResult {
	if strings.TrimSpace(opts.apiKey) == "" {
		exitWith("OPENAI_API_KEY or -api-key is required for genai mode")
	}
	if strings.TrimSpace(opts.model) == "" {
		exitWith("OPENAI_MODEL or -model is required for genai mode")
	}

	conn, err := openai.New(openai.Config{
		APIKey:  opts.apiKey,
		BaseURL: opts.baseURL,
		Model:   opts.model,
	})
	if err != nil {
		exitWith("failed to build connector: " + err.Error())
	}

	genaiCfg := cfg.GenAI
	if strings.TrimSpace(opts.garakReport) != "" {
		genaiCfg.SecurityReportPath = opts.garakReport
	}
	evaluator, err := genai.NewEvaluator(genaiCfg)
	if err != nil {
		exitWith("failed to build evaluator: " + err.Error())
	}

	var prompts []string
	if strings.TrimSpace(opts.promptsPath) != "" {
		prompts, err = readPrompts(opts.promptsPath)
		if err != nil {
			exitWith("failed to read prompts: " + err.Error())
		}
	}

	session := opts.session
	if strings.TrimSpace(session) == "" {
		session = firstNonEmpty(opts.modelID, opts.model)
	}
	return evaluator.Evaluate(ctx, conn, session, prompts)
}

type predictiveOptions struct {
	datasetPath string
	label       string
	predictions string
	sensitive   []string
	modelID     string
}

func runPredictive(ctx context.Context, cfg service.ServiceConfig, opts predictiveOptions) risk.EvaluationResult {
	if strings.TrimSpace(opts.datasetPath) == "" {
		exitWith("-dataset is required for predictive mode")
	}

	modelID := firstNonEmpty(opts.modelID, filepath.Base(opts.datasetPath))
	var model predictive.Model
	var data predictive.Dataset
	var sensitive map[string][]int
	var err error
	if strings.TrimSpace(opts.predictions) != "" {
		var recorded []int
		data, recorded, sensitive, err = predictive.LoadCSVWithPredictions(opts.datasetPath, opts.label, opts.predictions, opts.sensitive)
		if err != nil {
			exitWith("failed to load dataset: " + err.Error())
		}
		model, err = predictive.NewReplayModel(modelID, data, recorded)
		if err != nil {
			exitWith("failed to build replay model: " + err.Error())
		}
	} else {
		data, sensitive, err = predictive.LoadCSV(opts.datasetPath, opts.label, opts.sensitive)
		if err != nil {
			exitWith("failed to load dataset: " + err.Error())
		}
		model, err = predictive.TrainReferenceModel(modelID, data)
		if err != nil {
			exitWith("failed to train reference model: " + err.Error())
		}
	}

	evaluator, err := predictive.NewEvaluator(cfg.Predictive)
	if err != nil {
		exitWith("failed to build evaluator: " + err.Error())
	}
	evaluation, err := evaluator.Evaluate(ctx, modelID, model, data, sensitive)
	if err != nil {
		exitWith("evaluation failed: " + err.Error())
	}
	return evaluation
}

func printText(evaluation risk.EvaluationResult) {
	fmt.Printf("Evaluation: %s\n", evaluation.ID)
	fmt.Printf("Model: %s\n", evaluation.ModelID)
	fmt.Printf("Started: %s\n\n", evaluation.StartedAt)

	names := make([]string, 0, len(evaluation.PillarResults))
	for name := range evaluation.PillarResults {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		result := evaluation.PillarResults[name]
		fmt.Printf("[%s] %s - %.2f (%dms)\n", strings.ToUpper(string(result.Status)), name, result.Score, result.ExecutionTimeMS)
		if result.Error != "" {
			fmt.Printf("  error: %s\n", result.Error)
		}
		for _, finding := range result.Findings {
			fmt.Printf("  - [%s] %s\n", finding.Severity, finding.Message)
		}
		fmt.Println()
	}

	fmt.Printf("Overall: %.2f (%s)", evaluation.OverallScore, evaluation.RiskStatus)
	if evaluation.Incomplete {
		fmt.Printf(" [incomplete]")
	}
	fmt.Printf("\nFindings: %d total, %d critical\n", evaluation.TotalFindings, evaluation.CriticalFindings)
}

func printJSON(evaluation risk.EvaluationResult) {
	data, err := json.MarshalIndent(evaluation, "", "  ")
	if err != nil {
		exitWith("failed to encode evaluation JSON: " + err.Error())
	}
	fmt.Println(string(data))
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Clean(path), data, 0o644)
}

func readPrompts(path string) ([]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var prompts []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			prompts = append(prompts, line)
		}
	}
	return prompts, nil
}

func splitList(spec string) []string {
	var out []string
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func exitWith(message string) {
	fmt.Fprintln(os.Stderr, "error:", message)
	os.Exit(2)
}
