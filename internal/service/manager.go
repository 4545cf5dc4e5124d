package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"riskeval/internal/genai"
	"riskeval/internal/predictive"
	"riskeval/internal/risk"
)

// ConnectorFactory builds the generative connector for one request. The
// manager never talks to a provider SDK directly.
type ConnectorFactory func(request EvalRequest) (genai.Connector, error)

// ModelLoader resolves a predictive request into the model, dataset, and
// sensitive attribute groups the evaluator needs.
type ModelLoader func(request EvalRequest) (predictive.Model, predictive.Dataset, map[string][]int, error)

// EvalManager owns the evaluation queue: a bounded worker pool drains
// queued evaluations, and an optional poll loop picks up rows inserted by
// an external API layer.
type EvalManager struct {
	cfg       ServiceConfig
	store     Store
	obs       *Observability
	connect   ConnectorFactory
	loadModel ModelLoader

	queue chan string
	wg    sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewEvalManager(cfg ServiceConfig, store Store, obs *Observability, connect ConnectorFactory, loadModel ModelLoader) *EvalManager {
	maxParallel := cfg.Workers.MaxParallelEvals
	if maxParallel <= 0 {
		maxParallel = 2
	}
	manager := &EvalManager{
		cfg:       cfg,
		store:     store,
		obs:       obs,
		connect:   connect,
		loadModel: loadModel,
		queue:     make(chan string, maxParallel*8),
		inFlight:  map[string]bool{},
	}
	for i := 0; i < maxParallel; i++ {
		manager.wg.Add(1)
		go func() {
			defer manager.wg.Done()
			manager.worker()
		}()
	}
	return manager
}

func (m *EvalManager) Shutdown() {
	close(m.queue)
	m.wg.Wait()
}

// Submit validates and queues one evaluation.
func (m *EvalManager) Submit(request EvalRequest, source string) (EvalMeta, error) {
	switch request.Mode {
	case ModeGenerative:
		if m.connect == nil {
			return EvalMeta{}, errors.New("no connector factory configured")
		}
	case ModePredictive:
		if m.loadModel == nil {
			return EvalMeta{}, errors.New("no model loader configured")
		}
		if strings.TrimSpace(request.DatasetPath) == "" {
			return EvalMeta{}, errors.New("dataset_path is required for predictive evaluations")
		}
	default:
		return EvalMeta{}, fmt.Errorf("unknown evaluation mode: %s", request.Mode)
	}
	if strings.TrimSpace(request.ModelID) == "" {
		return EvalMeta{}, errors.New("model_id is required")
	}
	if request.TimeoutSec <= 0 {
		request.TimeoutSec = m.cfg.Workers.DefaultTimeoutSec
	}

	evalID, err := randomID("eval")
	if err != nil {
		return EvalMeta{}, err
	}
	meta := EvalMeta{
		EvalID:    evalID,
		Status:    "queued",
		Source:    source,
		Request:   request,
		CreatedAt: nowRFC3339(),
	}
	if err := m.store.CreateEvaluation(meta); err != nil {
		return EvalMeta{}, err
	}
	_, _ = m.store.AppendEvent(evalID, "queue", "evaluation queued", map[string]any{
		"mode":   request.Mode,
		"source": source,
	})
	m.enqueue(evalID)
	return meta, nil
}

// Poll drains externally-inserted queued evaluations until the context
// expires. Submit-created evaluations are enqueued directly; the poll loop
// exists for rows written to the store by the API layer.
func (m *EvalManager) Poll(ctx context.Context) {
	interval := time.Duration(m.cfg.Workers.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, meta := range m.store.ListQueued(cap(m.queue)) {
				m.enqueue(meta.EvalID)
			}
		}
	}
}

func (m *EvalManager) enqueue(evalID string) {
	m.mu.Lock()
	if m.inFlight[evalID] {
		m.mu.Unlock()
		return
	}
	m.inFlight[evalID] = true
	m.mu.Unlock()

	select {
	case m.queue <- evalID:
	default:
		// Queue is full; the poll loop retries on the next tick.
		m.mu.Lock()
		delete(m.inFlight, evalID)
		m.mu.Unlock()
	}
}

func (m *EvalManager) worker() {
	for evalID := range m.queue {
		m.executeEval(evalID)
		m.mu.Lock()
		delete(m.inFlight, evalID)
		m.mu.Unlock()
	}
}

func (m *EvalManager) executeEval(evalID string) {
	meta, ok := m.store.GetEvaluation(evalID)
	if !ok {
		slog.Error("queued evaluation vanished", "eval_id", evalID)
		return
	}
	request := meta.Request
	_, _ = m.store.UpdateEvaluation(evalID, func(item *EvalMeta) {
		item.Status = "running"
		item.StartedAt = nowRFC3339()
	})
	_, _ = m.store.AppendEvent(evalID, "start", "evaluation started", map[string]any{
		"mode":  request.Mode,
		"model": request.ModelID,
	})

	timeout := time.Duration(request.TimeoutSec) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var evaluation risk.EvaluationResult
	var err error
	switch request.Mode {
	case ModeGenerative:
		evaluation, err = m.runGenerative(ctx, request)
	case ModePredictive:
		evaluation, err = m.runPredictive(ctx, request)
	default:
		err = fmt.Errorf("unknown evaluation mode: %s", request.Mode)
	}

	if err != nil {
		_, _ = m.store.UpdateEvaluation(evalID, func(item *EvalMeta) {
			item.Status = string(risk.StatusFail)
			item.Error = err.Error()
			item.FinishedAt = nowRFC3339()
		})
		_, _ = m.store.AppendEvent(evalID, "error", "evaluation failed", map[string]any{
			"error": err.Error(),
		})
		m.obs.MarkEvaluation(ctx, request.Mode, "error")
		slog.Error("evaluation failed", "eval_id", evalID, "error", err)
		return
	}

	for name, pillar := range evaluation.PillarResults {
		m.obs.MarkPillar(ctx, name, pillar.ExecutionTimeMS)
		_, _ = m.store.AppendEvent(evalID, "pillar_result", name+" finished", map[string]any{
			"pillar":      name,
			"score":       pillar.Score,
			"status":      string(pillar.Status),
			"findings":    len(pillar.Findings),
			"duration_ms": pillar.ExecutionTimeMS,
		})
		critical := 0
		for _, finding := range pillar.Findings {
			if finding.Severity == risk.SeverityCritical {
				critical++
			}
		}
		m.obs.MarkCriticalFindings(ctx, name, critical)
	}

	status := string(evaluation.RiskStatus)
	_, _ = m.store.UpdateEvaluation(evalID, func(item *EvalMeta) {
		item.Status = status
		item.FinishedAt = nowRFC3339()
		item.Result = &evaluation
	})
	_, _ = m.store.AppendEvent(evalID, "completed", "evaluation completed", map[string]any{
		"status":     status,
		"score":      evaluation.OverallScore,
		"findings":   evaluation.TotalFindings,
		"incomplete": evaluation.Incomplete,
	})
	m.obs.MarkEvaluation(ctx, request.Mode, status)
	slog.Info("evaluation completed",
		"eval_id", evalID,
		"mode", request.Mode,
		"status", status,
		"score", evaluation.OverallScore)
}

func (m *EvalManager) runGenerative(ctx context.Context, request EvalRequest) (risk.EvaluationResult, error) {
	conn, err := m.connect(request)
	if err != nil {
		return risk.EvaluationResult{}, fmt.Errorf("build connector: %w", err)
	}
	cfg := m.cfg.GenAI
	if request.TimeoutSec > 0 {
		cfg.TimeoutSec = request.TimeoutSec
	}
	evaluator, err := genai.NewEvaluator(cfg)
	if err != nil {
		return risk.EvaluationResult{}, err
	}
	session := request.Session
	if strings.TrimSpace(session) == "" {
		session = request.ModelID
	}
	return evaluator.Evaluate(ctx, conn, session, request.Prompts), nil
}

func (m *EvalManager) runPredictive(ctx context.Context, request EvalRequest) (risk.EvaluationResult, error) {
	model, data, sensitive, err := m.loadModel(request)
	if err != nil {
		return risk.EvaluationResult{}, fmt.Errorf("load model: %w", err)
	}
	cfg := m.cfg.Predictive
	if request.TimeoutSec > 0 {
		cfg.TimeoutSec = request.TimeoutSec
	}
	evaluator, err := predictive.NewEvaluator(cfg)
	if err != nil {
		return risk.EvaluationResult{}, err
	}
	return evaluator.Evaluate(ctx, request.ModelID, model, data, sensitive)
}

func randomID(prefix string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return prefix + "_" + hex.EncodeToString(buf), nil
}
