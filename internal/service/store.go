package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"riskeval/internal/risk"
)

type Store interface {
	CreateEvaluation(meta EvalMeta) error
	UpdateEvaluation(evalID string, mutate func(*EvalMeta)) (EvalMeta, error)
	GetEvaluation(evalID string) (EvalMeta, bool)
	ListEvaluations(limit int) []EvalMeta
	ListQueued(limit int) []EvalMeta
	AppendEvent(evalID, stage, message string, data map[string]any) (EvalEvent, error)
	ListEvents(evalID string, sinceSeq int64) []EvalEvent
	GetMetricsOverview() MetricsOverview
}

// MemoryFileStore keeps everything in memory and, when a path is configured,
// snapshots the whole store to one JSON file after each write.
type MemoryFileStore struct {
	mu      sync.RWMutex
	path    string
	evals   map[string]EvalMeta
	events  map[string][]EvalEvent
	nextSeq map[string]int64
}

func NewMemoryFileStore(path string) (*MemoryFileStore, error) {
	store := &MemoryFileStore{
		path:    path,
		evals:   map[string]EvalMeta{},
		events:  map[string][]EvalEvent{},
		nextSeq: map[string]int64{},
	}
	if strings.TrimSpace(path) == "" {
		return store, nil
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MemoryFileStore) CreateEvaluation(meta EvalMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.evals[meta.EvalID]; exists {
		return fmt.Errorf("evaluation %s already exists", meta.EvalID)
	}
	s.evals[meta.EvalID] = meta
	if _, ok := s.events[meta.EvalID]; !ok {
		s.events[meta.EvalID] = []EvalEvent{}
	}
	if _, ok := s.nextSeq[meta.EvalID]; !ok {
		s.nextSeq[meta.EvalID] = 1
	}
	return s.persistLocked()
}

func (s *MemoryFileStore) UpdateEvaluation(evalID string, mutate func(*EvalMeta)) (EvalMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.evals[evalID]
	if !ok {
		return EvalMeta{}, fmt.Errorf("evaluation not found: %s", evalID)
	}
	if mutate != nil {
		mutate(&meta)
	}
	s.evals[evalID] = meta
	if err := s.persistLocked(); err != nil {
		return EvalMeta{}, err
	}
	return meta, nil
}

func (s *MemoryFileStore) GetEvaluation(evalID string) (EvalMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.evals[evalID]
	return meta, ok
}

func (s *MemoryFileStore) ListEvaluations(limit int) []EvalMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EvalMeta, 0, len(s.evals))
	for _, meta := range s.evals {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryFileStore) ListQueued(limit int) []EvalMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EvalMeta, 0)
	for _, meta := range s.evals {
		if meta.Status == "queued" {
			out = append(out, meta)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt < out[j].CreatedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryFileStore) AppendEvent(evalID, stage, message string, data map[string]any) (EvalEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.evals[evalID]; !ok {
		return EvalEvent{}, fmt.Errorf("evaluation not found: %s", evalID)
	}
	seq := s.nextSeq[evalID]
	if seq < 1 {
		seq = 1
	}
	event := EvalEvent{
		Seq:       seq,
		Timestamp: nowRFC3339(),
		Stage:     stage,
		Message:   message,
		Data:      cloneMap(data),
	}
	s.nextSeq[evalID] = seq + 1
	s.events[evalID] = append(s.events[evalID], event)
	if err := s.persistLocked(); err != nil {
		return EvalEvent{}, err
	}
	return event, nil
}

func (s *MemoryFileStore) ListEvents(evalID string, sinceSeq int64) []EvalEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[evalID]
	if len(events) == 0 {
		return []EvalEvent{}
	}
	out := make([]EvalEvent, 0, len(events))
	for _, event := range events {
		if event.Seq > sinceSeq {
			out = append(out, event)
		}
	}
	return out
}

func (s *MemoryFileStore) GetMetricsOverview() MetricsOverview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	overview := MetricsOverview{GeneratedAt: nowRFC3339()}
	var durationTotal int64
	var scoreTotal float64
	scoreCount := 0
	for _, meta := range s.evals {
		overview.TotalEvals++
		switch strings.ToLower(strings.TrimSpace(meta.Status)) {
		case "running", "queued":
			overview.RunningEvals++
		case string(risk.StatusPass):
			overview.PassEvals++
		case string(risk.StatusWarn):
			overview.WarnEvals++
		case string(risk.StatusFail):
			overview.FailEvals++
		}
		if meta.Result != nil {
			durationTotal += meta.Result.ExecutionTimeMS
			overview.CriticalFindings += meta.Result.CriticalFindings
			scoreTotal += meta.Result.OverallScore
			scoreCount++
		}
	}
	if overview.TotalEvals > 0 {
		overview.AverageDuration = durationTotal / int64(overview.TotalEvals)
	}
	if scoreCount > 0 {
		overview.AverageScore = scoreTotal / float64(scoreCount)
	}
	return overview
}

type storeSnapshot struct {
	Evals  []EvalMeta             `json:"evaluations"`
	Events map[string][]EvalEvent `json:"events"`
}

func (s *MemoryFileStore) load() error {
	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read store snapshot: %w", err)
	}
	var snapshot storeSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode store snapshot: %w", err)
	}
	for _, meta := range snapshot.Evals {
		s.evals[meta.EvalID] = meta
	}
	for evalID, events := range snapshot.Events {
		s.events[evalID] = events
		maxSeq := int64(0)
		for _, event := range events {
			if event.Seq > maxSeq {
				maxSeq = event.Seq
			}
		}
		s.nextSeq[evalID] = maxSeq + 1
	}
	return nil
}

func (s *MemoryFileStore) persistLocked() error {
	if strings.TrimSpace(s.path) == "" {
		return nil
	}
	evals := make([]EvalMeta, 0, len(s.evals))
	for _, meta := range s.evals {
		evals = append(evals, meta)
	}
	sort.Slice(evals, func(i, j int) bool {
		return evals[i].CreatedAt < evals[j].CreatedAt
	})
	data, err := json.MarshalIndent(storeSnapshot{Evals: evals, Events: s.events}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store snapshot: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write store temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace store snapshot: %w", err)
	}
	return nil
}

func cloneMap(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
