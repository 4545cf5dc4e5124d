package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"riskeval/internal/risk"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) CreateEvaluation(meta EvalMeta) error {
	req, _ := json.Marshal(meta.Request)
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO evaluations (eval_id,status,source,request,created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		meta.EvalID, meta.Status, meta.Source, req, meta.CreatedAt)
	return err
}

func (s *PgStore) UpdateEvaluation(evalID string, mutate func(*EvalMeta)) (EvalMeta, error) {
	tx, err := s.pool.Begin(context.Background())
	if err != nil {
		return EvalMeta{}, err
	}
	defer tx.Rollback(context.Background())

	row := tx.QueryRow(context.Background(),
		`SELECT eval_id,status,source,request,created_at,started_at,finished_at,error,result
		 FROM evaluations WHERE eval_id=$1 FOR UPDATE`, evalID)
	meta, err := scanEvalMeta(row)
	if err != nil {
		return EvalMeta{}, fmt.Errorf("evaluation not found: %s", evalID)
	}
	if mutate != nil {
		mutate(&meta)
	}
	req, _ := json.Marshal(meta.Request)
	var resultJSON []byte
	if meta.Result != nil {
		resultJSON, _ = json.Marshal(meta.Result)
	}
	_, err = tx.Exec(context.Background(),
		`UPDATE evaluations SET status=$1,started_at=$2,finished_at=$3,error=$4,result=$5,request=$6
		 WHERE eval_id=$7`,
		meta.Status, nullStr(meta.StartedAt), nullStr(meta.FinishedAt), meta.Error,
		resultJSON, req, evalID)
	if err != nil {
		return EvalMeta{}, err
	}
	return meta, tx.Commit(context.Background())
}

func (s *PgStore) GetEvaluation(evalID string) (EvalMeta, bool) {
	row := s.pool.QueryRow(context.Background(),
		`SELECT eval_id,status,source,request,created_at,started_at,finished_at,error,result
		 FROM evaluations WHERE eval_id=$1`, evalID)
	meta, err := scanEvalMeta(row)
	if err != nil {
		return EvalMeta{}, false
	}
	return meta, true
}

func (s *PgStore) ListEvaluations(limit int) []EvalMeta {
	if limit <= 0 {
		limit = 100
	}
	return s.listWhere(
		`SELECT eval_id,status,source,request,created_at,started_at,finished_at,error,result
		 FROM evaluations ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *PgStore) ListQueued(limit int) []EvalMeta {
	if limit <= 0 {
		limit = 50
	}
	return s.listWhere(
		`SELECT eval_id,status,source,request,created_at,started_at,finished_at,error,result
		 FROM evaluations WHERE status='queued' ORDER BY created_at ASC LIMIT $1`, limit)
}

func (s *PgStore) listWhere(query string, args ...any) []EvalMeta {
	rows, err := s.pool.Query(context.Background(), query, args...)
	if err != nil {
		return []EvalMeta{}
	}
	defer rows.Close()
	var out []EvalMeta
	for rows.Next() {
		meta, err := scanEvalMeta(rows)
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	if out == nil {
		return []EvalMeta{}
	}
	return out
}

func (s *PgStore) AppendEvent(evalID, stage, message string, data map[string]any) (EvalEvent, error) {
	var dataJSON []byte
	if data != nil {
		dataJSON, _ = json.Marshal(data)
	}
	var seq int64
	var ts time.Time
	err := s.pool.QueryRow(context.Background(),
		`INSERT INTO evaluation_events (eval_id, seq, stage, message, data)
		 VALUES ($1, COALESCE((SELECT MAX(seq) FROM evaluation_events WHERE eval_id=$1),0)+1, $2, $3, $4)
		 RETURNING seq, timestamp`, evalID, stage, message, dataJSON).Scan(&seq, &ts)
	if err != nil {
		return EvalEvent{}, err
	}
	return EvalEvent{
		Seq:       seq,
		Timestamp: ts.UTC().Format(time.RFC3339),
		Stage:     stage,
		Message:   message,
		Data:      data,
	}, nil
}

func (s *PgStore) ListEvents(evalID string, sinceSeq int64) []EvalEvent {
	rows, err := s.pool.Query(context.Background(),
		`SELECT seq, timestamp, stage, message, data
		 FROM evaluation_events WHERE eval_id=$1 AND seq>$2 ORDER BY seq`, evalID, sinceSeq)
	if err != nil {
		return []EvalEvent{}
	}
	defer rows.Close()
	var out []EvalEvent
	for rows.Next() {
		var e EvalEvent
		var ts time.Time
		var dataJSON []byte
		if err := rows.Scan(&e.Seq, &ts, &e.Stage, &e.Message, &dataJSON); err != nil {
			continue
		}
		e.Timestamp = ts.UTC().Format(time.RFC3339)
		if len(dataJSON) > 0 {
			_ = json.Unmarshal(dataJSON, &e.Data)
		}
		out = append(out, e)
	}
	if out == nil {
		return []EvalEvent{}
	}
	return out
}

func (s *PgStore) GetMetricsOverview() MetricsOverview {
	overview := MetricsOverview{GeneratedAt: nowRFC3339()}
	_ = s.pool.QueryRow(context.Background(),
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('running','queued')),
			COUNT(*) FILTER (WHERE status='pass'),
			COUNT(*) FILTER (WHERE status='warn'),
			COUNT(*) FILTER (WHERE status='fail')
		 FROM evaluations`).Scan(
		&overview.TotalEvals, &overview.RunningEvals, &overview.PassEvals,
		&overview.WarnEvals, &overview.FailEvals)

	rows, _ := s.pool.Query(context.Background(),
		`SELECT result FROM evaluations WHERE result IS NOT NULL`)
	if rows != nil {
		defer rows.Close()
		var scoreTotal float64
		var scoreCount int
		var durationTotal int64
		for rows.Next() {
			var resultJSON []byte
			if rows.Scan(&resultJSON) != nil {
				continue
			}
			var result risk.EvaluationResult
			if json.Unmarshal(resultJSON, &result) != nil {
				continue
			}
			durationTotal += result.ExecutionTimeMS
			overview.CriticalFindings += result.CriticalFindings
			scoreTotal += result.OverallScore
			scoreCount++
		}
		if overview.TotalEvals > 0 {
			overview.AverageDuration = durationTotal / int64(overview.TotalEvals)
		}
		if scoreCount > 0 {
			overview.AverageScore = scoreTotal / float64(scoreCount)
		}
	}
	return overview
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEvalMeta(row scannable) (EvalMeta, error) {
	var m EvalMeta
	var reqJSON, resultJSON []byte
	var startedAt, finishedAt, source, errStr *string
	err := row.Scan(&m.EvalID, &m.Status, &source, &reqJSON, &m.CreatedAt,
		&startedAt, &finishedAt, &errStr, &resultJSON)
	if err != nil {
		return EvalMeta{}, err
	}
	m.Source = deref(source)
	m.StartedAt = deref(startedAt)
	m.FinishedAt = deref(finishedAt)
	m.Error = deref(errStr)
	_ = json.Unmarshal(reqJSON, &m.Request)
	if len(resultJSON) > 0 {
		var result risk.EvaluationResult
		if json.Unmarshal(resultJSON, &result) == nil {
			m.Result = &result
		}
	}
	return m, nil
}

func nullStr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Ensure PgStore implements Store at compile time.
var _ Store = (*PgStore)(nil)
