package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"riskeval/internal/connector/openai"
	"riskeval/internal/genai"
	"riskeval/internal/predictive"
	"riskeval/internal/service"
)

func main() {
	configPath := flag.String("config", "", "Path to service config YAML/JSON")
	storePath := flag.String("store", "", "Optional memory store snapshot path override")
	flag.Parse()

	cfg, err := service.LoadServiceConfig(*configPath)
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}
	if *storePath != "" {
		cfg.StorePath = *storePath
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := buildStore(rootCtx, cfg)
	if err != nil {
		slog.Error("build store failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	obs, err := service.SetupObservability(rootCtx, cfg.Observer)
	if err != nil {
		slog.Error("setup observability failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = obs.Shutdown(ctx)
	}()

	manager := service.NewEvalManager(cfg, store, obs, openaiConnectorFactory, csvModelLoader)
	defer manager.Shutdown()

	slog.Info("risk evaluation worker running",
		"workers", cfg.Workers.MaxParallelEvals,
		"poll_interval_sec", cfg.Workers.PollIntervalSec,
	)
	manager.Poll(rootCtx)
	slog.Info("shutting down")
}

// buildStore prefers PostgreSQL and falls back to the snapshot-backed memory
// store when no DSN is configured.
func buildStore(ctx context.Context, cfg service.ServiceConfig) (service.Store, func(), error) {
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		store, err := service.NewMemoryFileStore(cfg.StorePath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("using memory store", "path", cfg.StorePath)
		return store, func() {}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := service.RunMigrations(ctx, pool, cfg.Database.MigrationsPath); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return service.NewPgStore(pool), pool.Close, nil
}

func openaiConnectorFactory(request service.EvalRequest) (genai.Connector, error) {
	return openai.New(openai.Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:   request.ModelID,
	})
}

func csvModelLoader(request service.EvalRequest) (predictive.Model, predictive.Dataset, map[string][]int, error) {
	label := request.LabelColumn
	if strings.TrimSpace(label) == "" {
		label = "label"
	}
	data, sensitive, err := predictive.LoadCSV(request.DatasetPath, label, request.SensitiveColumns)
	if err != nil {
		return nil, predictive.Dataset{}, nil, err
	}
	model, err := predictive.TrainReferenceModel(request.ModelID, data)
	if err != nil {
		return nil, predictive.Dataset{}, nil, err
	}
	return model, data, sensitive, nil
}
