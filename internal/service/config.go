package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"riskeval/internal/genai"
	"riskeval/internal/predictive"
)

type ServiceConfig struct {
	Database   DatabaseConfig      `json:"database" yaml:"database"`
	Workers    WorkerConfig        `json:"workers" yaml:"workers"`
	Observer   ObservabilityConfig `json:"observability" yaml:"observability"`
	StorePath  string              `json:"store_path" yaml:"store_path"`
	GenAI      genai.Config        `json:"genai" yaml:"genai"`
	Predictive predictive.Config   `json:"predictive" yaml:"predictive"`
}

type DatabaseConfig struct {
	DSN            string `json:"dsn" yaml:"dsn"`
	MaxConns       int32  `json:"max_conns" yaml:"max_conns"`
	MigrationsPath string `json:"migrations_path" yaml:"migrations_path"`
}

type WorkerConfig struct {
	MaxParallelEvals  int `json:"max_parallel_evals" yaml:"max_parallel_evals"`
	DefaultTimeoutSec int `json:"default_timeout_sec" yaml:"default_timeout_sec"`
	PollIntervalSec   int `json:"poll_interval_sec" yaml:"poll_interval_sec"`
}

type ObservabilityConfig struct {
	OTLPEndpoint string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string  `json:"service_name" yaml:"service_name"`
	SampleRatio  float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Database: DatabaseConfig{
			MaxConns:       10,
			MigrationsPath: "./migrations",
		},
		Workers: WorkerConfig{
			MaxParallelEvals:  2,
			DefaultTimeoutSec: 600,
			PollIntervalSec:   5,
		},
		Observer: ObservabilityConfig{
			ServiceName: "riskeval-service",
			SampleRatio: 1,
		},
		GenAI:      genai.DefaultConfig(),
		Predictive: predictive.DefaultConfig(),
	}
}

func LoadServiceConfig(path string) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse json config: %w", err)
		}
	default:
		var yamlErr error
		if yamlErr = yaml.Unmarshal(data, &cfg); yamlErr == nil {
			break
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.New("config format not recognized (expected yaml/json)")
		}
	}
	normalizeServiceConfig(&cfg)
	return cfg, nil
}

func normalizeServiceConfig(cfg *ServiceConfig) {
	if cfg == nil {
		return
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if strings.TrimSpace(cfg.Database.MigrationsPath) == "" {
		cfg.Database.MigrationsPath = "./migrations"
	}
	if cfg.Workers.MaxParallelEvals <= 0 {
		cfg.Workers.MaxParallelEvals = 2
	}
	if cfg.Workers.DefaultTimeoutSec <= 0 {
		cfg.Workers.DefaultTimeoutSec = 600
	}
	if cfg.Workers.PollIntervalSec <= 0 {
		cfg.Workers.PollIntervalSec = 5
	}
	if cfg.Observer.SampleRatio <= 0 || cfg.Observer.SampleRatio > 1 {
		cfg.Observer.SampleRatio = 1
	}
	if strings.TrimSpace(cfg.Observer.ServiceName) == "" {
		cfg.Observer.ServiceName = "riskeval-service"
	}
}
