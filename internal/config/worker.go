package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// WorkerEnv overrides outbox processor knobs from the environment, e.g.
// WORKER_BATCH_SIZE=50. The worker binary reads the shared yaml config
// first and applies these on top.
type WorkerEnv struct {
	BatchSize           int `envconfig:"BATCH_SIZE" default:"0"`
	PollIntervalSeconds int `envconfig:"POLL_INTERVAL_SECONDS" default:"0"`
	RetryAttempts       int `envconfig:"RETRY_ATTEMPTS" default:"0"`
	MetricsPort         int `envconfig:"METRICS_PORT" default:"8081"`
}

func LoadWorkerEnv() (*WorkerEnv, error) {
	var env WorkerEnv
	if err := envconfig.Process("worker", &env); err != nil {
		return nil, fmt.Errorf("failed to process worker env: %w", err)
	}
	return &env, nil
}

// Apply merges non-zero overrides into the outbox config.
func (e *WorkerEnv) Apply(cfg *OutboxConfig) {
	if e.BatchSize > 0 {
		cfg.BatchSize = e.BatchSize
	}
	if e.PollIntervalSeconds > 0 {
		cfg.PollIntervalSeconds = e.PollIntervalSeconds
	}
	if e.RetryAttempts > 0 {
		cfg.RetryAttempts = e.RetryAttempts
	}
}
