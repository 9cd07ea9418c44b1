// Package config loads worker configuration from the environment, with an
// optional YAML file overlay for values operators would rather keep in a
// deployed config map than in process env (contract document overrides,
// transport tuning).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mixmaster-audio/pipeline/internal/platform/logger"
)

// Config is everything cmd/worker needs to stand up a runnable worker.
type Config struct {
	JobID     string `yaml:"-"` // MIX_JOB_ID: set per-invocation, never in a file overlay
	MediaDir  string `yaml:"media_dir"`
	ModelsDir string `yaml:"models_dir"`
	Offline   bool   `yaml:"offline"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisQueueKey string `yaml:"redis_queue_key"`

	PostgresDSN string `yaml:"postgres_dsn"`
	SQLitePath  string `yaml:"sqlite_path"` // used instead of PostgresDSN when set

	WorkerPollInterval time.Duration `yaml:"worker_poll_interval"`
	StemWorkerPoolSize int           `yaml:"stem_worker_pool_size"`

	ContractsPath string `yaml:"contracts_path"` // overrides the embedded default stages.json when set

	TracingEnabled bool   `yaml:"tracing_enabled"`
	LogMode        string `yaml:"log_mode"`
}

// Load builds a Config from environment variables, then applies a YAML
// overlay if MIX_CONFIG_FILE names a readable file. The overlay is applied
// last, so a key present in the file replaces the value read from the
// environment (or its default). MIX_JOB_ID has no overlay key and always
// comes from the environment.
func Load(log *logger.Logger) (Config, error) {
	cfg := Config{
		JobID:              GetEnv("MIX_JOB_ID", "", log),
		MediaDir:           GetEnv("MIX_MEDIA_DIR", "./media", log),
		ModelsDir:          GetEnv("MIX_MODELS_DIR", "./models", log),
		Offline:            GetEnvAsBool("MIX_OFFLINE", true, log),
		RedisAddr:          GetEnv("MIX_REDIS_ADDR", "localhost:6379", log),
		RedisQueueKey:      GetEnv("MIX_REDIS_QUEUE_KEY", "mix:jobs", log),
		PostgresDSN:        GetEnv("MIX_POSTGRES_DSN", "", log),
		SQLitePath:         GetEnv("MIX_SQLITE_PATH", "./mix.db", log),
		WorkerPollInterval: time.Duration(GetEnvAsInt("MIX_WORKER_POLL_INTERVAL_MS", 500, log)) * time.Millisecond,
		StemWorkerPoolSize: GetEnvAsInt("MIX_STEM_WORKER_POOL_SIZE", 4, log),
		ContractsPath:      GetEnv("MIX_CONTRACTS_PATH", "", log),
		TracingEnabled:     GetEnvAsBool("MIX_TRACING_ENABLED", false, log),
		LogMode:            GetEnv("MIX_LOG_MODE", "development", log),
	}

	if overlayPath := os.Getenv("MIX_CONFIG_FILE"); overlayPath != "" {
		if err := applyOverlay(&cfg, overlayPath); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func applyOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read overlay %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse overlay %s: %w", path, err)
	}
	return nil
}
