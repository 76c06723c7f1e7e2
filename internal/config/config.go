package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Input    InputConfig
	Output   OutputConfig
	Explorer ExplorerConfig
	Pipeline PipelineConfig
	Server   ServerConfig
	Tracing  TracingConfig
	Log      LogConfig
}

type InputConfig struct {
	CSVPath      string
	RegistryFile string // optional YAML overlay on the built-in registry
}

type OutputConfig struct {
	Path string
}

type ExplorerConfig struct {
	Timeout          time.Duration
	RateLimitRPS     float64
	RateLimitBurst   int
	BreakerThreshold int
	BreakerTimeout   time.Duration
	CacheSize        int
	CacheTTL         time.Duration
}

type PipelineConfig struct {
	FetchWorkers      int
	NormalizerWorkers int
	ChannelBufferSize int
	MaxAttempts       int
	BackoffInitialMs  int
	BackoffMaxMs      int
	TaskTimeout       time.Duration
	MaxRows           int
}

type ServerConfig struct {
	HealthPort int
}

type TracingConfig struct {
	Endpoint string
	Insecure bool
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Input: InputConfig{
			CSVPath:      getEnv("INPUT_CSV", "unlabelled.csv"),
			RegistryFile: getEnv("REGISTRY_FILE", ""),
		},
		Output: OutputConfig{
			Path: getEnv("OUTPUT_PATH", "processed_contracts.json"),
		},
		Explorer: ExplorerConfig{
			Timeout:          time.Duration(getEnvInt("HTTP_TIMEOUT_SEC", 15)) * time.Second,
			RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 5),
			RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 5),
			BreakerThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
			BreakerTimeout:   time.Duration(getEnvInt("BREAKER_OPEN_TIMEOUT_SEC", 30)) * time.Second,
			CacheSize:        getEnvInt("RESPONSE_CACHE_SIZE", 4096),
			CacheTTL:         time.Duration(getEnvInt("RESPONSE_CACHE_TTL_SEC", 600)) * time.Second,
		},
		Pipeline: PipelineConfig{
			FetchWorkers:      getEnvInt("FETCH_WORKERS", 10),
			NormalizerWorkers: getEnvInt("NORMALIZER_WORKERS", 2),
			ChannelBufferSize: getEnvInt("CHANNEL_BUFFER_SIZE", 16),
			MaxAttempts:       getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			BackoffInitialMs:  getEnvInt("BACKOFF_INITIAL_MS", 200),
			BackoffMaxMs:      getEnvInt("BACKOFF_MAX_MS", 3000),
			TaskTimeout:       time.Duration(getEnvInt("TASK_TIMEOUT_SEC", 60)) * time.Second,
			MaxRows:           getEnvInt("MAX_ROWS", 0),
		},
		Server: ServerConfig{
			HealthPort: getEnvInt("HEALTH_PORT", 8080),
		},
		Tracing: TracingConfig{
			Endpoint: getEnv("TRACING_ENDPOINT", ""),
			Insecure: getEnvBool("TRACING_INSECURE", true),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Input.CSVPath == "" {
		return fmt.Errorf("INPUT_CSV is required")
	}
	if c.Output.Path == "" {
		return fmt.Errorf("OUTPUT_PATH is required")
	}
	if c.Pipeline.FetchWorkers <= 0 {
		return fmt.Errorf("FETCH_WORKERS must be positive")
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive")
	}
	if c.Explorer.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SEC must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
