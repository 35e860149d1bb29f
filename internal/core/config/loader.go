package config

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	redisclient "github.com/vietddude/resilience/internal/infra/redis"
	"github.com/vietddude/resilience/internal/infra/reporter"
	"github.com/vietddude/resilience/internal/resilience/retry"
	"github.com/vietddude/resilience/internal/resilience/sink"
)

// Load reads configuration from a YAML file. Keys missing from the file keep
// their defaults; keys present keep their value, zero included, so
// max_retries: 0 disables retries.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	derive(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	cfg := defaults()
	derive(cfg)
	return cfg
}

func defaults() *AppConfig {
	return &AppConfig{
		Environment: "development",
		Server:      ServerConfig{Port: 8080},
		Logging:     LoggingConfig{Level: "info"},
		Retry: retry.Config{
			MaxRetries: retry.DefaultConfig.MaxRetries,
			BaseDelay:  retry.DefaultConfig.BaseDelay,
			MaxDelay:   retry.DefaultConfig.MaxDelay,
		},
		Network: NetworkConfig{
			ProbeMethod:  http.MethodHead,
			ProbeTimeout: 5 * time.Second,
			PollInterval: 15 * time.Second,
		},
		Sink: sink.Config{
			MaxQueueSize:  sink.DefaultConfig.MaxQueueSize,
			ReportRate:    sink.DefaultConfig.ReportRate,
			ReportBurst:   sink.DefaultConfig.ReportBurst,
			ReportTimeout: sink.DefaultConfig.ReportTimeout,
		},
		Reporter: reporter.Config{
			Type:       reporter.TypeNone,
			MaxRetries: 2,
		},
		Redis: redisclient.Config{URL: "redis://localhost:6379/0"},
	}
}

// derive fills settings whose default depends on other settings.
func derive(cfg *AppConfig) {
	if cfg.Network.ProbeURL == "" {
		cfg.Network.ProbeURL = fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)
	}
}

func (c *AppConfig) validate() error {
	switch c.Reporter.Type {
	case reporter.TypeNone, reporter.TypeRedis:
	case reporter.TypeHTTP:
		if c.Reporter.URL == "" {
			return fmt.Errorf("reporter.url is required for http reporter")
		}
	default:
		return fmt.Errorf("unknown reporter type %q", c.Reporter.Type)
	}
	if c.Sink.MaxQueueSize <= 0 {
		return fmt.Errorf("sink.max_queue_size must be positive, got %d", c.Sink.MaxQueueSize)
	}
	if c.Retry.MaxRetries < 0 || c.Reporter.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.Network.ProbeTimeout <= 0 || c.Network.PollInterval <= 0 {
		return fmt.Errorf("network.probe_timeout and network.poll_interval must be positive")
	}
	return nil
}
