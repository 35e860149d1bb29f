package config

import (
	"time"

	redisclient "github.com/vietddude/resilience/internal/infra/redis"
	"github.com/vietddude/resilience/internal/infra/reporter"
	"github.com/vietddude/resilience/internal/resilience/retry"
	"github.com/vietddude/resilience/internal/resilience/sink"
)

// EnvProduction enables forwarding of captured errors.
const EnvProduction = "production"

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Environment string             `yaml:"environment"`
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Retry       retry.Config       `yaml:"retry"`
	Network     NetworkConfig      `yaml:"network"`
	Sink        sink.Config        `yaml:"sink"`
	Reporter    reporter.Config    `yaml:"reporter"`
	Redis       redisclient.Config `yaml:"redis"`
}

// IsProduction reports whether the runtime should forward errors.
func (c *AppConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// ServerConfig holds admin server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = no gRPC health endpoint
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// NetworkConfig holds connectivity probing settings. When GRPCTarget is set
// the gRPC health protocol is used instead of the HTTP probe.
type NetworkConfig struct {
	ProbeURL     string        `yaml:"probe_url"`
	ProbeMethod  string        `yaml:"probe_method"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	GRPCTarget   string        `yaml:"grpc_target"`
	GRPCService  string        `yaml:"grpc_service"`
}
