package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/resilience/internal/core/config"
	"github.com/vietddude/resilience/internal/health"
	redisclient "github.com/vietddude/resilience/internal/infra/redis"
	"github.com/vietddude/resilience/internal/infra/reporter"
	"github.com/vietddude/resilience/internal/resilience/netmon"
	"github.com/vietddude/resilience/internal/resilience/retry"
	"github.com/vietddude/resilience/internal/resilience/sink"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// UserAgent identifies this process in forwarded reports.
func UserAgent() string {
	return "resilience/" + Version
}

// Runtime owns the long-lived resilience components of the process and
// manages their lifecycle.
type Runtime struct {
	cfg         *config.AppConfig
	supervisor  *sink.Supervisor
	sink        *sink.Sink
	prober      netmon.Prober
	signals     *netmon.PollingSignals
	monitor     *netmon.Monitor
	server      *health.Server
	grpcServer  *health.GRPCServer
	redisClient *redisclient.Client
	unsubs      []func()
	cancel      context.CancelFunc
	log         *slog.Logger
}

// NewRuntime creates a Runtime with all dependencies initialized.
func NewRuntime(cfg *config.AppConfig) (*Runtime, error) {
	rt := &Runtime{
		cfg:        cfg,
		supervisor: sink.NewSupervisor(),
		log:        slog.Default().With("component", "runtime"),
	}

	// 1. Reporting channel
	rep, redisClient, err := NewReporter(cfg)
	if err != nil {
		return nil, err
	}
	rt.redisClient = redisClient

	// 2. Error sink, subscribed to crashes of supervised goroutines
	sinkCfg := cfg.Sink
	sinkCfg.Production = cfg.IsProduction()
	sinkCfg.UserAgent = UserAgent()
	var sinkReporter sink.Reporter
	if rep != nil {
		sinkReporter = rep
	}
	rt.sink = sink.New(sinkCfg, sinkReporter, rt.supervisor)

	// 3. Connectivity
	rt.prober, err = NewProber(cfg.Network)
	if err != nil {
		rt.closeClients()
		return nil, err
	}
	rt.signals = netmon.NewPollingSignals(
		rt.prober,
		cfg.Network.PollInterval,
		cfg.Network.ProbeTimeout,
		true,
	)
	rt.monitor = netmon.NewMonitor(
		rt.signals,
		rt.prober,
		netmon.WithProbeTimeout(cfg.Network.ProbeTimeout),
	)

	// 4. Admin surface
	rt.server = health.NewServer(rt.monitor, rt.sink, cfg.Server.Port)
	if cfg.Server.GRPCPort != 0 {
		rt.grpcServer = health.NewGRPCServer(cfg.Server.GRPCPort)
		rt.grpcServer.SetServing(rt.monitor.IsOnline())
		rt.unsubs = append(rt.unsubs, rt.monitor.AddListener(rt.grpcServer.SetServing))
	}
	rt.unsubs = append(rt.unsubs, rt.monitor.AddListener(func(online bool) {
		if online {
			rt.log.Info("Connectivity restored")
		} else {
			rt.log.Warn("Connectivity lost")
		}
	}))

	return rt, nil
}

// NewReporter builds the configured reporting channel wrapped with retries.
// It returns a nil Reporter for type "none". The Redis client, when one is
// created, is returned so the caller can close it.
func NewReporter(cfg *config.AppConfig) (reporter.Reporter, *redisclient.Client, error) {
	retryCfg := retry.Config{
		Name:       "report",
		MaxRetries: cfg.Reporter.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
	}

	switch cfg.Reporter.Type {
	case reporter.TypeNone, "":
		return nil, nil, nil
	case reporter.TypeHTTP:
		h := reporter.NewHTTP(cfg.Reporter.URL, cfg.Sink.ReportTimeout)
		return reporter.WithRetry(h, retryCfg), nil, nil
	case reporter.TypeRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init redis reporter: %w", err)
		}
		r := reporter.NewRedis(client, cfg.Reporter.Stream, cfg.Reporter.MaxLen)
		return reporter.WithRetry(r, retryCfg), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown reporter type %q", cfg.Reporter.Type)
	}
}

// NewProber picks the gRPC health prober when a target is configured and the
// HTTP prober otherwise.
func NewProber(cfg config.NetworkConfig) (netmon.Prober, error) {
	if cfg.GRPCTarget != "" {
		p, err := netmon.NewGRPCProber(cfg.GRPCTarget, cfg.GRPCService)
		if err != nil {
			return nil, fmt.Errorf("failed to init grpc prober: %w", err)
		}
		return p, nil
	}
	return netmon.NewHTTPProber(cfg.ProbeURL, cfg.ProbeMethod, cfg.ProbeTimeout), nil
}

// Sink returns the process error sink.
func (rt *Runtime) Sink() *sink.Sink {
	return rt.sink
}

// Monitor returns the network monitor.
func (rt *Runtime) Monitor() *netmon.Monitor {
	return rt.monitor
}

// Supervisor returns the crash signal host. Goroutines started through it
// report panics and returned errors to the sink.
func (rt *Runtime) Supervisor() *sink.Supervisor {
	return rt.supervisor
}

// Start starts the admin servers and connectivity polling. It does not block.
func (rt *Runtime) Start(ctx context.Context) error {
	ctx, rt.cancel = context.WithCancel(ctx)

	rt.supervisor.Go(func() error {
		if err := rt.server.Start(); err != nil {
			return fmt.Errorf("admin server failed: %w", err)
		}
		return nil
	})
	if rt.grpcServer != nil {
		rt.supervisor.Go(func() error {
			if err := rt.grpcServer.Start(); err != nil {
				return fmt.Errorf("grpc health server failed: %w", err)
			}
			return nil
		})
	}

	rt.supervisor.Go(func() error {
		rt.signals.Start(ctx)
		return nil
	})

	rt.log.Info("Runtime started",
		"environment", rt.cfg.Environment,
		"prober", rt.prober.Name(),
		"reporter", rt.cfg.Reporter.Type,
	)
	return nil
}

// Stop shuts everything down in reverse dependency order. Pending reports are
// given until ctx expires to finish.
func (rt *Runtime) Stop(ctx context.Context) error {
	rt.log.Info("Stopping runtime...")

	if rt.cancel != nil {
		rt.cancel()
	}

	var errs []error
	if err := rt.signals.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop polling: %w", err))
	}
	for _, unsub := range rt.unsubs {
		unsub()
	}
	rt.monitor.Destroy()

	if err := rt.server.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop admin server: %w", err))
	}
	if rt.grpcServer != nil {
		if err := rt.grpcServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop grpc health server: %w", err))
		}
	}
	rt.supervisor.Wait()

	if err := rt.sink.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close sink: %w", err))
	}
	if err := rt.closeClients(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (rt *Runtime) closeClients() error {
	var errs []error
	if c, ok := rt.prober.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close prober: %w", err))
		}
	}
	if rt.redisClient != nil {
		if err := rt.redisClient.Close(); err != nil {
			rt.log.Warn("Failed to close Redis", "error", err)
		}
	}
	return errors.Join(errs...)
}
