package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/resilience/internal/control"
	"github.com/vietddude/resilience/internal/resilience/classify"
	"github.com/vietddude/resilience/internal/resilience/retry"
)

var errUnreachable = errors.New("endpoint unreachable")

var probeCmd = &cobra.Command{
	Use:          "probe [url]",
	Short:        "Check whether an endpoint is reachable",
	Long:         `Probe the configured endpoint, or the given URL, retrying transient failures.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging.Level)

	netCfg := cfg.Network
	if len(args) == 1 {
		netCfg.ProbeURL = args[0]
		netCfg.GRPCTarget = ""
	}
	target := netCfg.ProbeURL
	if netCfg.GRPCTarget != "" {
		target = netCfg.GRPCTarget
	}

	prober, err := control.NewProber(netCfg)
	if err != nil {
		return err
	}
	if c, ok := prober.(interface{ Close() error }); ok {
		defer func() { _ = c.Close() }()
	}

	retryCfg := cfg.Retry
	retryCfg.Name = "probe"
	exec := retry.NewExecutor(retryCfg)

	start := time.Now()
	err = exec.Execute(cmd.Context(), func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, netCfg.ProbeTimeout)
		defer cancel()
		return prober.Probe(ctx)
	}, nil)

	out := cmd.OutOrStdout()
	if err != nil {
		c := classify.Classify(err)
		_, _ = fmt.Fprintf(out, "UNREACHABLE %s via %s: %s (kind=%s, attempts=%d)\n",
			target, prober.Name(), c.Message, c.Kind, exec.RetryCount()+1)
		return errUnreachable
	}

	_, _ = fmt.Fprintf(out, "REACHABLE %s via %s in %s\n",
		target, prober.Name(), time.Since(start).Round(time.Millisecond))
	return nil
}
