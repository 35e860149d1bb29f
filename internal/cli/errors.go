package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/health"
	"github.com/vietddude/resilience/internal/resilience/retry"
)

var (
	errorsLimit int
	errorsAddr  string
	errorsClear bool
)

var errorsCmd = &cobra.Command{
	Use:          "errors",
	Short:        "Show the recent errors captured by a running instance",
	SilenceUsage: true,
	RunE:         runErrors,
}

func init() {
	errorsCmd.Flags().IntVar(&errorsLimit, "limit", health.DefaultErrorLimit, "maximum number of records to show")
	errorsCmd.Flags().StringVar(&errorsAddr, "addr", "", "admin server address (default http://localhost:<server.port>)")
	errorsCmd.Flags().BoolVar(&errorsClear, "clear", false, "clear the history after showing it")
	rootCmd.AddCommand(errorsCmd)
}

func runErrors(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging.Level)

	addr := strings.TrimSuffix(errorsAddr, "/")
	if addr == "" {
		addr = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	client := &http.Client{Timeout: cfg.Network.ProbeTimeout}
	retryCfg := cfg.Retry
	retryCfg.Name = "admin"

	page, err := retry.Do(cmd.Context(), retry.NewExecutor(retryCfg),
		func(ctx context.Context) (*health.ErrorsResponse, error) {
			return fetchErrors(ctx, client, fmt.Sprintf("%s/errors?limit=%d", addr, errorsLimit))
		}, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch errors: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tKIND\tID\tMESSAGE")
	for _, rec := range page.Errors {
		ts := time.UnixMilli(rec.TimestampMs).UTC().Format(time.RFC3339)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ts, rec.Kind, rec.ID, rec.Message)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d of %d shown\n", len(page.Errors), page.Total)

	if errorsClear {
		err := retry.NewExecutor(retryCfg).Execute(cmd.Context(), func(ctx context.Context) error {
			return clearErrors(ctx, client, addr+"/errors")
		}, nil)
		if err != nil {
			return fmt.Errorf("failed to clear errors: %w", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
	}
	return nil
}

func fetchErrors(ctx context.Context, client *http.Client, url string) (*health.ErrorsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, domain.FromHTTPResponse(nil, err)
	}
	defer resp.Body.Close()

	if err := domain.FromHTTPResponse(resp, nil); err != nil {
		return nil, err
	}

	var page health.ErrorsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, domain.NewValidationError("malformed errors response: "+err.Error(), nil)
	}
	return &page, nil
}

func clearErrors(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return domain.FromHTTPResponse(nil, err)
	}
	defer resp.Body.Close()
	return domain.FromHTTPResponse(resp, nil)
}
