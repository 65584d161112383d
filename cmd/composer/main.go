package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Iwinswap/defi-logic-composer-go/cmd/composer/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	metrics    bool

	// registry collects the composer metrics of the current run.
	registry *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "composer",
		Short: "Compose lending intents into ordered logic sequences",
		Long: `composer quotes lending protocols and swap venues and prints the
ordered logic sequence that carries out one intent, such as opening a
leveraged position, in a single transaction.`,
		// Errors are reported once by main.
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "composer.yaml", "path to the YAML configuration")
	cmd.PersistentFlags().BoolVar(&opts.metrics, "metrics", false, "write the run's metrics to stderr in Prometheus text format")

	cmd.AddCommand(newComposeCmd(opts))
	cmd.AddCommand(newTokensCmd(opts))
	return cmd
}

// setup loads the configuration and builds the application for one command run.
func (o *options) setup(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", o.configPath, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	o.registry = prometheus.NewRegistry()
	return newApp(ctx, cfg, logger, o.registry)
}

// writeMetrics dumps the run's metrics when --metrics is set.
func (o *options) writeMetrics(w io.Writer) error {
	if !o.metrics || o.registry == nil {
		return nil
	}
	families, err := o.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
