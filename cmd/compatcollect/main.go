package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"compatcollect/internal/config"
	"compatcollect/internal/logger"
	"compatcollect/internal/telemetry"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	rootCmd = &cobra.Command{
		Use:           "compatcollect",
		Short:         "Build a browser support matrix from WebIDL and collected test reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath string
	logLevel   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, failure("✖ "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "compatcollect.yaml", "Path to the YAML config (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(idlCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(runsCmd)
}

// env is what every command needs: config, logger and tracing.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	shutdown func(context.Context) error
}

func setup() (*env, error) {
	path := configPath
	if path == "compatcollect.yaml" && !config.Exists(path) {
		// The default config file is optional.
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	shutdown, err := telemetry.InitTracer(cfg.Tracing.Enabled, cfg.Tracing.ServiceName, os.Stderr, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	return &env{cfg: cfg, log: log, shutdown: shutdown}, nil
}

func (e *env) close() {
	_ = e.shutdown(context.Background())
	_ = e.log.Sync()
}

// withEnv adapts a command body that needs the loaded environment.
func withEnv(fn func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()
		return fn(cmd, args, e)
	}
}
