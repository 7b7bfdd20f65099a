// Package cmd defines the CLI commands of the wikidot-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikidot-crawler/internal/app"
	"github.com/JakeFAU/wikidot-crawler/internal/config"
	"github.com/JakeFAU/wikidot-crawler/internal/logging"
	"github.com/JakeFAU/wikidot-crawler/internal/metrics"
	"github.com/JakeFAU/wikidot-crawler/internal/telemetry"
)

type contextKey string

const (
	appKey    contextKey = "app"
	configKey contextKey = "config"
	loggerKey contextKey = "logger"
	tracerKey contextKey = "tracer"
)

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "wikidot-crawler",
		Short: "Crawls wiki pages with their revision history and hub pagination.",
		Long: `wikidot-crawler fetches configured wiki pages, collects each page's
complete revision history, merges paginated hub listings into their hub and
writes the finished records to the configured storage backends.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			metrics.Init()
			tp, err := telemetry.InitTracerProvider(cmd.Context(), telemetry.ServiceName)
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), tracerKey, tp))

			appInstance, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			ctx = context.WithValue(ctx, configKey, cfg)
			ctx = context.WithValue(ctx, loggerKey, logger)
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or $HOME/.wikidot-crawler/config.yaml)")
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

func resolve(ctx context.Context) (*app.App, config.Config, *zap.Logger, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, config.Config{}, nil, errors.New("application services not initialized")
	}
	cfg, _ := ctx.Value(configKey).(config.Config)
	logger, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok {
		logger = zap.NewNop()
	}
	return appInstance, cfg, logger, nil
}

// execute runs root and then releases whatever PersistentPreRunE set up,
// including when the command failed. Cobra skips post-run hooks on error.
func execute(root *cobra.Command) (*cobra.Command, error) {
	cmd, err := root.ExecuteC()
	if cmd != nil && cmd.Context() != nil {
		shutdown(cmd.Context())
	}
	return cmd, err
}

func shutdown(ctx context.Context) {
	if appInstance, ok := ctx.Value(appKey).(*app.App); ok && appInstance != nil {
		appInstance.Close()
	}
	if tp, ok := ctx.Value(tracerKey).(*sdktrace.TracerProvider); ok {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			zap.L().Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

// Execute is the main entry point.
func Execute() {
	if _, err := execute(newRootCmd()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
