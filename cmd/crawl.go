package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
)

func newCrawlCmd() *cobra.Command {
	var targetFlags []string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl over the configured targets",
		Long: `Crawls every target from the config file (or --target flags), serving
/healthz, /readyz, /metrics and /v1/run while the crawl runs. The run summary
is printed as JSON when the crawl ends.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, targetFlags)
		},
	}
	cmd.Flags().StringArrayVar(&targetFlags, "target", nil, "target as kind=url, e.g. item=https://scp-wiki.wikidot.com/scp-173 (repeatable)")
	return cmd
}

func runCrawl(cmd *cobra.Command, targetFlags []string) error {
	appInstance, cfg, logger, err := resolve(cmd.Context())
	if err != nil {
		return err
	}
	targets := cfg.Targets
	if len(targetFlags) > 0 {
		targets, err = parseTargets(targetFlags)
		if err != nil {
			return err
		}
	}
	if len(targets) == 0 {
		return errors.New("no targets configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var summary crawler.RunSummary
	g, gctx := errgroup.WithContext(ctx)
	crawlDone := make(chan struct{})
	if cfg.Server.Enabled {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           appInstance.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("http server started", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-crawlDone:
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(crawlDone)
		var err error
		summary, err = appInstance.Crawl(gctx, targets)
		return err
	})
	runErr := g.Wait()

	if summary.RunID != "" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			logger.Warn("print summary failed", zap.Error(err))
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run crawler: %w", runErr)
	}
	logger.Info("crawl command finished")
	return nil
}

// parseTargets reads kind=url pairs.
func parseTargets(raw []string) ([]crawler.Target, error) {
	targets := make([]crawler.Target, 0, len(raw))
	for _, item := range raw {
		kindStr, url, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("invalid target %q: want kind=url", item)
		}
		kind, ok := crawler.ParseKind(strings.TrimSpace(kindStr))
		if !ok {
			return nil, fmt.Errorf("invalid target %q: unknown kind %q", item, kindStr)
		}
		targets = append(targets, crawler.Target{URL: strings.TrimSpace(url), Kind: kind})
	}
	return targets, nil
}
