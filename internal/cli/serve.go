package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/taskgate/internal/doctor"
	"github.com/mattjoyce/taskgate/internal/lock"
	"github.com/mattjoyce/taskgate/internal/log"
)

// writeTimeoutSlack is added to the supervisor deadline so a timed-out task
// still gets its 408 written.
const writeTimeoutSlack = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("listen", "", "Override api.listen")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.API.Listen = listen
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("taskgate starting", "version", currentVersionInfo().Version, "config", cfg.SourcePath)

	pidLock, err := lock.AcquirePIDLock(cfg.State.LockPath)
	if err != nil {
		return fmt.Errorf("failed to acquire PID lock %s (another instance may be running): %w", cfg.State.LockPath, err)
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	logger.Info("handlers registered", "kinds", a.registry.Len(), "sandbox", a.guard.Root(), "deadline", cfg.Supervisor.Deadline)
	report := doctor.New(cfg).Validate()
	for _, issue := range report.Warnings {
		logger.Warn(issue.Message, "category", issue.Category, "field", issue.Field)
	}
	if !report.Valid {
		for _, issue := range report.Errors {
			logger.Error(issue.Message, "category", issue.Category, "field", issue.Field)
		}
		return fmt.Errorf("refusing to start: %d config error(s), run taskgate config check", len(report.Errors))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := a.apiServer()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("received shutdown signal")
		}
		return nil
	})

	logger.Info("taskgate running (press Ctrl+C to stop)", "listen", cfg.API.Listen)
	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("component failed", "error", err)
		return err
	}

	logger.Info("taskgate stopped")
	return nil
}
