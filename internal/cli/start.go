package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"exam-duel-service/internal/config"
	"exam-duel-service/internal/logger"
	transport "exam-duel-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the duel server, job runner and expiry sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(serviceName, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	var dedupe transport.UpdateDeduper
	if c.dedupe != nil {
		dedupe = c.dedupe
	}
	router := transport.NewRouter(transport.RouterDeps{
		Duels:    transport.NewDuelHandler(c.service, log),
		Webhook:  transport.NewWebhookHandler(c.service, dedupe, cfg.Telegram.WebhookSecret, log),
		Feed:     transport.NewWSHandler(c.service, c.events, log),
		Metrics:  c.metrics,
		Gatherer: c.registry,
		Log:      log,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", finalPort).Info("starting exam duel service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return c.runJobs(ctx, config.TTLDuration(cfg.Scheduler.PollInterval, time.Second))
	})
	g.Go(func() error {
		return runSweeper(ctx, c, config.TTLDuration(cfg.Duel.SweepInterval, time.Minute))
	})
	return g.Wait()
}

// runSweeper expires stale challenges, sends reminders and samples pool stats.
func runSweeper(ctx context.Context, c *components, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.service.Sweep(ctx); err != nil {
				c.log.WithError(err).Warn("duel sweep failed")
			}
			if c.db != nil {
				c.metrics.RecordDBPoolStats(c.db.DB.Stats())
			}
		}
	}
}
