package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/gabihorn/beiter-alert-bot/internal/config"
	"github.com/gabihorn/beiter-alert-bot/internal/dedup"
	"github.com/gabihorn/beiter-alert-bot/internal/health"
	"github.com/gabihorn/beiter-alert-bot/internal/locality"
	"github.com/gabihorn/beiter-alert-bot/internal/logging"
	"github.com/gabihorn/beiter-alert-bot/internal/metrics"
	"github.com/gabihorn/beiter-alert-bot/internal/poller"
	"github.com/gabihorn/beiter-alert-bot/internal/source"
	"github.com/gabihorn/beiter-alert-bot/internal/webhook"
)

func main() {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		bootstrap := logging.New(logging.Config{})
		if errors.Is(err, config.ErrMissingWebhook) {
			bootstrap.Fatal().Err(err).Msg("set WEBHOOK_URL or ALLOW_MISSING_WEBHOOK=true")
		}
		bootstrap.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(cfg.LoggingConfig())

	// Graceful shutdown on Ctrl+C / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("monitor stopped with error")
	}
	logger.Info().Msg("shutting down")
}

// run wires the components and blocks until ctx ends or the liveness server
// cannot listen.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	reg := metrics.NewProcessRegistry()
	m := metrics.New(reg)

	sender, err := webhook.New(cfg.WebhookConfig(), logger, m)
	if err != nil {
		return err
	}
	if !sender.Configured() {
		logger.Warn().Msg("WEBHOOK_URL not set; matching alerts will be logged and dropped")
	}

	matcher := locality.New(cfg.Locality)
	loop := poller.New(
		cfg.PollerConfig(),
		source.New(cfg.SourceConfig(), logger, m),
		matcher,
		dedup.New(cfg.DedupHistory),
		sender,
		logger,
		m,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		serveErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		liveness := health.NewServer(cfg.ListenAddr(), health.Handler(health.DefaultBody), logger)
		if err := liveness.Run(ctx); err != nil {
			serveErr = err
			cancel()
		}
	}()

	if !cfg.MetricsDisable {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler(reg))
			if err := health.NewServer(cfg.MetricsAddr, mux, logger).Run(ctx); err != nil {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	logger.Info().
		Str("locality", matcher.Name()).
		Strs("variants", matcher.Variants()).
		Dur("interval", cfg.Interval).
		Strs("sources", cfg.SourceURLs).
		Str("webhook", webhook.RedactURL(cfg.WebhookURL)).
		Int("dedup_history", cfg.DedupHistory).
		Msg("monitoring alerts")

	loop.Run(ctx)
	cancel()
	wg.Wait()
	return serveErr
}
