package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tengfei-Z/AiTrader/internal/adapters/ai"
	"github.com/Tengfei-Z/AiTrader/internal/adapters/config"
	"github.com/Tengfei-Z/AiTrader/internal/adapters/errors/noop"
	"github.com/Tengfei-Z/AiTrader/internal/adapters/errors/sentry"
	"github.com/Tengfei-Z/AiTrader/internal/adapters/exchanges/okx"
	"github.com/Tengfei-Z/AiTrader/internal/adapters/exchanges/ratelimit"
	"github.com/Tengfei-Z/AiTrader/internal/adapters/exchanges/retry"
	"github.com/Tengfei-Z/AiTrader/internal/agents"
	"github.com/Tengfei-Z/AiTrader/internal/api"
	"github.com/Tengfei-Z/AiTrader/internal/events"
	"github.com/Tengfei-Z/AiTrader/internal/marketdata"
	"github.com/Tengfei-Z/AiTrader/internal/tools"
	"github.com/Tengfei-Z/AiTrader/internal/trading"
	"github.com/Tengfei-Z/AiTrader/pkg/errors"
	"github.com/Tengfei-Z/AiTrader/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	provider, err := ai.NewDeepSeekProvider(cfg.DeepSeek.APIKey, cfg.DeepSeek.BaseURL, cfg.DeepSeek.Model, cfg.DeepSeek.Timeout)
	if err != nil {
		log.Fatalf("Failed to init DeepSeek provider: %v", err)
	}

	exchange := okx.NewClient(okx.Config{
		APIKey:       cfg.OKX.APIKey,
		SecretKey:    cfg.OKX.SecretKey,
		Passphrase:   cfg.OKX.Passphrase,
		BaseURL:      cfg.OKX.BaseURL,
		UseSimulated: cfg.OKX.UseSimulated,
		HTTPClient:   &http.Client{Timeout: cfg.OKX.Timeout},
		Retry: retry.Config{
			MaxRetries:   cfg.OKX.MaxRetries,
			InitialDelay: cfg.OKX.RetryBackoff,
			MaxDelay:     10 * cfg.OKX.RetryBackoff,
			Multiplier:   2.0,
		},
		Limiter: ratelimit.NewLimiter("okx", cfg.OKX.RateLimitRPM),
	})

	market := marketdata.NewAdapter(exchange)
	trader := trading.NewAdapter(exchange, market, trading.Config{
		StopLossPct:   cfg.Trading.StopLossPct,
		TakeProfitPct: cfg.Trading.TakeProfitPct,
	})

	registry := tools.NewRegistry()
	tools.RegisterAll(registry, tools.Deps{
		Market:  market,
		Trading: trader,
		Log:     log,
	})

	store := agents.NewConversationStore(cfg.Agent.MaxHistory)
	notifier := events.NewNotifier()
	defer notifier.Close()

	analyzer := agents.NewAnalyzer(provider, registry, store, notifier, agents.Config{
		MaxToolRounds:   cfg.Agent.MaxToolRounds,
		HistoryLimit:    cfg.Agent.HistoryLimit,
		Temperature:     cfg.Agent.Temperature,
		ChatTemperature: cfg.Agent.ChatTemperature,
	})

	handler := api.NewHandler(analyzer, notifier)
	server := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: handler.Router(cfg.App.Env),
	}

	go func() {
		log.Infof("HTTP server listening on %s", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	log.Info("System initialized successfully")

	waitForShutdown(server, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// waitForShutdown blocks until a termination signal, then drains in-flight
// requests and flushes the error tracker.
func waitForShutdown(server *http.Server, tracker errors.Tracker, log *logger.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Infof("Received signal %v, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warnf("HTTP server shutdown: %v", err)
	}
	if err := tracker.Flush(ctx); err != nil {
		log.Warnf("Error tracker flush: %v", err)
	}

	log.Info("Shutdown complete")
}
