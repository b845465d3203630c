package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-portfolio-monitor/config"
	"crypto-portfolio-monitor/internal/alert"
	"crypto-portfolio-monitor/internal/dashboard"
	"crypto-portfolio-monitor/internal/database"
	"crypto-portfolio-monitor/internal/mail"
	"crypto-portfolio-monitor/internal/metrics"
	"crypto-portfolio-monitor/internal/notify"
	"crypto-portfolio-monitor/internal/portfolio"
	"crypto-portfolio-monitor/internal/price"
	"crypto-portfolio-monitor/internal/ratelimit"
	"crypto-portfolio-monitor/internal/status"
	"crypto-portfolio-monitor/internal/telegram"
	"crypto-portfolio-monitor/internal/tracker"
	"crypto-portfolio-monitor/lib/logging"
	"crypto-portfolio-monitor/lib/translation"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Monitor stopped: %v", err)
	}
}

func run() error {
	settings, err := config.Load()
	if err != nil {
		return err
	}

	out := logging.Setup(logging.Options{
		Level:  settings.Logging.Level,
		Format: settings.Logging.Format,
		File:   settings.Logging.File,
		Debug:  settings.Logging.Debug,
	})
	if c, ok := out.(io.Closer); ok && out != os.Stdout {
		defer c.Close()
	}
	log.Debug("Starting crypto portfolio monitor...")

	translation.Configure("locales", settings.Lang)

	if err := config.DataDir(settings.DatabasePath); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := database.Open(settings.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	m.Load(context.Background(), store)

	limiter := ratelimit.New(
		ratelimit.WithCallsPerMinute(settings.RateLimit.CallsPerMinute),
		ratelimit.WithCallsPerMonth(settings.RateLimit.CallsPerMonth),
		ratelimit.WithMinInterval(settings.RateLimit.MinCallInterval),
		ratelimit.WithBuffer(settings.RateLimit.Buffer),
		ratelimit.WithObserver(m.ObserveWait),
	)

	apiKey := settings.CoinGeckoAPIKey
	if settings.PriceSource == price.ProviderCoinPaprika {
		apiKey = settings.APIProKey
	}
	source, err := price.NewSource(price.Config{
		Provider:   settings.PriceSource,
		BaseURL:    settings.CoinGeckoBaseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}, limiter)
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(settings)
	if err != nil {
		return err
	}

	st := status.NewTracker()
	portfolioSvc := portfolio.NewService(store)
	evaluator := alert.NewEvaluator(store, notifier,
		alert.WithCooldown(settings.AlertCooldown),
		alert.WithRecorder(m),
	)

	worker := tracker.New(tracker.Config{
		Holdings:        settings.Holdings,
		RefreshInterval: settings.RefreshInterval,
		ErrorBackoff:    settings.ErrorBackoff,
		HistoryDays:     settings.HistoryDays,
	}, tracker.Deps{
		Source:    source,
		History:   store,
		Portfolio: portfolioSvc,
		Alerts:    evaluator,
		Loss:      portfolio.NewLossMonitor(store, notifier, settings.AlertCooldown),
		Status:    st,
		Recorder:  m,
	})

	server := dashboard.New(dashboard.Config{
		Addr:          fmt.Sprintf(":%d", settings.HTTPPort),
		Admin:         dashboard.AdminCredentials{Username: settings.AdminUsername, Password: settings.AdminPassword},
		HistoryWindow: time.Duration(settings.HistoryDays) * 24 * time.Hour,
	}, dashboard.Deps{
		Store:     store,
		Portfolio: portfolioSvc,
		Alerts:    alert.NewManager(store),
		Limiter:   limiter,
		Status:    st,
		Gatherer:  registry,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(ctx) })
	g.Go(func() error { return server.ListenAndServe(ctx) })
	g.Go(func() error {
		ticker := time.NewTicker(metricsInterval(settings.MetricsInterval))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := m.Save(ctx, store); err != nil {
					log.WithError(err).Warn("Failed to save metrics")
				}
			}
		}
	})

	err = g.Wait()
	if saveErr := m.Save(context.Background(), store); saveErr != nil {
		log.WithError(saveErr).Warn("Failed to save metrics")
	} else {
		log.Info("Metrics saved, shutting down...")
	}
	return err
}

func buildNotifier(settings config.Settings) (alert.Notifier, error) {
	router := &notify.Router{Mail: notify.Log{}}
	if settings.SMTP.Enabled() {
		router.Mail = mail.NewSender(mail.Config{
			Server:   settings.SMTP.Server,
			Port:     settings.SMTP.Port,
			Username: settings.SMTP.Username,
			Password: settings.SMTP.Password,
			From:     settings.SMTP.From,
		})
	} else {
		log.Warn("SMTP is not configured, mail notifications are only logged")
	}

	if settings.TelegramToken != "" {
		bot, err := telegram.NewBot(telegram.BotConfig{
			Token: settings.TelegramToken,
			Debug: settings.Logging.Debug,
		})
		if err != nil {
			return nil, err
		}
		router.Telegram = bot
	}
	return router, nil
}

func metricsInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Minute
	}
	return d
}
