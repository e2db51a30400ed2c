package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bowerhall/docsage/internal/app"
	"github.com/bowerhall/docsage/internal/bot"
	"github.com/bowerhall/docsage/internal/config"
	"github.com/bowerhall/docsage/internal/cron"
	"github.com/bowerhall/docsage/internal/logger"
	"github.com/bowerhall/docsage/internal/metrics"
	"github.com/bowerhall/docsage/internal/session"
	"github.com/bowerhall/docsage/internal/tracing"
)

func init() {
	godotenv.Load()
}

// idleGate adapts the in-flight session gate and the rate limiter to the
// sweep job.
type idleGate struct {
	store   *session.Store
	limiter *bot.RateLimiter
	idle    time.Duration
}

func (g idleGate) Sweep(context.Context) (int, error) {
	return g.store.Sweep(g.idle) + g.limiter.Sweep(), nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	shutdownTracing, err := tracing.Setup(cfg.Trace)
	if err != nil {
		logger.Fatal("failed to set up tracing", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to start pipeline", "error", err)
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	gate := session.NewStore(0)
	handler := bot.NewHandler(a.Orchestrator, a.Conversations, gate, cfg.Tuning.MaxSources)
	limiter := bot.NewRateLimiter(cfg.Tuning.RateLimitMessages, cfg.Tuning.RateLimitWindow)
	handler.SetRateLimiter(limiter)

	bots := map[string]bot.Bot{}
	var enabledProviders []string

	if cfg.Bots.Telegram.Enabled {
		b, err := bot.New(bot.Config{
			Provider:     "telegram",
			Token:        cfg.Bots.Telegram.Token,
			AllowedChats: cfg.Bots.AllowedChats,
		}, handler)
		if err != nil {
			logger.Fatal("failed to create telegram bot", "error", err)
		}

		bots["telegram"] = b
		enabledProviders = append(enabledProviders, "telegram")

		go b.Start(ctx)
	}

	if cfg.Bots.Discord.Enabled {
		b, err := bot.New(bot.Config{
			Provider: "discord",
			Token:    cfg.Bots.Discord.Token,
			GuildID:  cfg.Bots.GuildID,
		}, handler)
		if err != nil {
			logger.Fatal("failed to create discord bot", "error", err)
		}

		bots["discord"] = b
		enabledProviders = append(enabledProviders, "discord")

		go b.Start(ctx)
	}

	if len(bots) == 0 {
		logger.Fatal("no bot providers enabled, set TELEGRAM_TOKEN or DISCORD_TOKEN")
	}

	if notifyBot, ok := bots[cfg.Alerts.Provider]; ok && cfg.Alerts.ChatID != "" {
		a.Alerts.SetNotify(func(message string) {
			if err := notifyBot.Send(cfg.Alerts.ChatID, message); err != nil {
				logger.Error("alert delivery failed", "error", err, "chatID", cfg.Alerts.ChatID)
			}
		})
		logger.Info("error alerting enabled", "provider", cfg.Alerts.Provider, "chatID", cfg.Alerts.ChatID)
		a.AlertStartupIssues()
	}

	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", "timezone", cfg.Timezone)
		tz = time.UTC
	}

	gateSweep := cron.SessionSweep(cfg.Schedules.SessionSweep, idleGate{store: gate, limiter: limiter, idle: time.Hour})
	gateSweep.Name = "gate-sweep"

	scheduler := cron.New(tz)
	jobs := []cron.Job{
		cron.SessionSweep(cfg.Schedules.SessionSweep, a.Conversations),
		gateSweep,
		cron.StatsLog(cfg.Schedules.StatsLog, a.StatsSources()),
	}

	if purger, ok := a.Purger(); ok {
		jobs = append(jobs, cron.CachePurge(cfg.Schedules.CachePurge, purger))
	}

	if cfg.Storage.Enabled {
		backups, err := a.Backups(ctx)
		if err != nil {
			logger.Error("backups disabled", "error", err)
		} else {
			jobs = append(jobs, cron.Backup(cfg.Schedules.Backup, backups, a.Artifacts))
		}
	}

	for _, job := range jobs {
		if job.Schedule == "" {
			logger.Debug("job disabled", "job", job.Name)
			continue
		}
		if err := scheduler.Add(job); err != nil {
			logger.Fatal("failed to schedule job", "job", job.Name, "error", err)
		}
	}
	scheduler.Start(ctx)

	logger.Info("docsage started",
		"bots", enabledProviders,
		"llm", cfg.LLM.Provider,
		"docs", cfg.DocsDir,
		"data", cfg.DataDir,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	a.Close()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("trace flush failed", "error", err)
	}
}
