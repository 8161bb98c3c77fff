package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"dealwatch/internal/alerting"
	"dealwatch/internal/config"
	"dealwatch/internal/scheduler"
	"dealwatch/internal/service"
	"dealwatch/internal/source"
	"dealwatch/internal/storage"
	"dealwatch/internal/watchlist"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newStore() watchlist.Store {
	return watchlist.NewFileStore(a.Config.Watchlist.Path)
}

func (a *App) newFetcher() source.Fetcher {
	return source.NewClient(source.Options{
		BaseURL:   a.Config.Source.BaseURL,
		APIKey:    a.Config.Source.APIKey,
		Region:    a.Config.Source.Region,
		Timeout:   a.Config.Source.RequestTimeout,
		RetryMax:  a.Config.Source.RetryMax,
		UserAgent: a.Config.Source.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	var sinks []alerting.Notifier
	for _, channel := range a.Config.Alerting.Channels {
		switch channel {
		case "discord":
			if a.Config.Alerting.Discord.Enabled {
				sinks = append(sinks, alerting.NewDiscordNotifier(
					a.Config.Alerting.Discord.WebhookURL,
					a.Config.Source.RequestTimeout,
					a.Logger,
				))
			}
		case "telegram":
			if a.Config.Alerting.Telegram.Enabled {
				cfg := a.Config.Alerting.Telegram
				sinks = append(sinks, alerting.NewTelegramNotifier(
					cfg.BotToken, cfg.ChatID, cfg.APIBase,
					a.Config.Source.RequestTimeout,
					a.Logger,
				))
			}
		default:
			a.Logger.Warn().Str("channel", channel).Msg("unknown alert channel; ignoring")
		}
	}

	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return alerting.NewMulti(sinks...)
	}
}

func (a *App) openAudit(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newCommandService builds a service handle for one-shot commands; the
// scheduler, notifiers, and audit log stay out of the command path.
func (a *App) newCommandService() *service.Service {
	return service.New(a.Config, nil, a.newStore(), a.newFetcher(), nil, nil, a.Logger)
}

// Run executes the long-running watcher.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	audit, closeAudit, err := a.openAudit(ctx)
	if err != nil {
		return err
	}
	if audit == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert audit log disabled")
	}
	if closeAudit != nil {
		defer closeAudit()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	notifier := a.newNotifier()
	if notifier == nil && a.Config.Alerting.Enabled {
		a.Logger.Warn().Msg("no alert channel configured; drops will be logged only")
	}

	var auditStore storage.AlertStore
	if audit != nil {
		auditStore = audit
	}

	svc := service.New(a.Config, sched, a.newStore(), a.newFetcher(), notifier, auditStore, a.Logger)

	a.Logger.Info().
		Dur("interval", a.Config.Scheduler.Interval).
		Str("watchlist", a.Config.Watchlist.Path).
		Msg("starting price watcher")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watcher terminated with error")
		return err
	}

	a.Logger.Info().Msg("price watcher stopped")
	return nil
}

// AlertsOptions configure the alerts command.
type AlertsOptions struct {
	Limit          int
	PruneOlderThan time.Duration
}

// SimulateOptions describe a fabricated drop for notifier testing.
type SimulateOptions struct {
	Key     string
	Name    string
	Channel string
	Old     string
	New     string
}
