package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dealwatch/internal/alerting"
	"dealwatch/internal/config"
	"dealwatch/internal/engine"
	"dealwatch/internal/scheduler"
	"dealwatch/internal/source"
	"dealwatch/internal/storage"
	"dealwatch/internal/watchlist"
)

// ErrNotFound indicates the source has no record for a product key.
var ErrNotFound = errors.New("service: product not found at source")

// Service orchestrates the watch set, price fetching, and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	store     watchlist.Store
	fetcher   source.Fetcher
	notifier  alerting.Notifier
	auditor   storage.AlertStore
	locker    storage.AdvisoryLocker
	logger    zerolog.Logger

	defaultCurrency string
	batchSize       int
	batchDelay      time.Duration
	lockKey         int64
	alertsOn        bool

	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs the watcher service.
func New(cfg *config.Config, sched *scheduler.Scheduler, store watchlist.Store, fetcher source.Fetcher, notifier alerting.Notifier, auditor storage.AlertStore, logger zerolog.Logger) *Service {
	batchSize := cfg.Source.BatchSize
	if batchSize <= 0 || batchSize > source.BatchLimit {
		batchSize = source.BatchLimit
	}

	var locker storage.AdvisoryLocker
	if l, ok := auditor.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:       sched,
		store:           store,
		fetcher:         fetcher,
		notifier:        notifier,
		auditor:         auditor,
		locker:          locker,
		logger:          logger.With().Str("component", "service").Logger(),
		defaultCurrency: cfg.Source.DefaultCurrency,
		batchSize:       batchSize,
		batchDelay:      cfg.Scheduler.BatchDelay,
		lockKey:         cfg.Scheduler.AdvisoryLockKey,
		alertsOn:        cfg.Alerting.Enabled,
		sleep:           sleepContext,
	}
}

// Run begins the recurring price-check loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.RunCycle)
}

// RunCycle executes one full pass over the watch set: load, batched
// fetch and evaluation, a single save, then alert dispatch.
func (s *Service) RunCycle(ctx context.Context) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	list, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}
	if list.Len() == 0 {
		s.logger.Debug().Msg("watchlist empty; nothing to check")
		return nil
	}

	s.logger.Info().Int("products", list.Len()).Msg("checking prices")

	keys := list.Keys()
	var alerts []engine.Alert

	for i := 0; i < len(keys); i += s.batchSize {
		if i > 0 && s.batchDelay > 0 {
			if err := s.sleep(ctx, s.batchDelay); err != nil {
				return err
			}
		}

		end := i + s.batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[i:end]

		records, err := s.fetcher.FetchPrices(ctx, batch)
		if err != nil {
			if errors.Is(err, source.ErrRateLimited) {
				s.logger.Warn().Int("keys", len(batch)).Msg("batch rate limited; retrying next cycle")
			} else {
				s.logger.Error().Err(err).Int("keys", len(batch)).Msg("batch fetch failed; baselines kept")
			}
			continue
		}

		for _, key := range batch {
			rec, ok := records[key]
			if !ok {
				// Fetch miss: the stored baseline survives untouched.
				continue
			}
			entry := list.Games[key]
			if entry == nil {
				continue
			}

			updated, drops := engine.Evaluate(entry, rec, s.defaultCurrency)
			list.Games[key] = updated
			if len(drops) > 0 {
				alerts = append(alerts, engine.BuildAlert(key, updated, drops))
			}
		}
	}

	// One save for the whole cycle. Failing here is fatal: the
	// in-memory advance is dropped rather than alerting on state that
	// was never persisted.
	if err := s.store.Save(list); err != nil {
		return fmt.Errorf("save watchlist: %w", err)
	}

	s.dispatch(ctx, alerts)
	return nil
}

func (s *Service) dispatch(ctx context.Context, alerts []engine.Alert) {
	if len(alerts) == 0 {
		return
	}
	if !s.alertsOn || s.notifier == nil {
		s.logger.Info().Int("alerts", len(alerts)).Msg("alerting disabled; drops detected but not dispatched")
		return
	}

	for _, alert := range alerts {
		if s.auditor != nil {
			if _, err := s.auditor.InsertAlert(ctx, alert); err != nil {
				s.logger.Error().Err(err).Str("key", alert.Key).Msg("failed to persist alert record")
			}
		}
		if err := s.notifier.Notify(ctx, alert); err != nil {
			s.logger.Error().Err(err).Str("key", alert.Key).Msg("failed to dispatch alert")
			continue
		}
		s.logger.Info().Str("key", alert.Key).Str("name", alert.Name).Int("drops", len(alert.Drops)).Msg("price drop alert sent")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
