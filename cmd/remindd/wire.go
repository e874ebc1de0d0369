package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sandeepkv93/remindd/internal/assist"
	"github.com/sandeepkv93/remindd/internal/cascade"
	"github.com/sandeepkv93/remindd/internal/config"
	"github.com/sandeepkv93/remindd/internal/ledger"
	"github.com/sandeepkv93/remindd/internal/metrics"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/notify"
	"github.com/sandeepkv93/remindd/internal/scheduler"
	"github.com/sandeepkv93/remindd/internal/storage"
)

type app struct {
	repo    *storage.SQLiteRepository
	metrics *metrics.Metrics
	emitter *notify.Emitter
	cascade *cascade.Cascade
	engine  *scheduler.Engine
	closers []func() error
}

type wireOptions struct {
	// console keeps the terminal bell quiet while the alert console owns
	// the screen.
	console     bool
	onNarrative func(taskID, narrative string)
}

// buildApp opens the store, applies migrations and wires the engine with the
// sinks and marker backend cfg selects.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts wireOptions) (*app, error) {
	repo, err := storage.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	a := &app{repo: repo, metrics: metrics.New()}
	a.closers = append(a.closers, repo.Close)
	if err := storage.MigrateUp(repo.DB()); err != nil {
		_ = a.close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	markers, err := a.markerStore(ctx, cfg.MarkerStore)
	if err != nil {
		_ = a.close()
		return nil, err
	}

	sinks, err := a.sinks(cfg.Notifications, logger)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	var sound notify.SoundPlayer
	if cfg.Notifications.Sound && !opts.console {
		sound = notify.BellPlayer{W: os.Stdout}
	}
	a.emitter = notify.NewEmitter(notify.Options{
		Permission: notify.Permission(cfg.Notifications.Permission),
		Sinks:      sinks,
		Sound:      sound,
		Logger:     logger.Named("notify"),
	})

	tasks := model.NewTaskSet(nil)
	ccOpts := cascade.Options{
		Logger:      logger.Named("cascade"),
		Metrics:     a.metrics,
		OnNarrative: opts.onNarrative,
	}
	if cfg.Assist.Endpoint != "" {
		ccOpts.Summarizer = assist.NewClient(cfg.Assist.Endpoint, cfg.Assist.Timeout)
	}
	a.cascade = cascade.New(tasks, repo, ccOpts)

	a.engine = scheduler.NewEngine(repo, tasks, a.emitter, a.cascade, scheduler.Options{
		Logger:         logger.Named("scheduler"),
		Metrics:        a.metrics,
		Ledger:         ledger.New(markers, logger.Named("ledger")),
		PollInterval:   cfg.PollInterval,
		BehaviorSample: cfg.BehaviorSample,
		DefaultDND:     cfg.DefaultDND,
	})
	return a, nil
}

func (a *app) markerStore(ctx context.Context, mc config.MarkerStoreConfig) (ledger.MarkerStore, error) {
	switch mc.Backend {
	case config.BackendMemory:
		return ledger.NewMemoryMarkers(), nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     mc.RedisAddr,
			Password: mc.RedisPassword,
			DB:       mc.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping %s: %w", mc.RedisAddr, err)
		}
		a.closers = append(a.closers, rdb.Close)
		return ledger.NewRedisMarkers(rdb, mc.Prefix), nil
	default:
		return a.repo.Markers(), nil
	}
}

func (a *app) sinks(nc config.NotificationsConfig, logger *zap.Logger) ([]notify.Sink, error) {
	var out []notify.Sink
	if nc.Desktop {
		out = append(out, notify.NewDesktopSink())
	}
	if nc.AMQPURL != "" {
		sink, err := notify.DialAMQP(nc.AMQPURL, nc.AMQPExchange)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sink.Close)
		logger.Info("publishing reminders to amqp", zap.String("exchange", nc.AMQPExchange))
		out = append(out, sink)
	}
	return out, nil
}

// shutdown stops the engine, waits for background writes and narratives and
// releases every connection.
func (a *app) shutdown() error {
	a.engine.Stop()
	a.cascade.Wait()
	return a.close()
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
