package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"RegimeSentinel/internal/collector"
	"RegimeSentinel/internal/config"
	"RegimeSentinel/internal/engine"
	"RegimeSentinel/internal/logger"
	"RegimeSentinel/internal/metrics"
	"RegimeSentinel/internal/notifier"
	"RegimeSentinel/internal/recorder"
	"RegimeSentinel/internal/replay"
	"RegimeSentinel/internal/storage"
	"RegimeSentinel/internal/tradingday"
)

// app is the fully wired process.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	registry  *prometheus.Registry
	engine    *engine.Engine
	recorder  recorder.Recorder
	telegram  *notifier.TelegramNotifier
	publisher notifier.Fanout

	closers []func() error
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(cfg *config.Config) (*app, error) {
	base, err := logger.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: base, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.log.Info().Str("backend", store.Name()).Msg("storage ready")

	guard := collector.GuardConfig{RPS: cfg.Market.RPS, Burst: cfg.Market.Burst}
	var providers []collector.Provider
	if cfg.Market.RESTBaseURL != "" {
		rest := collector.NewRESTBarsFetcher(cfg.Market.RESTBaseURL, cfg.Market.RESTAPIKey, cfg.Proxy)
		providers = append(providers, collector.NewGuarded(rest, guard, logger.Component(base, "restbars")))
	}
	yahoo := collector.NewYahooFetcher(cfg.Proxy)
	providers = append(providers, collector.NewGuarded(yahoo, guard, logger.Component(base, "yahoo")))
	col := collector.NewCollector(logger.Component(base, "collector"), cfg.Market.MaxParallel, providers...)

	var sats collector.SatelliteSource
	if !cfg.Satellite.Disabled {
		fred := collector.NewFREDSource(cfg.Satellite.FREDBaseURL, cfg.Proxy)
		fred.Transforms = cfg.Engine.SatelliteTransforms()
		sats = fred
	}

	var locker engine.Locker = engine.NewMemoryLocker()
	if cfg.Lock.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr, Password: cfg.Lock.RedisPassword})
		a.closers = append(a.closers, client.Close)
		locker = engine.NewRedisLocker(client, cfg.Lock.TTL)
	}

	a.recorder = recorder.NewNoopRecorder()
	if path := cfg.Recorder.SQLitePath; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create recorder dir: %w", err)
		}
		sr, err := recorder.NewSQLiteRecorder(path, logger.Component(base, "recorder"))
		if err != nil {
			a.log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		} else {
			a.recorder = sr
		}
	}
	a.closers = append(a.closers, a.recorder.Close)

	a.engine, err = engine.New(engine.Options{
		Params:       cfg.Engine,
		Store:        store,
		Replay:       replay.NewLoader(cfg.Replay.SeedPath, cfg.Cutover()),
		Collector:    col,
		Satellites:   sats,
		Sessions:     tradingday.New(cfg.Market.Calendar, logger.Component(base, "tradingday")),
		Locker:       locker,
		Recorder:     a.recorder,
		Metrics:      metrics.New(a.registry),
		Log:          logger.Component(base, "engine"),
		LookbackDays: cfg.Market.LookbackDays,
		FetchTimeout: cfg.Market.FetchTimeout,
	})
	if err != nil {
		return nil, err
	}

	if cfg.TelegramEnabled() {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger.Component(base, "telegram"))
		a.publisher = append(a.publisher, a.telegram)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := notifier.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		a.publisher = append(a.publisher, kp)
		a.closers = append(a.closers, kp.Close)
	}
	return a, nil
}

func (a *app) location() *time.Location {
	loc, err := time.LoadLocation(a.cfg.Schedule.Timezone)
	if err != nil {
		a.log.Warn().Err(err).Str("timezone", a.cfg.Schedule.Timezone).Msg("unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
