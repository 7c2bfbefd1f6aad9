// Package app assembles the healthmon components from settings. The CLI
// commands use it both for the long running daemon and for one-shot reports.
package app

import (
	"context"
	"time"

	"github.com/tphakala/healthmon/internal/alerting"
	"github.com/tphakala/healthmon/internal/api"
	"github.com/tphakala/healthmon/internal/buildinfo"
	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/datastore"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/logger"
	"github.com/tphakala/healthmon/internal/maintenance"
	"github.com/tphakala/healthmon/internal/monitor"
	"github.com/tphakala/healthmon/internal/mqtt"
	"github.com/tphakala/healthmon/internal/notification"
	"github.com/tphakala/healthmon/internal/observability"
	"github.com/tphakala/healthmon/internal/telemetry"
)

const (
	latencyProbeTimeout = 5 * time.Second
	shutdownTimeout     = 15 * time.Second
)

// GetLogger returns the app package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}

// Core is the set of components needed to take a health reading. It owns
// the database and cache connections.
type Core struct {
	Settings  *conf.Settings
	Store     *datastore.Store
	Evaluator *monitor.HealthEvaluator
	Predictor *monitor.PerformancePredictor
	Collector *monitor.MetricsCollector
	Metrics   *observability.Metrics

	redis *monitor.RedisProbe
}

// NewCore opens the datastore and cache and builds the collector stack
func NewCore(settings *conf.Settings) (*Core, error) {
	m, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategorySystem).
			Build()
	}

	store, err := datastore.Open(&settings.Database)
	if err != nil {
		return nil, err
	}

	evaluator, err := monitor.NewHealthEvaluator(settings.Monitoring.Thresholds, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	predictor := monitor.NewPerformancePredictor(store, settings.Monitoring.MaxConcurrentJobs)

	c := &Core{
		Settings:  settings,
		Store:     store,
		Evaluator: evaluator,
		Predictor: predictor,
		Metrics:   m,
	}

	var cache monitor.Pinger
	if client := monitor.NewRedisClient(&settings.Cache); client != nil {
		c.redis = monitor.NewRedisProbe(client)
		cache = c.redis
	}

	collectorOpts := []monitor.CollectorOption{monitor.WithCollectorMetrics(m.Monitor)}
	if settings.Monitoring.StoreSnapshots {
		collectorOpts = append(collectorOpts, monitor.WithSnapshotStore(store))
	}
	c.Collector = monitor.NewMetricsCollector(
		monitor.NewSystemResourceProbe(settings.Monitoring.DiskPaths),
		monitor.NewConnectivity(store, cache),
		store,
		evaluator,
		predictor,
		collectorOpts...,
	)

	return c, nil
}

// Close releases the database and cache connections
func (c *Core) Close() error {
	var errs []error
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	errs = append(errs, c.Store.Close())
	return errors.Join(errs...)
}

// Daemon is the full monitoring service
type Daemon struct {
	*Core

	Engine     *alerting.Engine
	Dispatcher *notification.Dispatcher
	Monitor    *monitor.SystemMonitor
	Scheduler  *maintenance.Scheduler
	Server     *api.Server

	build      *buildinfo.Context
	mqttClient mqtt.Client
	sentry     bool
	log        logger.Logger
}

// NewDaemon builds every component of the monitoring service. Nothing is
// started until Run.
func NewDaemon(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) (*Daemon, error) {
	d := &Daemon{build: build, log: GetLogger()}

	enabled, err := telemetry.InitSentry(&settings.Sentry, telemetry.Options{Release: build.Release()})
	if err != nil {
		d.log.Warn("error telemetry disabled", logger.Error(err))
	}
	d.sentry = enabled

	core, err := NewCore(settings)
	if err != nil {
		d.closeTelemetry()
		return nil, err
	}
	d.Core = core

	if err := d.buildAlerting(ctx); err != nil {
		d.closeAll()
		return nil, err
	}
	if err := d.buildMonitor(); err != nil {
		d.closeAll()
		return nil, err
	}
	if err := d.buildMaintenance(); err != nil {
		d.closeAll()
		return nil, err
	}
	if settings.WebServer.Enabled {
		server, err := api.NewServer(api.ConfigFromSettings(&settings.WebServer),
			api.WithMetrics(d.Metrics),
			api.WithMonitor(d.Collector, d.Evaluator, d.Predictor, d.Monitor),
			api.WithAlerts(d.Engine))
		if err != nil {
			d.closeAll()
			return nil, err
		}
		d.Server = server
	}

	return d, nil
}

func (d *Daemon) buildAlerting(ctx context.Context) error {
	settings := d.Settings

	var sink notification.Sink
	if settings.MQTT.Enabled {
		client, err := mqtt.NewClient(mqtt.ConfigFromSettings(&settings.MQTT))
		if err != nil {
			return err
		}
		if err := client.Connect(ctx); err != nil {
			// the client keeps retrying in the background; publishes fail until then
			d.log.Warn("mqtt broker unreachable at startup", logger.Error(err))
		}
		d.mqttClient = client
		sink = mqtt.NewAlertSink(client, settings.MQTT.Topic)
	}

	d.Dispatcher = notification.NewDispatcherFromSettings(&settings.Notification, sink, d.Metrics.Notification)

	engine, err := alerting.NewEngine(alerting.ConfigFromSettings(&settings.Alerting), d.Dispatcher,
		alerting.WithMetrics(d.Metrics.Alerting))
	if err != nil {
		return errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}
	d.Engine = engine
	return nil
}

func (d *Daemon) buildMonitor() error {
	opts := []monitor.MonitorOption{monitor.WithMonitorMetrics(d.Metrics.Monitor)}
	if url := d.Settings.Monitoring.AIServiceURL; url != "" {
		opts = append(opts, monitor.WithLatencyProbe(monitor.NewHTTPLatencyProbe(url, latencyProbeTimeout)))
	}

	m, err := monitor.NewSystemMonitor(&d.Settings.Monitoring, d.Collector, d.Evaluator, d.Engine, opts...)
	if err != nil {
		return err
	}
	d.Monitor = m
	return nil
}

func (d *Daemon) buildMaintenance() error {
	opts := []maintenance.Option{
		maintenance.WithAlertCleanup(d.Engine, d.Settings.Alerting.RetentionDays),
	}
	if d.Settings.Monitoring.StoreSnapshots {
		opts = append(opts, maintenance.WithSnapshotPruning(d.Store, d.Settings.Monitoring.SnapshotRetention))
	}
	s, err := maintenance.New(d.Settings.Maintenance.Schedule, opts...)
	if err != nil {
		return err
	}
	d.Scheduler = s
	return nil
}

// Run starts the monitor, the maintenance schedule and the admin server,
// then blocks until ctx is cancelled or the server fails. Everything is shut
// down before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	d.log.Info("starting healthmon",
		logger.String("version", d.build.Version()),
		logger.String("database", d.Store.Driver()),
		logger.Any("channels", d.Dispatcher.Channels()))

	d.Monitor.Start()
	if err := d.Scheduler.Start(); err != nil {
		d.shutdown()
		return err
	}

	var serverErr <-chan error
	if d.Server != nil {
		d.Server.Start()
		serverErr = d.Server.Err()
	}

	var runErr error
	select {
	case <-ctx.Done():
		d.log.Info("shutdown signal received")
	case runErr = <-serverErr:
	}

	if err := d.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown stops components in reverse dependency order
func (d *Daemon) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if d.Server != nil {
		errs = append(errs, d.Server.Shutdown(ctx))
	}
	errs = append(errs, d.Scheduler.Stop(ctx))
	errs = append(errs, d.Monitor.Stop())
	errs = append(errs, d.Dispatcher.Close(ctx))
	d.closeAll()

	err := errors.Join(errs...)
	if err != nil {
		d.log.Warn("shutdown completed with errors", logger.Error(err))
	} else {
		d.log.Info("shutdown complete")
	}
	return err
}

func (d *Daemon) closeAll() {
	if d.mqttClient != nil {
		d.mqttClient.Disconnect()
	}
	if d.Core != nil {
		if err := d.Core.Close(); err != nil {
			d.log.Warn("error closing connections", logger.Error(err))
		}
	}
	d.closeTelemetry()
}

func (d *Daemon) closeTelemetry() {
	if d.sentry {
		telemetry.Flush(2 * time.Second)
	}
}
