package main

import (
	"context"
	"database/sql"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"sous_vide/internal/config"
	"sous_vide/internal/connection"
	"sous_vide/internal/device"
	"sous_vide/internal/handlers"
	"sous_vide/internal/jobs"
	"sous_vide/internal/logger"
	"sous_vide/internal/metrics"
	"sous_vide/internal/repository"
	"sous_vide/internal/repository/db"
	"sous_vide/internal/scheduler"
	"sous_vide/internal/server"
	"sous_vide/internal/service"
	"sous_vide/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Getenv("SOUSVIDE_CONFIG_DIR"))
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	log := logger.GetWithFormat(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	conn, err := openDB(cfg, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// Validate already checked the zone name
	loc, _ := time.LoadLocation(cfg.Device.Timezone)

	repos := repository.NewRepository(conn)

	reg := metrics.NewRegistry()
	collector := metrics.New(reg)
	recorder := service.NewLinkEventRecorder(repos.EventRepo, log.Named("link"))

	link := device.NewSimulator(device.SimulatorConfig{
		Address:     cfg.Device.Address,
		Unit:        cfg.Device.Simulator.Unit,
		OpenLatency: cfg.Device.Simulator.OpenLatency,
	})
	manager := connection.NewManager(link, connection.Options{
		IdleTimeout:     cfg.Device.IdleTimeout,
		Heartbeat:       cfg.Device.Heartbeat,
		OpenTimeout:     cfg.Device.OpenTimeout,
		BreakerFailures: cfg.Device.BreakerFailures,
		BreakerCooldown: cfg.Device.BreakerCooldown,
		Observer:        connection.Observers(collector, recorder),
		Logger:          log.Named("connection"),
	})

	sched, err := scheduler.New(scheduler.Options{
		MisfireGrace: cfg.Scheduler.MisfireGrace,
		Logger:       log.Named("scheduler"),
	})
	if err != nil {
		log.Fatalw("failed to create scheduler", "err", err)
	}
	registry := jobs.NewRegistry(sched, cfg.Scheduler.RemoveCompleted)

	sinks := openSinks(cfg, collector, log)

	services := service.NewService(repos, service.Deps{
		Link:           manager,
		Scheduler:      sched,
		Registry:       registry,
		Metrics:        collector,
		Sink:           sinks,
		Location:       loc,
		CommandTimeout: cfg.Device.CommandTimeout,
		Auth: service.AuthConfig{
			SigningKey: cfg.Auth.SigningKey,
			TokenTTL:   cfg.Auth.TokenTTL,
		},
		Logger: log,
	})

	if err := services.Monitoring.Seed(context.Background()); err != nil {
		log.Warnw("could not seed status cache", "err", err)
	}

	workers := startBackground(
		sched.Run,
		func(ctx context.Context) { services.Monitoring.Run(ctx, cfg.Status.PollInterval) },
	)
	history := startBackground(recorder.Run)

	apiHandler := handlers.NewHandler(services, log.Named("http"), handlers.Options{
		AuthEnabled: cfg.Auth.Enabled,
		Metrics:     metrics.Handler(reg),
	})

	srv := &server.Server{}
	runHTTPServer(srv, cfg, apiHandler, log)
	log.Infow("server started", "port", cfg.Port, "device", cfg.Device.Name, "auth", cfg.Auth.Enabled)

	waitForShutdown(srv, cfg.HTTP.ShutdownTimeout, log)
	stopDevice(workers, manager, history, log)

	if err := sinks.Close(); err != nil {
		log.Warnw("failed to close telemetry sinks", "err", err)
	}
}

// openDB initializes the SQLite database using configuration.
func openDB(cfg *config.Config, log *logger.Logger) (*sql.DB, error) {
	path := cfg.DB.Path
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "app.db")
		path = "app.db"
	}
	return db.InitDB(path)
}

// openSinks always includes the metrics collector; MQTT and InfluxDB are
// added when enabled. A broker that cannot be reached is logged and skipped.
func openSinks(cfg *config.Config, collector *metrics.Collector, log *logger.Logger) telemetry.Multi {
	sinks := telemetry.Multi{collector}

	if cfg.MQTT.Enabled {
		mq, err := telemetry.DialMQTT(telemetry.MQTTConfig{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Username:   cfg.MQTT.Username,
			Password:   cfg.MQTT.Password,
			Topic:      cfg.MQTT.Topic,
			MaxRetries: cfg.MQTT.MaxRetries,
		}, log.Named("mqtt"))
		if err != nil {
			log.Errorw("mqtt disabled: broker unreachable", "broker", cfg.MQTT.Broker, "err", err)
		} else {
			sinks = append(sinks, mq)
		}
	}

	if cfg.InfluxDB.Enabled {
		sinks = append(sinks, telemetry.NewInfluxSink(telemetry.InfluxConfig{
			URL:    cfg.InfluxDB.URL,
			Token:  cfg.InfluxDB.Token,
			Org:    cfg.InfluxDB.Org,
			Bucket: cfg.InfluxDB.Bucket,
			Device: cfg.Device.Name,
		}, log.Named("influxdb")))
	}
	return sinks
}

// background is a group of goroutines sharing one cancellable context.
type background struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startBackground(fns ...func(ctx context.Context)) *background {
	ctx, cancel := context.WithCancel(context.Background())
	b := &background{cancel: cancel}
	for _, fn := range fns {
		fn := fn
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			fn(ctx)
		}()
	}
	return b
}

func (b *background) stop() {
	b.cancel()
	b.wg.Wait()
}

// stopDevice stops the workers that may still send commands, closes the
// link, and only then stops the history recorder so the final LINK_CLOSED
// event is written. Queued scheduler jobs are dropped.
func stopDevice(workers *background, link io.Closer, history *background, log *logger.Logger) {
	workers.stop()
	if err := link.Close(); err != nil {
		log.Warnw("failed to close device link", "err", err)
	}
	history.stop()
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, cfg *config.Config, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		timeouts := server.Timeouts{Read: cfg.HTTP.ReadTimeout, Write: cfg.HTTP.WriteTimeout}
		if err := srv.Run(cfg.Port, handler.InitRoutes(), timeouts); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown blocks until SIGINT or SIGTERM, then drains the HTTP server.
func waitForShutdown(srv *server.Server, timeout time.Duration, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	ctx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
