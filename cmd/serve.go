package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasmota_mqtt/internal/config"
	"tasmota_mqtt/internal/handlers"
	"tasmota_mqtt/internal/logger"
	"tasmota_mqtt/internal/notify"
	"tasmota_mqtt/internal/printer"
	"tasmota_mqtt/internal/registry"
	"tasmota_mqtt/internal/repository"
	"tasmota_mqtt/internal/repository/db"
	"tasmota_mqtt/internal/server"
	"tasmota_mqtt/internal/service"
	"tasmota_mqtt/internal/transport"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the MQTT transport and the idle shutdown engine",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	log := logger.Get(cfg.Log.Level)

	conn, err := openDB(cfg, log)
	if err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()
	repos := repository.NewRepository(conn)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, err := registry.Load(ctx, repos.SettingsRepo)
	if err != nil {
		return err
	}

	hub := notify.NewHub(log)
	sim := printer.NewSimulator(log)

	// without a broker the messenger stays a nil interface
	var (
		messenger service.Messenger
		mq        *transport.MQTT
	)
	if cfg.MQTT.Broker != "" {
		mq = transport.New(transport.Config{
			Broker:   cfg.MQTT.Broker,
			User:     cfg.MQTT.User,
			Password: cfg.MQTT.Password,
			ClientID: cfg.MQTT.ClientID,
			QoS:      cfg.MQTT.QoS,
			Timeout:  cfg.MQTT.Timeout,
		}, log)
		messenger = mq
	} else {
		log.Warnw("mqtt.broker not set; relays cannot be switched")
	}

	services := service.NewService(service.Deps{
		Registry:  reg,
		Messenger: messenger,
		Printer:   sim,
		Notifier:  hub,
		Repos:     repos,
		Auth:      service.AuthConfig{SigningKey: cfg.Auth.SigningKey, TokenTTL: cfg.Auth.TokenTTL},
		Log:       log,
	})

	sim.SetEventSink(func(event string, payload map[string]any) {
		if err := services.HandleEvent(ctx, event, payload); err != nil {
			log.Warnw("printer_event_failed", "event", event, "err", err)
		}
	})

	if mq != nil {
		mq.SetOnConnect(services.Core.Subscriptions.Resubscribe)
		if err := mq.Connect(); err != nil {
			// paho keeps retrying; subscriptions are replayed once it connects
			log.Warnw("mqtt_connect_failed", "broker", cfg.MQTT.Broker, "err", err)
		}
		defer mq.Close()
	}

	if err := services.HandleEvent(ctx, service.EventStartup, nil); err != nil {
		log.Warnw("startup_event_failed", "err", err)
	}

	go sim.Run(ctx, cfg.PrinterTick)

	srv := server.New(server.Options{
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	})
	runHTTPServer(srv, cfg.Port, handlers.NewHandler(services, hub, log).AllowOrigins(cfg.HTTP.AllowedOrigins...), log)

	waitForShutdown(cancel, srv, cfg.HTTP.ShutdownTimeout, log)

	// stop the idle engine and wait for turn-off workers
	if err := services.HandleEvent(context.Background(), service.EventShutdown, nil); err != nil {
		log.Warnw("shutdown_event_failed", "err", err)
	}
	return nil
}

// openDB initializes the SQLite database using configuration.
func openDB(cfg config.Config, log *logger.Logger) (*sql.DB, error) {
	dbPath := cfg.DB.Path
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "app.db")
		dbPath = "app.db"
	}
	return db.InitDB(dbPath)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		log.Infow("http_listen", "port", port)
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, timeout time.Duration, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
