// Package app assembles the synchronization server from its parts: config
// from the environment, the logging router, durable storage, and the HTTP
// surface.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/sync/errgroup"

	server "cassino/server"
	servernet "cassino/server/internal/net"
	"cassino/server/internal/journal"
	"cassino/server/internal/observability"
	"cassino/server/internal/rules"
	"cassino/server/internal/storage/sqlite"
	"cassino/server/internal/telemetry"
	"cassino/server/logging"
	"cassino/server/logging/lifecycle"
	loggingSinks "cassino/server/logging/sinks"
)

// Config is parsed from the environment at startup.
type Config struct {
	Addr                 string        `env:"CASSINO_ADDR" envDefault:":8080"`
	DatabasePath         string        `env:"CASSINO_DB_PATH" envDefault:"cassino.db"`
	ClientDir            string        `env:"CASSINO_CLIENT_DIR"`
	SnapshotInterval     uint64        `env:"CASSINO_SNAPSHOT_INTERVAL" envDefault:"10"`
	SnapshotRetention    int           `env:"CASSINO_SNAPSHOT_RETENTION" envDefault:"5"`
	MaxVersionGap        uint64        `env:"CASSINO_MAX_VERSION_GAP" envDefault:"10"`
	ConflictWindowMillis int64         `env:"CASSINO_CONFLICT_WINDOW_MS" envDefault:"100"`
	CompressionThreshold int           `env:"CASSINO_COMPRESSION_THRESHOLD" envDefault:"1024"`
	LogSinks             []string      `env:"CASSINO_LOG_SINKS" envSeparator:"," envDefault:"console"`
	LogJSONPath          string        `env:"CASSINO_LOG_JSON_PATH" envDefault:"cassino-events.ndjson"`
	EnablePprofTrace     bool          `env:"CASSINO_ENABLE_PPROF_TRACE"`
	ShutdownTimeout      time.Duration `env:"CASSINO_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func (c Config) serverConfig() server.Config {
	sc := server.DefaultConfig()
	sc.SnapshotInterval = c.SnapshotInterval
	sc.SnapshotRetention = c.SnapshotRetention
	sc.MaxVersionGap = c.MaxVersionGap
	sc.ConflictWindowMillis = c.ConflictWindowMillis
	sc.CompressionThreshold = c.CompressionThreshold
	return sc
}

// Run brings the server up and blocks until ctx is cancelled or the
// listener fails.
func Run(ctx context.Context) error {
	cfg, err := Load()
	if err != nil {
		return err
	}

	fallbackLogger := log.Default()

	router, err := buildRouter(cfg, fallbackLogger)
	if err != nil {
		return fmt.Errorf("construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			fallbackLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer store.Close()

	eventStore := journal.New(store,
		journal.WithSnapshotInterval(cfg.SnapshotInterval),
		journal.WithSnapshotRetention(cfg.SnapshotRetention),
		journal.WithLogger(telemetry.WrapLogger(fallbackLogger)),
	)

	serverCfg := cfg.serverConfig()
	counters := server.NewTelemetry()
	hub := server.NewHub(serverCfg, router)
	broadcaster := server.NewBroadcastController(hub, serverCfg, router, counters)
	synchronizer := server.NewSynchronizer(serverCfg, eventStore, rules.NewCassinoEngine(), broadcaster, router, counters)

	handler := servernet.NewHTTPHandler(hub, synchronizer, servernet.HTTPHandlerConfig{
		ClientDir:     cfg.ClientDir,
		Logger:        fallbackLogger,
		Observability: observability.Config{EnablePprofTrace: cfg.EnablePprofTrace},
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lifecycle.ServerReady(ctx, router, cfg.Addr)
		fallbackLogger.Printf("server listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		hub.RunReaper(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		lifecycle.ServerStopping(context.Background(), router, "shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildRouter(cfg Config, fallback *log.Logger) (*logging.Router, error) {
	logConfig := logging.DefaultConfig()
	logConfig.EnabledSinks = cfg.LogSinks

	var named []logging.NamedSink
	for _, name := range cfg.LogSinks {
		switch name {
		case "console":
			named = append(named, logging.NamedSink{
				Name: name,
				Sink: loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console),
			})
		case "json":
			file, err := os.OpenFile(cfg.LogJSONPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open json log %s: %w", cfg.LogJSONPath, err)
			}
			named = append(named, logging.NamedSink{
				Name: name,
				Sink: loggingSinks.NewJSON(file, logConfig.JSON.FlushInterval),
			})
		case "memory":
			named = append(named, logging.NamedSink{
				Name: name,
				Sink: loggingSinks.NewMemorySink(),
			})
		default:
			fallback.Printf("unknown log sink %q, skipping", name)
		}
	}

	return logging.NewRouter(logging.SystemClock{}, logConfig, named)
}
