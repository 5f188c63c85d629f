package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gatewright/passage"
	"github.com/gatewright/passage/internal/logging"
	"github.com/gatewright/passage/pkg/adapters/file"
	httpAdapter "github.com/gatewright/passage/pkg/adapters/http"
	"github.com/gatewright/passage/pkg/adapters/memory"
	"github.com/gatewright/passage/pkg/adapters/redis"
	"github.com/gatewright/passage/pkg/config"
	"github.com/gatewright/passage/pkg/observability"
	"github.com/gatewright/passage/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// serveConfig is read from the environment. Graphs and guards come from
// the YAML configuration file; everything operational lives here.
type serveConfig struct {
	Addr            string        `env:"PASSAGE_ADDR" envDefault:":8080"`
	Store           string        `env:"PASSAGE_STORE" envDefault:"memory"`
	FileDir         string        `env:"PASSAGE_FILE_DIR" envDefault:".passage/entities"`
	RedisAddr       string        `env:"PASSAGE_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string        `env:"PASSAGE_REDIS_PASSWORD"`
	RedisDB         int           `env:"PASSAGE_REDIS_DB" envDefault:"0"`
	LogLevel        string        `env:"PASSAGE_LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"PASSAGE_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Compiles the workflow configuration and exposes the engine as a JSON API, with Prometheus metrics on /metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")

		var cfg serveConfig
		if err := env.Parse(&cfg); err != nil {
			fmt.Printf("Error reading environment: %v\n", err)
			os.Exit(1)
		}

		logger := logging.New(parseLevel(cfg.LogLevel))

		compiled, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		for _, warning := range compiled.Lint() {
			logger.Warn("configuration lint", "finding", warning)
		}

		store, err := buildStore(cfg)
		if err != nil {
			fmt.Printf("Error initializing store: %v\n", err)
			os.Exit(1)
		}

		metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
		opts := append(compiled.Options(),
			passage.WithLogger(logger),
			passage.WithLifecycleHooks(metrics.Hooks()),
		)
		engine, err := passage.New(store, opts...)
		if err != nil {
			fmt.Printf("Error initializing engine: %v\n", err)
			os.Exit(1)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/", httpAdapter.NewHandler(engine, httpAdapter.WithLogger(logger)))

		srv := &http.Server{
			Addr:    cfg.Addr,
			Handler: mux,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("starting server",
				"addr", srv.Addr, "store", cfg.Store, "graphs", engine.GraphNames())
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			logger.Info("starting shutdown", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "timeout", cfg.ShutdownTimeout, "err", err)
				if err := srv.Close(); err != nil {
					logger.Error("error killing server", "err", err)
				}
			}
			logger.Info("server stopped gracefully")
		}
	},
}

// buildStore selects the entity store backend.
func buildStore(cfg serveConfig) (ports.Store, error) {
	switch cfg.Store {
	case "memory":
		return memory.NewStore(), nil
	case "file":
		return file.NewStore(cfg.FileDir), nil
	case "redis":
		return redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q (want memory, file or redis)", cfg.Store)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
