package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/joho/godotenv"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/medcart/storefront-gateway/internal/config"
	"github.com/medcart/storefront-gateway/internal/credentials"
	"github.com/medcart/storefront-gateway/internal/db"
	"github.com/medcart/storefront-gateway/internal/metrics"
	"github.com/medcart/storefront-gateway/internal/server"
	"github.com/medcart/storefront-gateway/internal/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

func main() {
	// Logging setup
	slog.SetDefault(jsonLogger)
	// A .env file is optional, it is only used for local development
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("loading the .env file failed", "error", err)
	}
	// Load configuration
	ch := config.NewConfigHandler()
	gwConfig, err := ch.Config()
	if err != nil {
		slog.Error("loading the configuration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("loaded config", "config", gwConfig)
	err = gwConfig.Validate()
	if err != nil {
		slog.Error("the config validation failed", "error", err)
		os.Exit(1)
	}
	// Set log level to "debug" if activated
	if gwConfig.DebugMode {
		logLevel.Set(slog.LevelDebug)
	}
	// Only the log level can change while running, everything else needs a restart
	ch.HandleChanges(func(c config.Config, err error) {
		if err != nil {
			slog.Error("reloading the configuration failed", "error", err)
			return
		}
		if c.DebugMode {
			logLevel.Set(slog.LevelDebug)
		} else {
			logLevel.Set(slog.LevelInfo)
		}
	})
	ch.Watch()
	// Setup
	e := echo.New()
	e.Pre(middleware.RequestID(), middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	// The banner and the port do not respect the logger formatting we set below so we remove them
	// the port will be logged further down when the server starts.
	e.HideBanner = true
	e.HidePort = true
	// Sentry has to come before the handlers so that they can find the hub in the context
	if gwConfig.Monitoring.Sentry.Enabled {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              string(gwConfig.Monitoring.Sentry.Dsn),
			TracesSampleRate: gwConfig.Monitoring.Sentry.SampleRate,
			Environment:      gwConfig.Monitoring.Sentry.Environment,
		})
		if err != nil {
			slog.Error("sentry initialization failed", "error", err)
		}
		defer sentry.Flush(2 * time.Second)
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}
	// Rate limiting
	if gwConfig.Server.RateLimits.Enabled {
		e.Use(middleware.RateLimiter(
			middleware.NewRateLimiterMemoryStoreWithConfig(
				middleware.RateLimiterMemoryStoreConfig{
					Rate:      rate.Limit(gwConfig.Server.RateLimits.Rate),
					Burst:     gwConfig.Server.RateLimits.Burst,
					ExpiresIn: 3 * time.Minute,
				}),
		),
		)
	}
	// CORS, the session cookies only travel with credentialed requests
	if len(gwConfig.Server.AllowOrigin) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     gwConfig.Server.AllowOrigin,
			AllowCredentials: true,
		}))
	}
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	// Version endpoint
	buildInfo, ok := debug.ReadBuildInfo()
	version := ""
	if ok && buildInfo != nil {
		version = buildInfo.Main.Version
	}
	e.GET("/version", func(c echo.Context) error {
		return c.String(http.StatusOK, version)
	})
	// Metrics
	gwMetrics := metrics.NewGatewayMetrics()
	if gwConfig.Monitoring.Prometheus.Enabled {
		err = gwMetrics.Register(prometheus.DefaultRegisterer)
		if err != nil {
			slog.Error("registering the gateway metrics failed", "error", err)
			os.Exit(1)
		}
		e.Use(echoprometheus.NewMiddleware("storefront_gateway"))
		go func() {
			metricsServer := echo.New()
			metricsServer.HideBanner = true
			metricsServer.HidePort = true
			metricsServer.GET("/metrics", echoprometheus.NewHandler())
			err := metricsServer.Start(fmt.Sprintf(":%d", gwConfig.Monitoring.Prometheus.Port))
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("prometheus server failed to start", "error", err)
				os.Exit(1)
			}
		}()
	}
	// Initialize the db adapter that holds the durable credentials
	dbOptions := []db.RedisAdapterOption{
		db.WithRedisConfig(gwConfig.Redis),
		db.WithTTL(gwConfig.Credentials.DurableTTL()),
	}
	if gwConfig.Credentials.Encryption.Enabled && gwConfig.Credentials.Encryption.SecretKey != "" {
		slog.Info("redis encryption is enabled")
		dbOptions = append(dbOptions, db.WithSealingKey(string(gwConfig.Credentials.Encryption.SecretKey)))
	}
	dbAdapter, err := db.NewRedisAdapter(dbOptions...)
	if err != nil {
		slog.Error("DB adapter initialization failed", "error", err)
		os.Exit(1)
	}
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = dbAdapter.Ping(pingCtx)
	cancelPing()
	if err != nil {
		slog.Error("redis is not reachable", "error", err)
		os.Exit(1)
	}
	// Create session store
	sessionStore, err := sessions.NewSessionStore(
		sessions.WithConfig(gwConfig.Sessions),
		sessions.WithDurableTiers(func(deviceID string) credentials.Tier { return dbAdapter.Tier(deviceID) }),
		sessions.WithMetrics(gwMetrics),
	)
	if err != nil {
		slog.Error("failed to initialize sessions", "error", err)
		os.Exit(1)
	}
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	sweeper, err := sessionStore.GetScheduler(sweepCtx)
	if err != nil {
		slog.Error("failed to initialize the session sweeper", "error", err)
		os.Exit(1)
	}
	sweeper.StartAsync()
	defer sweeper.Stop()
	// Initialize the gateway handlers
	gwServer, err := server.NewServer(
		server.WithAPIConfig(gwConfig.API),
		server.WithHTTPClient(&http.Client{Timeout: gwConfig.API.RequestTimeout()}),
		server.WithSessionStore(sessionStore),
		server.WithMetrics(gwMetrics),
	)
	if err != nil {
		slog.Error("gateway handlers initialization failed", "error", err)
		os.Exit(1)
	}
	gwServer.RegisterHandlers(e, gwConfig.Server.BasePath, commonMiddlewares...)
	// Start server
	address := fmt.Sprintf("%s:%d", gwConfig.Server.Host, gwConfig.Server.Port)
	slog.Info("starting the server on address " + address)
	go func() {
		err := e.Start(address)
		if err != nil && err != http.ErrServerClosed {
			slog.Error("shutting down the server gracefuly failed", "error", err)
			os.Exit(1)
		}
	}()
	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 10 seconds.
	// Use a buffered channel to avoid missing signals as recommended for signal.Notify
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	slog.Info("received signal to shut down the server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		slog.Error("shutting down the server gracefully failed", "error", err)
		os.Exit(1)
	}
}
