package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "kidshelf/discovery/internal/api/http"
	"kidshelf/discovery/internal/app"
	"kidshelf/discovery/internal/metrics"
	"kidshelf/discovery/internal/providers/books"
	"kidshelf/discovery/internal/providers/videos"
	"kidshelf/discovery/internal/search"
	"kidshelf/discovery/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "discovery")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "discovery"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.String("booksEndpoint", cfg.BooksEndpoint),
		slog.String("videosEndpoint", cfg.VideosEndpoint),
		slog.Bool("hasBooksKey", cfg.BooksAPIKey != ""),
		slog.Bool("hasVideosKey", cfg.VideosAPIKey != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("cacheTTL", cfg.CacheTTL),
	)
	if cfg.BooksAPIKey == "" {
		logger.Warn("books api key not configured, book searches will run unauthenticated")
	}
	if cfg.VideosAPIKey == "" {
		logger.Warn("videos api key not configured, video searches will fail upstream")
	}

	redisClient := buildRedisClient(cfg, logger)

	booksClient := books.NewClient(books.Config{
		Endpoint:  cfg.BooksEndpoint,
		APIKey:    cfg.BooksAPIKey,
		UserAgent: cfg.UserAgent,
		Client:    &http.Client{Timeout: cfg.UpstreamTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		RateLimit: cfg.BooksRateLimit,
		Burst:     cfg.BooksBurst,
	})
	videosClient := videos.NewClient(videos.Config{
		Endpoint:  cfg.VideosEndpoint,
		APIKey:    cfg.VideosAPIKey,
		UserAgent: cfg.UserAgent,
		Client:    &http.Client{Timeout: cfg.UpstreamTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		RateLimit: cfg.VideosRateLimit,
		Burst:     cfg.VideosBurst,
		Redis:     redisClient,
		CacheTTL:  cfg.KidsSafeCacheTTL,
	})

	searchService := search.New(booksClient, videosClient, buildServiceOptions(cfg, redisClient)...)

	handler := apihttp.NewServer(searchService,
		apihttp.WithLogger(logger),
		apihttp.WithDefaultLanguage(cfg.DefaultLanguage),
		apihttp.WithIngressLimit(cfg.IngressRPS, cfg.IngressBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	searchService.StartBackground(rootCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("discovery service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("discovery service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildRedisClient(cfg app.Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, caching runs in-memory only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, caching runs in-memory only", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func buildServiceOptions(cfg app.Config, redisClient *redis.Client) []search.Option {
	opts := []search.Option{
		search.WithTimeout(cfg.RequestTimeout),
		search.WithCallTimeout(cfg.UpstreamTimeout),
	}
	if cfg.CacheDisabled {
		return append(opts, search.WithCacheDisabled(true))
	}
	if cfg.CacheTTL > 0 {
		opts = append(opts, search.WithCacheTTL(cfg.CacheTTL))
	}
	if redisClient != nil {
		opts = append(opts, search.WithRedisCache(redisClient))
	}
	return opts
}
