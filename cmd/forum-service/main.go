package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/go-forum/internal/cache"
	"github.com/pribylovaa/go-forum/internal/config"
	forumhttp "github.com/pribylovaa/go-forum/internal/http"
	"github.com/pribylovaa/go-forum/internal/http/middleware"
	"github.com/pribylovaa/go-forum/internal/index"
	"github.com/pribylovaa/go-forum/internal/metrics"
	"github.com/pribylovaa/go-forum/internal/pkg/redact"
	"github.com/pribylovaa/go-forum/internal/service"
	"github.com/pribylovaa/go-forum/internal/storage"
	"github.com/pribylovaa/go-forum/internal/storage/minio"
	"github.com/pribylovaa/go-forum/internal/storage/mongo"
	"github.com/pribylovaa/go-forum/internal/storage/pebble"
	"github.com/pribylovaa/go-forum/internal/storage/postgres"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (overrides CONFIG_PATH env)")
	flag.Parse()

	_ = godotenv.Load(".env")

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting forum-service", "env", cfg.Env, "store", cfg.Store.Driver)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(event string, err error) {
		log.Error(event, slog.String("err", err.Error()))
		rootCancel()
		closeAll()
		os.Exit(1)
	}

	store, err := openStore(rootCtx, cfg.Store)
	if err != nil {
		fail(cfg.Store.Driver+"_connect_failed", err)
	}
	closers = append(closers, store.Close)
	log.Info("store_connected", "driver", cfg.Store.Driver, "url", redact.URL(cfg.Store.URL))

	var users storage.UserDirectory
	if cfg.Users.DatabaseURL != "" {
		dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
		dir, err := postgres.New(dbCtx, cfg.Users.DatabaseURL)
		dbCancel()
		if err != nil {
			fail("postgres_connect_failed", err)
		}
		closers = append(closers, dir.Close)
		users = dir
		log.Info("postgres_connected", "url", redact.URL(cfg.Users.DatabaseURL))

		if cfg.Cache.RedisURL != "" {
			rdCtx, rdCancel := context.WithTimeout(rootCtx, 5*time.Second)
			rdb, err := cache.NewRedisClient(rdCtx, cfg.Cache.RedisURL)
			rdCancel()
			if err != nil {
				fail("redis_connect_failed", err)
			}
			closers = append(closers, func() { _ = rdb.Close() })
			users = cache.NewUsersCache(rdb, dir, cfg.Cache.TTL, cfg.Cache.Prefix, log)
			log.Info("redis_connected", "url", redact.URL(cfg.Cache.RedisURL))
		}
	} else {
		log.Warn("users_directory_disabled")
	}

	var attachments storage.Attachments
	if cfg.S3.Endpoint != "" {
		s3Ctx, s3Cancel := context.WithTimeout(rootCtx, 10*time.Second)
		att, err := minio.New(s3Ctx, cfg.S3, cfg.Attachments)
		s3Cancel()
		if err != nil {
			fail("minio_connect_failed", err)
		}
		attachments = att
		log.Info("minio_connected")
	} else {
		log.Warn("attachments_disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	idx := index.New(log)
	names := make([]string, 0, len(index.Names))
	for _, n := range index.Names {
		names = append(names, string(n))
	}
	metrics.RegisterIndexSize(reg, names, func(name string) int { return idx.Len(index.Name(name)) })

	buildCtx, buildCancel := context.WithTimeout(rootCtx, cfg.Timeouts.Scan)
	err = idx.Rebuild(buildCtx, store)
	buildCancel()
	if err != nil {
		fail("index_build_failed", err)
	}

	if cfg.Index.Watch {
		go idx.Run(rootCtx, store, store)
		log.Info("index_watch_started")
	}

	go func() {
		if err := index.Schedule(rootCtx, cfg.Index.RebuildCron, cfg.Timeouts.Scan, idx, store); err != nil {
			log.Error("index_schedule_failed", slog.String("err", err.Error()))
		}
	}()

	svc := service.New(service.Deps{
		Store:       store,
		Users:       users,
		Attachments: attachments,
		Index:       idx,
		Metrics:     m,
	}, *cfg)
	log.Info("service_initialized")

	var ready int32 // 0 — not ready; 1 — ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) == 1 && svc.Ready(r.Context()) == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	metricsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics_listen_start", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_serve_failed", slog.String("err", err.Error()))
		}
	}()

	verifier := middleware.NewVerifier(cfg.Auth)

	apiSrv := &http.Server{
		Addr: cfg.HTTP.Addr(),
		Handler: forumhttp.NewRouter(svc, forumhttp.Options{
			Logger:      log,
			Timeout:     cfg.Timeouts.Service,
			ScanTimeout: cfg.Timeouts.Scan,
			BasePath:    "/api",
			Verifier:    verifier,
			Metrics:     m,
			RateLimit:   cfg.RateLimit,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", "addr", apiSrv.Addr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = apiSrv.Close()
	} else {
		log.Info("http_stopped")
	}
	shutdownCancel()

	_ = metricsSrv.Shutdown(context.Background())

	rootCancel()
	closeAll()

	log.Info("service_stopped")
	os.Exit(0)
}

// openStore открывает документное хранилище по драйверу из конфига.
func openStore(ctx context.Context, cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverPebble:
		st, err := pebble.Open(cfg.PebblePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		st, err := mongo.New(dbCtx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
