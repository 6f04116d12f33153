package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repcall/internal/auth"
	"repcall/internal/config"
	"repcall/internal/destinations"
	"repcall/internal/elks"
	"repcall/internal/httpapi"
	"repcall/internal/ivr"
	"repcall/internal/metrics"
	"repcall/internal/numberpool"
	"repcall/internal/registry"
	"repcall/internal/selectlog"
	"repcall/pkg/logger"
	"repcall/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	callMetrics := metrics.New(promReg)

	elksClient := elks.NewClient(cfg.Elks.Username, cfg.Elks.Password)
	pool := numberpool.New()
	if cfg.Elks.DryRun {
		log.Warn("dry run: skipping caller-id inventory fetch")
	} else {
		nums, err := elksClient.Numbers(rootCtx)
		if err != nil {
			log.Error("caller-id inventory fetch failed", "err", err)
			os.Exit(1)
		}
		pool.Replace(nums)
		if pool.Size() == 0 {
			log.Error("no active caller-id numbers allocated")
			os.Exit(1)
		}
		log.Info("caller-id pool loaded", "size", pool.Size())
		if cfg.IVR.NumberRefreshInterval > 0 {
			go refreshNumbers(rootCtx, log, elksClient, pool, cfg.IVR.NumberRefreshInterval)
		}
	}

	dests := destinations.NewSQLRepository(db)
	callStore := registry.NewSQLStore(db, dests)
	events := selectlog.NewService(selectlog.NewPostgresRepo(db))

	medialists := ivr.NewRedisMedialistStore(rdb, cfg.IVR.MedialistTTL)
	media := ivr.NewBuilder(medialists, cfg.IVR.AudioDir, cfg.IVR.FallbackLanguage)
	engine := ivr.NewEngine(callStore, dests, events, media, callMetrics, ivr.Config{
		PhoneBaseURL:           cfg.PhoneBaseURL(),
		MenuTimeout:            cfg.IVR.MenuTimeout,
		MenuRepeat:             cfg.IVR.MenuRepeat,
		ShortCallThreshold:     cfg.IVR.ShortCallThreshold,
		AltDestinationAttempts: cfg.IVR.AltDestinationAttempts,
	})
	gateway := elks.NewGateway(elksClient, pool, callStore, events, callMetrics,
		cfg.PhoneBaseURL(), cfg.Elks.RingTimeout)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:      cfg,
		auth:     authManager,
		webhooks: ivr.NewHandlers(engine, medialists),
		api: httpapi.Handlers{
			Gateway:        gateway,
			Destinations:   dests,
			Events:         events,
			Auth:           authManager,
			OperatorSecret: cfg.Auth.OperatorSecret,
		},
		metrics: promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// refreshNumbers re-syncs the caller-id pool so number allocations and
// deallocations done in the provider portal are picked up without a
// restart.
func refreshNumbers(ctx context.Context, log *slog.Logger, client *elks.Client, pool *numberpool.Pool, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			nums, err := client.Numbers(ctx)
			if err != nil {
				log.Error("caller-id refresh failed", "err", err)
				continue
			}
			if len(nums) == 0 {
				log.Warn("caller-id refresh returned no numbers, keeping current pool")
				continue
			}
			pool.Replace(nums)
			log.Info("caller-id pool refreshed", "size", pool.Size())
		}
	}
}
