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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"

	"github.com/remindkit/remindd/internal/app/migrate"
	"github.com/remindkit/remindd/internal/cache"
	"github.com/remindkit/remindd/internal/config"
	httpx "github.com/remindkit/remindd/internal/http"
	"github.com/remindkit/remindd/internal/repository"
	"github.com/remindkit/remindd/internal/repository/memory"
	"github.com/remindkit/remindd/internal/repository/postgres"
	"github.com/remindkit/remindd/internal/scheduler"
	"github.com/remindkit/remindd/internal/service/todo"
	"github.com/remindkit/remindd/internal/service/user"
	"github.com/remindkit/remindd/internal/ws"
	"github.com/remindkit/remindd/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		todoRepo repository.TodoRepository
		userRepo repository.UserRepository
		dbHealth func(context.Context) error
	)
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		runner, err := migrate.New(pool, dsn, cfg.MigrationsDir, log)
		if err != nil {
			log.Error("failed to configure migrations", "error", err)
			os.Exit(1)
		}
		defer runner.Close()
		if err := runner.Ping(ctx); err != nil {
			log.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		if err := runner.Ensure(ctx); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		repo := postgres.New(pool)
		todoRepo, userRepo = repo, repo
		dbHealth = pool.Ping
	} else {
		log.Info("no DATABASE_URL configured, using in-memory store")
		store := memory.New()
		todoRepo, userRepo = store, store
	}

	var (
		todoCache *cache.TodoCache
		limiter   = httpx.NewMemoryRateLimiter()
	)
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		redisLimiter, err := httpx.NewRedisRateLimiter(rdb, log)
		if err != nil {
			log.Warn("redis unavailable, falling back to in-process cache and limits", "error", err)
			_ = rdb.Close()
		} else {
			limiter = redisLimiter
			todoCache = cache.New(rdb, cfg.CacheTTL)
		}
	}

	hub := ws.NewHub()
	todoSvc := todo.New(todoRepo, userRepo, todoCache, hub, log)
	userSvc := user.New(userRepo, log)

	sched := scheduler.New(log)
	defer sched.Close()
	sched.ScheduleRecurring(ctx, "reminder-sweep", cfg.ReminderSweepInterval, func(runCtx context.Context) error {
		_, err := todoSvc.ProcessReminders(runCtx, time.Now().UTC())
		return err
	})

	router := httpx.NewRouter(log, todoSvc, userSvc, hub, limiter, dbHealth)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
