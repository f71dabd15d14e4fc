package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"cronostudio/internal/config"
	"cronostudio/internal/database"
	"cronostudio/internal/handler"
	"cronostudio/internal/metrics"
	"cronostudio/internal/middleware"
	"cronostudio/internal/repository"
	"cronostudio/internal/router"
	"cronostudio/internal/service"
	"cronostudio/internal/token"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	contentRepo := repository.NewContentRepository(pool)
	slog.Info("database ready")

	appMetrics := metrics.New()
	codec, err := token.NewCodec(cfg.JWTSecret, cfg.AccessTTL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}

	authService, err := service.NewAuthService(userRepo, sessionRepo, codec, cfg.RefreshTTL, appMetrics)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}
	authService.RequireVerifiedEmail = cfg.RequireEmailVerification

	cleanupFuncs := []func(){db.Close}

	if cfg.GoogleClientID != "" {
		verifier, err := service.NewGoogleVerifier(context.Background(), cfg.GoogleClientID)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize Google verifier: %w", err)
		}
		authService.SetGoogleVerifier(verifier)
		slog.Info("Google sign-in enabled")
	}

	contentService := service.NewContentService(contentRepo)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	serviceAuth := middleware.NewServiceAuth(cfg.WebhookSecret, cfg.ServiceUserID, authMiddleware, appMetrics)

	counterStore := middleware.NewMemoryCounterStore()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()

		if err != nil {
			// Fall back to per-instance counting rather than refusing
			// to start.
			slog.Warn("redis unreachable, using in-memory rate limit counters", "addr", cfg.RedisAddr, "error", err)
			_ = redisClient.Close()
		} else {
			counterStore = middleware.NewRedisCounterStore(redisClient)
			cleanupFuncs = append(cleanupFuncs, func() { _ = redisClient.Close() })
			slog.Info("redis connected", "addr", cfg.RedisAddr)
		}
	}
	rateLimiter := middleware.NewRateLimiter(counterStore, cfg.RateLimitEnabled(), appMetrics)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	go sessionCleanupLoop(cleanupCtx, sessionRepo)
	cleanupFuncs = append(cleanupFuncs, cleanupCancel)

	authHandler := handler.NewAuthHandler(authService, cfg.IsProduction(), cfg.RequireEmailVerification)
	profileHandler := handler.NewProfileHandler(authService, cfg.IsProduction())
	contentHandler := handler.NewContentHandler(contentService)
	healthHandler := handler.NewHealthHandler(db)

	appRouter := router.New(cfg, authMiddleware, serviceAuth, rateLimiter,
		authHandler, profileHandler, contentHandler, healthHandler, appMetrics.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:       server,
		db:           db,
		cleanupFuncs: cleanupFuncs,
	}, nil
}

// sessionCleanupLoop prunes expired and revoked session rows hourly so
// the table does not grow without bound.
func sessionCleanupLoop(ctx context.Context, sessions *repository.SessionRepository) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := sessions.CleanExpired(ctx)
			if err != nil {
				slog.Warn("session cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				slog.Info("expired sessions pruned", "count", deleted)
			}
		}
	}
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	slog.Info("server stopped")
	return nil
}
