package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/analytics"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/cache"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/config"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/events"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/httpapi"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/logging"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/ratelimit"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/service"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store/memory"
	pgstore "github.com/Emmanuelombaye/POS-System-sub000/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid security configuration")
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	ctx, cancel := context.WithTimeout(runCtx, 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("schema migration failed")
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded(logger)
		logger.Info().Msg("repository: in-memory")
	}

	var analyticsCache cache.AnalyticsCache = cache.NewMemoryAnalyticsCache()
	var broker events.Broker = events.NewLocalBroker(64)
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisAnalyticsCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using in-process cache and events")
			_ = client.Close()
		} else {
			analyticsCache = redisCache
			broker = startRedisBroker(runCtx, client, logger)
			closers = append(closers, client.Close)
			logger.Info().Msg("cache and events: redis")
		}
	} else {
		logger.Info().Msg("cache and events: in-process")
	}

	aggregator := analytics.NewAggregator(repo, analyticsCache, cfg.AnalyticsCacheTTL(), logger)
	svc := service.New(repo, aggregator, broker, logger, service.Options{
		DefaultBranchID:     cfg.DefaultBranchID,
		MissingCountsAsZero: cfg.MissingCountPolicy == config.MissingCountZero,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.ManagerPIN, repo, logger)

	loginLimiter := ratelimit.PerMinute(cfg.LoginRatePerMinute)
	pinLimiter := ratelimit.PerMinute(cfg.PINRatePerMinute)
	stopSweeps := make(chan struct{})
	go loginLimiter.Run(time.Minute, stopSweeps)
	go pinLimiter.Run(time.Minute, stopSweeps)

	api := httpapi.New(svc, auth, broker, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		LoginLimiter:   loginLimiter,
		PINLimiter:     pinLimiter,
		RequestTimeout: cfg.RequestTimeout(),
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No write timeout: the event stream stays open. Handlers are bounded
		// by the request timeout middleware instead.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context { return runCtx },
	}

	go func() {
		logger.Info().Str("addr", cfg.Address()).Msg("butchery POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	// Cancelling the base context ends open event streams so Shutdown can drain.
	stopRun()
	close(stopSweeps)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msg("close error")
		}
	}

	logger.Info().Msg("server stopped")
}

func startRedisBroker(ctx context.Context, client *redis.Client, logger zerolog.Logger) *events.RedisBroker {
	broker := events.NewRedisBroker(client, events.DefaultChannel, logger)
	go func() {
		if err := broker.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("change event relay stopped")
		}
	}()
	return broker
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	// The manager PIN is optional; without it only supervisors can void.
	if cfg.ManagerPIN == "" {
		return nil
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be at least 6 digits")
	}
	for _, c := range cfg.ManagerPIN {
		if c < '0' || c > '9' {
			return fmt.Errorf("MANAGER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit, sequential
// in either direction, or on the common list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true, "696969": true,
		"159753": true, "147258": true, "520520": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
