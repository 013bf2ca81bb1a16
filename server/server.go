package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/haasonsaas/sitegate/pkg/auth"
	"github.com/haasonsaas/sitegate/pkg/config"
	"github.com/haasonsaas/sitegate/pkg/events"
	"github.com/haasonsaas/sitegate/pkg/gateway"
	"github.com/haasonsaas/sitegate/pkg/health"
	"github.com/haasonsaas/sitegate/pkg/ipallow"
	"github.com/haasonsaas/sitegate/pkg/ratelimit"
)

// credentialChecker is satisfied by *auth.Authenticator.
type credentialChecker interface {
	Check(ctx context.Context, identifier, secret string) (auth.Result, error)
}

type Server struct {
	cfg       *config.Config
	pipeline  *gateway.Pipeline
	auth      credentialChecker
	events    *events.Logger
	eventLog  *events.GormSink
	metrics   *gateway.Metrics
	registry  *prometheus.Registry
	probes    map[string]health.Probe
	startedAt time.Time
	logger    zerolog.Logger
}

// buildServer opens storage and assembles the gates. The returned cleanup
// stops the sweepers and closes connections.
func buildServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Server, func(), error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("database handle: %w", err)
	}

	// closers run in reverse order of registration
	closers := []func(){func() { _ = sqlDB.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	eventLog := events.NewGormSink(db)
	if err := eventLog.Migrate(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrate security events: %w", err)
	}
	credentials := auth.NewGormCredentialStore(db)
	if err := credentials.Migrate(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrate credentials: %w", err)
	}

	probes := map[string]health.Probe{"database": health.PingProbe(sqlDB)}

	sweepCtx, stopSweepers := context.WithCancel(ctx)

	limiterLogger := logger.With().Str("component", "ratelimit").Logger()
	var newStore func(gateway.Class) ratelimit.Store
	if cfg.RateLimit.Backend == "redis" {
		shared := ratelimit.NewRedisStoreFromConfig(ratelimit.RedisConfig{
			Addr:     cfg.RateLimit.Redis.Addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
			Prefix:   cfg.RateLimit.Redis.Prefix,
		})
		if err := shared.Ping(ctx); err != nil {
			// limiters fail open while Redis is down
			logger.Warn().Err(err).Str("addr", cfg.RateLimit.Redis.Addr).Msg("redis unreachable at startup")
		}
		probes["redis"] = shared.Ping
		closers = append(closers, func() { _ = shared.Close() })
		newStore = func(gateway.Class) ratelimit.Store { return shared }
	}
	limiters := gateway.NewLimiters(newStore, ratelimit.WithLogger(limiterLogger))
	for _, limiter := range limiters {
		limiter.StartSweeper(sweepCtx, cfg.SweepInterval())
	}
	closers = append(closers, stopSweepers)

	authenticator, err := auth.NewAuthenticator(credentials,
		auth.WithFloor(cfg.AuthFloor()),
		auth.WithHasher(auth.BcryptHasher{Cost: cfg.Auth.BcryptCost}),
		auth.WithLogger(logger.With().Str("component", "auth").Logger()),
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("authenticator: %w", err)
	}

	allowlist := ipallow.NewChecker(cfg.AdminAllowlist)
	if allowlist.Permissive() && cfg.Production() {
		logger.Warn().Str("env", config.AllowlistEnv).Msg("admin IP allowlist is empty; admin routes are reachable from any address")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := gateway.NewMetrics(registry)

	eventLogger := events.NewLogger(eventLog,
		events.WithWriteTimeout(cfg.EventWriteTimeout()),
		events.WithFallback(logger.With().Str("component", "events").Logger()),
	)

	srv := &Server{
		cfg: cfg,
		pipeline: gateway.New(gateway.Config{
			Limiters:       limiters,
			Allowlist:      allowlist,
			Events:         eventLogger,
			Metrics:        metrics,
			Production:     cfg.Production(),
			AdminLoginPath: cfg.Server.AdminLoginPath,
			Logger:         logger,
		}),
		auth:      authenticator,
		events:    eventLogger,
		eventLog:  eventLog,
		metrics:   metrics,
		registry:  registry,
		probes:    probes,
		startedAt: time.Now(),
		logger:    logger,
	}
	return srv, cleanup, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), gateway.RequestContext(s.logger), s.pipeline.Handler())

	api := r.Group("/api")
	api.POST("/auth/login", s.handleLogin)
	api.GET("/status", s.handleStatus)
	api.GET("/health", s.handleHealth)

	admin := api.Group("/admin")
	admin.POST("/login", s.handleLogin)
	admin.GET("/events", s.handleListEvents)
	admin.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	r.GET("/admin", s.handleAdminHome)
	r.GET(s.adminLoginPath(), s.handleAdminLogin)
	return r
}

func (s *Server) adminLoginPath() string {
	if s.cfg != nil && s.cfg.Server.AdminLoginPath != "" {
		return s.cfg.Server.AdminLoginPath
	}
	return gateway.DefaultAdminLoginPath
}
