package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ticket-marketplace/config"
	"ticket-marketplace/internal/events"
	"ticket-marketplace/internal/handlers"
	"ticket-marketplace/internal/identity"
	"ticket-marketplace/internal/marketplace"
	"ticket-marketplace/internal/notify"
	"ticket-marketplace/internal/pass"
	"ticket-marketplace/internal/storage"
	_ "ticket-marketplace/migrations"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"
	"ticket-marketplace/security"
	"ticket-marketplace/utils"
)

// services holds everything built from the configuration once pocketbase has
// bootstrapped its database.
type services struct {
	cfg    *config.Config
	logger *zap.Logger

	redis    *redis.Client
	ns       *storage.Namespace
	identity *identity.Store
	market   *marketplace.Store
	bus      *events.Bus
	monitor  *monitoring.Monitor
	relay    *notify.Relay
	issuer   *pass.Issuer
	limiter  *security.RateLimiter
}

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// balances and prices are stored and served as plain JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	logger, err := utils.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	go handleShutdown(cancel, logger)

	var svc *services
	app.OnBootstrap().BindFunc(func(e *core.BootstrapEvent) error {
		if err := e.Next(); err != nil {
			return err
		}
		built, err := newServices(ctx, e.App, cfg, logger)
		if err != nil {
			return err
		}
		svc = built
		return nil
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		if svc != nil {
			svc.close()
		}
		return e.Next()
	})

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})
	app.RootCmd.AddCommand(newMarketCommand(func() *services { return svc }))

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		if err := svc.start(ctx); err != nil {
			return err
		}
		registerRoutes(se, svc)
		logger.Info("server routes registered",
			zap.String("storage", cfg.StorageBackend),
			zap.String("events", cfg.EventsBackend))

		return se.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		logger.Error("pocketbase exited", zap.Error(err))
		return err
	}
	return nil
}

func newServices(ctx context.Context, app core.App, cfg *config.Config, logger *zap.Logger) (*services, error) {
	s := &services{cfg: cfg, logger: logger}

	if cfg.StorageBackend == config.StorageRedis || cfg.EventsBackend == config.EventsRedisStream {
		client, err := utils.NewRedisClient(cfg.RedisURL, logger)
		if err != nil {
			return nil, err
		}
		s.redis = client
	}

	var store storage.Store
	switch cfg.StorageBackend {
	case config.StorageRedis:
		store = storage.NewRedisStore(s.redis)
	case config.StorageMemory:
		store = storage.NewMemoryStore()
	case config.StorageSQLite:
		sqlite := storage.NewSQLiteStore(app.DB())
		if err := sqlite.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		store = sqlite
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	s.ns = storage.NewNamespace(store, cfg.KeyPrefix)

	switch cfg.EventsBackend {
	case config.EventsGoChannel:
		s.bus = events.NewGoChannelBus(logger)
	case config.EventsRedisStream:
		bus, err := events.NewRedisStreamBus(s.redis, cfg.EventsConsumerGroup, logger)
		if err != nil {
			return nil, err
		}
		s.bus = bus
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.EventsBackend)
	}

	s.identity = identity.NewStore(s.ns, identity.Config{
		StartingBalance: decimal.NewFromInt(cfg.StartingBalance),
	}, logger)

	opts := marketplace.Options{Events: s.bus}
	if cfg.EnableMetrics {
		s.monitor = monitoring.NewMonitor(monitoring.StatsFunc(func(ctx context.Context) (models.Stats, error) {
			return s.market.Stats(ctx)
		}), logger).WithInterval(cfg.MetricsInterval)
		opts.Metrics = s.monitor
	}
	s.market = marketplace.NewStore(s.ns, s.identity, opts, logger)

	issuer, err := pass.NewIssuer(cfg.PassSecret)
	if err != nil {
		return nil, err
	}
	s.issuer = issuer

	if cfg.NotificationsEnabled() {
		breaker := utils.NewCircuitBreaker("pubnub", utils.BreakerSettings{
			OnStateChange: func(name string, from, to utils.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to))
			},
		})
		publisher := notify.NewPubNubPublisher(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubSecretKey)

		var metrics notify.Metrics
		if s.monitor != nil {
			metrics = s.monitor
		}
		s.relay = notify.NewRelay(publisher, breaker, metrics, logger)
	} else {
		logger.Info("pubnub keys not configured, notifications disabled")
	}

	if s.redis != nil && cfg.RateLimitPerMinute > 0 {
		s.limiter = security.NewRateLimiter(s.redis, cfg.RateLimitPerMinute, logger)
	}

	return s, nil
}

// start launches the background consumers tied to the server lifetime.
func (s *services) start(ctx context.Context) error {
	if s.relay != nil {
		if err := s.relay.Register(ctx, s.bus); err != nil {
			return fmt.Errorf("register notification relay: %w", err)
		}
	}
	if s.monitor != nil {
		go s.monitor.Run(ctx)
	}
	return nil
}

func (s *services) close() {
	if err := s.bus.Close(); err != nil {
		s.logger.Warn("close event bus", zap.Error(err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("close redis", zap.Error(err))
		}
	}
}

func registerRoutes(se *core.ServeEvent, s *services) {
	var authMetrics handlers.AuthMetrics
	if s.monitor != nil {
		authMetrics = s.monitor
	}

	authHandler := handlers.NewAuthHandler(s.identity, authMetrics, s.logger)
	ticketHandler := handlers.NewTicketHandler(s.identity, s.market, s.issuer, s.logger)
	accountHandler := handlers.NewAccountHandler(s.identity, s.market, s.logger)
	adminHandler := handlers.NewAdminHandler(s.identity, s.market, s.logger)

	api := se.Router.Group("/api/v1")
	if s.limiter != nil {
		api.BindFunc(s.limiter.Middleware())
	}

	// Auth endpoints
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/logout", authHandler.Logout)
	api.GET("/auth/session", authHandler.Session)

	// Ticket endpoints
	api.GET("/tickets", ticketHandler.ListTickets)
	api.POST("/tickets", ticketHandler.CreateTicket)
	api.GET("/tickets/{ticketId}", ticketHandler.GetTicket)
	api.POST("/tickets/{ticketId}/purchase", ticketHandler.PurchaseTicket)
	api.GET("/tickets/{ticketId}/pass", ticketHandler.GetPass)
	api.GET("/tickets/{ticketId}/pass/verify", ticketHandler.VerifyPass)

	// Dashboard endpoints
	api.GET("/me/tickets", accountHandler.GetTickets)
	api.GET("/me/resale", accountHandler.GetResaleListings)
	api.GET("/me/resale-candidates", accountHandler.GetResaleCandidates)
	api.GET("/me/transactions", accountHandler.GetTransactions)

	// Admin endpoints
	api.GET("/admin/stats", adminHandler.GetStats)
	api.GET("/admin/transactions", adminHandler.GetTransactions)
	api.GET("/admin/ownerships", adminHandler.GetOwnerships)

	// Health check
	se.Router.GET("/health", func(e *core.RequestEvent) error {
		if err := s.ns.Ping(e.Request.Context()); err != nil {
			return e.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	if s.cfg.EnableMetrics {
		se.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc, logger *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("shutdown signal received, cleaning up")
	cancel()
}
