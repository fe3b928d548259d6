package app

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"roamgate/internal/auth"
	"roamgate/internal/cache"
	"roamgate/internal/client"
	"roamgate/internal/config"
	"roamgate/internal/httpapi"
	"roamgate/internal/reconcile"
	"roamgate/internal/roaming"
	"roamgate/internal/store"
	"roamgate/internal/stream"
	"roamgate/libs/db"
	libredis "roamgate/libs/redis"
)

// App wires all dependencies of the roaming adapter.
type App struct {
	httpServer *http.Server
	pool       *pgxpool.Pool
	redis      *redislib.Client
	Roaming    *client.RoamingClient
	logger     *zap.Logger
}

// New builds the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	pool, err := db.NewPostgresPool(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	var redisClient *redislib.Client
	var statusCache *cache.StatusCache
	if cfg.Redis.Addr != "" {
		redisClient, err = libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			pool.Close()
			return nil, err
		}
		statusCache = cache.NewStatusCache(redisClient, config.DefaultStatusCacheTTL)
	}

	model := roaming.NewModel()
	reconciler := reconcile.NewEngine(model, reconcile.DefaultStationGrouper, logger)
	cdrs := store.NewCDRRepository(pool)
	hub := stream.NewHub(cfg.Stream.PingInterval, cfg.Stream.WriteTimeout, logger)

	transport := client.NewHTTPTransport(cfg.Partner.BaseURL, client.NewDefaultHTTPClient(), cfg.Partner.Retries)
	engine, err := client.New(transport, client.Config{
		DefaultTimeout: cfg.Partner.RequestTimeout,
		ListenerWait:   config.DefaultListenerWait,
	}, logger,
		client.WithRequestListener(func(ev client.RequestEvent) {
			logger.Debug("sending protocol request",
				zap.String("path", ev.Path),
				zap.String("correlation_id", ev.CorrelationID))
		}),
		client.WithResponseListener(func(ev client.ResponseEvent) {
			logger.Debug("received protocol response",
				zap.String("path", ev.Path),
				zap.String("correlation_id", ev.CorrelationID),
				zap.Duration("runtime", ev.Runtime),
				zap.Bool("fault", ev.IsFault))
		}),
	)
	if err != nil {
		pool.Close()
		return nil, err
	}
	roamingClient := client.NewRoamingClient(engine, logger)

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	keys := auth.NewKeyStore(0)
	if cfg.Auth.PartnerID != "" && cfg.Auth.PartnerAPIKey != "" {
		if err := keys.Register(cfg.Auth.PartnerID, cfg.Auth.PartnerAPIKey); err != nil {
			pool.Close()
			return nil, err
		}
	}

	server := httpapi.NewServer(logger, tokens, keys, model, reconciler, statusCache, cdrs, hub)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      server.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		httpServer: httpServer,
		pool:       pool,
		redis:      redisClient,
		Roaming:    roamingClient,
		logger:     logger,
	}, nil
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting roamgate http server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Close releases resources.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
}
