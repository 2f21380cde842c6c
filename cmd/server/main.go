package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"movies-sync-service/internal/config"
	"movies-sync-service/internal/engine"
	"movies-sync-service/internal/handler"
	"movies-sync-service/internal/middleware"
	"movies-sync-service/internal/repository"
	"movies-sync-service/internal/screen"
	"movies-sync-service/internal/service"
	"movies-sync-service/pkg/httpclient"
	"movies-sync-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// watchlistStore is what the server needs from a watchlist backend
type watchlistStore interface {
	engine.WatchlistStore
	handler.MemberLister
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Setup logging
	if closer := logger.Setup(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile}); closer != nil {
		defer closer.Close()
	}

	log.Info().
		Str("port", cfg.Port).
		Str("mode", cfg.GinMode).
		Str("watchlist", cfg.WatchlistBackend).
		Int("proxies", len(cfg.TMDBProxies)).
		Msg("🚀 Starting movies-sync-service")

	gin.SetMode(cfg.GinMode)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize Redis
	redisClient, err := repository.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	cache := repository.NewCache(redisClient, time.Hour)

	// Initialize metrics
	metrics := repository.NewMetrics(redisClient)
	metrics.RecordServerStart(ctx)
	log.Info().Msg("📊 Metrics enabled")

	// Initialize watchlist backend
	var store watchlistStore
	switch cfg.WatchlistBackend {
	case config.BackendPostgres:
		pg, err := repository.NewPostgresWatchlist(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pg.Close()
		store = pg
	default:
		store = repository.NewRedisWatchlist(redisClient)
	}
	log.Info().Str("backend", cfg.WatchlistBackend).Msg("📝 Watchlist store ready")

	// Initialize HTTP client with proxy support
	httpClient := httpclient.NewClient(httpclient.Options{
		Retries: cfg.HTTPRetries,
		Proxies: cfg.TMDBProxies,
	})
	if httpClient.HasProxy() {
		log.Info().Int("count", len(cfg.TMDBProxies)).Msg("🔀 Proxy enabled")
	}

	// Initialize services
	tmdbService := service.NewTMDBService(cfg.TMDBAPIKeys, cfg.TMDBBaseURL, cfg.TMDBImageBase, httpClient)
	catalog := service.NewCachedCatalog(tmdbService, cache, service.CacheTTLs{
		Popular: cfg.CacheTTL.Popular,
		Search:  cfg.CacheTTL.Search,
		Detail:  cfg.CacheTTL.Detail,
		Similar: cfg.CacheTTL.Similar,
		Credits: cfg.CacheTTL.Credits,
	})
	coordinator := engine.NewCoordinator(store, metrics)

	// Screen registries, swept for idle screens in the background
	browseScreens := screen.NewRegistry[*engine.BrowseEngine]("browse", cfg.ScreenIdleTTL)
	detailScreens := screen.NewRegistry[*engine.DetailEngine]("detail", cfg.ScreenIdleTTL)
	sweepEvery := cfg.ScreenSweepInterval()
	go browseScreens.Run(ctx, sweepEvery)
	go detailScreens.Run(ctx, sweepEvery)

	// Initialize handlers
	screenHandler := handler.NewScreenHandler(ctx, browseScreens, detailScreens,
		engine.BrowseConfig{
			Catalog:        catalog,
			Store:          store,
			Coordinator:    coordinator,
			Debounce:       cfg.SearchDebounce,
			MinQueryLength: cfg.MinQueryLength,
			Language:       cfg.TMDBLanguage,
		},
		engine.DetailConfig{
			Catalog:      catalog,
			Store:        store,
			Coordinator:  coordinator,
			Language:     cfg.TMDBLanguage,
			SimilarLimit: cfg.SimilarLimit,
			TopLimit:     cfg.TopLimit,
		},
		tmdbService,
	)
	watchlistHandler := handler.NewWatchlistHandler(store, coordinator, tmdbService)
	adminHandler := handler.NewAdminHandler(tmdbService, catalog, cache, metrics, screenHandler, cfg.WatchlistBackend)

	// Setup router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logging())
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes - 公开访问
	api := r.Group("/api/v1")
	{
		api.GET("/status", adminHandler.GetStatus)
		screenHandler.Register(api)
		api.GET("/watchlist", watchlistHandler.GetWatchlist)
		api.DELETE("/watchlist/:id", watchlistHandler.RemoveFromWatchlist)
	}

	// Admin routes - 需要认证（如果配置了 ADMIN_API_KEY）
	admin := r.Group("/api/v1")
	admin.Use(middleware.AdminAuth(cfg.AdminAPIKey))
	{
		admin.GET("/analytics", adminHandler.GetAnalytics)
		admin.GET("/analytics/endpoint", adminHandler.GetEndpointStats)
		admin.DELETE("/analytics", adminHandler.ResetAnalytics)
		admin.DELETE("/cache", adminHandler.PurgeCache)
	}

	if cfg.AdminAPIKey != "" {
		log.Info().Msg("🔐 Admin API 认证已启用")
	} else {
		log.Warn().Msg("⚠️  Admin API 未配置认证，管理接口对外开放")
	}

	// Create HTTP server with graceful shutdown support
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("🌐 Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// websocket sessions are hijacked and not tracked by Shutdown; closing
	// the screens ends their streams
	browseScreens.CloseAll()
	detailScreens.CloseAll()
	stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("👋 Server exited")
}
