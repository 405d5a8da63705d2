package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"token_chat/internal/api"
	"token_chat/internal/cache"
	"token_chat/internal/client"
	"token_chat/internal/metrics"
	"token_chat/internal/models"
	"token_chat/internal/repository"
	"token_chat/internal/service"
	"token_chat/internal/storage"
	"token_chat/pkg/config"
	"token_chat/pkg/log"
)

func main() {
	// 載入應用程式配置
	cfg, err := config.Load()
	if err != nil {
		log.L().Fatal().Err(err).Msg("Failed to load config")
	}

	log.Init(cfg.Log)
	logger := log.L()

	// 初始化資料庫連接
	db, err := storage.NewDB(cfg.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// 自動遷移資料庫結構
	if err := db.AutoMigrate(&models.ChatMessage{}); err != nil {
		logger.Fatal().Err(err).Msg("Failed to auto migrate database")
	}

	// 價格快取，沒有設定 redis 時不使用
	priceCache := cache.NewNopCache()
	if cfg.Redis.Enabled() {
		redisCache, err := cache.NewRedisPriceCache(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		priceCache = redisCache
	}
	defer priceCache.Close()

	m := metrics.New(nil)
	m.RegisterRuntime()

	// 初始化 repositories 與 services
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, client.NewBirdeyeClient(cfg.Price), priceCache, cfg, m)

	// 設置 Gin 路由
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), log.GinMiddleware(*logger))
	api.SetupRoutes(r, services, cfg)

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	go func() {
		logger.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to run server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先停止接受新連線，再關閉既有的 WebSocket 與價格輪詢
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	services.Shutdown()

	logger.Info().Msg("Server stopped")
}
