package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"token_chat/internal/api/handlers"
	"token_chat/internal/middleware"
	"token_chat/internal/service"
	"token_chat/pkg/config"
)

func SetupRoutes(r *gin.Engine, services *service.Services, cfg *config.Config) {
	// 初始化 handlers
	roomHandler := handlers.NewRoomHandler(services)
	wsHandler := handlers.NewWebSocketHandler(services, cfg.WebSocket)

	// /tc/<token>/ 不應被導向 /tc/<token>
	r.RedirectTrailingSlash = false

	// 處理 404 錯誤，聊天室路徑格式不符也會落在這裡
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "找不到該路徑",
		})
	})

	// 聊天室 WebSocket 連接點
	room := r.Group("/" + cfg.Server.RoomPrefix)
	if cfg.Auth.Enabled {
		room.Use(middleware.SessionMiddleware([]byte(cfg.Auth.JWTSecret)))
	}
	room.GET("/:tokenAddress", wsHandler.HandleWebSocket)

	// API 路由群組
	api := r.Group("/api")
	{
		api.GET("/health", handlers.Health)

		rooms := api.Group("/rooms")
		{
			rooms.GET("", roomHandler.ListActiveRooms)
			rooms.GET("/:tokenAddress/messages", roomHandler.GetMessages)
		}
	}

	r.GET("/metrics", gin.WrapH(services.Metrics.Handler()))
}
