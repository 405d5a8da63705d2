package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"token_chat/internal/service"
	"token_chat/pkg/log"
)

// RoomHandler 提供聊天室列表與歷史訊息查詢
type RoomHandler struct {
	services *service.Services
}

func NewRoomHandler(services *service.Services) *RoomHandler {
	return &RoomHandler{services: services}
}

// ListActiveRooms 回傳目前有人在線的聊天室
func (h *RoomHandler) ListActiveRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.ActiveRooms())
}

// GetMessages 回傳代幣聊天室最近的訊息，由舊到新
func (h *RoomHandler) GetMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必須是正整數"})
			return
		}
		limit = n
	}

	messages, err := h.services.Chat.History(c.Request.Context(), c.Param("tokenAddress"), limit)
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("Failed to load history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "讀取訊息失敗"})
		return
	}

	c.JSON(http.StatusOK, messages)
}

// Health 基本的健康檢查
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
