package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"token_chat/internal/middleware"
	"token_chat/internal/models"
	"token_chat/internal/service"
	"token_chat/pkg/config"
	"token_chat/pkg/log"
)

const (
	maxFieldLength   = 64
	maxContentLength = 1024
)

var (
	errTokenMismatch  = errors.New("tokenAddress does not match this room")
	errWalletMismatch = errors.New("walletAddress does not match the session")
	errFieldTooLong   = errors.New("field exceeds 64 characters")
	errContentTooLong = errors.New("content exceeds 1024 bytes")
)

// WebSocketHandler 處理 /<prefix>/<tokenAddress> 的 WebSocket 連接
type WebSocketHandler struct {
	services *service.Services
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(services *service.Services, cfg config.WebSocketConfig) *WebSocketHandler {
	return &WebSocketHandler{
		services: services,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 前端與 API 分開部署，不檢查 origin
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket 驗證代幣地址後升級連線，掛上聊天室與價格訂閱，直到連線結束
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	tokenAddress := c.Param("tokenAddress")
	if err := h.validateTokenAddress(tokenAddress); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "錯誤的代幣地址"})
		return
	}
	if !middleware.SessionAllows(c, tokenAddress) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session 不允許進入此聊天室"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已經回應錯誤
		log.Ctx(c.Request.Context()).Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := service.NewClient(conn, tokenAddress, middleware.SessionWallet(c), h.cfg, *log.Ctx(c.Request.Context()))
	logger := client.Logger()
	ctx := log.WithLogger(c.Request.Context(), *logger)

	go client.WritePump()
	h.send(client, models.NewConnectionEstablishedEnvelope())

	if err := h.services.Connections.Attach(ctx, tokenAddress, client); err != nil {
		logger.Error().Err(err).Msg("Failed to attach connection")
		client.Close()
		return
	}
	defer h.services.Connections.Detach(client)

	logger.Info().Msg("Client connected")
	limiter := middleware.NewFrameLimiter(h.cfg.RateLimit, h.cfg.RateBurst)
	client.ReadPump(func(data []byte) {
		h.handleFrame(ctx, client, limiter, data)
	})
	logger.Info().Msg("Client disconnected")
}

func (h *WebSocketHandler) handleFrame(ctx context.Context, client *service.Client, limiter *middleware.FrameLimiter, data []byte) {
	logger := client.Logger()
	dropped := h.services.Metrics.DroppedFrames

	if !limiter.Allow() {
		dropped.WithLabelValues("rate_limited").Inc()
		logger.Warn().Msg("Frame dropped by rate limit")
		h.send(client, models.NewErrorEnvelope(models.ErrCodeRateLimited, "too many messages"))
		return
	}

	env, err := models.DecodeInbound(data, client.WalletAddress)
	if err != nil {
		dropped.WithLabelValues("malformed").Inc()
		logger.Warn().Err(err).Msg("Malformed frame dropped")
		h.send(client, models.NewErrorEnvelope(models.ErrCodeBadRequest, err.Error()))
		return
	}
	if env.Type != models.TypeChatMessage {
		dropped.WithLabelValues("unexpected_type").Inc()
		logger.Warn().Str("type", string(env.Type)).Msg("Unexpected frame type dropped")
		h.send(client, models.NewErrorEnvelope(models.ErrCodeBadRequest, "only chat_message is accepted"))
		return
	}

	msg := env.Data.(*models.ChatMessage)
	if err := normalizeMessage(client, msg); err != nil {
		dropped.WithLabelValues("rejected").Inc()
		logger.Warn().Err(err).Msg("Chat message rejected")
		h.send(client, models.NewErrorEnvelope(models.ErrCodeBadRequest, err.Error()))
		return
	}

	if err := h.services.Chat.HandleMessage(ctx, msg); err != nil {
		h.send(client, models.NewErrorEnvelope(models.ErrCodeDeliveryFailed, "message was not delivered"))
	}
}

// normalizeMessage 補上伺服器端欄位並確認訊息屬於這個連線
func normalizeMessage(client *service.Client, msg *models.ChatMessage) error {
	if msg.TokenAddress == "" {
		msg.TokenAddress = client.TokenAddress
	}
	if msg.TokenAddress != client.TokenAddress {
		return errTokenMismatch
	}
	if client.WalletAddress != "" && msg.WalletAddress != client.WalletAddress {
		return errWalletMismatch
	}
	if len(msg.MessageID) > maxFieldLength || len(msg.WalletAddress) > maxFieldLength {
		return errFieldTooLong
	}
	if len(msg.Content) > maxContentLength {
		return errContentTooLong
	}

	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.Timestamp = msg.Timestamp.UTC()
	msg.ColorCode = ""
	msg.Seq = 0
	return nil
}

func (h *WebSocketHandler) validateTokenAddress(tokenAddress string) error {
	if tokenAddress == "" || len(tokenAddress) > maxFieldLength {
		return errFieldTooLong
	}
	if h.cfg.ValidateAddress {
		if _, err := solana.PublicKeyFromBase58(tokenAddress); err != nil {
			return err
		}
	}
	return nil
}

func (h *WebSocketHandler) send(client *service.Client, env models.Envelope) {
	data, err := models.Encode(env)
	if err != nil {
		client.Logger().Error().Err(err).Msg("Failed to encode envelope")
		return
	}
	client.Send(data)
}
