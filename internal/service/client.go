package service

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"token_chat/pkg/config"
	"token_chat/pkg/log"
)

var ErrConnectionClosed = errors.New("connection closed")

// Sender 是可以接收廣播的連線，聊天室與價格訂閱只持有這個介面
type Sender interface {
	ID() string
	// Send 不阻塞，連線已關閉或被判定為慢速時回傳 false
	Send(data []byte) bool
}

// Client 代表一個 WebSocket 客戶端連接
type Client struct {
	id            string
	conn          *websocket.Conn
	TokenAddress  string
	WalletAddress string // 有 session 時才會設定

	cfg    config.WebSocketConfig
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	send   chan []byte
}

func NewClient(conn *websocket.Conn, tokenAddress, walletAddress string, cfg config.WebSocketConfig, logger zerolog.Logger) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}

	id := uuid.NewString()
	ctx := logger.With().
		Str(log.FieldClientID, id).
		Str(log.FieldTokenAddress, tokenAddress)
	if walletAddress != "" {
		ctx = ctx.Str(log.FieldWalletAddress, walletAddress)
	}

	return &Client{
		id:            id,
		conn:          conn,
		TokenAddress:  tokenAddress,
		WalletAddress: walletAddress,
		cfg:           cfg,
		logger:        ctx.Logger(),
		send:          make(chan []byte, buffer),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Logger() *zerolog.Logger {
	return &c.logger
}

func (c *Client) Send(data []byte) bool {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	select {
	case c.send <- data:
		c.mu.RUnlock()
		return true
	default:
	}
	c.mu.RUnlock()

	// 客戶端消息隊列已滿，關閉連接
	c.logger.Warn().Msg("Send buffer full, closing slow client")
	c.Close()
	return false
}

// Close 關閉發送通道，writePump 會送出 close frame 並關閉底層連線
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// ReadPump 持續讀取客戶端訊息並交給 handle，連線出錯時返回
func (c *Client) ReadPump(handle func(data []byte)) {
	defer c.Close()

	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn().Err(err).Msg("Websocket unexpected close")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}

// WritePump 負責所有寫入與心跳，同一連線只能有一個
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug().Err(err).Msg("Websocket write failed")
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
