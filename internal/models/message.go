package models

import (
	"errors"
	"strings"
	"time"
)

// ChatMessage 代表一則聊天訊息，同時滿足 WebSocket 傳輸與資料庫存儲需求。
// 建立後不會再被修改，只會新增或被保留上限清除。
type ChatMessage struct {
	// Seq 為寫入順序，同一個代幣的歷史以它排序
	Seq           uint64    `json:"-" gorm:"primaryKey;autoIncrement"`
	MessageID     string    `json:"id" gorm:"column:message_id;type:varchar(64);uniqueIndex;not null"`
	Content       string    `json:"content" gorm:"type:text;not null"`
	WalletAddress string    `json:"walletAddress" gorm:"type:varchar(64);not null"`
	TokenAddress  string    `json:"tokenAddress" gorm:"type:varchar(64);index;not null"`
	Timestamp     time.Time `json:"timestamp" gorm:"column:created_at;not null"`
	// ColorCode 只在輸出歷史時填入，不寫入資料庫
	ColorCode string `json:"colorCode,omitempty" gorm:"-"`
}

func (ChatMessage) TableName() string {
	return "messages"
}

var (
	errEmptyContent = errors.New("content is required")
	errEmptyWallet  = errors.New("walletAddress is required")
)

// Validate 檢查客戶端送來的訊息必要欄位
func (m *ChatMessage) Validate() error {
	if strings.TrimSpace(m.Content) == "" {
		return errEmptyContent
	}
	if strings.TrimSpace(m.WalletAddress) == "" {
		return errEmptyWallet
	}
	return nil
}
