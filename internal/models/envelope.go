package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType 是信封的類型標記
type MessageType string

const (
	TypeChatMessage           MessageType = "chat_message"
	TypeMessageHistory        MessageType = "message_history"
	TypePriceUpdate           MessageType = "price_update"
	TypeConnectionEstablished MessageType = "connection_established"
	TypeError                 MessageType = "error"
)

// 錯誤代碼
const (
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeDeliveryFailed = "DELIVERY_FAILED"
	ErrCodeRateLimited    = "RATE_LIMITED"
)

var (
	ErrUnknownType    = errors.New("unknown envelope type")
	ErrInvalidPayload = errors.New("invalid envelope payload")
)

// Envelope 是每個 WebSocket frame 的外層結構 {type, data}。
// Data 依 Type 分別為 *ChatMessage、[]ChatMessage、*PriceUpdate、*ConnectionStatus 或 *ErrorPayload。
type Envelope struct {
	Type MessageType `json:"type"`
	Data interface{} `json:"data"`
}

// PriceUpdate 價格推送內容
type PriceUpdate struct {
	TokenAddress string    `json:"tokenAddress"`
	Price        float64   `json:"price"`
	TokenName    string    `json:"tokenName,omitempty"`
	TokenSymbol  string    `json:"tokenSymbol,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ConnectionStatus 連線狀態
type ConnectionStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorPayload 只由伺服器送給單一連線
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewChatMessageEnvelope 創建一則聊天訊息信封
func NewChatMessageEnvelope(msg *ChatMessage) Envelope {
	return Envelope{Type: TypeChatMessage, Data: msg}
}

// NewHistoryEnvelope 創建歷史訊息信封，順序由舊到新
func NewHistoryEnvelope(messages []ChatMessage) Envelope {
	if messages == nil {
		messages = []ChatMessage{}
	}
	return Envelope{Type: TypeMessageHistory, Data: messages}
}

func NewPriceUpdateEnvelope(update *PriceUpdate) Envelope {
	return Envelope{Type: TypePriceUpdate, Data: update}
}

func NewConnectionEstablishedEnvelope() Envelope {
	return Envelope{
		Type: TypeConnectionEstablished,
		Data: &ConnectionStatus{Status: "connected", Timestamp: time.Now().UTC()},
	}
}

func NewErrorEnvelope(code, message string) Envelope {
	return Envelope{Type: TypeError, Data: &ErrorPayload{Code: code, Message: message}}
}

// Encode 將信封編碼成 JSON，Data 型別與 Type 不符時回傳 ErrInvalidPayload
func Encode(env Envelope) ([]byte, error) {
	if err := checkPayload(env); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func checkPayload(env Envelope) error {
	ok := false
	switch env.Type {
	case TypeChatMessage:
		m, isMsg := env.Data.(*ChatMessage)
		ok = isMsg && m != nil
	case TypeMessageHistory:
		_, ok = env.Data.([]ChatMessage)
	case TypePriceUpdate:
		p, isPrice := env.Data.(*PriceUpdate)
		ok = isPrice && p != nil
	case TypeConnectionEstablished:
		s, isStatus := env.Data.(*ConnectionStatus)
		ok = isStatus && s != nil
	case TypeError:
		e, isErr := env.Data.(*ErrorPayload)
		ok = isErr && e != nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if !ok {
		return fmt.Errorf("%w: %T for %s", ErrInvalidPayload, env.Data, env.Type)
	}
	return nil
}

type rawEnvelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode 解析一個 frame。未知類型或不合法的內容整個拒絕，不會回傳部分結果。
func Decode(raw []byte) (Envelope, error) {
	return decode(raw, "")
}

// DecodeInbound 與 Decode 相同，但聊天訊息沒有 walletAddress 時先填入 session 的錢包再驗證
func DecodeInbound(raw []byte, sessionWallet string) (Envelope, error) {
	return decode(raw, sessionWallet)
}

func decode(raw []byte, sessionWallet string) (Envelope, error) {
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		switch env.Type {
		case TypeChatMessage, TypeMessageHistory, TypePriceUpdate, TypeConnectionEstablished, TypeError:
			return Envelope{}, fmt.Errorf("%w: missing data for %s", ErrInvalidPayload, env.Type)
		default:
			return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
		}
	}

	switch env.Type {
	case TypeChatMessage:
		var msg ChatMessage
		if err := decodeObject(data, &msg); err != nil {
			return Envelope{}, err
		}
		if msg.WalletAddress == "" {
			msg.WalletAddress = sessionWallet
		}
		if err := msg.Validate(); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return Envelope{Type: env.Type, Data: &msg}, nil

	case TypeMessageHistory:
		if data[0] != '[' {
			return Envelope{}, fmt.Errorf("%w: message_history must be an array", ErrInvalidPayload)
		}
		var messages []ChatMessage
		if err := json.Unmarshal(data, &messages); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		for i := range messages {
			if err := messages[i].Validate(); err != nil {
				return Envelope{}, fmt.Errorf("%w: history[%d]: %v", ErrInvalidPayload, i, err)
			}
		}
		return Envelope{Type: env.Type, Data: messages}, nil

	case TypePriceUpdate:
		var update PriceUpdate
		if err := decodeObject(data, &update); err != nil {
			return Envelope{}, err
		}
		if update.TokenAddress == "" {
			return Envelope{}, fmt.Errorf("%w: tokenAddress is required", ErrInvalidPayload)
		}
		return Envelope{Type: env.Type, Data: &update}, nil

	case TypeConnectionEstablished:
		var status ConnectionStatus
		if err := decodeObject(data, &status); err != nil {
			return Envelope{}, err
		}
		if status.Status == "" {
			return Envelope{}, fmt.Errorf("%w: status is required", ErrInvalidPayload)
		}
		return Envelope{Type: env.Type, Data: &status}, nil

	case TypeError:
		var payload ErrorPayload
		if err := decodeObject(data, &payload); err != nil {
			return Envelope{}, err
		}
		return Envelope{Type: env.Type, Data: &payload}, nil

	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeObject(data []byte, v interface{}) error {
	if data[0] != '{' {
		return fmt.Errorf("%w: data must be an object", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
