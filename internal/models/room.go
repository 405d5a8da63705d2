package models

// RoomStats 代表一個目前有人在線的代幣聊天室
type RoomStats struct {
	TokenAddress string   `json:"tokenAddress"`
	UserCount    int      `json:"userCount"`
	TokenName    string   `json:"tokenName,omitempty"`
	TokenSymbol  string   `json:"tokenSymbol,omitempty"`
	LastPrice    *float64 `json:"lastPrice,omitempty"`
}
