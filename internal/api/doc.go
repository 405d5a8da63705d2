// Package api 處理 HTTP 請求路由和處理。
//
// 這個包負責聊天室的 WebSocket 連接點、聊天室查詢 API 與 /metrics。
// handlers 將 HTTP 請求轉換為適當的服務調用，並將結果轉換回 HTTP 響應。
package api
