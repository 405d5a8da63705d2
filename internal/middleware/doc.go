// Package middleware 提供了 HTTP 請求處理的中間件。
//
// 包含 session token 驗證，以及單一連線的訊息速率限制。
package middleware
