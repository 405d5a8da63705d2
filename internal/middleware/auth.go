package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"token_chat/pkg/log"
	"token_chat/pkg/utils"
)

const (
	// ContextWalletAddress 與 ContextSessionToken 是 gin context 的 key
	ContextWalletAddress = log.FieldWalletAddress
	ContextSessionToken  = "session_token_address"

	sessionQueryParam = "session_token"
)

// SessionMiddleware 驗證外部簽發的 session token 並把錢包地址放進 context。
// 瀏覽器的 WebSocket 無法自訂標頭，所以也接受 query 參數。
func SessionMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query(sessionQueryParam)
		if token == "" {
			authHeader := c.GetHeader("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session token is required"})
			return
		}

		claims, err := utils.ParseToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextWalletAddress, claims.WalletAddress)
		if claims.TokenAddress != "" {
			c.Set(ContextSessionToken, claims.TokenAddress)
		}
		c.Next()
	}
}

// SessionWallet 回傳 SessionMiddleware 設定的錢包地址
func SessionWallet(c *gin.Context) string {
	return c.GetString(ContextWalletAddress)
}

// SessionAllows 檢查 session 是否允許進入該代幣聊天室
func SessionAllows(c *gin.Context, tokenAddress string) bool {
	scoped := c.GetString(ContextSessionToken)
	return scoped == "" || scoped == tokenAddress
}
