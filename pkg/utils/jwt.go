package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidSession = errors.New("invalid or expired session token")

// Claims 是外部驗證服務簽發的 session，TokenAddress 為空表示不限聊天室
type Claims struct {
	WalletAddress string `json:"wallet_address"`
	TokenAddress  string `json:"token_address,omitempty"`
	jwt.StandardClaims
}

// GenerateToken 生成一個新的 session token，主要給測試與本機開發使用
func GenerateToken(secret []byte, walletAddress, tokenAddress string, ttl time.Duration) (string, error) {
	nowTime := time.Now()

	claims := Claims{
		WalletAddress: walletAddress,
		TokenAddress:  tokenAddress,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: nowTime.Add(ttl).Unix(),
			IssuedAt:  nowTime.Unix(),
		},
	}

	tokenClaims := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tokenClaims.SignedString(secret)
}

// ParseToken 解析和驗證 session token，只接受 HS256
func ParseToken(secret []byte, token string) (*Claims, error) {
	tokenClaims, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidSession
		}
		return secret, nil
	})
	if err != nil {
		return nil, ErrInvalidSession
	}

	claims, ok := tokenClaims.Claims.(*Claims)
	if !ok || !tokenClaims.Valid || claims.WalletAddress == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
