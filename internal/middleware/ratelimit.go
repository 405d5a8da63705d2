package middleware

import (
	"golang.org/x/time/rate"
)

// FrameLimiter 限制單一連線送入的訊息速率，nil 表示不限制
type FrameLimiter struct {
	limiter *rate.Limiter
}

func NewFrameLimiter(perSecond float64, burst int) *FrameLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &FrameLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *FrameLimiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}
