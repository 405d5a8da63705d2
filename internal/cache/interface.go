package cache

import (
	"context"
	"errors"

	"token_chat/internal/models"
)

var ErrCacheMiss = errors.New("cache miss")

// PriceCache 保存每個代幣最後一次成功取得的價格
type PriceCache interface {
	Get(ctx context.Context, tokenAddress string) (*models.PriceUpdate, error)
	Set(ctx context.Context, update *models.PriceUpdate) error
	Close() error
}

type nopCache struct{}

// NewNopCache 未設定 redis 時使用，永遠 miss
func NewNopCache() PriceCache {
	return nopCache{}
}

func (nopCache) Get(context.Context, string) (*models.PriceUpdate, error) {
	return nil, ErrCacheMiss
}

func (nopCache) Set(context.Context, *models.PriceUpdate) error {
	return nil
}

func (nopCache) Close() error {
	return nil
}
