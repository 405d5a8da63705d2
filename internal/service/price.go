package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"token_chat/internal/cache"
	"token_chat/internal/client"
	"token_chat/internal/metrics"
	"token_chat/internal/models"
	"token_chat/pkg/log"
)

var ErrTrackerClosed = errors.New("price tracker closed")

// PriceSource 是外部價格來源
type PriceSource interface {
	FetchPrice(ctx context.Context, tokenAddress string) (*client.PriceData, error)
}

type PriceTrackerConfig struct {
	PollInterval time.Duration
	FetchTimeout time.Duration
}

// subscription 是單一代幣的價格訂閱，欄位由 mu 保護。
// cancel 停止該代幣的輪詢 goroutine，dead 之後不再廣播。
type subscription struct {
	mu       sync.Mutex
	token    string
	members  map[string]Sender
	price    models.PriceUpdate
	hasPrice bool
	dead     bool
	cancel   context.CancelFunc
}

// PriceTracker 為每個有訂閱者的代幣維持一個輪詢計時器
type PriceTracker struct {
	source  PriceSource
	cache   cache.PriceCache
	cfg     PriceTrackerConfig
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex // 保護 closed 與 wg.Add
	closed bool

	subs sync.Map // tokenAddress -> *subscription
}

func NewPriceTracker(source PriceSource, priceCache cache.PriceCache, cfg PriceTrackerConfig, m *metrics.Metrics) *PriceTracker {
	if priceCache == nil {
		priceCache = cache.NewNopCache()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &PriceTracker{
		source:  source,
		cache:   priceCache,
		cfg:     cfg,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// StartTracking 訂閱代幣價格。
// 第一個訂閱者會建立輪詢並在返回前立即抓取一次；之後的訂閱者若已有價格會馬上收到。
func (t *PriceTracker) StartTracking(ctx context.Context, tokenAddress string, sender Sender) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrTrackerClosed
	}

	var sub *subscription
	created := false
	for {
		fresh := &subscription{token: tokenAddress, members: make(map[string]Sender)}
		v, loaded := t.subs.LoadOrStore(tokenAddress, fresh)
		sub = v.(*subscription)
		sub.mu.Lock()
		if sub.dead {
			sub.mu.Unlock()
			continue
		}
		created = !loaded
		break
	}

	sub.members[sender.ID()] = sender

	if !created {
		// 在鎖內送出，之後的 publish 一定排在快照之後
		if sub.hasPrice {
			snapshot := sub.price
			if data, err := models.Encode(models.NewPriceUpdateEnvelope(&snapshot)); err == nil {
				sender.Send(data)
			}
		}
		sub.mu.Unlock()
		t.mu.RUnlock()
		return nil
	}

	subCtx, cancel := context.WithCancel(t.ctx)
	sub.cancel = cancel
	t.metrics.TrackedTokens.Inc()
	t.wg.Add(1)
	go t.loop(subCtx, sub)
	sub.mu.Unlock()
	t.mu.RUnlock()

	// 呼叫端取消時放棄這次立即抓取，輪詢本身不受影響
	pollCtx, stop := context.WithCancel(subCtx)
	defer stop()
	unlink := context.AfterFunc(ctx, stop)
	defer unlink()

	if !t.poll(pollCtx, sub) {
		t.seedFromCache(pollCtx, sub)
	}
	return nil
}

// StopTracking 取消訂閱，最後一個訂閱者離開時同步停止輪詢。重複呼叫不會有影響。
func (t *PriceTracker) StopTracking(tokenAddress string, sender Sender) {
	v, ok := t.subs.Load(tokenAddress)
	if !ok {
		return
	}
	sub := v.(*subscription)

	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.dead {
		return
	}
	delete(sub.members, sender.ID())
	if len(sub.members) == 0 {
		t.evictLocked(sub)
	}
}

func (t *PriceTracker) evictLocked(sub *subscription) {
	sub.dead = true
	if sub.cancel != nil {
		sub.cancel()
	}
	if t.subs.CompareAndDelete(sub.token, sub) {
		t.metrics.TrackedTokens.Dec()
	}
}

// Snapshot 回傳最後一次成功取得的價格
func (t *PriceTracker) Snapshot(tokenAddress string) (models.PriceUpdate, bool) {
	v, ok := t.subs.Load(tokenAddress)
	if !ok {
		return models.PriceUpdate{}, false
	}
	sub := v.(*subscription)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.price, sub.hasPrice && !sub.dead
}

// Close 停止所有輪詢並等待 goroutine 結束
func (t *PriceTracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.cancel()
	t.mu.Unlock()

	t.subs.Range(func(_, value any) bool {
		sub := value.(*subscription)
		sub.mu.Lock()
		if !sub.dead {
			t.evictLocked(sub)
		}
		sub.mu.Unlock()
		return true
	})

	t.wg.Wait()
}

func (t *PriceTracker) loop(ctx context.Context, sub *subscription) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			t.poll(ctx, sub)
		}
	}
}

// poll 抓取一次價格並廣播，失敗時保留上一次的價格
func (t *PriceTracker) poll(ctx context.Context, sub *subscription) bool {
	logger := log.L().With().Str(log.FieldTokenAddress, sub.token).Logger()

	fetchCtx, cancel := context.WithTimeout(ctx, t.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	data, err := t.source.FetchPrice(log.WithLogger(fetchCtx, logger), sub.token)
	t.metrics.PriceFetchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		t.metrics.PriceFetches.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Msg("Failed to fetch price")
		return false
	}
	t.metrics.PriceFetches.WithLabelValues("ok").Inc()

	update := models.PriceUpdate{
		TokenAddress: sub.token,
		Price:        data.Value,
		TokenName:    data.Name,
		TokenSymbol:  data.Symbol,
		Timestamp:    time.Now().UTC(),
	}
	if !t.publish(sub, &update, true) {
		return true
	}

	cacheCtx, cancelCache := context.WithTimeout(ctx, time.Second)
	defer cancelCache()
	if err := t.cache.Set(cacheCtx, &update); err != nil {
		logger.Debug().Err(err).Msg("Failed to cache price")
	}
	return true
}

// seedFromCache 在第一次抓取失敗時使用快取的價格
func (t *PriceTracker) seedFromCache(ctx context.Context, sub *subscription) {
	cacheCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	cached, err := t.cache.Get(cacheCtx, sub.token)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.L().Debug().Err(err).Str(log.FieldTokenAddress, sub.token).Msg("Failed to read cached price")
		}
		return
	}
	t.publish(sub, cached, false)
}

// publish 更新最後價格並廣播。overwrite 為 false 時不覆蓋已有的價格。
func (t *PriceTracker) publish(sub *subscription, update *models.PriceUpdate, overwrite bool) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.dead || (!overwrite && sub.hasPrice) {
		return false
	}

	// 沒有解析到名稱時沿用上一次的
	if update.TokenName == "" {
		update.TokenName = sub.price.TokenName
	}
	if update.TokenSymbol == "" {
		update.TokenSymbol = sub.price.TokenSymbol
	}
	sub.price = *update
	sub.hasPrice = true

	data, err := models.Encode(models.NewPriceUpdateEnvelope(update))
	if err != nil {
		return false
	}
	for _, member := range sub.members {
		member.Send(data)
	}
	return true
}
