package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"token_chat/internal/client"
	"token_chat/internal/models"
	"token_chat/internal/repository"
	"token_chat/internal/storage"
	"token_chat/pkg/config"
)

var errInjected = errors.New("injected failure")

// recorder 記錄收到的每個 frame
type recorder struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newRecorder(id string) *recorder {
	return &recorder{id: id}
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(data []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.frames = append(r.frames, data)
	return true
}

func (r *recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recorder) envelopes(t *testing.T) []models.Envelope {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Envelope, 0, len(r.frames))
	for _, f := range r.frames {
		env, err := models.Decode(f)
		require.NoError(t, err, string(f))
		out = append(out, env)
	}
	return out
}

func (r *recorder) ofType(t *testing.T, typ models.MessageType) []models.Envelope {
	t.Helper()
	var out []models.Envelope
	for _, env := range r.envelopes(t) {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

// chatContents 依收到順序回傳聊天訊息內容
func (r *recorder) chatContents(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, env := range r.ofType(t, models.TypeChatMessage) {
		out = append(out, env.Data.(*models.ChatMessage).Content)
	}
	return out
}

func (r *recorder) history(t *testing.T) []models.ChatMessage {
	t.Helper()
	histories := r.ofType(t, models.TypeMessageHistory)
	require.Len(t, histories, 1)
	return histories[0].Data.([]models.ChatMessage)
}

func (r *recorder) prices(t *testing.T) []float64 {
	t.Helper()
	var out []float64
	for _, env := range r.ofType(t, models.TypePriceUpdate) {
		out = append(out, env.Data.(*models.PriceUpdate).Price)
	}
	return out
}

func newSQLiteRepository(t *testing.T) repository.MessageRepository {
	t.Helper()

	db, err := storage.NewDB(config.DBConfig{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "chat.db"),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ChatMessage{}))
	t.Cleanup(func() { _ = db.Close() })

	return repository.NewMessageRepository(db)
}

type repoFaults struct {
	create atomic.Bool
	count  atomic.Bool
}

// faultyRepository 可以讓指定操作失敗，交易內的操作也一樣
type faultyRepository struct {
	repository.MessageRepository
	faults *repoFaults
}

func (r faultyRepository) Create(ctx context.Context, message *models.ChatMessage) error {
	if r.faults.create.Load() {
		return errInjected
	}
	return r.MessageRepository.Create(ctx, message)
}

func (r faultyRepository) CountByToken(ctx context.Context, tokenAddress string) (int64, error) {
	if r.faults.count.Load() {
		return 0, errInjected
	}
	return r.MessageRepository.CountByToken(ctx, tokenAddress)
}

func (r faultyRepository) Transaction(ctx context.Context, fn func(repository.MessageRepository) error) error {
	return r.MessageRepository.Transaction(ctx, func(tx repository.MessageRepository) error {
		return fn(faultyRepository{MessageRepository: tx, faults: r.faults})
	})
}

func chatMessage(token, wallet string, n int) *models.ChatMessage {
	return &models.ChatMessage{
		MessageID:     fmt.Sprintf("%s-%s-%d", token, wallet, n),
		Content:       fmt.Sprintf("msg %d", n),
		WalletAddress: wallet,
		TokenAddress:  token,
		Timestamp:     time.Now().UTC(),
	}
}

// fakeSource 依代幣回傳設定好的價格並計算呼叫次數
type fakeSource struct {
	mu     sync.Mutex
	prices map[string]float64
	fail   map[string]bool
	calls  map[string]int
	block  chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		prices: make(map[string]float64),
		fail:   make(map[string]bool),
		calls:  make(map[string]int),
	}
}

func (f *fakeSource) set(token string, price float64, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[token] = price
	f.fail[token] = fail
}

func (f *fakeSource) callCount(token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[token]
}

func (f *fakeSource) FetchPrice(ctx context.Context, tokenAddress string) (*client.PriceData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls[tokenAddress]++
	price, fail, block := f.prices[tokenAddress], f.fail[tokenAddress], f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errInjected
	}
	return &client.PriceData{Value: price, Symbol: "TK", Name: "Token"}, nil
}
