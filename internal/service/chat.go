package service

import (
	"context"
	"fmt"
	"sync"

	"token_chat/internal/metrics"
	"token_chat/internal/models"
	"token_chat/internal/repository"
	"token_chat/pkg/log"
)

// room 是單一代幣的聊天室，所有欄位由 mu 保護。
// dead 為 true 表示已從 rooms 移除，持有舊指標的呼叫者必須重新取得。
type room struct {
	mu      sync.Mutex
	members map[string]Sender
	count   int64
	loaded  bool
	dead    bool
}

// ChatService 管理各代幣聊天室的成員、歷史與訊息保留上限
type ChatService struct {
	repo           repository.MessageRepository
	retentionLimit int
	metrics        *metrics.Metrics

	rooms sync.Map // tokenAddress -> *room
}

func NewChatService(repo repository.MessageRepository, retentionLimit int, m *metrics.Metrics) *ChatService {
	if m == nil {
		m = metrics.New(nil)
	}
	return &ChatService{
		repo:           repo,
		retentionLimit: retentionLimit,
		metrics:        m,
	}
}

// acquire 取得並鎖住聊天室，不存在時建立
func (s *ChatService) acquire(tokenAddress string) *room {
	for {
		v, _ := s.rooms.LoadOrStore(tokenAddress, &room{members: make(map[string]Sender)})
		r := v.(*room)
		r.mu.Lock()
		if !r.dead {
			return r
		}
		r.mu.Unlock()
	}
}

// evictLocked 在持有 r.mu 時呼叫
func (s *ChatService) evictLocked(tokenAddress string, r *room) {
	r.dead = true
	if s.rooms.CompareAndDelete(tokenAddress, r) && r.loaded {
		s.metrics.ActiveRooms.Dec()
	}
}

// JoinRoom 將連線加入聊天室並立即送出最近的歷史訊息。
// 加入與送出歷史都在房間鎖內完成，之後的廣播一定排在歷史之後。
func (s *ChatService) JoinRoom(ctx context.Context, tokenAddress string, sender Sender) error {
	r := s.acquire(tokenAddress)
	defer r.mu.Unlock()

	if !r.loaded {
		count, err := s.repo.CountByToken(ctx, tokenAddress)
		if err != nil {
			if len(r.members) == 0 {
				s.evictLocked(tokenAddress, r)
			}
			return fmt.Errorf("failed to count messages: %w", err)
		}
		r.count = count
		r.loaded = true
		s.metrics.ActiveRooms.Inc()
	}

	history, err := s.repo.FindRecentByToken(ctx, tokenAddress, s.retentionLimit)
	if err != nil {
		if len(r.members) == 0 {
			s.evictLocked(tokenAddress, r)
		}
		return fmt.Errorf("failed to load history: %w", err)
	}

	data, err := models.Encode(models.NewHistoryEnvelope(withColors(history)))
	if err != nil {
		if len(r.members) == 0 {
			s.evictLocked(tokenAddress, r)
		}
		return err
	}

	r.members[sender.ID()] = sender
	sender.Send(data)
	return nil
}

// LeaveRoom 移除連線，最後一人離開時卸載聊天室。重複呼叫不會有影響。
func (s *ChatService) LeaveRoom(tokenAddress string, sender Sender) {
	v, ok := s.rooms.Load(tokenAddress)
	if !ok {
		return
	}
	r := v.(*room)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dead {
		return
	}
	delete(r.members, sender.ID())
	if len(r.members) == 0 {
		s.evictLocked(tokenAddress, r)
	}
}

// HandleMessage 在交易內寫入訊息並修剪超出保留上限的舊訊息，成功後廣播。
// 沒有已載入聊天室的代幣直接忽略。
func (s *ChatService) HandleMessage(ctx context.Context, message *models.ChatMessage) error {
	v, ok := s.rooms.Load(message.TokenAddress)
	if !ok {
		s.metrics.Messages.WithLabelValues("ignored").Inc()
		return nil
	}
	r := v.(*room)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dead || !r.loaded {
		s.metrics.Messages.WithLabelValues("ignored").Inc()
		return nil
	}

	limit := int64(s.retentionLimit)
	err := s.repo.Transaction(ctx, func(tx repository.MessageRepository) error {
		if err := tx.Create(ctx, message); err != nil {
			return err
		}
		if r.count+1 > limit {
			if _, err := tx.PruneExcess(ctx, message.TokenAddress, s.retentionLimit); err != nil {
				return fmt.Errorf("failed to prune messages: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.Messages.WithLabelValues("failed").Inc()
		log.Ctx(ctx).Error().Err(err).
			Str(log.FieldTokenAddress, message.TokenAddress).
			Str(log.FieldMessageID, message.MessageID).
			Msg("Failed to persist chat message")
		return fmt.Errorf("failed to persist message: %w", err)
	}

	r.count = min(r.count+1, limit)
	s.metrics.Messages.WithLabelValues("persisted").Inc()

	out := *message
	out.ColorCode = Color(out.WalletAddress)
	data, err := models.Encode(models.NewChatMessageEnvelope(&out))
	if err != nil {
		return err
	}

	for _, member := range r.members {
		member.Send(data)
	}
	return nil
}

// History 回傳最近 limit 則訊息（由舊到新），limit 不超過保留上限
func (s *ChatService) History(ctx context.Context, tokenAddress string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > s.retentionLimit {
		limit = s.retentionLimit
	}
	history, err := s.repo.FindRecentByToken(ctx, tokenAddress, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return withColors(history), nil
}

// RoomMembers 回傳每個已載入聊天室的在線人數
func (s *ChatService) RoomMembers() map[string]int {
	out := make(map[string]int)
	s.rooms.Range(func(key, value any) bool {
		r := value.(*room)
		r.mu.Lock()
		if !r.dead && len(r.members) > 0 {
			out[key.(string)] = len(r.members)
		}
		r.mu.Unlock()
		return true
	})
	return out
}

func withColors(messages []models.ChatMessage) []models.ChatMessage {
	for i := range messages {
		messages[i].ColorCode = Color(messages[i].WalletAddress)
	}
	return messages
}
