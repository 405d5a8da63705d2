package service

import (
	"sort"

	"token_chat/internal/cache"
	"token_chat/internal/metrics"
	"token_chat/internal/models"
	"token_chat/internal/repository"
	"token_chat/pkg/config"
)

type Services struct {
	Chat        *ChatService
	Tracker     *PriceTracker
	Connections *ConnectionManager
	Metrics     *metrics.Metrics
}

func NewServices(repos *repository.Repositories, source PriceSource, priceCache cache.PriceCache, cfg *config.Config, m *metrics.Metrics) *Services {
	if m == nil {
		m = metrics.New(nil)
	}
	chat := NewChatService(repos.Message, cfg.Chat.RetentionLimit, m)
	tracker := NewPriceTracker(source, priceCache, PriceTrackerConfig{
		PollInterval: cfg.Price.PollInterval,
		FetchTimeout: cfg.Price.FetchTimeout,
	}, m)

	return &Services{
		Chat:        chat,
		Tracker:     tracker,
		Connections: NewConnectionManager(chat, tracker, m),
		Metrics:     m,
	}
}

// ActiveRooms 列出目前有人在線的聊天室，附上最後價格，依人數由多到少排序
func (s *Services) ActiveRooms() []models.RoomStats {
	members := s.Chat.RoomMembers()
	rooms := make([]models.RoomStats, 0, len(members))

	for token, count := range members {
		stats := models.RoomStats{TokenAddress: token, UserCount: count}
		if price, ok := s.Tracker.Snapshot(token); ok {
			p := price.Price
			stats.LastPrice = &p
			stats.TokenName = price.TokenName
			stats.TokenSymbol = price.TokenSymbol
		}
		rooms = append(rooms, stats)
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].UserCount != rooms[j].UserCount {
			return rooms[i].UserCount > rooms[j].UserCount
		}
		return rooms[i].TokenAddress < rooms[j].TokenAddress
	})
	return rooms
}

// Shutdown 關閉所有連線並停止價格輪詢
func (s *Services) Shutdown() {
	s.Connections.CloseAll()
	s.Tracker.Close()
}
