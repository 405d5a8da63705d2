package service

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"token_chat/internal/metrics"
)

type attachment struct {
	tokenAddress string
	sender       Sender
}

// ConnectionManager 記錄所有已掛上聊天室與價格訂閱的連線
type ConnectionManager struct {
	chat    *ChatService
	tracker *PriceTracker
	metrics *metrics.Metrics

	mu      sync.Mutex
	closed  bool
	clients map[string]*attachment
}

func NewConnectionManager(chat *ChatService, tracker *PriceTracker, m *metrics.Metrics) *ConnectionManager {
	if m == nil {
		m = metrics.New(nil)
	}
	return &ConnectionManager{
		chat:    chat,
		tracker: tracker,
		metrics: m,
		clients: make(map[string]*attachment),
	}
}

// Attach 同時加入聊天室與價格訂閱，任一失敗時撤銷另一個
func (m *ConnectionManager) Attach(ctx context.Context, tokenAddress string, sender Sender) error {
	var joined, tracking bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := m.chat.JoinRoom(gctx, tokenAddress, sender); err != nil {
			return err
		}
		joined = true
		return nil
	})
	g.Go(func() error {
		if err := m.tracker.StartTracking(gctx, tokenAddress, sender); err != nil {
			return err
		}
		tracking = true
		return nil
	})

	err := g.Wait()
	if err == nil {
		m.mu.Lock()
		if m.closed {
			err = ErrConnectionClosed
		} else {
			m.clients[sender.ID()] = &attachment{tokenAddress: tokenAddress, sender: sender}
			m.metrics.ActiveConnections.Inc()
		}
		m.mu.Unlock()
	}

	if err != nil {
		if joined {
			m.chat.LeaveRoom(tokenAddress, sender)
		}
		if tracking {
			m.tracker.StopTracking(tokenAddress, sender)
		}
		return err
	}
	return nil
}

// Detach 從聊天室與價格訂閱移除連線。
// 同一連線只有第一次呼叫會生效，之後回傳 false。
func (m *ConnectionManager) Detach(sender Sender) bool {
	m.mu.Lock()
	a, ok := m.clients[sender.ID()]
	if ok {
		delete(m.clients, sender.ID())
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	m.chat.LeaveRoom(a.tokenAddress, a.sender)
	m.tracker.StopTracking(a.tokenAddress, a.sender)
	m.metrics.ActiveConnections.Dec()
	return true
}

func (m *ConnectionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// CloseAll 關閉所有連線並拒絕之後的 Attach，清理由各連線自己的 Detach 完成
func (m *ConnectionManager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	senders := make([]Sender, 0, len(m.clients))
	for _, a := range m.clients {
		senders = append(senders, a.sender)
	}
	m.mu.Unlock()

	for _, s := range senders {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
