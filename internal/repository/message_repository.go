package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"token_chat/internal/models"
	"token_chat/internal/storage"
)

var ErrDuplicateMessage = errors.New("message id already exists")

// MessageRepository 是聊天訊息的持久層。
// Transaction 內的 fn 收到的 repo 與外層共用同一個交易，fn 回傳錯誤即整個回滾。
type MessageRepository interface {
	Create(ctx context.Context, message *models.ChatMessage) error
	CountByToken(ctx context.Context, tokenAddress string) (int64, error)
	// FindRecentByToken 回傳最新的 limit 則訊息，順序由舊到新
	FindRecentByToken(ctx context.Context, tokenAddress string, limit int) ([]models.ChatMessage, error)
	// PruneExcess 只保留最新的 keep 則訊息，回傳刪除筆數
	PruneExcess(ctx context.Context, tokenAddress string, keep int) (int64, error)
	Transaction(ctx context.Context, fn func(repo MessageRepository) error) error
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *storage.PostgresDB) MessageRepository {
	return &messageRepository{db: db.DB}
}

func (r *messageRepository) Create(ctx context.Context, message *models.ChatMessage) error {
	err := r.db.WithContext(ctx).Create(message).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrDuplicateMessage, message.MessageID)
	}
	return err
}

func (r *messageRepository) CountByToken(ctx context.Context, tokenAddress string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("token_address = ?", tokenAddress).
		Count(&count).Error
	return count, err
}

func (r *messageRepository) FindRecentByToken(ctx context.Context, tokenAddress string, limit int) ([]models.ChatMessage, error) {
	messages := make([]models.ChatMessage, 0)
	if limit <= 0 {
		return messages, nil
	}

	err := r.db.WithContext(ctx).
		Where("token_address = ?", tokenAddress).
		Order("seq desc").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// 查詢取最新的 limit 則，輸出改為由舊到新
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *messageRepository) PruneExcess(ctx context.Context, tokenAddress string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	db := r.db.WithContext(ctx)
	newest := db.Model(&models.ChatMessage{}).
		Select("seq").
		Where("token_address = ?", tokenAddress).
		Order("seq desc").
		Limit(keep)

	result := db.
		Where("token_address = ? AND seq NOT IN (?)", tokenAddress, newest).
		Delete(&models.ChatMessage{})
	return result.RowsAffected, result.Error
}

func (r *messageRepository) Transaction(ctx context.Context, fn func(repo MessageRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&messageRepository{db: tx})
	})
}
