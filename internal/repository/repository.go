package repository

import "token_chat/internal/storage"

type Repositories struct {
	Message MessageRepository
}

func NewRepositories(db *storage.PostgresDB) *Repositories {
	return &Repositories{
		Message: NewMessageRepository(db),
	}
}
