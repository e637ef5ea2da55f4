package storage

import (
	"context"
)

// SessionStore — хранилище сессий, токенов сброса пароля и push-подписок.
// Реализации: redis.Client, memory.Client (для -dev и тестов без Redis).
type SessionStore interface {
	SetSession(ctx context.Context, token, userID string) error
	GetSession(ctx context.Context, token string) (userID string, err error)
	DeleteSession(ctx context.Context, token string) error
	DeleteUserSessions(ctx context.Context, userID string) error

	SetResetToken(ctx context.Context, token, userID string) error
	GetResetToken(ctx context.Context, token string) (userID string, err error)
	DeleteResetToken(ctx context.Context, token string) error

	// CheckRateLimit ограничивает чувствительные операции (вход, сброс пароля)
	// по ключу; при превышении — HTTP 429.
	CheckRateLimit(ctx context.Context, key string) (allowed bool, err error)

	SavePushSubscription(ctx context.Context, userID, subscription string) error
	ListPushSubscriptions(ctx context.Context, userID string) ([]string, error)
	DeletePushSubscriptions(ctx context.Context, userID string) error

	Close() error
}
