package middleware

import (
	"context"

	"github.com/corpchat/internal/model"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	userKey   contextKey = "user"
)

// GetUserID возвращает user_id из контекста (устанавливается SessionAuth).
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetUser возвращает аутентифицированного пользователя из контекста.
func GetUser(ctx context.Context) *model.User {
	v, _ := ctx.Value(userKey).(*model.User)
	return v
}

func withUser(ctx context.Context, u *model.User) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, u.ID)
	return context.WithValue(ctx, userKey, u)
}
