package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Сессия живёт 30 дней, токен сброса пароля — час; rate limit 10 попыток /
// 10 минут на ключ.
const (
	SessionTTL         = 30 * 24 * 3600
	ResetTokenTTL      = 3600
	RateLimitWindow    = 600
	RateLimitMax       = 10
	pushSubscriptionNS = "push_subs:"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// SetSession пишет session:{token} и добавляет токен в user_sessions:{uid},
// чтобы каскадное удаление аккаунта могло снять все сессии разом.
func (c *Client) SetSession(ctx context.Context, token, userID string) error {
	if err := c.cli.Set(ctx, "session:"+token, userID, SessionTTL*time.Second).Err(); err != nil {
		return err
	}
	if err := c.cli.SAdd(ctx, "user_sessions:"+userID, token).Err(); err != nil {
		return err
	}
	return c.cli.Expire(ctx, "user_sessions:"+userID, SessionTTL*time.Second).Err()
}

// GetSession возвращает userId сессии; пустая строка — сессии нет.
func (c *Client) GetSession(ctx context.Context, token string) (string, error) {
	val, err := c.cli.Get(ctx, "session:"+token).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) DeleteSession(ctx context.Context, token string) error {
	userID, err := c.GetSession(ctx, token)
	if err != nil {
		return err
	}
	if userID != "" {
		c.cli.SRem(ctx, "user_sessions:"+userID, token)
	}
	return c.cli.Del(ctx, "session:"+token).Err()
}

func (c *Client) DeleteUserSessions(ctx context.Context, userID string) error {
	tokens, err := c.cli.SMembers(ctx, "user_sessions:"+userID).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	for _, t := range tokens {
		if err := c.cli.Del(ctx, "session:"+t).Err(); err != nil {
			return err
		}
	}
	return c.cli.Del(ctx, "user_sessions:"+userID).Err()
}

func (c *Client) SetResetToken(ctx context.Context, token, userID string) error {
	return c.cli.Set(ctx, "reset:"+token, userID, ResetTokenTTL*time.Second).Err()
}

func (c *Client) GetResetToken(ctx context.Context, token string) (string, error) {
	val, err := c.cli.Get(ctx, "reset:"+token).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) DeleteResetToken(ctx context.Context, token string) error {
	return c.cli.Del(ctx, "reset:"+token).Err()
}

// CheckRateLimit проверяет limit:{key}: макс. RateLimitMax попыток за окно.
func (c *Client) CheckRateLimit(ctx context.Context, key string) (bool, error) {
	k := "limit:" + key
	n, err := c.cli.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, k, RateLimitWindow*time.Second)
	}
	return n <= int64(RateLimitMax), nil
}

func (c *Client) SavePushSubscription(ctx context.Context, userID, subscription string) error {
	return c.cli.SAdd(ctx, pushSubscriptionNS+userID, subscription).Err()
}

func (c *Client) ListPushSubscriptions(ctx context.Context, userID string) ([]string, error) {
	subs, err := c.cli.SMembers(ctx, pushSubscriptionNS+userID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return subs, err
}

func (c *Client) DeletePushSubscriptions(ctx context.Context, userID string) error {
	return c.cli.Del(ctx, pushSubscriptionNS+userID).Err()
}

// FlushDB очищает текущую БД Redis (сброс окружения инструментом maintenance).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
