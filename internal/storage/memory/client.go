package memory

import (
	"context"
	"sync"
	"time"
)

const (
	sessionTTL      = 30 * 24 * time.Hour
	resetTokenTTL   = time.Hour
	rateLimitWindow = 600 * time.Second
	rateLimitMax    = 10
)

type item struct {
	val string
	exp time.Time
}

type Client struct {
	mu       sync.RWMutex
	sessions map[string]item
	byUser   map[string][]string
	resets   map[string]item
	limit    map[string][]time.Time
	pushSubs map[string][]string
}

func New() *Client {
	return &Client{
		sessions: make(map[string]item),
		byUser:   make(map[string][]string),
		resets:   make(map[string]item),
		limit:    make(map[string][]time.Time),
		pushSubs: make(map[string][]string),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetSession(ctx context.Context, token, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[token] = item{val: userID, exp: time.Now().Add(sessionTTL)}
	c.byUser[userID] = append(c.byUser[userID], token)
	return nil
}

func (c *Client) GetSession(ctx context.Context, token string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.sessions[token]
	if !ok || time.Now().After(v.exp) {
		return "", nil
	}
	return v.val, nil
}

func (c *Client) DeleteSession(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.sessions[token]; ok {
		tokens := c.byUser[v.val][:0]
		for _, t := range c.byUser[v.val] {
			if t != token {
				tokens = append(tokens, t)
			}
		}
		c.byUser[v.val] = tokens
	}
	delete(c.sessions, token)
	return nil
}

func (c *Client) DeleteUserSessions(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.byUser[userID] {
		delete(c.sessions, t)
	}
	delete(c.byUser, userID)
	return nil
}

func (c *Client) SetResetToken(ctx context.Context, token, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets[token] = item{val: userID, exp: time.Now().Add(resetTokenTTL)}
	return nil
}

func (c *Client) GetResetToken(ctx context.Context, token string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.resets[token]
	if !ok || time.Now().After(v.exp) {
		return "", nil
	}
	return v.val, nil
}

func (c *Client) DeleteResetToken(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.resets, token)
	return nil
}

func (c *Client) CheckRateLimit(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-rateLimitWindow)
	recent := c.limit[key][:0]
	for _, t := range c.limit[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	c.limit[key] = recent
	return len(recent) <= rateLimitMax, nil
}

func (c *Client) SavePushSubscription(ctx context.Context, userID, subscription string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.pushSubs[userID] {
		if s == subscription {
			return nil
		}
	}
	c.pushSubs[userID] = append(c.pushSubs[userID], subscription)
	return nil
}

func (c *Client) ListPushSubscriptions(ctx context.Context, userID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.pushSubs[userID]))
	copy(out, c.pushSubs[userID])
	return out, nil
}

func (c *Client) DeletePushSubscriptions(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pushSubs, userID)
	return nil
}
