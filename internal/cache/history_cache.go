package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"agentchat/internal/model"
)

// HistoryCache keeps the agent context window of each session as a Redis
// list, oldest message first and capped at the window size. Writers
// invalidate a session before changing it; while the dirty marker is set the
// window is neither served nor refilled.
type HistoryCache struct {
	client   *redisv9.Client
	window   int
	ttl      time.Duration
	dirtyTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, window int, ttl, dirtyTTL time.Duration) *HistoryCache {
	if window <= 0 {
		window = 10
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if dirtyTTL <= 0 {
		dirtyTTL = 5 * time.Second
	}
	return &HistoryCache{client: client, window: window, ttl: ttl, dirtyTTL: dirtyTTL}
}

func windowKey(sessionID string) string { return "chat:window:" + sessionID }

func dirtyKey(sessionID string) string { return "chat:window:dirty:" + sessionID }

// Window returns the cached context window. ok is false on a miss or while
// the session is dirty.
func (c *HistoryCache) Window(ctx context.Context, sessionID string) ([]*model.ChatMessage, bool, error) {
	var dirty *redisv9.IntCmd
	var items *redisv9.StringSliceCmd
	_, err := c.client.Pipelined(ctx, func(p redisv9.Pipeliner) error {
		dirty = p.Exists(ctx, dirtyKey(sessionID))
		items = p.LRange(ctx, windowKey(sessionID), 0, -1)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("redis read window failed: %w", err)
	}
	if dirty.Val() > 0 || len(items.Val()) == 0 {
		return nil, false, nil
	}

	messages := make([]*model.ChatMessage, 0, len(items.Val()))
	for _, raw := range items.Val() {
		var msg model.ChatMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, false, fmt.Errorf("unmarshal cached message failed: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, true, nil
}

// Fill stores the newest window of messages unless the session turned dirty.
// The dirty marker is watched, so an Invalidate racing with Fill wins.
func (c *HistoryCache) Fill(ctx context.Context, sessionID string, messages []*model.ChatMessage) error {
	if len(messages) > c.window {
		messages = messages[len(messages)-c.window:]
	}
	if len(messages) == 0 {
		return nil
	}
	items := make([]any, 0, len(messages))
	for _, msg := range messages {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal cached message failed: %w", err)
		}
		items = append(items, payload)
	}

	key := windowKey(sessionID)
	err := c.client.Watch(ctx, func(tx *redisv9.Tx) error {
		dirty, err := tx.Exists(ctx, dirtyKey(sessionID)).Result()
		if err != nil || dirty > 0 {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redisv9.Pipeliner) error {
			p.Del(ctx, key)
			p.RPush(ctx, key, items...)
			p.LTrim(ctx, key, int64(-c.window), -1)
			p.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, dirtyKey(sessionID))
	if errors.Is(err, redisv9.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis fill window failed: %w", err)
	}
	return nil
}

// Invalidate marks the session dirty and drops its window.
func (c *HistoryCache) Invalidate(ctx context.Context, sessionID string) error {
	_, err := c.client.TxPipelined(ctx, func(p redisv9.Pipeliner) error {
		p.Set(ctx, dirtyKey(sessionID), "1", c.dirtyTTL)
		p.Del(ctx, windowKey(sessionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate window failed: %w", err)
	}
	return nil
}
