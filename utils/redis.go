package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"SlackScheduler/internal/core"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewRedis parses url and checks the server is reachable.
func NewRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// ChannelCache keeps Slack channel listings in redis for a short while.
type ChannelCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewChannelCache(rdb *redis.Client, ttl time.Duration) *ChannelCache {
	return &ChannelCache{rdb: rdb, ttl: ttl}
}

// ChannelCacheKey scopes a listing to the owner and the token that produced
// it, so a re-authorization never serves a stale catalog.
func ChannelCacheKey(owner core.Owner, token string) string {
	return fmt.Sprintf("channels:%s:%s:%s", owner.TeamID, owner.UserID, Hash(token)[:16])
}

func (c *ChannelCache) Get(ctx context.Context, key string) ([]core.Channel, bool) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("channel cache read")
		}
		return nil, false
	}
	var chans []core.Channel
	if err := json.Unmarshal([]byte(val), &chans); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("channel cache decode")
		return nil, false
	}
	return chans, true
}

func (c *ChannelCache) Set(ctx context.Context, key string, chans []core.Channel) {
	data, err := json.Marshal(chans)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("channel cache write")
	}
}
