package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"asset_inventory_tool/models"
)

// SummaryCache keeps recently built inventory summaries in redis so a fleet
// of polling scan stations does not rebuild the aggregate on every request.
type SummaryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSummaryCache(rdb *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{rdb: rdb, ttl: ttl}
}

func key(location string) string {
	if location == "" {
		location = "*all*"
	}
	return fmt.Sprintf("inv:summary:%s", location)
}

const keySet = "inv:summary:keys"

func (s *SummaryCache) Get(ctx context.Context, location string) (*models.InventorySummary, bool) {
	b, err := s.rdb.Get(ctx, key(location)).Bytes()
	if err != nil {
		return nil, false
	}
	var out models.InventorySummary
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, false
	}
	return &out, true
}

func (s *SummaryCache) Set(ctx context.Context, location string, sum *models.InventorySummary) error {
	b, _ := json.Marshal(sum)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key(location), b, s.ttl)
	pipe.SAdd(ctx, keySet, key(location))
	pipe.Expire(ctx, keySet, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Invalidate drops every cached summary. Called after each successful batch
// save so agents never poll a stale view for longer than one request.
func (s *SummaryCache) Invalidate(ctx context.Context) error {
	keys, err := s.rdb.SMembers(ctx, keySet).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	for _, k := range keys {
		pipe.Del(ctx, k)
	}
	pipe.Del(ctx, keySet)
	_, err = pipe.Exec(ctx)
	return err
}
