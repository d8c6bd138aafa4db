package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chocobo244/creatingcustomersegment/internal/cache"
)

// BoardCache keeps rendered leaderboards in memory and remembers which keys
// belong to which tenant so a tenant can be invalidated at once
type BoardCache struct {
	cache *cache.Cache

	mu   sync.Mutex
	keys map[string]map[string]struct{}
}

// NewBoardCache creates a leaderboard cache
func NewBoardCache(ttl time.Duration) *BoardCache {
	return &BoardCache{
		cache: cache.NewCache(ttl),
		keys:  make(map[string]map[string]struct{}),
	}
}

func boardKey(tenant string, limit int) string {
	return fmt.Sprintf("leaderboard:%s:%d", tenant, limit)
}

// Get retrieves a cached leaderboard
func (bc *BoardCache) Get(ctx context.Context, tenant string, limit int) (*Board, bool) {
	key := boardKey(tenant, limit)

	data, found := bc.cache.Get(ctx, key)
	if !found {
		return nil, false
	}

	var board Board
	if err := json.Unmarshal(data, &board); err != nil {
		slog.Error("Failed to unmarshal cached leaderboard", "error", err, "key", key)
		return nil, false
	}

	slog.Debug("Leaderboard cache hit", "tenant", tenant, "limit", limit)
	return &board, true
}

// Set caches a leaderboard
func (bc *BoardCache) Set(ctx context.Context, tenant string, limit int, board *Board) {
	key := boardKey(tenant, limit)

	data, err := json.Marshal(board)
	if err != nil {
		slog.Error("Failed to marshal leaderboard for cache", "error", err, "tenant", tenant)
		return
	}

	if err := bc.cache.Set(ctx, key, data); err != nil {
		slog.Warn("Failed to cache leaderboard", "error", err, "tenant", tenant)
		return
	}

	bc.mu.Lock()
	if bc.keys[tenant] == nil {
		bc.keys[tenant] = make(map[string]struct{})
	}
	bc.keys[tenant][key] = struct{}{}
	bc.mu.Unlock()

	slog.Debug("Leaderboard cached", "tenant", tenant, "limit", limit, "channels", board.Count)
}

// InvalidateTenant removes every cached leaderboard for tenant
func (bc *BoardCache) InvalidateTenant(ctx context.Context, tenant string) {
	bc.mu.Lock()
	keys := bc.keys[tenant]
	delete(bc.keys, tenant)
	bc.mu.Unlock()

	for key := range keys {
		if err := bc.cache.Delete(ctx, key); err != nil {
			slog.Warn("Failed to invalidate leaderboard", "error", err, "key", key)
		}
	}
}

// Stats returns cache statistics
func (bc *BoardCache) Stats(ctx context.Context) map[string]interface{} {
	stats := bc.cache.Stats(ctx)

	bc.mu.Lock()
	stats["tenants"] = len(bc.keys)
	bc.mu.Unlock()

	return stats
}

// Close stops the underlying cache
func (bc *BoardCache) Close() error {
	return bc.cache.Close()
}
