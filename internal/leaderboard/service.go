package leaderboard

import (
	"context"
	"time"

	"github.com/chocobo244/creatingcustomersegment/internal/database"
)

// Source supplies channel standings for a tenant
type Source interface {
	Leaderboard(ctx context.Context, tenant string, limit int) ([]database.ChannelStanding, error)
}

// Board is one tenant's channel leaderboard
type Board struct {
	Tenant      string                     `json:"tenant"`
	Channels    []database.ChannelStanding `json:"channels"`
	Count       int                        `json:"count"`
	GeneratedAt time.Time                  `json:"generated_at"`
	Cached      bool                       `json:"cached"`
}

// Service serves channel leaderboards, caching each tenant+limit view until
// it expires or a new run is recorded for the tenant
type Service struct {
	source Source
	cache  *BoardCache
}

// NewService creates a leaderboard service over source
func NewService(source Source, ttl time.Duration) *Service {
	return &Service{
		source: source,
		cache:  NewBoardCache(ttl),
	}
}

// Get returns the leaderboard for tenant, reading through the cache
func (s *Service) Get(ctx context.Context, tenant string, limit int) (*Board, error) {
	if board, ok := s.cache.Get(ctx, tenant, limit); ok {
		board.Cached = true
		return board, nil
	}

	standings, err := s.source.Leaderboard(ctx, tenant, limit)
	if err != nil {
		return nil, err
	}
	if standings == nil {
		standings = []database.ChannelStanding{}
	}

	board := &Board{
		Tenant:      tenant,
		Channels:    standings,
		Count:       len(standings),
		GeneratedAt: time.Now().UTC(),
	}
	s.cache.Set(ctx, tenant, limit, board)

	return board, nil
}

// Invalidate drops every cached view for tenant
func (s *Service) Invalidate(ctx context.Context, tenant string) {
	s.cache.InvalidateTenant(ctx, tenant)
}

// Stats returns cache statistics
func (s *Service) Stats(ctx context.Context) map[string]interface{} {
	return s.cache.Stats(ctx)
}

// Close stops the cache janitor
func (s *Service) Close() error {
	return s.cache.Close()
}
