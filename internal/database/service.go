package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/chocobo244/creatingcustomersegment/internal/attribution"
)

// RunService records engine results and serves run history
type RunService struct {
	repo      *Repository
	retention time.Duration
}

// NewRunService creates a run service. A zero retention keeps runs forever.
func NewRunService(repo *Repository, retention time.Duration) *RunService {
	return &RunService{repo: repo, retention: retention}
}

// Record stores res for tenant and returns the new run id
func (s *RunService) Record(ctx context.Context, tenant string, res *attribution.Result) (string, error) {
	run := NewRun(tenant, res)
	if err := s.repo.SaveRun(ctx, run); err != nil {
		return "", err
	}
	return run.ID, nil
}

// Get loads one run
func (s *RunService) Get(ctx context.Context, id string) (*Run, error) {
	return s.repo.GetRun(ctx, id)
}

// List pages through a tenant's runs
func (s *RunService) List(ctx context.Context, tenant string, limit, offset int) ([]Run, error) {
	return s.repo.ListRuns(ctx, tenant, limit, offset)
}

// Leaderboard ranks a tenant's channels by credited value
func (s *RunService) Leaderboard(ctx context.Context, tenant string, limit int) ([]ChannelStanding, error) {
	return s.repo.ChannelLeaderboard(ctx, tenant, limit)
}

// StartRetention prunes expired runs every interval until ctx is done
func (s *RunService) StartRetention(ctx context.Context, interval time.Duration) {
	if s.retention <= 0 || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.prune(ctx)
			}
		}
	}()
}

func (s *RunService) prune(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention)
	n, err := s.repo.PruneRuns(ctx, cutoff)
	if err != nil {
		slog.Warn("Run retention failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Pruned expired attribution runs", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
}
