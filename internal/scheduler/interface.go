package scheduler

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_pruners.go -package=mocks github.com/mattjoyce/openbook/internal/scheduler CachePruner,LogPruner

// CachePruner drops expired cache entries.
type CachePruner interface {
	Prune(ctx context.Context) (int64, error)
}

// LogPruner drops query log entries older than a cutoff.
type LogPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
