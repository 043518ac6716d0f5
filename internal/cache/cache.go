package cache

import (
	"context"
	"time"

	"branchsettle/backend/internal/domain"
)

// ViewCache stores computed settlement views. Keys embed the current
// generation, so bumping it after any write orphans every older view.
type ViewCache interface {
	Get(ctx context.Context, key string) (*domain.SettlementView, bool, error)
	Set(ctx context.Context, key string, value *domain.SettlementView, ttl time.Duration) error
	Generation(ctx context.Context) (int64, error)
	Bump(ctx context.Context) error
}

type NoopViewCache struct{}

func (NoopViewCache) Get(_ context.Context, _ string) (*domain.SettlementView, bool, error) {
	return nil, false, nil
}

func (NoopViewCache) Set(_ context.Context, _ string, _ *domain.SettlementView, _ time.Duration) error {
	return nil
}

func (NoopViewCache) Generation(_ context.Context) (int64, error) {
	return 0, nil
}

func (NoopViewCache) Bump(_ context.Context) error {
	return nil
}
