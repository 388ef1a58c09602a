package quota

import (
	"context"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

// Counter reports how many books are in the library
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// StoreUsage reads the tier from configuration and the size from the store
type StoreUsage struct {
	tier    models.Tier
	counter Counter
}

// NewStoreUsage returns a UsageQuota backed by a fixed tier and a store
func NewStoreUsage(tier models.Tier, counter Counter) *StoreUsage {
	return &StoreUsage{tier: tier, counter: counter}
}

func (u *StoreUsage) Tier(ctx context.Context) (models.Tier, error) {
	return u.tier, nil
}

func (u *StoreUsage) CurrentCollectionSize(ctx context.Context) (int, error) {
	return u.counter.Count(ctx)
}
