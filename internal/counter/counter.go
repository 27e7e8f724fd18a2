package counter

import (
	"context"
	"fmt"

	"github.com/fieldsurvey/fieldsurvey/internal/config"
	"github.com/fieldsurvey/fieldsurvey/internal/store"
	"github.com/fieldsurvey/fieldsurvey/internal/utils"
)

// Counter issues strictly increasing installation ids
type Counter interface {
	Next(ctx context.Context) (int64, error)
	Close() error
}

// StoreCounter increments the settings document held by the store
type StoreCounter struct {
	store store.Store
}

// NewStoreCounter creates a counter backed by s
func NewStoreCounter(s store.Store) *StoreCounter {
	return &StoreCounter{store: s}
}

// Next returns the next installation id
func (c *StoreCounter) Next(ctx context.Context) (int64, error) {
	id, err := c.store.NextInstallationID(ctx)
	if err != nil {
		return 0, fmt.Errorf("increment installation counter: %w", err)
	}
	return id, nil
}

// Close is a no-op; the store is owned by the caller
func (c *StoreCounter) Close() error { return nil }

// New creates the counter selected by cfg.Type
func New(cfg config.CounterConfig, s store.Store) (Counter, error) {
	switch utils.CounterType(cfg.Type) {
	case utils.CounterTypeStore, "":
		return NewStoreCounter(s), nil
	case utils.CounterTypeRedis:
		return NewRedisCounter(cfg.RedisURL, cfg.Key)
	default:
		return nil, fmt.Errorf("unsupported counter type: %s", cfg.Type)
	}
}
