package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/fieldsurvey/fieldsurvey/internal/counter"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrar_ConcurrentRegistrations(t *testing.T) {
	r := NewRegistrar(logging.NewNop(), counter.NewStoreCounter(store.NewMemoryStore()), nil)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids []int64
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Register(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids = append(ids, res.InstallationID)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, []int64{1, 2}, ids)
}

type brokenCounter struct{}

func (brokenCounter) Next(ctx context.Context) (int64, error) { return 0, errors.New("redis down") }
func (brokenCounter) Close() error                            { return nil }

func TestRegistrar_CounterFailure(t *testing.T) {
	r := NewRegistrar(logging.NewNop(), brokenCounter{}, nil)

	_, err := r.Register(context.Background())
	requireCode(t, err, CodeInternal)
	require.Contains(t, err.Error(), "redis down")
}
