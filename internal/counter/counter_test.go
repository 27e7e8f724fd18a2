package counter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fieldsurvey/fieldsurvey/internal/config"
	"github.com/fieldsurvey/fieldsurvey/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, c Counter, n int) []int64 {
	t.Helper()
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		ids []int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := c.Next(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			ids = append(ids, id)
			mu.Unlock()
		}()
	}
	wg.Wait()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestStoreCounter_ConcurrentRegistrations(t *testing.T) {
	c := NewStoreCounter(store.NewMemoryStore())
	assert.Equal(t, []int64{1, 2}, collect(t, c, 2))
	assert.Equal(t, []int64{3, 4, 5}, collect(t, c, 3))
}

type failingStore struct {
	store.Store
}

func (failingStore) NextInstallationID(ctx context.Context) (int64, error) {
	return 0, errors.New("store down")
}

func TestStoreCounter_Error(t *testing.T) {
	_, err := NewStoreCounter(failingStore{}).Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
}

func TestNew(t *testing.T) {
	c, err := New(config.CounterConfig{Type: "store"}, store.NewMemoryStore())
	require.NoError(t, err)
	assert.IsType(t, &StoreCounter{}, c)

	_, err = New(config.CounterConfig{Type: "zookeeper"}, nil)
	assert.Error(t, err)
}

// Test helper: get Redis URL from env or default
func getRedisURL() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return url
	}
	return "redis://localhost:6379"
}

func TestRedisCounter(t *testing.T) {
	opts, err := redis.ParseURL(getRedisURL())
	require.NoError(t, err)
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if client.Ping(ctx).Err() != nil {
		_ = client.Close()
		t.Skip("Redis not available, skipping test")
	}

	key := fmt.Sprintf("fieldsurvey:test:%d", time.Now().UnixNano())
	c, err := NewRedisCounterWithClient(context.Background(), client, key)
	require.NoError(t, err)
	defer func() {
		client.Del(context.Background(), key)
		_ = c.Close()
	}()

	assert.Equal(t, []int64{1, 2}, collect(t, c, 2))
}
