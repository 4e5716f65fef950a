package accounts

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func cashAccount() Account {
	return Account{
		ID:              11,
		Code:            "1110",
		Name:            "Cash on Hand",
		Type:            AccountTypeAsset,
		NormalBalance:   NormalBalanceDebit,
		IsDetailAccount: true,
		IsActive:        true,
	}
}

func countingLoader(account Account) (func(context.Context) (Account, error), *atomic.Int32) {
	var calls atomic.Int32
	return func(ctx context.Context) (Account, error) {
		calls.Add(1)
		return account, nil
	}, &calls
}

func TestCacheFetchMissPopulates(t *testing.T) {
	cache, mr := newTestCache(t)
	loader, calls := countingLoader(cashAccount())

	got, err := cache.Fetch(context.Background(), 11, loader)
	require.NoError(t, err)
	assert.Equal(t, "1110", got.Code)
	assert.Equal(t, int32(1), calls.Load())

	// The miss left a cached payload behind.
	raw, err := mr.Get("accounts:id:11")
	require.NoError(t, err)
	var cached Account
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, got, cached)
}

func TestCacheFetchHitSkipsLoader(t *testing.T) {
	cache, _ := newTestCache(t)
	loader, calls := countingLoader(cashAccount())

	_, err := cache.Fetch(context.Background(), 11, loader)
	require.NoError(t, err)

	got, err := cache.Fetch(context.Background(), 11, loader)
	require.NoError(t, err)
	assert.Equal(t, "Cash on Hand", got.Name)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCacheFetchCorruptPayloadReloads(t *testing.T) {
	cache, mr := newTestCache(t)
	require.NoError(t, mr.Set("accounts:id:11", "{not json"))
	loader, calls := countingLoader(cashAccount())

	got, err := cache.Fetch(context.Background(), 11, loader)
	require.NoError(t, err)
	assert.Equal(t, "1110", got.Code)
	assert.Equal(t, int32(1), calls.Load())

	// The reload wrote a decodable payload back over the garbage.
	raw, err := mr.Get("accounts:id:11")
	require.NoError(t, err)
	var cached Account
	assert.NoError(t, json.Unmarshal([]byte(raw), &cached))
}

func TestCacheFetchCollapsesConcurrentMisses(t *testing.T) {
	cache, _ := newTestCache(t)

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	loader := func(ctx context.Context) (Account, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return cashAccount(), nil
	}

	var ready, wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		ready.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ready.Done()
			got, err := cache.Fetch(context.Background(), 11, loader)
			assert.NoError(t, err)
			assert.Equal(t, int64(11), got.ID)
		}()
	}

	// Keep the first load in flight until every goroutine has had a chance
	// to join it.
	ready.Wait()
	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	// Singleflight folds the burst into one database load.
	assert.Equal(t, int32(1), calls.Load())
}

func TestCacheInvalidateDropsEntry(t *testing.T) {
	cache, mr := newTestCache(t)
	loader, calls := countingLoader(cashAccount())

	_, err := cache.Fetch(context.Background(), 11, loader)
	require.NoError(t, err)
	require.True(t, mr.Exists("accounts:id:11"))

	cache.Invalidate(context.Background(), 11)
	assert.False(t, mr.Exists("accounts:id:11"))

	_, err = cache.Fetch(context.Background(), 11, loader)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNilCacheDelegatesToLoader(t *testing.T) {
	loader, calls := countingLoader(cashAccount())

	var cache *Cache
	got, err := cache.Fetch(context.Background(), 11, loader)
	require.NoError(t, err)
	assert.Equal(t, "1110", got.Code)

	cache = NewCache(nil, time.Minute)
	_, err = cache.Fetch(context.Background(), 11, loader)
	require.NoError(t, err)
	cache.Invalidate(context.Background(), 11)

	assert.Equal(t, int32(2), calls.Load())
}
