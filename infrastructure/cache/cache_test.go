package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

func sampleResult(formID string) domain.AffinityResult {
	m := domain.NewSimilarityMatrix(formID)
	m.Set("a", "b", 0.875)
	return domain.AffinityResult{
		FormID:    formID,
		Threshold: 0.5,
		Groups: []domain.AffinityGroup{
			{FormID: formID, Representative: "a", Members: []string{"a", "b"}},
			{FormID: formID, Representative: "c", Members: []string{"c"}},
		},
		Matrix: m,
	}
}

// fakeRedis implements the handful of commands RedisStore issues. Any
// other command panics through the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "del")
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func TestActiveKey(t *testing.T) {
	assert.Equal(t, "affinity:active:survey-1", ActiveKey("survey-1"))
}

func TestStores_RoundTrip(t *testing.T) {
	stores := map[string]ports.ActiveGroupStore{
		"memory": NewMemoryStore(time.Hour),
		"redis":  NewRedisStore(newFakeRedis(), time.Hour),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := store.Active(ctx, "f")
			require.NoError(t, err)
			assert.False(t, ok)

			want := sampleResult("f")
			require.NoError(t, store.SetActive(ctx, want))

			got, ok, err := store.Active(ctx, "f")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want.Groups, got.Groups)
			assert.Equal(t, want.Threshold, got.Threshold)
			score, defined := got.Matrix.Get("b", "a")
			assert.True(t, defined)
			assert.Equal(t, 0.875, score)

			group, ok := got.GroupFor("b")
			require.True(t, ok)
			assert.Equal(t, "a", group.Representative)

			replacement := sampleResult("f")
			replacement.Threshold = 0.9
			require.NoError(t, store.SetActive(ctx, replacement))
			got, _, err = store.Active(ctx, "f")
			require.NoError(t, err)
			assert.Equal(t, 0.9, got.Threshold)

			require.NoError(t, store.Clear(ctx, "f"))
			require.NoError(t, store.Clear(ctx, "f"), "clearing an absent entry is not an error")
			_, ok, err = store.Active(ctx, "f")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Minute)
	store.now = func() time.Time { return now }

	require.NoError(t, store.SetActive(context.Background(), sampleResult("f")))

	now = now.Add(59 * time.Second)
	_, ok, err := store.Active(context.Background(), "f")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, err = store.Active(context.Background(), "f")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore(0)
	require.NoError(t, store.SetActive(context.Background(), sampleResult("f")))

	first, _, err := store.Active(context.Background(), "f")
	require.NoError(t, err)
	first.Groups[0].Members[0] = "mutated"

	second, _, err := store.Active(context.Background(), "f")
	require.NoError(t, err)
	assert.Equal(t, "a", second.Groups[0].Members[0])
}

func TestRedisStore_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("ttl is passed through", func(t *testing.T) {
		fake := newFakeRedis()
		store := NewRedisStore(fake, 5*time.Minute)
		require.NoError(t, store.SetActive(ctx, sampleResult("f")))
		assert.Equal(t, 5*time.Minute, fake.ttls[ActiveKey("f")])
	})

	t.Run("backend failure", func(t *testing.T) {
		fake := newFakeRedis()
		fake.err = errors.New("connection refused")
		store := NewRedisStore(fake, 0)

		err := store.SetActive(ctx, sampleResult("f"))
		assert.ErrorIs(t, err, ports.ErrStoreUnavailable)

		_, _, err = store.Active(ctx, "f")
		var cerr *ports.CacheError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "get", cerr.Operation)
		assert.Equal(t, ActiveKey("f"), cerr.Key)

		assert.ErrorIs(t, store.Clear(ctx, "f"), ports.ErrStoreUnavailable)
	})

	t.Run("corrupted payload", func(t *testing.T) {
		fake := newFakeRedis()
		fake.data[ActiveKey("f")] = "{not json"
		store := NewRedisStore(fake, 0)

		_, ok, err := store.Active(ctx, "f")
		assert.False(t, ok)
		assert.ErrorIs(t, err, ports.ErrCacheCorrupted)
	})
}
