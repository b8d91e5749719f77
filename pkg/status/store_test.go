package status

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/postpilot/pkg/post"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func operation(id string, created time.Time) post.Operation {
	return post.Operation{
		ID:        id,
		Status:    post.StatusPending,
		CreatedAt: created,
		Payload: post.Payload{
			Image:   post.ImageReference{Kind: post.ImageKindHTTPURL, Value: "https://img.example.test/a.jpg"},
			Caption: "hello",
		},
	}
}

func setupRedisStore(t *testing.T, clock *fakeClock) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := DialRedis(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisStore(client, "test:", DefaultRetention, WithRedisClock(clock.Now))
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, newStore func(clock *fakeClock) Store) {
	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		clock := newClock()
		s := newStore(clock)

		op := operation("post_1", clock.Now())
		require.NoError(t, s.Put(ctx, op))

		got, err := s.Get(ctx, "post_1")
		require.NoError(t, err)
		assert.Equal(t, op.ID, got.ID)
		assert.Equal(t, op.Status, got.Status)
		assert.Equal(t, op.Payload, got.Payload)
		assert.True(t, op.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("create refuses a retained id", func(t *testing.T) {
		clock := newClock()
		s := newStore(clock)

		done := operation("post_1", clock.Now())
		done.Status = post.StatusCompleted
		require.NoError(t, s.Create(ctx, done))
		assert.ErrorIs(t, s.Create(ctx, operation("post_1", clock.Now())), ErrExists)

		got, err := s.Get(ctx, "post_1")
		require.NoError(t, err)
		assert.Equal(t, post.StatusCompleted, got.Status)
	})

	t.Run("create reuses an expired id", func(t *testing.T) {
		clock := newClock()
		s := newStore(clock)

		require.NoError(t, s.Create(ctx, operation("post_1", clock.Now())))
		clock.Advance(DefaultRetention + time.Second)
		assert.NoError(t, s.Create(ctx, operation("post_1", clock.Now())))
	})

	t.Run("unknown", func(t *testing.T) {
		s := newStore(newClock())
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		clock := newClock()
		s := newStore(clock)
		require.NoError(t, s.Put(ctx, operation("post_1", clock.Now())))
		require.NoError(t, s.Delete(ctx, "post_1"))
		_, err := s.Get(ctx, "post_1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("expires after retention regardless of status", func(t *testing.T) {
		clock := newClock()
		s := newStore(clock)

		done := operation("post_done", clock.Now())
		done.Status = post.StatusCompleted
		require.NoError(t, s.Put(ctx, done))
		require.NoError(t, s.Put(ctx, operation("post_open", clock.Now())))

		clock.Advance(DefaultRetention)
		_, err := s.Get(ctx, "post_done")
		assert.NoError(t, err, "still retained at exactly the retention")

		clock.Advance(time.Second)
		_, err = s.Get(ctx, "post_done")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Get(ctx, "post_open")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("sweep", func(t *testing.T) {
		clock := newClock()
		s := newStore(clock)

		require.NoError(t, s.Put(ctx, operation("old", clock.Now())))
		clock.Advance(20 * time.Minute)
		require.NoError(t, s.Put(ctx, operation("new", clock.Now())))

		removed, err := s.SweepExpired(ctx, clock.Now().Add(15*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, err = s.Get(ctx, "new")
		assert.NoError(t, err)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(clock *fakeClock) Store {
		return NewMemoryStore(DefaultRetention, WithMemoryClock(clock.Now))
	})
}

func TestRedisStore(t *testing.T) {
	storeContract(t, func(clock *fakeClock) Store {
		_, s := setupRedisStore(t, clock)
		return s
	})
}

func TestMemoryStore_SweepRemovesEntries(t *testing.T) {
	clock := newClock()
	s := NewMemoryStore(time.Minute, WithMemoryClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, operation("a", clock.Now())))
	require.NoError(t, s.Put(ctx, operation("b", clock.Now())))
	assert.Equal(t, 2, s.Len())

	removed, err := s.SweepExpired(ctx, clock.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, s.Len())
}

func TestRedisStore_TTLIsRemainingRetention(t *testing.T) {
	clock := newClock()
	mr, s := setupRedisStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, operation("post_1", clock.Now().Add(-10*time.Minute))))
	assert.Equal(t, 20*time.Minute, mr.TTL("test:post_1"))

	mr.FastForward(20*time.Minute + time.Second)
	assert.False(t, mr.Exists("test:post_1"))
}

func TestRedisStore_PutExpiredDeletes(t *testing.T) {
	clock := newClock()
	mr, s := setupRedisStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, operation("post_1", clock.Now())))
	require.True(t, mr.Exists("test:post_1"))

	require.NoError(t, s.Put(ctx, operation("post_1", clock.Now().Add(-time.Hour))))
	assert.False(t, mr.Exists("test:post_1"))
}

func TestRedisStore_SweepDropsCorruptRecords(t *testing.T) {
	clock := newClock()
	mr, s := setupRedisStore(t, clock)

	require.NoError(t, mr.Set("test:broken", "{not json"))
	require.NoError(t, mr.Set("other:key", "kept"))

	removed, err := s.SweepExpired(context.Background(), clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.True(t, mr.Exists("other:key"))
}

func TestDialRedis_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = DialRedis(context.Background(), RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestNewRedisStore_Defaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	s := NewRedisStore(client, "", 0)
	assert.Equal(t, DefaultRedisConfig().Prefix, s.prefix)
	assert.Equal(t, DefaultRetention, s.retention)
}
