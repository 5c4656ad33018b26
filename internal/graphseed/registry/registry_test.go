package registry

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ResampleUntilUnique(t *testing.T) {
	r := NewDestinationRegistry(4, 0)
	candidates := []int64{3, 3, 3, 5}
	i := 0
	next := func() int64 {
		v := candidates[i]
		i++
		return v
	}

	v, err := r.Reserve(context.Background(), 1, next)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = r.Reserve(context.Background(), 1, next)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
	assert.Equal(t, 4, i)
	assert.Equal(t, 2, r.Len(1))

	// Another origin starts with an empty set.
	v, err = r.Reserve(context.Background(), 2, func() int64 { return 3 })
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestRegistry_Exhausted(t *testing.T) {
	r := NewValueRegistry(1, 5)
	_, err := r.Reserve(context.Background(), "hashtag", func() string { return "same" })
	require.NoError(t, err)

	calls := 0
	_, err = r.Reserve(context.Background(), "hashtag", func() string {
		calls++
		return "same"
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 5, calls)
}

func TestRegistry_ContextCancelled(t *testing.T) {
	r := NewValueRegistry(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Reserve(ctx, "userName", func() string { return "x" })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_ReleaseAndReset(t *testing.T) {
	r := NewDestinationRegistry(8, 0)
	for origin := int64(1); origin <= 3; origin++ {
		_, err := r.Reserve(context.Background(), origin, func() int64 { return 7 })
		require.NoError(t, err)
	}
	r.Release(2)
	assert.True(t, r.Contains(1, 7))
	assert.False(t, r.Contains(2, 7))

	r.Reset()
	assert.False(t, r.Contains(1, 7))
	assert.Equal(t, 0, r.Len(3))
}

func TestRegistry_ConcurrentReservationsAreUnique(t *testing.T) {
	const workers = 16
	const perWorker = 200
	r := NewValueRegistry(32, 0)

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < perWorker; i++ {
				v, err := r.Reserve(context.Background(), "userName", func() string {
					return fmt.Sprintf("user%d", rnd.Intn(workers*perWorker*4))
				})
				assert.NoError(t, err)
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}(int64(w))
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	for v, n := range seen {
		assert.Equal(t, 1, n, v)
	}
	assert.Equal(t, workers*perWorker, r.Len("userName"))
}

func TestRedisValueRegistry(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	r := NewRedisValueRegistry(client, "graphseed:test:", 3)
	candidates := []string{"ana123", "ana123", "bob456"}
	i := 0
	next := func() string {
		v := candidates[i]
		i++
		return v
	}

	v, err := r.Reserve(context.Background(), "userName", next)
	require.NoError(t, err)
	assert.Equal(t, "ana123", v)

	v, err = r.Reserve(context.Background(), "userName", next)
	require.NoError(t, err)
	assert.Equal(t, "bob456", v)

	members, err := s.Members("graphseed:test:userName")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ana123", "bob456"}, members)

	_, err = r.Reserve(context.Background(), "userName", func() string { return "ana123" })
	assert.ErrorIs(t, err, ErrExhausted)

	require.NoError(t, r.Reset("userName"))
	assert.False(t, s.Exists("graphseed:test:userName"))

	var reserver ValueReserver = r
	v, err = reserver.Reserve(context.Background(), "userName", func() string { return "ana123" })
	require.NoError(t, err)
	assert.Equal(t, "ana123", v)
}
