package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostpni/ghostpni/internal/core"
)

func TestNewPoolRequiresEndpoints(t *testing.T) {
	_, err := NewPool(nil, PoolOptions{})
	require.Error(t, err)

	_, err = NewPool([]string{"  ", ""}, PoolOptions{})
	require.Error(t, err)
}

func TestNewPoolDropsDuplicates(t *testing.T) {
	pool, err := NewPool([]string{"https://a", "https://b", "https://a"}, PoolOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a", "https://b"}, pool.URLs())
}

func TestPoolSelectPrefersFewestFailuresThenLeastRecent(t *testing.T) {
	clock := newFakeClock()
	pool, err := NewPool([]string{"https://a", "https://b", "https://c"}, PoolOptions{Clock: clock.Now})
	require.NoError(t, err)

	first, err := pool.Select("")
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := pool.Select("")
	require.NoError(t, err)
	clock.Advance(time.Second)
	third, err := pool.Select("")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"https://a", "https://b", "https://c"}, []string{first, second, third})

	pool.RecordFailure("https://a")
	pool.RecordFailure("https://c")
	clock.Advance(time.Second)

	chosen, err := pool.Select("")
	require.NoError(t, err)
	assert.Equal(t, "https://b", chosen)
}

func TestPoolSelectHonorsExclude(t *testing.T) {
	pool, err := NewPool([]string{"https://a", "https://b"}, PoolOptions{})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		chosen, err := pool.Select("https://a")
		require.NoError(t, err)
		assert.Equal(t, "https://b", chosen)
	}

	single, err := NewPool([]string{"https://only"}, PoolOptions{})
	require.NoError(t, err)
	chosen, err := single.Select("https://only")
	require.NoError(t, err)
	assert.Equal(t, "https://only", chosen)
}

func TestPoolDegradedEndpointsAreSkipped(t *testing.T) {
	pool, err := NewPool([]string{"https://a", "https://b"}, PoolOptions{DegradedThreshold: 2})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		pool.RecordFailure("https://a")
	}
	for i := 0; i < 5; i++ {
		chosen, err := pool.Select("")
		require.NoError(t, err)
		assert.Equal(t, "https://b", chosen)
	}

	for i := 0; i < 3; i++ {
		pool.RecordFailure("https://b")
	}
	assert.True(t, pool.AllDegraded())

	_, err = pool.Select("")
	require.ErrorIs(t, err, core.ErrAllEndpointsDown)
}

func TestPoolFallbackIgnoresDegradedState(t *testing.T) {
	pool, err := NewPool([]string{"https://a", "https://b"}, PoolOptions{DegradedThreshold: 1})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		pool.RecordFailure("https://a")
	}
	for i := 0; i < 2; i++ {
		pool.RecordFailure("https://b")
	}
	require.True(t, pool.AllDegraded())

	chosen, err := pool.Fallback("")
	require.NoError(t, err)
	assert.Equal(t, "https://b", chosen)

	chosen, err = pool.Fallback("https://b")
	require.NoError(t, err)
	assert.Equal(t, "https://a", chosen)
}

func TestPoolRecordSuccessResets(t *testing.T) {
	pool, err := NewPool([]string{"https://a"}, PoolOptions{DegradedThreshold: 1})
	require.NoError(t, err)

	pool.RecordFailure("https://a")
	pool.RecordFailure("https://a")
	assert.True(t, pool.AllDegraded())

	pool.RecordSuccess("https://a")
	assert.False(t, pool.AllDegraded())

	health := pool.Health()
	require.Len(t, health, 1)
	assert.Equal(t, 0, health[0].ConsecutiveFailures)
	assert.Equal(t, int64(2), health[0].TotalFailures)
	assert.Equal(t, int64(1), health[0].TotalSuccesses)
}

func TestPoolFailureCountSaturates(t *testing.T) {
	pool, err := NewPool([]string{"https://a", "https://b", "https://c", "https://d"}, PoolOptions{DegradedThreshold: 3})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		pool.RecordFailure("https://a")
	}
	health := pool.Health()
	assert.Equal(t, 12, health[0].ConsecutiveFailures)
	assert.True(t, health[0].Degraded)
	assert.Equal(t, int64(100), health[0].TotalFailures)
}

func TestPoolCooldownReadmitsDegradedEndpoint(t *testing.T) {
	clock := newFakeClock()
	pool, err := NewPool([]string{"https://a"}, PoolOptions{
		DegradedThreshold: 1,
		DegradedCooldown:  30 * time.Second,
		Clock:             clock.Now,
	})
	require.NoError(t, err)

	pool.RecordFailure("https://a")
	pool.RecordFailure("https://a")
	_, err = pool.Select("")
	require.ErrorIs(t, err, core.ErrAllEndpointsDown)

	clock.Advance(31 * time.Second)
	chosen, err := pool.Select("")
	require.NoError(t, err)
	assert.Equal(t, "https://a", chosen)
}

func TestPoolBackoffDeprioritizes(t *testing.T) {
	clock := newFakeClock()
	pool, err := NewPool([]string{"https://a", "https://b"}, PoolOptions{Clock: clock.Now})
	require.NoError(t, err)

	pool.Backoff("https://b", clock.Now().Add(time.Minute))
	pool.Backoff("https://a", clock.Now().Add(30*time.Second))
	pool.RecordSuccess("https://a")

	for i := 0; i < 3; i++ {
		chosen, err := pool.Select("")
		require.NoError(t, err)
		assert.Equal(t, "https://a", chosen)
		clock.Advance(time.Second)
	}

	health := pool.Health()
	require.NotNil(t, health[1].BackoffUntil)
	assert.Nil(t, health[0].BackoffUntil)
}
