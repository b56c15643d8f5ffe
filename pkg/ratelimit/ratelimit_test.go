package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerSecondBurstFloor(t *testing.T) {
	assert.Equal(t, Limit{Rate: 10, Period: time.Second, Burst: 10}, PerSecond(10, 2))
	assert.Equal(t, Limit{Rate: 10, Period: time.Second, Burst: 20}, PerSecond(10, 20))
}

func TestRedisRateLimiterBackendError(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()
	s.SetError("READONLY")

	l := NewRedisRateLimiter(redis.NewClient(&redis.Options{Addr: s.Addr()}), "risk:")
	_, err = l.Allow(context.Background(), "127.0.0.1", PerSecond(1, 1))
	assert.Error(t, err)
}
