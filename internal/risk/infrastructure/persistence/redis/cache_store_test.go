package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/riskassessment/internal/risk/domain"
	"github.com/wyfcoding/riskassessment/pkg/cache"
)

func newStore(t *testing.T) (*CacheStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheStore(cache.NewFromClient(client)), mr
}

func TestCacheStoreRoundTripsAssessment(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	a := &domain.RiskAssessment{
		ID: "a1", ApplicationID: "app1", Decision: domain.DecisionApproved,
		RiskScore:   decimal.RequireFromString("76.8864"),
		RiskFactors: []domain.RiskFactor{{Name: domain.FactorCreditScore, Value: decimal.NewFromInt(82)}},
	}
	key := domain.AssessmentCacheKey("app1")
	require.NoError(t, store.Set(ctx, key, a, 24*time.Hour))
	assert.Equal(t, 24*time.Hour, mr.TTL(key))

	var got domain.RiskAssessment
	found, err := store.Get(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.RiskScore.Equal(a.RiskScore))
	assert.Equal(t, domain.FactorCreditScore, got.RiskFactors[0].Name)
}

func TestCacheStoreMissAndExpiry(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	var report domain.CreditReport
	found, err := store.Get(ctx, domain.CreditCacheKey("nobody"), &report)
	require.NoError(t, err)
	assert.False(t, found)

	key := domain.CreditCacheKey("c1")
	require.NoError(t, store.Set(ctx, key, domain.CreditReport{CustomerID: "c1", CreditScore: 700, Status: domain.CreditStatusActive}, time.Hour))
	mr.FastForward(time.Hour + time.Second)

	found, err = store.Get(ctx, key, &report)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheStoreCorruptEntry(t *testing.T) {
	store, mr := newStore(t)
	require.NoError(t, mr.Set(domain.CreditCacheKey("bad"), "{not json"))

	var report domain.CreditReport
	_, err := store.Get(context.Background(), domain.CreditCacheKey("bad"), &report)
	assert.Error(t, err)
}
