package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedis_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr(), "", 0)
	defer r.Close()
	ctx := context.Background()

	_, err := r.Get(ctx, "price:current:AAPL")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, r.Set(ctx, "price:current:AAPL", []byte(`{"price":"180"}`), 5*time.Minute))

	got, err := r.Get(ctx, "price:current:AAPL")
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":"180"}`, string(got))

	ok, err := r.Exists(ctx, "price:current:AAPL")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(5 * time.Minute)
	_, err = r.Get(ctx, "price:current:AAPL")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedis_DeleteByPattern(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr(), "", 0)
	defer r.Close()
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "leaderboard:daily", []byte("1"), time.Minute))
	require.NoError(t, r.Set(ctx, "leaderboard:total", []byte("1"), time.Minute))
	require.NoError(t, r.Set(ctx, "price:hist:btc:1700000000", []byte("1"), time.Minute))

	n, err := r.DeleteByPattern(ctx, LeaderboardPattern)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("price:hist:btc:1700000000"))
}

func TestRedis_UnreachableReturnsError(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr(), "", 0)
	defer r.Close()
	mr.Close()

	_, err := r.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}
