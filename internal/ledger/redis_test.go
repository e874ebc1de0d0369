package ledger

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisMarkers(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	markers := NewRedisMarkers(rdb, "")

	has, err := markers.Has(ctx, "t1_reminded_2026-02-10")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, markers.Set(ctx, "t1_reminded_2026-02-10"))
	has, err = markers.Has(ctx, "t1_reminded_2026-02-10")
	require.NoError(t, err)
	assert.True(t, has)

	assert.True(t, srv.Exists(DefaultRedisPrefix+"t1_reminded_2026-02-10"))
	assert.Equal(t, 0, int(srv.TTL(DefaultRedisPrefix+"t1_reminded_2026-02-10")))
}

func TestLedgerOverRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	k := Key{TaskID: "trip", Kind: KindDaily, Date: "2026-02-10"}
	require.True(t, New(NewRedisMarkers(rdb, "test:"), nil).Claim(ctx, k))
	assert.False(t, New(NewRedisMarkers(rdb, "test:"), nil).Claim(ctx, k))
}
