package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-gatekeeper/internal/testutil"
	"github.com/StricklySoft/stricklysoft-gatekeeper/internal/testutil/fixtures"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

func newMiniredisClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := NewFromClient(rdb, &Config{})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestKeySetMirror_LoadEmpty(t *testing.T) {
	t.Parallel()
	client, _ := newMiniredisClient(t)
	m := NewKeySetMirror(client, "")

	doc, err := m.Load(context.Background())

	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestKeySetMirror_StoreLoadClear(t *testing.T) {
	t.Parallel()
	client, mr := newMiniredisClient(t)
	m := NewKeySetMirror(client, "")
	ctx := context.Background()

	require.NoError(t, m.Store(ctx, []byte(`{"keys":[]}`), 10*time.Minute))

	assert.True(t, mr.Exists(DefaultMirrorKey))
	assert.Equal(t, 10*time.Minute, mr.TTL(DefaultMirrorKey))
	doc, err := m.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"keys":[]}`, string(doc))

	require.NoError(t, m.Clear(ctx))
	doc, err = m.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestKeySetMirror_ExpiredDocumentIsAbsent(t *testing.T) {
	t.Parallel()
	client, mr := newMiniredisClient(t)
	m := NewKeySetMirror(client, "jwks:test")
	ctx := context.Background()
	require.NoError(t, m.Store(ctx, []byte("doc"), time.Minute))

	mr.FastForward(2 * time.Minute)

	doc, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestKeySetMirror_ServerError(t *testing.T) {
	t.Parallel()
	client, mr := newMiniredisClient(t)
	m := NewKeySetMirror(client, "")
	mr.SetError("LOADING Redis is loading the dataset in memory")

	_, err := m.Load(context.Background())

	require.Error(t, err)
	assert.True(t, sserr.IsInternal(err))
}

// Two caches sharing one mirror: the second resolves from Redis without
// contacting the provider.
func TestKeySetMirror_SharedBetweenReplicas(t *testing.T) {
	t.Parallel()
	client, _ := newMiniredisClient(t)
	key := fixtures.NewRSAKey(t)
	srv := fixtures.NewJWKSServer(t, fixtures.RSAJWK("k1", key))
	cfg := auth.Config{
		TrustedIssuer:      fixtures.TrustedIssuer,
		JWKSURL:            srv.URL,
		CacheTTL:           10 * time.Minute,
		MinRefreshInterval: 30 * time.Second,
		FetchTimeout:       2 * time.Second,
	}
	clock := testutil.NewClock(fixtures.Now)
	ctx := context.Background()

	first, err := auth.NewKeySetCache(cfg, auth.WithMirror(NewKeySetMirror(client, "")), auth.WithCacheClock(clock.Now))
	require.NoError(t, err)
	_, err = first.Resolve(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, int64(1), srv.Hits())

	second, err := auth.NewKeySetCache(cfg, auth.WithMirror(NewKeySetMirror(client, "")), auth.WithCacheClock(clock.Now))
	require.NoError(t, err)
	_, err = second.Resolve(ctx, "k1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), srv.Hits(), "second replica should read the mirrored document")
}
