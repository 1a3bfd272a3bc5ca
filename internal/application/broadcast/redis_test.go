package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisPublisher_StoresLatest(t *testing.T) {
	client := setupRedis(t)
	p := &RedisPublisher{Client: client, Origin: "a"}
	id := uuid.New()

	_, ok, err := p.Latest(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Send(context.Background(), snap(id, 7, 700_000)))
	got, ok, err := p.Latest(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), got.Sequence)
	assert.Equal(t, int64(700_000), got.CurrentPrice)
}

func TestRedisRelay_DeliversForeignSnapshots(t *testing.T) {
	client := setupRedis(t)
	hub := NewHub(4)
	relay := &RedisRelay{Client: client, Origin: "b", Hub: hub}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := relay.subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()
	go func() { _ = relay.serve(ctx, sub) }()

	id := uuid.New()
	ch, unsubscribe := hub.Subscribe(id)
	defer unsubscribe()

	own := &RedisPublisher{Client: client, Origin: "b"}
	other := &RedisPublisher{Client: client, Origin: "a"}
	require.NoError(t, own.Send(ctx, snap(id, 1, 100)))
	require.NoError(t, other.Send(ctx, snap(id, 2, 200)))

	select {
	case got := <-ch:
		assert.Equal(t, int64(2), got.Sequence)
		assert.Equal(t, int64(200), got.CurrentPrice)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not deliver snapshot")
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected snapshot %d", extra.Sequence)
	case <-time.After(50 * time.Millisecond):
	}
}
