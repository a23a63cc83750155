package selection

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type op struct {
	cmd, target, payload string
}

type fakeRedis struct {
	mu      sync.Mutex
	ops     []op
	failSet bool
}

func (f *fakeRedis) record(o op) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, o)
}

func (f *fakeRedis) snapshot() []op {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]op(nil), f.ops...)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	if f.failSet {
		return redis.NewStatusResult("", errors.New("connection refused"))
	}
	f.record(op{cmd: "SET", target: key, payload: value.(string)})
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.record(op{cmd: "DEL", target: keys[0]})
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.record(op{cmd: "PUBLISH", target: channel, payload: message.(string)})
	return redis.NewIntResult(0, nil)
}

func TestRedisMirrorPublish(t *testing.T) {
	fake := &fakeRedis{}
	m := NewRedisMirror(MirrorConfig{Client: fake, Key: "k", Channel: "c"})
	ctx := context.Background()

	require.NoError(t, m.publish(ctx, Attributes{"name": "X"}))
	require.NoError(t, m.publish(ctx, nil))

	assert.Equal(t, []op{
		{cmd: "SET", target: "k", payload: `{"name":"X"}`},
		{cmd: "PUBLISH", target: "c", payload: `{"name":"X"}`},
		{cmd: "DEL", target: "k"},
		{cmd: "PUBLISH", target: "c", payload: "null"},
	}, fake.snapshot())
}

func TestRedisMirrorPublishError(t *testing.T) {
	m := NewRedisMirror(MirrorConfig{Client: &fakeRedis{failSet: true}})
	err := m.publish(context.Background(), Attributes{"name": "X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trafficmap:selection")
}

func TestRedisMirrorRun(t *testing.T) {
	fake := &fakeRedis{}
	store := NewStore()
	m := NewRedisMirror(MirrorConfig{Client: fake})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx, store)
	}()

	store.SetFeature(map[string]interface{}{"name": "Intersection 1"})

	require.Eventually(t, func() bool {
		for _, o := range fake.snapshot() {
			if o.cmd == "SET" && o.payload == `{"name":"Intersection 1"}` {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestRedisMirrorLive(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := OpenRedis(addr, os.Getenv("REDIS_PASS"), 0)
	defer client.Close()
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	m := NewRedisMirror(MirrorConfig{Client: client, Key: "trafficmap:test:selection"})
	require.NoError(t, m.publish(ctx, Attributes{"name": "X"}))

	got, err := client.Get(ctx, "trafficmap:test:selection").Result()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"X"}`, got)

	require.NoError(t, m.publish(ctx, nil))
	_, err = client.Get(ctx, "trafficmap:test:selection").Result()
	assert.ErrorIs(t, err, redis.Nil)
}
