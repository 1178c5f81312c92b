package notification

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisherReachesSubscriberHub(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable at TEST_REDIS_ADDR=%s: %v", addr, err)
	}

	channel := "bookshare:test:" + uuid.NewString()
	hub := NewHub(nil)
	events, cancel := hub.Subscribe("alice")
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	sub := NewSubscriber(client, channel, hub, nil)
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	pub := NewRedisPublisher(client, channel)
	// Publish until the subscription is live; PUBLISH reports no receivers before that.
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, channel).Result()
		return err == nil && n[channel] > 0
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, pub.Notify(ctx, "alice", sampleEvent(TypeLoanConfirm)))

	select {
	case ev := <-events:
		assert.Equal(t, TypeLoanConfirm, ev.Type)
		assert.Equal(t, "res-1", ev.ResourceID)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}

	stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
