package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Pranay-ai/match-relay/internal/config"
)

func testRedisConfig(url string) config.RedisConfig {
	return config.RedisConfig{
		URL:            url,
		ChannelPrefix:  "match:",
		StatsKey:       "relay:stats",
		QueueSize:      16,
		PublishTimeout: time.Second,
	}
}

func startPublisher(t *testing.T) (*RedisPublisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := testRedisConfig("redis://" + mr.Addr())

	rdb, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	pub := NewRedisPublisher(rdb, cfg, zaptest.NewLogger(t))
	go func() { _ = pub.Start() }()
	t.Cleanup(pub.Stop)
	return pub, mr
}

func TestConnectInvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), testRedisConfig("not a url"))
	assert.Error(t, err)
}

func TestConnectUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Connect(ctx, testRedisConfig("redis://"+addr))
	assert.Error(t, err)
}

func TestRedisPublisherCountsEvents(t *testing.T) {
	pub, _ := startPublisher(t)

	pub.Publish(Event{Type: PlayerJoined, MatchID: "m1", PlayerID: "A"})
	pub.Publish(Event{Type: PlayerJoined, MatchID: "m1", PlayerID: "B"})
	pub.Publish(Event{Type: MatchStart, MatchID: "m1"})

	assert.Eventually(t, func() bool {
		counts, err := pub.Counts(context.Background())
		return err == nil && counts[PlayerJoined] == 2 && counts[MatchStart] == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisPublisherPublishesOnMatchChannel(t *testing.T) {
	pub, _ := startPublisher(t)

	sub := pub.rdb.Subscribe(context.Background(), "match:m1")
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	pub.Publish(Event{Type: PlayerLeft, MatchID: "m1", PlayerID: "B"})

	select {
	case msg := <-sub.Channel():
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, PlayerLeft, ev.Type)
		assert.Equal(t, "m1", ev.MatchID)
		assert.Equal(t, "B", ev.PlayerID)
		assert.False(t, ev.At.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestRedisPublisherStopFlushesQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testRedisConfig("redis://" + mr.Addr())
	rdb, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer rdb.Close()

	pub := NewRedisPublisher(rdb, cfg, zaptest.NewLogger(t))
	for i := 0; i < 5; i++ {
		pub.Publish(Event{Type: MatchRejected, MatchID: "m1"})
	}

	done := make(chan struct{})
	go func() {
		_ = pub.Start()
		close(done)
	}()
	assert.Eventually(t, pub.started.Load, time.Second, 5*time.Millisecond)
	pub.Stop()
	<-done

	assert.Equal(t, "5", mr.HGet("relay:stats", MatchRejected))
}

func TestRedisPublisherDropsWhenQueueFull(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testRedisConfig("redis://" + mr.Addr())
	cfg.QueueSize = 1
	rdb, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer rdb.Close()

	pub := NewRedisPublisher(rdb, cfg, zaptest.NewLogger(t))
	pub.Publish(Event{Type: PlayerJoined, MatchID: "m1"})
	pub.Publish(Event{Type: PlayerJoined, MatchID: "m1"})
	assert.Len(t, pub.queue, 1)
}

func TestNopPublisher(t *testing.T) {
	var pub Publisher = NopPublisher{}
	pub.Publish(Event{Type: MatchStart, MatchID: "m1"})
	counts, err := pub.Counts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}
