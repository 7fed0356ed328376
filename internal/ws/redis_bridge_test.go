package ws

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"keikkaduuni/internal/wire"
)

func TestRedisBridgeCrossesProcesses(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	channel := "keikkaduuni:ws:test:" + time.Now().Format("150405.000000")
	log := zaptest.NewLogger(t)

	// Two hubs stand in for two server processes.
	sender := NewHub(4, NewMetrics(prometheus.NewRegistry()), log)
	receiver := NewHub(4, NewMetrics(prometheus.NewRegistry()), log)
	sender.SetPublisher(NewRedisBridge(client, channel, sender, log))
	require.NoError(t, NewRedisBridge(client, channel, sender, log).Start(ctx))
	require.NoError(t, NewRedisBridge(client, channel, receiver, log).Start(ctx))

	c := receiver.Register(9, nil)
	defer receiver.Unregister(c)

	sender.JoinUsers(wire.ConversationRoom(3), 9)
	require.Eventually(t, func() bool {
		return receiver.RoomSize(wire.ConversationRoom(3)) == 1
	}, 3*time.Second, 20*time.Millisecond)

	sender.Emit(wire.ConversationRoom(3), wire.EventNewMessage, wire.Message{ID: 1, ConversationID: 3, Content: "moi"})
	select {
	case raw := <-c.send:
		require.Contains(t, string(raw), `"content":"moi"`)
	case <-time.After(3 * time.Second):
		t.Fatal("frame did not cross the bridge")
	}
}
