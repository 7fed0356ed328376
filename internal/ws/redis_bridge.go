package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel hub frames travel on.
const DefaultChannel = "keikkaduuni:ws"

// RedisBridge fans hub frames out to every server process through Redis
// pub/sub. Each process subscribes and applies frames to its own sockets,
// including the frames it published itself.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     *zap.Logger
}

func NewRedisBridge(client *redis.Client, channel string, hub *Hub, log *zap.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBridge{client: client, channel: channel, hub: hub, log: log}
}

// NewRedisClient parses a redis:// URL and checks the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (b *RedisBridge) Publish(ctx context.Context, f Frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish frame: %w", err)
	}
	return nil
}

// Start subscribes and returns once the subscription is confirmed, so frames
// published afterwards are not missed. Frames are dispatched until ctx ends.
func (b *RedisBridge) Start(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer func() {
			if err := pubsub.Close(); err != nil {
				b.log.Error("close redis pubsub", zap.Error(err))
			}
		}()

		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var f Frame
				if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
					b.log.Error("unmarshal frame", zap.Error(err))
					continue
				}
				b.hub.Dispatch(f)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
