package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel change events are published on.
const DefaultChannel = "casegest:documents"

// RedisNotifier publishes change events over Redis pub/sub so that every
// replica of the service sees writes made by the others.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

// NewRedisNotifier connects to addr and verifies the connection.
func NewRedisNotifier(ctx context.Context, addr, password string, db int, channel string, log *slog.Logger) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisNotifier{client: client, channel: channel, log: log}, nil
}

func (n *RedisNotifier) Publish(ctx context.Context, ev ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Subscribe returns once the subscription is confirmed by the server, so no
// event published after it returns is missed.
func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan ChangeEvent, func(), error) {
	ps := n.client.Subscribe(ctx, n.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", n.channel, err)
	}

	out := make(chan ChangeEvent, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					n.log.Warn("dropping malformed change event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() { once.Do(func() { close(done) }) }
	return out, cancel, nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
