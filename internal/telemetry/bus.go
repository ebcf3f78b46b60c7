package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStream is used when no stream name is configured.
const DefaultStream = "nuka:context:retention"

// maxStreamLen caps the stream; trimming is approximate.
const maxStreamLen = 10000

// Bus publishes retention events to a Redis stream.
type Bus struct {
	rdb    *redis.Client
	stream string
	logger *zap.Logger
}

// NewBus connects to Redis and returns a Bus writing to stream.
func NewBus(redisURL, stream string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &Bus{rdb: rdb, stream: stream, logger: logger}, nil
}

// Stream returns the stream name events are written to.
func (b *Bus) Stream() string {
	return b.stream
}

// Publish appends ev to the stream.
func (b *Bus) Publish(ctx context.Context, ev *RetentionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{
			"conversation_id": ev.ConversationID,
			"data":            string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", b.stream, err)
	}

	b.logger.Debug("published retention event",
		zap.String("conversation", ev.ConversationID),
		zap.Int("retained", ev.MessagesRetained),
		zap.Float64("compression_ratio", ev.CompressionRatio))
	return nil
}

// Subscribe streams events written after the call. Cancel ctx to stop;
// the channel is closed on return.
func (b *Bus) Subscribe(ctx context.Context) <-chan *RetentionEvent {
	ch := make(chan *RetentionEvent, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{b.stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					b.logger.Warn("telemetry read failed", zap.String("stream", b.stream), zap.Error(err))
					select {
					case <-time.After(time.Second):
					case <-ctx.Done():
						return
					}
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev RetentionEvent
					if json.Unmarshal([]byte(data), &ev) != nil {
						continue
					}
					select {
					case ch <- &ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
