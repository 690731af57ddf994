// Package publisher announces scored rally batches to downstream consumers.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/rallyscore/internal/domain/model"
	"github.com/okian/rallyscore/pkg/metrics"
)

const pingTimeout = 5 * time.Second

// ErrPublish wraps every failure to hand a batch to the broker.
var ErrPublish = errors.New("publish failed")

// Publisher announces scored points.
type Publisher interface {
	Publish(ctx context.Context, batchID string, points []model.EnrichedPoint) error
	Close() error
}

// Nop drops every batch. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, []model.EnrichedPoint) error { return nil }
func (Nop) Close() error                                                 { return nil }

// RedisStream appends one entry per batch to a Redis stream.
type RedisStream struct {
	client *redis.Client
	stream string
	now    func() time.Time
}

// NewRedisStream connects to redisURL and checks the connection.
func NewRedisStream(ctx context.Context, redisURL, stream string) (*RedisStream, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStreamFromClient(client, stream), nil
}

// NewRedisStreamFromClient publishes through an existing client.
func NewRedisStreamFromClient(client *redis.Client, stream string) *RedisStream {
	return &RedisStream{client: client, stream: stream, now: time.Now}
}

// Publish adds the batch to the stream.
func (p *RedisStream) Publish(ctx context.Context, batchID string, points []model.EnrichedPoint) error {
	values, err := entry(batchID, points, p.now())
	if err != nil {
		return err
	}
	if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: p.stream, Values: values}).Err(); err != nil {
		metrics.RecordErrorByComponent("publisher", "xadd")
		return fmt.Errorf("%w: xadd %s: %w", ErrPublish, p.stream, err)
	}
	return nil
}

// Close closes the Redis connection.
func (p *RedisStream) Close() error {
	return p.client.Close()
}

// entry builds the stream fields for one batch.
func entry(batchID string, points []model.EnrichedPoint, at time.Time) (map[string]any, error) {
	data, err := json.Marshal(points)
	if err != nil {
		return nil, fmt.Errorf("%w: encode batch %s: %w", ErrPublish, batchID, err)
	}
	matchID := 0
	if len(points) > 0 {
		matchID = points[0].MatchID
	}
	return map[string]any{
		"batch_id":  batchID,
		"match_id":  matchID,
		"points":    len(points),
		"data":      string(data),
		"timestamp": at.Unix(),
	}, nil
}
