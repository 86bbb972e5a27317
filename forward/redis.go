package forward

import (
	"context"
	"encoding/json"
	"fmt"

	"trackpoint/models"

	redis "github.com/redis/go-redis/v9"
)

// Redis appends every event to a stream as a single JSON "data" field, trimming the
// stream to roughly maxLen entries.
type Redis struct {
	cli    *redis.Client
	stream string
	maxLen int64
}

func NewRedis(url, stream string, maxLen int64) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{cli: redis.NewClient(opt), stream: stream, maxLen: maxLen}, nil
}

func (r *Redis) Publish(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	pipe := r.cli.Pipeline()
	for i := range events {
		args, err := xaddArgs(r.stream, r.maxLen, &events[i])
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, args)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

func (r *Redis) Close() error { return r.cli.Close() }

func xaddArgs(stream string, maxLen int64, event *models.Event) (*redis.XAddArgs, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", event.EventID, err)
	}
	args := &redis.XAddArgs{Stream: stream, Values: map[string]any{"data": string(b)}}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return args, nil
}
