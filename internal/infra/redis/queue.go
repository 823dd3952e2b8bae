package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Retention bounds how long finished jobs are kept on their streams.
type Retention struct {
	CompletedAge   time.Duration // completed jobs older than this are trimmed
	CompletedCount int64         // at most this many completed jobs are kept
	FailedAge      time.Duration // failed jobs older than this are trimmed
}

// DefaultRetention keeps completed jobs up to 5 days or 10000 entries and
// failed jobs up to 5 days.
var DefaultRetention = Retention{
	CompletedAge:   5 * 24 * time.Hour,
	CompletedCount: 10000,
	FailedAge:      5 * 24 * time.Hour,
}

// Queue is a redis-streams job queue. Producers append jobs; an external
// consumer group drains them with at-least-once delivery.
type Queue struct {
	rdb       *redis.Client
	retention Retention
}

// NewQueue creates a new queue client.
func NewQueue(cfg Config, retention Retention) (*Queue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{rdb: rdb, retention: retention}, nil
}

// Close closes the Redis connection.
func (q *Queue) Close() error {
	return q.rdb.Close()
}

// Health checks the connection.
func (q *Queue) Health(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

// Key helpers
func streamKey(name string) string {
	return fmt.Sprintf("queue:%s", name)
}

func failedKey(name string) string {
	return fmt.Sprintf("queue:%s:failed", name)
}

// Enqueue appends one job to the named queue. The job is JSON-encoded into a
// single stream field.
func (q *Queue) Enqueue(ctx context.Context, name string, job any) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	err = q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(name),
		Values: map[string]any{"job": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}

// RecordFailure moves a job payload onto the failed stream for inspection.
func (q *Queue) RecordFailure(ctx context.Context, name string, job any, cause string) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	err = q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: failedKey(name),
		Values: map[string]any{"job": payload, "cause": cause},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}

// Len returns the number of jobs currently on the queue.
func (q *Queue) Len(ctx context.Context, name string) (int64, error) {
	return q.rdb.XLen(ctx, streamKey(name)).Result()
}

// Trim enforces the retention policy on the named queue. Stream IDs are
// millisecond timestamps, so age-based trimming is an XTRIM MINID.
func (q *Queue) Trim(ctx context.Context, name string) error {
	now := time.Now()

	if q.retention.CompletedAge > 0 {
		minID := fmt.Sprintf("%d-0", now.Add(-q.retention.CompletedAge).UnixMilli())
		if err := q.rdb.XTrimMinID(ctx, streamKey(name), minID).Err(); err != nil {
			return fmt.Errorf("xtrim minid failed: %w", err)
		}
	}
	if q.retention.CompletedCount > 0 {
		if err := q.rdb.XTrimMaxLen(ctx, streamKey(name), q.retention.CompletedCount).Err(); err != nil {
			return fmt.Errorf("xtrim maxlen failed: %w", err)
		}
	}
	if q.retention.FailedAge > 0 {
		minID := fmt.Sprintf("%d-0", now.Add(-q.retention.FailedAge).UnixMilli())
		if err := q.rdb.XTrimMinID(ctx, failedKey(name), minID).Err(); err != nil {
			return fmt.Errorf("xtrim failed stream: %w", err)
		}
	}
	return nil
}

// StartJanitor trims the named queue on an interval until ctx is cancelled.
func (q *Queue) StartJanitor(ctx context.Context, name string, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := q.Trim(ctx, name); err != nil {
					// Best-effort retention; the next tick tries again.
					continue
				}
			}
		}
	}()
}
