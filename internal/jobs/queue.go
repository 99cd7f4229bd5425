// Package jobs runs the background side of the pipeline: a Redis-backed job
// queue, a worker pool draining it, and a cron fallback that sweeps rooms the
// activity triggers missed.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/feedscout/feedscout/internal/metrics"
)

// queueKey is the Redis list holding pending scan jobs.
const queueKey = "automated_feed:jobs"

// Kind identifies a job type.
type Kind string

const (
	KindRoomScan   Kind = "room_scan"
	KindGlobalScan Kind = "global_scan"
)

// Job is one unit of queued work. RoomID and TriggerStatus are set only on
// room scans.
type Job struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	RoomID        int64     `json:"room_id,omitempty"`
	TriggerStatus string    `json:"trigger_status,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// Queue is a Redis list used as a FIFO job queue. Producers LPUSH, workers
// BRPOP, so jobs are delivered in enqueue order and block-wait costs nothing.
type Queue struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewQueue builds a queue on an existing Redis client.
func NewQueue(client *redis.Client, logger zerolog.Logger) *Queue {
	return &Queue{
		client: client,
		logger: logger.With().Str("component", "queue").Logger(),
	}
}

// EnqueueRoomScan queues a focused scan of one room.
func (q *Queue) EnqueueRoomScan(ctx context.Context, roomID int64, triggerStatus string) error {
	return q.enqueue(ctx, Job{
		Kind:          KindRoomScan,
		RoomID:        roomID,
		TriggerStatus: triggerStatus,
	})
}

// EnqueueGlobalScan queues a scan across all eligible rooms.
func (q *Queue) EnqueueGlobalScan(ctx context.Context) error {
	return q.enqueue(ctx, Job{Kind: KindGlobalScan})
}

func (q *Queue) enqueue(ctx context.Context, job Job) error {
	job.ID = ulid.Make().String()
	job.EnqueuedAt = time.Now().UTC()

	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := q.client.LPush(ctx, queueKey, payload).Err(); err != nil {
		return err
	}
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	metrics.JobsEnqueued.WithLabelValues(string(job.Kind)).Inc()

	q.logger.Debug().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Int64("room_id", job.RoomID).
		Msg("enqueued job")
	return nil
}

// Dequeue blocks up to timeout for the next job. A nil job with nil error
// means the wait timed out.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BRPop(ctx, timeout, queueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPOP returns [key, value].
	if len(result) != 2 {
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Error().Err(err).Str("payload", result[1]).Msg("discarding malformed job payload")
		return nil, nil
	}
	return &job, nil
}

// Len reports the number of pending jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, queueKey).Result()
}
