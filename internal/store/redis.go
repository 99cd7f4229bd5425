package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// trackerNamespace prefixes all per-room activity keys.
const trackerNamespace = "automated_feed:activity"

// ActivityStore handles Redis operations for per-room activity state and the
// scan queue. All state is TTL-bounded; the relational store never sees it.
type ActivityStore struct {
	client *redis.Client
}

// NewActivityStore creates a new Redis-backed activity store.
func NewActivityStore(ctx context.Context, redisURL string) (*ActivityStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &ActivityStore{client: client}, nil
}

// NewActivityStoreFromClient wraps an existing client. Used by tests.
func NewActivityStoreFromClient(client *redis.Client) *ActivityStore {
	return &ActivityStore{client: client}
}

// Client exposes the underlying Redis client for the job queue.
func (s *ActivityStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *ActivityStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *ActivityStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func activityKey(roomID int64, suffix string) string {
	return fmt.Sprintf("%s:%d:%s", trackerNamespace, roomID, suffix)
}

// ActivityStats is a point-in-time snapshot of a room's tracked state.
type ActivityStats struct {
	MessageCount     int
	ParticipantCount int
	LastScanAt       *time.Time
	ScanLocked       bool
}

// RecordActivity bumps a room's counters in one pipelined batch so concurrent
// writers on the same room cannot lose updates.
func (s *ActivityStore) RecordActivity(ctx context.Context, roomID, userID int64, ttl time.Duration) error {
	messages := activityKey(roomID, "messages")
	participants := activityKey(roomID, "participants")
	lastMessage := activityKey(roomID, "last_message")

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, messages)
	pipe.Expire(ctx, messages, ttl)
	pipe.SAdd(ctx, participants, userID)
	pipe.Expire(ctx, participants, ttl)
	pipe.Set(ctx, lastMessage, time.Now().Unix(), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Stats fetches a room's counters in one pipelined batch.
func (s *ActivityStore) Stats(ctx context.Context, roomID int64) (ActivityStats, error) {
	pipe := s.client.Pipeline()
	messages := pipe.Get(ctx, activityKey(roomID, "messages"))
	participants := pipe.SCard(ctx, activityKey(roomID, "participants"))
	lastScan := pipe.Get(ctx, activityKey(roomID, "last_scan"))
	locked := pipe.Exists(ctx, activityKey(roomID, "scan_lock"))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return ActivityStats{}, err
	}

	stats := ActivityStats{
		ParticipantCount: int(participants.Val()),
		ScanLocked:       locked.Val() > 0,
	}
	if n, err := strconv.Atoi(messages.Val()); err == nil {
		stats.MessageCount = n
	}
	if ts, err := strconv.ParseInt(lastScan.Val(), 10, 64); err == nil {
		t := time.Unix(ts, 0)
		stats.LastScanAt = &t
	}
	return stats, nil
}

// AcquireScanLock attempts to take the per-room scan lock. Returns false when
// another caller already holds it.
func (s *ActivityStore) AcquireScanLock(ctx context.Context, roomID int64, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, activityKey(roomID, "scan_lock"), time.Now().Unix(), ttl).Result()
}

// ClearActivity deletes all tracked state for a room, including the scan lock.
func (s *ActivityStore) ClearActivity(ctx context.Context, roomID int64) error {
	return s.client.Del(ctx,
		activityKey(roomID, "messages"),
		activityKey(roomID, "participants"),
		activityKey(roomID, "last_message"),
		activityKey(roomID, "last_scan"),
		activityKey(roomID, "scan_lock"),
	).Err()
}

// SetLastScan records when a room was last scanned, starting its cooldown.
func (s *ActivityStore) SetLastScan(ctx context.Context, roomID int64, at time.Time, ttl time.Duration) error {
	return s.client.Set(ctx, activityKey(roomID, "last_scan"), at.Unix(), ttl).Err()
}

// LastScan reads the last scan time for a room, nil when none is recorded.
func (s *ActivityStore) LastScan(ctx context.Context, roomID int64) (*time.Time, error) {
	val, err := s.client.Get(ctx, activityKey(roomID, "last_scan")).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, nil
	}
	t := time.Unix(ts, 0)
	return &t, nil
}

// TrackedRoomIDs enumerates rooms with live activity state by scanning for
// message-counter keys.
func (s *ActivityStore) TrackedRoomIDs(ctx context.Context) ([]int64, error) {
	pattern := trackerNamespace + ":*:messages"
	seen := make(map[int64]bool)
	var ids []int64

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			var roomID int64
			var suffix string
			if _, err := fmt.Sscanf(key, trackerNamespace+":%d:%s", &roomID, &suffix); err != nil {
				continue
			}
			if !seen[roomID] {
				seen[roomID] = true
				ids = append(ids, roomID)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}
