package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedscout/feedscout/internal/config"
	"github.com/feedscout/feedscout/internal/metrics"
	"github.com/feedscout/feedscout/internal/models"
	"github.com/feedscout/feedscout/internal/store"
)

// TrackStatus explains a tracking decision.
type TrackStatus string

const (
	StatusIgnored          TrackStatus = "ignored"
	StatusMonitoring       TrackStatus = "monitoring"
	StatusCooldown         TrackStatus = "cooldown"
	StatusLocked           TrackStatus = "locked"
	StatusMessageThreshold TrackStatus = "message_threshold"
	StatusQualityThreshold TrackStatus = "quality_threshold"
)

// TrackResult is the outcome of recording one message. Triggered is true only
// when a threshold fired AND this caller won the scan lock; everyone else sees
// the explaining status.
type TrackResult struct {
	Triggered        bool
	Status           TrackStatus
	RoomID           int64
	MessageCount     int
	ParticipantCount int
}

func ignoredResult() TrackResult {
	return TrackResult{Status: StatusIgnored}
}

// Tracker accumulates per-room activity counters and decides when a room has
// earned a scan. All counter state lives in Redis with a bounded TTL; tracker
// failures degrade to "ignored" so message delivery never depends on it.
type Tracker struct {
	activity *store.ActivityStore
	db       store.DataStore
	cfg      *config.Config
	logger   zerolog.Logger
}

// NewTracker builds an activity tracker.
func NewTracker(activity *store.ActivityStore, db store.DataStore, cfg *config.Config, logger zerolog.Logger) *Tracker {
	return &Tracker{
		activity: activity,
		db:       db,
		cfg:      cfg,
		logger:   logger.With().Str("component", "tracker").Logger(),
	}
}

// Record bumps the canonical room's activity counters for one message and
// evaluates the scan triggers. Thread messages roll up to the room containing
// the thread's parent message.
func (t *Tracker) Record(ctx context.Context, message *models.Message) (result TrackResult) {
	defer func() {
		metrics.MessagesTracked.WithLabelValues(string(result.Status)).Inc()
	}()

	if !t.cfg.EnableAutomatedScans {
		return ignoredResult()
	}

	room, err := t.canonicalRoom(ctx, message.RoomID)
	if err != nil {
		t.logger.Error().Err(err).Int64("message_id", message.ID).Msg("failed to resolve canonical room")
		return ignoredResult()
	}
	if !t.eligible(room, message) {
		return ignoredResult()
	}

	if err := t.activity.RecordActivity(ctx, room.ID, message.CreatorID, t.cfg.StateTTL()); err != nil {
		t.logger.Error().Err(err).Int64("room_id", room.ID).Msg("failed to record activity")
		return ignoredResult()
	}

	stats, err := t.activity.Stats(ctx, room.ID)
	if err != nil {
		t.logger.Error().Err(err).Int64("room_id", room.ID).Msg("failed to read activity stats")
		return ignoredResult()
	}

	result = t.evaluate(room.ID, stats)
	if result.Triggered {
		result = t.ensureLock(ctx, result)
	}
	return result
}

// ShouldScan re-evaluates a room's triggers without recording activity or
// taking the scan lock.
func (t *Tracker) ShouldScan(ctx context.Context, roomID int64) TrackResult {
	stats, err := t.activity.Stats(ctx, roomID)
	if err != nil {
		t.logger.Error().Err(err).Int64("room_id", roomID).Msg("failed to read activity stats")
		return ignoredResult()
	}
	return t.evaluate(roomID, stats)
}

// Reset discards all tracked state for a room, including the scan lock.
func (t *Tracker) Reset(ctx context.Context, roomID int64) {
	if err := t.activity.ClearActivity(ctx, roomID); err != nil {
		t.logger.Error().Err(err).Int64("room_id", roomID).Msg("failed to reset activity")
	}
}

// MarkScanned resets a room's counters and starts its cooldown window.
func (t *Tracker) MarkScanned(ctx context.Context, roomID int64) {
	t.Reset(ctx, roomID)
	if err := t.activity.SetLastScan(ctx, roomID, time.Now(), t.cfg.StateTTL()); err != nil {
		t.logger.Error().Err(err).Int64("room_id", roomID).Msg("failed to set last scan")
	}
}

// CooldownRemaining reports how long until a room is scannable again. Zero
// means the room is out of cooldown.
func (t *Tracker) CooldownRemaining(ctx context.Context, roomID int64) time.Duration {
	lastScan, err := t.activity.LastScan(ctx, roomID)
	if err != nil {
		t.logger.Error().Err(err).Int64("room_id", roomID).Msg("failed to read last scan")
		return 0
	}
	if lastScan == nil {
		return 0
	}
	remaining := t.cfg.Cooldown() - time.Since(*lastScan)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ActiveRoomIDs lists rooms with live activity counters.
func (t *Tracker) ActiveRoomIDs(ctx context.Context) []int64 {
	ids, err := t.activity.TrackedRoomIDs(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("failed to enumerate tracked rooms")
		return nil
	}
	return ids
}

// canonicalRoom resolves a message's room to the tracked room: thread rooms
// roll up to the parent message's room when it can be resolved.
func (t *Tracker) canonicalRoom(ctx context.Context, roomID int64) (*models.Room, error) {
	room, err := t.db.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsThread() {
		return room, nil
	}
	parent, err := t.db.ParentRoom(ctx, room)
	if err == store.ErrNotFound {
		return room, nil
	}
	if err != nil {
		return nil, err
	}
	return parent, nil
}

func (t *Tracker) eligible(room *models.Room, message *models.Message) bool {
	if !room.Active || room.IsDirect() || room.IsDerived() {
		return false
	}
	// Copies made by the pipeline itself never feed back into tracking.
	return !message.IsCopy()
}

// evaluate applies the trigger rules in precedence order: cooldown, lock,
// message threshold, quality threshold.
func (t *Tracker) evaluate(roomID int64, stats store.ActivityStats) TrackResult {
	result := TrackResult{
		RoomID:           roomID,
		MessageCount:     stats.MessageCount,
		ParticipantCount: stats.ParticipantCount,
	}

	if t.inCooldown(stats.LastScanAt) {
		result.Status = StatusCooldown
		return result
	}
	if stats.ScanLocked {
		result.Status = StatusLocked
		return result
	}

	switch {
	case stats.MessageCount >= t.cfg.MessageThreshold:
		result.Triggered = true
		result.Status = StatusMessageThreshold
	case stats.MessageCount >= t.cfg.QualityMessageThreshold &&
		stats.ParticipantCount >= t.cfg.QualityParticipantThreshold:
		result.Triggered = true
		result.Status = StatusQualityThreshold
	default:
		result.Status = StatusMonitoring
	}
	return result
}

// ensureLock converts a trigger into a scan claim. Losing the SetNX race
// means another writer is already scanning this room.
func (t *Tracker) ensureLock(ctx context.Context, result TrackResult) TrackResult {
	acquired, err := t.activity.AcquireScanLock(ctx, result.RoomID, t.cfg.StateTTL())
	if err != nil {
		t.logger.Error().Err(err).Int64("room_id", result.RoomID).Msg("failed to acquire scan lock")
		acquired = false
	}
	if !acquired {
		result.Triggered = false
		result.Status = StatusLocked
	}
	return result
}

func (t *Tracker) inCooldown(lastScanAt *time.Time) bool {
	if lastScanAt == nil {
		return false
	}
	return time.Since(*lastScanAt) < t.cfg.Cooldown()
}
