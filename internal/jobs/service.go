package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedscout/feedscout/internal/config"
	"github.com/feedscout/feedscout/internal/feed"
	"github.com/feedscout/feedscout/internal/metrics"
	"github.com/feedscout/feedscout/internal/store"
)

// Service executes scan jobs. Room scans are triggered by activity
// thresholds; global scans come from the cron fallback and sweep everything
// the per-room triggers missed.
type Service struct {
	db      store.DataStore
	tracker *feed.Tracker
	scanner *feed.Scanner
	runner  *feed.Runner
	cfg     *config.Config
	logger  zerolog.Logger
}

// NewService builds the scan job service.
func NewService(db store.DataStore, tracker *feed.Tracker, scanner *feed.Scanner, runner *feed.Runner, cfg *config.Config, logger zerolog.Logger) *Service {
	return &Service{
		db:      db,
		tracker: tracker,
		scanner: scanner,
		runner:  runner,
		cfg:     cfg,
		logger:  logger.With().Str("component", "scan_jobs").Logger(),
	}
}

// RoomScan runs a focused scan of one room. On success the room's activity
// state is reset and its cooldown starts; on failure the state (and with it
// the scan lock) is cleared so the room can trigger again.
func (s *Service) RoomScan(ctx context.Context, roomID int64, triggerStatus string) error {
	if !s.cfg.EnableAutomatedScans {
		return nil
	}

	room, err := s.db.GetRoom(ctx, roomID)
	if err == store.ErrNotFound {
		s.logger.Warn().Int64("room_id", roomID).Msg("room not found, resetting tracker state")
		s.tracker.Reset(ctx, roomID)
		return nil
	}
	if err != nil {
		s.tracker.Reset(ctx, roomID)
		return err
	}

	if triggerStatus == "" {
		triggerStatus = "threshold"
	}
	s.logger.Info().
		Int64("room_id", room.ID).
		Str("trigger", triggerStatus).
		Msg("starting room scan")
	metrics.ScansStarted.WithLabelValues("room").Inc()
	start := time.Now()

	conversations, err := s.scanner.Scan(ctx, room)
	if err != nil {
		s.tracker.Reset(ctx, roomID)
		return err
	}

	if len(conversations) == 0 {
		s.logger.Info().Int64("room_id", room.ID).Msg("no conversations detected")
	} else {
		metrics.ConversationsDetected.WithLabelValues("room").Add(float64(len(conversations)))
		s.runner.Run(ctx, conversations, "room", room)
	}

	s.tracker.MarkScanned(ctx, room.ID)
	metrics.ScanDuration.WithLabelValues("room").Observe(time.Since(start).Seconds())
	return nil
}

// GlobalScan runs the fallback scan across all eligible rooms, then marks
// every tracked room scanned. The sweep happens even when detection fails:
// leaving stale counters behind would double-fire the per-room triggers.
func (s *Service) GlobalScan(ctx context.Context) error {
	if !s.cfg.EnableAutomatedScans {
		return nil
	}

	s.logger.Info().Msg("starting scheduled scan")
	metrics.ScansStarted.WithLabelValues("scheduled").Inc()
	start := time.Now()

	defer func() {
		for _, roomID := range s.tracker.ActiveRoomIDs(ctx) {
			s.tracker.MarkScanned(ctx, roomID)
		}
		metrics.ScanDuration.WithLabelValues("scheduled").Observe(time.Since(start).Seconds())
		s.logger.Info().Msg("scheduled scan complete")
	}()

	conversations, err := s.scanner.Scan(ctx, nil)
	if err != nil {
		return err
	}

	if len(conversations) == 0 {
		s.logger.Info().Msg("no conversations detected in scheduled scan")
		return nil
	}

	metrics.ConversationsDetected.WithLabelValues("scheduled").Add(float64(len(conversations)))
	s.runner.Run(ctx, conversations, "scheduled", nil)
	return nil
}
