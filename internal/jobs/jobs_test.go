package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/feedscout/feedscout/internal/ai"
	"github.com/feedscout/feedscout/internal/config"
	"github.com/feedscout/feedscout/internal/feed"
	"github.com/feedscout/feedscout/internal/models"
	"github.com/feedscout/feedscout/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		AIModel:                     "test-model",
		EnableAutomatedScans:        true,
		LookbackHours:               2,
		MaxConversationsPerScan:     999,
		MessageThreshold:            15,
		QualityMessageThreshold:     8,
		QualityParticipantThreshold: 3,
		CooldownMinutes:             30,
		StateTTLMinutes:             240,
		RoomScanMessageLimit:        120,
		RoomScanThreadLimit:         40,
		RoomScanContextBackfill:     20,
		RoomScanLookbackHours:       12,
		ScanWorkers:                 1,
	}
}

// stubCompleter serves one canned detection response for every call.
type stubCompleter struct {
	response string
}

func (s *stubCompleter) Complete(ctx context.Context, req ai.Request) (string, error) {
	return s.response, nil
}

// pipeline bundles everything a scan job touches.
type pipeline struct {
	db       *store.SQLiteStore
	activity *store.ActivityStore
	tracker  *feed.Tracker
	service  *Service
	queue    *Queue
	cfg      *config.Config
}

func newPipeline(t *testing.T, completer ai.Completer) *pipeline {
	t.Helper()
	logger := zerolog.Nop()
	cfg := testConfig()

	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	activity := store.NewActivityStoreFromClient(client)
	t.Cleanup(func() { activity.Close() })

	tracker := feed.NewTracker(activity, db, cfg, logger)
	scanner := feed.NewScanner(db, completer, cfg, logger)
	dedup := feed.NewDeduplicator(db, completer, cfg, logger)
	creator := feed.NewCreator(db, logger)
	updater := feed.NewUpdater(db, logger)
	runner := feed.NewRunner(db, dedup, creator, updater, logger)

	return &pipeline{
		db:       db,
		activity: activity,
		tracker:  tracker,
		service:  NewService(db, tracker, scanner, runner, cfg, logger),
		queue:    NewQueue(client, logger),
		cfg:      cfg,
	}
}

func (p *pipeline) seedRoomWithMessages(t *testing.T, bodies ...string) (*models.Room, []int64) {
	t.Helper()
	ctx := context.Background()
	alice, err := p.db.CreateUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := p.db.CreateUser(ctx, "bob")
	require.NoError(t, err)
	room, err := p.db.CreateRoom(ctx, store.CreateRoomParams{
		Name:      "general",
		Kind:      models.RoomOpen,
		CreatorID: alice.ID,
	})
	require.NoError(t, err)

	creators := []int64{alice.ID, bob.ID}
	ids := make([]int64, 0, len(bodies))
	for i, body := range bodies {
		msg, err := p.db.CreateMessage(ctx, store.CreateMessageParams{
			RoomID:    room.ID,
			CreatorID: creators[i%len(creators)],
			Body:      body,
		})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}
	return room, ids
}

func detectionResponse(title string, ids []int64) string {
	idJSON := ""
	for i, id := range ids {
		if i > 0 {
			idJSON += ","
		}
		idJSON += fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf(
		`{"conversations":[{"message_ids":[%s],"title":%q,"summary":"a summary","participants":["alice"],"topic_tags":["general"],"key_insight":"label"}]}`,
		idJSON, title)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}
