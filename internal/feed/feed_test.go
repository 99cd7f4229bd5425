package feed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/feedscout/feedscout/internal/ai"
	"github.com/feedscout/feedscout/internal/config"
	"github.com/feedscout/feedscout/internal/models"
	"github.com/feedscout/feedscout/internal/store"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

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
	}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func newTestActivity(t *testing.T) *store.ActivityStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	activity := store.NewActivityStoreFromClient(client)
	t.Cleanup(func() { activity.Close() })
	return activity
}

func seedUser(t *testing.T, db *store.SQLiteStore, name string) *models.User {
	t.Helper()
	user, err := db.CreateUser(context.Background(), name)
	require.NoError(t, err)
	return user
}

func seedRoom(t *testing.T, db *store.SQLiteStore, name string, kind models.RoomKind, creatorID int64) *models.Room {
	t.Helper()
	room, err := db.CreateRoom(context.Background(), store.CreateRoomParams{
		Name:      name,
		Kind:      kind,
		CreatorID: creatorID,
	})
	require.NoError(t, err)
	return room
}

func seedThreadRoom(t *testing.T, db *store.SQLiteStore, parentMessageID, creatorID int64) *models.Room {
	t.Helper()
	room, err := db.CreateRoom(context.Background(), store.CreateRoomParams{
		Name:            "thread",
		Kind:            models.RoomThread,
		ParentMessageID: &parentMessageID,
		CreatorID:       creatorID,
	})
	require.NoError(t, err)
	return room
}

func seedMessage(t *testing.T, db *store.SQLiteStore, roomID, creatorID int64, body string) *models.Message {
	t.Helper()
	msg, err := db.CreateMessage(context.Background(), store.CreateMessageParams{
		RoomID:    roomID,
		CreatorID: creatorID,
		Body:      body,
	})
	require.NoError(t, err)
	return msg
}

// stubCompleter returns canned responses in order, then repeats the last one.
type stubCompleter struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (s *stubCompleter) Complete(ctx context.Context, req ai.Request) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, req.Prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "{}", nil
	}
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}
