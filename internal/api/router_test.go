package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedscout/feedscout/internal/ai"
	"github.com/feedscout/feedscout/internal/config"
	"github.com/feedscout/feedscout/internal/feed"
	"github.com/feedscout/feedscout/internal/handlers"
	"github.com/feedscout/feedscout/internal/jobs"
	"github.com/feedscout/feedscout/internal/models"
	"github.com/feedscout/feedscout/internal/store"
)

type testServer struct {
	router    http.Handler
	db        *store.SQLiteStore
	activity  *store.ActivityStore
	queue     *jobs.Queue
	cfg       *config.Config
	completer *stubCompleter
}

// stubCompleter returns canned responses in order, then repeats the last one.
type stubCompleter struct {
	responses []string
	calls     int
}

func (s *stubCompleter) Complete(ctx context.Context, req ai.Request) (string, error) {
	s.calls++
	if len(s.responses) == 0 {
		return "{}", nil
	}
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	cfg := &config.Config{
		EnableAutomatedScans:        true,
		MessageThreshold:            15,
		QualityMessageThreshold:     8,
		QualityParticipantThreshold: 3,
		CooldownMinutes:             30,
		StateTTLMinutes:             240,
	}

	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	activity := store.NewActivityStoreFromClient(client)
	t.Cleanup(func() { activity.Close() })

	completer := &stubCompleter{}
	tracker := feed.NewTracker(activity, db, cfg, logger)
	detector := feed.NewDetector(db, completer, cfg, logger)
	creator := feed.NewCreator(db, logger)
	queue := jobs.NewQueue(client, logger)

	h := handlers.NewHandler(db, activity, tracker, detector, creator, queue, logger)
	return &testServer{
		router:    NewRouter(logger, h),
		db:        db,
		activity:  activity,
		queue:     queue,
		cfg:       cfg,
		completer: completer,
	}
}

func (s *testServer) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seedRoom(t *testing.T) (*models.Room, *models.User) {
	t.Helper()
	ctx := context.Background()
	user, err := s.db.CreateUser(ctx, "alice")
	require.NoError(t, err)
	room, err := s.db.CreateRoom(ctx, store.CreateRoomParams{
		Name:      "general",
		Kind:      models.RoomOpen,
		CreatorID: user.ID,
	})
	require.NoError(t, err)
	return room, user
}

func TestRootEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := s.request(t, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "feedscout", body["name"])
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := s.request(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Checks, 2)
}

func TestPostMessage(t *testing.T) {
	s := newTestServer(t)
	room, user := s.seedRoom(t)

	rec := s.request(t, http.MethodPost, fmt.Sprintf("/rooms/%d/messages", room.ID), handlers.PostMessageRequest{
		CreatorID: user.ID,
		Body:      "hello there",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body handlers.PostMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hello there", body.Message.Body)
	assert.NotEmpty(t, body.Message.ClientMessageID)
	assert.Equal(t, "monitoring", body.Tracking.Status)
	assert.False(t, body.Tracking.Triggered)
	assert.Equal(t, 1, body.Tracking.MessageCount)
}

func TestPostMessageTriggersScan(t *testing.T) {
	s := newTestServer(t)
	s.cfg.MessageThreshold = 2
	room, user := s.seedRoom(t)

	path := fmt.Sprintf("/rooms/%d/messages", room.ID)
	rec := s.request(t, http.MethodPost, path, handlers.PostMessageRequest{CreatorID: user.ID, Body: "one"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.request(t, http.MethodPost, path, handlers.PostMessageRequest{CreatorID: user.ID, Body: "two"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var body handlers.PostMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Tracking.Triggered)
	assert.Equal(t, "message_threshold", body.Tracking.Status)

	pending, err := s.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestPostMessageValidation(t *testing.T) {
	s := newTestServer(t)
	room, user := s.seedRoom(t)
	path := fmt.Sprintf("/rooms/%d/messages", room.ID)

	t.Run("unknown room", func(t *testing.T) {
		rec := s.request(t, http.MethodPost, "/rooms/99999/messages", handlers.PostMessageRequest{CreatorID: user.ID, Body: "x"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad room id", func(t *testing.T) {
		rec := s.request(t, http.MethodPost, "/rooms/abc/messages", handlers.PostMessageRequest{CreatorID: user.ID, Body: "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing body", func(t *testing.T) {
		rec := s.request(t, http.MethodPost, path, handlers.PostMessageRequest{CreatorID: user.ID})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("missing creator", func(t *testing.T) {
		rec := s.request(t, http.MethodPost, path, handlers.PostMessageRequest{Body: "x"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestPromoteEndpoint(t *testing.T) {
	s := newTestServer(t)
	room, user := s.seedRoom(t)

	ctx := context.Background()
	msg, err := s.db.CreateMessage(ctx, store.CreateMessageParams{
		RoomID:    room.ID,
		CreatorID: user.ID,
		Body:      "this deserves a wider audience",
	})
	require.NoError(t, err)

	rec := s.request(t, http.MethodPost, "/promotions", handlers.PromoteRequest{
		MessageIDs:   []int64{msg.ID},
		Title:        "A great insight",
		Summary:      "Worth reading.",
		PromotedByID: &user.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body handlers.PromoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.CardPromoted, body.Card.Kind)
	require.NotNil(t, body.Room.SourceRoomID)
	assert.Equal(t, room.ID, *body.Room.SourceRoomID)
}

func TestPromoteByMessageID(t *testing.T) {
	s := newTestServer(t)
	room, user := s.seedRoom(t)

	ctx := context.Background()
	first, err := s.db.CreateMessage(ctx, store.CreateMessageParams{
		RoomID:    room.ID,
		CreatorID: user.ID,
		Body:      "started a great thread",
	})
	require.NoError(t, err)
	second, err := s.db.CreateMessage(ctx, store.CreateMessageParams{
		RoomID:    room.ID,
		CreatorID: user.ID,
		Body:      "and this is the payoff",
	})
	require.NoError(t, err)

	s.completer.responses = []string{
		fmt.Sprintf(`{"related_message_ids":[%d,%d],"conversation_flow":"setup then payoff","reasoning":"one exchange"}`, first.ID, second.ID),
		`{"title":"A thread worth reading","summary":"Started strong and paid off.","key_insight":"Great thread","preview_message_id":null}`,
	}

	rec := s.request(t, http.MethodPost, "/promotions", handlers.PromoteRequest{
		MessageID:    &second.ID,
		PromotedByID: &user.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body handlers.PromoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.CardPromoted, body.Card.Kind)
	assert.Equal(t, "A thread worth reading", body.Card.Title)
	assert.Equal(t, "Great thread", body.Room.Name)

	copied, err := s.db.CopiedOriginalIDs(ctx, body.Room.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{first.ID, second.ID}, copied)
}

func TestPromoteByMessageIDNotFound(t *testing.T) {
	s := newTestServer(t)

	unknown := int64(99999)
	rec := s.request(t, http.MethodPost, "/promotions", handlers.PromoteRequest{MessageID: &unknown})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, s.completer.calls)
}

func TestPromoteEndpointErrors(t *testing.T) {
	s := newTestServer(t)
	room, user := s.seedRoom(t)
	ctx := context.Background()
	msg, err := s.db.CreateMessage(ctx, store.CreateMessageParams{
		RoomID:    room.ID,
		CreatorID: user.ID,
		Body:      "hello",
	})
	require.NoError(t, err)

	t.Run("empty message ids", func(t *testing.T) {
		rec := s.request(t, http.MethodPost, "/promotions", handlers.PromoteRequest{Title: "x"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("missing title", func(t *testing.T) {
		rec := s.request(t, http.MethodPost, "/promotions", handlers.PromoteRequest{MessageIDs: []int64{msg.ID}})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown messages", func(t *testing.T) {
		rec := s.request(t, http.MethodPost, "/promotions", handlers.PromoteRequest{MessageIDs: []int64{99999}, Title: "x"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestFeedEndpoint(t *testing.T) {
	s := newTestServer(t)
	room, user := s.seedRoom(t)

	ctx := context.Background()
	msg, err := s.db.CreateMessage(ctx, store.CreateMessageParams{
		RoomID:    room.ID,
		CreatorID: user.ID,
		Body:      "promoted content",
	})
	require.NoError(t, err)

	rec := s.request(t, http.MethodPost, "/promotions", handlers.PromoteRequest{
		MessageIDs: []int64{msg.ID},
		Title:      "On the feed",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.request(t, http.MethodGet, "/feed", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.FeedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Cards, 1)
	assert.Equal(t, "On the feed", body.Cards[0].Title)
	assert.NotEmpty(t, body.Cards[0].RoomName)

	t.Run("invalid limit", func(t *testing.T) {
		rec := s.request(t, http.MethodGet, "/feed?limit=nope", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)
	rec := s.request(t, http.MethodGet, "/", nil)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := s.request(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "feedscout_")
}
