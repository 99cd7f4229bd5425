package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedscout/feedscout/internal/models"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func mkUser(t *testing.T, s *SQLiteStore, name string) *models.User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), name)
	require.NoError(t, err)
	return user
}

func mkRoom(t *testing.T, s *SQLiteStore, params CreateRoomParams) *models.Room {
	t.Helper()
	room, err := s.CreateRoom(context.Background(), params)
	require.NoError(t, err)
	return room
}

func mkMessage(t *testing.T, s *SQLiteStore, roomID, creatorID int64, body string) *models.Message {
	t.Helper()
	msg, err := s.CreateMessage(context.Background(), CreateMessageParams{
		RoomID:    roomID,
		CreatorID: creatorID,
		Body:      body,
	})
	require.NoError(t, err)
	return msg
}

// backdate shifts a message's created_at for window tests.
func backdate(t *testing.T, s *SQLiteStore, messageID int64, to time.Time) {
	t.Helper()
	_, err := s.db.ExecContext(context.Background(),
		`UPDATE messages SET created_at = ? WHERE id = ?`, to, messageID)
	require.NoError(t, err)
}

func TestGetRoomNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.GetRoom(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParentRoomResolution(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	parent := mkRoom(t, s, CreateRoomParams{Name: "general", Kind: models.RoomOpen, CreatorID: alice.ID})
	root := mkMessage(t, s, parent.ID, alice.ID, "root")
	thread := mkRoom(t, s, CreateRoomParams{
		Name: "thread", Kind: models.RoomThread, ParentMessageID: &root.ID, CreatorID: alice.ID,
	})

	resolved, err := s.ParentRoom(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, resolved.ID)

	// A room without a parent message cannot be resolved.
	_, err = s.ParentRoom(ctx, parent)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActiveThreadRoomIDs(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	room := mkRoom(t, s, CreateRoomParams{Name: "general", Kind: models.RoomOpen, CreatorID: alice.ID})

	rootA := mkMessage(t, s, room.ID, alice.ID, "root a")
	rootB := mkMessage(t, s, room.ID, alice.ID, "root b")
	threadA := mkRoom(t, s, CreateRoomParams{Name: "ta", Kind: models.RoomThread, ParentMessageID: &rootA.ID, CreatorID: alice.ID})
	threadB := mkRoom(t, s, CreateRoomParams{Name: "tb", Kind: models.RoomThread, ParentMessageID: &rootB.ID, CreatorID: alice.ID})

	// threadA has fresh activity; threadB's only message is stale.
	mkMessage(t, s, threadA.ID, alice.ID, "fresh reply")
	stale := mkMessage(t, s, threadB.ID, alice.ID, "old reply")
	backdate(t, s, stale.ID, time.Now().Add(-48*time.Hour))

	ids, err := s.ActiveThreadRoomIDs(ctx, room.ID, time.Now().Add(-12*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{threadA.ID}, ids)
}

func TestThreadRoomIDs(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	room := mkRoom(t, s, CreateRoomParams{Name: "general", Kind: models.RoomOpen, CreatorID: alice.ID})

	rootA := mkMessage(t, s, room.ID, alice.ID, "root a")
	rootB := mkMessage(t, s, room.ID, alice.ID, "root b")
	threadA := mkRoom(t, s, CreateRoomParams{Name: "ta", Kind: models.RoomThread, ParentMessageID: &rootA.ID, CreatorID: alice.ID})
	mkRoom(t, s, CreateRoomParams{Name: "tb", Kind: models.RoomThread, ParentMessageID: &rootB.ID, CreatorID: alice.ID})

	ids, err := s.ThreadRoomIDs(ctx, rootA.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{threadA.ID}, ids)

	ids, err = s.ThreadRoomIDs(ctx, 99999)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestWindowMessages(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	room := mkRoom(t, s, CreateRoomParams{Name: "general", Kind: models.RoomOpen, CreatorID: alice.ID})

	early := mkMessage(t, s, room.ID, alice.ID, "too early")
	inside := mkMessage(t, s, room.ID, alice.ID, "inside the window")
	recent := mkMessage(t, s, room.ID, alice.ID, "also inside")
	backdate(t, s, early.ID, time.Now().Add(-30*time.Hour))
	backdate(t, s, inside.ID, time.Now().Add(-5*time.Hour))

	start := time.Now().Add(-12 * time.Hour)
	end := time.Now().Add(time.Hour)
	messages, err := s.WindowMessages(ctx, []int64{room.ID}, start, end, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	// Oldest first, relations loaded.
	assert.Equal(t, inside.ID, messages[0].ID)
	assert.Equal(t, recent.ID, messages[1].ID)
	assert.Equal(t, "alice", messages[0].CreatorName)

	messages, err = s.WindowMessages(ctx, nil, start, end, 10)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestMessagesByIDsLoadsRelations(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	room := mkRoom(t, s, CreateRoomParams{Name: "general", Kind: models.RoomOpen, CreatorID: alice.ID})
	m1 := mkMessage(t, s, room.ID, alice.ID, "first")
	m2 := mkMessage(t, s, room.ID, alice.ID, "second")

	messages, err := s.MessagesByIDs(ctx, []int64{m2.ID, m1.ID})
	require.NoError(t, err)
	require.Len(t, messages, 2)

	// Ordered by creation time regardless of input order.
	assert.Equal(t, m1.ID, messages[0].ID)
	assert.Equal(t, "alice", messages[0].CreatorName)
	require.NotNil(t, messages[0].Room)
	assert.Equal(t, room.ID, messages[0].Room.ID)
}

func TestGlobalScanMessagesExclusions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	open := mkRoom(t, s, CreateRoomParams{Name: "open", Kind: models.RoomOpen, CreatorID: alice.ID})
	dm := mkRoom(t, s, CreateRoomParams{Name: "dm", Kind: models.RoomDirect, CreatorID: alice.ID})
	derived := mkRoom(t, s, CreateRoomParams{Name: "derived", Kind: models.RoomOpen, SourceRoomID: &open.ID, CreatorID: alice.ID})

	visible := mkMessage(t, s, open.ID, alice.ID, "visible")
	mkMessage(t, s, dm.ID, alice.ID, "private")
	mkMessage(t, s, derived.ID, alice.ID, "copy room")
	promoted := mkMessage(t, s, open.ID, alice.ID, "already promoted")
	require.NoError(t, s.MarkMessagesInFeed(ctx, []int64{promoted.ID}))

	messages, err := s.GlobalScanMessages(ctx, time.Now().Add(-time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, visible.ID, messages[0].ID)
}

func TestWindowQueries(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	room := mkRoom(t, s, CreateRoomParams{Name: "general", Kind: models.RoomOpen, CreatorID: alice.ID})

	recent := mkMessage(t, s, room.ID, alice.ID, "recent")
	backlog := mkMessage(t, s, room.ID, alice.ID, "backlog")
	backdate(t, s, backlog.ID, time.Now().Add(-24*time.Hour))
	ancient := mkMessage(t, s, room.ID, alice.ID, "ancient")
	backdate(t, s, ancient.ID, time.Now().Add(-30*24*time.Hour))
	promotedOld := mkMessage(t, s, room.ID, alice.ID, "old but promoted")
	backdate(t, s, promotedOld.ID, time.Now().Add(-24*time.Hour))
	require.NoError(t, s.MarkMessagesInFeed(ctx, []int64{promotedOld.ID}))

	lookback := time.Now().Add(-12 * time.Hour)
	floor := time.Now().Add(-7 * 24 * time.Hour)
	roomIDs := []int64{room.ID}

	t.Run("recent window", func(t *testing.T) {
		messages, err := s.RecentWindowMessages(ctx, roomIDs, lookback, 10)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, recent.ID, messages[0].ID)
	})

	t.Run("backlog excludes in-feed and pre-floor", func(t *testing.T) {
		messages, err := s.BacklogWindowMessages(ctx, roomIDs, lookback, floor, 10)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, backlog.ID, messages[0].ID)
	})

	t.Run("context window includes in-feed", func(t *testing.T) {
		messages, err := s.ContextWindowMessages(ctx, roomIDs, lookback, floor, 10)
		require.NoError(t, err)
		ids := make([]int64, 0, len(messages))
		for _, m := range messages {
			ids = append(ids, m.ID)
		}
		assert.ElementsMatch(t, []int64{backlog.ID, promotedOld.ID}, ids)
	})
}

func TestCopyMessagePreservesContent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	room := mkRoom(t, s, CreateRoomParams{Name: "general", Kind: models.RoomOpen, CreatorID: alice.ID})
	derived := mkRoom(t, s, CreateRoomParams{Name: "derived", Kind: models.RoomOpen, SourceRoomID: &room.ID, CreatorID: alice.ID})

	original, err := s.CreateMessage(ctx, CreateMessageParams{
		RoomID:          room.ID,
		CreatorID:       alice.ID,
		Body:            "with a link",
		ClientMessageID: "client-123",
		LinkTitle:       "Example",
		LinkDescription: "An example link",
	})
	require.NoError(t, err)
	require.NoError(t, s.AddReaction(ctx, original.ID, bob.ID, "🔥"))

	loaded, err := s.GetMessage(ctx, original.ID)
	require.NoError(t, err)

	copied, err := s.CopyMessage(ctx, derived.ID, loaded)
	require.NoError(t, err)

	assert.Equal(t, derived.ID, copied.RoomID)
	assert.Equal(t, original.Body, copied.Body)
	assert.Equal(t, original.ClientMessageID, copied.ClientMessageID)
	require.NotNil(t, copied.OriginalMessageID)
	assert.Equal(t, original.ID, *copied.OriginalMessageID)
	assert.True(t, copied.CreatedAt.Equal(loaded.CreatedAt))
	assert.False(t, copied.InFeed)
	require.Len(t, copied.Reactions, 1)
	assert.Equal(t, "🔥", copied.Reactions[0].Content)

	// The unique index rejects copying the same original twice into one room.
	_, err = s.CopyMessage(ctx, derived.ID, loaded)
	assert.Error(t, err)
}

func TestFindCopyLookups(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	room := mkRoom(t, s, CreateRoomParams{Name: "general", Kind: models.RoomOpen, CreatorID: alice.ID})
	derived := mkRoom(t, s, CreateRoomParams{Name: "derived", Kind: models.RoomOpen, SourceRoomID: &room.ID, CreatorID: alice.ID})

	original, err := s.CreateMessage(ctx, CreateMessageParams{
		RoomID:          room.ID,
		CreatorID:       alice.ID,
		Body:            "hello",
		ClientMessageID: "client-xyz",
	})
	require.NoError(t, err)
	copied, err := s.CopyMessage(ctx, derived.ID, original)
	require.NoError(t, err)

	byOriginal, err := s.FindCopyByOriginal(ctx, derived.ID, original.ID)
	require.NoError(t, err)
	assert.Equal(t, copied.ID, byOriginal.ID)

	byClient, err := s.FindCopyByClientID(ctx, derived.ID, "client-xyz")
	require.NoError(t, err)
	assert.Equal(t, copied.ID, byClient.ID)

	_, err = s.FindCopyByOriginal(ctx, derived.ID, 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSiblingCopiedOriginalIDs(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	room := mkRoom(t, s, CreateRoomParams{Name: "general", Kind: models.RoomOpen, CreatorID: alice.ID})
	derivedA := mkRoom(t, s, CreateRoomParams{Name: "da", Kind: models.RoomOpen, SourceRoomID: &room.ID, CreatorID: alice.ID})
	derivedB := mkRoom(t, s, CreateRoomParams{Name: "db", Kind: models.RoomOpen, SourceRoomID: &room.ID, CreatorID: alice.ID})

	m1 := mkMessage(t, s, room.ID, alice.ID, "one")
	m2 := mkMessage(t, s, room.ID, alice.ID, "two")
	_, err := s.CopyMessage(ctx, derivedA.ID, m1)
	require.NoError(t, err)
	_, err = s.CopyMessage(ctx, derivedB.ID, m2)
	require.NoError(t, err)

	siblings, err := s.SiblingCopiedOriginalIDs(ctx, room.ID, derivedB.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{m1.ID}, siblings)
}

func TestFeedCardQueries(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	room := mkRoom(t, s, CreateRoomParams{Name: "general", Kind: models.RoomOpen, CreatorID: alice.ID})
	derived := mkRoom(t, s, CreateRoomParams{Name: "story", Kind: models.RoomOpen, SourceRoomID: &room.ID, CreatorID: alice.ID})

	card, err := s.CreateFeedCard(ctx, CreateFeedCardParams{
		RoomID:             derived.ID,
		Title:              "A story",
		Summary:            "The original summary.",
		Kind:               models.CardAutomated,
		MessageFingerprint: "abc123",
	})
	require.NoError(t, err)

	t.Run("fingerprint lookup", func(t *testing.T) {
		found, err := s.FindCardByFingerprint(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, card.ID, found.ID)

		_, err = s.FindCardByFingerprint(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate fingerprint rejected", func(t *testing.T) {
		_, err := s.CreateFeedCard(ctx, CreateFeedCardParams{
			RoomID:             derived.ID,
			Title:              "Duplicate",
			Kind:               models.CardAutomated,
			MessageFingerprint: "abc123",
		})
		assert.Error(t, err)
	})

	t.Run("touch updates summary only when provided", func(t *testing.T) {
		newSummary := "A rewritten summary."
		require.NoError(t, s.TouchFeedCard(ctx, card.ID, &newSummary))
		got, err := s.GetFeedCard(ctx, card.ID)
		require.NoError(t, err)
		assert.Equal(t, newSummary, got.Summary)

		require.NoError(t, s.TouchFeedCard(ctx, card.ID, nil))
		got, err = s.GetFeedCard(ctx, card.ID)
		require.NoError(t, err)
		assert.Equal(t, newSummary, got.Summary)
	})

	t.Run("recent cards filter by source room", func(t *testing.T) {
		since := time.Now().Add(-time.Hour)

		cards, err := s.RecentFeedCards(ctx, since, &room.ID, 10)
		require.NoError(t, err)
		require.Len(t, cards, 1)
		require.NotNil(t, cards[0].Room)
		assert.Equal(t, derived.ID, cards[0].Room.ID)

		other := mkRoom(t, s, CreateRoomParams{Name: "other", Kind: models.RoomOpen, CreatorID: alice.ID})
		cards, err = s.RecentFeedCards(ctx, since, &other.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, cards)
	})

	t.Run("listing joins room", func(t *testing.T) {
		cards, err := s.ListFeedCards(ctx, 10)
		require.NoError(t, err)
		require.Len(t, cards, 1)
		require.NotNil(t, cards[0].Room)
		assert.Equal(t, "story", cards[0].Room.Name)
	})
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	room := mkRoom(t, s, CreateRoomParams{Name: "general", Kind: models.RoomOpen, CreatorID: alice.ID})

	sentinel := errors.New("boom")
	err := s.InTx(ctx, func(tx Store) error {
		if _, err := tx.CreateMessage(ctx, CreateMessageParams{
			RoomID:    room.ID,
			CreatorID: alice.ID,
			Body:      "doomed",
		}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	messages, err := s.GlobalScanMessages(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestAddMemberAndCopyMemberships(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	room := mkRoom(t, s, CreateRoomParams{Name: "general", Kind: models.RoomOpen, CreatorID: alice.ID})
	derived := mkRoom(t, s, CreateRoomParams{Name: "derived", Kind: models.RoomOpen, SourceRoomID: &room.ID, CreatorID: alice.ID})

	require.NoError(t, s.AddMember(ctx, room.ID, alice.ID))
	require.NoError(t, s.AddMember(ctx, room.ID, bob.ID))
	// Re-adding is a no-op.
	require.NoError(t, s.AddMember(ctx, room.ID, bob.ID))

	copied, err := s.CopyMemberships(ctx, room.ID, derived.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, copied)

	// A second copy finds nothing new.
	copied, err = s.CopyMemberships(ctx, room.ID, derived.ID)
	require.NoError(t, err)
	assert.Zero(t, copied)
}
