package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedscout/feedscout/internal/models"
)

func TestDedupExactFingerprintSkips(t *testing.T) {
	db := newTestStore(t)
	creator := NewCreator(db, testLogger())
	completer := &stubCompleter{}
	dedup := NewDeduplicator(db, completer, testConfig(), testLogger())

	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	room := seedRoom(t, db, "general", models.RoomOpen, alice.ID)
	m1 := seedMessage(t, db, room.ID, alice.ID, "one")
	m2 := seedMessage(t, db, room.ID, alice.ID, "two")
	promo := promoteConversation(t, creator, []int64{m1.ID, m2.ID}, "A conversation")

	decision, err := dedup.Check(ctx, models.Conversation{
		MessageIDs: []int64{m2.ID, m1.ID},
		Title:      "Same thing again",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, ActionSkip, decision.Action)
	require.NotNil(t, decision.Card)
	assert.Equal(t, promo.Card.ID, decision.Card.ID)
	assert.Equal(t, "exact_fingerprint_match", decision.Reason)
	// The gateway is never consulted for an exact match.
	assert.Zero(t, completer.calls)
}

func TestDedupNewTopicWithoutRecentCards(t *testing.T) {
	db := newTestStore(t)
	completer := &stubCompleter{}
	dedup := NewDeduplicator(db, completer, testConfig(), testLogger())

	decision, err := dedup.Check(context.Background(), models.Conversation{
		MessageIDs: []int64{1, 2, 3},
		Title:      "Fresh topic",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, ActionNewTopic, decision.Action)
	assert.NotEmpty(t, decision.Fingerprint)
	assert.Zero(t, completer.calls)
}

func TestDedupContinuationVerdict(t *testing.T) {
	db := newTestStore(t)
	creator := NewCreator(db, testLogger())

	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	room := seedRoom(t, db, "general", models.RoomOpen, alice.ID)
	m1 := seedMessage(t, db, room.ID, alice.ID, "one")
	promo := promoteConversation(t, creator, []int64{m1.ID}, "A conversation")

	completer := &stubCompleter{responses: []string{fmt.Sprintf(
		`{"action":"continuation","related_card_id":%d,"similarity_score":0.9,"reasoning":"same discussion"}`,
		promo.Card.ID,
	)}}
	dedup := NewDeduplicator(db, completer, testConfig(), testLogger())

	m2 := seedMessage(t, db, room.ID, alice.ID, "two, later")
	decision, err := dedup.Check(ctx, models.Conversation{
		MessageIDs: []int64{m2.ID},
		Title:      "More of the same",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, ActionContinuation, decision.Action)
	require.NotNil(t, decision.Card)
	assert.Equal(t, promo.Card.ID, decision.Card.ID)
	assert.InDelta(t, 0.9, decision.Similarity, 0.001)
	assert.Equal(t, 1, completer.calls)
}

func TestDedupDuplicateVerdictSkips(t *testing.T) {
	db := newTestStore(t)
	creator := NewCreator(db, testLogger())

	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	room := seedRoom(t, db, "general", models.RoomOpen, alice.ID)
	m1 := seedMessage(t, db, room.ID, alice.ID, "one")
	promo := promoteConversation(t, creator, []int64{m1.ID}, "A conversation")

	completer := &stubCompleter{responses: []string{fmt.Sprintf(
		`{"action":"duplicate","related_card_id":%d,"similarity_score":0.97,"reasoning":"identical"}`,
		promo.Card.ID,
	)}}
	dedup := NewDeduplicator(db, completer, testConfig(), testLogger())

	m2 := seedMessage(t, db, room.ID, alice.ID, "restated")
	decision, err := dedup.Check(ctx, models.Conversation{MessageIDs: []int64{m2.ID}}, nil)
	require.NoError(t, err)

	assert.Equal(t, ActionSkip, decision.Action)
	require.NotNil(t, decision.Card)
	assert.Equal(t, promo.Card.ID, decision.Card.ID)
}

func TestDedupDegradesToNewTopic(t *testing.T) {
	db := newTestStore(t)
	creator := NewCreator(db, testLogger())

	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	room := seedRoom(t, db, "general", models.RoomOpen, alice.ID)
	m1 := seedMessage(t, db, room.ID, alice.ID, "one")
	promoteConversation(t, creator, []int64{m1.ID}, "A conversation")
	m2 := seedMessage(t, db, room.ID, alice.ID, "two")
	candidate := models.Conversation{MessageIDs: []int64{m2.ID}}

	t.Run("completion error", func(t *testing.T) {
		completer := &stubCompleter{err: errors.New("gateway down")}
		dedup := NewDeduplicator(db, completer, testConfig(), testLogger())
		decision, err := dedup.Check(ctx, candidate, nil)
		require.NoError(t, err)
		assert.Equal(t, ActionNewTopic, decision.Action)
	})

	t.Run("malformed response", func(t *testing.T) {
		completer := &stubCompleter{responses: []string{"not json"}}
		dedup := NewDeduplicator(db, completer, testConfig(), testLogger())
		decision, err := dedup.Check(ctx, candidate, nil)
		require.NoError(t, err)
		assert.Equal(t, ActionNewTopic, decision.Action)
	})

	t.Run("continuation without card id", func(t *testing.T) {
		completer := &stubCompleter{responses: []string{`{"action":"continuation","reasoning":"vague"}`}}
		dedup := NewDeduplicator(db, completer, testConfig(), testLogger())
		decision, err := dedup.Check(ctx, candidate, nil)
		require.NoError(t, err)
		assert.Equal(t, ActionNewTopic, decision.Action)
	})

	t.Run("continuation referencing unknown card", func(t *testing.T) {
		completer := &stubCompleter{responses: []string{`{"action":"continuation","related_card_id":99999,"reasoning":"hallucinated"}`}}
		dedup := NewDeduplicator(db, completer, testConfig(), testLogger())
		decision, err := dedup.Check(ctx, candidate, nil)
		require.NoError(t, err)
		assert.Equal(t, ActionNewTopic, decision.Action)
	})

	t.Run("unknown action", func(t *testing.T) {
		completer := &stubCompleter{responses: []string{`{"action":"merge"}`}}
		dedup := NewDeduplicator(db, completer, testConfig(), testLogger())
		decision, err := dedup.Check(ctx, candidate, nil)
		require.NoError(t, err)
		assert.Equal(t, ActionNewTopic, decision.Action)
	})
}

func TestDedupSourceRoomFilterExcludesOtherRooms(t *testing.T) {
	db := newTestStore(t)
	creator := NewCreator(db, testLogger())

	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	roomA := seedRoom(t, db, "alpha", models.RoomOpen, alice.ID)
	roomB := seedRoom(t, db, "beta", models.RoomOpen, alice.ID)
	mA := seedMessage(t, db, roomA.ID, alice.ID, "in alpha")
	promoteConversation(t, creator, []int64{mA.ID}, "Alpha story")

	completer := &stubCompleter{}
	dedup := NewDeduplicator(db, completer, testConfig(), testLogger())

	// The only recent card derives from roomA; a scan focused on roomB
	// sees no comparable cards and never calls the gateway.
	mB := seedMessage(t, db, roomB.ID, alice.ID, "in beta")
	decision, err := dedup.Check(ctx, models.Conversation{MessageIDs: []int64{mB.ID}}, &roomB.ID)
	require.NoError(t, err)

	assert.Equal(t, ActionNewTopic, decision.Action)
	assert.Zero(t, completer.calls)
}
