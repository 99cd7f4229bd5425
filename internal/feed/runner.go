package feed

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/feedscout/feedscout/internal/models"
	"github.com/feedscout/feedscout/internal/store"
)

// Runner drives detected conversations through dedup and into card creation
// or continuation. Each conversation is processed in isolation; one failure
// never blocks the rest of the batch.
type Runner struct {
	db      store.DataStore
	dedup   *Deduplicator
	creator *Creator
	updater *Updater
	logger  zerolog.Logger
}

// NewRunner builds a runner.
func NewRunner(db store.DataStore, dedup *Deduplicator, creator *Creator, updater *Updater, logger zerolog.Logger) *Runner {
	return &Runner{
		db:      db,
		dedup:   dedup,
		creator: creator,
		updater: updater,
		logger:  logger.With().Str("component", "runner").Logger(),
	}
}

// Run processes a batch of detected conversations. source labels the scan
// that produced them; scannedRoom is non-nil for room-scoped scans.
func (r *Runner) Run(ctx context.Context, conversations []models.Conversation, source string, scannedRoom *models.Room) {
	if len(conversations) == 0 {
		return
	}

	r.logger.Info().
		Int("conversations", len(conversations)).
		Str("source", source).
		Msg("processing detected conversations")

	for _, conversation := range conversations {
		if err := r.process(ctx, conversation, scannedRoom); err != nil {
			r.logger.Error().Err(err).
				Str("title", conversation.Title).
				Str("source", source).
				Msg("failed to process conversation")
		}
	}
}

func (r *Runner) process(ctx context.Context, conversation models.Conversation, scannedRoom *models.Room) error {
	sourceRoomID, err := r.determineSourceRoomID(ctx, conversation.MessageIDs)
	if err != nil {
		return err
	}

	// A focused scan only ever promotes its own room's conversations.
	if scannedRoom != nil && sourceRoomID != nil && *sourceRoomID != scannedRoom.ID {
		r.logger.Info().
			Int64("source_room_id", *sourceRoomID).
			Int64("scanned_room_id", scannedRoom.ID).
			Msg("skipping conversation from another room")
		return nil
	}

	decision, err := r.dedup.Check(ctx, conversation, sourceRoomID)
	if err != nil {
		return err
	}

	// A lone message can only ride along on an existing card.
	if len(conversation.MessageIDs) == 1 {
		if decision.Action == ActionContinuation {
			return r.updateCard(ctx, conversation, decision.Card)
		}
		r.logger.Info().
			Str("action", string(decision.Action)).
			Msg("single message is not a continuation, skipping")
		return nil
	}

	switch decision.Action {
	case ActionSkip:
		r.logger.Info().Str("reason", decision.Reason).Msg("skipping conversation")
		return nil
	case ActionNewTopic:
		return r.createCard(ctx, conversation)
	case ActionContinuation:
		return r.updateCard(ctx, conversation, decision.Card)
	default:
		r.logger.Warn().Str("action", string(decision.Action)).Msg("unknown dedup action")
		return nil
	}
}

func (r *Runner) createCard(ctx context.Context, conversation models.Conversation) error {
	// In-feed messages were only context for the model; a new card must be
	// built from messages not yet promoted.
	nonFeedIDs, err := r.filterNotInFeed(ctx, conversation.MessageIDs)
	if err != nil {
		return err
	}
	if len(nonFeedIDs) == 0 {
		r.logger.Info().Msg("all messages already in feed, skipping")
		return nil
	}
	if dropped := len(conversation.MessageIDs) - len(nonFeedIDs); dropped > 0 {
		r.logger.Info().Int("dropped", dropped).Msg("filtered already-in-feed messages")
	}

	// Filtering changed the message set, so the fingerprint must be
	// rechecked against the reduced IDs before creating.
	if _, err := r.db.FindCardByFingerprint(ctx, Fingerprint(nonFeedIDs)); err == nil {
		r.logger.Info().Msg("fingerprint match after filtering, skipping creation")
		return nil
	} else if err != store.ErrNotFound {
		return err
	}

	result, err := r.creator.Create(ctx, CreateParams{
		MessageIDs:       nonFeedIDs,
		Title:            conversation.Title,
		Summary:          conversation.Summary,
		KeyInsight:       conversation.KeyInsight,
		PreviewMessageID: conversation.PreviewMessageID,
		Kind:             models.CardAutomated,
	})
	if err != nil {
		return err
	}

	r.logger.Info().
		Int64("card_id", result.Card.ID).
		Str("title", conversation.Title).
		Msg("created new feed card")
	return nil
}

func (r *Runner) updateCard(ctx context.Context, conversation models.Conversation, card *models.FeedCard) error {
	// Continuations pass the full ID set; the updater drops anything
	// already copied under the card's source room.
	if _, err := r.updater.UpdateContinuation(ctx, card, conversation.MessageIDs, nil); err != nil {
		return err
	}
	r.logger.Info().Int64("card_id", card.ID).Msg("updated existing feed card with continuation")
	return nil
}

func (r *Runner) filterNotInFeed(ctx context.Context, messageIDs []int64) ([]int64, error) {
	nonFeed, err := r.db.FilterNotInFeed(ctx, messageIDs)
	if err != nil {
		return nil, err
	}
	keep := make(map[int64]bool, len(nonFeed))
	for _, id := range nonFeed {
		keep[id] = true
	}
	filtered := make([]int64, 0, len(messageIDs))
	for _, id := range messageIDs {
		if keep[id] {
			filtered = append(filtered, id)
		}
	}
	return filtered, nil
}

// determineSourceRoomID resolves where a conversation's messages live. An
// unresolvable set yields nil rather than an error; dedup then runs without
// a source-room filter.
func (r *Runner) determineSourceRoomID(ctx context.Context, messageIDs []int64) (*int64, error) {
	messages, err := r.db.MessagesByIDs(ctx, messageIDs)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}

	analysis, err := Analyze(ctx, r.db, messages, nil)
	if err != nil {
		return nil, err
	}
	if !analysis.Valid {
		r.logger.Warn().Str("reason", analysis.Reason).Msg("cannot determine source room")
		return nil, nil
	}
	if analysis.SourceRoom == nil {
		return nil, nil
	}
	return &analysis.SourceRoom.ID, nil
}
