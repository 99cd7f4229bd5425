package feed

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/feedscout/feedscout/internal/metrics"
	"github.com/feedscout/feedscout/internal/models"
	"github.com/feedscout/feedscout/internal/store"
)

// Updater folds continuation messages into an existing card's derived room.
// Messages already copied into the card's room or into sibling derived rooms
// of the same source are silently skipped, so the same original is never
// copied twice anywhere under one source room.
type Updater struct {
	db     store.DataStore
	logger zerolog.Logger
}

// NewUpdater builds an updater.
func NewUpdater(db store.DataStore, logger zerolog.Logger) *Updater {
	return &Updater{
		db:     db,
		logger: logger.With().Str("component", "updater").Logger(),
	}
}

// UpdateContinuation appends new messages to a card's room and refreshes the
// card. With every message already copied, only the summary is updated when
// one is supplied. updatedSummary may be nil to keep the current summary.
func (u *Updater) UpdateContinuation(ctx context.Context, card *models.FeedCard, newMessageIDs []int64, updatedSummary *string) (*Result, error) {
	if card == nil {
		return nil, ErrCardNotFound
	}
	if len(newMessageIDs) == 0 {
		return nil, ErrEmptyMessageIDs
	}

	room, err := u.db.GetRoom(ctx, card.RoomID)
	if err != nil {
		return nil, err
	}

	toAdd, skipped, err := u.filterAlreadyCopied(ctx, room, newMessageIDs)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		u.logger.Info().
			Int64("card_id", card.ID).
			Ints64("skipped", skipped).
			Msg("skipping messages already copied under this source room")
	}

	if len(toAdd) == 0 {
		if updatedSummary != nil {
			if err := u.db.TouchFeedCard(ctx, card.ID, updatedSummary); err != nil {
				return nil, err
			}
		}
		return &Result{Room: room, Card: card}, nil
	}

	messages, err := u.db.MessagesByIDs(ctx, toAdd)
	if err != nil {
		return nil, err
	}
	if len(messages) != len(toAdd) {
		return nil, ErrMessagesNotFound
	}

	err = u.db.InTx(ctx, func(tx store.Store) error {
		for _, msg := range messages {
			_, err := tx.FindCopyByOriginal(ctx, room.ID, msg.ID)
			if err == nil {
				continue
			}
			if err != store.ErrNotFound {
				return err
			}
			if _, err := tx.CopyMessage(ctx, room.ID, msg); err != nil {
				return err
			}
		}
		if err := tx.TouchFeedCard(ctx, card.ID, updatedSummary); err != nil {
			return err
		}
		return tx.MarkMessagesInFeed(ctx, toAdd)
	})
	if err != nil {
		return nil, err
	}

	metrics.CardsContinued.Inc()
	u.logger.Info().
		Int64("card_id", card.ID).
		Int("added", len(messages)).
		Msg("updated feed card with continuation")
	return &Result{Room: room, Card: card}, nil
}

// filterAlreadyCopied splits candidate IDs into messages still worth copying
// and messages already present in the card's room or any sibling derived room.
func (u *Updater) filterAlreadyCopied(ctx context.Context, room *models.Room, candidateIDs []int64) (toAdd, skipped []int64, err error) {
	existing, err := u.db.CopiedOriginalIDs(ctx, room.ID)
	if err != nil {
		return nil, nil, err
	}
	if room.SourceRoomID != nil {
		siblings, err := u.db.SiblingCopiedOriginalIDs(ctx, *room.SourceRoomID, room.ID)
		if err != nil {
			return nil, nil, err
		}
		existing = append(existing, siblings...)
	}

	copiedSet := make(map[int64]bool, len(existing))
	for _, id := range existing {
		copiedSet[id] = true
	}

	for _, id := range candidateIDs {
		if copiedSet[id] {
			skipped = append(skipped, id)
		} else {
			toAdd = append(toAdd, id)
		}
	}
	return toAdd, skipped, nil
}
